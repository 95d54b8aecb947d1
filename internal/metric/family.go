// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package metric implements the metric registry: named families of
// gauge/counter cells keyed by an arbitrary label tuple, with sub-second
// monotonic timestamping and both Prometheus-exposition and JSON rendering.
//
// A Family is created once at program start with a fixed capacity; cells
// are registered lazily the first time a given label tuple is used, and
// once registered a cell lives for the process's lifetime and is referenced
// by a stable *Gauge or *Counter handle. This matches the append-only
// registry's guarantees (package registry).
package metric

import (
	"strconv"
	"strings"

	"github.com/periph-home/eclss/internal/atomiccell"
	"github.com/periph-home/eclss/internal/registry"
)

// Label is a single key-value pair identifying a time series within a
// family. A Labels slice is ordered and compared/rendered in that order.
type Label struct {
	Key   string
	Value string
}

// Labels is an ordered tuple of Label pairs.
type Labels []Label

// Get returns the value for key, or "" if not present.
func (l Labels) Get(key string) string {
	for _, kv := range l {
		if kv.Key == key {
			return kv.Value
		}
	}
	return ""
}

// cell is implemented by *Gauge and *Counter.
type cell interface {
	renderValue() string
	value() float64
	timestamp() float64
}

// Gauge is a metric cell holding a float32 value stored bit-encoded in a
// 32-bit atomic. Set publishes the value then the timestamp, both with
// release ordering; Value acquires.
type Gauge struct {
	v  atomiccell.Float32
	ts atomiccell.Timestamp
}

// Set stores v and touches the timestamp.
func (g *Gauge) Set(v float32) {
	g.v.Store(v)
	g.ts.Touch()
}

// Value acquires the current value.
func (g *Gauge) Value() float32 {
	return g.v.Load()
}

func (g *Gauge) renderValue() string {
	// Round-number gauges keep a fractional digit (10.0, not 10) so they
	// never look like counters in the exposition.
	s := strconv.FormatFloat(float64(g.Value()), 'g', -1, 32)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func (g *Gauge) value() float64     { return float64(g.Value()) }
func (g *Gauge) timestamp() float64 { return g.ts.Load() }

// Counter is a monotonically increasing uint64 metric cell.
type Counter struct {
	v  atomiccell.Uint64
	ts atomiccell.Timestamp
}

// Inc increments the counter by one.
func (c *Counter) Inc() {
	c.Add(1)
}

// Add increments the counter by delta.
func (c *Counter) Add(delta uint64) {
	c.v.Add(delta)
	c.ts.Touch()
}

// Value acquires the current count.
func (c *Counter) Value() uint64 {
	return c.v.Load()
}

func (c *Counter) renderValue() string {
	return strconv.FormatUint(c.Value(), 10)
}

func (c *Counter) value() float64     { return float64(c.Value()) }
func (c *Counter) timestamp() float64 { return c.ts.Load() }

// Kind identifies a Prometheus metric type.
type Kind string

// Valid Kind values.
const (
	KindGauge   Kind = "gauge"
	KindCounter Kind = "counter"
)

type entry[V any] struct {
	labels Labels
	cell   V
}

// Family groups a named gauge or counter metric, with help/unit metadata,
// keyed by an arbitrary label tuple. V is Gauge or Counter.
type Family[V any] struct {
	Name string
	Help string
	Unit string
	Kind Kind

	entries *registry.Registry[entry[V]]
}

// NewFamily creates a Family with room for capacity distinct label tuples.
func NewFamily[V any](name, help, unit string, kind Kind, capacity int) *Family[V] {
	return &Family[V]{
		Name:    name,
		Help:    help,
		Unit:    unit,
		Kind:    kind,
		entries: registry.New[entry[V]](capacity),
	}
}

// Register returns the cell for labels, registering a fresh one if this is
// the first time labels has been used; a second Register with the same
// label tuple returns the same cell, matching the append-only registry's
// dedup guarantee. Returns nil if the family is at capacity and labels has
// not been seen before.
func (f *Family[V]) Register(labels Labels) *V {
	if existing := f.lookup(labels); existing != nil {
		return existing
	}
	e, ok := f.entries.Register(entry[V]{labels: labels})
	if !ok {
		// Race: another goroutine may have registered the same labels
		// between our lookup and our failed Register. Check once more
		// before giving up.
		return f.lookup(labels)
	}
	return &e.cell
}

// forEach invokes fn for every registered (labels, cell) pair in insertion
// order, stopping early if fn returns false.
func (f *Family[V]) forEach(fn func(Labels, *V) bool) {
	f.entries.Iter(func(e *entry[V]) bool {
		return fn(e.labels, &e.cell)
	})
}

// Len reports how many distinct label tuples are currently registered.
func (f *Family[V]) Len() int {
	return f.entries.Len()
}

// lookup scans already-published entries for a matching label tuple.
func (f *Family[V]) lookup(labels Labels) *V {
	var found *V
	f.entries.Iter(func(e *entry[V]) bool {
		if labelsEqual(e.labels, labels) {
			found = &e.cell
			return false
		}
		return true
	})
	return found
}

func labelsEqual(a, b Labels) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
