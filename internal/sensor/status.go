// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package sensor implements the generic sensor supervisor: bring-up with
// exponential backoff, periodic polling, control-message handling, and
// status publication, plus the concrete adapters for each supported I²C
// device.
package sensor

import (
	"sync/atomic"

	"github.com/periph-home/eclss/internal/registry"
)

// Status is a sensor's health, published for /sensors/status.json. It only
// ever advances Missing -> Up -> {Up, Down}; it
// never returns to Missing once a sensor has been brought up once.
type Status int32

// Valid Status values.
const (
	StatusMissing Status = iota
	StatusUp
	StatusDown
)

func (s Status) String() string {
	switch s {
	case StatusUp:
		return "Up"
	case StatusDown:
		return "Down"
	default:
		return "Missing"
	}
}

// MarshalJSON renders the status as its string name.
func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

type statusEntry struct {
	name   string
	status atomic.Int32
}

// StatusRegistry holds one status cell per sensor name. Like the metric
// registry, it's a fixed-capacity append-only structure constructed before
// any supervisor task starts.
type StatusRegistry struct {
	entries *registry.Registry[statusEntry]
}

// NewStatusRegistry creates a registry with room for capacity sensors.
func NewStatusRegistry(capacity int) *StatusRegistry {
	return &StatusRegistry{entries: registry.New[statusEntry](capacity)}
}

// Register reserves a status cell for name, initialized to StatusMissing.
// Running out of capacity means the compile-time sizing constants are
// wrong, so this panics rather than returning an error.
func (r *StatusRegistry) Register(name string) *StatusCell {
	e, ok := r.entries.Register(statusEntry{name: name})
	if !ok {
		panic("sensor: status registry is full; increase its compile-time capacity")
	}
	return &StatusCell{e: e}
}

// JSON returns a snapshot of every registered sensor's status, for
// GET /sensors/status.json.
func (r *StatusRegistry) JSON() map[string]Status {
	out := make(map[string]Status, r.entries.Len())
	r.entries.Iter(func(e *statusEntry) bool {
		out[e.name] = Status(e.status.Load())
		return true
	})
	return out
}

// StatusCell is a stable handle to one sensor's status.
type StatusCell struct {
	e *statusEntry
}

// Load acquires the current status.
func (c *StatusCell) Load() Status {
	return Status(c.e.status.Load())
}

func (c *StatusCell) markUp() {
	c.e.status.Store(int32(StatusUp))
}

func (c *StatusCell) markDown() {
	c.e.status.Store(int32(StatusDown))
}
