// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package atomiccell provides the lock-free float32 and uint64 cells used by
// the metric registry (see package metric). Gauge values are stored as a
// bit-encoded float32 inside a 32-bit atomic; counter values are plain
// monotonic uint64 atomics. Every cell carries a companion timestamp,
// published after the value with release ordering so readers that acquire
// the timestamp first never observe a value older than it.
package atomiccell

import (
	"math"
	"sync/atomic"
	"time"
)

// Boot is the process start time, used to compute monotonic
// seconds-since-boot timestamps for metric cells without depending on wall
// clock time (which may jump on an appliance without NTP sync yet).
var Boot = time.Now()

// NowSeconds returns the number of seconds elapsed since Boot, as used for
// metric cell timestamps.
func NowSeconds() float64 {
	return time.Since(Boot).Seconds()
}

// Float32 is a lock-free float32 cell backed by a 32-bit atomic.
type Float32 struct {
	bits atomic.Uint32
}

// Store publishes f with release ordering.
func (c *Float32) Store(f float32) {
	c.bits.Store(math.Float32bits(f))
}

// Load acquires the current value.
func (c *Float32) Load() float32 {
	return math.Float32frombits(c.bits.Load())
}

// Uint64 is a lock-free monotonic counter cell.
type Uint64 struct {
	v atomic.Uint64
}

// Add increments the counter by delta and returns the new value.
func (c *Uint64) Add(delta uint64) uint64 {
	return c.v.Add(delta)
}

// Load acquires the current value.
func (c *Uint64) Load() uint64 {
	return c.v.Load()
}

// Timestamp is the monotonic "seconds since boot" companion atomic stored
// alongside every metric cell's value.
type Timestamp struct {
	bits atomic.Uint64
}

// Touch stores the current NowSeconds() value, releasing after the value
// write it accompanies.
func (t *Timestamp) Touch() {
	t.bits.Store(math.Float64bits(NowSeconds()))
}

// Load acquires the stored timestamp.
func (t *Timestamp) Load() float64 {
	return math.Float64frombits(t.bits.Load())
}
