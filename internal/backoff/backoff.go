// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package backoff implements the exponential-backoff timer and bounded
// retry helper used by sensor bring-up, sensor poll recovery, and the WiFi
// reconnect loop.
package backoff

import (
	"context"
	"log"
	"time"
)

// DefaultMax is the default backoff ceiling.
const DefaultMax = 60 * time.Second

// Backoff holds exponential-backoff state: it starts at Initial, doubles on
// every Wait, and never exceeds Max. Name tags log lines so an operator
// can tell which subsystem's backoff is in play.
type Backoff struct {
	Name    string
	Initial time.Duration
	Max     time.Duration

	current time.Duration
}

// New creates a Backoff starting at initial and capped at DefaultMax.
func New(name string, initial time.Duration) *Backoff {
	return &Backoff{Name: name, Initial: initial, Max: DefaultMax, current: initial}
}

// WithMax overrides the default cap.
func (b *Backoff) WithMax(max time.Duration) *Backoff {
	b.Max = max
	return b
}

// Current returns the duration the next Wait will use, without advancing
// the backoff.
func (b *Backoff) Current() time.Duration {
	if b.current == 0 {
		return b.Initial
	}
	return b.current
}

// Wait blocks for the current backoff duration (or until ctx is canceled,
// whichever comes first), then advances current = min(current*2, Max). Use
// this when nothing else needs to race the wait, e.g. sensor bring-up.
func (b *Backoff) Wait(ctx context.Context) error {
	d := b.Current()
	log.Printf("%s: waiting %s before retrying", b.Name, d)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.Advance()
	return nil
}

// Advance moves current = min(current*2, Max) without blocking. Use this
// when the caller is driving its own timer so it can race other events —
// the sensor supervisor's poll loop races the control channel against the
// poll/backoff timer, so it owns the timer and only asks Backoff for the
// next duration. The WiFi reconnect loop does the same with its reconnect
// timer.
func (b *Backoff) Advance() {
	d := b.Current()
	next := d * 2
	if next > b.Max || next <= 0 {
		next = b.Max
	}
	b.current = next
}

// Reset restores current to Initial.
func (b *Backoff) Reset() {
	b.current = b.Initial
}
