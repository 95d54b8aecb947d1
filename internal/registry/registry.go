// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package registry implements a statically-sized, lock-free, append-only
// registry. It is constructed once at program start (before any goroutine
// that could race on it has been spawned), and from then on supports
// concurrent registration and iteration without locks.
//
// The design mirrors a fixed-capacity arena: an atomic "next" cursor is
// fetch-added to reserve a slot, the slot is written without synchronization
// (the caller has exclusive access to it by construction, since no other
// registrant can have claimed the same index), and then the slot's
// "published" flag is released so that concurrent iterators can observe it.
package registry

import "sync/atomic"

// Registry holds up to Capacity() entries of type T. Create one with New;
// the zero value has no slots and rejects every Register. A Registry must
// not be copied after first use.
type Registry[T any] struct {
	capacity int
	next     atomic.Int64
	slots    []slot[T]
}

type slot[T any] struct {
	value       T
	initialized atomic.Bool
}

// New creates a Registry with room for exactly capacity entries.
func New[T any](capacity int) *Registry[T] {
	return &Registry[T]{
		capacity: capacity,
		slots:    make([]slot[T], capacity),
	}
}

// Register atomically reserves the next slot and publishes value into it,
// returning a stable pointer to the stored copy. If the registry is already
// at capacity, it returns (nil, false) and value is unchanged — callers can
// recover the rejected value from their own local copy, matching the
// Result<&Cell, T> contract described in the design.
//
// The returned pointer is valid for the lifetime of the Registry.
func (r *Registry[T]) Register(value T) (*T, bool) {
	idx := r.next.Add(1) - 1
	if idx >= int64(r.capacity) {
		return nil, false
	}
	s := &r.slots[idx]
	// Safety: idx is unique to this call, so no other goroutine can be
	// writing to s.value concurrently.
	s.value = value
	s.initialized.Store(true)
	return &s.value, true
}

// Len returns the number of slots that have begun being claimed. Slots
// between a concurrent Register's reservation and its publish are not
// counted by Iter, but are counted here; use Iter to bound strictly by
// what's visible.
func (r *Registry[T]) Len() int {
	n := r.next.Load()
	if n > int64(r.capacity) {
		n = int64(r.capacity)
	}
	return int(n)
}

// Capacity returns the fixed maximum number of entries.
func (r *Registry[T]) Capacity() int {
	return r.capacity
}

// IsEmpty reports whether no entry has been registered yet.
func (r *Registry[T]) IsEmpty() bool {
	return r.next.Load() == 0
}

// Iter invokes fn once for each published slot, in insertion order, stopping
// early if fn returns false. It only visits slots whose publish has
// completed, so it is safe to call concurrently with Register: a slot
// reserved-but-not-yet-published by a racing Register call is simply skipped
// for this call and will appear on a later Iter.
func (r *Registry[T]) Iter(fn func(*T) bool) {
	n := r.Len()
	for i := 0; i < n; i++ {
		s := &r.slots[i]
		if !s.initialized.Load() {
			continue
		}
		if !fn(&s.value) {
			return
		}
	}
}

// All returns a slice snapshot of every published entry, in insertion order.
func (r *Registry[T]) All() []*T {
	out := make([]*T, 0, r.Len())
	r.Iter(func(v *T) bool {
		out = append(out, v)
		return true
	})
	return out
}
