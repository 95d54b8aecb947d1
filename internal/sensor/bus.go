// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sensor

import (
	"sync"

	"periph.io/x/conn/v3/i2c"
)

// Bus wraps a periph.io i2c.Bus with a mutex so the five sensor
// supervisors, each running on its own goroutine, can share one physical
// I²C bus without interleaving transactions. Each supervisor holds the
// mutex for exactly one transaction at a time.
type Bus struct {
	mu  sync.Mutex
	bus i2c.Bus
}

// NewBus wraps an already-opened periph.io I²C bus handle.
func NewBus(bus i2c.Bus) *Bus {
	return &Bus{bus: bus}
}

// Tx performs one bus-atomic I²C transaction: write w (if non-empty) then
// read len(r) bytes into r (if non-empty), holding the bus mutex for the
// whole operation.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bus.Tx(addr, w, r)
}
