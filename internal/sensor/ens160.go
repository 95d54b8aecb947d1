// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sensor

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"time"

	"github.com/periph-home/eclss/internal/metric"
)

// ens160Addr is the Adafruit breakout's I²C address.
const ens160Addr = 0x53

const (
	ens160RegPartID    = 0x00
	ens160RegOpMode    = 0x10
	ens160RegStatus    = 0x20
	ens160RegDataAQI   = 0x21
	ens160RegDataECO2  = 0x22
	ens160RegDataTVOC  = 0x24
	ens160RegTempIn    = 0x13
	ens160RegRHIn      = 0x15
)

const ens160OpModeStandard = 0x02

// ens160CalibrateInterval re-pushes ambient temperature/humidity
// compensation every 5 polls.
const ens160CalibrateInterval = 5

// ENS160Control is the ENS160 adapter's control-message type. The ENS160
// accepts no operator commands today.
type ENS160Control struct{}

// ENS160 is the digital air-quality (eCO2/TVOC) sensor adapter.
type ENS160 struct {
	bus *Bus

	eco2 *metric.Gauge
	tvoc *metric.Gauge

	metrics *metric.Set
	polls   int
}

var _ Sensor[ENS160Control] = (*ENS160)(nil)

// BringUp validates the part ID, switches the sensor into standard
// operating mode, registers metric cells, and primes the temperature/
// humidity compensation inputs.
func (e *ENS160) BringUp(ctx context.Context, bus *Bus, metrics *metric.Set) error {
	e.bus = bus
	e.metrics = metrics
	e.polls = 0

	partID, err := e.readWord(ens160RegPartID)
	if err != nil {
		return fmt.Errorf("ens160: reading part ID: %w", err)
	}
	if partID != 0x0160 {
		return fmt.Errorf("ens160: unexpected part ID %#04x", partID)
	}

	if err := e.writeReg(ens160RegOpMode, ens160OpModeStandard); err != nil {
		return fmt.Errorf("ens160: setting operating mode: %w", err)
	}

	labels := metric.Labels{{Key: "sensor", Value: "ens160"}}
	e.eco2 = metrics.ECO2.Register(labels)
	e.tvoc = metrics.TVOC.Register(labels)

	e.calibrate()
	return nil
}

// PollInterval is 2 seconds.
func (e *ENS160) PollInterval() time.Duration {
	return 2 * time.Second
}

// HandleControl is a no-op placeholder; the ENS160 accepts no commands.
func (e *ENS160) HandleControl(ctx context.Context, msg ENS160Control) error {
	return nil
}

// Poll checks the status register for data validity before publishing
// eCO2/TVOC, and periodically recalibrates against the other sensors'
// temperature/humidity readings.
func (e *ENS160) Poll(ctx context.Context) error {
	status, err := e.readReg(ens160RegStatus)
	if err != nil {
		return fmt.Errorf("ens160: reading status: %w", err)
	}
	e.polls++

	if status&0x02 == 0 { // NEWDAT
		return nil
	}

	if e.polls%ens160CalibrateInterval == 0 {
		e.calibrate()
	}

	// Only publish in normal operation. Warm-up and initial start-up are
	// routine, not failures; skip the reading and try again next poll.
	validity := (status >> 2) & 0x03
	if validity != 0 {
		log.Printf("ens160: skipping reading, validity=%d", validity)
		return nil
	}

	eco2, err := e.readWord(ens160RegDataECO2)
	if err != nil {
		return fmt.Errorf("ens160: reading eco2: %w", err)
	}
	tvoc, err := e.readWord(ens160RegDataTVOC)
	if err != nil {
		return fmt.Errorf("ens160: reading tvoc: %w", err)
	}

	e.eco2.Set(float32(eco2))
	e.tvoc.Set(float32(tvoc))
	return nil
}

// calibrate pushes the registry-wide average temperature/humidity into the
// sensor's compensation registers, ignoring failures to read an average
// (no other sensor has published yet) or to write it (sensor-transient).
func (e *ENS160) calibrate() {
	temp, rh, ok := e.metrics.AverageTempHumidity()
	if !ok {
		return
	}
	tempWord := uint16((temp + 273.15) * 64)
	rhWord := uint16(rh * 512)
	_ = e.writeWord(ens160RegTempIn, tempWord)
	_ = e.writeWord(ens160RegRHIn, rhWord)
}

func (e *ENS160) writeReg(reg byte, val byte) error {
	return e.bus.Tx(ens160Addr, []byte{reg, val}, nil)
}

func (e *ENS160) writeWord(reg byte, val uint16) error {
	buf := []byte{reg, byte(val), byte(val >> 8)}
	return e.bus.Tx(ens160Addr, buf, nil)
}

func (e *ENS160) readReg(reg byte) (byte, error) {
	out := make([]byte, 1)
	if err := e.bus.Tx(ens160Addr, []byte{reg}, out); err != nil {
		return 0, err
	}
	return out[0], nil
}

func (e *ENS160) readWord(reg byte) (uint16, error) {
	out := make([]byte, 2)
	if err := e.bus.Tx(ens160Addr, []byte{reg}, out); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(out), nil
}
