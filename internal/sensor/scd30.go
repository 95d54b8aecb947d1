// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sensor

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/periph-home/eclss/internal/metric"
)

// scd30Addr is the SCD30's fixed I²C address.
const scd30Addr = 0x61

// SCD30 commands, per the Sensirion SCD30 interface description.
const (
	scd30CmdStartContinuous    = 0x0010
	scd30CmdStopContinuous     = 0x0104
	scd30CmdSetInterval        = 0x4600
	scd30CmdGetDataReady       = 0x0202
	scd30CmdReadMeasurement    = 0x0300
	scd30CmdSetAltitude        = 0x5102
	scd30CmdForceRecalibration = 0x5204
	scd30CmdSoftReset          = 0xD304
)

// SCD30CommandKind discriminates the control messages the SCD30 adapter
// accepts: force recalibration at a known ppm, set altitude offset, set
// measurement interval, soft reset.
type SCD30CommandKind int

// Valid SCD30CommandKind values.
const (
	SCD30ForceCalibrate SCD30CommandKind = iota
	SCD30SetAltitudeOffset
	SCD30SetMeasurementInterval
	SCD30SoftReset
)

// SCD30Command is the SCD30 adapter's control-message type.
type SCD30Command struct {
	Kind SCD30CommandKind

	PPM             uint16 // SCD30ForceCalibrate
	AltitudeMeters  uint16 // SCD30SetAltitudeOffset
	IntervalSeconds uint16 // SCD30SetMeasurementInterval
}

// SCD30 is the CO2/temperature/humidity sensor adapter.
type SCD30 struct {
	bus  *Bus
	co2  *metric.Gauge
	temp *metric.Gauge
	rh   *metric.Gauge
}

var _ Sensor[SCD30Command] = (*SCD30)(nil)

// BringUp starts continuous sampling and registers this sensor's metric
// cells.
func (s *SCD30) BringUp(ctx context.Context, bus *Bus, metrics *metric.Set) error {
	s.bus = bus
	labels := metric.Labels{{Key: "sensor", Value: "scd30"}}
	s.co2 = metrics.CO2.Register(labels)
	s.temp = metrics.Temperature.Register(labels)
	s.rh = metrics.RelHumidity.Register(labels)

	// Ambient pressure compensation argument of 0 disables it; the BME680
	// adapter publishes a real pressure reading this could be wired to in
	// a future revision.
	return s.writeCommand(scd30CmdStartContinuous, 0)
}

// PollInterval is 2 seconds, the SCD30's fastest supported cadence.
func (s *SCD30) PollInterval() time.Duration {
	return 2 * time.Second
}

// Poll waits for the data-ready bit, then reads and publishes one
// measurement.
func (s *SCD30) Poll(ctx context.Context) error {
	ready, err := s.waitDataReady(ctx)
	if err != nil {
		return err
	}
	if !ready {
		return errors.New("scd30: data not ready")
	}

	raw, err := s.read(scd30CmdReadMeasurement, 18)
	if err != nil {
		return err
	}
	co2, err := decodeSCD30Float(raw[0:6])
	if err != nil {
		return fmt.Errorf("scd30: co2 word: %w", err)
	}
	temp, err := decodeSCD30Float(raw[6:12])
	if err != nil {
		return fmt.Errorf("scd30: temperature word: %w", err)
	}
	rh, err := decodeSCD30Float(raw[12:18])
	if err != nil {
		return fmt.Errorf("scd30: humidity word: %w", err)
	}

	s.co2.Set(co2)
	s.temp.Set(temp)
	s.rh.Set(rh)
	return nil
}

// waitDataReady polls the data-ready register, yielding between attempts,
// until it asserts or ctx is canceled.
func (s *SCD30) waitDataReady(ctx context.Context) (bool, error) {
	for {
		raw, err := s.read(scd30CmdGetDataReady, 3)
		if err != nil {
			return false, err
		}
		val, err := decodeSCD30Word(raw)
		if err != nil {
			return false, err
		}
		if val == 1 {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// HandleControl honors operator commands.
func (s *SCD30) HandleControl(ctx context.Context, msg SCD30Command) error {
	switch msg.Kind {
	case SCD30ForceCalibrate:
		return s.writeCommand(scd30CmdForceRecalibration, msg.PPM)
	case SCD30SetAltitudeOffset:
		return s.writeCommand(scd30CmdSetAltitude, msg.AltitudeMeters)
	case SCD30SetMeasurementInterval:
		if msg.IntervalSeconds == 0 {
			return errors.New("scd30: measurement interval must be > 0")
		}
		return s.writeCommand(scd30CmdSetInterval, msg.IntervalSeconds)
	case SCD30SoftReset:
		return s.writeCommand(scd30CmdSoftReset, 0)
	default:
		return fmt.Errorf("scd30: unknown command kind %d", msg.Kind)
	}
}

func (s *SCD30) writeCommand(cmd uint16, arg uint16) error {
	buf := make([]byte, 0, 5)
	buf = append(buf, byte(cmd>>8), byte(cmd))
	buf = appendWord(buf, arg)
	return s.bus.Tx(scd30Addr, buf, nil)
}

func (s *SCD30) read(cmd uint16, n int) ([]byte, error) {
	w := []byte{byte(cmd >> 8), byte(cmd)}
	r := make([]byte, n)
	if err := s.bus.Tx(scd30Addr, w, r); err != nil {
		return nil, err
	}
	return r, nil
}

// decodeSCD30Word validates and extracts a single 16-bit word (2 data bytes
// + 1 CRC byte).
func decodeSCD30Word(raw []byte) (uint16, error) {
	if len(raw) != 3 {
		return 0, fmt.Errorf("scd30: expected 3 bytes, got %d", len(raw))
	}
	if sensirionCRC8(raw[0:2]) != raw[2] {
		return 0, errors.New("scd30: CRC mismatch")
	}
	return binary.BigEndian.Uint16(raw[0:2]), nil
}

// decodeSCD30Float validates and decodes a big-endian IEEE-754 float32
// transmitted as two CRC-checked 16-bit words (6 bytes total).
func decodeSCD30Float(raw []byte) (float32, error) {
	if len(raw) != 6 {
		return 0, fmt.Errorf("scd30: expected 6 bytes, got %d", len(raw))
	}
	hi, err := decodeSCD30Word(raw[0:3])
	if err != nil {
		return 0, err
	}
	lo, err := decodeSCD30Word(raw[3:6])
	if err != nil {
		return 0, err
	}
	bits := uint32(hi)<<16 | uint32(lo)
	return math.Float32frombits(bits), nil
}
