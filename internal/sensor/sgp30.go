// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sensor

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/periph-home/eclss/internal/metric"
)

// sgp30Addr is the Adafruit breakout's I²C address.
const sgp30Addr = 0x58

const (
	sgp30CmdInit           = 0x2003
	sgp30CmdMeasure        = 0x2008
	sgp30CmdSetAbsHumidity = 0x2061
)

// sgp30InitMeasurements is how many readings the SGP30 produces during its
// internal calibration phase before its output is meaningful; all of them
// read a fixed 400ppm/0ppb and must be discarded.
const sgp30InitMeasurements = 15

// sgp30HumidityInterval pushes an absolute-humidity compensation value to
// the sensor every 2*absHumidityInterval polls (roughly every ten seconds
// at this sensor's ~1-second cadence).
const sgp30HumidityInterval = absHumidityInterval * 2

// SGP30Control is the SGP30 adapter's control-message type. The SGP30
// accepts no operator commands today.
type SGP30Control struct{}

// SGP30 is the eCO2/tVOC sensor adapter.
type SGP30 struct {
	bus *Bus

	eco2 *metric.Gauge
	tvoc *metric.Gauge

	metrics *metric.Set
	polls   int
}

var _ Sensor[SGP30Control] = (*SGP30)(nil)

// BringUp runs the init sequence and registers metric cells.
func (s *SGP30) BringUp(ctx context.Context, bus *Bus, metrics *metric.Set) error {
	s.bus = bus
	s.metrics = metrics
	s.polls = 0

	if err := s.command(sgp30CmdInit, nil); err != nil {
		return fmt.Errorf("sgp30: init: %w", err)
	}

	labels := metric.Labels{{Key: "sensor", Value: "sgp30"}}
	s.eco2 = metrics.ECO2.Register(labels)
	s.tvoc = metrics.TVOC.Register(labels)
	return nil
}

// PollInterval is just under a second: the SGP30's dynamic baseline
// calibration requires measurements every second, and a measurement takes
// about 12ms.
func (s *SGP30) PollInterval() time.Duration {
	return time.Second - 12*time.Millisecond
}

// HandleControl is a no-op placeholder; the SGP30 accepts no commands.
func (s *SGP30) HandleControl(ctx context.Context, msg SGP30Control) error {
	return nil
}

// Poll reads one measurement, discards the sensor's initialization-phase
// readings, and periodically pushes an absolute-humidity compensation
// value derived from the other sensors.
func (s *SGP30) Poll(ctx context.Context) error {
	raw, err := s.measure(ctx)
	if err != nil {
		return err
	}
	s.polls++

	if s.polls <= sgp30InitMeasurements {
		return nil
	}

	s.eco2.Set(float32(raw[0]))
	s.tvoc.Set(float32(raw[1]))

	if s.polls%sgp30HumidityInterval != 0 {
		return nil
	}

	avg, ok := s.metrics.AverageAbsHumidity()
	if !ok {
		return nil
	}
	return s.setAbsHumidity(avg)
}

// measure issues the measure-air-quality command, waits out the 12ms
// measurement, and returns {eco2, tvoc}.
func (s *SGP30) measure(ctx context.Context) ([2]uint16, error) {
	if err := s.command(sgp30CmdMeasure, nil); err != nil {
		return [2]uint16{}, err
	}
	select {
	case <-ctx.Done():
		return [2]uint16{}, ctx.Err()
	case <-time.After(12 * time.Millisecond):
	}
	raw := make([]byte, 6)
	if err := s.bus.Tx(sgp30Addr, nil, raw); err != nil {
		return [2]uint16{}, fmt.Errorf("sgp30: reading measurement: %w", err)
	}
	eco2, err := decodeSGP30Word(raw[0:3])
	if err != nil {
		return [2]uint16{}, fmt.Errorf("sgp30: eco2 word: %w", err)
	}
	tvoc, err := decodeSGP30Word(raw[3:6])
	if err != nil {
		return [2]uint16{}, fmt.Errorf("sgp30: tvoc word: %w", err)
	}
	return [2]uint16{eco2, tvoc}, nil
}

// setAbsHumidity pushes an absolute-humidity compensation value, encoded as
// an 8.8 fixed-point g/m^3 value per the SGP30 datasheet.
func (s *SGP30) setAbsHumidity(gramsPerCubicMeter float32) error {
	if gramsPerCubicMeter <= 0 {
		return nil
	}
	fixed := uint16(gramsPerCubicMeter*256 + 0.5)
	return s.command(sgp30CmdSetAbsHumidity, &fixed)
}

func (s *SGP30) command(cmd uint16, arg *uint16) error {
	buf := []byte{byte(cmd >> 8), byte(cmd)}
	if arg != nil {
		buf = appendWord(buf, *arg)
	}
	return s.bus.Tx(sgp30Addr, buf, nil)
}

func decodeSGP30Word(raw []byte) (uint16, error) {
	if len(raw) != 3 {
		return 0, errors.New("sgp30: malformed word")
	}
	if sensirionCRC8(raw[0:2]) != raw[2] {
		return 0, errors.New("sgp30: CRC mismatch")
	}
	return binary.BigEndian.Uint16(raw[0:2]), nil
}
