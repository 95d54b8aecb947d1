// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sensor

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/periph-home/eclss/internal/metric"
)

// pmsa003iAddr is the PMSA003I's fixed I²C address.
const pmsa003iAddr = 0x12

const pmPacketLen = 32
const pmMagic = 0x424D

// pmDiameters are the three particle diameters the concentration families
// break out, and pmCountBins the six the count family breaks out.
var pmDiameters = [3]string{"1.0", "2.5", "10.0"}
var pmCountBins = [6]string{"0.3", "0.5", "1.0", "2.5", "5.0", "10.0"}

// PMSA003IControl is the PMSA003I adapter's control-message type. The
// PMSA003I accepts no operator commands.
type PMSA003IControl struct{}

// PMReading is the decoded form of a 32-byte PMSA003I packet.
type PMReading struct {
	StandardAtmosphere [3]uint16 // PM1.0, PM2.5, PM10.0, µg/m^3
	Environmental      [3]uint16 // PM1.0, PM2.5, PM10.0, µg/m^3
	Counts             [6]uint16 // particles/0.1L at 0.3/0.5/1.0/2.5/5.0/10.0 µm
	Version            byte
}

// PMSA003I is the particulate-matter sensor adapter.
type PMSA003I struct {
	bus *Bus

	envConc   [3]*metric.Gauge
	stdConc   [3]*metric.Gauge
	countCell [6]*metric.Gauge
}

var _ Sensor[PMSA003IControl] = (*PMSA003I)(nil)

// BringUp registers this adapter's metric cells. The PMSA003I has no
// configuration step; it streams a fresh packet on every I²C read.
func (p *PMSA003I) BringUp(ctx context.Context, bus *Bus, metrics *metric.Set) error {
	p.bus = bus
	for i, d := range pmDiameters {
		labels := metric.Labels{
			{Key: "sensor", Value: "pmsa003i"},
			{Key: "diameter", Value: d},
			{Key: "atmosphere", Value: "environmental"},
		}
		p.envConc[i] = metrics.PMConcentration.Register(labels)
		stdLabels := metric.Labels{
			{Key: "sensor", Value: "pmsa003i"},
			{Key: "diameter", Value: d},
			{Key: "atmosphere", Value: "standard"},
		}
		p.stdConc[i] = metrics.PMConcentration.Register(stdLabels)
	}
	for i, d := range pmCountBins {
		labels := metric.Labels{
			{Key: "sensor", Value: "pmsa003i"},
			{Key: "diameter", Value: d},
		}
		p.countCell[i] = metrics.PMCount.Register(labels)
	}
	return nil
}

// PollInterval is 2 seconds.
func (p *PMSA003I) PollInterval() time.Duration {
	return 2 * time.Second
}

// HandleControl is a no-op placeholder; the PMSA003I accepts no commands.
func (p *PMSA003I) HandleControl(ctx context.Context, msg PMSA003IControl) error {
	return nil
}

// Poll reads and decodes one packet, publishing every concentration and
// count series.
func (p *PMSA003I) Poll(ctx context.Context) error {
	buf := make([]byte, pmPacketLen)
	if err := p.bus.Tx(pmsa003iAddr, nil, buf); err != nil {
		return fmt.Errorf("pmsa003i: i2c read: %w", err)
	}
	reading, err := decodePMPacket(buf)
	if err != nil {
		return err
	}
	for i := range pmDiameters {
		p.stdConc[i].Set(float32(reading.StandardAtmosphere[i]))
		p.envConc[i].Set(float32(reading.Environmental[i]))
	}
	for i := range pmCountBins {
		p.countCell[i].Set(float32(reading.Counts[i]))
	}
	return nil
}

// decodePMPacket validates and decodes a 32-byte PMSA003I packet: magic,
// three standard-atmosphere and three environmental concentration pairs,
// six particle-count bins, version, error byte, and an unsigned-sum
// checksum. A non-zero error byte or a checksum mismatch rejects the whole
// packet.
func decodePMPacket(buf []byte) (PMReading, error) {
	if len(buf) != pmPacketLen {
		return PMReading{}, fmt.Errorf("pmsa003i: expected %d bytes, got %d", pmPacketLen, len(buf))
	}
	if magic := binary.BigEndian.Uint16(buf[0:2]); magic != pmMagic {
		return PMReading{}, fmt.Errorf("pmsa003i: bad magic %#04x", magic)
	}

	var sum uint16
	for _, b := range buf[:pmPacketLen-2] {
		sum += uint16(b)
	}
	checksum := binary.BigEndian.Uint16(buf[30:32])
	if sum != checksum {
		return PMReading{}, fmt.Errorf("pmsa003i: checksum mismatch: computed %d, packet says %d", sum, checksum)
	}

	if errByte := buf[29]; errByte != 0 {
		return PMReading{}, fmt.Errorf("pmsa003i: sensor reported error code %d", errByte)
	}

	var reading PMReading
	for i := 0; i < 3; i++ {
		reading.StandardAtmosphere[i] = binary.BigEndian.Uint16(buf[4+2*i : 6+2*i])
	}
	for i := 0; i < 3; i++ {
		reading.Environmental[i] = binary.BigEndian.Uint16(buf[10+2*i : 12+2*i])
	}
	for i := 0; i < 6; i++ {
		reading.Counts[i] = binary.BigEndian.Uint16(buf[16+2*i : 18+2*i])
	}
	reading.Version = buf[28]
	return reading, nil
}
