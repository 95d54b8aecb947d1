// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sensor

import (
	"testing"
)

// buildPMFixture encodes a 32-byte packet with all-zero concentrations and
// the given count bins.
func buildPMFixture(counts [6]uint16, errByte byte) []byte {
	buf := make([]byte, pmPacketLen)
	buf[0], buf[1] = 0x42, 0x4D
	buf[2], buf[3] = 0, 28 // frame length, unused
	// bytes 4..15 (standard + environmental concentrations) left as zero
	for i, c := range counts {
		buf[16+2*i] = byte(c >> 8)
		buf[17+2*i] = byte(c)
	}
	buf[28] = 1 // sensor version
	buf[29] = errByte
	var sum uint16
	for _, b := range buf[:30] {
		sum += uint16(b)
	}
	buf[30] = byte(sum >> 8)
	buf[31] = byte(sum)
	return buf
}

func TestDecodePMPacketExact(t *testing.T) {
	counts := [6]uint16{100, 50, 20, 5, 2, 1}
	buf := buildPMFixture(counts, 0)

	reading, err := decodePMPacket(buf)
	if err != nil {
		t.Fatalf("decodePMPacket: %v", err)
	}
	if reading.Counts != counts {
		t.Fatalf("counts = %v, want %v", reading.Counts, counts)
	}
	if reading.StandardAtmosphere != [3]uint16{0, 0, 0} {
		t.Fatalf("standard atmosphere = %v, want zero", reading.StandardAtmosphere)
	}
	if reading.Environmental != [3]uint16{0, 0, 0} {
		t.Fatalf("environmental = %v, want zero", reading.Environmental)
	}
	if reading.Version != 1 {
		t.Fatalf("version = %d, want 1", reading.Version)
	}
}

func TestDecodePMPacketBadMagic(t *testing.T) {
	buf := buildPMFixture([6]uint16{}, 0)
	buf[0] = 0x00
	if _, err := decodePMPacket(buf); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestDecodePMPacketBadChecksum(t *testing.T) {
	buf := buildPMFixture([6]uint16{1, 2, 3, 4, 5, 6}, 0)
	buf[31]++
	if _, err := decodePMPacket(buf); err == nil {
		t.Fatal("expected error for bad checksum")
	}
}

func TestDecodePMPacketNonZeroErrorByteRejected(t *testing.T) {
	buf := buildPMFixture([6]uint16{}, 3)
	if _, err := decodePMPacket(buf); err == nil {
		t.Fatal("expected error for non-zero error byte")
	}
}

func TestDecodePMPacketWrongLength(t *testing.T) {
	if _, err := decodePMPacket(make([]byte, 10)); err == nil {
		t.Fatal("expected error for short packet")
	}
}
