// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sensor

// sensirionCRC8 computes the CRC-8 checksum Sensirion devices (SCD30,
// SGP30) attach to every 16-bit word on the I²C bus: polynomial 0x31,
// initial value 0xFF, no reflection, no final XOR.
func sensirionCRC8(data []byte) byte {
	crc := byte(0xFF)
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = (crc << 1) ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// appendWord appends a big-endian 16-bit word plus its CRC-8 to buf.
func appendWord(buf []byte, word uint16) []byte {
	w := []byte{byte(word >> 8), byte(word)}
	return append(append(buf, w...), sensirionCRC8(w))
}
