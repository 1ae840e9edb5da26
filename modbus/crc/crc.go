// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package crc computes the Modbus CRC-16 error-detection code:
// polynomial 0xA001, initial value 0xFFFF, least-significant-bit first,
// table-free bit-shift algorithm.
package crc

// CRC accumulates the checksum over pushed bytes.
type CRC struct {
	value uint16
}

// Reset initializes the accumulator. It must be called before PushBytes.
func (c *CRC) Reset() *CRC {
	c.value = 0xFFFF
	return c
}

// PushBytes folds bs into the running checksum, eight shifts per byte.
func (c *CRC) PushBytes(bs []byte) *CRC {
	for _, b := range bs {
		c.value ^= uint16(b)
		for i := 0; i < 8; i++ {
			if c.value&0x0001 != 0 {
				c.value = (c.value >> 1) ^ 0xA001
			} else {
				c.value >>= 1
			}
		}
	}
	return c
}

// Value returns the checksum accumulated so far. The low byte goes first
// on the wire.
func (c *CRC) Value() uint16 {
	return c.value
}

// Checksum computes the CRC over bs in a single call.
func Checksum(bs []byte) uint16 {
	var c CRC
	return c.Reset().PushBytes(bs).Value()
}

// Validate reports whether the two trailing bytes of frame carry the
// correct little-endian CRC over the preceding bytes.
func Validate(frame []byte) bool {
	if len(frame) < 3 {
		return false
	}
	got := uint16(frame[len(frame)-1])<<8 | uint16(frame[len(frame)-2])
	return Checksum(frame[:len(frame)-2]) == got
}
