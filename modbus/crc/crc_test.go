// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package crc

import (
	"testing"
)

func TestCRC(t *testing.T) {
	var crc CRC
	crc.Reset()
	crc.PushBytes([]byte{0x02, 0x07})

	if crc.Value() != 0x1241 {
		t.Fatalf("crc expected %v, actual %v", 0x1241, crc.Value())
	}
}

func TestChecksumIncremental(t *testing.T) {
	frame := []byte{0x01, 0x03, 0x00, 0x64, 0x00, 0x01}

	var crc CRC
	crc.Reset()
	crc.PushBytes(frame[:3]).PushBytes(frame[3:])

	if got, want := crc.Value(), Checksum(frame); got != want {
		t.Fatalf("incremental crc %04X, one-shot %04X", got, want)
	}
}

func TestValidate(t *testing.T) {
	body := []byte{0x01, 0x03, 0x02, 0x03, 0xED}
	sum := Checksum(body)
	frame := append(append([]byte{}, body...), byte(sum), byte(sum>>8))

	if !Validate(frame) {
		t.Fatal("expected frame to validate")
	}
	if Validate(frame[:2]) {
		t.Fatal("frame shorter than crc must not validate")
	}
}

// Flipping any single bit of a valid frame must be caught by the CRC.
func TestValidateSingleBitErrors(t *testing.T) {
	body := []byte{0x05, 0x10, 0x01, 0x2C, 0x00, 0x02, 0x04, 0x03, 0xE8, 0x00, 0x64}
	sum := Checksum(body)
	frame := append(append([]byte{}, body...), byte(sum), byte(sum>>8))

	for i := range frame {
		for bit := 0; bit < 8; bit++ {
			corrupted := append([]byte{}, frame...)
			corrupted[i] ^= 1 << bit
			if Validate(corrupted) {
				t.Fatalf("bit %d of byte %d flipped but frame still validates", bit, i)
			}
		}
	}
}
