// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

const (
	// MinSize is slave address + function code + CRC.
	MinSize = 4
	// MaxSize is the maximum RTU ADU: 253-byte PDU + address + CRC.
	MaxSize = 256

	// ExceptionSize is the fixed length of an exception response ADU.
	ExceptionSize = 5
)
