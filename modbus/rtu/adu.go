// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package rtu encodes and decodes Modbus RTU application data units:
//
//	Slave Address : 1 byte
//	Function      : 1 byte
//	Data          : 0 up to 252 bytes
//	CRC           : 2 bytes, little-endian
package rtu

import (
	"encoding/binary"
	"fmt"

	"github.com/shanedertrain/watlow-controller/modbus"
	"github.com/shanedertrain/watlow-controller/modbus/crc"
)

// ApplicationDataUnit is a PDU wrapped with slave addressing and checksum.
// Values are immutable once built.
type ApplicationDataUnit struct {
	SlaveID byte
	Pdu     modbus.ProtocolDataUnit
}

// Encode serializes the ADU into a wire frame, appending the CRC.
func (adu *ApplicationDataUnit) Encode() ([]byte, error) {
	length := len(adu.Pdu.Data) + 4
	if length > MaxSize {
		return nil, fmt.Errorf("modbus: frame length '%v' must not be bigger than '%v'", length, MaxSize)
	}
	raw := make([]byte, length)

	raw[0] = adu.SlaveID
	raw[1] = adu.Pdu.FunctionCode
	copy(raw[2:], adu.Pdu.Data)

	var c crc.CRC
	c.Reset().PushBytes(raw[0 : length-2])
	checksum := c.Value()

	raw[length-2] = byte(checksum)
	raw[length-1] = byte(checksum >> 8)
	return raw, nil
}

// DecodeRequest parses a wire frame a master would send: address plus
// quantity or value payloads. Used by the slave side.
func DecodeRequest(raw []byte) (*ApplicationDataUnit, error) {
	return decode(raw, validateRequestPayload)
}

// DecodeResponse parses a wire frame a slave would answer with: byte
// count plus register values, or a write echo. Used by the master side.
func DecodeResponse(raw []byte) (*ApplicationDataUnit, error) {
	return decode(raw, validateResponsePayload)
}

// decode parses a wire frame into a validated ADU. It never panics on
// unexpected data; every failure mode is a classified error value:
// *modbus.MalformedFrameError for frames whose layout cannot be right,
// *modbus.ChecksumError for CRC mismatches and *modbus.ExceptionError
// for well-formed exception responses.
func decode(raw []byte, validatePayload func(byte, []byte) error) (*ApplicationDataUnit, error) {
	length := len(raw)
	if length < MinSize {
		return nil, &modbus.MalformedFrameError{
			Reason: fmt.Sprintf("length %d below minimum %d", length, MinSize),
		}
	}
	if length > MaxSize {
		return nil, &modbus.MalformedFrameError{
			Reason: fmt.Sprintf("length %d above maximum %d", length, MaxSize),
		}
	}

	var c crc.CRC
	c.Reset().PushBytes(raw[0 : length-2])
	checksum := uint16(raw[length-1])<<8 | uint16(raw[length-2])
	if checksum != c.Value() {
		return nil, &modbus.ChecksumError{Got: checksum, Want: c.Value()}
	}

	function := raw[1]
	data := raw[2 : length-2]

	if function&modbus.ExceptionFlag != 0 {
		if length != ExceptionSize {
			return nil, &modbus.MalformedFrameError{
				Reason: fmt.Sprintf("exception frame length %d, expected %d", length, ExceptionSize),
			}
		}
		return nil, &modbus.ExceptionError{
			FunctionCode:  function &^ modbus.ExceptionFlag,
			ExceptionCode: data[0],
		}
	}

	if err := validatePayload(function, data); err != nil {
		return nil, err
	}

	return &ApplicationDataUnit{
		SlaveID: raw[0],
		Pdu: modbus.ProtocolDataUnit{
			FunctionCode: function,
			Data:         data,
		},
	}, nil
}

// validateRequestPayload checks request shapes: address + quantity or
// value, plus the register data on a multi-write.
func validateRequestPayload(function byte, data []byte) error {
	switch function {
	case modbus.FuncCodeReadHoldingRegisters, modbus.FuncCodeWriteSingleRegister:
		if len(data) != 4 {
			return &modbus.MalformedFrameError{
				Reason: fmt.Sprintf("request payload %d bytes for function 0x%02X, expected 4", len(data), function),
			}
		}
	case modbus.FuncCodeWriteMultipleRegisters:
		// Address + quantity + byte count + values; the byte count must
		// agree with both the quantity and the trailing length.
		if len(data) < 5 || len(data) != 5+int(data[4]) ||
			int(data[4]) != 2*int(binary.BigEndian.Uint16(data[2:4])) {
			return &modbus.MalformedFrameError{
				Reason: fmt.Sprintf("write multiple request payload %d bytes inconsistent", len(data)),
			}
		}
	default:
		return &modbus.MalformedFrameError{
			Reason: fmt.Sprintf("unsupported function code 0x%02X", function),
		}
	}
	return nil
}

// validateResponsePayload checks response shapes: byte count + register
// values on a read, the verbatim or address + quantity echo on writes.
func validateResponsePayload(function byte, data []byte) error {
	switch function {
	case modbus.FuncCodeReadHoldingRegisters:
		if len(data) < 1 || len(data) != 1+int(data[0]) || data[0] < 2 || data[0]%2 != 0 {
			return &modbus.MalformedFrameError{
				Reason: fmt.Sprintf("read response payload %d bytes does not match byte count", len(data)),
			}
		}
	case modbus.FuncCodeWriteSingleRegister, modbus.FuncCodeWriteMultipleRegisters:
		if len(data) != 4 {
			return &modbus.MalformedFrameError{
				Reason: fmt.Sprintf("write echo payload %d bytes, expected 4", len(data)),
			}
		}
	default:
		return &modbus.MalformedFrameError{
			Reason: fmt.Sprintf("unsupported function code 0x%02X", function),
		}
	}
	return nil
}

// Verify checks that a response belongs to this request: the slave
// address must match and the function code must be echoed.
func (adu *ApplicationDataUnit) Verify(resp *ApplicationDataUnit) error {
	if adu.SlaveID != resp.SlaveID {
		return &modbus.MalformedFrameError{
			Reason: fmt.Sprintf("response slave id %d does not match request %d", resp.SlaveID, adu.SlaveID),
		}
	}
	if adu.Pdu.FunctionCode != resp.Pdu.FunctionCode {
		return &modbus.MalformedFrameError{
			Reason: fmt.Sprintf("response function 0x%02X does not match request 0x%02X",
				resp.Pdu.FunctionCode, adu.Pdu.FunctionCode),
		}
	}
	return nil
}
