// Package modbus holds the protocol types shared by the frame codec,
// the transport session and the master: protocol data units, the
// function and exception codes the Watlow controllers speak, and the
// error taxonomy of the request/response cycle.
package modbus

import (
	"context"
	"encoding/binary"
)

// Function codes supported on the Watlow RS-485 bus.
const (
	FuncCodeReadHoldingRegisters   = 0x03
	FuncCodeWriteSingleRegister    = 0x06
	FuncCodeWriteMultipleRegisters = 0x10
)

// ExceptionFlag is OR-ed into the function code of an exception response.
const ExceptionFlag = 0x80

// Exception codes (Modbus Application Protocol V1.1b3, section 7).
const (
	ExceptionCodeIllegalFunction     = 0x01
	ExceptionCodeIllegalDataAddress  = 0x02
	ExceptionCodeIllegalDataValue    = 0x03
	ExceptionCodeServerDeviceFailure = 0x04
	ExceptionCodeAcknowledge         = 0x05
	ExceptionCodeServerDeviceBusy    = 0x06
)

// ProtocolDataUnit (PDU) is independent of the underlying communication
// layer. A request/response ADU wraps a PDU with addressing and checksum.
type ProtocolDataUnit struct {
	FunctionCode byte
	Data         []byte
}

// ReadHoldingRegisters builds a request PDU for function code 0x03.
func ReadHoldingRegisters(address, quantity uint16) ProtocolDataUnit {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:], address)
	binary.BigEndian.PutUint16(data[2:], quantity)
	return ProtocolDataUnit{FunctionCode: FuncCodeReadHoldingRegisters, Data: data}
}

// WriteSingleRegister builds a request PDU for function code 0x06.
func WriteSingleRegister(address, value uint16) ProtocolDataUnit {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:], address)
	binary.BigEndian.PutUint16(data[2:], value)
	return ProtocolDataUnit{FunctionCode: FuncCodeWriteSingleRegister, Data: data}
}

// WriteMultipleRegisters builds a request PDU for function code 0x10.
func WriteMultipleRegisters(address uint16, values []uint16) ProtocolDataUnit {
	data := make([]byte, 5+2*len(values))
	binary.BigEndian.PutUint16(data[0:], address)
	binary.BigEndian.PutUint16(data[2:], uint16(len(values)))
	data[4] = byte(2 * len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(data[5+2*i:], v)
	}
	return ProtocolDataUnit{FunctionCode: FuncCodeWriteMultipleRegisters, Data: data}
}

// Transporter performs one half-duplex request/response exchange on the
// physical channel. Implementations never retry; retry policy belongs to
// the master.
type Transporter interface {
	Exchange(ctx context.Context, aduRequest []byte) (aduResponse []byte, err error)
}

// Connector manages the lifetime of the underlying channel.
type Connector interface {
	Connect(ctx context.Context) error
	Close() error
}
