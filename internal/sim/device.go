// Package sim implements a simulated Watlow controller: the slave-side
// protocol logic over an in-memory register model, with pluggable
// persistence standing in for the controller's EEPROM.
package sim

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/shanedertrain/watlow-controller/internal/registers"
	"github.com/shanedertrain/watlow-controller/internal/sim/model"
	"github.com/shanedertrain/watlow-controller/internal/sim/persistence"
	"github.com/shanedertrain/watlow-controller/modbus"
)

// defaultTemperature seeds input 1 so a fresh simulator answers reads
// with a plausible temperature instead of zero.
const defaultTemperature = 100.5

// Device is one simulated controller on the bus. It answers only its
// own slave ID and only the function codes the real hardware supports.
type Device struct {
	variant registers.Variant
	slaveID byte
	model   *model.Model
	storage persistence.Storage

	// valid is the variant's documented address space; anything else
	// draws an illegal-data-address exception.
	valid map[uint16]registers.Entry

	saveAddress uint16
	hasSave     bool
}

// NewDevice loads the register space from storage and prepares a device
// for the given variant and slave ID.
func NewDevice(variant registers.Variant, slaveID byte, storage persistence.Storage) (*Device, error) {
	entries := registers.Table(variant)
	if entries == nil {
		return nil, fmt.Errorf("unknown controller variant %v", variant)
	}

	m, err := storage.Load()
	if err != nil {
		return nil, fmt.Errorf("load register space: %w", err)
	}

	d := &Device{
		variant: variant,
		slaveID: slaveID,
		model:   m,
		storage: storage,
		valid:   make(map[uint16]registers.Entry, len(entries)),
	}
	for _, e := range entries {
		for w := uint16(0); w < uint16(e.Words); w++ {
			d.valid[e.Address+w] = e
		}
	}

	if save, err := registers.Resolve(variant, registers.SaveChanges); err == nil {
		d.saveAddress = save.Address
		d.hasSave = true
	}

	if pv, err := registers.Resolve(variant, registers.ProcessValue); err == nil && m.Get(pv.Address) == 0 {
		if raw, err := pv.ToRaw(defaultTemperature); err == nil {
			m.Set(pv.Address, raw[0])
		}
	}

	return d, nil
}

// Model exposes the register space so tests and the sensor loop can
// poke values directly.
func (d *Device) Model() *model.Model { return d.model }

// SlaveID returns the unit address the device answers to.
func (d *Device) SlaveID() byte { return d.slaveID }

// Handle processes one request PDU. A non-nil error means the device
// stays silent, which is how a real slave treats frames addressed to
// another unit.
func (d *Device) Handle(_ context.Context, slaveID byte, req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if slaveID != d.slaveID {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("not addressed to this unit (%d != %d)", slaveID, d.slaveID)
	}

	switch req.FunctionCode {
	case modbus.FuncCodeReadHoldingRegisters:
		return d.handleRead(req), nil
	case modbus.FuncCodeWriteSingleRegister:
		return d.handleWriteSingle(req), nil
	case modbus.FuncCodeWriteMultipleRegisters:
		return d.handleWriteMultiple(req), nil
	default:
		return d.exception(req.FunctionCode, modbus.ExceptionCodeIllegalFunction), nil
	}
}

func (d *Device) handleRead(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return d.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])

	if quantity < 1 || quantity > 125 {
		return d.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	if !d.addressable(address, quantity) {
		return d.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}

	data, err := d.model.ReadHoldingRegisters(address, quantity)
	if err != nil {
		return d.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}

	respData := make([]byte, 1+len(data))
	respData[0] = byte(len(data))
	copy(respData[1:], data)

	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}
}

func (d *Device) handleWriteSingle(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return d.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	value := binary.BigEndian.Uint16(req.Data[2:4])

	if !d.addressable(address, 1) {
		return d.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}

	if err := d.model.WriteSingleRegister(address, value); err != nil {
		return d.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}
	d.persisted(address, 1)

	return req // Echo request
}

func (d *Device) handleWriteMultiple(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) < 6 {
		return d.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	byteCount := req.Data[4]

	if quantity < 1 || quantity > 123 {
		return d.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	if byte(len(req.Data)-5) != byteCount {
		return d.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	if !d.addressable(address, quantity) {
		return d.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}

	if err := d.model.WriteMultipleRegisters(address, quantity, req.Data[5:]); err != nil {
		return d.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}
	d.persisted(address, quantity)

	respData := make([]byte, 4)
	binary.BigEndian.PutUint16(respData[0:2], address)
	binary.BigEndian.PutUint16(respData[2:4], quantity)

	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}
}

// addressable reports whether every register in the range is part of
// the variant's documented address space.
func (d *Device) addressable(address, quantity uint16) bool {
	for i := uint16(0); i < quantity; i++ {
		if _, ok := d.valid[address+i]; !ok {
			return false
		}
	}
	return true
}

// persisted runs the storage hook and, when the save-changes command
// register was hit, commits the full register space the way a real
// controller commits to EEPROM.
func (d *Device) persisted(address, quantity uint16) {
	d.storage.OnWrite(address, quantity)

	if d.hasSave && address <= d.saveAddress && d.saveAddress < address+quantity {
		if err := d.storage.Save(d.model); err != nil {
			slog.Error("failed to commit register space", "err", err)
		}
	}
}

func (d *Device) exception(funcCode byte, code byte) modbus.ProtocolDataUnit {
	return modbus.ProtocolDataUnit{
		FunctionCode: funcCode | modbus.ExceptionFlag,
		Data:         []byte{code},
	}
}
