// Package model holds the simulated controller's register memory.
package model

import (
	"encoding/binary"
	"fmt"
	"sync"
)

const (
	MaxAddress = 65535
)

// Model is the flat holding-register space of a simulated controller.
// Watlow controllers expose all parameters as holding registers, so the
// other Modbus tables are not modeled.
type Model struct {
	mu sync.RWMutex

	// 4x Holding Registers (Read/Write).
	HoldingRegisters []uint16
}

// NewModel creates a register space initialized to zero.
func NewModel() *Model {
	return &Model{
		HoldingRegisters: make([]uint16, MaxAddress+1),
	}
}

// ReadHoldingRegisters reads a range of registers as big-endian bytes.
func (m *Model) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := validateRange(address, quantity); err != nil {
		return nil, err
	}

	result := make([]byte, quantity*2)
	for i := 0; i < int(quantity); i++ {
		binary.BigEndian.PutUint16(result[i*2:], m.HoldingRegisters[int(address)+i])
	}
	return result, nil
}

// Get returns one register value.
func (m *Model) Get(address uint16) uint16 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.HoldingRegisters[address]
}

// Set writes one register value directly, bypassing the protocol path.
// Used to seed simulated sensor readings.
func (m *Model) Set(address, value uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HoldingRegisters[address] = value
}

// WriteSingleRegister writes a single holding register.
func (m *Model) WriteSingleRegister(address uint16, value uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if int(address) > MaxAddress {
		return fmt.Errorf("address out of range")
	}

	m.HoldingRegisters[address] = value
	return nil
}

// WriteMultipleRegisters writes a range of registers from big-endian bytes.
func (m *Model) WriteMultipleRegisters(address, quantity uint16, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validateRange(address, quantity); err != nil {
		return err
	}

	if len(data) < int(quantity)*2 {
		return fmt.Errorf("insufficient data length")
	}

	for i := 0; i < int(quantity); i++ {
		m.HoldingRegisters[int(address)+i] = binary.BigEndian.Uint16(data[i*2:])
	}
	return nil
}

func validateRange(address, quantity uint16) error {
	if quantity == 0 {
		return fmt.Errorf("quantity must be greater than 0")
	}
	// address is 0-based.
	if int(address)+int(quantity) > MaxAddress+1 {
		return fmt.Errorf("address range out of bounds")
	}
	return nil
}
