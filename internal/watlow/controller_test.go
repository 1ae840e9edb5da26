package watlow

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/shanedertrain/watlow-controller/internal/master"
	"github.com/shanedertrain/watlow-controller/internal/registers"
	"github.com/shanedertrain/watlow-controller/modbus"
	"github.com/shanedertrain/watlow-controller/modbus/rtu"
)

// loopbackDevice answers read/write requests from an in-memory register
// map, so controller operations run through real frames and scaling.
type loopbackDevice struct {
	regs   map[uint16]uint16
	writes []uint16 // addresses in write order
}

func newLoopbackDevice() *loopbackDevice {
	return &loopbackDevice{regs: make(map[uint16]uint16)}
}

func (d *loopbackDevice) Exchange(_ context.Context, raw []byte) ([]byte, error) {
	req, err := rtu.DecodeRequest(raw)
	if err != nil {
		return nil, err
	}

	data := req.Pdu.Data
	var resp modbus.ProtocolDataUnit
	switch req.Pdu.FunctionCode {
	case modbus.FuncCodeReadHoldingRegisters:
		address := binary.BigEndian.Uint16(data[0:2])
		quantity := binary.BigEndian.Uint16(data[2:4])
		payload := make([]byte, 1+2*quantity)
		payload[0] = byte(2 * quantity)
		for i := uint16(0); i < quantity; i++ {
			binary.BigEndian.PutUint16(payload[1+2*i:], d.regs[address+i])
		}
		resp = modbus.ProtocolDataUnit{FunctionCode: req.Pdu.FunctionCode, Data: payload}

	case modbus.FuncCodeWriteSingleRegister:
		address := binary.BigEndian.Uint16(data[0:2])
		d.regs[address] = binary.BigEndian.Uint16(data[2:4])
		d.writes = append(d.writes, address)
		resp = modbus.ProtocolDataUnit{FunctionCode: req.Pdu.FunctionCode, Data: data[:4]}

	case modbus.FuncCodeWriteMultipleRegisters:
		address := binary.BigEndian.Uint16(data[0:2])
		quantity := binary.BigEndian.Uint16(data[2:4])
		for i := uint16(0); i < quantity; i++ {
			d.regs[address+i] = binary.BigEndian.Uint16(data[5+2*i:])
			d.writes = append(d.writes, address+i)
		}
		resp = modbus.ProtocolDataUnit{FunctionCode: req.Pdu.FunctionCode, Data: data[:4]}
	}

	adu := &rtu.ApplicationDataUnit{SlaveID: req.SlaveID, Pdu: resp}
	return adu.Encode()
}

func (d *loopbackDevice) wrote(address uint16) bool {
	for _, a := range d.writes {
		if a == address {
			return true
		}
	}
	return false
}

func newTestController(d *loopbackDevice) *Controller {
	m := master.New(d, master.Config{SlaveID: 1, Variant: registers.F4})
	return New(m)
}

func TestReadTemperature(t *testing.T) {
	dev := newLoopbackDevice()
	dev.regs[100] = 1005
	c := newTestController(dev)

	got, err := c.ReadTemperature(context.Background())
	if err != nil {
		t.Fatalf("ReadTemperature() error = %v", err)
	}
	if got != 100.5 {
		t.Errorf("ReadTemperature() = %v, want 100.5", got)
	}
}

func TestSetSetpointCommits(t *testing.T) {
	dev := newLoopbackDevice()
	c := newTestController(dev)

	if err := c.SetSetpoint(context.Background(), 100.5); err != nil {
		t.Fatalf("SetSetpoint() error = %v", err)
	}
	if dev.regs[300] != 1005 {
		t.Errorf("setpoint register = %d, want 1005", dev.regs[300])
	}
	if !dev.wrote(26) {
		t.Error("setpoint change not committed to EEPROM")
	}
}

func TestWritePIDClampsToLimits(t *testing.T) {
	dev := newLoopbackDevice()
	dev.regs[901] = 1 // SI units
	c := newTestController(dev)

	p := PIDParameters{
		ProportionalBand: 25,
		Integral:         500, // above the 300.00 limit
		Derivative:       2.5,
		DeadBand:         10,
	}
	if err := c.WritePID(context.Background(), 1, p); err != nil {
		t.Fatalf("WritePID() error = %v", err)
	}

	if dev.regs[500] != 25 {
		t.Errorf("proportional band = %d, want 25", dev.regs[500])
	}
	if dev.regs[501] != 30000 { // 300.00 at scale 0.01
		t.Errorf("integral = %d, want clamped 30000", dev.regs[501])
	}
	if dev.regs[502] != 250 {
		t.Errorf("derivative = %d, want 250", dev.regs[502])
	}
	// Hysteresis only applies with a zero proportional band.
	if dev.wrote(506) {
		t.Error("hysteresis written despite non-zero proportional band")
	}
}

func TestWritePIDHysteresisWithZeroBand(t *testing.T) {
	dev := newLoopbackDevice()
	dev.regs[901] = 1
	c := newTestController(dev)

	p := PIDParameters{ProportionalBand: 0, Hysteresis: 5}
	if err := c.WritePID(context.Background(), 1, p); err != nil {
		t.Fatalf("WritePID() error = %v", err)
	}
	if dev.regs[506] != 5 {
		t.Errorf("hysteresis = %d, want 5", dev.regs[506])
	}
}

func TestReadPIDFollowsUnitMode(t *testing.T) {
	dev := newLoopbackDevice()
	dev.regs[901] = 0 // US units
	dev.regs[500] = 30
	dev.regs[503] = 1234 // reset, scale 0.01
	dev.regs[504] = 99   // rate, scale 0.01
	c := newTestController(dev)

	p, err := c.ReadPID(context.Background(), 1)
	if err != nil {
		t.Fatalf("ReadPID() error = %v", err)
	}
	if p.ProportionalBand != 30 {
		t.Errorf("proportional band = %v, want 30", p.ProportionalBand)
	}
	if p.Reset != 12.34 {
		t.Errorf("reset = %v, want 12.34", p.Reset)
	}
	if p.Rate != 0.99 {
		t.Errorf("rate = %v, want 0.99", p.Rate)
	}
	if p.Integral != 0 || p.Derivative != 0 {
		t.Errorf("SI pair populated in US mode: %+v", p)
	}
}

func TestRunProfile(t *testing.T) {
	dev := newLoopbackDevice()
	c := newTestController(dev)

	if err := c.RunProfile(context.Background(), 3); err != nil {
		t.Fatalf("RunProfile() error = %v", err)
	}
	if dev.regs[4000] != 3 {
		t.Errorf("profile number = %d, want 3", dev.regs[4000])
	}
	if dev.regs[4001] != 1 {
		t.Errorf("profile step = %d, want 1", dev.regs[4001])
	}
	if dev.regs[4002] != editActionRun {
		t.Errorf("edit action = %d, want %d", dev.regs[4002], editActionRun)
	}
}

func TestPIDSetRange(t *testing.T) {
	c := newTestController(newLoopbackDevice())
	if _, err := c.ReadPID(context.Background(), 0); err == nil {
		t.Error("ReadPID(0) should fail")
	}
	if err := c.WritePID(context.Background(), 6, PIDParameters{}); err == nil {
		t.Error("WritePID(6) should fail")
	}
}
