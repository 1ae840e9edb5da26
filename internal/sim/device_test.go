package sim

import (
	"context"
	"testing"

	"github.com/shanedertrain/watlow-controller/internal/registers"
	"github.com/shanedertrain/watlow-controller/internal/sim/model"
	"github.com/shanedertrain/watlow-controller/internal/sim/persistence"
	"github.com/shanedertrain/watlow-controller/modbus"
)

// spyStorage records persistence calls.
type spyStorage struct {
	model    *model.Model
	saves    int
	onWrites int
}

var _ persistence.Storage = (*spyStorage)(nil)

func (s *spyStorage) Load() (*model.Model, error) {
	s.model = model.NewModel()
	return s.model, nil
}

func (s *spyStorage) Save(m *model.Model) error {
	s.saves++
	return nil
}

func (s *spyStorage) OnWrite(address, quantity uint16) {
	s.onWrites++
}

func newF4Device(t *testing.T) (*Device, *spyStorage) {
	t.Helper()
	st := &spyStorage{}
	d, err := NewDevice(registers.F4, 1, st)
	if err != nil {
		t.Fatal(err)
	}
	return d, st
}

func TestReadSeededProcessValue(t *testing.T) {
	d, _ := newF4Device(t)

	resp, err := d.Handle(context.Background(), 1, modbus.ReadHoldingRegisters(100, 1))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if resp.FunctionCode != modbus.FuncCodeReadHoldingRegisters {
		t.Fatalf("function = 0x%02X, want 0x03", resp.FunctionCode)
	}
	// 100.5 degrees with one implied decimal is raw 1005.
	want := []byte{0x02, 0x03, 0xED}
	if len(resp.Data) != 3 || resp.Data[0] != want[0] || resp.Data[1] != want[1] || resp.Data[2] != want[2] {
		t.Errorf("payload = % X, want % X", resp.Data, want)
	}
}

func TestInvalidAddressDrawsException(t *testing.T) {
	d, _ := newF4Device(t)

	resp, err := d.Handle(context.Background(), 1, modbus.ReadHoldingRegisters(9999, 1))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if resp.FunctionCode != modbus.FuncCodeReadHoldingRegisters|modbus.ExceptionFlag {
		t.Fatalf("function = 0x%02X, want exception flag set", resp.FunctionCode)
	}
	if resp.Data[0] != modbus.ExceptionCodeIllegalDataAddress {
		t.Errorf("exception = 0x%02X, want 0x02", resp.Data[0])
	}
}

func TestIgnoresOtherUnits(t *testing.T) {
	d, _ := newF4Device(t)

	if _, err := d.Handle(context.Background(), 7, modbus.ReadHoldingRegisters(100, 1)); err == nil {
		t.Error("request for another unit should be dropped")
	}
}

func TestUnsupportedFunction(t *testing.T) {
	d, _ := newF4Device(t)

	resp, err := d.Handle(context.Background(), 1, modbus.ProtocolDataUnit{
		FunctionCode: 0x01, // read coils, not present on this hardware
		Data:         []byte{0x00, 0x00, 0x00, 0x01},
	})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if resp.FunctionCode != 0x81 || resp.Data[0] != modbus.ExceptionCodeIllegalFunction {
		t.Errorf("response = 0x%02X/0x%02X, want 0x81/0x01", resp.FunctionCode, resp.Data[0])
	}
}

func TestWriteThenReadBack(t *testing.T) {
	d, st := newF4Device(t)

	req := modbus.WriteSingleRegister(300, 1005)
	resp, err := d.Handle(context.Background(), 1, req)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if resp.FunctionCode != req.FunctionCode {
		t.Fatalf("write rejected: 0x%02X", resp.FunctionCode)
	}
	if st.onWrites != 1 {
		t.Errorf("onWrites = %d, want 1", st.onWrites)
	}

	read, err := d.Handle(context.Background(), 1, modbus.ReadHoldingRegisters(300, 1))
	if err != nil {
		t.Fatal(err)
	}
	if got := uint16(read.Data[1])<<8 | uint16(read.Data[2]); got != 1005 {
		t.Errorf("read back %d, want 1005", got)
	}
}

func TestWriteMultiple(t *testing.T) {
	d, _ := newF4Device(t)

	resp, err := d.Handle(context.Background(), 1, modbus.WriteMultipleRegisters(500, []uint16{25, 180}))
	if err != nil {
		t.Fatal(err)
	}
	if resp.FunctionCode != modbus.FuncCodeWriteMultipleRegisters {
		t.Fatalf("write rejected: 0x%02X", resp.FunctionCode)
	}
	if d.Model().Get(500) != 25 || d.Model().Get(501) != 180 {
		t.Errorf("registers = %d,%d, want 25,180", d.Model().Get(500), d.Model().Get(501))
	}
}

func TestSaveRegisterCommits(t *testing.T) {
	d, st := newF4Device(t)

	if _, err := d.Handle(context.Background(), 1, modbus.WriteSingleRegister(26, 0)); err != nil {
		t.Fatal(err)
	}
	if st.saves != 1 {
		t.Errorf("saves = %d, want 1 after hitting the save-changes register", st.saves)
	}
}
