package rtu

import (
	"bytes"
	"errors"
	"testing"

	"github.com/shanedertrain/watlow-controller/modbus"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		pdu  modbus.ProtocolDataUnit
	}{
		{"ReadHoldingRegisters", modbus.ReadHoldingRegisters(100, 1)},
		{"WriteSingleRegister", modbus.WriteSingleRegister(300, 1005)},
		{"WriteMultipleRegisters", modbus.WriteMultipleRegisters(300, []uint16{1000, 100})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &ApplicationDataUnit{SlaveID: 1, Pdu: tt.pdu}
			raw, err := req.Encode()
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}

			got, err := DecodeRequest(raw)
			if err != nil {
				t.Fatalf("DecodeRequest() error = %v", err)
			}
			if got.SlaveID != req.SlaveID {
				t.Errorf("slave id = %d, want %d", got.SlaveID, req.SlaveID)
			}
			if got.Pdu.FunctionCode != req.Pdu.FunctionCode {
				t.Errorf("function = 0x%02X, want 0x%02X", got.Pdu.FunctionCode, req.Pdu.FunctionCode)
			}
			if !bytes.Equal(got.Pdu.Data, req.Pdu.Data) {
				t.Errorf("data = % X, want % X", got.Pdu.Data, req.Pdu.Data)
			}
		})
	}
}

func TestDecodeChecksumMismatch(t *testing.T) {
	req := &ApplicationDataUnit{SlaveID: 1, Pdu: modbus.ReadHoldingRegisters(100, 1)}
	raw, err := req.Encode()
	if err != nil {
		t.Fatal(err)
	}

	// Flipping any single bit must be classified as a checksum mismatch.
	for i := range raw {
		for bit := 0; bit < 8; bit++ {
			corrupted := append([]byte{}, raw...)
			corrupted[i] ^= 1 << bit

			_, err := DecodeRequest(corrupted)
			var ck *modbus.ChecksumError
			if !errors.As(err, &ck) {
				t.Fatalf("bit %d of byte %d flipped: error = %v, want ChecksumError", bit, i, err)
			}
		}
	}
}

func TestDecodeException(t *testing.T) {
	// Slave 5 rejecting a write with exception 0x02 (illegal data address).
	resp := &ApplicationDataUnit{
		SlaveID: 5,
		Pdu: modbus.ProtocolDataUnit{
			FunctionCode: modbus.FuncCodeWriteSingleRegister | modbus.ExceptionFlag,
			Data:         []byte{modbus.ExceptionCodeIllegalDataAddress},
		},
	}
	raw, err := resp.Encode()
	if err != nil {
		t.Fatal(err)
	}

	_, err = DecodeResponse(raw)
	var exc *modbus.ExceptionError
	if !errors.As(err, &exc) {
		t.Fatalf("DecodeResponse() error = %v, want ExceptionError", err)
	}
	if exc.FunctionCode != modbus.FuncCodeWriteSingleRegister {
		t.Errorf("function = 0x%02X, want 0x%02X", exc.FunctionCode, modbus.FuncCodeWriteSingleRegister)
	}
	if exc.ExceptionCode != modbus.ExceptionCodeIllegalDataAddress {
		t.Errorf("exception = 0x%02X, want 0x02", exc.ExceptionCode)
	}
}

func TestDecodeMalformed(t *testing.T) {
	encode := func(id, fc byte, data []byte) []byte {
		adu := &ApplicationDataUnit{SlaveID: id, Pdu: modbus.ProtocolDataUnit{FunctionCode: fc, Data: data}}
		raw, err := adu.Encode()
		if err != nil {
			t.Fatal(err)
		}
		return raw
	}

	tests := []struct {
		name   string
		decode func([]byte) (*ApplicationDataUnit, error)
		raw    []byte
	}{
		{"TooShort", DecodeRequest, []byte{0x01, 0x03, 0xC5}},
		{"ReadByteCountMismatch", DecodeResponse, encode(1, modbus.FuncCodeReadHoldingRegisters, []byte{0x04, 0x00, 0x01})},
		{"ReadOddByteCount", DecodeResponse, encode(1, modbus.FuncCodeReadHoldingRegisters, []byte{0x05, 0x00, 0x01, 0x02, 0x03, 0x04})},
		{"WriteSingleShortPayload", DecodeResponse, encode(1, modbus.FuncCodeWriteSingleRegister, []byte{0x01, 0x2C, 0x00})},
		{"WriteMultipleBadByteCount", DecodeRequest, encode(1, modbus.FuncCodeWriteMultipleRegisters, []byte{0x01, 0x2C, 0x00, 0x02, 0x02, 0x00, 0x01})},
		{"UnsupportedFunction", DecodeRequest, encode(1, 0x2B, []byte{0x0E, 0x01})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.decode(tt.raw)
			var mf *modbus.MalformedFrameError
			if !errors.As(err, &mf) {
				t.Errorf("decode error = %v, want MalformedFrameError", err)
			}
		})
	}
}

// A four-byte read payload is a valid request (address + quantity) but
// never a valid response: the byte count has to match the trailing data.
func TestDecodeReadShapeDependsOnDirection(t *testing.T) {
	adu := &ApplicationDataUnit{SlaveID: 1, Pdu: modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeReadHoldingRegisters,
		Data:         []byte{0x09, 0x00, 0x01, 0x02}, // byte count 9, three value bytes
	}}
	raw, err := adu.Encode()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := DecodeRequest(raw); err != nil {
		t.Errorf("DecodeRequest() error = %v, want nil", err)
	}

	_, err = DecodeResponse(raw)
	var mf *modbus.MalformedFrameError
	if !errors.As(err, &mf) {
		t.Errorf("DecodeResponse() error = %v, want MalformedFrameError", err)
	}
}

func TestVerify(t *testing.T) {
	req := &ApplicationDataUnit{SlaveID: 1, Pdu: modbus.ReadHoldingRegisters(100, 1)}

	good := &ApplicationDataUnit{SlaveID: 1, Pdu: modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeReadHoldingRegisters, Data: []byte{0x02, 0x03, 0xED}}}
	if err := req.Verify(good); err != nil {
		t.Errorf("Verify() error = %v, want nil", err)
	}

	wrongSlave := &ApplicationDataUnit{SlaveID: 2, Pdu: good.Pdu}
	if err := req.Verify(wrongSlave); err == nil {
		t.Error("Verify() accepted response from wrong slave")
	}

	wrongFunc := &ApplicationDataUnit{SlaveID: 1, Pdu: modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeWriteSingleRegister, Data: good.Pdu.Data}}
	if err := req.Verify(wrongFunc); err == nil {
		t.Error("Verify() accepted mismatched function code")
	}
}
