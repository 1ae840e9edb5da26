// Package master orchestrates one logical controller operation end to
// end: register resolution, frame encoding, the transport exchange,
// response validation and rescaling to physical units. It owns the retry
// policy and serializes access to the session.
package master

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shanedertrain/watlow-controller/internal/registers"
	"github.com/shanedertrain/watlow-controller/modbus"
	"github.com/shanedertrain/watlow-controller/modbus/rtu"
)

// CommFailureError is returned when the configured attempt budget is
// exhausted. It carries the attempt count and the last underlying error.
type CommFailureError struct {
	Attempts int
	Last     error
}

func (e *CommFailureError) Error() string {
	return fmt.Sprintf("communication failed after %d attempt(s): %v", e.Attempts, e.Last)
}

func (e *CommFailureError) Unwrap() error { return e.Last }

// Config tunes a Master.
type Config struct {
	SlaveID byte
	Variant registers.Variant
	// MaxAttempts bounds transmissions per operation, including the
	// first. Zero means the default of 3.
	MaxAttempts int
	// Backoff is the pause between attempts.
	Backoff time.Duration
	// MultiWrite selects function 0x10 even for single-register writes,
	// which some installations require.
	MultiWrite bool
}

// Master drives one controller over one transport session.
type Master struct {
	mu        sync.Mutex
	transport modbus.Transporter

	slaveID     byte
	variant     registers.Variant
	maxAttempts int
	backoff     time.Duration
	multiWrite  bool
}

// New creates a Master over an existing session.
func New(t modbus.Transporter, cfg Config) *Master {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}
	return &Master{
		transport:   t,
		slaveID:     cfg.SlaveID,
		variant:     cfg.Variant,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		multiWrite:  cfg.MultiWrite,
	}
}

// Variant returns the controller variant this master addresses.
func (m *Master) Variant() registers.Variant { return m.variant }

// Read reads a logical register and returns it in physical units.
func (m *Master) Read(ctx context.Context, name string) (float64, error) {
	entry, err := registers.Resolve(m.variant, name)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	req := modbus.ReadHoldingRegisters(entry.Address, uint16(entry.Words))
	resp, err := m.execute(ctx, req)
	if err != nil {
		return 0, err
	}

	data := resp.Data
	if len(data) != 1+2*entry.Words || int(data[0]) != 2*entry.Words {
		return 0, &modbus.MalformedFrameError{
			Reason: fmt.Sprintf("read %q returned %d payload bytes, expected %d", name, len(data), 1+2*entry.Words),
		}
	}

	raw := uint32(binary.BigEndian.Uint16(data[1:3]))
	if entry.Words == 2 {
		raw = raw<<16 | uint32(binary.BigEndian.Uint16(data[3:5]))
	}
	return entry.ToPhysical(raw), nil
}

// Write converts a physical value to raw register value(s) and writes
// it, verifying the device's echo.
func (m *Master) Write(ctx context.Context, name string, value float64) error {
	entry, err := registers.Resolve(m.variant, name)
	if err != nil {
		return err
	}
	if entry.ReadOnly {
		return fmt.Errorf("register %q is read-only", name)
	}

	raw, err := entry.ToRaw(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(raw) == 1 && !m.multiWrite {
		return m.writeSingle(ctx, entry, raw[0])
	}
	return m.writeMultiple(ctx, entry, raw)
}

func (m *Master) writeSingle(ctx context.Context, entry registers.Entry, value uint16) error {
	req := modbus.WriteSingleRegister(entry.Address, value)
	resp, err := m.execute(ctx, req)
	if err != nil {
		return err
	}

	// The device echoes address and value verbatim.
	if got := binary.BigEndian.Uint16(resp.Data[0:2]); got != entry.Address {
		return &modbus.UnexpectedEchoError{Field: "address", Want: entry.Address, Got: got}
	}
	if got := binary.BigEndian.Uint16(resp.Data[2:4]); got != value {
		return &modbus.UnexpectedEchoError{Field: "value", Want: value, Got: got}
	}
	return nil
}

func (m *Master) writeMultiple(ctx context.Context, entry registers.Entry, values []uint16) error {
	req := modbus.WriteMultipleRegisters(entry.Address, values)
	resp, err := m.execute(ctx, req)
	if err != nil {
		return err
	}

	// The device echoes address and register count.
	if got := binary.BigEndian.Uint16(resp.Data[0:2]); got != entry.Address {
		return &modbus.UnexpectedEchoError{Field: "address", Want: entry.Address, Got: got}
	}
	if got := binary.BigEndian.Uint16(resp.Data[2:4]); got != uint16(len(values)) {
		return &modbus.UnexpectedEchoError{Field: "quantity", Want: uint16(len(values)), Got: got}
	}
	return nil
}

// execute runs one request through the attempt loop. Transport and
// framing failures are retried with a short backoff; a device exception
// surfaces immediately because retrying cannot change an explicit
// rejection. Caller must hold the mutex.
func (m *Master) execute(ctx context.Context, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	reqADU := &rtu.ApplicationDataUnit{SlaveID: m.slaveID, Pdu: pdu}
	raw, err := reqADU.Encode()
	if err != nil {
		return modbus.ProtocolDataUnit{}, err
	}

	var last error
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return modbus.ProtocolDataUnit{}, ctx.Err()
			case <-time.After(m.backoff):
			}
		}

		respRaw, err := m.transport.Exchange(ctx, raw)
		if err != nil {
			if !retryable(err) {
				return modbus.ProtocolDataUnit{}, err
			}
			slog.Warn("exchange failed, retrying", "slaveID", m.slaveID, "function", pdu.FunctionCode,
				"attempt", attempt, "err", err)
			last = err
			continue
		}

		respADU, err := rtu.DecodeResponse(respRaw)
		if err != nil {
			var exc *modbus.ExceptionError
			if errors.As(err, &exc) {
				return modbus.ProtocolDataUnit{}, exc
			}
			if !retryable(err) {
				return modbus.ProtocolDataUnit{}, err
			}
			slog.Warn("response unusable, retrying", "slaveID", m.slaveID, "attempt", attempt, "err", err)
			last = err
			continue
		}

		if err := reqADU.Verify(respADU); err != nil {
			slog.Warn("response mismatch, retrying", "slaveID", m.slaveID, "attempt", attempt, "err", err)
			last = err
			continue
		}

		return respADU.Pdu, nil
	}

	return modbus.ProtocolDataUnit{}, &CommFailureError{Attempts: m.maxAttempts, Last: last}
}

// retryable reports whether an error is a transport or framing failure
// that a retransmission might cure.
func retryable(err error) bool {
	if errors.Is(err, modbus.ErrNoResponse) {
		return true
	}
	var truncated *modbus.TruncatedResponseError
	if errors.As(err, &truncated) {
		return true
	}
	var checksum *modbus.ChecksumError
	if errors.As(err, &checksum) {
		return true
	}
	var malformed *modbus.MalformedFrameError
	if errors.As(err, &malformed) {
		return true
	}
	return false
}
