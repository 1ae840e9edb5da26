package modbus

import (
	"errors"
	"fmt"
)

// ErrNoResponse is returned by a transport exchange that timed out with
// zero bytes received.
var ErrNoResponse = errors.New("modbus: no response from slave")

// TruncatedResponseError is returned by a transport exchange that timed
// out after receiving a partial frame. The bytes received so far are
// carried for diagnosing bus noise.
type TruncatedResponseError struct {
	Bytes []byte
}

func (e *TruncatedResponseError) Error() string {
	return fmt.Sprintf("modbus: truncated response, %d byte(s) received before timeout", len(e.Bytes))
}

// ChecksumError is returned when the CRC trailing a received frame does
// not match the CRC recomputed over the frame body.
type ChecksumError struct {
	Got  uint16
	Want uint16
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("modbus: frame crc 0x%04X does not match computed 0x%04X", e.Got, e.Want)
}

// MalformedFrameError is returned when a frame passes the CRC check but
// its layout does not match the function code it claims to carry.
type MalformedFrameError struct {
	Reason string
}

func (e *MalformedFrameError) Error() string {
	return "modbus: malformed frame: " + e.Reason
}

// ExceptionError is a response in which the device explicitly declined
// the request. It is never retried.
type ExceptionError struct {
	FunctionCode  byte // original function code, without the exception flag
	ExceptionCode byte
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus: device rejected function 0x%02X: %s (exception 0x%02X)",
		e.FunctionCode, exceptionText(e.ExceptionCode), e.ExceptionCode)
}

func exceptionText(code byte) string {
	switch code {
	case ExceptionCodeIllegalFunction:
		return "illegal function"
	case ExceptionCodeIllegalDataAddress:
		return "illegal data address"
	case ExceptionCodeIllegalDataValue:
		return "illegal data value"
	case ExceptionCodeServerDeviceFailure:
		return "server device failure"
	case ExceptionCodeAcknowledge:
		return "acknowledge"
	case ExceptionCodeServerDeviceBusy:
		return "server device busy"
	}
	return "unknown exception"
}

// UnexpectedEchoError is returned when a write response does not echo the
// request's function code, address or payload.
type UnexpectedEchoError struct {
	Field string
	Want  uint16
	Got   uint16
}

func (e *UnexpectedEchoError) Error() string {
	return fmt.Sprintf("modbus: write echo mismatch: %s 0x%04X, expected 0x%04X", e.Field, e.Got, e.Want)
}
