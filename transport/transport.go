// Package transport defines the contracts between the master and the
// physical channel, and between the sim server and the device model.
package transport

import (
	"context"

	"github.com/shanedertrain/watlow-controller/modbus"
)

// Handler processes one request PDU addressed to a slave and produces the
// response PDU. Returning an error means the request is silently dropped,
// the way a real slave stays quiet on frames that are not for it.
type Handler func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error)

// Session is a connectable channel that can perform request/response
// exchanges. It is what the master holds.
type Session interface {
	modbus.Transporter
	modbus.Connector
}
