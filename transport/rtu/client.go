// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/shanedertrain/watlow-controller/internal/config"
	"github.com/shanedertrain/watlow-controller/transport"
)

var _ transport.Session = (*Client)(nil)

// Client is the RTU master side of the serial bus. It performs raw
// write-then-read exchanges; framing validation and retry policy live
// above it.
type Client struct {
	rtuSerialTransporter
}

// NewClient allocates and initializes an RTU Client from serial settings.
func NewClient(cfg config.SerialConfig) *Client {
	client := &Client{}

	client.serialPort.Config.Address = cfg.Device
	client.serialPort.Config.BaudRate = cfg.BaudRate
	client.serialPort.Config.DataBits = cfg.DataBits
	client.serialPort.Config.StopBits = cfg.StopBits
	client.serialPort.Config.Parity = cfg.Parity
	client.serialPort.Config.Timeout = cfg.Timeout
	if cfg.RS485 {
		client.serialPort.Config.RS485.Enabled = true
		client.serialPort.Config.RS485.DelayRtsBeforeSend = cfg.DelayRtsBeforeSend
		client.serialPort.Config.RS485.DelayRtsAfterSend = cfg.DelayRtsAfterSend
		client.serialPort.Config.RS485.RtsHighDuringSend = cfg.RtsHighDuringSend
		client.serialPort.Config.RS485.RtsHighAfterSend = cfg.RtsHighAfterSend
		client.serialPort.Config.RS485.RxDuringTx = cfg.RxDuringTx
	}

	client.IdleTimeout = serialIdleTimeout
	return client
}

// rtuSerialTransporter implements the underlying serial exchange.
type rtuSerialTransporter struct {
	serialPort
}

// Exchange performs one half-duplex request/response cycle: enforce the
// inter-frame silence, drop stale bytes, write the frame atomically, then
// block until a gap-framed response arrives or the timeout elapses.
//
// The mutex serializes exchanges on the session. A caller that abandons
// its context still holds the bus until this exchange drains to
// completion or timeout; aborting mid-transmission would leave the bus in
// an undefined state.
func (t *rtuSerialTransporter) Exchange(ctx context.Context, aduRequest []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := t.connect(ctx); err != nil {
		return nil, err
	}
	t.startCloseTimer()

	t.waitTurnaround()
	if n := t.frames.Drain(); n > 0 {
		slog.Debug("discarded stale bytes before transmit", "device", t.Config.Address, "count", n)
	}

	slog.Debug("send to slave", "request", hex.EncodeToString(aduRequest))
	if _, err := t.port.Write(aduRequest); err != nil {
		t.close()
		return nil, err
	}
	t.lastActivity = time.Now()

	aduResponse, err := t.frames.ReadFrame(t.Config.Timeout)
	t.lastActivity = time.Now()
	if err != nil {
		return nil, err
	}

	slog.Debug("recv from slave", "response", hex.EncodeToString(aduResponse))
	return aduResponse, nil
}
