// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/grid-x/serial"

	"github.com/shanedertrain/watlow-controller/internal/config"
	rtupacket "github.com/shanedertrain/watlow-controller/modbus/rtu"
	"github.com/shanedertrain/watlow-controller/transport"
)

// Server answers requests on the serial bus the way a controller would.
// It backs the sim mode, letting the master run against a pty instead of
// real hardware.
type Server struct {
	Config config.SerialConfig
}

// NewServer creates a new RTU Server.
func NewServer(cfg config.SerialConfig) *Server {
	return &Server{Config: cfg}
}

// Start opens the serial port and serves until the context is canceled.
func (s *Server) Start(ctx context.Context, handler transport.Handler) error {
	spConfig := &serial.Config{
		Address:  s.Config.Device,
		BaudRate: s.Config.BaudRate,
		DataBits: s.Config.DataBits,
		StopBits: s.Config.StopBits,
		Parity:   s.Config.Parity,
		Timeout:  s.Config.Timeout,
	}

	port, err := serial.Open(spConfig)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.Config.Device, err)
	}
	defer port.Close()
	slog.Info("RTU server listening", "device", s.Config.Device)

	go func() {
		<-ctx.Done()
		port.Close()
	}()

	return s.Serve(ctx, port, handler)
}

// Serve runs the request loop over an already-open channel. Split out so
// tests can drive it over an in-memory pipe.
func (s *Server) Serve(ctx context.Context, port io.ReadWriteCloser, handler transport.Handler) error {
	gap := gapFor(s.Config.BaudRate)
	frames := newFrameReader(port, gap)
	defer frames.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		raw, err := frames.ReadFrame(time.Second)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			// No traffic inside the window; keep listening.
			continue
		}

		req, err := rtupacket.DecodeRequest(raw)
		if err != nil {
			slog.Debug("dropping unreadable frame", "err", err)
			continue
		}

		respPDU, err := handler(ctx, req.SlaveID, req.Pdu)
		if err != nil {
			// Not our address, or the handler chose silence.
			slog.Debug("request not answered", "slaveID", req.SlaveID, "err", err)
			continue
		}

		resp := &rtupacket.ApplicationDataUnit{SlaveID: req.SlaveID, Pdu: respPDU}
		respRaw, err := resp.Encode()
		if err != nil {
			slog.Error("failed to encode response", "err", err)
			continue
		}

		// Respect the frame boundary before answering.
		time.Sleep(gap)
		if _, err := port.Write(respRaw); err != nil {
			return err
		}
	}
}

// gapFor mirrors serialPort.silenceInterval for the server side.
func gapFor(baudRate int) time.Duration {
	if baudRate <= 0 || baudRate > 19200 {
		return 1750 * time.Microsecond
	}
	return time.Duration(35000000/baudRate) * time.Microsecond
}
