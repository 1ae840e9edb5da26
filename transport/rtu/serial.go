// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package rtu owns the half-duplex RS-485 serial channel: it opens and
// guards the port, enforces inter-frame silence and frames responses by
// the 3.5 character-time silence rule.
package rtu

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/grid-x/serial"
)

const (
	serialIdleTimeout = 60 * time.Second
)

// serialPort has configuration and I/O controller. The port handle is
// owned exclusively by this struct for its lifetime; every exit path
// releases it through close().
type serialPort struct {
	// Serial port configuration.
	serial.Config

	IdleTimeout time.Duration

	mu sync.Mutex
	// port is the platform-dependent serial port handle.
	port         io.ReadWriteCloser
	frames       *frameReader
	lastActivity time.Time
	closeTimer   *time.Timer
}

func (s *serialPort) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.connect(ctx)
}

// connect opens the serial port if it is not open. Caller must hold the mutex.
func (s *serialPort) connect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if s.port == nil {
		port, err := serial.Open(&s.Config)
		if err != nil {
			return fmt.Errorf("could not open %s: %w", s.Config.Address, err)
		}
		s.port = port
		s.frames = newFrameReader(port, s.silenceInterval())
	}
	return nil
}

func (s *serialPort) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.close()
}

// close releases the serial port if it is open. Caller must hold the mutex.
func (s *serialPort) close() (err error) {
	if s.port != nil {
		err = s.port.Close()
		s.frames.Stop()
		s.port = nil
		s.frames = nil
	}
	return
}

// silenceInterval returns the 3.5 character-time gap that marks frame
// boundaries on the bus. Above 19200 baud the protocol fixes it at
// 1750 microseconds.
func (s *serialPort) silenceInterval() time.Duration {
	if s.Config.BaudRate <= 0 || s.Config.BaudRate > 19200 {
		return 1750 * time.Microsecond
	}
	return time.Duration(35000000/s.Config.BaudRate) * time.Microsecond
}

// waitTurnaround blocks until at least one silence interval has passed
// since the last bus activity, so a new request never collides with a
// straggling prior response.
func (s *serialPort) waitTurnaround() {
	if s.lastActivity.IsZero() {
		return
	}
	elapsed := time.Since(s.lastActivity)
	if gap := s.silenceInterval(); elapsed < gap {
		time.Sleep(gap - elapsed)
	}
}

func (s *serialPort) startCloseTimer() {
	if s.IdleTimeout <= 0 {
		return
	}
	if s.closeTimer == nil {
		s.closeTimer = time.AfterFunc(s.IdleTimeout, s.closeIdle)
	} else {
		s.closeTimer.Reset(s.IdleTimeout)
	}
}

// closeIdle closes the connection if the last activity is further back
// than IdleTimeout.
func (s *serialPort) closeIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.IdleTimeout <= 0 {
		return
	}

	if idle := time.Since(s.lastActivity); idle >= s.IdleTimeout {
		slog.Debug("closing serial port due to idle timeout", "device", s.Config.Address, "idle", idle)
		s.close()
	}
}
