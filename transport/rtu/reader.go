package rtu

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/grid-x/serial"

	"github.com/shanedertrain/watlow-controller/modbus"
)

// frameReader frames responses by the inter-character silence rule: once
// bytes start arriving, a gap with no data marks the end of the frame.
// There is no explicit length delimiter on the wire, so this is the only
// framing the bus offers.
//
// A goroutine pumps the underlying reader into a channel for the life of
// the port; it exits when the port is closed and the blocked Read fails,
// or when Stop is called while a chunk is waiting for a receiver.
type frameReader struct {
	gap      time.Duration
	data     chan []byte
	stop     chan struct{}
	stopOnce sync.Once
}

func newFrameReader(r io.Reader, gap time.Duration) *frameReader {
	fr := &frameReader{
		gap:  gap,
		data: make(chan []byte),
		stop: make(chan struct{}),
	}
	go fr.pump(r)
	return fr
}

// Stop releases the pump goroutine even if it is blocked handing over a
// chunk nobody will read. Owners call it when they close the port.
func (fr *frameReader) Stop() {
	fr.stopOnce.Do(func() { close(fr.stop) })
}

func (fr *frameReader) pump(r io.Reader) {
	defer close(fr.data)
	for {
		buf := make([]byte, 256)
		n, err := r.Read(buf)
		if n > 0 {
			select {
			case fr.data <- buf[:n]:
			case <-fr.stop:
				return
			}
		}
		if err != nil {
			if errors.Is(err, serial.ErrTimeout) {
				continue
			}
			return
		}
	}
}

// ReadFrame accumulates bytes until a silence gap ends the frame, or the
// overall timeout elapses. Zero bytes at the timeout is ErrNoResponse; a
// partial frame at the timeout is a TruncatedResponseError carrying the
// bytes received so far. The wait is bounded in every case.
func (fr *frameReader) ReadFrame(timeout time.Duration) ([]byte, error) {
	var frame []byte

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	// The gap timer is armed only after the first byte arrives.
	gap := time.NewTimer(timeout)
	if !gap.Stop() {
		<-gap.C
	}
	defer gap.Stop()
	var gapC <-chan time.Time

	for {
		select {
		case chunk, ok := <-fr.data:
			if !ok {
				if len(frame) > 0 {
					return frame, nil
				}
				return nil, io.EOF
			}
			frame = append(frame, chunk...)
			if gapC == nil {
				gapC = gap.C
			} else if !gap.Stop() {
				<-gap.C
			}
			gap.Reset(fr.gap)

		case <-gapC:
			return frame, nil

		case <-deadline.C:
			if len(frame) == 0 {
				return nil, modbus.ErrNoResponse
			}
			return nil, &modbus.TruncatedResponseError{Bytes: frame}
		}
	}
}

// Drain discards bytes already queued from the bus, e.g. a late response
// to a request whose caller gave up. Returns the number of bytes dropped.
func (fr *frameReader) Drain() int {
	n := 0
	for {
		select {
		case chunk, ok := <-fr.data:
			if !ok {
				return n
			}
			n += len(chunk)
		default:
			return n
		}
	}
}
