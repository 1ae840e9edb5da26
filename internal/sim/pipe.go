package sim

import (
	"bytes"
	"sync"
	"time"
)

// Pipe is one end of an in-memory duplex byte stream. A connected pair
// stands in for the RS-485 link so a master session can talk to a
// simulated controller without serial hardware.
type Pipe struct {
	out  *bytes.Buffer
	in   *bytes.Buffer
	m    *sync.Mutex
	stop chan struct{}
}

// NewPipe returns the two connected ends; each implements
// io.ReadWriteCloser. Bytes written to one end are read from the other.
func NewPipe() (*Pipe, *Pipe) {
	var a2b bytes.Buffer
	var b2a bytes.Buffer
	var m sync.Mutex

	a := Pipe{&a2b, &b2a, &m, make(chan struct{})}
	b := Pipe{&b2a, &a2b, &m, make(chan struct{})}

	return &a, &b
}

func (p *Pipe) Write(d []byte) (int, error) {
	p.m.Lock()
	defer p.m.Unlock()
	return p.in.Write(d)
}

// Read blocks until the peer has written something or this end is
// closed. After close it drains what is buffered, then reports io.EOF.
func (p *Pipe) Read(d []byte) (int, error) {
	ret := make(chan struct{})

	go func() {
		for {
			p.m.Lock()
			if p.out.Len() > 0 {
				close(ret)
				p.m.Unlock()
				return
			}
			p.m.Unlock()
			select {
			case <-time.After(time.Millisecond):
				// keep polling
			case <-p.stop:
				close(ret)
				return
			}
		}
	}()

	<-ret
	p.m.Lock()
	defer p.m.Unlock()
	return p.out.Read(d)
}

// Close unblocks pending reads on this end.
func (p *Pipe) Close() error {
	close(p.stop)
	return nil
}
