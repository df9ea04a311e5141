package asicio

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goburrow/serial"
)

const goburrowTick = 5 * time.Millisecond

// GoburrowPort wraps github.com/goburrow/serial. The library fixes the
// baud rate and read timeout at open time, so a baud change reopens the
// port. Reads run in short ticks up to the caller's timeout.
type GoburrowPort struct {
	mu      sync.Mutex
	cfg     serial.Config
	port    serial.Port
	closed  bool
	scratch []byte
}

func OpenGoburrow(name string, baud uint32) (*GoburrowPort, error) {
	p := &GoburrowPort{
		cfg: serial.Config{
			Address:  name,
			BaudRate: int(baud),
			DataBits: 8,
			StopBits: 1,
			Parity:   "N",
			Timeout:  goburrowTick,
		},
		scratch: make([]byte, readBuf),
	}
	port, err := serial.Open(&p.cfg)
	if err != nil {
		return nil, err
	}
	p.port = port
	return p, nil
}

func (p *GoburrowPort) reopen() error {
	if p.port != nil {
		_ = p.port.Close()
		p.port = nil
	}
	port, err := serial.Open(&p.cfg)
	if err != nil {
		return err
	}
	p.port = port
	return nil
}

func (p *GoburrowPort) SetBaudRate(baud uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.cfg.BaudRate = int(baud)
	return p.reopen()
}

func (p *GoburrowPort) Write(ctx context.Context, frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.port.Write(frame)
	return err
}

func (p *GoburrowPort) ReadAvailable(ctx context.Context, timeout time.Duration) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}

	deadline := time.Now().Add(timeout)
	var out []byte
	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		n, err := p.port.Read(p.scratch)
		if n > 0 {
			out = append(out, p.scratch[:n]...)
		}
		switch {
		case errors.Is(err, serial.ErrTimeout):
			if len(out) > 0 || !time.Now().Before(deadline) {
				return out, nil
			}
		case err != nil:
			return out, err
		case n == 0 && len(out) > 0:
			return out, nil
		}
	}
}

func (p *GoburrowPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.port.Close()
}
