package asicio

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"
)

// TarmPort wraps github.com/tarm/serial. A read that times out with no
// data reports io.EOF.
type TarmPort struct {
	mu      sync.Mutex
	cfg     serial.Config
	port    *serial.Port
	closed  bool
	scratch []byte
}

func OpenTarm(name string, baud uint32) (*TarmPort, error) {
	p := &TarmPort{
		cfg: serial.Config{
			Name:        name,
			Baud:        int(baud),
			ReadTimeout: readSlice,
			Size:        8,
			Parity:      serial.ParityNone,
			StopBits:    serial.Stop1,
		},
		scratch: make([]byte, readBuf),
	}
	port, err := serial.OpenPort(&p.cfg)
	if err != nil {
		return nil, err
	}
	p.port = port
	return p, nil
}

func (p *TarmPort) SetBaudRate(baud uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	_ = p.port.Close()
	p.cfg.Baud = int(baud)
	port, err := serial.OpenPort(&p.cfg)
	if err != nil {
		return err
	}
	p.port = port
	return p.port.Flush()
}

func (p *TarmPort) Write(ctx context.Context, frame []byte) error {
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

func (p *TarmPort) ReadAvailable(ctx context.Context, timeout time.Duration) ([]byte, error) {
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
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return out, err
		}
		if len(out) > 0 || !time.Now().Before(deadline) {
			return out, nil
		}
	}
}

func (p *TarmPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.port.Close()
}
