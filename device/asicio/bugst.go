package asicio

import (
	"context"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// BugstPort wraps go.bug.st/serial, which changes the rate in place.
type BugstPort struct {
	mu      sync.Mutex
	port    serial.Port
	timeout time.Duration
	closed  bool
	scratch []byte
}

func bugstMode(baud uint32) *serial.Mode {
	return &serial.Mode{
		BaudRate: int(baud),
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

func OpenBugst(name string, baud uint32) (*BugstPort, error) {
	port, err := serial.Open(name, bugstMode(baud))
	if err != nil {
		return nil, err
	}
	return &BugstPort{port: port, scratch: make([]byte, readBuf)}, nil
}

func (p *BugstPort) SetBaudRate(baud uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if err := p.port.SetMode(bugstMode(baud)); err != nil {
		return err
	}
	return p.port.ResetInputBuffer()
}

func (p *BugstPort) Write(ctx context.Context, frame []byte) error {
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

func (p *BugstPort) ReadAvailable(ctx context.Context, timeout time.Duration) ([]byte, error) {
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
		left := time.Until(deadline)
		if len(out) > 0 || left <= 0 {
			// drain what is already queued without waiting
			left = time.Millisecond
		}
		if s := slice(left); s != p.timeout {
			if err := p.port.SetReadTimeout(s); err != nil {
				return out, err
			}
			p.timeout = s
		}
		n, err := p.port.Read(p.scratch)
		if err != nil {
			return out, err
		}
		if n > 0 {
			out = append(out, p.scratch[:n]...)
			continue
		}
		if len(out) > 0 || !time.Now().Before(deadline) {
			return out, nil
		}
	}
}

func (p *BugstPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.port.Close()
}

// PortInfo describes one serial device found on the host.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID, PID     string
	SerialNumber string
}

// ListPorts returns the serial devices the host knows about.
func ListPorts() ([]PortInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	var out []PortInfo
	for _, p := range ports {
		out = append(out, PortInfo{
			Name:         p.Name,
			IsUSB:        p.IsUSB,
			VID:          p.VID,
			PID:          p.PID,
			SerialNumber: p.SerialNumber,
		})
	}
	return out, nil
}
