//go:build !linux

package asicio

import (
	"context"
	"errors"
	"time"
)

var errTermiosUnsupported = errors.New("termios driver is linux only")

type TermiosPort struct{}

func OpenTermios(name string, baud uint32) (*TermiosPort, error) {
	return nil, errTermiosUnsupported
}

func (p *TermiosPort) SetBaudRate(baud uint32) error { return errTermiosUnsupported }

func (p *TermiosPort) Write(ctx context.Context, frame []byte) error { return errTermiosUnsupported }

func (p *TermiosPort) ReadAvailable(ctx context.Context, timeout time.Duration) ([]byte, error) {
	return nil, errTermiosUnsupported
}

func (p *TermiosPort) Close() error { return nil }
