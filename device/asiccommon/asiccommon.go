// Package asiccommon holds the interfaces shared between the chain layer
// and the hardware behind it.
package asiccommon

import (
	"context"
	"time"
)

// Transport is the byte pipe to one chain of chips. It is owned by a
// single Chain and never used concurrently.
type Transport interface {
	Write(ctx context.Context, frame []byte) error
	// ReadAvailable returns whatever bytes arrive within timeout. An empty
	// read is not an error.
	ReadAvailable(ctx context.Context, timeout time.Duration) ([]byte, error)
	SetBaudRate(baud uint32) error
	Close() error
}

// ResetLine drives the hardware reset pin of a hash board.
type ResetLine interface {
	// Assert holds the chips in reset.
	Assert() error
	Release() error
	Close() error
}

// Baud rates the chains start and work at.
const (
	InitBaud uint32 = 115200
	WorkBaud uint32 = 1_000_000
)

// PulseReset asserts the line for hold and releases it, then waits settle
// for the chips to boot.
func PulseReset(ctx context.Context, l ResetLine, hold, settle time.Duration) error {
	if err := l.Assert(); err != nil {
		return err
	}
	if err := Sleep(ctx, hold); err != nil {
		_ = l.Release()
		return err
	}
	if err := l.Release(); err != nil {
		return err
	}
	return Sleep(ctx, settle)
}

// Sleep waits d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
