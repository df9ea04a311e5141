package asic

import (
	"context"
	"errors"
	"fmt"

	"asic_chain/device/bm13xx"
)

var (
	// ErrChecksumMismatch is the codec's checksum error.
	ErrChecksumMismatch = bm13xx.ErrChecksum

	ErrTimeout           = errors.New("response timeout")
	ErrUnknownAddress    = errors.New("unknown chip address")
	ErrEnumerationFailed = errors.New("enumeration failed")
	ErrTransport         = errors.New("transport failure")
	ErrNotEnumerated     = errors.New("chain not enumerated")
	ErrReenumerate       = errors.New("bus mode changed, chain must be re-enumerated")
	ErrAddressConflict   = errors.New("chip address answered twice")
	ErrNoChips           = errors.New("no chip answered")
	ErrTooManyChips      = errors.New("too many chips on chain")
	ErrAckUnsupported    = errors.New("model cannot acknowledge writes")

	ErrNoFrequency        = errors.New("no pll setting for frequency")
	ErrRollingUnsupported = errors.New("model has no version rolling")
)

// TransportError wraps an I/O failure of the transport.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// EnumerationError names the step an enumeration gave up on.
type EnumerationError struct {
	Step     string
	Attempts int
	Err      error
}

func (e *EnumerationError) Error() string {
	return fmt.Sprintf("enumeration failed at %s after %d attempts: %v", e.Step, e.Attempts, e.Err)
}

func (e *EnumerationError) Unwrap() error { return e.Err }

func (e *EnumerationError) Is(target error) bool { return target == ErrEnumerationFailed }

// ioError keeps context errors as they are so callers can match ctx.Err().
func ioError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}
