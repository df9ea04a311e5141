// Package asicio opens the serial link to a hash board chain. Every driver
// returns an asiccommon.Transport.
package asicio

import (
	"errors"
	"fmt"
	"time"

	"asic_chain/device/asiccommon"
	"asic_chain/log"
)

const (
	DriverTermios  = "termios"
	DriverGoburrow = "goburrow"
	DriverTarm     = "tarm"
	DriverBugst    = "bugst"

	// upper bound of a single blocking read, so a cancelled context is
	// noticed while waiting
	readSlice = 50 * time.Millisecond
	readBuf   = 1024
)

var (
	ErrUnknownDriver = errors.New("unknown serial driver")
	ErrClosed        = errors.New("serial port closed")
)

type Config struct {
	Driver string
	Port   string
	Baud   uint32
}

// Open opens cfg.Port with the named driver.
func Open(cfg Config) (asiccommon.Transport, error) {
	if cfg.Baud == 0 {
		cfg.Baud = asiccommon.InitBaud
	}
	var (
		t   asiccommon.Transport
		err error
	)
	switch cfg.Driver {
	case DriverTermios, "":
		t, err = OpenTermios(cfg.Port, cfg.Baud)
	case DriverGoburrow:
		t, err = OpenGoburrow(cfg.Port, cfg.Baud)
	case DriverTarm:
		t, err = OpenTarm(cfg.Port, cfg.Baud)
	case DriverBugst:
		t, err = OpenBugst(cfg.Port, cfg.Baud)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("error accessing device %v: %w", cfg.Port, err)
	}
	log.WithFields(map[string]interface{}{"port": cfg.Port, "driver": cfg.Driver}).Infof("opened at %d baud", cfg.Baud)
	return t, nil
}

func slice(timeout time.Duration) time.Duration {
	if timeout > readSlice {
		return readSlice
	}
	return timeout
}
