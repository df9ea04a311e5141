// Package powerstate drives the reset pins of the hash boards. Each board
// has one active low RESET_L line; the backend decides how the pin is
// reached (sysfs, the gpio character device or periph).
package powerstate

import (
	"errors"
	"fmt"
	"sync"

	"asic_chain/device/asiccommon"
	"asic_chain/log"
)

// Backend names accepted by Open.
const (
	BackendNone   = "none"
	BackendSysfs  = "sysfs"
	BackendGpiod  = "gpiod"
	BackendPeriph = "periph"
)

var (
	ErrUnknownBackend = errors.New("unknown reset backend")
	ErrNoPin          = errors.New("reset pin not set")
	ErrUnsupported    = errors.New("reset backend not supported on this platform")
)

// Config selects the reset pin of one board.
type Config struct {
	Backend string `yaml:"backend"`
	// Chip is the gpiochip for the gpiod backend
	Chip string `yaml:"chip"`
	// Pin is the sysfs number or the gpiochip line offset
	Pin int `yaml:"pin"`
	// Name is the periph pin name, e.g. GPIO17
	Name string `yaml:"name"`
}

// pinWriter sets the raw level of a reset pin.
type pinWriter interface {
	write(level int) error
	close() error
}

// Line is an asiccommon.ResetLine over one backend. RESET_L is written 0
// to assert and 1 to release.
type Line struct {
	mu       sync.Mutex
	name     string
	pin      pinWriter
	asserted bool
	closed   bool
}

var _ asiccommon.ResetLine = (*Line)(nil)

// Open returns the reset line described by cfg. An empty backend is the
// same as "none".
func Open(cfg Config) (*Line, error) {
	var (
		pin pinWriter
		err error
	)
	switch cfg.Backend {
	case "", BackendNone:
		pin = nonePin{}
	case BackendSysfs:
		pin, err = openSysfs(cfg.Pin)
	case BackendGpiod:
		pin, err = openGpiod(cfg.Chip, cfg.Pin)
	case BackendPeriph:
		pin, err = openPeriph(cfg.Name)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("reset %s: %w", cfg.Backend, err)
	}
	return &Line{name: lineName(cfg), pin: pin}, nil
}

func lineName(cfg Config) string {
	switch cfg.Backend {
	case BackendSysfs:
		return fmt.Sprintf("sysfs:%d", cfg.Pin)
	case BackendGpiod:
		return fmt.Sprintf("%s:%d", cfg.Chip, cfg.Pin)
	case BackendPeriph:
		return cfg.Name
	}
	return BackendNone
}

func (l *Line) set(level int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("reset %s: closed", l.name)
	}
	if err := l.pin.write(level); err != nil {
		log.Errorf("reset %s write %d: %v", l.name, level, err)
		return err
	}
	l.asserted = level == 0
	return nil
}

// Assert puts the board in reset.
func (l *Line) Assert() error {
	log.Debugf("reset %s asserted", l.name)
	return l.set(0)
}

// Release takes the board out of reset.
func (l *Line) Release() error {
	log.Debugf("reset %s released", l.name)
	return l.set(1)
}

// Asserted reports whether the last write held the board in reset.
func (l *Line) Asserted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.asserted
}

func (l *Line) String() string {
	return l.name
}

func (l *Line) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.pin.close()
}

// nonePin is for boards with no reset wired, or held by something else.
type nonePin struct{}

func (nonePin) write(int) error { return nil }
func (nonePin) close() error    { return nil }
