// Package asic manages one daisy chain of BM13xx chips: it finds the
// chips, gives each an address, and moves work and results over the
// shared serial bus. The chip family is injected as a chip.Model; the bus
// is an asiccommon.Transport.
package asic

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/physic"

	"asic_chain/device/asiccommon"
	"asic_chain/device/chip"
	"asic_chain/log"
)

// BusMode is the serial configuration the chain runs at.
type BusMode struct {
	Baud uint32
}

type chainState int

const (
	stateNone chainState = iota
	stateEnumerated
	// bus mode changed since the last enumeration
	stateStale
)

// Stats counts what the chain saw on the bus.
type Stats struct {
	Session        string `json:"session"`
	Enumerations   int    `json:"enumerations"`
	Chips          int    `json:"chips"`
	Mismatch       bool   `json:"mismatch"`
	FramesSent     uint64 `json:"frames_sent"`
	JobsSent       uint64 `json:"jobs_sent"`
	Results        uint64 `json:"results"`
	ChecksumErrors uint64 `json:"checksum_errors"`
	Discarded      uint64 `json:"discarded"`
	Stale          uint64 `json:"stale"`
	Polls          uint64 `json:"polls"`
	JobsInFlight   int    `json:"jobs_in_flight"`
}

// Chain is safe for concurrent use. Every operation holds the chain lock
// for its whole bus exchange.
type Chain struct {
	mu sync.Mutex

	cfg    Config
	t      asiccommon.Transport
	model  chip.Model
	stream chip.Stream
	log    *logrus.Entry

	state    chainState
	busMode  BusMode
	slots    []Slot
	byAddr   map[uint8]int
	interval int

	jobs        *jobTable
	pending     []chip.Result
	rolling     bool
	versionMask uint32
	freq        physic.Frequency

	stats Stats
}

// New builds a chain over t for chips of model m. Nothing is sent until
// Enumerate.
func New(t asiccommon.Transport, m chip.Model, opts ...Option) *Chain {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Chain{
		cfg:     cfg,
		t:       t,
		model:   m,
		stream:  m.NewStream(),
		log:     log.WithFields(logrus.Fields{"chain": cfg.Name, "model": m.Name()}),
		busMode: BusMode{Baud: cfg.Baud},
		byAddr:  map[uint8]int{},
		jobs:    newJobTable(cfg.StaleTTL),
		freq:    m.DefaultFrequency(),
	}
}

func (c *Chain) Model() chip.Model {
	return c.model
}

// ChipCount is the number of slots found by the last enumeration.
func (c *Chain) ChipCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slots)
}

// SlotStatus reports the status of the slot at pos.
func (c *Chain) SlotStatus(pos int) (Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pos < 0 || pos >= len(c.slots) {
		return Unassigned, false
	}
	return c.slots[pos].Status, true
}

// Slots returns a copy of every slot in position order.
func (c *Chain) Slots() []Slot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Slot, len(c.slots))
	for i, s := range c.slots {
		out[i] = s.clone()
	}
	return out
}

func (c *Chain) BusMode() BusMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busMode
}

func (c *Chain) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Chips = len(c.slots)
	s.JobsInFlight = c.jobs.len()
	return s
}

// HashFrequency is the last frequency the chain ramped the chips to.
func (c *Chain) HashFrequency() physic.Frequency {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.freq
}

func (c *Chain) VersionRolling() (bool, uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rolling, c.versionMask
}

// Geometry is the chip layout the model sequences are built for.
func (c *Chain) Geometry() chip.Geometry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.geometry()
}

func (c *Chain) geometry() chip.Geometry {
	return chip.Geometry{
		Chips:          len(c.slots),
		Domains:        c.cfg.Domains,
		AsicsPerDomain: c.cfg.AsicsPerDomain,
		Interval:       c.interval,
	}.Normalized()
}

func (c *Chain) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t.Close()
}

// ready gates every dispatch operation on the enumeration state.
func (c *Chain) ready() error {
	switch c.state {
	case stateEnumerated:
		return nil
	case stateStale:
		return ErrReenumerate
	}
	return ErrNotEnumerated
}

func (c *Chain) write(ctx context.Context, frame []byte) error {
	if err := c.t.Write(ctx, frame); err != nil {
		return ioError("write", err)
	}
	c.stats.FramesSent++
	return nil
}

// read feeds whatever arrives within timeout into the frame stream and
// reports how many bytes came in.
func (c *Chain) read(ctx context.Context, timeout time.Duration) (int, error) {
	b, err := c.t.ReadAvailable(ctx, timeout)
	if len(b) > 0 {
		c.stream.Feed(b)
	}
	if err != nil {
		return len(b), ioError("read", err)
	}
	return len(b), nil
}

// frames decodes everything complete in the stream. Frames that fail to
// decode are counted and dropped.
func (c *Chain) frames() []chip.Frame {
	var out []chip.Frame
	for {
		raw, ok := c.stream.Next()
		if !ok {
			return out
		}
		f, err := c.model.Decode(raw)
		if err != nil {
			if errors.Is(err, ErrChecksumMismatch) {
				c.stats.ChecksumErrors++
			} else {
				c.stats.Discarded++
			}
			c.log.Debugf("drop frame % x: %v", raw, err)
			continue
		}
		out = append(out, f)
	}
}

// collect reads until a full quiet window passes with no bytes and hands
// every frame to fn.
func (c *Chain) collect(ctx context.Context, window time.Duration, fn func(chip.Frame)) error {
	for {
		n, err := c.read(ctx, window)
		if err != nil {
			return err
		}
		for _, f := range c.frames() {
			fn(f)
		}
		if n == 0 {
			return nil
		}
	}
}

// awaitRegister waits for the response of chip addr to a read of reg.
// Nonce frames seen meanwhile are kept for the next PollResults when
// keepNonces is set.
func (c *Chain) awaitRegister(ctx context.Context, addr, reg uint8, timeout time.Duration, keepNonces bool) (chip.Frame, error) {
	deadline := time.Now().Add(timeout)
	for {
		left := time.Until(deadline)
		if left <= 0 {
			return chip.Frame{}, ErrTimeout
		}
		if _, err := c.read(ctx, left); err != nil {
			return chip.Frame{}, err
		}
		var (
			match chip.Frame
			found bool
		)
		for _, f := range c.frames() {
			switch {
			case f.Kind == chip.RegisterFrame && !found && f.ChipAddr == addr && f.Reg == reg:
				match, found = f, true
			case f.Kind == chip.NonceFrame && keepNonces:
				if r, ok := c.correlate(f); ok {
					c.pending = append(c.pending, r)
				}
			}
		}
		if found {
			return match, nil
		}
	}
}

// correlate maps a nonce frame to its job and slot.
func (c *Chain) correlate(f chip.Frame) (chip.Result, bool) {
	r := c.model.DecodeResult(f, c.rolling, c.versionMask)
	j, ok := c.jobs.find(r.JobID)
	if !ok {
		c.stats.Stale++
		c.log.Debugf("stale result job %d nonce 0x%08x", r.JobID, r.Nonce)
		return r, false
	}
	r.Tag = j.Work.Tag
	r.Position = -1
	if pos, ok := c.byAddr[r.ChipAddr]; ok {
		r.Position = pos
	}
	c.stats.Results++
	return r, true
}

func (c *Chain) slotByAddr(addr uint8) (*Slot, bool) {
	pos, ok := c.byAddr[addr]
	if !ok {
		return nil, false
	}
	return &c.slots[pos], true
}
