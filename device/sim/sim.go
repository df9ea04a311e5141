// Package sim is an in-memory BM13xx chain. It implements
// asiccommon.Transport and answers command frames the way a daisy chain
// of chips does: the first chip without an address takes the next
// set_address, reads are answered by the chips they reach, and jobs are
// counted. Faults are injected through options and the Inject methods.
package sim

import (
	"context"
	"errors"
	"sync"
	"time"

	"asic_chain/device/asiccommon"
	"asic_chain/device/bm13xx"
	"asic_chain/device/chip"
)

var ErrClosed = errors.New("sim: chain closed")

type EventKind int

const (
	// EventAssign is logged when a chip takes an address.
	EventAssign EventKind = iota
	// EventAck is logged when the read-back that follows an assignment
	// reaches the host.
	EventAck
	EventJob
)

type Event struct {
	Kind EventKind
	Addr uint8
	Pos  int
}

type simChip struct {
	addr      uint8
	addressed bool
	regs      map[uint8]uint32

	muteVerify bool
	dropAcks   int
	ackDelay   time.Duration
	// alias replaces addr in broadcast answers once the chip is addressed
	alias   uint8
	aliased bool
}

// JobHook returns the raw frames the chain sends back for a job.
type JobHook func(jobID uint8, addrs []uint8) [][]byte

type Chain struct {
	mu sync.Mutex

	chipID  uint16
	respLen int
	chips   []*simChip
	baud    uint32
	closed  bool

	out    *fifo
	notify chan struct{}

	writes    [][]byte
	events    []Event
	jobs      int
	garbage   int
	failWrite int
	writeErr  error
	onJob     JobHook

	lostAssign int
}

var _ asiccommon.Transport = (*Chain)(nil)

type Option func(*Chain)

// WithMuteVerify keeps the chips at the given positions quiet on
// broadcast reads once they hold an address.
func WithMuteVerify(pos ...int) Option {
	return func(c *Chain) {
		for _, p := range pos {
			if p >= 0 && p < len(c.chips) {
				c.chips[p].muteVerify = true
			}
		}
	}
}

// WithAckDelay holds back unicast read responses from the chip at pos.
func WithAckDelay(pos int, d time.Duration) Option {
	return func(c *Chain) {
		if pos >= 0 && pos < len(c.chips) {
			c.chips[pos].ackDelay = d
		}
	}
}

// WithDroppedAcks makes the chip at pos ignore its first n unicast reads.
func WithDroppedAcks(pos, n int) Option {
	return func(c *Chain) {
		if pos >= 0 && pos < len(c.chips) {
			c.chips[pos].dropAcks = n
		}
	}
}

// WithLostAssignments drops the next n set_address frames before they
// reach any chip.
func WithLostAssignments(n int) Option {
	return func(c *Chain) {
		c.lostAssign = n
	}
}

// WithAliasAddr makes the chip at pos answer broadcast reads as addr, as
// if it had latched the wrong address.
func WithAliasAddr(pos int, addr uint8) Option {
	return func(c *Chain) {
		if pos >= 0 && pos < len(c.chips) {
			c.chips[pos].alias = addr
			c.chips[pos].aliased = true
		}
	}
}

func WithJobHook(h JobHook) Option {
	return func(c *Chain) {
		c.onJob = h
	}
}

// New builds a chain of n chips answering with chipID in frames of
// respLen bytes.
func New(chipID uint16, respLen int, n int, opts ...Option) *Chain {
	c := &Chain{
		chipID:  chipID,
		respLen: respLen,
		baud:    asiccommon.InitBaud,
		out:     newFifo(),
		notify:  make(chan struct{}, 1),
	}
	for i := 0; i < n; i++ {
		c.chips = append(c.chips, &simChip{regs: map[uint8]uint32{}})
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Chain) wake() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *Chain) push(d *delivery) {
	c.out.Push(d)
	c.wake()
}

// FailWrites makes the next n writes return err.
func (c *Chain) FailWrites(n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failWrite = n
	c.writeErr = err
}

func (c *Chain) Write(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.failWrite > 0 {
		c.failWrite--
		return c.writeErr
	}

	c.writes = append(c.writes, append([]byte(nil), frame...))

	cmd, err := bm13xx.ParseCommand(frame)
	if err != nil {
		c.garbage++
		return nil
	}
	c.handle(cmd)
	return nil
}

func (c *Chain) handle(cmd bm13xx.Command) {
	now := time.Now()

	if cmd.Job {
		c.jobs++
		c.events = append(c.events, Event{Kind: EventJob, Pos: -1})
		if c.onJob != nil {
			for _, raw := range c.onJob(cmd.JobID, c.addrsLocked()) {
				c.push(&delivery{at: now, data: raw})
			}
		}
		return
	}

	switch cmd.Kind {
	case bm13xx.CMD_INACTIVE:
		for _, ch := range c.chips {
			ch.addressed = false
			ch.addr = 0
		}

	case bm13xx.CMD_SETADDRESS:
		if c.lostAssign > 0 {
			c.lostAssign--
			return
		}
		for i, ch := range c.chips {
			if !ch.addressed {
				ch.addressed = true
				ch.addr = cmd.Dest.Addr
				c.events = append(c.events, Event{Kind: EventAssign, Addr: ch.addr, Pos: i})
				break
			}
		}

	case bm13xx.CMD_WRITE:
		for _, ch := range c.target(cmd.Dest) {
			ch.regs[cmd.Reg] = cmd.Value
		}

	case bm13xx.CMD_READ:
		if cmd.Dest.All {
			for _, ch := range c.chips {
				if ch.addressed && ch.muteVerify {
					continue
				}
				addr := ch.addr
				if ch.addressed && ch.aliased {
					addr = ch.alias
				}
				c.push(&delivery{at: now, data: c.answer(ch, addr, cmd.Reg)})
			}
			return
		}
		for _, ch := range c.target(cmd.Dest) {
			if ch.dropAcks > 0 {
				ch.dropAcks--
				continue
			}
			c.push(&delivery{
				at:      now.Add(ch.ackDelay),
				data:    c.answer(ch, ch.addr, cmd.Reg),
				ack:     cmd.Reg == bm13xx.ChipIdentification,
				ackAddr: ch.addr,
			})
		}
	}
}

func (c *Chain) target(dest chip.Destination) []*simChip {
	if dest.All {
		return c.chips
	}
	for _, ch := range c.chips {
		if ch.addressed && ch.addr == dest.Addr {
			return []*simChip{ch}
		}
	}
	return nil
}

func (c *Chain) answer(ch *simChip, addr, reg uint8) []byte {
	v := ch.regs[reg]
	if reg == bm13xx.ChipIdentification {
		v = uint32(c.chipID)<<16 | v&0xffff
	}
	return bm13xx.EncodeRegisterResponse(c.respLen, v, addr, reg)
}

func (c *Chain) addrsLocked() []uint8 {
	var out []uint8
	for _, ch := range c.chips {
		if ch.addressed {
			out = append(out, ch.addr)
		}
	}
	return out
}

// ReadAvailable returns the frames due within timeout. It waits on a
// timer and the write notification, so it never spins.
func (c *Chain) ReadAvailable(ctx context.Context, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, ErrClosed
		}
		due := c.out.PopDue(time.Now())
		var data []byte
		for _, d := range due {
			data = append(data, d.data...)
			if d.ack {
				c.events = append(c.events, Event{Kind: EventAck, Addr: d.ackAddr, Pos: c.posLocked(d.ackAddr)})
			}
		}
		next, pending := c.out.NextDue()
		c.mu.Unlock()

		if len(data) > 0 {
			return data, nil
		}

		wait := time.Until(deadline)
		if wait <= 0 {
			return nil, nil
		}
		if pending {
			if d := time.Until(next); d < wait {
				wait = d
			}
		}
		if wait < 0 {
			wait = 0
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-c.notify:
			t.Stop()
		case <-t.C:
		}
	}
}

func (c *Chain) posLocked(addr uint8) int {
	for i, ch := range c.chips {
		if ch.addressed && ch.addr == addr {
			return i
		}
	}
	return -1
}

func (c *Chain) SetBaudRate(baud uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.baud = baud
	return nil
}

func (c *Chain) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.out.Clear()
	return nil
}

// InjectRaw queues raw bytes for the host as if a chip had sent them.
func (c *Chain) InjectRaw(b []byte) {
	c.push(&delivery{at: time.Now(), data: append([]byte(nil), b...)})
}

// InjectNonce queues a valid nonce frame.
func (c *Chain) InjectNonce(nonce uint32, midstate, jobID uint8, version uint16) {
	c.InjectRaw(bm13xx.EncodeNonceResponse(c.respLen, nonce, midstate, jobID, version))
}

// InjectCorruptNonce queues a nonce frame with a broken checksum.
func (c *Chain) InjectCorruptNonce(nonce uint32, midstate, jobID uint8, version uint16) {
	raw := bm13xx.EncodeNonceResponse(c.respLen, nonce, midstate, jobID, version)
	raw[len(raw)-1] ^= 0x01
	c.InjectRaw(raw)
}

// Writes returns a copy of every frame written so far.
func (c *Chain) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

func (c *Chain) WriteCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

// Commands parses the written frames, skipping any that do not parse.
func (c *Chain) Commands() []bm13xx.Command {
	var out []bm13xx.Command
	for _, w := range c.Writes() {
		if cmd, err := bm13xx.ParseCommand(w); err == nil {
			out = append(out, cmd)
		}
	}
	return out
}

func (c *Chain) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *Chain) Jobs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.jobs
}

func (c *Chain) Baud() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baud
}

// Chip reports the address held by the chip at pos.
func (c *Chain) Chip(pos int) (uint8, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pos < 0 || pos >= len(c.chips) {
		return 0, false
	}
	ch := c.chips[pos]
	return ch.addr, ch.addressed
}

// Register returns the last value written to reg of the chip at pos.
func (c *Chain) Register(pos int, reg uint8) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pos < 0 || pos >= len(c.chips) {
		return 0
	}
	return c.chips[pos].regs[reg]
}

// Pending is the number of frames not yet read by the host.
func (c *Chain) Pending() int {
	return c.out.Len()
}

// Garbage counts written frames that failed to parse.
func (c *Chain) Garbage() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.garbage
}
