package asic

import (
	"context"
	"fmt"

	"periph.io/x/conn/v3/physic"

	"asic_chain/device/asiccommon"
	"asic_chain/device/chip"
)

type configureOpts struct {
	ack bool
}

type ConfigureOption func(*configureOpts)

// WithAck makes a unicast Configure wait for the chip to answer a read of
// the register it just wrote.
func WithAck() ConfigureOption {
	return func(o *configureOpts) {
		o.ack = true
	}
}

// Configure writes value to reg of the chips selected by dest. Broadcast
// writes never wait.
func (c *Chain) Configure(ctx context.Context, dest chip.Destination, reg uint8, value uint32, opts ...ConfigureOption) error {
	var o configureOpts
	for _, fn := range opts {
		fn(&o)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(); err != nil {
		return err
	}
	return c.configure(ctx, chip.CmdDelay{Dest: dest, Reg: reg, Value: value}, o.ack)
}

func (c *Chain) configure(ctx context.Context, cmd chip.CmdDelay, ack bool) error {
	if cmd.Dest.All {
		if len(c.slots) == 0 {
			return nil
		}
		if err := c.write(ctx, c.model.WriteRegister(cmd.Dest, cmd.Reg, cmd.Value)); err != nil {
			return err
		}
		for i := range c.slots {
			if c.slots[i].Assigned {
				c.slots[i].Domain.record(cmd.Reg, cmd.Value)
			}
		}
		return nil
	}

	s, ok := c.slotByAddr(cmd.Dest.Addr)
	if !ok || s.Status == Unresponsive || !s.Assigned {
		return fmt.Errorf("%w: %s", ErrUnknownAddress, cmd.Dest)
	}
	if ack && !c.model.WriteAck() {
		return ErrAckUnsupported
	}
	if err := c.write(ctx, c.model.WriteRegister(cmd.Dest, cmd.Reg, cmd.Value)); err != nil {
		return err
	}
	s.Domain.record(cmd.Reg, cmd.Value)
	if !ack {
		return nil
	}

	if err := c.write(ctx, c.model.ReadRegister(cmd.Dest, cmd.Reg)); err != nil {
		return err
	}
	if _, err := c.awaitRegister(ctx, cmd.Dest.Addr, cmd.Reg, c.cfg.AckTimeout, true); err != nil {
		return fmt.Errorf("ack of reg 0x%02x from %s: %w", cmd.Reg, cmd.Dest, err)
	}
	return nil
}

// SubmitWork sends w to every chip as one job frame and returns the
// hardware job id it went out with. Nothing is awaited.
func (c *Chain) SubmitWork(ctx context.Context, w chip.Work) (uint8, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(); err != nil {
		return 0, err
	}
	if len(c.slots) == 0 {
		return 0, nil
	}

	id := c.jobs.nextID(c.model)
	frame, err := c.model.EncodeWork(id, w.Payload)
	if err != nil {
		return 0, err
	}
	if err := c.write(ctx, frame); err != nil {
		return 0, err
	}
	c.jobs.add(id, w)
	c.stats.JobsSent++
	if n := c.jobs.removeStale(); n > 0 {
		c.log.Debugf("removed %d stale jobs", n)
	}
	return id, nil
}

// PollResults returns the results that arrived within the poll timeout.
// A frame cut off by the timeout is kept for the next call.
func (c *Chain) PollResults(ctx context.Context) ([]chip.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(); err != nil {
		return nil, err
	}

	c.stats.Polls++
	out := c.pending
	c.pending = nil
	if len(c.slots) == 0 {
		return out, nil
	}

	if _, err := c.read(ctx, c.cfg.PollTimeout); err != nil {
		return out, err
	}
	for _, f := range c.frames() {
		if f.Kind != chip.NonceFrame {
			continue
		}
		if r, ok := c.correlate(f); ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// SetBusMode moves the chips and the transport to a new baud rate. The
// addressing is no longer trusted afterwards and the chain must be
// enumerated again.
func (c *Chain) SetBusMode(ctx context.Context, mode BusMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(); err != nil {
		return err
	}
	if mode.Baud == 0 {
		mode.Baud = asiccommon.InitBaud
	}

	if err := c.runSequence(ctx, c.model.BaudSequence(mode.Baud, c.geometry())); err != nil {
		return err
	}
	if err := c.t.SetBaudRate(mode.Baud); err != nil {
		return ioError("set baud", err)
	}
	c.log.Infof("bus mode %d -> %d baud", c.busMode.Baud, mode.Baud)
	c.busMode = mode

	c.state = stateStale
	for i := range c.slots {
		c.slots[i].Assigned = false
		c.slots[i].Status = Unassigned
	}
	c.byAddr = map[uint8]int{}
	c.stream.Reset()
	c.jobs.clear()
	c.pending = nil
	return nil
}

// RunSequence writes each command and waits its delay. Unicast commands
// must address an enumerated slot.
func (c *Chain) RunSequence(ctx context.Context, seq []chip.CmdDelay) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(); err != nil {
		return err
	}
	return c.runSequence(ctx, seq)
}

func (c *Chain) runSequence(ctx context.Context, seq []chip.CmdDelay) error {
	for _, cmd := range seq {
		if cmd.Dest.All {
			continue
		}
		if s, ok := c.slotByAddr(cmd.Dest.Addr); !ok || !s.Assigned {
			return fmt.Errorf("%w: %s", ErrUnknownAddress, cmd.Dest)
		}
	}
	if len(c.slots) == 0 {
		return nil
	}

	for _, cmd := range seq {
		if err := c.write(ctx, c.model.WriteRegister(cmd.Dest, cmd.Reg, cmd.Value)); err != nil {
			return err
		}
		if cmd.Dest.All {
			for i := range c.slots {
				c.slots[i].Domain.record(cmd.Reg, cmd.Value)
			}
		} else if s, ok := c.slotByAddr(cmd.Dest.Addr); ok {
			s.Domain.record(cmd.Reg, cmd.Value)
		}
		if err := asiccommon.Sleep(ctx, cmd.Delay); err != nil {
			return err
		}
	}
	return nil
}

// Init writes the model's init sequence with the ticket mask for
// difficulty.
func (c *Chain) Init(ctx context.Context, difficulty uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(); err != nil {
		return err
	}
	return c.runSequence(ctx, c.model.InitSequence(difficulty, c.geometry()))
}

// SetHashFrequency ramps the PLL of every chip from the current frequency
// to freq.
func (c *Chain) SetHashFrequency(ctx context.Context, freq physic.Frequency) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(); err != nil {
		return err
	}
	if freq == c.freq {
		return nil
	}
	seq := c.model.HashFreqSequence(c.freq, freq)
	if len(seq) == 0 {
		return fmt.Errorf("%w: %s", ErrNoFrequency, freq)
	}
	c.log.Infof("ramp %s -> %s in %d steps", c.freq, freq, len(seq))
	if err := c.runSequence(ctx, seq); err != nil {
		return err
	}
	c.freq = freq
	for i := range c.slots {
		c.slots[i].Domain.Frequency = freq
	}
	return nil
}

// EnableVersionRolling spreads the nonce space over the chips and lets
// them roll the version bits in mask.
func (c *Chain) EnableVersionRolling(ctx context.Context, mask uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(); err != nil {
		return err
	}
	if !c.model.SupportsVersionRolling() {
		return ErrRollingUnsupported
	}
	if err := c.runSequence(ctx, c.model.VersionRollingSequence(mask, c.geometry())); err != nil {
		return err
	}
	c.rolling = true
	c.versionMask = mask
	return nil
}

// ResetCore soft resets the cores of one chip, or of every responsive
// chip in turn for a broadcast destination.
func (c *Chain) ResetCore(ctx context.Context, dest chip.Destination) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(); err != nil {
		return err
	}
	if !dest.All {
		if s, ok := c.slotByAddr(dest.Addr); !ok || s.Status != Responsive {
			return fmt.Errorf("%w: %s", ErrUnknownAddress, dest)
		}
		return c.runSequence(ctx, c.model.ResetCoreSequence(dest))
	}
	for _, s := range c.slots {
		if s.Status != Responsive {
			continue
		}
		if err := c.runSequence(ctx, c.model.ResetCoreSequence(chip.Unicast(s.Address))); err != nil {
			return err
		}
	}
	return nil
}
