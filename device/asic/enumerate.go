package asic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"asic_chain/device/chip"
)

// Enumeration is the outcome of a successful Enumerate.
type Enumeration struct {
	Session  string
	Chips    int
	Interval int
	// Mismatch is set when the chip count differs from ExpectedChips
	Mismatch     bool
	Unresponsive []int
}

const minAssignAttempts = 3

// addressInterval spreads n addresses over the 8-bit space.
func addressInterval(n int) int {
	if n <= 0 {
		return 1
	}
	iv := chip.CHIP_MAX / n
	if iv < 1 {
		iv = 1
	}
	for n > 1 && (n-1)*iv > chip.CHIP_MAX-1 {
		iv--
	}
	return iv
}

// Enumerate resets the chain, counts the chips, gives each an address and
// checks that every address answers once. Slots from a previous run are
// replaced.
func (c *Chain) Enumerate(ctx context.Context) (Enumeration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	session := uuid.NewString()
	elog := c.log.WithFields(logrus.Fields{"session": session, "baud": c.busMode.Baud})
	c.stats.Session = session
	c.stats.Enumerations++

	res, err := c.enumerate(ctx, session, elog)
	if err != nil {
		if c.state != stateStale {
			c.state = stateNone
		}
		for i := range c.slots {
			c.slots[i].Assigned = false
			c.slots[i].Status = Unassigned
		}
		c.byAddr = map[uint8]int{}
		elog.Errorf("%v", err)
		return res, err
	}
	c.state = stateEnumerated
	return res, nil
}

func (c *Chain) enumerate(ctx context.Context, session string, elog *logrus.Entry) (Enumeration, error) {
	res := Enumeration{Session: session}
	window := c.model.ProbeWindow(c.busMode.Baud)
	retries := c.cfg.Retries

	c.stream.Reset()
	c.jobs.clear()
	c.pending = nil

	// Reset-Broadcast
	var err error
	attempt := 0
	for attempt = 1; attempt <= retries; attempt++ {
		if err = c.write(ctx, c.model.ChainInactive()); err == nil {
			break
		}
		if ctx.Err() != nil {
			break
		}
		elog.Warnf("chain inactive attempt %d: %v", attempt, err)
	}
	if err != nil {
		return res, &EnumerationError{Step: "reset", Attempts: min(attempt, retries), Err: err}
	}
	// anything still in flight belongs to the old addressing
	if err := c.collect(ctx, window, func(chip.Frame) {}); err != nil {
		return res, &EnumerationError{Step: "reset", Attempts: attempt, Err: err}
	}

	// Chip-Count Probe
	n := 0
	for attempt = 1; attempt <= retries; attempt++ {
		n, err = c.probe(ctx, window)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			elog.Warnf("probe attempt %d: %v", attempt, err)
			continue
		}
		if n > 0 {
			break
		}
	}
	if err != nil {
		return res, &EnumerationError{Step: "probe", Attempts: min(attempt, retries), Err: err}
	}
	if n > chip.CHIP_MAX {
		return res, &EnumerationError{Step: "probe", Attempts: 1, Err: fmt.Errorf("%w: %d", ErrTooManyChips, n)}
	}
	if n == 0 && c.cfg.ExpectedChips > 0 {
		return res, &EnumerationError{Step: "probe", Attempts: retries, Err: ErrNoChips}
	}
	if c.cfg.ExpectedChips > 0 && n != c.cfg.ExpectedChips {
		res.Mismatch = true
		elog.Warnf("found %d chips, expected %d", n, c.cfg.ExpectedChips)
	}
	elog.Infof("%d chips found", n)

	// Sequential Address Assignment
	iv := addressInterval(n)
	slots := make([]Slot, n)
	byAddr := make(map[uint8]int, n)
	for pos := 0; pos < n; pos++ {
		addr := uint8(pos * iv)
		step := fmt.Sprintf("assign[%d]", pos)
		tries, err := c.assign(ctx, addr, elog)
		if err != nil {
			return res, &EnumerationError{Step: step, Attempts: tries, Err: err}
		}
		slots[pos] = Slot{Position: pos, Address: addr, Assigned: true, Status: Unassigned}
		byAddr[addr] = pos
	}

	// Verification Pass
	seen := map[uint8]int{}
	for attempt = 1; attempt <= retries; attempt++ {
		seen = map[uint8]int{}
		err = c.write(ctx, c.model.ReadRegister(chip.Broadcast(), c.model.IdentityRegister()))
		if err == nil {
			err = c.collect(ctx, window, func(f chip.Frame) {
				if c.model.IsIdentity(f) {
					seen[f.ChipAddr]++
				}
			})
		}
		if err == nil || ctx.Err() != nil {
			break
		}
		elog.Warnf("verify attempt %d: %v", attempt, err)
	}
	if err != nil {
		return res, &EnumerationError{Step: "verify", Attempts: min(attempt, retries), Err: err}
	}
	for addr, cnt := range seen {
		if cnt > 1 {
			return res, &EnumerationError{Step: "verify", Attempts: 1,
				Err: fmt.Errorf("%w: 0x%02x seen %d times", ErrAddressConflict, addr, cnt)}
		}
		if _, ok := byAddr[addr]; !ok {
			elog.Warnf("unassigned address 0x%02x answered", addr)
		}
	}

	for i := range slots {
		if seen[slots[i].Address] == 1 {
			slots[i].Status = Responsive
		} else {
			slots[i].Status = Unresponsive
			res.Unresponsive = append(res.Unresponsive, i)
			elog.Warnf("chip %d at 0x%02x did not answer verification", i, slots[i].Address)
		}
		// registers survive a re-enumeration, keep the record of them
		if len(c.slots) == n {
			slots[i].Domain = c.slots[i].Domain.clone()
		}
	}

	c.slots = slots
	c.byAddr = byAddr
	c.interval = iv
	c.stats.Mismatch = res.Mismatch

	res.Chips = n
	res.Interval = iv
	elog.Infof("enumerated %d chips, interval %d, %d unresponsive", n, iv, len(res.Unresponsive))
	return res, nil
}

// probe broadcasts an identity read and counts the answers of this
// model's chips.
func (c *Chain) probe(ctx context.Context, window time.Duration) (int, error) {
	if err := c.write(ctx, c.model.ReadRegister(chip.Broadcast(), c.model.IdentityRegister())); err != nil {
		return 0, err
	}
	n := 0
	err := c.collect(ctx, window, func(f chip.Frame) {
		if c.model.IsIdentity(f) {
			n++
		}
	})
	return n, err
}

// assign gives the next unaddressed chip addr. Odd attempts send the
// assignment and the read-back, even attempts only the read-back, so a
// lost ack never hands a second address down the chain. It always makes
// at least three attempts, so a lost assignment is sent again.
func (c *Chain) assign(ctx context.Context, addr uint8, elog *logrus.Entry) (int, error) {
	var err error
	tries := max(c.cfg.Retries, minAssignAttempts)
	attempt := 1
	for ; attempt <= tries; attempt++ {
		if attempt%2 == 1 {
			if err = c.write(ctx, c.model.SetAddress(addr)); err != nil {
				if ctx.Err() != nil {
					return attempt, err
				}
				continue
			}
		}
		if err = c.write(ctx, c.model.ReadRegister(chip.Unicast(addr), c.model.IdentityRegister())); err != nil {
			if ctx.Err() != nil {
				return attempt, err
			}
			continue
		}
		var f chip.Frame
		f, err = c.awaitRegister(ctx, addr, c.model.IdentityRegister(), c.cfg.AckTimeout, false)
		if err == nil && c.model.IsIdentity(f) {
			return attempt, nil
		}
		if err == nil {
			err = fmt.Errorf("chip 0x%02x answered with id 0x%08x", addr, f.Value)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return attempt, err
		}
		elog.Debugf("assign 0x%02x attempt %d: %v", addr, attempt, err)
	}
	return tries, err
}
