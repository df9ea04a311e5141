package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/physic"

	"asic_chain/device/asic"
	"asic_chain/device/asiccommon"
	"asic_chain/device/chip"
	"asic_chain/log"
	"asic_chain/util"
)

const (
	STATUS_ALIVE = iota
	STATUS_SICK
	STATUS_DEAD
	STATUS_NOSTART
	STATUS_INIT
)

func StatusCode(s int) string {
	switch s {
	case STATUS_ALIVE:
		return "Alive"
	case STATUS_SICK:
		return "Sick"
	case STATUS_DEAD:
		return "Dead"
	case STATUS_NOSTART:
		return "NoStart"
	case STATUS_INIT:
		return "Initialising"
	default:
		return "Dead"
	}
}

// BoardConfig is what Init needs to bring a chain from power on to
// hashing.
type BoardConfig struct {
	ID   uint
	Name string

	// Chain options, passed to asic.New
	Chain []asic.Option

	Difficulty  uint32
	VersionMask uint32
	Frequency   physic.Frequency
	// WorkBaud is switched to after the first enumeration, 0 keeps the
	// boot rate
	WorkBaud uint32

	ResetHold   time.Duration
	ResetSettle time.Duration
}

// Board is one hash board: a chain of chips behind one transport and an
// optional reset line.
type Board struct {
	ID      uint
	Name    string
	UpSince float64

	Chain *asic.Chain
	Reset asiccommon.ResetLine

	cfg BoardConfig
	log *logrus.Entry

	mu        sync.Mutex
	enabled   bool
	status    int
	lastErr   error
	nResults  uint64
	nWork     uint64
	pollFails int
}

var ErrBoardInitFailure = errors.New("ErrBoardInitFailure")
var ErrBoardDisabled = errors.New("board disabled")

// NewBoard wraps a chain of model m over t. reset may be nil.
func NewBoard(cfg BoardConfig, t asiccommon.Transport, m chip.Model, reset asiccommon.ResetLine) *Board {
	if cfg.Name == "" {
		cfg.Name = fmt.Sprintf("board%d", cfg.ID)
	}
	opts := append([]asic.Option{asic.WithName(cfg.Name)}, cfg.Chain...)
	return &Board{
		ID:      cfg.ID,
		Name:    cfg.Name,
		enabled: true,
		UpSince: util.NowInSec(),
		Chain:   asic.New(t, m, opts...),
		Reset:   reset,
		cfg:     cfg,
		log:     log.WithField("board", cfg.ID),
		status:  STATUS_NOSTART,
	}
}

func (my *Board) Uptime() float64 {
	return util.UptimeInSec(util.NowInSec(), my.UpSince)
}

func (my *Board) Enabled() bool {
	my.mu.Lock()
	defer my.mu.Unlock()
	return my.enabled
}

// SetEnabled takes the board in or out of the work fan out.
func (my *Board) SetEnabled(on bool) {
	my.mu.Lock()
	defer my.mu.Unlock()
	my.enabled = on
}

func (my *Board) Status() int {
	my.mu.Lock()
	defer my.mu.Unlock()
	return my.status
}

func (my *Board) setStatus(s int, err error) {
	my.mu.Lock()
	defer my.mu.Unlock()
	if s != my.status {
		my.log.Infof("status %s -> %s", StatusCode(my.status), StatusCode(s))
	}
	my.status = s
	if err != nil {
		my.lastErr = err
	}
}

func (my *Board) LastError() error {
	my.mu.Lock()
	defer my.mu.Unlock()
	return my.lastErr
}

// Init resets the board, enumerates its chain at the boot baud, loads the
// init sequence, moves to the work baud and enumerates again, then turns
// on version rolling and ramps the hash clock.
func (my *Board) Init(ctx context.Context) error {
	if !my.Enabled() {
		my.setStatus(STATUS_NOSTART, nil)
		return ErrBoardDisabled
	}
	my.setStatus(STATUS_INIT, nil)

	res, err := my.init(ctx)
	if err != nil {
		my.log.Errorf("init: %v", err)
		my.SetEnabled(false)
		my.setStatus(STATUS_DEAD, err)
		return fmt.Errorf("%w: board %d: %w", ErrBoardInitFailure, my.ID, err)
	}

	if res.Mismatch || len(res.Unresponsive) > 0 {
		my.setStatus(STATUS_SICK, nil)
	} else {
		my.setStatus(STATUS_ALIVE, nil)
	}
	my.UpSince = util.NowInSec()
	my.log.Infof("Board %d is %s, %d chips", my.ID, StatusCode(my.Status()), res.Chips)
	return nil
}

func (my *Board) init(ctx context.Context) (asic.Enumeration, error) {
	c := my.Chain
	if my.Reset != nil {
		if err := asiccommon.PulseReset(ctx, my.Reset, my.cfg.ResetHold, my.cfg.ResetSettle); err != nil {
			return asic.Enumeration{}, fmt.Errorf("reset: %w", err)
		}
	}

	res, err := c.Enumerate(ctx)
	if err != nil {
		return res, err
	}
	if res.Chips == 0 {
		my.log.Info("no chips on chain")
		return res, nil
	}
	if err := c.Init(ctx, my.cfg.Difficulty); err != nil {
		return res, fmt.Errorf("init sequence: %w", err)
	}

	if my.cfg.WorkBaud != 0 && my.cfg.WorkBaud != c.BusMode().Baud {
		if err := c.SetBusMode(ctx, asic.BusMode{Baud: my.cfg.WorkBaud}); err != nil {
			return res, fmt.Errorf("bus mode: %w", err)
		}
		if res, err = c.Enumerate(ctx); err != nil {
			return res, err
		}
	}

	if my.cfg.VersionMask != 0 && c.Model().SupportsVersionRolling() {
		if err := c.EnableVersionRolling(ctx, my.cfg.VersionMask); err != nil {
			return res, fmt.Errorf("version rolling: %w", err)
		}
	}
	if my.cfg.Frequency != 0 {
		if err := c.SetHashFrequency(ctx, my.cfg.Frequency); err != nil {
			return res, fmt.Errorf("frequency: %w", err)
		}
	}
	return res, nil
}

// maxPollFails is how many polls in a row may fail before the board is
// declared dead.
const maxPollFails = 10

// Poll collects the results of one poll window. Repeated failures take
// the board from sick to dead.
func (my *Board) Poll(ctx context.Context) ([]chip.Result, error) {
	if !my.Enabled() {
		return nil, ErrBoardDisabled
	}
	res, err := my.Chain.PollResults(ctx)

	my.mu.Lock()
	my.nResults += uint64(len(res))
	if err == nil {
		my.pollFails = 0
		my.mu.Unlock()
		return res, nil
	}
	if ctx.Err() != nil {
		my.mu.Unlock()
		return res, err
	}
	my.pollFails++
	fails := my.pollFails
	my.mu.Unlock()

	if fails >= maxPollFails {
		my.SetEnabled(false)
		my.setStatus(STATUS_DEAD, err)
	} else {
		my.setStatus(STATUS_SICK, err)
	}
	return res, err
}

// Submit sends w to the chain.
func (my *Board) Submit(ctx context.Context, w chip.Work) (uint8, error) {
	if !my.Enabled() {
		return 0, ErrBoardDisabled
	}
	id, err := my.Chain.SubmitWork(ctx, w)
	if err != nil {
		my.setStatus(STATUS_SICK, err)
		return 0, err
	}
	my.mu.Lock()
	my.nWork++
	my.mu.Unlock()
	return id, nil
}

// BoardSummary is the status API view of a board.
type BoardSummary struct {
	ID          uint       `json:"id"`
	Name        string     `json:"name"`
	Model       string     `json:"model"`
	Status      string     `json:"status"`
	Enabled     bool       `json:"enabled"`
	Uptime      float64    `json:"uptime"`
	Baud        uint32     `json:"baud"`
	Frequency   string     `json:"frequency"`
	Rolling     bool       `json:"version_rolling"`
	Hashrate    float64    `json:"theoretical_ghs"`
	Work        uint64     `json:"work"`
	Results     uint64     `json:"results"`
	Stats       asic.Stats `json:"chain"`
	Unreachable int        `json:"unresponsive"`
	LastError   string     `json:"last_error,omitempty"`
}

func (my *Board) Summary() BoardSummary {
	c := my.Chain
	rolling, _ := c.VersionRolling()
	freq := c.HashFrequency()
	s := BoardSummary{
		ID:        my.ID,
		Name:      my.Name,
		Model:     c.Model().Name(),
		Uptime:    my.Uptime(),
		Baud:      c.BusMode().Baud,
		Frequency: freq.String(),
		Rolling:   rolling,
		Stats:     c.Stats(),
	}
	for _, sl := range c.Slots() {
		if sl.Status == asic.Unresponsive {
			s.Unreachable++
		}
	}
	s.Hashrate = c.Model().TheoreticalHashrate(freq) * float64(s.Stats.Chips)

	my.mu.Lock()
	s.Status = StatusCode(my.status)
	s.Enabled = my.enabled
	s.Work = my.nWork
	s.Results = my.nResults
	if my.lastErr != nil {
		s.LastError = my.lastErr.Error()
	}
	my.mu.Unlock()
	return s
}

func (my *Board) Close() error {
	var err error
	if my.Reset != nil {
		err = my.Reset.Close()
	}
	if cerr := my.Chain.Close(); cerr != nil {
		err = cerr
	}
	return err
}
