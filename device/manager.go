package device

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"asic_chain/device/asic"
	"asic_chain/device/chip"
	"asic_chain/log"
	"asic_chain/util"
	"asic_chain/version"
)

// BoardResult is a chip result tagged with the board it came from.
type BoardResult struct {
	Board uint `json:"board"`
	chip.Result
}

// Summary is the status API view of the whole manager.
type Summary struct {
	Version version.VersionConfig `json:"version"`
	Uptime  float64               `json:"uptime"`
	Boards  []BoardSummary        `json:"boards"`
	Results uint64                `json:"results"`
	Dropped uint64                `json:"dropped"`
}

// DeviceManager holds the boards by id and runs one poll loop per board.
type DeviceManager struct {
	mu       sync.RWMutex
	boardMap map[uint]*Board

	results chan BoardResult
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	bExit   bool

	nResults uint64
	nDropped uint64

	// SleepForWork is the pause after a poll that returned nothing
	SleepForWork time.Duration
}

var ErrDevNotExist = errors.New("not exist")

const resultQueueLen = 1024

func NewDeviceManager() *DeviceManager {
	return &DeviceManager{
		boardMap:     make(map[uint]*Board),
		results:      make(chan BoardResult, resultQueueLen),
		SleepForWork: 40 * time.Millisecond,
	}
}

// InitBoard brings one board up and registers it. A board that fails to
// come up stays registered as dead so the status API can report it.
func (my *DeviceManager) InitBoard(ctx context.Context, board *Board) error {
	err := board.Init(ctx)
	if err != nil {
		log.Infof("board id (%v): %v", board.ID, err)
	}
	my.mu.Lock()
	my.boardMap[board.ID] = board
	my.mu.Unlock()
	return err
}

// Init brings every board up in turn and starts their poll loops. It
// fails only when no board came up.
func (my *DeviceManager) Init(ctx context.Context, boards ...*Board) error {
	alive := 0
	var firstErr error
	for _, b := range boards {
		if err := my.InitBoard(ctx, b); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		alive++
	}
	if alive == 0 && firstErr != nil {
		return firstErr
	}
	my.Start(ctx)
	return nil
}

// Start runs a poll loop for every registered board until Fini.
func (my *DeviceManager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	my.mu.Lock()
	my.cancel = cancel
	boards := my.boardsLocked()
	my.mu.Unlock()

	for _, b := range boards {
		my.wg.Add(1)
		go func(b *Board) {
			defer my.wg.Done()
			my.run(ctx, b)
		}(b)
	}
}

func (my *DeviceManager) run(ctx context.Context, b *Board) {
	for ctx.Err() == nil {
		if !b.Enabled() {
			if err := sleepCtx(ctx, my.SleepForWork); err != nil {
				return
			}
			continue
		}

		res, err := b.Poll(ctx)
		if err != nil && ctx.Err() == nil {
			if errors.Is(err, asic.ErrReenumerate) || errors.Is(err, asic.ErrNotEnumerated) {
				log.Errorf("board %d: %v", b.ID, err)
			} else {
				log.Debugf("board %d poll: %v", b.ID, err)
			}
		}
		for _, r := range res {
			my.deliver(BoardResult{Board: b.ID, Result: r})
		}
		// an empty chain polls back at once
		if len(res) == 0 {
			if sleepCtx(ctx, my.SleepForWork) != nil {
				return
			}
		}
	}
}

// deliver never blocks the poll loop. A full queue drops the result.
func (my *DeviceManager) deliver(r BoardResult) {
	my.mu.Lock()
	defer my.mu.Unlock()
	select {
	case my.results <- r:
		my.nResults++
	default:
		my.nDropped++
		log.Warnf("result queue full, dropped nonce 0x%08x of board %d", r.Nonce, r.Board)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Results is the stream of results from every board.
func (my *DeviceManager) Results() <-chan BoardResult {
	return my.results
}

// GetResult returns a queued result without waiting.
func (my *DeviceManager) GetResult() (BoardResult, bool) {
	select {
	case r := <-my.results:
		return r, true
	default:
		return BoardResult{}, false
	}
}

// AddWork fans w out to every enabled board and returns how many took it.
func (my *DeviceManager) AddWork(ctx context.Context, w chip.Work) (int, error) {
	n := 0
	var lastErr error
	for _, b := range my.Boards() {
		if !b.Enabled() {
			continue
		}
		if _, err := b.Submit(ctx, w); err != nil {
			log.Debugf("Board %d: submit %q: %v", b.ID, w.Tag, err)
			lastErr = err
			continue
		}
		n++
	}
	if n == 0 && lastErr != nil {
		return 0, lastErr
	}
	return n, nil
}

func (my *DeviceManager) boardsLocked() []*Board {
	out := make([]*Board, 0, len(my.boardMap))
	for _, b := range my.boardMap {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Boards returns every registered board ordered by id.
func (my *DeviceManager) Boards() []*Board {
	my.mu.RLock()
	defer my.mu.RUnlock()
	return my.boardsLocked()
}

func (my *DeviceManager) Board(id uint) (*Board, error) {
	my.mu.RLock()
	defer my.mu.RUnlock()
	b, ok := my.boardMap[id]
	if !ok {
		return nil, ErrDevNotExist
	}
	return b, nil
}

// Slots returns the chip slots of board id.
func (my *DeviceManager) Slots(id uint) ([]asic.Slot, error) {
	b, err := my.Board(id)
	if err != nil {
		return nil, err
	}
	return b.Chain.Slots(), nil
}

func (my *DeviceManager) Summary() Summary {
	s := Summary{
		Version: version.GetVersionConfig(),
		Uptime:  util.SystemUptimeInSec(),
	}
	for _, b := range my.Boards() {
		s.Boards = append(s.Boards, b.Summary())
	}
	my.mu.RLock()
	s.Results = my.nResults
	s.Dropped = my.nDropped
	my.mu.RUnlock()
	return s
}

// Fini stops the poll loops and closes every board.
func (my *DeviceManager) Fini() {
	my.mu.Lock()
	if my.bExit {
		my.mu.Unlock()
		return
	}
	my.bExit = true
	cancel := my.cancel
	boards := my.boardsLocked()
	my.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	my.wg.Wait()
	for _, b := range boards {
		if err := b.Close(); err != nil {
			log.Debugf("board %d close: %v", b.ID, err)
		}
	}
}
