package main

import (
	"fmt"
	"time"

	"asic_chain/config"
	"asic_chain/device"
	"asic_chain/device/asic"
	"asic_chain/device/asiccommon"
	"asic_chain/device/asicio"
	"asic_chain/device/bm1366"
	"asic_chain/device/bm1370"
	"asic_chain/device/bm1397"
	"asic_chain/device/bm13xx"
	"asic_chain/device/chip"
	"asic_chain/device/powerstate"
	"asic_chain/device/sim"
	"asic_chain/log"
)

type modelEntry struct {
	new     func() chip.Model
	respLen int
	header  bool
}

var models = map[string]modelEntry{
	"BM1366": {func() chip.Model { return bm1366.New() }, bm13xx.RSP_LEN_LONG, true},
	"BM1370": {func() chip.Model { return bm1370.New() }, bm13xx.RSP_LEN_LONG, true},
	"BM1397": {func() chip.Model { return bm1397.New() }, bm13xx.RSP_LEN_SHORT, false},
}

func chainOptions(t config.TimingConfig, b config.BoardConfig) []asic.Option {
	var opts []asic.Option
	if b.ExpectedChips > 0 {
		opts = append(opts, asic.WithExpectedChips(b.ExpectedChips))
	}
	if b.Domains > 0 {
		opts = append(opts, asic.WithDomains(b.Domains, b.AsicsPerDomain))
	}
	if b.Transport != nil && b.Transport.Baud != 0 {
		opts = append(opts, asic.WithBaud(b.Transport.Baud))
	}
	if t.Retries > 0 {
		opts = append(opts, asic.WithRetries(t.Retries))
	}
	if t.AckTimeoutMs > 0 {
		opts = append(opts, asic.WithAckTimeout(time.Duration(t.AckTimeoutMs)*time.Millisecond))
	}
	if t.PollTimeoutMs > 0 {
		opts = append(opts, asic.WithPollTimeout(time.Duration(t.PollTimeoutMs)*time.Millisecond))
	}
	if t.StaleJobSec > 0 {
		opts = append(opts, asic.WithStaleTTL(time.Duration(t.StaleJobSec)*time.Second))
	}
	return opts
}

func openTransport(t config.TransportConfig, m modelEntry, model chip.Model) (asiccommon.Transport, error) {
	if t.Driver == config.DriverSim {
		return sim.New(model.ChipID(), m.respLen, t.SimChips), nil
	}
	return asicio.Open(t.Serial())
}

// buildBoard opens the transport and reset line of one configured board.
// cfg must be normalized.
func buildBoard(cfg *config.Config, b config.BoardConfig) (*device.Board, error) {
	m, ok := models[b.Model]
	if !ok {
		return nil, fmt.Errorf("board %d: unknown model %q", b.ID, b.Model)
	}
	freq, err := b.HashFrequency()
	if err != nil {
		return nil, fmt.Errorf("board %d: %w", b.ID, err)
	}
	model := m.new()

	t, err := openTransport(*b.Transport, m, model)
	if err != nil {
		return nil, fmt.Errorf("board %d: open %s: %w", b.ID, b.Transport.Port, err)
	}
	reset, err := powerstate.Open(b.Reset.PowerState())
	if err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("board %d: reset line: %w", b.ID, err)
	}

	board := device.NewBoard(device.BoardConfig{
		ID:          b.ID,
		Name:        b.Name,
		Chain:       chainOptions(cfg.Timing, b),
		Difficulty:  b.Difficulty,
		VersionMask: b.VersionMask,
		Frequency:   freq,
		WorkBaud:    b.Transport.WorkBaud,
		ResetHold:   time.Duration(b.Reset.HoldMs) * time.Millisecond,
		ResetSettle: time.Duration(b.Reset.SettleMs) * time.Millisecond,
	}, t, model, reset)
	if b.Disabled {
		board.SetEnabled(false)
	}
	return board, nil
}

// buildBoards builds every board it can. A board that cannot be opened is
// logged and left out.
func buildBoards(cfg *config.Config) ([]*device.Board, error) {
	var boards []*device.Board
	var firstErr error
	for _, b := range cfg.Boards {
		board, err := buildBoard(cfg, b)
		if err != nil {
			log.Errorf("%v", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		boards = append(boards, board)
	}
	if len(boards) == 0 {
		if firstErr == nil {
			firstErr = fmt.Errorf("no boards configured")
		}
		return nil, firstErr
	}
	return boards, nil
}

// testWork is a zero job in the layout the model takes, for bench runs
// without a work source.
func testWork(model string, n uint64) chip.Work {
	w := chip.Work{Tag: fmt.Sprintf("test-%d", n)}
	if m, ok := models[model]; ok && !m.header {
		w.Payload = bm13xx.MidstateJob{NTime: uint32(n), Midstates: make([][32]byte, 1)}.Bytes()
	} else {
		w.Payload = bm13xx.HeaderJob{NumMidstates: 1, NTime: uint32(n)}.Bytes()
	}
	return w
}
