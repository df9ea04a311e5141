package config

import (
	"fmt"

	"asic_chain/device/asiccommon"
	"asic_chain/device/asicio"
	"asic_chain/device/powerstate"
	"asic_chain/util"
)

const (
	defaultListen     = "127.0.0.1:4028"
	defaultDifficulty = 256
	defaultHoldMs     = 100
	defaultSettleMs   = 1000
)

// Normalize applies defaults and folds the top level transport and reset
// into every board.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Transport.Driver == "" {
		cfg.Transport.Driver = asicio.DriverTermios
	}
	if cfg.Transport.Baud == 0 {
		cfg.Transport.Baud = asiccommon.InitBaud
	}
	if cfg.Reset.Backend == "" {
		cfg.Reset.Backend = powerstate.BackendNone
	}
	if cfg.Reset.HoldMs == 0 {
		cfg.Reset.HoldMs = defaultHoldMs
	}
	if cfg.Reset.SettleMs == 0 {
		cfg.Reset.SettleMs = defaultSettleMs
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = defaultListen
	}

	for i := range cfg.Boards {
		b := &cfg.Boards[i]
		if b.Name == "" {
			b.Name = fmt.Sprintf("board%d", b.ID)
		}
		// the ticket mask only takes powers of two
		if b.Difficulty == 0 {
			b.Difficulty = defaultDifficulty
		}
		b.Difficulty = uint32(util.ClosestPowerOf2(uint64(b.Difficulty)))

		t := cfg.Transport
		if b.Transport != nil {
			t = mergeTransport(t, *b.Transport)
		}
		b.Transport = &t

		r := cfg.Reset
		if b.Reset != nil {
			r = mergeReset(r, *b.Reset)
		}
		b.Reset = &r
	}
}

func mergeTransport(base, over TransportConfig) TransportConfig {
	if over.Driver != "" {
		base.Driver = over.Driver
	}
	if over.Port != "" {
		base.Port = over.Port
	}
	if over.Baud != 0 {
		base.Baud = over.Baud
	}
	if over.WorkBaud != 0 {
		base.WorkBaud = over.WorkBaud
	}
	if over.SimChips != 0 {
		base.SimChips = over.SimChips
	}
	return base
}

func mergeReset(base, over ResetConfig) ResetConfig {
	if over.Backend != "" {
		base.Backend = over.Backend
		base.Pin, base.Chip, base.Line = over.Pin, over.Chip, over.Line
	}
	if over.HoldMs != 0 {
		base.HoldMs = over.HoldMs
	}
	if over.SettleMs != 0 {
		base.SettleMs = over.SettleMs
	}
	return base
}
