package config

import (
	"fmt"

	"asic_chain/device/asicio"
	"asic_chain/device/powerstate"
)

// Models that the board builder knows.
var Models = []string{"BM1366", "BM1370", "BM1397"}

var drivers = []string{
	asicio.DriverTermios, asicio.DriverGoburrow, asicio.DriverTarm, asicio.DriverBugst, DriverSim,
}

var resetBackends = []string{
	powerstate.BackendNone, powerstate.BackendSysfs, powerstate.BackendGpiod, powerstate.BackendPeriph,
}

func oneOf(v string, set []string) bool {
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}

// Validate checks configuration correctness and names the first bad field.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is empty")
	}
	if len(cfg.Boards) == 0 {
		return fmt.Errorf("boards: at least one board is required")
	}

	if err := validateTransport("transport", cfg.Transport); err != nil {
		return err
	}
	if err := validateReset("reset", cfg.Reset); err != nil {
		return err
	}

	seen := make(map[uint]bool)
	ports := make(map[string]uint)
	for i, b := range cfg.Boards {
		where := fmt.Sprintf("boards[%d]", i)
		if seen[b.ID] {
			return fmt.Errorf("%s.id: duplicate board id %d", where, b.ID)
		}
		seen[b.ID] = true

		if !oneOf(b.Model, Models) {
			return fmt.Errorf("%s.model: unknown model %q", where, b.Model)
		}
		if b.ExpectedChips < 0 || b.ExpectedChips > 256 {
			return fmt.Errorf("%s.expected_chips: %d out of range", where, b.ExpectedChips)
		}
		if b.Domains < 0 || b.AsicsPerDomain < 0 {
			return fmt.Errorf("%s: domains and asics_per_domain must not be negative", where)
		}
		if (b.Domains == 0) != (b.AsicsPerDomain == 0) {
			return fmt.Errorf("%s: domains and asics_per_domain must be set together", where)
		}
		if b.ExpectedChips > 0 && b.Domains*b.AsicsPerDomain > b.ExpectedChips {
			return fmt.Errorf("%s: %d domains of %d chips exceed expected_chips %d",
				where, b.Domains, b.AsicsPerDomain, b.ExpectedChips)
		}
		if _, err := b.HashFrequency(); err != nil {
			return fmt.Errorf("%s.frequency: %w", where, err)
		}

		t := cfg.Transport
		if b.Transport != nil {
			if err := validateTransport(where+".transport", *b.Transport); err != nil {
				return err
			}
			t = mergeTransport(t, *b.Transport)
		}
		if t.Driver != DriverSim {
			if t.Port == "" {
				return fmt.Errorf("%s: no serial port", where)
			}
			if prev, ok := ports[t.Port]; ok && !b.Disabled {
				return fmt.Errorf("%s: port %s already used by board %d", where, t.Port, prev)
			}
			if !b.Disabled {
				ports[t.Port] = b.ID
			}
		}
		if b.Reset != nil {
			if err := validateReset(where+".reset", *b.Reset); err != nil {
				return err
			}
		}
	}

	if cfg.Timing.Retries < 0 || cfg.Timing.AckTimeoutMs < 0 || cfg.Timing.PollTimeoutMs < 0 || cfg.Timing.StaleJobSec < 0 {
		return fmt.Errorf("timing: values must not be negative")
	}
	return nil
}

func validateTransport(where string, t TransportConfig) error {
	if t.Driver != "" && !oneOf(t.Driver, drivers) {
		return fmt.Errorf("%s.driver: unknown driver %q", where, t.Driver)
	}
	if t.SimChips < 0 || t.SimChips > 256 {
		return fmt.Errorf("%s.sim_chips: %d out of range", where, t.SimChips)
	}
	return nil
}

func validateReset(where string, r ResetConfig) error {
	if r.Backend != "" && !oneOf(r.Backend, resetBackends) {
		return fmt.Errorf("%s.backend: unknown backend %q", where, r.Backend)
	}
	if r.HoldMs < 0 || r.SettleMs < 0 {
		return fmt.Errorf("%s: hold_ms and settle_ms must not be negative", where)
	}
	switch r.Backend {
	case powerstate.BackendSysfs:
		if r.Pin <= 0 {
			return fmt.Errorf("%s.pin: required for sysfs", where)
		}
	case powerstate.BackendGpiod:
		if r.Chip == "" {
			return fmt.Errorf("%s.chip: required for gpiod", where)
		}
	case powerstate.BackendPeriph:
		if r.Line == "" {
			return fmt.Errorf("%s.line: required for periph", where)
		}
	}
	return nil
}
