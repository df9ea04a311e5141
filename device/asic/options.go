package asic

import (
	"time"

	"asic_chain/device/asiccommon"
)

// Config holds the chain settings.
type Config struct {
	// Name tags the chain's log lines (the board id)
	Name string

	// Retries bounds every enumeration step
	Retries int

	// AckTimeout is how long an assignment or write waits for its read-back
	AckTimeout time.Duration

	// PollTimeout bounds one PollResults call
	PollTimeout time.Duration

	// ExpectedChips is checked against the probe count when non zero
	ExpectedChips int

	// Domains and AsicsPerDomain describe the voltage domains for the
	// baud and version rolling sequences
	Domains        int
	AsicsPerDomain int

	// Baud is the rate the chips are at when the chain is built
	Baud uint32

	// StaleTTL is how long a sent job may still collect results
	StaleTTL time.Duration
}

func defaultConfig() Config {
	return Config{
		Name:        "chain",
		Retries:     3,
		AckTimeout:  200 * time.Millisecond,
		PollTimeout: 20 * time.Millisecond,
		Baud:        asiccommon.InitBaud,
		StaleTTL:    defaultStaleTTL,
	}
}

// Option is a functional option for configuring a Chain.
type Option func(*Config)

func WithName(name string) Option {
	return func(c *Config) {
		c.Name = name
	}
}

// WithRetries sets the attempt bound of each enumeration step. Address
// assignment makes at least three attempts whatever the bound.
func WithRetries(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.Retries = n
		}
	}
}

func WithAckTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.AckTimeout = d
		}
	}
}

func WithPollTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.PollTimeout = d
		}
	}
}

// WithExpectedChips makes Enumerate report a chip count different from n.
func WithExpectedChips(n int) Option {
	return func(c *Config) {
		c.ExpectedChips = n
	}
}

// WithDomains sets the voltage domain layout of the board.
func WithDomains(domains, asicsPerDomain int) Option {
	return func(c *Config) {
		c.Domains = domains
		c.AsicsPerDomain = asicsPerDomain
	}
}

func WithBaud(baud uint32) Option {
	return func(c *Config) {
		if baud > 0 {
			c.Baud = baud
		}
	}
}

func WithStaleTTL(d time.Duration) Option {
	return func(c *Config) {
		c.StaleTTL = d
	}
}
