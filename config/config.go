// Package config loads the chainctl YAML configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"

	"asic_chain/device/asicio"
	"asic_chain/device/powerstate"
)

type Config struct {
	Boards    []BoardConfig   `yaml:"boards"`
	Transport TransportConfig `yaml:"transport"`
	Reset     ResetConfig     `yaml:"reset"`
	Timing    TimingConfig    `yaml:"timing"`
	API       APIConfig       `yaml:"api"`
	Log       LogConfig       `yaml:"log"`
}

// ---- BOARD ----

type BoardConfig struct {
	ID             uint   `yaml:"id"`
	Name           string `yaml:"name"`
	Model          string `yaml:"model"`
	ExpectedChips  int    `yaml:"expected_chips"`
	Domains        int    `yaml:"domains"`
	AsicsPerDomain int    `yaml:"asics_per_domain"`
	Difficulty     uint32 `yaml:"difficulty"`
	VersionMask    uint32 `yaml:"version_mask"`
	// Frequency is a physic frequency string such as "525MHz"
	Frequency string `yaml:"frequency"`
	Disabled  bool   `yaml:"disabled"`

	// per-board overrides of the top level sections
	Transport *TransportConfig `yaml:"transport"`
	Reset     *ResetConfig     `yaml:"reset"`
}

// HashFrequency parses Frequency. An empty string is 0, which keeps the
// model's boot frequency.
func (b BoardConfig) HashFrequency() (physic.Frequency, error) {
	var f physic.Frequency
	if b.Frequency == "" {
		return 0, nil
	}
	if err := f.Set(b.Frequency); err != nil {
		return 0, err
	}
	return f, nil
}

// ---- TRANSPORT ----

// DriverSim is the in-memory chain, for bench runs without hardware.
const DriverSim = "sim"

type TransportConfig struct {
	Driver   string `yaml:"driver"`
	Port     string `yaml:"port"`
	Baud     uint32 `yaml:"baud"`
	WorkBaud uint32 `yaml:"work_baud"`
	SimChips int    `yaml:"sim_chips"`
}

func (t TransportConfig) Serial() asicio.Config {
	return asicio.Config{Driver: t.Driver, Port: t.Port, Baud: t.Baud}
}

// ---- RESET ----

type ResetConfig struct {
	Backend string `yaml:"backend"`
	Pin     int    `yaml:"pin"`
	Chip    string `yaml:"chip"`
	// Line is the periph pin name
	Line     string `yaml:"line"`
	HoldMs   int    `yaml:"hold_ms"`
	SettleMs int    `yaml:"settle_ms"`
}

func (r ResetConfig) PowerState() powerstate.Config {
	return powerstate.Config{Backend: r.Backend, Chip: r.Chip, Pin: r.Pin, Name: r.Line}
}

// ---- TIMING ----

type TimingConfig struct {
	Retries       int `yaml:"retries"`
	AckTimeoutMs  int `yaml:"ack_timeout_ms"`
	PollTimeoutMs int `yaml:"poll_timeout_ms"`
	StaleJobSec   int `yaml:"stale_job_sec"`
}

// ---- API / LOG ----

type APIConfig struct {
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Debug bool `yaml:"debug"`
}

// Parse decodes, validates and normalizes a YAML document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	Normalize(&cfg)
	return &cfg, nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}
