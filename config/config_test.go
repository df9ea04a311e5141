package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"periph.io/x/conn/v3/physic"

	"asic_chain/device/asicio"
	"asic_chain/device/powerstate"
)

const sample = `
transport:
  driver: goburrow
  baud: 115200
  work_baud: 1000000
reset:
  backend: sysfs
  pin: 335
timing:
  retries: 4
  ack_timeout_ms: 150
api:
  listen: 127.0.0.1:5000
log:
  debug: true
boards:
  - id: 1
    model: BM1366
    expected_chips: 12
    domains: 4
    asics_per_domain: 3
    difficulty: 1000
    version_mask: 0x1fffe000
    frequency: 525MHz
    transport:
      port: /dev/ttyS1
  - id: 2
    model: BM1397
    transport:
      driver: sim
      sim_chips: 3
    reset:
      backend: none
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("parse err=%v", err)
	}
	if len(cfg.Boards) != 2 || cfg.Timing.Retries != 4 || !cfg.Log.Debug || cfg.API.Listen != "127.0.0.1:5000" {
		t.Fatalf("cfg %+v", cfg)
	}

	b := cfg.Boards[0]
	if b.VersionMask != 0x1fffe000 || b.Difficulty != 512 || b.Name != "board1" {
		t.Fatalf("board %+v", b)
	}
	f, err := b.HashFrequency()
	if err != nil || f != 525*physic.MegaHertz {
		t.Fatalf("frequency %v err=%v", f, err)
	}
	tr := b.Transport.Serial()
	if tr.Driver != asicio.DriverGoburrow || tr.Port != "/dev/ttyS1" || tr.Baud != 115200 || b.Transport.WorkBaud != 1_000_000 {
		t.Fatalf("transport %+v", b.Transport)
	}
	if b.Reset.PowerState() != (powerstate.Config{Backend: powerstate.BackendSysfs, Pin: 335}) || b.Reset.HoldMs != defaultHoldMs {
		t.Fatalf("reset %+v", b.Reset)
	}

	b = cfg.Boards[1]
	if b.Transport.Driver != DriverSim || b.Transport.SimChips != 3 || b.Reset.Backend != powerstate.BackendNone {
		t.Fatalf("board 2 transport %+v reset %+v", b.Transport, b.Reset)
	}
	if b.Difficulty != defaultDifficulty {
		t.Fatalf("difficulty %d", b.Difficulty)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.yaml")
	if err := os.WriteFile(path, []byte(sample), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("load err=%v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("missing file loaded")
	}
}

func simBoard(id uint) BoardConfig {
	return BoardConfig{ID: id, Model: "BM1366", Transport: &TransportConfig{Driver: DriverSim}}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"no boards", Config{}, "boards"},
		{"duplicate id", Config{Boards: []BoardConfig{simBoard(1), simBoard(1)}}, "boards[1].id"},
		{"bad model", Config{Boards: []BoardConfig{{ID: 1, Model: "BM1387"}}}, "boards[0].model"},
		{"bad driver", Config{Transport: TransportConfig{Driver: "usb"}, Boards: []BoardConfig{simBoard(1)}}, "transport.driver"},
		{"no port", Config{Boards: []BoardConfig{{ID: 1, Model: "BM1370"}}}, "no serial port"},
		{"shared port", Config{
			Transport: TransportConfig{Port: "/dev/ttyS0"},
			Boards:    []BoardConfig{{ID: 1, Model: "BM1370"}, {ID: 2, Model: "BM1370"}},
		}, "already used"},
		{"half domains", Config{Boards: []BoardConfig{func() BoardConfig {
			b := simBoard(1)
			b.Domains = 2
			return b
		}()}}, "set together"},
		{"bad frequency", Config{Boards: []BoardConfig{func() BoardConfig {
			b := simBoard(1)
			b.Frequency = "fast"
			return b
		}()}}, "boards[0].frequency"},
		{"sysfs without pin", Config{Reset: ResetConfig{Backend: "sysfs"}, Boards: []BoardConfig{simBoard(1)}}, "reset.pin"},
		{"periph without line", Config{Boards: []BoardConfig{func() BoardConfig {
			b := simBoard(1)
			b.Reset = &ResetConfig{Backend: "periph"}
			return b
		}()}}, "boards[0].reset.line"},
		{"negative timing", Config{Timing: TimingConfig{Retries: -1}, Boards: []BoardConfig{simBoard(1)}}, "timing"},
	}
	for _, tt := range tests {
		err := Validate(&tt.cfg)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("%s: err=%v, want %q", tt.name, err, tt.want)
		}
	}

	ok := Config{Boards: []BoardConfig{simBoard(1), simBoard(2)}}
	if err := Validate(&ok); err != nil {
		t.Fatalf("valid config err=%v", err)
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := Config{Boards: []BoardConfig{simBoard(7)}}
	Normalize(&cfg)
	if cfg.API.Listen != defaultListen || cfg.Reset.Backend != powerstate.BackendNone || cfg.Transport.Baud != 115200 {
		t.Fatalf("cfg %+v", cfg)
	}
	b := cfg.Boards[0]
	if b.Transport.Driver != DriverSim || b.Transport.Baud != 115200 || b.Reset.SettleMs != defaultSettleMs {
		t.Fatalf("board %+v %+v", b.Transport, b.Reset)
	}
}
