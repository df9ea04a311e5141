package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"asic_chain/config"
	"asic_chain/device"
	"asic_chain/device/bm13xx"
	"asic_chain/version"
)

const benchConfig = `
transport:
  driver: sim
  work_baud: 1000000
reset:
  hold_ms: 1
  settle_ms: 1
timing:
  retries: 2
  ack_timeout_ms: 50
boards:
  - id: 1
    model: BM1366
    expected_chips: 4
    transport:
      sim_chips: 4
  - id: 2
    model: BM1397
    disabled: true
    transport:
      sim_chips: 2
`

func TestBuildBoards(t *testing.T) {
	cfg, err := config.Parse([]byte(benchConfig))
	if err != nil {
		t.Fatalf("parse err=%v", err)
	}
	boards, err := buildBoards(cfg)
	if err != nil || len(boards) != 2 {
		t.Fatalf("boards %d err=%v", len(boards), err)
	}
	defer func() {
		for _, b := range boards {
			_ = b.Close()
		}
	}()

	b := boards[0]
	if err := b.Init(context.Background()); err != nil {
		t.Fatalf("init err=%v", err)
	}
	if b.Status() != device.STATUS_ALIVE || b.Chain.Stats().Chips != 4 || b.Chain.BusMode().Baud != 1_000_000 {
		t.Fatalf("summary %+v", b.Summary())
	}
	if boards[1].Enabled() || boards[1].Chain.Model().Name() != "BM1397" {
		t.Fatalf("board 2 %+v", boards[1].Summary())
	}
	if _, err := b.Submit(context.Background(), testWork("BM1366", 1)); err != nil {
		t.Fatalf("submit err=%v", err)
	}
}

func TestBuildBoardsOpenFailure(t *testing.T) {
	cfg, err := config.Parse([]byte(`
transport:
  driver: termios
  port: /nonexistent/ttyS9
boards:
  - id: 1
    model: BM1370
`))
	if err != nil {
		t.Fatalf("parse err=%v", err)
	}
	if _, err := buildBoards(cfg); err == nil || !strings.Contains(err.Error(), "board 1") {
		t.Fatalf("err=%v", err)
	}
}

func TestChainOptions(t *testing.T) {
	b := config.BoardConfig{ExpectedChips: 8, Domains: 2, AsicsPerDomain: 4}
	if n := len(chainOptions(config.TimingConfig{}, b)); n != 2 {
		t.Fatalf("%d options", n)
	}
	tm := config.TimingConfig{Retries: 1, AckTimeoutMs: 1, PollTimeoutMs: 1, StaleJobSec: 1}
	if n := len(chainOptions(tm, config.BoardConfig{})); n != 4 {
		t.Fatalf("%d options", n)
	}
}

func TestTestWork(t *testing.T) {
	if err := bm13xx.CheckHeaderPayload(testWork("BM1370", 3).Payload); err != nil {
		t.Fatalf("header err=%v", err)
	}
	w := testWork("BM1397", 3)
	if err := bm13xx.CheckMidstatePayload(w.Payload); err != nil || w.Tag != "test-3" {
		t.Fatalf("midstate %q err=%v", w.Tag, err)
	}
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute err=%v", err)
	}
	var v version.VersionConfig
	if err := json.Unmarshal(out.Bytes(), &v); err != nil || v.Agent != version.Agent {
		t.Fatalf("output %q err=%v", out.String(), err)
	}
}
