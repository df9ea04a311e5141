package powerstate

import (
	"context"
	"errors"
	"testing"
	"time"

	"asic_chain/device/asiccommon"
)

type recordPin struct {
	levels []int
	closed int
	err    error
}

func (p *recordPin) write(level int) error {
	if p.err != nil {
		return p.err
	}
	p.levels = append(p.levels, level)
	return nil
}

func (p *recordPin) close() error {
	p.closed++
	return nil
}

func TestOpenNone(t *testing.T) {
	for _, b := range []string{"", BackendNone} {
		l, err := Open(Config{Backend: b})
		if err != nil {
			t.Fatalf("backend %q err=%v", b, err)
		}
		if err := l.Assert(); err != nil || !l.Asserted() {
			t.Fatalf("assert err=%v asserted=%v", err, l.Asserted())
		}
		if err := l.Release(); err != nil || l.Asserted() {
			t.Fatalf("release err=%v asserted=%v", err, l.Asserted())
		}
		if l.String() != BackendNone {
			t.Fatalf("name %q", l.String())
		}
	}
}

func TestOpenErrors(t *testing.T) {
	if _, err := Open(Config{Backend: "relay"}); !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("err=%v", err)
	}
	tests := []Config{
		{Backend: BackendSysfs},
		{Backend: BackendGpiod, Pin: 3},
		{Backend: BackendPeriph},
	}
	for _, cfg := range tests {
		if _, err := Open(cfg); !errors.Is(err, ErrNoPin) {
			t.Fatalf("%+v err=%v", cfg, err)
		}
	}
}

func TestPulseLevels(t *testing.T) {
	p := &recordPin{}
	l := &Line{name: "test", pin: p}

	if err := asiccommon.PulseReset(context.Background(), l, time.Millisecond, 0); err != nil {
		t.Fatalf("pulse err=%v", err)
	}
	if len(p.levels) != 2 || p.levels[0] != 0 || p.levels[1] != 1 {
		t.Fatalf("levels %v", p.levels)
	}

	_ = l.Close()
	_ = l.Close()
	if p.closed != 1 {
		t.Fatalf("closed %d times", p.closed)
	}
	if err := l.Assert(); err == nil {
		t.Fatalf("assert after close")
	}
}

func TestWriteError(t *testing.T) {
	boom := errors.New("ebusy")
	l := &Line{name: "test", pin: &recordPin{err: boom}}
	if err := l.Assert(); !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	if l.Asserted() {
		t.Fatalf("failed write marked asserted")
	}
}
