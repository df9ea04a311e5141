package bm1366

import (
	"errors"
	"math"
	"testing"
	"time"

	"asic_chain/device/bm13xx"
	"asic_chain/device/chip"

	"periph.io/x/conn/v3/physic"
)

func TestHashrate(t *testing.T) {
	m := New()
	got := m.TheoreticalHashrate(m.DefaultFrequency())
	if math.Abs(got-62.58) > 0.001 {
		t.Fatalf("hashrate %f GH/s, want 62.58", got)
	}
}

func TestRollingDuration(t *testing.T) {
	m := New()
	d := m.RollingDuration(70*physic.MegaHertz, false, 0)
	if d < 234*time.Microsecond || d > 235*time.Microsecond {
		t.Fatalf("rolling duration %v", d)
	}
	d = m.RollingDuration(70*physic.MegaHertz, true, bm13xx.DefaultVersionMask)
	if d < 15300*time.Millisecond || d > 15400*time.Millisecond {
		t.Fatalf("rolling duration with version rolling %v", d)
	}
}

func TestNonceCorrelation(t *testing.T) {
	m := New()
	if got := m.ChipAddr(0x1234_5678, false); got != 0xd1 {
		t.Fatalf("chip addr 0x%02x, want 0xd1", got)
	}
	if got := m.ChipAddr(0x1234_5679, true); got != 0x1a {
		t.Fatalf("rolling chip addr 0x%02x, want 0x1a", got)
	}
	if got := m.CoreID(0x1234_5678); got != 0x09 {
		t.Fatalf("core id 0x%02x, want 0x09", got)
	}

	raw := bm13xx.EncodeNonceResponse(bm13xx.RSP_LEN_LONG, 0x1234_5678, 0, 0x98, 0x0003)
	fr, err := m.Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	r := m.DecodeResult(fr, true, 0)
	if r.JobID != 0x48 {
		t.Fatalf("job id 0x%02x, want 0x48", r.JobID)
	}
	if r.Version != 0x0003<<13 || r.SmallCoreID != 3 {
		t.Fatalf("version 0x%08x small core %d", r.Version, r.SmallCoreID)
	}
}

func TestSmallCoreCustomMask(t *testing.T) {
	m := New()
	raw := bm13xx.EncodeNonceResponse(bm13xx.RSP_LEN_LONG, 0x1234_5678, 0, 0x98, 5<<3)
	fr, err := m.Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r := m.DecodeResult(fr, true, 0x1fff_0000); r.SmallCoreID != 5 {
		t.Fatalf("small core %d under mask 0x1fff0000, want 5", r.SmallCoreID)
	}
	if r := m.DecodeResult(fr, true, 0); r.SmallCoreID != 0 {
		t.Fatalf("small core %d under default mask, want 0", r.SmallCoreID)
	}
}

func TestNextJobID(t *testing.T) {
	m := New()
	id := uint8(0)
	seen := map[uint8]bool{}
	for i := 0; i < 16; i++ {
		if seen[id] {
			t.Fatalf("job id %d repeated after %d steps", id, i)
		}
		seen[id] = true
		id = m.NextJobID(id)
	}
	if id != 0 {
		t.Fatalf("job id did not wrap, got %d", id)
	}
}

func TestEncodeWork(t *testing.T) {
	m := New()
	frame, err := m.EncodeWork(0x08, bm13xx.HeaderJob{NumMidstates: 1}.Bytes())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(frame) != 88 {
		t.Fatalf("frame len %d", len(frame))
	}
	if _, err := m.EncodeWork(0x08, make([]byte, 10)); !errors.Is(err, bm13xx.ErrPayload) {
		t.Fatalf("short payload err=%v", err)
	}
}

func TestInitSequence(t *testing.T) {
	seq := New().InitSequence(256, chip.Geometry{Chips: 1})
	var mask uint32
	found := false
	for _, c := range seq {
		if !c.Dest.All {
			t.Fatalf("unicast init write %+v", c)
		}
		if c.Reg == bm13xx.TicketMask {
			mask, found = c.Value, true
		}
	}
	if !found || mask != 0x0000_00ff {
		t.Fatalf("ticket mask 0x%08x found=%v", mask, found)
	}
}
