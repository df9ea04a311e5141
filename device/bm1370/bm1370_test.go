package bm1370

import (
	"testing"

	"asic_chain/device/bm13xx"
	"asic_chain/device/chip"
)

func TestModelConstants(t *testing.T) {
	m := New()
	if m.ChipID() != 0x1370 || m.Name() != "BM1370" {
		t.Fatalf("id 0x%04x name %s", m.ChipID(), m.Name())
	}
	if !m.SupportsVersionRolling() {
		t.Fatalf("BM1370 rolls versions")
	}
	id := m.NextJobID(120)
	if id != 16 {
		t.Fatalf("NextJobID(120)=%d, want 16", id)
	}
}

func TestIsIdentity(t *testing.T) {
	m := New()
	fr, err := m.Decode(bm13xx.EncodeRegisterResponse(bm13xx.RSP_LEN_LONG, 0x1370_0000, 0, bm13xx.ChipIdentification))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !m.IsIdentity(fr) {
		t.Fatalf("identity frame not recognised: %+v", fr)
	}
	fr.Value = 0x1366_0000
	if m.IsIdentity(fr) {
		t.Fatalf("BM1366 identity accepted")
	}
}

func TestInitSequence(t *testing.T) {
	seq := New().InitSequence(512, chip.Geometry{Chips: 2})
	if len(seq) != 7 {
		t.Fatalf("len(seq)=%d", len(seq))
	}
	if seq[2].Reg != bm13xx.TicketMask || seq[2].Value != 0x0000_80ff {
		t.Fatalf("ticket mask write %+v", seq[2])
	}
	if seq[1].Value != 0x8000_8010 {
		t.Fatalf("clock delay write 0x%08x", seq[1].Value)
	}
}

func TestVersionRollingSequence(t *testing.T) {
	g := chip.Geometry{Chips: 2, Interval: 128}
	seq := New().VersionRollingSequence(bm13xx.DefaultVersionMask, g)
	if len(seq) != 4 {
		t.Fatalf("len(seq)=%d", len(seq))
	}
	if seq[1].Dest != chip.Unicast(128) || seq[1].Value != 0x8000_8000 {
		t.Fatalf("second offset %+v", seq[1])
	}
	if seq[3].Reg != bm13xx.VersionRolling || seq[3].Value != 0x9000_ffff {
		t.Fatalf("rolling write %+v", seq[3])
	}
}
