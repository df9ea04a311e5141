package bm13xx

import (
	"testing"

	"asic_chain/device/chip"
)

func TestDomainBaudSequence(t *testing.T) {
	g := chip.Geometry{Chips: 4, Domains: 2, AsicsPerDomain: 2, Interval: 64}
	seq := DomainBaudSequence(115200, g)
	if len(seq) != 9 {
		t.Fatalf("len(seq)=%d, want 9", len(seq))
	}

	relays := map[uint8]uint32{}
	for _, c := range seq {
		if c.Reg == UARTRelay {
			if c.Dest.All {
				t.Fatalf("relay write is broadcast")
			}
			relays[c.Dest.Addr] = c.Value
		}
	}
	want := map[uint8]uint32{0: 0x0012_0003, 64: 0x0012_0003, 128: 0x0010_0003, 192: 0x0010_0003}
	for addr, v := range want {
		if relays[addr] != v {
			t.Fatalf("relay[0x%02x]=0x%08x, want 0x%08x", addr, relays[addr], v)
		}
	}

	last := seq[len(seq)-1]
	if last.Reg != FastUARTConfiguration || last.Value != 0x0130_1a00 || !last.Dest.All {
		t.Fatalf("last write %+v", last)
	}
}

func TestDomainBaudSequenceHighSpeed(t *testing.T) {
	g := chip.Geometry{Chips: 1, Interval: 256}

	last := DomainBaudSequence(3_125_000, g)
	if v := last[len(last)-1]; v.Reg != FastUARTConfiguration || v.Value != 0x0130_0000 {
		t.Fatalf("3.125M last write %+v", v)
	}

	last = DomainBaudSequence(6_000_000, g)
	if v := last[len(last)-1]; v.Reg != PLL3Parameter || v.Value != 0xc070_0111 {
		t.Fatalf("6M last write %+v", v)
	}

	if seq := DomainBaudSequence(115200, chip.Geometry{}); seq != nil {
		t.Fatalf("empty chain got %d writes", len(seq))
	}
}

func TestResetCoreSequence(t *testing.T) {
	if seq := ResetCoreSequence(chip.Broadcast()); seq != nil {
		t.Fatalf("broadcast reset got %d writes", len(seq))
	}
	seq := ResetCoreSequence(chip.Unicast(8))
	if len(seq) != 5 {
		t.Fatalf("len(seq)=%d", len(seq))
	}
	if seq[0].Reg != RegA8 || seq[0].Value != 0x0007_01f0 {
		t.Fatalf("first write %+v", seq[0])
	}
	if seq[1].Reg != MiscControl || seq[1].Value != 0x0000_f100 {
		t.Fatalf("misc write %+v", seq[1])
	}
	for _, c := range seq {
		if c.Dest != chip.Unicast(8) {
			t.Fatalf("write to %v", c.Dest)
		}
	}
}
