package sim

import (
	"context"
	"testing"
	"time"

	"asic_chain/device/bm13xx"
	"asic_chain/device/chip"
)

func readFrames(t *testing.T, c *Chain, timeout time.Duration) []chip.Frame {
	t.Helper()
	raw, err := c.ReadAvailable(context.Background(), timeout)
	if err != nil {
		t.Fatalf("read err=%v", err)
	}
	s := bm13xx.NewSplitter(bm13xx.RSP_LEN_LONG)
	s.Feed(raw)
	var out []chip.Frame
	for {
		b, ok := s.Next()
		if !ok {
			return out
		}
		f, err := bm13xx.DecodeResponse(b, bm13xx.RSP_LEN_LONG)
		if err != nil {
			t.Fatalf("decode err=%v", err)
		}
		out = append(out, f)
	}
}

func TestAddressing(t *testing.T) {
	ctx := context.Background()
	c := New(0x1366, bm13xx.RSP_LEN_LONG, 3)

	_ = c.Write(ctx, bm13xx.ReadRegister(chip.Broadcast(), bm13xx.ChipIdentification))
	if got := readFrames(t, c, 10*time.Millisecond); len(got) != 3 {
		t.Fatalf("probe got %d frames", len(got))
	}

	_ = c.Write(ctx, bm13xx.ChainInactive())
	for _, addr := range []uint8{0, 85, 170} {
		_ = c.Write(ctx, bm13xx.SetChipAddress(addr))
	}
	for pos, want := range []uint8{0, 85, 170} {
		if addr, ok := c.Chip(pos); !ok || addr != want {
			t.Fatalf("chip %d addr=%d ok=%v", pos, addr, ok)
		}
	}

	_ = c.Write(ctx, bm13xx.ReadRegister(chip.Unicast(85), bm13xx.ChipIdentification))
	got := readFrames(t, c, 10*time.Millisecond)
	if len(got) != 1 || got[0].ChipAddr != 85 || got[0].Value>>16 != 0x1366 {
		t.Fatalf("unicast read got %+v", got)
	}

	_ = c.Write(ctx, bm13xx.ReadRegister(chip.Unicast(7), bm13xx.ChipIdentification))
	if got := readFrames(t, c, 5*time.Millisecond); len(got) != 0 {
		t.Fatalf("read of unknown address answered: %+v", got)
	}
}

func TestRegisterWrite(t *testing.T) {
	ctx := context.Background()
	c := New(0x1370, bm13xx.RSP_LEN_LONG, 2)
	_ = c.Write(ctx, bm13xx.ChainInactive())
	_ = c.Write(ctx, bm13xx.SetChipAddress(0))
	_ = c.Write(ctx, bm13xx.SetChipAddress(128))

	_ = c.Write(ctx, bm13xx.WriteRegister(chip.Broadcast(), bm13xx.TicketMask, 0xff))
	_ = c.Write(ctx, bm13xx.WriteRegister(chip.Unicast(128), bm13xx.MiscControl, 0x1234))
	if c.Register(0, bm13xx.TicketMask) != 0xff || c.Register(1, bm13xx.TicketMask) != 0xff {
		t.Fatalf("broadcast write not applied")
	}
	if c.Register(0, bm13xx.MiscControl) != 0 || c.Register(1, bm13xx.MiscControl) != 0x1234 {
		t.Fatalf("unicast write applied to the wrong chip")
	}
}

func TestAckDelay(t *testing.T) {
	ctx := context.Background()
	c := New(0x1366, bm13xx.RSP_LEN_LONG, 1, WithAckDelay(0, 30*time.Millisecond))
	_ = c.Write(ctx, bm13xx.SetChipAddress(0))
	_ = c.Write(ctx, bm13xx.ReadRegister(chip.Unicast(0), bm13xx.ChipIdentification))

	if got := readFrames(t, c, 5*time.Millisecond); len(got) != 0 {
		t.Fatalf("delayed ack arrived early")
	}
	if got := readFrames(t, c, 200*time.Millisecond); len(got) != 1 {
		t.Fatalf("delayed ack not delivered, got %d", len(got))
	}
	ev := c.Events()
	if len(ev) != 2 || ev[0].Kind != EventAssign || ev[1].Kind != EventAck {
		t.Fatalf("events %+v", ev)
	}
}

func TestReadCancel(t *testing.T) {
	c := New(0x1366, bm13xx.RSP_LEN_LONG, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if _, err := c.ReadAvailable(ctx, time.Minute); err != context.Canceled {
		t.Fatalf("err=%v, want %v", err, context.Canceled)
	}
}

func TestGarbageWrite(t *testing.T) {
	c := New(0x1366, bm13xx.RSP_LEN_LONG, 1)
	_ = c.Write(context.Background(), []byte{0x00, 0x01})
	if c.Garbage() != 1 || c.WriteCount() != 1 {
		t.Fatalf("garbage=%d writes=%d", c.Garbage(), c.WriteCount())
	}
}
