package bm13xx

import (
	"errors"
	"testing"

	"asic_chain/device/chip"
)

func TestDecodeResponse(t *testing.T) {
	raw := EncodeRegisterResponse(RSP_LEN_LONG, 0x1370_0000, 0x04, ChipIdentification)
	f, err := DecodeResponse(raw, RSP_LEN_LONG)
	if err != nil {
		t.Fatalf("decode err=%v", err)
	}
	if f.Kind != chip.RegisterFrame || f.ChipAddr != 0x04 || f.Value != 0x13700000 {
		t.Fatalf("unexpected frame %+v", f)
	}

	raw = EncodeNonceResponse(RSP_LEN_LONG, 0x12345678, 0x00, 0x31, 0x0002)
	f, err = DecodeResponse(raw, RSP_LEN_LONG)
	if err != nil {
		t.Fatalf("decode nonce err=%v", err)
	}
	if f.Kind != chip.NonceFrame || f.Nonce() != 0x12345678 || f.JobID != 0x31 || f.Version != 2 {
		t.Fatalf("unexpected nonce frame %+v", f)
	}

	raw[4] ^= 0x40
	if _, err = DecodeResponse(raw, RSP_LEN_LONG); !errors.Is(err, ErrChecksum) {
		t.Fatalf("corrupted frame err=%v, want %v", err, ErrChecksum)
	}

	if _, err = DecodeResponse(raw[:9], RSP_LEN_LONG); !errors.Is(err, ErrFrameLength) {
		t.Fatalf("short frame err=%v, want %v", err, ErrFrameLength)
	}
}

func TestSplitterPartialFrame(t *testing.T) {
	raw := EncodeRegisterResponse(RSP_LEN_SHORT, 0x1397_0000, 0x00, 0x00)
	s := NewSplitter(RSP_LEN_SHORT)

	s.Feed(raw[:4])
	if _, ok := s.Next(); ok {
		t.Fatalf("frame returned from partial bytes")
	}
	if s.Buffered() != 4 {
		t.Fatalf("buffered %d, want 4", s.Buffered())
	}

	s.Feed(raw[4:])
	frame, ok := s.Next()
	if !ok || len(frame) != RSP_LEN_SHORT {
		t.Fatalf("no frame after completing bytes")
	}
	if _, err := DecodeResponse(frame, RSP_LEN_SHORT); err != nil {
		t.Fatalf("decode err=%v", err)
	}
}

func TestSplitterResync(t *testing.T) {
	good := EncodeRegisterResponse(RSP_LEN_LONG, 0x1366_0000, 0x02, 0x00)

	// junk, then a frame missing one byte, then a good frame
	stream := []byte{0x00, 0x13}
	lossy := EncodeRegisterResponse(RSP_LEN_LONG, 0x1366_0000, 0x01, 0x00)
	stream = append(stream, lossy[:5]...)
	stream = append(stream, lossy[6:]...)
	stream = append(stream, good...)

	s := NewSplitter(RSP_LEN_LONG)
	s.Feed(stream)

	var decoded []chip.Frame
	bad := 0
	for {
		frame, ok := s.Next()
		if !ok {
			break
		}
		f, err := DecodeResponse(frame, RSP_LEN_LONG)
		if err != nil {
			bad++
			continue
		}
		decoded = append(decoded, f)
	}

	if bad != 1 {
		t.Fatalf("bad frames %d, want 1", bad)
	}
	if len(decoded) != 1 || decoded[0].ChipAddr != 0x02 {
		t.Fatalf("decoded %+v, want the good frame only", decoded)
	}
	if s.Junk() != 2 {
		t.Fatalf("junk %d, want 2", s.Junk())
	}
}

func TestSplitterLossyFrameThenSplitRead(t *testing.T) {
	good := EncodeNonceResponse(RSP_LEN_LONG, 0x0200_0000, 0, 0x10, 0)
	lossy := EncodeNonceResponse(RSP_LEN_LONG, 0x0100_0000, 0, 0x08, 0)
	lossy = append(lossy[:4:4], lossy[5:]...)

	s := NewSplitter(RSP_LEN_LONG)
	valid := 0
	drain := func() {
		for {
			frame, ok := s.Next()
			if !ok {
				return
			}
			if f, err := DecodeResponse(frame, RSP_LEN_LONG); err == nil && f.Nonce() == 0x0200_0000 {
				valid++
			}
		}
	}

	// the read ends on the first preamble byte of the good frame
	s.Feed(append(lossy, good[0]))
	drain()
	s.Feed(good[1:])
	drain()

	if valid != 1 {
		t.Fatalf("valid frames %d, want 1 (junk %d)", valid, s.Junk())
	}
	if s.Buffered() != 0 {
		t.Fatalf("buffered %d after drain", s.Buffered())
	}
}
