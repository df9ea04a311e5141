package bm13xx

import (
	"encoding/binary"
	"fmt"

	"asic_chain/device/chip"
)

const (
	// RSP_LEN_SHORT is the response length of chips without version rolling.
	RSP_LEN_SHORT = 9
	// RSP_LEN_LONG adds the two rolled version bytes.
	RSP_LEN_LONG = 11

	rspJobFlag = 0x80
	rspCrcMask = 0x1f
)

// DecodeResponse parses one response frame of length respLen:
// AA 55 value[4] d0 d1 [version[2]] flags|crc5.
func DecodeResponse(raw []byte, respLen int) (chip.Frame, error) {
	var f chip.Frame

	if len(raw) != respLen {
		return f, fmt.Errorf("%w: %d bytes, want %d", ErrFrameLength, len(raw), respLen)
	}
	if raw[0] != RSP_PREAMBLE0 || raw[1] != RSP_PREAMBLE1 {
		return f, ErrPreamble
	}
	last := raw[respLen-1]
	if CRC5(raw[2:respLen-1]) != last&rspCrcMask {
		return f, fmt.Errorf("%w: % x", ErrChecksum, raw)
	}

	f.Value = binary.BigEndian.Uint32(raw[2:6])
	if last&rspJobFlag != 0 {
		f.Kind = chip.NonceFrame
		f.Midstate = raw[6]
		f.JobID = raw[7]
		if respLen == RSP_LEN_LONG {
			f.Version = binary.BigEndian.Uint16(raw[8:10])
		}
		return f, nil
	}

	f.Kind = chip.RegisterFrame
	f.ChipAddr = raw[6]
	f.Reg = raw[7]
	return f, nil
}

func encodeResponse(respLen int, value uint32, d0, d1 uint8, version uint16, flags uint8) []byte {
	raw := make([]byte, respLen)
	raw[0], raw[1] = RSP_PREAMBLE0, RSP_PREAMBLE1
	binary.BigEndian.PutUint32(raw[2:6], value)
	raw[6], raw[7] = d0, d1
	if respLen == RSP_LEN_LONG {
		binary.BigEndian.PutUint16(raw[8:10], version)
	}
	raw[respLen-1] = flags | CRC5(raw[2:respLen-1])
	return raw
}

// EncodeRegisterResponse builds the frame a chip sends back for a register read.
func EncodeRegisterResponse(respLen int, value uint32, chipAddr, reg uint8) []byte {
	return encodeResponse(respLen, value, chipAddr, reg, 0, 0)
}

// EncodeNonceResponse builds the frame a chip sends back when it finds a nonce.
func EncodeNonceResponse(respLen int, nonce uint32, midstate, jobID uint8, version uint16) []byte {
	return encodeResponse(respLen, nonce, midstate, jobID, version, rspJobFlag)
}

// Splitter reassembles fixed-length response frames from raw UART bytes.
// It resyncs on the AA 55 preamble and keeps a partial frame until more
// bytes arrive.
type Splitter struct {
	respLen int
	buf     []byte
	junk    int
}

func NewSplitter(respLen int) *Splitter {
	return &Splitter{respLen: respLen}
}

func (s *Splitter) Feed(b []byte) {
	s.buf = append(s.buf, b...)
}

func (s *Splitter) Buffered() int {
	return len(s.buf)
}

// Junk is the number of bytes dropped while looking for a preamble.
func (s *Splitter) Junk() int {
	return s.junk
}

func (s *Splitter) Reset() {
	s.buf = s.buf[:0]
}

func (s *Splitter) findPreamble(from int) int {
	for i := from; i+1 < len(s.buf); i++ {
		if s.buf[i] == RSP_PREAMBLE0 && s.buf[i+1] == RSP_PREAMBLE1 {
			return i
		}
	}
	return -1
}

// Next returns the next candidate frame. A candidate failing its checksum
// is cut short at the next preamble inside it, so that one lost byte does
// not swallow the following good frame; the caller sees it fail Decode.
func (s *Splitter) Next() ([]byte, bool) {
	idx := s.findPreamble(0)
	if idx < 0 {
		// keep a trailing AA, it may start the next preamble
		keep := 0
		if n := len(s.buf); n > 0 && s.buf[n-1] == RSP_PREAMBLE0 {
			keep = 1
		}
		s.junk += len(s.buf) - keep
		s.buf = append(s.buf[:0], s.buf[len(s.buf)-keep:]...)
		return nil, false
	}
	if idx > 0 {
		s.junk += idx
		s.buf = append(s.buf[:0], s.buf[idx:]...)
	}
	if len(s.buf) < s.respLen {
		return nil, false
	}

	n := s.respLen
	if CRC5(s.buf[2:n-1]) != s.buf[n-1]&rspCrcMask {
		if j := s.findPreamble(2); j > 0 && j < n {
			n = j
		} else if len(s.buf) == n && s.buf[n-1] == RSP_PREAMBLE0 {
			// the read ended on the first preamble byte of the next frame
			n--
		}
	}

	frame := make([]byte, n)
	copy(frame, s.buf[:n])
	s.buf = append(s.buf[:0], s.buf[n:]...)
	return frame, true
}
