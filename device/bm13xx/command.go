package bm13xx

import (
	"encoding/binary"
	"errors"
	"fmt"

	"asic_chain/device/chip"
)

const (
	CMD_PREAMBLE0 = 0x55
	CMD_PREAMBLE1 = 0xAA
	RSP_PREAMBLE0 = 0xAA
	RSP_PREAMBLE1 = 0x55

	TYPE_JOB  uint8 = 0x20
	TYPE_CMD  uint8 = 0x40
	GROUP_ALL uint8 = 0x10

	CMD_SETADDRESS uint8 = 0x00
	CMD_WRITE      uint8 = 0x01
	CMD_READ       uint8 = 0x02
	CMD_INACTIVE   uint8 = 0x03

	// header, length and crc5 bytes around the command data
	cmdOverhead = 3
	// header, length and crc16 bytes around the job data
	jobOverhead = 4
)

var (
	ErrChecksum    = errors.New("checksum mismatch")
	ErrFrameLength = errors.New("bad frame length")
	ErrPreamble    = errors.New("bad preamble")
	ErrPayload     = errors.New("bad job payload")
)

func header(kind uint8, dest chip.Destination) uint8 {
	h := TYPE_CMD | kind
	if dest.All {
		h |= GROUP_ALL
	}
	return h
}

// EncodeCommand frames a command: 55 AA hdr len data... crc5.
func EncodeCommand(hdr uint8, data []byte) []byte {
	frame := make([]byte, 0, 4+len(data)+1)
	frame = append(frame, CMD_PREAMBLE0, CMD_PREAMBLE1, hdr, uint8(len(data)+cmdOverhead))
	frame = append(frame, data...)
	return append(frame, CRC5(frame[2:]))
}

func ChainInactive() []byte {
	return EncodeCommand(header(CMD_INACTIVE, chip.Broadcast()), []byte{0x00, 0x00})
}

// SetChipAddress is taken by the first chip that has no address yet.
func SetChipAddress(addr uint8) []byte {
	return EncodeCommand(header(CMD_SETADDRESS, chip.Unicast(addr)), []byte{addr, 0x00})
}

func ReadRegister(dest chip.Destination, reg uint8) []byte {
	return EncodeCommand(header(CMD_READ, dest), []byte{dest.Addr, reg})
}

func WriteRegister(dest chip.Destination, reg uint8, value uint32) []byte {
	data := []byte{dest.Addr, reg, 0, 0, 0, 0}
	binary.BigEndian.PutUint32(data[2:], value)
	return EncodeCommand(header(CMD_WRITE, dest), data)
}

// EncodeJob frames a job: 55 AA 21 len job_id payload... crc16.
func EncodeJob(jobID uint8, payload []byte) []byte {
	frame := make([]byte, 0, 2+jobOverhead+1+len(payload))
	frame = append(frame, CMD_PREAMBLE0, CMD_PREAMBLE1, TYPE_JOB|CMD_WRITE, uint8(1+len(payload)+jobOverhead), jobID)
	frame = append(frame, payload...)
	crc := CRC16(frame[2:])
	return append(frame, uint8(crc>>8), uint8(crc))
}

// Command is a parsed command frame, as a chip on the bus sees it.
type Command struct {
	Job   bool
	Kind  uint8
	Dest  chip.Destination
	Reg   uint8
	Value uint32
	JobID uint8
	Data  []byte
}

func (c Command) String() string {
	if c.Job {
		return fmt.Sprintf("job id=%d len=%d", c.JobID, len(c.Data))
	}
	switch c.Kind {
	case CMD_SETADDRESS:
		return fmt.Sprintf("set_address 0x%02x", c.Dest.Addr)
	case CMD_WRITE:
		return fmt.Sprintf("write %s reg=0x%02x val=0x%08x", c.Dest, c.Reg, c.Value)
	case CMD_READ:
		return fmt.Sprintf("read %s reg=0x%02x", c.Dest, c.Reg)
	case CMD_INACTIVE:
		return "chain_inactive"
	}
	return fmt.Sprintf("cmd 0x%02x", c.Kind)
}

// CommandLen returns the total length of the command frame starting at b,
// or 0 if the header is not complete yet.
func CommandLen(b []byte) int {
	if len(b) < 4 {
		return 0
	}
	return 2 + int(b[3])
}

// ParseCommand checks and parses one complete command frame.
func ParseCommand(b []byte) (Command, error) {
	var c Command

	if len(b) < 4 || b[0] != CMD_PREAMBLE0 || b[1] != CMD_PREAMBLE1 {
		return c, ErrPreamble
	}
	if CommandLen(b) != len(b) {
		return c, ErrFrameLength
	}

	hdr := b[2]
	if hdr&TYPE_JOB != 0 && hdr&TYPE_CMD == 0 {
		if len(b) < 2+jobOverhead+1 {
			return c, ErrFrameLength
		}
		n := len(b)
		if CRC16(b[2:n-2]) != binary.BigEndian.Uint16(b[n-2:]) {
			return c, ErrChecksum
		}
		c.Job = true
		c.Dest = chip.Broadcast()
		c.JobID = b[4]
		c.Data = b[5 : n-2]
		return c, nil
	}

	n := len(b)
	if n < 7 {
		return c, ErrFrameLength
	}
	if CRC5(b[2:n-1]) != b[n-1] {
		return c, ErrChecksum
	}

	c.Kind = hdr & 0x0f
	c.Dest = chip.Destination{All: hdr&GROUP_ALL != 0, Addr: b[4]}
	c.Reg = b[5]
	if c.Kind == CMD_WRITE {
		if n != 11 {
			return c, ErrFrameLength
		}
		c.Value = binary.BigEndian.Uint32(b[6:10])
	}
	return c, nil
}
