package bm13xx

import (
	"bytes"
	"testing"

	"asic_chain/device/chip"
)

func TestCRC16CheckValue(t *testing.T) {
	if got := CRC16([]byte("123456789")); got != 0x29b1 {
		t.Fatalf("crc16 check value 0x%04x, want 0x29b1", got)
	}
}

func TestCommandFrames(t *testing.T) {
	tests := []struct {
		name string
		got  []byte
		want []byte
	}{
		{"chain inactive", ChainInactive(), []byte{0x55, 0xaa, 0x53, 0x05, 0x00, 0x00, 0x03}},
		{"read chip id", ReadRegister(chip.Broadcast(), ChipIdentification), []byte{0x55, 0xaa, 0x52, 0x05, 0x00, 0x00, 0x0a}},
		{"set address 0", SetChipAddress(0), []byte{0x55, 0xaa, 0x40, 0x05, 0x00, 0x00, 0x1c}},
		{"core reg 11", WriteRegister(chip.Broadcast(), CoreRegisterControl, WriteCoreReg(0, CoreReg11, 0)),
			[]byte{0x55, 0xaa, 0x51, 0x09, 0x00, 0x3c, 0x80, 0x00, 0x8b, 0x00, 0x12}},
		{"ticket mask 256", WriteRegister(chip.Broadcast(), TicketMask, TicketMaskFor(256)),
			[]byte{0x55, 0xaa, 0x51, 0x09, 0x00, 0x14, 0x00, 0x00, 0x00, 0xff, 0x08}},
		{"io driver unicast", WriteRegister(chip.Unicast(0xb4), IoDriverStrenghtConfiguration, 0x0001_3111),
			[]byte{0x55, 0xaa, 0x41, 0x09, 0xb4, 0x58, 0x00, 0x01, 0x31, 0x11, 0x00}},
		{"fast uart", WriteRegister(chip.Broadcast(), FastUARTConfiguration, 0x0130_0000),
			[]byte{0x55, 0xaa, 0x51, 0x09, 0x00, 0x28, 0x01, 0x30, 0x00, 0x00, 0x1a}},
	}

	for _, tt := range tests {
		if !bytes.Equal(tt.got, tt.want) {
			t.Fatalf("%s: got % x, want % x", tt.name, tt.got, tt.want)
		}
	}
}

func TestParseCommand(t *testing.T) {
	c, err := ParseCommand(WriteRegister(chip.Unicast(0x08), PLL0Parameter, 0x40a0_0241))
	if err != nil {
		t.Fatalf("parse write err=%v", err)
	}
	if c.Kind != CMD_WRITE || c.Dest.All || c.Dest.Addr != 0x08 || c.Reg != PLL0Parameter || c.Value != 0x40a00241 {
		t.Fatalf("unexpected command %+v", c)
	}

	job := EncodeJob(24, HeaderJob{NumMidstates: 1, NBits: 0x1703a30c}.Bytes())
	if job[2] != 0x21 || job[3] != 0x56 || len(job) != 88 {
		t.Fatalf("job header % x len %d", job[:4], len(job))
	}
	c, err = ParseCommand(job)
	if err != nil {
		t.Fatalf("parse job err=%v", err)
	}
	if !c.Job || c.JobID != 24 || len(c.Data) != HeaderJobLen {
		t.Fatalf("unexpected job %+v", c)
	}

	job[10] ^= 0x01
	if _, err = ParseCommand(job); err != ErrChecksum {
		t.Fatalf("corrupted job err=%v, want %v", err, ErrChecksum)
	}
}
