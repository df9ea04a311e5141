// Package bm1397 is the register and job model of the BM1397 (S17/T17).
// It has no hardware version rolling; the host sends up to four
// midstates per job instead.
package bm1397

import (
	"time"

	"asic_chain/device/bm13xx"
	"asic_chain/device/chip"

	"periph.io/x/conn/v3/physic"
)

const (
	CHIP_ID        = 0x1397
	CORE_CNT       = 168
	SMALL_CORE_CNT = 672

	// Core id in Nonce[31:24], small core id in Nonce[23:22].
	NONCE_CORES_BITS       = 8
	NONCE_SMALL_CORES_BITS = 2

	miscInit   = 0x0000_7a31
	miscBase   = 0x0000_6031
	miscBT8DLo = 8
	bt8dMask   = 0x1f
)

type BM1397 struct {
	bm13xx.Family
}

var _ chip.Model = (*BM1397)(nil)

func New() *BM1397 {
	return &BM1397{Family: bm13xx.Family{
		ModelName:     "BM1397",
		ID:            CHIP_ID,
		RespLen:       bm13xx.RSP_LEN_SHORT,
		Cores:         CORE_CNT,
		SmallCores:    SMALL_CORE_CNT,
		CoreBits:      NONCE_CORES_BITS,
		SmallCoreBits: NONCE_SMALL_CORES_BITS,
		JobIDStep:     4,
		DefaultFreq:   50 * physic.MegaHertz,
		FbMin:         0x40,
		FbMax:         0xef,
	}}
}

// MiscControlFor returns the MiscControl value selecting baud, BT8D in
// bits [12:8].
func MiscControlFor(baud uint32) uint32 {
	bt8d := bm13xx.FastUARTBT8D(baud)
	if bt8d > bt8dMask {
		bt8d = bt8dMask
	}
	return miscBase | bt8d<<miscBT8DLo
}

func (m *BM1397) InitSequence(difficulty uint32, g chip.Geometry) []chip.CmdDelay {
	const d = 10 * time.Millisecond
	return []chip.CmdDelay{
		bm13xx.Write(bm13xx.ClockOrderControl0, 0, d),
		bm13xx.Write(bm13xx.ClockOrderControl1, 0, d),
		bm13xx.Write(bm13xx.OrderedClockEnable, 0x0000_0001, d),
		bm13xx.Write(bm13xx.CoreRegisterControl, 0x8000_8074, d),
		bm13xx.Write(bm13xx.TicketMask, bm13xx.TicketMaskFor(difficulty), d),
		bm13xx.Write(bm13xx.MiscControl, miscInit, d),
	}
}

func (m *BM1397) BaudSequence(baud uint32, g chip.Geometry) []chip.CmdDelay {
	if g.Chips == 0 {
		return nil
	}
	return []chip.CmdDelay{bm13xx.Write(bm13xx.MiscControl, MiscControlFor(baud), 0)}
}

func (m *BM1397) VersionRollingSequence(mask uint32, g chip.Geometry) []chip.CmdDelay {
	return nil
}

func (m *BM1397) ResetCoreSequence(dest chip.Destination) []chip.CmdDelay {
	return nil
}
