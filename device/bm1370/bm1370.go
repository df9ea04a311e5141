// Package bm1370 is the register and job model of the BM1370 (S21 Pro/XP).
package bm1370

import (
	"time"

	"asic_chain/device/bm13xx"
	"asic_chain/device/chip"

	"periph.io/x/conn/v3/physic"
)

const (
	CHIP_ID        = 0x1370
	CORE_CNT       = 128
	SMALL_CORE_CNT = 2040

	// Core id in Nonce[31:25], small core id in Nonce[24:22].
	NONCE_CORES_BITS       = 7
	NONCE_SMALL_CORES_BITS = 3
)

type BM1370 struct {
	bm13xx.Family
}

var _ chip.Model = (*BM1370)(nil)

func New() *BM1370 {
	return &BM1370{Family: bm13xx.Family{
		ModelName:      "BM1370",
		ID:             CHIP_ID,
		RespLen:        bm13xx.RSP_LEN_LONG,
		Cores:          CORE_CNT,
		SmallCores:     SMALL_CORE_CNT,
		CoreBits:       NONCE_CORES_BITS,
		SmallCoreBits:  NONCE_SMALL_CORES_BITS,
		JobIDStep:      24,
		HeaderJobs:     true,
		VersionRolling: true,
		DefaultFreq:    70 * physic.MegaHertz,
		FbMin:          0xa0,
		FbMax:          0xef,
	}}
}

func (m *BM1370) InitSequence(difficulty uint32, g chip.Geometry) []chip.CmdDelay {
	const d = 10 * time.Millisecond
	return []chip.CmdDelay{
		bm13xx.Write(bm13xx.CoreRegisterControl, bm13xx.WriteCoreReg(0, bm13xx.CoreReg11, 0x00), d),
		bm13xx.Write(bm13xx.CoreRegisterControl,
			bm13xx.WriteCoreReg(0, bm13xx.CoreClockDelayCtrl, bm13xx.ClockDelayCtrl(0, 2, false)), d),
		bm13xx.Write(bm13xx.TicketMask, bm13xx.TicketMaskFor(difficulty), d),
		// settle the analog front end before the first frequency change
		bm13xx.Write(0xB9, 0x0000_4480, 20*time.Millisecond),
		bm13xx.Write(bm13xx.AnalogMuxControl, 0x0000_0002, 100*time.Millisecond),
		bm13xx.Write(0xB9, 0x0000_4480, 20*time.Millisecond),
		bm13xx.Write(bm13xx.CoreRegisterControl, 0x8000_8dee, 100*time.Millisecond),
	}
}

func (m *BM1370) BaudSequence(baud uint32, g chip.Geometry) []chip.CmdDelay {
	return bm13xx.DomainBaudSequence(baud, g)
}

func (m *BM1370) VersionRollingSequence(mask uint32, g chip.Geometry) []chip.CmdDelay {
	return bm13xx.NonceOffsetSequence(mask, g)
}

func (m *BM1370) ResetCoreSequence(dest chip.Destination) []chip.CmdDelay {
	return bm13xx.ResetCoreSequence(dest)
}
