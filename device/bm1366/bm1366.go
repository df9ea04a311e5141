// Package bm1366 is the register and job model of the BM1366 (S19 XP).
package bm1366

import (
	"time"

	"asic_chain/device/bm13xx"
	"asic_chain/device/chip"

	"periph.io/x/conn/v3/physic"
)

const (
	CHIP_ID        = 0x1366
	CORE_CNT       = 112
	SMALL_CORE_CNT = 894

	// Core id in Nonce[31:25], small core id in Nonce[24:22].
	NONCE_CORES_BITS       = 7
	NONCE_SMALL_CORES_BITS = 3
)

type BM1366 struct {
	bm13xx.Family
}

var _ chip.Model = (*BM1366)(nil)

func New() *BM1366 {
	return &BM1366{Family: bm13xx.Family{
		ModelName:      "BM1366",
		ID:             CHIP_ID,
		RespLen:        bm13xx.RSP_LEN_LONG,
		Cores:          CORE_CNT,
		SmallCores:     SMALL_CORE_CNT,
		CoreBits:       NONCE_CORES_BITS,
		SmallCoreBits:  NONCE_SMALL_CORES_BITS,
		JobIDStep:      8,
		HeaderJobs:     true,
		VersionRolling: true,
		DefaultFreq:    70 * physic.MegaHertz,
		FbMin:          0xa0,
		FbMax:          0xef,
	}}
}

func (m *BM1366) InitSequence(difficulty uint32, g chip.Geometry) []chip.CmdDelay {
	const d = 10 * time.Millisecond
	return []chip.CmdDelay{
		bm13xx.Write(bm13xx.RegA8, 0x0007_0000, d),
		bm13xx.Write(bm13xx.MiscControl, 0xff0f_c100, d),
		bm13xx.Write(bm13xx.CoreRegisterControl, bm13xx.WriteCoreReg(0, bm13xx.CoreHashClockCtrl, 0x40), d),
		bm13xx.Write(bm13xx.CoreRegisterControl, bm13xx.WriteCoreReg(0, bm13xx.CoreClockDelayCtrl, 0x20), d),
		bm13xx.Write(bm13xx.TicketMask, bm13xx.TicketMaskFor(difficulty), d),
		bm13xx.Write(bm13xx.AnalogMuxControl, 0x0000_0003, d),
		bm13xx.Write(bm13xx.IoDriverStrenghtConfiguration, 0x0211_1111, d),
	}
}

func (m *BM1366) BaudSequence(baud uint32, g chip.Geometry) []chip.CmdDelay {
	return bm13xx.DomainBaudSequence(baud, g)
}

func (m *BM1366) VersionRollingSequence(mask uint32, g chip.Geometry) []chip.CmdDelay {
	return bm13xx.NonceOffsetSequence(mask, g)
}

func (m *BM1366) ResetCoreSequence(dest chip.Destination) []chip.CmdDelay {
	return bm13xx.ResetCoreSequence(dest)
}
