package bm13xx

import (
	"time"

	"asic_chain/device/chip"

	"periph.io/x/conn/v3/physic"
)

const (
	DefaultFastUART  = 0x0130_1a00
	DefaultUARTRelay = 0x000f_0000
	DefaultRegA8     = 0x0007_0000
	DefaultMisc      = 0x0000_c100

	pll3Spread  = 0x5aa5_5aa5
	pll3UART    = 0xc070_0111
	ioDriveAll  = 0x0001_1111
	ioDriveLast = 0x0001_3111
)

func Write(reg uint8, val uint32, delay time.Duration) chip.CmdDelay {
	return chip.CmdDelay{Dest: chip.Broadcast(), Reg: reg, Value: val, Delay: delay}
}

// DomainBaudSequence sets drive strength and UART relays per voltage
// domain, then switches the chips' UART to baud. Domains are walked from
// the far end of the chain. The last write changes the rate the chips
// listen at.
func DomainBaudSequence(baud uint32, g chip.Geometry) []chip.CmdDelay {
	g = g.Normalized()
	if g.Chips == 0 {
		return nil
	}
	seq := []chip.CmdDelay{Write(IoDriverStrenghtConfiguration, ioDriveAll, 0)}

	for dom := g.Domains - 1; dom >= 0; dom-- {
		last := dom*g.AsicsPerDomain + g.AsicsPerDomain - 1
		seq = append(seq, chip.CmdDelay{
			Dest:  chip.Unicast(g.Addr(last)),
			Reg:   IoDriverStrenghtConfiguration,
			Value: ioDriveLast,
		})
	}

	seq = append(seq, Write(PLL3Parameter, pll3Spread, 0))

	for dom := g.Domains - 1; dom >= 0; dom-- {
		gap := uint32(g.AsicsPerDomain*(g.Domains-dom) + 14)
		relay := DefaultUARTRelay&0x0000_ffff | gap<<16 | 0x3
		first := dom * g.AsicsPerDomain
		last := first + g.AsicsPerDomain - 1
		seq = append(seq,
			chip.CmdDelay{Dest: chip.Unicast(g.Addr(first)), Reg: UARTRelay, Value: relay},
			chip.CmdDelay{Dest: chip.Unicast(g.Addr(last)), Reg: UARTRelay, Value: relay},
		)
	}

	if baud <= uint32(ClockIn/physic.Hertz)/8 {
		fast := DefaultFastUART&^0x0000_ff00 | (FastUARTBT8D(baud)&0xff)<<8
		seq = append(seq, Write(FastUARTConfiguration, fast, 0))
	} else {
		seq = append(seq, Write(PLL3Parameter, pll3UART, 0))
	}
	return seq
}

// ResetCoreSequence soft resets the cores of one chip. The chips have no
// broadcast form of it, so dest must be unicast.
func ResetCoreSequence(dest chip.Destination) []chip.CmdDelay {
	if dest.All {
		return nil
	}
	const d = 10 * time.Millisecond
	regA8 := uint32(DefaultRegA8) | 1<<8 | 0xf<<4
	misc := uint32(DefaultMisc)&^0x0f0f_0000&^0x0000_f000 | 0xf<<12
	return []chip.CmdDelay{
		{Dest: dest, Reg: RegA8, Value: regA8, Delay: d},
		{Dest: dest, Reg: MiscControl, Value: misc, Delay: d},
		{Dest: dest, Reg: CoreRegisterControl, Value: WriteCoreReg(0, CoreReg11, 0x00), Delay: d},
		{Dest: dest, Reg: CoreRegisterControl, Value: WriteCoreReg(0, CoreClockDelayCtrl, 0x0c), Delay: d},
		{Dest: dest, Reg: CoreRegisterControl, Value: WriteCoreReg(0, CoreReg2, 0xaa), Delay: d},
	}
}
