package bm13xx

import (
	"errors"
	"math"
	"math/bits"
	"time"

	"asic_chain/device/chip"

	"periph.io/x/conn/v3/physic"
)

// Register addresses shared by the BM13xx family.
const (
	ChipIdentification            uint8 = 0x00
	HashRate                      uint8 = 0x04
	PLL0Parameter                 uint8 = 0x08
	ChipNonceOffset               uint8 = 0x0C
	HashCountingNumber            uint8 = 0x10
	TicketMask                    uint8 = 0x14
	MiscControl                   uint8 = 0x18
	I2CControl                    uint8 = 0x1C
	OrderedClockEnable            uint8 = 0x20
	FastUARTConfiguration         uint8 = 0x28
	UARTRelay                     uint8 = 0x2C
	TicketMask2                   uint8 = 0x38
	CoreRegisterControl           uint8 = 0x3C
	CoreRegisterValue             uint8 = 0x40
	ExternalTemperatureSensorRead uint8 = 0x44
	ErrorFlag                     uint8 = 0x48
	NonceErrorCounter             uint8 = 0x4C
	NonceOverflowCounter          uint8 = 0x50
	AnalogMuxControl              uint8 = 0x54
	IoDriverStrenghtConfiguration uint8 = 0x58
	TimeOut                       uint8 = 0x5C
	PLL1Parameter                 uint8 = 0x60
	PLL2Parameter                 uint8 = 0x64
	PLL3Parameter                 uint8 = 0x68
	OrderedClockMonitor           uint8 = 0x6C
	PLL0Divider                   uint8 = 0x70
	PLL1Divider                   uint8 = 0x74
	PLL2Divider                   uint8 = 0x78
	PLL3Divider                   uint8 = 0x7C
	ClockOrderControl0            uint8 = 0x80
	ClockOrderControl1            uint8 = 0x84
	ClockOrderStatus              uint8 = 0x8C
	FrequencySweepControl1        uint8 = 0x90
	GoldenNonceForSweepReturn     uint8 = 0x94
	ReturnedGroupPatternStatus    uint8 = 0x98
	NonceReturnedTimeout          uint8 = 0x9C
	ReturnedSinglePatternStatus   uint8 = 0xA0
	VersionRolling                uint8 = 0xA4
	RegA8                         uint8 = 0xA8
)

// Core register ids, written through CoreRegisterControl.
const (
	CoreClockDelayCtrl uint8 = 0
	CoreReg2           uint8 = 2
	CoreHashClockCtrl  uint8 = 5
	CoreHashClockCount uint8 = 6
	CoreReg8           uint8 = 8
	CoreReg11          uint8 = 11
	CoreReg22          uint8 = 22
)

// ClockIn is the crystal feeding every chip.
const ClockIn = 25 * physic.MegaHertz

var ErrNoPLLSetting = errors.New("no pll setting for frequency")

// WriteCoreReg returns the CoreRegisterControl value that writes val into
// core register id of core coreID.
func WriteCoreReg(coreID, id, val uint8) uint32 {
	return 0x8000_0000 | uint32(coreID)<<16 | uint32(0x80|id)<<8 | uint32(val)
}

func ClockDelayCtrl(ccdly, pwth uint8, sweep bool) uint8 {
	v := (ccdly&0x3)<<6 | (pwth&0x7)<<3
	if sweep {
		v |= 0x04
	}
	return v
}

// TicketMaskFor turns a share difficulty into the TicketMask register:
// the largest power of two not above it, minus one, each byte bit reversed.
func TicketMaskFor(difficulty uint32) uint32 {
	if difficulty == 0 {
		difficulty = 1
	}
	mask := uint32(1)<<(31-bits.LeadingZeros32(difficulty)) - 1

	var v uint32
	for i := 0; i < 4; i++ {
		b := bits.Reverse8(uint8(mask >> (8 * i)))
		v |= uint32(b) << (8 * i)
	}
	return v
}

// VersionRollingValue enables hardware version rolling for mask.
func VersionRollingValue(mask uint32) uint32 {
	return 0x9000_0000 | (mask>>13)&0xffff
}

// FastUARTBT8D is the baud divider for a baud clock of ClockIn.
func FastUARTBT8D(baud uint32) uint32 {
	if baud == 0 {
		return 0
	}
	fbase := uint32(ClockIn / physic.Hertz)
	d := fbase / (8 * baud)
	if d == 0 {
		return 0
	}
	return d - 1
}

// PLLFrequency decodes a PLL parameter register into its output frequency.
func PLLFrequency(param uint32, divider uint8) physic.Frequency {
	fb := int64(param>>16) & 0xfff
	ref := int64(param>>8) & 0x3f
	p1 := int64(param>>4)&0x7 + 1
	p2 := int64(param)&0x7 + 1
	if ref == 0 {
		return 0
	}
	return ClockIn * physic.Frequency(fb) / physic.Frequency(ref*p1*p2*(int64(divider)+1))
}

// PLLParameterFor searches the divider set closest to target with fbdiv in
// [fbMin, fbMax]. It returns the register value and the exact frequency.
func PLLParameterFor(target physic.Frequency, fbMin, fbMax int) (uint32, physic.Frequency, error) {
	const maxDiff = 0.001
	clk := float64(ClockIn) / float64(physic.MegaHertz)
	want := float64(target) / float64(physic.MegaHertz)

	postdivMin, postdiv2Min := 255, 255
	bestRef, bestFb, bestP1, bestP2 := 0, 0, 0, 0

	for ref := 2; ref >= 1; ref-- {
		for p1 := 7; p1 >= 1; p1-- {
			for p2 := 7; p2 >= 1; p2-- {
				div := float64(ref * p1 * p2)
				fb := int(math.Round(want / clk * div))
				got := clk * float64(fb) / div
				if fb >= fbMin && fb <= fbMax &&
					math.Abs(want-got) < maxDiff &&
					p1 >= p2 && p1*p2 < postdivMin && p2 <= postdiv2Min {
					postdiv2Min = p2
					postdivMin = p1 * p2
					bestRef, bestFb, bestP1, bestP2 = ref, fb, p1, p2
				}
			}
		}
	}
	if bestRef == 0 {
		return 0, 0, ErrNoPLLSetting
	}

	var hdr uint32 = 0x40
	if float64(bestFb)*clk/float64(bestRef) >= 2400 {
		hdr = 0x50
	}
	param := hdr<<24 | uint32(bestFb)<<16 | uint32(bestRef)<<8 | uint32(bestP1-1)<<4 | uint32(bestP2-1)
	return param, PLLFrequency(param, 0), nil
}

const (
	rampStep     = 6250 * physic.KiloHertz
	rampHighFreq = 380 * physic.MegaHertz
	rampDelay    = 400 * time.Millisecond
	rampDelayHi  = 2300 * time.Millisecond
)

// RampSequence walks PLL0 from one frequency to another in small steps.
// Steps that have no PLL setting are skipped; the last step is always
// the target.
func RampSequence(from, to physic.Frequency, fbMin, fbMax int) ([]chip.CmdDelay, error) {
	var seq []chip.CmdDelay

	freq := from
	longDelay := false
	for {
		freq += rampStep
		if freq > to || from >= to {
			freq = to
		}
		if freq > rampHighFreq {
			longDelay = !longDelay
		}
		param, _, err := PLLParameterFor(freq, fbMin, fbMax)
		if err == nil {
			delay := rampDelay
			if longDelay {
				delay = rampDelayHi
			}
			seq = append(seq, chip.CmdDelay{
				Dest:  chip.Broadcast(),
				Reg:   PLL0Parameter,
				Value: param,
				Delay: delay,
			})
		} else if freq == to {
			return nil, err
		}
		if freq == to {
			break
		}
	}

	return seq, nil
}

// NonceOffsetSequence spreads the nonce space over every chip and turns on
// hardware version rolling.
func NonceOffsetSequence(mask uint32, g chip.Geometry) []chip.CmdDelay {
	g = g.Normalized()
	var seq []chip.CmdDelay

	n := g.Domains * g.AsicsPerDomain
	if n == 0 {
		return nil
	}
	for i := 0; i < n; i++ {
		seq = append(seq, chip.CmdDelay{
			Dest:  chip.Unicast(g.Addr(i)),
			Reg:   ChipNonceOffset,
			Value: 0x8000_0000 + uint32(65536/n)*uint32(i),
		})
	}
	seq = append(seq,
		chip.CmdDelay{Dest: chip.Broadcast(), Reg: HashCountingNumber, Value: 0x0000_1eb5, Delay: time.Millisecond},
		chip.CmdDelay{Dest: chip.Broadcast(), Reg: VersionRolling, Value: VersionRollingValue(mask), Delay: time.Millisecond},
	)
	return seq
}
