package bm13xx

import (
	"math/bits"
	"time"

	"asic_chain/device/chip"

	"periph.io/x/conn/v3/physic"
)

const (
	nonceBits    = 32
	chipAddrBits = 8
	jobIDSpace   = 128
)

// Family holds what the BM13xx chips share: the frame format, the identity
// read and the nonce bit layout. Chip models embed it and add their own
// register sequences.
type Family struct {
	ModelName      string
	ID             uint16
	RespLen        int
	Cores          int
	SmallCores     int
	CoreBits       int
	SmallCoreBits  int
	JobIDStep      uint8
	HeaderJobs     bool
	VersionRolling bool
	DefaultFreq    physic.Frequency
	FbMin, FbMax   int
}

func (f *Family) Name() string {
	return f.ModelName
}

func (f *Family) ChipID() uint16 {
	return f.ID
}

func (f *Family) IdentityRegister() uint8 {
	return ChipIdentification
}

func (f *Family) IsIdentity(fr chip.Frame) bool {
	return fr.Kind == chip.RegisterFrame && fr.Reg == ChipIdentification && uint16(fr.Value>>16) == f.ID
}

// ProbeWindow allows for twenty response frames of relay latency, with a
// floor for slow hosts.
func (f *Family) ProbeWindow(baud uint32) time.Duration {
	if baud == 0 {
		baud = 115200
	}
	frame := time.Duration(f.RespLen*10) * time.Second / time.Duration(baud)
	w := frame * 20
	if w < 5*time.Millisecond {
		w = 5 * time.Millisecond
	}
	return w
}

func (f *Family) WriteAck() bool {
	return true
}

func (f *Family) ChainInactive() []byte {
	return ChainInactive()
}

func (f *Family) SetAddress(addr uint8) []byte {
	return SetChipAddress(addr)
}

func (f *Family) ReadRegister(dest chip.Destination, reg uint8) []byte {
	return ReadRegister(dest, reg)
}

func (f *Family) WriteRegister(dest chip.Destination, reg uint8, value uint32) []byte {
	return WriteRegister(dest, reg, value)
}

func (f *Family) EncodeWork(jobID uint8, payload []byte) ([]byte, error) {
	check := CheckMidstatePayload
	if f.HeaderJobs {
		check = CheckHeaderPayload
	}
	if err := check(payload); err != nil {
		return nil, err
	}
	return EncodeJob(jobID, payload), nil
}

func (f *Family) Decode(raw []byte) (chip.Frame, error) {
	return DecodeResponse(raw, f.RespLen)
}

func (f *Family) NewStream() chip.Stream {
	return NewSplitter(f.RespLen)
}

func (f *Family) NextJobID(prev uint8) uint8 {
	return uint8((int(prev) + int(f.JobIDStep)) % jobIDSpace)
}

func (f *Family) SupportsVersionRolling() bool {
	return f.VersionRolling
}

func (f *Family) DefaultFrequency() physic.Frequency {
	return f.DefaultFreq
}

func (f *Family) CoreID(nonce uint32) int {
	return int(nonce >> uint(nonceBits-f.CoreBits) & (1<<uint(f.CoreBits) - 1))
}

func (f *Family) SmallCoreID(nonce uint32) int {
	return int(nonce >> uint(nonceBits-f.CoreBits-f.SmallCoreBits) & (1<<uint(f.SmallCoreBits) - 1))
}

// ChipAddr extracts the address of the chip that found nonce. With
// version rolling the small core id moves into the version bits and the
// chip address shifts up.
func (f *Family) ChipAddr(nonce uint32, rolling bool) uint8 {
	shift := nonceBits - f.CoreBits - f.SmallCoreBits - chipAddrBits
	if rolling && f.VersionRolling {
		shift = nonceBits - f.CoreBits - chipAddrBits
	}
	return uint8(nonce >> uint(shift))
}

// DecodeResult pulls the correlation data out of a nonce frame.
func (f *Family) DecodeResult(fr chip.Frame, rolling bool, mask uint32) chip.Result {
	nonce := fr.Nonce()
	r := chip.Result{
		Nonce:    nonce,
		ChipAddr: f.ChipAddr(nonce, rolling),
		CoreID:   f.CoreID(nonce),
		Position: -1,
	}

	if f.HeaderJobs {
		r.JobID = (fr.JobID & 0xf0) >> 1
		r.Version = uint32(fr.Version) << 13
		if rolling {
			if mask == 0 {
				mask = DefaultVersionMask
			}
			r.SmallCoreID = int(r.Version>>uint(bits.TrailingZeros32(mask))) & (1<<uint(f.SmallCoreBits) - 1)
		} else {
			r.SmallCoreID = f.SmallCoreID(nonce)
		}
		return r
	}

	r.JobID = fr.JobID & 0xfc
	r.Midstate = int(fr.JobID & 0x03)
	r.SmallCoreID = f.SmallCoreID(nonce)
	return r
}

// DefaultVersionMask is the BIP320 general purpose bits.
const DefaultVersionMask = 0x1fffe000

func (f *Family) TheoreticalHashrate(freq physic.Frequency) float64 {
	hz := float64(freq) / float64(physic.Hertz)
	return hz * float64(f.SmallCores) / 1e9
}

// RollingDuration is the time one chip takes to exhaust its share of the
// search space.
func (f *Family) RollingDuration(freq physic.Frequency, rolling bool, mask uint32) time.Duration {
	if freq <= 0 {
		return 0
	}
	space := nonceBits - f.CoreBits - f.SmallCoreBits - chipAddrBits
	if rolling && f.VersionRolling {
		space = nonceBits - f.CoreBits - chipAddrBits + bits.OnesCount32(mask) - f.SmallCoreBits
	}
	hz := float64(freq) / float64(physic.Hertz)
	secs := float64(uint64(1)<<uint(space)) / hz
	return time.Duration(secs * float64(time.Second))
}

// HashFreqSequence ramps PLL0 from one frequency to another.
func (f *Family) HashFreqSequence(from, to physic.Frequency) []chip.CmdDelay {
	seq, err := RampSequence(from, to, f.FbMin, f.FbMax)
	if err != nil {
		return nil
	}
	return seq
}
