package chip

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/physic"
)

const (
	// CHIP_MAX is the size of the 8-bit chip address space.
	CHIP_MAX = 256
)

// Destination selects which chips accept a command frame.
type Destination struct {
	All  bool
	Addr uint8
}

func Broadcast() Destination {
	return Destination{All: true}
}

func Unicast(addr uint8) Destination {
	return Destination{Addr: addr}
}

func (d Destination) String() string {
	if d.All {
		return "all"
	}
	return fmt.Sprintf("0x%02x", d.Addr)
}

// CmdDelay is one register write of a model sequence followed by the
// pause the chips need before the next write.
type CmdDelay struct {
	Dest  Destination
	Reg   uint8
	Value uint32
	Delay time.Duration
}

// Geometry describes how chips are spread across voltage domains and how
// far apart their addresses are.
type Geometry struct {
	Chips          int
	Domains        int
	AsicsPerDomain int
	Interval       int
}

// Normalized fills missing domain info with a single domain holding every chip.
func (g Geometry) Normalized() Geometry {
	if g.Interval < 1 {
		g.Interval = 1
	}
	if g.Domains < 1 || g.AsicsPerDomain < 1 || g.Domains*g.AsicsPerDomain > g.Chips {
		g.Domains = 1
		g.AsicsPerDomain = g.Chips
	}
	return g
}

// Addr returns the address of the chip at pos.
func (g Geometry) Addr(pos int) uint8 {
	return uint8(pos * g.Interval)
}

// Codec builds and parses frames for one chip family's wire format.
type Codec interface {
	ChainInactive() []byte
	SetAddress(addr uint8) []byte
	ReadRegister(dest Destination, reg uint8) []byte
	WriteRegister(dest Destination, reg uint8, value uint32) []byte
	EncodeWork(jobID uint8, payload []byte) ([]byte, error)

	// Decode parses one complete response frame. A bad checksum returns
	// an error matching bm13xx.ErrChecksum.
	Decode(raw []byte) (Frame, error)
	// NewStream returns a reassembly buffer for the response byte stream.
	NewStream() Stream
}

// Stream cuts a raw byte stream into response frames. Bytes of an
// incomplete frame stay buffered until the next Feed.
type Stream interface {
	Feed(b []byte)
	Next() ([]byte, bool)
	Buffered() int
	Reset()
}

// Model is the capability set of one chip family. Chain never branches on
// the family; it asks the model.
type Model interface {
	Codec

	Name() string
	ChipID() uint16
	IdentityRegister() uint8
	// IsIdentity reports whether f answers an identity read from this family.
	IsIdentity(f Frame) bool
	// ProbeWindow is the quiet time after which no further response to a
	// broadcast read is expected at the given baud rate.
	ProbeWindow(baud uint32) time.Duration
	// WriteAck reports whether a unicast write can be acknowledged by
	// reading the register back.
	WriteAck() bool

	NextJobID(prev uint8) uint8
	// DecodeResult takes the rolling mask in use, 0 for the default.
	DecodeResult(f Frame, rolling bool, mask uint32) Result

	SupportsVersionRolling() bool
	DefaultFrequency() physic.Frequency
	InitSequence(difficulty uint32, g Geometry) []CmdDelay
	BaudSequence(baud uint32, g Geometry) []CmdDelay
	HashFreqSequence(from, to physic.Frequency) []CmdDelay
	VersionRollingSequence(mask uint32, g Geometry) []CmdDelay
	ResetCoreSequence(dest Destination) []CmdDelay

	TheoreticalHashrate(freq physic.Frequency) float64
	RollingDuration(freq physic.Frequency, rolling bool, mask uint32) time.Duration
}
