package chip

type FrameKind int

const (
	RegisterFrame FrameKind = iota
	NonceFrame
)

func (k FrameKind) String() string {
	if k == NonceFrame {
		return "nonce"
	}
	return "register"
}

// Frame is one decoded response. Register responses fill ChipAddr and Reg;
// nonce responses fill JobID, Midstate and Version.
type Frame struct {
	Kind     FrameKind
	Value    uint32
	ChipAddr uint8
	Reg      uint8
	Midstate uint8
	JobID    uint8
	Version  uint16
}

// Nonce returns Value for nonce frames.
func (f Frame) Nonce() uint32 {
	return f.Value
}

// Work is an opaque job payload built by a model helper plus the caller's
// correlation tag.
type Work struct {
	Tag     string
	Payload []byte
}

// Result is one nonce found by a chip, correlated back to its Work.
type Result struct {
	Tag         string
	Position    int
	ChipAddr    uint8
	JobID       uint8
	Midstate    int
	Nonce       uint32
	Version     uint32
	CoreID      int
	SmallCoreID int
}
