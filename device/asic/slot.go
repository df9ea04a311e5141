package asic

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
)

type Status int

const (
	Unassigned Status = iota
	Responsive
	Unresponsive
)

func (s Status) String() string {
	switch s {
	case Responsive:
		return "responsive"
	case Unresponsive:
		return "unresponsive"
	}
	return "unassigned"
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// DomainState is the chain's record of what it last wrote to a chip.
type DomainState struct {
	Registers map[uint8]uint32 `json:"registers,omitempty"`
	Frequency physic.Frequency `json:"frequency"`
}

func (d DomainState) clone() DomainState {
	out := DomainState{Frequency: d.Frequency}
	if d.Registers != nil {
		out.Registers = make(map[uint8]uint32, len(d.Registers))
		for k, v := range d.Registers {
			out.Registers[k] = v
		}
	}
	return out
}

func (d *DomainState) record(reg uint8, value uint32) {
	if d.Registers == nil {
		d.Registers = map[uint8]uint32{}
	}
	d.Registers[reg] = value
}

// Slot is one chip position on the chain. Slots are created by Enumerate
// and only change state, they are never removed.
type Slot struct {
	Position int         `json:"position"`
	Address  uint8       `json:"address"`
	Assigned bool        `json:"assigned"`
	Status   Status      `json:"status"`
	Domain   DomainState `json:"domain"`
}

func (s Slot) String() string {
	if !s.Assigned {
		return fmt.Sprintf("slot %d unassigned", s.Position)
	}
	return fmt.Sprintf("slot %d @0x%02x %s", s.Position, s.Address, s.Status)
}

func (s Slot) clone() Slot {
	s.Domain = s.Domain.clone()
	return s
}
