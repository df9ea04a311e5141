//go:build linux
// +build linux

package powerstate

import (
	"github.com/warthog618/gpiod"
)

type gpiodPin struct {
	line *gpiod.Line
}

// openGpiod requests the line as an output held released.
func openGpiod(chip string, offset int) (pinWriter, error) {
	if chip == "" || offset < 0 {
		return nil, ErrNoPin
	}
	l, err := gpiod.RequestLine(chip, offset, gpiod.AsOutput(1))
	if err != nil {
		return nil, err
	}
	return &gpiodPin{line: l}, nil
}

func (p *gpiodPin) write(level int) error {
	return p.line.SetValue(level)
}

func (p *gpiodPin) close() error {
	return p.line.Close()
}
