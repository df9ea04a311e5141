package powerstate

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

type periphPin struct {
	pin gpio.PinIO
}

func openPeriph(name string) (pinWriter, error) {
	if name == "" {
		return nil, ErrNoPin
	}
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("no gpio named %q", name)
	}
	return &periphPin{pin: p}, nil
}

func (p *periphPin) write(level int) error {
	l := gpio.Low
	if level != 0 {
		l = gpio.High
	}
	return p.pin.Out(l)
}

func (p *periphPin) close() error {
	return p.pin.Halt()
}
