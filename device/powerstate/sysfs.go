package powerstate

import (
	"gobot.io/x/gobot/sysfs"
)

// sysfsPin exports the pin for every write and unexports it again, so a
// crashed process never leaves it claimed.
type sysfsPin struct {
	num int
}

func openSysfs(num int) (pinWriter, error) {
	if num <= 0 {
		return nil, ErrNoPin
	}
	return &sysfsPin{num: num}, nil
}

func (p *sysfsPin) write(level int) error {
	pin := sysfs.NewDigitalPin(p.num)
	_ = pin.Export()
	defer func() {
		_ = pin.Unexport()
	}()
	if err := pin.Direction("out"); err != nil {
		return err
	}
	return pin.Write(level)
}

func (p *sysfsPin) close() error {
	return nil
}
