//go:build !linux
// +build !linux

package powerstate

func openGpiod(chip string, offset int) (pinWriter, error) {
	if chip == "" || offset < 0 {
		return nil, ErrNoPin
	}
	return nil, ErrUnsupported
}
