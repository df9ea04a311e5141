//go:build linux

package asicio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

var standardBauds = map[uint32]uint32{
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	500000:  unix.B500000,
	921600:  unix.B921600,
	1000000: unix.B1000000,
	1500000: unix.B1500000,
	2000000: unix.B2000000,
	3000000: unix.B3000000,
	4000000: unix.B4000000,
}

// TermiosPort drives a tty in raw mode through termios ioctls.
type TermiosPort struct {
	name string
	fd   int

	mu     sync.Mutex
	closed bool
	buf    []byte
}

func OpenTermios(name string, baud uint32) (*TermiosPort, error) {
	fd, err := unix.Open(name, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	p := &TermiosPort{name: name, fd: fd, buf: make([]byte, readBuf)}
	if err := p.SetBaudRate(baud); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return p, nil
}

// SetBaudRate puts the tty in raw 8N1 mode at baud. Rates outside the
// B* table go through BOTHER.
func (p *TermiosPort) SetBaudRate(baud uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	t, err := unix.IoctlGetTermios(p.fd, unix.TCGETS2)
	if err != nil {
		return fmt.Errorf("tcgets %s: %w", p.name, err)
	}
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0

	if b, ok := standardBauds[baud]; ok {
		t.Cflag |= b
	} else {
		t.Cflag |= unix.BOTHER
	}
	t.Ispeed = baud
	t.Ospeed = baud

	if err := unix.IoctlSetTermios(p.fd, unix.TCSETS2, t); err != nil {
		return fmt.Errorf("tcsets %s at %d: %w", p.name, baud, err)
	}
	// drop whatever arrived at the old rate
	return unix.IoctlSetInt(p.fd, unix.TCFLSH, unix.TCIFLUSH)
}

func (p *TermiosPort) Write(ctx context.Context, frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	for len(frame) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := unix.Write(p.fd, frame)
		if errors.Is(err, unix.EAGAIN) {
			if _, err := p.poll(unix.POLLOUT, readSlice); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
		frame = frame[n:]
	}
	return nil
}

// ReadAvailable waits up to timeout for the first bytes, then returns
// everything queued in the tty.
func (p *TermiosPort) ReadAvailable(ctx context.Context, timeout time.Duration) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}

	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		left := time.Until(deadline)
		if left < 0 {
			left = 0
		}
		ready, err := p.poll(unix.POLLIN, slice(left))
		if err != nil {
			return nil, err
		}
		if ready {
			break
		}
		if left == 0 {
			return nil, nil
		}
	}

	var out []byte
	for {
		n, err := unix.Read(p.fd, p.buf)
		if n > 0 {
			out = append(out, p.buf[:n]...)
		}
		if errors.Is(err, unix.EAGAIN) || n <= 0 {
			return out, nil
		}
		if err != nil {
			return out, err
		}
	}
}

func (p *TermiosPort) poll(events int16, d time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(p.fd), Events: events}}
	for {
		n, err := unix.Poll(fds, int(d/time.Millisecond))
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return false, err
		}
		return n > 0 && fds[0].Revents&events != 0, nil
	}
}

func (p *TermiosPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return unix.Close(p.fd)
}
