// Package board reads the inbound framing from a physical serial device.
// golang.org/x/sys/unix provides the termios/ioctl primitives a dedicated
// serial library would otherwise wrap.
package board

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ruaan-deysel/battcorrelate/daemon/logger"
)

// resetPulse is the DTR/RTS sequence applied on open as a board reset:
// 100 ms low, 200 ms high, 200 ms low.
var resetPulse = []struct {
	assert bool
	hold   time.Duration
}{
	{assert: false, hold: 100 * time.Millisecond},
	{assert: true, hold: 200 * time.Millisecond},
	{assert: false, hold: 200 * time.Millisecond},
}

// Port is an open serial device configured for raw byte I/O.
type Port struct {
	f *os.File
}

// Open opens path, configures the termios for raw mode, and pulses
// DTR/RTS as a board reset before returning.
func Open(path string) (*Port, error) {
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("board: opening %s: %w", path, err)
	}

	fd := int(f.Fd())
	if err := setRawMode(fd); err != nil {
		f.Close()
		return nil, fmt.Errorf("board: configuring raw mode: %w", err)
	}

	p := &Port{f: f}
	p.resetSequence(fd)
	return p, nil
}

func (p *Port) resetSequence(fd int) {
	for _, step := range resetPulse {
		if err := setDTRRTS(fd, step.assert); err != nil {
			logger.Warning("board: DTR/RTS pulse step failed: %v", err)
		}
		time.Sleep(step.hold)
	}
}

// Read reads into buf, returning the number of bytes read. Reads return
// within the VTIME deadline applied in setRawMode, so the ingestion loop
// never blocks longer than 100 ms.
func (p *Port) Read(buf []byte) (int, error) { return p.f.Read(buf) }

// Write writes buf to the serial device (used by the bridge to forward
// inbound-framed snapshots).
func (p *Port) Write(buf []byte) (int, error) { return p.f.Write(buf) }

// Close closes the underlying file descriptor.
func (p *Port) Close() error { return p.f.Close() }

// setRawMode puts the device into raw 8N1 mode at 115200 baud with
// VMIN=0/VTIME=1: reads return whatever is available within 100 ms.
func setRawMode(fd int) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | unix.B115200
	t.Ispeed = unix.B115200
	t.Ospeed = unix.B115200
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 1
	return unix.IoctlSetTermios(fd, unix.TCSETS, t)
}

// setDTRRTS asserts or clears DTR and RTS together via TIOCMBIS/TIOCMBIC.
func setDTRRTS(fd int, assert bool) error {
	req := uint(unix.TIOCMBIC)
	if assert {
		req = uint(unix.TIOCMBIS)
	}
	return unix.IoctlSetPointerInt(fd, req, unix.TIOCM_DTR|unix.TIOCM_RTS)
}
