//go:build linux

package device

import (
	"fmt"
	"io"

	"golang.org/x/sys/unix"

	"github.com/dso/pkg/scope"
)

// Pipe reads interleaved CH1/CH2 bytes from a named pipe or character
// device. The writer decides the input ranges, so range selection is only
// recorded.
type Pipe struct {
	fd     int
	path   string
	ranges [2]scope.InputRange
}

// OpenPipe opens path for reading. Opening a FIFO blocks until a writer
// connects.
func OpenPipe(path string) (*Pipe, error) {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("could not open device %s: %w", path, err)
	}

	// Largest frame is 2MB; a 1MB pipe halves the number of wakeups.
	const maxPipeSize = 1024 * 1024
	_, _ = unix.FcntlInt(uintptr(fd), unix.F_SETPIPE_SZ, maxPipeSize)

	return &Pipe{fd: fd, path: path}, nil
}

// ReadRaw implements scope.Device. A pipe that closes mid-frame fails the
// read with io.ErrUnexpectedEOF.
func (p *Pipe) ReadRaw(buf []byte, depth int, _ uint8) error {
	want := 2 * depth
	if depth <= 0 || len(buf) < want {
		return fmt.Errorf("pipe: buffer of %d bytes for depth %d", len(buf), depth)
	}

	total := 0
	for total < want {
		n, err := unix.Read(p.fd, buf[total:want])
		if n > 0 {
			total += n
		}
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("read %s failed after %d bytes: %w", p.path, total, err)
		}
		if n == 0 {
			return fmt.Errorf("read %s: %w after %d bytes", p.path, io.ErrUnexpectedEOF, total)
		}
	}
	return nil
}

// SelectRange implements scope.Device.
func (p *Pipe) SelectRange(channel int, r scope.InputRange) error {
	if channel != 1 && channel != 2 {
		return fmt.Errorf("pipe: no channel %d", channel)
	}
	p.ranges[channel-1] = r
	return nil
}

// Close closes the pipe.
func (p *Pipe) Close() error {
	if p.fd < 0 {
		return nil
	}
	err := unix.Close(p.fd)
	p.fd = -1
	return err
}

// MakeFIFO replaces whatever is at path with a new named pipe.
func MakeFIFO(path string) error {
	if err := unix.Unlink(path); err != nil && err != unix.ENOENT {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	if err := unix.Mkfifo(path, 0o666); err != nil {
		return fmt.Errorf("mkfifo %s: %w", path, err)
	}
	return nil
}
