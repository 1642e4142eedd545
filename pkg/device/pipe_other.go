//go:build !linux

package device

import (
	"errors"

	"github.com/dso/pkg/scope"
)

var errNoPipes = errors.New("pipe devices are only supported on Linux")

// Pipe is unavailable on this platform.
type Pipe struct{}

func OpenPipe(string) (*Pipe, error) { return nil, errNoPipes }

func (p *Pipe) ReadRaw([]byte, int, uint8) error { return errNoPipes }

func (p *Pipe) SelectRange(int, scope.InputRange) error { return errNoPipes }

func (p *Pipe) Close() error { return nil }

func MakeFIFO(string) error { return errNoPipes }
