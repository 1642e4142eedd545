//go:build !usb

package hantek

import (
	"errors"

	"github.com/charmbracelet/log"
)

var ErrNoUSB = errors.New("hantek: built without usb support (rebuild with -tags usb)")

func Open(*log.Logger) (*Scope, error) {
	return nil, ErrNoUSB
}
