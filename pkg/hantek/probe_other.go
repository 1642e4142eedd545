//go:build !linux || !usb

package hantek

import "errors"

var errNoProbe = errors.New("device probing needs Linux and the usb build tag")

// Probe needs the udev database.
func Probe() ([]Info, error) {
	return nil, errNoProbe
}
