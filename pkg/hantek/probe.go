package hantek

import (
	"fmt"
	"strings"
)

// firmwareVendorID is the bare controller id reported before the capture
// firmware is loaded.
const firmwareVendorID = 0x04b4

// Info describes one enumerated USB device.
type Info struct {
	Syspath      string
	Devnode      string
	VendorID     string
	ProductID    string
	Manufacturer string
	Product      string
	Serial       string
	Bus          string
	Address      string
}

func (i Info) is(vid, pid int) bool {
	return strings.EqualFold(i.VendorID, fmt.Sprintf("%04x", vid)) &&
		strings.EqualFold(i.ProductID, fmt.Sprintf("%04x", pid))
}

// Ready reports whether the device runs the capture firmware.
func (i Info) Ready() bool { return i.is(VendorID, ProductID) }

// NeedsFirmware reports whether the device still waits for a firmware load.
func (i Info) NeedsFirmware() bool { return i.is(firmwareVendorID, ProductID) }

// State is a short label for listings.
func (i Info) State() string {
	switch {
	case i.Ready():
		return "ready"
	case i.NeedsFirmware():
		return "no firmware"
	}
	return "unknown"
}
