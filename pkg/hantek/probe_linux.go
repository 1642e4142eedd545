//go:build linux && usb

package hantek

import (
	"fmt"

	"github.com/jochenvg/go-udev"
)

// Probe lists attached instruments from the udev database without opening
// them.
func Probe() ([]Info, error) {
	u := udev.Udev{}
	e := u.NewEnumerate()
	if err := e.AddMatchSubsystem("usb"); err != nil {
		return nil, fmt.Errorf("udev match subsystem: %w", err)
	}
	if err := e.AddMatchSysattr("idProduct", fmt.Sprintf("%04x", ProductID)); err != nil {
		return nil, fmt.Errorf("udev match product: %w", err)
	}
	devs, err := e.Devices()
	if err != nil {
		return nil, fmt.Errorf("udev enumerate: %w", err)
	}

	var out []Info
	for _, d := range devs {
		info := Info{
			Syspath:      d.Syspath(),
			Devnode:      d.Devnode(),
			VendorID:     d.SysattrValue("idVendor"),
			ProductID:    d.SysattrValue("idProduct"),
			Manufacturer: d.SysattrValue("manufacturer"),
			Product:      d.SysattrValue("product"),
			Serial:       d.SysattrValue("serial"),
			Bus:          d.SysattrValue("busnum"),
			Address:      d.SysattrValue("devnum"),
		}
		if info.Ready() || info.NeedsFirmware() {
			out = append(out, info)
		}
	}
	return out, nil
}
