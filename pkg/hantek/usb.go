//go:build usb

package hantek

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/gotmc/libusb"
)

type usbTransport struct {
	ctx *libusb.Context
	dh  *libusb.DeviceHandle
}

func (u *usbTransport) control(request byte, data []byte) error {
	requestType := libusb.BitmapRequestType(
		libusb.HostToDevice, libusb.Vendor, libusb.DeviceRecipient)
	_, err := u.dh.ControlTransfer(requestType, request, 0, 0, data, len(data), timeoutMS)
	return err
}

func (u *usbTransport) bulk(buf []byte) (int, error) {
	return u.dh.BulkTransfer(bulkEndpoint, buf, len(buf), timeoutMS)
}

func (u *usbTransport) close() error {
	return closeAll(
		func() error { return u.dh.ReleaseInterface(usbInterface) },
		u.dh.Close,
		u.ctx.Close,
	)
}

// Open claims the first attached instrument.
func Open(logger *log.Logger) (*Scope, error) {
	ctx, err := libusb.NewContext()
	if err != nil {
		return nil, fmt.Errorf("libusb init: %w", err)
	}
	_, dh, err := ctx.OpenDeviceWithVendorProduct(VendorID, ProductID)
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("open %04x:%04x: %w", VendorID, ProductID, err)
	}
	if err := dh.ClaimInterface(usbInterface); err != nil {
		dh.Close()
		ctx.Close()
		return nil, fmt.Errorf("claim interface: %w", err)
	}
	return newScope(&usbTransport{ctx: ctx, dh: dh}, logger), nil
}
