// Package hantek drives a Hantek 6022 class USB scope over libusb.
//
// The instrument exposes four vendor requests (two input range selects, the
// sample rate and a capture start) and streams interleaved CH1/CH2 bytes on a
// bulk IN endpoint. Firmware must already be loaded; an unconfigured device
// enumerates with a different product id and is not found.
//
// The libusb and udev bindings need cgo and their headers; they are only
// built with the usb tag.
package hantek

import (
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dso/pkg/scope"
)

const (
	VendorID  = 0x04b5
	ProductID = 0x6022

	reqCH1Range   = 0xe0
	reqCH2Range   = 0xe1
	reqSampleRate = 0xe2
	reqStart      = 0xe3

	bulkEndpoint = 0x86
	usbInterface = 0

	timeoutMS = 2000
	// largest single bulk request; libusb splits it further.
	maxChunk = 512 * 1024
)

var ErrShortRead = errors.New("hantek: bulk transfer returned no data")

// transport is the part of a libusb handle the driver uses.
type transport interface {
	control(request byte, data []byte) error
	bulk(buf []byte) (int, error)
	close() error
}

// closeAll runs every step and returns the first error.
func closeAll(steps ...func() error) error {
	var err error
	for _, step := range steps {
		if serr := step(); err == nil {
			err = serr
		}
	}
	return err
}

// Scope is an open instrument. It implements scope.Device and
// scope.RateSetter.
type Scope struct {
	mu     sync.Mutex
	t      transport
	ranges [2]scope.InputRange
	rate   scope.SampleRate
	logger *log.Logger
}

func newScope(t transport, logger *log.Logger) *Scope {
	if logger == nil {
		logger = log.Default()
	}
	return &Scope{
		t:      t,
		ranges: [2]scope.InputRange{scope.Range10V, scope.Range10V},
		rate:   scope.Rate16M,
		logger: logger,
	}
}

// ReadRaw starts a capture and reads depth sample pairs into buf.
func (s *Scope) ReadRaw(buf []byte, depth int, _ uint8) error {
	want := 2 * depth
	if depth <= 0 || len(buf) < want {
		return fmt.Errorf("hantek: buffer of %d bytes for depth %d", len(buf), depth)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.t.control(reqStart, []byte{1}); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}
	for total := 0; total < want; {
		end := min(want, total+maxChunk)
		n, err := s.t.bulk(buf[total:end])
		if err != nil {
			return fmt.Errorf("bulk read after %d of %d bytes: %w", total, want, err)
		}
		if n == 0 {
			return fmt.Errorf("after %d of %d bytes: %w", total, want, ErrShortRead)
		}
		total += n
	}
	return nil
}

// SelectRange sets the input range of channel 1 or 2.
func (s *Scope) SelectRange(channel int, r scope.InputRange) error {
	var req byte
	switch channel {
	case 1:
		req = reqCH1Range
	case 2:
		req = reqCH2Range
	default:
		return fmt.Errorf("hantek: no channel %d", channel)
	}
	if r.FullScale() == 0 {
		return fmt.Errorf("hantek: unsupported range %d", r)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.t.control(req, []byte{byte(r)}); err != nil {
		return fmt.Errorf("select CH%d %s: %w", channel, r, err)
	}
	s.ranges[channel-1] = r
	s.logger.Debug("range selected", "channel", channel, "range", r)
	return nil
}

// SetSampleRate programs the sample clock.
func (s *Scope) SetSampleRate(r scope.SampleRate) error {
	if r == 0 {
		return errors.New("hantek: zero sample rate")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.t.control(reqSampleRate, []byte{byte(r)}); err != nil {
		return fmt.Errorf("set rate %d: %w", r, err)
	}
	s.rate = r
	s.logger.Debug("sample rate set", "hz", r.Hz())
	return nil
}

// Rate returns the last programmed sample rate.
func (s *Scope) Rate() scope.SampleRate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate
}

// Close releases the device.
func (s *Scope) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.close()
}
