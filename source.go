package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/dso/pkg/device"
	"github.com/dso/pkg/hantek"
	"github.com/dso/pkg/scope"
)

type noClose struct{}

func (noClose) Close() error { return nil }

// openDevice resolves the configured device string. The returned closer is
// never nil.
func openDevice(cfg Config, logger *log.Logger) (scope.Device, io.Closer, error) {
	switch {
	case cfg.Device == "sim":
		logger.Info("using simulated scope")
		return device.NewSimulator(cfg.Sim), noClose{}, nil
	case cfg.Device == "usb":
		s, err := hantek.Open(logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case strings.HasPrefix(cfg.Device, "replay:"):
		path := strings.TrimPrefix(cfg.Device, "replay:")
		r, err := device.OpenReplay(path)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("replaying recording", "file", path, "frames", r.Len())
		return r, noClose{}, nil
	case cfg.Device == "":
		return nil, nil, fmt.Errorf("no device configured")
	default:
		p, err := device.OpenPipe(cfg.Device)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("reading samples from pipe", "path", cfg.Device)
		return p, p, nil
	}
}
