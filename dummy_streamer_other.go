//go:build !linux

package main

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"

	"github.com/dso/pkg/device"
)

func RunSimulator(context.Context, string, device.SimConfig, *log.Logger) error {
	return errors.New("simulation via named pipes is only supported on Linux")
}
