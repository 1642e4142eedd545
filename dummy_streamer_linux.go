//go:build linux

package main

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"

	"github.com/dso/pkg/device"
	"github.com/dso/pkg/scope"
)

// simChunk is the number of sample pairs generated per pipe write.
const simChunk = 16 * 1024

// RunSimulator feeds the simulated signals into the FIFO at path (see
// device.MakeFIFO), the way the instrument's stream would arrive, until ctx
// is done. A reader that goes away is waited for again.
func RunSimulator(ctx context.Context, path string, cfg device.SimConfig, logger *log.Logger) error {
	defer unix.Unlink(path)
	logger.Info("simulating scope", "fifo", path)

	sim := device.NewSimulator(cfg)
	buf := make([]byte, 2*simChunk)

	open := func() (int, error) {
		for {
			fd, err := unix.Open(path, unix.O_WRONLY|unix.O_NONBLOCK, 0)
			if err == nil {
				// Tune buffer for throughput
				const maxPipeSize = 1024 * 1024
				_, _ = unix.FcntlInt(uintptr(fd), unix.F_SETPIPE_SZ, maxPipeSize)
				// writes block again once a reader is there
				if err := unix.SetNonblock(fd, false); err != nil {
					unix.Close(fd)
					return -1, err
				}
				return fd, nil
			}
			if err != unix.ENXIO {
				return -1, err
			}
			// no reader yet
			select {
			case <-ctx.Done():
				return -1, ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
		}
	}

	fd, err := open()
	if err != nil {
		return nilOnCancel(ctx, err)
	}
	defer func() { unix.Close(fd) }()

	for ctx.Err() == nil {
		if err := sim.ReadRaw(buf, simChunk, scope.BothChannels); err != nil {
			return err
		}
		for off := 0; off < len(buf); {
			n, err := unix.Write(fd, buf[off:])
			if err == unix.EINTR {
				continue
			}
			if err != nil {
				logger.Debug("simulator pipe closed, waiting for a reader", "err", err)
				unix.Close(fd)
				if fd, err = open(); err != nil {
					return nilOnCancel(ctx, err)
				}
				break
			}
			off += n
		}
	}
	return nil
}

func nilOnCancel(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}
