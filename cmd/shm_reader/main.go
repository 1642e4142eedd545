//go:build linux

// shm_reader follows the frames a dso server publishes with --shm and
// prints a summary of each second of traffic.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/dso/pkg/scope"
	"github.com/dso/pkg/shm_ring"
)

type stats struct {
	frames, triggered, overruns int
	lastSeq                     uint64
	lastDepth                   int
	interval                    float64
	lo, hi                      [2]byte
}

func (s *stats) add(hdr shm_ring.FrameHeader, data []byte) {
	if s.frames == 0 {
		s.lo = [2]byte{255, 255}
		s.hi = [2]byte{0, 0}
	}
	s.frames++
	if hdr.Trigger != 0 {
		s.triggered++
	}
	s.lastSeq = hdr.Seq
	s.lastDepth = int(hdr.Depth)
	s.interval = hdr.Ts
	for i, b := range data {
		c := i & 1
		s.lo[c] = min(s.lo[c], b)
		s.hi[c] = max(s.hi[c], b)
	}
}

func (s *stats) report(logger *log.Logger) {
	if s.frames == 0 {
		logger.Info("no frames", "overruns", s.overruns)
		return
	}
	logger.Info("frames",
		"count", s.frames,
		"triggered", s.triggered,
		"overruns", s.overruns,
		"seq", s.lastSeq,
		"depth", s.lastDepth,
		"interval", scope.FormatEng(s.interval),
		"ch1", fmt.Sprintf("%d..%d", s.lo[0], s.hi[0]),
		"ch2", fmt.Sprintf("%d..%d", s.lo[1], s.hi[1]),
	)
}

func main() {
	shmName := pflag.StringP("shm", "s", "/dso_frames", "Shared memory name")
	period := pflag.DurationP("period", "p", time.Second, "Report period")
	pflag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "shm_reader"})
	logger.Info("connecting", "shm", "/dev/shm"+*shmName)

	ring, err := shm_ring.Open(*shmName)
	if err != nil {
		logger.Fatal("failed to open SHM ring", "err", err)
	}
	defer ring.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// start at the newest frame
	pos, _ := ring.Latest()
	var buf []byte
	var st stats
	report := time.NewTicker(*period)
	defer report.Stop()

	for ctx.Err() == nil {
		hdr, data, next, err := ring.ReadFrame(pos, buf)
		buf = data
		switch {
		case err == nil:
			st.add(hdr, data)
			pos = next
			ring.SetTail(pos)
		case errors.Is(err, shm_ring.ErrOverrun):
			st.overruns++
			pos, _ = ring.Latest()
		case errors.Is(err, shm_ring.ErrEmpty):
			select {
			case <-ctx.Done():
			case <-time.After(time.Millisecond):
			}
		default:
			logger.Fatal("read failed", "pos", pos, "err", err)
		}

		select {
		case <-report.C:
			st.report(logger)
			st = stats{}
		default:
		}
	}
}
