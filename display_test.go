package main

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dso/pkg/scope"
)

func TestEncodeTrace(t *testing.T) {
	tr := &Trace{
		Seq:        7,
		Trigger:    42,
		TriggerPos: 1.5,
		Time:       []float64{-1e-6, 0, 1e-6},
		CH2:        []float64{0.25, -0.5, 1},
	}
	out := encodeTrace(tr)
	require.Len(t, out, traceHeader+2*(1+4*3))

	assert.Equal(t, byte('T'), out[0])
	assert.Equal(t, byte(2), out[1])
	assert.Equal(t, uint16(3), binary.LittleEndian.Uint16(out[2:]))
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(out[4:]))
	assert.Equal(t, int32(42), int32(binary.LittleEndian.Uint32(out[8:])))
	assert.Equal(t, float32(1.5), math.Float32frombits(binary.LittleEndian.Uint32(out[12:])))

	block := out[traceHeader:]
	assert.Equal(t, byte(blockTime), block[0])
	assert.Equal(t, float32(-1e-6), math.Float32frombits(binary.LittleEndian.Uint32(block[1:])))
	block = block[1+4*3:]
	assert.Equal(t, byte(blockCH2), block[0], "disabled CH1 is left out")
	assert.Equal(t, float32(-0.5), math.Float32frombits(binary.LittleEndian.Uint32(block[5:])))
}

type frameLog struct {
	mu        sync.Mutex
	seqs      []uint64
	intervals []float64
}

func (l *frameLog) WriteFrame(f *scope.Frame, interval float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seqs = append(l.seqs, f.Seq)
	l.intervals = append(l.intervals, interval)
	return nil
}

func (l *frameLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seqs)
}

func TestRunDisplayFeedsSinks(t *testing.T) {
	s, _ := newTestSession(t, testConfig(t), sineSim())
	sink := &frameLog{}

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Loop().Run(gctx) })
	g.Go(func() error { return runDisplay(gctx, s, nil, log.New(io.Discard), sink) })

	require.Eventually(t, func() bool {
		return sink.count() >= 3 && s.LastTrace() != nil
	}, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, g.Wait())

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for i := 1; i < len(sink.seqs); i++ {
		assert.Greater(t, sink.seqs[i], sink.seqs[i-1], "each frame is passed on once")
	}
	for _, iv := range sink.intervals {
		assert.Equal(t, scope.Timebases[fastTimebase].Interval, iv)
	}
}
