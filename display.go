package main

import (
	"context"
	"encoding/binary"
	"errors"
	"math"

	"github.com/charmbracelet/log"

	"github.com/dso/pkg/scope"
)

// frameSink receives every newly published raw frame.
type frameSink interface {
	WriteFrame(f *scope.Frame, interval float64) error
}

// Binary trace message: a 16 byte header followed by the time axis and one
// block per enabled channel, each introduced by its channel number.
const (
	traceMagic  = 'T'
	blockTime   = 0
	blockCH1    = 1
	blockCH2    = 2
	traceHeader = 16
)

// encodeTrace packs tr for the websocket clients as little-endian float32.
func encodeTrace(tr *Trace) []byte {
	n := len(tr.Time)
	blocks := 1
	if tr.CH1 != nil {
		blocks++
	}
	if tr.CH2 != nil {
		blocks++
	}
	out := make([]byte, traceHeader, traceHeader+blocks*(1+4*n))
	out[0] = traceMagic
	out[1] = byte(blocks)
	binary.LittleEndian.PutUint16(out[2:], uint16(n))
	binary.LittleEndian.PutUint32(out[4:], uint32(tr.Seq))
	binary.LittleEndian.PutUint32(out[8:], uint32(int32(tr.Trigger)))
	binary.LittleEndian.PutUint32(out[12:], math.Float32bits(float32(tr.TriggerPos)))

	put := func(id byte, v []float64) {
		out = append(out, id)
		for _, f := range v {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(float32(f)))
		}
	}
	put(blockTime, tr.Time)
	if tr.CH1 != nil {
		put(blockCH1, tr.CH1)
	}
	if tr.CH2 != nil {
		put(blockCH2, tr.CH2)
	}
	return out
}

// runDisplay turns loop notifications into traces until ctx is done. Every
// new raw frame is also handed to the sinks.
func runDisplay(ctx context.Context, s *Session, hub *Hub, logger *log.Logger, sinks ...frameSink) error {
	ready := s.Loop().Ready()
	arena := s.Loop().Arena()
	var lastSeq uint64

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ready:
		}

		tr, err := s.Update()
		switch {
		case errors.Is(err, errStopped), errors.Is(err, scope.ErrNoFrame):
		case err != nil:
			logger.Debug("frame not displayed", "err", err)
		case tr != nil:
			hub.Broadcast(encodeTrace(tr))
		}

		if len(sinks) == 0 {
			continue
		}
		f := arena.Acquire()
		if f == nil {
			continue
		}
		if f.Seq != lastSeq {
			lastSeq = f.Seq
			acq, _, _ := s.Snapshot()
			for _, sink := range sinks {
				if err := sink.WriteFrame(f, acq.SampleInterval); err != nil {
					logger.Warn("frame sink", "err", err)
				}
			}
		}
		arena.Release(f)
	}
}
