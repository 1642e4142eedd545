//go:build linux

package main

import (
	"github.com/dso/pkg/scope"
	"github.com/dso/pkg/shm_ring"
)

// shmRingSize holds a few frames of the deepest timebase.
const shmRingSize = 8 * 2 * scope.MaxDepth

// shmSink publishes raw frames for local readers such as cmd/shm_reader.
type shmSink struct {
	name string
	ring *shm_ring.ShmRing
}

func openShmSink(name string) (*shmSink, error) {
	if err := shm_ring.Remove(name); err != nil {
		return nil, err
	}
	ring, err := shm_ring.Create(name, shmRingSize)
	if err != nil {
		return nil, err
	}
	return &shmSink{name: name, ring: ring}, nil
}

func (s *shmSink) WriteFrame(f *scope.Frame, interval float64) error {
	return s.ring.WriteFrame(shm_ring.FrameHeader{
		Trigger: int32(f.Trigger),
		Edge:    uint32(f.Edge),
		Seq:     f.Seq,
		Ts:      interval,
	}, f.Data[:2*f.Depth])
}

func (s *shmSink) Close() error {
	s.ring.Close()
	return shm_ring.Remove(s.name)
}
