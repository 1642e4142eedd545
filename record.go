package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dso/pkg/device"
	"github.com/dso/pkg/scope"
)

var errRecording = errors.New("already recording")

// RecordStatus reports the state of the raw frame recorder.
type RecordStatus struct {
	Recording bool   `json:"recording"`
	File      string `json:"file"`
	Frames    int    `json:"frames"`
	Limit     int    `json:"limit"` // 0 records until stopped
}

// FrameRecorder writes published frames to a zstd recording that the
// replay device can play back.
type FrameRecorder struct {
	mu     sync.Mutex
	file   *os.File
	rec    *device.Recorder
	status RecordStatus
	logger *log.Logger
}

func NewFrameRecorder(logger *log.Logger) *FrameRecorder {
	if logger == nil {
		logger = log.Default()
	}
	return &FrameRecorder{logger: logger}
}

// Start opens path and records up to limit frames (0 for no limit).
func (r *FrameRecorder) Start(path string, limit int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rec != nil {
		return errRecording
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	rec, err := device.NewRecorder(f)
	if err != nil {
		f.Close()
		return err
	}
	r.file, r.rec = f, rec
	r.status = RecordStatus{Recording: true, File: path, Limit: limit}
	r.logger.Info("recording started", "file", path, "limit", limit)
	return nil
}

// WriteFrame implements frameSink. It does nothing while not recording.
func (r *FrameRecorder) WriteFrame(f *scope.Frame, interval float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rec == nil {
		return nil
	}
	if err := r.rec.WriteFrame(f, interval); err != nil {
		r.stopLocked()
		return err
	}
	r.status.Frames = r.rec.Frames()
	if r.status.Limit > 0 && r.status.Frames >= r.status.Limit {
		return r.stopLocked()
	}
	return nil
}

// Stop finishes the recording and returns its final status.
func (r *FrameRecorder) Stop() (RecordStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.stopLocked()
	return r.status, err
}

func (r *FrameRecorder) stopLocked() error {
	if r.rec == nil {
		return nil
	}
	start := time.Now()
	err := r.rec.Close()
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	r.rec, r.file = nil, nil
	r.status.Recording = false
	r.logger.Info("recording stopped", "file", r.status.File, "frames", r.status.Frames, "flush", time.Since(start))
	return err
}

func (r *FrameRecorder) Status() RecordStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}
