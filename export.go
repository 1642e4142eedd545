package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/strftime"

	"github.com/dso/pkg/scope"
)

var errFormat = errors.New("unknown export format")

// Exporter saves the raw frame on display as a calibrated trace file.
type Exporter struct {
	dir     string
	pattern *strftime.Strftime
}

func NewExporter(cfg ExportConfig) (*Exporter, error) {
	pattern := cfg.Pattern
	if pattern == "" {
		pattern = DefaultConfig().Export.Pattern
	}
	p, err := strftime.New(pattern)
	if err != nil {
		return nil, fmt.Errorf("export pattern %q: %w", pattern, err)
	}
	return &Exporter{dir: cfg.Dir, pattern: p}, nil
}

// Name returns the file name for an export made at t.
func (e *Exporter) Name(t time.Time, ext string) string {
	return filepath.Join(e.dir, e.pattern.FormatString(t)+ext)
}

// ExportResult describes a written trace file.
type ExportResult struct {
	Path    string
	ID      uuid.UUID
	Samples int
}

func exportExt(format string) (string, error) {
	switch format {
	case "", "csv":
		return ".csv", nil
	case "parquet":
		return ".parquet", nil
	}
	return "", fmt.Errorf("%w %q", errFormat, format)
}

// Export writes the current frame of s in format ("csv" or "parquet").
func (e *Exporter) Export(s *Session, format string, now time.Time) (ExportResult, error) {
	ext, err := exportExt(format)
	if err != nil {
		return ExportResult{}, err
	}
	if e.dir != "" {
		if err := os.MkdirAll(e.dir, 0755); err != nil {
			return ExportResult{}, err
		}
	}
	path := e.Name(now, ext)
	return e.ExportFile(s, format, path, now)
}

// ExportFile is Export to an explicit path.
func (e *Exporter) ExportFile(s *Session, format, path string, now time.Time) (ExportResult, error) {
	f, err := os.Create(path)
	if err != nil {
		return ExportResult{}, err
	}
	res, err := exportTo(f, s, format, now)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return ExportResult{}, err
	}
	res.Path = path
	return res, nil
}

func exportTo(w io.Writer, s *Session, format string, now time.Time) (ExportResult, error) {
	if _, err := exportExt(format); err != nil {
		return ExportResult{}, err
	}
	acq, ch1, ch2 := s.Snapshot()
	arena := s.Loop().Arena()
	fr := arena.Acquire()
	if fr == nil {
		return ExportResult{}, scope.ErrNoFrame
	}
	defer arena.Release(fr)

	depth := min(fr.Depth, acq.MemDepth)
	res := ExportResult{ID: uuid.New(), Samples: depth}
	if format == "parquet" {
		meta := TraceMetadata{
			ID:             res.ID.String(),
			Timestamp:      now.Format(time.RFC3339),
			Timebase:       scope.Timebases[acq.Timebase].Label,
			SampleInterval: acq.SampleInterval,
			Seq:            fr.Seq,
			Trigger:        fr.Trigger,
			Edge:           fr.Edge.String(),
			Ranges:         [2]string{ch1.Range.String(), ch2.Range.String()},
		}
		samples := scope.TraceSamples(fr.Data, depth, acq.SampleInterval, &ch1, &ch2)
		return res, WriteTraceParquet(w, samples, &meta)
	}
	return res, scope.WriteTrace(w, fr.Data, depth, acq.SampleInterval, &ch1, &ch2)
}
