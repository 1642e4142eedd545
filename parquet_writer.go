package main

import (
	"encoding/json"
	"io"

	"github.com/segmentio/parquet-go"

	"github.com/dso/pkg/scope"
)

// TraceRow is one exported sample: the time and both channels in volts.
type TraceRow struct {
	T   float64 `parquet:"t"`
	CH1 float64 `parquet:"ch1"`
	CH2 float64 `parquet:"ch2"`
}

// TraceMetadata is stored as JSON in the file's "capture" key.
type TraceMetadata struct {
	ID             string    `json:"id"`
	Timestamp      string    `json:"timestamp"`
	Timebase       string    `json:"timebase"`
	SampleInterval float64   `json:"sample_interval"`
	Seq            uint64    `json:"seq"`
	Trigger        int       `json:"trigger"`
	Edge           string    `json:"edge"`
	Ranges         [2]string `json:"ranges"`
}

// NewParquetWriter creates a generic parquet writer with our schema and metadata
func NewParquetWriter(w io.Writer, meta *TraceMetadata) *parquet.GenericWriter[TraceRow] {
	metaStr := "{}"
	if meta != nil {
		b, _ := json.Marshal(meta)
		metaStr = string(b)
	}

	return parquet.NewGenericWriter[TraceRow](w,
		parquet.KeyValueMetadata("capture", metaStr),
	)
}

// WriteTraceParquet writes samples as one parquet file.
func WriteTraceParquet(w io.Writer, samples []scope.TraceSample, meta *TraceMetadata) error {
	writer := NewParquetWriter(w, meta)

	rows := make([]TraceRow, len(samples))
	for i, s := range samples {
		rows[i] = TraceRow{T: s.Time, CH1: s.CH1, CH2: s.CH2}
	}
	if _, err := writer.Write(rows); err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}
