package device

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/dso/pkg/scope"
)

const recordMagic = 0x464F5344 // "DSOF"

// recordHeader precedes the raw bytes of every recorded frame.
type recordHeader struct {
	Magic    uint32
	Depth    uint32
	Trigger  int32
	Edge     uint8
	_        [3]byte
	Interval float64
	Seq      uint64
}

// Record is one recorded frame.
type Record struct {
	Seq      uint64
	Trigger  int
	Edge     scope.Edge
	Interval float64 // seconds per sample
	Data     []byte  // interleaved CH1/CH2
}

// Depth returns the number of sample pairs in the record.
func (r *Record) Depth() int { return len(r.Data) / 2 }

// Recorder appends frames to a zstd compressed stream.
type Recorder struct {
	enc    *zstd.Encoder
	frames int
}

// NewRecorder starts a recording on w. Close must be called to flush it.
func NewRecorder(w io.Writer) (*Recorder, error) {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	return &Recorder{enc: enc}, nil
}

// WriteFrame appends a published frame sampled every interval seconds.
func (r *Recorder) WriteFrame(f *scope.Frame, interval float64) error {
	hdr := recordHeader{
		Magic:    recordMagic,
		Depth:    uint32(f.Depth),
		Trigger:  int32(f.Trigger),
		Edge:     uint8(f.Edge),
		Interval: interval,
		Seq:      f.Seq,
	}
	if err := binary.Write(r.enc, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("record header: %w", err)
	}
	if _, err := r.enc.Write(f.Data[:2*f.Depth]); err != nil {
		return fmt.Errorf("record data: %w", err)
	}
	r.frames++
	return nil
}

// Frames returns the number of frames written.
func (r *Recorder) Frames() int { return r.frames }

// Close flushes the stream. It does not close the underlying writer.
func (r *Recorder) Close() error {
	return r.enc.Close()
}

// ReadRecording decodes every frame of a recording.
func ReadRecording(rd io.Reader) ([]Record, error) {
	dec, err := zstd.NewReader(rd)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	var out []Record
	for {
		var hdr recordHeader
		if err := binary.Read(dec, binary.LittleEndian, &hdr); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, fmt.Errorf("record %d header: %w", len(out), err)
		}
		if hdr.Magic != recordMagic {
			return out, fmt.Errorf("record %d: bad magic %#x", len(out), hdr.Magic)
		}
		if hdr.Depth == 0 || hdr.Depth > scope.MaxDepth {
			return out, fmt.Errorf("record %d: depth %d out of range", len(out), hdr.Depth)
		}
		rec := Record{
			Seq:      hdr.Seq,
			Trigger:  int(hdr.Trigger),
			Edge:     scope.Edge(hdr.Edge),
			Interval: hdr.Interval,
			Data:     make([]byte, 2*hdr.Depth),
		}
		if _, err := io.ReadFull(dec, rec.Data); err != nil {
			return out, fmt.Errorf("record %d data: %w", len(out), err)
		}
		out = append(out, rec)
	}
}

// Replay serves recorded frames in a loop, one per read. A read deeper than
// the recording repeats the recorded samples to fill the buffer.
type Replay struct {
	mu      sync.Mutex
	records []Record
	next    int
}

// NewReplay returns a replay device over records.
func NewReplay(records []Record) (*Replay, error) {
	if len(records) == 0 {
		return nil, errors.New("replay: empty recording")
	}
	return &Replay{records: records}, nil
}

// OpenReplay loads the recording at path.
func OpenReplay(path string) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := ReadRecording(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewReplay(records)
}

// Len returns the number of recorded frames.
func (r *Replay) Len() int { return len(r.records) }

// ReadRaw implements scope.Device.
func (r *Replay) ReadRaw(buf []byte, depth int, _ uint8) error {
	want := 2 * depth
	if depth <= 0 || len(buf) < want {
		return fmt.Errorf("replay: buffer of %d bytes for depth %d", len(buf), depth)
	}
	r.mu.Lock()
	rec := &r.records[r.next]
	r.next = (r.next + 1) % len(r.records)
	r.mu.Unlock()

	for n := 0; n < want; {
		n += copy(buf[n:want], rec.Data)
	}
	return nil
}

// SelectRange implements scope.Device. The recording fixed the ranges.
func (r *Replay) SelectRange(int, scope.InputRange) error { return nil }
