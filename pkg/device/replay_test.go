package device

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dso/pkg/scope"
)

func recordFrames(t *testing.T, frames ...*scope.Frame) []byte {
	t.Helper()
	var buf bytes.Buffer
	rec, err := NewRecorder(&buf)
	require.NoError(t, err)
	for _, f := range frames {
		require.NoError(t, rec.WriteFrame(f, 1/16e6))
	}
	assert.Equal(t, len(frames), rec.Frames())
	require.NoError(t, rec.Close())
	return buf.Bytes()
}

func simFrame(t *testing.T, sim *Simulator, depth int, seq uint64) *scope.Frame {
	t.Helper()
	data := make([]byte, 2*depth)
	require.NoError(t, sim.ReadRaw(data, depth, scope.BothChannels))
	return &scope.Frame{
		Data:    data,
		Depth:   depth,
		Trigger: scope.FindTrigger(data, 0, scope.Rising, 128),
		Edge:    scope.Rising,
		Seq:     seq,
	}
}

func TestRecordingRoundTrip(t *testing.T) {
	sim := NewSimulator(DefaultSimConfig())
	f1 := simFrame(t, sim, scope.MinDepth, 1)
	f2 := simFrame(t, sim, 4*scope.MinDepth, 2)

	records, err := ReadRecording(bytes.NewReader(recordFrames(t, f1, f2)))
	require.NoError(t, err)
	require.Len(t, records, 2)

	for i, f := range []*scope.Frame{f1, f2} {
		assert.Equal(t, f.Seq, records[i].Seq)
		assert.Equal(t, f.Trigger, records[i].Trigger)
		assert.Equal(t, f.Edge, records[i].Edge)
		assert.Equal(t, f.Depth, records[i].Depth())
		assert.Equal(t, 1/16e6, records[i].Interval)
		assert.Equal(t, f.Data, records[i].Data)
	}
}

func TestReadRecordingRejectsGarbage(t *testing.T) {
	_, err := ReadRecording(bytes.NewReader([]byte("not zstd at all")))
	assert.Error(t, err)

	for _, hdr := range []recordHeader{
		{Magic: 1, Depth: 1},
		{Magic: recordMagic, Depth: 0},
		{Magic: recordMagic, Depth: scope.MaxDepth + 1},
	} {
		var buf bytes.Buffer
		enc, err := zstd.NewWriter(&buf)
		require.NoError(t, err)
		require.NoError(t, binary.Write(enc, binary.LittleEndian, &hdr))
		require.NoError(t, enc.Close())

		records, err := ReadRecording(&buf)
		assert.Error(t, err, "%+v", hdr)
		assert.Empty(t, records)
	}
}

func TestReplayCycles(t *testing.T) {
	sim := NewSimulator(DefaultSimConfig())
	f1 := simFrame(t, sim, scope.MinDepth, 1)
	f2 := simFrame(t, sim, scope.MinDepth, 2)

	path := filepath.Join(t.TempDir(), "frames.zst")
	require.NoError(t, os.WriteFile(path, recordFrames(t, f1, f2), 0o644))

	rp, err := OpenReplay(path)
	require.NoError(t, err)
	require.Equal(t, 2, rp.Len())

	buf := make([]byte, 2*scope.MinDepth)
	for _, want := range []*scope.Frame{f1, f2, f1} {
		require.NoError(t, rp.ReadRaw(buf, scope.MinDepth, scope.BothChannels))
		assert.Equal(t, want.Data, buf)
	}

	// deeper reads repeat the recorded samples
	deep := make([]byte, 3*len(f2.Data))
	require.NoError(t, rp.ReadRaw(deep, 3*scope.MinDepth, scope.BothChannels))
	for i := 0; i < 3; i++ {
		assert.Equal(t, f2.Data, deep[i*len(f2.Data):(i+1)*len(f2.Data)])
	}
}

func TestNewReplayEmpty(t *testing.T) {
	_, err := NewReplay(nil)
	assert.Error(t, err)
}
