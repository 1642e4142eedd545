package hantek

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dso/pkg/scope"
)

type request struct {
	req  byte
	data []byte
}

// fakeTransport records control requests and serves a counting pattern in
// fixed-size bulk packets.
type fakeTransport struct {
	requests []request
	packet   int
	served   int
	bulkErr  error
	empty    bool
	closed   bool
}

func (f *fakeTransport) control(req byte, data []byte) error {
	f.requests = append(f.requests, request{req, append([]byte(nil), data...)})
	return nil
}

func (f *fakeTransport) bulk(buf []byte) (int, error) {
	if f.bulkErr != nil {
		return 0, f.bulkErr
	}
	if f.empty {
		return 0, nil
	}
	n := min(len(buf), f.packet)
	for i := range n {
		buf[i] = byte(f.served + i)
	}
	f.served += n
	return n, nil
}

func (f *fakeTransport) close() error {
	f.closed = true
	return nil
}

func TestReadRawStartsCaptureAndFillsBuffer(t *testing.T) {
	ft := &fakeTransport{packet: 700}
	s := newScope(ft, nil)

	buf := make([]byte, 2*scope.MinDepth+10)
	require.NoError(t, s.ReadRaw(buf, scope.MinDepth, scope.BothChannels))

	require.Len(t, ft.requests, 1)
	assert.Equal(t, request{reqStart, []byte{1}}, ft.requests[0])
	assert.Equal(t, 2*scope.MinDepth, ft.served)
	for i := 0; i < 2*scope.MinDepth; i++ {
		require.Equal(t, byte(i), buf[i], "byte %d", i)
	}
	assert.Zero(t, buf[2*scope.MinDepth], "no bytes past the frame")
}

func TestReadRawChunksLargeFrames(t *testing.T) {
	ft := &fakeTransport{packet: 1 << 30}
	s := newScope(ft, nil)
	buf := make([]byte, 2*scope.MaxDepth)
	require.NoError(t, s.ReadRaw(buf, scope.MaxDepth, scope.BothChannels))
	assert.Equal(t, 2*scope.MaxDepth, ft.served)
}

func TestReadRawFailures(t *testing.T) {
	s := newScope(&fakeTransport{packet: 64}, nil)
	assert.Error(t, s.ReadRaw(make([]byte, 10), scope.MinDepth, 0))

	s = newScope(&fakeTransport{empty: true}, nil)
	err := s.ReadRaw(make([]byte, 2*scope.MinDepth), scope.MinDepth, 0)
	assert.ErrorIs(t, err, ErrShortRead)

	boom := errors.New("pipe error")
	s = newScope(&fakeTransport{bulkErr: boom}, nil)
	err = s.ReadRaw(make([]byte, 2*scope.MinDepth), scope.MinDepth, 0)
	assert.ErrorIs(t, err, boom)
}

func TestSelectRangeAndRate(t *testing.T) {
	ft := &fakeTransport{}
	s := newScope(ft, nil)

	require.NoError(t, s.SelectRange(1, scope.Range2V))
	require.NoError(t, s.SelectRange(2, scope.Range1V))
	require.NoError(t, s.SetSampleRate(scope.Rate48M))
	assert.Equal(t, []request{
		{reqCH1Range, []byte{5}},
		{reqCH2Range, []byte{10}},
		{reqSampleRate, []byte{48}},
	}, ft.requests)
	assert.Equal(t, scope.Rate48M, s.Rate())

	assert.Error(t, s.SelectRange(3, scope.Range2V))
	assert.Error(t, s.SelectRange(1, scope.InputRange(3)))
	assert.Error(t, s.SetSampleRate(0))
	assert.Len(t, ft.requests, 3)

	require.NoError(t, s.Close())
	assert.True(t, ft.closed)
}

func TestInfoState(t *testing.T) {
	assert.Equal(t, "ready", Info{VendorID: "04b5", ProductID: "6022"}.State())
	assert.Equal(t, "ready", Info{VendorID: "04B5", ProductID: "6022"}.State())
	assert.Equal(t, "no firmware", Info{VendorID: "04b4", ProductID: "6022"}.State())
	assert.Equal(t, "unknown", Info{VendorID: "04b5", ProductID: "6021"}.State())
}

func TestCloseAllKeepsFirstError(t *testing.T) {
	errRelease := errors.New("release interface")
	var ran []string
	step := func(name string, err error) func() error {
		return func() error {
			ran = append(ran, name)
			return err
		}
	}

	err := closeAll(
		step("release", errRelease),
		step("handle", errors.New("close handle")),
		step("context", nil),
	)
	assert.ErrorIs(t, err, errRelease)
	assert.Equal(t, []string{"release", "handle", "context"}, ran)

	assert.NoError(t, closeAll(step("a", nil), step("b", nil)))
}
