//go:build linux

package device

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dso/pkg/scope"
)

func TestPipeReadsFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scope_fifo")
	require.NoError(t, MakeFIFO(path))

	frame := make([]byte, 2*scope.MinDepth)
	for i := range frame {
		frame[i] = byte(i)
	}

	writeErr := make(chan error, 1)
	go func() {
		w, err := os.OpenFile(path, os.O_WRONLY, 0)
		if err != nil {
			writeErr <- err
			return
		}
		defer w.Close()
		// one and a half frames, split across writes
		if _, err := w.Write(frame[:100]); err != nil {
			writeErr <- err
			return
		}
		if _, err := w.Write(frame[100:]); err != nil {
			writeErr <- err
			return
		}
		_, err = w.Write(frame[:scope.MinDepth])
		writeErr <- err
	}()

	p, err := OpenPipe(path)
	require.NoError(t, err)
	defer p.Close()

	buf := make([]byte, 2*scope.MinDepth)
	require.NoError(t, p.ReadRaw(buf, scope.MinDepth, scope.BothChannels))
	assert.Equal(t, frame, buf)
	require.NoError(t, <-writeErr)

	err = p.ReadRaw(buf, scope.MinDepth, scope.BothChannels)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF), "got %v", err)
	assert.NoError(t, p.SelectRange(2, scope.Range2V))
	assert.Error(t, p.SelectRange(0, scope.Range2V))
}

func TestOpenPipeMissing(t *testing.T) {
	_, err := OpenPipe(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
