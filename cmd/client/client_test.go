package main

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func message(seq uint32, blocks map[byte][]float32) []byte {
	n := 0
	for _, v := range blocks {
		n = len(v)
	}
	b := make([]byte, 16)
	b[0] = 'T'
	b[1] = byte(len(blocks))
	binary.LittleEndian.PutUint16(b[2:], uint16(n))
	binary.LittleEndian.PutUint32(b[4:], seq)
	binary.LittleEndian.PutUint32(b[8:], 100)
	binary.LittleEndian.PutUint32(b[12:], math.Float32bits(2.5))
	for id := byte(0); id < 3; id++ {
		v, ok := blocks[id]
		if !ok {
			continue
		}
		b = append(b, id)
		for _, x := range v {
			b = binary.LittleEndian.AppendUint32(b, math.Float32bits(x))
		}
	}
	return b
}

func TestDecodeTrace(t *testing.T) {
	msg := message(9, map[byte][]float32{0: {0, 1, 2}, 1: {-1, 0.5, 3}})
	tr, err := decodeTrace(msg)
	require.NoError(t, err)
	assert.Equal(t, uint32(9), tr.seq)
	assert.Equal(t, int32(100), tr.trigger)
	assert.Equal(t, float32(2.5), tr.triggerPos)
	assert.Equal(t, []float32{-1, 0.5, 3}, tr.blocks[1])
	assert.Nil(t, tr.blocks[2])

	lo, hi := span(tr.blocks[1])
	assert.Equal(t, float32(-1), lo)
	assert.Equal(t, float32(3), hi)

	_, err = decodeTrace(msg[:len(msg)-1])
	assert.Error(t, err)
	_, err = decodeTrace([]byte("{}"))
	assert.Error(t, err)
}
