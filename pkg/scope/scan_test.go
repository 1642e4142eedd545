package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// pattern fills a raw frame with bytes that differ between neighbours.
func pattern(depth int, seed byte) []byte {
	raw := make([]byte, 2*depth)
	for i := range raw {
		raw[i] = byte(i*31+i/7) ^ seed
	}
	return raw
}

func TestScanDecimationCount(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		depth := rapid.IntRange(MinDepth, 4*MinDepth).Draw(t, "depth")
		sub := rapid.IntRange(1, 64).Draw(t, "sub")
		capacity := rapid.IntRange(1, MinDepth).Draw(t, "capacity")
		trigger := rapid.IntRange(TriggerGuard, depth-1).Draw(t, "trigger")
		channel := rapid.IntRange(0, 1).Draw(t, "channel")
		raw := pattern(depth, rapid.Byte().Draw(t, "seed"))

		s := Scanner{SubSample: sub, MemDepth: depth}
		dst := make([]byte, capacity)
		n := s.Scan(dst, raw, trigger, channel, false)

		require.Equal(t, min(capacity, (depth-trigger)/sub), n)
		for k := 0; k < n; k++ {
			assert.Equal(t, raw[2*(trigger-TriggerGuard+k*sub)+channel], dst[k], "output %d", k)
		}
	})
}

func TestScanSkipsUnreliableStart(t *testing.T) {
	raw := pattern(MinDepth, 0)
	dst := make([]byte, MinDepth)
	for i := range dst {
		dst[i] = 0xAA
	}

	s := Scanner{SubSample: 1, MemDepth: MinDepth}
	n := s.Scan(dst, raw, 0, 1, false)

	lead := TriggerGuard + badSamples
	assert.Equal(t, MinDepth-lead, n)
	for k := 0; k < lead; k++ {
		assert.Equal(t, byte(0xAA), dst[k], "leading output %d must be left alone", k)
	}
	for k := lead; k < n; k++ {
		assert.Equal(t, raw[2*(k-TriggerGuard)+1], dst[k])
	}
}

func TestScanNeverOverrunsRaw(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		depth := rapid.IntRange(16, 2*MinDepth).Draw(t, "depth")
		sub := rapid.IntRange(1, 200).Draw(t, "sub")
		trigger := rapid.IntRange(0, depth).Draw(t, "trigger")
		glitch := rapid.Bool().Draw(t, "glitch")

		// MemDepth claims more than the slice holds
		s := Scanner{SubSample: sub, MemDepth: 2 * depth}
		dst := make([]byte, MinDepth)
		n := s.Scan(dst, pattern(depth, 1), trigger, 0, glitch)
		assert.LessOrEqual(t, n, len(dst))
	})
}

func TestScanGlitchKeepsImpulse(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sub := rapid.IntRange(2, 64).Draw(t, "sub")
		high := rapid.Bool().Draw(t, "high")
		depth := 32 * MinDepth
		capacity := MinDepth / 4

		base, spike := byte(100), byte(250)
		if !high {
			spike = 3
		}
		raw := make([]byte, 2*depth)
		for i := range raw {
			raw[i] = base
		}
		// keep clear of the last two windows, which are not emitted
		pos := rapid.IntRange(0, sub*(capacity-3)).Draw(t, "pos")
		raw[2*pos] = spike

		s := Scanner{SubSample: sub, MemDepth: depth}
		dst := make([]byte, capacity)
		n := s.Scan(dst, raw, TriggerGuard, 0, true)
		require.Positive(t, n)
		assert.Contains(t, dst[:n], spike)
	})
}

func TestScanGlitchStatePerChannel(t *testing.T) {
	depth := MinDepth
	raw := make([]byte, 2*depth)
	for i := range raw {
		raw[i] = 128
	}
	// 63 outputs emit windows 0..61; the maximum of odd window 61 is held
	const sub, capacity = 4, 63
	raw[2*(61*sub)+1] = 255

	s := Scanner{SubSample: sub, MemDepth: depth}
	dst := make([]byte, capacity)
	s.Scan(dst, raw, TriggerGuard, 1, true)
	require.NotEqual(t, byte(255), dst[capacity-2])

	s.Scan(dst, raw, TriggerGuard, 0, true)
	assert.Equal(t, byte(128), dst[0], "channel 1 must not inherit channel 2's held maximum")
}

func TestScanGlitchFlatFrames(t *testing.T) {
	const sub, capacity = 4, 64
	flat := func(v byte) []byte {
		raw := make([]byte, 2*MinDepth)
		for i := range raw {
			raw[i] = v
		}
		return raw
	}

	// the second trigger starts on an odd window
	for _, trigger := range []int{TriggerGuard, TriggerGuard + sub} {
		s := Scanner{SubSample: sub, MemDepth: MinDepth}
		for _, level := range []byte{100, 200, 50} {
			dst := make([]byte, capacity)
			n := s.Scan(dst, flat(level), trigger, 0, true)
			require.Positive(t, n)
			for k, v := range dst[:n] {
				require.Equal(t, level, v, "trigger %d level %d output %d", trigger, level, k)
			}
		}
	}
}
