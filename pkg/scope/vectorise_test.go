package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func drawChannel(t *rapid.T) ChannelConfig {
	p := Presets[rapid.IntRange(0, NumRanges-1).Draw(t, "preset")]
	return ChannelConfig{
		VScale:      p.VScale,
		VoltsPerDiv: p.VoltsPerDiv,
		Range:       p.Range,
		VOffset:     rapid.Float64Range(-1, 1).Draw(t, "offset"),
		Zero:        float64(rapid.IntRange(-20, 20).Draw(t, "zero")),
		Inverted:    rapid.Bool().Draw(t, "inverted"),
		Enabled:     true,
	}
}

func linearValue(b byte, ch *ChannelConfig, native bool) float64 {
	scale := ch.VScale / (128 * 4 * ch.VoltsPerDiv)
	if ch.Inverted && !native {
		scale = -scale
	}
	return ch.VOffset - (ch.Zero+128)*scale + scale*float64(b)
}

func TestVectoriseLinearConstant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ch := drawChannel(t)
		b := rapid.Byte().Draw(t, "b")
		n := rapid.IntRange(1, MinDepth).Draw(t, "n")
		native := rapid.Bool().Draw(t, "native")

		src := make([]byte, n)
		for i := range src {
			src[i] = b
		}
		dst := make([]float64, MinDepth)
		require.Equal(t, n, Vectorise(dst, src, &ch, n, false, native))

		want := linearValue(b, &ch, native)
		for i := 0; i < n; i++ {
			assert.InDelta(t, want, dst[i], 1e-12)
		}
	})
}

func TestVectoriseUpsampleDCGain(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ch := drawChannel(t)
		b := rapid.Byte().Draw(t, "b")
		n := rapid.IntRange(UpsampleFactor, MinDepth).Draw(t, "n")

		src := make([]byte, MinDepth)
		for i := range src {
			src[i] = b
		}
		dst := make([]float64, MinDepth)
		written := Vectorise(dst, src, &ch, n, true, false)
		require.Equal(t, (n-UpsampleFactor)/UpsampleFactor*UpsampleFactor, written)

		want := linearValue(b, &ch, false)
		for i := 0; i < written; i++ {
			assert.InDelta(t, want, dst[i], 1e-9, "output %d", i)
		}
	})
}

func TestVectoriseUpsampleCentreTap(t *testing.T) {
	ch := ChannelConfig{VScale: 5, VoltsPerDiv: 1}
	src := pattern(MinDepth/2, 7)
	dst := make([]float64, MinDepth)

	written := Vectorise(dst, src, &ch, MinDepth, true, false)
	require.Positive(t, written)
	// phase 0 is the unit impulse: every fifth output is a raw sample
	for i := 0; i < written/UpsampleFactor; i++ {
		assert.InDelta(t, linearValue(src[i+5], &ch, false), dst[UpsampleFactor*i+4], 1e-12)
	}
}

func TestVectoriseUpsampleShortSource(t *testing.T) {
	ch := ChannelConfig{VScale: 5, VoltsPerDiv: 1}
	dst := make([]float64, MinDepth)

	assert.Equal(t, 0, Vectorise(dst, make([]byte, upsampleTaps-1), &ch, MinDepth, true, false))
	assert.Equal(t, 2*UpsampleFactor, Vectorise(dst, make([]byte, upsampleTaps+1), &ch, MinDepth, true, false))
	assert.Equal(t, 0, Vectorise(dst, make([]byte, MinDepth), &ch, 4, true, false))
}

func TestVectoriseInversion(t *testing.T) {
	ch := ChannelConfig{VScale: 5, VoltsPerDiv: 1, Inverted: true, VOffset: 0.25}
	src := []byte{200}
	dst := make([]float64, 1)

	Vectorise(dst, src, &ch, 1, false, false)
	inverted := dst[0]
	Vectorise(dst, src, &ch, 1, false, true)
	native := dst[0]

	assert.InDelta(t, 0.25, (inverted+native)/2, 1e-12, "inversion mirrors about the offset")
	assert.Greater(t, native, inverted)
}
