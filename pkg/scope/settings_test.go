package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{Auto, Normal, Single, Hold} {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMode("sometimes")
	assert.Error(t, err)
}

func TestTimebaseTable(t *testing.T) {
	require.Len(t, Timebases, 21)
	for i, tb := range Timebases {
		assert.LessOrEqual(t, tb.DisplayDepth, MinDepth, "entry %d", i)
		assert.LessOrEqual(t, tb.MemDepth, MaxDepth, "entry %d", i)
		assert.InDelta(t, 1/tb.Rate.Hz(), tb.Interval, 1e-12, "entry %d", i)
		if i > 0 {
			assert.Greater(t, tb.TimePerDiv, Timebases[i-1].TimePerDiv)
		}
	}
	assert.Equal(t, 1e-3, Timebases[DefaultTimebase].TimePerDiv)
}

func TestApplyTimebaseLockedWhileStopped(t *testing.T) {
	acq := DefaultAcquisition()
	require.Equal(t, Stop, acq.Status)

	// same 16Ms/s interval: allowed
	require.NoError(t, acq.ApplyTimebase(DefaultTimebase-1))
	assert.Equal(t, 500e-6, acq.TimePerDiv)

	assert.ErrorIs(t, acq.ApplyTimebase(0), ErrTimebaseLocked)
	assert.Equal(t, DefaultTimebase-1, acq.Timebase)

	acq.Status = Run
	acq.Mode = Single
	assert.ErrorIs(t, acq.ApplyTimebase(0), ErrTimebaseLocked)

	acq.Mode = Normal
	require.NoError(t, acq.ApplyTimebase(0))
	assert.True(t, acq.Upsampled())
	assert.Error(t, acq.ApplyTimebase(len(Timebases)))
}

func TestApplyTimebaseKeepsDelay(t *testing.T) {
	acq := DefaultAcquisition()
	acq.Status = Run
	acq.SetDelay(1e-3)
	require.NoError(t, acq.ApplyTimebase(19))
	assert.InDelta(t, 1e-3, acq.Delay(), 1e-12)
	assert.InDelta(t, 1000, float64(acq.TriggerDelay)+acq.TriggerOffset/acq.SampleInterval, 1e-6)
}

func TestSetDelaySplitsFraction(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		acq := DefaultAcquisition()
		seconds := rapid.Float64Range(0, 0.1).Draw(t, "seconds")
		acq.SetDelay(seconds)

		assert.GreaterOrEqual(t, acq.TriggerOffset, 0.0)
		assert.Less(t, acq.TriggerOffset, acq.SampleInterval)
		assert.InDelta(t, seconds, acq.Delay(), 1e-12)
	})
}

func TestApplyPresetUsesCalibration(t *testing.T) {
	cal := DefaultCalibration()
	cal.ScaleFactor = 1.02
	cal.Zero[1][3] = -4

	var c ChannelConfig
	require.NoError(t, c.ApplyPreset(2, 3, &cal))
	assert.Equal(t, Range2V, c.Range)
	assert.InDelta(t, 1.02, c.VScale, 1e-12)
	assert.Equal(t, 0.2, c.VoltsPerDiv)
	assert.Equal(t, -4.0, c.Zero)

	assert.Error(t, c.ApplyPreset(1, NumRanges, &cal))
	assert.Equal(t, 3, c.RangeIndex)
}

func TestTriggerLevel(t *testing.T) {
	c := ChannelConfig{VScale: 5, Zero: 2}
	assert.Equal(t, byte(130), TriggerLevel(0, &c))
	assert.Equal(t, byte(194), TriggerLevel(2.5, &c))
	assert.Equal(t, byte(255), TriggerLevel(50, &c))
	assert.Equal(t, byte(0), TriggerLevel(-50, &c))
}

func TestVoltsInvertsTriggerLevel(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := Presets[rapid.IntRange(0, NumRanges-1).Draw(t, "preset")]
		c := ChannelConfig{VScale: p.VScale, Zero: float64(rapid.IntRange(-10, 10).Draw(t, "zero"))}
		raw := rapid.ByteRange(20, 235).Draw(t, "raw")

		assert.Equal(t, raw, TriggerLevel(c.Volts(raw)+c.VScale/1024, &c))
	})
}

func TestAcquisitionAt(t *testing.T) {
	acq, err := AcquisitionAt(0)
	require.NoError(t, err)
	assert.Equal(t, Stop, acq.Status)
	assert.Equal(t, Rate48M, acq.Rate)
	assert.Equal(t, 1024/20+32, acq.DisplayDepth)
	assert.True(t, acq.Upsampled())

	_, err = AcquisitionAt(-1)
	assert.Error(t, err)
}
