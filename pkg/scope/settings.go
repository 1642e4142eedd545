package scope

import (
	"errors"
	"fmt"
	"math"
)

// Mode is the trigger/run mode of the acquisition.
type Mode int32

const (
	Auto Mode = iota
	Normal
	Single
	Hold
)

func (m Mode) String() string {
	switch m {
	case Auto:
		return "auto"
	case Normal:
		return "normal"
	case Single:
		return "single"
	case Hold:
		return "hold"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode converts a mode name as used in config files and the API.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "auto", "AUTO":
		return Auto, nil
	case "normal", "NORMAL":
		return Normal, nil
	case "single", "SINGLE":
		return Single, nil
	case "hold", "HOLD":
		return Hold, nil
	}
	return Auto, fmt.Errorf("unknown mode %q", s)
}

// Status is the run/stop state selected by the user.
type Status int

const (
	Stop Status = iota
	Run
)

func (s Status) String() string {
	if s == Run {
		return "run"
	}
	return "stop"
}

// Edge selects the trigger slope.
type Edge int

const (
	Falling Edge = iota
	Rising
)

func (e Edge) String() string {
	if e == Rising {
		return "rising"
	}
	return "falling"
}

// InputRange is a front-end attenuator setting. The value is the gain code
// the instrument expects for it.
type InputRange uint8

const (
	Range10V InputRange = 1
	Range5V  InputRange = 2
	Range2V  InputRange = 5
	Range1V  InputRange = 10
)

func (r InputRange) String() string {
	switch r {
	case Range10V:
		return "10V"
	case Range5V:
		return "5V"
	case Range2V:
		return "2V"
	case Range1V:
		return "1V"
	}
	return fmt.Sprintf("range(%d)", uint8(r))
}

// FullScale returns the input voltage that drives the converter from
// mid-scale to its limit, or 0 for an unknown code.
func (r InputRange) FullScale() float64 {
	switch r {
	case Range10V:
		return 5
	case Range5V:
		return 2.5
	case Range2V:
		return 1
	case Range1V:
		return 0.5
	}
	return 0
}

// ParseRange converts a range name such as "2V".
func ParseRange(s string) (InputRange, error) {
	for _, r := range []InputRange{Range10V, Range5V, Range2V, Range1V} {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown input range %q", s)
}

// SampleRate is the device sample rate code.
type SampleRate uint8

const (
	Rate48M SampleRate = 48
	Rate16M SampleRate = 16
	Rate8M  SampleRate = 8
	Rate4M  SampleRate = 4
	Rate1M  SampleRate = 1
)

// Hz returns the sample rate in samples per second.
func (r SampleRate) Hz() float64 { return float64(r) * 1e6 }

const (
	// MinDepth is the smallest acquisition depth (samples per channel) and
	// the capacity of the display buffers.
	MinDepth = 1024
	// MaxDepth is the largest acquisition depth; arena slots hold this many
	// sample pairs.
	MaxDepth = 1024 * 1024

	// UpsampleFactor is the number of output samples produced per raw
	// sample on fast timebases.
	UpsampleFactor = 5
	// FastTimePerDiv is the slowest timebase that is still upsampled.
	FastTimePerDiv = 500e-9

	// TriggerGuard is the number of leading samples the scan positions are
	// referenced from; triggers below it are clamped.
	TriggerGuard = 8
	// badSamples counts the first samples of a read that are unreliable.
	badSamples = 5
	// TriggerWindow is the number of samples used for trigger refinement.
	TriggerWindow = 50
	// Hysteresis is the noise band, in raw counts, of the coarse search.
	Hysteresis = 4
)

// InvalidTime marks time axis entries that must not be displayed.
const InvalidTime = math.MaxFloat64

// AcquisitionConfig holds the timing and trigger state shared by the
// acquisition loop and the waveform reconstruction.
type AcquisitionConfig struct {
	Status         Status
	Mode           Mode
	TriggerChannel int  // 1 or 2
	ChannelAdd     bool // add channel 2 into channel 1
	TriggerDelay   int  // samples
	SubSample      int
	DisplayDepth   int
	MemDepth       int
	SampleInterval float64 // seconds per raw sample
	TimePerDiv     float64
	TriggerVolts   float64
	TriggerOffset  float64 // fractional part of the delay, seconds
	Rate           SampleRate
	Timebase       int
}

// DefaultAcquisition returns the start-up acquisition state: stopped, Auto,
// triggering on channel 1 at 1ms/div.
func DefaultAcquisition() AcquisitionConfig {
	acq := AcquisitionConfig{
		Status:         Stop,
		Mode:           Auto,
		TriggerChannel: 1,
		SubSample:      1,
		DisplayDepth:   MinDepth,
		MemDepth:       MinDepth,
		SampleInterval: 1 / 16e6,
		TimePerDiv:     1e-3,
	}
	tb := Timebases[DefaultTimebase]
	acq.apply(DefaultTimebase, tb)
	return acq
}

// AcquisitionAt returns the start-up state on Timebases[idx].
func AcquisitionAt(idx int) (AcquisitionConfig, error) {
	if idx < 0 || idx >= len(Timebases) {
		return AcquisitionConfig{}, fmt.Errorf("timebase %d out of range", idx)
	}
	acq := DefaultAcquisition()
	acq.apply(idx, Timebases[idx])
	return acq, nil
}

// Upsampled reports whether the current timebase uses 5x interpolation.
func (a *AcquisitionConfig) Upsampled() bool {
	return a.TimePerDiv <= FastTimePerDiv
}

// TriggerIndex returns 0 for channel 1 and 1 for channel 2.
func (a *AcquisitionConfig) TriggerIndex() int {
	if a.TriggerChannel == 2 {
		return 1
	}
	return 0
}

// SetDelay converts a trigger delay in seconds into whole samples plus the
// fractional remainder kept in TriggerOffset.
func (a *AcquisitionConfig) SetDelay(seconds float64) {
	if seconds < 0 {
		seconds = 0
	}
	value := seconds / a.SampleInterval
	a.TriggerDelay = int(value)
	a.TriggerOffset = (value - float64(a.TriggerDelay)) * a.SampleInterval
}

// Delay returns the configured trigger delay in seconds.
func (a *AcquisitionConfig) Delay() float64 {
	return float64(a.TriggerDelay)*a.SampleInterval + a.TriggerOffset
}

// Timebase is one entry of the horizontal sweep table.
type Timebase struct {
	Rate         SampleRate
	TimePerDiv   float64
	Interval     float64
	SubSample    int
	MemDepth     int
	DisplayDepth int
	Label        string
}

// DefaultTimebase is the 1ms/div entry.
const DefaultTimebase = 14

// Timebases lists the supported sweep speeds, fastest first. The five fastest
// only display part of the 1K buffer; the extra 32 samples leave room for
// the trigger delay.
var Timebases = []Timebase{
	{Rate48M, 20e-9, 1 / 48e6, 1, 1024, 1024/20 + 32, "48Ms/s, 20ns/div, 20us"},
	{Rate48M, 50e-9, 1 / 48e6, 1, 1024, 1024/8 + 32, "48Ms/s, 50ns/div, 20us"},
	{Rate48M, 100e-9, 1 / 48e6, 1, 1024, 1024/4 + 32, "48Ms/s, 100ns/div, 20us"},
	{Rate48M, 200e-9, 1 / 48e6, 1, 1024, 1024/2 + 32, "48Ms/s, 200ns/div, 20us"},
	{Rate48M, 400e-9, 1 / 48e6, 1, 1024, 1024 - 32 + 32, "48Ms/s, 400ns/div, 20us"},
	{Rate48M, 1e-6, 1 / 48e6, 1, 1024, 1024/2 + 32, "48Ms/s, 1us/div, 20us"},
	{Rate48M, 2e-6, 1 / 48e6, 1, 1024, 1024, "48Ms/s, 2us/div, 20us"},
	{Rate16M, 5e-6, 1 / 16e6, 1, 256 * 1024, 1024, "16Ms/s, 5us/div, 16ms"},
	{Rate16M, 10e-6, 1 / 16e6, 2, 256 * 1024, 1024, "16Ms/s, 10us/div, 16ms"},
	{Rate16M, 20e-6, 1 / 16e6, 4, 256 * 1024, 1024, "16Ms/s, 20us/div, 16ms"},
	{Rate16M, 50e-6, 1 / 16e6, 10, 256 * 1024, 1024, "16Ms/s, 50us/div, 16ms"},
	{Rate16M, 100e-6, 1 / 16e6, 20, 256 * 1024, 1024, "16Ms/s, 100us/div, 16ms"},
	{Rate16M, 200e-6, 1 / 16e6, 40, 256 * 1024, 1024, "16Ms/s, 200us/div, 16ms"},
	{Rate16M, 500e-6, 1 / 16e6, 100, 256 * 1024, 1024, "16Ms/s, 500us/div, 16ms"},
	{Rate16M, 1e-3, 1 / 16e6, 200, 512 * 1024, 1024, "16Ms/s, 1ms/div, 16ms"},
	{Rate16M, 2e-3, 1 / 16e6, 512, 512 * 1024, 1024, "16Ms/s, 2ms/div, 32ms"},
	{Rate16M, 5e-3, 1 / 16e6, 1024, 1024 * 1024, 1024, "16Ms/s, 5ms/div, 64ms"},
	{Rate8M, 10e-3, 0.125e-6, 1024, 1024 * 1024, 1024, "8Ms/s, 10ms/div, 128ms"},
	{Rate4M, 20e-3, 0.25e-6, 1024, 1024 * 1024, 1024, "4Ms/s, 20ms/div, 256ms"},
	{Rate1M, 50e-3, 1e-6, 625, 1024 * 1024, 1024, "1Ms/s, 50ms/div, 1s"},
	{Rate1M, 100e-3, 1e-6, 1024, 1024 * 1024, 1024, "1Ms/s, 100ms/div, 1s"},
}

// ErrTimebaseLocked is returned when a stored trace would be reinterpreted
// at a different sample interval.
var ErrTimebaseLocked = errors.New("timebase change needs a new acquisition")

// ApplyTimebase switches to Timebases[idx]. While stopped or in single-shot
// the stored trace is still displayed, so only timebases sharing its sample
// interval are allowed. The delay in seconds is preserved.
func (a *AcquisitionConfig) ApplyTimebase(idx int) error {
	if idx < 0 || idx >= len(Timebases) {
		return fmt.Errorf("timebase %d out of range", idx)
	}
	tb := Timebases[idx]
	if (a.Status == Stop || a.Mode == Single) && a.SampleInterval != tb.Interval {
		return ErrTimebaseLocked
	}
	delay := a.Delay()
	a.apply(idx, tb)
	a.SetDelay(delay)
	return nil
}

func (a *AcquisitionConfig) apply(idx int, tb Timebase) {
	a.Timebase = idx
	a.Rate = tb.Rate
	a.TimePerDiv = tb.TimePerDiv
	a.MemDepth = tb.MemDepth
	a.SubSample = tb.SubSample
	a.SampleInterval = tb.Interval
	a.DisplayDepth = tb.DisplayDepth
}

// ChannelConfig is the vertical setting of one input channel.
type ChannelConfig struct {
	VScale      float64 // full-scale volts of the selected range
	VoltsPerDiv float64
	VOffset     float64 // screen units, +-1 is the graticule edge
	Zero        float64 // raw count correction
	RangeIndex  int
	Range       InputRange
	Enabled     bool
	Inverted    bool
	Glitch      bool
}

// Preset is one entry of the volts/div selector.
type Preset struct {
	VScale      float64
	VoltsPerDiv float64
	Range       InputRange
}

// Presets are the volts/div settings, indexed by RangeIndex. Entries 0 and
// 1 share the 10V attenuator, 4 and 5 share the 1V one.
var Presets = [NumRanges]Preset{
	{10.0 / 2, 2.0, Range10V},
	{10.0 / 2, 1.0, Range10V},
	{5.0 / 2, 0.5, Range5V},
	{2.0 / 2, 0.2, Range2V},
	{1.0 / 2, 0.1, Range1V},
	{1.0 / 2, 0.05, Range1V},
}

// DefaultChannel returns an enabled channel at 1V/div.
func DefaultChannel(ch int, cal *CalibrationTable) ChannelConfig {
	c := ChannelConfig{Enabled: true}
	c.ApplyPreset(ch, 1, cal)
	return c
}

// ApplyPreset selects Presets[idx] for channel ch (1 or 2), picking up the
// calibration scale factor and zero offset for the range.
func (c *ChannelConfig) ApplyPreset(ch, idx int, cal *CalibrationTable) error {
	if idx < 0 || idx >= NumRanges {
		return fmt.Errorf("volts/div preset %d out of range", idx)
	}
	p := Presets[idx]
	c.RangeIndex = idx
	c.Range = p.Range
	c.VoltsPerDiv = p.VoltsPerDiv
	c.VScale = p.VScale
	if cal != nil {
		c.VScale *= cal.ScaleFactor
		c.Zero = cal.ZeroFor(ch, idx)
	}
	return nil
}

// TriggerLevel converts the trigger voltage to the raw count compared by the
// coarse search on channel c.
func TriggerLevel(volts float64, c *ChannelConfig) byte {
	v := volts*128/c.VScale + 128 + c.Zero
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// Volts converts a raw sample of channel c to volts at the probe tip.
func (c *ChannelConfig) Volts(raw byte) float64 {
	return c.VScale * (float64(raw) - 128 - c.Zero) / 128
}
