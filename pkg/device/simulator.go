// Package device provides scope.Device implementations that do not need
// the instrument: a signal simulator, a named pipe reader and a replay of
// recorded frames.
package device

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/dso/pkg/scope"
)

// Signal describes the test signal on one simulated input.
type Signal struct {
	Freq      float64 `yaml:"freq"`      // Hz
	Amplitude float64 `yaml:"amplitude"` // volts peak
	Offset    float64 `yaml:"offset"`    // volts
	Square    bool    `yaml:"square"`
}

// SimConfig configures a Simulator.
type SimConfig struct {
	Channels [2]Signal `yaml:"channels"`
	// Noise is the peak dither in raw counts.
	Noise float64 `yaml:"noise"`
	// ZeroError is the amplifier offset of each channel in raw counts, for
	// exercising the offset calibration.
	ZeroError [2]float64 `yaml:"zero_error"`
	// Realtime makes every read take as long as the real acquisition would.
	Realtime bool  `yaml:"realtime"`
	Seed     int64 `yaml:"seed"`
}

// DefaultSimConfig is a 1kHz sine on channel 1 and a 250Hz square wave on
// channel 2.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		Channels: [2]Signal{
			{Freq: 1e3, Amplitude: 2},
			{Freq: 250, Amplitude: 1, Square: true},
		},
		Noise: 1,
		Seed:  1,
	}
}

// Simulator synthesises a continuous two-channel stream. Phase carries over
// between reads, as if the converter never stopped.
type Simulator struct {
	mu     sync.Mutex
	cfg    SimConfig
	ranges [2]scope.InputRange
	rate   scope.SampleRate
	phase  [2]uint32
	rng    *rand.Rand
}

// NewSimulator returns a simulator at 16Ms/s with both inputs on the 10V
// range.
func NewSimulator(cfg SimConfig) *Simulator {
	return &Simulator{
		cfg:    cfg,
		ranges: [2]scope.InputRange{scope.Range10V, scope.Range10V},
		rate:   scope.Rate16M,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}
}

// ReadRaw implements scope.Device.
func (s *Simulator) ReadRaw(buf []byte, depth int, mask uint8) error {
	if depth <= 0 || len(buf) < 2*depth {
		return fmt.Errorf("simulator: buffer of %d bytes for depth %d", len(buf), depth)
	}

	s.mu.Lock()
	rate := s.rate.Hz()
	var step [2]uint32
	var gain [2]float64
	for c := range step {
		// tuning word: the fraction of a turn per sample, scaled to 2^32
		step[c] = uint32(math.Mod(s.cfg.Channels[c].Freq/rate, 1) * 4294967296.0)
		gain[c] = 128 / s.ranges[c].FullScale()
	}

	for i := 0; i < depth; i++ {
		for c := 0; c < 2; c++ {
			if mask&(1<<c) == 0 {
				buf[2*i+c] = 128
				continue
			}
			sig := &s.cfg.Channels[c]
			rads := float64(s.phase[c]) * (2.0 * math.Pi / 4294967296.0)

			v := sig.Amplitude * math.Sin(rads)
			if sig.Square {
				v = sig.Amplitude
				if rads >= math.Pi {
					v = -sig.Amplitude
				}
			}
			raw := 128 + (v+sig.Offset)*gain[c] + s.cfg.ZeroError[c]
			if s.cfg.Noise > 0 {
				raw += s.cfg.Noise * (s.rng.Float64() - s.rng.Float64())
			}
			buf[2*i+c] = clampByte(raw)
			s.phase[c] += step[c]
		}
	}
	s.mu.Unlock()

	if s.cfg.Realtime {
		time.Sleep(time.Duration(float64(depth) / rate * float64(time.Second)))
	}
	return nil
}

// SelectRange implements scope.Device.
func (s *Simulator) SelectRange(channel int, r scope.InputRange) error {
	if channel != 1 && channel != 2 {
		return fmt.Errorf("simulator: no channel %d", channel)
	}
	if r.FullScale() == 0 {
		return fmt.Errorf("simulator: unsupported %v", r)
	}
	s.mu.Lock()
	s.ranges[channel-1] = r
	s.mu.Unlock()
	return nil
}

// SetSampleRate implements scope.RateSetter.
func (s *Simulator) SetSampleRate(r scope.SampleRate) error {
	if r == 0 {
		return fmt.Errorf("simulator: zero sample rate")
	}
	s.mu.Lock()
	s.rate = r
	s.mu.Unlock()
	return nil
}

// Range returns the range selected on channel 1 or 2.
func (s *Simulator) Range(channel int) scope.InputRange {
	s.mu.Lock()
	defer s.mu.Unlock()
	if channel == 2 {
		return s.ranges[1]
	}
	return s.ranges[0]
}

func clampByte(v float64) byte {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return byte(math.Round(v))
}
