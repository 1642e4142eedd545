package scope

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// BothChannels is the channel mask requesting interleaved CH1/CH2 data.
const BothChannels uint8 = 0x03

// Device is the instrument the loop reads from.
type Device interface {
	// ReadRaw fills buf with depth interleaved byte pairs (CH1, CH2, CH1,
	// ...). It either delivers all of them or fails.
	ReadRaw(buf []byte, depth int, channelMask uint8) error
	// SelectRange sets the input attenuator of channel 1 or 2.
	SelectRange(channel int, r InputRange) error
}

// RateSetter is implemented by devices with a selectable sample rate.
type RateSetter interface {
	SetSampleRate(r SampleRate) error
}

// LoopSettings is the snapshot of configuration the acquisition loop reads
// at the start of every iteration.
type LoopSettings struct {
	Depth   int  // sample pairs per read
	Channel int  // trigger source, 0 or 1
	Edge    Edge // trigger slope
	Level   byte // trigger level in raw counts
	Holdoff time.Duration
}

// DefaultHoldoff bounds the display refresh rate.
const DefaultHoldoff = 40 * time.Millisecond

// aggressiveAttempts is the number of reads per frame at the minimum depth,
// where a short buffer often misses the edge.
const aggressiveAttempts = 32

// Loop is the background acquisition: it fills the writable arena slot,
// searches it for a trigger edge and publishes it when the mode allows.
type Loop struct {
	dev      Device
	arena    *Arena
	settings atomic.Pointer[LoopSettings]
	mode     atomic.Int32
	ready    chan struct{}
	logger   *log.Logger
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLogger sets the logger used for transient device errors.
func WithLogger(l *log.Logger) LoopOption {
	return func(lp *Loop) { lp.logger = l }
}

// WithArena makes the loop fill an existing arena.
func WithArena(a *Arena) LoopOption {
	return func(lp *Loop) { lp.arena = a }
}

// NewLoop creates a loop reading from dev. It starts in Hold, so nothing is
// published until SetMode arms it. Without WithArena the slots are sized for
// MaxDepth.
func NewLoop(dev Device, s LoopSettings, opts ...LoopOption) *Loop {
	l := &Loop{
		dev:   dev,
		ready: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = log.Default()
	}
	if l.arena == nil {
		l.arena = NewArena(MaxDepth)
	}
	l.mode.Store(int32(Hold))
	l.Configure(s)
	return l
}

// Configure replaces the settings used from the next iteration on.
func (l *Loop) Configure(s LoopSettings) {
	if s.Depth < MinDepth {
		s.Depth = MinDepth
	}
	if c := l.arena.Capacity(); s.Depth > c {
		s.Depth = c
	}
	if s.Channel != 1 {
		s.Channel = 0
	}
	if s.Holdoff < 0 {
		s.Holdoff = 0
	}
	l.settings.Store(&s)
}

// Settings returns the current settings snapshot.
func (l *Loop) Settings() LoopSettings {
	return *l.settings.Load()
}

// SetMode sets the loop's swap mode.
func (l *Loop) SetMode(m Mode) {
	l.mode.Store(int32(m))
}

// Mode returns the loop's swap mode. A single-shot capture switches it to
// Hold by itself.
func (l *Loop) Mode() Mode {
	return Mode(l.mode.Load())
}

// Ready delivers a notification after every iteration. Notifications are
// coalesced when the reader is slow.
func (l *Loop) Ready() <-chan struct{} {
	return l.ready
}

// Arena returns the buffer pair the loop publishes into.
func (l *Loop) Arena() *Arena {
	return l.arena
}

// Run acquires until ctx is cancelled. The current iteration is completed
// before returning; a read in progress is not interrupted.
func (l *Loop) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		s := l.step(ctx)

		t := time.NewTimer(s.Holdoff)
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.C:
		}
	}
	return nil
}

// step runs one acquisition iteration and returns the settings it used.
func (l *Loop) step(ctx context.Context) LoopSettings {
	s := *l.settings.Load()

	buf := l.arena.writable()
	if buf == nil {
		// the display has not finished with this slot
		return s
	}
	buf = buf[:2*s.Depth]

	attempts := 1
	if s.Depth == MinDepth {
		attempts = aggressiveAttempts
	}

	filled := false
	trigger := 0
	for ; attempts > 0 && ctx.Err() == nil; attempts-- {
		if err := l.dev.ReadRaw(buf, s.Depth, BothChannels); err != nil {
			l.logger.Debug("read failed", "depth", s.Depth, "err", err)
			continue
		}
		filled = true
		if trigger = FindTrigger(buf, s.Channel, s.Edge, s.Level); trigger != 0 {
			break
		}
	}

	if filled {
		mode := l.Mode()
		if (trigger != 0 && mode != Hold) || mode == Auto {
			l.arena.publish(s.Depth, trigger, s.Edge)
			if mode == Single {
				l.mode.CompareAndSwap(int32(Single), int32(Hold))
			}
		}
	}

	select {
	case l.ready <- struct{}{}:
	default:
	}
	return s
}

// FindTrigger searches interleaved raw data for a hysteresis crossing on
// channel 0 or 1. A rising edge needs a sample below level-Hysteresis
// followed by one at or above level; falling is the mirror image. It
// returns the sample index just before the edge, or 0 when there is none.
func FindTrigger(raw []byte, channel int, edge Edge, level byte) int {
	n := len(raw)
	i := 2*TriggerGuard + channel

	if edge == Rising {
		var arm byte
		if level > Hysteresis {
			arm = level - Hysteresis
		}
		for ; i < n; i += 2 {
			if raw[i] < arm {
				break
			}
		}
		for ; i < n; i += 2 {
			if raw[i] >= level {
				break
			}
		}
	} else {
		arm := byte(255)
		if level < 255-Hysteresis {
			arm = level + Hysteresis
		}
		for ; i < n; i += 2 {
			if raw[i] > arm {
				break
			}
		}
		for ; i < n; i += 2 {
			if raw[i] <= level {
				break
			}
		}
	}

	if i < n {
		return i/2 - 1
	}
	return 0
}
