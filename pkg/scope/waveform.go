package scope

import (
	"errors"
)

var (
	// ErrDelayExceedsBuffer rejects a frame whose trigger delay reaches past
	// the end of the acquisition.
	ErrDelayExceedsBuffer = errors.New("trigger delay exceeds acquisition buffer")
	// ErrShortOutput is returned when the output slices cannot hold a full
	// display trace.
	ErrShortOutput = errors.New("output buffers shorter than display capacity")
	// ErrNoFrame is returned when nothing has been acquired yet.
	ErrNoFrame = errors.New("no frame acquired")
)

// refineSpan is the trigger window scanned for refinement: the window plus
// the guard samples ahead of the edge.
const refineSpan = TriggerWindow + TriggerGuard

// Reconstructor turns published raw frames into display traces. Its scratch
// buffers persist between calls, so a channel that is not rescanned in a
// frame keeps showing its previous samples.
type Reconstructor struct {
	capacity int
	scan     Scanner

	ch     [2][]byte
	win    []byte
	window []float64

	tp          float64
	first, last int
}

// NewReconstructor allocates a reconstructor producing traces of capacity
// samples (MinDepth for the display).
func NewReconstructor(capacity int) *Reconstructor {
	if capacity <= 0 {
		capacity = MinDepth
	}
	return &Reconstructor{
		capacity: capacity,
		ch:       [2][]byte{make([]byte, capacity), make([]byte, capacity)},
		win:      make([]byte, refineSpan),
		window:   make([]float64, TriggerWindow),
	}
}

// Capacity returns the trace length the output slices must hold.
func (r *Reconstructor) Capacity() int { return r.capacity }

// TriggerPosition returns the refined trigger position, in output samples,
// used for the last time axis.
func (r *Reconstructor) TriggerPosition() float64 { return r.tp }

// Span returns the half-open range of output samples that hold valid data
// after the last successful call.
func (r *Reconstructor) Span() (first, last int) { return r.first, r.last }

// PostTriggerWaveforms fills y1 and y2 with the scaled traces of both
// channels and x with the shared time axis, referenced to the refined
// trigger. trigger is the coarse index published with raw (0 when the
// frame was free-running). Time axis entries ahead of the first reliable
// sample are set to InvalidTime. It returns trigger, or an error when the
// frame cannot be displayed.
func (r *Reconstructor) PostTriggerWaveforms(y1, y2, x []float64, raw []byte,
	acq *AcquisitionConfig, ch1, ch2 *ChannelConfig, trigger int, edge Edge) (int, error) {
	if len(y1) < r.capacity || len(y2) < r.capacity || len(x) < r.capacity {
		return 0, ErrShortOutput
	}
	if acq.TriggerDelay+max(trigger, TriggerGuard) > acq.MemDepth {
		return 0, ErrDelayExceedsBuffer
	}

	sub := max(acq.SubSample, 1)
	upsample := acq.Upsampled()
	r.scan.SubSample = sub
	r.scan.MemDepth = acq.MemDepth

	tc := acq.TriggerIndex()
	trigCh := ch1
	if tc == 1 {
		trigCh = ch2
	}

	windowLen := 0
	if trigger != 0 {
		windowLen = r.scan.Scan(r.win, raw, max(trigger, TriggerGuard), tc, false)
	}

	start := trigger + acq.TriggerDelay
	size := r.capacity
	scanned := trigger != 0 || acq.Mode == Auto
	use1 := ch1.Enabled || acq.ChannelAdd
	use2 := ch2.Enabled || acq.ChannelAdd
	if use1 && scanned {
		size = r.scan.Scan(r.ch[0], raw, start, 0, ch1.Glitch)
	}
	if use2 && scanned {
		size = r.scan.Scan(r.ch[1], raw, start, 1, ch2.Glitch)
	}

	valid := -1
	if use1 {
		valid = Vectorise(y1, r.ch[0], ch1, acq.DisplayDepth, upsample, false)
	}
	if use2 {
		n := Vectorise(y2, r.ch[1], ch2, acq.DisplayDepth, upsample, false)
		if valid < 0 || n < valid {
			valid = n
		}
	}
	if acq.ChannelAdd {
		// only channel 2's offset is removed; the sum sits on channel 1's
		for i := 0; i < valid; i++ {
			y1[i] += y2[i] - ch2.VOffset
		}
	}

	if trigger != 0 {
		n := Vectorise(r.window, r.win[:windowLen], trigCh, min(windowLen, TriggerWindow), upsample, true)
		r.tp = RefineTrigger(r.window[:n], edge, trigCh, acq)
	} else if acq.Mode == Auto && acq.Status == Run {
		r.tp = float64(1 + TriggerGuard/sub)
	}

	skip := 0
	if start < TriggerGuard {
		skip = (TriggerGuard + badSamples - start) / sub
	}
	ts := acq.SampleInterval * float64(sub)
	if upsample {
		skip *= UpsampleFactor
		ts /= UpsampleFactor
		size *= UpsampleFactor
	}
	size = min(size, r.capacity)
	skip = min(skip, size)

	for i := 0; i < skip; i++ {
		x[i] = InvalidTime
	}
	for i := skip; i < size; i++ {
		x[i] = (float64(i)-r.tp)*ts - acq.TriggerOffset
	}

	r.first, r.last = skip, size
	if valid >= 0 && valid < size {
		r.last = max(valid, skip)
	}
	return trigger, nil
}
