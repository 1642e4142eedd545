package scope

// Scanner de-interleaves one channel out of a raw frame, decimating by
// SubSample. Output sample k is raw sample trigger-TriggerGuard+k*SubSample.
type Scanner struct {
	SubSample int
	MemDepth  int

	hold [2]glitchHold
}

// glitchHold carries the extreme not emitted by the previous min/max window
// so that a pulse shorter than a display sample is still drawn.
type glitchHold struct {
	prev    byte
	started bool
}

// next returns alternately the maximum or the minimum of the window at the
// start of win and the previous window. rawIdx selects which one.
func (g *glitchHold) next(win []byte, sub, rawIdx int) byte {
	lo, hi := byte(255), byte(0)
	for i := 0; i < 2*sub; i += 2 {
		lo = min(lo, win[i])
		hi = max(hi, win[i])
	}
	odd := (rawIdx/(2*sub))&1 == 1
	if !g.started {
		// first window of a frame stands alone
		g.prev = lo
		if odd {
			g.prev = hi
		}
		g.started = true
	}
	var c byte
	if odd {
		c = min(lo, g.prev)
		g.prev = hi
	} else {
		c = max(hi, g.prev)
		g.prev = lo
	}
	return c
}

// Scan copies channel 0 or 1 of raw, starting TriggerGuard samples before
// trigger, into dst. A trigger below TriggerGuard means there was no edge:
// the unreliable first samples of the read are skipped and the matching
// leading outputs are left untouched. Scan never writes past len(dst) nor
// reads past MemDepth; it returns the end index of the written samples.
func (s *Scanner) Scan(dst, raw []byte, trigger, channel int, glitch bool) int {
	sub := max(s.SubSample, 1)
	depth := s.MemDepth
	if d := len(raw) / 2; depth <= 0 || depth > d {
		depth = d
	}
	channel &= 1

	offset := 0
	if trigger < TriggerGuard {
		offset = TriggerGuard + badSamples - trigger
		trigger = TriggerGuard + badSamples
	}

	i := (trigger-TriggerGuard)*2 + channel
	j := offset / sub
	n := len(dst)
	if j >= n {
		return 0
	}
	if depth-trigger < n*sub {
		n = (depth - trigger) / sub
	}
	if n <= j {
		return 0
	}

	switch {
	case sub == 1:
		for ; j < n; i, j = i+2, j+1 {
			dst[j] = raw[i]
		}
	case glitch:
		h := &s.hold[channel]
		h.started = false
		for ; j < n-1; i, j = i+2*sub, j+1 {
			dst[j] = h.next(raw[i:], sub, i)
		}
	default:
		for ; j < n; i, j = i+2*sub, j+1 {
			dst[j] = raw[i]
		}
	}
	return j
}
