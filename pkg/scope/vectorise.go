package scope

// upsampleTaps is the kernel length of the 5x interpolator.
const upsampleTaps = 10

// fir is a 5-phase sin(x)/x interpolation kernel: fir[k][p] weights raw
// sample i+k for output phase p.
var fir = [upsampleTaps][UpsampleFactor]int32{
	{0, 626, 1432, 1942, 1579},
	{0, -2556, -5136, -6299, -4726},
	{0, 6803, 13096, 15526, 11354},
	{0, -15926, -30697, -36878, -27753},
	{0, 44430, 98040, 149440, 186501},
	{200000, 186501, 149440, 98040, 44430},
	{0, -27753, -36878, -30697, -15926},
	{0, 11354, 15526, 13096, 6803},
	{0, -4726, -6299, -5136, -2556},
	{0, 1579, 1942, 1432, 626},
}

// phaseGain normalises every phase to unity DC gain.
var phaseGain = func() (g [UpsampleFactor]float64) {
	for p := range g {
		var sum int32
		for k := range fir {
			sum += fir[k][p]
		}
		g[p] = 1 / float64(sum)
	}
	return g
}()

// Vectorise converts n output samples of one channel to screen units
// (VOffset +-1 is the graticule edge). When upsample is set, src holds the
// raw samples at a fifth of the output rate and each one yields five
// interpolated outputs. native skips the channel inversion; the trigger
// window is always evaluated with the instrument's polarity. It returns the
// number of leading outputs written.
func Vectorise(dst []float64, src []byte, ch *ChannelConfig, n int, upsample, native bool) int {
	n = min(n, len(dst))
	scale := ch.VScale / (128 * 4 * ch.VoltsPerDiv)
	if ch.Inverted && !native {
		scale = -scale
	}
	zero := ch.VOffset - (ch.Zero+128)*scale

	if !upsample {
		n = min(n, len(src))
		for i := 0; i < n; i++ {
			dst[i] = zero + scale*float64(src[i])
		}
		return max(n, 0)
	}

	blocks := (n - UpsampleFactor) / UpsampleFactor
	blocks = max(min(blocks, len(src)-upsampleTaps+1), 0)
	for i := 0; i < blocks; i++ {
		for p := 0; p < UpsampleFactor; p++ {
			var acc int32
			for k := 0; k < upsampleTaps; k++ {
				acc += int32(src[i+k]) * fir[k][p]
			}
			dst[UpsampleFactor*i+UpsampleFactor-1-p] = zero + scale*float64(acc)*phaseGain[p]
		}
	}
	return blocks * UpsampleFactor
}
