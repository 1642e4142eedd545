package main

import (
	"errors"
	"math"
	"math/cmplx"
)

const (
	minSpectrum = 16
	// floorDBV is reported for empty bins.
	floorDBV = -150.0
)

var errShortTrace = errors.New("trace too short for a spectrum")

// Spectrum is the one-sided amplitude spectrum of a trace channel.
type Spectrum struct {
	Freq []float64 `json:"f"`   // Hz
	DBV  []float64 `json:"dbv"` // peak amplitude, dB re 1 V
}

// computeSpectrum transforms the largest power-of-two prefix of y sampled
// every dt seconds.
func computeSpectrum(y []float64, dt float64) (Spectrum, error) {
	n := 1
	for n*2 <= len(y) {
		n *= 2
	}
	if n < minSpectrum || dt <= 0 {
		return Spectrum{}, errShortTrace
	}

	// Generate Blackman window and compute its sum for normalization
	window := make([]float64, n)
	windowSum := 0.0
	for i := 0; i < n; i++ {
		window[i] = 0.42 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1)) +
			0.08*math.Cos(4*math.Pi*float64(i)/float64(n-1))
		windowSum += window[i]
	}

	input := make([]complex128, n)
	for i := 0; i < n; i++ {
		input[i] = complex(y[i]*window[i], 0)
	}
	output := fft(input)

	// Real input: keep DC..Nyquist, doubling everything but DC
	half := n / 2
	sp := Spectrum{Freq: make([]float64, half+1), DBV: make([]float64, half+1)}
	df := 1 / (float64(n) * dt)
	for k := 0; k <= half; k++ {
		amp := cmplx.Abs(output[k]) / windowSum
		if k != 0 && k != half {
			amp *= 2
		}
		sp.Freq[k] = float64(k) * df
		if amp > 0 {
			sp.DBV[k] = math.Max(20*math.Log10(amp), floorDBV)
		} else {
			sp.DBV[k] = floorDBV
		}
	}
	return sp, nil
}

// Simple radix-2 FFT implementation
func fft(x []complex128) []complex128 {
	n := len(x)
	if n <= 1 {
		return x
	}

	// Bit-reversal permutation
	result := make([]complex128, n)
	bits := 0
	for temp := n; temp > 1; temp >>= 1 {
		bits++
	}
	for i := 0; i < n; i++ {
		j := 0
		for k := 0; k < bits; k++ {
			if i&(1<<k) != 0 {
				j |= 1 << (bits - 1 - k)
			}
		}
		result[j] = x[i]
	}

	// Cooley-Tukey iterative FFT
	for size := 2; size <= n; size *= 2 {
		halfSize := size / 2
		tableStep := n / size
		for i := 0; i < n; i += size {
			k := 0
			for j := i; j < i+halfSize; j++ {
				w := cmplx.Exp(complex(0, -2*math.Pi*float64(k)/float64(n)))
				t := result[j+halfSize] * w
				result[j+halfSize] = result[j] - t
				result[j] = result[j] + t
				k += tableStep
			}
		}
	}

	return result
}
