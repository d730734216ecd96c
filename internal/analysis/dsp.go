// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/dsp/window"
)

// Epsilon folded into level features so silent input never yields an
// exact zero, and the threshold below which stereo correlation is
// considered undefined.
const levelEpsilon = 1e-12

// windowCoefficients returns window weights of length n for the named
// function. The default "hann" uses the periodic form so the window
// tiles seamlessly at the FFT length; the alternates come from gonum
// and unknown names fall back to hann.
func windowCoefficients(name string, n int) []float64 {
	coeffs := make([]float64, n)

	periodicHann := func() {
		for i := range coeffs {
			coeffs[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n)))
		}
	}

	switch strings.ToLower(name) {
	case "", "hann", "hanning":
		periodicHann()
		return coeffs
	}

	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch strings.ToLower(name) {
	case "hamming":
		window.Hamming(coeffs)
	case "blackman":
		window.Blackman(coeffs)
	case "blackmannuttall":
		window.BlackmanNuttall(coeffs)
	case "bartletthann":
		window.BartlettHann(coeffs)
	case "nuttall":
		window.Nuttall(coeffs)
	case "lanczos":
		window.Lanczos(coeffs)
	default:
		periodicHann()
	}
	return coeffs
}

// channelLevels computes per-channel RMS and peak over an interleaved
// time-domain window.
func channelLevels(td []float32, channels int) (rms, peak []float64) {
	rms = make([]float64, channels)
	peak = make([]float64, channels)
	frames := len(td) / channels
	if frames == 0 {
		for c := range rms {
			rms[c] = math.Sqrt(levelEpsilon)
			peak[c] = levelEpsilon
		}
		return rms, peak
	}

	for c := 0; c < channels; c++ {
		var sum, max float64
		for i := 0; i < frames; i++ {
			v := float64(td[i*channels+c])
			sum += v * v
			if a := math.Abs(v); a > max {
				max = a
			}
		}
		rms[c] = math.Sqrt(sum/float64(frames) + levelEpsilon)
		peak[c] = max + levelEpsilon
	}
	return rms, peak
}

// stereoCorrelation returns the Pearson correlation between the two
// channels of an interleaved stereo window, or NaN when the product of
// the channel energies is too small for the value to be meaningful.
func stereoCorrelation(td []float32) float64 {
	frames := len(td) / 2
	if frames == 0 {
		return math.NaN()
	}

	var meanL, meanR float64
	for i := 0; i < frames; i++ {
		meanL += float64(td[2*i])
		meanR += float64(td[2*i+1])
	}
	meanL /= float64(frames)
	meanR /= float64(frames)

	var sumLL, sumRR, sumLR float64
	for i := 0; i < frames; i++ {
		l := float64(td[2*i]) - meanL
		r := float64(td[2*i+1]) - meanR
		sumLL += l * l
		sumRR += r * r
		sumLR += l * r
	}

	prod := sumLL * sumRR
	if prod < levelEpsilon {
		return math.NaN()
	}
	return sumLR / math.Sqrt(prod)
}

// monoMix reduces an interleaved window to one channel: pass-through
// for mono input, per-frame average otherwise. dst is zero-padded when
// the source is shorter.
func monoMix(dst []float64, src []float32, channels int) {
	frames := len(src) / channels
	for i := range dst {
		if i >= frames {
			dst[i] = 0
			continue
		}
		if channels == 1 {
			dst[i] = float64(src[i])
			continue
		}
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(src[i*channels+c])
		}
		dst[i] = sum / float64(channels)
	}
}
