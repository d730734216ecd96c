// SPDX-License-Identifier: MIT
/*
Package analysis turns the capture ring buffer into a stream of
immutable snapshots: windowed FFT magnitudes, per-channel levels, and
stereo correlation, produced on a frame-rate-capped cycle.

One mutex guards both the analyzer's configuration and its published
snapshot, so reconfiguration is transactional and readers never observe
a half-applied parameter set. DSP work happens outside the lock on
workspace buffers captured at the top of each cycle.
*/
package analysis

import (
	"math"
	"math/cmplx"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/KarlMarx3333/Audio-Visualizer-For-OBS-browser/internal/audio"
	"github.com/KarlMarx3333/Audio-Visualizer-For-OBS-browser/pkg/bitint"
)

// Frames in the published time-domain window.
const timeDomainFrames = 1024

// Bounds re-applied at the component so a caller bypassing config
// clamping still cannot break the cycle.
const (
	minFFTSize = 256
	maxFFTSize = 16384
	minFPSCap  = 10
	maxFPSCap  = 120
)

// Wait between cycles while no ring buffer is attached yet.
const noRingDelay = 50 * time.Millisecond

// RingProvider hands the analyzer the current capture buffer. The
// engine implements it; the analyzer borrows the ring, never owns it.
type RingProvider interface {
	Ring() *audio.RingBuffer
}

// Params is one transactional analyzer configuration. All fields are
// applied together; a change to FFT size, sample rate, or channel count
// discards the smoothing history and cached window.
type Params struct {
	SampleRate int
	Channels   int
	FFTSize    int
	FPSCap     int
	Smoothing  float64
	Window     string
}

// Analyzer produces one fresh Snapshot per cycle from the current ring
// buffer, at most FPSCap times per second.
type Analyzer struct {
	source RingProvider
	log    zerolog.Logger

	mu         sync.Mutex // guards config, workspace identity, prev, and snap
	sampleRate int
	channels   int
	fftSize    int
	fpsCap     int
	smoothing  float64
	windowName string

	fft    *fourier.FFT
	win    []float64
	input  []float64
	coeffs []complex128
	prev   []float32 // previous smoothed spectrum; nil right after reconfigure

	snap Snapshot

	lifecycle sync.Mutex
	stopCh    chan struct{}
	done      chan struct{}
}

// NewAnalyzer creates an analyzer with default parameters reading from
// the given source.
func NewAnalyzer(source RingProvider, log zerolog.Logger) *Analyzer {
	a := &Analyzer{
		source:     source,
		log:        log.With().Str("component", "analyzer").Logger(),
		sampleRate: 48000,
		channels:   1,
		fftSize:    2048,
		fpsCap:     60,
		smoothing:  0.65,
		windowName: "hann",
	}
	a.rebuild()
	return a
}

// Configure applies a new parameter set. It takes effect on the next
// cycle; the smoothing history and window coefficients are rebuilt so
// no stale state leaks across a reconfiguration.
func (a *Analyzer) Configure(p Params) {
	channels := 1
	if p.Channels > 1 {
		channels = 2
	}
	fftSize := bitint.NextPowerOfTwo(p.FFTSize)
	if fftSize < minFFTSize {
		fftSize = minFFTSize
	}
	if fftSize > maxFFTSize {
		fftSize = maxFFTSize
	}
	fps := p.FPSCap
	if fps < minFPSCap {
		fps = minFPSCap
	}
	if fps > maxFPSCap {
		fps = maxFPSCap
	}
	smoothing := p.Smoothing
	if smoothing < 0 {
		smoothing = 0
	}
	if smoothing > 0.99 {
		smoothing = 0.99
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.sampleRate = p.SampleRate
	a.channels = channels
	a.fftSize = fftSize
	a.fpsCap = fps
	a.smoothing = smoothing
	if p.Window != "" {
		a.windowName = p.Window
	}
	a.rebuild()
}

// rebuild recreates the FFT object, window, and workspace for the
// current fftSize. Caller holds a.mu (or has exclusive access).
func (a *Analyzer) rebuild() {
	a.fft = fourier.NewFFT(a.fftSize)
	a.win = windowCoefficients(a.windowName, a.fftSize)
	a.input = make([]float64, a.fftSize)
	a.coeffs = make([]complex128, a.fftSize/2+1)
	a.prev = nil
}

// Start launches the cycle loop. No-op if already running.
func (a *Analyzer) Start() {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()
	if a.stopCh != nil {
		return
	}
	a.stopCh = make(chan struct{})
	a.done = make(chan struct{})
	go a.run(a.stopCh, a.done)
}

// Stop terminates the cycle loop, waiting up to two seconds for the
// in-flight cycle to finish.
func (a *Analyzer) Stop() {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()
	if a.stopCh == nil {
		return
	}
	close(a.stopCh)
	select {
	case <-a.done:
	case <-time.After(2 * time.Second):
		a.log.Warn().Msg("cycle loop did not exit within timeout")
	}
	a.stopCh = nil
	a.done = nil
}

// Latest returns a deep copy of the most recent snapshot. A FrameID of
// zero means nothing has been published yet.
func (a *Analyzer) Latest() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snap.clone()
}

// FPSCap returns the current cycle rate cap.
func (a *Analyzer) FPSCap() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fpsCap
}

func (a *Analyzer) run(stop chan struct{}, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}
		if d := a.cycle(); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-stop:
				t.Stop()
				return
			case <-t.C:
			}
		}
	}
}

// cycle runs one analysis pass and returns how long to sleep before the
// next one to honor the fps cap.
func (a *Analyzer) cycle() time.Duration {
	ring := a.source.Ring()
	if ring == nil {
		return noRingDelay
	}
	t0 := time.Now()

	a.mu.Lock()
	fftSize := a.fftSize
	fpsCap := a.fpsCap
	smoothing := a.smoothing
	channels := a.channels
	win, fft, input, coeffs := a.win, a.fft, a.input, a.coeffs
	a.mu.Unlock()

	xFFT := ring.ReadLatest(fftSize)
	xTD := ring.ReadLatest(timeDomainFrames)
	srcCh := ring.Channels()
	xFFT = audio.ReconcileChannels(xFFT, srcCh, channels)
	xTD = audio.ReconcileChannels(xTD, srcCh, channels)

	rms, peak := channelLevels(xTD, channels)
	corr := math.NaN()
	if channels == 2 {
		corr = stereoCorrelation(xTD)
	}

	monoMix(input, xFFT, channels)
	for i := range input {
		input[i] *= win[i]
	}
	fft.Coefficients(coeffs, input)

	norm := float64(fftSize) / 2
	if norm < 1 {
		norm = 1
	}
	spec := make([]float32, fftSize/2+1)
	for i, c := range coeffs {
		spec[i] = float32(cmplx.Abs(c) / norm)
	}

	a.mu.Lock()
	if a.prev != nil && smoothing > 0 && len(a.prev) == len(spec) {
		for i := range spec {
			spec[i] = float32(smoothing*float64(a.prev[i]) + (1-smoothing)*float64(spec[i]))
		}
	}
	a.prev = spec

	a.snap.FrameID++
	a.snap.Timestamp = float64(time.Now().UnixNano()) / 1e9
	a.snap.Channels = channels
	a.snap.TimeDomain = xTD
	a.snap.Spectrum = spec
	a.snap.RMS = rms
	a.snap.Peak = peak
	a.snap.Correlation = corr
	a.mu.Unlock()

	target := time.Second / time.Duration(fpsCap)
	if d := target - time.Since(t0); d > 0 {
		return d
	}
	return 0
}
