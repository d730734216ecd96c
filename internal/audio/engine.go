// SPDX-License-Identifier: MIT
/*
Package audio implements the capture half of the visualizer host: a
multi-channel ring buffer, a backend abstraction over the platform audio
layer, and a supervising engine that keeps an input stream open across
device failures.

Thread safety:
- RingBuffer has its own mutex shared by the capture callback and readers
- Engine state is guarded by one mutex, never held across blocking calls
- Stop is cooperative and releases the hardware deterministically
*/
package audio

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Seconds of audio a freshly allocated ring buffer holds.
const ringSeconds = 6.0

// Bound on how long Stop waits for the supervising loop to exit.
const stopJoinTimeout = 2 * time.Second

// Engine owns the hardware input stream. It resolves a device, allocates
// a ring buffer, opens a capture stream whose callback only pushes into
// the ring, and retries with backoff on any failure until stopped. No
// capture-side condition is fatal; the last error is observable but
// never propagated.
type Engine struct {
	backend Backend
	log     zerolog.Logger

	mu         sync.Mutex
	deviceID   int // MinDeviceID when not pinned
	deviceName string
	sampleRate int
	channels   int

	ring     *RingBuffer
	stream   Stream
	lastErr  string
	resolved DeviceDescriptor
	hasDev   bool

	lifecycle sync.Mutex // serializes Start/Stop so restart is stop-then-start
	stopCh    chan struct{}
	done      chan struct{}
}

// NewEngine creates an engine over the given capture backend.
func NewEngine(backend Backend, log zerolog.Logger) *Engine {
	return &Engine{
		backend:    backend,
		log:        log.With().Str("component", "engine").Logger(),
		deviceID:   -1,
		sampleRate: 48000,
		channels:   1,
	}
}

// Configure sets the capture parameters. Takes effect on the next
// (re)start; callers restart the engine to apply a device change.
func (e *Engine) Configure(deviceID int, deviceName string, sampleRate, channels int) {
	if channels <= 1 {
		channels = 1
	} else {
		channels = 2
	}
	e.mu.Lock()
	e.deviceID = deviceID
	e.deviceName = deviceName
	e.sampleRate = sampleRate
	e.channels = channels
	e.mu.Unlock()
}

// Start launches the supervising loop. Calling Start on a running engine
// is a no-op.
func (e *Engine) Start() {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	if e.stopCh != nil {
		return
	}
	e.stopCh = make(chan struct{})
	e.done = make(chan struct{})
	go e.run(e.stopCh, e.done)
}

// Stop signals the supervising loop, closes any active stream (stop then
// close, both best-effort), and joins the loop within a bounded timeout.
// The hardware is never left half-open.
func (e *Engine) Stop() {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	if e.stopCh == nil {
		return
	}
	close(e.stopCh)
	e.closeStream()

	select {
	case <-e.done:
	case <-time.After(stopJoinTimeout):
		e.log.Warn().Msg("supervising loop did not exit within timeout")
	}
	e.stopCh = nil
	e.done = nil
}

// Restart is stop-then-start. The lifecycle mutex guarantees the old
// loop has fully stopped before the new one begins, so two live streams
// can never coexist.
func (e *Engine) Restart() {
	e.Stop()
	e.Start()
}

// Ring returns the buffer the active stream writes into, or nil before
// any stream has been opened.
func (e *Engine) Ring() *RingBuffer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ring
}

// LastError returns the most recent capture error, or "" after a
// successful open.
func (e *Engine) LastError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// ResolvedDevice returns the device the current stream was opened on.
func (e *Engine) ResolvedDevice() (DeviceDescriptor, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolved, e.hasDev
}

func (e *Engine) run(stop chan struct{}, done chan struct{}) {
	defer close(done)
	defer e.closeStream()

	bo := newBackoff()
	for {
		select {
		case <-stop:
			return
		default:
		}

		e.setError("")
		dev, ok := e.resolveDevice()
		if !ok {
			e.setError("no input devices found")
			e.log.Warn().Msg("no input devices found, retrying")
			if !sleepUnless(stop, noDeviceDelay) {
				return
			}
			bo.Advance()
			continue
		}

		e.mu.Lock()
		rate, channels := e.sampleRate, e.channels
		e.mu.Unlock()

		ring := NewRingBuffer(ringSeconds, rate, channels)
		stream, err := e.backend.OpenStream(dev.ID, float64(rate), channels, func(in []float32) {
			ring.Write(in, channels)
		})
		if err != nil {
			e.setError("audio stream error: " + err.Error())
			e.log.Error().Err(err).Int("device", dev.ID).Msg("failed to open stream")
			if !sleepUnless(stop, bo.Delay()) {
				return
			}
			continue
		}

		e.mu.Lock()
		e.ring = ring
		e.stream = stream
		e.resolved = dev
		e.hasDev = true
		e.mu.Unlock()
		bo.Reset()
		e.log.Info().
			Int("device", dev.ID).
			Str("name", dev.Name).
			Int("rate", rate).
			Int("channels", channels).
			Msg("capture stream open")

		var failed <-chan error
		if w, ok := stream.(StreamWatcher); ok {
			failed = w.Done()
		}
		select {
		case <-stop:
			return
		case err := <-failed:
			msg := "audio stream error"
			if err != nil {
				msg += ": " + err.Error()
			}
			e.setError(msg)
			e.log.Error().Err(err).Msg("capture stream failed")
			e.closeStream()
			if !sleepUnless(stop, bo.Delay()) {
				return
			}
		}
	}
}

// resolveDevice picks a device in order of preference: explicit
// configured ID, explicit configured name, platform default, first
// enumerated input device.
func (e *Engine) resolveDevice() (DeviceDescriptor, bool) {
	e.mu.Lock()
	wantID, wantName := e.deviceID, e.deviceName
	e.mu.Unlock()

	devs, err := e.backend.InputDevices()
	if err != nil || len(devs) == 0 {
		return DeviceDescriptor{}, false
	}

	if wantID >= 0 {
		for _, d := range devs {
			if d.ID == wantID {
				return d, true
			}
		}
	}
	if wantName != "" {
		for _, d := range devs {
			if d.Name == wantName {
				return d, true
			}
		}
	}
	if id, ok := e.backend.DefaultInputID(); ok {
		for _, d := range devs {
			if d.ID == id {
				return d, true
			}
		}
	}
	return devs[0], true
}

// closeStream detaches and shuts down the active stream. Stop and Close
// are both attempted; the stream contract makes them idempotent.
func (e *Engine) closeStream() {
	e.mu.Lock()
	s := e.stream
	e.stream = nil
	e.mu.Unlock()
	if s != nil {
		_ = s.Stop()
		_ = s.Close()
	}
}

func (e *Engine) setError(msg string) {
	e.mu.Lock()
	e.lastErr = msg
	e.mu.Unlock()
}

// sleepUnless waits for d, returning false early if stop closes first.
func sleepUnless(stop <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}
