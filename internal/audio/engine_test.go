// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeStream struct {
	mu      sync.Mutex
	calls   []string
	failure chan error
}

func newFakeStream() *fakeStream {
	return &fakeStream{failure: make(chan error, 1)}
}

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "stop")
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "close")
	return nil
}

func (s *fakeStream) Done() <-chan error { return s.failure }

func (s *fakeStream) callLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type fakeBackend struct {
	mu         sync.Mutex
	devices    []DeviceDescriptor
	defaultID  int
	hasDefault bool
	openErr    error
	streams    []*fakeStream
	callbacks  []SampleCallback
}

func (b *fakeBackend) InputDevices() ([]DeviceDescriptor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]DeviceDescriptor(nil), b.devices...), nil
}

func (b *fakeBackend) DefaultInputID() (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.defaultID, b.hasDefault
}

func (b *fakeBackend) OpenStream(deviceID int, sampleRate float64, channels int, cb SampleCallback) (Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return nil, b.openErr
	}
	s := newFakeStream()
	b.streams = append(b.streams, s)
	b.callbacks = append(b.callbacks, cb)
	return s, nil
}

func (b *fakeBackend) openCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.streams)
}

func (b *fakeBackend) lastStream() (*fakeStream, SampleCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.streams) == 0 {
		return nil, nil
	}
	return b.streams[len(b.streams)-1], b.callbacks[len(b.callbacks)-1]
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func testDevices() []DeviceDescriptor {
	return []DeviceDescriptor{
		{ID: 0, Name: "Built-in Mic", HostAPI: "CoreAudio", MaxInputChannels: 2, DefaultSampleRate: 48000},
		{ID: 3, Name: "USB Interface", HostAPI: "CoreAudio", MaxInputChannels: 8, DefaultSampleRate: 96000},
		{ID: 5, Name: "Loopback", HostAPI: "CoreAudio", MaxInputChannels: 2, DefaultSampleRate: 44100},
	}
}

func TestResolveDeviceOrder(t *testing.T) {
	backend := &fakeBackend{devices: testDevices(), defaultID: 3, hasDefault: true}
	e := NewEngine(backend, zerolog.Nop())

	t.Run("explicit id wins", func(t *testing.T) {
		e.Configure(5, "USB Interface", 48000, 1)
		dev, ok := e.resolveDevice()
		if !ok || dev.ID != 5 {
			t.Errorf("resolved %+v, want ID 5", dev)
		}
	})

	t.Run("name match when id absent", func(t *testing.T) {
		e.Configure(99, "Loopback", 48000, 1)
		dev, ok := e.resolveDevice()
		if !ok || dev.ID != 5 {
			t.Errorf("resolved %+v, want ID 5", dev)
		}
	})

	t.Run("platform default next", func(t *testing.T) {
		e.Configure(-1, "", 48000, 1)
		dev, ok := e.resolveDevice()
		if !ok || dev.ID != 3 {
			t.Errorf("resolved %+v, want ID 3", dev)
		}
	})

	t.Run("first device as last resort", func(t *testing.T) {
		backend.mu.Lock()
		backend.hasDefault = false
		backend.mu.Unlock()
		e.Configure(-1, "", 48000, 1)
		dev, ok := e.resolveDevice()
		if !ok || dev.ID != 0 {
			t.Errorf("resolved %+v, want ID 0", dev)
		}
	})

	t.Run("no devices fails", func(t *testing.T) {
		empty := &fakeBackend{}
		e2 := NewEngine(empty, zerolog.Nop())
		if _, ok := e2.resolveDevice(); ok {
			t.Error("expected resolution failure with no devices")
		}
	})
}

func TestEngineNoDevicesRetriesWithoutCrashing(t *testing.T) {
	backend := &fakeBackend{}
	e := NewEngine(backend, zerolog.Nop())
	e.Start()

	waitFor(t, time.Second, func() bool {
		return e.LastError() == "no input devices found"
	})
	if e.Ring() != nil {
		t.Error("ring should be nil before any stream opens")
	}

	// Stop arrives mid retry-wait and must still return promptly.
	start := time.Now()
	e.Stop()
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Stop took %v, want prompt return", elapsed)
	}
}

func TestEngineCapturesIntoRing(t *testing.T) {
	backend := &fakeBackend{devices: testDevices(), defaultID: 0, hasDefault: true}
	e := NewEngine(backend, zerolog.Nop())
	e.Configure(-1, "", 48000, 1)
	e.Start()
	defer e.Stop()

	waitFor(t, time.Second, func() bool { return e.Ring() != nil })

	if e.LastError() != "" {
		t.Errorf("unexpected error: %q", e.LastError())
	}
	dev, ok := e.ResolvedDevice()
	if !ok || dev.ID != 0 {
		t.Errorf("resolved device %+v, want ID 0", dev)
	}

	ring := e.Ring()
	if ring.Capacity() != 6*48000 {
		t.Errorf("ring capacity = %d, want %d", ring.Capacity(), 6*48000)
	}

	_, cb := backend.lastStream()
	cb([]float32{0.1, 0.2, 0.3})
	got := ring.ReadLatest(3)
	want := []float32{0.1, 0.2, 0.3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ring contents %v, want %v", got, want)
		}
	}
}

func TestEngineOpenFailureRecordsError(t *testing.T) {
	backend := &fakeBackend{devices: testDevices(), openErr: fmt.Errorf("device busy")}
	e := NewEngine(backend, zerolog.Nop())
	e.Start()
	defer e.Stop()

	waitFor(t, time.Second, func() bool {
		return e.LastError() == "audio stream error: device busy"
	})
}

func TestEngineRuntimeFailureTearsDownAndRetries(t *testing.T) {
	backend := &fakeBackend{devices: testDevices()}
	e := NewEngine(backend, zerolog.Nop())
	e.Start()
	defer e.Stop()

	waitFor(t, time.Second, func() bool { return backend.openCount() == 1 })
	s, _ := backend.lastStream()
	s.failure <- fmt.Errorf("device unplugged")

	waitFor(t, time.Second, func() bool {
		calls := s.callLog()
		return len(calls) == 2 && calls[0] == "stop" && calls[1] == "close"
	})
	if want := "audio stream error: device unplugged"; e.LastError() != want {
		t.Errorf("last error = %q, want %q", e.LastError(), want)
	}

	// After the initial 1s backoff the loop re-resolves and reopens.
	waitFor(t, 3*time.Second, func() bool { return backend.openCount() >= 2 })
}

func TestEngineStopClosesStreamDeterministically(t *testing.T) {
	backend := &fakeBackend{devices: testDevices()}
	e := NewEngine(backend, zerolog.Nop())
	e.Start()

	waitFor(t, time.Second, func() bool { return backend.openCount() == 1 })
	e.Stop()

	s, _ := backend.lastStream()
	calls := s.callLog()
	if len(calls) < 2 || calls[0] != "stop" || calls[1] != "close" {
		t.Errorf("stream calls = %v, want stop then close", calls)
	}

	// Stop on a stopped engine is a no-op.
	e.Stop()
}

func TestEngineRestartIsSequential(t *testing.T) {
	backend := &fakeBackend{devices: testDevices()}
	e := NewEngine(backend, zerolog.Nop())
	e.Start()
	waitFor(t, time.Second, func() bool { return backend.openCount() == 1 })

	e.Restart()
	waitFor(t, time.Second, func() bool { return backend.openCount() == 2 })
	defer e.Stop()

	first, _ := backend.lastStream()
	_ = first
	backend.mu.Lock()
	old := backend.streams[0]
	backend.mu.Unlock()
	calls := old.callLog()
	if len(calls) < 2 {
		t.Errorf("old stream not torn down before restart: %v", calls)
	}
}
