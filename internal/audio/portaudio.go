// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Initialize sets up the PortAudio subsystem. Must be called before any
// hardware capture and paired with a Terminate call.
func Initialize() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return nil
}

// Terminate cleanly shuts down the PortAudio subsystem.
func Terminate() error {
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// Test seam; overridden in tests to simulate enumeration failures.
var paDevicesFunc = portaudio.Devices

// PortAudioBackend implements Backend over the PortAudio host API.
type PortAudioBackend struct{}

var _ Backend = PortAudioBackend{}

// InputDevices enumerates devices with at least one input channel. The
// descriptor ID is the PortAudio device index, so it stays valid for
// OpenStream even though output-only devices are filtered out.
func (PortAudioBackend) InputDevices() ([]DeviceDescriptor, error) {
	devs, err := paDevicesFunc()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	out := make([]DeviceDescriptor, 0, len(devs))
	for _, d := range devs {
		if d.MaxInputChannels <= 0 {
			continue
		}
		hostAPI := "unknown"
		if d.HostApi != nil {
			hostAPI = d.HostApi.Name
		}
		out = append(out, DeviceDescriptor{
			ID:                d.Index,
			Name:              d.Name,
			HostAPI:           hostAPI,
			MaxInputChannels:  d.MaxInputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
		})
	}
	return out, nil
}

// DefaultInputID returns the PortAudio default input device index.
func (PortAudioBackend) DefaultInputID() (int, bool) {
	d, err := portaudio.DefaultInputDevice()
	if err != nil || d == nil {
		return 0, false
	}
	return d.Index, true
}

// OpenStream opens and starts an interleaved float32 capture stream on
// the device with the given index.
func (PortAudioBackend) OpenStream(deviceID int, sampleRate float64, channels int, cb SampleCallback) (Stream, error) {
	devs, err := paDevicesFunc()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	var dev *portaudio.DeviceInfo
	for _, d := range devs {
		if d.Index == deviceID {
			dev = d
			break
		}
	}
	if dev == nil {
		return nil, fmt.Errorf("no device with index %d", deviceID)
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: portaudio.FramesPerBufferUnspecified,
	}

	stream, err := portaudio.OpenStream(params, func(in []float32) {
		// A misbehaving consumer must not take down the hardware thread.
		defer func() { _ = recover() }()
		cb(in)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start audio stream: %w", err)
	}
	return &paStream{stream: stream}, nil
}

// paStream wraps a portaudio stream with idempotent Stop/Close.
type paStream struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	stopped bool
	closed  bool
}

func (s *paStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.closed {
		return nil
	}
	s.stopped = true
	return s.stream.Stop()
}

func (s *paStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.stream.Close()
}
