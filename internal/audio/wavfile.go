// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-audio/wav"
)

// Frames delivered per callback from the file backend.
const wavChunkFrames = 512

// WAVFileBackend is a capture backend that replays a WAV file through
// the same Backend interface the hardware uses, pacing delivery at the
// requested sample rate and looping at end of file. It exists so the
// whole pipeline can run without a microphone, in development and in
// tests.
type WAVFileBackend struct {
	desc     DeviceDescriptor
	samples  []float32 // interleaved, normalized to [-1, 1)
	channels int
}

var _ Backend = (*WAVFileBackend)(nil)

// NewWAVFileBackend decodes the file at path into memory. Decoding once
// up front keeps OpenStream allocation-free on the delivery path.
func NewWAVFileBackend(path string) (*WAVFileBackend, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wav file: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode wav file: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels < 1 || len(buf.Data) == 0 {
		return nil, fmt.Errorf("wav file %s has no audio data", path)
	}

	bitDepth := int(dec.BitDepth)
	if buf.SourceBitDepth > 0 {
		bitDepth = buf.SourceBitDepth
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(int64(1) << (bitDepth - 1))

	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / scale
	}

	channels := buf.Format.NumChannels
	return &WAVFileBackend{
		desc: DeviceDescriptor{
			ID:                0,
			Name:              filepath.Base(path),
			HostAPI:           "file",
			MaxInputChannels:  channels,
			DefaultSampleRate: float64(buf.Format.SampleRate),
		},
		samples:  samples,
		channels: channels,
	}, nil
}

// InputDevices reports the file as the only input device.
func (b *WAVFileBackend) InputDevices() ([]DeviceDescriptor, error) {
	return []DeviceDescriptor{b.desc}, nil
}

// DefaultInputID returns the file device.
func (b *WAVFileBackend) DefaultInputID() (int, bool) { return 0, true }

// OpenStream starts a goroutine that feeds the decoded samples to cb in
// fixed chunks at the requested rate, reconciled to the requested
// channel count, wrapping around at end of file.
func (b *WAVFileBackend) OpenStream(deviceID int, sampleRate float64, channels int, cb SampleCallback) (Stream, error) {
	if deviceID != b.desc.ID {
		return nil, fmt.Errorf("no device with index %d", deviceID)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %f", sampleRate)
	}

	s := &wavStream{stop: make(chan struct{}), done: make(chan struct{})}
	interval := time.Duration(float64(wavChunkFrames) / sampleRate * float64(time.Second))

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		frames := len(b.samples) / b.channels
		pos := 0
		chunk := make([]float32, wavChunkFrames*b.channels)
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
			}
			for i := 0; i < wavChunkFrames; i++ {
				copy(chunk[i*b.channels:(i+1)*b.channels], b.samples[pos*b.channels:(pos+1)*b.channels])
				pos++
				if pos >= frames {
					pos = 0
				}
			}
			func() {
				defer func() { _ = recover() }()
				cb(ReconcileChannels(chunk, b.channels, channels))
			}()
		}
	}()

	return s, nil
}

type wavStream struct {
	once sync.Once
	stop chan struct{}
	done chan struct{}
}

func (s *wavStream) Stop() error {
	s.once.Do(func() { close(s.stop) })
	<-s.done
	return nil
}

func (s *wavStream) Close() error { return s.Stop() }
