// SPDX-License-Identifier: MIT
package audio

import "sync"

// RingBuffer is a fixed-capacity circular store of interleaved
// multi-channel float32 frames. The capture callback writes into it and
// the analyzer reads the most recent window out of it; a single mutex
// guards the cursor and storage and is held only for the copy.
//
// Capacity, channel count, and sample rate are fixed for the buffer's
// lifetime; reconfiguration replaces the buffer wholesale.
type RingBuffer struct {
	mu       sync.Mutex
	buf      []float32 // capacity*channels, zero-initialized
	capacity int       // frames
	channels int
	rate     int
	cursor   int // next write position, always in [0, capacity)
}

// NewRingBuffer allocates a buffer holding seconds worth of audio at the
// given sample rate and channel count. Capacity is at least one frame.
func NewRingBuffer(seconds float64, sampleRate, channels int) *RingBuffer {
	frames := int(seconds * float64(sampleRate))
	if frames < 1 {
		frames = 1
	}
	if channels < 1 {
		channels = 1
	}
	return &RingBuffer{
		buf:      make([]float32, frames*channels),
		capacity: frames,
		channels: channels,
		rate:     sampleRate,
	}
}

// Capacity returns the buffer size in frames.
func (r *RingBuffer) Capacity() int { return r.capacity }

// Channels returns the stored channel count.
func (r *RingBuffer) Channels() int { return r.channels }

// SampleRate returns the nominal sample rate of the stored audio.
func (r *RingBuffer) SampleRate() int { return r.rate }

// Write appends interleaved frames with srcChannels channels, reconciling
// the channel layout to the buffer's. Batches larger than the capacity
// keep only their most recent capacity frames. Reconciliation happens
// before the lock is taken so the writer holds it only for the copy.
func (r *RingBuffer) Write(samples []float32, srcChannels int) {
	if srcChannels < 1 || len(samples) < srcChannels {
		return
	}
	data := ReconcileChannels(samples, srcChannels, r.channels)
	frames := len(data) / r.channels
	if frames == 0 {
		return
	}

	if frames >= r.capacity {
		data = data[(frames-r.capacity)*r.channels:]
		frames = r.capacity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	w := r.cursor * r.channels
	end := w + frames*r.channels
	if end <= len(r.buf) {
		copy(r.buf[w:end], data)
	} else {
		first := len(r.buf) - w
		copy(r.buf[w:], data[:first])
		copy(r.buf, data[first:])
	}
	r.cursor = (r.cursor + frames) % r.capacity
}

// ReadLatest returns the most recent min(n, capacity) frames in
// chronological order as a fresh interleaved slice. Regions never written
// read as zero; callers should not assume real signal before warm-up.
func (r *RingBuffer) ReadLatest(n int) []float32 {
	if n < 1 {
		n = 1
	}
	if n > r.capacity {
		n = r.capacity
	}
	out := make([]float32, n*r.channels)

	r.mu.Lock()
	defer r.mu.Unlock()

	start := ((r.cursor - n) % r.capacity + r.capacity) % r.capacity
	s := start * r.channels
	if start+n <= r.capacity {
		copy(out, r.buf[s:s+n*r.channels])
	} else {
		first := (r.capacity - start) * r.channels
		copy(out, r.buf[s:])
		copy(out[first:], r.buf[:n*r.channels-first])
	}
	return out
}

// ReconcileChannels converts interleaved samples from srcChannels to
// dstChannels using the fixed reconciliation rule: a mono target averages
// all source channels, a stereo target duplicates a mono source, and any
// wider source keeps only its first two channels. Matching layouts are
// returned as-is without copying.
func ReconcileChannels(samples []float32, srcChannels, dstChannels int) []float32 {
	if srcChannels == dstChannels || srcChannels < 1 || dstChannels < 1 {
		return samples
	}
	frames := len(samples) / srcChannels

	if dstChannels == 1 {
		out := make([]float32, frames)
		for i := 0; i < frames; i++ {
			var sum float32
			for c := 0; c < srcChannels; c++ {
				sum += samples[i*srcChannels+c]
			}
			out[i] = sum / float32(srcChannels)
		}
		return out
	}

	out := make([]float32, frames*dstChannels)
	if srcChannels == 1 {
		for i := 0; i < frames; i++ {
			out[2*i] = samples[i]
			out[2*i+1] = samples[i]
		}
		return out
	}
	for i := 0; i < frames; i++ {
		out[2*i] = samples[i*srcChannels]
		out[2*i+1] = samples[i*srcChannels+1]
	}
	return out
}
