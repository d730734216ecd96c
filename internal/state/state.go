// SPDX-License-Identifier: MIT
/*
Package state holds the mutable runtime view of the host: lifecycle
status, the active device, analysis options, live metrics, and the
subscriber count. Everything is read and written through one store so
the control surface sees a consistent picture.
*/
package state

import "sync"

// Status is the coarse lifecycle phase of the host.
type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusError    Status = "error"
	StatusStopped  Status = "stopped"
)

// Device describes the currently resolved input device.
type Device struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// Options mirrors the tunable analysis settings.
type Options struct {
	FFTSize   int     `json:"fft_size"`
	FPSCap    int     `json:"fps_cap"`
	Smoothing float64 `json:"smoothing"`
	Window    string  `json:"window"`
}

// Metrics is the most recent per-frame measurement set.
type Metrics struct {
	FrameID     uint32  `json:"frame_id"`
	Timestamp   float64 `json:"timestamp"`
	RMS         []float64
	Peak        []float64
	Correlation float64
}

// Snapshot is a point-in-time copy of the full store.
type Snapshot struct {
	Status    Status
	LastError string
	Device    Device
	HasDevice bool
	Options   Options
	Metrics   Metrics
	Clients   int
}

// Store is a mutex-guarded state container safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewStore returns a store in the starting phase.
func NewStore() *Store {
	return &Store{snap: Snapshot{Status: StatusStarting}}
}

// Snapshot returns a copy of the current state. Metric slices are
// cloned so callers cannot alias store internals.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.snap
	out.Metrics.RMS = append([]float64(nil), s.snap.Metrics.RMS...)
	out.Metrics.Peak = append([]float64(nil), s.snap.Metrics.Peak...)
	return out
}

// SetRunning marks the host healthy and clears any recorded error.
func (s *Store) SetRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Status = StatusRunning
	s.snap.LastError = ""
}

// SetError records an error and moves the host to the error phase. An
// empty message restores the running phase instead.
func (s *Store) SetError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg == "" {
		if s.snap.Status == StatusError {
			s.snap.Status = StatusRunning
		}
		s.snap.LastError = ""
		return
	}
	s.snap.Status = StatusError
	s.snap.LastError = msg
}

// SetStopped marks the host shut down.
func (s *Store) SetStopped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Status = StatusStopped
}

// SetDevice records the active input device.
func (s *Store) SetDevice(d Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Device = d
	s.snap.HasDevice = true
}

// ClearDevice records that no device is currently open.
func (s *Store) ClearDevice() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Device = Device{}
	s.snap.HasDevice = false
}

// SetOptions records the active analysis options.
func (s *Store) SetOptions(o Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Options = o
}

// UpdateMetrics stores the latest measurements, copying the slices.
func (s *Store) UpdateMetrics(m Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.RMS = append([]float64(nil), m.RMS...)
	m.Peak = append([]float64(nil), m.Peak...)
	s.snap.Metrics = m
}

// AddClients adjusts the subscriber count, never dropping below zero.
func (s *Store) AddClients(delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Clients += delta
	if s.snap.Clients < 0 {
		s.snap.Clients = 0
	}
}
