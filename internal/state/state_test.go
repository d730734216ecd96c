// SPDX-License-Identifier: MIT
package state

import (
	"sync"
	"testing"
)

func TestLifecycleTransitions(t *testing.T) {
	s := NewStore()
	if got := s.Snapshot().Status; got != StatusStarting {
		t.Fatalf("initial status = %q, want %q", got, StatusStarting)
	}

	s.SetRunning()
	if got := s.Snapshot().Status; got != StatusRunning {
		t.Errorf("status = %q, want %q", got, StatusRunning)
	}

	s.SetError("device vanished")
	snap := s.Snapshot()
	if snap.Status != StatusError || snap.LastError != "device vanished" {
		t.Errorf("snapshot = %q/%q, want error/device vanished", snap.Status, snap.LastError)
	}

	// Clearing the error returns to running.
	s.SetError("")
	snap = s.Snapshot()
	if snap.Status != StatusRunning || snap.LastError != "" {
		t.Errorf("snapshot = %q/%q, want running with no error", snap.Status, snap.LastError)
	}

	s.SetStopped()
	if got := s.Snapshot().Status; got != StatusStopped {
		t.Errorf("status = %q, want %q", got, StatusStopped)
	}
}

func TestDeviceTracking(t *testing.T) {
	s := NewStore()
	if s.Snapshot().HasDevice {
		t.Fatal("new store should have no device")
	}

	s.SetDevice(Device{ID: 3, Name: "USB Mic", SampleRate: 48000, Channels: 2})
	snap := s.Snapshot()
	if !snap.HasDevice || snap.Device.Name != "USB Mic" || snap.Device.ID != 3 {
		t.Errorf("device = %+v has=%v, want USB Mic id 3", snap.Device, snap.HasDevice)
	}

	s.ClearDevice()
	snap = s.Snapshot()
	if snap.HasDevice || snap.Device.Name != "" {
		t.Errorf("device = %+v has=%v after clear", snap.Device, snap.HasDevice)
	}
}

func TestClientCountFloorsAtZero(t *testing.T) {
	s := NewStore()
	s.AddClients(2)
	s.AddClients(-1)
	if got := s.Snapshot().Clients; got != 1 {
		t.Errorf("clients = %d, want 1", got)
	}
	s.AddClients(-5)
	if got := s.Snapshot().Clients; got != 0 {
		t.Errorf("clients = %d, want 0", got)
	}
}

func TestSnapshotCopiesMetricSlices(t *testing.T) {
	s := NewStore()
	s.UpdateMetrics(Metrics{FrameID: 9, RMS: []float64{0.5}, Peak: []float64{0.9}})

	snap := s.Snapshot()
	snap.Metrics.RMS[0] = -1
	snap.Metrics.Peak[0] = -1
	if got := s.Snapshot(); got.Metrics.RMS[0] != 0.5 || got.Metrics.Peak[0] != 0.9 {
		t.Errorf("store metrics mutated through snapshot: %+v", got.Metrics)
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				s.AddClients(1)
				s.UpdateMetrics(Metrics{FrameID: uint32(j)})
				_ = s.Snapshot()
				s.AddClients(-1)
			}
		}()
	}
	wg.Wait()
	if got := s.Snapshot().Clients; got != 0 {
		t.Errorf("clients = %d, want 0", got)
	}
}
