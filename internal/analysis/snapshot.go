// SPDX-License-Identifier: MIT
package analysis

// Snapshot is one immutable analysis result. Every field was derived
// from the same capture instant and the whole struct is published
// atomically, so a reader never sees a torn update. TimeDomain is
// interleaved frame-major with Channels channels; Spectrum holds
// fftSize/2+1 magnitude bins. Correlation is NaN when undefined (mono
// input or zero variance).
type Snapshot struct {
	FrameID     uint32
	Timestamp   float64 // seconds since epoch
	Channels    int
	TimeDomain  []float32
	Spectrum    []float32
	RMS         []float64
	Peak        []float64
	Correlation float64
}

// clone deep-copies the snapshot so readers can hold it without a lock.
func (s *Snapshot) clone() Snapshot {
	out := *s
	out.TimeDomain = append([]float32(nil), s.TimeDomain...)
	out.Spectrum = append([]float32(nil), s.Spectrum...)
	out.RMS = append([]float64(nil), s.RMS...)
	out.Peak = append([]float64(nil), s.Peak...)
	return out
}
