// SPDX-License-Identifier: MIT
/*
Package stream serves analysis snapshots to rendering clients: a binary
"AVF1" frame codec and a websocket endpoint with one independent polling
delivery loop per subscriber.
*/
package stream

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/KarlMarx3333/Audio-Visualizer-For-OBS-browser/internal/analysis"
)

// Frame magic, first four bytes of every encoded frame.
var frameMagic = [4]byte{'A', 'V', 'F', '1'}

// Fixed header length: magic + frame id + timestamp + four uint16 fields.
const headerSize = 4 + 4 + 8 + 2 + 2 + 2 + 2

// frameHeader is the fixed-size portion of the wire frame, encoded
// little-endian.
type frameHeader struct {
	Magic         [4]byte
	FrameID       uint32
	Timestamp     float64
	ChannelCount  uint16
	TimeDomainLen uint16
	SpectrumLen   uint16
	Reserved      uint16
}

// FrameSize returns the exact encoded length for the given shape:
// header, per-channel rms and peak, correlation, interleaved time
// domain, and spectrum.
func FrameSize(channels, timeDomainLen, spectrumLen int) int {
	return headerSize + 8*channels + 4 + 4*timeDomainLen*channels + 4*spectrumLen
}

// EncodeFrame serializes a snapshot into one self-describing binary
// frame. All floats go out as float32; an undefined correlation is
// carried as NaN rather than omitted.
func EncodeFrame(s analysis.Snapshot) ([]byte, error) {
	ch := s.Channels
	if ch < 1 {
		ch = 1
	}
	tdLen := len(s.TimeDomain) / ch
	spLen := len(s.Spectrum)

	buf := bytes.NewBuffer(make([]byte, 0, FrameSize(ch, tdLen, spLen)))
	hdr := frameHeader{
		Magic:         frameMagic,
		FrameID:       s.FrameID,
		Timestamp:     s.Timestamp,
		ChannelCount:  uint16(ch),
		TimeDomainLen: uint16(tdLen),
		SpectrumLen:   uint16(spLen),
	}
	if err := binary.Write(buf, binary.LittleEndian, hdr); err != nil {
		return nil, fmt.Errorf("failed to encode frame header: %w", err)
	}

	metrics := make([]float32, 0, 2*ch+1)
	for c := 0; c < ch; c++ {
		metrics = append(metrics, channelValue(s.RMS, c))
	}
	for c := 0; c < ch; c++ {
		metrics = append(metrics, channelValue(s.Peak, c))
	}
	metrics = append(metrics, float32(s.Correlation))
	if err := binary.Write(buf, binary.LittleEndian, metrics); err != nil {
		return nil, fmt.Errorf("failed to encode frame metrics: %w", err)
	}

	if err := binary.Write(buf, binary.LittleEndian, s.TimeDomain); err != nil {
		return nil, fmt.Errorf("failed to encode time domain: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, s.Spectrum); err != nil {
		return nil, fmt.Errorf("failed to encode spectrum: %w", err)
	}
	return buf.Bytes(), nil
}

// channelValue pads missing per-channel metrics with zero, mirroring
// the reconciliation applied to the sample data itself.
func channelValue(vals []float64, c int) float32 {
	if c < len(vals) {
		return float32(vals[c])
	}
	return 0
}

// DecodedFrame is the parsed form of a wire frame, used by tests and Go
// clients.
type DecodedFrame struct {
	FrameID       uint32
	Timestamp     float64
	ChannelCount  int
	TimeDomainLen int
	SpectrumLen   int
	RMS           []float32
	Peak          []float32
	Correlation   float32
	TimeDomain    []float32 // interleaved, TimeDomainLen*ChannelCount values
	Spectrum      []float32
}

// DecodeFrame parses a binary frame, validating the magic and the total
// length implied by the header.
func DecodeFrame(data []byte) (*DecodedFrame, error) {
	r := bytes.NewReader(data)
	var hdr frameHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("failed to decode frame header: %w", err)
	}
	if hdr.Magic != frameMagic {
		return nil, fmt.Errorf("bad frame magic %q", hdr.Magic)
	}

	ch := int(hdr.ChannelCount)
	tdLen := int(hdr.TimeDomainLen)
	spLen := int(hdr.SpectrumLen)
	if want := FrameSize(ch, tdLen, spLen); len(data) != want {
		return nil, fmt.Errorf("frame length %d does not match header (want %d)", len(data), want)
	}

	out := &DecodedFrame{
		FrameID:       hdr.FrameID,
		Timestamp:     hdr.Timestamp,
		ChannelCount:  ch,
		TimeDomainLen: tdLen,
		SpectrumLen:   spLen,
		RMS:           make([]float32, ch),
		Peak:          make([]float32, ch),
		TimeDomain:    make([]float32, tdLen*ch),
		Spectrum:      make([]float32, spLen),
	}
	for _, dst := range [][]float32{out.RMS, out.Peak} {
		if err := binary.Read(r, binary.LittleEndian, dst); err != nil {
			return nil, fmt.Errorf("failed to decode metrics: %w", err)
		}
	}
	if err := binary.Read(r, binary.LittleEndian, &out.Correlation); err != nil {
		return nil, fmt.Errorf("failed to decode correlation: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, out.TimeDomain); err != nil {
		return nil, fmt.Errorf("failed to decode time domain: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, out.Spectrum); err != nil {
		return nil, fmt.Errorf("failed to decode spectrum: %w", err)
	}
	return out, nil
}

// CorrelationDefined reports whether the decoded correlation carries a
// real value rather than the NaN sentinel.
func (f *DecodedFrame) CorrelationDefined() bool {
	return !math.IsNaN(float64(f.Correlation))
}
