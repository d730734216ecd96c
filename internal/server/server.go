// SPDX-License-Identifier: MIT
/*
Package server exposes the control surface: a small JSON API for device
and option changes plus the websocket audio stream. Mutations clamp,
persist the configuration, and push the new settings into the capture
and analysis layers.
*/
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/KarlMarx3333/Audio-Visualizer-For-OBS-browser/internal/analysis"
	"github.com/KarlMarx3333/Audio-Visualizer-For-OBS-browser/internal/audio"
	"github.com/KarlMarx3333/Audio-Visualizer-For-OBS-browser/internal/config"
	"github.com/KarlMarx3333/Audio-Visualizer-For-OBS-browser/internal/state"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 3 * time.Second
)

// CaptureController is the engine surface the API drives.
type CaptureController interface {
	Configure(deviceID int, deviceName string, sampleRate, channels int)
	Restart()
}

// AnalysisController is the analyzer surface the API drives.
type AnalysisController interface {
	Configure(p analysis.Params)
}

// DeviceLister enumerates capture devices for GET /api/devices.
type DeviceLister interface {
	InputDevices() ([]audio.DeviceDescriptor, error)
}

// Server is the HTTP control server. It owns the persisted config:
// mutations are serialized so two concurrent POSTs cannot interleave a
// partial update.
type Server struct {
	logger   zerolog.Logger
	store    *state.Store
	capture  CaptureController
	analyzer AnalysisController
	devices  DeviceLister

	cfgMu   sync.Mutex
	cfg     *config.Config
	cfgPath string

	httpSrv *http.Server
	done    chan struct{}
}

// New wires the control server. ws is the already-constructed websocket
// handler, mounted at /ws/audio; cfgPath may be empty to use the
// default location.
func New(cfg *config.Config, cfgPath string, store *state.Store,
	capture CaptureController, analyzer AnalysisController,
	devices DeviceLister, ws http.Handler, logger zerolog.Logger) *Server {

	s := &Server{
		logger:   logger,
		store:    store,
		capture:  capture,
		analyzer: analyzer,
		devices:  devices,
		cfg:      cfg,
		cfgPath:  cfgPath,
		done:     make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/devices", s.handleDevices)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("POST /api/device", s.handleSetDevice)
	mux.HandleFunc("POST /api/options", s.handleSetOptions)
	mux.Handle("/ws/audio", ws)

	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Start begins serving on the configured port. It returns once the
// listener is bound so callers can fail fast on a taken port.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.httpSrv.Addr, err)
	}
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("control server listening")
	go func() {
		defer close(s.done)
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("control server failed")
		}
	}()
	return nil
}

// Close shuts the listener down and waits briefly for in-flight
// requests.
func (s *Server) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("control server shutdown")
	}
	<-s.done
}

type deviceJSON struct {
	ID                int     `json:"id"`
	Name              string  `json:"name"`
	HostAPI           string  `json:"host_api"`
	MaxInputChannels  int     `json:"max_input_channels"`
	DefaultSampleRate float64 `json:"default_sample_rate"`
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	devs, err := s.devices.InputDevices()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]deviceJSON, 0, len(devs))
	for _, d := range devs {
		out = append(out, deviceJSON{
			ID:                d.ID,
			Name:              d.Name,
			HostAPI:           d.HostAPI,
			MaxInputChannels:  d.MaxInputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": out})
}

type stateJSON struct {
	Status    string      `json:"status"`
	LastError any         `json:"last_error"`
	Device    any         `json:"device"`
	Options   optionsJSON `json:"options"`
	Metrics   metricsJSON `json:"metrics"`
	Clients   int         `json:"clients"`
}

type optionsJSON struct {
	FFTSize   int     `json:"fft_size"`
	FPSCap    int     `json:"fps_cap"`
	Smoothing float64 `json:"smoothing"`
	Window    string  `json:"window"`
}

type metricsJSON struct {
	FrameID     uint32    `json:"frame_id"`
	Timestamp   float64   `json:"timestamp"`
	RMS         []float64 `json:"rms"`
	Peak        []float64 `json:"peak"`
	Correlation any       `json:"correlation"` // null when undefined
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()

	out := stateJSON{
		Status: string(snap.Status),
		Options: optionsJSON{
			FFTSize:   snap.Options.FFTSize,
			FPSCap:    snap.Options.FPSCap,
			Smoothing: snap.Options.Smoothing,
			Window:    snap.Options.Window,
		},
		Metrics: metricsJSON{
			FrameID:   snap.Metrics.FrameID,
			Timestamp: snap.Metrics.Timestamp,
			RMS:       snap.Metrics.RMS,
			Peak:      snap.Metrics.Peak,
		},
		Clients: snap.Clients,
	}
	if snap.LastError != "" {
		out.LastError = snap.LastError
	}
	if snap.HasDevice {
		out.Device = snap.Device
	}
	if !math.IsNaN(snap.Metrics.Correlation) {
		out.Metrics.Correlation = snap.Metrics.Correlation
	}
	writeJSON(w, http.StatusOK, out)
}

type setDeviceRequest struct {
	DeviceID   *int    `json:"device_id"`
	DeviceName *string `json:"device_name"`
	SampleRate *int    `json:"sample_rate"`
	Channels   *int    `json:"channels"`
}

func (s *Server) handleSetDevice(w http.ResponseWriter, r *http.Request) {
	var req setDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.DeviceID == nil && req.DeviceName == nil && req.SampleRate == nil && req.Channels == nil {
		writeError(w, http.StatusBadRequest, "no device fields provided")
		return
	}

	s.cfgMu.Lock()
	if req.DeviceID != nil {
		s.cfg.Audio.DeviceID = *req.DeviceID
		// An explicit ID supersedes any stale name pin.
		if req.DeviceName == nil {
			s.cfg.Audio.DeviceName = ""
		}
	}
	if req.DeviceName != nil {
		s.cfg.Audio.DeviceName = *req.DeviceName
	}
	if req.SampleRate != nil {
		s.cfg.Audio.SampleRate = *req.SampleRate
	}
	if req.Channels != nil {
		s.cfg.Audio.Channels = *req.Channels
	}
	s.applyLocked(true)
	id, name := s.cfg.Audio.DeviceID, s.cfg.Audio.DeviceName
	s.cfgMu.Unlock()

	s.logger.Info().
		Int("device_id", id).
		Str("device_name", name).
		Msg("device change applied")
	s.handleState(w, r)
}

type setOptionsRequest struct {
	FFTSize   *int     `json:"fft_size"`
	FPSCap    *int     `json:"fps_cap"`
	Smoothing *float64 `json:"smoothing"`
	Window    *string  `json:"window"`
}

func (s *Server) handleSetOptions(w http.ResponseWriter, r *http.Request) {
	var req setOptionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	s.cfgMu.Lock()
	if req.FFTSize != nil {
		s.cfg.Analysis.FFTSize = *req.FFTSize
	}
	if req.FPSCap != nil {
		s.cfg.Analysis.FPSCap = *req.FPSCap
	}
	if req.Smoothing != nil {
		s.cfg.Analysis.Smoothing = *req.Smoothing
	}
	if req.Window != nil {
		s.cfg.Analysis.Window = *req.Window
	}
	s.applyLocked(false)
	s.cfgMu.Unlock()

	s.handleState(w, r)
}

// applyLocked clamps the mutated config, persists it, and pushes it
// into the runtime. Callers hold cfgMu. restartCapture restarts the
// engine for changes that affect the open stream.
func (s *Server) applyLocked(restartCapture bool) {
	s.cfg.Clamp()
	if err := config.SaveConfig(s.cfgPath, s.cfg); err != nil {
		s.logger.Warn().Err(err).Msg("config save failed")
	}

	s.store.SetOptions(state.Options{
		FFTSize:   s.cfg.Analysis.FFTSize,
		FPSCap:    s.cfg.Analysis.FPSCap,
		Smoothing: s.cfg.Analysis.Smoothing,
		Window:    s.cfg.Analysis.Window,
	})

	s.analyzer.Configure(analysis.Params{
		SampleRate: s.cfg.Audio.SampleRate,
		Channels:   s.cfg.Audio.Channels,
		FFTSize:    s.cfg.Analysis.FFTSize,
		FPSCap:     s.cfg.Analysis.FPSCap,
		Smoothing:  s.cfg.Analysis.Smoothing,
		Window:     s.cfg.Analysis.Window,
	})

	if restartCapture {
		s.capture.Configure(s.cfg.Audio.DeviceID, s.cfg.Audio.DeviceName,
			s.cfg.Audio.SampleRate, s.cfg.Audio.Channels)
		s.capture.Restart()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
