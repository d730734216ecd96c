// SPDX-License-Identifier: MIT
package server

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/KarlMarx3333/Audio-Visualizer-For-OBS-browser/internal/analysis"
	"github.com/KarlMarx3333/Audio-Visualizer-For-OBS-browser/internal/audio"
	"github.com/KarlMarx3333/Audio-Visualizer-For-OBS-browser/internal/config"
	"github.com/KarlMarx3333/Audio-Visualizer-For-OBS-browser/internal/state"
)

type fakeCapture struct {
	mu         sync.Mutex
	configured []string
	restarts   int
	deviceID   int
	channels   int
	sampleRate int
}

func (f *fakeCapture) Configure(deviceID int, deviceName string, sampleRate, channels int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configured = append(f.configured, "configure")
	f.deviceID = deviceID
	f.sampleRate = sampleRate
	f.channels = channels
}

func (f *fakeCapture) Restart() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts++
}

type fakeAnalyzer struct {
	mu   sync.Mutex
	last analysis.Params
	n    int
}

func (f *fakeAnalyzer) Configure(p analysis.Params) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = p
	f.n++
}

type fakeLister struct {
	devices []audio.DeviceDescriptor
	err     error
}

func (f *fakeLister) InputDevices() ([]audio.DeviceDescriptor, error) {
	return f.devices, f.err
}

type fixture struct {
	srv      *Server
	ts       *httptest.Server
	store    *state.Store
	capture  *fakeCapture
	analyzer *fakeAnalyzer
	cfgPath  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.NewConfig()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	store := state.NewStore()
	capture := &fakeCapture{}
	analyzer := &fakeAnalyzer{}
	lister := &fakeLister{devices: []audio.DeviceDescriptor{
		{ID: 0, Name: "Built-in Mic", HostAPI: "CoreAudio", MaxInputChannels: 2, DefaultSampleRate: 44100},
		{ID: 3, Name: "USB Interface", HostAPI: "CoreAudio", MaxInputChannels: 8, DefaultSampleRate: 48000},
	}}
	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusSwitchingProtocols)
	})

	s := New(cfg, cfgPath, store, capture, analyzer, lister, ws, zerolog.Nop())
	ts := httptest.NewServer(s.httpSrv.Handler)
	t.Cleanup(ts.Close)
	return &fixture{srv: s, ts: ts, store: store, capture: capture, analyzer: analyzer, cfgPath: cfgPath}
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url, body string, out any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestListDevices(t *testing.T) {
	fx := newFixture(t)

	var got struct {
		Devices []deviceJSON `json:"devices"`
	}
	if code := getJSON(t, fx.ts.URL+"/api/devices", &got); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(got.Devices) != 2 {
		t.Fatalf("devices = %d, want 2", len(got.Devices))
	}
	if got.Devices[1].Name != "USB Interface" || got.Devices[1].ID != 3 {
		t.Errorf("device[1] = %+v", got.Devices[1])
	}
}

func TestStateNullFields(t *testing.T) {
	fx := newFixture(t)
	fx.store.SetRunning()
	fx.store.UpdateMetrics(state.Metrics{FrameID: 5, Correlation: math.NaN()})

	var got map[string]any
	if code := getJSON(t, fx.ts.URL+"/api/state", &got); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if got["status"] != "running" {
		t.Errorf("status = %v", got["status"])
	}
	if got["last_error"] != nil {
		t.Errorf("last_error = %v, want null", got["last_error"])
	}
	if got["device"] != nil {
		t.Errorf("device = %v, want null", got["device"])
	}
	metrics := got["metrics"].(map[string]any)
	if metrics["correlation"] != nil {
		t.Errorf("correlation = %v, want null", metrics["correlation"])
	}
	if metrics["frame_id"].(float64) != 5 {
		t.Errorf("frame_id = %v, want 5", metrics["frame_id"])
	}
}

func TestStateReportsErrorAndDevice(t *testing.T) {
	fx := newFixture(t)
	fx.store.SetError("audio stream error: device unplugged")
	fx.store.SetDevice(state.Device{ID: 3, Name: "USB Interface", SampleRate: 48000, Channels: 2})

	var got map[string]any
	getJSON(t, fx.ts.URL+"/api/state", &got)
	if got["status"] != "error" {
		t.Errorf("status = %v", got["status"])
	}
	if !strings.Contains(got["last_error"].(string), "device unplugged") {
		t.Errorf("last_error = %v", got["last_error"])
	}
	dev := got["device"].(map[string]any)
	if dev["name"] != "USB Interface" {
		t.Errorf("device = %v", dev)
	}
}

func TestSetDeviceRestartsCapture(t *testing.T) {
	fx := newFixture(t)

	code := postJSON(t, fx.ts.URL+"/api/device",
		`{"device_id": 3, "sample_rate": 44100, "channels": 2}`, nil)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}

	fx.capture.mu.Lock()
	defer fx.capture.mu.Unlock()
	if fx.capture.restarts != 1 {
		t.Errorf("restarts = %d, want 1", fx.capture.restarts)
	}
	if fx.capture.deviceID != 3 || fx.capture.sampleRate != 44100 || fx.capture.channels != 2 {
		t.Errorf("capture configured with id=%d rate=%d ch=%d",
			fx.capture.deviceID, fx.capture.sampleRate, fx.capture.channels)
	}

	fx.analyzer.mu.Lock()
	defer fx.analyzer.mu.Unlock()
	if fx.analyzer.last.SampleRate != 44100 || fx.analyzer.last.Channels != 2 {
		t.Errorf("analyzer params = %+v", fx.analyzer.last)
	}
}

func TestSetDeviceClampsSampleRate(t *testing.T) {
	fx := newFixture(t)

	postJSON(t, fx.ts.URL+"/api/device", `{"sample_rate": 1000000}`, nil)
	fx.capture.mu.Lock()
	defer fx.capture.mu.Unlock()
	if fx.capture.sampleRate != config.MaxSampleRate {
		t.Errorf("sample rate = %d, want %d", fx.capture.sampleRate, config.MaxSampleRate)
	}
}

func TestSetDevicePersistsConfig(t *testing.T) {
	fx := newFixture(t)

	postJSON(t, fx.ts.URL+"/api/device", `{"device_id": 3}`, nil)
	data, err := os.ReadFile(fx.cfgPath)
	if err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if !strings.Contains(string(data), "device_id: 3") {
		t.Errorf("persisted config missing device id:\n%s", data)
	}
}

func TestSetOptionsClampsAndSkipsRestart(t *testing.T) {
	fx := newFixture(t)

	code := postJSON(t, fx.ts.URL+"/api/options",
		`{"fft_size": 1000, "fps_cap": 500, "smoothing": 2.0}`, nil)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}

	fx.analyzer.mu.Lock()
	last := fx.analyzer.last
	fx.analyzer.mu.Unlock()
	if last.FFTSize != 1024 {
		t.Errorf("fft size = %d, want 1024", last.FFTSize)
	}
	if last.FPSCap != config.MaxFPSCap {
		t.Errorf("fps cap = %d, want %d", last.FPSCap, config.MaxFPSCap)
	}
	if last.Smoothing != config.MaxSmoothing {
		t.Errorf("smoothing = %v, want %v", last.Smoothing, config.MaxSmoothing)
	}

	fx.capture.mu.Lock()
	defer fx.capture.mu.Unlock()
	if fx.capture.restarts != 0 {
		t.Errorf("options change restarted capture %d times", fx.capture.restarts)
	}

	if got := fx.store.Snapshot().Options.FFTSize; got != 1024 {
		t.Errorf("store options fft = %d, want 1024", got)
	}
}

func TestBadRequestBodies(t *testing.T) {
	fx := newFixture(t)

	if code := postJSON(t, fx.ts.URL+"/api/device", `not json`, nil); code != http.StatusBadRequest {
		t.Errorf("invalid JSON status = %d, want 400", code)
	}
	if code := postJSON(t, fx.ts.URL+"/api/device", `{}`, nil); code != http.StatusBadRequest {
		t.Errorf("empty body status = %d, want 400", code)
	}
}
