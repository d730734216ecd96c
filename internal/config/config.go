package config

import (
	"github.com/KarlMarx3333/Audio-Visualizer-For-OBS-browser/pkg/bitint"
)

// Boundaries and defaults for the capture and analysis engine.
const (
	DefaultPort       = 8787
	DefaultSampleRate = 48000
	DefaultChannels   = 1
	DefaultFFTSize    = 2048
	DefaultFPSCap     = 60
	DefaultSmoothing  = 0.65
	DefaultWindow     = "hann"
	DefaultLogLevel   = "info"

	MinDeviceID = -1 // -1 selects the resolution fallback chain

	MinPort = 1024
	MaxPort = 65535

	MinSampleRate = 8000
	MaxSampleRate = 192000

	MinFFTSize = 256
	MaxFFTSize = 16384

	MinFPSCap = 10
	MaxFPSCap = 120

	MaxSmoothing = 0.99
)

// Config is the full application configuration, loaded from YAML and
// persisted back whenever the control API changes it.
type Config struct {
	LogLevel string `yaml:"log_level"`
	Debug    bool   `yaml:"debug"`

	HTTPPort int            `yaml:"port"`
	Audio    AudioConfig    `yaml:"audio"`
	Analysis AnalysisConfig `yaml:"analysis"`
}

// AudioConfig holds capture settings consumed by the engine.
type AudioConfig struct {
	DeviceID   int    `yaml:"device_id"`             // -1 for the resolution fallback chain
	DeviceName string `yaml:"device_name,omitempty"` // exact-match fallback when the ID is stale
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"` // 1 or 2
	InputFile  string `yaml:"input_file,omitempty"` // WAV file capture backend instead of hardware
}

// AnalysisConfig holds the analyzer's DSP settings.
type AnalysisConfig struct {
	FFTSize   int     `yaml:"fft_size"`
	FPSCap    int     `yaml:"fps_cap"`
	Smoothing float64 `yaml:"smoothing"`
	Window    string  `yaml:"window"`
}

// NewConfig returns a Config populated with defaults. This is the base
// before file values, env overrides, and CLI flags are applied.
func NewConfig() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		HTTPPort: DefaultPort,
		Audio: AudioConfig{
			DeviceID:   MinDeviceID,
			SampleRate: DefaultSampleRate,
			Channels:   DefaultChannels,
		},
		Analysis: AnalysisConfig{
			FFTSize:   DefaultFFTSize,
			FPSCap:    DefaultFPSCap,
			Smoothing: DefaultSmoothing,
			Window:    DefaultWindow,
		},
	}
}

// Clamp forces every field into its documented range. It is applied on
// load and on every change coming in through the control API, so the
// engine and analyzer never see out-of-range values.
func (c *Config) Clamp() {
	c.HTTPPort = clampInt(c.HTTPPort, MinPort, MaxPort)
	c.Audio.SampleRate = clampInt(c.Audio.SampleRate, MinSampleRate, MaxSampleRate)
	if c.Audio.Channels <= 1 {
		c.Audio.Channels = 1
	} else {
		c.Audio.Channels = 2
	}
	if c.Audio.DeviceID < MinDeviceID {
		c.Audio.DeviceID = MinDeviceID
	}

	c.Analysis.FFTSize = clampInt(bitint.NextPowerOfTwo(c.Analysis.FFTSize), MinFFTSize, MaxFFTSize)
	c.Analysis.FPSCap = clampInt(c.Analysis.FPSCap, MinFPSCap, MaxFPSCap)
	if c.Analysis.Smoothing < 0 {
		c.Analysis.Smoothing = 0
	}
	if c.Analysis.Smoothing > MaxSmoothing {
		c.Analysis.Smoothing = MaxSmoothing
	}
	if c.Analysis.Window == "" {
		c.Analysis.Window = DefaultWindow
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
