package main

import (
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/KarlMarx3333/Audio-Visualizer-For-OBS-browser/cmd"
	"github.com/KarlMarx3333/Audio-Visualizer-For-OBS-browser/internal/analysis"
	"github.com/KarlMarx3333/Audio-Visualizer-For-OBS-browser/internal/audio"
	"github.com/KarlMarx3333/Audio-Visualizer-For-OBS-browser/internal/config"
	"github.com/KarlMarx3333/Audio-Visualizer-For-OBS-browser/internal/logging"
	"github.com/KarlMarx3333/Audio-Visualizer-For-OBS-browser/internal/server"
	"github.com/KarlMarx3333/Audio-Visualizer-For-OBS-browser/internal/state"
	"github.com/KarlMarx3333/Audio-Visualizer-For-OBS-browser/internal/stream"
	"github.com/KarlMarx3333/Audio-Visualizer-For-OBS-browser/internal/tui"
)

const monitorInterval = 100 * time.Millisecond

// main runs in three phases: startup (parse args, open the backend,
// handle one-off commands), concurrent (engine, analyzer, control
// server, monitor loop), and shutdown (ordered teardown on signal).
func main() {
	// ==================== STARTUP ====================

	inv, err := cmd.ParseArgs()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg := inv.Config
	logger := logging.New(cfg.LogLevel, cfg.Debug)

	backend, cleanup, err := openBackend(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("audio backend init failed")
	}
	defer cleanup()

	switch inv.Command {
	case cmd.CommandList:
		if err := listDevices(backend); err != nil {
			logger.Fatal().Err(err).Msg("device listing failed")
		}
		return
	case cmd.CommandDevices:
		if err := pickDevice(backend, cfg, inv.ConfigPath, logger); err != nil {
			logger.Fatal().Err(err).Msg("device picker failed")
		}
		return
	}

	// ==================== CONCURRENT ====================

	store := state.NewStore()
	store.SetOptions(state.Options{
		FFTSize:   cfg.Analysis.FFTSize,
		FPSCap:    cfg.Analysis.FPSCap,
		Smoothing: cfg.Analysis.Smoothing,
		Window:    cfg.Analysis.Window,
	})

	engine := audio.NewEngine(backend, logger)
	engine.Configure(cfg.Audio.DeviceID, cfg.Audio.DeviceName,
		cfg.Audio.SampleRate, cfg.Audio.Channels)

	analyzer := analysis.NewAnalyzer(engine, logger)
	analyzer.Configure(analysis.Params{
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
		FFTSize:    cfg.Analysis.FFTSize,
		FPSCap:     cfg.Analysis.FPSCap,
		Smoothing:  cfg.Analysis.Smoothing,
		Window:     cfg.Analysis.Window,
	})

	ws := stream.NewHandler(analyzer, store, logger)
	ctrl := server.New(cfg, inv.ConfigPath, store, engine, analyzer, backend, ws, logger)

	engine.Start()
	analyzer.Start()
	if err := ctrl.Start(); err != nil {
		logger.Fatal().Err(err).Msg("control server start failed")
	}
	store.SetRunning()

	monitorStop := make(chan struct{})
	monitorDone := make(chan struct{})
	go monitor(engine, analyzer, store, monitorStop, monitorDone)

	logger.Info().
		Int("port", cfg.HTTPPort).
		Int("sample_rate", cfg.Audio.SampleRate).
		Int("channels", cfg.Audio.Channels).
		Msg("audio visualizer host running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	// ==================== SHUTDOWN ====================

	logger.Info().Msg("shutting down")
	close(monitorStop)
	<-monitorDone
	analyzer.Stop()
	engine.Stop()
	ws.Close()
	ctrl.Close()
	store.SetStopped()
}

// openBackend selects the capture backend: a WAV file when configured,
// the PortAudio hardware backend otherwise. The returned cleanup must
// run after all streams are closed.
func openBackend(cfg *config.Config, logger zerolog.Logger) (audio.Backend, func(), error) {
	if cfg.Audio.InputFile != "" {
		logger.Info().Str("file", cfg.Audio.InputFile).Msg("using WAV file capture")
		b, err := audio.NewWAVFileBackend(cfg.Audio.InputFile)
		if err != nil {
			return nil, func() {}, err
		}
		return b, func() {}, nil
	}
	if err := audio.Initialize(); err != nil {
		return nil, func() {}, err
	}
	return &audio.PortAudioBackend{}, func() { _ = audio.Terminate() }, nil
}

// listDevices prints the input devices to stdout.
func listDevices(backend audio.Backend) error {
	devices, err := backend.InputDevices()
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("No input devices found.")
		return nil
	}
	defaultID, hasDefault := backend.DefaultInputID()
	for _, d := range devices {
		mark := " "
		if hasDefault && d.ID == defaultID {
			mark = "*"
		}
		fmt.Printf("%s [%d] %s (%s): %d in, %.0f Hz\n",
			mark, d.ID, d.Name, d.HostAPI, d.MaxInputChannels, d.DefaultSampleRate)
	}
	return nil
}

// pickDevice runs the interactive picker and persists the selection.
func pickDevice(backend audio.Backend, cfg *config.Config, cfgPath string, logger zerolog.Logger) error {
	picked, ok, err := tui.PickDevice(backend)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	cfg.Audio.DeviceID = picked.ID
	cfg.Audio.DeviceName = picked.Name
	if err := config.SaveConfig(cfgPath, cfg); err != nil {
		return err
	}
	logger.Info().Int("device_id", picked.ID).Str("name", picked.Name).Msg("device saved")
	return nil
}

// monitor folds the engine's health and the analyzer's latest metrics
// into the state store on a fixed cadence.
func monitor(engine *audio.Engine, analyzer *analysis.Analyzer, store *state.Store,
	stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		store.SetError(engine.LastError())
		if dev, ok := engine.ResolvedDevice(); ok {
			store.SetDevice(state.Device{
				ID:         dev.ID,
				Name:       dev.Name,
				SampleRate: int(dev.DefaultSampleRate),
				Channels:   dev.MaxInputChannels,
			})
		} else {
			store.ClearDevice()
		}

		snap := analyzer.Latest()
		if snap.FrameID == 0 {
			continue
		}
		corr := snap.Correlation
		if snap.Channels != 2 {
			corr = math.NaN()
		}
		store.UpdateMetrics(state.Metrics{
			FrameID:     snap.FrameID,
			Timestamp:   snap.Timestamp,
			RMS:         snap.RMS,
			Peak:        snap.Peak,
			Correlation: corr,
		})
	}
}
