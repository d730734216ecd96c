// Package cmd parses the command line into a runnable invocation.
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/KarlMarx3333/Audio-Visualizer-For-OBS-browser/internal/config"
)

// Commands the binary can run.
const (
	CommandServe   = "serve"
	CommandList    = "list"
	CommandDevices = "devices"
)

// Invocation is the parsed command line: the effective configuration
// (file, env, then flags) and the selected command.
type Invocation struct {
	Config     *config.Config
	ConfigPath string
	Command    string
}

func ParseArgs() (*Invocation, error) {
	inv := &Invocation{Command: CommandServe}

	var (
		configPath string
		port       int
		deviceID   int
		sampleRate int
		channels   int
		fftSize    int
		fpsCap     int
		smoothing  float64
		window     string
		logLevel   string
		debug      bool
		inputFile  string
	)

	rootCmd := &cobra.Command{
		Use:           "audioviz",
		Short:         "Capture audio and stream spectral analysis frames over websocket",
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
	}
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available input devices",
		Run: func(cmd *cobra.Command, args []string) {
			inv.Command = CommandList
		},
	}
	rootCmd.AddCommand(listCmd)

	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "Pick the input device interactively",
		Run: func(cmd *cobra.Command, args []string) {
			inv.Command = CommandDevices
		},
	}
	rootCmd.AddCommand(devicesCmd)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Path to the YAML config file")
	flags.IntVarP(&port, "port", "p", config.DefaultPort, "Control server port")
	flags.IntVarP(&deviceID, "device", "d", config.MinDeviceID,
		"Input device ID. Use 'list' to see available devices.")
	flags.IntVarP(&sampleRate, "samplerate", "s", config.DefaultSampleRate,
		"Capture sample rate in Hz")
	flags.IntVarP(&channels, "channels", "c", config.DefaultChannels,
		"Channels to capture (1=mono, 2=stereo)")
	flags.IntVar(&fftSize, "fft-size", config.DefaultFFTSize,
		"FFT window size (rounded up to a power of two)")
	flags.IntVar(&fpsCap, "fps", config.DefaultFPSCap, "Analysis frame rate cap")
	flags.Float64Var(&smoothing, "smoothing", config.DefaultSmoothing,
		"Spectrum smoothing factor (0 disables)")
	flags.StringVar(&window, "window", config.DefaultWindow, "Analysis window function")
	flags.StringVar(&logLevel, "log-level", config.DefaultLogLevel,
		"Log level (trace, debug, info, warn, error)")
	flags.BoolVar(&debug, "debug", false, "Enable debug logging")
	flags.StringVar(&inputFile, "input-file", "",
		"Capture from a WAV file instead of a hardware device")

	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	// Flags override file and env values only when given on the
	// command line.
	if flags.Changed("port") {
		cfg.HTTPPort = port
	}
	if flags.Changed("device") {
		cfg.Audio.DeviceID = deviceID
		cfg.Audio.DeviceName = ""
	}
	if flags.Changed("samplerate") {
		cfg.Audio.SampleRate = sampleRate
	}
	if flags.Changed("channels") {
		cfg.Audio.Channels = channels
	}
	if flags.Changed("fft-size") {
		cfg.Analysis.FFTSize = fftSize
	}
	if flags.Changed("fps") {
		cfg.Analysis.FPSCap = fpsCap
	}
	if flags.Changed("smoothing") {
		cfg.Analysis.Smoothing = smoothing
	}
	if flags.Changed("window") {
		cfg.Analysis.Window = window
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("debug") {
		cfg.Debug = debug
	}
	if flags.Changed("input-file") {
		cfg.Audio.InputFile = inputFile
	}
	cfg.Clamp()

	inv.Config = cfg
	inv.ConfigPath = configPath
	return inv, nil
}
