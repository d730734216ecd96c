package audio

// DeviceDescriptor describes an input-capable audio device as reported
// by a capture backend. Instances are read-only and refreshed on demand.
type DeviceDescriptor struct {
	ID                int
	Name              string
	HostAPI           string
	MaxInputChannels  int
	DefaultSampleRate float64
}

// SampleCallback receives interleaved float32 samples from the capture
// thread. Implementations must be fast and must never panic the stream;
// backends swallow anything raised here.
type SampleCallback func(in []float32)

// Stream is an open capture stream. Stop and Close are both best-effort
// and safe to call multiple times, in any order.
type Stream interface {
	Stop() error
	Close() error
}

// StreamWatcher is optionally implemented by streams that can report an
// asynchronous runtime failure. The channel yields at most one error;
// the engine treats it as a retryable stream failure.
type StreamWatcher interface {
	Done() <-chan error
}

// Backend abstracts the platform audio layer so the engine never depends
// on a concrete capture implementation.
type Backend interface {
	// InputDevices enumerates devices with at least one input channel.
	InputDevices() ([]DeviceDescriptor, error)
	// DefaultInputID returns the platform default input device ID, if any.
	DefaultInputID() (int, bool)
	// OpenStream opens a capture stream on the given device and starts
	// delivering interleaved samples with the requested channel count.
	OpenStream(deviceID int, sampleRate float64, channels int, cb SampleCallback) (Stream, error)
}
