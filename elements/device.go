package elements

import avpipe "github.com/erparts/go-avpipe"

// An AudioDevice abstracts the platform audio output the audio sink
// writes through. Implementations pull: once opened and started, the
// device invokes the installed callback from its own goroutine whenever
// it needs more interleaved bytes, and the callback must fill the whole
// buffer (zero bytes are silence).
//
// The framework ships an Ebitengine-backed implementation in the
// ebitenio package; OS device access itself stays outside the core.
type AudioDevice interface {
	// SupportedFormats lists the packed sample formats the device
	// accepts, most preferred first.
	SupportedFormats() []avpipe.SampleFormat
	// Open prepares the device for the given stream parameters.
	Open(format avpipe.SampleFormat, sampleRate, channels int) error
	// SetPullCallback installs the buffer-fill callback; it must be set
	// before Open.
	SetPullCallback(fn func(buf []byte))
	// Pause suspends or resumes pulling without losing the stream.
	Pause(paused bool)
	// SetVolume scales the output amplitude; 0 is silence, 1 the
	// stream's native level. Callable before Open, the value sticks.
	SetVolume(volume float64)
	// Close releases the device; Open may be called again afterwards.
	Close() error
}
