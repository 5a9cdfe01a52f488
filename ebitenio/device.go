// Package ebitenio adapts the pipeline's injected device and renderer
// interfaces to Ebitengine: audio goes through an audio.Context player
// pulling interleaved 16-bit stereo, video lands in an ebiten.Image.
package ebitenio

import (
	"errors"
	"io"
	"math"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2/audio"

	avpipe "github.com/erparts/go-avpipe"
	"github.com/erparts/go-avpipe/elements"
)

// A player buffer of 200ms keeps the pull cadence coarse enough for the
// sink's frame queue while staying inaudible on pause/resume.
const playerBufferSize = 200 * time.Millisecond

// Initialization errors of the audio device.
var (
	ErrNilAudioContext = errors.New("audio.Context is not initialized")
	ErrBadSampleRate   = errors.New("stream and audio context sample rates don't match")
	ErrBadChannels     = errors.New("only stereo streams are supported")
)

// AudioDevice drives an Ebitengine audio player from the sink's pull
// callback. The global audio.Context must exist before Open and its
// sample rate must match the stream.
type AudioDevice struct {
	mu     sync.Mutex
	pull   func([]byte)
	player *audio.Player
	paused bool
	volume float64
}

// NewAudioDevice creates a closed device at full volume.
func NewAudioDevice() *AudioDevice {
	return &AudioDevice{paused: true, volume: 1.0}
}

func (d *AudioDevice) SupportedFormats() []avpipe.SampleFormat {
	return []avpipe.SampleFormat{avpipe.SampleFormatS16}
}

func (d *AudioDevice) SetPullCallback(fn func(buf []byte)) {
	d.mu.Lock()
	d.pull = fn
	d.mu.Unlock()
}

func (d *AudioDevice) Open(format avpipe.SampleFormat, sampleRate, channels int) error {
	if format != avpipe.SampleFormatS16 {
		return errors.New("device serves 16-bit samples only")
	}
	if channels != 2 {
		return ErrBadChannels
	}
	ctx := audio.CurrentContext()
	if ctx == nil {
		return ErrNilAudioContext
	}
	if ctx.SampleRate() != sampleRate {
		return ErrBadSampleRate
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player != nil {
		return nil
	}
	player, err := ctx.NewPlayer(&struct{ io.Reader }{deviceReader{d}})
	if err != nil {
		return err
	}
	player.SetBufferSize(playerBufferSize)
	player.SetVolume(d.volume)
	d.player = player
	if !d.paused {
		player.Play()
	}
	return nil
}

func (d *AudioDevice) SetVolume(volume float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.volume = volume
	if d.player != nil {
		d.player.SetVolume(volume)
	}
}

func (d *AudioDevice) Pause(paused bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = paused
	if d.player == nil {
		return
	}
	if paused {
		d.player.Pause()
	} else {
		d.player.Play()
	}
}

func (d *AudioDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = true
	if d.player == nil {
		return nil
	}
	err := d.player.Close()
	d.player = nil
	return err
}

// deviceReader feeds the Ebitengine player from the pull callback.
// Underruns come back as silence, so the reader never reports EOF.
type deviceReader struct {
	d *AudioDevice
}

func (r deviceReader) Read(buf []byte) (int, error) {
	// Clamp to whole 16-bit stereo sample groups.
	buf = buf[:len(buf)&(math.MaxInt-0b11)]
	r.d.mu.Lock()
	pull := r.d.pull
	r.d.mu.Unlock()
	if pull == nil {
		clear(buf)
		return len(buf), nil
	}
	pull(buf)
	return len(buf), nil
}

var _ elements.AudioDevice = (*AudioDevice)(nil)
