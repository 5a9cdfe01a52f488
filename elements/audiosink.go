package elements

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"

	avpipe "github.com/erparts/go-avpipe"
)

// audioSinkSoftCap is the number of queued frames past which the input
// side throttles the producer.
const audioSinkSoftCap = 10

// An AudioSink feeds decoded audio frames to an [AudioDevice] and acts as
// the pipeline's audio clock: its position follows the timestamp of the
// frame currently being played, advanced proportionally to the bytes the
// device has consumed. Registering it with the controller makes it the
// master clock (Audio outranks every other type).
type AudioSink struct {
	avpipe.DefaultDelegate
	*avpipe.Base

	sink       *avpipe.Pad
	device     AudioDevice
	controller avpipe.MediaController

	position atomic.Float64
	opened   bool

	volume atomic.Float64
	muted  atomic.Bool

	// Pull-side state, guarded by mu; the device calls back on its own
	// goroutine and must synchronize with pushes and flushes.
	mu            sync.Mutex
	frames        []*avpipe.Frame
	current       *avpipe.Frame
	currentOffset int
}

// NewAudioSink creates an audio sink; inject the device with
// [AudioSink.SetDevice] before bringing the element up.
func NewAudioSink() *AudioSink {
	s := &AudioSink{}
	s.volume.Store(1.0)
	s.Base = avpipe.NewBase(s, "audiosink")
	s.sink = s.AddInput("sink")
	return s
}

// SetVolume sets the playback volume; while muted the new value is kept
// and applied on unmute.
func (s *AudioSink) SetVolume(volume float64) {
	s.volume.Store(volume)
	s.applyVolume()
}

// Volume returns the configured playback volume, ignoring mute.
func (s *AudioSink) Volume() float64 { return s.volume.Load() }

// SetMuted silences the device without touching the configured volume.
func (s *AudioSink) SetMuted(muted bool) {
	s.muted.Store(muted)
	s.applyVolume()
}

// Muted reports whether the sink is muted.
func (s *AudioSink) Muted() bool { return s.muted.Load() }

func (s *AudioSink) effectiveVolume() float64 {
	if s.muted.Load() {
		return 0
	}
	return s.volume.Load()
}

func (s *AudioSink) applyVolume() {
	if s.device != nil {
		s.device.SetVolume(s.effectiveVolume())
	}
}

// SetDevice injects the audio device. Only legal while Null.
func (s *AudioSink) SetDevice(device AudioDevice) error {
	if s.State() != avpipe.StateNull {
		return avpipe.ErrInvalidState
	}
	s.device = device
	return nil
}

func (s *AudioSink) OnInitialize() error {
	if s.device == nil {
		return avpipe.NewError(avpipe.CodeInvalidState, "audio sink has no device")
	}
	s.device.SetPullCallback(s.pull)
	s.applyVolume()
	s.sink.AddProperty(avpipe.PropSampleFormatList,
		avpipe.NewSampleFormatList(s.device.SupportedFormats()...))
	s.controller = avpipe.GetMediaController(s)
	if s.controller != nil {
		s.controller.AddClock(s)
	}
	return nil
}

func (s *AudioSink) OnTeardown() error {
	err := s.device.Close()
	s.opened = false
	s.flush()
	s.sink.ClearProperties()
	if s.controller != nil {
		s.controller.RemoveClock(s)
		s.controller = nil
	}
	return err
}

func (s *AudioSink) OnRun() error {
	s.device.Pause(false)
	return nil
}

func (s *AudioSink) OnPause() error {
	s.device.Pause(true)
	return nil
}

func (s *AudioSink) OnStop() error {
	s.device.Pause(true)
	s.flush()
	return nil
}

// OnSinkPush opens the device lazily from the first frame's parameters,
// then queues the frame. Past the soft cap the producer is held in the
// interruptible sleep loop so seeks and state changes still preempt it.
func (s *AudioSink) OnSinkPush(_ *avpipe.Pad, res avpipe.Resource) error {
	state := s.State()
	if state != avpipe.StateRunning && state != avpipe.StatePaused {
		return avpipe.ErrTemporarilyUnavailable
	}
	frame, ok := res.(*avpipe.Frame)
	if !ok || !frame.IsAudio() {
		return avpipe.ErrUnsupportedResource
	}
	if frame.SampleFormat().IsPlanar() {
		return avpipe.NewError(avpipe.CodeUnsupportedSampleFormat, "device needs packed samples")
	}
	if !s.opened {
		if err := s.device.Open(frame.SampleFormat(), frame.SampleRate(), frame.Channels()); err != nil {
			return s.RaiseError(avpipe.CodeUnsupportedSampleFormat, "failed to open audio device: "+err.Error())
		}
		s.opened = true
		s.device.Pause(s.State() != avpipe.StateRunning)
	}

	frame.Retain()
	s.mu.Lock()
	s.frames = append(s.frames, frame)
	s.mu.Unlock()

	for {
		s.mu.Lock()
		over := len(s.frames) > audioSinkSoftCap
		s.mu.Unlock()
		if !over || s.State() != avpipe.StateRunning {
			return nil
		}
		if err := avpipe.Sleep(10 * time.Millisecond); errors.Is(err, avpipe.ErrInterrupted) {
			return nil
		}
	}
}

func (s *AudioSink) OnSinkEvent(_ *avpipe.Pad, ev avpipe.Event) error {
	switch ev.Type() {
	case avpipe.EventFlushRequested, avpipe.EventSeekRequested:
		s.flush()
	}
	return nil
}

// OnEvent mirrors OnSinkEvent for events sent to the element directly.
func (s *AudioSink) OnEvent(ev avpipe.Event) error {
	switch ev.Type() {
	case avpipe.EventFlushRequested, avpipe.EventSeekRequested:
		s.flush()
	}
	return nil
}

func (s *AudioSink) flush() {
	s.mu.Lock()
	frames := s.frames
	current := s.current
	s.frames = nil
	s.current = nil
	s.currentOffset = 0
	s.mu.Unlock()
	for _, f := range frames {
		f.Release()
	}
	if current != nil {
		current.Release()
	}
}

// pull fills the device buffer from the queued frames, advancing the
// audio clock with every copied span. Runs on the device's goroutine.
func (s *AudioSink) pull(buf []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(buf) > 0 {
		if s.current == nil {
			if len(s.frames) == 0 {
				break
			}
			s.current = s.frames[0]
			s.frames = s.frames[1:]
			s.currentOffset = 0
			s.position.Store(s.current.Timestamp())
		}
		data := s.current.Plane(0)
		copied := copy(buf, data[s.currentOffset:])
		s.currentOffset += copied
		buf = buf[copied:]
		if len(data) > 0 {
			s.position.Add(s.current.Duration() * float64(copied) / float64(len(data)))
		}
		if s.currentOffset >= len(data) {
			s.current.Release()
			s.current = nil
			s.currentOffset = 0
		}
	}
	if len(buf) > 0 {
		// Underrun: serve silence rather than stale bytes.
		clear(buf)
	}
}

// --- MediaClock ---

func (s *AudioSink) Position() float64            { return s.position.Load() }
func (s *AudioSink) ClockType() avpipe.ClockType  { return avpipe.ClockAudio }

// --- MediaElement ---

func (s *AudioSink) Clock() avpipe.MediaClock { return s }

func (s *AudioSink) IsEndOfFile() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames) == 0 && s.current == nil
}

var (
	_ avpipe.MediaClock   = (*AudioSink)(nil)
	_ avpipe.MediaElement = (*AudioSink)(nil)
)

func init() {
	avpipe.RegisterElement("audiosink", func() avpipe.Element { return NewAudioSink() })
}
