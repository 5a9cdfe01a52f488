package elements

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"

	avpipe "github.com/erparts/go-avpipe"
)

// videoSinkSoftCap bounds the frames buffered ahead of presentation.
const videoSinkSoftCap = 4

// Synchronization thresholds: a frame more than waitThreshold early is
// slept on, one more than dropThreshold late is discarded. Frames beyond
// maxWait early indicate a broken clock and are shown immediately.
const (
	waitThreshold = 10 * time.Millisecond
	maxWait       = 10 * time.Second
	dropThreshold = 300 * time.Millisecond
)

// A VideoSink consumes decoded pictures on its private worker and hands
// them to the injected [Renderer] in sync with the controller's master
// clock: early frames wait (a flush or state change cancels the wait),
// frames late past the drop threshold are discarded.
type VideoSink struct {
	avpipe.DefaultDelegate
	*avpipe.Base

	sink       *avpipe.Pad
	renderer   Renderer
	controller avpipe.MediaController

	position atomic.Float64
	dropped  atomic.Int64

	mu     sync.Mutex
	frames []*avpipe.Frame

	cancel    chan struct{} // capacity 1; wakes a sync wait
	afterSeek atomic.Bool
}

// NewVideoSink creates a video sink; inject the renderer with
// [VideoSink.SetRenderer] before bringing the element up.
func NewVideoSink() *VideoSink {
	s := &VideoSink{cancel: make(chan struct{}, 1)}
	s.Base = avpipe.NewThreadedBase(s, "videosink")
	s.sink = s.AddInput("sink")
	return s
}

// SetRenderer injects the presentation surface. Only legal while Null.
func (s *VideoSink) SetRenderer(r Renderer) error {
	if s.State() != avpipe.StateNull {
		return avpipe.ErrInvalidState
	}
	s.renderer = r
	return nil
}

// DroppedFrames reports how many frames were discarded for being late.
func (s *VideoSink) DroppedFrames() int64 { return s.dropped.Load() }

func (s *VideoSink) OnInitialize() error {
	if s.renderer == nil {
		return avpipe.NewError(avpipe.CodeInvalidState, "video sink has no renderer")
	}
	if err := s.renderer.Init(); err != nil {
		return avpipe.WrapError(avpipe.CodeExternal, "renderer init", err)
	}
	s.sink.AddProperty(avpipe.PropPixelFormatList,
		avpipe.NewPixelFormatList(s.renderer.SupportedFormats()...))
	s.controller = avpipe.GetMediaController(s)
	return nil
}

func (s *VideoSink) OnTeardown() error {
	s.flush()
	s.renderer.SetFrame(nil)
	err := s.renderer.Close()
	s.sink.ClearProperties()
	s.controller = nil
	s.afterSeek.Store(false)
	s.dropped.Store(0)
	return err
}

// SetState cancels a pending sync wait before the transition is applied,
// so a Running element asleep on a far-future frame reacts promptly.
func (s *VideoSink) SetState(target avpipe.State) error {
	s.signalCancel()
	return s.Base.SetState(target)
}

func (s *VideoSink) signalCancel() {
	select {
	case s.cancel <- struct{}{}:
	default:
	}
}

// OnSinkPush runs on the upstream goroutine: apply soft backpressure,
// queue the frame, wake the worker.
func (s *VideoSink) OnSinkPush(_ *avpipe.Pad, res avpipe.Resource) error {
	frame, ok := res.(*avpipe.Frame)
	if !ok || frame.IsAudio() {
		return avpipe.ErrUnsupportedResource
	}
	if s.afterSeek.CompareAndSwap(true, false) {
		pkgDebugf("videosink %s: first frame after seek, pts %.3f", s.Name(), frame.Timestamp())
	}
	for {
		s.mu.Lock()
		over := len(s.frames) > videoSinkSoftCap
		s.mu.Unlock()
		if !over {
			break
		}
		if err := avpipe.Sleep(10 * time.Millisecond); errors.Is(err, avpipe.ErrInterrupted) {
			break
		}
		if s.State() != avpipe.StateRunning {
			break
		}
	}
	frame.Retain()
	s.mu.Lock()
	s.frames = append(s.frames, frame)
	s.mu.Unlock()
	if worker := s.Worker(); worker != nil {
		worker.Post(func() {})
	}
	return nil
}

func (s *VideoSink) OnSinkEvent(_ *avpipe.Pad, ev avpipe.Event) error {
	switch ev.Type() {
	case avpipe.EventSeekRequested:
		s.afterSeek.Store(true)
		fallthrough
	case avpipe.EventFlushRequested:
		s.dropped.Store(0)
		s.flush()
		s.signalCancel()
	}
	return nil
}

// SendEvent handles flush and seek on the caller's goroutine: routing
// them through the private worker would queue them behind the very sync
// wait they are meant to cancel.
func (s *VideoSink) SendEvent(ev avpipe.Event) error {
	if ev != nil {
		switch ev.Type() {
		case avpipe.EventFlushRequested, avpipe.EventSeekRequested:
			return s.OnSinkEvent(nil, ev)
		}
	}
	return s.Base.SendEvent(ev)
}

func (s *VideoSink) flush() {
	s.mu.Lock()
	frames := s.frames
	s.frames = nil
	s.mu.Unlock()
	for _, f := range frames {
		f.Release()
	}
}

func (s *VideoSink) OnLoop() error {
	worker := s.Worker()
	for !s.StopRequested() {
		worker.WaitTask(-1)
		for s.State() == avpipe.StateRunning {
			worker.WaitTask(10 * time.Millisecond)
			for s.State() == avpipe.StateRunning {
				frame, ok := s.popFrame()
				if !ok {
					break
				}
				s.presentFrame(frame)
				frame.Release()
				worker.Dispatch()
			}
		}
	}
	return nil
}

func (s *VideoSink) popFrame() (*avpipe.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return nil, false
	}
	frame := s.frames[0]
	s.frames = s.frames[1:]
	return frame, true
}

// presentFrame applies the drop/wait policy against the master clock and
// hands due frames to the renderer.
func (s *VideoSink) presentFrame(frame *avpipe.Frame) {
	var master avpipe.MediaClock
	if s.controller != nil {
		master = s.controller.MasterClock()
	}
	if master == nil {
		s.render(frame)
		return
	}
	pts := frame.Timestamp()
	s.position.Store(pts)
	diff := time.Duration((master.Position() - pts) * float64(time.Second))
	switch {
	case diff < -waitThreshold && diff > -maxWait:
		// Drop a stale cancel token so only a fresh flush or state
		// change cuts this wait short.
		select {
		case <-s.cancel:
		default:
		}
		timer := time.NewTimer(-diff)
		select {
		case <-timer.C:
		case <-s.cancel:
			timer.Stop()
		}
	case diff > dropThreshold:
		if n := s.dropped.Inc(); n > 10 {
			pkgLogf("videosink %s: dropped %d late frames (%.0f ms behind)",
				s.Name(), n, float64(diff)/float64(time.Millisecond))
		}
		return
	}
	s.render(frame)
}

func (s *VideoSink) render(frame *avpipe.Frame) {
	if err := s.renderer.SetFrame(frame); err != nil {
		pkgLogf("videosink %s: render: %v", s.Name(), err)
	}
}

// --- MediaClock ---

func (s *VideoSink) Position() float64           { return s.position.Load() }
func (s *VideoSink) ClockType() avpipe.ClockType { return avpipe.ClockVideo }

// --- MediaElement ---

func (s *VideoSink) Clock() avpipe.MediaClock { return s }

func (s *VideoSink) IsEndOfFile() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames) == 0
}

var (
	_ avpipe.MediaClock   = (*VideoSink)(nil)
	_ avpipe.MediaElement = (*VideoSink)(nil)
)

func init() {
	avpipe.RegisterElement("videosink", func() avpipe.Element { return NewVideoSink() })
}
