package elements

import (
	"time"

	avpipe "github.com/erparts/go-avpipe"
)

// An AppSink is the application egress endpoint: it retains everything
// arriving on its "sink" pad for outside goroutines to collect with
// [AppSink.Wait].
type AppSink struct {
	avpipe.DefaultDelegate
	*avpipe.Base

	sink  *avpipe.Pad
	queue avpipe.BlockingQueue[avpipe.Resource]
}

// NewAppSink creates an application sink.
func NewAppSink() *AppSink {
	s := &AppSink{}
	s.Base = avpipe.NewBase(s, "appsink")
	s.sink = s.AddInput("sink")
	return s
}

func (s *AppSink) OnSinkPush(_ *avpipe.Pad, res avpipe.Resource) error {
	if res == nil {
		return avpipe.ErrInvalidArguments
	}
	s.queue.Push(res.Retain())
	return nil
}

func (s *AppSink) OnSinkEvent(_ *avpipe.Pad, ev avpipe.Event) error {
	switch ev.Type() {
	case avpipe.EventFlushRequested, avpipe.EventSeekRequested:
		s.drain()
	}
	return avpipe.ErrNoImpl
}

// OnEvent mirrors OnSinkEvent for events sent to the element directly.
func (s *AppSink) OnEvent(ev avpipe.Event) error {
	switch ev.Type() {
	case avpipe.EventFlushRequested, avpipe.EventSeekRequested:
		s.drain()
	}
	return avpipe.ErrNoImpl
}

// Wait hands out the next retained resource in arrival order; the caller
// owns the returned reference. Negative timeout waits indefinitely, zero
// polls.
func (s *AppSink) Wait(timeout time.Duration) (avpipe.Resource, bool) {
	return s.queue.Wait(timeout)
}

// Size reports the number of retained resources.
func (s *AppSink) Size() int { return s.queue.Len() }

func (s *AppSink) OnTeardown() error {
	s.drain()
	return nil
}

func (s *AppSink) drain() {
	for {
		res, ok := s.queue.TryPop()
		if !ok {
			return
		}
		res.Release()
	}
}

func init() {
	avpipe.RegisterElement("appsink", func() avpipe.Element { return NewAppSink() })
}
