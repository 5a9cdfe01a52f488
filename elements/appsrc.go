package elements

import (
	"errors"
	"time"

	avpipe "github.com/erparts/go-avpipe"
)

// An AppSrc is the application ingress endpoint: outside goroutines push
// resources in, the private worker streams them out of the "src" pad in
// arrival order.
type AppSrc struct {
	avpipe.DefaultDelegate
	*avpipe.Base

	src   *avpipe.Pad
	queue avpipe.BlockingQueue[avpipe.Resource]
}

// NewAppSrc creates an idle application source.
func NewAppSrc() *AppSrc {
	s := &AppSrc{}
	s.Base = avpipe.NewThreadedBase(s, "appsrc")
	s.src = s.AddOutput("src")
	return s
}

// Push hands a resource to the source. The source takes its own
// reference; pushing while the element is in the Null state fails.
func (s *AppSrc) Push(res avpipe.Resource) error {
	if res == nil {
		return avpipe.ErrInvalidArguments
	}
	if s.State() == avpipe.StateNull {
		return avpipe.ErrInvalidState
	}
	s.queue.Push(res.Retain())
	return nil
}

// Size reports the number of resources waiting to be streamed.
func (s *AppSrc) Size() int { return s.queue.Len() }

func (s *AppSrc) OnLoop() error {
	worker := s.Worker()
	for !s.StopRequested() {
		if s.State() != avpipe.StateRunning {
			worker.WaitTask(-1)
			continue
		}
		if res, ok := s.queue.Wait(10 * time.Millisecond); ok {
			if err := s.src.Push(res); err != nil && !errors.Is(err, avpipe.ErrNoLink) {
				pkgLogf("appsrc %s: push: %v", s.Name(), err)
			}
			res.Release()
		}
		worker.Dispatch()
	}
	return nil
}

func (s *AppSrc) OnTeardown() error {
	for {
		res, ok := s.queue.TryPop()
		if !ok {
			return nil
		}
		res.Release()
	}
}

func init() {
	avpipe.RegisterElement("appsrc", func() avpipe.Element { return NewAppSrc() })
}
