// Package elements provides the reusable element implementations of the
// framework: bounded queues, application endpoints, format converters and
// the reference audio/video sinks.
package elements

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"

	avpipe "github.com/erparts/go-avpipe"
)

// DefaultQueueCapacity bounds a queue that has not been configured.
const DefaultQueueCapacity = 500

// queueBackoff paces the producer while the queue is over capacity.
const queueBackoff = 10 * time.Millisecond

type queueItem struct {
	res      avpipe.Resource
	duration float64
}

// A Queue is the bounded FIFO between a producer and a consumer stage.
// The input side enqueues synchronously and, once over capacity, holds
// the producer in an interruptible sleep loop so state changes and seeks
// still preempt it; the private worker drains items downstream. The
// tracked duration always equals the sum of the held item durations.
type Queue struct {
	avpipe.DefaultDelegate
	*avpipe.Base

	sink *avpipe.Pad
	src  *avpipe.Pad

	mu       sync.Mutex
	items    []queueItem
	capacity int
	arrived  chan struct{} // capacity 1

	duration atomic.Float64
}

// NewQueue creates a queue with the default capacity.
func NewQueue() *Queue {
	q := &Queue{
		capacity: DefaultQueueCapacity,
		arrived:  make(chan struct{}, 1),
	}
	q.Base = avpipe.NewThreadedBase(q, "queue")
	q.sink = q.AddInput("sink")
	q.src = q.AddOutput("src")
	return q
}

// SetCapacity changes the bound; it applies to subsequent pushes.
func (q *Queue) SetCapacity(n int) {
	if n <= 0 {
		return
	}
	q.mu.Lock()
	q.capacity = n
	q.mu.Unlock()
}

// Size reports the number of queued resources.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Duration reports the summed duration of the held items, in seconds.
func (q *Queue) Duration() float64 { return q.duration.Load() }

func durationOf(res avpipe.Resource) float64 {
	switch r := res.(type) {
	case *avpipe.Packet:
		return r.Duration()
	case *avpipe.Frame:
		return r.Duration()
	default:
		return 0
	}
}

// OnSinkPush enqueues on the caller's goroutine. Under capacity the item
// goes straight in; at capacity the producer sleeps in 10 ms slices that
// any task on its worker interrupts, re-checking until the consumer makes
// room. A preemption (interrupt or a state other than Running) ends the
// wait early; the item is kept either way so no data is lost.
func (q *Queue) OnSinkPush(_ *avpipe.Pad, res avpipe.Resource) error {
	if res == nil {
		return avpipe.ErrInvalidArguments
	}
	item := queueItem{res: res.Retain(), duration: durationOf(res)}
	for {
		q.mu.Lock()
		if len(q.items) < q.capacity {
			q.items = append(q.items, item)
			q.mu.Unlock()
			q.duration.Add(item.duration)
			q.signalArrived()
			return nil
		}
		q.mu.Unlock()
		if err := avpipe.Sleep(queueBackoff); errors.Is(err, avpipe.ErrInterrupted) {
			break
		}
		if q.State() != avpipe.StateRunning {
			break
		}
	}
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.duration.Add(item.duration)
	q.signalArrived()
	return nil
}

func (q *Queue) signalArrived() {
	select {
	case q.arrived <- struct{}{}:
	default:
	}
}

// OnSinkEvent flushes on seek/flush requests and lets every event keep
// flowing downstream.
func (q *Queue) OnSinkEvent(_ *avpipe.Pad, ev avpipe.Event) error {
	switch ev.Type() {
	case avpipe.EventFlushRequested, avpipe.EventSeekRequested:
		q.flush()
	}
	return avpipe.ErrNoImpl
}

// OnEvent mirrors OnSinkEvent for events sent to the element directly.
func (q *Queue) OnEvent(ev avpipe.Event) error {
	switch ev.Type() {
	case avpipe.EventFlushRequested, avpipe.EventSeekRequested:
		q.flush()
	}
	return avpipe.ErrNoImpl
}

func (q *Queue) flush() {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()
	for _, item := range items {
		item.res.Release()
	}
	q.duration.Store(0)
}

func (q *Queue) OnTeardown() error {
	q.flush()
	return nil
}

// OnLoop drains items downstream while Running and otherwise parks on the
// task queue so state changes wake it.
func (q *Queue) OnLoop() error {
	worker := q.Worker()
	for !q.StopRequested() {
		if q.State() != avpipe.StateRunning {
			worker.WaitTask(-1)
			continue
		}
		item, ok := q.pop(2 * time.Millisecond)
		if !ok {
			worker.Dispatch()
			continue
		}
		q.duration.Sub(item.duration)
		if err := q.src.Push(item.res); err != nil && !errors.Is(err, avpipe.ErrNoLink) {
			pkgLogf("queue %s: push: %v", q.Name(), err)
		}
		item.res.Release()
		worker.Dispatch()
	}
	return nil
}

func (q *Queue) pop(timeout time.Duration) (queueItem, bool) {
	q.mu.Lock()
	if len(q.items) > 0 {
		item := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()
		return item, true
	}
	q.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-q.arrived:
	case <-timer.C:
		return queueItem{}, false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return queueItem{}, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

func init() {
	avpipe.RegisterElement("queue", func() avpipe.Element { return NewQueue() })
}
