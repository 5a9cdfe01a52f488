package avpipe

import (
	"container/list"
	"sync"
	"time"
)

// A Watcher inspects events as they are posted, before they are queued.
// Returning true drops the event so it never reaches the queue. Watchers
// run under the bus lock, on the poster's goroutine; keep them short.
type Watcher func(Event) (drop bool)

// WatcherToken identifies an installed watcher for removal.
type WatcherToken *list.Element

// An EventSink accepts events raised by elements. The pipeline installs
// one on every child; Post hands the event to the dispatch worker and
// returns, Send waits for delivery.
type EventSink interface {
	PostEvent(Event) error
	SendEvent(Event) error
}

// A Bus is an ordered event queue owned by a pipeline: post order equals
// wait order, watchers observe posts before the queue does.
type Bus struct {
	mu       sync.Mutex
	queue    []Event
	watchers list.List

	// nonEmpty holds a token while the queue may have entries; Wait
	// re-checks the queue under the lock after every wakeup.
	nonEmpty chan struct{}
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{nonEmpty: make(chan struct{}, 1)}
}

// Post runs the watchers and, unless one dropped the event, appends it to
// the queue and wakes a waiter.
func (b *Bus) Post(ev Event) {
	if ev == nil {
		return
	}
	b.mu.Lock()
	for e := b.watchers.Front(); e != nil; e = e.Next() {
		if e.Value.(Watcher)(ev) {
			b.mu.Unlock()
			return
		}
	}
	b.queue = append(b.queue, ev)
	b.mu.Unlock()
	select {
	case b.nonEmpty <- struct{}{}:
	default:
	}
}

// AddWatcher installs a watcher (first installed, first called) and
// returns its removal token.
func (b *Bus) AddWatcher(fn Watcher) WatcherToken {
	if fn == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return WatcherToken(b.watchers.PushBack(fn))
}

// RemoveWatcher uninstalls a previously added watcher; nil tokens are
// ignored.
func (b *Bus) RemoveWatcher(token WatcherToken) {
	if token == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.watchers.Remove((*list.Element)(token))
}

// Wait blocks until an event is available or the timeout elapses and
// returns it in post order. A zero timeout polls, a negative timeout
// waits indefinitely.
func (b *Bus) Wait(timeout time.Duration) (Event, bool) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		b.mu.Lock()
		if len(b.queue) > 0 {
			ev := b.queue[0]
			b.queue = b.queue[1:]
			if len(b.queue) > 0 {
				select {
				case b.nonEmpty <- struct{}{}:
				default:
				}
			}
			b.mu.Unlock()
			return ev, true
		}
		b.mu.Unlock()

		switch {
		case timeout == 0:
			return nil, false
		case timeout < 0:
			<-b.nonEmpty
		default:
			remain := time.Until(deadline)
			if remain <= 0 {
				return nil, false
			}
			timer := time.NewTimer(remain)
			select {
			case <-b.nonEmpty:
				timer.Stop()
			case <-timer.C:
				return nil, false
			}
		}
	}
}

// Poll is a non-blocking Wait.
func (b *Bus) Poll() (Event, bool) {
	return b.Wait(0)
}

// Len reports the number of queued events.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
