package avpipe

import (
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// ThreadPriority is a best-effort scheduling hint for a worker. The Go
// runtime offers no per-goroutine priorities, so the value is recorded and
// surfaced for diagnostics only.
type ThreadPriority int

const (
	PriorityLowest ThreadPriority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityHighest
	PriorityRealTime
)

// workersByGoroutine maps goroutine ids to their Worker, standing in for
// the thread-local the framework needs to answer [Current] and to make
// [Sleep] interruptible from anywhere inside a worker's call tree.
var workersByGoroutine sync.Map // uint64 -> *Worker

// A Worker is a cooperative goroutine with a FIFO queue of tasks and an
// interruptible wait. Each queued task runs exactly once, in order, and no
// task runs concurrently with another on the same worker. After [NewWorker]
// the worker is idle; [Worker.Close] posts a sentinel that makes the loop
// exit, then joins.
type Worker struct {
	mu      sync.Mutex
	pending []func()
	running bool

	wake chan struct{} // capacity 1; signaled on every post
	done chan struct{}

	idle     atomic.Bool
	name     atomic.String
	priority atomic.Int32
}

// NewWorker spawns an idle worker. The name is a debugging hint used in
// logs; it can be changed later with [Worker.SetName].
func NewWorker(name string) *Worker {
	w := &Worker{
		running: true,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	w.name.Store(name)
	w.idle.Store(true)
	w.priority.Store(int32(PriorityNormal))
	go w.run()
	return w
}

func (w *Worker) run() {
	gid := goroutineID()
	workersByGoroutine.Store(gid, w)
	defer func() {
		workersByGoroutine.Delete(gid)
		close(w.done)
	}()
	for {
		w.idle.Store(false)
		w.Dispatch()
		w.idle.Store(true)

		w.mu.Lock()
		if !w.running {
			w.mu.Unlock()
			return
		}
		empty := len(w.pending) == 0
		w.mu.Unlock()
		if empty {
			<-w.wake
		}
	}
}

// Post enqueues a task and returns immediately.
func (w *Worker) Post(task func()) {
	if task == nil {
		return
	}
	w.mu.Lock()
	w.pending = append(w.pending, task)
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Send enqueues a task and blocks until it has run. A panic inside the
// task is recovered and returned to the sender as an Internal error.
// Calling Send from the worker's own goroutine runs the task inline.
func (w *Worker) Send(task func()) (err error) {
	if task == nil {
		return ErrInvalidArguments
	}
	run := func() {
		defer func() {
			if r := recover(); r != nil {
				err = NewErrorf(CodeInternal, "task panic: %v", r)
			}
		}()
		task()
	}
	if Current() == w {
		run()
		return err
	}
	done := make(chan struct{})
	w.Post(func() {
		defer close(done)
		run()
	})
	<-done
	return err
}

// Invoke runs fn on the worker, waits for it, and hands back its result.
func Invoke[T any](w *Worker, fn func() T) (T, error) {
	var out T
	err := w.Send(func() { out = fn() })
	return out, err
}

// Dispatch drains the queue without waiting and returns the number of
// tasks processed. It is meant to be called from the worker goroutine,
// typically inside an element loop.
func (w *Worker) Dispatch() int {
	n := 0
	for {
		w.mu.Lock()
		if len(w.pending) == 0 {
			w.mu.Unlock()
			return n
		}
		task := w.pending[0]
		w.pending = w.pending[1:]
		w.mu.Unlock()
		task()
		n++
	}
}

// WaitTask drains the queue, blocking up to timeout for at least one task
// to arrive. A negative timeout waits indefinitely; zero is a poll.
// Returns the number of tasks processed.
func (w *Worker) WaitTask(timeout time.Duration) int {
	if n := w.Dispatch(); n > 0 {
		return n
	}
	if timeout == 0 {
		return 0
	}
	if timeout < 0 {
		<-w.wake
		return w.Dispatch()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-w.wake:
	case <-timer.C:
	}
	return w.Dispatch()
}

// Sleep pauses the worker goroutine for d, returning [ErrInterrupted]
// the moment a new task is posted to this worker. This is the mechanism
// bounded-delay producers use to stay responsive to state changes.
func (w *Worker) Sleep(d time.Duration) error {
	if d <= 0 {
		return nil
	}
	w.mu.Lock()
	if len(w.pending) > 0 {
		w.mu.Unlock()
		return ErrInterrupted
	}
	// Drop a stale wake token so only a fresh post interrupts. The run
	// loop re-checks the queue before blocking, so this loses nothing.
	select {
	case <-w.wake:
	default:
	}
	w.mu.Unlock()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-w.wake:
		return ErrInterrupted
	}
}

// Idle reports whether the worker is parked waiting for tasks.
func (w *Worker) Idle() bool { return w.idle.Load() }

// SetName updates the worker's debugging name.
func (w *Worker) SetName(name string) { w.name.Store(name) }

// Name returns the worker's debugging name.
func (w *Worker) Name() string { return w.name.Load() }

// SetPriority records a best-effort scheduling hint.
func (w *Worker) SetPriority(p ThreadPriority) { w.priority.Store(int32(p)) }

// Priority returns the recorded scheduling hint.
func (w *Worker) Priority() ThreadPriority { return ThreadPriority(w.priority.Load()) }

// Close asks the loop to exit after the queued tasks drain, then joins.
func (w *Worker) Close() {
	w.Post(func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	})
	<-w.done
}

// Current returns the Worker bound to the calling goroutine, or nil when
// the caller is not running on a worker.
func Current() *Worker {
	if v, ok := workersByGoroutine.Load(goroutineID()); ok {
		return v.(*Worker)
	}
	return nil
}

// Sleep is the interruptible sleep of the calling worker; on a plain
// goroutine it degrades to time.Sleep and never reports an interrupt.
func Sleep(d time.Duration) error {
	if w := Current(); w != nil {
		return w.Sleep(d)
	}
	time.Sleep(d)
	return nil
}

// goroutineID parses the current goroutine id from its stack header
// ("goroutine N [running]: ..."). Go offers no public accessor; parsing
// once per lookup is cheap enough for control-path use.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := strings.Fields(string(buf[:n]))
	if len(fields) < 2 {
		return 0
	}
	id, _ := strconv.ParseUint(fields[1], 10, 64)
	return id
}
