package elements

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	avpipe "github.com/erparts/go-avpipe"
)

// collectorElement is the downstream end used across element tests: it
// retains everything pushed at it and can be told to block deliveries
// until released.
type collectorElement struct {
	avpipe.DefaultDelegate
	*avpipe.Base

	mu     sync.Mutex
	got    []avpipe.Resource
	events []avpipe.Event

	block     chan struct{} // when non-nil, first delivery waits on it
	blockOnce sync.Once
}

func newCollector(pads ...string) *collectorElement {
	c := &collectorElement{}
	c.Base = avpipe.NewBase(c, "collector")
	if len(pads) == 0 {
		pads = []string{"sink"}
	}
	for _, pad := range pads {
		if pad == "sink" {
			c.AddInput(pad)
		} else {
			c.AddOutput(pad)
		}
	}
	return c
}

func (c *collectorElement) OnSinkPush(_ *avpipe.Pad, res avpipe.Resource) error {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	c.got = append(c.got, res.Retain())
	c.mu.Unlock()
	return nil
}

func (c *collectorElement) OnSinkEvent(_ *avpipe.Pad, ev avpipe.Event) error {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	return avpipe.ErrNoImpl
}

func (c *collectorElement) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

func (c *collectorElement) eventCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func audioFrameWithDuration(duration float64) *avpipe.Frame {
	f := avpipe.NewAudioFrame(avpipe.SampleFormatS16, 2, 16)
	f.SetSampleRate(44100)
	f.SetDuration(duration)
	return f
}

// The tracked duration equals the sum of the held item durations across
// pushes and pops.
func TestQueueDurationTracksContents(t *testing.T) {
	q := NewQueue()
	durations := []float64{0.1, 0.2, 0.3}
	var frames []*avpipe.Frame
	for _, d := range durations {
		f := audioFrameWithDuration(d)
		frames = append(frames, f)
		require.NoError(t, q.OnSinkPush(nil, f))
	}
	assert.Equal(t, 3, q.Size())
	assert.InDelta(t, 0.6, q.Duration(), 1e-9)

	for _, f := range frames {
		f.Release()
	}
	require.NoError(t, q.SendEvent(avpipe.NewFlushEvent(nil)))
	assert.Equal(t, 0, q.Size())
	assert.InDelta(t, 0.0, q.Duration(), 1e-9)
}

func TestQueueForwardsInOrder(t *testing.T) {
	q := NewQueue()
	dst := newCollector()
	require.NoError(t, avpipe.LinkElements(q, dst))
	require.NoError(t, q.SetState(avpipe.StateRunning))
	defer q.SetState(avpipe.StateNull)

	var frames []*avpipe.Frame
	for i := 0; i < 5; i++ {
		f := audioFrameWithDuration(0.1)
		f.SetTimestamp(float64(i))
		frames = append(frames, f)
		require.NoError(t, q.OnSinkPush(nil, f))
	}
	require.Eventually(t, func() bool { return dst.count() == 5 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, q.Size())
	assert.InDelta(t, 0.0, q.Duration(), 1e-9)

	dst.mu.Lock()
	for i, res := range dst.got {
		assert.Equal(t, float64(i), res.(*avpipe.Frame).Timestamp(), "arrival order")
	}
	dst.mu.Unlock()
	for _, f := range frames {
		f.Release()
	}
}

// With a stuck consumer and capacity 4, the producer ends up blocked in
// the interruptible sleep loop while the queue keeps exactly one
// capacity's worth of media buffered.
func TestQueueBackpressureBoundsBufferedDuration(t *testing.T) {
	q := NewQueue()
	q.SetCapacity(4)
	dst := newCollector()
	dst.block = make(chan struct{})
	require.NoError(t, avpipe.LinkElements(q, dst))
	require.NoError(t, q.SetState(avpipe.StateRunning))
	defer func() {
		dst.blockOnce.Do(func() { close(dst.block) })
		q.SetState(avpipe.StateNull)
	}()

	pushed := make(chan int, 10)
	go func() {
		for i := 0; i < 10; i++ {
			f := audioFrameWithDuration(0.1)
			q.OnSinkPush(nil, f)
			f.Release()
			pushed <- i
		}
	}()

	// One item sits in flight at the blocked consumer, four fill the
	// queue, the producer stalls on the sixth.
	require.Eventually(t, func() bool {
		return len(pushed) == 5 && q.Size() == 4
	}, 2*time.Second, 5*time.Millisecond)
	assert.InDelta(t, 0.4, q.Duration(), 1e-9)

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, pushed, 5, "producer must stay blocked while the consumer is stuck")

	dst.blockOnce.Do(func() { close(dst.block) })
	require.Eventually(t, func() bool { return len(pushed) == 10 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return q.Size() == 0 }, 2*time.Second, 5*time.Millisecond)
}

// A task posted to the producer's worker interrupts the backpressure
// sleep immediately.
func TestQueueBackpressureInterruptedByWorkerTask(t *testing.T) {
	q := NewQueue()
	q.SetCapacity(1)
	dst := newCollector()
	dst.block = make(chan struct{})
	require.NoError(t, avpipe.LinkElements(q, dst))
	require.NoError(t, q.SetState(avpipe.StateRunning))
	defer func() {
		dst.blockOnce.Do(func() { close(dst.block) })
		q.SetState(avpipe.StateNull)
	}()

	// The first item ends up in flight at the stuck consumer; the second
	// fills the queue, so the producer's item meets a full queue while the
	// queue stays Running.
	inFlight := audioFrameWithDuration(0.1)
	require.NoError(t, q.OnSinkPush(nil, inFlight))
	inFlight.Release()
	require.Eventually(t, func() bool { return q.Size() == 0 }, 2*time.Second, 5*time.Millisecond)
	filler := audioFrameWithDuration(0.1)
	require.NoError(t, q.OnSinkPush(nil, filler))
	filler.Release()

	producer := avpipe.NewWorker("producer")
	defer producer.Close()

	done := make(chan struct{})
	producer.Post(func() {
		f := audioFrameWithDuration(0.1)
		q.OnSinkPush(nil, f) // full: blocks in the sleep loop
		f.Release()
		close(done)
	})
	time.Sleep(30 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("producer returned before the interrupt")
	default:
	}
	producer.Post(func() {})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("interrupt did not release the producer")
	}
	assert.Equal(t, 2, q.Size(), "the preempted item is kept")
}

// A seek event empties the queue and resets its duration, and keeps
// flowing downstream.
func TestQueueSeekFlushesContents(t *testing.T) {
	q := NewQueue()
	dst := newCollector()
	require.NoError(t, avpipe.LinkElements(q, dst))

	for i := 0; i < 3; i++ {
		f := audioFrameWithDuration(0.5)
		require.NoError(t, q.OnSinkPush(nil, f))
		f.Release()
	}
	require.Equal(t, 3, q.Size())

	require.NoError(t, q.SendEvent(avpipe.NewSeekEvent(5.0)))
	assert.Equal(t, 0, q.Size())
	assert.InDelta(t, 0.0, q.Duration(), 1e-9)
	assert.Equal(t, 1, dst.eventCount(), "seek keeps flowing downstream")
}

func TestQueueFlushEventViaPad(t *testing.T) {
	src := newCollector("src")
	q := NewQueue()
	require.NoError(t, avpipe.LinkElements(src, q))

	f := audioFrameWithDuration(0.2)
	require.NoError(t, q.OnSinkPush(nil, f))
	f.Release()
	require.Equal(t, 1, q.Size())

	require.NoError(t, src.FindOutput("src").PushEvent(avpipe.NewFlushEvent(nil)))
	assert.Equal(t, 0, q.Size())
	assert.InDelta(t, 0.0, q.Duration(), 1e-9)
}

func TestQueueFactoryRegistration(t *testing.T) {
	e, err := avpipe.CreateElement("queue")
	require.NoError(t, err)
	_, ok := e.(*Queue)
	assert.True(t, ok)
}
