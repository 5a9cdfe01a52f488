package avpipe

import (
	"math"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// clockEmitDrift is how far the master clock may move before the pipeline
// emits a ClockUpdated event, in seconds.
const clockEmitDrift = 1.0

// busPollInterval paces the dispatch loop between bus waits, bounding how
// late a stop request is observed.
const busPollInterval = 10 * time.Millisecond

// A Pipeline is the top-level container: it owns the event bus, the
// shared context, the media controller with its default external clock,
// and a dispatch worker that drains the bus and hands events to the
// user callback.
type Pipeline interface {
	Container

	// SetEventCallback installs the user event handler; it is invoked on
	// the pipeline's dispatch worker.
	SetEventCallback(func(Event))
	// EventBus exposes the pipeline bus for watchers and direct waits.
	EventBus() *Bus
	// Controller exposes the clock arbitration of this pipeline.
	Controller() MediaController
	// Close tears the pipeline down to Null and destroys the context.
	Close() error
}

type pipelineImpl struct {
	DefaultDelegate
	*containerImpl

	bus        *Bus
	pctx       *Context
	controller MediaController
	extClock   *ExternalClock

	worker       *Worker
	dispatchDone chan struct{}
	stopping     atomic.Bool

	cbMu     sync.Mutex
	callback func(Event)

	lastClockPos float64
}

// NewPipeline creates an idle pipeline with its bus, context, controller
// and external clock wired.
func NewPipeline() Pipeline {
	p := &pipelineImpl{
		bus:        NewBus(),
		pctx:       NewContext(),
		controller: NewMediaController(),
		extClock:   NewExternalClock(),
	}
	p.containerImpl = newContainerFor(p, "pipeline")
	p.controller.AddClock(p.extClock)
	AddToContext[MediaController](p.pctx, p.controller, nil)
	p.Base.SetBus(pipelineSink{p})
	p.Base.SetContext(p.pctx)
	return p
}

// pipelineSink is the EventSink installed on the pipeline and inherited
// by every child: Post queues onto the bus for the dispatch worker, Send
// processes in place.
type pipelineSink struct {
	p *pipelineImpl
}

func (s pipelineSink) PostEvent(ev Event) error {
	s.p.bus.Post(ev)
	return nil
}

func (s pipelineSink) SendEvent(ev Event) error {
	s.p.processEvent(ev)
	return nil
}

func (p *pipelineImpl) SetEventCallback(fn func(Event)) {
	p.cbMu.Lock()
	p.callback = fn
	p.cbMu.Unlock()
}

func (p *pipelineImpl) EventBus() *Bus { return p.bus }

func (p *pipelineImpl) Controller() MediaController { return p.controller }

// --- lifecycle ---

func (p *pipelineImpl) OnInitialize() error {
	p.extClock.SetPosition(0)
	p.lastClockPos = 0
	p.stopping.Store(false)
	p.worker = NewWorker(p.Name() + "/dispatch")
	p.dispatchDone = make(chan struct{})
	p.worker.Post(p.dispatchLoop)
	if err := p.fanOut(ChangeInitialize); err != nil {
		p.stopDispatch()
		return err
	}
	return nil
}

func (p *pipelineImpl) OnPrepare() error { return p.fanOut(ChangePrepare) }

func (p *pipelineImpl) OnRun() error {
	if err := p.fanOut(ChangeRun); err != nil {
		return err
	}
	p.extClock.Start()
	p.bus.Post(NewEvent(EventPlaybackResume, p))
	return nil
}

func (p *pipelineImpl) OnPause() error {
	p.extClock.Pause()
	if err := p.fanOut(ChangePause); err != nil {
		return err
	}
	p.bus.Post(NewEvent(EventPlaybackPause, p))
	return nil
}

func (p *pipelineImpl) OnStop() error {
	p.extClock.Pause()
	return p.fanOut(ChangeStop)
}

func (p *pipelineImpl) OnTeardown() error {
	err := p.fanOut(ChangeTeardown)
	p.stopDispatch()
	p.extClock.Pause()
	p.extClock.SetPosition(0)
	return err
}

func (p *pipelineImpl) stopDispatch() {
	if p.worker == nil {
		return
	}
	p.stopping.Store(true)
	p.bus.Post(NewEvent(EventPipelineWakeup, p))
	<-p.dispatchDone
	p.worker.Close()
	p.worker = nil
}

// Close drives the pipeline back to Null and runs the context cleanups,
// in reverse registration order, as the very last step.
func (p *pipelineImpl) Close() error {
	err := p.SetState(StateNull)
	p.pctx.Close()
	return err
}

// --- dispatch ---

// dispatchLoop drains the bus on the dispatch worker: every queued event
// reaches the user callback in post order, and the master clock is
// sampled between waits so position updates keep flowing even when the
// bus is quiet.
func (p *pipelineImpl) dispatchLoop() {
	defer close(p.dispatchDone)
	for !p.stopping.Load() {
		if ev, ok := p.bus.Wait(busPollInterval); ok {
			p.processEvent(ev)
		}
		p.checkClock()
		p.worker.Dispatch()
	}
	// Drain what is left so no posted event is silently dropped.
	for {
		ev, ok := p.bus.Poll()
		if !ok {
			return
		}
		p.processEvent(ev)
	}
}

func (p *pipelineImpl) processEvent(ev Event) {
	if ev == nil || ev.Type() == EventPipelineWakeup {
		return
	}
	if ev.Type() == EventErrorOccurred {
		if errEv, ok := ev.(*ErrorEvent); ok {
			pkgLogger.Warnf("pipeline %s: error from %s: %s", p.Name(), senderName(ev), errEv.Err())
		}
	}
	p.deliver(ev)
}

func (p *pipelineImpl) checkClock() {
	master := p.controller.MasterClock()
	if master == nil {
		return
	}
	pos := master.Position()
	if math.Abs(pos-p.lastClockPos) > clockEmitDrift {
		p.lastClockPos = pos
		p.deliver(NewClockEvent(pos, p))
	}
}

func (p *pipelineImpl) deliver(ev Event) {
	p.cbMu.Lock()
	cb := p.callback
	p.cbMu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

func senderName(ev Event) string {
	if s := ev.Sender(); s != nil {
		return s.Name()
	}
	return "<none>"
}

var _ Pipeline = (*pipelineImpl)(nil)
