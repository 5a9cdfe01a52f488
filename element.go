package avpipe

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/atomic"
)

// An Element is a state-machined processing unit owning typed pads. All
// concrete elements embed a [Base] (or threaded base) which provides the
// whole contract; implementations customize behavior through the
// [Delegate] hooks.
type Element interface {
	Name() string
	SetName(string)

	State() State
	SetState(State) error

	// SetBus and SetContext are installed by the enclosing container and
	// are only legal while the element is in the Null state.
	SetBus(EventSink) error
	Bus() EventSink
	SetContext(*Context) error
	Context() *Context

	// SendEvent delivers an event to this element; unconsumed events are
	// forwarded downstream on all output pads.
	SendEvent(Event) error

	Inputs() []*Pad
	Outputs() []*Pad
	FindInput(name string) *Pad
	FindOutput(name string) *Pad
	RemovePad(*Pad)
}

// Delegate holds the hooks a concrete element overrides. The six state
// handlers correspond one-to-one to the six adjacent transitions; the sink
// hooks receive data and events arriving on pads created through the base.
// Embed [DefaultDelegate] to only override what the element needs.
type Delegate interface {
	OnInitialize() error
	OnPrepare() error
	OnRun() error
	OnPause() error
	OnStop() error
	OnTeardown() error

	// OnEvent handles events sent to the element as a whole. Returning
	// ErrNoImpl forwards the event downstream on all output pads.
	OnEvent(Event) error
	// OnSinkEvent handles events arriving on an input pad. Returning
	// ErrNoImpl forwards the event downstream on all output pads.
	OnSinkEvent(*Pad, Event) error
	// OnSinkPush handles resources arriving on an input pad.
	OnSinkPush(*Pad, Resource) error
}

// LoopDelegate is implemented by threaded elements that want a processing
// loop on their private worker. OnLoop is posted right after a successful
// Initialize and must return promptly once StopRequested reports true.
// Returning ErrNoImpl selects the default loop, which just waits for
// tasks.
type LoopDelegate interface {
	Delegate
	OnLoop() error
}

// DefaultDelegate provides the no-op hook set.
type DefaultDelegate struct{}

func (DefaultDelegate) OnInitialize() error               { return nil }
func (DefaultDelegate) OnPrepare() error                  { return nil }
func (DefaultDelegate) OnRun() error                      { return nil }
func (DefaultDelegate) OnPause() error                    { return nil }
func (DefaultDelegate) OnStop() error                     { return nil }
func (DefaultDelegate) OnTeardown() error                 { return nil }
func (DefaultDelegate) OnEvent(Event) error               { return ErrNoImpl }
func (DefaultDelegate) OnSinkEvent(*Pad, Event) error     { return ErrNoImpl }
func (DefaultDelegate) OnSinkPush(*Pad, Resource) error   { return ErrNoImpl }

// Base implements [Element] on behalf of a concrete element. Non-threaded
// elements run their state handlers on the caller's goroutine; threaded
// elements own a private [Worker] created on Initialize and destroyed on
// Teardown, with every handler and the loop running there.
type Base struct {
	delegate Delegate
	threaded bool

	state atomic.Int32

	mu      sync.Mutex
	name    string
	bus     EventSink
	ctx     *Context
	inputs  []*Pad
	outputs []*Pad
	worker  *Worker
}

// NewBase wires a non-threaded base to its concrete element. The kind
// seeds the default name ("queue-3f2a91bc").
func NewBase(self Delegate, kind string) *Base {
	return newBase(self, kind, false)
}

// NewThreadedBase wires a threaded base to its concrete element.
func NewThreadedBase(self LoopDelegate, kind string) *Base {
	return newBase(self, kind, true)
}

func newBase(self Delegate, kind string, threaded bool) *Base {
	if kind == "" {
		kind = "element"
	}
	return &Base{
		delegate: self,
		threaded: threaded,
		name:     fmt.Sprintf("%s-%s", kind, uuid.NewString()[:8]),
	}
}

// self returns the element identity of this base: the delegate when it is
// itself an element (the usual embedding case), the base otherwise.
func (b *Base) self() Element {
	if e, ok := b.delegate.(Element); ok {
		return e
	}
	return b
}

// --- identity and wiring ---

func (b *Base) Name() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.name
}

func (b *Base) SetName(name string) {
	b.mu.Lock()
	b.name = name
	worker := b.worker
	b.mu.Unlock()
	if worker != nil {
		worker.SetName(name)
	}
}

func (b *Base) State() State { return State(b.state.Load()) }

func (b *Base) SetBus(bus EventSink) error {
	if b.State() != StateNull {
		return ErrInvalidState
	}
	b.mu.Lock()
	b.bus = bus
	b.mu.Unlock()
	return nil
}

func (b *Base) Bus() EventSink {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bus
}

func (b *Base) SetContext(ctx *Context) error {
	if b.State() != StateNull {
		return ErrInvalidState
	}
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()
	return nil
}

func (b *Base) Context() *Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ctx
}

// --- state machine ---

// SetState drives the element to the target state through the path of
// adjacent transitions. The first failing handler stops the walk and its
// error is returned; the observable state stays at the last transition
// that succeeded.
func (b *Base) SetState(target State) error {
	current := b.State()
	if current == target {
		return nil
	}
	changes := ComputeStateChanges(current, target)
	if len(changes) == 0 {
		return ErrInvalidArguments
	}
	for _, change := range changes {
		if err := b.applyChange(change); err != nil {
			pkgLogger.Debugf("element %s: %s failed: %v", b.Name(), change, err)
			// Failed transitions are raised on the bus as well, so the
			// pipeline callback sees them even when the synchronous
			// caller swallows the return value.
			b.postEvent(NewErrorEvent(CodeOf(err), err.Error(), b.self()))
			return err
		}
		b.state.Store(int32(TargetState(change)))
		b.postEvent(NewStateChangedEvent(TargetState(change), b.self()))
	}
	return nil
}

func (b *Base) applyChange(change StateChange) error {
	if !b.threaded {
		return b.dispatchChange(change)
	}
	switch change {
	case ChangeInitialize:
		worker := NewWorker(b.Name())
		b.mu.Lock()
		b.worker = worker
		b.mu.Unlock()
		err, invokeErr := Invoke(worker, func() error { return b.dispatchChange(change) })
		if invokeErr != nil {
			err = invokeErr
		}
		if err != nil {
			b.mu.Lock()
			b.worker = nil
			b.mu.Unlock()
			worker.Close()
			return err
		}
		// Publish Ready before the loop starts, so its first StopRequested
		// check does not read Null.
		b.state.Store(int32(StateReady))
		worker.Post(b.runLoop)
		return nil
	case ChangeTeardown:
		worker := b.Worker()
		if worker == nil {
			return b.dispatchChange(change)
		}
		err, invokeErr := Invoke(worker, func() error { return b.dispatchChange(change) })
		if invokeErr != nil {
			err = invokeErr
		}
		// The worker goes away regardless of the handler's verdict; the
		// loop exits once the state reads Null.
		b.state.Store(int32(StateNull))
		b.mu.Lock()
		b.worker = nil
		b.mu.Unlock()
		worker.Close()
		return err
	default:
		worker := b.Worker()
		if worker == nil {
			return b.dispatchChange(change)
		}
		err, invokeErr := Invoke(worker, func() error {
			if err := b.dispatchChange(change); err != nil {
				return err
			}
			// Publish the new state inside the task, so a loop woken by
			// this task already sees it.
			b.state.Store(int32(TargetState(change)))
			return nil
		})
		if invokeErr != nil {
			return invokeErr
		}
		return err
	}
}

func (b *Base) dispatchChange(change StateChange) error {
	switch change {
	case ChangeInitialize:
		return b.delegate.OnInitialize()
	case ChangePrepare:
		return b.delegate.OnPrepare()
	case ChangeRun:
		return b.delegate.OnRun()
	case ChangePause:
		return b.delegate.OnPause()
	case ChangeStop:
		return b.delegate.OnStop()
	case ChangeTeardown:
		return b.delegate.OnTeardown()
	default:
		return ErrInvalidArguments
	}
}

func (b *Base) runLoop() {
	loop, ok := b.delegate.(LoopDelegate)
	if !ok {
		b.defaultLoop()
		return
	}
	err := loop.OnLoop()
	switch {
	case errors.Is(err, ErrNoImpl):
		b.defaultLoop()
	case err != nil && !errors.Is(err, ErrInterrupted):
		b.RaiseError(CodeOf(err), err.Error())
	}
}

func (b *Base) defaultLoop() {
	worker := b.Worker()
	for !b.StopRequested() {
		worker.WaitTask(-1)
	}
}

// StopRequested reports whether the element has been driven back to Null;
// threaded loops must exit promptly once it returns true.
func (b *Base) StopRequested() bool { return b.State() == StateNull }

// Worker returns the private worker of a threaded element, nil while the
// element is in the Null state or not threaded.
func (b *Base) Worker() *Worker {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.worker
}

// --- events ---

// SendEvent delivers an event to the element. Threaded elements handle it
// on their private worker. An unconsumed event (ErrNoImpl) is forwarded
// downstream on all output pads.
func (b *Base) SendEvent(ev Event) error {
	if ev == nil {
		return ErrInvalidArguments
	}
	var err error
	if worker := b.Worker(); b.threaded && worker != nil && Current() != worker {
		handlerErr, invokeErr := Invoke(worker, func() error { return b.delegate.OnEvent(ev) })
		if invokeErr != nil {
			return invokeErr
		}
		err = handlerErr
	} else {
		err = b.delegate.OnEvent(ev)
	}
	if errors.Is(err, ErrNoImpl) {
		return b.PushEventDownstream(ev)
	}
	return err
}

// PushEventDownstream forwards an event through every output pad.
func (b *Base) PushEventDownstream(ev Event) error {
	for _, pad := range b.Outputs() {
		if err := pad.PushEvent(ev); err != nil && !errors.Is(err, ErrNoLink) && !errors.Is(err, ErrNoImpl) {
			pkgLogger.Debugf("element %s: downstream event %s: %v", b.Name(), ev.Type(), err)
		}
	}
	return nil
}

// PushEventUpstream forwards an event through every input pad.
func (b *Base) PushEventUpstream(ev Event) error {
	for _, pad := range b.Inputs() {
		if err := pad.PushEvent(ev); err != nil && !errors.Is(err, ErrNoLink) && !errors.Is(err, ErrNoImpl) {
			pkgLogger.Debugf("element %s: upstream event %s: %v", b.Name(), ev.Type(), err)
		}
	}
	return nil
}

// RaiseError posts an ErrorEvent to the pipeline bus, tagged with this
// element as sender, and returns the coded error for the caller to
// propagate.
func (b *Base) RaiseError(code Code, message string) error {
	pkgLogger.Errorf("element %s: %s: %s", b.Name(), code, message)
	b.postEvent(NewErrorEvent(code, message, b.self()))
	return NewError(code, message)
}

func (b *Base) postEvent(ev Event) {
	if bus := b.Bus(); bus != nil {
		if err := bus.PostEvent(ev); err != nil {
			pkgLogger.Debugf("element %s: post %s: %v", b.Name(), ev.Type(), err)
		}
	}
}

// --- pads ---

// AddInput creates an input pad whose data and events route into the
// delegate's OnSinkPush / OnSinkEvent hooks.
func (b *Base) AddInput(name string) *Pad {
	pad := newPad(b.self(), PadInput, name)
	pad.SetCallback(func(res Resource) error {
		return b.delegate.OnSinkPush(pad, res)
	})
	pad.SetEventCallback(func(ev Event) error {
		err := b.delegate.OnSinkEvent(pad, ev)
		if errors.Is(err, ErrNoImpl) {
			// Not handled here: keep the event flowing downstream.
			return b.PushEventDownstream(ev)
		}
		return err
	})
	b.mu.Lock()
	b.inputs = append(b.inputs, pad)
	b.mu.Unlock()
	b.postEvent(NewEvent(EventPadAdded, b.self()))
	return pad
}

// AddOutput creates an output pad.
func (b *Base) AddOutput(name string) *Pad {
	pad := newPad(b.self(), PadOutput, name)
	pad.SetEventCallback(func(Event) error {
		return ErrNoImpl
	})
	b.mu.Lock()
	b.outputs = append(b.outputs, pad)
	b.mu.Unlock()
	b.postEvent(NewEvent(EventPadAdded, b.self()))
	return pad
}

// RemovePad unlinks and detaches a pad from the element.
func (b *Base) RemovePad(pad *Pad) {
	if pad == nil {
		return
	}
	pad.Unlink()
	b.mu.Lock()
	if pad.Type() == PadInput {
		b.inputs = removePad(b.inputs, pad)
	} else {
		b.outputs = removePad(b.outputs, pad)
	}
	b.mu.Unlock()
	b.postEvent(NewEvent(EventPadRemoved, b.self()))
}

func removePad(pads []*Pad, pad *Pad) []*Pad {
	for i, p := range pads {
		if p == pad {
			return append(pads[:i], pads[i+1:]...)
		}
	}
	return pads
}

// Inputs returns a snapshot of the element's input pads.
func (b *Base) Inputs() []*Pad {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Pad(nil), b.inputs...)
}

// Outputs returns a snapshot of the element's output pads.
func (b *Base) Outputs() []*Pad {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Pad(nil), b.outputs...)
}

// FindInput returns the input pad with the given name, or nil.
func (b *Base) FindInput(name string) *Pad {
	for _, pad := range b.Inputs() {
		if pad.Name() == name {
			return pad
		}
	}
	return nil
}

// FindOutput returns the output pad with the given name, or nil.
func (b *Base) FindOutput(name string) *Pad {
	for _, pad := range b.Outputs() {
		if pad.Name() == name {
			return pad
		}
	}
	return nil
}

var _ Element = (*Base)(nil)

// LinkElements links consecutive elements through their "src" and "sink"
// pads, in argument order.
func LinkElements(elements ...Element) error {
	if len(elements) < 2 {
		return ErrInvalidArguments
	}
	for i := 0; i < len(elements)-1; i++ {
		src := elements[i].FindOutput("src")
		sink := elements[i+1].FindInput("sink")
		if src == nil || sink == nil {
			return ErrInvalidArguments
		}
		if err := src.Link(sink); err != nil {
			return err
		}
	}
	return nil
}

// LinkPads links a named output of one element to a named input of
// another.
func LinkPads(src Element, srcPad string, dst Element, dstPad string) error {
	out := src.FindOutput(srcPad)
	in := dst.FindInput(dstPad)
	if out == nil || in == nil {
		return ErrInvalidArguments
	}
	return out.Link(in)
}
