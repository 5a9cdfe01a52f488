package avpipe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingElement is the scaffolding for element machinery tests: it
// records which handlers ran and can be told to fail one of them.
type recordingElement struct {
	DefaultDelegate
	*Base

	calls    []string
	failOn   StateChange
	failWith error

	received []Resource
	events   []Event
}

func newRecordingElement(threaded bool, pads ...string) *recordingElement {
	e := &recordingElement{failOn: ChangeInvalid}
	if threaded {
		e.Base = NewThreadedBase(e, "recording")
	} else {
		e.Base = NewBase(e, "recording")
	}
	for _, pad := range pads {
		if pad == "sink" {
			e.AddInput(pad)
		} else {
			e.AddOutput(pad)
		}
	}
	return e
}

func (e *recordingElement) handle(change StateChange) error {
	e.calls = append(e.calls, change.String())
	if change == e.failOn {
		if e.failWith != nil {
			return e.failWith
		}
		return ErrInvalidState
	}
	return nil
}

func (e *recordingElement) OnLoop() error { return ErrNoImpl }

func (e *recordingElement) OnInitialize() error { return e.handle(ChangeInitialize) }
func (e *recordingElement) OnPrepare() error    { return e.handle(ChangePrepare) }
func (e *recordingElement) OnRun() error        { return e.handle(ChangeRun) }
func (e *recordingElement) OnPause() error      { return e.handle(ChangePause) }
func (e *recordingElement) OnStop() error       { return e.handle(ChangeStop) }
func (e *recordingElement) OnTeardown() error   { return e.handle(ChangeTeardown) }

func (e *recordingElement) OnSinkPush(_ *Pad, res Resource) error {
	e.received = append(e.received, res.Retain())
	return nil
}

func (e *recordingElement) OnSinkEvent(_ *Pad, ev Event) error {
	e.events = append(e.events, ev)
	return ErrNoImpl
}

func (e *recordingElement) drop() {
	for _, res := range e.received {
		res.Release()
	}
	e.received = nil
}

// collectSink is an EventSink capturing everything posted to it.
type collectSink struct {
	posted []Event
}

func (s *collectSink) PostEvent(ev Event) error {
	s.posted = append(s.posted, ev)
	return nil
}

func (s *collectSink) SendEvent(ev Event) error { return s.PostEvent(ev) }

func TestSetStateWalksAdjacentTransitions(t *testing.T) {
	e := newRecordingElement(false)
	require.NoError(t, e.SetState(StateRunning))
	assert.Equal(t, []string{"NullToReady", "ReadyToPaused", "PausedToRunning"}, e.calls)
	assert.Equal(t, StateRunning, e.State())

	e.calls = nil
	require.NoError(t, e.SetState(StateNull))
	assert.Equal(t, []string{"RunningToPaused", "PausedToReady", "ReadyToNull"}, e.calls)
	assert.Equal(t, StateNull, e.State())
}

func TestSetStateSameStateIsNoOp(t *testing.T) {
	e := newRecordingElement(false)
	require.NoError(t, e.SetState(StateNull))
	assert.Empty(t, e.calls)
}

func TestSetStateStopsAtFirstFailure(t *testing.T) {
	e := newRecordingElement(false)
	e.failOn = ChangePrepare
	err := e.SetState(StateRunning)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, []string{"NullToReady", "ReadyToPaused"}, e.calls)
	assert.Equal(t, StateReady, e.State(), "observable state is the last successful one")
}

func TestSetStateRejectsErrorTarget(t *testing.T) {
	e := newRecordingElement(false)
	assert.ErrorIs(t, e.SetState(StateError), ErrInvalidArguments)
}

func TestSetBusOnlyWhileNull(t *testing.T) {
	e := newRecordingElement(false)
	sink := &collectSink{}
	require.NoError(t, e.SetBus(sink))
	require.NoError(t, e.SetContext(NewContext()))
	require.NoError(t, e.SetState(StateReady))
	assert.ErrorIs(t, e.SetBus(nil), ErrInvalidState)
	assert.ErrorIs(t, e.SetContext(nil), ErrInvalidState)
	require.NoError(t, e.SetState(StateNull))
	assert.NoError(t, e.SetBus(nil))
}

func TestStateChangesArePostedToBus(t *testing.T) {
	e := newRecordingElement(false)
	sink := &collectSink{}
	e.SetBus(sink)
	require.NoError(t, e.SetState(StatePaused))
	var states []State
	for _, ev := range sink.posted {
		if sc, ok := ev.(*StateChangedEvent); ok {
			states = append(states, sc.NewState)
		}
	}
	assert.Equal(t, []State{StateReady, StatePaused}, states)
}

func TestThreadedElementWorkerLifecycle(t *testing.T) {
	e := newRecordingElement(true)
	assert.Nil(t, e.Worker())
	require.NoError(t, e.SetState(StateReady))
	worker := e.Worker()
	require.NotNil(t, worker)

	// Handlers run on the private worker.
	insideWorker, err := Invoke(worker, func() *Worker { return Current() })
	require.NoError(t, err)
	assert.Same(t, worker, insideWorker)

	require.NoError(t, e.SetState(StateNull))
	assert.Nil(t, e.Worker())
	assert.Equal(t, []string{"NullToReady", "ReadyToNull"}, e.calls)
}

func TestThreadedElementFailedInitializeDestroysWorker(t *testing.T) {
	e := newRecordingElement(true)
	e.failOn = ChangeInitialize
	require.Error(t, e.SetState(StateReady))
	assert.Nil(t, e.Worker())
	assert.Equal(t, StateNull, e.State())
}

func TestThreadedElementRunsThroughFullCycle(t *testing.T) {
	e := newRecordingElement(true)
	require.NoError(t, e.SetState(StateRunning))
	assert.Equal(t, StateRunning, e.State())
	require.NoError(t, e.SetState(StateNull))
	assert.Equal(t,
		[]string{"NullToReady", "ReadyToPaused", "PausedToRunning",
			"RunningToPaused", "PausedToReady", "ReadyToNull"},
		e.calls)
}

func TestRaiseErrorPostsErrorEvent(t *testing.T) {
	e := newRecordingElement(false)
	sink := &collectSink{}
	e.SetBus(sink)
	err := e.RaiseError(CodeNoStream, "nothing to play")
	assert.Equal(t, CodeNoStream, CodeOf(err))
	require.Len(t, sink.posted, 1)
	errEv, ok := sink.posted[0].(*ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, CodeNoStream, errEv.Code)
	assert.Equal(t, "nothing to play", errEv.Message)
	assert.Equal(t, Element(e), errEv.Sender())
}

func TestSendEventForwardsDownstreamWhenUnhandled(t *testing.T) {
	src := newRecordingElement(false, "src")
	dst := newRecordingElement(false, "sink")
	require.NoError(t, LinkElements(src, dst))

	// The default OnEvent is unimplemented, so the event must travel
	// through the output pad into the downstream sink hook.
	ev := NewFlushEvent(nil)
	require.NoError(t, src.SendEvent(ev))
	require.Len(t, dst.events, 1)
	assert.Same(t, Event(ev), dst.events[0])
}

func TestSinkEventDefaultKeepsFlowingDownstream(t *testing.T) {
	a := newRecordingElement(false, "src")
	b := newRecordingElement(false, "sink", "src")
	c := newRecordingElement(false, "sink")
	require.NoError(t, LinkElements(a, b, c))

	require.NoError(t, a.SendEvent(NewFlushEvent(nil)))
	assert.Len(t, b.events, 1, "middle element sees the event")
	assert.Len(t, c.events, 1, "event keeps flowing to the tail")
}

func TestThreadedElementStopRequestedEndsDefaultLoop(t *testing.T) {
	e := newRecordingElement(true)
	require.NoError(t, e.SetState(StateReady))
	assert.False(t, e.StopRequested())
	done := make(chan error, 1)
	go func() { done <- e.SetState(StateNull) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("teardown did not finish; loop is stuck")
	}
	assert.True(t, e.StopRequested())
}

func TestLinkElementsRequiresPads(t *testing.T) {
	a := newRecordingElement(false, "src")
	b := newRecordingElement(false) // no pads
	assert.ErrorIs(t, LinkElements(a, b), ErrInvalidArguments)
	assert.ErrorIs(t, LinkElements(a), ErrInvalidArguments)
}

func TestElementDefaultNameIsStable(t *testing.T) {
	e := newRecordingElement(false)
	name := e.Name()
	assert.NotEmpty(t, name)
	assert.Equal(t, name, e.Name())
	e.SetName("explicit")
	assert.Equal(t, "explicit", e.Name())
}
