package avpipe

import (
	"sync/atomic"
	"time"
)

// EventType tags control messages exchanged between elements and the
// pipeline bus.
type EventType uint32

const (
	EventNone EventType = iota
	EventStateChanged
	EventErrorOccurred
	EventPadAdded
	EventPadRemoved
	EventPadLinked
	EventPadUnlinked
	EventPlaybackPause
	EventPlaybackResume
	EventMediaEndOfFile
	EventMediaBuffering
	EventSeekRequested
	EventFlushRequested
	EventClockUpdated
	EventPipelineWakeup // internal use only

	// EventUser is the first type available to applications; allocate
	// further values through [RegisterEventType].
	EventUser EventType = 10086
)

var nextUserEvent atomic.Uint32

func init() { nextUserEvent.Store(uint32(EventUser)) }

// RegisterEventType reserves count consecutive user event types and
// returns the first of them.
func RegisterEventType(count uint32) EventType {
	if count == 0 {
		count = 1
	}
	return EventType(nextUserEvent.Add(count) - count)
}

func (t EventType) String() string {
	switch t {
	case EventStateChanged:
		return "StateChanged"
	case EventErrorOccurred:
		return "ErrorOccurred"
	case EventPadAdded:
		return "PadAdded"
	case EventPadRemoved:
		return "PadRemoved"
	case EventPadLinked:
		return "PadLinked"
	case EventPadUnlinked:
		return "PadUnlinked"
	case EventPlaybackPause:
		return "PlaybackPause"
	case EventPlaybackResume:
		return "PlaybackResume"
	case EventMediaEndOfFile:
		return "MediaEndOfFile"
	case EventMediaBuffering:
		return "MediaBuffering"
	case EventSeekRequested:
		return "SeekRequested"
	case EventFlushRequested:
		return "FlushRequested"
	case EventClockUpdated:
		return "ClockUpdated"
	case EventPipelineWakeup:
		return "PipelineWakeup"
	case EventNone:
		return "None"
	default:
		return "User"
	}
}

// An Event is a typed control message tagged with its sender and creation
// time. Concrete events embed [BaseEvent] and add payload.
type Event interface {
	Type() EventType
	Sender() Element
	Time() time.Time
}

// BaseEvent carries the fields shared by every event.
type BaseEvent struct {
	typ    EventType
	sender Element
	at     time.Time
}

// NewEvent builds a payload-less event of the given type.
func NewEvent(typ EventType, sender Element) *BaseEvent {
	return &BaseEvent{typ: typ, sender: sender, at: time.Now()}
}

func (e *BaseEvent) Type() EventType { return e.typ }
func (e *BaseEvent) Sender() Element { return e.sender }
func (e *BaseEvent) Time() time.Time { return e.at }

// ErrorEvent reports an asynchronous failure raised by an element.
type ErrorEvent struct {
	BaseEvent
	Code    Code
	Message string
}

func NewErrorEvent(code Code, message string, sender Element) *ErrorEvent {
	return &ErrorEvent{
		BaseEvent: BaseEvent{typ: EventErrorOccurred, sender: sender, at: time.Now()},
		Code:      code,
		Message:   message,
	}
}

// Err returns the event payload as an error value.
func (e *ErrorEvent) Err() error {
	return &Error{Code: e.Code, Message: e.Message}
}

// SeekEvent asks the pipeline to move to an absolute position, in seconds.
type SeekEvent struct {
	BaseEvent
	Position float64
}

func NewSeekEvent(position float64) *SeekEvent {
	return &SeekEvent{
		BaseEvent: BaseEvent{typ: EventSeekRequested, at: time.Now()},
		Position:  position,
	}
}

// FlushEvent asks downstream elements to drop their buffered data.
type FlushEvent struct {
	BaseEvent
}

func NewFlushEvent(sender Element) *FlushEvent {
	return &FlushEvent{BaseEvent{typ: EventFlushRequested, sender: sender, at: time.Now()}}
}

// ClockEvent carries the master clock position, in seconds.
type ClockEvent struct {
	BaseEvent
	Position float64
}

func NewClockEvent(position float64, sender Element) *ClockEvent {
	return &ClockEvent{
		BaseEvent: BaseEvent{typ: EventClockUpdated, sender: sender, at: time.Now()},
		Position:  position,
	}
}

// BufferingEvent reports buffering progress in the range [0, 100].
type BufferingEvent struct {
	BaseEvent
	Progress int
}

func NewBufferingEvent(progress int, sender Element) *BufferingEvent {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	return &BufferingEvent{
		BaseEvent: BaseEvent{typ: EventMediaBuffering, sender: sender, at: time.Now()},
		Progress:  progress,
	}
}

func (e *BufferingEvent) IsStarted() bool  { return e.Progress == 0 }
func (e *BufferingEvent) IsFinished() bool { return e.Progress == 100 }

// StateChangedEvent announces that an element entered a new state.
type StateChangedEvent struct {
	BaseEvent
	NewState State
}

func NewStateChangedEvent(newState State, sender Element) *StateChangedEvent {
	return &StateChangedEvent{
		BaseEvent: BaseEvent{typ: EventStateChanged, sender: sender, at: time.Now()},
		NewState:  newState,
	}
}
