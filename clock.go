package avpipe

import (
	"sync"

	bclock "github.com/benbjohnson/clock"
)

// ClockType ranks clock sources; the controller's master is the clock
// with the highest value.
type ClockType int

const (
	ClockUnknown  ClockType = 0
	ClockSubtitle ClockType = 1
	ClockVideo    ClockType = 2
	ClockExternal ClockType = 3
	ClockAudio    ClockType = 4
)

func (t ClockType) String() string {
	switch t {
	case ClockSubtitle:
		return "Subtitle"
	case ClockVideo:
		return "Video"
	case ClockExternal:
		return "External"
	case ClockAudio:
		return "Audio"
	default:
		return "Unknown"
	}
}

// A MediaClock exposes a playback position, in seconds. Sinks that pace
// media (the audio sink above all) implement it and register with the
// pipeline's controller.
type MediaClock interface {
	Position() float64
	ClockType() ClockType
}

// A MediaElement is a sink or source taking part in synchronization.
type MediaElement interface {
	// Clock returns the element's clock, nil when it has none.
	Clock() MediaClock
	// IsEndOfFile reports whether all buffered data has been consumed.
	IsEndOfFile() bool
}

// A MediaController holds the registered clocks of one pipeline and
// designates the master: the clock of the highest-ranked type. The
// pointer returned by MasterClock stays valid for the lifetime of the
// registered clock.
type MediaController interface {
	AddClock(MediaClock)
	RemoveClock(MediaClock)
	MasterClock() MediaClock
}

type mediaController struct {
	mu     sync.Mutex
	clocks []MediaClock
	master MediaClock
}

// NewMediaController creates an empty controller.
func NewMediaController() MediaController {
	return &mediaController{}
}

func (c *mediaController) AddClock(clk MediaClock) {
	if clk == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clocks = append(c.clocks, clk)
	if c.master == nil || clk.ClockType() > c.master.ClockType() {
		c.master = clk
	}
}

func (c *mediaController) RemoveClock(clk MediaClock) {
	if clk == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, registered := range c.clocks {
		if registered == clk {
			c.clocks = append(c.clocks[:i], c.clocks[i+1:]...)
			break
		}
	}
	if c.master != clk {
		return
	}
	c.master = nil
	for _, candidate := range c.clocks {
		if c.master == nil || candidate.ClockType() > c.master.ClockType() {
			c.master = candidate
		}
	}
}

func (c *mediaController) MasterClock() MediaClock {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.master
}

// GetMediaController resolves the controller of the pipeline the element
// lives in, through the shared context; nil when the element is not yet
// inside a pipeline.
func GetMediaController(e Element) MediaController {
	if e == nil || e.Context() == nil {
		return nil
	}
	ctrl, _ := FromContext[MediaController](e.Context())
	return ctrl
}

// An ExternalClock is the wall-clock-backed default master used when no
// media clock registers. It can be paused and repositioned; while
// running, position advances with real time from its anchor.
type ExternalClock struct {
	mu      sync.Mutex
	clk     bclock.Clock
	anchor  int64   // wall milliseconds at position zero
	current float64 // frozen position while paused, seconds
	paused  bool
}

// NewExternalClock creates a paused clock at position zero.
func NewExternalClock() *ExternalClock {
	return newExternalClock(bclock.New())
}

// newExternalClock injects the time source, letting tests drive a mock.
func newExternalClock(clk bclock.Clock) *ExternalClock {
	c := &ExternalClock{clk: clk, paused: true}
	c.anchor = c.nowMs()
	return c
}

func (c *ExternalClock) nowMs() int64 {
	return c.clk.Now().UnixMilli()
}

// Position returns the frozen position while paused, otherwise the time
// elapsed since the anchor, in seconds.
func (c *ExternalClock) Position() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return c.current
	}
	return float64(c.nowMs()-c.anchor) / 1000.0
}

func (c *ExternalClock) ClockType() ClockType { return ClockExternal }

// Start resumes the clock from its current position.
func (c *ExternalClock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.anchor = c.nowMs() - int64(c.current*1000)
	c.paused = false
}

// Pause freezes the position.
func (c *ExternalClock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return
	}
	c.current = float64(c.nowMs()-c.anchor) / 1000.0
	c.paused = true
}

// SetPosition repositions the clock without changing the paused state.
func (c *ExternalClock) SetPosition(position float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anchor = c.nowMs() - int64(position*1000)
	c.current = position
}

var _ MediaClock = (*ExternalClock)(nil)
