package avpipe

import (
	"testing"
	"time"

	bclock "github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExternalClockAdvancesWithWallTime(t *testing.T) {
	mock := bclock.NewMock()
	c := newExternalClock(mock)

	c.Start()
	assert.InDelta(t, 0.0, c.Position(), 1e-9)
	mock.Add(1500 * time.Millisecond)
	assert.InDelta(t, 1.5, c.Position(), 1e-9)
	mock.Add(500 * time.Millisecond)
	assert.InDelta(t, 2.0, c.Position(), 1e-9)
}

func TestExternalClockPauseFreezesPosition(t *testing.T) {
	mock := bclock.NewMock()
	c := newExternalClock(mock)

	c.Start()
	mock.Add(2 * time.Second)
	c.Pause()
	mock.Add(10 * time.Second)
	assert.InDelta(t, 2.0, c.Position(), 1e-9)

	c.Start()
	mock.Add(1 * time.Second)
	assert.InDelta(t, 3.0, c.Position(), 1e-9)
}

func TestExternalClockSetPosition(t *testing.T) {
	mock := bclock.NewMock()
	c := newExternalClock(mock)

	c.SetPosition(42)
	assert.InDelta(t, 42.0, c.Position(), 1e-9, "paused clock reports the set position")

	c.Start()
	mock.Add(1 * time.Second)
	assert.InDelta(t, 43.0, c.Position(), 1e-9)

	c.SetPosition(5)
	mock.Add(2 * time.Second)
	assert.InDelta(t, 7.0, c.Position(), 1e-9, "running clock advances from the new position")
}

func TestExternalClockStartsPausedAtZero(t *testing.T) {
	mock := bclock.NewMock()
	c := newExternalClock(mock)
	mock.Add(time.Hour)
	assert.InDelta(t, 0.0, c.Position(), 1e-9)
	assert.Equal(t, ClockExternal, c.ClockType())
}

type fakeClock struct {
	typ ClockType
	pos float64
}

func (c *fakeClock) Position() float64    { return c.pos }
func (c *fakeClock) ClockType() ClockType { return c.typ }

func TestControllerElectsHighestRankedClock(t *testing.T) {
	ctrl := NewMediaController()
	assert.Nil(t, ctrl.MasterClock())

	subtitle := &fakeClock{typ: ClockSubtitle}
	external := &fakeClock{typ: ClockExternal}
	video := &fakeClock{typ: ClockVideo}
	audio := &fakeClock{typ: ClockAudio}

	ctrl.AddClock(subtitle)
	assert.Equal(t, MediaClock(subtitle), ctrl.MasterClock())
	ctrl.AddClock(video)
	assert.Equal(t, MediaClock(video), ctrl.MasterClock())
	ctrl.AddClock(external)
	assert.Equal(t, MediaClock(external), ctrl.MasterClock())
	ctrl.AddClock(audio)
	assert.Equal(t, MediaClock(audio), ctrl.MasterClock())
}

func TestControllerReelectsOnRemoval(t *testing.T) {
	ctrl := NewMediaController()
	external := &fakeClock{typ: ClockExternal}
	audio := &fakeClock{typ: ClockAudio}
	ctrl.AddClock(external)
	ctrl.AddClock(audio)

	ctrl.RemoveClock(audio)
	assert.Equal(t, MediaClock(external), ctrl.MasterClock())
	ctrl.RemoveClock(external)
	assert.Nil(t, ctrl.MasterClock())
}

func TestControllerRemoveNonMasterKeepsMaster(t *testing.T) {
	ctrl := NewMediaController()
	external := &fakeClock{typ: ClockExternal}
	audio := &fakeClock{typ: ClockAudio}
	ctrl.AddClock(external)
	ctrl.AddClock(audio)
	ctrl.RemoveClock(external)
	assert.Equal(t, MediaClock(audio), ctrl.MasterClock())
}

func TestClockTypeOrdering(t *testing.T) {
	assert.Greater(t, ClockAudio, ClockExternal)
	assert.Greater(t, ClockExternal, ClockVideo)
	assert.Greater(t, ClockVideo, ClockSubtitle)
	assert.Greater(t, ClockSubtitle, ClockUnknown)
}

func TestGetMediaControllerThroughContext(t *testing.T) {
	ctx := NewContext()
	ctrl := NewMediaController()
	AddToContext[MediaController](ctx, ctrl, nil)

	e := newRecordingElement(false)
	assert.Nil(t, GetMediaController(e))
	require.NoError(t, e.SetContext(ctx))
	assert.Equal(t, ctrl, GetMediaController(e))
}
