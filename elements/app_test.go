package elements

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	avpipe "github.com/erparts/go-avpipe"
)

func TestAppSrcStreamsToAppSink(t *testing.T) {
	src := NewAppSrc()
	sink := NewAppSink()
	require.NoError(t, avpipe.LinkElements(src, sink))
	require.NoError(t, src.SetState(avpipe.StateRunning))
	require.NoError(t, sink.SetState(avpipe.StateRunning))
	defer func() {
		src.SetState(avpipe.StateNull)
		sink.SetState(avpipe.StateNull)
	}()

	sent := avpipe.NewPacket([]byte{1, 2, 3}, 0, 0.5, 0.04)
	require.NoError(t, src.Push(sent))
	sent.Release()

	res, ok := sink.Wait(2 * time.Second)
	require.True(t, ok)
	packet, isPacket := res.(*avpipe.Packet)
	require.True(t, isPacket)
	assert.Equal(t, []byte{1, 2, 3}, packet.Data())
	assert.Equal(t, 0.5, packet.Timestamp())
	packet.Release()
}

func TestAppSrcRejectsPushWhileNull(t *testing.T) {
	src := NewAppSrc()
	packet := avpipe.NewPacket([]byte{1}, 0, 0, 0)
	defer packet.Release()
	assert.ErrorIs(t, src.Push(packet), avpipe.ErrInvalidState)
}

func TestAppSrcBuffersWhilePaused(t *testing.T) {
	src := NewAppSrc()
	sink := NewAppSink()
	require.NoError(t, avpipe.LinkElements(src, sink))
	require.NoError(t, src.SetState(avpipe.StatePaused))
	defer src.SetState(avpipe.StateNull)

	packet := avpipe.NewPacket([]byte{9}, 0, 0, 0)
	require.NoError(t, src.Push(packet))
	packet.Release()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, src.Size(), "nothing flows while paused")

	require.NoError(t, src.SetState(avpipe.StateRunning))
	res, ok := sink.Wait(2 * time.Second)
	require.True(t, ok)
	res.Release()
	assert.Equal(t, 0, src.Size())
}

func TestAppSinkFlushesOnSeek(t *testing.T) {
	sink := NewAppSink()
	packet := avpipe.NewPacket([]byte{1}, 0, 0, 0)
	require.NoError(t, sink.OnSinkPush(nil, packet))
	packet.Release()
	require.Equal(t, 1, sink.Size())

	require.NoError(t, sink.SendEvent(avpipe.NewSeekEvent(1)))
	assert.Equal(t, 0, sink.Size())
}

func TestAppFactoryRegistrations(t *testing.T) {
	src, err := avpipe.CreateElement("appsrc")
	require.NoError(t, err)
	assert.IsType(t, &AppSrc{}, src)

	sink, err := avpipe.CreateElement("appsink")
	require.NoError(t, err)
	assert.IsType(t, &AppSink{}, sink)

	for _, kind := range []string{"audiosink", "videosink", "videoconvert", "audioconvert"} {
		e, err := avpipe.CreateElement(kind)
		require.NoError(t, err)
		assert.NotNil(t, e)
	}
}
