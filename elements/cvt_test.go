package elements

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	avpipe "github.com/erparts/go-avpipe"
)

// acceptingCollector is a collector whose sink pad advertises accepted
// formats, the way a real sink does after initialization.
func newAcceptingCollector(key string, list avpipe.Property) *collectorElement {
	c := newCollector()
	c.FindInput("sink").AddProperty(key, list)
	return c
}

func (c *collectorElement) lastFrame(t *testing.T) *avpipe.Frame {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.got)
	frame, ok := c.got[len(c.got)-1].(*avpipe.Frame)
	require.True(t, ok)
	return frame
}

// --- audio ---

func TestAudioConvertPassthroughWhenAccepted(t *testing.T) {
	cvt := NewAudioConvert()
	dst := newAcceptingCollector(avpipe.PropSampleFormatList,
		avpipe.NewSampleFormatList(avpipe.SampleFormatS16))
	require.NoError(t, avpipe.LinkElements(cvt, dst))

	frame := avpipe.NewAudioFrame(avpipe.SampleFormatS16, 2, 8)
	require.NoError(t, cvt.OnSinkPush(nil, frame))
	assert.Same(t, frame, dst.lastFrame(t), "accepted formats pass through untouched")
	frame.Release()
}

func TestAudioConvertInterleavesPlanarInput(t *testing.T) {
	cvt := NewAudioConvert()
	dst := newAcceptingCollector(avpipe.PropSampleFormatList,
		avpipe.NewSampleFormatList(avpipe.SampleFormatS16))
	require.NoError(t, avpipe.LinkElements(cvt, dst))

	// Two channels, two samples: L = +0.5, R = -0.5.
	src := avpipe.NewAudioFrame(avpipe.SampleFormatFLTP, 2, 2)
	src.SetSampleRate(48000)
	src.SetTimestamp(1.5)
	src.SetDuration(0.25)
	for i := 0; i < 2; i++ {
		binary.LittleEndian.PutUint32(src.Plane(0)[i*4:], math.Float32bits(0.5))
		binary.LittleEndian.PutUint32(src.Plane(1)[i*4:], math.Float32bits(-0.5))
	}
	require.NoError(t, cvt.OnSinkPush(nil, src))
	src.Release()

	got := dst.lastFrame(t)
	assert.Equal(t, avpipe.SampleFormatS16, got.SampleFormat())
	assert.Equal(t, 2, got.Channels())
	assert.Equal(t, 48000, got.SampleRate())
	assert.Equal(t, 1.5, got.Timestamp())
	assert.Equal(t, 0.25, got.Duration())

	data := got.Plane(0)
	left := int16(binary.LittleEndian.Uint16(data[0:]))
	right := int16(binary.LittleEndian.Uint16(data[2:]))
	assert.InDelta(t, 16383, int(left), 2)
	assert.InDelta(t, -16383, int(right), 2)
}

func TestAudioConvertForcedTarget(t *testing.T) {
	cvt := NewAudioConvert()
	cvt.SetTargetFormat(avpipe.SampleFormatFLT)
	dst := newCollector()
	require.NoError(t, avpipe.LinkElements(cvt, dst))

	src := avpipe.NewAudioFrame(avpipe.SampleFormatS16, 1, 1)
	binary.LittleEndian.PutUint16(src.Plane(0), uint16(int16(16384)))
	require.NoError(t, cvt.OnSinkPush(nil, src))
	src.Release()

	got := dst.lastFrame(t)
	require.Equal(t, avpipe.SampleFormatFLT, got.SampleFormat())
	v := math.Float32frombits(binary.LittleEndian.Uint32(got.Plane(0)))
	assert.InDelta(t, 0.5, v, 0.001)
}

func TestAudioConvertWithoutDownstreamListPassesThrough(t *testing.T) {
	cvt := NewAudioConvert()
	dst := newCollector()
	require.NoError(t, avpipe.LinkElements(cvt, dst))
	frame := avpipe.NewAudioFrame(avpipe.SampleFormatDBLP, 2, 4)
	require.NoError(t, cvt.OnSinkPush(nil, frame))
	assert.Same(t, frame, dst.lastFrame(t))
	frame.Release()
}

func TestAudioConvertRejectsVideoFrames(t *testing.T) {
	cvt := NewAudioConvert()
	dst := newCollector()
	require.NoError(t, avpipe.LinkElements(cvt, dst))
	frame := avpipe.NewVideoFrame(avpipe.PixelFormatRGBA, 2, 2)
	defer frame.Release()
	assert.ErrorIs(t, cvt.OnSinkPush(nil, frame), avpipe.ErrUnsupportedResource)
}

func TestAudioConvertUnlinkedReportsNoLink(t *testing.T) {
	cvt := NewAudioConvert()
	frame := avpipe.NewAudioFrame(avpipe.SampleFormatS16, 2, 4)
	defer frame.Release()
	assert.ErrorIs(t, cvt.OnSinkPush(nil, frame), avpipe.ErrNoLink)
}

// --- video ---

func TestVideoConvertPassthroughWhenAccepted(t *testing.T) {
	cvt := NewVideoConvert()
	dst := newAcceptingCollector(avpipe.PropPixelFormatList,
		avpipe.NewPixelFormatList(avpipe.PixelFormatRGBA))
	require.NoError(t, avpipe.LinkElements(cvt, dst))

	frame := avpipe.NewVideoFrame(avpipe.PixelFormatRGBA, 2, 2)
	require.NoError(t, cvt.OnSinkPush(nil, frame))
	assert.Same(t, frame, dst.lastFrame(t))
	frame.Release()
}

func TestVideoConvertSwizzlesToBGRA(t *testing.T) {
	cvt := NewVideoConvert()
	dst := newAcceptingCollector(avpipe.PropPixelFormatList,
		avpipe.NewPixelFormatList(avpipe.PixelFormatBGRA))
	require.NoError(t, avpipe.LinkElements(cvt, dst))

	src := avpipe.NewVideoFrame(avpipe.PixelFormatRGBA, 1, 1)
	src.SetTimestamp(0.5)
	copy(src.Plane(0), []byte{10, 20, 30, 40}) // R G B A
	require.NoError(t, cvt.OnSinkPush(nil, src))
	src.Release()

	got := dst.lastFrame(t)
	assert.Equal(t, avpipe.PixelFormatBGRA, got.PixelFormat())
	assert.Equal(t, []byte{30, 20, 10, 40}, got.Plane(0)[:4])
	assert.Equal(t, 0.5, got.Timestamp())
}

func TestVideoConvertYUV420PGrayToRGBA(t *testing.T) {
	cvt := NewVideoConvert()
	dst := newAcceptingCollector(avpipe.PropPixelFormatList,
		avpipe.NewPixelFormatList(avpipe.PixelFormatRGBA))
	require.NoError(t, avpipe.LinkElements(cvt, dst))

	// Neutral chroma: every pixel comes out as pure gray Y.
	src := avpipe.NewVideoFrame(avpipe.PixelFormatYUV420P, 2, 2)
	for i := range src.Plane(0) {
		src.Plane(0)[i] = 128
	}
	for _, plane := range []int{1, 2} {
		for i := range src.Plane(plane) {
			src.Plane(plane)[i] = 128
		}
	}
	require.NoError(t, cvt.OnSinkPush(nil, src))
	src.Release()

	got := dst.lastFrame(t)
	require.Equal(t, avpipe.PixelFormatRGBA, got.PixelFormat())
	for px := 0; px < 4; px++ {
		p := got.Plane(0)[px*4:]
		assert.InDelta(t, 128, int(p[0]), 1)
		assert.InDelta(t, 128, int(p[1]), 1)
		assert.InDelta(t, 128, int(p[2]), 1)
		assert.Equal(t, byte(255), p[3])
	}
}

func TestVideoConvertRejectsHardwareSurfaces(t *testing.T) {
	cvt := NewVideoConvert()
	dst := newCollector()
	require.NoError(t, avpipe.LinkElements(cvt, dst))
	hw := avpipe.NewVideoFrame(avpipe.PixelFormatD3D11, 16, 16)
	defer hw.Release()
	err := cvt.OnSinkPush(nil, hw)
	assert.Equal(t, avpipe.CodeUnsupportedPixelFormat, avpipe.CodeOf(err))
}

func TestVideoConvertTeardownResetsNegotiation(t *testing.T) {
	cvt := NewVideoConvert()
	dst := newAcceptingCollector(avpipe.PropPixelFormatList,
		avpipe.NewPixelFormatList(avpipe.PixelFormatBGRA))
	require.NoError(t, avpipe.LinkElements(cvt, dst))

	frame := avpipe.NewVideoFrame(avpipe.PixelFormatRGBA, 1, 1)
	require.NoError(t, cvt.OnSinkPush(nil, frame))
	assert.Equal(t, avpipe.PixelFormatBGRA, dst.lastFrame(t).PixelFormat())

	// After a full cycle the converter renegotiates; with the list gone
	// it passes through instead.
	require.NoError(t, cvt.SetState(avpipe.StateReady))
	require.NoError(t, cvt.SetState(avpipe.StateNull))
	dst.FindInput("sink").RemoveProperty(avpipe.PropPixelFormatList)
	require.NoError(t, cvt.OnSinkPush(nil, frame))
	assert.Same(t, frame, dst.lastFrame(t))
	frame.Release()
}
