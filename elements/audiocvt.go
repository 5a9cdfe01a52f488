package elements

import (
	"encoding/binary"
	"math"

	avpipe "github.com/erparts/go-avpipe"
)

// An AudioConvert adapts sample formats between a decoder and a sink,
// negotiating the same way [VideoConvert] does: pass through when the
// incoming format is accepted downstream, otherwise convert every frame
// to the first accepted format. Planar input is interleaved on the way.
// Sample values travel through float64, so any width/width pairing works;
// sample-rate and channel-layout conversion is not attempted.
type AudioConvert struct {
	avpipe.DefaultDelegate
	*avpipe.Base

	sink *avpipe.Pad
	src  *avpipe.Pad

	decided     bool
	passthrough bool
	target      avpipe.SampleFormat
	forced      avpipe.SampleFormat
}

// NewAudioConvert creates a converter that negotiates on first use.
func NewAudioConvert() *AudioConvert {
	c := &AudioConvert{forced: avpipe.SampleFormatNone}
	c.Base = avpipe.NewBase(c, "audioconvert")
	c.sink = c.AddInput("sink")
	c.src = c.AddOutput("src")
	return c
}

// SetTargetFormat overrides negotiation with a fixed output format.
func (c *AudioConvert) SetTargetFormat(f avpipe.SampleFormat) { c.forced = f }

func (c *AudioConvert) OnTeardown() error {
	c.decided = false
	c.passthrough = false
	c.target = avpipe.SampleFormatNone
	return nil
}

func (c *AudioConvert) OnSinkPush(_ *avpipe.Pad, res avpipe.Resource) error {
	frame, ok := res.(*avpipe.Frame)
	if !ok || !frame.IsAudio() {
		return avpipe.ErrUnsupportedResource
	}
	if !c.src.IsLinked() {
		return avpipe.ErrNoLink
	}
	if !c.decided {
		c.negotiate(frame)
	}
	if c.passthrough {
		return c.src.Push(frame)
	}
	out := convertSamples(frame, c.target)
	pushErr := c.src.Push(out)
	out.Release()
	return pushErr
}

func (c *AudioConvert) negotiate(frame *avpipe.Frame) {
	c.decided = true
	if c.forced != avpipe.SampleFormatNone {
		c.passthrough = c.forced == frame.SampleFormat()
		c.target = c.forced
		return
	}
	peer := c.src.Peer()
	if peer == nil || !peer.HasProperty(avpipe.PropSampleFormatList) {
		c.passthrough = true
		return
	}
	accepted := peer.Property(avpipe.PropSampleFormatList)
	if accepted.Contains(avpipe.NewIntProperty(int64(frame.SampleFormat()))) {
		c.passthrough = true
		return
	}
	c.passthrough = false
	c.target = avpipe.SampleFormat(accepted.Index(0).Int())
}

// --- sample conversion ---

func convertSamples(src *avpipe.Frame, target avpipe.SampleFormat) *avpipe.Frame {
	channels := src.Channels()
	count := src.SampleCount()
	out := avpipe.NewAudioFrame(target, channels, count)
	out.SetSampleRate(src.SampleRate())
	out.SetTimestamp(src.Timestamp())
	out.SetDuration(src.Duration())
	for i := 0; i < count; i++ {
		for ch := 0; ch < channels; ch++ {
			writeSample(out, ch, i, readSample(src, ch, i))
		}
	}
	return out
}

// readSample returns the sample as a float in [-1, 1]; samples are stored
// little-endian.
func readSample(f *avpipe.Frame, ch, i int) float64 {
	format := f.SampleFormat()
	var plane []byte
	var index int
	if format.IsPlanar() {
		plane = f.Plane(ch)
		index = i * format.BytesPerSample()
	} else {
		plane = f.Plane(0)
		index = (i*f.Channels() + ch) * format.BytesPerSample()
	}
	switch format.Packed() {
	case avpipe.SampleFormatU8:
		return (float64(plane[index]) - 128) / 128
	case avpipe.SampleFormatS16:
		return float64(int16(binary.LittleEndian.Uint16(plane[index:]))) / 32768
	case avpipe.SampleFormatS32:
		return float64(int32(binary.LittleEndian.Uint32(plane[index:]))) / 2147483648
	case avpipe.SampleFormatFLT:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(plane[index:])))
	case avpipe.SampleFormatDBL:
		return math.Float64frombits(binary.LittleEndian.Uint64(plane[index:]))
	default:
		return 0
	}
}

func writeSample(f *avpipe.Frame, ch, i int, v float64) {
	format := f.SampleFormat()
	var plane []byte
	var index int
	if format.IsPlanar() {
		plane = f.Plane(ch)
		index = i * format.BytesPerSample()
	} else {
		plane = f.Plane(0)
		index = (i*f.Channels() + ch) * format.BytesPerSample()
	}
	v = math.Max(-1, math.Min(1, v))
	switch format.Packed() {
	case avpipe.SampleFormatU8:
		plane[index] = byte(v*127 + 128)
	case avpipe.SampleFormatS16:
		binary.LittleEndian.PutUint16(plane[index:], uint16(int16(v*32767)))
	case avpipe.SampleFormatS32:
		binary.LittleEndian.PutUint32(plane[index:], uint32(int32(v*2147483647)))
	case avpipe.SampleFormatFLT:
		binary.LittleEndian.PutUint32(plane[index:], math.Float32bits(float32(v)))
	case avpipe.SampleFormatDBL:
		binary.LittleEndian.PutUint64(plane[index:], math.Float64bits(v))
	}
}

func init() {
	avpipe.RegisterElement("audioconvert", func() avpipe.Element { return NewAudioConvert() })
}
