package reisenmedia

import (
	"time"

	"github.com/erparts/reisen"

	avpipe "github.com/erparts/go-avpipe"
)

// Decoded audio always leaves reisen as interleaved 16-bit stereo.
const decodedChannels = 2

// A Decoder turns the packets of one stream into frames: packets arrive
// on "sink", decoded frames leave on "src". Instances are bound to their
// stream by [Demuxer.DecoderFor]; the demuxer must push packets
// synchronously so the decode stays adjacent to the packet read.
type Decoder struct {
	avpipe.DefaultDelegate
	*avpipe.Base

	sink *avpipe.Pad
	src  *avpipe.Pad

	streamIndex int
	decode      func() (*avpipe.Frame, error)
}

func newDecoder(kind string, streamIndex int) *Decoder {
	d := &Decoder{streamIndex: streamIndex}
	d.Base = avpipe.NewBase(d, kind)
	d.sink = d.AddInput("sink")
	d.src = d.AddOutput("src")
	return d
}

func newVideoDecoder(stream *reisen.VideoStream, frameDuration time.Duration) *Decoder {
	d := newDecoder("videodecoder", stream.Index())
	width, height := stream.Width(), stream.Height()
	d.decode = func() (*avpipe.Frame, error) {
		frame, _, err := stream.ReadVideoFrame()
		if err != nil {
			return nil, avpipe.WrapError(avpipe.CodeExternal, "decode video", err)
		}
		if frame == nil {
			// Decoder starvation or frame skip: not an error.
			return nil, nil
		}
		out := avpipe.NewVideoFrame(avpipe.PixelFormatRGBA, width, height)
		copy(out.Plane(0), frame.Data())
		if offset, err := frame.PresentationOffset(); err == nil {
			out.SetTimestamp(offset.Seconds())
		}
		out.SetDuration(frameDuration.Seconds())
		return out, nil
	}
	return d
}

func newAudioDecoder(stream *reisen.AudioStream) *Decoder {
	d := newDecoder("audiodecoder", stream.Index())
	sampleRate := stream.SampleRate()
	d.decode = func() (*avpipe.Frame, error) {
		frame, _, err := stream.ReadAudioFrame()
		if err != nil {
			return nil, avpipe.WrapError(avpipe.CodeExternal, "decode audio", err)
		}
		if frame == nil {
			return nil, nil
		}
		data := frame.Data()
		sampleCount := len(data) / avpipe.SampleFormatS16.BytesPerFrame(decodedChannels)
		out := avpipe.NewAudioFrame(avpipe.SampleFormatS16, decodedChannels, sampleCount)
		copy(out.Plane(0), data)
		out.SetSampleRate(sampleRate)
		if offset, err := frame.PresentationOffset(); err == nil {
			out.SetTimestamp(offset.Seconds())
		}
		if sampleRate > 0 {
			out.SetDuration(float64(sampleCount) / float64(sampleRate))
		}
		return out, nil
	}
	return d
}

func (d *Decoder) OnSinkPush(_ *avpipe.Pad, res avpipe.Resource) error {
	packet, ok := res.(*avpipe.Packet)
	if !ok {
		return avpipe.ErrUnsupportedResource
	}
	if packet.StreamIndex() != d.streamIndex {
		return nil
	}
	if d.decode == nil {
		return avpipe.NewError(avpipe.CodeInvalidState, "decoder is not bound to a stream")
	}
	frame, err := d.decode()
	if err != nil {
		return d.RaiseError(avpipe.CodeOf(err), err.Error())
	}
	if frame == nil {
		return nil
	}
	pushErr := d.src.Push(frame)
	frame.Release()
	return pushErr
}
