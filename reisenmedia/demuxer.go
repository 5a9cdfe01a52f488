// Package reisenmedia implements the demuxing and decoding elements of
// the pipeline on top of github.com/erparts/reisen (ffmpeg bindings).
//
// reisen couples packet reads to stream decodes: a frame must be pulled
// from its stream right after the packet that fed it was read. The
// demuxer therefore links to its decoders directly (pushes are
// synchronous), and queues belong after the decoder, holding frames.
package reisenmedia

import (
	"errors"
	"fmt"
	"time"

	"github.com/erparts/reisen"
	perrors "github.com/pkg/errors"

	avpipe "github.com/erparts/go-avpipe"
)

// A Demuxer opens a URL and exposes one output pad per stream ("video0",
// "audio0", ...), each populated with the stream's properties at
// initialization. Its loop reads packets and pushes them to the matching
// pad; on a seek event it rewinds the streams and issues FlushRequested
// downstream on every pad.
type Demuxer struct {
	avpipe.DefaultDelegate
	*avpipe.Base

	url     string
	options map[string]string

	media   *reisen.Media
	video   *reisen.VideoStream
	audio   *reisen.AudioStream
	pads    map[int]*avpipe.Pad
	videoDur time.Duration // per-frame duration of the video stream

	duration  float64
	eof       bool
	eofPosted bool
}

// NewDemuxer creates a demuxer; set the URL before bringing it up.
func NewDemuxer() *Demuxer {
	d := &Demuxer{options: make(map[string]string)}
	d.Base = avpipe.NewThreadedBase(d, "demuxer")
	return d
}

// SetURL points the demuxer at a media file. Only legal while Null.
func (d *Demuxer) SetURL(url string) error {
	if d.State() != avpipe.StateNull {
		return avpipe.ErrInvalidState
	}
	d.url = url
	return nil
}

// SetOption records a reader option (HttpUserAgent, HttpReferer, ...);
// options are surfaced as pad properties.
func (d *Demuxer) SetOption(key, value string) {
	d.options[key] = value
}

// Duration returns the media duration in seconds, 0 before initialization.
func (d *Demuxer) Duration() float64 { return d.duration }

// IsSeekable reports whether the source supports repositioning.
func (d *Demuxer) IsSeekable() bool { return d.media != nil }

// DecoderFor returns a decoder element bound to the stream behind the
// named output pad, or nil when the pad does not exist.
func (d *Demuxer) DecoderFor(padName string) *Decoder {
	switch {
	case d.video != nil && padName == "video0":
		return newVideoDecoder(d.video, d.videoDur)
	case d.audio != nil && padName == "audio0":
		return newAudioDecoder(d.audio)
	default:
		return nil
	}
}

func (d *Demuxer) OnInitialize() error {
	if d.url == "" {
		return avpipe.NewError(avpipe.CodeInvalidArguments, "no source url")
	}
	media, err := reisen.NewMedia(d.url)
	if err != nil {
		return avpipe.WrapError(avpipe.CodeFileNotFound,
			fmt.Sprintf("open %q", d.url), err)
	}
	d.media = media
	if err := media.OpenDecode(); err != nil {
		media.Close()
		d.media = nil
		return avpipe.WrapError(avpipe.CodeFileCorrupted, "open decode", perrors.Wrap(err, d.url))
	}
	d.pads = make(map[int]*avpipe.Pad)
	d.eof = false
	d.eofPosted = false

	if streams := media.VideoStreams(); len(streams) > 0 {
		if len(streams) > 1 {
			avpipe.CurrentLogger().Warnf("demuxer %s: multiple video streams; using the first", d.Name())
		}
		d.video = streams[0]
		if err := d.video.Open(); err != nil {
			return d.failOpen("video stream", err)
		}
		d.registerVideoPad()
	}
	if streams := media.AudioStreams(); len(streams) > 0 {
		if len(streams) > 1 {
			avpipe.CurrentLogger().Warnf("demuxer %s: multiple audio streams; using the first", d.Name())
		}
		d.audio = streams[0]
		if err := d.audio.Open(); err != nil {
			return d.failOpen("audio stream", err)
		}
		d.registerAudioPad()
	}
	if d.video == nil && d.audio == nil {
		d.closeMedia()
		return avpipe.NewError(avpipe.CodeNoStream, "no decodable streams")
	}
	return nil
}

func (d *Demuxer) failOpen(what string, err error) error {
	d.closeMedia()
	return avpipe.WrapError(avpipe.CodeNoCodec, "open "+what, err)
}

func (d *Demuxer) registerVideoPad() {
	frNum, frDenom := d.video.FrameRate()
	if frNum > 0 {
		d.videoDur = time.Second * time.Duration(frDenom) / time.Duration(frNum)
	}
	pad := d.AddOutput("video0")
	pad.AddProperty(avpipe.PropWidth, avpipe.NewIntProperty(int64(d.video.Width())))
	pad.AddProperty(avpipe.PropHeight, avpipe.NewIntProperty(int64(d.video.Height())))
	pad.AddProperty(avpipe.PropPixelFormat, avpipe.NewIntProperty(int64(avpipe.PixelFormatRGBA)))
	d.addCommonProps(pad, streamDuration(d.video))
	d.pads[d.video.Index()] = pad
}

func (d *Demuxer) registerAudioPad() {
	pad := d.AddOutput("audio0")
	pad.AddProperty(avpipe.PropSampleRate, avpipe.NewIntProperty(int64(d.audio.SampleRate())))
	pad.AddProperty(avpipe.PropChannels, avpipe.NewIntProperty(decodedChannels))
	pad.AddProperty(avpipe.PropSampleFormat, avpipe.NewIntProperty(int64(avpipe.SampleFormatS16)))
	d.addCommonProps(pad, streamDuration(d.audio))
	d.pads[d.audio.Index()] = pad
}

func (d *Demuxer) addCommonProps(pad *avpipe.Pad, duration float64) {
	pad.AddProperty(avpipe.PropDuration, avpipe.NewFloatProperty(duration))
	if duration > d.duration {
		d.duration = duration
	}
	meta := avpipe.NewMapProperty()
	for key, value := range d.options {
		meta.Set(key, avpipe.NewStringProperty(value))
		pad.AddProperty(key, avpipe.NewStringProperty(value))
	}
	pad.AddProperty(avpipe.PropMetadata, meta)
}

type durationStream interface {
	Duration() (time.Duration, error)
}

func streamDuration(s durationStream) float64 {
	dur, err := s.Duration()
	if err != nil {
		return 0
	}
	return dur.Seconds()
}

func (d *Demuxer) OnTeardown() error {
	err := d.closeMedia()
	for _, pad := range d.Outputs() {
		d.RemovePad(pad)
	}
	d.pads = nil
	d.duration = 0
	d.videoDur = 0
	return err
}

func (d *Demuxer) closeMedia() error {
	var firstErr error
	if d.video != nil {
		if err := d.video.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		d.video = nil
	}
	if d.audio != nil {
		if err := d.audio.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		d.audio = nil
	}
	if d.media != nil {
		if err := d.media.CloseDecode(); err != nil && firstErr == nil {
			firstErr = err
		}
		d.media.Close()
		d.media = nil
	}
	if firstErr != nil {
		return avpipe.WrapError(avpipe.CodeExternal, "close media", firstErr)
	}
	return nil
}

// OnLoop pulls packets while Running and routes each to the pad of its
// stream; pushes are synchronous, so the bound decoder consumes the
// packet before the next read, exactly the order reisen requires.
func (d *Demuxer) OnLoop() error {
	worker := d.Worker()
	for !d.StopRequested() {
		if d.State() != avpipe.StateRunning || d.eof {
			worker.WaitTask(-1)
			continue
		}
		worker.Dispatch()
		if err := d.readPacket(); err != nil {
			return err
		}
	}
	return nil
}

func (d *Demuxer) readPacket() error {
	packet, ok, err := d.media.ReadPacket()
	if err != nil {
		return avpipe.WrapError(avpipe.CodeFileCorrupted, "read packet", err)
	}
	if !ok {
		d.eof = true
		if !d.eofPosted {
			d.eofPosted = true
			if bus := d.Bus(); bus != nil {
				bus.PostEvent(avpipe.NewEvent(avpipe.EventMediaEndOfFile, d))
			}
		}
		return nil
	}
	pad, known := d.pads[packet.StreamIndex()]
	if !known || !pad.IsLinked() {
		return nil
	}
	out := avpipe.NewPacket(packet.Data(), packet.StreamIndex(), 0, d.packetDuration(packet))
	pushErr := pad.Push(out)
	out.Release()
	if pushErr != nil && !errors.Is(pushErr, avpipe.ErrNoLink) {
		avpipe.CurrentLogger().Debugf("demuxer %s: push: %v", d.Name(), pushErr)
	}
	return nil
}

// packetDuration estimates the presentation span of a packet; reisen does
// not expose packet timing, so video packets assume one frame interval.
func (d *Demuxer) packetDuration(packet *reisen.Packet) float64 {
	if packet.Type() == reisen.StreamVideo {
		return d.videoDur.Seconds()
	}
	return 0
}

// OnEvent rewinds on a seek request and flushes everything downstream.
func (d *Demuxer) OnEvent(ev avpipe.Event) error {
	seek, ok := ev.(*avpipe.SeekEvent)
	if !ok || ev.Type() != avpipe.EventSeekRequested {
		return avpipe.ErrNoImpl
	}
	target := time.Duration(seek.Position * float64(time.Second))
	if d.video != nil {
		if err := d.video.Rewind(target); err != nil {
			return d.RaiseError(avpipe.CodeExternal, "seek video: "+err.Error())
		}
	}
	if d.audio != nil {
		if err := d.audio.Rewind(target); err != nil {
			return d.RaiseError(avpipe.CodeExternal, "seek audio: "+err.Error())
		}
	}
	d.eof = false
	d.eofPosted = false
	return d.PushEventDownstream(avpipe.NewFlushEvent(d))
}

func init() {
	avpipe.RegisterElement("demuxer", func() avpipe.Element { return NewDemuxer() })
}
