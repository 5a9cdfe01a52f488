package avpipe

import (
	"go.uber.org/atomic"

	"github.com/erparts/go-avpipe/internal/bufpool"
)

// A Resource is a polymorphic payload passed between elements: either a
// compressed [Packet] or a decoded [Frame]. Resources are explicitly
// reference counted because any element may retain one after its callback
// returns; producers must treat a pushed resource as immutable and
// consumers that need to mutate call MakeWritable first.
type Resource interface {
	// Retain increments the reference count and returns the receiver.
	Retain() Resource
	// Release drops one reference; the payload returns to the pool when
	// the count reaches zero.
	Release()
	// RefCount reports the current number of holders.
	RefCount() int32
}

// A Packet is a span of compressed bytes with timing, as produced by a
// demuxer and consumed by a decoder.
type Packet struct {
	refs atomic.Int32

	data        []byte
	streamIndex int
	pts         float64 // seconds
	duration    float64 // seconds
	keyFrame    bool
}

// NewPacket builds a packet around a copy of data, with one reference.
func NewPacket(data []byte, streamIndex int, pts, duration float64) *Packet {
	p := &Packet{
		data:        bufpool.Get(len(data)),
		streamIndex: streamIndex,
		pts:         pts,
		duration:    duration,
	}
	copy(p.data, data)
	p.refs.Store(1)
	return p
}

func (p *Packet) Data() []byte      { return p.data }
func (p *Packet) Size() int         { return len(p.data) }
func (p *Packet) StreamIndex() int  { return p.streamIndex }
func (p *Packet) Timestamp() float64 { return p.pts }
func (p *Packet) Duration() float64 { return p.duration }
func (p *Packet) IsKeyFrame() bool  { return p.keyFrame }
func (p *Packet) SetKeyFrame(v bool) { p.keyFrame = v }

func (p *Packet) Retain() Resource {
	p.refs.Inc()
	return p
}

func (p *Packet) Release() {
	if p.refs.Dec() == 0 {
		bufpool.Put(p.data)
		p.data = nil
	}
}

func (p *Packet) RefCount() int32 { return p.refs.Load() }

// A Frame is decoded media: a picture (pixel format, width, height) or an
// audio block (sample format, channels, rate, count). Planes hold the raw
// bytes; video formats use one plane per component group, packed audio one
// plane, planar audio one plane per channel.
type Frame struct {
	refs atomic.Int32

	pix    PixelFormat
	sample SampleFormat

	width, height int
	channels      int
	sampleRate    int
	sampleCount   int // per channel

	pts      float64 // seconds
	duration float64 // seconds

	planes  [][]byte
	strides []int
}

// NewVideoFrame allocates a picture frame with pooled planes sized for the
// format. Hardware formats get empty handle planes.
func NewVideoFrame(pix PixelFormat, width, height int) *Frame {
	f := &Frame{pix: pix, sample: SampleFormatNone, width: width, height: height}
	f.refs.Store(1)
	if pix.IsHardware() {
		f.planes = make([][]byte, 1)
		f.strides = make([]int, 1)
		return f
	}
	sizes, strides := videoPlaneLayout(pix, width, height)
	f.planes = make([][]byte, len(sizes))
	f.strides = strides
	for i, size := range sizes {
		f.planes[i] = bufpool.Get(size)
	}
	return f
}

// NewAudioFrame allocates an audio frame with pooled planes sized for the
// format, channel count and per-channel sample count.
func NewAudioFrame(sample SampleFormat, channels, sampleCount int) *Frame {
	f := &Frame{
		pix:         PixelFormatNone,
		sample:      sample,
		channels:    channels,
		sampleCount: sampleCount,
	}
	f.refs.Store(1)
	if sample.IsPlanar() {
		planeSize := sample.BytesPerSample() * sampleCount
		f.planes = make([][]byte, channels)
		f.strides = make([]int, channels)
		for i := range f.planes {
			f.planes[i] = bufpool.Get(planeSize)
			f.strides[i] = planeSize
		}
	} else {
		size := sample.BytesPerFrame(channels) * sampleCount
		f.planes = [][]byte{bufpool.Get(size)}
		f.strides = []int{size}
	}
	return f
}

func videoPlaneLayout(pix PixelFormat, w, h int) (sizes, strides []int) {
	switch pix {
	case PixelFormatYUV420P:
		return []int{w * h, w / 2 * ((h + 1) / 2), w / 2 * ((h + 1) / 2)}, []int{w, w / 2, w / 2}
	case PixelFormatYUV422P:
		return []int{w * h, w / 2 * h, w / 2 * h}, []int{w, w / 2, w / 2}
	case PixelFormatYUV444P:
		return []int{w * h, w * h, w * h}, []int{w, w, w}
	case PixelFormatNV12, PixelFormatNV21:
		return []int{w * h, w * ((h + 1) / 2)}, []int{w, w}
	case PixelFormatRGBA64:
		return []int{w * h * 8}, []int{w * 8}
	case PixelFormatP010:
		return []int{w * h * 2, w * ((h + 1) / 2) * 2}, []int{w * 2, w * 2}
	default: // RGBA, BGRA, ARGB
		return []int{w * h * 4}, []int{w * 4}
	}
}

// --- accessors ---

func (f *Frame) PixelFormat() PixelFormat   { return f.pix }
func (f *Frame) SampleFormat() SampleFormat { return f.sample }
func (f *Frame) Width() int                 { return f.width }
func (f *Frame) Height() int                { return f.height }
func (f *Frame) Channels() int              { return f.channels }
func (f *Frame) SampleRate() int            { return f.sampleRate }
func (f *Frame) SampleCount() int           { return f.sampleCount }
func (f *Frame) Timestamp() float64         { return f.pts }
func (f *Frame) Duration() float64          { return f.duration }
func (f *Frame) PlaneCount() int            { return len(f.planes) }

// Plane returns the raw bytes of the n-th plane, nil when out of range.
func (f *Frame) Plane(n int) []byte {
	if n < 0 || n >= len(f.planes) {
		return nil
	}
	return f.planes[n]
}

// Stride returns the per-row (video) or plane (audio) byte stride.
func (f *Frame) Stride(n int) int {
	if n < 0 || n >= len(f.strides) {
		return 0
	}
	return f.strides[n]
}

func (f *Frame) SetSampleRate(rate int)    { f.sampleRate = rate }
func (f *Frame) SetTimestamp(pts float64)  { f.pts = pts }
func (f *Frame) SetDuration(d float64)     { f.duration = d }

// IsAudio reports whether the frame carries samples rather than pixels.
func (f *Frame) IsAudio() bool { return f.sample != SampleFormatNone }

func (f *Frame) Retain() Resource {
	f.refs.Inc()
	return f
}

func (f *Frame) Release() {
	if f.refs.Dec() == 0 {
		for i, plane := range f.planes {
			bufpool.Put(plane)
			f.planes[i] = nil
		}
	}
}

func (f *Frame) RefCount() int32 { return f.refs.Load() }

// MakeWritable returns a frame the caller may mutate: the receiver when it
// is the sole holder, otherwise a deep copy with a fresh reference count.
// The receiver keeps its own references either way.
func (f *Frame) MakeWritable() *Frame {
	if f.refs.Load() <= 1 {
		return f
	}
	out := &Frame{
		pix:         f.pix,
		sample:      f.sample,
		width:       f.width,
		height:      f.height,
		channels:    f.channels,
		sampleRate:  f.sampleRate,
		sampleCount: f.sampleCount,
		pts:         f.pts,
		duration:    f.duration,
		planes:      make([][]byte, len(f.planes)),
		strides:     append([]int(nil), f.strides...),
	}
	out.refs.Store(1)
	for i, plane := range f.planes {
		out.planes[i] = bufpool.Get(len(plane))
		copy(out.planes[i], plane)
	}
	return out
}

var (
	_ Resource = (*Packet)(nil)
	_ Resource = (*Frame)(nil)
)
