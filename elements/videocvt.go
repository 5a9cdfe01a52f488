package elements

import (
	avpipe "github.com/erparts/go-avpipe"
)

// A VideoConvert adapts pixel formats between a decoder and a sink. On
// the first frame it inspects the downstream pad's accepted format list:
// when the incoming format is listed (or no list exists) it becomes a
// pass-through, otherwise it converts every frame to the first accepted
// format. Conversion is plain integer math; hardware surfaces would need
// a copy-back through the codec layer and are rejected.
type VideoConvert struct {
	avpipe.DefaultDelegate
	*avpipe.Base

	sink *avpipe.Pad
	src  *avpipe.Pad

	decided     bool
	passthrough bool
	target      avpipe.PixelFormat
	forced      avpipe.PixelFormat
}

// NewVideoConvert creates a converter that negotiates on first use.
func NewVideoConvert() *VideoConvert {
	c := &VideoConvert{forced: avpipe.PixelFormatNone}
	c.Base = avpipe.NewBase(c, "videoconvert")
	c.sink = c.AddInput("sink")
	c.src = c.AddOutput("src")
	return c
}

// SetTargetFormat overrides negotiation with a fixed output format.
func (c *VideoConvert) SetTargetFormat(f avpipe.PixelFormat) { c.forced = f }

func (c *VideoConvert) OnTeardown() error {
	c.decided = false
	c.passthrough = false
	c.target = avpipe.PixelFormatNone
	return nil
}

func (c *VideoConvert) OnSinkPush(_ *avpipe.Pad, res avpipe.Resource) error {
	frame, ok := res.(*avpipe.Frame)
	if !ok || frame.IsAudio() {
		return avpipe.ErrUnsupportedResource
	}
	if !c.src.IsLinked() {
		return avpipe.ErrNoLink
	}
	if frame.PixelFormat().IsHardware() {
		return avpipe.NewError(avpipe.CodeUnsupportedPixelFormat,
			"hardware surfaces need a codec copy-back")
	}
	if !c.decided {
		c.negotiate(frame)
	}
	if c.passthrough {
		return c.src.Push(frame)
	}
	out, err := convertPixels(frame, c.target)
	if err != nil {
		return err
	}
	pushErr := c.src.Push(out)
	out.Release()
	return pushErr
}

func (c *VideoConvert) negotiate(frame *avpipe.Frame) {
	c.decided = true
	if c.forced != avpipe.PixelFormatNone {
		c.passthrough = c.forced == frame.PixelFormat()
		c.target = c.forced
		return
	}
	peer := c.src.Peer()
	if peer == nil || !peer.HasProperty(avpipe.PropPixelFormatList) {
		// Nothing to negotiate against: chain as-is.
		c.passthrough = true
		return
	}
	accepted := peer.Property(avpipe.PropPixelFormatList)
	if accepted.Contains(avpipe.NewIntProperty(int64(frame.PixelFormat()))) {
		c.passthrough = true
		return
	}
	c.passthrough = false
	c.target = avpipe.PixelFormat(accepted.Index(0).Int())
}

// --- software conversion ---

func convertPixels(src *avpipe.Frame, target avpipe.PixelFormat) (*avpipe.Frame, error) {
	switch target {
	case avpipe.PixelFormatRGBA, avpipe.PixelFormatBGRA, avpipe.PixelFormatARGB:
	default:
		return nil, avpipe.NewErrorf(avpipe.CodeUnsupportedPixelFormat,
			"no conversion to %s", target)
	}
	w, h := src.Width(), src.Height()
	out := avpipe.NewVideoFrame(target, w, h)
	out.SetTimestamp(src.Timestamp())
	out.SetDuration(src.Duration())
	dst := out.Plane(0)
	dstStride := out.Stride(0)

	for y := 0; y < h; y++ {
		row := dst[y*dstStride:]
		for x := 0; x < w; x++ {
			r, g, b, a, err := samplePixel(src, x, y)
			if err != nil {
				out.Release()
				return nil, err
			}
			writePixel(row[x*4:], target, r, g, b, a)
		}
	}
	return out, nil
}

func writePixel(p []byte, target avpipe.PixelFormat, r, g, b, a byte) {
	switch target {
	case avpipe.PixelFormatBGRA:
		p[0], p[1], p[2], p[3] = b, g, r, a
	case avpipe.PixelFormatARGB:
		p[0], p[1], p[2], p[3] = a, r, g, b
	default: // RGBA
		p[0], p[1], p[2], p[3] = r, g, b, a
	}
}

// samplePixel reads one pixel as 8-bit RGBA from any supported layout.
func samplePixel(f *avpipe.Frame, x, y int) (r, g, b, a byte, err error) {
	switch f.PixelFormat() {
	case avpipe.PixelFormatRGBA:
		p := f.Plane(0)[y*f.Stride(0)+x*4:]
		return p[0], p[1], p[2], p[3], nil
	case avpipe.PixelFormatBGRA:
		p := f.Plane(0)[y*f.Stride(0)+x*4:]
		return p[2], p[1], p[0], p[3], nil
	case avpipe.PixelFormatARGB:
		p := f.Plane(0)[y*f.Stride(0)+x*4:]
		return p[1], p[2], p[3], p[0], nil
	case avpipe.PixelFormatYUV420P:
		yv := f.Plane(0)[y*f.Stride(0)+x]
		u := f.Plane(1)[(y/2)*f.Stride(1)+x/2]
		v := f.Plane(2)[(y/2)*f.Stride(2)+x/2]
		r, g, b = yuvToRGB(yv, u, v)
		return r, g, b, 0xff, nil
	case avpipe.PixelFormatYUV422P:
		yv := f.Plane(0)[y*f.Stride(0)+x]
		u := f.Plane(1)[y*f.Stride(1)+x/2]
		v := f.Plane(2)[y*f.Stride(2)+x/2]
		r, g, b = yuvToRGB(yv, u, v)
		return r, g, b, 0xff, nil
	case avpipe.PixelFormatYUV444P:
		yv := f.Plane(0)[y*f.Stride(0)+x]
		u := f.Plane(1)[y*f.Stride(1)+x]
		v := f.Plane(2)[y*f.Stride(2)+x]
		r, g, b = yuvToRGB(yv, u, v)
		return r, g, b, 0xff, nil
	case avpipe.PixelFormatNV12:
		yv := f.Plane(0)[y*f.Stride(0)+x]
		uv := f.Plane(1)[(y/2)*f.Stride(1)+(x/2)*2:]
		r, g, b = yuvToRGB(yv, uv[0], uv[1])
		return r, g, b, 0xff, nil
	case avpipe.PixelFormatNV21:
		yv := f.Plane(0)[y*f.Stride(0)+x]
		vu := f.Plane(1)[(y/2)*f.Stride(1)+(x/2)*2:]
		r, g, b = yuvToRGB(yv, vu[1], vu[0])
		return r, g, b, 0xff, nil
	default:
		return 0, 0, 0, 0, avpipe.NewErrorf(avpipe.CodeUnsupportedPixelFormat,
			"no conversion from %s", f.PixelFormat())
	}
}

// yuvToRGB is full-range BT.601 with 16.16 fixed-point coefficients.
func yuvToRGB(y, u, v byte) (r, g, b byte) {
	c := int(y)
	d := int(u) - 128
	e := int(v) - 128
	return clampByte(c + (91881*e)>>16),
		clampByte(c - (22554*d)>>16 - (46802*e)>>16),
		clampByte(c + (116130*d)>>16)
}

func clampByte(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

func init() {
	avpipe.RegisterElement("videoconvert", func() avpipe.Element { return NewVideoConvert() })
}
