package elements

import avpipe "github.com/erparts/go-avpipe"

// A Renderer is the injected presentation surface of a [VideoSink]. The
// sink calls SetFrame from its private worker once a frame is due; the
// renderer keeps its own reference if it needs the frame past the call.
// A nil frame clears the surface.
type Renderer interface {
	Init() error
	Close() error
	// SupportedFormats lists the pixel formats the renderer accepts,
	// most preferred first; the sink publishes them on its pad so an
	// upstream converter can negotiate.
	SupportedFormats() []avpipe.PixelFormat
	SetFrame(frame *avpipe.Frame) error
}
