package ebitenio

import (
	"image/color"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"

	avpipe "github.com/erparts/go-avpipe"
	"github.com/erparts/go-avpipe/elements"
)

// Renderer presents RGBA frames on an ebiten.Image for the game loop to
// draw. The image is reused between frames: use it inside Draw but do not
// store it expecting its pixels to stay.
type Renderer struct {
	mu      sync.Mutex
	img     *ebiten.Image
	frameW  int
	frameH  int
	onBlack bool
}

// NewRenderer creates an idle renderer; the backing image is allocated
// from the first frame's resolution.
func NewRenderer() *Renderer {
	return &Renderer{}
}

func (r *Renderer) Init() error { return nil }

func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.img != nil {
		r.img.Deallocate()
		r.img = nil
	}
	r.frameW, r.frameH = 0, 0
	return nil
}

func (r *Renderer) SupportedFormats() []avpipe.PixelFormat {
	return []avpipe.PixelFormat{avpipe.PixelFormatRGBA}
}

// SetFrame copies the frame pixels into the backing image; a nil frame
// paints it black.
func (r *Renderer) SetFrame(frame *avpipe.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if frame == nil {
		if r.img != nil && !r.onBlack {
			r.img.Fill(color.Black)
			r.onBlack = true
		}
		return nil
	}
	if frame.PixelFormat() != avpipe.PixelFormatRGBA {
		return avpipe.NewErrorf(avpipe.CodeUnsupportedPixelFormat,
			"renderer wants RGBA, got %s", frame.PixelFormat())
	}
	if r.img == nil || r.frameW != frame.Width() || r.frameH != frame.Height() {
		if r.img != nil {
			r.img.Deallocate()
		}
		r.frameW, r.frameH = frame.Width(), frame.Height()
		r.img = ebiten.NewImage(r.frameW, r.frameH)
	}
	r.img.WritePixels(frame.Plane(0))
	r.onBlack = false
	return nil
}

// Frame returns the current backing image, nil before the first frame.
func (r *Renderer) Frame() *ebiten.Image {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.img
}

// Resolution returns the width and height of the last frame delivered by
// the sink, (0, 0) before the first one.
func (r *Renderer) Resolution() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frameW, r.frameH
}

// Draw paints the current frame into the viewport, scaled up or down to
// fill as much of it as the frame's aspect ratio allows and centered in
// whatever is left over. The projection comes from the frame dimensions
// the sink reported, so a mid-stream resolution switch reprojects on the
// next frame. Before the first frame arrives nothing is drawn.
func (r *Renderer) Draw(viewport *ebiten.Image) {
	r.mu.Lock()
	img := r.img
	fw, fh := float64(r.frameW), float64(r.frameH)
	r.mu.Unlock()
	if img == nil || fw == 0 || fh == 0 {
		return
	}

	view := viewport.Bounds()
	scale := float64(view.Dx()) / fw
	if s := float64(view.Dy()) / fh; s < scale {
		scale = s
	}

	var opts ebiten.DrawImageOptions
	opts.Filter = ebiten.FilterLinear
	opts.GeoM.Scale(scale, scale)
	opts.GeoM.Translate(
		float64(view.Min.X)+(float64(view.Dx())-fw*scale)/2,
		float64(view.Min.Y)+(float64(view.Dy())-fh*scale)/2,
	)
	viewport.DrawImage(img, &opts)
}

var _ elements.Renderer = (*Renderer)(nil)
