// Package render loads PDF documents and rasterizes their pages for display.
//
// A Renderer reports the outcome of Load through subscribed Listeners: every
// subscriber receives exactly one of Loaded or Failed per load.
package render

import (
	"context"
	"errors"
	"image"

	"github.com/wudi/pdfcapture/coords"
	"github.com/wudi/pdfcapture/units"
)

var (
	ErrNotLoaded = errors.New("document not loaded")
	ErrBadScale  = errors.New("scale must be positive")
	ErrBadPage   = errors.New("page out of range")
	// ErrUnreadable reports a document the parser could not survive.
	ErrUnreadable = errors.New("document could not be read")
)

// Renderer is the rendering collaborator of the capture tool.
type Renderer interface {
	// Load starts loading h and returns immediately.
	Load(ctx context.Context, h Handle)
	Subscribe(l Listener) Subscription
	RenderPage(page int, scale float64) (*Surface, error)
	PageSize(page int) (PageSize, error)
}

// Listener receives load events. Callbacks run on the loading goroutine.
type Listener interface {
	Loaded(numPages int)
	Failed(err error)
}

// ListenerFuncs adapts a pair of functions to Listener. Nil funcs are skipped.
type ListenerFuncs struct {
	OnLoaded func(numPages int)
	OnFailed func(err error)
}

func (l ListenerFuncs) Loaded(n int) {
	if l.OnLoaded != nil {
		l.OnLoaded(n)
	}
}

func (l ListenerFuncs) Failed(err error) {
	if l.OnFailed != nil {
		l.OnFailed(err)
	}
}

// Subscription cancels a Subscribe. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}

// PageSize describes a page as displayed: Width and Height are in points
// after rotation, Box is the visible box in PDF user space.
type PageSize struct {
	Width  float64
	Height float64
	Box    coords.Rect
	Rotate int
}

// Marker is an overlay drawn on a rendered page, positioned in millimeters
// from the top-left corner of the displayed page.
type Marker struct {
	Label string
	X, Y  float64
}

// Surface is a rendered page. Width and Height are the pixel size of Image.
type Surface struct {
	Page   int
	Scale  float64
	Width  int
	Height int
	Box    coords.Rect
	Rotate int
	Image  *image.RGBA
}

// Matrix maps PDF user space onto surface pixels.
func (s *Surface) Matrix() coords.Matrix {
	return coords.DeviceMatrix(s.Box, s.Rotate, s.Scale*units.PixelsPerPoint)
}

// UserSpace maps a pixel offset from the top-left corner back to PDF user
// space.
func (s *Surface) UserSpace(x, y float64) (coords.Point, error) {
	return coords.UserSpace(s.Box, s.Rotate, s.Scale*units.PixelsPerPoint, coords.Point{X: x, Y: y})
}

// Contains reports whether a pixel offset lies on the surface.
func (s *Surface) Contains(x, y float64) bool {
	return x >= 0 && y >= 0 && x <= float64(s.Width) && y <= float64(s.Height)
}
