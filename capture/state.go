// Package capture implements the coordinate capture tool: it shows a document
// page by page at a zoom level and turns clicks on the rendered page into
// page-relative positions in millimeters.
package capture

import "github.com/wudi/pdfcapture/units"

// Zoom bounds and increments of ViewState.ScaleFactor.
const (
	MinScale     = 0.5
	MaxScale     = 3.0
	ScaleStep    = 0.25
	DefaultScale = 1.0
)

type Status int

const (
	StatusLoading Status = iota
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// ViewState is the tool's display state. PageNumber is 1-based and stays in
// [1, TotalPages] once the page count is known.
type ViewState struct {
	PageNumber  int
	ScaleFactor float64
	Loading     bool
	TotalPages  int
	LoadErr     error
}

// InitialState is the state of a freshly opened tool.
func InitialState() ViewState {
	return ViewState{PageNumber: 1, ScaleFactor: DefaultScale, Loading: true}
}

func (s ViewState) Status() Status {
	switch {
	case s.Loading:
		return StatusLoading
	case s.LoadErr != nil:
		return StatusFailed
	}
	return StatusReady
}

// OnLoaded records the page count and shows the first page.
func OnLoaded(s ViewState, numPages int) ViewState {
	s.Loading = false
	s.LoadErr = nil
	s.TotalPages = numPages
	s.PageNumber = 1
	return s
}

// OnLoadFailed leaves the loading state for the failed one. There is no retry.
func OnLoadFailed(s ViewState, err error) ViewState {
	s.Loading = false
	s.LoadErr = err
	s.TotalPages = 0
	return s
}

// Navigate moves by offset pages, clamped to the document. It has no effect
// until the page count is known.
func Navigate(s ViewState, offset int) ViewState {
	if s.Status() != StatusReady || s.TotalPages < 1 {
		return s
	}
	s.PageNumber = clampInt(s.PageNumber+offset, 1, s.TotalPages)
	return s
}

// CanNavigate reports whether Navigate(s, offset) would change the page.
func CanNavigate(s ViewState, offset int) bool {
	return offset != 0 && Navigate(s, offset).PageNumber != s.PageNumber
}

// Zoom changes the scale by delta, clamped to [MinScale, MaxScale].
func Zoom(s ViewState, delta float64) ViewState {
	s.ScaleFactor = clampFloat(s.ScaleFactor+delta, MinScale, MaxScale)
	return s
}

// CanZoom reports whether Zoom(s, delta) would change the scale.
func CanZoom(s ViewState, delta float64) bool {
	return delta != 0 && Zoom(s, delta).ScaleFactor != s.ScaleFactor
}

// ToMillimeters converts a pixel offset on a surface rendered at scale into
// millimeters, rounded to two decimals: (px / scale) * (25.4 / 72).
func ToMillimeters(px, scale float64) float64 {
	return units.Round(units.PointsToMillimeters(units.PixelsToPoints(px, scale)), 2)
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func clampFloat(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}
