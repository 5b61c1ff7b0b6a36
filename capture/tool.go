package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wudi/pdfcapture/observability"
	"github.com/wudi/pdfcapture/render"
	"github.com/wudi/pdfcapture/units"
)

var (
	ErrClosed     = errors.New("capture tool is closed")
	ErrNotReady   = errors.New("document is still loading")
	ErrLoadFailed = errors.New("document failed to load")
	ErrOutOfPage  = errors.New("position is outside the rendered page")
	ErrNoRenderer = errors.New("no renderer configured")
	ErrStaleView  = errors.New("view changed since the page was rendered")
)

// Selection is a captured position: Page is 1-based, X and Y are millimeters
// from the top-left corner of the displayed page.
type Selection struct {
	Page int     `json:"page" yaml:"page"`
	X    float64 `json:"x" yaml:"x"`
	Y    float64 `json:"y" yaml:"y"`
}

// Location is a Selection together with the same position in PDF user space.
type Location struct {
	Selection
	UserX float64 `json:"user_x"`
	UserY float64 `json:"user_y"`
}

// Config is the caller contract of a Tool. OnSelect runs synchronously inside
// Click and must not call Click or Close.
type Config struct {
	Document render.Handle
	Renderer render.Renderer
	OnSelect func(page int, x, y float64)
	OnClose  func()
	Logger   observability.Logger
}

type Tool struct {
	cfg    Config
	logger observability.Logger

	mu     sync.Mutex
	state  ViewState
	closed bool
	sub    render.Subscription

	settled    chan struct{}
	settleOnce sync.Once

	// cb serializes OnSelect with Close.
	cb sync.Mutex
}

// Open mounts a tool on cfg.Document, starts the load and subscribes to the
// renderer's load events. The load starts first so that a reused renderer
// cannot replay the outcome of its previous document.
func Open(ctx context.Context, cfg Config) (*Tool, error) {
	if cfg.Renderer == nil {
		return nil, ErrNoRenderer
	}
	t := &Tool{
		cfg:     cfg,
		logger:  observability.OrNop(cfg.Logger).With(observability.String("document", cfg.Document.String())),
		state:   InitialState(),
		settled: make(chan struct{}),
	}
	cfg.Renderer.Load(ctx, cfg.Document)
	sub := cfg.Renderer.Subscribe(render.ListenerFuncs{
		OnLoaded: t.loaded,
		OnFailed: t.failed,
	})
	t.mu.Lock()
	t.sub = sub
	t.mu.Unlock()
	return t, nil
}

// Ready is closed once the load outcome is known or the tool is closed.
func (t *Tool) Ready() <-chan struct{} { return t.settled }

func (t *Tool) settle() { t.settleOnce.Do(func() { close(t.settled) }) }

func (t *Tool) loaded(numPages int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || !t.state.Loading {
		return
	}
	t.state = OnLoaded(t.state, numPages)
	t.logger.Debug("document ready", observability.Int("pages", numPages))
	t.settle()
}

func (t *Tool) failed(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || !t.state.Loading {
		return
	}
	t.state = OnLoadFailed(t.state, err)
	t.logger.Warn("document failed to load", observability.Error("error", err))
	t.settle()
}

func (t *Tool) State() ViewState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tool) Status() Status { return t.State().Status() }

// Closed reports whether Close has been called.
func (t *Tool) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Navigate moves by offset pages; out-of-range targets are clamped.
func (t *Tool) Navigate(offset int) (ViewState, error) {
	return t.update(func(s ViewState) ViewState { return Navigate(s, offset) })
}

// Zoom changes the scale by delta; the result is clamped to [MinScale, MaxScale].
func (t *Tool) Zoom(delta float64) (ViewState, error) {
	return t.update(func(s ViewState) ViewState { return Zoom(s, delta) })
}

func (t *Tool) CanNavigate(offset int) bool { return CanNavigate(t.State(), offset) }
func (t *Tool) CanZoom(delta float64) bool  { return CanZoom(t.State(), delta) }

func (t *Tool) update(fn func(ViewState) ViewState) (ViewState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return t.state, ErrClosed
	}
	t.state = fn(t.state)
	return t.state, nil
}

// displayable returns the current state if a page can be displayed.
func (t *Tool) displayable() (ViewState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return t.state, ErrClosed
	}
	switch t.state.Status() {
	case StatusLoading:
		return t.state, ErrNotReady
	case StatusFailed:
		return t.state, fmt.Errorf("%w: %v", ErrLoadFailed, t.state.LoadErr)
	}
	return t.state, nil
}

// Render draws the current page at the current scale.
func (t *Tool) Render() (*render.Surface, error) {
	s, err := t.displayable()
	if err != nil {
		return nil, err
	}
	return t.cfg.Renderer.RenderPage(s.PageNumber, s.ScaleFactor)
}

// RenderAt draws page at scale without moving the view. The scale must lie in
// [MinScale, MaxScale].
func (t *Tool) RenderAt(page int, scale float64) (*render.Surface, error) {
	if _, err := t.displayable(); err != nil {
		return nil, err
	}
	if !(scale >= MinScale && scale <= MaxScale) {
		return nil, fmt.Errorf("%w: %v is outside [%v, %v]", render.ErrBadScale, scale, MinScale, MaxScale)
	}
	return t.cfg.Renderer.RenderPage(page, scale)
}

// Locate converts a pixel offset from the top-left corner of the rendered
// current page into a Location without notifying OnSelect.
func (t *Tool) Locate(xPx, yPx float64) (Location, error) {
	s, err := t.displayable()
	if err != nil {
		return Location{}, err
	}
	return t.locate(s, xPx, yPx)
}

func (t *Tool) locate(s ViewState, xPx, yPx float64) (Location, error) {
	size, err := t.cfg.Renderer.PageSize(s.PageNumber)
	if err != nil {
		return Location{}, err
	}
	w := units.PointsToPixels(size.Width, s.ScaleFactor)
	h := units.PointsToPixels(size.Height, s.ScaleFactor)
	if xPx < 0 || yPx < 0 || xPx > w || yPx > h {
		return Location{}, fmt.Errorf("%w: (%g, %g) on %gx%g", ErrOutOfPage, xPx, yPx, w, h)
	}
	surface := &render.Surface{Scale: s.ScaleFactor, Box: size.Box, Rotate: size.Rotate}
	user, err := surface.UserSpace(xPx, yPx)
	if err != nil {
		return Location{}, err
	}
	return Location{
		Selection: Selection{
			Page: s.PageNumber,
			X:    ToMillimeters(xPx, s.ScaleFactor),
			Y:    ToMillimeters(yPx, s.ScaleFactor),
		},
		UserX: units.Round(user.X, 2),
		UserY: units.Round(user.Y, 2),
	}, nil
}

// Click converts a click on the rendered page and reports it to OnSelect,
// synchronously and at most once. Clicks after Close fail with ErrClosed.
func (t *Tool) Click(xPx, yPx float64) (Selection, error) {
	return t.click(nil, xPx, yPx)
}

// ClickView is Click for a client that rendered page at scale. It fails with
// ErrStaleView when the tool has moved to another page or scale since.
func (t *Tool) ClickView(page int, scale, xPx, yPx float64) (Selection, error) {
	return t.click(func(s ViewState) error {
		if s.PageNumber != page || s.ScaleFactor != scale {
			return fmt.Errorf("%w: clicked page %d at %g, showing page %d at %g",
				ErrStaleView, page, scale, s.PageNumber, s.ScaleFactor)
		}
		return nil
	}, xPx, yPx)
}

func (t *Tool) click(check func(ViewState) error, xPx, yPx float64) (Selection, error) {
	t.cb.Lock()
	defer t.cb.Unlock()

	s, err := t.displayable()
	if err != nil {
		return Selection{}, err
	}
	if check != nil {
		if err := check(s); err != nil {
			return Selection{}, err
		}
	}
	loc, err := t.locate(s, xPx, yPx)
	if err != nil {
		return Selection{}, err
	}
	t.logger.Debug("position selected",
		observability.Int("page", loc.Page),
		observability.Float64("x_mm", loc.X),
		observability.Float64("y_mm", loc.Y),
	)
	if t.cfg.OnSelect != nil {
		t.cfg.OnSelect(loc.Page, loc.X, loc.Y)
	}
	return loc.Selection, nil
}

// Close unmounts the tool: it unsubscribes from the renderer and invokes
// OnClose exactly once. Later calls are no-ops.
func (t *Tool) Close() {
	t.cb.Lock()
	defer t.cb.Unlock()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	sub := t.sub
	t.mu.Unlock()
	t.settle()

	if sub != nil {
		sub.Unsubscribe()
	}
	if t.cfg.OnClose != nil {
		t.cfg.OnClose()
	}
}
