package workflow

import (
	"sync"

	"github.com/wudi/pdfcapture/observability"
)

// Designer turns capture selections into anchors on a step. A selection
// becomes an anchor only while the designer is armed; placing the anchor
// disarms it. Select has the signature of capture.Config.OnSelect.
type Designer struct {
	logger observability.Logger

	mu       sync.Mutex
	step     *Step
	armed    bool
	kind     AnchorKind
	label    string
	onAnchor func(Anchor)
}

// NewDesigner edits step in place. onAnchor, if set, is called after each
// anchor is placed.
func NewDesigner(step *Step, logger observability.Logger, onAnchor func(Anchor)) *Designer {
	return &Designer{
		step:     step,
		logger:   observability.OrNop(logger).With(observability.String("step", step.ID)),
		onAnchor: onAnchor,
	}
}

// Arm makes the next selection an anchor of the given kind.
func (d *Designer) Arm(kind AnchorKind, label string) error {
	if _, err := ParseAnchorKind(string(kind)); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.armed, d.kind, d.label = true, kind, label
	return nil
}

func (d *Designer) Disarm() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.armed = false
}

// Armed reports the pending anchor kind and label, if any.
func (d *Designer) Armed() (AnchorKind, string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.kind, d.label, d.armed
}

// Select places the armed anchor at (x, y) millimeters on page. Unarmed
// selections are ignored.
func (d *Designer) Select(page int, x, y float64) {
	d.mu.Lock()
	if !d.armed {
		d.mu.Unlock()
		d.logger.Debug("selection ignored, designer not armed", observability.Int("page", page))
		return
	}
	a := d.step.AddAnchor(Anchor{Kind: d.kind, Label: d.label, Page: page, X: x, Y: y})
	d.armed = false
	cb := d.onAnchor
	d.mu.Unlock()

	d.logger.Info("anchor placed",
		observability.String("anchor", a.ID),
		observability.String("kind", string(a.Kind)),
		observability.Int("page", a.Page),
		observability.Float64("x_mm", a.X),
		observability.Float64("y_mm", a.Y),
	)
	if cb != nil {
		cb(a)
	}
}

// Remove deletes an anchor from the step.
func (d *Designer) Remove(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.step.RemoveAnchor(id)
}

// Step returns a copy of the edited step.
func (d *Designer) Step() Step {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.step.Clone()
}
