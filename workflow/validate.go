package workflow

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfcapture/render"
	"github.com/wudi/pdfcapture/units"
)

var (
	ErrAnchorPage   = errors.New("anchor references a missing page")
	ErrAnchorBounds = errors.New("anchor lies outside the page")
	ErrDuplicateID  = errors.New("duplicate anchor id")
	ErrMissingID    = errors.New("anchor has no id")
)

// Validate checks the anchors of step against the displayed page sizes of
// its document, pages[0] being page 1. All problems are reported together.
func Validate(step Step, pages []render.PageSize) error {
	var errs []error
	seen := make(map[string]bool, len(step.Anchors))
	for _, a := range step.Anchors {
		switch {
		case a.ID == "":
			errs = append(errs, ErrMissingID)
		case seen[a.ID]:
			errs = append(errs, fmt.Errorf("%w: %q", ErrDuplicateID, a.ID))
		}
		seen[a.ID] = true
		if _, err := ParseAnchorKind(string(a.Kind)); err != nil {
			errs = append(errs, fmt.Errorf("anchor %s: %w", a.ID, err))
		}
		if a.Page < 1 || a.Page > len(pages) {
			errs = append(errs, fmt.Errorf("anchor %s: %w: page %d of %d", a.ID, ErrAnchorPage, a.Page, len(pages)))
			continue
		}
		p := pages[a.Page-1]
		w := units.Round(units.PointsToMillimeters(p.Width), 2)
		h := units.Round(units.PointsToMillimeters(p.Height), 2)
		if a.X < 0 || a.Y < 0 || a.X > w || a.Y > h {
			errs = append(errs, fmt.Errorf("anchor %s: %w: (%.2f, %.2f) mm on a %.2f x %.2f mm page", a.ID, ErrAnchorBounds, a.X, a.Y, w, h))
		}
	}
	return errors.Join(errs...)
}
