// Package workflow models workflow steps and the signature and form-field
// anchors an administrator places on a step's document.
package workflow

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/wudi/pdfcapture/render"
)

var (
	ErrInvalidKind = errors.New("invalid anchor kind")
	ErrNotFound    = errors.New("not found")
)

type AnchorKind string

const (
	AnchorSignature AnchorKind = "signature"
	AnchorField     AnchorKind = "field"
)

func ParseAnchorKind(s string) (AnchorKind, error) {
	switch k := AnchorKind(s); k {
	case AnchorSignature, AnchorField:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

// Anchor is a position on a document page, in millimeters from the top-left
// corner of the displayed page.
type Anchor struct {
	ID    string     `yaml:"id" json:"id"`
	Kind  AnchorKind `yaml:"kind" json:"kind"`
	Label string     `yaml:"label,omitempty" json:"label,omitempty"`
	Page  int        `yaml:"page" json:"page"`
	X     float64    `yaml:"x" json:"x"`
	Y     float64    `yaml:"y" json:"y"`
}

type Step struct {
	ID       string   `yaml:"id" json:"id"`
	Name     string   `yaml:"name" json:"name"`
	Document string   `yaml:"document,omitempty" json:"document,omitempty"`
	Anchors  []Anchor `yaml:"anchors,omitempty" json:"anchors,omitempty"`
}

type Workflow struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	Steps []Step `yaml:"steps,omitempty" json:"steps,omitempty"`
}

func New(name string) *Workflow {
	return &Workflow{ID: uuid.NewString(), Name: name}
}

// AddStep appends a step for document and returns it.
func (w *Workflow) AddStep(name, document string) *Step {
	w.Steps = append(w.Steps, Step{ID: uuid.NewString(), Name: name, Document: document})
	return &w.Steps[len(w.Steps)-1]
}

func (w *Workflow) Step(id string) (*Step, bool) {
	for i := range w.Steps {
		if w.Steps[i].ID == id {
			return &w.Steps[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy.
func (w Workflow) Clone() Workflow {
	steps := make([]Step, len(w.Steps))
	for i, s := range w.Steps {
		steps[i] = s.Clone()
	}
	w.Steps = steps
	return w
}

func (s Step) Clone() Step {
	s.Anchors = slices.Clone(s.Anchors)
	return s
}

// AddAnchor appends a, assigning an ID when it has none.
func (s *Step) AddAnchor(a Anchor) Anchor {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	s.Anchors = append(s.Anchors, a)
	return a
}

// RemoveAnchor deletes the anchor with the given ID and reports whether it
// existed.
func (s *Step) RemoveAnchor(id string) bool {
	n := len(s.Anchors)
	s.Anchors = slices.DeleteFunc(s.Anchors, func(a Anchor) bool { return a.ID == id })
	return len(s.Anchors) != n
}

// Markers returns the anchors on page as render overlays.
func (s *Step) Markers(page int) []render.Marker {
	var out []render.Marker
	for _, a := range s.Anchors {
		if a.Page != page {
			continue
		}
		label := a.Label
		if label == "" {
			label = string(a.Kind)
		}
		out = append(out, render.Marker{Label: label, X: a.X, Y: a.Y})
	}
	return out
}
