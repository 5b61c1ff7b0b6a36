package server

import (
	"sync"
	"time"

	"github.com/wudi/pdfcapture/capture"
	"github.com/wudi/pdfcapture/render"
	"github.com/wudi/pdfcapture/workflow"
)

// session is one open document with its capture tool and anchor designer.
type session struct {
	id       string
	name     string
	source   string
	created  time.Time
	tool     *capture.Tool
	renderer *render.PDFRenderer
	designer *workflow.Designer

	// workflowID is set when the step belongs to a stored workflow.
	workflowID string
	stepID     string

	mu            sync.Mutex
	lastUsed      time.Time
	selections    []capture.Selection
	storeFailures int
	storeErr      error
}

func (s *session) touch(now time.Time) {
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}

func (s *session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

func (s *session) recordSelection(sel capture.Selection) {
	s.mu.Lock()
	s.selections = append(s.selections, sel)
	s.mu.Unlock()
}

func (s *session) Selections() []capture.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]capture.Selection{}, s.selections...)
}

// recordStore notes the outcome of a workflow store write. A successful write
// clears the last error.
func (s *session) recordStore(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storeErr = err
	if err != nil {
		s.storeFailures++
	}
}

func (s *session) storeFailureCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeFailures
}

// storeErrorSince returns the last store error if a write failed after the
// failure count was n.
func (s *session) storeErrorSince(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.storeFailures > n {
		return s.storeErr
	}
	return nil
}

func (s *session) lastStoreError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeErr
}

// refreshMarkers redraws the anchors of every page that has or had one.
func (s *session) refreshMarkers(pages ...int) {
	step := s.designer.Step()
	for _, p := range pages {
		s.renderer.SetMarkers(p, step.Markers(p))
	}
}

type stateResponse struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Status     string   `json:"status"`
	Page       int      `json:"page"`
	TotalPages int      `json:"total_pages"`
	Scale      float64  `json:"scale"`
	Error      string   `json:"error,omitempty"`
	Controls   controls `json:"controls"`
	Armed      string   `json:"armed,omitempty"`
	StoreError string   `json:"store_error,omitempty"`
}

// controls mirrors the enabled state of the viewer toolbar.
type controls struct {
	Previous bool `json:"previous"`
	Next     bool `json:"next"`
	ZoomIn   bool `json:"zoom_in"`
	ZoomOut  bool `json:"zoom_out"`
}

func (s *session) state() stateResponse {
	st := s.tool.State()
	resp := stateResponse{
		ID:         s.id,
		Name:       s.name,
		Status:     st.Status().String(),
		Page:       st.PageNumber,
		TotalPages: st.TotalPages,
		Scale:      st.ScaleFactor,
		Controls: controls{
			Previous: capture.CanNavigate(st, -1),
			Next:     capture.CanNavigate(st, 1),
			ZoomIn:   capture.CanZoom(st, capture.ScaleStep),
			ZoomOut:  capture.CanZoom(st, -capture.ScaleStep),
		},
	}
	if st.LoadErr != nil {
		resp.Error = st.LoadErr.Error()
	}
	if err := s.lastStoreError(); err != nil {
		resp.StoreError = err.Error()
	}
	if kind, label, ok := s.designer.Armed(); ok {
		resp.Armed = string(kind)
		if label != "" {
			resp.Armed += ": " + label
		}
	}
	return resp
}
