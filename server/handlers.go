package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/wudi/pdfcapture/capture"
	"github.com/wudi/pdfcapture/observability"
	"github.com/wudi/pdfcapture/render"
	"github.com/wudi/pdfcapture/security"
	"github.com/wudi/pdfcapture/workflow"
)

var (
	errBadRequest = errors.New("bad request")
	errForbidden  = errors.New("forbidden")
)

const maxJSONBody = 1 << 20

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.logger.Error("request failed", observability.Error("error", err))
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, capture.ErrOutOfPage),
		errors.Is(err, render.ErrBadPage),
		errors.Is(err, render.ErrBadScale),
		errors.Is(err, workflow.ErrInvalidKind):
		return http.StatusBadRequest
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, workflow.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, capture.ErrClosed):
		return http.StatusGone
	case errors.Is(err, capture.ErrStaleView):
		return http.StatusConflict
	case errors.Is(err, capture.ErrLoadFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, capture.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrTooManySessions):
		return http.StatusTooManyRequests
	case errors.Is(err, security.ErrLimitExceeded), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func (s *Server) withSession(fn func(http.ResponseWriter, *http.Request, *session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.session(r.PathValue("id"))
		if !ok {
			s.writeError(w, fmt.Errorf("%w: %s", ErrSessionNotFound, r.PathValue("id")))
			return
		}
		sess.touch(s.now())
		fn(w, r, sess)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.count()})
}

// createRequest is the JSON form of POST /sessions. Any other content type is
// taken as the PDF itself, named by the "name" query parameter.
type createRequest struct {
	Path     string `json:"path"`
	URL      string `json:"url"`
	Name     string `json:"name"`
	Workflow string `json:"workflow"`
	Step     string `json:"step"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body createRequest
		if err := decodeJSON(r, &body); err != nil {
			s.writeError(w, err)
			return
		}
		req = openRequest{Path: body.Path, URL: body.URL, Name: body.Name, Workflow: body.Workflow, Step: body.Step}
	} else {
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.Limits.MaxFileSize))
		if err != nil {
			s.writeError(w, err)
			return
		}
		if len(data) == 0 {
			s.writeError(w, fmt.Errorf("%w: empty body", errBadRequest))
			return
		}
		q := r.URL.Query()
		req = openRequest{Data: data, Name: q.Get("name"), Workflow: q.Get("workflow"), Step: q.Get("step")}
		if req.Name == "" {
			req.Name = "upload.pdf"
		}
	}

	sess, err := s.open(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Location", "/sessions/"+sess.id)
	writeJSON(w, http.StatusCreated, sess.state())
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.list())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request, sess *session) {
	writeJSON(w, http.StatusOK, sess.state())
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request, sess *session) {
	s.closeSession(sess.id)
	w.WriteHeader(http.StatusNoContent)
}

// handlePage renders the current page, or the page and scale named by the
// query, as PNG.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request, sess *session) {
	start := time.Now()
	q := r.URL.Query()
	var (
		surface *render.Surface
		err     error
	)
	if q.Has("page") || q.Has("scale") {
		st := sess.tool.State()
		page, scale := st.PageNumber, st.ScaleFactor
		if v := q.Get("page"); v != "" {
			if page, err = strconv.Atoi(v); err != nil {
				s.writeError(w, fmt.Errorf("%w: page must be an integer", errBadRequest))
				return
			}
		}
		if v := q.Get("scale"); v != "" {
			if scale, err = strconv.ParseFloat(v, 64); err != nil {
				s.writeError(w, fmt.Errorf("%w: scale must be a number", errBadRequest))
				return
			}
		}
		surface, err = sess.tool.RenderAt(page, scale)
	} else {
		surface, err = sess.tool.Render()
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	maxEdge := 0
	if v := q.Get("max"); v != "" {
		if maxEdge, err = strconv.Atoi(v); err != nil || maxEdge < 0 {
			s.writeError(w, fmt.Errorf("%w: max must be a non-negative integer", errBadRequest))
			return
		}
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Page", strconv.Itoa(surface.Page))
	w.Header().Set("X-Scale", strconv.FormatFloat(surface.Scale, 'f', -1, 64))
	if err := render.EncodePNG(w, render.Thumbnail(surface, maxEdge)); err != nil {
		s.logger.Warn("writing page image", observability.Error("error", err))
		return
	}
	s.metrics.renderDuration.Observe(time.Since(start).Seconds())
}

type navigateRequest struct {
	Offset int `json:"offset"`
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request, sess *session) {
	var req navigateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := sess.tool.Navigate(req.Offset); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.state())
}

type zoomRequest struct {
	Delta float64 `json:"delta"`
}

func (s *Server) handleZoom(w http.ResponseWriter, r *http.Request, sess *session) {
	var req zoomRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := sess.tool.Zoom(req.Delta); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.state())
}

// clickRequest is a click in pixels. Page and Scale, when set, name the view
// the client clicked on; a click on a view the session has left is rejected.
type clickRequest struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Page  int     `json:"page,omitempty"`
	Scale float64 `json:"scale,omitempty"`
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request, sess *session) {
	var req clickRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	sel, err := s.click(sess, req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sel)
}

// click applies req and fails if placing an anchor could not be saved.
func (s *Server) click(sess *session, req clickRequest) (capture.Selection, error) {
	failures := sess.storeFailureCount()
	var (
		sel capture.Selection
		err error
	)
	if req.Page == 0 && req.Scale == 0 {
		sel, err = sess.tool.Click(req.X, req.Y)
	} else {
		st := sess.tool.State()
		if req.Page == 0 {
			req.Page = st.PageNumber
		}
		if req.Scale == 0 {
			req.Scale = st.ScaleFactor
		}
		sel, err = sess.tool.ClickView(req.Page, req.Scale, req.X, req.Y)
	}
	if err != nil {
		return sel, err
	}
	if err := sess.storeErrorSince(failures); err != nil {
		return sel, fmt.Errorf("saving anchor: %w", err)
	}
	return sel, nil
}

func (s *Server) handleSelections(w http.ResponseWriter, r *http.Request, sess *session) {
	writeJSON(w, http.StatusOK, sess.Selections())
}

type armRequest struct {
	Kind  string `json:"kind"`
	Label string `json:"label"`
}

// handleArm arms the designer so the next click places an anchor. An empty
// kind disarms it.
func (s *Server) handleArm(w http.ResponseWriter, r *http.Request, sess *session) {
	var req armRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.arm(sess, req.Kind, req.Label); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.state())
}

func (s *Server) arm(sess *session, kind, label string) error {
	if kind == "" {
		sess.designer.Disarm()
		return nil
	}
	k, err := workflow.ParseAnchorKind(kind)
	if err != nil {
		return err
	}
	return sess.designer.Arm(k, label)
}

func (s *Server) handleAnchors(w http.ResponseWriter, r *http.Request, sess *session) {
	step := sess.designer.Step()
	if step.Anchors == nil {
		step.Anchors = []workflow.Anchor{}
	}
	writeJSON(w, http.StatusOK, step)
}

func (s *Server) handleRemoveAnchor(w http.ResponseWriter, r *http.Request, sess *session) {
	id := r.PathValue("anchor")
	var page int
	for _, a := range sess.designer.Step().Anchors {
		if a.ID == id {
			page = a.Page
		}
	}
	if !sess.designer.Remove(id) {
		s.writeError(w, fmt.Errorf("anchor %s: %w", id, workflow.ErrNotFound))
		return
	}
	sess.refreshMarkers(page)
	failures := sess.storeFailureCount()
	s.persistAnchor(sess, func(st *workflow.Step) { st.RemoveAnchor(id) })
	if err := sess.storeErrorSince(failures); err != nil {
		s.writeError(w, fmt.Errorf("saving anchor removal: %w", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
