// Package server exposes capture sessions over HTTP: a JSON API and a small
// HTML viewer whose page image reports clicks back to the server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/netutil"

	"github.com/wudi/pdfcapture/capture"
	"github.com/wudi/pdfcapture/observability"
	"github.com/wudi/pdfcapture/recovery"
	"github.com/wudi/pdfcapture/render"
	"github.com/wudi/pdfcapture/security"
	"github.com/wudi/pdfcapture/workflow"
)

var (
	ErrTooManySessions = errors.New("too many open sessions")
	ErrSessionNotFound = errors.New("session not found")
)

type Config struct {
	MaxConnections int
	MaxSessions    int
	SessionTTL     time.Duration
	AllowPaths     bool
	AllowURLs      bool
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	CacheSize      int
	Limits         security.Limits

	// NewRecovery returns the recovery strategy for one document load.
	NewRecovery func(observability.Logger) recovery.Strategy
	// Store, when set, lets sessions edit the anchors of stored workflow steps.
	Store    *workflow.Store
	Client   *http.Client
	Logger   observability.Logger
	Registry *prometheus.Registry
}

type Server struct {
	cfg     Config
	logger  observability.Logger
	metrics *metrics
	mux     *http.ServeMux
	now     func() time.Time

	// base outlives requests: document loads run on it.
	base   context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*session
}

func New(cfg Config) *Server {
	cfg.Limits = cfg.Limits.WithDefaults()
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 64
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	if cfg.NewRecovery == nil {
		cfg.NewRecovery = func(l observability.Logger) recovery.Strategy { return recovery.NewLenientStrategy(l) }
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	base, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		logger:   observability.OrNop(cfg.Logger),
		metrics:  newMetrics(cfg.Registry),
		mux:      http.NewServeMux(),
		now:      time.Now,
		base:     base,
		cancel:   cancel,
		sessions: make(map[string]*session),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.Registry, promhttp.HandlerOpts{}))

	s.mux.HandleFunc("POST /sessions", s.handleCreate)
	s.mux.HandleFunc("GET /sessions", s.handleList)
	s.mux.HandleFunc("GET /sessions/{id}", s.withSession(s.handleState))
	s.mux.HandleFunc("DELETE /sessions/{id}", s.withSession(s.handleClose))
	s.mux.HandleFunc("GET /sessions/{id}/page.png", s.withSession(s.handlePage))
	s.mux.HandleFunc("POST /sessions/{id}/navigate", s.withSession(s.handleNavigate))
	s.mux.HandleFunc("POST /sessions/{id}/zoom", s.withSession(s.handleZoom))
	s.mux.HandleFunc("POST /sessions/{id}/click", s.withSession(s.handleClick))
	s.mux.HandleFunc("GET /sessions/{id}/selections", s.withSession(s.handleSelections))
	s.mux.HandleFunc("POST /sessions/{id}/arm", s.withSession(s.handleArm))
	s.mux.HandleFunc("GET /sessions/{id}/anchors", s.withSession(s.handleAnchors))
	s.mux.HandleFunc("DELETE /sessions/{id}/anchors/{anchor}", s.withSession(s.handleRemoveAnchor))

	s.mux.HandleFunc("GET /sessions/{id}/view", s.withSession(s.handleView))
	s.mux.HandleFunc("POST /sessions/{id}/view/{action}", s.withSession(s.handleViewAction))
}

func (s *Server) Handler() http.Handler { return s.mux }

// Serve accepts connections on ln until ctx is done, then shuts down and
// closes every session.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}
	srv := &http.Server{
		Handler:      s.mux,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	go s.expireLoop(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("viewer listening", observability.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Close closes every open session and cancels loads in flight.
func (s *Server) Close() {
	s.mu.Lock()
	open := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()
	for _, sess := range open {
		s.closeSession(sess.id)
	}
	s.cancel()
}

func (s *Server) expireLoop(ctx context.Context) {
	interval := max(s.cfg.SessionTTL/4, time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ExpireIdle()
		}
	}
}

// ExpireIdle closes sessions idle for longer than the session TTL and returns
// how many it closed.
func (s *Server) ExpireIdle() int {
	cutoff := s.now().Add(-s.cfg.SessionTTL)
	s.mu.Lock()
	var idle []string
	for id, sess := range s.sessions {
		if sess.idleSince().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	s.mu.Unlock()

	n := 0
	for _, id := range idle {
		if s.closeSession(id) {
			n++
			s.metrics.expired.Inc()
			s.logger.Info("session expired", observability.String("session", id))
		}
	}
	return n
}

type openRequest struct {
	Path     string
	URL      string
	Data     []byte
	Name     string
	Workflow string
	Step     string
}

func (s *Server) open(req openRequest) (*session, error) {
	h := render.Handle{Path: req.Path, URL: req.URL, Data: req.Data, Name: req.Name}
	source := "upload"
	switch {
	case req.Data != nil:
	case req.Path != "":
		if !s.cfg.AllowPaths {
			return nil, fmt.Errorf("%w: opening server paths is disabled", errForbidden)
		}
		source = "path"
	case req.URL != "":
		if !s.cfg.AllowURLs {
			return nil, fmt.Errorf("%w: opening urls is disabled", errForbidden)
		}
		source = "url"
	default:
		return nil, fmt.Errorf("%w: no document", errBadRequest)
	}

	id := uuid.NewString()
	logger := s.logger.With(observability.String("session", id))
	step, wfID, err := s.lookupStep(req, id, h)
	if err != nil {
		return nil, err
	}

	if s.count() >= s.cfg.MaxSessions {
		return nil, ErrTooManySessions
	}
	sess := &session{
		id:         id,
		name:       h.String(),
		source:     source,
		created:    s.now(),
		lastUsed:   s.now(),
		workflowID: wfID,
		stepID:     step.ID,
	}
	sess.renderer = render.NewPDFRenderer(render.Config{
		Limits:    s.cfg.Limits,
		Recovery:  s.cfg.NewRecovery(logger),
		Logger:    logger,
		Client:    s.cfg.Client,
		CacheSize: s.cfg.CacheSize,
	})
	sess.renderer.Subscribe(render.ListenerFuncs{
		OnLoaded: func(n int) { s.metrics.documentPages.Observe(float64(n)) },
		OnFailed: func(error) { s.metrics.loadFailures.Inc() },
	})
	sess.designer = workflow.NewDesigner(step, logger, func(a workflow.Anchor) {
		sess.refreshMarkers(a.Page)
		s.persistAnchor(sess, func(st *workflow.Step) {
			if !slices.ContainsFunc(st.Anchors, func(b workflow.Anchor) bool { return b.ID == a.ID }) {
				st.AddAnchor(a)
			}
		})
	})
	for _, p := range anchorPages(step.Anchors) {
		sess.renderer.SetMarkers(p, step.Markers(p))
	}

	tool, err := capture.Open(s.base, capture.Config{
		Document: h,
		Renderer: sess.renderer,
		Logger:   logger,
		OnSelect: func(page int, x, y float64) {
			sess.recordSelection(capture.Selection{Page: page, X: x, Y: y})
			s.metrics.clicks.Inc()
			sess.designer.Select(page, x, y)
		},
		OnClose: func() { s.metrics.sessionsOpen.Dec() },
	})
	if err != nil {
		return nil, err
	}
	sess.tool = tool
	s.metrics.sessionsOpen.Inc()

	s.mu.Lock()
	if len(s.sessions) >= s.cfg.MaxSessions {
		s.mu.Unlock()
		tool.Close()
		return nil, ErrTooManySessions
	}
	s.sessions[id] = sess
	s.mu.Unlock()

	s.metrics.sessionsTotal.WithLabelValues(source).Inc()
	logger.Info("session opened", observability.String("document", sess.name), observability.String("source", source))
	return sess, nil
}

func (s *Server) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// lookupStep returns the step a session edits: a stored one when the request
// names a workflow and step, a fresh one otherwise.
func (s *Server) lookupStep(req openRequest, id string, h render.Handle) (*workflow.Step, string, error) {
	if req.Workflow == "" {
		return &workflow.Step{ID: id, Name: h.String(), Document: h.Path}, "", nil
	}
	if s.cfg.Store == nil {
		return nil, "", fmt.Errorf("%w: no workflow store configured", errBadRequest)
	}
	wf, ok := s.cfg.Store.Get(req.Workflow)
	if !ok {
		return nil, "", fmt.Errorf("workflow %s: %w", req.Workflow, workflow.ErrNotFound)
	}
	step, ok := wf.Step(req.Step)
	if !ok {
		return nil, "", fmt.Errorf("step %s: %w", req.Step, workflow.ErrNotFound)
	}
	st := step.Clone()
	return &st, wf.ID, nil
}

// persistAnchor applies one anchor change to the session's step in the
// workflow store. Changes merge into the stored step, so sessions editing the
// same step keep each other's anchors.
func (s *Server) persistAnchor(sess *session, change func(*workflow.Step)) {
	if sess.workflowID == "" || s.cfg.Store == nil {
		return
	}
	_, err := s.cfg.Store.Update(sess.workflowID, func(wf *workflow.Workflow) error {
		step, ok := wf.Step(sess.stepID)
		if !ok {
			return fmt.Errorf("step %s: %w", sess.stepID, workflow.ErrNotFound)
		}
		change(step)
		return nil
	})
	sess.recordStore(err)
	if err != nil {
		s.logger.Error("saving workflow",
			observability.String("workflow", sess.workflowID),
			observability.String("session", sess.id),
			observability.Error("error", err))
	}
}

func anchorPages(anchors []workflow.Anchor) []int {
	seen := make(map[int]bool)
	var pages []int
	for _, a := range anchors {
		if !seen[a.Page] {
			seen[a.Page] = true
			pages = append(pages, a.Page)
		}
	}
	sort.Ints(pages)
	return pages
}

func (s *Server) session(id string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Server) closeSession(id string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return false
	}
	sess.tool.Close()
	s.logger.Info("session closed", observability.String("session", id))
	return true
}

func (s *Server) list() []stateResponse {
	s.mu.Lock()
	open := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()
	sort.Slice(open, func(i, j int) bool { return open[i].created.Before(open[j].created) })
	out := make([]stateResponse, len(open))
	for i, sess := range open {
		out[i] = sess.state()
	}
	return out
}
