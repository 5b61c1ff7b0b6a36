package render

import (
	"context"
	"encoding/hex"
	"fmt"
	"math"
	"net/http"
	"runtime/debug"
	"sort"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/wudi/pdfcapture/observability"
	"github.com/wudi/pdfcapture/parser"
	"github.com/wudi/pdfcapture/recovery"
	"github.com/wudi/pdfcapture/security"
	"github.com/wudi/pdfcapture/units"
)

const defaultCacheSize = 32

type Config struct {
	Limits    security.Limits
	Recovery  recovery.Strategy
	Logger    observability.Logger
	Tracer    observability.Tracer
	Client    *http.Client
	CacheSize int // rendered surfaces kept; 0 means 32, negative disables
}

type cacheKey struct {
	fingerprint string
	page        int
	scale       float64
}

// PDFRenderer parses documents with the parser package and draws each page
// as a blank sheet with a millimeter grid, its border and any markers.
type PDFRenderer struct {
	cfg     Config
	parseFn func(context.Context, []byte, parser.Config) (*parser.Document, error)

	mu          sync.Mutex
	gen         int
	done        bool
	doc         *parser.Document
	fingerprint string
	loadErr     error
	subs        map[int]Listener
	nextSub     int
	markers     map[int][]Marker
	markerGen   int
	cache       map[cacheKey]*Surface
	order       []cacheKey
}

func NewPDFRenderer(cfg Config) *PDFRenderer {
	cfg.Limits = cfg.Limits.WithDefaults()
	cfg.Logger = observability.OrNop(cfg.Logger)
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NopTracer()
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = defaultCacheSize
	}
	return &PDFRenderer{
		cfg:     cfg,
		parseFn: parser.Parse,
		subs:    make(map[int]Listener),
		markers: make(map[int][]Marker),
		cache:   make(map[cacheKey]*Surface),
	}
}

type subscription struct {
	once sync.Once
	fn   func()
}

func (s *subscription) Unsubscribe() { s.once.Do(s.fn) }

// Subscribe registers l for load events. A listener subscribing after a load
// has completed is sent that outcome on a new goroutine.
func (r *PDFRenderer) Subscribe(l Listener) Subscription {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = l
	gen, done, pages, err := r.gen, r.done, r.numPagesLocked(), r.loadErr
	r.mu.Unlock()

	sub := &subscription{fn: func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}}
	if done {
		go r.deliver(id, gen, l, pages, err)
	}
	return sub
}

// Load parses h on a new goroutine. Each call supersedes the previous one and
// the result of a load still in flight is dropped.
func (r *PDFRenderer) Load(ctx context.Context, h Handle) {
	r.mu.Lock()
	r.gen++
	gen := r.gen
	r.done = false
	r.doc = nil
	r.loadErr = nil
	r.fingerprint = ""
	r.cache = make(map[cacheKey]*Surface)
	r.order = nil
	r.mu.Unlock()

	go r.load(ctx, gen, h)
}

func (r *PDFRenderer) load(ctx context.Context, gen int, h Handle) {
	logger := r.cfg.Logger.With(observability.String("document", h.String()))
	doc, fp, err := r.parse(ctx, h)

	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		logger.Debug("dropping superseded load")
		return
	}
	r.done = true
	r.doc, r.fingerprint, r.loadErr = doc, fp, err
	ids := make([]int, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]Listener, len(ids))
	for i, id := range ids {
		listeners[i] = r.subs[id]
	}
	pages := r.numPagesLocked()
	r.mu.Unlock()

	if err != nil {
		logger.Warn("document load failed", observability.Error("error", err))
	} else {
		logger.Info("document loaded", observability.Int("pages", pages))
	}
	// Listeners hear the outcome in subscription order.
	for i, l := range listeners {
		r.deliver(ids[i], gen, l, pages, err)
	}
}

func (r *PDFRenderer) parse(ctx context.Context, h Handle) (*parser.Document, string, error) {
	data, err := h.Open(ctx, r.cfg.Client, r.cfg.Limits.MaxFileSize)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", h, err)
	}
	doc, err := r.parseData(ctx, data)
	if err != nil {
		return nil, "", fmt.Errorf("parse %s: %w", h, err)
	}
	sum := blake2b.Sum256(data)
	return doc, hex.EncodeToString(sum[:]), nil
}

// parseData runs the parser and turns a panic on malformed input into
// ErrUnreadable.
func (r *PDFRenderer) parseData(ctx context.Context, data []byte) (doc *parser.Document, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.cfg.Logger.Error("parser panic",
				observability.String("panic", fmt.Sprint(p)),
				observability.String("stack", string(debug.Stack())))
			doc, err = nil, fmt.Errorf("%w: %v", ErrUnreadable, p)
		}
	}()
	return r.parseFn(ctx, data, parser.Config{
		Limits:   r.cfg.Limits,
		Recovery: r.cfg.Recovery,
		Logger:   r.cfg.Logger,
		Tracer:   r.cfg.Tracer,
	})
}

// deliver sends the outcome of load gen unless the listener has unsubscribed
// or a newer load has started meanwhile.
func (r *PDFRenderer) deliver(id, gen int, l Listener, pages int, err error) {
	r.mu.Lock()
	_, ok := r.subs[id]
	current := r.gen == gen
	r.mu.Unlock()
	if !ok || !current {
		return
	}
	if err != nil {
		l.Failed(err)
		return
	}
	l.Loaded(pages)
}

func (r *PDFRenderer) numPagesLocked() int {
	if r.doc == nil {
		return 0
	}
	return r.doc.NumPages()
}

// Fingerprint is the BLAKE2b-256 digest of the loaded document, hex encoded.
func (r *PDFRenderer) Fingerprint() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fingerprint
}

// Document returns the parsed document, or nil before a successful load.
func (r *PDFRenderer) Document() *parser.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc
}

func (r *PDFRenderer) page(n int) (parser.Page, string, error) {
	r.mu.Lock()
	doc, fp, err := r.doc, r.fingerprint, r.loadErr
	r.mu.Unlock()
	if doc == nil {
		if err != nil {
			return parser.Page{}, "", fmt.Errorf("%w: %v", ErrNotLoaded, err)
		}
		return parser.Page{}, "", ErrNotLoaded
	}
	p, perr := doc.Page(n)
	if perr != nil {
		return parser.Page{}, "", fmt.Errorf("%w: %v", ErrBadPage, perr)
	}
	return p, fp, nil
}

func (r *PDFRenderer) PageSize(n int) (PageSize, error) {
	p, _, err := r.page(n)
	if err != nil {
		return PageSize{}, err
	}
	w, h := p.DisplaySize()
	return PageSize{Width: w, Height: h, Box: p.VisibleBox(), Rotate: p.Rotate}, nil
}

// SetMarkers replaces the overlays drawn on page n.
func (r *PDFRenderer) SetMarkers(n int, markers []Marker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(markers) == 0 {
		delete(r.markers, n)
	} else {
		r.markers[n] = append([]Marker(nil), markers...)
	}
	r.markerGen++
	kept := r.order[:0]
	for _, k := range r.order {
		if k.page == n {
			delete(r.cache, k)
			continue
		}
		kept = append(kept, k)
	}
	r.order = kept
}

// RenderPage rasterizes page n (1-based). One point maps to
// scale*units.PixelsPerPoint pixels.
func (r *PDFRenderer) RenderPage(n int, scale float64) (*Surface, error) {
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return nil, fmt.Errorf("%w: %v", ErrBadScale, scale)
	}
	p, fp, err := r.page(n)
	if err != nil {
		return nil, err
	}
	key := cacheKey{fingerprint: fp, page: n, scale: scale}

	r.mu.Lock()
	if s, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return s, nil
	}
	markers := append([]Marker(nil), r.markers[n]...)
	markerGen := r.markerGen
	r.mu.Unlock()

	_, span := r.cfg.Tracer.StartSpan(context.Background(), observability.SpanPageRender)
	defer span.Finish()
	span.SetTag("page", n)
	span.SetTag("scale", scale)

	w, h := p.DisplaySize()
	pxW := int(math.Round(w * scale * units.PixelsPerPoint))
	pxH := int(math.Round(h * scale * units.PixelsPerPoint))
	if pxW < 1 || pxH < 1 {
		return nil, fmt.Errorf("page %d has an empty surface %dx%d", n, pxW, pxH)
	}
	if pxW > r.cfg.Limits.MaxSurfaceEdge || pxH > r.cfg.Limits.MaxSurfaceEdge {
		err := fmt.Errorf("surface %dx%d: %w", pxW, pxH, security.ErrLimitExceeded)
		span.SetError(err)
		return nil, err
	}

	s := &Surface{
		Page:   n,
		Scale:  scale,
		Width:  pxW,
		Height: pxH,
		Box:    p.VisibleBox(),
		Rotate: p.Rotate,
	}
	s.Image = drawPage(pxW, pxH, scale, markers)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fingerprint == fp && r.markerGen == markerGen && r.cfg.CacheSize > 0 {
		if _, ok := r.cache[key]; !ok {
			r.cache[key] = s
			r.order = append(r.order, key)
			for len(r.order) > r.cfg.CacheSize {
				delete(r.cache, r.order[0])
				r.order = r.order[1:]
			}
		}
	}
	return s, nil
}
