package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/wudi/pdfcapture/coords"
	"github.com/wudi/pdfcapture/filters"
	"github.com/wudi/pdfcapture/ir/raw"
	"github.com/wudi/pdfcapture/observability"
	"github.com/wudi/pdfcapture/recovery"
	"github.com/wudi/pdfcapture/scanner"
	"github.com/wudi/pdfcapture/security"
	"github.com/wudi/pdfcapture/xref"
)

var (
	ErrNotPDF         = errors.New("not a pdf file")
	ErrEncrypted      = errors.New("encrypted documents are not supported")
	ErrNoPages        = errors.New("document has no pages")
	ErrObjectNotFound = errors.New("object not found")
	ErrCycle          = errors.New("reference cycle")
	ErrPageRange      = errors.New("page out of range")
)

type Config struct {
	Limits   security.Limits
	Recovery recovery.Strategy
	Logger   observability.Logger
	Tracer   observability.Tracer
}

// Document is a parsed PDF reduced to what page display needs: the page list
// with effective boxes and rotation, plus document information.
type Document struct {
	Version string
	Info    Info
	Pages   []Page

	data    []byte
	xref    *xref.Table
	filters *filters.Pipeline
	cfg     Config

	mu        sync.Mutex
	cache     map[int]raw.Object
	objStms   map[int]*objectStream
	resolving map[int]bool
}

type Info struct {
	Title    string
	Author   string
	Subject  string
	Creator  string
	Producer string
}

// Page holds the effective (inherited) display attributes of a page.
type Page struct {
	Number   int // 1-based
	MediaBox coords.Rect
	CropBox  coords.Rect
	Rotate   int // 0, 90, 180 or 270
}

// VisibleBox is the crop box clipped to the media box.
func (p Page) VisibleBox() coords.Rect {
	v := p.CropBox.Intersect(p.MediaBox)
	if v.Empty() {
		return p.MediaBox.Normalize()
	}
	return v
}

// DisplaySize is the size in points of the visible box after rotation.
func (p Page) DisplaySize() (w, h float64) {
	return coords.DisplaySize(p.VisibleBox(), p.Rotate)
}

// Open reads the whole document from r, bounded by Limits.MaxFileSize.
func Open(ctx context.Context, r io.Reader, cfg Config) (*Document, error) {
	limits := cfg.Limits.WithDefaults()
	data, err := io.ReadAll(io.LimitReader(r, limits.MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	if int64(len(data)) > limits.MaxFileSize {
		return nil, fmt.Errorf("file larger than %d bytes: %w", limits.MaxFileSize, security.ErrLimitExceeded)
	}
	return Parse(ctx, data, cfg)
}

// Parse resolves the cross-reference data, the catalog and the page tree.
func Parse(ctx context.Context, data []byte, cfg Config) (*Document, error) {
	cfg.Limits = cfg.Limits.WithDefaults()
	cfg.Logger = observability.OrNop(cfg.Logger)
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NopTracer()
	}
	if cfg.Recovery == nil {
		cfg.Recovery = recovery.NewLenientStrategy(cfg.Logger)
	}
	if int64(len(data)) > cfg.Limits.MaxFileSize {
		return nil, fmt.Errorf("file larger than %d bytes: %w", cfg.Limits.MaxFileSize, security.ErrLimitExceeded)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Limits.MaxParseTime)
	defer cancel()
	ctx, span := cfg.Tracer.StartSpan(ctx, observability.SpanDocumentLoad)
	defer span.Finish()

	version, err := headerVersion(data)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	fp := filters.NewDefault(filters.Limits{MaxDecompressedSize: cfg.Limits.MaxDecompressedSize})
	_, xspan := cfg.Tracer.StartSpan(ctx, observability.SpanXRefResolve)
	table, err := xref.NewResolver(xref.ResolverConfig{
		Limits:   cfg.Limits,
		Recovery: cfg.Recovery,
		Filters:  fp,
		Logger:   cfg.Logger,
	}).Resolve(ctx, data)
	xspan.Finish()
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("xref: %w", err)
	}

	d := &Document{
		Version:   version,
		data:      data,
		xref:      table,
		filters:   fp,
		cfg:       cfg,
		cache:     make(map[int]raw.Object),
		objStms:   make(map[int]*objectStream),
		resolving: make(map[int]bool),
	}
	if _, ok := table.Trailer["Encrypt"]; ok {
		span.SetError(ErrEncrypted)
		return nil, ErrEncrypted
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.Info = d.readInfo()
	if err := d.readPages(ctx); err != nil {
		span.SetError(err)
		return nil, err
	}
	span.SetTag("pages", len(d.Pages))
	span.SetTag("repaired", table.Repaired)
	cfg.Logger.Debug("parsed pdf",
		observability.String("version", version),
		observability.Int("pages", len(d.Pages)),
		observability.Int("objects", len(table.Objects())),
	)
	return d, nil
}

func headerVersion(data []byte) (string, error) {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	idx := bytes.Index(head, []byte("%PDF-"))
	if idx < 0 {
		return "", ErrNotPDF
	}
	v := head[idx+5:]
	end := 0
	for end < len(v) && end < 4 && (v[end] == '.' || (v[end] >= '0' && v[end] <= '9')) {
		end++
	}
	return string(v[:end]), nil
}

func (d *Document) NumPages() int { return len(d.Pages) }

// Page returns page n (1-based).
func (d *Document) Page(n int) (Page, error) {
	if n < 1 || n > len(d.Pages) {
		return Page{}, fmt.Errorf("%w: %d of %d", ErrPageRange, n, len(d.Pages))
	}
	return d.Pages[n-1], nil
}

// Repaired reports whether the cross-reference table had to be rebuilt.
func (d *Document) Repaired() bool { return d.xref.Repaired }

// Resolve follows indirect references until it reaches a direct object.
func (d *Document) Resolve(obj raw.Object) (raw.Object, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resolve(obj)
}

func (d *Document) resolve(obj raw.Object) (raw.Object, error) {
	if obj == nil {
		return raw.Null{}, nil
	}
	for i := 0; i <= d.cfg.Limits.MaxIndirectDepth; i++ {
		ref, ok := obj.(raw.Ref)
		if !ok {
			return obj, nil
		}
		next, err := d.object(ref.Num)
		if err != nil {
			return nil, err
		}
		obj = next
	}
	return nil, fmt.Errorf("indirect depth: %w", security.ErrLimitExceeded)
}

func (d *Document) object(num int) (raw.Object, error) {
	if obj, ok := d.cache[num]; ok {
		return obj, nil
	}
	if d.resolving[num] {
		return nil, fmt.Errorf("%w at object %d", ErrCycle, num)
	}
	entry, ok := d.xref.Lookup(num)
	if !ok {
		// Undefined references resolve to null per ISO 32000-1, 7.3.10.
		return raw.Null{}, nil
	}
	d.resolving[num] = true
	defer delete(d.resolving, num)

	var obj raw.Object
	var err error
	switch entry.Kind {
	case xref.InUse:
		obj, err = d.readAt(num, entry.Offset)
	case xref.Compressed:
		obj, err = d.readCompressed(entry.Stream, entry.Index)
	default:
		err = fmt.Errorf("%w: %d", ErrObjectNotFound, num)
	}
	if err != nil {
		return nil, err
	}
	d.cache[num] = obj
	return obj, nil
}

func (d *Document) readAt(num int, offset int64) (raw.Object, error) {
	s := scanner.New(d.data, scanner.Config{})
	if err := s.Seek(offset); err != nil {
		return nil, fmt.Errorf("object %d: %w", num, err)
	}
	ref, obj, err := raw.NewReader(s, d.streamLength).ReadIndirect()
	if err != nil {
		return nil, err
	}
	if ref.Num != num {
		return nil, fmt.Errorf("%w: xref points object %d at %d, found %s", ErrObjectNotFound, num, offset, ref)
	}
	return obj, nil
}

func (d *Document) streamLength(o raw.Object) (int64, bool) {
	resolved, err := d.resolve(o)
	if err != nil {
		return 0, false
	}
	n, ok := resolved.(raw.Number)
	return n.Int(), ok
}

func (d *Document) readInfo() Info {
	obj, err := d.resolve(d.xref.Trailer["Info"])
	if err != nil {
		return Info{}
	}
	dict, ok := obj.(raw.Dict)
	if !ok {
		return Info{}
	}
	str := func(key string) string {
		v, err := d.resolve(dict[key])
		if err != nil {
			return ""
		}
		s, _ := v.(raw.String)
		return decodeText(s.Bytes)
	}
	return Info{
		Title:    str("Title"),
		Author:   str("Author"),
		Subject:  str("Subject"),
		Creator:  str("Creator"),
		Producer: str("Producer"),
	}
}

// decodeText handles UTF-16BE text strings; anything else is passed through.
func decodeText(b []byte) string {
	if len(b) >= 2 && b[0] == 0xfe && b[1] == 0xff {
		runes := make([]rune, 0, (len(b)-2)/2)
		for i := 2; i+1 < len(b); i += 2 {
			r := rune(b[i])<<8 | rune(b[i+1])
			if r >= 0xd800 && r < 0xdc00 && i+3 < len(b) {
				lo := rune(b[i+2])<<8 | rune(b[i+3])
				r = 0x10000 + (r-0xd800)<<10 + (lo - 0xdc00)
				i += 2
			}
			runes = append(runes, r)
		}
		return string(runes)
	}
	return string(b)
}
