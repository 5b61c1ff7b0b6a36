package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/wudi/pdfcapture/filters"
	"github.com/wudi/pdfcapture/ir/raw"
	"github.com/wudi/pdfcapture/observability"
	"github.com/wudi/pdfcapture/recovery"
	"github.com/wudi/pdfcapture/scanner"
	"github.com/wudi/pdfcapture/security"
)

var (
	ErrNoStartXRef = errors.New("startxref not found")
	ErrBadXRef     = errors.New("invalid cross-reference data")
)

type Kind int

const (
	Free Kind = iota
	InUse
	Compressed // stored inside an object stream
)

type Entry struct {
	Kind   Kind
	Offset int64 // InUse: byte offset of "n g obj"
	Gen    int
	Stream int // Compressed: object number of the containing object stream
	Index  int // Compressed: index within the object stream
}

// Table holds the merged cross-reference information of a document.
type Table struct {
	entries  map[int]Entry
	Trailer  raw.Dict
	Repaired bool
	Sections int
}

func newTable() *Table { return &Table{entries: make(map[int]Entry)} }

func (t *Table) Lookup(objNum int) (Entry, bool) {
	e, ok := t.entries[objNum]
	if !ok || e.Kind == Free {
		return Entry{}, false
	}
	return e, true
}

func (t *Table) Objects() []int {
	out := make([]int, 0, len(t.entries))
	for k, e := range t.entries {
		if e.Kind != Free {
			out = append(out, k)
		}
	}
	sort.Ints(out)
	return out
}

// add keeps the first entry seen: sections are visited newest first.
func (t *Table) add(num int, e Entry) {
	if _, ok := t.entries[num]; !ok {
		t.entries[num] = e
	}
}

func (t *Table) mergeTrailer(d raw.Dict) {
	if t.Trailer == nil {
		t.Trailer = raw.Dict{}
	}
	for k, v := range d {
		if _, ok := t.Trailer[k]; !ok {
			t.Trailer[k] = v
		}
	}
}

type ResolverConfig struct {
	Limits   security.Limits
	Recovery recovery.Strategy
	Filters  *filters.Pipeline
	Logger   observability.Logger
}

// Resolver locates and parses xref information in a PDF.
type Resolver struct {
	cfg ResolverConfig
}

func NewResolver(cfg ResolverConfig) *Resolver {
	cfg.Limits = cfg.Limits.WithDefaults()
	if cfg.Recovery == nil {
		cfg.Recovery = recovery.NewStrictStrategy()
	}
	if cfg.Filters == nil {
		cfg.Filters = filters.NewDefault(filters.Limits{MaxDecompressedSize: cfg.Limits.MaxDecompressedSize})
	}
	cfg.Logger = observability.OrNop(cfg.Logger)
	return &Resolver{cfg: cfg}
}

// Resolve reads the cross-reference chain starting at startxref. When it is
// damaged and the recovery strategy allows, the table is rebuilt by scanning
// the whole file.
func (r *Resolver) Resolve(ctx context.Context, data []byte) (*Table, error) {
	t, off, err := r.resolveChain(ctx, data)
	if err == nil && t.Trailer["Root"] == nil {
		err = fmt.Errorf("%w: trailer has no /Root", ErrBadXRef)
	}
	if err == nil {
		return t, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	action := r.cfg.Recovery.OnError(ctx, err, recovery.Location{ByteOffset: off, Component: "xref"})
	if action == recovery.ActionFail {
		return nil, err
	}
	repaired, rerr := r.repair(ctx, data)
	if rerr != nil {
		return nil, fmt.Errorf("%w (repair: %v)", err, rerr)
	}
	r.cfg.Logger.Info("rebuilt cross-reference table", observability.Int("objects", len(repaired.entries)))
	return repaired, nil
}

func (r *Resolver) resolveChain(ctx context.Context, data []byte) (*Table, int64, error) {
	off, err := findStartXRef(data)
	if err != nil {
		return nil, 0, err
	}
	t := newTable()
	visited := make(map[int64]bool)
	for depth := 0; off > 0 || depth == 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, off, err
		}
		if depth >= r.cfg.Limits.MaxXRefDepth {
			return nil, off, fmt.Errorf("xref chain: %w", security.ErrLimitExceeded)
		}
		if visited[off] {
			break
		}
		visited[off] = true
		trailer, err := r.readSection(ctx, data, off, t)
		if err != nil {
			return nil, off, err
		}
		t.Sections++
		t.mergeTrailer(trailer)

		// Hybrid files: the /XRefStm stream takes precedence over /Prev.
		if stm, ok := trailer.Int("XRefStm"); ok && !visited[stm] {
			visited[stm] = true
			if _, err := r.readSection(ctx, data, stm, t); err != nil {
				return nil, stm, err
			}
		}
		prev, ok := trailer.Int("Prev")
		if !ok {
			break
		}
		off = prev
	}
	return t, off, nil
}

func findStartXRef(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, ErrNoStartXRef
	}
	s := scanner.New(data[idx+len("startxref"):], scanner.Config{})
	tok, err := s.Next()
	if err != nil || tok.Type != scanner.TokenNumber || !tok.IsInt {
		return 0, fmt.Errorf("%w: no offset after startxref", ErrBadXRef)
	}
	if tok.Int <= 0 || tok.Int >= int64(len(data)) {
		return 0, fmt.Errorf("%w: xref offset out of range: %d", ErrBadXRef, tok.Int)
	}
	return tok.Int, nil
}

func (r *Resolver) readSection(ctx context.Context, data []byte, off int64, t *Table) (raw.Dict, error) {
	if off < 0 || off >= int64(len(data)) {
		return nil, fmt.Errorf("%w: section offset %d out of range", ErrBadXRef, off)
	}
	s := scanner.New(data, scanner.Config{})
	if err := s.Seek(off); err != nil {
		return nil, err
	}
	tok, err := s.Peek()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadXRef, err)
	}
	if tok.IsKeyword("xref") {
		_, _ = s.Next()
		return readTable(s, t)
	}
	return r.readStream(ctx, s, t)
}

func readTable(s *scanner.Scanner, t *Table) (raw.Dict, error) {
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, fmt.Errorf("%w: unterminated xref table", ErrBadXRef)
		}
		if tok.IsKeyword("trailer") {
			obj, err := raw.NewReader(s, nil).ReadObject()
			if err != nil {
				return nil, fmt.Errorf("%w: trailer: %v", ErrBadXRef, err)
			}
			d, ok := obj.(raw.Dict)
			if !ok {
				return nil, fmt.Errorf("%w: trailer is not a dictionary", ErrBadXRef)
			}
			return d, nil
		}
		countTok, err := s.Next()
		if err != nil || tok.Type != scanner.TokenNumber || countTok.Type != scanner.TokenNumber {
			return nil, fmt.Errorf("%w: invalid subsection header at %d", ErrBadXRef, tok.Pos)
		}
		start, count := int(tok.Int), int(countTok.Int)
		for i := 0; i < count; i++ {
			offTok, err1 := s.Next()
			genTok, err2 := s.Next()
			kind, err3 := s.Next()
			if err1 != nil || err2 != nil || err3 != nil || offTok.Type != scanner.TokenNumber || genTok.Type != scanner.TokenNumber || kind.Type != scanner.TokenKeyword {
				return nil, fmt.Errorf("%w: invalid entry for object %d", ErrBadXRef, start+i)
			}
			switch kind.Str {
			case "n":
				t.add(start+i, Entry{Kind: InUse, Offset: offTok.Int, Gen: int(genTok.Int)})
			case "f":
				t.add(start+i, Entry{Kind: Free})
			default:
				return nil, fmt.Errorf("%w: entry type %q", ErrBadXRef, kind.Str)
			}
		}
	}
}

func (r *Resolver) readStream(ctx context.Context, s *scanner.Scanner, t *Table) (raw.Dict, error) {
	_, obj, err := raw.NewReader(s, nil).ReadIndirect()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadXRef, err)
	}
	stm, ok := obj.(*raw.Stream)
	if !ok {
		return nil, fmt.Errorf("%w: expected xref stream", ErrBadXRef)
	}
	if typ, _ := stm.Dict.Name("Type"); typ != "XRef" {
		return nil, fmt.Errorf("%w: stream type %q", ErrBadXRef, typ)
	}
	decoded, err := r.cfg.Filters.DecodeStream(ctx, stm)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadXRef, err)
	}

	w, err := intArray(stm.Dict["W"])
	if err != nil || len(w) != 3 {
		return nil, fmt.Errorf("%w: invalid /W", ErrBadXRef)
	}
	for _, n := range w {
		if n < 0 || n > 8 {
			return nil, fmt.Errorf("%w: invalid /W width %d", ErrBadXRef, n)
		}
	}
	index, err := intArray(stm.Dict["Index"])
	if err != nil || len(index) == 0 {
		size, ok := stm.Dict.Int("Size")
		if !ok {
			return nil, fmt.Errorf("%w: xref stream without /Size", ErrBadXRef)
		}
		index = []int{0, int(size)}
	}
	if len(index)%2 != 0 {
		return nil, fmt.Errorf("%w: odd /Index", ErrBadXRef)
	}

	entrySize := w[0] + w[1] + w[2]
	if entrySize == 0 {
		return nil, fmt.Errorf("%w: zero-width entries", ErrBadXRef)
	}
	pos := 0
	for i := 0; i < len(index); i += 2 {
		start, count := index[i], index[i+1]
		for j := 0; j < count; j++ {
			if pos+entrySize > len(decoded) {
				return stm.Dict, nil
			}
			row := decoded[pos : pos+entrySize]
			pos += entrySize
			typ := 1
			if w[0] > 0 {
				typ = int(field(row, 0, w[0]))
			}
			f2 := field(row, w[0], w[1])
			f3 := field(row, w[0]+w[1], w[2])
			switch typ {
			case 0:
				t.add(start+j, Entry{Kind: Free})
			case 1:
				t.add(start+j, Entry{Kind: InUse, Offset: f2, Gen: int(f3)})
			case 2:
				t.add(start+j, Entry{Kind: Compressed, Stream: int(f2), Index: int(f3)})
			}
		}
	}
	return stm.Dict, nil
}

func field(row []byte, off, width int) int64 {
	var v int64
	for i := 0; i < width; i++ {
		v = v<<8 | int64(row[off+i])
	}
	return v
}

func intArray(o raw.Object) ([]int, error) {
	arr, ok := o.(raw.Array)
	if !ok {
		return nil, errors.New("not an array")
	}
	out := make([]int, len(arr))
	for i, item := range arr {
		n, ok := item.(raw.Number)
		if !ok {
			return nil, errors.New("non-numeric element " + strconv.Itoa(i))
		}
		out[i] = int(n.Int())
	}
	return out, nil
}
