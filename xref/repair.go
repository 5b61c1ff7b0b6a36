package xref

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strconv"

	"github.com/wudi/pdfcapture/ir/raw"
	"github.com/wudi/pdfcapture/scanner"
)

var objHeader = regexp.MustCompile(`(\d+)[\x00\t\n\f\r ]+(\d+)[\x00\t\n\f\r ]+obj\b`)

// repair scans the entire file to reconstruct the xref table.
// It looks for "<num> <gen> obj" patterns and "trailer" dictionaries; objects
// packed in object streams are indexed from the streams it finds.
func (r *Resolver) repair(ctx context.Context, data []byte) (*Table, error) {
	t := newTable()
	t.Repaired = true

	direct := make(map[int]Entry)
	for _, m := range objHeader.FindAllSubmatchIndex(data, -1) {
		if m[0] > 0 && !scanner.IsWhitespace(data[m[0]-1]) && !isDelim(data[m[0]-1]) {
			// Glued to a preceding token, as in "x1 0 obj".
			continue
		}
		num, err1 := strconv.Atoi(string(data[m[2]:m[3]]))
		gen, err2 := strconv.Atoi(string(data[m[4]:m[5]]))
		if err1 != nil || err2 != nil {
			continue
		}
		// Later definitions win, as with incremental updates.
		direct[num] = Entry{Kind: InUse, Offset: int64(m[0]), Gen: gen}
	}
	if len(direct) == 0 {
		return nil, errors.New("repair failed: no objects found")
	}
	for num, e := range direct {
		t.entries[num] = e
	}

	var catalog raw.Ref
	var xrefTrailer raw.Dict
	for num, e := range direct {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s := scanner.New(data, scanner.Config{})
		if err := s.Seek(e.Offset); err != nil {
			continue
		}
		_, obj, err := raw.NewReader(s, nil).ReadIndirect()
		if err != nil {
			continue
		}
		switch o := obj.(type) {
		case raw.Dict:
			if typ, _ := o.Name("Type"); typ == "Catalog" {
				catalog = raw.NewRef(num, e.Gen)
			}
		case *raw.Stream:
			switch typ, _ := o.Dict.Name("Type"); typ {
			case "ObjStm":
				r.indexObjectStream(ctx, t, num, o)
			case "XRef":
				if xrefTrailer == nil || o.Dict["Root"] != nil {
					xrefTrailer = o.Dict
				}
			}
		}
	}

	trailer := lastTrailer(data)
	if trailer == nil && xrefTrailer != nil {
		trailer = raw.Dict{}
		for _, k := range []string{"Root", "Info", "ID", "Encrypt"} {
			if v, ok := xrefTrailer[k]; ok {
				trailer[k] = v
			}
		}
	}
	if trailer == nil {
		trailer = raw.Dict{}
	}
	if _, ok := trailer["Root"]; !ok && catalog.Num > 0 {
		trailer["Root"] = catalog
	}
	if _, ok := trailer["Root"]; !ok {
		return nil, errors.New("repair failed: no document catalog")
	}
	trailer["Size"] = raw.Int(int64(maxKey(t.entries) + 1))
	t.Trailer = trailer
	return t, nil
}

func (r *Resolver) indexObjectStream(ctx context.Context, t *Table, num int, s *raw.Stream) {
	data, err := r.cfg.Filters.DecodeStream(ctx, s)
	if err != nil {
		return
	}
	n, _ := s.Dict.Int("N")
	first, _ := s.Dict.Int("First")
	if n <= 0 || first <= 0 || int(first) > len(data) {
		return
	}
	sc := scanner.New(data[:first], scanner.Config{})
	for i := 0; i < int(n); i++ {
		objTok, err1 := sc.Next()
		_, err2 := sc.Next()
		if err1 != nil || err2 != nil || objTok.Type != scanner.TokenNumber {
			return
		}
		if _, ok := t.entries[int(objTok.Int)]; !ok {
			t.entries[int(objTok.Int)] = Entry{Kind: Compressed, Stream: num, Index: i}
		}
	}
}

func lastTrailer(data []byte) raw.Dict {
	rest := data
	for {
		idx := bytes.LastIndex(rest, []byte("trailer"))
		if idx < 0 {
			return nil
		}
		s := scanner.New(data[idx+len("trailer"):], scanner.Config{})
		if obj, err := raw.NewReader(s, nil).ReadObject(); err == nil {
			if d, ok := obj.(raw.Dict); ok && d["Root"] != nil {
				return d
			}
		}
		rest = data[:idx]
	}
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func maxKey(m map[int]Entry) int {
	out := 0
	for k := range m {
		if k > out {
			out = k
		}
	}
	return out
}
