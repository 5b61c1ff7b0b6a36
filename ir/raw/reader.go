package raw

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/wudi/pdfcapture/scanner"
)

var ErrMalformed = errors.New("malformed object")

// LengthFunc resolves a stream /Length entry, which may be an indirect reference.
type LengthFunc func(Object) (int64, bool)

// Reader builds objects from a token stream.
type Reader struct {
	s        *scanner.Scanner
	length   LengthFunc
	maxDepth int
}

const defaultMaxNesting = 256

func NewReader(s *scanner.Scanner, length LengthFunc) *Reader {
	if length == nil {
		length = func(o Object) (int64, bool) {
			n, ok := o.(Number)
			return n.Int(), ok && n.IsInt
		}
	}
	return &Reader{s: s, length: length, maxDepth: defaultMaxNesting}
}

func (r *Reader) Scanner() *scanner.Scanner { return r.s }

// ReadObject reads one direct object; "n g R" sequences become Ref.
func (r *Reader) ReadObject() (Object, error) {
	return r.readObject(0)
}

func (r *Reader) readObject(depth int) (Object, error) {
	if depth > r.maxDepth {
		return nil, fmt.Errorf("%w: nesting deeper than %d", ErrMalformed, r.maxDepth)
	}
	tok, err := r.s.Next()
	if err != nil {
		return nil, err
	}
	switch tok.Type {
	case scanner.TokenNumber:
		if tok.IsInt && tok.Int >= 0 {
			if ref, ok := r.tryRef(tok); ok {
				return ref, nil
			}
		}
		return Number{I: tok.Int, F: tok.Float, IsInt: tok.IsInt}, nil
	case scanner.TokenName:
		return Name(tok.Str), nil
	case scanner.TokenString:
		return String{Bytes: tok.Bytes, Hex: tok.Hex}, nil
	case scanner.TokenBoolean:
		return Bool(tok.Bool), nil
	case scanner.TokenNull:
		return Null{}, nil
	case scanner.TokenArrayStart:
		return r.readArray(depth)
	case scanner.TokenDictStart:
		return r.readDict(depth)
	}
	return nil, fmt.Errorf("%w: unexpected %s %q at %d", ErrMalformed, tok.Type, tok.Str, tok.Pos)
}

func (r *Reader) tryRef(num scanner.Token) (Ref, bool) {
	pos := r.s.Position()
	gen, err := r.s.Next()
	if err == nil && gen.Type == scanner.TokenNumber && gen.IsInt && gen.Int >= 0 {
		kw, err := r.s.Next()
		if err == nil && kw.IsKeyword("R") {
			return Ref{Num: int(num.Int), Gen: int(gen.Int)}, true
		}
	}
	_ = r.s.Seek(pos)
	return Ref{}, false
}

func (r *Reader) readArray(depth int) (Object, error) {
	var arr Array
	for {
		tok, err := r.s.Peek()
		if err != nil {
			return nil, fmt.Errorf("%w: unterminated array: %v", ErrMalformed, err)
		}
		if tok.Type == scanner.TokenArrayEnd {
			_, _ = r.s.Next()
			return arr, nil
		}
		obj, err := r.readObject(depth + 1)
		if err != nil {
			return nil, err
		}
		arr = append(arr, obj)
	}
}

func (r *Reader) readDict(depth int) (Object, error) {
	dict := Dict{}
	for {
		tok, err := r.s.Next()
		if err != nil {
			return nil, fmt.Errorf("%w: unterminated dictionary: %v", ErrMalformed, err)
		}
		if tok.Type == scanner.TokenDictEnd {
			return dict, nil
		}
		if tok.Type != scanner.TokenName {
			return nil, fmt.Errorf("%w: dictionary key is %s at %d", ErrMalformed, tok.Type, tok.Pos)
		}
		next, err := r.s.Peek()
		if err != nil {
			return nil, fmt.Errorf("%w: unterminated dictionary: %v", ErrMalformed, err)
		}
		if next.Type == scanner.TokenDictEnd {
			// A key without a value is treated as null.
			continue
		}
		val, err := r.readObject(depth + 1)
		if err != nil {
			return nil, err
		}
		if _, isNull := val.(Null); !isNull {
			dict[tok.Str] = val
		}
	}
}

// ReadIndirect reads "n g obj ... endobj" at the current position, including
// stream data when the object is a stream.
func (r *Reader) ReadIndirect() (ObjectRef, Object, error) {
	num, err := r.s.Next()
	if err != nil {
		return ObjectRef{}, nil, err
	}
	gen, err := r.s.Next()
	if err != nil {
		return ObjectRef{}, nil, err
	}
	kw, err := r.s.Next()
	if err != nil {
		return ObjectRef{}, nil, err
	}
	if num.Type != scanner.TokenNumber || !num.IsInt || gen.Type != scanner.TokenNumber || !gen.IsInt || !kw.IsKeyword("obj") {
		return ObjectRef{}, nil, fmt.Errorf("%w: no object header at %d", ErrMalformed, num.Pos)
	}
	ref := ObjectRef{Num: int(num.Int), Gen: int(gen.Int)}

	obj, err := r.ReadObject()
	if err != nil {
		return ref, nil, fmt.Errorf("object %s: %w", ref, err)
	}

	next, err := r.s.Peek()
	if err == nil && next.IsKeyword("stream") {
		dict, ok := obj.(Dict)
		if !ok {
			return ref, nil, fmt.Errorf("%w: object %s: stream without dictionary", ErrMalformed, ref)
		}
		_, _ = r.s.Next()
		data, err := r.readStreamData(dict)
		if err != nil {
			return ref, nil, fmt.Errorf("object %s: %w", ref, err)
		}
		obj = &Stream{Dict: dict, Data: data}
		next, err = r.s.Peek()
	}
	if err == nil && next.IsKeyword("endobj") {
		_, _ = r.s.Next()
	}
	return ref, obj, nil
}

var endstream = []byte("endstream")

func (r *Reader) readStreamData(dict Dict) ([]byte, error) {
	r.s.SkipEOL()
	data := r.s.Data()
	start := int(r.s.Position())

	if l, ok := r.length(dict["Length"]); ok && l >= 0 && l <= int64(len(data)-start) {
		end := start + int(l)
		rest := bytes.TrimLeft(data[end:], "\r\n\t \x00\f")
		if bytes.HasPrefix(rest, endstream) {
			_ = r.s.Seek(int64(len(data)-len(rest)) + int64(len(endstream)))
			return data[start:end], nil
		}
	}

	// /Length missing or wrong: fall back to the endstream keyword.
	idx := bytes.Index(data[start:], endstream)
	if idx < 0 {
		return nil, fmt.Errorf("%w: stream at %d has no endstream", ErrMalformed, start)
	}
	end := start + idx
	if end > start && data[end-1] == '\n' {
		end--
	}
	if end > start && data[end-1] == '\r' {
		end--
	}
	_ = r.s.Seek(int64(start + idx + len(endstream)))
	return data[start:end], nil
}
