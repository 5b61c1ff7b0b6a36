package raw

import (
	"errors"
	"testing"

	"github.com/wudi/pdfcapture/scanner"
)

func readerFor(data string) *Reader {
	return NewReader(scanner.New([]byte(data), scanner.Config{}), nil)
}

func TestReadObject_Nested(t *testing.T) {
	obj, err := readerFor("<< /Type /Page /MediaBox [0 0 612.5 792] /Parent 2 0 R /Empty null /Kids [3 0 R 4 0 R] >>").ReadObject()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	d, ok := obj.(Dict)
	if !ok {
		t.Fatalf("expected dict, got %T", obj)
	}
	if name, _ := d.Name("Type"); name != "Page" {
		t.Fatalf("unexpected type %q", name)
	}
	box, ok := d["MediaBox"].(Array)
	if !ok || len(box) != 4 {
		t.Fatalf("unexpected media box %#v", d["MediaBox"])
	}
	if f, _ := Float(box[2]); f != 612.5 {
		t.Fatalf("unexpected width %v", f)
	}
	if ref, ok := d["Parent"].(Ref); !ok || ref.Num != 2 || ref.Gen != 0 {
		t.Fatalf("unexpected parent %#v", d["Parent"])
	}
	if _, ok := d["Empty"]; ok {
		t.Fatalf("null values should be dropped")
	}
	if kids := d["Kids"].(Array); len(kids) != 2 {
		t.Fatalf("expected two kids, got %d", len(kids))
	}
}

func TestReadObject_IntegersAreNotRefs(t *testing.T) {
	obj, err := readerFor("[1 2 3]").ReadObject()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	arr := obj.(Array)
	if len(arr) != 3 {
		t.Fatalf("expected 3 numbers, got %#v", arr)
	}
	for i, o := range arr {
		if n, ok := o.(Number); !ok || n.Int() != int64(i+1) {
			t.Fatalf("item %d: %#v", i, o)
		}
	}
}

func TestReadIndirect_Stream(t *testing.T) {
	r := readerFor("7 0 obj\n<< /Length 5 >>\nstream\r\nhello\nendstream\nendobj\n")
	ref, obj, err := r.ReadIndirect()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if ref != (ObjectRef{Num: 7}) {
		t.Fatalf("unexpected ref %v", ref)
	}
	s, ok := obj.(*Stream)
	if !ok || string(s.Data) != "hello" {
		t.Fatalf("unexpected stream %#v", obj)
	}
}

func TestReadIndirect_WrongLengthFallsBack(t *testing.T) {
	r := readerFor("7 0 obj\n<< /Length 99 >>\nstream\nhello world\nendstream\nendobj\n")
	_, obj, err := r.ReadIndirect()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if s := obj.(*Stream); string(s.Data) != "hello world" {
		t.Fatalf("unexpected data %q", s.Data)
	}
}

func TestReadIndirect_Errors(t *testing.T) {
	if _, _, err := readerFor("7 0 << >>").ReadIndirect(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for missing obj keyword, got %v", err)
	}
	if _, err := readerFor("<< 1 2 >>").ReadObject(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for non-name key, got %v", err)
	}
	if _, err := readerFor("[1 2").ReadObject(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for unterminated array, got %v", err)
	}
}

func TestReadStream_OversizedLength(t *testing.T) {
	_, obj, err := readerFor("6 0 obj\n<< /Length 9223372036854775807 >>\nstream\nabc\nendstream\nendobj").ReadIndirect()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	s, ok := obj.(*Stream)
	if !ok {
		t.Fatalf("expected stream, got %T", obj)
	}
	if string(s.Data) != "abc" {
		t.Fatalf("stream data = %q, want abc", s.Data)
	}
}
