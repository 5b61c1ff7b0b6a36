package xref

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/wudi/pdfcapture/builder"
	"github.com/wudi/pdfcapture/recovery"
)

func buildPDF(t *testing.T, stream bool) []byte {
	t.Helper()
	data, err := builder.New().UseXRefStream(stream).AddPage(builder.Page{}).AddPage(builder.Page{}).Build()
	if err != nil {
		t.Fatalf("build fixture: %v", err)
	}
	return data
}

func TestResolve_ClassicTable(t *testing.T) {
	table, err := NewResolver(ResolverConfig{}).Resolve(context.Background(), buildPDF(t, false))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if table.Repaired {
		t.Error("intact table reported as repaired")
	}
	if table.Trailer["Root"] == nil {
		t.Fatal("trailer has no /Root")
	}
	// 1..4 fixed objects plus page and content per page.
	if got := len(table.Objects()); got != 8 {
		t.Errorf("objects = %d, want 8", got)
	}
	e, ok := table.Lookup(1)
	if !ok || e.Kind != InUse {
		t.Errorf("Lookup(1) = %+v, %v", e, ok)
	}
}

func TestResolve_XRefStream(t *testing.T) {
	table, err := NewResolver(ResolverConfig{}).Resolve(context.Background(), buildPDF(t, true))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	e, ok := table.Lookup(1)
	if !ok || e.Kind != Compressed {
		t.Fatalf("catalog entry = %+v, want compressed", e)
	}
	if e.Index != 0 {
		t.Errorf("catalog index = %d, want 0", e.Index)
	}
	content, ok := table.Lookup(6)
	if !ok || content.Kind != InUse {
		t.Errorf("content stream entry = %+v, want in use", content)
	}
}

func breakStartXRef(data []byte) []byte {
	idx := bytes.LastIndex(data, []byte("startxref"))
	out := append([]byte{}, data[:idx]...)
	return append(out, "startxref\n99999999\n%%EOF\n"...)
}

func TestResolve_RepairsWhenAllowed(t *testing.T) {
	for _, stream := range []bool{false, true} {
		data := breakStartXRef(buildPDF(t, stream))
		lenient := recovery.NewLenientStrategy(nil)
		table, err := NewResolver(ResolverConfig{Recovery: lenient}).Resolve(context.Background(), data)
		if err != nil {
			t.Fatalf("stream=%v: Resolve() error = %v", stream, err)
		}
		if !table.Repaired {
			t.Errorf("stream=%v: table not marked repaired", stream)
		}
		if table.Trailer["Root"] == nil {
			t.Errorf("stream=%v: repaired trailer has no /Root", stream)
		}
		if len(lenient.Errors()) != 1 {
			t.Errorf("stream=%v: recorded %d errors, want 1", stream, len(lenient.Errors()))
		}
	}
}

func TestResolve_StrictFails(t *testing.T) {
	data := breakStartXRef(buildPDF(t, false))
	_, err := NewResolver(ResolverConfig{Recovery: recovery.NewStrictStrategy()}).Resolve(context.Background(), data)
	if !errors.Is(err, ErrBadXRef) {
		t.Fatalf("Resolve() error = %v, want ErrBadXRef", err)
	}
}

func TestResolve_NoStartXRef(t *testing.T) {
	_, err := NewResolver(ResolverConfig{}).Resolve(context.Background(), []byte("%PDF-1.4\n"))
	if !errors.Is(err, ErrNoStartXRef) {
		t.Fatalf("Resolve() error = %v, want ErrNoStartXRef", err)
	}
}
