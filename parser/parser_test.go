package parser

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/wudi/pdfcapture/builder"
	"github.com/wudi/pdfcapture/coords"
	"github.com/wudi/pdfcapture/recovery"
	"github.com/wudi/pdfcapture/security"
)

func fixture(t *testing.T, b *builder.Builder) []byte {
	t.Helper()
	data, err := b.Build()
	if err != nil {
		t.Fatalf("build fixture: %v", err)
	}
	return data
}

func TestParse_PagesAndInheritance(t *testing.T) {
	crop := coords.Rect{LLX: 50, LLY: 50, URX: 350, URY: 450}
	for _, stream := range []bool{false, true} {
		b := builder.New().
			SetTitle("Contract").
			SetDefaultMediaBox(builder.Letter).
			UseXRefStream(stream).
			AddPage(builder.Page{}).
			AddPage(builder.Page{MediaBox: builder.A4, Rotate: 90}).
			AddPage(builder.Page{CropBox: &crop, Rotate: -90})

		doc, err := Parse(context.Background(), fixture(t, b), Config{})
		if err != nil {
			t.Fatalf("stream=%v: Parse() error = %v", stream, err)
		}
		if doc.Version != "1.7" {
			t.Errorf("Version = %q, want 1.7", doc.Version)
		}
		if doc.Info.Title != "Contract" {
			t.Errorf("Title = %q, want Contract", doc.Info.Title)
		}
		if doc.NumPages() != 3 {
			t.Fatalf("NumPages() = %d, want 3", doc.NumPages())
		}

		p1, _ := doc.Page(1)
		if p1.MediaBox != builder.Letter || p1.CropBox != builder.Letter || p1.Rotate != 0 {
			t.Errorf("page 1 = %+v, want inherited Letter box", p1)
		}
		p2, _ := doc.Page(2)
		if w, h := p2.DisplaySize(); w != builder.A4.URY || h != builder.A4.URX {
			t.Errorf("page 2 display size = %vx%v, want rotated A4", w, h)
		}
		p3, _ := doc.Page(3)
		if p3.Rotate != 270 {
			t.Errorf("page 3 rotate = %d, want 270", p3.Rotate)
		}
		if w, h := p3.DisplaySize(); w != 400 || h != 300 {
			t.Errorf("page 3 display size = %vx%v, want 400x300", w, h)
		}
	}
}

func TestPage_Range(t *testing.T) {
	doc, err := Parse(context.Background(), fixture(t, builder.New().AddPage(builder.Page{})), Config{})
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range []int{0, 2, -1} {
		if _, err := doc.Page(n); !errors.Is(err, ErrPageRange) {
			t.Errorf("Page(%d) error = %v, want ErrPageRange", n, err)
		}
	}
}

func TestParse_Errors(t *testing.T) {
	valid := fixture(t, builder.New().AddPage(builder.Page{}))
	encrypted := bytes.Replace(valid, []byte("/Root 1 0 R"), []byte("/Encrypt << >> /Root 1 0 R"), 1)

	tests := []struct {
		name string
		data []byte
		cfg  Config
		want error
	}{
		{"not pdf", []byte("hello world"), Config{}, ErrNotPDF},
		{"encrypted", encrypted, Config{}, ErrEncrypted},
		{"too large", valid, Config{Limits: security.Limits{MaxFileSize: 64}}, security.ErrLimitExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(context.Background(), tt.data, tt.cfg)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Parse() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParse_BrokenXRef(t *testing.T) {
	valid := fixture(t, builder.New().AddPage(builder.Page{}).AddPage(builder.Page{}))
	idx := bytes.LastIndex(valid, []byte("startxref"))
	broken := append(append([]byte{}, valid[:idx]...), "startxref\n12\n%%EOF\n"...)

	doc, err := Parse(context.Background(), broken, Config{})
	if err != nil {
		t.Fatalf("lenient Parse() error = %v", err)
	}
	if !doc.Repaired() || doc.NumPages() != 2 {
		t.Errorf("repaired=%v pages=%d, want repaired with 2 pages", doc.Repaired(), doc.NumPages())
	}

	_, err = Parse(context.Background(), broken, Config{Recovery: recovery.NewStrictStrategy()})
	if err == nil || !strings.Contains(err.Error(), "xref") {
		t.Fatalf("strict Parse() error = %v, want xref error", err)
	}
}

func TestParse_PageLimit(t *testing.T) {
	b := builder.New()
	for i := 0; i < 3; i++ {
		b.AddPage(builder.Page{})
	}
	_, err := Parse(context.Background(), fixture(t, b), Config{
		Limits:   security.Limits{MaxPages: 2},
		Recovery: recovery.NewStrictStrategy(),
	})
	if !errors.Is(err, security.ErrLimitExceeded) {
		t.Fatalf("Parse() error = %v, want ErrLimitExceeded", err)
	}
}

func TestOpen(t *testing.T) {
	data := fixture(t, builder.New().AddPage(builder.Page{}))
	doc, err := Open(context.Background(), bytes.NewReader(data), Config{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if doc.NumPages() != 1 {
		t.Errorf("NumPages() = %d, want 1", doc.NumPages())
	}
}

func TestDecodeText(t *testing.T) {
	tests := []struct {
		in   []byte
		want string
	}{
		{[]byte("plain"), "plain"},
		{[]byte{0xfe, 0xff, 0x00, 'H', 0x00, 'i'}, "Hi"},
		{[]byte{0xfe, 0xff, 0xd8, 0x3d, 0xde, 0x00}, "\U0001F600"},
	}
	for _, tt := range tests {
		if got := decodeText(tt.in); got != tt.want {
			t.Errorf("decodeText(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParse_MalformedStructure(t *testing.T) {
	objStm := fixture(t, builder.New().UseXRefStream(true).AddPage(builder.Page{}))
	if !bytes.Contains(objStm, []byte("/N 5 /First")) {
		t.Fatal("fixture layout changed: object stream header not found")
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"catalog without pages", []byte("%PDF- 1 0 obj << /Type /Catalog>>0")},
		{"catalog with null pages", []byte("%PDF-1.7\n1 0 obj << /Type /Catalog /Pages null >> endobj\ntrailer << /Root 1 0 R >>")},
		{"negative object stream count", bytes.Replace(objStm, []byte("/N 5 /First"), []byte("/N -1/First"), 1)},
		{"object stream count beyond header", bytes.Replace(objStm, []byte("/N 5 /First"), []byte("/N 99/First"), 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, strategy := range []recovery.Strategy{recovery.NewStrictStrategy(), recovery.NewLenientStrategy(nil)} {
				if _, err := Parse(context.Background(), tt.data, Config{Recovery: strategy}); err == nil {
					t.Errorf("Parse() with %T succeeded, want an error", strategy)
				}
			}
		})
	}
}
