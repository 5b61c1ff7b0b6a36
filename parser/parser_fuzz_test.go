package parser

import (
	"context"
	"testing"

	"github.com/wudi/pdfcapture/builder"
	"github.com/wudi/pdfcapture/recovery"
	"github.com/wudi/pdfcapture/security"
)

func FuzzParse(f *testing.F) {
	for _, stream := range []bool{false, true} {
		data, err := builder.New().
			SetTitle("Fuzz").
			UseXRefStream(stream).
			AddPage(builder.Page{}).
			AddPage(builder.Page{MediaBox: builder.Letter, Rotate: 90}).
			Build()
		if err != nil {
			f.Fatal(err)
		}
		f.Add(data)
	}
	f.Add([]byte("%PDF-1.7\n1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n"))

	limits := security.Limits{
		MaxFileSize:         1 << 20,
		MaxDecompressedSize: 1 << 20,
		MaxPages:            1000,
	}
	f.Fuzz(func(t *testing.T, data []byte) {
		for _, strategy := range []recovery.Strategy{recovery.NewStrictStrategy(), recovery.NewLenientStrategy(nil)} {
			doc, err := Parse(context.Background(), data, Config{Limits: limits, Recovery: strategy})
			if err != nil {
				continue
			}
			if doc.NumPages() == 0 {
				t.Fatal("Parse() succeeded without pages")
			}
			for _, p := range doc.Pages {
				if w, h := p.DisplaySize(); w <= 0 || h <= 0 {
					t.Fatalf("page %d has display size %vx%v", p.Number, w, h)
				}
			}
		}
	})
}
