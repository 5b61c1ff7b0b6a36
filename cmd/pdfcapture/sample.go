package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wudi/pdfcapture/builder"
	"github.com/wudi/pdfcapture/coords"
)

var pageSizes = map[string]coords.Rect{
	"a4":     builder.A4,
	"letter": builder.Letter,
}

func sampleCmd(a *app) *cobra.Command {
	var (
		out        string
		pages      int
		size       string
		rotate     int
		xrefStream bool
	)
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Write a sample PDF for trying out the viewer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			box, ok := pageSizes[strings.ToLower(size)]
			if !ok {
				return fmt.Errorf("unknown page size %q (a4, letter)", size)
			}
			if pages < 1 {
				return fmt.Errorf("--pages must be at least 1")
			}
			b := builder.New().
				SetTitle("pdfcapture sample").
				SetDefaultMediaBox(box).
				UseXRefStream(xrefStream)
			for range pages {
				b.AddPage(builder.Page{Rotate: rotate})
			}
			data, err := b.Build()
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			a.slogger.Info("Sample written", "out", out, "pages", pages, "bytes", len(data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "sample.pdf", "Output file")
	cmd.Flags().IntVar(&pages, "pages", 3, "Number of pages")
	cmd.Flags().StringVar(&size, "size", "a4", "Page size (a4, letter)")
	cmd.Flags().IntVar(&rotate, "rotate", 0, "Page rotation in degrees (multiple of 90)")
	cmd.Flags().BoolVar(&xrefStream, "xref-stream", false, "Write a compressed cross-reference stream")
	return cmd
}
