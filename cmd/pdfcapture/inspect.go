package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wudi/pdfcapture/render"
	"github.com/wudi/pdfcapture/units"
)

type pageInfo struct {
	Page     int     `json:"page"`
	WidthMM  float64 `json:"width_mm"`
	HeightMM float64 `json:"height_mm"`
	WidthPt  float64 `json:"width_pt"`
	HeightPt float64 `json:"height_pt"`
	Rotate   int     `json:"rotate"`
}

type documentInfo struct {
	Path        string     `json:"path"`
	Fingerprint string     `json:"fingerprint"`
	Version     string     `json:"version"`
	Title       string     `json:"title,omitempty"`
	Author      string     `json:"author,omitempty"`
	Repaired    bool       `json:"repaired,omitempty"`
	Pages       []pageInfo `json:"pages"`
}

func infoCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "info <pdf>",
		Short: "Print document information and page sizes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tool, renderer, err := a.openDocument(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer tool.Close()

			doc := renderer.Document()
			info := documentInfo{
				Path:        args[0],
				Fingerprint: renderer.Fingerprint(),
				Version:     doc.Version,
				Title:       doc.Info.Title,
				Author:      doc.Info.Author,
				Repaired:    doc.Repaired(),
			}
			for n := 1; n <= doc.NumPages(); n++ {
				size, err := renderer.PageSize(n)
				if err != nil {
					return err
				}
				info.Pages = append(info.Pages, pageInfo{
					Page:     n,
					WidthMM:  units.Round(units.PointsToMillimeters(size.Width), 2),
					HeightMM: units.Round(units.PointsToMillimeters(size.Height), 2),
					WidthPt:  size.Width,
					HeightPt: size.Height,
					Rotate:   size.Rotate,
				})
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			fmt.Fprintf(out, "File:        %s\n", info.Path)
			fmt.Fprintf(out, "PDF version: %s\n", info.Version)
			if info.Title != "" {
				fmt.Fprintf(out, "Title:       %s\n", info.Title)
			}
			if info.Author != "" {
				fmt.Fprintf(out, "Author:      %s\n", info.Author)
			}
			fmt.Fprintf(out, "Fingerprint: %s\n", info.Fingerprint)
			if info.Repaired {
				fmt.Fprintln(out, "Repaired:    yes (cross-reference table rebuilt)")
			}
			fmt.Fprintf(out, "Pages:       %d\n\n", len(info.Pages))
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PAGE\tWIDTH (mm)\tHEIGHT (mm)\tROTATE")
			for _, p := range info.Pages {
				fmt.Fprintf(tw, "%d\t%.2f\t%.2f\t%d\n", p.Page, p.WidthMM, p.HeightMM, p.Rotate)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of text")
	return cmd
}

func locateCmd(a *app) *cobra.Command {
	var (
		page  int
		scale float64
		x, y  float64
	)
	cmd := &cobra.Command{
		Use:   "locate <pdf>",
		Short: "Convert a pixel offset on a rendered page into millimeters",
		Long: `locate converts a pixel offset from the top-left corner of a page rendered
at --scale into millimeters from the page's top-left corner, and into PDF
user-space points.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tool, _, err := a.openDocument(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer tool.Close()

			if err := moveTo(tool, page, scale); err != nil {
				return err
			}
			loc, err := tool.Locate(x, y)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "page %d: x=%.2fmm y=%.2fmm (user space %.2f, %.2f pt)\n",
				loc.Page, loc.X, loc.Y, loc.UserX, loc.UserY)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Page number (1-based)")
	cmd.Flags().Float64Var(&scale, "scale", 1, "Zoom the offset was taken at")
	cmd.Flags().Float64Var(&x, "x", 0, "Horizontal pixel offset from the left edge")
	cmd.Flags().Float64Var(&y, "y", 0, "Vertical pixel offset from the top edge")
	return cmd
}

func renderCmd(a *app) *cobra.Command {
	var (
		page    int
		scale   float64
		out     string
		maxEdge int
	)
	cmd := &cobra.Command{
		Use:   "render <pdf>",
		Short: "Render a page to PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tool, _, err := a.openDocument(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer tool.Close()

			if err := moveTo(tool, page, scale); err != nil {
				return err
			}
			surface, err := tool.Render()
			if err != nil {
				return err
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := render.EncodePNG(f, render.Thumbnail(surface, maxEdge)); err != nil {
				f.Close()
				return fmt.Errorf("encode %s: %w", out, err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			a.slogger.Info("Page rendered", "page", surface.Page, "width", surface.Width, "height", surface.Height, "out", out)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Page number (1-based)")
	cmd.Flags().Float64Var(&scale, "scale", 1, "Zoom factor")
	cmd.Flags().StringVarP(&out, "out", "o", "page.png", "Output PNG file")
	cmd.Flags().IntVar(&maxEdge, "max", 0, "Downscale so neither edge exceeds this many pixels (0 = no limit)")
	return cmd
}
