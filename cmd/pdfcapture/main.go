// Command pdfcapture serves the PDF coordinate capture viewer and offers
// command-line access to the same page geometry.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/wudi/pdfcapture/capture"
	"github.com/wudi/pdfcapture/config"
	"github.com/wudi/pdfcapture/observability"
	"github.com/wudi/pdfcapture/render"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "pdfcapture"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app is the state shared by every subcommand once flags are parsed.
type app struct {
	configPath string
	logLevel   string

	cfg     *config.Config
	slogger *slog.Logger
	logger  observability.Logger
}

func rootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Capture page positions on PDF documents",
		Long: `pdfcapture renders PDF pages at a chosen zoom and converts a click on a
rendered page into a position in millimeters from the page's top-left corner.

It provides:
- an HTTP viewer for placing signature and field anchors (serve)
- page inspection and rendering from the command line (info, render, locate)
- validation of stored workflow anchors (anchors)`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the config file")

	cmd.AddCommand(
		serveCmd(a),
		infoCmd(a),
		locateCmd(a),
		renderCmd(a),
		sampleCmd(a),
		anchorsCmd(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)
	return cmd
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	a.cfg = cfg
	a.slogger = cfg.NewLogger(cmd.ErrOrStderr())
	slog.SetDefault(a.slogger)
	a.logger = observability.NewSlogLogger(a.slogger)
	return nil
}

// openDocument loads path and waits for the outcome. The returned tool is
// ready for navigation; the caller closes it.
func (a *app) openDocument(ctx context.Context, path string) (*capture.Tool, *render.PDFRenderer, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil, err
	}
	renderer := render.NewPDFRenderer(render.Config{
		Limits:    a.cfg.SecurityLimits(),
		Recovery:  a.cfg.RecoveryStrategy(a.logger),
		Logger:    a.logger,
		CacheSize: -1,
	})
	tool, err := capture.Open(ctx, capture.Config{
		Document: render.FromPath(path),
		Renderer: renderer,
		Logger:   a.logger,
	})
	if err != nil {
		return nil, nil, err
	}

	select {
	case <-tool.Ready():
		err = tool.State().LoadErr
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		tool.Close()
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	return tool, renderer, nil
}

// moveTo navigates tool to page at scale.
func moveTo(tool *capture.Tool, page int, scale float64) error {
	st := tool.State()
	if page < 1 || page > st.TotalPages {
		return fmt.Errorf("%w: page %d of %d", render.ErrBadPage, page, st.TotalPages)
	}
	if scale < capture.MinScale || scale > capture.MaxScale {
		return fmt.Errorf("%w: %v is outside [%v, %v]", render.ErrBadScale, scale, capture.MinScale, capture.MaxScale)
	}
	if _, err := tool.Navigate(page - st.PageNumber); err != nil {
		return err
	}
	_, err := tool.Zoom(scale - st.ScaleFactor)
	return err
}
