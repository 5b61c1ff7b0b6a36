package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wudi/pdfcapture/server"
	"github.com/wudi/pdfcapture/workflow"
)

func serveCmd(a *app) *cobra.Command {
	var (
		addr       string
		allowPaths bool
		allowURLs  bool
		storePath  string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP capture viewer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("allow-paths") {
				cfg.Server.AllowPaths = allowPaths
			}
			if cmd.Flags().Changed("allow-urls") {
				cfg.Server.AllowURLs = allowURLs
			}
			if cmd.Flags().Changed("store") {
				cfg.Store.Path = storePath
			}

			var store *workflow.Store
			if cfg.Store.Path != "" {
				var err error
				if store, err = workflow.OpenStore(cfg.Store.Path); err != nil {
					return fmt.Errorf("open workflow store: %w", err)
				}
			}

			srv := server.New(server.Config{
				MaxConnections: cfg.Server.MaxConnections,
				MaxSessions:    cfg.Server.MaxSessions,
				SessionTTL:     cfg.Server.SessionTTL,
				AllowPaths:     cfg.Server.AllowPaths,
				AllowURLs:      cfg.Server.AllowURLs,
				ReadTimeout:    cfg.Server.ReadTimeout,
				WriteTimeout:   cfg.Server.WriteTimeout,
				CacheSize:      cfg.Render.CacheSize,
				Limits:         cfg.SecurityLimits(),
				NewRecovery:    cfg.RecoveryStrategy,
				Store:          store,
				Logger:         a.logger,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a.slogger.Info("Starting pdfcapture viewer",
				"version", Version,
				"addr", cfg.Server.Addr,
				"allow_paths", cfg.Server.AllowPaths,
				"allow_urls", cfg.Server.AllowURLs)
			if err := srv.ListenAndServe(ctx, cfg.Server.Addr); err != nil && ctx.Err() == nil {
				return err
			}
			a.slogger.Info("Viewer stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&allowPaths, "allow-paths", false, "Allow opening documents by server-side path")
	cmd.Flags().BoolVar(&allowURLs, "allow-urls", false, "Allow opening documents by http(s) URL")
	cmd.Flags().StringVar(&storePath, "store", "", "Workflow store file (overrides store.path)")
	return cmd
}
