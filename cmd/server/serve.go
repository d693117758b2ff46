package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"taxlens/internal/platform/config"
	"taxlens/internal/platform/httpserver"
	"taxlens/internal/platform/logger"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the in-process oracle",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides TAXLENS_ADDR)")
	return cmd
}

func loadConfig() (config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.FromEnv()
}

// serve wires high-level dependencies and runs the server, the oracle
// delivery loop and the event producer until ctx is cancelled.
func serve(ctx context.Context, cfg config.Config) error {
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	app, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := httpserver.New(cfg.Server.Addr, app.Handler, cfg.Server.ReadHeaderTimeout)
	log.Info("starting taxlens",
		"addr", cfg.Server.Addr,
		"environment", cfg.Server.Environment,
		"store_backend", cfg.Store.Backend,
		"ledger_backend", cfg.LedgerBackend(),
		"kafka", app.Kafka != nil,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(gctx, srv, cfg.Server.ShutdownTimeout)
	})
	g.Go(func() error {
		return ignoreCancel(app.Engine.Run(gctx))
	})
	if app.Kafka != nil {
		g.Go(func() error {
			return ignoreCancel(app.Kafka.Run(gctx))
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", "error", err)
		return fmt.Errorf("serve: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
