package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/gops/agent"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/catalogix/internal/extract"
	chiTransport "github.com/kailas-cloud/catalogix/internal/transport/chi"
	"github.com/kailas-cloud/catalogix/internal/usecase/catalog"
	"github.com/kailas-cloud/catalogix/internal/version"
)

func newServeCmd(g *globals) *cobra.Command {
	var gops bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the indexing workers and the stale reconciler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("gops") {
				cfg.Debug.Gops = gops
			}

			logger.Info("Starting catalogix API server",
				zap.String("version", version.Version),
				zap.String("commit", version.Commit),
				zap.String("env", g.env),
				zap.Int("http_port", cfg.HTTP.Port),
				zap.String("vector_db_driver", cfg.VectorDB.Driver),
				zap.String("products_driver", cfg.Products.Driver),
			)

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				logger.Error("Failed to initialize", zap.Error(err))
				return err
			}
			defer a.Close()
			return serve(cmd.Context(), a)
		},
	}
	cmd.Flags().BoolVar(&gops, "gops", false, "start the gops diagnostics agent (overrides debug.gops)")
	return cmd
}

func serve(ctx context.Context, a *app) error {
	cfg, logger := a.cfg, a.logger

	if cfg.Debug.Gops {
		if err := agent.Listen(agent.Options{}); err != nil {
			logger.Warn("gops agent not started", zap.Error(err))
		} else {
			defer agent.Close()
		}
	}

	// Несовместимая коллекция: сервис не стартует
	if err := a.collection.Ensure(ctx); err != nil {
		logger.Error("Vector collection unusable", zap.Error(err))
		return err
	}

	dispatcher := catalog.NewDispatcher(a.catalog, cfg.Indexing.Workers, cfg.Indexing.QueueSize, logger)
	jobs := catalog.NewJobManager(ctx, a.catalog, logger)
	reconciler := catalog.NewReconciler(a.catalog,
		time.Duration(cfg.Indexing.ReconcileIntervalSec)*time.Second, logger)

	server := chiTransport.NewServer(a.catalog, dispatcher, jobs, extract.New(), a.health(), logger)
	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      chiTransport.NewRouter(server, cfg.Auth.APIKeys, logger),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error { return reconciler.Run(gctx) })
	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Received shutdown signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during shutdown", zap.Error(err))
		}
		jobs.Wait()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}
