package main

import (
	"FormCoach/internal/api"
	"FormCoach/internal/job"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		repo, closeRepo, err := newRepository(ctx)
		if err != nil {
			return err
		}
		defer closeRepo()

		// With Temporal only the worker talks to the vendor.
		coach, err := newCoach(ctx, cfg.Pipeline.Engine != "temporal")
		if err != nil {
			return err
		}
		engine, closeEngine, err := newEngine(ctx, coach)
		if err != nil {
			return err
		}
		defer closeEngine()

		manager := job.NewManager(repo, logger)
		server := api.NewServer(engine, manager, cfg, logger)

		errCh := make(chan error, 1)
		go func() { errCh <- server.Start() }()
		go cleanupJobs(ctx, manager)

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		logger.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Shutdown did not complete cleanly", zap.Error(err))
		}
		return nil
	},
}

const (
	jobRetention    = 7 * 24 * time.Hour
	cleanupInterval = time.Hour
)

// cleanupJobs deletes jobs older than jobRetention until ctx is done.
func cleanupJobs(ctx context.Context, manager *job.Manager) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = manager.CleanupOldJobs(ctx, jobRetention)
		}
	}
}
