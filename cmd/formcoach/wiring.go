package main

import (
	"FormCoach/internal/analysis"
	"FormCoach/internal/job"
	"FormCoach/internal/pipeline"
	"FormCoach/internal/pipeline/storage"
	"FormCoach/pkg/ffmpeg"
	"FormCoach/pkg/video/cv"
	"context"
	"fmt"

	"go.uber.org/zap"
)

// newCoach wires the vendor client, the OpenCV backend, ffprobe and artifact
// storage into a Coach. Without withVendor no Gemini client is built, so no
// API key is needed.
func newCoach(ctx context.Context, withVendor bool) (*pipeline.Coach, error) {
	var vendor analysis.Client
	if withVendor {
		gemini, err := analysis.NewGemini(ctx, cfg.Analysis, logger)
		if err != nil {
			return nil, err
		}
		vendor = gemini
	}

	var prober pipeline.Prober
	if probe := ffmpeg.NewFFProbe(cfg.Pipeline.FFProbePath); probe.Available() {
		prober = probe
	} else {
		logger.Warn("ffprobe not found, skipping duration checks", zap.String("path", cfg.Pipeline.FFProbePath))
	}

	store, err := storage.NewStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}

	return pipeline.NewCoach(cfg, vendor, cv.New(logger), prober, store, logger), nil
}

// newEngine returns the engine selected by pipeline.engine and a function
// releasing what it holds.
func newEngine(ctx context.Context, coach *pipeline.Coach) (pipeline.Engine, func(), error) {
	if cfg.Pipeline.Engine != "temporal" {
		return coach, func() {}, nil
	}
	client, err := pipeline.DialTemporal(cfg)
	if err != nil {
		return nil, nil, err
	}
	return pipeline.NewTemporalWorkflow(client, coach, cfg, logger), client.Close, nil
}

// newRepository uses Postgres when database.dsn is set and memory otherwise.
func newRepository(ctx context.Context) (job.Repository, func(), error) {
	if cfg.Database.DSN == "" {
		logger.Info("No database configured, keeping jobs in memory")
		return job.NewMemoryStore(), func() {}, nil
	}

	pool, err := job.Connect(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}
	store := job.NewStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info("Connected to job database")
	return store, pool.Close, nil
}
