package main

import (
	"FormCoach/internal/pipeline"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a Temporal worker hosting the analysis activities",
	Long: "Run a Temporal worker hosting the analysis activities. The worker must\n" +
		"share pipeline.work_dir with the API server.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		coach, err := newCoach(ctx, true)
		if err != nil {
			return err
		}
		client, err := pipeline.DialTemporal(cfg)
		if err != nil {
			return err
		}
		defer client.Close()

		temporalWorkflow := pipeline.NewTemporalWorkflow(client, coach, cfg, logger)
		if err := temporalWorkflow.StartWorker(); err != nil {
			return err
		}
		defer temporalWorkflow.StopWorker()

		logger.Info("Temporal worker started successfully",
			zap.String("host_port", cfg.Pipeline.Temporal.HostPort),
			zap.String("task_queue", cfg.Pipeline.Temporal.TaskQueue))

		<-ctx.Done()
		logger.Info("Shutting down...")
		return nil
	},
}
