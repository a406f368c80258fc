package pipeline

import (
	"FormCoach/internal/analysis"
	"FormCoach/internal/config"
	"FormCoach/internal/metrics"
	"FormCoach/pkg/video"
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"
)

// ProgressQuery is the query type answered by AnalysisWorkflow with its
// current WorkflowProgress.
const ProgressQuery = "progress"

const progressPollInterval = time.Second

// TemporalWorkflow runs analyses as Temporal workflows. The server ingests the
// upload into the shared work directory and the worker's activities read it
// from there, so only ids and moments cross the Temporal boundary.
type TemporalWorkflow struct {
	client client.Client
	worker worker.Worker
	coach  *Coach
	config *config.Config
	logger *zap.Logger
}

// AnalysisInput identifies the workspace of one run.
type AnalysisInput struct {
	ID string `json:"id"`
}

// AnalysisOutput is the workflow result. Stills are paths in the shared work
// directory, index aligned with Moments.
type AnalysisOutput struct {
	Exercise  analysis.Exercise `json:"exercise"`
	Moments   []analysis.Moment `json:"moments"`
	Stills    []string          `json:"stills"`
	Artifacts []string          `json:"artifacts,omitempty"`
	Frames    int               `json:"frames"`
}

type AnalyzeInput struct {
	ID       string            `json:"id"`
	Exercise analysis.Exercise `json:"exercise"`
}

type ExtractInput struct {
	ID      string            `json:"id"`
	Moments []analysis.Moment `json:"moments"`
}

type StoreInput struct {
	ID     string   `json:"id"`
	Stills []string `json:"stills"`
}

type WorkflowProgress struct {
	Stage    Stage  `json:"stage"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`
}

// NewTemporalWorkflow creates the engine. coach supplies the workspace layout
// on the server side and the activity implementations on the worker side.
func NewTemporalWorkflow(client client.Client, coach *Coach, cfg *config.Config, logger *zap.Logger) *TemporalWorkflow {
	return &TemporalWorkflow{
		client: client,
		coach:  coach,
		config: cfg,
		logger: logger,
	}
}

// WorkflowID is the Temporal workflow id of run id.
func WorkflowID(id string) string {
	return fmt.Sprintf("analysis-%s", id)
}

// DialTemporal connects to the configured Temporal frontend.
func DialTemporal(cfg *config.Config) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Pipeline.Temporal.HostPort,
		Namespace: cfg.Pipeline.Temporal.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial temporal at %s: %w", cfg.Pipeline.Temporal.HostPort, err)
	}
	return c, nil
}

// StartWorker starts a worker on the analysis task queue.
func (tw *TemporalWorkflow) StartWorker() error {
	tw.worker = worker.New(tw.client, tw.config.Pipeline.Temporal.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: int(tw.config.Pipeline.MaxWorkers),
	})

	activities := NewActivities(tw.coach, tw.logger)
	tw.worker.RegisterWorkflow(AnalysisWorkflow)
	tw.worker.RegisterActivity(activities.ClassifyActivity)
	tw.worker.RegisterActivity(activities.AnnotateActivity)
	tw.worker.RegisterActivity(activities.AnalyzeActivity)
	tw.worker.RegisterActivity(activities.ExtractActivity)
	tw.worker.RegisterActivity(activities.StoreActivity)

	tw.logger.Info("Starting Temporal worker", zap.String("task_queue", tw.config.Pipeline.Temporal.TaskQueue))
	return tw.worker.Start()
}

func (tw *TemporalWorkflow) StopWorker() {
	if tw.worker != nil {
		tw.worker.Stop()
	}
}

// Run ingests the upload, executes AnalysisWorkflow and inlines the stills the
// worker wrote into the report.
func (tw *TemporalWorkflow) Run(ctx context.Context, req Request) (*analysis.Report, error) {
	progress := req.Progress
	if progress == nil {
		progress = func(Stage, int, string) {}
	}

	start := time.Now()
	progress(StageUploading, 5, "Saving upload")
	ingest, err := tw.coach.Ingest(ctx, req.ID, req.Upload)
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	ws := ingest.Workspace
	defer tw.coach.Cleanup(ws)

	metrics.ActiveAnalyses.Inc()
	defer metrics.ActiveAnalyses.Dec()

	workflowOptions := client.StartWorkflowOptions{
		ID:                       WorkflowID(ws.ID),
		TaskQueue:                tw.config.Pipeline.Temporal.TaskQueue,
		WorkflowExecutionTimeout: 60 * time.Minute,
		WorkflowRunTimeout:       60 * time.Minute,
	}
	run, err := tw.client.ExecuteWorkflow(ctx, workflowOptions, AnalysisWorkflow, AnalysisInput{ID: ws.ID})
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to start workflow: %w", err)
	}
	tw.logger.Info("Started analysis workflow", zap.String("workflow_id", run.GetID()), zap.String("run_id", run.GetRunID()))

	out, err := tw.wait(ctx, run, progress)
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues("failed").Inc()
		tw.logger.Error("Analysis workflow failed", zap.String("workflow_id", run.GetID()), zap.Error(err))
		return nil, fmt.Errorf("workflow execution failed: %w", fromApplicationError(err))
	}

	report := &analysis.Report{
		Exercise:   out.Exercise,
		Analysis:   tw.coach.Attach(out.Moments, out.Stills),
		Artifacts:  out.Artifacts,
		DurationMs: time.Since(start).Milliseconds(),
	}
	metrics.AnalysesTotal.WithLabelValues("completed").Inc()
	tw.logger.Info("Analysis workflow completed",
		zap.String("workflow_id", run.GetID()),
		zap.String("exercise", string(report.Exercise)),
		zap.Int("moments", len(report.Analysis)),
		zap.Duration("duration", time.Since(start)))
	return report, nil
}

// wait blocks on the workflow result and relays stage changes reported by
// the progress query. A cancelled ctx cancels the workflow.
func (tw *TemporalWorkflow) wait(ctx context.Context, run client.WorkflowRun, progress ProgressFunc) (*AnalysisOutput, error) {
	var out AnalysisOutput
	done := make(chan error, 1)
	go func() { done <- run.Get(ctx, &out) }()

	ticker := time.NewTicker(progressPollInterval)
	defer ticker.Stop()

	var last WorkflowProgress
	for {
		select {
		case err := <-done:
			if err != nil {
				if ctx.Err() != nil {
					cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
					if cancelErr := tw.client.CancelWorkflow(cancelCtx, run.GetID(), run.GetRunID()); cancelErr != nil {
						tw.logger.Warn("Failed to cancel workflow", zap.String("workflow_id", run.GetID()), zap.Error(cancelErr))
					}
					cancel()
				}
				return nil, err
			}
			return &out, nil
		case <-ticker.C:
			val, err := tw.client.QueryWorkflow(ctx, run.GetID(), run.GetRunID(), ProgressQuery)
			if err != nil {
				tw.logger.Debug("Progress query failed", zap.String("workflow_id", run.GetID()), zap.Error(err))
				continue
			}
			var p WorkflowProgress
			if err := val.Get(&p); err != nil || p == last {
				continue
			}
			last = p
			progress(p.Stage, p.Progress, p.Message)
		}
	}
}

// AnalysisWorkflow is the durable form of Coach.Run after ingest.
func AnalysisWorkflow(ctx workflow.Context, input AnalysisInput) (AnalysisOutput, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting analysis workflow", "id", input.ID)

	var result AnalysisOutput
	current := WorkflowProgress{Stage: StageUploading, Progress: 5, Message: "Upload saved"}
	if err := workflow.SetQueryHandler(ctx, ProgressQuery, func() (WorkflowProgress, error) {
		return current, nil
	}); err != nil {
		return result, fmt.Errorf("failed to register progress query: %w", err)
	}
	report := func(stage Stage, progress int, message string) {
		current = WorkflowProgress{Stage: stage, Progress: progress, Message: message}
	}

	// Vendor steps retry inside the activity as well; keep Temporal's policy short.
	vendorCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:    2,
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
		},
	})
	// Core video steps are deterministic on their input and are not retried.
	videoCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	storageCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:    3,
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
		},
	})

	report(StageClassifying, 20, "Classifying exercise")
	if err := workflow.ExecuteActivity(vendorCtx, "ClassifyActivity", input).Get(ctx, &result.Exercise); err != nil {
		return result, fmt.Errorf("classification failed: %w", err)
	}
	result.Moments = []analysis.Moment{}
	if result.Exercise == analysis.ExerciseUnknown {
		logger.Info("Exercise not recognized, skipping posture analysis", "id", input.ID)
		report(StageStoring, 100, "Analysis complete")
		return result, nil
	}

	report(StageAnnotating, 35, "Labeling frames")
	if err := workflow.ExecuteActivity(videoCtx, "AnnotateActivity", input).Get(ctx, &result.Frames); err != nil {
		return result, fmt.Errorf("annotation failed: %w", err)
	}

	report(StageAnalyzing, 55, "Analyzing posture")
	analyzeInput := AnalyzeInput{ID: input.ID, Exercise: result.Exercise}
	if err := workflow.ExecuteActivity(vendorCtx, "AnalyzeActivity", analyzeInput).Get(ctx, &result.Moments); err != nil {
		return result, fmt.Errorf("posture analysis failed: %w", err)
	}

	report(StageExtracting, 80, fmt.Sprintf("Extracting %d stills", len(result.Moments)))
	extractInput := ExtractInput{ID: input.ID, Moments: result.Moments}
	if err := workflow.ExecuteActivity(videoCtx, "ExtractActivity", extractInput).Get(ctx, &result.Stills); err != nil {
		return result, fmt.Errorf("still extraction failed: %w", err)
	}

	report(StageStoring, 90, "Storing artifacts")
	storeInput := StoreInput{ID: input.ID, Stills: result.Stills}
	if err := workflow.ExecuteActivity(storageCtx, "StoreActivity", storeInput).Get(ctx, &result.Artifacts); err != nil {
		logger.Warn("Storing artifacts failed", "id", input.ID, "error", err)
	}

	report(StageStoring, 100, "Analysis complete")
	logger.Info("Analysis workflow completed",
		"id", input.ID,
		"exercise", result.Exercise,
		"moments", len(result.Moments),
		"frames", result.Frames)
	return result, nil
}

// Activities adapts Coach steps to Temporal activities. Each one rebuilds the
// workspace paths from the run id.
type Activities struct {
	coach  *Coach
	logger *zap.Logger
}

func NewActivities(coach *Coach, logger *zap.Logger) *Activities {
	return &Activities{coach: coach, logger: logger}
}

// ClassifyActivity probes the upload and classifies the exercise.
func (a *Activities) ClassifyActivity(ctx context.Context, input AnalysisInput) (analysis.Exercise, error) {
	logger := activity.GetLogger(ctx)
	ws := a.coach.Workspace(input.ID)

	if _, err := a.coach.Probe(ctx, ws.Input); err != nil {
		return analysis.ExerciseUnknown, toApplicationError(err)
	}
	exercise, err := a.coach.Classify(ctx, ws.Input)
	if err != nil {
		logger.Error("Classification failed", "id", input.ID, "error", err)
		return analysis.ExerciseUnknown, toApplicationError(err)
	}
	logger.Info("Classification activity completed", "id", input.ID, "exercise", exercise)
	return exercise, nil
}

// AnnotateActivity writes the labeled copy and returns its frame count.
func (a *Activities) AnnotateActivity(ctx context.Context, input AnalysisInput) (int, error) {
	ws := a.coach.Workspace(input.ID)
	res, err := a.coach.Annotate(ctx, ws.Input, ws.Annotated)
	if err != nil {
		return 0, toApplicationError(err)
	}
	activity.GetLogger(ctx).Info("Annotation activity completed", "id", input.ID, "frames", res.Frames, "last_label", res.LastLabel)
	return res.Frames, nil
}

func (a *Activities) AnalyzeActivity(ctx context.Context, input AnalyzeInput) ([]analysis.Moment, error) {
	ws := a.coach.Workspace(input.ID)
	moments, err := a.coach.Analyze(ctx, ws.Annotated, input.Exercise)
	if err != nil {
		return nil, toApplicationError(err)
	}
	activity.GetLogger(ctx).Info("Analysis activity completed", "id", input.ID, "moments", len(moments))
	return moments, nil
}

func (a *Activities) ExtractActivity(ctx context.Context, input ExtractInput) ([]string, error) {
	ws := a.coach.Workspace(input.ID)
	stills, err := a.coach.Extract(ctx, ws, input.Moments)
	if err != nil {
		return nil, toApplicationError(err)
	}
	return stills, nil
}

// StoreActivity is a no-op when artifact storage is disabled.
func (a *Activities) StoreActivity(ctx context.Context, input StoreInput) ([]string, error) {
	ws := a.coach.Workspace(input.ID)
	keys, err := a.coach.Store(ctx, ws.ID, ws.Annotated, input.Stills)
	if err != nil {
		a.logger.Warn("Some artifacts were not stored", zap.String("id", input.ID), zap.Error(err))
	}
	return keys, nil
}

var applicationErrors = []struct {
	kind string
	err  error
}{
	{"VideoNotFound", video.ErrNotFound},
	{"DecodeUnavailable", video.ErrDecodeUnavailable},
	{"StreamFault", video.ErrStreamFault},
	{"TooLong", ErrTooLong},
	{"VendorTimeout", analysis.ErrTimeout},
	{"VendorFileFailed", analysis.ErrFileFailed},
}

// toApplicationError marks known pipeline failures as non-retryable and tags
// them so fromApplicationError can restore the sentinel on the client side.
func toApplicationError(err error) error {
	for _, e := range applicationErrors {
		if errors.Is(err, e.err) {
			return temporal.NewNonRetryableApplicationError(err.Error(), e.kind, err)
		}
	}
	return err
}

func fromApplicationError(err error) error {
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		appErr, ok := cur.(*temporal.ApplicationError)
		if !ok {
			continue
		}
		for _, e := range applicationErrors {
			if appErr.Type() == e.kind {
				return fmt.Errorf("%w: %s", e.err, appErr.Error())
			}
		}
	}
	return err
}
