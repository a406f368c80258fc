package pipeline

import (
	"FormCoach/internal/analysis"
	"FormCoach/internal/config"
	"FormCoach/internal/metrics"
	"FormCoach/internal/pipeline/storage"
	"FormCoach/pkg/ffmpeg"
	"FormCoach/pkg/video"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
)

type Stage string

const (
	StageUploading   Stage = "uploading"
	StageProbing     Stage = "probing"
	StageClassifying Stage = "classifying"
	StageAnnotating  Stage = "annotating"
	StageAnalyzing   Stage = "analyzing"
	StageExtracting  Stage = "extracting"
	StageStoring     Stage = "storing"
)

var (
	// ErrTooLong is returned when an upload exceeds pipeline.max_duration_sec.
	ErrTooLong = errors.New("video exceeds maximum duration")
	// ErrNoVendor is returned by vendor steps of a coach built without a client.
	ErrNoVendor = errors.New("analysis vendor not configured")
)

type ProgressFunc func(stage Stage, progress int, message string)

// Request is one analysis of an uploaded video.
type Request struct {
	ID       string
	Upload   io.Reader
	Progress ProgressFunc
}

// Engine runs analyses. Coach runs them in process and TemporalWorkflow hands
// them to a Temporal worker.
type Engine interface {
	Run(ctx context.Context, req Request) (*analysis.Report, error)
}

type Prober interface {
	Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error)
}

// Coach wires the uploaded video through classification, annotation, posture
// analysis and still extraction.
type Coach struct {
	vendor    analysis.Client
	annotator *video.Annotator
	extractor *video.Extractor
	prober    Prober
	storage   storage.Storage
	cfg       *config.Config
	logger    *zap.Logger
	slots     chan struct{}
}

// NewCoach builds a coach. prober and store may be nil to skip probing and
// artifact persistence. vendor may be nil on the server side of the Temporal
// engine, which only ingests uploads and attaches stills.
func NewCoach(cfg *config.Config, vendor analysis.Client, backend video.Backend, prober Prober, store storage.Storage, logger *zap.Logger) *Coach {
	workers := cfg.Pipeline.MaxWorkers
	if workers <= 0 {
		workers = 1
	}
	return &Coach{
		vendor:    vendor,
		annotator: video.NewAnnotator(backend, cfg.Video, logger),
		extractor: video.NewExtractor(backend, cfg.Video, logger),
		prober:    prober,
		storage:   store,
		cfg:       cfg,
		logger:    logger,
		slots:     make(chan struct{}, workers),
	}
}

func (c *Coach) Run(ctx context.Context, req Request) (*analysis.Report, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	progress := req.Progress
	if progress == nil {
		progress = func(Stage, int, string) {}
	}

	start := time.Now()
	progress(StageUploading, 5, "Saving upload")
	ingest, err := c.Ingest(ctx, req.ID, req.Upload)
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	defer c.Cleanup(ingest.Workspace)

	report, err := c.execute(ctx, ingest.Workspace, progress)
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues("failed").Inc()
		c.logger.Error("Analysis failed", zap.String("id", ingest.Workspace.ID), zap.Error(err), zap.Duration("duration", time.Since(start)))
		return nil, err
	}
	report.DurationMs = time.Since(start).Milliseconds()
	metrics.AnalysesTotal.WithLabelValues("completed").Inc()
	c.logger.Info("Analysis completed",
		zap.String("id", ingest.Workspace.ID),
		zap.String("exercise", string(report.Exercise)),
		zap.Int("moments", len(report.Analysis)),
		zap.Duration("duration", time.Since(start)))
	return report, nil
}

func (c *Coach) execute(ctx context.Context, ws *Workspace, progress ProgressFunc) (*analysis.Report, error) {
	progress(StageProbing, 10, "Probing video")
	if _, err := c.Probe(ctx, ws.Input); err != nil {
		return nil, err
	}

	progress(StageClassifying, 20, "Classifying exercise")
	exercise, err := c.Classify(ctx, ws.Input)
	if err != nil {
		return nil, err
	}
	report := &analysis.Report{Exercise: exercise, Analysis: []analysis.Moment{}}
	if exercise == analysis.ExerciseUnknown {
		c.logger.Info("Exercise not recognized, skipping posture analysis", zap.String("id", ws.ID))
		return report, nil
	}

	progress(StageAnnotating, 35, "Labeling frames")
	if _, err := c.Annotate(ctx, ws.Input, ws.Annotated); err != nil {
		return nil, err
	}

	progress(StageAnalyzing, 55, "Analyzing posture")
	moments, err := c.Analyze(ctx, ws.Annotated, exercise)
	if err != nil {
		return nil, err
	}

	progress(StageExtracting, 80, fmt.Sprintf("Extracting %d stills", len(moments)))
	stills, err := c.Extract(ctx, ws, moments)
	if err != nil {
		return nil, err
	}

	if c.storage != nil {
		progress(StageStoring, 90, "Storing artifacts")
		keys, err := c.Store(ctx, ws.ID, ws.Annotated, stills)
		if err != nil {
			c.logger.Warn("Some artifacts were not stored", zap.String("id", ws.ID), zap.Error(err))
		}
		report.Artifacts = keys
	}

	report.Analysis = c.Attach(moments, stills)
	return report, nil
}

// Probe rejects uploads the prober cannot read or that run longer than the
// configured maximum. It is a no-op without a prober.
func (c *Coach) Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error) {
	if c.prober == nil {
		return nil, nil
	}
	defer observe(StageProbing, time.Now())

	res, err := c.prober.Probe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: probe %s: %w", video.ErrDecodeUnavailable, path, err)
	}
	if limit := c.cfg.Pipeline.MaxDurationSec; limit > 0 && res.Duration.Seconds() > limit {
		return nil, fmt.Errorf("%w: %s is longer than %.0fs", ErrTooLong, res.Duration, limit)
	}
	c.logger.Info("Probed video",
		zap.String("path", path),
		zap.Duration("duration", res.Duration),
		zap.Int("width", res.Width),
		zap.Int("height", res.Height),
		zap.String("codec", res.CodecName))
	return res, nil
}

// Classify uploads the raw video and asks the vendor which exercise it shows.
func (c *Coach) Classify(ctx context.Context, path string) (analysis.Exercise, error) {
	defer observe(StageClassifying, time.Now())

	file, err := c.upload(ctx, path)
	if err != nil {
		return analysis.ExerciseUnknown, err
	}
	defer c.deleteFile(ctx, file.Name)

	var exercise analysis.Exercise
	err = Retry(ctx, c.logger, c.cfg.Pipeline.Retry, fmt.Sprintf("classify %s", file.Name), func() error {
		var err error
		exercise, err = c.vendor.Classify(ctx, file)
		return err
	})
	if err != nil {
		return analysis.ExerciseUnknown, fmt.Errorf("failed to classify exercise: %w", err)
	}
	metrics.ExercisesTotal.WithLabelValues(string(exercise)).Inc()
	return exercise, nil
}

// Annotate burns elapsed-time labels into a copy of the video. It is never retried.
func (c *Coach) Annotate(ctx context.Context, in, out string) (*video.AnnotateResult, error) {
	defer observe(StageAnnotating, time.Now())

	res, err := c.annotator.Annotate(ctx, in, out)
	if err != nil {
		return nil, fmt.Errorf("failed to annotate video: %w", err)
	}
	metrics.FramesAnnotatedTotal.Add(float64(res.Frames))
	return res, nil
}

// Analyze uploads the labeled copy and asks for posture errors against the
// exercise's criteria.
func (c *Coach) Analyze(ctx context.Context, annotated string, exercise analysis.Exercise) ([]analysis.Moment, error) {
	defer observe(StageAnalyzing, time.Now())

	criteria, ok := analysis.Criteria(exercise)
	if !ok {
		return nil, fmt.Errorf("no criteria for exercise %q", exercise)
	}

	file, err := c.upload(ctx, annotated)
	if err != nil {
		return nil, err
	}
	defer c.deleteFile(ctx, file.Name)

	var moments []analysis.Moment
	err = Retry(ctx, c.logger, c.cfg.Pipeline.Retry, fmt.Sprintf("analyze %s", file.Name), func() error {
		var err error
		moments, err = c.vendor.Analyze(ctx, file, criteria)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to analyze posture: %w", err)
	}
	return moments, nil
}

// Extract writes a still of the original video for every moment. The result
// is index aligned with moments; an empty path marks a moment without a still.
func (c *Coach) Extract(ctx context.Context, ws *Workspace, moments []analysis.Moment) ([]string, error) {
	defer observe(StageExtracting, time.Now())

	paths := make([]string, len(moments))
	for i, m := range moments {
		still, ok, err := c.extractor.ExtractStill(ctx, m.Timestamp, ws.Input)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		switch {
		case errors.Is(err, video.ErrMalformedTimestamp):
			metrics.StillsTotal.WithLabelValues("malformed").Inc()
			c.logger.Warn("Model returned malformed timestamp", zap.String("timestamp", m.Timestamp), zap.Error(err))
			continue
		case err != nil:
			metrics.StillsTotal.WithLabelValues("error").Inc()
			c.logger.Warn("Still extraction failed", zap.String("timestamp", m.Timestamp), zap.Error(err))
			continue
		case !ok:
			metrics.StillsTotal.WithLabelValues("miss").Inc()
			continue
		}

		path := ws.StillPath(i)
		if err := os.WriteFile(path, still.JPEG, 0644); err != nil {
			return nil, fmt.Errorf("failed to write still: %w", err)
		}
		metrics.StillsTotal.WithLabelValues("ok").Inc()
		paths[i] = path
	}
	return paths, nil
}

// Attach inlines every written still into its moment as a data URI.
func (c *Coach) Attach(moments []analysis.Moment, stills []string) []analysis.Moment {
	out := make([]analysis.Moment, len(moments))
	copy(out, moments)
	for i := range out {
		out[i].ImageURL = ""
		if i >= len(stills) || stills[i] == "" {
			continue
		}
		data, err := os.ReadFile(stills[i])
		if err != nil {
			c.logger.Warn("Failed to read still", zap.String("path", stills[i]), zap.Error(err))
			continue
		}
		out[i].ImageURL = (&video.Still{JPEG: data}).DataURI()
	}
	return out
}

// Store uploads the labeled video and stills under id/. It returns the keys
// that were stored.
func (c *Coach) Store(ctx context.Context, id, annotated string, stills []string) ([]string, error) {
	if c.storage == nil {
		return nil, nil
	}
	defer observe(StageStoring, time.Now())

	type artifact struct{ path, key string }
	artifacts := []artifact{{annotated, fmt.Sprintf("%s/annotated.mp4", id)}}
	for i, p := range stills {
		if p != "" {
			artifacts = append(artifacts, artifact{p, fmt.Sprintf("%s/still_%d.jpg", id, i)})
		}
	}

	var keys []string
	var errs []error
	for _, a := range artifacts {
		err := Retry(ctx, c.logger, c.cfg.Pipeline.Retry, fmt.Sprintf("store %s", a.key), func() error {
			file, err := os.Open(a.path)
			if err != nil {
				return Permanent(err)
			}
			defer file.Close()
			return c.storage.Upload(ctx, c.cfg.Storage.Bucket, a.key, file)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("store %s: %w", a.key, err))
			continue
		}
		c.logger.Info("Storage upload completed", zap.String("key", a.key))
		keys = append(keys, a.key)
	}
	return keys, errors.Join(errs...)
}

// upload sends path to the vendor and waits until the file is usable.
func (c *Coach) upload(ctx context.Context, path string) (*analysis.File, error) {
	if c.vendor == nil {
		return nil, ErrNoVendor
	}
	var file *analysis.File
	err := Retry(ctx, c.logger, c.cfg.Pipeline.Retry, fmt.Sprintf("upload %s", path), func() error {
		var err error
		file, err = c.vendor.Upload(ctx, path)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload video: %w", err)
	}

	interval := time.Duration(c.cfg.Analysis.PollIntervalSec * float64(time.Second))
	timeout := time.Duration(c.cfg.Analysis.PollTimeoutSec * float64(time.Second))
	active, err := analysis.WaitActive(ctx, c.vendor, file.Name, interval, timeout)
	if err != nil {
		c.deleteFile(ctx, file.Name)
		return nil, err
	}
	return active, nil
}

// deleteFile removes a vendor upload even when ctx is already cancelled.
func (c *Coach) deleteFile(ctx context.Context, name string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := c.vendor.Delete(ctx, name); err != nil {
		c.logger.Warn("Failed to delete uploaded file", zap.String("file", name), zap.Error(err))
	}
}

func (c *Coach) acquire(ctx context.Context) (func(), error) {
	select {
	case c.slots <- struct{}{}:
		metrics.ActiveAnalyses.Inc()
		return func() {
			<-c.slots
			metrics.ActiveAnalyses.Dec()
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func observe(stage Stage, start time.Time) {
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
}
