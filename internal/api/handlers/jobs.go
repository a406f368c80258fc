package handlers

import (
	"FormCoach/internal/job"
	"FormCoach/internal/pipeline"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobsHandler creates asynchronous analyses and reports their status
type JobsHandler struct {
	jobManager     *job.Manager
	engine         pipeline.Engine
	spoolDir       string
	maxUploadBytes int64
	durable        bool
	logger         *zap.Logger
}

// NewJobsHandler creates a new jobs handler. Uploads are spooled to spoolDir
// because the multipart body is gone once the request returns. durable marks
// engines that run jobs as Temporal workflows.
func NewJobsHandler(jobManager *job.Manager, engine pipeline.Engine, spoolDir string, maxUploadBytes int64, durable bool, logger *zap.Logger) *JobsHandler {
	return &JobsHandler{
		jobManager:     jobManager,
		engine:         engine,
		spoolDir:       spoolDir,
		maxUploadBytes: maxUploadBytes,
		durable:        durable,
		logger:         logger,
	}
}

// CreateJob stores the upload, starts the analysis and returns the job id
// immediately
func (h *JobsHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	file, header, status, err := openUpload(w, r, h.maxUploadBytes)
	if err != nil {
		h.logger.Warn("Rejected upload", zap.Int("status", status), zap.Error(err))
		writeError(w, status, err.Error())
		return
	}
	defer file.Close()

	spooled, err := h.spool(file)
	if err != nil {
		h.logger.Error("Failed to spool upload", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to store upload")
		return
	}

	id := uuid.New()
	workflowID := ""
	if h.durable {
		workflowID = pipeline.WorkflowID(id.String())
	}

	createdJob, err := h.jobManager.CreateJob(r.Context(), id, header.Filename, workflowID)
	if err != nil {
		os.Remove(spooled)
		h.logger.Error("Failed to create job", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	h.jobManager.Start(createdJob.ID, h.analyze(createdJob.ID, spooled))

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":     createdJob.ID,
		"message":    "Video analysis started",
		"status_url": fmt.Sprintf("/jobs/%s", createdJob.ID),
		"stream_url": fmt.Sprintf("/jobs/%s/stream", createdJob.ID),
	})

	h.logger.Info("Job created and analysis started",
		zap.String("job_id", createdJob.ID.String()),
		zap.String("filename", header.Filename),
	)
}

func (h *JobsHandler) analyze(jobID uuid.UUID, spooled string) job.Task {
	return func(ctx context.Context, progress job.ProgressFunc) (any, error) {
		defer os.Remove(spooled)

		upload, err := os.Open(spooled)
		if err != nil {
			return nil, fmt.Errorf("failed to open spooled upload: %w", err)
		}
		defer upload.Close()

		return h.engine.Run(ctx, pipeline.Request{
			ID:     jobID.String(),
			Upload: upload,
			Progress: func(stage pipeline.Stage, p int, message string) {
				progress(job.JobStage(stage), p, message)
			},
		})
	}
}

func (h *JobsHandler) spool(file io.Reader) (string, error) {
	if err := os.MkdirAll(h.spoolDir, 0755); err != nil {
		return "", err
	}
	out, err := os.CreateTemp(h.spoolDir, "upload-*.mp4")
	if err != nil {
		return "", err
	}
	_, err = io.Copy(out, file)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(out.Name())
		return "", err
	}
	return out.Name(), nil
}

// GetJob returns the status of a job as JSON
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobIDStr := chi.URLParam(r, "id")
	jobID, err := uuid.Parse(jobIDStr)
	if err != nil {
		h.logger.Warn("Invalid job ID", zap.String("job_id", jobIDStr), zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	jobWithProgress, err := h.jobManager.GetJobWithProgress(r.Context(), jobID, 10)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.Error("Failed to get job", zap.String("job_id", jobID.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	writeJSON(w, http.StatusOK, jobWithProgress)

	h.logger.Debug("Job status retrieved",
		zap.String("job_id", jobID.String()),
		zap.String("status", string(jobWithProgress.Status)),
	)
}
