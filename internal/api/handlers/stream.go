package handlers

import (
	"FormCoach/internal/job"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultHeartbeat = 15 * time.Second

// StreamHandler handles SSE streaming for job progress
type StreamHandler struct {
	jobManager *job.Manager
	heartbeat  time.Duration
	logger     *zap.Logger
}

// NewStreamHandler creates a new stream handler. A zero heartbeat uses 15s.
func NewStreamHandler(jobManager *job.Manager, heartbeat time.Duration, logger *zap.Logger) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &StreamHandler{
		jobManager: jobManager,
		heartbeat:  heartbeat,
		logger:     logger,
	}
}

// StreamProgress streams job progress via Server-Sent Events until the job
// finishes or the client goes away
func (h *StreamHandler) StreamProgress(w http.ResponseWriter, r *http.Request) {
	jobIDStr := chi.URLParam(r, "id")
	jobID, err := uuid.Parse(jobIDStr)
	if err != nil {
		h.logger.Warn("Invalid job ID", zap.String("job_id", jobIDStr), zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("Streaming not supported - ResponseWriter does not implement http.Flusher")
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	// Subscribe before reading the job so no update between the two is lost.
	progressChan := h.jobManager.Subscribe(jobID)
	defer func() {
		h.jobManager.Unsubscribe(jobID, progressChan)
		h.logger.Info("SSE stream closed", zap.String("job_id", jobID.String()))
	}()

	existingJob, err := h.jobManager.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.Error("Failed to get job", zap.String("job_id", jobID.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Info("SSE stream established",
		zap.String("job_id", jobID.String()),
		zap.String("remote_addr", r.RemoteAddr),
	)

	if err := h.sendStatus(w, flusher, existingJob); err != nil {
		h.logger.Error("Failed to send initial status", zap.String("job_id", jobID.String()), zap.Error(err))
		return
	}
	if existingJob.Finished() {
		if err := h.sendFinal(w, flusher, existingJob); err != nil {
			h.logger.Error("Failed to send completion event", zap.String("job_id", jobID.String()), zap.Error(err))
		}
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	h.streamEventLoop(r.Context(), w, flusher, jobID, progressChan, heartbeat)
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	// Disable buffering for nginx and other reverse proxies.
	w.Header().Set("X-Accel-Buffering", "no")
}

func (h *StreamHandler) sendStatus(w http.ResponseWriter, flusher http.Flusher, jobData *job.Job) error {
	data := map[string]any{
		"job_id":   jobData.ID.String(),
		"status":   jobData.Status,
		"stage":    jobData.Stage,
		"progress": jobData.Progress,
		"message":  "Connected to progress stream",
	}
	return writeSSEEvent(w, flusher, "status", data)
}

// sendFinal replays the terminal event for a job that finished before the
// client connected.
func (h *StreamHandler) sendFinal(w http.ResponseWriter, flusher http.Flusher, jobData *job.Job) error {
	update := job.ProgressUpdate{
		JobID:     jobData.ID,
		Stage:     jobData.Stage,
		Progress:  jobData.Progress,
		Message:   jobData.ErrorMessage,
		Timestamp: jobData.UpdatedAt,
	}
	if jobData.Status == job.StatusFailed {
		update.Stage = job.StageFailed
	}
	return sendCompletionEvent(w, flusher, update)
}

func (h *StreamHandler) streamEventLoop(
	ctx context.Context,
	w http.ResponseWriter,
	flusher http.Flusher,
	jobID uuid.UUID,
	progressChan <-chan job.ProgressUpdate,
	heartbeat *time.Ticker,
) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Client disconnected",
				zap.String("job_id", jobID.String()),
				zap.String("reason", ctx.Err().Error()),
			)
			return

		case update, ok := <-progressChan:
			if !ok {
				h.logger.Info("Progress channel closed", zap.String("job_id", jobID.String()))
				return
			}

			if err := sendProgressUpdate(w, flusher, update); err != nil {
				h.logger.Error("Failed to send progress update", zap.String("job_id", jobID.String()), zap.Error(err))
				return
			}

			if update.Finished() {
				if err := sendCompletionEvent(w, flusher, update); err != nil {
					h.logger.Error("Failed to send completion event", zap.String("job_id", jobID.String()), zap.Error(err))
				}
				h.logger.Info("Job finished, closing stream",
					zap.String("job_id", jobID.String()),
					zap.String("final_stage", string(update.Stage)),
				)
				return
			}

		case <-heartbeat.C:
			// SSE comments are ignored by clients but keep proxies from timing out.
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				h.logger.Error("Failed to send heartbeat", zap.String("job_id", jobID.String()), zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

func updatePayload(update job.ProgressUpdate) map[string]any {
	data := map[string]any{
		"job_id":    update.JobID.String(),
		"stage":     update.Stage,
		"progress":  update.Progress,
		"message":   update.Message,
		"timestamp": update.Timestamp.Format(time.RFC3339),
	}
	if len(update.Details) > 0 {
		data["details"] = update.Details
	}
	return data
}

func sendProgressUpdate(w http.ResponseWriter, flusher http.Flusher, update job.ProgressUpdate) error {
	return writeSSEEvent(w, flusher, "progress", updatePayload(update))
}

func sendCompletionEvent(w http.ResponseWriter, flusher http.Flusher, update job.ProgressUpdate) error {
	eventType := "complete"
	if update.Stage == job.StageFailed {
		eventType = "error"
	}
	return writeSSEEvent(w, flusher, eventType, updatePayload(update))
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	message, err := job.FormatSSEMessage(event, data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprint(w, message); err != nil {
		return fmt.Errorf("failed to write SSE event: %w", err)
	}
	flusher.Flush()
	return nil
}
