package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProgressFunc reports a stage change of a running task.
type ProgressFunc func(stage JobStage, progress int, message string)

// Task is the background work of a job. Its result becomes the job result.
type Task func(ctx context.Context, progress ProgressFunc) (any, error)

// Manager handles job lifecycle and SSE broadcasting
type Manager struct {
	store     Repository
	logger    *zap.Logger
	clients   map[uuid.UUID][]chan ProgressUpdate
	clientsMu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a new job manager
func NewManager(store Repository, logger *zap.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:   store,
		logger:  logger,
		clients: make(map[uuid.UUID][]chan ProgressUpdate),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// CreateJob creates a new pending job
func (m *Manager) CreateJob(ctx context.Context, id uuid.UUID, filename, workflowID string) (*Job, error) {
	job, err := m.store.CreateJob(ctx, id, filename, workflowID)
	if err != nil {
		return nil, err
	}

	m.logger.Info("Job created",
		zap.String("job_id", job.ID.String()),
		zap.String("filename", filename),
		zap.String("workflow_id", workflowID),
	)

	return job, nil
}

// GetJob retrieves a job by ID
func (m *Manager) GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	return m.store.GetJob(ctx, jobID)
}

// GetJobWithProgress retrieves a job with its progress events
func (m *Manager) GetJobWithProgress(ctx context.Context, jobID uuid.UUID, limit int) (*JobWithProgress, error) {
	return m.store.GetJobWithProgress(ctx, jobID, limit)
}

// Start runs task in the background and records its progress, result or
// failure on the job.
func (m *Manager) Start(jobID uuid.UUID, task Task) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx := m.ctx

		result, err := task(ctx, func(stage JobStage, progress int, message string) {
			// 100 is reserved for CompleteJob.
			if err := m.EmitProgress(ctx, jobID, stage, min(progress, 99), message, nil); err != nil {
				m.logger.Warn("Failed to record progress", zap.String("job_id", jobID.String()), zap.Error(err))
			}
		})

		// The job outcome is recorded even when shutdown cancelled ctx.
		final := context.WithoutCancel(ctx)
		if err != nil {
			if emitErr := m.EmitError(final, jobID, fmt.Sprintf("Processing failed: %v", err)); emitErr != nil {
				m.logger.Error("Failed to record job failure", zap.String("job_id", jobID.String()), zap.Error(emitErr))
			}
			return
		}
		if err := m.CompleteJob(final, jobID, result); err != nil {
			m.logger.Error("Failed to record job result", zap.String("job_id", jobID.String()), zap.Error(err))
		}
	}()
}

// Shutdown waits for running tasks. When ctx expires first the tasks are
// cancelled and ctx.Err() is returned once they have stopped.
func (m *Manager) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.cancel()
		return nil
	case <-ctx.Done():
		m.cancel()
		<-done
		return ctx.Err()
	}
}

// EmitProgress emits a progress update for a job
func (m *Manager) EmitProgress(ctx context.Context, jobID uuid.UUID, stage JobStage, progress int, message string, details map[string]any) error {
	status := StatusProcessing
	if progress >= 100 {
		status = StatusCompleted
	}

	err := m.store.UpdateJobStatus(ctx, jobID, status, stage, progress)
	if err != nil {
		m.logger.Error("Failed to update job status",
			zap.String("job_id", jobID.String()),
			zap.Error(err),
		)
		return err
	}

	err = m.store.AddProgressEvent(ctx, jobID, stage, progress, message, details)
	if err != nil {
		m.logger.Error("Failed to add progress event",
			zap.String("job_id", jobID.String()),
			zap.Error(err),
		)
		return err
	}

	update := ProgressUpdate{
		JobID:     jobID,
		Stage:     stage,
		Progress:  progress,
		Message:   message,
		Details:   details,
		Timestamp: time.Now(),
	}

	m.broadcastUpdate(jobID, update)

	m.logger.Info("Progress emitted",
		zap.String("job_id", jobID.String()),
		zap.String("stage", string(stage)),
		zap.Int("progress", progress),
		zap.String("message", message),
	)

	return nil
}

// EmitError emits an error for a job
func (m *Manager) EmitError(ctx context.Context, jobID uuid.UUID, errorMessage string) error {
	err := m.store.UpdateJobError(ctx, jobID, errorMessage)
	if err != nil {
		m.logger.Error("Failed to update job error",
			zap.String("job_id", jobID.String()),
			zap.Error(err),
		)
		return err
	}

	if err := m.store.AddProgressEvent(ctx, jobID, StageFailed, 0, errorMessage, nil); err != nil {
		m.logger.Warn("Failed to add failure event", zap.String("job_id", jobID.String()), zap.Error(err))
	}

	update := ProgressUpdate{
		JobID:     jobID,
		Stage:     StageFailed,
		Progress:  0,
		Message:   errorMessage,
		Timestamp: time.Now(),
	}

	m.broadcastUpdate(jobID, update)

	m.logger.Error("Job failed",
		zap.String("job_id", jobID.String()),
		zap.String("error", errorMessage),
	)

	return nil
}

// CompleteJob marks a job as completed with result
func (m *Manager) CompleteJob(ctx context.Context, jobID uuid.UUID, result any) error {
	err := m.store.UpdateJobResult(ctx, jobID, result)
	if err != nil {
		m.logger.Error("Failed to complete job",
			zap.String("job_id", jobID.String()),
			zap.Error(err),
		)
		return err
	}

	err = m.EmitProgress(ctx, jobID, StageCompleted, 100, "Analysis completed successfully", nil)
	if err != nil {
		return err
	}

	m.logger.Info("Job completed",
		zap.String("job_id", jobID.String()),
	)

	return nil
}

// Subscribe adds an SSE client for a job
func (m *Manager) Subscribe(jobID uuid.UUID) chan ProgressUpdate {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()

	ch := make(chan ProgressUpdate, 10)
	m.clients[jobID] = append(m.clients[jobID], ch)

	m.logger.Info("Client subscribed",
		zap.String("job_id", jobID.String()),
		zap.Int("total_clients", len(m.clients[jobID])),
	)

	return ch
}

// Unsubscribe removes an SSE client
func (m *Manager) Unsubscribe(jobID uuid.UUID, ch chan ProgressUpdate) {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()

	clients := m.clients[jobID]
	for i, client := range clients {
		if client == ch {
			m.clients[jobID] = append(clients[:i], clients[i+1:]...)
			close(ch)
			break
		}
	}

	if len(m.clients[jobID]) == 0 {
		delete(m.clients, jobID)
	}

	m.logger.Info("Client unsubscribed",
		zap.String("job_id", jobID.String()),
		zap.Int("remaining_clients", len(m.clients[jobID])),
	)
}

// broadcastUpdate broadcasts a progress update to all subscribers
func (m *Manager) broadcastUpdate(jobID uuid.UUID, update ProgressUpdate) {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()

	clients := m.clients[jobID]
	if len(clients) == 0 {
		return
	}

	m.logger.Debug("Broadcasting update",
		zap.String("job_id", jobID.String()),
		zap.Int("client_count", len(clients)),
	)

	for _, ch := range clients {
		select {
		case ch <- update:
		default:
			m.logger.Warn("Client channel full, skipping update",
				zap.String("job_id", jobID.String()),
			)
		}
	}
}

// CleanupOldJobs cleans up jobs older than the specified duration
func (m *Manager) CleanupOldJobs(ctx context.Context, olderThan time.Duration) error {
	count, err := m.store.CleanupOldJobs(ctx, olderThan)
	if err != nil {
		m.logger.Error("Failed to cleanup old jobs", zap.Error(err))
		return err
	}

	m.logger.Info("Cleaned up old jobs",
		zap.Int64("count", count),
		zap.Duration("older_than", olderThan),
	)

	return nil
}

// FormatSSEMessage formats a payload as an SSE message of the given event type
func FormatSSEMessage(event string, data any) (string, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal update: %w", err)
	}

	return fmt.Sprintf("event: %s\ndata: %s\n\n", event, payload), nil
}
