package job

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrJobNotFound = errors.New("job not found")

// Repository persists jobs and their progress events. Store is backed by
// Postgres and MemoryStore by a map.
type Repository interface {
	CreateJob(ctx context.Context, id uuid.UUID, filename, workflowID string) (*Job, error)
	GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error)
	GetJobWithProgress(ctx context.Context, jobID uuid.UUID, limit int) (*JobWithProgress, error)
	UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status JobStatus, stage JobStage, progress int) error
	UpdateJobError(ctx context.Context, jobID uuid.UUID, errorMessage string) error
	UpdateJobResult(ctx context.Context, jobID uuid.UUID, result any) error
	AddProgressEvent(ctx context.Context, jobID uuid.UUID, stage JobStage, progress int, message string, details map[string]any) error
	CleanupOldJobs(ctx context.Context, olderThan time.Duration) (int64, error)
}

const defaultEventLimit = 10
