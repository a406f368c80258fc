package job

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// Store handles database operations for jobs
type Store struct {
	db *pgxpool.Pool
}

// NewStore creates a new job store
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Connect opens a pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// Migrate creates the jobs and progress_events tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// CreateJob creates a new job in the database
func (s *Store) CreateJob(ctx context.Context, id uuid.UUID, filename, workflowID string) (*Job, error) {
	now := time.Now().UTC()
	job := &Job{
		ID:         id,
		Filename:   filename,
		Status:     StatusPending,
		Progress:   0,
		WorkflowID: workflowID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	query := `
		INSERT INTO jobs (id, filename, status, progress, workflow_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
	`

	_, err := s.db.Exec(ctx, query,
		job.ID, job.Filename, job.Status,
		job.Progress, job.WorkflowID,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	return job, nil
}

// GetJob retrieves a job by ID
func (s *Store) GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	query := `
		SELECT id, filename, status, stage, progress, workflow_id,
		       error_message, result, created_at, updated_at, completed_at
		FROM jobs
		WHERE id = $1
	`

	var job Job
	var stage, errorMessage, workflowID *string
	var result []byte
	var completedAt *time.Time

	err := s.db.QueryRow(ctx, query, jobID).Scan(
		&job.ID, &job.Filename, &job.Status, &stage, &job.Progress,
		&workflowID, &errorMessage, &result,
		&job.CreatedAt, &job.UpdatedAt, &completedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	if stage != nil {
		job.Stage = JobStage(*stage)
	}
	if errorMessage != nil {
		job.ErrorMessage = *errorMessage
	}
	if workflowID != nil {
		job.WorkflowID = *workflowID
	}
	if result != nil {
		job.Result = result
	}
	job.CompletedAt = completedAt

	return &job, nil
}

// GetJobWithProgress retrieves a job with its latest progress events, oldest first
func (s *Store) GetJobWithProgress(ctx context.Context, jobID uuid.UUID, limit int) (*JobWithProgress, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultEventLimit
	}

	query := `
		SELECT id, job_id, stage, progress, message, details, created_at
		FROM progress_events
		WHERE job_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := s.db.Query(ctx, query, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get progress events: %w", err)
	}
	defer rows.Close()

	events := []ProgressEvent{}
	for rows.Next() {
		var event ProgressEvent
		var details []byte

		err := rows.Scan(
			&event.ID, &event.JobID, &event.Stage, &event.Progress,
			&event.Message, &details, &event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan progress event: %w", err)
		}

		if details != nil {
			event.Details = details
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating progress events: %w", err)
	}

	slices.Reverse(events)

	return &JobWithProgress{
		Job:          *job,
		LatestEvents: events,
	}, nil
}

// UpdateJobStatus updates the job status and stage
func (s *Store) UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status JobStatus, stage JobStage, progress int) error {
	query := `
		UPDATE jobs
		SET status = $2, stage = $3, progress = $4, updated_at = $5
		WHERE id = $1
	`

	tag, err := s.db.Exec(ctx, query, jobID, status, stage, progress, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	return nil
}

// UpdateJobError marks the job failed with an error message
func (s *Store) UpdateJobError(ctx context.Context, jobID uuid.UUID, errorMessage string) error {
	query := `
		UPDATE jobs
		SET status = $2, stage = $3, error_message = $4, updated_at = $5, completed_at = $6
		WHERE id = $1
	`

	now := time.Now().UTC()
	tag, err := s.db.Exec(ctx, query, jobID, StatusFailed, StageFailed, errorMessage, now, now)
	if err != nil {
		return fmt.Errorf("failed to update job error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	return nil
}

// UpdateJobResult updates the job with the final result
func (s *Store) UpdateJobResult(ctx context.Context, jobID uuid.UUID, result any) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	query := `
		UPDATE jobs
		SET status = $2, stage = $3, progress = $4, result = $5,
		    updated_at = $6, completed_at = $7
		WHERE id = $1
	`

	now := time.Now().UTC()
	tag, err := s.db.Exec(ctx, query,
		jobID, StatusCompleted, StageCompleted, 100, resultJSON, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to update job result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	return nil
}

// AddProgressEvent adds a progress event to the database
func (s *Store) AddProgressEvent(ctx context.Context, jobID uuid.UUID, stage JobStage, progress int, message string, details map[string]any) error {
	detailsJSON, err := marshalDetails(details)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO progress_events (job_id, stage, progress, message, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = s.db.Exec(ctx, query, jobID, stage, progress, message, detailsJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to add progress event: %w", err)
	}

	return nil
}

// CleanupOldJobs deletes jobs older than the specified duration
func (s *Store) CleanupOldJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoffTime := time.Now().UTC().Add(-olderThan)

	query := `
		DELETE FROM jobs
		WHERE created_at < $1
	`

	result, err := s.db.Exec(ctx, query, cutoffTime)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old jobs: %w", err)
	}

	return result.RowsAffected(), nil
}

func marshalDetails(details map[string]any) ([]byte, error) {
	if details == nil {
		return nil, nil
	}
	data, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal details: %w", err)
	}
	return data, nil
}
