package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a Repository for single-process deployments without a
// database. Jobs are lost on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	jobs   map[uuid.UUID]*Job
	events map[uuid.UUID][]ProgressEvent
	nextID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:   make(map[uuid.UUID]*Job),
		events: make(map[uuid.UUID][]ProgressEvent),
	}
}

func (s *MemoryStore) CreateJob(ctx context.Context, id uuid.UUID, filename, workflowID string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; ok {
		return nil, fmt.Errorf("failed to create job: %s already exists", id)
	}
	now := time.Now().UTC()
	job := &Job{
		ID:         id,
		Filename:   filename,
		Status:     StatusPending,
		WorkflowID: workflowID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.jobs[id] = job
	copied := *job
	return &copied, nil
}

func (s *MemoryStore) GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	copied := *job
	return &copied, nil
}

func (s *MemoryStore) GetJobWithProgress(ctx context.Context, jobID uuid.UUID, limit int) (*JobWithProgress, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultEventLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.events[jobID]
	start := max(len(all)-limit, 0)
	events := make([]ProgressEvent, len(all)-start)
	copy(events, all[start:])
	return &JobWithProgress{Job: *job, LatestEvents: events}, nil
}

func (s *MemoryStore) UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status JobStatus, stage JobStage, progress int) error {
	return s.update(jobID, func(j *Job) {
		j.Status = status
		j.Stage = stage
		j.Progress = progress
	})
}

func (s *MemoryStore) UpdateJobError(ctx context.Context, jobID uuid.UUID, errorMessage string) error {
	return s.update(jobID, func(j *Job) {
		j.Status = StatusFailed
		j.Stage = StageFailed
		j.ErrorMessage = errorMessage
		now := time.Now().UTC()
		j.CompletedAt = &now
	})
}

func (s *MemoryStore) UpdateJobResult(ctx context.Context, jobID uuid.UUID, result any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	return s.update(jobID, func(j *Job) {
		j.Status = StatusCompleted
		j.Stage = StageCompleted
		j.Progress = 100
		j.Result = data
		now := time.Now().UTC()
		j.CompletedAt = &now
	})
}

func (s *MemoryStore) AddProgressEvent(ctx context.Context, jobID uuid.UUID, stage JobStage, progress int, message string, details map[string]any) error {
	data, err := marshalDetails(details)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	s.nextID++
	s.events[jobID] = append(s.events[jobID], ProgressEvent{
		ID:        s.nextID,
		JobID:     jobID,
		Stage:     stage,
		Progress:  progress,
		Message:   message,
		Details:   data,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (s *MemoryStore) CleanupOldJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, job := range s.jobs {
		if job.CreatedAt.Before(cutoff) {
			delete(s.jobs, id)
			delete(s.events, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) update(jobID uuid.UUID, fn func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	fn(job)
	job.UpdatedAt = time.Now().UTC()
	return nil
}
