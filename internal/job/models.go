package job

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the current status of a job
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// JobStage mirrors the pipeline stages plus the two terminal ones.
type JobStage string

const (
	StageUploading   JobStage = "uploading"
	StageProbing     JobStage = "probing"
	StageClassifying JobStage = "classifying"
	StageAnnotating  JobStage = "annotating"
	StageAnalyzing   JobStage = "analyzing"
	StageExtracting  JobStage = "extracting"
	StageStoring     JobStage = "storing"
	StageCompleted   JobStage = "completed"
	StageFailed      JobStage = "failed"
)

// Job represents an asynchronous video analysis
type Job struct {
	ID           uuid.UUID       `json:"id"`
	Filename     string          `json:"filename"`
	Status       JobStatus       `json:"status"`
	Stage        JobStage        `json:"stage,omitempty"`
	Progress     int             `json:"progress"`
	WorkflowID   string          `json:"workflow_id,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// Finished reports whether the job reached a terminal status.
func (j *Job) Finished() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// ProgressEvent represents a single progress update event
type ProgressEvent struct {
	ID        int64           `json:"id"`
	JobID     uuid.UUID       `json:"job_id"`
	Stage     JobStage        `json:"stage"`
	Progress  int             `json:"progress"`
	Message   string          `json:"message"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// JobWithProgress combines job info with recent progress events
type JobWithProgress struct {
	Job
	LatestEvents []ProgressEvent `json:"latest_events"`
}

// ProgressUpdate represents a progress update to be broadcast via SSE
type ProgressUpdate struct {
	JobID     uuid.UUID      `json:"job_id"`
	Stage     JobStage       `json:"stage"`
	Progress  int            `json:"progress"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Finished reports whether the update is the last one for its job.
func (u ProgressUpdate) Finished() bool {
	return u.Progress >= 100 || u.Stage == StageFailed || u.Stage == StageCompleted
}
