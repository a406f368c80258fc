package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type Exercise string

const (
	ExerciseSquat   Exercise = "squat"
	ExercisePushUp  Exercise = "push_up"
	ExerciseUnknown Exercise = "unknown"
)

// ParseExercise maps a model label onto a known exercise. Anything
// unrecognized is ExerciseUnknown.
func ParseExercise(label string) Exercise {
	switch Exercise(strings.ToLower(strings.TrimSpace(label))) {
	case ExerciseSquat:
		return ExerciseSquat
	case ExercisePushUp, "pushup", "push-up":
		return ExercisePushUp
	default:
		return ExerciseUnknown
	}
}

const (
	MaxMoments     = 3
	MaxErrors      = 3
	MaxSuggestions = 2
)

type Posture struct {
	Errors      []string `json:"errors"`
	Suggestions []string `json:"suggestions"`
}

// Moment is one flagged instant in the video. Timestamp is mm:ss.mmm as read
// off the burned-in label; ImageURL is filled by the pipeline.
type Moment struct {
	Timestamp string  `json:"timestamp"`
	ImageURL  string  `json:"image_url"`
	Posture   Posture `json:"posture"`
}

// Report is the response body of an analysis.
type Report struct {
	Exercise   Exercise `json:"exercise"`
	Analysis   []Moment `json:"analysis"`
	Artifacts  []string `json:"artifacts,omitempty"`
	DurationMs int64    `json:"duration_ms"`
}

type FileState string

const (
	FileStateProcessing FileState = "PROCESSING"
	FileStateActive     FileState = "ACTIVE"
	FileStateFailed     FileState = "FAILED"
)

// File is a video uploaded to the vendor.
type File struct {
	Name     string
	URI      string
	MIMEType string
	State    FileState
}

var errEmptyResponse = errors.New("empty model response")

type exerciseResponse struct {
	Label string `json:"label"`
}

type analysisResponse struct {
	Analysis []Moment `json:"analysis"`
}

// DecodeExercise parses the classifier's JSON reply.
func DecodeExercise(text string) (Exercise, error) {
	var resp exerciseResponse
	if err := decodeJSON(text, &resp); err != nil {
		return ExerciseUnknown, fmt.Errorf("failed to decode exercise label: %w", err)
	}
	return ParseExercise(resp.Label), nil
}

// DecodeMoments parses the analyzer's JSON reply and trims it to the limits
// the prompt asks for.
func DecodeMoments(text string) ([]Moment, error) {
	var resp analysisResponse
	if err := decodeJSON(text, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode analysis: %w", err)
	}

	moments := make([]Moment, 0, min(len(resp.Analysis), MaxMoments))
	for _, m := range resp.Analysis {
		if len(moments) == MaxMoments {
			break
		}
		m.Timestamp = strings.TrimSpace(m.Timestamp)
		m.ImageURL = ""
		m.Posture.Errors = truncate(m.Posture.Errors, MaxErrors)
		m.Posture.Suggestions = truncate(m.Posture.Suggestions, MaxSuggestions)
		moments = append(moments, m)
	}
	return moments, nil
}

func truncate(items []string, n int) []string {
	if items == nil {
		return []string{}
	}
	if len(items) > n {
		return items[:n]
	}
	return items
}

// decodeJSON tolerates a markdown code fence around the payload.
func decodeJSON(text string, v any) error {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	if text == "" {
		return errEmptyResponse
	}
	return json.Unmarshal([]byte(text), v)
}
