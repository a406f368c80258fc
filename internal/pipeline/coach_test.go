package pipeline

import (
	"FormCoach/internal/analysis"
	"FormCoach/internal/config"
	types "FormCoach/pkg"
	"FormCoach/pkg/ffmpeg"
	"FormCoach/pkg/video/videotest"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeVendor struct {
	mu sync.Mutex

	exercise     analysis.Exercise
	moments      []analysis.Moment
	states       []analysis.FileState
	classifyErrs int

	uploaded []string
	deleted  []string
	criteria string
	analyzed int
	gets     int
}

func (v *fakeVendor) Upload(ctx context.Context, path string) (*analysis.File, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.uploaded = append(v.uploaded, path)
	name := fmt.Sprintf("files/%d", len(v.uploaded))
	return &analysis.File{Name: name, URI: "https://vendor/" + name, MIMEType: "video/mp4", State: analysis.FileStateProcessing}, nil
}

func (v *fakeVendor) Get(ctx context.Context, name string) (*analysis.File, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	state := analysis.FileStateActive
	if v.gets < len(v.states) {
		state = v.states[v.gets]
	}
	v.gets++
	return &analysis.File{Name: name, URI: "https://vendor/" + name, MIMEType: "video/mp4", State: state}, nil
}

func (v *fakeVendor) Delete(ctx context.Context, name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.deleted = append(v.deleted, name)
	return nil
}

func (v *fakeVendor) Classify(ctx context.Context, file *analysis.File) (analysis.Exercise, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.classifyErrs > 0 {
		v.classifyErrs--
		return analysis.ExerciseUnknown, errors.New("503 from vendor")
	}
	return v.exercise, nil
}

func (v *fakeVendor) Analyze(ctx context.Context, file *analysis.File, criteria string) ([]analysis.Moment, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.criteria = criteria
	v.analyzed++
	return v.moments, nil
}

type fakeProber struct{ duration time.Duration }

func (p fakeProber) Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error) {
	return &ffmpeg.ProbeResult{Duration: p.duration, Width: 320, Height: 240, CodecName: "h264"}, nil
}

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memStorage) Upload(ctx context.Context, bucket, key string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[bucket+"/"+key] = data
	return nil
}

func (m *memStorage) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Analysis: types.AnalysisConfig{PollIntervalSec: 0.001, PollTimeoutSec: 1},
		Pipeline: types.PipelineConfig{
			MaxWorkers:     2,
			WorkDir:        t.TempDir(),
			MaxDurationSec: 60,
			Retry:          types.RetryConfig{MaxAttempts: 3, InitialIntervalSec: 0.001, BackoffCoefficient: 2},
		},
		Storage: types.StorageConfig{Bucket: "artifacts"},
	}
}

func upload() io.Reader {
	return bytes.NewReader([]byte("not really an mp4"))
}

func TestCoachRun(t *testing.T) {
	cfg := testConfig(t)
	vendor := &fakeVendor{
		exercise: analysis.ExerciseSquat,
		states:   []analysis.FileState{analysis.FileStateProcessing},
		moments: []analysis.Moment{
			{Timestamp: "00:01.000", Posture: analysis.Posture{Errors: []string{"Knees caving in"}, Suggestions: []string{"Push knees out"}}},
			{Timestamp: "99:00.000", Posture: analysis.Posture{Errors: []string{"Heels lifting"}}},
			{Timestamp: "later", Posture: analysis.Posture{Errors: []string{"Back rounding"}}},
		},
	}
	backend := videotest.NewBackend(320, 240, 30, 300)
	store := &memStorage{}
	coach := NewCoach(cfg, vendor, backend, fakeProber{duration: 10 * time.Second}, store, zap.NewNop())

	var stages []Stage
	report, err := coach.Run(context.Background(), Request{
		ID:       "job-1",
		Upload:   upload(),
		Progress: func(s Stage, _ int, _ string) { stages = append(stages, s) },
	})
	require.NoError(t, err)

	assert.Equal(t, analysis.ExerciseSquat, report.Exercise)
	require.Len(t, report.Analysis, 3)
	assert.True(t, strings.HasPrefix(report.Analysis[0].ImageURL, "data:image/jpeg;base64,"))
	assert.Empty(t, report.Analysis[1].ImageURL)
	assert.Empty(t, report.Analysis[2].ImageURL)
	assert.Equal(t, []string{"Knees caving in"}, report.Analysis[0].Posture.Errors)

	assert.Contains(t, vendor.criteria, "# Squat Exercise Guide")
	require.Len(t, vendor.uploaded, 2)
	assert.True(t, strings.HasSuffix(vendor.uploaded[0], "input.mp4"))
	assert.True(t, strings.HasSuffix(vendor.uploaded[1], "annotated.mp4"))
	assert.ElementsMatch(t, []string{"files/1", "files/2"}, vendor.deleted)

	assert.Equal(t, []string{"job-1/annotated.mp4", "job-1/still_0.jpg"}, report.Artifacts)
	assert.Contains(t, store.objects, "artifacts/job-1/still_0.jpg")

	assert.Equal(t, []Stage{StageUploading, StageProbing, StageClassifying, StageAnnotating, StageAnalyzing, StageExtracting, StageStoring}, stages)
	assert.Equal(t, 300, backend.LastSink().Frames)
	assert.True(t, backend.Balanced())

	entries, err := os.ReadDir(cfg.Pipeline.WorkDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCoachUnknownExercise(t *testing.T) {
	cfg := testConfig(t)
	vendor := &fakeVendor{exercise: analysis.ExerciseUnknown}
	coach := NewCoach(cfg, vendor, videotest.NewBackend(320, 240, 30, 300), nil, nil, zap.NewNop())

	report, err := coach.Run(context.Background(), Request{Upload: upload()})
	require.NoError(t, err)
	assert.Equal(t, analysis.ExerciseUnknown, report.Exercise)
	assert.NotNil(t, report.Analysis)
	assert.Empty(t, report.Analysis)
	assert.Len(t, vendor.uploaded, 1)
	assert.Zero(t, vendor.analyzed)
}

func TestCoachRejectsLongVideo(t *testing.T) {
	cfg := testConfig(t)
	vendor := &fakeVendor{exercise: analysis.ExerciseSquat}
	coach := NewCoach(cfg, vendor, videotest.NewBackend(320, 240, 30, 300), fakeProber{duration: 5 * time.Minute}, nil, zap.NewNop())

	_, err := coach.Run(context.Background(), Request{Upload: upload()})
	assert.ErrorIs(t, err, ErrTooLong)
	assert.Empty(t, vendor.uploaded)
}

func TestCoachVendorFileFailed(t *testing.T) {
	cfg := testConfig(t)
	vendor := &fakeVendor{exercise: analysis.ExerciseSquat, states: []analysis.FileState{analysis.FileStateFailed}}
	coach := NewCoach(cfg, vendor, videotest.NewBackend(320, 240, 30, 300), nil, nil, zap.NewNop())

	_, err := coach.Run(context.Background(), Request{Upload: upload()})
	assert.ErrorIs(t, err, analysis.ErrFileFailed)
	assert.Equal(t, []string{"files/1"}, vendor.deleted)
}

func TestCoachRetriesClassification(t *testing.T) {
	cfg := testConfig(t)
	vendor := &fakeVendor{exercise: analysis.ExercisePushUp, classifyErrs: 2}
	coach := NewCoach(cfg, vendor, videotest.NewBackend(320, 240, 30, 300), nil, nil, zap.NewNop())

	report, err := coach.Run(context.Background(), Request{Upload: upload()})
	require.NoError(t, err)
	assert.Equal(t, analysis.ExercisePushUp, report.Exercise)
	assert.Contains(t, vendor.criteria, "# Push-Up Exercise Guide")
}

func TestCoachRequiresUpload(t *testing.T) {
	coach := NewCoach(testConfig(t), &fakeVendor{}, videotest.NewBackend(1, 1, 1, 1), nil, nil, zap.NewNop())

	_, err := coach.Run(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrNoUpload)

	_, err = coach.Run(context.Background(), Request{Upload: strings.NewReader("")})
	assert.ErrorIs(t, err, ErrNoUpload)
}

func TestCoachWithoutVendor(t *testing.T) {
	cfg := testConfig(t)
	coach := NewCoach(cfg, nil, videotest.NewBackend(320, 240, 30, 30), nil, nil, zap.NewNop())

	// Server-side steps of the Temporal engine need no vendor.
	ingest, err := coach.Ingest(context.Background(), "job-1", upload())
	require.NoError(t, err)
	still := ingest.Workspace.StillPath(0)
	require.NoError(t, os.WriteFile(still, []byte("jpeg"), 0o644))
	moments := coach.Attach([]analysis.Moment{{Timestamp: "00:01.000"}}, []string{still})
	require.Len(t, moments, 1)
	assert.True(t, strings.HasPrefix(moments[0].ImageURL, "data:image/jpeg;base64,"))
	coach.Cleanup(ingest.Workspace)

	_, err = coach.Run(context.Background(), Request{Upload: upload()})
	assert.ErrorIs(t, err, ErrNoVendor)
}

func TestCoachWaitsForSlot(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.MaxWorkers = 1
	coach := NewCoach(cfg, &fakeVendor{}, videotest.NewBackend(1, 1, 1, 1), nil, nil, zap.NewNop())

	release, err := coach.acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = coach.Run(ctx, Request{Upload: upload()})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
