package pipeline

import (
	"FormCoach/internal/analysis"
	"FormCoach/pkg/video"
	"FormCoach/pkg/video/videotest"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"
	"go.uber.org/zap"
)

func newWorkflowEnv(t *testing.T, coach *Coach) *testsuite.TestWorkflowEnvironment {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterActivity(NewActivities(coach, zap.NewNop()))
	return env
}

func TestAnalysisWorkflow(t *testing.T) {
	cfg := testConfig(t)
	vendor := &fakeVendor{
		exercise: analysis.ExerciseSquat,
		moments: []analysis.Moment{
			{Timestamp: "00:02.500", Posture: analysis.Posture{Errors: []string{"Hips rising first"}}},
			{Timestamp: "59:59.999"},
		},
	}
	store := &memStorage{}
	coach := NewCoach(cfg, vendor, videotest.NewBackend(320, 240, 30, 300), fakeProber{duration: 10 * time.Second}, store, zap.NewNop())
	_, err := coach.Ingest(context.Background(), "wf-1", upload())
	require.NoError(t, err)

	env := newWorkflowEnv(t, coach)
	env.ExecuteWorkflow(AnalysisWorkflow, AnalysisInput{ID: "wf-1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out AnalysisOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.Equal(t, analysis.ExerciseSquat, out.Exercise)
	assert.Equal(t, 300, out.Frames)
	require.Len(t, out.Moments, 2)
	require.Len(t, out.Stills, 2)
	assert.Equal(t, coach.Workspace("wf-1").StillPath(0), out.Stills[0])
	assert.Empty(t, out.Stills[1])
	assert.Equal(t, []string{"wf-1/annotated.mp4", "wf-1/still_0.jpg"}, out.Artifacts)

	moments := coach.Attach(out.Moments, out.Stills)
	assert.NotEmpty(t, moments[0].ImageURL)
	assert.Empty(t, moments[1].ImageURL)

	val, err := env.QueryWorkflow(ProgressQuery)
	require.NoError(t, err)
	var p WorkflowProgress
	require.NoError(t, val.Get(&p))
	assert.Equal(t, 100, p.Progress)
}

func TestAnalysisWorkflowUnknownExercise(t *testing.T) {
	cfg := testConfig(t)
	vendor := &fakeVendor{exercise: analysis.ExerciseUnknown}
	coach := NewCoach(cfg, vendor, videotest.NewBackend(320, 240, 30, 300), nil, nil, zap.NewNop())
	_, err := coach.Ingest(context.Background(), "wf-2", upload())
	require.NoError(t, err)

	env := newWorkflowEnv(t, coach)
	env.ExecuteWorkflow(AnalysisWorkflow, AnalysisInput{ID: "wf-2"})
	require.NoError(t, env.GetWorkflowError())

	var out AnalysisOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.Equal(t, analysis.ExerciseUnknown, out.Exercise)
	assert.Empty(t, out.Moments)
	assert.Zero(t, out.Frames)
	assert.Zero(t, vendor.analyzed)
}

func TestAnalysisWorkflowKeepsErrorKind(t *testing.T) {
	cfg := testConfig(t)
	coach := NewCoach(cfg, &fakeVendor{exercise: analysis.ExerciseSquat}, videotest.NewBackend(320, 240, 30, 300), fakeProber{duration: time.Hour}, nil, zap.NewNop())
	_, err := coach.Ingest(context.Background(), "wf-3", upload())
	require.NoError(t, err)

	env := newWorkflowEnv(t, coach)
	env.ExecuteWorkflow(AnalysisWorkflow, AnalysisInput{ID: "wf-3"})
	require.True(t, env.IsWorkflowCompleted())

	err = env.GetWorkflowError()
	require.Error(t, err)
	assert.ErrorIs(t, fromApplicationError(err), ErrTooLong)
}

func TestApplicationErrorRoundTrip(t *testing.T) {
	for _, sentinel := range []error{video.ErrNotFound, video.ErrDecodeUnavailable, ErrTooLong, analysis.ErrTimeout, analysis.ErrFileFailed} {
		t.Run(sentinel.Error(), func(t *testing.T) {
			wrapped := toApplicationError(fmt.Errorf("step: %w", sentinel))
			assert.ErrorIs(t, fromApplicationError(fmt.Errorf("workflow: %w", wrapped)), sentinel)
		})
	}

	plain := errors.New("boom")
	assert.Same(t, plain, toApplicationError(plain))
	assert.Same(t, plain, fromApplicationError(plain))
}
