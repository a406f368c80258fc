package analysis

import (
	types "FormCoach/pkg"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExercise(t *testing.T) {
	assert.Equal(t, ExerciseSquat, ParseExercise("squat"))
	assert.Equal(t, ExerciseSquat, ParseExercise(" Squat "))
	assert.Equal(t, ExercisePushUp, ParseExercise("push_up"))
	assert.Equal(t, ExercisePushUp, ParseExercise("push-up"))
	assert.Equal(t, ExerciseUnknown, ParseExercise("deadlift"))
	assert.Equal(t, ExerciseUnknown, ParseExercise(""))
}

func TestDecodeExercise(t *testing.T) {
	ex, err := DecodeExercise(`{"label": "push_up"}`)
	require.NoError(t, err)
	assert.Equal(t, ExercisePushUp, ex)

	ex, err = DecodeExercise("```json\n{\"label\": \"squat\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, ExerciseSquat, ex)

	_, err = DecodeExercise("")
	assert.Error(t, err)
	_, err = DecodeExercise("squat")
	assert.Error(t, err)
}

func TestDecodeMomentsTrimsToLimits(t *testing.T) {
	text := `{"analysis": [
		{"timestamp": " 00:02.633 ", "image_url": "http://x", "posture": {"errors": ["a","b","c","d"], "suggestions": ["s1","s2","s3"]}},
		{"timestamp": "00:04.100", "posture": {"errors": ["knees"]}},
		{"timestamp": "00:06.000", "posture": {"errors": [], "suggestions": []}},
		{"timestamp": "00:08.000", "posture": {"errors": [], "suggestions": []}}
	]}`

	moments, err := DecodeMoments(text)
	require.NoError(t, err)
	require.Len(t, moments, MaxMoments)

	assert.Equal(t, "00:02.633", moments[0].Timestamp)
	assert.Empty(t, moments[0].ImageURL)
	assert.Equal(t, []string{"a", "b", "c"}, moments[0].Posture.Errors)
	assert.Equal(t, []string{"s1", "s2"}, moments[0].Posture.Suggestions)
	assert.NotNil(t, moments[1].Posture.Suggestions)
}

func TestDecodeMomentsPerfectForm(t *testing.T) {
	moments, err := DecodeMoments(`{"analysis": []}`)
	require.NoError(t, err)
	assert.Empty(t, moments)
}

func TestCriteria(t *testing.T) {
	for _, ex := range []Exercise{ExerciseSquat, ExercisePushUp} {
		c, ok := Criteria(ex)
		require.True(t, ok)
		assert.Contains(t, c, "## Form Standard (Good Rep)")
		assert.Contains(t, c, "## Common Errors and What to Look For")
	}
	_, ok := Criteria(ExerciseUnknown)
	assert.False(t, ok)
}

func TestAnalyzePrompt(t *testing.T) {
	p := AnalyzePrompt(squatCriteria)
	assert.NotContains(t, p, "{criteria}")
	assert.Contains(t, p, "# Squat Exercise Guide")
	assert.Contains(t, p, "mm:ss.mmm")
	assert.True(t, strings.Contains(ClassifyPrompt(), "push_up"))
}

func TestSchemas(t *testing.T) {
	s := exerciseSchema()
	assert.ElementsMatch(t, []string{"squat", "push_up", "unknown"}, s.Properties["label"].Enum)

	a := analysisSchema()
	item := a.Properties["analysis"].Items
	require.NotNil(t, item)
	assert.Contains(t, item.Properties, "posture")
	assert.Contains(t, item.Required, "timestamp")
}

type fakeGetter struct {
	mu     sync.Mutex
	states []FileState
	calls  int
	err    error
}

func (g *fakeGetter) Get(ctx context.Context, name string) (*File, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	state := g.states[min(g.calls, len(g.states)-1)]
	g.calls++
	return &File{Name: name, URI: "files/" + name, MIMEType: "video/mp4", State: state}, nil
}

func TestWaitActive(t *testing.T) {
	g := &fakeGetter{states: []FileState{FileStateProcessing, FileStateProcessing, FileStateActive}}

	f, err := WaitActive(context.Background(), g, "abc", time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.Equal(t, FileStateActive, f.State)
	assert.Equal(t, 3, g.calls)
}

func TestWaitActiveFailed(t *testing.T) {
	g := &fakeGetter{states: []FileState{FileStateProcessing, FileStateFailed}}

	_, err := WaitActive(context.Background(), g, "abc", time.Millisecond, time.Second)
	assert.True(t, errors.Is(err, ErrFileFailed))
}

func TestWaitActiveTimeout(t *testing.T) {
	g := &fakeGetter{states: []FileState{FileStateProcessing}}

	_, err := WaitActive(context.Background(), g, "abc", 5*time.Millisecond, 30*time.Millisecond)
	assert.True(t, errors.Is(err, ErrTimeout))
}

func TestWaitActiveCancelled(t *testing.T) {
	g := &fakeGetter{states: []FileState{FileStateProcessing}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := WaitActive(ctx, g, "abc", 5*time.Millisecond, 0)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestWaitActiveGetError(t *testing.T) {
	boom := errors.New("boom")
	_, err := WaitActive(context.Background(), &fakeGetter{err: boom}, "abc", time.Millisecond, time.Second)
	assert.True(t, errors.Is(err, boom))
}

func TestNewGeminiRequiresKey(t *testing.T) {
	_, err := NewGemini(context.Background(), types.AnalysisConfig{}, nil)
	assert.True(t, errors.Is(err, ErrMissingAPIKey))
}
