package video_test

import (
	types "FormCoach/pkg"
	"FormCoach/pkg/video"
	"FormCoach/pkg/video/videotest"
	"context"
	"errors"
	"image"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAnnotator(b video.Backend) *video.Annotator {
	return video.NewAnnotator(b, types.VideoConfig{}, zap.NewNop())
}

func TestAnnotatePreservesFramesAndProps(t *testing.T) {
	backend := videotest.NewBackend(640, 360, 30, 90)
	in := videotest.Touch(t, "in.mp4")
	out := filepath.Join(t.TempDir(), "out.mp4")

	res, err := newTestAnnotator(backend).Annotate(context.Background(), in, out)
	require.NoError(t, err)

	assert.Equal(t, 90, res.Frames)
	require.NotNil(t, backend.LastSink())
	assert.Equal(t, 90, backend.LastSink().Frames)
	assert.Equal(t, out, backend.LastSink().Path)
	assert.Equal(t, video.DefaultFourcc, backend.LastSink().Fourcc)
	assert.Equal(t, 640, backend.LastSink().Props.Width)
	assert.Equal(t, 360, backend.LastSink().Props.Height)
	assert.Equal(t, 30.0, backend.LastSink().Props.FPS)
	assert.True(t, backend.Balanced())
}

func TestAnnotateLabelsAreMonotonicAndPostRead(t *testing.T) {
	backend := videotest.NewBackend(320, 240, 25, 50)
	in := videotest.Touch(t, "in.mp4")
	a := newTestAnnotator(backend)

	var labels []string
	a.OnFrame = func(i int, label string) {
		assert.Equal(t, len(labels), i)
		labels = append(labels, label)
	}

	res, err := a.Annotate(context.Background(), in, filepath.Join(t.TempDir(), "out.mp4"))
	require.NoError(t, err)
	require.Len(t, labels, 50)

	// The first label is the position after reading frame one.
	assert.Equal(t, "00:00:00:040", labels[0])
	assert.Equal(t, "00:00:02:000", labels[49])
	assert.Equal(t, labels[0], res.FirstLabel)
	assert.Equal(t, labels[49], res.LastLabel)
	for i := 1; i < len(labels); i++ {
		assert.GreaterOrEqual(t, labels[i], labels[i-1])
	}
}

func TestAnnotateIsDeterministic(t *testing.T) {
	in := videotest.Touch(t, "in.mp4")
	out := filepath.Join(t.TempDir(), "out.mp4")
	run := func() ([]string, *videotest.Sink) {
		backend := videotest.NewBackend(320, 240, 29.97, 40)
		a := newTestAnnotator(backend)
		var labels []string
		a.OnFrame = func(_ int, label string) { labels = append(labels, label) }
		_, err := a.Annotate(context.Background(), in, out)
		require.NoError(t, err)
		return labels, backend.LastSink()
	}

	firstLabels, firstSink := run()
	secondLabels, secondSink := run()
	assert.Equal(t, firstLabels, secondLabels)
	assert.Equal(t, firstSink.Labels, secondSink.Labels)
	assert.Equal(t, firstSink.Plates, secondSink.Plates)
	for _, sink := range []*videotest.Sink{firstSink, secondSink} {
		assert.Equal(t, out, sink.Path)
		assert.Equal(t, 40, sink.Frames)
		// Same frame count at the same rate keeps the duration.
		assert.Equal(t, 40, sink.Props.FrameCount)
		assert.Equal(t, 29.97, sink.Props.FPS)
	}
}

func TestAnnotateMissingInput(t *testing.T) {
	backend := videotest.NewBackend(320, 240, 30, 10)
	_, err := newTestAnnotator(backend).Annotate(context.Background(), filepath.Join(t.TempDir(), "nope.mp4"), filepath.Join(t.TempDir(), "out.mp4"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, video.ErrNotFound))
	assert.Zero(t, backend.Opened())
}

func TestAnnotateDecodeUnavailable(t *testing.T) {
	backend := videotest.NewBackend(320, 240, 30, 10)
	backend.OpenErr = videotest.ErrInjected
	_, err := newTestAnnotator(backend).Annotate(context.Background(), videotest.Touch(t, "in.mp4"), filepath.Join(t.TempDir(), "out.mp4"))
	assert.True(t, errors.Is(err, video.ErrDecodeUnavailable))
	assert.True(t, errors.Is(err, videotest.ErrInjected))
}

func TestAnnotateSinkUnavailableReleasesSource(t *testing.T) {
	backend := videotest.NewBackend(320, 240, 30, 10)
	backend.SinkErr = videotest.ErrInjected
	_, err := newTestAnnotator(backend).Annotate(context.Background(), videotest.Touch(t, "in.mp4"), filepath.Join(t.TempDir(), "out.mp4"))
	assert.True(t, errors.Is(err, video.ErrDecodeUnavailable))
	assert.Equal(t, 1, backend.Opened())
	assert.True(t, backend.Balanced())
}

func TestAnnotateReadFaultReleasesHandles(t *testing.T) {
	backend := videotest.NewBackend(320, 240, 30, 10)
	backend.FaultAt = 4
	a := newTestAnnotator(backend)
	seen := 0
	a.OnFrame = func(int, string) { seen++ }
	out := filepath.Join(t.TempDir(), "out.mp4")

	res, err := a.Annotate(context.Background(), videotest.Touch(t, "in.mp4"), out)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, video.ErrStreamFault))
	assert.Equal(t, 4, seen)
	assert.True(t, backend.Balanced())
	assert.NoFileExists(t, out)
}

func TestAnnotateWriteFaultReleasesHandles(t *testing.T) {
	backend := videotest.NewBackend(320, 240, 30, 10)
	backend.WriteErr = videotest.ErrInjected
	out := filepath.Join(t.TempDir(), "out.mp4")
	_, err := newTestAnnotator(backend).Annotate(context.Background(), videotest.Touch(t, "in.mp4"), out)
	assert.True(t, errors.Is(err, video.ErrStreamFault))
	assert.True(t, backend.Balanced())
	assert.NoFileExists(t, out)
}

func TestAnnotateDrawFaultIsStreamFault(t *testing.T) {
	backend := videotest.NewBackend(320, 240, 30, 10)
	backend.DrawErr = videotest.ErrInjected
	out := filepath.Join(t.TempDir(), "out.mp4")
	_, err := newTestAnnotator(backend).Annotate(context.Background(), videotest.Touch(t, "in.mp4"), out)
	assert.True(t, errors.Is(err, video.ErrStreamFault))
	assert.True(t, errors.Is(err, videotest.ErrInjected))
	assert.Zero(t, backend.LastSink().Frames)
	assert.True(t, backend.Balanced())
	assert.NoFileExists(t, out)
}

func TestAnnotateKeepsOutputOnSuccess(t *testing.T) {
	backend := videotest.NewBackend(320, 240, 30, 5)
	out := filepath.Join(t.TempDir(), "out.mp4")
	_, err := newTestAnnotator(backend).Annotate(context.Background(), videotest.Touch(t, "in.mp4"), out)
	require.NoError(t, err)
	assert.FileExists(t, out)
}

func TestAnnotateHonorsCancellation(t *testing.T) {
	backend := videotest.NewBackend(320, 240, 30, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestAnnotator(backend).Annotate(ctx, videotest.Touch(t, "in.mp4"), filepath.Join(t.TempDir(), "out.mp4"))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, backend.Balanced())
}

func TestAnnotateDefaultsMissingFPS(t *testing.T) {
	backend := videotest.NewBackend(320, 240, 0, 3)
	res, err := newTestAnnotator(backend).Annotate(context.Background(), videotest.Touch(t, "in.mp4"), filepath.Join(t.TempDir(), "out.mp4"))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Frames)
	assert.Equal(t, 30.0, backend.LastSink().Props.FPS)
}

func TestLabelGeometry(t *testing.T) {
	frame := videotest.NewFrame(640, 480, nil)
	style := video.DefaultLabelStyle()
	plate, org := video.LabelGeometry(frame, "00:00:01:000", style)

	size, baseline := frame.MeasureText("00:00:01:000", style)
	assert.Equal(t, image.Pt(10, 460), org)
	assert.Equal(t, org.X, plate.Min.X)
	assert.Equal(t, org.X+size.X, plate.Max.X)
	assert.Equal(t, org.Y-size.Y-baseline, plate.Min.Y)
	assert.Equal(t, org.Y+baseline, plate.Max.Y)
}

func TestAnnotateDrawsPlateOnEveryFrame(t *testing.T) {
	backend := videotest.NewBackend(200, 100, 10, 5)
	_, err := newTestAnnotator(backend).Annotate(context.Background(), videotest.Touch(t, "in.mp4"), filepath.Join(t.TempDir(), "out.mp4"))
	require.NoError(t, err)
	require.Len(t, backend.LastSink().Plates, 5)
	for _, p := range backend.LastSink().Plates {
		assert.Equal(t, 10, p.Min.X)
		assert.Equal(t, 80+8, p.Max.Y)
	}
}
