package cv

import (
	types "FormCoach/pkg"
	"FormCoach/pkg/video"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

func TestAtEnd(t *testing.T) {
	tests := []struct {
		name  string
		pos   float64
		count float64
		want  bool
	}{
		{"no declared count", 12, 0, true},
		{"exact count", 99, 100, true},
		{"read past count", 100, 100, true},
		{"count overshoots by two", 98, 100, true},
		{"count overshoots by three", 97, 100, true},
		{"mid stream", 50, 100, false},
		{"first frame", 0, 100, false},
		{"long clip drift", 2975, 3000, true},
		{"long clip fault", 2900, 3000, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AtEnd(tt.pos, tt.count))
		})
	}
}

// writeClip encodes frames solid-colour frames as MJPEG, which every OpenCV build
// can write.
func writeClip(t *testing.T, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.avi")
	vw, err := gocv.VideoWriterFile(path, "MJPG", 10, 160, 120, true)
	require.NoError(t, err)
	if !vw.IsOpened() {
		vw.Close()
		t.Skip("OpenCV build has no MJPG writer")
	}
	for i := 0; i < frames; i++ {
		mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(i*10), 80, 160, 0), 120, 160, gocv.MatTypeCV8UC3)
		require.NoError(t, vw.Write(mat))
		mat.Close()
	}
	require.NoError(t, vw.Close())
	return path
}

func TestAnnotateClipReachesCleanEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping OpenCV round trip in short mode")
	}
	in := writeClip(t, 12)
	out := filepath.Join(t.TempDir(), "annotated.avi")

	annotator := video.NewAnnotator(New(zap.NewNop()), types.VideoConfig{Fourcc: "MJPG"}, zap.NewNop())
	res, err := annotator.Annotate(context.Background(), in, out)
	require.NoError(t, err)
	assert.Equal(t, 12, res.Frames)
	assert.Equal(t, 160, res.Props.Width)
	assert.Equal(t, 120, res.Props.Height)

	src, err := New(nil).OpenSource(out)
	require.NoError(t, err)
	defer src.Close()
	frames := 0
	for {
		_, err := src.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		frames++
	}
	assert.Equal(t, 12, frames)
}
