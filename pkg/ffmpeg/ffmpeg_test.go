package ffmpeg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProbe(t *testing.T) {
	data := []byte(`{
		"programs": [],
		"streams": [{"codec_name": "h264", "width": 1280, "height": 720}],
		"format": {"format_name": "mov,mp4,m4a,3gp,3g2,mj2", "duration": "12.500000"}
	}`)

	res, err := ParseProbe(data)
	require.NoError(t, err)
	assert.Equal(t, 1280, res.Width)
	assert.Equal(t, 720, res.Height)
	assert.Equal(t, "h264", res.CodecName)
	assert.Equal(t, 12500*time.Millisecond, res.Duration)
}

func TestParseProbeWithoutVideo(t *testing.T) {
	_, err := ParseProbe([]byte(`{"streams": [], "format": {"duration": "3.0"}}`))
	assert.True(t, errors.Is(err, ErrNoVideoStream))
}

func TestParseProbeBadDuration(t *testing.T) {
	_, err := ParseProbe([]byte(`{"streams": [{"width": 1}], "format": {"duration": "N/A"}}`))
	assert.Error(t, err)
}

func TestProbeMissingBinary(t *testing.T) {
	p := NewFFProbe("/nonexistent/ffprobe")
	assert.False(t, p.Available())
	_, err := p.Probe(context.Background(), "clip.mp4")
	assert.Error(t, err)
}
