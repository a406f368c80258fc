package video_test

import (
	"FormCoach/pkg/video"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatElapsed(t *testing.T) {
	cases := map[string]struct {
		ms   float64
		want string
	}{
		"zero":            {0, "00:00:00:000"},
		"hour":            {3725007, "01:02:05:007"},
		"floors fraction": {999.9, "00:00:00:999"},
		"negative":        {-40, "00:00:00:000"},
		"one frame 30fps": {33.333, "00:00:00:033"},
		"over a day":      {90061001, "25:01:01:001"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, video.FormatElapsed(tc.ms))
		})
	}
}

func TestFormatElapsedIsMonotonic(t *testing.T) {
	prev := video.FormatElapsed(0)
	for ms := 0.0; ms < 200000; ms += 33.3667 {
		label := video.FormatElapsed(ms)
		assert.GreaterOrEqual(t, label, prev)
		prev = label
	}
}

func TestParseTimestamp(t *testing.T) {
	cases := map[string]int64{
		"02:05.053": 125053,
		"00:00.000": 0,
		"00:01":     1000,
		"1:02.5":    62500,
		"00:75.10":  75100,
		" 10:00.1 ": 600100,
	}
	for in, want := range cases {
		t.Run(in, func(t *testing.T) {
			got, err := video.ParseTimestamp(in)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestParseTimestampRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "abc", "12", "1:2:3", "-1:00", "01:-5", "01:05.", "01:05.1234", "01:5e1", "aa:00.000", "01:05.0a"} {
		t.Run(in, func(t *testing.T) {
			_, err := video.ParseTimestamp(in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, video.ErrMalformedTimestamp))

			var mte *video.MalformedTimestampError
			require.True(t, errors.As(err, &mte))
			assert.Equal(t, in, mte.Input)
		})
	}
}

func TestFormatOffsetRoundTrip(t *testing.T) {
	for _, ms := range []int64{0, 1, 999, 1000, 125053, 3599999} {
		got, err := video.ParseTimestamp(video.FormatOffset(ms))
		require.NoError(t, err)
		assert.Equal(t, ms, got)
	}
}
