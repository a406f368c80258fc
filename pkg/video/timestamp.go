package video

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatElapsed renders a decoder position in milliseconds as HH:MM:SS:mmm.
// Every field is floored, never rounded. Negative or non-finite positions
// render as zero.
func FormatElapsed(milliseconds float64) string {
	if milliseconds < 0 || math.IsNaN(milliseconds) || math.IsInf(milliseconds, 0) {
		milliseconds = 0
	}
	totalSeconds := int64(milliseconds / 1000)
	ms := int64(math.Mod(milliseconds, 1000))
	totalMinutes := totalSeconds / 60
	sec := totalSeconds % 60
	hours := totalMinutes / 60
	mins := totalMinutes % 60

	return fmt.Sprintf("%02d:%02d:%02d:%03d", hours, mins, sec, ms)
}

// maxField keeps the millisecond arithmetic far from int64 overflow.
const maxField = 1 << 32

// ParseTimestamp converts an extractor timestamp of the form "mm:ss.mmm" into
// an absolute offset in milliseconds. Minutes are a non-negative integer,
// seconds a non-negative decimal with at most millisecond precision.
func ParseTimestamp(timestamp string) (int64, error) {
	offset, err := parseTimestamp(timestamp)
	if err != nil {
		return 0, &MalformedTimestampError{Input: timestamp, Err: err}
	}
	return offset, nil
}

func parseTimestamp(timestamp string) (int64, error) {
	parts := strings.Split(strings.TrimSpace(timestamp), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected 2 colon-separated fields, got %d", len(parts))
	}

	minutes, err := parseDigits(parts[0])
	if err != nil {
		return 0, fmt.Errorf("minutes: %w", err)
	}

	wholePart, fracPart, hasFrac := strings.Cut(parts[1], ".")
	seconds, err := parseDigits(wholePart)
	if err != nil {
		return 0, fmt.Errorf("seconds: %w", err)
	}

	var millis int64
	if hasFrac {
		if len(fracPart) == 0 || len(fracPart) > 3 {
			return 0, fmt.Errorf("fractional seconds must have 1 to 3 digits, got %q", fracPart)
		}
		frac, err := parseDigits(fracPart)
		if err != nil {
			return 0, fmt.Errorf("fractional seconds: %w", err)
		}
		for i := len(fracPart); i < 3; i++ {
			frac *= 10
		}
		millis = frac
	}

	if minutes > maxField || seconds > maxField {
		return 0, errors.New("field out of range")
	}
	return (minutes*60+seconds)*1000 + millis, nil
}

// parseDigits accepts only ASCII digits, so signs, spaces and exponents are rejected.
func parseDigits(s string) (int64, error) {
	if s == "" {
		return 0, errors.New("empty field")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("unexpected character %q in %q", r, s)
		}
	}
	return strconv.ParseInt(s, 10, 64)
}

// FormatOffset renders a millisecond offset in the extractor's mm:ss.mmm form.
func FormatOffset(offset int64) string {
	if offset < 0 {
		offset = 0
	}
	minutes := offset / 60_000
	seconds := (offset / 1000) % 60
	millis := offset % 1000
	return fmt.Sprintf("%02d:%02d.%03d", minutes, seconds, millis)
}
