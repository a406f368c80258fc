package video

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the input video path does not exist.
	ErrNotFound = errors.New("video not found")
	// ErrDecodeUnavailable is returned when a decoder or encoder cannot be opened
	// for a path (corrupt container, unsupported codec, unwritable output).
	ErrDecodeUnavailable = errors.New("decoder unavailable")
	// ErrStreamFault is returned when a frame read or write fails mid-stream.
	// A clean end of stream is never reported as a fault.
	ErrStreamFault = errors.New("stream fault")
	// ErrMalformedTimestamp matches every *MalformedTimestampError.
	ErrMalformedTimestamp = errors.New("malformed timestamp")
)

// MalformedTimestampError carries the rejected extractor input and the reason
// it failed to parse.
type MalformedTimestampError struct {
	Input string
	Err   error
}

func (e *MalformedTimestampError) Error() string {
	return fmt.Sprintf("malformed timestamp %q (expected mm:ss.mmm): %v", e.Input, e.Err)
}

func (e *MalformedTimestampError) Unwrap() error { return e.Err }

func (e *MalformedTimestampError) Is(target error) bool {
	return target == ErrMalformedTimestamp
}
