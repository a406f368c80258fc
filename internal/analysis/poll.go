package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout is returned when an uploaded file does not become active in time.
	ErrTimeout = errors.New("timed out waiting for uploaded file")
	// ErrFileFailed is returned when the vendor rejects an uploaded file.
	ErrFileFailed = errors.New("uploaded file processing failed")
)

type FileGetter interface {
	Get(ctx context.Context, name string) (*File, error)
}

// WaitActive polls name every interval until it is active, fails, or timeout
// elapses. A zero timeout waits until ctx is done.
func WaitActive(ctx context.Context, getter FileGetter, name string, interval, timeout time.Duration) (*File, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		f, err := getter.Get(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to get file %s: %w", name, err)
		}
		switch f.State {
		case FileStateActive:
			return f, nil
		case FileStateFailed:
			return nil, fmt.Errorf("%w: %s", ErrFileFailed, name)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, fmt.Errorf("%w: %s still %s after %s", ErrTimeout, name, f.State, timeout)
		case <-ticker.C:
		}
	}
}
