package video

import (
	types "FormCoach/pkg"
	"context"
	"encoding/base64"
	"fmt"

	"go.uber.org/zap"
)

const (
	DefaultJPEGQuality     = 90
	DefaultFallbackQuality = 60
	// DefaultMaxPayloadBytes bounds the base64 text handed to chat-style clients.
	DefaultMaxPayloadBytes = 4 << 20
)

// Still is one extracted frame encoded as JPEG.
type Still struct {
	Timestamp string
	OffsetMs  int64
	Width     int
	Height    int
	Quality   int
	JPEG      []byte
}

// Base64 returns the JPEG bytes as standard base64 text.
func (s *Still) Base64() string {
	return base64.StdEncoding.EncodeToString(s.JPEG)
}

// DataURI returns the still as an inline data URI.
func (s *Still) DataURI() string {
	return "data:image/jpeg;base64," + s.Base64()
}

type Extractor struct {
	backend         Backend
	logger          *zap.Logger
	quality         int
	fallbackQuality int
	maxPayload      int
}

func NewExtractor(backend Backend, cfg types.VideoConfig, logger *zap.Logger) *Extractor {
	e := &Extractor{
		backend:         backend,
		logger:          logger,
		quality:         cfg.JPEGQuality,
		fallbackQuality: cfg.FallbackQuality,
		maxPayload:      cfg.MaxPayloadBytes,
	}
	if e.quality <= 0 || e.quality > 100 {
		e.quality = DefaultJPEGQuality
	}
	if e.fallbackQuality <= 0 || e.fallbackQuality >= e.quality {
		e.fallbackQuality = min(DefaultFallbackQuality, e.quality)
	}
	if e.maxPayload <= 0 {
		e.maxPayload = DefaultMaxPayloadBytes
	}
	return e
}

// ExtractFrame returns the frame nearest to timestamp ("mm:ss.mmm") in
// videoPath as base64 JPEG text. ok is false when no frame could be decoded or
// encoded at that offset; callers should skip that moment.
func (e *Extractor) ExtractFrame(ctx context.Context, timestamp, videoPath string) (string, bool, error) {
	still, ok, err := e.ExtractStill(ctx, timestamp, videoPath)
	if err != nil || !ok {
		return "", ok, err
	}
	return still.Base64(), true, nil
}

// ExtractStill is ExtractFrame without the base64 step.
func (e *Extractor) ExtractStill(ctx context.Context, timestamp, videoPath string) (*Still, bool, error) {
	if err := checkExists(videoPath); err != nil {
		return nil, false, err
	}
	offset, err := ParseTimestamp(timestamp)
	if err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	src, err := e.backend.OpenSource(videoPath)
	if err != nil {
		return nil, false, fmt.Errorf("%w: open %s: %w", ErrDecodeUnavailable, videoPath, err)
	}
	defer src.Close()

	log := e.logger.With(zap.String("video", videoPath), zap.String("timestamp", timestamp), zap.Int64("offset_ms", offset))

	if err := src.Seek(float64(offset)); err != nil {
		log.Warn("Seek failed", zap.Error(err))
		return nil, false, nil
	}
	frame, err := src.Read()
	if err != nil {
		log.Warn("No frame at offset", zap.Error(err))
		return nil, false, nil
	}

	quality := e.quality
	data, err := frame.EncodeJPEG(quality)
	if err != nil {
		log.Warn("JPEG encode failed", zap.Error(err))
		return nil, false, nil
	}
	if base64.StdEncoding.EncodedLen(len(data)) > e.maxPayload {
		log.Info("Still exceeds payload bound, re-encoding",
			zap.Int("bytes", len(data)),
			zap.Int("quality", e.fallbackQuality))
		if smaller, err := frame.EncodeJPEG(e.fallbackQuality); err == nil {
			data, quality = smaller, e.fallbackQuality
		}
		if n := base64.StdEncoding.EncodedLen(len(data)); n > e.maxPayload {
			log.Warn("Re-encoded still exceeds payload bound", zap.Int("base64_bytes", n), zap.Int("max", e.maxPayload))
		}
	}

	size := frame.Size()
	return &Still{
		Timestamp: timestamp,
		OffsetMs:  offset,
		Width:     size.X,
		Height:    size.Y,
		Quality:   quality,
		JPEG:      data,
	}, true, nil
}
