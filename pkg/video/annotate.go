package video

import (
	types "FormCoach/pkg"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"os"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultFourcc = "avc1"
	defaultFPS    = 30
)

// AnnotateResult summarizes one annotation pass.
type AnnotateResult struct {
	InputPath  string
	OutputPath string
	Frames     int
	FirstLabel string
	LastLabel  string
	Props      Props
	Elapsed    time.Duration
}

// Annotator rewrites a video with a burned-in elapsed-time label on every frame.
type Annotator struct {
	backend    Backend
	logger     *zap.Logger
	fourcc     string
	defaultFPS float64
	style      LabelStyle

	// OnFrame, when set, observes the label of every frame in order.
	OnFrame func(index int, label string)
}

func NewAnnotator(backend Backend, cfg types.VideoConfig, logger *zap.Logger) *Annotator {
	style := DefaultLabelStyle()
	if cfg.Label.FontScale > 0 {
		style.FontScale = cfg.Label.FontScale
	}
	if cfg.Label.Thickness > 0 {
		style.Thickness = cfg.Label.Thickness
	}
	if cfg.Label.InsetX > 0 || cfg.Label.InsetY > 0 {
		style.Inset = image.Pt(cfg.Label.InsetX, cfg.Label.InsetY)
	}

	fourcc := cfg.Fourcc
	if fourcc == "" {
		fourcc = DefaultFourcc
	}
	fps := cfg.DefaultFPS
	if fps <= 0 {
		fps = defaultFPS
	}

	return &Annotator{
		backend:    backend,
		logger:     logger,
		fourcc:     fourcc,
		defaultFPS: fps,
		style:      style,
	}
}

// Annotate decodes inputPath frame by frame, draws the elapsed-time label on
// each frame and writes every frame to outputPath with the source's size and
// frame rate. Concurrent calls must not share an outputPath. On failure after
// the encoder was opened, outputPath is removed.
func (a *Annotator) Annotate(ctx context.Context, inputPath, outputPath string) (res *AnnotateResult, err error) {
	if err := checkExists(inputPath); err != nil {
		return nil, err
	}

	start := time.Now()
	src, err := a.backend.OpenSource(inputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrDecodeUnavailable, inputPath, err)
	}
	defer src.Close()

	props := src.Props()
	if props.FPS <= 0 {
		a.logger.Warn("Source reports no frame rate, using default",
			zap.String("input", inputPath),
			zap.Float64("fps", a.defaultFPS))
		props.FPS = a.defaultFPS
	}

	sink, err := a.backend.CreateSink(outputPath, a.fourcc, props)
	if err != nil {
		return nil, fmt.Errorf("%w: create %s (fourcc %s): %w", ErrDecodeUnavailable, outputPath, a.fourcc, err)
	}
	defer func() {
		if closeErr := sink.Close(); closeErr != nil && err == nil {
			res = nil
			err = fmt.Errorf("%w: finalize %s: %w", ErrStreamFault, outputPath, closeErr)
		}
		// Faults leave no partial output behind.
		if err != nil {
			if rmErr := os.Remove(outputPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				a.logger.Warn("Failed to remove partial output", zap.String("output", outputPath), zap.Error(rmErr))
			}
		}
	}()

	a.logger.Info("Annotating video",
		zap.String("input", inputPath),
		zap.String("output", outputPath),
		zap.Int("width", props.Width),
		zap.Int("height", props.Height),
		zap.Float64("fps", props.FPS),
		zap.String("fourcc", a.fourcc))

	res = &AnnotateResult{InputPath: inputPath, OutputPath: outputPath, Props: props}
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("annotation cancelled after %d frames: %w", res.Frames, err)
		}

		frame, err := src.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read frame %d of %s: %w", ErrStreamFault, res.Frames, inputPath, err)
		}

		// The position is sampled after the read, so the label is the decoder
		// position following this frame rather than its presentation time.
		label := FormatElapsed(src.PositionMsec())
		if err := a.drawLabel(frame, label); err != nil {
			return nil, fmt.Errorf("%w: draw frame %d: %w", ErrStreamFault, res.Frames, err)
		}
		if err := sink.Write(frame); err != nil {
			return nil, fmt.Errorf("%w: write frame %d to %s: %w", ErrStreamFault, res.Frames, outputPath, err)
		}

		if res.Frames == 0 {
			res.FirstLabel = label
		}
		res.LastLabel = label
		if a.OnFrame != nil {
			a.OnFrame(res.Frames, label)
		}
		res.Frames++
	}

	res.Elapsed = time.Since(start)
	a.logger.Info("Annotation completed",
		zap.String("output", outputPath),
		zap.Int("frames", res.Frames),
		zap.String("last_label", res.LastLabel),
		zap.Duration("duration", res.Elapsed))
	return res, nil
}

// drawLabel backs the label with an opaque plate sized to the text footprint.
func (a *Annotator) drawLabel(frame Frame, label string) error {
	plate, org := LabelGeometry(frame, label, a.style)
	if err := frame.FillRect(plate, a.style.PlateColor); err != nil {
		return err
	}
	return frame.PutText(label, org, a.style)
}

// LabelGeometry returns the background plate and text origin for label,
// anchored at style.Inset from the bottom-left corner of frame.
func LabelGeometry(frame Frame, label string, style LabelStyle) (image.Rectangle, image.Point) {
	org := image.Pt(style.Inset.X, frame.Size().Y-style.Inset.Y)
	size, baseline := frame.MeasureText(label, style)
	plate := image.Rect(org.X, org.Y+baseline, org.X+size.X, org.Y-size.Y-baseline)
	return plate, org
}

func checkExists(path string) error {
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return fmt.Errorf("%w: stat %s: %w", ErrDecodeUnavailable, path, err)
}
