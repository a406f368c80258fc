// Package cv implements video.Backend on OpenCV through gocv.
package cv

import (
	"FormCoach/pkg/video"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

var (
	errNotOpened    = errors.New("opencv could not open stream")
	errReadFailed   = errors.New("frame read failed before end of stream")
	errEmptyFrame   = errors.New("decoder returned an empty frame")
	errForeignFrame = errors.New("frame was not decoded by the opencv backend")
)

// minFrameSlack is the smallest overshoot of the container frame count that
// still ends a stream cleanly. Counts are estimates for VFR and edit-listed MP4s.
const minFrameSlack = 2

type Backend struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backend{logger: logger}
}

func (b *Backend) OpenSource(path string) (video.Source, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, err
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, errNotOpened
	}
	return &source{vc: vc, mat: gocv.NewMat(), path: path, logger: b.logger}, nil
}

func (b *Backend) CreateSink(path, fourcc string, props video.Props) (video.Sink, error) {
	vw, err := gocv.VideoWriterFile(path, fourcc, props.FPS, props.Width, props.Height, true)
	if err != nil {
		return nil, err
	}
	if !vw.IsOpened() {
		vw.Close()
		return nil, fmt.Errorf("%w: writer %s", errNotOpened, fourcc)
	}
	return &sink{vw: vw}, nil
}

type source struct {
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	path   string
	logger *zap.Logger
}

func (s *source) Props() video.Props {
	return video.Props{
		Width:      int(s.vc.Get(gocv.VideoCaptureFrameWidth)),
		Height:     int(s.vc.Get(gocv.VideoCaptureFrameHeight)),
		FPS:        s.vc.Get(gocv.VideoCaptureFPS),
		FrameCount: int(s.vc.Get(gocv.VideoCaptureFrameCount)),
	}
}

// Read maps OpenCV's boolean read onto io.EOF or a fault. A failed read counts
// as a clean end when the decoder is within the frame count slack of the
// container's estimate, or when the container does not declare a count.
func (s *source) Read() (video.Frame, error) {
	if !s.vc.Read(&s.mat) {
		count := s.vc.Get(gocv.VideoCaptureFrameCount)
		pos := s.vc.Get(gocv.VideoCapturePosFrames)
		if !AtEnd(pos, count) {
			return nil, fmt.Errorf("%w: position %.0f of %.0f", errReadFailed, pos, count)
		}
		if count > 0 && pos < count-1 {
			s.logger.Warn("Stream ended before the declared frame count",
				zap.String("path", s.path),
				zap.Float64("position", pos),
				zap.Float64("frame_count", count))
		}
		return nil, io.EOF
	}
	if s.mat.Empty() {
		return nil, errEmptyFrame
	}
	return &frame{mat: &s.mat}, nil
}

// AtEnd reports whether a failed read at frame pos ends a stream whose
// container declares count frames. The slack grows with long clips, where the
// estimate drifts further.
func AtEnd(pos, count float64) bool {
	if count <= 0 {
		return true
	}
	slack := math.Max(minFrameSlack, math.Ceil(count*0.01))
	return pos >= count-1-slack
}

func (s *source) PositionMsec() float64 {
	return s.vc.Get(gocv.VideoCapturePosMsec)
}

func (s *source) Seek(offsetMsec float64) error {
	s.vc.Set(gocv.VideoCapturePosMsec, offsetMsec)
	return nil
}

func (s *source) Close() error {
	matErr := s.mat.Close()
	return errors.Join(s.vc.Close(), matErr)
}

type sink struct {
	vw *gocv.VideoWriter
}

func (s *sink) Write(f video.Frame) error {
	fr, ok := f.(*frame)
	if !ok {
		return errForeignFrame
	}
	return s.vw.Write(*fr.mat)
}

func (s *sink) Close() error {
	return s.vw.Close()
}

type frame struct {
	mat *gocv.Mat
}

func (f *frame) Size() image.Point {
	return image.Pt(f.mat.Cols(), f.mat.Rows())
}

func (f *frame) MeasureText(text string, style video.LabelStyle) (image.Point, int) {
	return gocv.GetTextSizeWithBaseline(text, gocv.FontHersheySimplex, style.FontScale, style.Thickness)
}

func (f *frame) FillRect(r image.Rectangle, c color.RGBA) error {
	return gocv.Rectangle(f.mat, r, c, -1)
}

func (f *frame) PutText(text string, org image.Point, style video.LabelStyle) error {
	return gocv.PutTextWithParams(f.mat, text, org, gocv.FontHersheySimplex, style.FontScale, style.TextColor, style.Thickness, gocv.LineAA, false)
}

func (f *frame) EncodeJPEG(quality int) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, *f.mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, err
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}
