// Package videotest provides an in-memory video.Backend for tests.
package videotest

import (
	"FormCoach/pkg/video"
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// ErrInjected is the error returned by every induced fault.
var ErrInjected = errors.New("injected fault")

const fallbackFPS = 30

// Backend decodes synthetic clips and counts handle lifetimes. The zero
// value is not usable; call NewBackend.
type Backend struct {
	Props     video.Props
	FaultAt   int // read index that fails, -1 for none
	OpenErr   error
	SinkErr   error
	WriteErr  error // returned from the second write onwards
	DrawErr   error // returned from FillRect
	EncodeErr error

	mu          sync.Mutex
	opened      int
	closed      int
	sinksOpened int
	sinksClosed int
	lastSink    *Sink
}

func NewBackend(width, height int, fps float64, frames int) *Backend {
	return &Backend{
		Props:   video.Props{Width: width, Height: height, FPS: fps, FrameCount: frames},
		FaultAt: -1,
	}
}

func (b *Backend) OpenSource(path string) (video.Source, error) {
	if b.OpenErr != nil {
		return nil, b.OpenErr
	}
	b.mu.Lock()
	b.opened++
	b.mu.Unlock()
	return &source{backend: b, props: b.Props}, nil
}

func (b *Backend) CreateSink(path, fourcc string, props video.Props) (video.Sink, error) {
	if b.SinkErr != nil {
		return nil, b.SinkErr
	}
	// Real encoders create the container up front.
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinksOpened++
	b.lastSink = &Sink{backend: b, Path: path, Fourcc: fourcc, Props: props}
	return b.lastSink, nil
}

// Opened is the number of sources opened so far.
func (b *Backend) Opened() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened
}

// Balanced reports whether every opened source and sink was closed exactly once.
func (b *Backend) Balanced() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened == b.closed && b.sinksOpened == b.sinksClosed
}

// LastSink is the most recently created sink, or nil.
func (b *Backend) LastSink() *Sink {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSink
}

type source struct {
	backend *Backend
	props   video.Props
	next    int
	closed  bool
}

func (s *source) Props() video.Props { return s.props }

func (s *source) Read() (video.Frame, error) {
	if s.next == s.backend.FaultAt {
		return nil, ErrInjected
	}
	if s.next >= s.props.FrameCount {
		return nil, io.EOF
	}
	s.next++
	f := NewFrame(s.props.Width, s.props.Height, s.backend.EncodeErr)
	f.drawErr = s.backend.DrawErr
	return f, nil
}

// PositionMsec mirrors a decoder that reports the time of the next frame.
func (s *source) PositionMsec() float64 {
	return float64(s.next) * 1000 / s.fps()
}

func (s *source) Seek(offsetMsec float64) error {
	s.next = int(offsetMsec * s.fps() / 1000)
	return nil
}

func (s *source) fps() float64 {
	if s.props.FPS <= 0 {
		return fallbackFPS
	}
	return s.props.FPS
}

func (s *source) Close() error {
	if s.closed {
		return errors.New("source closed twice")
	}
	s.closed = true
	s.backend.mu.Lock()
	s.backend.closed++
	s.backend.mu.Unlock()
	return nil
}

// Sink records what was written to it.
type Sink struct {
	Path   string
	Fourcc string
	Props  video.Props
	Frames int
	Plates []image.Rectangle
	Labels []string

	backend *Backend
	closed  bool
}

func (s *Sink) Write(f video.Frame) error {
	if s.backend.WriteErr != nil && s.Frames > 0 {
		return s.backend.WriteErr
	}
	if ff, ok := f.(*Frame); ok {
		s.Plates = append(s.Plates, ff.Plates...)
		s.Labels = append(s.Labels, ff.Texts...)
	}
	s.Frames++
	return nil
}

func (s *Sink) Close() error {
	if s.closed {
		return errors.New("sink closed twice")
	}
	s.closed = true
	s.backend.mu.Lock()
	s.backend.sinksClosed++
	s.backend.mu.Unlock()
	return nil
}

// Frame is an RGBA picture that records what was drawn on it.
type Frame struct {
	Img    *image.RGBA
	Plates []image.Rectangle
	Texts  []string

	encodeErr error
	drawErr   error
}

func NewFrame(width, height int, encodeErr error) *Frame {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 40, G: 90, B: 160, A: 255}}, image.Point{}, draw.Src)
	return &Frame{Img: img, encodeErr: encodeErr}
}

func (f *Frame) Size() image.Point { return f.Img.Bounds().Size() }

// MeasureText uses a fixed-width glyph cell so geometry is predictable.
func (f *Frame) MeasureText(text string, style video.LabelStyle) (image.Point, int) {
	return image.Pt(len(text)*int(18*style.FontScale), int(22*style.FontScale)), style.Thickness * 4
}

func (f *Frame) FillRect(r image.Rectangle, c color.RGBA) error {
	if f.drawErr != nil {
		return f.drawErr
	}
	f.Plates = append(f.Plates, r)
	draw.Draw(f.Img, r.Canon(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return nil
}

func (f *Frame) PutText(text string, org image.Point, style video.LabelStyle) error {
	f.Texts = append(f.Texts, text)
	return nil
}

func (f *Frame) EncodeJPEG(quality int) ([]byte, error) {
	if f.encodeErr != nil {
		return nil, f.encodeErr
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.Img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Touch creates an empty placeholder file so existence checks pass.
func Touch(tb testing.TB, name string) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), name)
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		tb.Fatalf("touch %s: %v", path, err)
	}
	return path
}
