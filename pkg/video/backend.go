// Package video burns elapsed-time labels into videos and extracts stills at
// given timestamps. Decoding, drawing and encoding are delegated to a Backend;
// package cv provides the OpenCV one.
package video

import (
	"image"
	"image/color"
)

// Props describes a decoded stream.
type Props struct {
	Width      int
	Height     int
	FPS        float64
	FrameCount int
}

// Frame is one decoded picture. It is owned by its Source and is only valid
// until the next Read or Close.
type Frame interface {
	Size() image.Point
	// MeasureText returns the rendered footprint of text and its baseline.
	MeasureText(text string, style LabelStyle) (image.Point, int)
	FillRect(r image.Rectangle, c color.RGBA) error
	// PutText draws text with its bottom-left corner at org.
	PutText(text string, org image.Point, style LabelStyle) error
	EncodeJPEG(quality int) ([]byte, error)
}

// Source is a decoder handle bound to one file.
type Source interface {
	Props() Props
	// Read decodes the next frame. It returns io.EOF at a clean end of stream
	// and any other error for a decode fault.
	Read() (Frame, error)
	// PositionMsec is the decoder's reported position after the last Read.
	PositionMsec() float64
	// Seek asks the decoder to jump near offset. Accuracy is codec dependent.
	Seek(offsetMsec float64) error
	Close() error
}

// Sink is an encoder handle bound to one output file.
type Sink interface {
	Write(f Frame) error
	Close() error
}

// Backend opens decoder and encoder handles.
type Backend interface {
	OpenSource(path string) (Source, error)
	CreateSink(path, fourcc string, props Props) (Sink, error)
}

// LabelStyle fixes how the elapsed-time label is rendered.
type LabelStyle struct {
	FontScale float64
	Thickness int
	// Inset is the text origin offset from the bottom-left frame corner.
	Inset      image.Point
	TextColor  color.RGBA
	PlateColor color.RGBA
}

// DefaultLabelStyle is white Hershey-simplex text at scale 0.8 on a black plate,
// anchored 10px from the left edge and 20px above the bottom edge.
func DefaultLabelStyle() LabelStyle {
	return LabelStyle{
		FontScale:  0.8,
		Thickness:  2,
		Inset:      image.Pt(10, 20),
		TextColor:  color.RGBA{R: 255, G: 255, B: 255, A: 255},
		PlateColor: color.RGBA{A: 255},
	}
}
