// Package frame defines the frame stream contracts shared by the removal and
// enhancement loops, plus in-memory implementations used by tests and by
// single-image callers.
package frame

import (
	"image"
	"io"
)

// Source yields decoded frames in order. Next returns io.EOF after the last frame.
type Source interface {
	Next() (*image.RGBA, error)
	Close() error
}

// Sink accepts frames in order. Close flushes and finalizes the output.
type Sink interface {
	Write(img *image.RGBA) error
	Close() error
}

// SliceSource serves frames from memory.
type SliceSource struct {
	Frames []*image.RGBA
	pos    int
}

func (s *SliceSource) Next() (*image.RGBA, error) {
	if s.pos >= len(s.Frames) {
		return nil, io.EOF
	}
	img := s.Frames[s.pos]
	s.pos++
	return img, nil
}

func (s *SliceSource) Close() error { return nil }

// CollectSink keeps every written frame.
type CollectSink struct {
	Frames []*image.RGBA
	Closed bool
}

func (s *CollectSink) Write(img *image.RGBA) error {
	s.Frames = append(s.Frames, img)
	return nil
}

func (s *CollectSink) Close() error {
	s.Closed = true
	return nil
}

// Clone returns a deep copy of img with a zero-origin rectangle.
func Clone(img *image.RGBA) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		srcStart := img.PixOffset(b.Min.X, b.Min.Y+y)
		copy(out.Pix[y*out.Stride:y*out.Stride+b.Dx()*4], img.Pix[srcStart:srcStart+b.Dx()*4])
	}
	return out
}
