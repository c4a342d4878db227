package local

import (
	"image"
	"image/color"
)

// Box is a detected watermark rectangle in pixel coordinates. X2 and Y2 are
// exclusive.
type Box struct {
	X1, Y1, X2, Y2 int
	Confidence     float64
}

// Rect converts the box to an image rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

// BuildMask paints the union of boxes, clamped to bounds, as 255 on a zero
// mask the size of bounds. The second result is false when nothing was painted.
func BuildMask(bounds image.Rectangle, boxes []Box) (*image.Gray, bool) {
	mask := image.NewGray(bounds)
	painted := false
	for _, box := range boxes {
		r := box.Rect().Intersect(bounds)
		if r.Empty() {
			continue
		}
		painted = true
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				mask.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return mask, painted
}
