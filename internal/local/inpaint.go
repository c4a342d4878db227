package local

import (
	"context"
	"fmt"
	"image"

	"wmclean/internal/frame"
)

// Inpainter fills the pixels of img where mask is non-zero.
type Inpainter interface {
	Inpaint(ctx context.Context, img *image.RGBA, mask *image.Gray) (*image.RGBA, error)
}

// DiffuseInpainter fills the mask from its border inward. Each ring of
// masked pixels next to known pixels takes the inverse-square-distance
// weighted average of the known pixels within Radius, then becomes known.
type DiffuseInpainter struct {
	Radius int
}

func (d DiffuseInpainter) Inpaint(_ context.Context, img *image.RGBA, mask *image.Gray) (*image.RGBA, error) {
	b := img.Bounds()
	if mask.Bounds().Dx() != b.Dx() || mask.Bounds().Dy() != b.Dy() {
		return nil, fmt.Errorf("mask %v does not match frame %v", mask.Bounds(), b)
	}
	out := frame.Clone(img)
	w, h := b.Dx(), b.Dy()
	radius := max(d.Radius, 1)

	unknown := make([]bool, w*h)
	minX, minY, maxX, maxY := w, h, -1, -1
	pending := 0
	mb := mask.Bounds()
	for y := 0; y < h; y++ {
		row := mask.Pix[mask.PixOffset(mb.Min.X, mb.Min.Y+y):]
		for x := 0; x < w; x++ {
			if row[x] == 0 {
				continue
			}
			unknown[y*w+x] = true
			pending++
			minX, minY = min(minX, x), min(minY, y)
			maxX, maxY = max(maxX, x), max(maxY, y)
		}
	}
	if pending == 0 || pending == w*h {
		return out, nil
	}

	hasKnownNeighbor := func(x, y int) bool {
		return (x > 0 && !unknown[y*w+x-1]) ||
			(x < w-1 && !unknown[y*w+x+1]) ||
			(y > 0 && !unknown[(y-1)*w+x]) ||
			(y < h-1 && !unknown[(y+1)*w+x])
	}

	ring := make([]image.Point, 0, 2*(maxX-minX+maxY-minY+2))
	for pending > 0 {
		ring = ring[:0]
		for y := minY; y <= maxY; y++ {
			for x := minX; x <= maxX; x++ {
				if unknown[y*w+x] && hasKnownNeighbor(x, y) {
					ring = append(ring, image.Point{X: x, Y: y})
				}
			}
		}
		if len(ring) == 0 {
			break
		}
		for _, p := range ring {
			var sum [4]float64
			var total float64
			for dy := -radius; dy <= radius; dy++ {
				ny := p.Y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -radius; dx <= radius; dx++ {
					nx := p.X + dx
					dist := dx*dx + dy*dy
					if nx < 0 || nx >= w || dist == 0 || dist > radius*radius || unknown[ny*w+nx] {
						continue
					}
					weight := 1 / float64(dist)
					off := out.PixOffset(nx, ny)
					for c := 0; c < 4; c++ {
						sum[c] += weight * float64(out.Pix[off+c])
					}
					total += weight
				}
			}
			if total == 0 {
				continue
			}
			off := out.PixOffset(p.X, p.Y)
			for c := 0; c < 4; c++ {
				out.Pix[off+c] = uint8(sum[c]/total + 0.5)
			}
		}
		// Commit the ring only after all of it is filled so values within one
		// ring never feed each other.
		for _, p := range ring {
			unknown[p.Y*w+p.X] = false
		}
		pending -= len(ring)
	}
	return out, nil
}
