package enhance

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"strings"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"

	"wmclean/internal/logging"
)

// Upscaler enlarges a frame by an integer factor.
type Upscaler interface {
	Upscale(ctx context.Context, img *image.RGBA, scale int) (*image.RGBA, error)
}

// ResizeUpscaler interpolates in-process.
type ResizeUpscaler struct {
	// Interpolation is nearest, bilinear, bicubic, lanczos, or catmullrom.
	Interpolation string
}

func (r ResizeUpscaler) Upscale(_ context.Context, img *image.RGBA, scale int) (*image.RGBA, error) {
	if scale < 1 {
		return nil, fmt.Errorf("invalid scale %d", scale)
	}
	b := img.Bounds()
	width, height := uint(b.Dx()*scale), uint(b.Dy()*scale)

	if strings.EqualFold(r.Interpolation, "catmullrom") {
		out := image.NewRGBA(image.Rect(0, 0, int(width), int(height)))
		draw.CatmullRom.Scale(out, out.Bounds(), img, b, draw.Src, nil)
		return out, nil
	}
	scaled := resize.Resize(width, height, img, interpolation(r.Interpolation))
	if rgba, ok := scaled.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba, nil
	}
	out := image.NewRGBA(image.Rect(0, 0, int(width), int(height)))
	draw.Draw(out, out.Bounds(), scaled, scaled.Bounds().Min, draw.Src)
	return out, nil
}

func interpolation(name string) resize.InterpolationFunction {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "nearest":
		return resize.NearestNeighbor
	case "bilinear":
		return resize.Bilinear
	case "lanczos":
		return resize.Lanczos3
	default:
		return resize.Bicubic
	}
}

// CommandUpscaler runs an external super-resolution binary on each frame via
// PNG files in a scratch directory:
//
//	<binary> -i in.png -o out.png -s <scale> [-n <model>] [-m <model dir>]
type CommandUpscaler struct {
	Binary string
	Model  string
	// ModelDir holds the weights; empty leaves the binary's default.
	ModelDir string
	WorkDir  string
	Fallback Upscaler
	Logger   *slog.Logger

	fallbacks int
}

// Fallbacks reports how many frames were handed to the fallback upscaler.
func (c *CommandUpscaler) Fallbacks() int {
	return c.fallbacks
}

func (c *CommandUpscaler) Upscale(ctx context.Context, img *image.RGBA, scale int) (*image.RGBA, error) {
	out, err := c.runCommand(ctx, img, scale)
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil || c.Fallback == nil {
		return nil, err
	}
	c.fallbacks++
	if c.fallbacks == 1 {
		logging.WarnWithContext(c.Logger, "upscaler command failed; using resize", "upscaler_fallback",
			logging.String("binary", c.Binary),
			logging.Error(err),
			logging.String(logging.FieldImpact, "affected frames use interpolation instead of the model"),
			logging.String(logging.FieldErrorHint, "check the upscaler binary and model name"),
		)
	}
	return c.Fallback.Upscale(ctx, img, scale)
}

func (c *CommandUpscaler) runCommand(ctx context.Context, img *image.RGBA, scale int) (*image.RGBA, error) {
	args := func(in, out string) []string {
		args := []string{"-i", in, "-o", out, "-s", strconv.Itoa(scale)}
		if model := strings.TrimSpace(c.Model); model != "" {
			args = append(args, "-n", model)
		}
		if dir := strings.TrimSpace(c.ModelDir); dir != "" {
			args = append(args, "-m", dir)
		}
		return args
	}
	b := img.Bounds()
	return runFrameCommand(ctx, c.WorkDir, c.Binary, args, img, image.Pt(b.Dx()*scale, b.Dy()*scale))
}
