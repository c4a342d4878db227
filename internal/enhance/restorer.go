package enhance

import (
	"context"
	"image"
	"log/slog"
	"strconv"

	"wmclean/internal/frame"
	"wmclean/internal/logging"
)

// Restorer repairs faces in an upscaled frame without changing its size.
type Restorer interface {
	Restore(ctx context.Context, img *image.RGBA) (*image.RGBA, error)
}

// CommandRestorer runs a CodeFormer style binary on each frame via PNG files:
//
//	<binary> -i in.png -o out.png -w <fidelity>
//
// A frame the binary fails on is passed through unchanged.
type CommandRestorer struct {
	Binary string
	// Fidelity trades quality (0) against faithfulness to the input (1).
	Fidelity float64
	WorkDir  string
	Logger   *slog.Logger

	failures int
}

// Failures reports how many frames were passed through unrestored.
func (c *CommandRestorer) Failures() int {
	return c.failures
}

// Restore returns the restored frame, or a copy of img when the binary fails.
// Only cancellation is returned as an error.
func (c *CommandRestorer) Restore(ctx context.Context, img *image.RGBA) (*image.RGBA, error) {
	args := func(in, out string) []string {
		return []string{"-i", in, "-o", out, "-w", strconv.FormatFloat(c.Fidelity, 'f', -1, 64)}
	}
	restored, err := runFrameCommand(ctx, c.WorkDir, c.Binary, args, img, img.Bounds().Size())
	if err == nil {
		return restored, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	c.failures++
	if c.failures == 1 {
		logging.WarnWithContext(c.Logger, "face restoration failed; keeping frame", "restorer_fallback",
			logging.String("binary", c.Binary),
			logging.Error(err),
			logging.String(logging.FieldImpact, "affected frames keep the upscaled image without face restoration"),
			logging.String(logging.FieldErrorHint, "check enhance.restorer_command"),
		)
	}
	return frame.Clone(img), nil
}
