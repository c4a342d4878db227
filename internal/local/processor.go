package local

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"

	"wmclean/internal/frame"
	"wmclean/internal/logging"
	"wmclean/internal/progress"
)

// Stats summarizes a frame loop.
type Stats struct {
	Frames    int
	Inpainted int
	Failed    int
}

// Processor runs detect, mask, and inpaint over a frame stream.
type Processor struct {
	detector  Detector
	inpainter Inpainter
	logger    *slog.Logger
}

// NewProcessor wires a detector and inpainter.
func NewProcessor(detector Detector, inpainter Inpainter, logger *slog.Logger) *Processor {
	return &Processor{
		detector:  detector,
		inpainter: inpainter,
		logger:    logging.NewComponentLogger(logger, "local"),
	}
}

// Run copies src to sink, inpainting detected watermarks. total is the
// expected frame count used for progress (0 when unknown). Cancellation is
// checked before each frame; a canceled run returns ctx.Err() with the frames
// written so far left in sink.
func (p *Processor) Run(ctx context.Context, src frame.Source, sink frame.Sink, total int, report progress.Func) (Stats, error) {
	var stats Stats
	logger := logging.WithContext(ctx, p.logger)
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		img, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("read frame %d: %w", stats.Frames+1, err)
		}

		out, inpainted, err := p.ProcessFrame(ctx, img)
		switch {
		case err != nil:
			stats.Failed++
			out = img
			logging.WarnWithContext(logger, "frame processing failed", "frame_failed",
				logging.Int("frame", stats.Frames+1),
				logging.Error(err),
				logging.String(logging.FieldImpact, "original frame kept"),
			)
		case inpainted:
			stats.Inpainted++
		}
		if err := sink.Write(out); err != nil {
			return stats, fmt.Errorf("write frame %d: %w", stats.Frames+1, err)
		}
		stats.Frames++
		if total > 0 {
			report.Report(fmt.Sprintf("Processing frame %d/%d", stats.Frames, total), float64(stats.Frames)/float64(total)*100)
		}
	}
	report.Report("Frames processed", 100)
	return stats, nil
}

// ProcessFrame returns img unchanged when no watermark is found.
func (p *Processor) ProcessFrame(ctx context.Context, img *image.RGBA) (*image.RGBA, bool, error) {
	boxes, err := p.detector.Detect(ctx, img)
	if err != nil {
		return nil, false, fmt.Errorf("detect: %w", err)
	}
	if len(boxes) == 0 {
		return img, false, nil
	}
	mask, painted := BuildMask(img.Bounds(), boxes)
	if !painted {
		return img, false, nil
	}
	out, err := p.inpainter.Inpaint(ctx, img, mask)
	if err != nil {
		return nil, false, fmt.Errorf("inpaint: %w", err)
	}
	return out, true, nil
}
