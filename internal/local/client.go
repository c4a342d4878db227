package local

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"wmclean/internal/config"
	"wmclean/internal/fileutil"
	"wmclean/internal/frame"
	"wmclean/internal/guard"
	"wmclean/internal/logging"
	"wmclean/internal/media/ffmpeg"
	"wmclean/internal/media/ffprobe"
	"wmclean/internal/progress"
	"wmclean/internal/services"
)

// Options configures the video-level client.
type Options struct {
	FFmpegBinary  string
	FFprobeBinary string
	TempDir       string
	VideoCodec    string
}

// Client removes watermarks from whole videos using a Processor.
type Client struct {
	opts      Options
	processor *Processor
	logger    *slog.Logger

	probe      func(ctx context.Context, binary, path string) (ffprobe.Result, error)
	openSource func(ctx context.Context, input string, width, height int) (frame.Source, error)
	openSink   func(ctx context.Context, output string, width, height int, fps float64) (frame.Sink, error)
}

// NewClient constructs a client around detector and inpainter.
func NewClient(opts Options, detector Detector, inpainter Inpainter, logger *slog.Logger) *Client {
	c := &Client{
		opts:      opts,
		processor: NewProcessor(detector, inpainter, logger),
		logger:    logging.NewComponentLogger(logger, "local"),
		probe:     ffprobe.Inspect,
	}
	c.openSource = func(ctx context.Context, input string, width, height int) (frame.Source, error) {
		return ffmpeg.NewDecoder(ctx, c.opts.FFmpegBinary, input, width, height)
	}
	c.openSink = func(ctx context.Context, output string, width, height int, fps float64) (frame.Sink, error) {
		return ffmpeg.NewEncoder(ctx, c.opts.FFmpegBinary, output, ffmpeg.EncoderOptions{
			Width: width, Height: height, FPS: fps, Codec: c.opts.VideoCodec,
		})
	}
	return c
}

// NewClientFromConfig builds the detector and inpainter named in cfg.Local.
func NewClientFromConfig(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	detector, err := NewDetector(cfg.Local)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "local", "build detector", "", err)
	}
	inpainter, err := NewInpainter(cfg.Local)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "local", "build inpainter", "", err)
	}
	return NewClient(Options{
		FFmpegBinary:  cfg.FFmpegBinary(),
		FFprobeBinary: cfg.FFprobeBinary(),
		TempDir:       cfg.Paths.TempDir,
		VideoCodec:    cfg.Local.VideoCodec,
	}, detector, inpainter, logger), nil
}

// NewDetector selects the configured detector.
func NewDetector(cfg config.Local) (Detector, error) {
	switch cfg.Detector {
	case config.DetectorStatic:
		regions := make([]Box, 0, len(cfg.Regions))
		for _, r := range cfg.Regions {
			regions = append(regions, Box{X1: r.X1, Y1: r.Y1, X2: r.X2, Y2: r.Y2, Confidence: 1})
		}
		return StaticDetector{Regions: regions}, nil
	case config.DetectorHTTP, "":
		return NewHTTPDetector(cfg.DetectorURL, cfg.ConfidenceThreshold, cfg.IoUThreshold, requestTimeout(cfg), nil)
	default:
		return nil, fmt.Errorf("unknown detector %q", cfg.Detector)
	}
}

// NewInpainter selects the configured inpainter.
func NewInpainter(cfg config.Local) (Inpainter, error) {
	switch cfg.Inpainter {
	case config.InpainterDiffuse, "":
		return DiffuseInpainter{Radius: cfg.InpaintRadius}, nil
	case config.InpainterIOPaint:
		return NewIOPaintInpainter(cfg.IOPaintURL, cfg.IOPaintModel, requestTimeout(cfg), nil)
	default:
		return nil, fmt.Errorf("unknown inpainter %q", cfg.Inpainter)
	}
}

func requestTimeout(cfg config.Local) time.Duration {
	if cfg.RequestTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(cfg.RequestTimeoutSeconds) * time.Second
}

// Remove processes input frame by frame and writes output. Audio from the
// source is remuxed when present.
func (c *Client) Remove(ctx context.Context, input, output string, report progress.Func) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger := logging.WithContext(ctx, c.logger)

	report.Report("Inspecting video", 0)
	probe, err := c.probe(ctx, c.opts.FFprobeBinary, input)
	if err != nil {
		return services.Wrap(services.ErrProcessing, "local", "probe", input, err)
	}
	stream, ok := probe.VideoStream()
	if !ok || stream.Width <= 0 || stream.Height <= 0 {
		return services.Wrap(services.ErrValidation, "local", "probe", "no video stream in "+input, nil)
	}
	fps := stream.FPS()
	total := probe.FrameCount()
	width, height := stream.DisplaySize()
	logger.Info("local removal started",
		logging.String("input", input),
		logging.Int("width", width),
		logging.Int("height", height),
		logging.Int("rotation", stream.Rotation()),
		logging.Float64("fps", fps),
		logging.Int("frames", total),
		logging.Bool("audio", probe.HasAudio()),
	)

	workDir, err := c.workDir(input)
	if err != nil {
		return services.Wrap(services.ErrProcessing, "local", "temp dir", "", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Debug("temp cleanup failed", logging.String("dir", workDir), logging.Error(err))
		}
	}()
	videoOnly := filepath.Join(workDir, "video.mp4")

	stats, err := c.runFrames(ctx, input, videoOnly, width, height, fps, total, report)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrProcessing, "local", "frames", input, err)
	}
	logger.Info("frames processed",
		logging.Int("frames", stats.Frames),
		logging.Int("inpainted", stats.Inpainted),
		logging.Int("failed", stats.Failed),
	)

	report.Report("Restoring audio", 95)
	if err := c.finish(ctx, logger, input, videoOnly, workDir, output, probe.HasAudio()); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrProcessing, "local", "finalize", output, err)
	}
	report.Report("Local processing completed", 100)
	return nil
}

func (c *Client) workDir(input string) (string, error) {
	base := c.opts.TempDir
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", err
	}
	return os.MkdirTemp(base, guard.TempPrefix("local", input))
}

func (c *Client) runFrames(ctx context.Context, input, output string, width, height int, fps float64, total int, report progress.Func) (stats Stats, err error) {
	src, err := c.openSource(ctx, input, width, height)
	if err != nil {
		return stats, err
	}
	sink, err := c.openSink(ctx, output, width, height, fps)
	if err != nil {
		_ = src.Close()
		return stats, err
	}
	scaled := func(evt progress.Event) {
		report.Report(evt.Message, evt.Percent*0.9)
	}
	stats, err = c.processor.Run(ctx, src, sink, total, scaled)
	srcErr := src.Close()
	sinkErr := sink.Close()
	if err != nil {
		return stats, err
	}
	if srcErr != nil {
		return stats, srcErr
	}
	return stats, sinkErr
}

// finish muxes audio back in, or moves the silent video into place when the
// source has no audio or extraction fails.
func (c *Client) finish(ctx context.Context, logger *slog.Logger, input, videoOnly, workDir, output string, hasAudio bool) error {
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return err
	}
	if hasAudio {
		audio := filepath.Join(workDir, "audio.m4a")
		err := ffmpeg.ExtractAudio(ctx, c.opts.FFmpegBinary, input, audio)
		if err == nil {
			err = ffmpeg.MergeAudio(ctx, c.opts.FFmpegBinary, videoOnly, audio, output)
		}
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.WarnWithContext(logger, "audio restore failed", "audio_merge_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "output will have no audio"),
		)
	}
	return fileutil.MoveFile(videoOnly, output)
}
