package enhance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

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

// Options configures a Pipeline.
type Options struct {
	Scale         int
	FFmpegBinary  string
	FFprobeBinary string
	TempDir       string
	VideoCodec    string
}

// Pipeline upscales whole videos and optionally restores faces in every
// upscaled frame.
type Pipeline struct {
	opts     Options
	upscaler Upscaler
	restorer Restorer
	logger   *slog.Logger

	probe      func(ctx context.Context, binary, path string) (ffprobe.Result, error)
	openSource func(ctx context.Context, input string, width, height int) (frame.Source, error)
	openSink   func(ctx context.Context, output string, width, height int, fps float64) (frame.Sink, error)
}

// NewPipeline constructs a pipeline around upscaler.
func NewPipeline(opts Options, upscaler Upscaler, logger *slog.Logger) *Pipeline {
	if opts.Scale < 1 {
		opts.Scale = 1
	}
	p := &Pipeline{
		opts:     opts,
		upscaler: upscaler,
		logger:   logging.NewComponentLogger(logger, "enhance"),
		probe:    ffprobe.Inspect,
	}
	p.openSource = func(ctx context.Context, input string, width, height int) (frame.Source, error) {
		return ffmpeg.NewDecoder(ctx, p.opts.FFmpegBinary, input, width, height)
	}
	p.openSink = func(ctx context.Context, output string, width, height int, fps float64) (frame.Sink, error) {
		return ffmpeg.NewEncoder(ctx, p.opts.FFmpegBinary, output, ffmpeg.EncoderOptions{
			Width: width, Height: height, FPS: fps, Codec: p.opts.VideoCodec,
		})
	}
	return p
}

// WithRestorer adds a face-restoration stage after upscaling.
func (p *Pipeline) WithRestorer(r Restorer) *Pipeline {
	p.restorer = r
	return p
}

// NewPipelineFromConfig selects the configured upscaler and, when
// enhance.restore_faces is set, the face restorer.
func NewPipelineFromConfig(cfg *config.Config, logger *slog.Logger) *Pipeline {
	resizer := ResizeUpscaler{Interpolation: cfg.Enhance.Interpolation}
	var upscaler Upscaler = resizer
	if cfg.Enhance.Upscaler == config.UpscalerCommand {
		cmd := &CommandUpscaler{
			Binary:   cfg.Enhance.UpscalerCommand,
			Model:    cfg.Enhance.UpscalerModel,
			WorkDir:  cfg.Paths.TempDir,
			Fallback: resizer,
			Logger:   logging.NewComponentLogger(logger, "enhance"),
		}
		if weights := ModelAsset(cfg).Dest; fileExists(weights) {
			cmd.ModelDir = filepath.Dir(weights)
		}
		upscaler = cmd
	}
	p := NewPipeline(Options{
		Scale:         cfg.Enhance.Scale,
		FFmpegBinary:  cfg.FFmpegBinary(),
		FFprobeBinary: cfg.FFprobeBinary(),
		TempDir:       cfg.Paths.TempDir,
		VideoCodec:    cfg.Local.VideoCodec,
	}, upscaler, logger)
	if cfg.Enhance.RestoreFaces {
		p.WithRestorer(&CommandRestorer{
			Binary:   cfg.Enhance.RestorerCommand,
			Fidelity: cfg.Enhance.Fidelity,
			WorkDir:  cfg.Paths.TempDir,
			Logger:   logging.NewComponentLogger(logger, "enhance"),
		})
	}
	return p
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Enhance upscales input into output. Cancellation is checked per frame.
func (p *Pipeline) Enhance(ctx context.Context, input, output string, report progress.Func) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger := logging.WithContext(ctx, p.logger)

	probe, err := p.probe(ctx, p.opts.FFprobeBinary, input)
	if err != nil {
		return services.Wrap(services.ErrProcessing, "enhance", "probe", input, err)
	}
	stream, ok := probe.VideoStream()
	if !ok || stream.Width <= 0 || stream.Height <= 0 {
		return services.Wrap(services.ErrValidation, "enhance", "probe", "no video stream in "+input, nil)
	}
	total := probe.FrameCount()
	width, height := stream.DisplaySize()
	outW, outH := width*p.opts.Scale, height*p.opts.Scale
	logger.Info("enhancement started",
		logging.String("input", input),
		logging.Int("scale", p.opts.Scale),
		logging.String("from", fmt.Sprintf("%dx%d", width, height)),
		logging.String("to", fmt.Sprintf("%dx%d", outW, outH)),
		logging.Int("frames", total),
		logging.Bool("restore_faces", p.restorer != nil),
	)

	base := p.opts.TempDir
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return services.Wrap(services.ErrProcessing, "enhance", "temp dir", base, err)
	}
	workDir, err := os.MkdirTemp(base, guard.TempPrefix("enhance", input))
	if err != nil {
		return services.Wrap(services.ErrProcessing, "enhance", "temp dir", base, err)
	}
	defer os.RemoveAll(workDir)
	videoOnly := filepath.Join(workDir, "video.mp4")

	frames, err := p.runFrames(ctx, input, videoOnly, stream, outW, outH, total, report)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrProcessing, "enhance", "frames", input, err)
	}
	if cmd, ok := p.upscaler.(*CommandUpscaler); ok && cmd.Fallbacks() > 0 {
		logger.Info("frames upscaled with fallback", logging.Int("fallback_frames", cmd.Fallbacks()), logging.Int("frames", frames))
	}
	if r, ok := p.restorer.(*CommandRestorer); ok && r.Failures() > 0 {
		logger.Info("frames kept without face restoration", logging.Int("unrestored_frames", r.Failures()), logging.Int("frames", frames))
	}

	report.Report("Restoring audio", 95)
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return services.Wrap(services.ErrProcessing, "enhance", "output dir", output, err)
	}
	if probe.HasAudio() {
		audio := filepath.Join(workDir, "audio.m4a")
		err = ffmpeg.ExtractAudio(ctx, p.opts.FFmpegBinary, input, audio)
		if err == nil {
			err = ffmpeg.MergeAudio(ctx, p.opts.FFmpegBinary, videoOnly, audio, output)
		}
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			logging.WarnWithContext(logger, "audio restore failed", "audio_merge_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "enhanced output will have no audio"),
			)
		}
	}
	if !probe.HasAudio() || err != nil {
		if err := fileutil.MoveFile(videoOnly, output); err != nil {
			return services.Wrap(services.ErrProcessing, "enhance", "finalize", output, err)
		}
	}
	report.Report("Enhancement completed", 100)
	logger.Info("enhancement finished", logging.String("output", output), logging.Int("frames", frames))
	return nil
}

func (p *Pipeline) runFrames(ctx context.Context, input, output string, stream ffprobe.Stream, outW, outH, total int, report progress.Func) (int, error) {
	width, height := stream.DisplaySize()
	src, err := p.openSource(ctx, input, width, height)
	if err != nil {
		return 0, err
	}
	sink, err := p.openSink(ctx, output, outW, outH, stream.FPS())
	if err != nil {
		_ = src.Close()
		return 0, err
	}

	count, loopErr := p.loop(ctx, src, sink, total, report)
	srcErr := src.Close()
	sinkErr := sink.Close()
	if loopErr != nil {
		return count, loopErr
	}
	if srcErr != nil {
		return count, srcErr
	}
	return count, sinkErr
}

func (p *Pipeline) loop(ctx context.Context, src frame.Source, sink frame.Sink, total int, report progress.Func) (int, error) {
	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		img, err := src.Next()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("read frame %d: %w", count+1, err)
		}
		scaled, err := p.upscaler.Upscale(ctx, img, p.opts.Scale)
		if err != nil {
			return count, fmt.Errorf("upscale frame %d: %w", count+1, err)
		}
		if p.restorer != nil {
			restored, err := p.restorer.Restore(ctx, scaled)
			if err != nil {
				return count, fmt.Errorf("restore frame %d: %w", count+1, err)
			}
			scaled = restored
		}
		if err := sink.Write(scaled); err != nil {
			return count, fmt.Errorf("write frame %d: %w", count+1, err)
		}
		count++
		if total > 0 {
			report.Report(fmt.Sprintf("Enhancing frame %d/%d", count, total), float64(count)/float64(total)*90)
		}
	}
}
