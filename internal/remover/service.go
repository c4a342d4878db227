package remover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"wmclean/internal/config"
	"wmclean/internal/enhance"
	"wmclean/internal/fileutil"
	"wmclean/internal/guard"
	"wmclean/internal/history"
	"wmclean/internal/local"
	"wmclean/internal/logging"
	"wmclean/internal/media/ffprobe"
	"wmclean/internal/progress"
	"wmclean/internal/remote"
	"wmclean/internal/services"
)

// Backend removes watermarks from input into output.
type Backend interface {
	Remove(ctx context.Context, input, output string, report progress.Func) error
}

// Enhancer upscales input into output.
type Enhancer interface {
	Enhance(ctx context.Context, input, output string, report progress.Func) error
}

// Recorder persists job outcomes.
type Recorder interface {
	Record(ctx context.Context, rec history.Record) error
}

// Result describes a finished job.
type Result struct {
	Job      Job
	Output   string
	Bytes    int64
	Enhanced bool
	Duration time.Duration
}

// Service processes single videos.
type Service struct {
	cfg      *config.Config
	logger   *slog.Logger
	remote   Backend
	enhancer Enhancer
	recorder Recorder
	probe    func(ctx context.Context, binary, path string) (ffprobe.Result, error)
	now      func() time.Time

	localOnce sync.Once
	local     Backend
	localErr  error
}

// Option customizes a Service.
type Option func(*Service)

// WithRemote replaces the remote backend.
func WithRemote(b Backend) Option { return func(s *Service) { s.remote = b } }

// WithLocal replaces the local backend.
func WithLocal(b Backend) Option {
	return func(s *Service) {
		s.local = b
		s.localOnce.Do(func() {})
	}
}

// WithEnhancer replaces the enhancement pipeline.
func WithEnhancer(e Enhancer) Option { return func(s *Service) { s.enhancer = e } }

// WithRecorder enables outcome recording.
func WithRecorder(r Recorder) Option { return func(s *Service) { s.recorder = r } }

// WithProbe replaces the ffprobe call used for the duration limit.
func WithProbe(fn func(ctx context.Context, binary, path string) (ffprobe.Result, error)) Option {
	return func(s *Service) { s.probe = fn }
}

// New builds a service from configuration. The local backend is constructed
// on first use so a misconfigured detector only affects local jobs.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "remover"),
		probe:  ffprobe.Inspect,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.remote == nil {
		s.remote = remote.NewClient(remote.ConfigFrom(cfg), remote.WithLogger(logger))
	}
	if s.enhancer == nil {
		s.enhancer = enhance.NewPipelineFromConfig(cfg, logger)
	}
	return s
}

func (s *Service) backend(method string) (Backend, error) {
	switch method {
	case config.MethodRemote:
		return s.remote, nil
	case config.MethodLocalGPU:
		s.localOnce.Do(func() {
			s.local, s.localErr = local.NewClientFromConfig(s.cfg, s.logger)
		})
		return s.local, s.localErr
	default:
		return nil, services.Wrap(services.ErrValidation, "remover", "select method", fmt.Sprintf("unknown method %q", method), nil)
	}
}

// NewJob builds a job with the configured output directory and method when
// outDir or method are empty.
func (s *Service) NewJob(input, outDir, method string, enhanceOutput bool) Job {
	if strings.TrimSpace(outDir) == "" {
		outDir = s.cfg.Paths.OutputDir
	}
	if strings.TrimSpace(method) == "" {
		method = s.cfg.Processing.Method
	}
	return NewJob(input, outDir, method, enhanceOutput)
}

// Remove runs one job. The returned error carries a services marker; a
// stopped job returns context.Canceled.
func (s *Service) Remove(ctx context.Context, job Job, report progress.Func) (Result, error) {
	if job.ID == "" {
		job.ID = NewJob(job.Input, "", job.Method, job.Enhance).ID
	}
	if job.Output == "" {
		job.Output = OutputPath(job.Input, s.cfg.Paths.OutputDir)
	}
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithStage(ctx, job.Method)
	logger := logging.WithContext(ctx, s.logger)

	started := s.now()
	result := Result{Job: job, Output: job.Output}
	err := s.run(ctx, logger, &result, report)
	result.Duration = s.now().Sub(started)

	s.record(ctx, logger, result, started, err)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("video job stopped", logging.String("input", job.Input))
			return result, err
		}
		logging.ErrorWithContext(logger, "video job failed", "job_failed",
			logging.String("input", job.Input),
			logging.String("category", services.Category(err)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, hintFor(err)),
		)
		return result, err
	}
	logger.Info("video job finished",
		logging.String("output", result.Output),
		logging.Size("size", result.Bytes),
		logging.Bool("enhanced", result.Enhanced),
		logging.Duration("elapsed", result.Duration.Round(time.Millisecond)),
	)
	return result, nil
}

func (s *Service) run(ctx context.Context, logger *slog.Logger, result *Result, report progress.Func) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	job := result.Job
	root := s.cfg.Paths.AllowedRoot
	exts := s.cfg.SupportedExtensions()

	input, err := guard.ValidateFile(root, job.Input, nil)
	if err != nil {
		return err
	}
	size, err := guard.VerifyVideo(input, exts)
	if err != nil {
		return err
	}
	outDir, err := guard.ValidateDir(root, filepath.Dir(job.Output), false, true)
	if err != nil {
		return err
	}
	output := filepath.Join(outDir, filepath.Base(job.Output))
	result.Output = output
	if err := s.checkDuration(ctx, logger, input); err != nil {
		return err
	}
	backend, err := s.backend(job.Method)
	if err != nil {
		return err
	}

	logger.Info("video job started",
		logging.String("input", input),
		logging.String("output", output),
		logging.String("method", job.Method),
		logging.Size("size", size),
		logging.Bool("enhance", job.Enhance),
	)

	span := 100.0
	if job.Enhance {
		span = 70
	}
	err = backend.Remove(ctx, input, output, func(evt progress.Event) {
		report.Report(evt.Message, evt.Percent*span/100)
	})
	if err != nil {
		return err
	}

	if job.Enhance {
		if err := s.enhanceOutput(ctx, logger, output, report); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.WarnWithContext(logger, "enhancement failed", "enhance_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "cleaned video kept at original resolution"),
			)
		} else {
			result.Enhanced = true
		}
	}

	info, err := os.Stat(output)
	if err != nil {
		return services.Wrap(services.ErrProcessing, "remover", "stat output", output, err)
	}
	result.Bytes = info.Size()
	report.Report("Completed", 100)
	return nil
}

func (s *Service) enhanceOutput(ctx context.Context, logger *slog.Logger, output string, report progress.Func) error {
	enhanced := strings.TrimSuffix(output, filepath.Ext(output)) + enhancingSuffix + filepath.Ext(output)
	logger.Info("enhancing output", logging.String("output", output))
	err := s.enhancer.Enhance(ctx, output, enhanced, func(evt progress.Event) {
		report.Report(evt.Message, 70+evt.Percent*0.3)
	})
	if err != nil {
		_ = os.Remove(enhanced)
		return err
	}
	return fileutil.MoveFile(enhanced, output)
}

// checkDuration enforces processing.max_duration_seconds when ffprobe can
// read the input. Probe failures are not fatal.
func (s *Service) checkDuration(ctx context.Context, logger *slog.Logger, input string) error {
	limit := s.cfg.Processing.MaxDurationSeconds
	if limit <= 0 || s.probe == nil {
		return nil
	}
	probe, err := s.probe(ctx, s.cfg.FFprobeBinary(), input)
	if err != nil {
		logger.Debug("duration check skipped", logging.Error(err))
		return nil
	}
	if d := probe.DurationSeconds(); d > float64(limit) {
		return services.Wrap(services.ErrValidation, "remover", "check duration",
			fmt.Sprintf("video is %.0fs long; the limit is %ds", d, limit), nil)
	}
	return nil
}

func (s *Service) record(ctx context.Context, logger *slog.Logger, result Result, started time.Time, jobErr error) {
	if s.recorder == nil {
		return
	}
	rec := history.Record{
		JobID:      result.Job.ID,
		Input:      result.Job.Input,
		Output:     result.Output,
		Method:     result.Job.Method,
		Enhanced:   result.Enhanced,
		Status:     history.StatusSucceeded,
		Bytes:      result.Bytes,
		StartedAt:  started,
		FinishedAt: started.Add(result.Duration),
	}
	switch {
	case errors.Is(jobErr, context.Canceled):
		rec.Status = history.StatusCanceled
		rec.ErrorCategory = services.CategoryCanceled
	case jobErr != nil:
		rec.Status = history.StatusFailed
		rec.ErrorCategory = services.Category(jobErr)
		rec.Error = jobErr.Error()
	}
	// Record even when the job was stopped.
	if err := s.recorder.Record(context.WithoutCancel(ctx), rec); err != nil {
		logging.WarnWithContext(logger, "history record failed", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "job outcome missing from history"),
		)
	}
}

func hintFor(err error) string {
	switch services.Category(err) {
	case services.CategoryValidation:
		return "check the input path, format, and configuration"
	case services.CategoryAPI:
		return "check the API token and network connectivity"
	default:
		return "check ffmpeg and the local detector/inpainter services"
	}
}
