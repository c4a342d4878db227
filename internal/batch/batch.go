// Package batch processes every video in a folder.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"wmclean/internal/guard"
	"wmclean/internal/logging"
	"wmclean/internal/progress"
	"wmclean/internal/remover"
	"wmclean/internal/services"
)

// Processor handles a single job.
type Processor interface {
	Remove(ctx context.Context, job remover.Job, report progress.Func) (remover.Result, error)
}

// FileOutcome is the result for one input.
type FileOutcome struct {
	Name    string
	Input   string
	Output  string
	Success bool
	Bytes   int64
	Err     error
}

// Result aggregates a batch run. Success+Failed counts attempted files; it is
// below Total when the run was stopped.
type Result struct {
	Total   int
	Success int
	Failed  int
	Skipped int
	Stopped bool
	Files   []FileOutcome
}

// Attempted returns how many files were started.
func (r Result) Attempted() int {
	return r.Success + r.Failed
}

// Options configures a run.
type Options struct {
	// Root, when set, confines the input directory.
	Root       string
	OutDir     string
	Method     string
	Enhance    bool
	Extensions []string
	// SkipExisting leaves out inputs whose output file already exists.
	SkipExisting bool
	// Done, when set, reports inputs processed by an earlier run. They are
	// skipped like existing outputs.
	Done func(ctx context.Context, input string) bool
	// Exclude, when set, drops inputs before they are counted.
	Exclude func(input string) bool
}

// Driver runs batches sequentially on the calling goroutine.
type Driver struct {
	proc   Processor
	logger *slog.Logger
}

// NewDriver wraps proc.
func NewDriver(proc Processor, logger *slog.Logger) *Driver {
	return &Driver{proc: proc, logger: logging.NewComponentLogger(logger, "batch")}
}

// ListVideos returns regular files directly inside dir whose lowercased
// extension is in exts, sorted by name.
func ListVideos(dir string, exts []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "batch", "list", dir, err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if !slices.Contains(exts, strings.ToLower(filepath.Ext(entry.Name()))) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	slices.Sort(files)
	return files, nil
}

// Run processes every supported video in dir. Only an unusable directory is
// returned as an error; per-file failures are counted in the result.
func (d *Driver) Run(ctx context.Context, dir string, opts Options, report progress.Func) (Result, error) {
	var result Result
	resolved, err := guard.ValidateDir(opts.Root, dir, true, false)
	if err != nil {
		return result, err
	}
	files, err := ListVideos(resolved, opts.Extensions)
	if err != nil {
		return result, err
	}
	if opts.Exclude != nil {
		files = slices.DeleteFunc(files, opts.Exclude)
	}
	outputs := remover.PlanOutputs(files, opts.OutDir)
	if opts.SkipExisting || opts.Done != nil {
		files = slices.DeleteFunc(files, func(input string) bool {
			if alreadyDone(ctx, input, outputs[input], opts) {
				result.Skipped++
				return true
			}
			return false
		})
	}
	result.Total = len(files)
	logger := logging.WithContext(ctx, d.logger)
	if result.Total == 0 {
		logger.Info("no videos to process", logging.String("dir", resolved), logging.Int("skipped", result.Skipped))
		return result, nil
	}
	logger.Info("batch started",
		logging.String("dir", resolved),
		logging.Int("files", result.Total),
		logging.String("method", opts.Method),
	)

	scaler := progress.NewBatchScaler(result.Total, report)
	for i, input := range files {
		if ctx.Err() != nil {
			break
		}
		name := filepath.Base(input)
		job := remover.NewJob(input, opts.OutDir, opts.Method, opts.Enhance)
		job.Output = outputs[input]
		scaler.ForFile(i, name)(progress.Event{Message: fmt.Sprintf("Starting %d/%d", i+1, result.Total)})

		res, err := d.proc.Remove(ctx, job, scaler.ForFile(i, name))
		outcome := FileOutcome{Name: name, Input: input, Output: res.Output, Bytes: res.Bytes, Err: err}
		if err != nil {
			result.Failed++
			if !errors.Is(err, context.Canceled) {
				logging.WarnWithContext(logger, "file failed", "batch_file_failed",
					logging.String("file", name),
					logging.String("category", services.Category(err)),
					logging.Error(err),
					logging.String(logging.FieldImpact, "continuing with the next file"),
				)
			}
		} else {
			outcome.Success = true
			result.Success++
		}
		result.Files = append(result.Files, outcome)
		report.Report(fmt.Sprintf("Processed %d/%d", i+1, result.Total), scaler.Overall(i+1, 0))
	}

	if ctx.Err() != nil {
		result.Stopped = true
		logger.Info("batch stopped", logging.Int("attempted", result.Attempted()), logging.Int("total", result.Total))
	}
	logger.Info("batch finished",
		logging.Int("total", result.Total),
		logging.Int("success", result.Success),
		logging.Int("failed", result.Failed),
		logging.Bool("stopped", result.Stopped),
	)
	return result, nil
}

func alreadyDone(ctx context.Context, input, output string, opts Options) bool {
	if opts.SkipExisting {
		if _, err := os.Stat(output); err == nil {
			return true
		}
	}
	return opts.Done != nil && opts.Done(ctx, input)
}
