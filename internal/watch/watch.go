// Package watch processes an inbox folder as videos arrive.
//
// A sweep runs at startup, after file events settle for the debounce
// interval, and on a cron schedule. Sweeps run one at a time on a single
// worker goroutine; triggers that arrive during a sweep collapse into one
// follow-up sweep.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"wmclean/internal/logging"
)

// SweepFunc processes whatever is currently in the inbox.
type SweepFunc func(ctx context.Context) error

// Options configures a Watcher.
type Options struct {
	Inbox      string
	Schedule   string
	Debounce   time.Duration
	Extensions []string
	// Ignore, when set, drops events for paths the sweep itself produces.
	Ignore func(path string) bool
}

// Watcher drives sweeps of an inbox directory.
type Watcher struct {
	opts    Options
	sweep   SweepFunc
	logger  *slog.Logger
	trigger chan string

	mu     sync.Mutex
	sweeps int
}

// New validates opts and returns a watcher.
func New(opts Options, sweep SweepFunc, logger *slog.Logger) (*Watcher, error) {
	if strings.TrimSpace(opts.Inbox) == "" {
		return nil, errors.New("watch: inbox directory is required")
	}
	if sweep == nil {
		return nil, errors.New("watch: sweep function is required")
	}
	if opts.Schedule != "" {
		if _, err := cron.ParseStandard(opts.Schedule); err != nil {
			return nil, fmt.Errorf("watch: invalid schedule %q: %w", opts.Schedule, err)
		}
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 2 * time.Second
	}
	return &Watcher{
		opts:    opts,
		sweep:   sweep,
		logger:  logging.NewComponentLogger(logger, "watch"),
		trigger: make(chan string, 1),
	}, nil
}

// Sweeps returns how many sweeps have completed.
func (w *Watcher) Sweeps() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sweeps
}

// Run blocks until ctx is done. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.opts.Inbox, 0o755); err != nil {
		return fmt.Errorf("watch: create inbox: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: create watcher: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(w.opts.Inbox); err != nil {
		return fmt.Errorf("watch: watch %s: %w", w.opts.Inbox, err)
	}

	var scheduler *cron.Cron
	if w.opts.Schedule != "" {
		scheduler = cron.New()
		if _, err := scheduler.AddFunc(w.opts.Schedule, func() { w.request("schedule") }); err != nil {
			return fmt.Errorf("watch: schedule: %w", err)
		}
		scheduler.Start()
		defer func() { <-scheduler.Stop().Done() }()
	}

	w.logger.Info("watching inbox",
		logging.String("inbox", w.opts.Inbox),
		logging.String("schedule", w.opts.Schedule),
		logging.Duration("debounce", w.opts.Debounce),
	)

	workerCtx, stopWorker := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.worker(workerCtx)
	}()
	defer func() {
		stopWorker()
		wg.Wait()
	}()

	w.request("startup")

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watch stopped")
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("inbox event", logging.String("path", event.Name), logging.String("op", event.Op.String()))
			if debounce == nil {
				debounce = time.AfterFunc(w.opts.Debounce, func() { w.request("files") })
			} else {
				debounce.Reset(w.opts.Debounce)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logging.WarnWithContext(w.logger, "inbox watcher error", "watch_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "scheduled sweeps continue"),
			)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return false
	}
	if w.opts.Ignore != nil && w.opts.Ignore(event.Name) {
		return false
	}
	if len(w.opts.Extensions) == 0 {
		return true
	}
	return slices.Contains(w.opts.Extensions, strings.ToLower(filepath.Ext(event.Name)))
}

// request queues a sweep unless one is already pending.
func (w *Watcher) request(reason string) {
	select {
	case w.trigger <- reason:
	default:
	}
}

func (w *Watcher) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case reason := <-w.trigger:
			w.logger.Info("inbox sweep started", logging.String("reason", reason))
			err := w.sweep(ctx)
			w.mu.Lock()
			w.sweeps++
			w.mu.Unlock()
			if err != nil && !errors.Is(err, context.Canceled) {
				logging.WarnWithContext(w.logger, "inbox sweep failed", "watch_sweep_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "files will be retried on the next sweep"),
				)
			}
		}
	}
}
