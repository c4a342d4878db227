package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"wmclean/internal/config"
	"wmclean/internal/history"
	"wmclean/internal/logging"
	"wmclean/internal/notifications"
	"wmclean/internal/preflight"
	"wmclean/internal/remover"
	"wmclean/internal/runlock"
	"wmclean/internal/services"
)

type commandContext struct {
	configFlag   *string
	rootFlag     *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag, rootFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		rootFlag:     rootFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.rootFlag != nil && strings.TrimSpace(*c.rootFlag) != "" {
			root, err := config.ExpandPath(*c.rootFlag)
			if err != nil {
				c.configErr = fmt.Errorf("resolve --root: %w", err)
				return
			}
			cfg.Paths.AllowedRoot = root
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Logging.Level = strings.ToLower(strings.TrimSpace(*c.logLevelFlag))
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// loggerFor builds the process logger on first use. While a progress bar owns
// the terminal the console only shows warnings; the daily file keeps
// everything.
func (c *commandContext) loggerFor(cmd *cobra.Command) (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		consoleLevel := ""
		if isTerminal(cmd.ErrOrStderr()) {
			consoleLevel = "warn"
		}
		logger, logPath, err := logging.NewFromConfig(cfg, cmd.ErrOrStderr(), consoleLevel)
		if err != nil {
			c.loggerErr = fmt.Errorf("init logging: %w", err)
			return
		}
		if removed := logging.PruneLogs(logger, cfg.Paths.LogDir, cfg.Logging.RetentionDays, logPath); removed > 0 {
			logger.Debug("pruned old log files", logging.Int("removed", removed))
		}
		c.logger = logger
	})
	return c.logger, c.loggerErr
}

// openHistory returns nil when history is disabled.
func (c *commandContext) openHistory(cfg *config.Config) (*history.Store, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return store, nil
}

// serviceEnv is what processing commands run with.
type serviceEnv struct {
	cfg     *config.Config
	logger  *slog.Logger
	svc     *remover.Service
	history *history.Store // nil when disabled or unavailable
	notify  notifications.Service
}

// deliver sends a notification. Failures are logged and never fail the command.
func (e *serviceEnv) deliver(send func(notifications.Service) error) {
	if err := send(e.notify); err != nil {
		logging.WarnWithContext(e.logger, "notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "job outcome unaffected"),
		)
	}
}

// checkReady fails when any preflight check for method fails.
func (e *serviceEnv) checkReady(ctx context.Context, method string) error {
	failed := preflight.Failed(preflight.RunAll(ctx, e.cfg, method))
	if len(failed) == 0 {
		return nil
	}
	parts := make([]string, 0, len(failed))
	for _, r := range failed {
		parts = append(parts, r.Name+": "+r.Detail)
	}
	return services.Wrap(services.ErrConfiguration, "preflight", "check", strings.Join(parts, "; "), nil)
}

// withService runs fn holding the run lock with a service wired to history.
func (c *commandContext) withService(cmd *cobra.Command, fn func(*serviceEnv) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := c.loggerFor(cmd)
	if err != nil {
		return err
	}
	return withRunLock(cfg, func() error {
		env := &serviceEnv{cfg: cfg, logger: logger, notify: notifications.NewService(cfg)}
		var opts []remover.Option
		store, err := c.openHistory(cfg)
		if err != nil {
			logging.WarnWithContext(logger, "history unavailable", "history_unavailable",
				logging.Error(err),
				logging.String(logging.FieldImpact, "job outcomes will not be recorded"),
			)
		} else if store != nil {
			defer store.Close()
			env.history = store
			opts = append(opts, remover.WithRecorder(store))
		}
		env.svc = remover.New(cfg, logger, opts...)
		return fn(env)
	})
}

func withRunLock(cfg *config.Config, fn func() error) error {
	lock, err := runlock.Acquire(cfg.LockPath())
	if err != nil {
		if errors.Is(err, runlock.ErrHeld) {
			return fmt.Errorf("%w; wait for it to finish or stop it first", err)
		}
		return err
	}
	defer lock.Release()
	return fn()
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
