package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"wmclean/internal/config"
)

// LogFilePrefix prefixes every daily log file name.
const LogFilePrefix = "wmclean-"

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string
	// Console receives human output; nil means stderr.
	Console io.Writer
	// ConsoleLevel raises the console floor above Level when set, e.g. "warn"
	// while a progress bar is drawing. The file sink keeps Level.
	ConsoleLevel string
	// FilePath adds a file sink when non-empty.
	FilePath    string
	Development bool
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	level := parseLevel(opts.Level)
	addSource := opts.Development || level <= slog.LevelDebug

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "console"
	}
	if format != "console" && format != "json" {
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	var consoleHandler slog.Handler
	if format == "json" {
		consoleHandler = newJSONHandler(console, level, addSource)
	} else {
		consoleHandler = newPrettyHandler(console, level, addSource)
	}
	if strings.TrimSpace(opts.ConsoleLevel) != "" {
		if floor := parseLevel(opts.ConsoleLevel); floor > level {
			consoleHandler = withMinLevel(consoleHandler, floor)
		}
	}

	handlers := []slog.Handler{consoleHandler}
	if path := strings.TrimSpace(opts.FilePath); path != "" {
		file, err := openLogFile(path)
		if err != nil {
			return nil, err
		}
		// The file always gets JSON so it can be parsed later.
		handlers = append(handlers, newJSONHandler(file, level, addSource))
	}
	return slog.New(newTeeHandler(handlers...)), nil
}

// NewFromConfig creates a logger writing to the console and to the daily log
// file under cfg.Paths.LogDir. console defaults to stderr and consoleLevel may
// be empty. It returns the log file path (empty when no log dir is configured).
func NewFromConfig(cfg *config.Config, console io.Writer, consoleLevel string) (*slog.Logger, string, error) {
	if cfg == nil {
		logger, err := New(Options{Level: "info", Format: "console", Console: console, ConsoleLevel: consoleLevel})
		return logger, "", err
	}
	var logPath string
	if dir := strings.TrimSpace(cfg.Paths.LogDir); dir != "" {
		logPath = filepath.Join(dir, DailyLogName(time.Now()))
	}
	logger, err := New(Options{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Console:      console,
		ConsoleLevel: consoleLevel,
		FilePath:     logPath,
	})
	if err != nil {
		return nil, "", err
	}
	return logger, logPath, nil
}

// DailyLogName returns the log file name for the day containing t.
func DailyLogName(t time.Time) string {
	return LogFilePrefix + t.Format("20060102") + ".log"
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openLogFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure log directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, nil
}
