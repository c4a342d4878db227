package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"wmclean/internal/config"
	"wmclean/internal/logging"
	"wmclean/internal/services"
)

func TestConsoleLoggerOmitsSourceForInfo(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Console: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message without caller", logging.String("input", "clip.mp4"))

	out := buf.String()
	if strings.Contains(out, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", out)
	}
	if !strings.Contains(out, "INFO") || !strings.Contains(out, "message without caller") {
		t.Fatalf("unexpected header: %q", out)
	}
	if !strings.Contains(out, "    - input: clip.mp4") {
		t.Fatalf("expected bulleted field, got %q", out)
	}
}

func TestConsoleLoggerIncludesSourceForDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", Console: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("message with caller")
	if !strings.Contains(buf.String(), "logger_test.go:") {
		t.Fatalf("expected caller information in debug logs, got %q", buf.String())
	}
}

func TestConsoleSubjectFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Console: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithJobID(context.Background(), "0123456789abcdef")
	ctx = services.WithStage(ctx, "upload")
	logging.WithContext(ctx, logging.NewComponentLogger(logger, "remote")).Info("uploading")

	out := buf.String()
	if !strings.Contains(out, "[remote] Job 01234567 (upload) – uploading") {
		t.Fatalf("unexpected subject rendering: %q", out)
	}
}

func TestConsoleHidesExtraInfoFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Console: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("many",
		"a", 1, "b", 2, "c", 3, "d", 4, "e", 5, "f", 6, "g", 7, "h", 8,
		logging.String(logging.FieldEventType, "noise"),
	)
	out := buf.String()
	if !strings.Contains(out, "+ 2 more fields hidden") {
		t.Fatalf("expected hidden field summary, got %q", out)
	}
	if strings.Contains(out, "event_type") {
		t.Fatalf("expected event_type to be dropped at info, got %q", out)
	}
}

func TestConsoleLevelFloorKeepsFileVerbose(t *testing.T) {
	var buf bytes.Buffer
	logPath := filepath.Join(t.TempDir(), "run.log")
	logger, err := logging.New(logging.Options{
		Format:       "console",
		Level:        "info",
		Console:      &buf,
		ConsoleLevel: "warn",
		FilePath:     logPath,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("quiet on console")
	logger.Warn("loud everywhere")

	if strings.Contains(buf.String(), "quiet on console") {
		t.Fatalf("info should be suppressed on console, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "loud everywhere") {
		t.Fatalf("warn should reach console, got %q", buf.String())
	}
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two JSON lines in file, got %d: %q", len(lines), data)
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("file line is not JSON: %v", err)
	}
	if record["msg"] != "quiet on console" || record["level"] != "info" {
		t.Fatalf("unexpected record %+v", record)
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key, got %+v", record)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewFromConfigWritesDailyFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Logging.Level = "debug"

	logger, path, err := logging.NewFromConfig(&cfg, nil, "error")
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	want := filepath.Join(cfg.Paths.LogDir, logging.DailyLogName(time.Now()))
	if path != want {
		t.Fatalf("unexpected log path %q want %q", path, want)
	}
	logger.Debug("to file")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Fatalf("expected debug line in file, got %q", data)
	}
}

func TestDailyLogName(t *testing.T) {
	ts := time.Date(2026, 3, 9, 23, 59, 0, 0, time.Local)
	if got := logging.DailyLogName(ts); got != "wmclean-20260309.log" {
		t.Fatalf("unexpected name %q", got)
	}
}

func TestSizeAttrIsHumanReadable(t *testing.T) {
	attr := logging.Size("size", 5*1024*1024)
	if attr.Value.String() != "5.0 MiB" {
		t.Fatalf("unexpected size rendering %q", attr.Value.String())
	}
}
