package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"wmclean/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Every directory is created so path guards and preflight checks pass.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Replicate.APIToken = "r8_testtoken_0123456789"
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.TempDir = filepath.Join(base, "tmp")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.ModelsDir = filepath.Join(base, "models")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.FFmpeg.BundleDir = filepath.Join(base, "ffmpeg")
	cfgVal.Watch.InboxDir = filepath.Join(base, "inbox")

	for _, dir := range []string{
		cfgVal.Paths.OutputDir, cfgVal.Paths.TempDir, cfgVal.Paths.LogDir,
		cfgVal.Paths.ModelsDir, cfgVal.Paths.StateDir,
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithToken sets the prediction API token on the test config.
func WithToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Replicate.APIToken = token
	}
}

// WithMethod overrides the default removal method.
func WithMethod(method string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Processing.Method = method
	}
}

// WithAllowedRoot confines path guards to the test base directory.
func WithAllowedRoot() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.AllowedRoot = b.baseDir
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg and ffprobe are stubbed.
// The ffmpeg stub answers -version with a parseable banner.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\ncase \"$*\" in *-version*) echo \"ffmpeg version 6.1.1 Copyright (c) 2000-2023\" ;; esac\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
