package remover

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wmclean/internal/config"
	"wmclean/internal/guard"
	"wmclean/internal/history"
	"wmclean/internal/media/ffprobe"
	"wmclean/internal/progress"
	"wmclean/internal/services"
)

type fakeBackend struct {
	calls int
	err   error
	body  string
}

func (f *fakeBackend) Remove(ctx context.Context, input, output string, report progress.Func) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	report.Report("working", 50)
	body := f.body
	if body == "" {
		body = "cleaned"
	}
	if err := os.WriteFile(output, []byte(body), 0o644); err != nil {
		return err
	}
	report.Report("done", 100)
	return nil
}

type fakeEnhancer struct {
	err error
}

func (f *fakeEnhancer) Enhance(ctx context.Context, input, output string, report progress.Func) error {
	if f.err != nil {
		return f.err
	}
	report.Report("enhancing", 50)
	return os.WriteFile(output, []byte("enhanced-and-bigger"), 0o644)
}

type memRecorder struct {
	mu      sync.Mutex
	records []history.Record
}

func (m *memRecorder) Record(_ context.Context, rec history.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.OutputDir = filepath.Join(t.TempDir(), "out")
	cfg.Paths.TempDir = t.TempDir()
	require.NoError(t, os.MkdirAll(cfg.Paths.OutputDir, 0o755))
	return &cfg
}

func writeVideo(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	return path
}

func noProbe(context.Context, string, string) (ffprobe.Result, error) {
	return ffprobe.Result{}, errors.New("ffprobe not installed")
}

func TestOutputPathKeepsStem(t *testing.T) {
	tests := map[string]string{
		"/in/My Clip:1.MOV":   filepath.Join("/out", "My Clip:1_cleaned.mp4"),
		"/in/café.mp4":        filepath.Join("/out", "café_cleaned.mp4"),
		"/in/cafe.mp4":        filepath.Join("/out", "cafe_cleaned.mp4"),
		"/in/がぎ.mp4":          filepath.Join("/out", "がぎ_cleaned.mp4"),
		"/in/a__b.mp4":        filepath.Join("/out", "a__b_cleaned.mp4"),
		"/in/_clip_.mp4":      filepath.Join("/out", "_clip__cleaned.mp4"),
		"/in/back\\slash.mp4": filepath.Join("/out", "back_slash_cleaned.mp4"),
	}
	for in, want := range tests {
		assert.Equal(t, want, OutputPath(in, "/out"), in)
	}
	assert.Equal(t, filepath.Join("/in", "clip_cleaned.mp4"), OutputPath("/in/clip.mp4", ""))
	assert.Equal(t, filepath.Join("/out", "video_cleaned.mp4"), OutputPath("/in/.mp4", "/out"))
}

func TestPlanOutputsSuffixesCollisions(t *testing.T) {
	plan := PlanOutputs([]string{"/in/clip.mov", "/in/clip.mp4", "/in/clip.webm", "/in/other.mp4"}, "/out")
	assert.Equal(t, filepath.Join("/out", "clip_cleaned.mp4"), plan["/in/clip.mov"])
	assert.Equal(t, filepath.Join("/out", "clip_cleaned_2.mp4"), plan["/in/clip.mp4"])
	assert.Equal(t, filepath.Join("/out", "clip_cleaned_3.mp4"), plan["/in/clip.webm"])
	assert.Equal(t, filepath.Join("/out", "other_cleaned.mp4"), plan["/in/other.mp4"])
}

func TestIsOutputName(t *testing.T) {
	tests := map[string]bool{
		"/x/clip_cleaned.mp4":          true,
		"/x/clip_cleaned_2.mp4":        true,
		"/x/clip_cleaned.enhanced.mp4": true,
		"/x/clip.mp4":                  false,
		"/x/clip_cleaned_take.mp4":     false,
		"/x/clip_cleaned_.mp4":         false,
		"/x/cleaned.mp4":               false,
	}
	for in, want := range tests {
		assert.Equal(t, want, IsOutputName(in), in)
	}
}

func TestNewJobUsesConfiguredDefaults(t *testing.T) {
	cfg := testConfig(t)
	svc := New(cfg, nil, WithRemote(&fakeBackend{}), WithEnhancer(&fakeEnhancer{}))
	job := svc.NewJob("/in/a.mp4", "", "", false)
	assert.Equal(t, config.MethodRemote, job.Method)
	assert.Equal(t, filepath.Join(cfg.Paths.OutputDir, "a_cleaned.mp4"), job.Output)
	assert.Len(t, job.ID, 36)
	assert.Len(t, job.ShortID(), 8)
}

func TestRemoveRemoteSuccess(t *testing.T) {
	cfg := testConfig(t)
	backend := &fakeBackend{}
	rec := &memRecorder{}
	svc := New(cfg, nil, WithRemote(backend), WithEnhancer(&fakeEnhancer{}), WithRecorder(rec), WithProbe(noProbe))

	input := writeVideo(t, t.TempDir(), "clip.mp4", 128)
	var events []progress.Event
	result, err := svc.Remove(context.Background(), svc.NewJob(input, "", config.MethodRemote, false), func(e progress.Event) { events = append(events, e) })
	require.NoError(t, err)

	assert.Equal(t, 1, backend.calls)
	assert.Equal(t, filepath.Join(cfg.Paths.OutputDir, "clip_cleaned.mp4"), result.Output)
	assert.Equal(t, int64(len("cleaned")), result.Bytes)
	assert.False(t, result.Enhanced)
	require.NotEmpty(t, events)
	assert.Equal(t, 100.0, events[len(events)-1].Percent)

	require.Len(t, rec.records, 1)
	assert.Equal(t, history.StatusSucceeded, rec.records[0].Status)
	assert.Equal(t, result.Job.ID, rec.records[0].JobID)
}

func TestRemoveRejectsInvalidInputWithoutProcessing(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	tests := []struct {
		name   string
		input  string
		reason string
	}{
		{"empty", writeVideo(t, dir, "empty.mp4", 0), "video file is empty"},
		{"extension", writeVideo(t, dir, "notes.txt", 10), "unsupported format"},
		{"missing", filepath.Join(dir, "missing.mp4"), "file not found"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			backend := &fakeBackend{}
			rec := &memRecorder{}
			svc := New(cfg, nil, WithRemote(backend), WithEnhancer(&fakeEnhancer{}), WithRecorder(rec), WithProbe(noProbe))
			_, err := svc.Remove(context.Background(), svc.NewJob(tc.input, "", "", false), nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, services.ErrValidation)
			assert.Contains(t, err.Error(), tc.reason)
			assert.Zero(t, backend.calls)
			require.Len(t, rec.records, 1)
			assert.Equal(t, history.StatusFailed, rec.records[0].Status)
			assert.Equal(t, services.CategoryValidation, rec.records[0].ErrorCategory)
		})
	}
}

func TestRemoveRejectsPathOutsideRoot(t *testing.T) {
	cfg := testConfig(t)
	cfg.Paths.AllowedRoot = t.TempDir()
	backend := &fakeBackend{}
	svc := New(cfg, nil, WithRemote(backend), WithEnhancer(&fakeEnhancer{}), WithProbe(noProbe))

	outside := writeVideo(t, t.TempDir(), "clip.mp4", 10)
	_, err := svc.Remove(context.Background(), svc.NewJob(outside, cfg.Paths.AllowedRoot, "", false), nil)
	assert.ErrorIs(t, err, guard.ErrOutsideRoot)
	assert.Zero(t, backend.calls)
}

func TestRemoveWithEnhancement(t *testing.T) {
	cfg := testConfig(t)
	svc := New(cfg, nil, WithRemote(&fakeBackend{}), WithEnhancer(&fakeEnhancer{}), WithProbe(noProbe))
	input := writeVideo(t, t.TempDir(), "clip.mp4", 10)

	var events []progress.Event
	result, err := svc.Remove(context.Background(), svc.NewJob(input, "", "", true), func(e progress.Event) { events = append(events, e) })
	require.NoError(t, err)
	assert.True(t, result.Enhanced)
	data, err := os.ReadFile(result.Output)
	require.NoError(t, err)
	assert.Equal(t, "enhanced-and-bigger", string(data))

	prev := 0.0
	for _, e := range events {
		assert.GreaterOrEqual(t, e.Percent, prev)
		prev = e.Percent
	}
	assert.Equal(t, []float64{35, 70, 85, 100}, percents(events))
}

func percents(events []progress.Event) []float64 {
	out := make([]float64, 0, len(events))
	for _, e := range events {
		out = append(out, e.Percent)
	}
	return out
}

func TestRemoveKeepsCleanedOutputWhenEnhancementFails(t *testing.T) {
	cfg := testConfig(t)
	svc := New(cfg, nil, WithRemote(&fakeBackend{}), WithEnhancer(&fakeEnhancer{err: errors.New("upscaler crashed")}), WithProbe(noProbe))
	input := writeVideo(t, t.TempDir(), "clip.mp4", 10)

	result, err := svc.Remove(context.Background(), svc.NewJob(input, "", "", true), nil)
	require.NoError(t, err)
	assert.False(t, result.Enhanced)
	data, err := os.ReadFile(result.Output)
	require.NoError(t, err)
	assert.Equal(t, "cleaned", string(data))
}

func TestRemoveRecordsCancellation(t *testing.T) {
	cfg := testConfig(t)
	rec := &memRecorder{}
	svc := New(cfg, nil, WithRemote(&fakeBackend{err: context.Canceled}), WithEnhancer(&fakeEnhancer{}), WithRecorder(rec), WithProbe(noProbe))
	input := writeVideo(t, t.TempDir(), "clip.mp4", 10)

	_, err := svc.Remove(context.Background(), svc.NewJob(input, "", "", false), nil)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, rec.records, 1)
	assert.Equal(t, history.StatusCanceled, rec.records[0].Status)
}

func TestRemoveEnforcesDurationLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.Processing.MaxDurationSeconds = 60
	backend := &fakeBackend{}
	probe := func(context.Context, string, string) (ffprobe.Result, error) {
		return ffprobe.Result{Format: ffprobe.Format{Duration: "601.5"}}, nil
	}
	svc := New(cfg, nil, WithRemote(backend), WithEnhancer(&fakeEnhancer{}), WithProbe(probe))
	input := writeVideo(t, t.TempDir(), "long.mp4", 10)

	_, err := svc.Remove(context.Background(), svc.NewJob(input, "", "", false), nil)
	assert.ErrorIs(t, err, services.ErrValidation)
	assert.Contains(t, err.Error(), "limit is 60s")
	assert.Zero(t, backend.calls)
}

func TestRemoveUsesLocalBackendAndRejectsUnknownMethod(t *testing.T) {
	cfg := testConfig(t)
	remote := &fakeBackend{}
	localBackend := &fakeBackend{body: "local"}
	svc := New(cfg, nil, WithRemote(remote), WithLocal(localBackend), WithEnhancer(&fakeEnhancer{}), WithProbe(noProbe))
	input := writeVideo(t, t.TempDir(), "clip.mp4", 10)

	_, err := svc.Remove(context.Background(), svc.NewJob(input, "", config.MethodLocalGPU, false), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, localBackend.calls)
	assert.Zero(t, remote.calls)

	_, err = svc.Remove(context.Background(), svc.NewJob(input, "", "carrier-pigeon", false), nil)
	assert.ErrorIs(t, err, services.ErrValidation)
}
