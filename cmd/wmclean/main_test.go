package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"wmclean/internal/history"
	"wmclean/internal/runlock"
	"wmclean/internal/services"
	"wmclean/internal/testsupport"
)

func TestConfigInitAndShow(t *testing.T) {
	env := setupCLITestEnv(t)

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected refusal to overwrite existing config")
	}

	out, _, err = runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "[paths]")
	requireContains(t, out, env.cfg.Paths.OutputDir)
	if strings.Contains(out, env.cfg.Replicate.APIToken) {
		t.Fatalf("config show leaked the token: %s", out)
	}
}

func TestRootFlagConfinesInputs(t *testing.T) {
	env := setupCLITestEnv(t)

	outside := filepath.Join(t.TempDir(), "clip.mp4")
	testsupport.WriteVideo(t, outside, 64)

	_, _, err := runCLI(t, []string{"--root", env.baseDir, "remove", outside}, env.configPath)
	if err == nil {
		t.Fatal("expected path outside root to be rejected")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRemoveRejectsUnsupportedFile(t *testing.T) {
	env := setupCLITestEnv(t)

	input := filepath.Join(env.baseDir, "notes.txt")
	testsupport.WriteFile(t, input, 64)

	_, _, err := runCLI(t, []string{"remove", input}, env.configPath)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	entries, _ := os.ReadDir(env.cfg.Paths.OutputDir)
	if len(entries) != 0 {
		t.Fatalf("expected no outputs, found %d", len(entries))
	}
}

func TestRemoveFailsWhenAnotherRunHoldsLock(t *testing.T) {
	env := setupCLITestEnv(t)

	lock, err := runlock.Acquire(env.cfg.LockPath())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer lock.Release()

	input := filepath.Join(env.baseDir, "clip.mp4")
	testsupport.WriteVideo(t, input, 64)
	_, _, err = runCLI(t, []string{"remove", input}, env.configPath)
	if !errors.Is(err, runlock.ErrHeld) {
		t.Fatalf("expected lock error, got %v", err)
	}
}

func TestBatchEmptyDirectory(t *testing.T) {
	env := setupCLITestEnv(t)

	dir := filepath.Join(env.baseDir, "empty")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	out, _, err := runCLI(t, []string{"batch", dir}, env.configPath)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	requireContains(t, out, "No supported videos found")
}

func TestBatchMissingDirectory(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"batch", filepath.Join(env.baseDir, "missing")}, env.configPath)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestHistoryListAndClear(t *testing.T) {
	env := setupCLITestEnv(t)

	store := testsupport.MustOpenHistory(t, env.cfg)
	now := time.Now().UTC()
	records := []history.Record{
		{JobID: "job-1", Input: "/videos/first.mp4", Output: "/out/first_cleaned.mp4", Method: "remote", Status: history.StatusSucceeded, Bytes: 2048, StartedAt: now.Add(-time.Minute), FinishedAt: now.Add(-30 * time.Second)},
		{JobID: "job-2", Input: "/videos/second.mp4", Method: "local_gpu", Status: history.StatusFailed, ErrorCategory: "api", Error: "boom", StartedAt: now.Add(-20 * time.Second), FinishedAt: now},
	}
	for _, rec := range records {
		if err := store.Record(context.Background(), rec); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	out, _, err := runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "first.mp4")
	requireContains(t, out, "failed (api)")
	if strings.Index(out, "second.mp4") > strings.Index(out, "first.mp4") {
		t.Fatalf("expected newest first:\n%s", out)
	}

	out, _, err = runCLI(t, []string{"history", "--json", "--limit", "1"}, env.configPath)
	if err != nil {
		t.Fatalf("history --json: %v", err)
	}
	var items []historyJSON
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("decode json: %v\n%s", err, out)
	}
	if len(items) != 1 || items[0].JobID != "job-2" {
		t.Fatalf("unexpected items: %+v", items)
	}

	out, _, err = runCLI(t, []string{"history", "--clear"}, env.configPath)
	if err != nil {
		t.Fatalf("history --clear: %v", err)
	}
	requireContains(t, out, "Removed 2 history records")

	out, _, err = runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "No jobs recorded")
}

func TestHistoryDisabled(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.History.Enabled = false
	env.rewrite(t)

	out, _, err := runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "History is disabled")
}

func TestTokenCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer r8_testtoken_0123456789" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	env := setupCLITestEnv(t)
	env.cfg.Replicate.BaseURL = srv.URL
	env.rewrite(t)

	out, _, err := runCLI(t, []string{"token", "check"}, env.configPath)
	if err != nil {
		t.Fatalf("token check: %v", err)
	}
	requireContains(t, out, "Token OK")

	env.cfg.Replicate.APIToken = "r8_revoked_token_000"
	env.rewrite(t)
	if _, _, err := runCLI(t, []string{"token", "check"}, env.configPath); err == nil {
		t.Fatal("expected rejected token to fail")
	}
}

func TestStatusOffline(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedBinaries())

	out, _, err := runCLI(t, []string{"status", "--offline"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v\n%s", err, out)
	}
	requireContains(t, out, "== Dependencies ==")
	requireContains(t, out, "FFmpeg:")
	requireContains(t, out, "6.1.1")
	requireContains(t, out, "[WARN]")
	requireContains(t, out, "Replicate token:")
	requireContains(t, out, "idle")
}

func TestStatusReportsMissingToken(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedBinaries())
	env.cfg.Replicate.APIToken = ""
	env.rewrite(t)

	out, _, err := runCLI(t, []string{"status", "--offline"}, env.configPath)
	if err == nil {
		t.Fatal("expected status to fail without a token")
	}
	requireContains(t, out, "[ERROR] missing or too short")
}

func TestRemoveFailureSendsNotification(t *testing.T) {
	var titles []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		titles = append(titles, r.Header.Get("Title"))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	env := setupCLITestEnv(t)
	env.cfg.Notifications.NtfyTopic = srv.URL + "/wmclean"
	env.rewrite(t)

	input := filepath.Join(env.baseDir, "empty.mp4")
	if err := os.WriteFile(input, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := runCLI(t, []string{"remove", input}, env.configPath); err == nil {
		t.Fatal("expected zero-byte video to be rejected")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(titles) != 1 || titles[0] != "wmclean - Error" {
		t.Fatalf("unexpected notifications: %v", titles)
	}
}

func TestNotifyTestRequiresTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"notify", "test"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "ntfy_topic") {
		t.Fatalf("expected missing topic error, got %v", err)
	}
}

func TestLogsFiltersByJob(t *testing.T) {
	env := setupCLITestEnv(t)

	path := filepath.Join(env.cfg.Paths.LogDir, "wmclean-20260101.log")
	if err := os.WriteFile(filepath.Join(env.cfg.Paths.LogDir, "wmclean-20251231.log"), []byte("{\"job_id\":\"bbbb0000\"}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	content := `{"msg":"video job started","job_id":"aaaa1111"}
{"msg":"video job started","job_id":"bbbb2222"}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := runCLI(t, []string{"logs", "--job", "bbbb"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "bbbb2222")
	if strings.Contains(out, "aaaa1111") || strings.Contains(out, "bbbb0000") {
		t.Fatalf("expected job filter to drop other jobs:\n%s", out)
	}
}

func TestRemoveFailsPreflightWithoutToken(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Replicate.APIToken = ""
	env.rewrite(t)

	input := filepath.Join(env.baseDir, "clip.mp4")
	testsupport.WriteVideo(t, input, 64)
	_, _, err := runCLI(t, []string{"remove", input}, env.configPath)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	requireContains(t, err.Error(), "Replicate token")
}

func TestWatchRejectsInboxAsOutput(t *testing.T) {
	env := setupCLITestEnv(t)
	inbox := env.cfg.Paths.OutputDir

	_, _, err := runCLI(t, []string{"watch", "--inbox", inbox, "--out", inbox + string(filepath.Separator)}, env.configPath)
	if err == nil {
		t.Fatal("expected watch to refuse writing outputs into its inbox")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	requireContains(t, err.Error(), "must differ from the inbox")
}

func TestModelsFetchDownloadsDetectorAndUpscaler(t *testing.T) {
	var mu sync.Mutex
	served := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		served[r.URL.Path]++
		mu.Unlock()
		_, _ = w.Write([]byte("weights:" + r.URL.Path))
	}))
	defer srv.Close()

	env := setupCLITestEnv(t)
	env.cfg.Local.DetectorModelURL = srv.URL + "/best.pt"
	env.cfg.Enhance.UpscalerModelURL = srv.URL + "/RealESRGAN_x4plus.pth"
	env.rewrite(t)

	stdout, _, err := runCLI(t, []string{"models", "fetch"}, env.configPath)
	if err != nil {
		t.Fatalf("models fetch: %v", err)
	}
	requireContains(t, stdout, "Downloaded detector model")
	requireContains(t, stdout, "Downloaded upscaler model")
	weights, err := os.ReadFile(filepath.Join(env.cfg.Paths.ModelsDir, "RealESRGAN_x4plus.pth"))
	if err != nil {
		t.Fatalf("read upscaler weights: %v", err)
	}
	if string(weights) != "weights:/RealESRGAN_x4plus.pth" {
		t.Fatalf("unexpected upscaler weights %q", weights)
	}

	stdout, _, err = runCLI(t, []string{"models", "fetch", "upscaler"}, env.configPath)
	if err != nil {
		t.Fatalf("models fetch upscaler: %v", err)
	}
	requireContains(t, stdout, "Upscaler model already present")
	if strings.Contains(stdout, "detector") {
		t.Fatalf("expected only the upscaler to be checked, got %q", stdout)
	}
	if served["/RealESRGAN_x4plus.pth"] != 1 {
		t.Fatalf("expected one upscaler download, got %d", served["/RealESRGAN_x4plus.pth"])
	}
}
