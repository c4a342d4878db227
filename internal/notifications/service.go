package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"wmclean/internal/config"
	"wmclean/internal/services"
)

const userAgent = "wmclean/0.1.0"

// Service defines the notification surface used by the CLI.
type Service interface {
	NotifyVideoCompleted(ctx context.Context, input, output string, bytes int64) error
	NotifyVideoFailed(ctx context.Context, input string, err error) error
	NotifyBatchCompleted(ctx context.Context, dir string, succeeded, failed int, stopped bool, duration time.Duration) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyVideoCompleted(ctx context.Context, input, output string, bytes int64) error {
	data := payload{
		title:   "wmclean - Video Cleaned",
		message: fmt.Sprintf("✅ %s cleaned (%s)\nFile: %s", filepath.Base(input), humanize.IBytes(uint64(bytes)), output),
		tags:    []string{"wmclean", "video", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyVideoFailed(ctx context.Context, input string, err error) error {
	var builder strings.Builder
	builder.WriteString("❌ ")
	builder.WriteString(filepath.Base(input))
	builder.WriteString(" failed")
	if err != nil {
		builder.WriteString(" (")
		builder.WriteString(services.Category(err))
		builder.WriteString("): ")
		builder.WriteString(strings.TrimSpace(err.Error()))
	}
	data := payload{
		title:    "wmclean - Error",
		message:  builder.String(),
		tags:     []string{"wmclean", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyBatchCompleted(ctx context.Context, dir string, succeeded, failed int, stopped bool, duration time.Duration) error {
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	title := "wmclean - Batch Complete"
	message := fmt.Sprintf("%s: %d videos cleaned in %s", filepath.Base(dir), succeeded, duration)
	switch {
	case stopped:
		title = "wmclean - Batch Stopped"
		message = fmt.Sprintf("%s: stopped after %d succeeded, %d failed (%s)", filepath.Base(dir), succeeded, failed, duration)
	case failed > 0:
		title = "wmclean - Batch Complete (with errors)"
		message = fmt.Sprintf("%s: %d succeeded, %d failed in %s", filepath.Base(dir), succeeded, failed, duration)
	}

	data := payload{
		title:   title,
		message: message,
		tags:    []string{"wmclean", "batch", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "wmclean - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"wmclean", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyVideoCompleted(context.Context, string, string, int64) error { return nil }
func (noopService) NotifyVideoFailed(context.Context, string, error) error            { return nil }
func (noopService) NotifyBatchCompleted(context.Context, string, int, int, bool, time.Duration) error {
	return nil
}
func (noopService) TestNotification(context.Context) error { return nil }
