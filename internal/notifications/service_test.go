package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"wmclean/internal/config"
	"wmclean/internal/notifications"
	"wmclean/internal/services"
)

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newNtfyServer(t *testing.T, status int) (*httptest.Server, func() []captured) {
	t.Helper()
	var mu sync.Mutex
	var got []captured
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		mu.Unlock()
		w.WriteHeader(status)
		if status >= 300 {
			_, _ = w.Write([]byte("topic is read-only"))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), got...)
	}
}

func serviceFor(url string) notifications.Service {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = url
	return notifications.NewService(&cfg)
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyVideoCompleted(context.Background(), "/in/a.mp4", "/out/a_cleaned.mp4", 10); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := svc.TestNotification(context.Background()); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		send           func(notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "video completed",
			send: func(s notifications.Service) error {
				return s.NotifyVideoCompleted(context.Background(), "/in/clip.mp4", "/out/clip_cleaned.mp4", 2048)
			},
			expectTitle:   "wmclean - Video Cleaned",
			expectMessage: "clip.mp4 cleaned (2.0 KiB)",
			expectTags:    "wmclean,video,completed",
		},
		{
			name: "video failed",
			send: func(s notifications.Service) error {
				err := services.Wrap(services.ErrAPI, "remote", "predict", "prediction failed", errors.New("model crashed"))
				return s.NotifyVideoFailed(context.Background(), "/in/clip.mp4", err)
			},
			expectTitle:    "wmclean - Error",
			expectMessage:  "clip.mp4 failed (api)",
			expectTags:     "wmclean,error,alert",
			expectPriority: "high",
		},
		{
			name: "batch with errors",
			send: func(s notifications.Service) error {
				return s.NotifyBatchCompleted(context.Background(), "/videos/inbox", 3, 1, false, 90*time.Second)
			},
			expectTitle:   "wmclean - Batch Complete (with errors)",
			expectMessage: "inbox: 3 succeeded, 1 failed in 1m30s",
			expectTags:    "wmclean,batch,completed",
		},
		{
			name: "batch stopped",
			send: func(s notifications.Service) error {
				return s.NotifyBatchCompleted(context.Background(), "/videos/inbox", 2, 0, true, time.Second)
			},
			expectTitle:   "wmclean - Batch Stopped",
			expectMessage: "stopped after 2 succeeded",
		},
		{
			name:           "test notification",
			send:           func(s notifications.Service) error { return s.TestNotification(context.Background()) },
			expectTitle:    "wmclean - Test",
			expectMessage:  "Notification system test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, got := newNtfyServer(t, http.StatusOK)
			if err := tc.send(serviceFor(srv.URL)); err != nil {
				t.Fatalf("send: %v", err)
			}
			requests := got()
			if len(requests) != 1 {
				t.Fatalf("expected 1 request, got %d", len(requests))
			}
			req := requests[0]
			if req.title != tc.expectTitle {
				t.Fatalf("title = %q, want %q", req.title, tc.expectTitle)
			}
			if !strings.Contains(req.body, tc.expectMessage) {
				t.Fatalf("body %q does not contain %q", req.body, tc.expectMessage)
			}
			if tc.expectTags != "" && req.tags != tc.expectTags {
				t.Fatalf("tags = %q, want %q", req.tags, tc.expectTags)
			}
			if req.priority != tc.expectPriority {
				t.Fatalf("priority = %q, want %q", req.priority, tc.expectPriority)
			}
		})
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	srv, _ := newNtfyServer(t, http.StatusForbidden)
	err := serviceFor(srv.URL).TestNotification(context.Background())
	if err == nil {
		t.Fatal("expected error for 403")
	}
	if !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "read-only") {
		t.Fatalf("unexpected error: %v", err)
	}
}
