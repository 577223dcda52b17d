package notifications

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"filmstrip/internal/config"
)

func newTestConfig(topic string) *config.Config {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = topic
	cfg.Notifications.Uploads = true
	cfg.Notifications.Renders = true
	cfg.Notifications.Errors = true
	return &cfg
}

func TestNewServiceWithoutTopicReturnsNoop(t *testing.T) {
	svc := NewService(newTestConfig("   "))
	if _, ok := svc.(noopService); !ok {
		t.Fatalf("expected noop service, got %T", svc)
	}
	if err := svc.NotifyUploadReceived(context.Background(), "beach.jpg"); err != nil {
		t.Fatalf("noop NotifyUploadReceived returned %v", err)
	}
}

func TestNtfyServiceSendsHeadersAndBody(t *testing.T) {
	var (
		gotTitle    string
		gotTags     string
		gotPriority string
		gotBody     string
		gotAgent    string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTitle = r.Header.Get("Title")
		gotTags = r.Header.Get("Tags")
		gotPriority = r.Header.Get("Priority")
		gotAgent = r.Header.Get("User-Agent")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc := NewService(newTestConfig(server.URL))
	err := svc.NotifyRenderCompleted(context.Background(), "Sunset Clip", "/videos/sunset.mp4")
	if err != nil {
		t.Fatalf("NotifyRenderCompleted returned %v", err)
	}

	if gotTitle != "Filmstrip - Render Complete" {
		t.Errorf("unexpected title %q", gotTitle)
	}
	if gotTags != "filmstrip,render,completed" {
		t.Errorf("unexpected tags %q", gotTags)
	}
	if gotPriority != "high" {
		t.Errorf("unexpected priority %q", gotPriority)
	}
	if !strings.Contains(gotBody, "Sunset Clip") || !strings.Contains(gotBody, "/videos/sunset.mp4") {
		t.Errorf("unexpected body %q", gotBody)
	}
	if gotAgent != userAgent {
		t.Errorf("unexpected user agent %q", gotAgent)
	}
}

func TestNtfyServiceReportsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic limit reached", http.StatusTooManyRequests)
	}))
	defer server.Close()

	svc := NewService(newTestConfig(server.URL))
	err := svc.TestNotification(context.Background())
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
	if !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "topic limit reached") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestEventTogglesSuppressSends(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer server.Close()

	cfg := newTestConfig(server.URL)
	cfg.Notifications.Uploads = false
	cfg.Notifications.Renders = false
	cfg.Notifications.Errors = false

	svc := NewService(cfg)
	ctx := context.Background()
	if err := svc.NotifyUploadReceived(ctx, "beach.jpg"); err != nil {
		t.Fatalf("NotifyUploadReceived returned %v", err)
	}
	if err := svc.NotifyRenderCompleted(ctx, "Beach", ""); err != nil {
		t.Fatalf("NotifyRenderCompleted returned %v", err)
	}
	if err := svc.NotifyError(ctx, errors.New("boom"), "render"); err != nil {
		t.Fatalf("NotifyError returned %v", err)
	}
	if requests != 0 {
		t.Fatalf("expected no requests, got %d", requests)
	}
}

func TestNotifyQueueCompletedFormatsSummary(t *testing.T) {
	var gotTitle, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTitle = r.Header.Get("Title")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
	}))
	defer server.Close()

	svc := NewService(newTestConfig(server.URL))
	err := svc.NotifyQueueCompleted(context.Background(), 3, 1, 95*time.Second)
	if err != nil {
		t.Fatalf("NotifyQueueCompleted returned %v", err)
	}
	if !strings.Contains(gotTitle, "with errors") {
		t.Errorf("unexpected title %q", gotTitle)
	}
	if !strings.Contains(gotBody, "3 succeeded") || !strings.Contains(gotBody, "1 failed") {
		t.Errorf("unexpected body %q", gotBody)
	}
}
