package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"filmstrip/internal/config"
)

const userAgent = "Filmstrip/0.1.0"

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifyUploadReceived(ctx context.Context, filename string) error
	NotifyRenderCompleted(ctx context.Context, title, videoURL string) error
	NotifyRenderFailed(ctx context.Context, title, reason string) error
	NotifyQueueCompleted(ctx context.Context, processed, failed int, duration time.Duration) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		cfg:      cfg,
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
	cfg      *config.Config
}

func (n *ntfyService) NotifyUploadReceived(ctx context.Context, filename string) error {
	if n.cfg != nil && !n.cfg.Notifications.Uploads {
		return nil
	}
	data := payload{
		title:   "Filmstrip - Upload Received",
		message: fmt.Sprintf("Queued for rendering: %s", strings.TrimSpace(filename)),
		tags:    []string{"filmstrip", "upload"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRenderCompleted(ctx context.Context, title, videoURL string) error {
	if n.cfg != nil && !n.cfg.Notifications.Renders {
		return nil
	}
	title = strings.TrimSpace(title)
	message := fmt.Sprintf("Ready to watch: %s", title)
	if videoURL = strings.TrimSpace(videoURL); videoURL != "" {
		message = fmt.Sprintf("%s\n%s", message, videoURL)
	}
	data := payload{
		title:    "Filmstrip - Render Complete",
		message:  message,
		tags:     []string{"filmstrip", "render", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRenderFailed(ctx context.Context, title, reason string) error {
	if n.cfg != nil && !n.cfg.Notifications.Errors {
		return nil
	}
	data := payload{
		title:    "Filmstrip - Render Failed",
		message:  fmt.Sprintf("Render failed for %s: %s", strings.TrimSpace(title), strings.TrimSpace(reason)),
		tags:     []string{"filmstrip", "render", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyQueueCompleted(ctx context.Context, processed, failed int, duration time.Duration) error {
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	var title, message string
	if failed == 0 {
		title = "Filmstrip - Queue Complete"
		message = fmt.Sprintf("Queue processing complete: %d items processed in %s", processed, duration)
	} else {
		title = "Filmstrip - Queue Complete (with errors)"
		message = fmt.Sprintf("Queue processing complete: %d succeeded, %d failed in %s", processed, failed, duration)
	}

	data := payload{
		title:   title,
		message: message,
		tags:    []string{"filmstrip", "queue", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if n.cfg != nil && !n.cfg.Notifications.Errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Filmstrip - Error",
		message:  builder.String(),
		tags:     []string{"filmstrip", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Filmstrip - Test",
		message:  "Notification system test",
		tags:     []string{"filmstrip", "test"},
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

func (noopService) NotifyUploadReceived(context.Context, string) error                  { return nil }
func (noopService) NotifyRenderCompleted(context.Context, string, string) error         { return nil }
func (noopService) NotifyRenderFailed(context.Context, string, string) error            { return nil }
func (noopService) NotifyQueueCompleted(context.Context, int, int, time.Duration) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error                    { return nil }
func (noopService) TestNotification(context.Context) error                              { return nil }
