package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scribe/internal/config"
)

const userAgent = "Scribe/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyRunCompleted(ctx context.Context, title, transcriptPath string) error
	NotifyRunFailed(ctx context.Context, title string, err error) error
	NotifyQueueStarted(ctx context.Context, count int) error
	NotifyQueueDrained(ctx context.Context, processed, failed int, duration time.Duration) error
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

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint:     topic,
		client:       client,
		onCompletion: cfg.Notifications.Completion,
		onErrors:     cfg.Notifications.Errors,
		onQueue:      cfg.Notifications.Queue,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	onCompletion bool
	onErrors     bool
	onQueue      bool
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, title, transcriptPath string) error {
	if !n.onCompletion {
		return nil
	}
	title = strings.TrimSpace(title)
	transcriptPath = strings.TrimSpace(transcriptPath)
	message := fmt.Sprintf("Transcript ready: %s", title)
	if transcriptPath != "" {
		message = fmt.Sprintf("%s\nFile: %s", message, transcriptPath)
	}
	data := payload{
		title:    "Scribe - Complete",
		message:  message,
		tags:     []string{"scribe", "run", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRunFailed(ctx context.Context, title string, err error) error {
	if !n.onErrors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Run failed")
	if title = strings.TrimSpace(title); title != "" {
		builder.WriteString(": ")
		builder.WriteString(title)
	}
	builder.WriteString("\n")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown error")
	}

	data := payload{
		title:    "Scribe - Error",
		message:  builder.String(),
		tags:     []string{"scribe", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyQueueStarted(ctx context.Context, count int) error {
	if !n.onQueue {
		return nil
	}
	data := payload{
		title:   "Scribe - Queue Started",
		message: fmt.Sprintf("Started processing queue with %d runs", count),
		tags:    []string{"scribe", "queue", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyQueueDrained(ctx context.Context, processed, failed int, duration time.Duration) error {
	if !n.onQueue {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	durationText := duration.String()
	if duration == 0 {
		durationText = "0s"
	}

	var message string
	var title string
	if failed == 0 {
		title = "Scribe - Queue Drained"
		message = fmt.Sprintf("Queue drained: %d runs processed in %s", processed, durationText)
	} else {
		title = "Scribe - Queue Drained (with errors)"
		message = fmt.Sprintf("Queue drained: %d succeeded, %d failed in %s", processed, failed, durationText)
	}

	data := payload{
		title:   title,
		message: message,
		tags:    []string{"scribe", "queue", "drained"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Scribe - Test",
		message:  "Notification system test",
		tags:     []string{"scribe", "test"},
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

func (noopService) NotifyRunCompleted(context.Context, string, string) error { return nil }
func (noopService) NotifyRunFailed(context.Context, string, error) error     { return nil }
func (noopService) NotifyQueueStarted(context.Context, int) error            { return nil }
func (noopService) NotifyQueueDrained(context.Context, int, int, time.Duration) error {
	return nil
}
func (noopService) TestNotification(context.Context) error { return nil }
