package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"packsync/internal/config"
)

const userAgent = "packsync/notify"

// maxListedFailures bounds how many failed item ids a message names.
const maxListedFailures = 10

// PassResult is the part of a pass summary worth pushing to a phone.
type PassResult struct {
	PassID    string
	Succeeded int
	Failed    []string
	Skipped   int
	Duration  time.Duration
}

// Service defines the notification surface exposed to the orchestrator.
type Service interface {
	NotifyPassCompleted(ctx context.Context, result PassResult) error
	NotifyPassAborted(ctx context.Context, reason string, err error) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := cfg.NotificationTimeout()
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

func (n *ntfyService) NotifyPassCompleted(ctx context.Context, result PassResult) error {
	duration := result.Duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	data := payload{
		title: "packsync - Sync Complete",
		message: fmt.Sprintf("Synced %d items in %s (%d skipped)",
			result.Succeeded, duration, result.Skipped),
		tags: []string{"packsync", "sync", "completed"},
	}
	if len(result.Failed) > 0 {
		data.title = "packsync - Sync Complete (with errors)"
		listed := result.Failed
		more := ""
		if len(listed) > maxListedFailures {
			more = fmt.Sprintf(" and %d more", len(listed)-maxListedFailures)
			listed = listed[:maxListedFailures]
		}
		data.message = fmt.Sprintf("%d succeeded, %d failed in %s\nFailed: %s%s",
			result.Succeeded, len(result.Failed), duration, strings.Join(listed, ", "), more)
		data.tags = []string{"packsync", "sync", "warning"}
	}
	if result.PassID != "" {
		data.message += "\nPass: " + result.PassID
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyPassAborted(ctx context.Context, reason string, err error) error {
	var builder strings.Builder
	builder.WriteString("Sync aborted")
	if reason = strings.TrimSpace(reason); reason != "" {
		builder.WriteString(": ")
		builder.WriteString(reason)
	}
	if err != nil {
		builder.WriteString("\n")
		builder.WriteString(strings.TrimSpace(err.Error()))
	}

	data := payload{
		title:    "packsync - Error",
		message:  builder.String(),
		tags:     []string{"packsync", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "packsync - Test",
		message:  "Notification system test",
		tags:     []string{"packsync", "test"},
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

func (noopService) NotifyPassCompleted(context.Context, PassResult) error  { return nil }
func (noopService) NotifyPassAborted(context.Context, string, error) error { return nil }
func (noopService) TestNotification(context.Context) error                 { return nil }
