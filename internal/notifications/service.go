package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"platewatch/internal/config"
	"platewatch/internal/queue"
)

const userAgent = "Platewatch-Go/0.1.0"

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifyJobAdded(ctx context.Context, title string) error
	NotifyJobStarted(ctx context.Context, title string) error
	NotifyJobUpdated(ctx context.Context, job *queue.Job) error
	NotifyJobCompleted(ctx context.Context, title string, vehicles, plates, shots int) error
	NotifyJobFailed(ctx context.Context, title string, err error) error
	NotifyTransferCompleted(ctx context.Context, title, destination string) error
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
		endpoint: topic,
		client:   client,
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

func (n *ntfyService) NotifyJobAdded(ctx context.Context, title string) error {
	data := payload{
		title:   "Platewatch - Queued",
		message: fmt.Sprintf("Queued for processing: %s", strings.TrimSpace(title)),
		tags:    []string{"platewatch", "queue", "added"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobStarted(ctx context.Context, title string) error {
	data := payload{
		title:   "Platewatch - Processing",
		message: fmt.Sprintf("Started processing: %s", strings.TrimSpace(title)),
		tags:    []string{"platewatch", "job", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobUpdated(ctx context.Context, job *queue.Job) error {
	if job == nil {
		return nil
	}
	data := payload{
		title: "Platewatch - Progress",
		message: fmt.Sprintf("%s entered %s (%d%%)",
			strings.TrimSpace(job.Title), job.Status, job.Percent),
		tags:     []string{"platewatch", "job", "updated"},
		priority: "min",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobCompleted(ctx context.Context, title string, vehicles, plates, shots int) error {
	data := payload{
		title: "Platewatch - Complete",
		message: fmt.Sprintf("Finished %s: %d vehicles, %d with plates, %d shots saved",
			strings.TrimSpace(title), vehicles, plates, shots),
		tags:     []string{"platewatch", "job", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, title string, err error) error {
	reason := "unknown"
	if err != nil {
		reason = strings.TrimSpace(err.Error())
	}
	data := payload{
		title:    "Platewatch - Error",
		message:  fmt.Sprintf("Failed %s: %s", strings.TrimSpace(title), reason),
		tags:     []string{"platewatch", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyTransferCompleted(ctx context.Context, title, destination string) error {
	message := fmt.Sprintf("Uploaded %s", strings.TrimSpace(title))
	if destination = strings.TrimSpace(destination); destination != "" {
		message = fmt.Sprintf("%s\nDestination: %s", message, destination)
	}
	data := payload{
		title:   "Platewatch - Transferred",
		message: message,
		tags:    []string{"platewatch", "transfer", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Platewatch - Test",
		message:  "Notification system test",
		tags:     []string{"platewatch", "test"},
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

func (noopService) NotifyJobAdded(context.Context, string) error                    { return nil }
func (noopService) NotifyJobStarted(context.Context, string) error                  { return nil }
func (noopService) NotifyJobUpdated(context.Context, *queue.Job) error              { return nil }
func (noopService) NotifyJobCompleted(context.Context, string, int, int, int) error { return nil }
func (noopService) NotifyJobFailed(context.Context, string, error) error            { return nil }
func (noopService) NotifyTransferCompleted(context.Context, string, string) error   { return nil }
func (noopService) TestNotification(context.Context) error                          { return nil }
