package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"wikiseed/internal/config"
)

const userAgent = "WikiSeed-Go/0.1.0"

// Event names an alert the engine can publish.
type Event string

const (
	EventJobQuarantined  Event = "job_quarantined"
	EventAdmissionPaused Event = "admission_paused"
	EventTest            Event = "test"
)

// Payload carries event-specific fields.
type Payload map[string]any

// Service defines the notification surface exposed to engine components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When cfg is nil or no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		quarantine: cfg.Notifications.Quarantine,
		admission:  cfg.Notifications.Admission,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	quarantine bool
	admission  bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventJobQuarantined:
		if !n.quarantine {
			return message{}, false
		}
		body := fmt.Sprintf("Job %v (%s) quarantined after %v attempt(s)",
			payload["job_id"], payloadString(payload, "kind"), payload["attempts"])
		if target := payloadString(payload, "target"); target != "" {
			body += "\nTarget: " + target
		}
		if reason := payloadString(payload, "error"); reason != "" {
			body += "\nError: " + reason
		}
		return message{
			title:    "WikiSeed - Job Quarantined",
			body:     body,
			tags:     []string{"wikiseed", "quarantine", payloadString(payload, "kind")},
			priority: "high",
		}, true
	case EventAdmissionPaused:
		if !n.admission {
			return message{}, false
		}
		body := fmt.Sprintf("Storage admission paused: %.1f%% used", payloadFloat(payload, "used_percent"))
		if free, ok := payload["free_bytes"].(uint64); ok {
			body += fmt.Sprintf(", %s free", humanize.IBytes(free))
		}
		if path := payloadString(payload, "path"); path != "" {
			body += "\nVolume: " + path
		}
		return message{
			title:    "WikiSeed - Storage Paused",
			body:     body,
			tags:     []string{"wikiseed", "storage", "paused"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "WikiSeed - Test",
			body:     "Notification system test",
			tags:     []string{"wikiseed", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	tags := make([]string, 0, len(data.tags))
	for _, tag := range data.tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	if len(tags) > 0 {
		req.Header.Set("Tags", strings.Join(tags, ","))
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

func payloadString(payload Payload, key string) string {
	if payload == nil {
		return ""
	}
	switch v := payload[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func payloadFloat(payload Payload, key string) float64 {
	switch v := payload[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
