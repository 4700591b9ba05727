package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Notify — fire-and-forget trade notifications. Delivery failures are
// logged and counted, never surfaced to the trading path.
// ---------------------------------------------------------------------------

// Notifier delivers one human-readable notification.
type Notifier interface {
	Notify(ctx context.Context, text string)
	Name() string
}

// LogNotifier writes notifications to the structured log. The default sink
// for dry runs.
type LogNotifier struct {
	sent atomic.Int64
}

var _ Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Notify logs the notification text.
func (n *LogNotifier) Notify(_ context.Context, text string) {
	n.sent.Add(1)
	log.Info().Str("sink", "log").Msg("notify: " + text)
}

// Name returns the sink name.
func (n *LogNotifier) Name() string { return "log" }

// Sent returns how many notifications were logged.
func (n *LogNotifier) Sent() int64 { return n.sent.Load() }

// WebhookConfig configures the webhook notifier.
type WebhookConfig struct {
	URL       string `yaml:"url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// WebhookNotifier POSTs notifications as JSON to a webhook endpoint.
// Payload shape is Slack-compatible: {"text": "..."}.
type WebhookNotifier struct {
	config     WebhookConfig
	httpClient *http.Client

	sent   atomic.Int64
	failed atomic.Int64
}

var _ Notifier = (*WebhookNotifier)(nil)

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(config WebhookConfig) *WebhookNotifier {
	timeout := time.Duration(config.TimeoutMs) * time.Millisecond
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Notify delivers the text to the webhook. Failures log and count; the
// caller never sees them.
func (n *WebhookNotifier) Notify(ctx context.Context, text string) {
	if err := n.post(ctx, text); err != nil {
		n.failed.Add(1)
		log.Warn().Err(err).Msg("notify: webhook delivery failed")
		return
	}
	n.sent.Add(1)
}

func (n *WebhookNotifier) post(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("notify: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", n.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: HTTP error: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notify: HTTP %d", resp.StatusCode)
	}
	return nil
}

// Name returns the sink name.
func (n *WebhookNotifier) Name() string { return "webhook" }

// WebhookStats is a point-in-time counter snapshot.
type WebhookStats struct {
	Sent   int64 `json:"sent"`
	Failed int64 `json:"failed"`
}

// Stats returns delivery counters.
func (n *WebhookNotifier) Stats() WebhookStats {
	return WebhookStats{
		Sent:   n.sent.Load(),
		Failed: n.failed.Load(),
	}
}
