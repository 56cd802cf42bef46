package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"taskline/internal/domain"
)

const defaultWebhookTimeout = 5 * time.Second

// WebhookSink POSTs each event as JSON to a URL.
type WebhookSink struct {
	URL    string
	Secret string
	Client *http.Client
}

func NewWebhookSink(url, secret string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookSink{URL: url, Secret: secret, Client: &http.Client{Timeout: timeout}}
}

func (w *WebhookSink) Name() string { return "webhook " + w.URL }

func (w *WebhookSink) Deliver(ctx context.Context, ev domain.BehavioralEvent, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Taskline-Event", ev.Kind)
	req.Header.Set("X-Taskline-Delivery", strconv.FormatInt(ev.Seq, 10))
	if strings.TrimSpace(w.Secret) != "" {
		req.Header.Set("X-Taskline-Secret", w.Secret)
	}
	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func (w *WebhookSink) Close() error { return nil }
