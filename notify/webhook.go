package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/c360studio/semaudit/aggregation"
	"github.com/c360studio/semaudit/report"
)

// Webhook posts a markdown summary to a chat webhook as {"text": ...}.
type Webhook struct {
	url        string
	httpClient *http.Client
}

// NewWebhook creates a webhook notifier. A nil client uses one with the
// given timeout.
func NewWebhook(url string, client *http.Client, timeout time.Duration) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Webhook{url: url, httpClient: client}
}

// Name implements Notifier.
func (w *Webhook) Name() string { return "webhook" }

type webhookMessage struct {
	Text string `json:"text"`
}

// Notify implements Notifier.
func (w *Webhook) Notify(ctx context.Context, run report.Run, rep *aggregation.Report) error {
	text, err := report.RenderMarkdown(run, rep)
	if err != nil {
		return err
	}

	body, err := json.Marshal(webhookMessage{Text: text})
	if err != nil {
		return fmt.Errorf("marshal webhook message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return nil
}
