// File: internal/notification/webhook.go
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arbiterdevs/btc-arbitration/pkg/utils"
)

// WebhookSink posts notifications as JSON to a single endpoint
type WebhookSink struct {
	url        string
	retries    int
	retryDelay time.Duration
	httpClient *http.Client
	logger     *logrus.Entry
}

// webhookPayload is the wire shape posted to the endpoint
type webhookPayload struct {
	ID        string                 `json:"id"`
	Kind      string                 `json:"kind"`
	Subject   string                 `json:"subject"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
}

// NewWebhookSink creates a webhook sink
func NewWebhookSink(url string, timeout time.Duration) (*WebhookSink, error) {
	if url == "" {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Webhook URL is required", "")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &WebhookSink{
		url:        url,
		retries:    3,
		retryDelay: time.Second,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		logger: utils.ComponentLogger("notification.webhook"),
	}, nil
}

// Name identifies the sink in logs and metrics
func (s *WebhookSink) Name() string {
	return "webhook"
}

// Deliver posts the notification, retrying with exponential backoff on
// transport errors and non-2xx responses.
func (s *WebhookSink) Deliver(ctx context.Context, n *Notification) error {
	body, err := json.Marshal(webhookPayload{
		ID:        n.ID,
		Kind:      n.Kind,
		Subject:   n.Subject,
		Data:      n.Data,
		Timestamp: n.Timestamp,
		Source:    "btc-arbitration",
	})
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal webhook payload", err.Error())
	}

	var lastErr error
	for attempt := 1; attempt <= s.retries; attempt++ {
		if attempt > 1 {
			delay := s.retryDelay << uint(attempt-2)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = s.post(ctx, n, body)
		if lastErr == nil {
			return nil
		}

		if attempt < s.retries {
			s.logger.WithError(lastErr).WithFields(logrus.Fields{
				"attempt": attempt,
				"id":      n.ID,
			}).Warn("Webhook delivery failed, retrying")
		}
	}

	return lastErr
}

func (s *WebhookSink) post(ctx context.Context, n *Notification, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to create webhook request", err.Error())
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "btc-arbitration/1.0")
	req.Header.Set("X-Notification-ID", n.ID)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeConnection, "Failed to send webhook", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Read a bounded slice of the body for the error detail.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return utils.NewAppError(utils.ErrCodeConnection,
			"Webhook returned non-success status",
			fmt.Sprintf("status: %d, body: %s", resp.StatusCode, string(snippet)))
	}

	return nil
}
