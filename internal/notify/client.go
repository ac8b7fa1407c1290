// Package notify sends customer notifications through an external
// notification service. Sends are best-effort and never fail the caller.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Notification is one outbound customer message.
type Notification struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Message   string `json:"message"`
	BookingID string `json:"booking_id,omitempty"`
}

// Client posts notifications to the notification service.
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
	logger     *otelzap.Logger
}

// Config holds notification service settings. An empty URL disables sends.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// NewClient creates a notification client.
func NewClient(cfg Config, logger *otelzap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Send delivers n. Failures are logged, never returned.
func (c *Client) Send(ctx context.Context, n Notification) {
	if c.url == "" {
		return
	}

	body, err := json.Marshal(n)
	if err != nil {
		c.logger.Error("Failed to marshal notification", zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		c.logger.Error("Failed to build notification request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Notification send failed",
			zap.String("recipient", n.Recipient), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		c.logger.Warn("Notification service rejected send",
			zap.String("recipient", n.Recipient),
			zap.Int("status", resp.StatusCode),
		)
	}
}
