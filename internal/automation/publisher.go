// Package automation relays booking lifecycle events to an external
// automation webhook. Delivery is best-effort: the endpoint being down never
// fails the triggering operation.
package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Publisher posts signed lifecycle events to a configured webhook URL.
type Publisher struct {
	url         string
	secret      string
	httpClient  *http.Client
	logger      *otelzap.Logger
	maxAttempts int
}

// Config holds publisher settings. An empty URL disables publishing.
type Config struct {
	URL         string
	Secret      string
	Timeout     time.Duration
	MaxAttempts int
}

// NewPublisher creates a publisher.
func NewPublisher(cfg Config, logger *otelzap.Logger) *Publisher {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	return &Publisher{
		url:         cfg.URL,
		secret:      cfg.Secret,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
		maxAttempts: maxAttempts,
	}
}

// Enabled reports whether a webhook URL is configured.
func (p *Publisher) Enabled() bool {
	return p.url != ""
}

// Publish delivers an event with bounded retries. Failures are logged and
// swallowed; callers never see them.
func (p *Publisher) Publish(ctx context.Context, eventType string, data any) {
	if !p.Enabled() {
		return
	}

	payload := map[string]any{
		"id":   fmt.Sprintf("evt_%d", time.Now().UnixNano()),
		"type": eventType,
		"ts":   time.Now().UTC().Format(time.RFC3339),
		"data": data,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("Failed to marshal automation event",
			zap.String("event_type", eventType), zap.Error(err))
		return
	}

	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(nextBackoff(attempt - 1)):
			}
		}

		if p.deliver(ctx, eventType, body) {
			return
		}
	}

	p.logger.Warn("Automation event dropped after retries",
		zap.String("event_type", eventType),
		zap.Int("attempts", p.maxAttempts),
	)
}

func (p *Publisher) deliver(ctx context.Context, eventType string, body []byte) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", eventType)
	if p.secret != "" {
		req.Header.Set("X-Signature", SignHMAC(p.secret, body))
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Warn("Automation webhook delivery failed",
			zap.String("event_type", eventType), zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return true
	}

	p.logger.Warn("Automation webhook rejected",
		zap.String("event_type", eventType),
		zap.Int("status", resp.StatusCode),
	)
	return false
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
