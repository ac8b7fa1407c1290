package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPAPIClient is the production implementation of APIClient using HTTP.
type HTTPAPIClient struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPAPIClient{
		baseURL:    baseURL,
		secretKey:  cfg.SecretKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetCheckoutSession fetches a checkout session from the Stripe API.
// GET /v1/checkout/sessions/{id}
func (c *HTTPAPIClient) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	url := fmt.Sprintf("%s/v1/checkout/sessions/%s", c.baseURL, sessionID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("User-Agent", "nsjexpress-dispatch/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var session CheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session response: %w", err)
	}

	return &session, nil
}

// parseError extracts error information from an HTTP response.
func (c *HTTPAPIClient) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr := envelope.Error
		apiErr.StatusCode = resp.StatusCode
		return &apiErr
	}

	return &APIError{
		Message:    fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)),
		StatusCode: resp.StatusCode,
	}
}

// Ensure HTTPAPIClient implements APIClient interface
var _ APIClient = (*HTTPAPIClient)(nil)
