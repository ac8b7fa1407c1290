package xero

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
	baseURL     string
	accessToken string
	tenantID    string
	httpClient  *http.Client
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	BaseURL     string
	AccessToken string
	TenantID    string
	Timeout     time.Duration
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.xero.com"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPAPIClient{
		baseURL:     baseURL,
		accessToken: cfg.AccessToken,
		tenantID:    cfg.TenantID,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// GetInvoice fetches an invoice from the Xero API.
// GET /api.xro/2.0/Invoices/{invoice_id}
func (c *HTTPAPIClient) GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	url := fmt.Sprintf("%s/api.xro/2.0/Invoices/%s", c.baseURL, invoiceID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Xero-tenant-id", c.tenantID)
	req.Header.Set("User-Agent", "nsjexpress-dispatch/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var envelope InvoicesEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode invoice response: %w", err)
	}

	if len(envelope.Invoices) == 0 {
		return nil, &APIError{Message: "invoice not found", StatusCode: http.StatusNotFound}
	}

	return &envelope.Invoices[0], nil
}

// parseError extracts error information from an HTTP response.
func (c *HTTPAPIClient) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
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
