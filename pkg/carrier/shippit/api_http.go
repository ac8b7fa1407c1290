package shippit

import (
	"bytes"
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
	apiKey     string
	httpClient *http.Client
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPAPIClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetQuote fetches delivery quotes from the Shippit API.
// POST /v3/quotes
func (c *HTTPAPIClient) GetQuote(ctx context.Context, req *QuoteRequest) (*QuoteResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v3/quotes", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, c.parseError(resp)
	}

	var result QuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode quote response: %w", err)
	}

	return &result, nil
}

// CreateOrder books a delivery order via the Shippit API.
// POST /v3/orders
func (c *HTTPAPIClient) CreateOrder(ctx context.Context, req *OrderRequest) (*OrderResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v3/orders", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, c.parseError(resp)
	}

	var result OrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode order response: %w", err)
	}

	return &result, nil
}

// doRequest performs an HTTP request with proper headers and authentication.
func (c *HTTPAPIClient) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey) // Shippit uses bearer token auth
	req.Header.Set("User-Agent", "nsjexpress-dispatch/1.0")

	return c.httpClient.Do(req)
}

// parseError extracts error information from an HTTP response.
func (c *HTTPAPIClient) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		if apiErr.Code == "" {
			apiErr.Code = fmt.Sprintf("HTTP_%d", resp.StatusCode)
		}
		apiErr.StatusCode = resp.StatusCode
		apiErr.Body = string(body)
		return &apiErr
	}

	return &APIError{
		Code:       fmt.Sprintf("HTTP_%d", resp.StatusCode),
		Message:    string(body),
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}
}

// Ensure HTTPAPIClient implements APIClient interface
var _ APIClient = (*HTTPAPIClient)(nil)
