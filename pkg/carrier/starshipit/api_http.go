package starshipit

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
	baseURL         string
	apiKey          string
	subscriptionKey string
	httpClient      *http.Client
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	BaseURL         string
	APIKey          string
	SubscriptionKey string // Azure API Management subscription key
	Timeout         time.Duration
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPAPIClient{
		baseURL:         cfg.BaseURL,
		apiKey:          cfg.APIKey,
		subscriptionKey: cfg.SubscriptionKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetRates fetches delivery rates from the StarShipIt API.
// POST /api/rates
func (c *HTTPAPIClient) GetRates(ctx context.Context, req *RatesRequest) (*RatesResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/rates", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result RatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode rates response: %w", err)
	}

	if !result.Success {
		return nil, firstError(result.Errors, resp.StatusCode)
	}

	return &result, nil
}

// CreateOrder creates a delivery order via the StarShipIt API.
// POST /api/orders
func (c *HTTPAPIClient) CreateOrder(ctx context.Context, req *OrderRequest) (*OrderResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/orders", req)
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

	if !result.Success {
		return nil, firstError(result.Errors, resp.StatusCode)
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
	// StarShipIt requires both the account API key and the APIM subscription key
	req.Header.Set("StarShipIT-Api-Key", c.apiKey)
	req.Header.Set("Ocp-Apim-Subscription-Key", c.subscriptionKey)
	req.Header.Set("User-Agent", "nsjexpress-dispatch/1.0")

	return c.httpClient.Do(req)
}

// parseError extracts error information from an HTTP response.
func (c *HTTPAPIClient) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var envelope struct {
		Errors []APIError `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Errors) > 0 {
		return firstError(envelope.Errors, resp.StatusCode)
	}

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		apiErr.StatusCode = resp.StatusCode
		return &apiErr
	}

	return &APIError{
		Message:    fmt.Sprintf("HTTP %d", resp.StatusCode),
		Details:    string(body),
		StatusCode: resp.StatusCode,
	}
}

func firstError(errs []APIError, statusCode int) error {
	if len(errs) == 0 {
		return &APIError{Message: "request failed", StatusCode: statusCode}
	}
	e := errs[0]
	e.StatusCode = statusCode
	return &e
}

// Ensure HTTPAPIClient implements APIClient interface
var _ APIClient = (*HTTPAPIClient)(nil)
