package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultAPIVersion = "2024-01"

// HTTPAPIClient is the production implementation of APIClient using HTTP.
type HTTPAPIClient struct {
	apiVersion string
	httpClient *http.Client
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	APIVersion string
	Timeout    time.Duration
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPAPIClient{
		apiVersion: apiVersion,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// CreateFulfillment records a fulfilment against a Shopify order.
// POST /admin/api/{version}/orders/{order_id}/fulfillments.json
func (c *HTTPAPIClient) CreateFulfillment(ctx context.Context, creds Credentials, orderID string, fulfillment *FulfillmentRequest) (*FulfillmentResponse, error) {
	url := fmt.Sprintf("https://%s/admin/api/%s/orders/%s/fulfillments.json",
		creds.ShopDomain, c.apiVersion, orderID)

	jsonBody, err := json.Marshal(fulfillment)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Shopify-Access-Token", creds.AccessToken)
	req.Header.Set("User-Agent", "nsjexpress-dispatch/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, c.parseError(resp)
	}

	var result FulfillmentResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode fulfillment response: %w", err)
	}

	return &result, nil
}

// parseError extracts error information from an HTTP response. Shopify's
// "errors" key may be a string, an object or an array, so the raw body is
// kept when it does not decode to a string.
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
