package shopify

import (
	"context"
)

// APIClient defines the interface for Shopify Admin API operations.
// This abstraction allows for mock implementations during testing
// and real implementations in production.
type APIClient interface {
	// CreateFulfillment records a fulfilment with tracking against an order
	CreateFulfillment(ctx context.Context, creds Credentials, orderID string, req *FulfillmentRequest) (*FulfillmentResponse, error)
}

// Credentials identifies one connected Shopify store. Tokens come from the
// integrations table, never from build-time configuration.
type Credentials struct {
	ShopDomain  string // e.g. "nsj-express.myshopify.com"
	AccessToken string
}

// ============================================================================
// API Request/Response Types (match Shopify Admin REST API structure)
// ============================================================================

// FulfillmentRequest represents a Shopify fulfilment creation request.
// POST /admin/api/{version}/orders/{order_id}/fulfillments.json
type FulfillmentRequest struct {
	Fulfillment Fulfillment `json:"fulfillment"`
}

// Fulfillment is the fulfilment payload.
type Fulfillment struct {
	TrackingNumber  string   `json:"tracking_number,omitempty"`
	TrackingCompany string   `json:"tracking_company,omitempty"`
	TrackingURLs    []string `json:"tracking_urls,omitempty"`
	NotifyCustomer  bool     `json:"notify_customer"`
}

// FulfillmentResponse represents the Shopify fulfilment creation response.
type FulfillmentResponse struct {
	Fulfillment CreatedFulfillment `json:"fulfillment"`
}

// CreatedFulfillment holds the created fulfilment fields.
type CreatedFulfillment struct {
	ID             int64  `json:"id"`
	OrderID        int64  `json:"order_id"`
	Status         string `json:"status"`
	TrackingNumber string `json:"tracking_number"`
}

// APIError represents an error from the Shopify Admin API.
type APIError struct {
	Message    string `json:"errors"`
	StatusCode int    `json:"-"`
}

func (e *APIError) Error() string {
	return e.Message
}
