package shippit

import (
	"context"
)

// APIClient defines the interface for Shippit API operations.
// This abstraction allows for mock implementations during testing
// and real implementations in production.
type APIClient interface {
	// GetQuote fetches delivery quotes from the Shippit API
	GetQuote(ctx context.Context, req *QuoteRequest) (*QuoteResponse, error)

	// CreateOrder books a delivery order
	CreateOrder(ctx context.Context, req *OrderRequest) (*OrderResponse, error)
}

// ============================================================================
// API Request/Response Types (match Shippit REST API v3 structure)
// ============================================================================

// QuoteRequest represents a Shippit quote request.
// POST /v3/quotes endpoint
type QuoteRequest struct {
	Quote QuoteAttributes `json:"quote"`
}

// QuoteAttributes contains the quote parameters.
type QuoteAttributes struct {
	DropoffPostcode  string            `json:"dropoff_postcode"`
	DropoffState     string            `json:"dropoff_state,omitempty"`
	DropoffSuburb    string            `json:"dropoff_suburb,omitempty"`
	ParcelAttributes []ParcelAttribute `json:"parcel_attributes"`
}

// ParcelAttribute represents a single parcel.
type ParcelAttribute struct {
	Qty    int     `json:"qty"`
	Weight float64 `json:"weight"`           // kg
	Length float64 `json:"length,omitempty"` // m
	Width  float64 `json:"width,omitempty"`  // m
	Depth  float64 `json:"depth,omitempty"`  // m
}

// QuoteResponse represents the Shippit quote response.
type QuoteResponse struct {
	Response []QuoteOption `json:"response"`
}

// QuoteOption is a quote for one courier type.
type QuoteOption struct {
	CourierType string  `json:"courier_type"`
	Quotes      []Quote `json:"quotes"`
}

// Quote is a single priced quote.
type Quote struct {
	Price                float64 `json:"price"`
	EstimatedTransitTime string  `json:"estimated_transit_time,omitempty"`
}

// OrderRequest represents a Shippit order creation request.
// POST /v3/orders endpoint
type OrderRequest struct {
	Order OrderAttributes `json:"order"`
}

// OrderAttributes contains the order payload.
type OrderAttributes struct {
	CourierType          string            `json:"courier_type"`
	DeliveryAddress      string            `json:"delivery_address"`
	DeliverySuburb       string            `json:"delivery_suburb"`
	DeliveryState        string            `json:"delivery_state"`
	DeliveryPostcode     string            `json:"delivery_postcode"`
	DeliveryInstructions string            `json:"delivery_instructions,omitempty"`
	AuthorityToLeave     bool              `json:"authority_to_leave,omitempty"`
	RetailerOrderNumber  string            `json:"retailer_order_number,omitempty"`
	ParcelAttributes     []ParcelAttribute `json:"parcel_attributes"`
	UserAttributes       UserAttributes    `json:"user_attributes"`
}

// UserAttributes identifies the receiver.
type UserAttributes struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone,omitempty"`
}

// OrderResponse represents the Shippit order creation response.
// Shippit has returned the payload under both "response" and "order"
// keys depending on API version, so both are decoded.
type OrderResponse struct {
	Response *OrderResult `json:"response,omitempty"`
	Order    *OrderResult `json:"order,omitempty"`
}

// OrderResult holds the booked order fields.
type OrderResult struct {
	ID             string `json:"id,omitempty"`
	OrderID        string `json:"order_id,omitempty"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	TrackingURL    string `json:"tracking_url,omitempty"`
	LabelURL       string `json:"label_url,omitempty"`
	State          string `json:"state,omitempty"`
	CourierType    string `json:"courier_type,omitempty"`
}

// APIError represents an error from the Shippit API.
type APIError struct {
	Code       string              `json:"code"`
	Message    string              `json:"error"`
	Messages   map[string][]string `json:"messages,omitempty"` // Field-level errors
	StatusCode int                 `json:"-"`
	Body       string              `json:"-"` // Raw response body
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}
