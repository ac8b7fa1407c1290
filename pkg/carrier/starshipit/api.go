package starshipit

import (
	"context"
)

// APIClient defines the interface for StarShipIt API operations.
// This abstraction allows for mock implementations during testing
// and real implementations in production.
type APIClient interface {
	// GetRates fetches delivery rates from the StarShipIt API
	GetRates(ctx context.Context, req *RatesRequest) (*RatesResponse, error)

	// CreateOrder creates a new delivery order
	CreateOrder(ctx context.Context, req *OrderRequest) (*OrderResponse, error)
}

// ============================================================================
// API Request/Response Types (match StarShipIt REST API structure)
// ============================================================================

// RatesRequest represents a StarShipIt rate request.
// POST /api/rates endpoint
type RatesRequest struct {
	Destination Destination `json:"destination"`
	Packages    []Package   `json:"packages"`
	Currency    string      `json:"currency,omitempty"`
}

// Destination is the delivery address.
type Destination struct {
	Name     string `json:"name,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Street   string `json:"street"`
	Suburb   string `json:"suburb"`
	State    string `json:"state"`
	PostCode string `json:"post_code"`
	Country  string `json:"country"`
}

// Package represents a single parcel.
type Package struct {
	Weight float64 `json:"weight"`           // kg
	Height float64 `json:"height,omitempty"` // m
	Width  float64 `json:"width,omitempty"`  // m
	Length float64 `json:"length,omitempty"` // m
}

// RatesResponse represents the StarShipIt rate response.
type RatesResponse struct {
	Rates   []Rate     `json:"rates"`
	Success bool       `json:"success"`
	Errors  []APIError `json:"errors,omitempty"`
}

// Rate is a single priced service.
type Rate struct {
	ServiceName string  `json:"service_name"`
	ServiceCode string  `json:"service_code"`
	TotalPrice  float64 `json:"total_price"`
}

// OrderRequest represents a StarShipIt order creation request.
// POST /api/orders endpoint
type OrderRequest struct {
	Order Order `json:"order"`
}

// Order is the order payload.
type Order struct {
	OrderDate      string      `json:"order_date,omitempty"` // ISO 8601
	OrderNumber    string      `json:"order_number"`
	Reference      string      `json:"reference,omitempty"`
	Currency       string      `json:"currency,omitempty"`
	ShippingMethod string      `json:"shipping_method,omitempty"`
	Destination    Destination `json:"destination"`
	Items          []Item      `json:"items,omitempty"`
	Packages       []Package   `json:"packages"`
}

// Item is an order line for customs and manifests.
type Item struct {
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	Weight      float64 `json:"weight,omitempty"`
	Value       float64 `json:"value,omitempty"`
}

// OrderResponse represents the StarShipIt order creation response.
// Tracking fields have appeared both at the top level and nested under
// the order, so both are decoded.
type OrderResponse struct {
	Order          *CreatedOrder `json:"order,omitempty"`
	TrackingNumber string        `json:"tracking_number,omitempty"`
	LabelURL       string        `json:"label_url,omitempty"`
	Success        bool          `json:"success"`
	Errors         []APIError    `json:"errors,omitempty"`
}

// CreatedOrder holds the created order fields.
type CreatedOrder struct {
	OrderID        int64  `json:"order_id"`
	OrderNumber    string `json:"order_number"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	TrackingURL    string `json:"tracking_url,omitempty"`
	LabelURL       string `json:"label_url,omitempty"`
	Status         string `json:"status,omitempty"`
	Carrier        string `json:"carrier,omitempty"`
	CarrierName    string `json:"carrier_name,omitempty"`
}

// APIError represents an error from the StarShipIt API.
type APIError struct {
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	StatusCode int    `json:"-"`
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}
