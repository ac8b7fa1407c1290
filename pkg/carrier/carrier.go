// Package carrier provides an abstraction layer for carrier-booking providers.
package carrier

import (
	"context"
)

// Carrier defines the interface that all carrier-booking providers implement.
type Carrier interface {
	// Name returns the provider identifier (e.g. "shippit", "starshipit").
	Name() string

	// GetRate returns a shipping rate estimate for a consignment.
	GetRate(ctx context.Context, req *RateRequest) (*RateResponse, error)

	// CreateOrder books a consignment with the provider and returns the
	// provider-assigned order id, tracking number and label URL.
	CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error)
}
