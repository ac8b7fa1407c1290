// Package mock provides a mock carrier implementation for testing.
package mock

import (
	"context"
	"fmt"
	"time"

	"github.com/nsjexpress/dispatch/pkg/carrier"
)

// Client is a mock carrier for testing.
type Client struct {
	name string

	// OnCreateOrder, when set, overrides the default canned response.
	OnCreateOrder func(ctx context.Context, req *carrier.CreateOrderRequest) (*carrier.CreateOrderResponse, error)

	// OnGetRate, when set, overrides the default canned response.
	OnGetRate func(ctx context.Context, req *carrier.RateRequest) (*carrier.RateResponse, error)
}

// New creates a new mock carrier.
func New(name string) *Client {
	return &Client{name: name}
}

// Name returns the carrier name.
func (c *Client) Name() string {
	return c.name
}

// GetRate returns a mock shipping rate.
func (c *Client) GetRate(ctx context.Context, req *carrier.RateRequest) (*carrier.RateResponse, error) {
	if c.OnGetRate != nil {
		return c.OnGetRate(ctx, req)
	}

	return &carrier.RateResponse{
		Carrier:     c.name,
		ServiceName: fmt.Sprintf("%s Standard", c.name),
		Amount:      15.00,
		Currency:    "AUD",
	}, nil
}

// CreateOrder creates a mock shipping order.
func (c *Client) CreateOrder(ctx context.Context, req *carrier.CreateOrderRequest) (*carrier.CreateOrderResponse, error) {
	if c.OnCreateOrder != nil {
		return c.OnCreateOrder(ctx, req)
	}

	now := time.Now()
	orderID := fmt.Sprintf("%s-order-%d", c.name, now.UnixNano())
	trackingNumber := fmt.Sprintf("TRK%d", now.UnixNano()%1000000000)

	return &carrier.CreateOrderResponse{
		Carrier:        c.name,
		OrderID:        orderID,
		TrackingNumber: trackingNumber,
		TrackingURL:    fmt.Sprintf("https://track.%s.mock/%s", c.name, trackingNumber),
		LabelURL:       fmt.Sprintf("https://labels.%s.mock/%s.pdf", c.name, orderID),
	}, nil
}
