package starshipit

import (
	"context"
	"fmt"
	"time"
)

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnGetRates    func(ctx context.Context, req *RatesRequest) (*RatesResponse, error)
	OnCreateOrder func(ctx context.Context, req *OrderRequest) (*OrderResponse, error)
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{}
}

// GetRates returns mock delivery rates.
func (m *MockAPIClient) GetRates(ctx context.Context, req *RatesRequest) (*RatesResponse, error) {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}

	if m.SimulateErrors {
		return nil, &APIError{Message: "Simulated API error"}
	}

	if m.OnGetRates != nil {
		return m.OnGetRates(ctx, req)
	}

	return &RatesResponse{
		Success: true,
		Rates: []Rate{
			{ServiceName: "Standard Parcel", ServiceCode: "STD", TotalPrice: 13.80},
			{ServiceName: "Express Parcel", ServiceCode: "EXP", TotalPrice: 21.45},
		},
	}, nil
}

// CreateOrder creates a mock delivery order.
func (m *MockAPIClient) CreateOrder(ctx context.Context, req *OrderRequest) (*OrderResponse, error) {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}

	if m.SimulateErrors {
		return nil, &APIError{Message: "Simulated API error"}
	}

	if m.OnCreateOrder != nil {
		return m.OnCreateOrder(ctx, req)
	}

	now := time.Now()
	orderID := now.UnixNano() % 10000000
	trackingNumber := fmt.Sprintf("SSPL%09d", now.UnixNano()%1000000000)

	return &OrderResponse{
		Success: true,
		Order: &CreatedOrder{
			OrderID:        orderID,
			OrderNumber:    req.Order.OrderNumber,
			TrackingNumber: trackingNumber,
			TrackingURL:    fmt.Sprintf("https://track.starshipit.com/%s", trackingNumber),
			LabelURL:       fmt.Sprintf("https://api.starshipit.com/labels/%d.pdf", orderID),
			Status:         "Printed",
		},
	}, nil
}

var _ APIClient = (*MockAPIClient)(nil)
