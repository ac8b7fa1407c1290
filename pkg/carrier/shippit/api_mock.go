package shippit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnGetQuote    func(ctx context.Context, req *QuoteRequest) (*QuoteResponse, error)
	OnCreateOrder func(ctx context.Context, req *OrderRequest) (*OrderResponse, error)
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{}
}

// GetQuote returns mock delivery quotes.
func (m *MockAPIClient) GetQuote(ctx context.Context, req *QuoteRequest) (*QuoteResponse, error) {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}

	if m.SimulateErrors {
		return nil, &APIError{Code: "MOCK_ERROR", Message: "Simulated API error"}
	}

	if m.OnGetQuote != nil {
		return m.OnGetQuote(ctx, req)
	}

	return &QuoteResponse{
		Response: []QuoteOption{
			{
				CourierType: "standard",
				Quotes: []Quote{
					{Price: 12.35, EstimatedTransitTime: "3 business days"},
				},
			},
			{
				CourierType: "express",
				Quotes: []Quote{
					{Price: 18.90, EstimatedTransitTime: "1 business day"},
				},
			},
		},
	}, nil
}

// CreateOrder books a mock delivery order.
func (m *MockAPIClient) CreateOrder(ctx context.Context, req *OrderRequest) (*OrderResponse, error) {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}

	if m.SimulateErrors {
		return nil, &APIError{Code: "MOCK_ERROR", Message: "Simulated API error"}
	}

	if m.OnCreateOrder != nil {
		return m.OnCreateOrder(ctx, req)
	}

	orderID := "sht-" + uuid.New().String()[:8]
	trackingNumber := fmt.Sprintf("PPS%d", 100000000+time.Now().UnixNano()%900000000)

	return &OrderResponse{
		Response: &OrderResult{
			ID:             orderID,
			TrackingNumber: trackingNumber,
			TrackingURL:    fmt.Sprintf("https://app.shippit.com/tracking/%s", trackingNumber),
			State:          "order_placed",
			CourierType:    req.Order.CourierType,
		},
	}, nil
}

var _ APIClient = (*MockAPIClient)(nil)
