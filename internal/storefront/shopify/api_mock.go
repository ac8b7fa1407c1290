package shopify

import (
	"context"
	"strconv"
	"time"
)

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnCreateFulfillment func(ctx context.Context, creds Credentials, orderID string, req *FulfillmentRequest) (*FulfillmentResponse, error)
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{}
}

// CreateFulfillment records a mock fulfilment.
func (m *MockAPIClient) CreateFulfillment(ctx context.Context, creds Credentials, orderID string, req *FulfillmentRequest) (*FulfillmentResponse, error) {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}

	if m.SimulateErrors {
		return nil, &APIError{Message: "Simulated API error", StatusCode: 500}
	}

	if m.OnCreateFulfillment != nil {
		return m.OnCreateFulfillment(ctx, creds, orderID, req)
	}

	oid, _ := strconv.ParseInt(orderID, 10, 64)
	return &FulfillmentResponse{
		Fulfillment: CreatedFulfillment{
			ID:             time.Now().UnixNano() % 10000000,
			OrderID:        oid,
			Status:         "success",
			TrackingNumber: req.Fulfillment.TrackingNumber,
		},
	}, nil
}

var _ APIClient = (*MockAPIClient)(nil)
