package stripe

import (
	"context"
	"time"
)

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnGetCheckoutSession func(ctx context.Context, sessionID string) (*CheckoutSession, error)
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{}
}

// GetCheckoutSession returns a mock session, paid by default.
func (m *MockAPIClient) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}

	if m.SimulateErrors {
		return nil, &APIError{Type: "api_error", Message: "Simulated API error", StatusCode: 500}
	}

	if m.OnGetCheckoutSession != nil {
		return m.OnGetCheckoutSession(ctx, sessionID)
	}

	return &CheckoutSession{
		ID:                sessionID,
		ClientReferenceID: "bk-1",
		PaymentStatus:     PaymentStatusPaid,
		Status:            "complete",
		AmountTotal:       1500,
		Currency:          "aud",
		CustomerEmail:     "jane@example.com",
	}, nil
}

var _ APIClient = (*MockAPIClient)(nil)
