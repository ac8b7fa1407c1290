package xero

import (
	"context"
	"time"
)

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnGetInvoice func(ctx context.Context, invoiceID string) (*Invoice, error)
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{}
}

// GetInvoice returns a mock invoice, paid by default.
func (m *MockAPIClient) GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}

	if m.SimulateErrors {
		return nil, &APIError{Message: "Simulated API error", StatusCode: 500}
	}

	if m.OnGetInvoice != nil {
		return m.OnGetInvoice(ctx, invoiceID)
	}

	return &Invoice{
		InvoiceID:     invoiceID,
		InvoiceNumber: "INV-0042",
		Status:        InvoiceStatusPaid,
		Total:         15.00,
		AmountDue:     0,
		AmountPaid:    15.00,
		Contact:       Contact{Name: "Jane Smith", EmailAddress: "jane@example.com"},
	}, nil
}

var _ APIClient = (*MockAPIClient)(nil)
