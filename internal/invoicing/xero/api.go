package xero

import (
	"context"
)

// APIClient defines the interface for Xero accounting API operations.
// This abstraction allows for mock implementations during testing
// and real implementations in production.
type APIClient interface {
	// GetInvoice re-fetches an invoice by id. Webhook payloads only carry
	// the resource id; the authoritative status comes from this call.
	GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error)
}

// ============================================================================
// API Request/Response Types (match Xero Accounting API structure)
// ============================================================================

// Invoice statuses relevant to payment confirmation.
const (
	InvoiceStatusPaid       = "PAID"
	InvoiceStatusAuthorised = "AUTHORISED"
	InvoiceStatusVoided     = "VOIDED"
)

// InvoicesEnvelope represents the Xero invoice response envelope.
// GET /api.xro/2.0/Invoices/{id}
type InvoicesEnvelope struct {
	Invoices []Invoice `json:"Invoices"`
}

// Invoice represents a Xero invoice.
type Invoice struct {
	InvoiceID     string  `json:"InvoiceID"`
	InvoiceNumber string  `json:"InvoiceNumber"`
	Reference     string  `json:"Reference,omitempty"`
	Status        string  `json:"Status"`
	Total         float64 `json:"Total"`
	AmountDue     float64 `json:"AmountDue"`
	AmountPaid    float64 `json:"AmountPaid"`
	Contact       Contact `json:"Contact"`
}

// Contact is the invoice's billing contact.
type Contact struct {
	ContactID    string `json:"ContactID,omitempty"`
	Name         string `json:"Name"`
	EmailAddress string `json:"EmailAddress,omitempty"`
}

// APIError represents an error from the Xero API.
type APIError struct {
	Type       string `json:"Type,omitempty"`
	Message    string `json:"Message"`
	StatusCode int    `json:"-"`
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return e.Type + ": " + e.Message
	}
	return e.Message
}
