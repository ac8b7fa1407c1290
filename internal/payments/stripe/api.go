package stripe

import (
	"context"
)

// APIClient defines the interface for Stripe API operations.
// This abstraction allows for mock implementations during testing
// and real implementations in production.
type APIClient interface {
	// GetCheckoutSession re-fetches a checkout session by id so payment
	// state is confirmed against the API, not the webhook payload alone.
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
}

// ============================================================================
// API Request/Response Types (match Stripe REST API structure)
// ============================================================================

// Payment statuses reported on a checkout session.
const (
	PaymentStatusPaid   = "paid"
	PaymentStatusUnpaid = "unpaid"
)

// CheckoutSession represents a Stripe Checkout session.
// GET /v1/checkout/sessions/{id}
type CheckoutSession struct {
	ID                string `json:"id"`
	ClientReferenceID string `json:"client_reference_id"`
	PaymentStatus     string `json:"payment_status"`
	Status            string `json:"status"`
	AmountTotal       int64  `json:"amount_total"` // minor units
	Currency          string `json:"currency"`
	CustomerEmail     string `json:"customer_email"`
}

// APIError represents an error from the Stripe API.
type APIError struct {
	Type       string `json:"type"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// errorEnvelope is Stripe's error wrapper.
type errorEnvelope struct {
	Error APIError `json:"error"`
}
