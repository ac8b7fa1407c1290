// Package booking holds the canonical shipment record and its state machine.
package booking

import (
	"time"
)

// Status is the business lifecycle of a booking.
type Status string

const (
	StatusPendingPayment Status = "pending_payment"
	StatusPaid           Status = "paid"
	StatusConfirmed      Status = "confirmed"
	StatusDispatching    Status = "dispatching"
	StatusSentToCarrier  Status = "sent_to_carrier"
	StatusFulfilled      Status = "fulfilled"
	StatusError          Status = "error"
)

// PaymentStatus is the financial lifecycle, tracked independently of Status.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// rank orders the business lifecycle so payment confirmation never moves
// the status backward. StatusError sits outside the ordering and is
// reachable from anywhere; abort_dispatch is the one deliberate step back.
var rank = map[Status]int{
	StatusPendingPayment: 0,
	StatusPaid:           1,
	StatusConfirmed:      2,
	StatusDispatching:    3,
	StatusSentToCarrier:  4,
	StatusFulfilled:      5,
}

// Booking is the central entity: a shipment tracked through payment and
// carrier dispatch. Mutated only through the state machine's Apply contract.
type Booking struct {
	ID               string
	PickupAddress    string
	PickupPostcode   string
	DeliveryAddress  string
	DeliveryPostcode string

	PackageWeightKG float64
	PackageLengthCM float64
	PackageWidthCM  float64
	PackageHeightCM float64
	Quantity        int
	Description     string

	CustomerName  string
	CustomerEmail string
	CustomerPhone string

	Status        Status
	PaymentStatus PaymentStatus

	EstimatedPrice float64

	// Carrier linkage, set by the dispatch_to_carrier transition.
	CarrierOrderID string
	TrackingNumber string
	LabelURL       string

	// Invoice linkage, set when an invoice is raised for the booking.
	InvoiceID     string
	InvoiceNumber string

	// PaymentSessionID links a checkout session once payment completes.
	PaymentSessionID string

	// ReferenceNumber correlates the booking with the originating platform
	// order (e.g. "SHOPIFY-#1001"). Unique per source platform.
	ReferenceNumber string

	CreatedAt     time.Time
	PaidAt        *time.Time
	CarrierSentAt *time.Time
	UpdatedAt     time.Time
}

// StorefrontOrder links a booking back to the platform order it came from.
// At most one per (platform, external order id) pair.
type StorefrontOrder struct {
	ID              string
	IntegrationID   string
	Platform        string
	ExternalOrderID string
	OrderNumber     string
	BookingID       string
	CustomerName    string
	CustomerEmail   string
	OrderTotal      float64
	TrackingNumber  string
	TrackingURL     string
	Fulfilled       bool
	SyncedAt        *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IntegrationStatus is the connection state of an external account.
type IntegrationStatus string

const (
	IntegrationConnected    IntegrationStatus = "connected"
	IntegrationDisconnected IntegrationStatus = "disconnected"
	IntegrationError        IntegrationStatus = "error"
)

// Integration is a connected external account (a store or accounting tenant).
type Integration struct {
	ID           string
	Platform     string
	ShopDomain   string
	Status       IntegrationStatus
	AccessToken  string
	AutoDispatch bool
	LastSyncAt   *time.Time
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DispatchResult is the outcome of a carrier dispatch. It is folded into the
// booking on success and never persisted on its own.
type DispatchResult struct {
	Success        bool
	Carrier        string
	CarrierOrderID string
	TrackingNumber string
	TrackingURL    string
	LabelURL       string
	RawError       string
}
