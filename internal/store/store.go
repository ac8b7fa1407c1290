// Package store provides persistence for bookings, storefront orders and
// integrations. Two implementations exist: Postgres for production and
// Memory for tests and local development.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/nsjexpress/dispatch/internal/booking"
)

// Store is the persistence interface used by the orchestration services.
type Store interface {
	// Bookings
	CreateBooking(ctx context.Context, b *booking.Booking) error
	GetBooking(ctx context.Context, id string) (*booking.Booking, error)
	FindBookingByReference(ctx context.Context, reference string) (*booking.Booking, error)
	FindBookingByInvoiceID(ctx context.Context, invoiceID string) (*booking.Booking, error)
	FindBookingBySession(ctx context.Context, sessionID string) (*booking.Booking, error)

	// TransitionBooking loads the booking, applies ev through the state
	// machine and persists the result guarded on the previously read status.
	// The second return is false when the event was an idempotent no-op.
	TransitionBooking(ctx context.Context, id string, ev booking.Event, f booking.Fields) (*booking.Booking, bool, error)

	// Storefront orders
	UpsertStorefrontOrder(ctx context.Context, o *booking.StorefrontOrder) error
	GetStorefrontOrder(ctx context.Context, platform, externalOrderID string) (*booking.StorefrontOrder, error)
	FindStorefrontOrderByBooking(ctx context.Context, bookingID string) (*booking.StorefrontOrder, error)
	MarkStorefrontSynced(ctx context.Context, id, trackingNumber, trackingURL string, at time.Time) error

	// Integrations
	UpsertIntegration(ctx context.Context, in *booking.Integration) error
	GetIntegration(ctx context.Context, platform, shopDomain string) (*booking.Integration, error)
	GetIntegrationByID(ctx context.Context, id string) (*booking.Integration, error)
	MarkIntegrationSynced(ctx context.Context, id string, at time.Time) error
	MarkIntegrationError(ctx context.Context, id, message string) error
}

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a guarded write lost a race with a
// concurrent transition. Callers retry by re-reading.
var ErrConflict = errors.New("concurrent modification")
