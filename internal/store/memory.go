package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nsjexpress/dispatch/internal/booking"
)

// Memory is an in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu           sync.Mutex
	bookings     map[string]booking.Booking
	byReference  map[string]string // reference -> booking id
	byInvoice    map[string]string // invoice id -> booking id
	bySession    map[string]string // payment session id -> booking id
	orders       map[string]booking.StorefrontOrder
	orderKey     map[string]string // platform+"/"+external id -> order id
	integrations map[string]booking.Integration
	intKey       map[string]string // platform+"/"+shop domain -> integration id
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		bookings:     map[string]booking.Booking{},
		byReference:  map[string]string{},
		byInvoice:    map[string]string{},
		bySession:    map[string]string{},
		orders:       map[string]booking.StorefrontOrder{},
		orderKey:     map[string]string{},
		integrations: map[string]booking.Integration{},
		intKey:       map[string]string{},
	}
}

func (m *Memory) CreateBooking(ctx context.Context, b *booking.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now

	m.bookings[b.ID] = *b
	m.index(*b)
	return nil
}

func (m *Memory) GetBooking(ctx context.Context, id string) (*booking.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (m *Memory) FindBookingByReference(ctx context.Context, reference string) (*booking.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookup(m.byReference, reference)
}

func (m *Memory) FindBookingByInvoiceID(ctx context.Context, invoiceID string) (*booking.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookup(m.byInvoice, invoiceID)
}

func (m *Memory) FindBookingBySession(ctx context.Context, sessionID string) (*booking.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookup(m.bySession, sessionID)
}

func (m *Memory) TransitionBooking(ctx context.Context, id string, ev booking.Event, f booking.Fields) (*booking.Booking, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return nil, false, ErrNotFound
	}

	updated, changed, err := booking.Apply(b, ev, f, time.Now().UTC())
	if err != nil {
		return nil, false, err
	}
	if changed {
		m.bookings[id] = updated
		m.index(updated)
	}
	return &updated, changed, nil
}

func (m *Memory) UpsertStorefrontOrder(ctx context.Context, o *booking.StorefrontOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := o.Platform + "/" + o.ExternalOrderID
	now := time.Now().UTC()

	if id, ok := m.orderKey[key]; ok {
		existing := m.orders[id]
		o.ID = existing.ID
		o.CreatedAt = existing.CreatedAt
		// Fulfilment state survives redelivered order webhooks
		if existing.Fulfilled {
			o.Fulfilled = true
			o.SyncedAt = existing.SyncedAt
			if o.TrackingNumber == "" {
				o.TrackingNumber = existing.TrackingNumber
				o.TrackingURL = existing.TrackingURL
			}
		}
	} else {
		if o.ID == "" {
			o.ID = uuid.New().String()
		}
		if o.CreatedAt.IsZero() {
			o.CreatedAt = now
		}
	}
	o.UpdatedAt = now

	m.orders[o.ID] = *o
	m.orderKey[key] = o.ID
	return nil
}

func (m *Memory) GetStorefrontOrder(ctx context.Context, platform, externalOrderID string) (*booking.StorefrontOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.orderKey[platform+"/"+externalOrderID]
	if !ok {
		return nil, ErrNotFound
	}
	o := m.orders[id]
	return &o, nil
}

func (m *Memory) FindStorefrontOrderByBooking(ctx context.Context, bookingID string) (*booking.StorefrontOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, o := range m.orders {
		if o.BookingID == bookingID {
			out := o
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) MarkStorefrontSynced(ctx context.Context, id, trackingNumber, trackingURL string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.TrackingNumber = trackingNumber
	o.TrackingURL = trackingURL
	o.Fulfilled = true
	o.SyncedAt = &at
	o.UpdatedAt = at
	m.orders[id] = o
	return nil
}

func (m *Memory) UpsertIntegration(ctx context.Context, in *booking.Integration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := in.Platform + "/" + in.ShopDomain
	now := time.Now().UTC()

	if id, ok := m.intKey[key]; ok {
		existing := m.integrations[id]
		in.ID = existing.ID
		in.CreatedAt = existing.CreatedAt
	} else {
		if in.ID == "" {
			in.ID = uuid.New().String()
		}
		if in.CreatedAt.IsZero() {
			in.CreatedAt = now
		}
	}
	in.UpdatedAt = now

	m.integrations[in.ID] = *in
	m.intKey[key] = in.ID
	return nil
}

func (m *Memory) GetIntegration(ctx context.Context, platform, shopDomain string) (*booking.Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.intKey[platform+"/"+shopDomain]
	if !ok {
		return nil, ErrNotFound
	}
	in := m.integrations[id]
	return &in, nil
}

func (m *Memory) GetIntegrationByID(ctx context.Context, id string) (*booking.Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	in, ok := m.integrations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &in, nil
}

func (m *Memory) MarkIntegrationSynced(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	in, ok := m.integrations[id]
	if !ok {
		return ErrNotFound
	}
	in.Status = booking.IntegrationConnected
	in.LastSyncAt = &at
	in.LastError = ""
	in.UpdatedAt = at
	m.integrations[id] = in
	return nil
}

func (m *Memory) MarkIntegrationError(ctx context.Context, id, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	in, ok := m.integrations[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	in.Status = booking.IntegrationError
	in.LastError = message
	in.UpdatedAt = now
	m.integrations[id] = in
	return nil
}

// index refreshes the secondary lookups for b. Caller holds the lock.
func (m *Memory) index(b booking.Booking) {
	if b.ReferenceNumber != "" {
		m.byReference[b.ReferenceNumber] = b.ID
	}
	if b.InvoiceID != "" {
		m.byInvoice[b.InvoiceID] = b.ID
	}
	if b.PaymentSessionID != "" {
		m.bySession[b.PaymentSessionID] = b.ID
	}
}

// lookup resolves a secondary index hit. Caller holds the lock.
func (m *Memory) lookup(idx map[string]string, key string) (*booking.Booking, error) {
	if key == "" {
		return nil, ErrNotFound
	}
	id, ok := idx[key]
	if !ok {
		return nil, ErrNotFound
	}
	b := m.bookings[id]
	return &b, nil
}

var _ Store = (*Memory)(nil)
