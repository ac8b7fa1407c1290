package payments

import (
	"context"
	"testing"

	"github.com/nsjexpress/dispatch/internal/automation"
	"github.com/nsjexpress/dispatch/internal/booking"
	"github.com/nsjexpress/dispatch/internal/dispatch"
	"github.com/nsjexpress/dispatch/internal/invoicing/xero"
	"github.com/nsjexpress/dispatch/internal/notify"
	"github.com/nsjexpress/dispatch/internal/payments/stripe"
	"github.com/nsjexpress/dispatch/internal/store"
	shopifyfront "github.com/nsjexpress/dispatch/internal/storefront/shopify"
	"github.com/nsjexpress/dispatch/internal/telemetry"
	"github.com/nsjexpress/dispatch/internal/tracking"
	"github.com/nsjexpress/dispatch/pkg/carrier"
	"github.com/nsjexpress/dispatch/pkg/carrier/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

var testMetrics = telemetry.NewMetrics()

type bridgeFixture struct {
	store   *store.Memory
	xero    *xero.MockAPIClient
	stripe  *stripe.MockAPIClient
	carrier *mock.Client
	bridge  *Bridge
}

func newTestBridge(t *testing.T) *bridgeFixture {
	t.Helper()
	logger := otelzap.New(zap.NewNop())
	st := store.NewMemory()

	mockCarrier := mock.New("shippit")
	registry := carrier.NewRegistry()
	registry.Register(mockCarrier)

	relay := tracking.NewRelay(tracking.Config{}, st, shopifyfront.NewMockAPIClient(), logger, testMetrics)
	notifier := notify.NewClient(notify.Config{}, logger)
	publisher := automation.NewPublisher(automation.Config{}, logger)
	dispatcher := dispatch.NewDispatcher(dispatch.Config{Carrier: "shippit"}, st, registry, relay, notifier, publisher, logger, testMetrics)

	xeroMock := xero.NewMockAPIClient()
	stripeMock := stripe.NewMockAPIClient()

	return &bridgeFixture{
		store:   st,
		xero:    xeroMock,
		stripe:  stripeMock,
		carrier: mockCarrier,
		bridge:  NewBridge(st, xeroMock, stripeMock, dispatcher, logger, testMetrics),
	}
}

func seedBooking(t *testing.T, st *store.Memory, b *booking.Booking) *booking.Booking {
	t.Helper()
	if b.Status == "" {
		b.Status = booking.StatusPendingPayment
	}
	if b.PaymentStatus == "" {
		b.PaymentStatus = booking.PaymentPending
	}
	if b.DeliveryAddress == "" {
		b.DeliveryAddress = "10 George St, Sydney, NSW 2000"
	}
	require.NoError(t, st.CreateBooking(context.Background(), b))
	return b
}

func TestHandleInvoiceEvents_PaidInvoiceConfirmsAndDispatches(t *testing.T) {
	f := newTestBridge(t)
	ctx := context.Background()

	b := seedBooking(t, f.store, &booking.Booking{InvoiceID: "inv-1", ReferenceNumber: "SHOPIFY-#1001"})
	f.xero.OnGetInvoice = func(ctx context.Context, invoiceID string) (*xero.Invoice, error) {
		return &xero.Invoice{
			InvoiceID:     invoiceID,
			InvoiceNumber: "INV-0100",
			Status:        xero.InvoiceStatusPaid,
			AmountPaid:    42.50,
		}, nil
	}

	confirmed, err := f.bridge.HandleInvoiceEvents(ctx, []InvoiceEvent{
		{ResourceID: "inv-1", EventType: "UPDATE", EventCategory: "INVOICE"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, confirmed)

	got, err := f.store.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, booking.StatusSentToCarrier, got.Status)
	assert.Equal(t, "INV-0100", got.InvoiceNumber)
	assert.NotEmpty(t, got.TrackingNumber)
	assert.Equal(t, 42.50, got.EstimatedPrice)
}

func TestHandleInvoiceEvents_WebhookStatusNotTrusted(t *testing.T) {
	f := newTestBridge(t)
	ctx := context.Background()

	b := seedBooking(t, f.store, &booking.Booking{InvoiceID: "inv-2"})

	// The webhook claims an update, but the live invoice is still unpaid.
	f.xero.OnGetInvoice = func(ctx context.Context, invoiceID string) (*xero.Invoice, error) {
		return &xero.Invoice{InvoiceID: invoiceID, Status: xero.InvoiceStatusAuthorised, AmountDue: 15.00}, nil
	}

	confirmed, err := f.bridge.HandleInvoiceEvents(ctx, []InvoiceEvent{
		{ResourceID: "inv-2", EventType: "UPDATE", EventCategory: "INVOICE"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, confirmed)

	got, err := f.store.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.PaymentPending, got.PaymentStatus)
	assert.Equal(t, booking.StatusPendingPayment, got.Status)
	assert.Empty(t, got.TrackingNumber)
}

func TestHandleInvoiceEvents_IgnoresIrrelevantEvents(t *testing.T) {
	f := newTestBridge(t)
	fetched := false
	f.xero.OnGetInvoice = func(ctx context.Context, invoiceID string) (*xero.Invoice, error) {
		fetched = true
		return nil, &xero.APIError{Message: "should not be called", StatusCode: 500}
	}

	confirmed, err := f.bridge.HandleInvoiceEvents(context.Background(), []InvoiceEvent{
		{ResourceID: "c-1", EventType: "CREATE", EventCategory: "INVOICE"},
		{ResourceID: "ct-1", EventType: "UPDATE", EventCategory: "CONTACT"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, confirmed)
	assert.False(t, fetched)
}

func TestHandleInvoiceEvents_NoMatchingBookingIsSkip(t *testing.T) {
	f := newTestBridge(t)

	confirmed, err := f.bridge.HandleInvoiceEvents(context.Background(), []InvoiceEvent{
		{ResourceID: "inv-orphan", EventType: "UPDATE", EventCategory: "INVOICE"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, confirmed)
}

func TestHandleInvoiceEvents_FallsBackToReference(t *testing.T) {
	f := newTestBridge(t)
	ctx := context.Background()

	// Booking has no invoice linkage yet; correlation happens via reference.
	b := seedBooking(t, f.store, &booking.Booking{ReferenceNumber: "SHOPIFY-#2002"})
	f.xero.OnGetInvoice = func(ctx context.Context, invoiceID string) (*xero.Invoice, error) {
		return &xero.Invoice{
			InvoiceID:     invoiceID,
			InvoiceNumber: "INV-0200",
			Reference:     "SHOPIFY-#2002",
			Status:        xero.InvoiceStatusPaid,
		}, nil
	}

	confirmed, err := f.bridge.HandleInvoiceEvents(ctx, []InvoiceEvent{
		{ResourceID: "inv-3", EventType: "UPDATE", EventCategory: "INVOICE"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, confirmed)

	got, err := f.store.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "inv-3", got.InvoiceID)
	assert.Equal(t, booking.PaymentPaid, got.PaymentStatus)
}

func TestHandleInvoiceEvents_ReplayIsNoOp(t *testing.T) {
	f := newTestBridge(t)
	ctx := context.Background()

	b := seedBooking(t, f.store, &booking.Booking{InvoiceID: "inv-4"})
	f.xero.OnGetInvoice = func(ctx context.Context, invoiceID string) (*xero.Invoice, error) {
		return &xero.Invoice{InvoiceID: invoiceID, InvoiceNumber: "INV-0400", Status: xero.InvoiceStatusPaid}, nil
	}
	events := []InvoiceEvent{{ResourceID: "inv-4", EventType: "UPDATE", EventCategory: "INVOICE"}}

	confirmed, err := f.bridge.HandleInvoiceEvents(ctx, events)
	require.NoError(t, err)
	assert.Equal(t, 1, confirmed)

	first, err := f.store.GetBooking(ctx, b.ID)
	require.NoError(t, err)

	confirmed, err = f.bridge.HandleInvoiceEvents(ctx, events)
	require.NoError(t, err)
	assert.Equal(t, 0, confirmed)

	second, err := f.store.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, first.CarrierOrderID, second.CarrierOrderID)
	assert.Equal(t, first.TrackingNumber, second.TrackingNumber)
}

func TestHandleInvoiceEvents_MalformedEvent(t *testing.T) {
	f := newTestBridge(t)

	_, err := f.bridge.HandleInvoiceEvents(context.Background(), []InvoiceEvent{
		{EventType: "UPDATE", EventCategory: "INVOICE"},
	})
	assert.ErrorIs(t, err, booking.ErrMalformedEvent)
}

func TestHandleCheckoutCompleted_PaidSessionConfirmsAndDispatches(t *testing.T) {
	f := newTestBridge(t)
	ctx := context.Background()

	b := seedBooking(t, f.store, &booking.Booking{ID: "bk-100"})
	f.stripe.OnGetCheckoutSession = func(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error) {
		return &stripe.CheckoutSession{
			ID:                sessionID,
			ClientReferenceID: "bk-100",
			PaymentStatus:     stripe.PaymentStatusPaid,
			AmountTotal:       2750,
			Currency:          "aud",
		}, nil
	}

	require.NoError(t, f.bridge.HandleCheckoutCompleted(ctx, "cs_test_1"))

	got, err := f.store.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, "cs_test_1", got.PaymentSessionID)
	assert.Equal(t, 27.50, got.EstimatedPrice)
	assert.Equal(t, booking.StatusSentToCarrier, got.Status)

	// The session index lets later lookups resolve the booking.
	bySession, err := f.store.FindBookingBySession(ctx, "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, b.ID, bySession.ID)
}

func TestHandleCheckoutCompleted_UnpaidSessionIgnored(t *testing.T) {
	f := newTestBridge(t)
	ctx := context.Background()

	b := seedBooking(t, f.store, &booking.Booking{ID: "bk-101"})
	f.stripe.OnGetCheckoutSession = func(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error) {
		return &stripe.CheckoutSession{
			ID:                sessionID,
			ClientReferenceID: "bk-101",
			PaymentStatus:     "unpaid",
		}, nil
	}

	require.NoError(t, f.bridge.HandleCheckoutCompleted(ctx, "cs_test_2"))

	got, err := f.store.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.PaymentPending, got.PaymentStatus)
}

func TestHandleCheckoutCompleted_MissingSessionID(t *testing.T) {
	f := newTestBridge(t)
	err := f.bridge.HandleCheckoutCompleted(context.Background(), "")
	assert.ErrorIs(t, err, booking.ErrMalformedEvent)
}

func TestLookupSession(t *testing.T) {
	f := newTestBridge(t)

	session, err := f.bridge.LookupSession(context.Background(), "cs_test_3")
	require.NoError(t, err)
	assert.Equal(t, "cs_test_3", session.ID)

	_, err = f.bridge.LookupSession(context.Background(), "")
	assert.ErrorIs(t, err, booking.ErrMalformedEvent)
}
