package gateway

import (
	"context"
	"sync"
	"testing"

	"github.com/nsjexpress/dispatch/internal/automation"
	"github.com/nsjexpress/dispatch/internal/booking"
	"github.com/nsjexpress/dispatch/internal/dispatch"
	"github.com/nsjexpress/dispatch/internal/notify"
	"github.com/nsjexpress/dispatch/internal/store"
	"github.com/nsjexpress/dispatch/internal/storefront/shopify"
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

// memoryDeduper remembers webhook ids so tests can exercise the duplicate
// path without Redis.
type memoryDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemoryDeduper() *memoryDeduper {
	return &memoryDeduper{seen: map[string]bool{}}
}

func (d *memoryDeduper) FirstDelivery(ctx context.Context, source, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := source + ":" + eventID
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

type gatewayFixture struct {
	store   *store.Memory
	carrier *mock.Client
	deduper *memoryDeduper
	gateway *Gateway
}

func newTestGateway(t *testing.T) *gatewayFixture {
	t.Helper()
	logger := otelzap.New(zap.NewNop())
	st := store.NewMemory()

	mockCarrier := mock.New("shippit")
	registry := carrier.NewRegistry()
	registry.Register(mockCarrier)

	relay := tracking.NewRelay(tracking.Config{}, st, shopify.NewMockAPIClient(), logger, testMetrics)
	notifier := notify.NewClient(notify.Config{}, logger)
	publisher := automation.NewPublisher(automation.Config{}, logger)
	dispatcher := dispatch.NewDispatcher(dispatch.Config{Carrier: "shippit"}, st, registry, relay, notifier, publisher, logger, testMetrics)

	deduper := newMemoryDeduper()
	return &gatewayFixture{
		store:   st,
		carrier: mockCarrier,
		deduper: deduper,
		gateway: New(st, deduper, dispatcher, logger, testMetrics),
	}
}

func paidShopifyOrder() *ShopifyOrder {
	return &ShopifyOrder{
		ID:              820982911946154508,
		Name:            "#1001",
		OrderNumber:     1001,
		Email:           "jane@example.com",
		FinancialStatus: "paid",
		TotalPrice:      "27.50",
		TotalWeight:     2500,
		Customer: ShopifyCustomer{
			FirstName: "Jane",
			LastName:  "Smith",
			Phone:     "+61400000000",
		},
		ShippingAddress: &ShopifyAddress{
			Address1:     "10 George St",
			City:         "Sydney",
			ProvinceCode: "NSW",
			Zip:          "2000",
		},
		LineItems: []ShopifyLineItem{
			{Title: "Widget", Quantity: 2, Grams: 1000},
			{Title: "Gadget", Quantity: 1, Grams: 500},
		},
	}
}

func TestHandleShopifyOrder_PaidOrderDispatchesImmediately(t *testing.T) {
	f := newTestGateway(t)
	ctx := context.Background()

	var captured *carrier.CreateOrderRequest
	f.carrier.OnCreateOrder = func(ctx context.Context, req *carrier.CreateOrderRequest) (*carrier.CreateOrderResponse, error) {
		captured = req
		return &carrier.CreateOrderResponse{
			Carrier:        "shippit",
			OrderID:        "sht-1",
			TrackingNumber: "PPS123456",
		}, nil
	}

	b, err := f.gateway.HandleShopifyOrder(ctx, "demo.myshopify.com", "wh-1", paidShopifyOrder())
	require.NoError(t, err)

	assert.Equal(t, booking.StatusSentToCarrier, b.Status)
	assert.Equal(t, booking.PaymentPaid, b.PaymentStatus)
	assert.Equal(t, "SHOPIFY-#1001", b.ReferenceNumber)
	assert.Equal(t, "PPS123456", b.TrackingNumber)
	assert.Equal(t, 2.5, b.PackageWeightKG)
	assert.Equal(t, 27.50, b.EstimatedPrice)

	require.NotNil(t, captured)
	assert.Equal(t, "SHOPIFY-#1001", captured.Reference)
	assert.Equal(t, "2000", captured.Delivery.Postcode)
	assert.Equal(t, "NSW", captured.Delivery.State)
	assert.Equal(t, "Jane Smith", captured.Customer.Name)
}

func TestHandleShopifyOrder_PendingOrderNeverContactsCarrier(t *testing.T) {
	f := newTestGateway(t)
	ctx := context.Background()

	carrierCalls := 0
	f.carrier.OnCreateOrder = func(ctx context.Context, req *carrier.CreateOrderRequest) (*carrier.CreateOrderResponse, error) {
		carrierCalls++
		return nil, nil
	}

	order := paidShopifyOrder()
	order.FinancialStatus = "pending"

	b, err := f.gateway.HandleShopifyOrder(ctx, "demo.myshopify.com", "wh-2", order)
	require.NoError(t, err)

	assert.Equal(t, booking.StatusPendingPayment, b.Status)
	assert.Equal(t, booking.PaymentPending, b.PaymentStatus)
	assert.Empty(t, b.TrackingNumber)
	assert.Zero(t, carrierCalls)

	// The storefront order link exists even while payment is outstanding.
	so, err := f.store.GetStorefrontOrder(ctx, "shopify", "820982911946154508")
	require.NoError(t, err)
	assert.Equal(t, b.ID, so.BookingID)
}

func TestHandleShopifyOrder_RedeliveryConvergesOnOneBooking(t *testing.T) {
	f := newTestGateway(t)
	ctx := context.Background()

	carrierCalls := 0
	f.carrier.OnCreateOrder = func(ctx context.Context, req *carrier.CreateOrderRequest) (*carrier.CreateOrderResponse, error) {
		carrierCalls++
		return &carrier.CreateOrderResponse{Carrier: "shippit", OrderID: "sht-9", TrackingNumber: "PPS9"}, nil
	}

	var first *booking.Booking
	for i := 0; i < 4; i++ {
		b, err := f.gateway.HandleShopifyOrder(ctx, "demo.myshopify.com", "wh-3", paidShopifyOrder())
		require.NoError(t, err)
		if first == nil {
			first = b
		}
		assert.Equal(t, first.ID, b.ID)
	}

	assert.Equal(t, 1, carrierCalls)

	so, err := f.store.GetStorefrontOrder(ctx, "shopify", "820982911946154508")
	require.NoError(t, err)
	assert.Equal(t, first.ID, so.BookingID)
}

func TestHandleShopifyOrder_DistinctWebhookIDsStillOneBooking(t *testing.T) {
	// Shopify redeliveries can arrive under fresh webhook ids; convergence
	// must not depend on the dedup cache.
	f := newTestGateway(t)
	ctx := context.Background()

	b1, err := f.gateway.HandleShopifyOrder(ctx, "demo.myshopify.com", "wh-a", paidShopifyOrder())
	require.NoError(t, err)
	b2, err := f.gateway.HandleShopifyOrder(ctx, "demo.myshopify.com", "wh-b", paidShopifyOrder())
	require.NoError(t, err)

	assert.Equal(t, b1.ID, b2.ID)
	assert.Equal(t, b1.CarrierOrderID, b2.CarrierOrderID)
}

func TestHandleShopifyOrder_PaymentArrivesOnRedelivery(t *testing.T) {
	f := newTestGateway(t)
	ctx := context.Background()

	order := paidShopifyOrder()
	order.FinancialStatus = "pending"
	b1, err := f.gateway.HandleShopifyOrder(ctx, "demo.myshopify.com", "wh-4", order)
	require.NoError(t, err)
	assert.Equal(t, booking.PaymentPending, b1.PaymentStatus)

	order.FinancialStatus = "paid"
	b2, err := f.gateway.HandleShopifyOrder(ctx, "demo.myshopify.com", "wh-5", order)
	require.NoError(t, err)

	assert.Equal(t, b1.ID, b2.ID)
	assert.Equal(t, booking.PaymentPaid, b2.PaymentStatus)
	assert.Equal(t, booking.StatusSentToCarrier, b2.Status)
	assert.NotEmpty(t, b2.TrackingNumber)
}

func TestHandleShopifyOrder_Malformed(t *testing.T) {
	f := newTestGateway(t)
	ctx := context.Background()

	_, err := f.gateway.HandleShopifyOrder(ctx, "", "wh-6", paidShopifyOrder())
	assert.ErrorIs(t, err, booking.ErrMalformedEvent)

	_, err = f.gateway.HandleShopifyOrder(ctx, "demo.myshopify.com", "wh-7", &ShopifyOrder{})
	assert.ErrorIs(t, err, booking.ErrMalformedEvent)

	_, err = f.gateway.HandleShopifyOrder(ctx, "demo.myshopify.com", "wh-8", nil)
	assert.ErrorIs(t, err, booking.ErrMalformedEvent)
}

func TestHandleShopifyOrder_DispatchFailureSurfacesForRedelivery(t *testing.T) {
	f := newTestGateway(t)
	ctx := context.Background()

	f.carrier.OnCreateOrder = func(ctx context.Context, req *carrier.CreateOrderRequest) (*carrier.CreateOrderResponse, error) {
		return nil, carrier.NewError("shippit", "SERVICE_UNAVAILABLE", "upstream down").WithRetryable(true)
	}

	_, err := f.gateway.HandleShopifyOrder(ctx, "demo.myshopify.com", "wh-9", paidShopifyOrder())
	require.Error(t, err)

	// Payment confirmation survived; only the carrier leg failed.
	b, err := f.store.FindBookingByReference(ctx, "SHOPIFY-#1001")
	require.NoError(t, err)
	assert.Equal(t, booking.PaymentPaid, b.PaymentStatus)
	assert.Empty(t, b.TrackingNumber)

	// Redelivery retries the dispatch and completes.
	f.carrier.OnCreateOrder = nil
	b2, err := f.gateway.HandleShopifyOrder(ctx, "demo.myshopify.com", "wh-10", paidShopifyOrder())
	require.NoError(t, err)
	assert.Equal(t, booking.StatusSentToCarrier, b2.Status)
	assert.NotEmpty(t, b2.TrackingNumber)
}

func TestHandleShopifyOrder_SameWebhookIDRetriesFailedDispatch(t *testing.T) {
	// Shopify redelivers under the same webhook id; the dedup cache must not
	// swallow the retry while the booking is still waiting on a carrier order.
	f := newTestGateway(t)
	ctx := context.Background()

	f.carrier.OnCreateOrder = func(ctx context.Context, req *carrier.CreateOrderRequest) (*carrier.CreateOrderResponse, error) {
		return nil, carrier.NewError("shippit", "SERVICE_UNAVAILABLE", "upstream down").WithRetryable(true)
	}

	_, err := f.gateway.HandleShopifyOrder(ctx, "demo.myshopify.com", "wh-12", paidShopifyOrder())
	require.Error(t, err)

	f.carrier.OnCreateOrder = nil
	b, err := f.gateway.HandleShopifyOrder(ctx, "demo.myshopify.com", "wh-12", paidShopifyOrder())
	require.NoError(t, err)
	assert.Equal(t, booking.StatusSentToCarrier, b.Status)
	assert.NotEmpty(t, b.TrackingNumber)
}

func TestHandleShopifyOrder_SettledDuplicateSkipsIngest(t *testing.T) {
	f := newTestGateway(t)
	ctx := context.Background()

	carrierCalls := 0
	f.carrier.OnCreateOrder = func(ctx context.Context, req *carrier.CreateOrderRequest) (*carrier.CreateOrderResponse, error) {
		carrierCalls++
		return &carrier.CreateOrderResponse{Carrier: "shippit", OrderID: "sht-3", TrackingNumber: "PPS3"}, nil
	}

	b1, err := f.gateway.HandleShopifyOrder(ctx, "demo.myshopify.com", "wh-13", paidShopifyOrder())
	require.NoError(t, err)
	require.Equal(t, booking.StatusSentToCarrier, b1.Status)

	b2, err := f.gateway.HandleShopifyOrder(ctx, "demo.myshopify.com", "wh-13", paidShopifyOrder())
	require.NoError(t, err)
	assert.Equal(t, b1.ID, b2.ID)
	assert.Equal(t, 1, carrierCalls)
}

func TestHandleShopifyOrder_RegistersIntegrationOnFirstContact(t *testing.T) {
	f := newTestGateway(t)
	ctx := context.Background()

	_, err := f.gateway.HandleShopifyOrder(ctx, "demo.myshopify.com", "wh-11", paidShopifyOrder())
	require.NoError(t, err)

	integration, err := f.store.GetIntegration(ctx, "shopify", "demo.myshopify.com")
	require.NoError(t, err)
	assert.Equal(t, booking.IntegrationConnected, integration.Status)
	assert.True(t, integration.AutoDispatch)
	require.NotNil(t, integration.LastSyncAt, "a processed webhook records a sync")
}

func TestHandleOrderEvent_GenericPlatform(t *testing.T) {
	f := newTestGateway(t)
	ctx := context.Background()

	b, err := f.gateway.HandleOrderEvent(ctx, &OrderEvent{
		Platform:        "woocommerce",
		ShopDomain:      "shop.example.com",
		ExternalOrderID: "7001",
		OrderNumber:     "7001",
		FinancialStatus: "paid",
		CustomerName:    "Bob Jones",
		CustomerEmail:   "bob@example.com",
		DeliveryAddress: "5 Queen St, Melbourne, VIC 3000",
		OrderTotal:      19.95,
		ItemCount:       1,
	})
	require.NoError(t, err)

	assert.Equal(t, "WOOCOMMERCE-7001", b.ReferenceNumber)
	assert.Equal(t, booking.StatusSentToCarrier, b.Status)
	assert.Equal(t, 19.95, b.EstimatedPrice)
}

func TestHandleOrderEvent_Defaults(t *testing.T) {
	f := newTestGateway(t)
	ctx := context.Background()

	b, err := f.gateway.HandleOrderEvent(ctx, &OrderEvent{
		Platform:        "shopify",
		ShopDomain:      "demo.myshopify.com",
		ExternalOrderID: "9001",
		OrderNumber:     "#9001",
		FinancialStatus: "pending",
		ItemCount:       3,
	})
	require.NoError(t, err)

	assert.Equal(t, 3*DefaultItemWeightKG, b.PackageWeightKG)
	assert.Equal(t, DefaultPriceAUD, b.EstimatedPrice)
	assert.Equal(t, dispatch.DefaultLengthCM, b.PackageLengthCM)
	assert.Equal(t, dispatch.DefaultHeightCM, b.PackageHeightCM)
	assert.Equal(t, 3, b.Quantity)
}

func TestHandleOrderEvent_RateQuoteBackfillsPrice(t *testing.T) {
	f := newTestGateway(t)
	ctx := context.Background()

	f.carrier.OnGetRate = func(ctx context.Context, req *carrier.RateRequest) (*carrier.RateResponse, error) {
		assert.Equal(t, "3000", req.ToPostcode)
		return &carrier.RateResponse{Carrier: "shippit", Amount: 22.40, Currency: "AUD"}, nil
	}

	b, err := f.gateway.HandleOrderEvent(ctx, &OrderEvent{
		Platform:         "shopify",
		ShopDomain:       "demo.myshopify.com",
		ExternalOrderID:  "9100",
		OrderNumber:      "#9100",
		FinancialStatus:  "pending",
		DeliveryPostcode: "3000",
	})
	require.NoError(t, err)
	assert.Equal(t, 22.40, b.EstimatedPrice)
}

func TestHandleOrderEvent_QuoteFailureFallsBackToDefault(t *testing.T) {
	f := newTestGateway(t)
	ctx := context.Background()

	f.carrier.OnGetRate = func(ctx context.Context, req *carrier.RateRequest) (*carrier.RateResponse, error) {
		return nil, carrier.NewError("shippit", "HTTP_500", "quote failed")
	}

	b, err := f.gateway.HandleOrderEvent(ctx, &OrderEvent{
		Platform:        "shopify",
		ShopDomain:      "demo.myshopify.com",
		ExternalOrderID: "9101",
		OrderNumber:     "#9101",
		FinancialStatus: "pending",
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultPriceAUD, b.EstimatedPrice)
}

func TestHandleOrderEvent_Malformed(t *testing.T) {
	f := newTestGateway(t)

	_, err := f.gateway.HandleOrderEvent(context.Background(), nil)
	assert.ErrorIs(t, err, booking.ErrMalformedEvent)

	_, err = f.gateway.HandleOrderEvent(context.Background(), &OrderEvent{Platform: "shopify"})
	assert.ErrorIs(t, err, booking.ErrMalformedEvent)
}
