// Package gateway turns inbound storefront webhooks into validated booking
// mutations. Ingestion is idempotent: redelivering the same order event any
// number of times converges on one booking and one storefront order.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nsjexpress/dispatch/internal/booking"
	"github.com/nsjexpress/dispatch/internal/cache"
	"github.com/nsjexpress/dispatch/internal/dispatch"
	"github.com/nsjexpress/dispatch/internal/store"
	"github.com/nsjexpress/dispatch/internal/telemetry"
	"github.com/nsjexpress/dispatch/pkg/carrier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// DefaultPriceAUD is charged when the source platform carries no usable
// order total. A deliberate fallback, matched to the standard-carton rate.
const DefaultPriceAUD = 15.00

// DefaultItemWeightKG is assumed per line item when the platform reports no
// parcel weight at all.
const DefaultItemWeightKG = 1.0

// Gateway ingests storefront order events.
type Gateway struct {
	store      store.Store
	deduper    cache.Deduper
	dispatcher *dispatch.Dispatcher
	logger     *otelzap.Logger
	metrics    *telemetry.Metrics
}

// New creates a gateway.
func New(st store.Store, deduper cache.Deduper, dispatcher *dispatch.Dispatcher, logger *otelzap.Logger, metrics *telemetry.Metrics) *Gateway {
	return &Gateway{
		store:      st,
		deduper:    deduper,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
	}
}

// HandleShopifyOrder ingests a Shopify order webhook. shopDomain and the
// order id form the correlation key; webhookID (X-Shopify-Webhook-Id) feeds
// the best-effort dedup cache. A paid order on an auto-dispatch integration
// is dispatched before returning; a dispatch failure comes back as an error
// so the webhook sender redelivers, with the booking left in its last good
// state.
func (g *Gateway) HandleShopifyOrder(ctx context.Context, shopDomain, webhookID string, order *ShopifyOrder) (*booking.Booking, error) {
	if shopDomain == "" || order == nil || order.ID == 0 {
		g.metrics.RecordWebhook("shopify", "malformed")
		return nil, fmt.Errorf("%w: shopify order event requires shop domain and order id", booking.ErrMalformedEvent)
	}

	ev := shopifyToOrderEvent(shopDomain, order)

	first, err := g.deduper.FirstDelivery(ctx, "shopify", webhookID)
	if err != nil {
		g.logger.Warn("Webhook dedup lookup failed, processing anyway", zap.Error(err))
	}
	if !first {
		if b, err := g.store.FindBookingByReference(ctx, ev.Reference()); err == nil && settled(ev, b) {
			g.logger.Info("Duplicate shopify webhook skipped",
				zap.String("shop_domain", shopDomain),
				zap.String("webhook_id", webhookID),
			)
			g.metrics.RecordWebhook("shopify", "duplicate")
			return b, nil
		}
		// Seen before but the prior delivery didn't finish the job: either
		// no booking exists or a paid order is still waiting on dispatch.
		// Process this one fully.
	}

	return g.ingest(ctx, ev)
}

// settled reports whether a redelivered event has nothing left to do:
// either the order isn't paid, or its booking already went to the carrier.
// A paid order still short of dispatch must re-run ingestion so the dispatch
// attempt is retried.
func settled(ev *OrderEvent, b *booking.Booking) bool {
	if !ev.Paid() {
		return true
	}
	return b.Status == booking.StatusSentToCarrier || b.Status == booking.StatusFulfilled
}

// HandleOrderEvent ingests a platform-generic order event (the universal
// order webhook).
func (g *Gateway) HandleOrderEvent(ctx context.Context, ev *OrderEvent) (*booking.Booking, error) {
	if ev == nil || ev.Platform == "" || ev.ExternalOrderID == "" {
		g.metrics.RecordWebhook("orders", "malformed")
		return nil, fmt.Errorf("%w: order event requires platform and external order id", booking.ErrMalformedEvent)
	}
	return g.ingest(ctx, ev)
}

// OrderEvent is the normalized inbound order, shared by all platforms.
type OrderEvent struct {
	Platform         string  `json:"platform"`
	ShopDomain       string  `json:"shop_domain"`
	ExternalOrderID  string  `json:"external_order_id"`
	OrderNumber      string  `json:"order_number"`
	FinancialStatus  string  `json:"financial_status"`
	CustomerName     string  `json:"customer_name"`
	CustomerEmail    string  `json:"customer_email"`
	CustomerPhone    string  `json:"customer_phone"`
	DeliveryAddress  string  `json:"delivery_address"`
	DeliveryPostcode string  `json:"delivery_postcode"`
	WeightKG         float64 `json:"weight_kg"`
	ItemCount        int     `json:"item_count"`
	Description      string  `json:"description"`
	OrderTotal       float64 `json:"order_total"`
}

// Paid reports whether the platform considers the order settled.
func (ev *OrderEvent) Paid() bool {
	return strings.EqualFold(ev.FinancialStatus, "paid")
}

// Reference is the cross-system correlation key for the order.
func (ev *OrderEvent) Reference() string {
	return strings.ToUpper(ev.Platform) + "-" + ev.OrderNumber
}

func (g *Gateway) ingest(ctx context.Context, ev *OrderEvent) (*booking.Booking, error) {
	integration, err := g.ensureIntegration(ctx, ev)
	if err != nil {
		return nil, err
	}

	b, err := g.ensureBooking(ctx, ev)
	if err != nil {
		return nil, err
	}

	order := &booking.StorefrontOrder{
		IntegrationID:   integration.ID,
		Platform:        ev.Platform,
		ExternalOrderID: ev.ExternalOrderID,
		OrderNumber:     ev.OrderNumber,
		BookingID:       b.ID,
		CustomerName:    ev.CustomerName,
		CustomerEmail:   ev.CustomerEmail,
		OrderTotal:      ev.OrderTotal,
	}
	if err := g.store.UpsertStorefrontOrder(ctx, order); err != nil {
		return nil, err
	}

	if ev.Paid() && b.PaymentStatus != booking.PaymentPaid {
		b, _, err = g.store.TransitionBooking(ctx, b.ID, booking.EventConfirmPayment, booking.Fields{
			PaymentAmount: ev.OrderTotal,
		})
		if err != nil {
			return nil, err
		}
	}

	g.metrics.RecordWebhook(ev.Platform, "ok")

	// The webhook doubles as a liveness signal for the shop connection.
	if err := g.store.MarkIntegrationSynced(ctx, integration.ID, time.Now().UTC()); err != nil {
		g.logger.Warn("Failed to record integration sync",
			zap.String("integration_id", integration.ID), zap.Error(err))
	}

	if ev.Paid() && integration.AutoDispatch {
		if _, err := g.dispatcher.Dispatch(ctx, b.ID); err != nil {
			// Redelivery of an already-dispatched order no-ops inside
			// Dispatch, so surfacing the failure here is retry-safe.
			return b, err
		}
		return g.store.GetBooking(ctx, b.ID)
	}

	return b, nil
}

// ensureIntegration resolves the integration for the event's shop, creating
// one with auto_dispatch enabled on first contact.
func (g *Gateway) ensureIntegration(ctx context.Context, ev *OrderEvent) (*booking.Integration, error) {
	integration, err := g.store.GetIntegration(ctx, ev.Platform, ev.ShopDomain)
	if err == nil {
		return integration, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	integration = &booking.Integration{
		Platform:     ev.Platform,
		ShopDomain:   ev.ShopDomain,
		Status:       booking.IntegrationConnected,
		AutoDispatch: true,
	}
	if err := g.store.UpsertIntegration(ctx, integration); err != nil {
		return nil, err
	}
	g.logger.Info("Integration registered",
		zap.String("platform", ev.Platform),
		zap.String("shop_domain", ev.ShopDomain),
	)
	return integration, nil
}

// ensureBooking resolves the booking by reference, creating it on first
// delivery. A paid order lands directly in confirmed/paid.
func (g *Gateway) ensureBooking(ctx context.Context, ev *OrderEvent) (*booking.Booking, error) {
	if b, err := g.store.FindBookingByReference(ctx, ev.Reference()); err == nil {
		return b, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	b := &booking.Booking{
		DeliveryAddress:  ev.DeliveryAddress,
		DeliveryPostcode: ev.DeliveryPostcode,
		PackageWeightKG:  derivedWeight(ev),
		PackageLengthCM:  dispatch.DefaultLengthCM,
		PackageWidthCM:   dispatch.DefaultWidthCM,
		PackageHeightCM:  dispatch.DefaultHeightCM,
		Quantity:         maxInt(ev.ItemCount, 1),
		Description:      ev.Description,
		CustomerName:     ev.CustomerName,
		CustomerEmail:    ev.CustomerEmail,
		CustomerPhone:    ev.CustomerPhone,
		Status:           booking.StatusPendingPayment,
		PaymentStatus:    booking.PaymentPending,
		EstimatedPrice:   g.derivedPrice(ctx, ev),
		ReferenceNumber:  ev.Reference(),
		CreatedAt:        now,
	}
	if ev.Paid() {
		b.Status = booking.StatusConfirmed
		b.PaymentStatus = booking.PaymentPaid
		paidAt := now
		b.PaidAt = &paidAt
	}

	if err := g.store.CreateBooking(ctx, b); err != nil {
		return nil, err
	}
	g.logger.Info("Booking created from order event",
		zap.String("booking_id", b.ID),
		zap.String("reference", b.ReferenceNumber),
		zap.String("status", string(b.Status)),
	)
	return b, nil
}

// derivedWeight falls back to a per-item estimate when the platform sends
// no parcel weight.
func derivedWeight(ev *OrderEvent) float64 {
	if ev.WeightKG > 0 {
		return ev.WeightKG
	}
	return float64(maxInt(ev.ItemCount, 1)) * DefaultItemWeightKG
}

// derivedPrice prefers the platform's order total, then a best-effort rate
// quote from the configured carrier, then the fixed default.
func (g *Gateway) derivedPrice(ctx context.Context, ev *OrderEvent) float64 {
	if ev.OrderTotal > 0 {
		return ev.OrderTotal
	}
	amount, err := g.dispatcher.EstimateRate(ctx, ev.DeliveryPostcode, carrier.Package{
		Weight:   derivedWeight(ev),
		Length:   dispatch.DefaultLengthCM,
		Width:    dispatch.DefaultWidthCM,
		Height:   dispatch.DefaultHeightCM,
		Quantity: maxInt(ev.ItemCount, 1),
	})
	if err != nil {
		g.logger.Warn("Rate quote failed, using default price",
			zap.String("reference", ev.Reference()), zap.Error(err))
		return DefaultPriceAUD
	}
	return amount
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// shopifyToOrderEvent normalizes the Shopify payload: weight in grams to
// kilograms, order name to the reference key, shipping address to one line.
func shopifyToOrderEvent(shopDomain string, order *ShopifyOrder) *OrderEvent {
	name := order.Name
	if name == "" {
		name = "#" + strconv.FormatInt(order.OrderNumber, 10)
	}

	ev := &OrderEvent{
		Platform:        "shopify",
		ShopDomain:      shopDomain,
		ExternalOrderID: strconv.FormatInt(order.ID, 10),
		OrderNumber:     name,
		FinancialStatus: order.FinancialStatus,
		CustomerEmail:   order.Email,
		ItemCount:       len(order.LineItems),
	}

	if order.TotalWeight > 0 {
		ev.WeightKG = float64(order.TotalWeight) / 1000
	}
	if total, err := strconv.ParseFloat(order.TotalPrice, 64); err == nil {
		ev.OrderTotal = total
	}
	if ev.CustomerEmail == "" {
		ev.CustomerEmail = order.Customer.Email
	}
	ev.CustomerName = strings.TrimSpace(order.Customer.FirstName + " " + order.Customer.LastName)
	ev.CustomerPhone = order.Customer.Phone

	if addr := order.ShippingAddress; addr != nil {
		if ev.CustomerName == "" {
			ev.CustomerName = addr.Name
		}
		if ev.CustomerPhone == "" {
			ev.CustomerPhone = addr.Phone
		}
		street := addr.Address1
		if addr.Address2 != "" {
			street += " " + addr.Address2
		}
		ev.DeliveryAddress = fmt.Sprintf("%s, %s, %s %s", street, addr.City, addr.ProvinceCode, addr.Zip)
		ev.DeliveryPostcode = addr.Zip
	}

	var titles []string
	for _, li := range order.LineItems {
		titles = append(titles, fmt.Sprintf("%d x %s", li.Quantity, li.Title))
	}
	ev.Description = strings.Join(titles, ", ")

	return ev
}
