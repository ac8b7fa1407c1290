// Package dispatch books a paid shipment with the configured carrier and
// records the result on the booking.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/nsjexpress/dispatch/internal/address"
	"github.com/nsjexpress/dispatch/internal/automation"
	"github.com/nsjexpress/dispatch/internal/booking"
	"github.com/nsjexpress/dispatch/internal/notify"
	"github.com/nsjexpress/dispatch/internal/store"
	"github.com/nsjexpress/dispatch/internal/telemetry"
	"github.com/nsjexpress/dispatch/internal/tracking"
	"github.com/nsjexpress/dispatch/pkg/carrier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Package fallbacks applied when the source platform provided no dimensions.
// A deliberate accuracy/availability trade-off: dispatch proceeds with a
// standard carton rather than blocking the shipment.
const (
	DefaultLengthCM = 30.0
	DefaultWidthCM  = 30.0
	DefaultHeightCM = 20.0
	DefaultWeightKG = 1.0
)

// Dispatcher selects the configured carrier and books consignments with it.
type Dispatcher struct {
	store       store.Store
	registry    *carrier.Registry
	carrierName string
	serviceType string
	notifier    *notify.Client
	automation  *automation.Publisher
	relay       *tracking.Relay
	logger      *otelzap.Logger
	metrics     *telemetry.Metrics
}

// Config holds dispatcher settings. Carrier names the single provider all
// dispatches go to; there is no automatic failover between providers.
type Config struct {
	Carrier     string
	ServiceType string
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg Config, st store.Store, registry *carrier.Registry, relay *tracking.Relay,
	notifier *notify.Client, publisher *automation.Publisher, logger *otelzap.Logger, metrics *telemetry.Metrics) *Dispatcher {
	return &Dispatcher{
		store:       st,
		registry:    registry,
		carrierName: cfg.Carrier,
		serviceType: cfg.ServiceType,
		notifier:    notifier,
		automation:  publisher,
		relay:       relay,
		logger:      logger,
		metrics:     metrics,
	}
}

// Dispatch books the shipment with the configured carrier. Preconditions are
// checked before any network call: an unpaid booking fails with
// ErrPaymentNotConfirmed and the carrier is never contacted. The booking is
// claimed through a guarded transition before the carrier call, so two
// concurrent deliveries produce exactly one carrier order: the loser gets
// store.ErrConflict and the sender redelivers. A provider rejection releases
// the claim and comes back as a *carrier.Error, so webhook redelivery can
// retry safely. Redelivery after a successful dispatch is a no-op returning
// the already-recorded result.
func (d *Dispatcher) Dispatch(ctx context.Context, bookingID string) (*booking.DispatchResult, error) {
	start := time.Now()
	defer func() {
		d.metrics.RecordDuration("dispatch", time.Since(start).Seconds())
	}()

	b, err := d.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if b.Status == booking.StatusSentToCarrier || b.Status == booking.StatusFulfilled {
		d.logger.Info("Booking already dispatched",
			zap.String("booking_id", bookingID),
			zap.String("tracking_number", b.TrackingNumber),
		)
		return d.resultFromBooking(b), nil
	}

	if b.PaymentStatus != booking.PaymentPaid {
		return nil, fmt.Errorf("%w: booking %s payment_status is %s",
			booking.ErrPaymentNotConfirmed, bookingID, b.PaymentStatus)
	}

	provider, err := d.registry.Get(d.carrierName)
	if err != nil {
		return nil, err
	}

	// Claim the booking before contacting the carrier. The guarded write
	// ensures exactly one delivery holds the claim; the loser backs off and
	// the sender redelivers.
	claimed, won, err := d.store.TransitionBooking(ctx, bookingID, booking.EventBeginDispatch, booking.Fields{})
	if err != nil {
		return nil, err
	}
	if !won {
		if claimed.Status == booking.StatusSentToCarrier || claimed.Status == booking.StatusFulfilled {
			return d.resultFromBooking(claimed), nil
		}
		d.logger.Warn("Concurrent dispatch detected, backing off",
			zap.String("booking_id", bookingID))
		return nil, fmt.Errorf("%w: dispatch of booking %s already in progress", store.ErrConflict, bookingID)
	}

	req := d.buildOrderRequest(b)

	resp, err := provider.CreateOrder(ctx, req)
	if err != nil {
		d.metrics.RecordDispatch(d.carrierName, "rejected")
		d.metrics.RecordError(d.carrierName, errorType(err))
		d.logger.Error("Carrier rejected dispatch",
			zap.String("booking_id", bookingID),
			zap.String("carrier", d.carrierName),
			zap.Error(err),
		)
		if _, _, aerr := d.store.TransitionBooking(ctx, bookingID, booking.EventAbortDispatch, booking.Fields{}); aerr != nil {
			d.logger.Error("Failed to release dispatch claim",
				zap.String("booking_id", bookingID), zap.Error(aerr))
		}
		return nil, err
	}

	updated, changed, err := d.store.TransitionBooking(ctx, bookingID, booking.EventDispatchToCarrier, booking.Fields{
		CarrierOrderID: resp.OrderID,
		TrackingNumber: resp.TrackingNumber,
		LabelURL:       resp.LabelURL,
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		// A concurrent delivery won the guarded write; its carrier order
		// is the one of record.
		d.logger.Warn("Concurrent dispatch detected, keeping first result",
			zap.String("booking_id", bookingID))
		return d.resultFromBooking(updated), nil
	}

	d.metrics.RecordDispatch(d.carrierName, "ok")
	d.logger.Info("Booking dispatched",
		zap.String("booking_id", bookingID),
		zap.String("carrier", d.carrierName),
		zap.String("tracking_number", resp.TrackingNumber),
	)

	d.runSideEffects(ctx, updated)

	return &booking.DispatchResult{
		Success:        true,
		Carrier:        d.carrierName,
		CarrierOrderID: resp.OrderID,
		TrackingNumber: resp.TrackingNumber,
		TrackingURL:    resp.TrackingURL,
		LabelURL:       resp.LabelURL,
	}, nil
}

// EstimateRate asks the configured carrier to price a parcel to postcode.
// Used during ingestion for bookings whose platform order carries no total.
func (d *Dispatcher) EstimateRate(ctx context.Context, postcode string, pkg carrier.Package) (float64, error) {
	provider, err := d.registry.Get(d.carrierName)
	if err != nil {
		return 0, err
	}
	rate, err := provider.GetRate(ctx, &carrier.RateRequest{
		ToPostcode: postcode,
		Packages:   []carrier.Package{pkg},
	})
	if err != nil {
		return 0, err
	}
	return rate.Amount, nil
}

// runSideEffects fires the post-dispatch steps: storefront tracking sync,
// customer notification and the automation relay. All three are best-effort;
// an error here never rolls back the carrier booking.
func (d *Dispatcher) runSideEffects(ctx context.Context, b *booking.Booking) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := d.relay.Sync(gctx, b.ID); err != nil {
			d.logger.Warn("Tracking sync after dispatch failed",
				zap.String("booking_id", b.ID), zap.Error(err))
		}
		return nil
	})

	g.Go(func() error {
		d.notifier.Send(gctx, notify.Notification{
			Recipient: b.CustomerEmail,
			Subject:   "Your order is on its way",
			Message:   fmt.Sprintf("Your shipment has been booked. Tracking number: %s", b.TrackingNumber),
			BookingID: b.ID,
		})
		return nil
	})

	g.Go(func() error {
		d.automation.Publish(gctx, "booking.dispatched", map[string]any{
			"booking_id":      b.ID,
			"carrier":         d.carrierName,
			"tracking_number": b.TrackingNumber,
			"label_url":       b.LabelURL,
			"reference":       b.ReferenceNumber,
		})
		return nil
	})

	_ = g.Wait()
}

// buildOrderRequest maps the booking onto the provider-neutral order shape,
// parsing the free-text delivery address into structured parts.
func (d *Dispatcher) buildOrderRequest(b *booking.Booking) *carrier.CreateOrderRequest {
	parts := address.Parse(b.DeliveryAddress)
	postcode := b.DeliveryPostcode
	if postcode == "" {
		postcode = parts.Postcode
	}

	weight := b.PackageWeightKG
	if weight <= 0 {
		weight = DefaultWeightKG
	}
	length, width, height := b.PackageLengthCM, b.PackageWidthCM, b.PackageHeightCM
	if length <= 0 {
		length = DefaultLengthCM
	}
	if width <= 0 {
		width = DefaultWidthCM
	}
	if height <= 0 {
		height = DefaultHeightCM
	}
	qty := b.Quantity
	if qty <= 0 {
		qty = 1
	}

	return &carrier.CreateOrderRequest{
		Reference:   b.ReferenceNumber,
		OrderDate:   b.CreatedAt.UTC().Format(time.RFC3339),
		ServiceType: d.serviceType,
		Customer: carrier.Contact{
			Name:  b.CustomerName,
			Email: b.CustomerEmail,
			Phone: b.CustomerPhone,
		},
		Delivery: carrier.Address{
			Street:      parts.Street,
			Suburb:      parts.Suburb,
			State:       parts.State,
			Postcode:    postcode,
			CountryCode: "AU",
		},
		Packages: []carrier.Package{
			{
				Weight:   weight,
				Length:   length,
				Width:    width,
				Height:   height,
				Quantity: qty,
			},
		},
		Description: b.Description,
		Value:       b.EstimatedPrice,
	}
}

func (d *Dispatcher) resultFromBooking(b *booking.Booking) *booking.DispatchResult {
	return &booking.DispatchResult{
		Success:        true,
		Carrier:        d.carrierName,
		CarrierOrderID: b.CarrierOrderID,
		TrackingNumber: b.TrackingNumber,
		LabelURL:       b.LabelURL,
	}
}

func errorType(err error) string {
	if carrier.IsRetryable(err) {
		return "retryable"
	}
	return "rejected"
}
