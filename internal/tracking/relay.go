// Package tracking propagates carrier tracking data back to the storefront
// the order came from, so the customer sees tracking where they bought.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nsjexpress/dispatch/internal/booking"
	"github.com/nsjexpress/dispatch/internal/store"
	"github.com/nsjexpress/dispatch/internal/storefront/shopify"
	"github.com/nsjexpress/dispatch/internal/telemetry"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Relay pushes fulfilment updates to the originating storefront.
type Relay struct {
	store           store.Store
	shopifyAPI      shopify.APIClient
	trackingURLBase string
	logger          *otelzap.Logger
	metrics         *telemetry.Metrics
}

// Config holds relay settings.
type Config struct {
	// TrackingURLBase prefixes tracking numbers into customer-facing URLs.
	TrackingURLBase string
}

// NewRelay creates a tracking relay.
func NewRelay(cfg Config, st store.Store, shopifyAPI shopify.APIClient, logger *otelzap.Logger, metrics *telemetry.Metrics) *Relay {
	base := cfg.TrackingURLBase
	if base == "" {
		base = "https://track.nsjexpress.com.au/"
	}
	return &Relay{
		store:           st,
		shopifyAPI:      shopifyAPI,
		trackingURLBase: base,
		logger:          logger,
		metrics:         metrics,
	}
}

// Sync pushes the booking's tracking number to its linked storefront order.
// Returns booking.ErrNoLinkedOrder when the booking was not placed through a
// storefront; callers treat that as a skip, not a failure. On storefront API
// failure the booking's tracking fields stay persisted and the order's sync
// flag stays unset, so Sync can be retried independently of dispatch.
func (r *Relay) Sync(ctx context.Context, bookingID string) error {
	b, err := r.store.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.TrackingNumber == "" {
		return fmt.Errorf("%w: booking %s has no tracking number", booking.ErrInvalidTransition, bookingID)
	}

	order, err := r.store.FindStorefrontOrderByBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: booking %s", booking.ErrNoLinkedOrder, bookingID)
		}
		return err
	}

	if order.Fulfilled {
		r.logger.Info("Storefront order already synced",
			zap.String("booking_id", bookingID),
			zap.String("order_id", order.ExternalOrderID),
		)
		return nil
	}

	integration, err := r.store.GetIntegrationByID(ctx, order.IntegrationID)
	if err != nil {
		return fmt.Errorf("failed to load integration for order %s: %w", order.ExternalOrderID, err)
	}

	trackingURL := r.TrackingURL(b.TrackingNumber)

	_, err = r.shopifyAPI.CreateFulfillment(ctx,
		shopify.Credentials{ShopDomain: integration.ShopDomain, AccessToken: integration.AccessToken},
		order.ExternalOrderID,
		&shopify.FulfillmentRequest{
			Fulfillment: shopify.Fulfillment{
				TrackingNumber: b.TrackingNumber,
				TrackingURLs:   []string{trackingURL},
				NotifyCustomer: true,
			},
		})
	if err != nil {
		r.metrics.RecordWebhook("storefront_sync", "error")
		if markErr := r.store.MarkIntegrationError(ctx, integration.ID, err.Error()); markErr != nil {
			r.logger.Error("Failed to record integration error", zap.Error(markErr))
		}
		return fmt.Errorf("storefront fulfillment failed for order %s: %w", order.ExternalOrderID, err)
	}

	now := time.Now().UTC()
	if err := r.store.MarkStorefrontSynced(ctx, order.ID, b.TrackingNumber, trackingURL, now); err != nil {
		return err
	}
	if err := r.store.MarkIntegrationSynced(ctx, integration.ID, now); err != nil {
		r.logger.Error("Failed to record integration sync", zap.Error(err))
	}

	if _, _, err := r.store.TransitionBooking(ctx, bookingID, booking.EventMarkFulfilled, booking.Fields{}); err != nil {
		r.logger.Error("Failed to mark booking fulfilled",
			zap.String("booking_id", bookingID), zap.Error(err))
	}

	r.metrics.RecordWebhook("storefront_sync", "ok")
	r.logger.Info("Tracking pushed to storefront",
		zap.String("booking_id", bookingID),
		zap.String("order_id", order.ExternalOrderID),
		zap.String("tracking_number", b.TrackingNumber),
	)
	return nil
}

// TrackingURL builds the customer-facing tracking URL for a tracking number.
func (r *Relay) TrackingURL(trackingNumber string) string {
	return strings.TrimSuffix(r.trackingURLBase, "/") + "/" + trackingNumber
}
