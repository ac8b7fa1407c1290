// Package payments reconciles payment-provider and invoicing-provider state
// into the booking's payment status, then forwards dispatch-eligible
// bookings to the carrier dispatcher.
package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/nsjexpress/dispatch/internal/booking"
	"github.com/nsjexpress/dispatch/internal/dispatch"
	"github.com/nsjexpress/dispatch/internal/invoicing/xero"
	"github.com/nsjexpress/dispatch/internal/payments/stripe"
	"github.com/nsjexpress/dispatch/internal/store"
	"github.com/nsjexpress/dispatch/internal/telemetry"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// InvoiceEvent is one entry from the invoicing provider's webhook event list.
type InvoiceEvent struct {
	ResourceID    string `json:"resourceId"`
	EventType     string `json:"eventType"`
	EventCategory string `json:"eventCategory"`
}

// Relevant reports whether the event is an invoice update worth processing.
func (e InvoiceEvent) Relevant() bool {
	return e.EventType == "UPDATE" && e.EventCategory == "INVOICE"
}

// Bridge reconciles external payment state into bookings.
type Bridge struct {
	store      store.Store
	xeroAPI    xero.APIClient
	stripeAPI  stripe.APIClient
	dispatcher *dispatch.Dispatcher
	logger     *otelzap.Logger
	metrics    *telemetry.Metrics
}

// NewBridge creates a confirmation bridge.
func NewBridge(st store.Store, xeroAPI xero.APIClient, stripeAPI stripe.APIClient,
	dispatcher *dispatch.Dispatcher, logger *otelzap.Logger, metrics *telemetry.Metrics) *Bridge {
	return &Bridge{
		store:      st,
		xeroAPI:    xeroAPI,
		stripeAPI:  stripeAPI,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
	}
}

// HandleInvoiceEvents processes an invoicing webhook's event list. Each
// invoice is re-fetched from the provider; the webhook's own claim about
// status is never trusted. Returns the number of bookings confirmed paid.
// Non-paid invoices and invoices with no matching booking are skips, not
// errors.
func (b *Bridge) HandleInvoiceEvents(ctx context.Context, events []InvoiceEvent) (int, error) {
	confirmed := 0
	for _, ev := range events {
		if !ev.Relevant() {
			continue
		}
		if ev.ResourceID == "" {
			return confirmed, fmt.Errorf("%w: invoice event missing resourceId", booking.ErrMalformedEvent)
		}

		ok, err := b.confirmInvoice(ctx, ev.ResourceID)
		if err != nil {
			return confirmed, err
		}
		if ok {
			confirmed++
		}
	}
	b.metrics.RecordWebhook("xero", "ok")
	return confirmed, nil
}

// confirmInvoice re-verifies one invoice and, when genuinely paid, confirms
// the booking's payment and forwards it to dispatch.
func (b *Bridge) confirmInvoice(ctx context.Context, invoiceID string) (bool, error) {
	invoice, err := b.xeroAPI.GetInvoice(ctx, invoiceID)
	if err != nil {
		return false, fmt.Errorf("invoice re-fetch failed for %s: %w", invoiceID, err)
	}

	if invoice.Status != xero.InvoiceStatusPaid {
		// Intermediate statuses are expected; the provider will notify
		// again when the invoice settles.
		b.logger.Info("Invoice not yet paid, skipping",
			zap.String("invoice_id", invoiceID),
			zap.String("status", invoice.Status),
		)
		return false, nil
	}

	bk, err := b.findBookingForInvoice(ctx, invoice)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			b.logger.Warn("Paid invoice matches no booking",
				zap.String("invoice_id", invoiceID),
				zap.String("invoice_number", invoice.InvoiceNumber),
			)
			return false, nil
		}
		return false, err
	}

	updated, changed, err := b.store.TransitionBooking(ctx, bk.ID, booking.EventConfirmPayment, booking.Fields{
		InvoiceID:     invoice.InvoiceID,
		InvoiceNumber: invoice.InvoiceNumber,
		PaymentAmount: invoice.AmountPaid,
	})
	if err != nil {
		return false, err
	}
	if !changed {
		b.logger.Info("Booking already paid, invoice event is a no-op",
			zap.String("booking_id", bk.ID),
			zap.String("invoice_id", invoiceID),
		)
		return false, nil
	}

	b.logger.Info("Payment confirmed from invoice",
		zap.String("booking_id", updated.ID),
		zap.String("invoice_number", invoice.InvoiceNumber),
	)

	if _, err := b.dispatcher.Dispatch(ctx, updated.ID); err != nil {
		return true, err
	}
	return true, nil
}

// findBookingForInvoice resolves the booking by invoice linkage first, then
// by the invoice's reference (the platform order correlation key).
func (b *Bridge) findBookingForInvoice(ctx context.Context, invoice *xero.Invoice) (*booking.Booking, error) {
	if bk, err := b.store.FindBookingByInvoiceID(ctx, invoice.InvoiceID); err == nil {
		return bk, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return b.store.FindBookingByReference(ctx, invoice.Reference)
}

// HandleCheckoutCompleted processes a payment-session completion. The
// session is re-fetched so only genuinely paid sessions confirm a booking;
// client_reference_id carries the booking id.
func (b *Bridge) HandleCheckoutCompleted(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("%w: checkout event missing session id", booking.ErrMalformedEvent)
	}

	session, err := b.stripeAPI.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("checkout session re-fetch failed for %s: %w", sessionID, err)
	}
	if session.PaymentStatus != stripe.PaymentStatusPaid {
		b.logger.Info("Checkout session not paid, skipping",
			zap.String("session_id", sessionID),
			zap.String("payment_status", session.PaymentStatus),
		)
		return nil
	}
	if session.ClientReferenceID == "" {
		return fmt.Errorf("%w: checkout session %s carries no client reference", booking.ErrMalformedEvent, sessionID)
	}

	updated, changed, err := b.store.TransitionBooking(ctx, session.ClientReferenceID, booking.EventConfirmPayment, booking.Fields{
		PaymentSessionID: session.ID,
		PaymentAmount:    float64(session.AmountTotal) / 100,
	})
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	b.metrics.RecordWebhook("stripe", "ok")
	b.logger.Info("Payment confirmed from checkout session",
		zap.String("booking_id", updated.ID),
		zap.String("session_id", sessionID),
	)

	_, err = b.dispatcher.Dispatch(ctx, updated.ID)
	return err
}

// LookupSession exposes the payment-session lookup used by the API surface.
func (b *Bridge) LookupSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id required", booking.ErrMalformedEvent)
	}
	return b.stripeAPI.GetCheckoutSession(ctx, sessionID)
}
