package booking

import (
	"fmt"
	"time"
)

// Event identifies a state machine transition.
type Event string

const (
	// EventConfirmPayment moves payment_status to paid and the business
	// status forward to paid.
	EventConfirmPayment Event = "confirm_payment"

	// EventBeginDispatch claims the booking for a single dispatch attempt.
	// A booking already claimed, sent or fulfilled is not re-claimed.
	EventBeginDispatch Event = "begin_dispatch"

	// EventAbortDispatch releases a dispatch claim after a failed carrier
	// call so the booking can be retried.
	EventAbortDispatch Event = "abort_dispatch"

	// EventDispatchToCarrier records a successful carrier order. Requires a
	// confirmed payment.
	EventDispatchToCarrier Event = "dispatch_to_carrier"

	// EventMarkFulfilled records that tracking reached the storefront.
	EventMarkFulfilled Event = "mark_fulfilled"

	// EventMarkError parks the booking in the error state after an
	// unrecoverable downstream failure.
	EventMarkError Event = "mark_error"
)

// Fields carries per-event payload applied atomically with the transition.
type Fields struct {
	CarrierOrderID   string
	TrackingNumber   string
	LabelURL         string
	InvoiceID        string
	InvoiceNumber    string
	PaymentSessionID string
	PaymentAmount    float64
}

// Apply validates ev against the booking's current state and returns the
// updated copy. The second return is false when the booking was already in
// the target state: redelivered webhooks land here and must be a safe no-op,
// not an error. A failed precondition returns the booking unchanged along
// with ErrInvalidTransition or ErrPaymentNotConfirmed.
func Apply(b Booking, ev Event, f Fields, now time.Time) (Booking, bool, error) {
	switch ev {
	case EventConfirmPayment:
		if b.PaymentStatus == PaymentPaid {
			return b, false, nil
		}
		b.PaymentStatus = PaymentPaid
		paidAt := now
		b.PaidAt = &paidAt
		if rank[b.Status] < rank[StatusPaid] {
			b.Status = StatusPaid
		}
		if f.InvoiceID != "" {
			b.InvoiceID = f.InvoiceID
		}
		if f.InvoiceNumber != "" {
			b.InvoiceNumber = f.InvoiceNumber
		}
		if f.PaymentSessionID != "" {
			b.PaymentSessionID = f.PaymentSessionID
		}
		if f.PaymentAmount > 0 {
			b.EstimatedPrice = f.PaymentAmount
		}
		b.UpdatedAt = now
		return b, true, nil

	case EventBeginDispatch:
		if b.Status == StatusDispatching || b.Status == StatusSentToCarrier || b.Status == StatusFulfilled {
			return b, false, nil
		}
		if b.PaymentStatus != PaymentPaid {
			return b, false, fmt.Errorf("%w: booking %s payment_status is %s", ErrPaymentNotConfirmed, b.ID, b.PaymentStatus)
		}
		b.Status = StatusDispatching
		b.UpdatedAt = now
		return b, true, nil

	case EventAbortDispatch:
		if b.Status != StatusDispatching {
			return b, false, nil
		}
		b.Status = StatusConfirmed
		b.UpdatedAt = now
		return b, true, nil

	case EventDispatchToCarrier:
		if b.Status == StatusSentToCarrier || b.Status == StatusFulfilled {
			return b, false, nil
		}
		if b.PaymentStatus != PaymentPaid {
			return b, false, fmt.Errorf("%w: booking %s payment_status is %s", ErrPaymentNotConfirmed, b.ID, b.PaymentStatus)
		}
		b.Status = StatusSentToCarrier
		b.CarrierOrderID = f.CarrierOrderID
		b.TrackingNumber = f.TrackingNumber
		b.LabelURL = f.LabelURL
		sentAt := now
		b.CarrierSentAt = &sentAt
		b.UpdatedAt = now
		return b, true, nil

	case EventMarkFulfilled:
		if b.Status == StatusFulfilled {
			return b, false, nil
		}
		if b.Status != StatusSentToCarrier {
			return b, false, fmt.Errorf("%w: cannot fulfil booking %s from %s", ErrInvalidTransition, b.ID, b.Status)
		}
		b.Status = StatusFulfilled
		b.UpdatedAt = now
		return b, true, nil

	case EventMarkError:
		if b.Status == StatusError {
			return b, false, nil
		}
		b.Status = StatusError
		b.UpdatedAt = now
		return b, true, nil
	}
	return b, false, fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, ev)
}
