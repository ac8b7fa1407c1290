package booking

import (
	"errors"
)

// Sentinel errors for the orchestration core. Handlers map these onto HTTP
// responses; retriability is part of each error's contract.
var (
	// ErrMalformedEvent indicates an inbound event is missing its correlation
	// key or required fields. Not retriable; the sender must fix the payload.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrInvalidTransition indicates a state precondition was unmet. The
	// caller should not blindly retry.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrPaymentNotConfirmed indicates dispatch was attempted before the
	// booking's payment completed. Retriable once payment lands.
	ErrPaymentNotConfirmed = errors.New("payment not confirmed")

	// ErrNoLinkedOrder indicates the booking did not originate from a
	// storefront. An expected skip condition, not a failure.
	ErrNoLinkedOrder = errors.New("no linked storefront order")
)
