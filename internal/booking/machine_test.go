package booking_test

import (
	"testing"
	"time"

	"github.com/nsjexpress/dispatch/internal/booking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func pendingBooking() booking.Booking {
	return booking.Booking{
		ID:            "bk-1",
		Status:        booking.StatusPendingPayment,
		PaymentStatus: booking.PaymentPending,
	}
}

func TestApply_ConfirmPayment(t *testing.T) {
	b, changed, err := booking.Apply(pendingBooking(), booking.EventConfirmPayment, booking.Fields{
		InvoiceID:     "inv-9",
		PaymentAmount: 24.50,
	}, now)

	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, booking.StatusPaid, b.Status)
	assert.Equal(t, booking.PaymentPaid, b.PaymentStatus)
	assert.Equal(t, "inv-9", b.InvoiceID)
	assert.Equal(t, 24.50, b.EstimatedPrice)
	require.NotNil(t, b.PaidAt)
	assert.Equal(t, now, *b.PaidAt)
}

func TestApply_ConfirmPayment_AlreadyPaid_NoOp(t *testing.T) {
	paid := pendingBooking()
	paid.PaymentStatus = booking.PaymentPaid
	paid.Status = booking.StatusConfirmed

	b, changed, err := booking.Apply(paid, booking.EventConfirmPayment, booking.Fields{}, now)

	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, booking.StatusConfirmed, b.Status)
}

func TestApply_ConfirmPayment_NeverMovesStatusBackward(t *testing.T) {
	sent := pendingBooking()
	sent.Status = booking.StatusSentToCarrier
	sent.PaymentStatus = booking.PaymentPending // contrived, but must not regress

	b, changed, err := booking.Apply(sent, booking.EventConfirmPayment, booking.Fields{}, now)

	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, booking.StatusSentToCarrier, b.Status)
	assert.Equal(t, booking.PaymentPaid, b.PaymentStatus)
}

func TestApply_BeginDispatch_ClaimsBooking(t *testing.T) {
	paid := pendingBooking()
	paid.Status = booking.StatusConfirmed
	paid.PaymentStatus = booking.PaymentPaid

	b, changed, err := booking.Apply(paid, booking.EventBeginDispatch, booking.Fields{}, now)

	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, booking.StatusDispatching, b.Status)

	// A second claim on the same booking does not win.
	_, changed, err = booking.Apply(b, booking.EventBeginDispatch, booking.Fields{}, now)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestApply_BeginDispatch_RequiresPaidPayment(t *testing.T) {
	_, changed, err := booking.Apply(pendingBooking(), booking.EventBeginDispatch, booking.Fields{}, now)

	assert.ErrorIs(t, err, booking.ErrPaymentNotConfirmed)
	assert.False(t, changed)
}

func TestApply_BeginDispatch_AlreadySent_NoOp(t *testing.T) {
	sent := pendingBooking()
	sent.Status = booking.StatusSentToCarrier
	sent.PaymentStatus = booking.PaymentPaid

	b, changed, err := booking.Apply(sent, booking.EventBeginDispatch, booking.Fields{}, now)

	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, booking.StatusSentToCarrier, b.Status)
}

func TestApply_AbortDispatch_ReleasesClaim(t *testing.T) {
	claimed := pendingBooking()
	claimed.Status = booking.StatusDispatching
	claimed.PaymentStatus = booking.PaymentPaid

	b, changed, err := booking.Apply(claimed, booking.EventAbortDispatch, booking.Fields{}, now)

	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, booking.StatusConfirmed, b.Status)
}

func TestApply_AbortDispatch_OnlyFromDispatching(t *testing.T) {
	sent := pendingBooking()
	sent.Status = booking.StatusSentToCarrier
	sent.PaymentStatus = booking.PaymentPaid

	b, changed, err := booking.Apply(sent, booking.EventAbortDispatch, booking.Fields{}, now)

	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, booking.StatusSentToCarrier, b.Status)
}

func TestApply_Dispatch_RequiresPaidPayment(t *testing.T) {
	_, changed, err := booking.Apply(pendingBooking(), booking.EventDispatchToCarrier, booking.Fields{
		TrackingNumber: "TRK-1",
	}, now)

	assert.ErrorIs(t, err, booking.ErrPaymentNotConfirmed)
	assert.False(t, changed)
}

func TestApply_Dispatch_Success(t *testing.T) {
	paid := pendingBooking()
	paid.Status = booking.StatusConfirmed
	paid.PaymentStatus = booking.PaymentPaid

	b, changed, err := booking.Apply(paid, booking.EventDispatchToCarrier, booking.Fields{
		CarrierOrderID: "ord-77",
		TrackingNumber: "TRK-77",
		LabelURL:       "https://labels.example.com/77.pdf",
	}, now)

	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, booking.StatusSentToCarrier, b.Status)
	assert.Equal(t, "ord-77", b.CarrierOrderID)
	assert.Equal(t, "TRK-77", b.TrackingNumber)
	assert.Equal(t, "https://labels.example.com/77.pdf", b.LabelURL)
	require.NotNil(t, b.CarrierSentAt)
}

func TestApply_Dispatch_AlreadySent_NoOp(t *testing.T) {
	sent := pendingBooking()
	sent.Status = booking.StatusSentToCarrier
	sent.PaymentStatus = booking.PaymentPaid
	sent.TrackingNumber = "TRK-original"

	b, changed, err := booking.Apply(sent, booking.EventDispatchToCarrier, booking.Fields{
		TrackingNumber: "TRK-duplicate",
	}, now)

	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "TRK-original", b.TrackingNumber, "redelivery must not overwrite the first dispatch")
}

func TestApply_MarkFulfilled(t *testing.T) {
	sent := pendingBooking()
	sent.Status = booking.StatusSentToCarrier
	sent.PaymentStatus = booking.PaymentPaid

	b, changed, err := booking.Apply(sent, booking.EventMarkFulfilled, booking.Fields{}, now)

	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, booking.StatusFulfilled, b.Status)

	// Second delivery is a no-op.
	_, changed, err = booking.Apply(b, booking.EventMarkFulfilled, booking.Fields{}, now)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestApply_MarkFulfilled_BeforeDispatch_Invalid(t *testing.T) {
	_, _, err := booking.Apply(pendingBooking(), booking.EventMarkFulfilled, booking.Fields{}, now)
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)
}

func TestApply_MarkError_FromAnyState(t *testing.T) {
	for _, status := range []booking.Status{
		booking.StatusPendingPayment,
		booking.StatusPaid,
		booking.StatusConfirmed,
		booking.StatusSentToCarrier,
	} {
		b := pendingBooking()
		b.Status = status
		out, changed, err := booking.Apply(b, booking.EventMarkError, booking.Fields{}, now)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, booking.StatusError, out.Status)
	}
}

func TestApply_UnknownEvent(t *testing.T) {
	_, _, err := booking.Apply(pendingBooking(), booking.Event("teleport"), booking.Fields{}, now)
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)
}
