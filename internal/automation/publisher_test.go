package automation

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

func newTestPublisher(url string) *Publisher {
	return NewPublisher(Config{URL: url, Secret: "test-secret", MaxAttempts: 3}, otelzap.New(zap.NewNop()))
}

func TestPublisher_Publish_SignsPayload(t *testing.T) {
	var gotSig, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotType = r.Header.Get("X-Event-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := newTestPublisher(srv.URL)
	p.Publish(context.Background(), "booking.dispatched", map[string]string{"booking_id": "bk-1"})

	assert.Equal(t, "booking.dispatched", gotType)
	require.NotEmpty(t, gotSig)
	assert.True(t, VerifyHMAC("test-secret", gotBody, gotSig))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.Equal(t, "booking.dispatched", payload["type"])
	assert.NotEmpty(t, payload["id"])
}

func TestPublisher_Publish_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := newTestPublisher(srv.URL)
	p.Publish(context.Background(), "booking.paid", nil)

	assert.Equal(t, int32(2), calls.Load())
}

func TestPublisher_Publish_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := newTestPublisher(srv.URL)
	p.Publish(context.Background(), "booking.paid", nil)

	assert.Equal(t, int32(3), calls.Load())
}

func TestPublisher_Publish_DisabledWithoutURL(t *testing.T) {
	p := newTestPublisher("")
	assert.False(t, p.Enabled())

	// Must be a no-op, not a panic or network attempt
	p.Publish(context.Background(), "booking.paid", nil)
}

func TestPublisher_Publish_ContextCancelStopsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	p := newTestPublisher(srv.URL)

	done := make(chan struct{})
	go func() {
		p.Publish(ctx, "booking.paid", nil)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish did not stop after context cancel")
	}
	assert.Less(t, calls.Load(), int32(3))
}

func TestVerifyHMAC(t *testing.T) {
	body := []byte(`{"hello":"world"}`)
	sig := SignHMAC("secret", body)

	assert.True(t, VerifyHMAC("secret", body, sig))
	assert.False(t, VerifyHMAC("wrong", body, sig))
	assert.False(t, VerifyHMAC("secret", []byte("tampered"), sig))
	assert.False(t, VerifyHMAC("secret", body, "not-hex"))
}
