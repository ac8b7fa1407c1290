// Package server exposes the webhook and operations HTTP surface.
package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/nsjexpress/dispatch/internal/booking"
	"github.com/nsjexpress/dispatch/internal/dispatch"
	"github.com/nsjexpress/dispatch/internal/gateway"
	"github.com/nsjexpress/dispatch/internal/payments"
	"github.com/nsjexpress/dispatch/internal/store"
	"github.com/nsjexpress/dispatch/internal/telemetry"
	"github.com/nsjexpress/dispatch/internal/tracking"
	"github.com/nsjexpress/dispatch/pkg/carrier"
)

// maxBodyBytes caps inbound webhook payloads.
const maxBodyBytes = 1 << 20

// Server is the HTTP server for the dispatch service.
type Server struct {
	port    int
	gateway *gateway.Gateway
	bridge  *payments.Bridge
	disp    *dispatch.Dispatcher
	relay   *tracking.Relay
	logger  *otelzap.Logger
	metrics *telemetry.Metrics

	shopifySecret string
	xeroKey       string
}

// Config holds server configuration. The webhook secrets are optional;
// verification is skipped for a source whose secret is unset.
type Config struct {
	Port                 int
	ShopifyWebhookSecret string
	XeroWebhookKey       string
}

// New creates a new server instance.
func New(cfg Config, gw *gateway.Gateway, bridge *payments.Bridge, disp *dispatch.Dispatcher,
	relay *tracking.Relay, logger *otelzap.Logger, metrics *telemetry.Metrics) *Server {
	return &Server{
		port:          cfg.Port,
		gateway:       gw,
		bridge:        bridge,
		disp:          disp,
		relay:         relay,
		logger:        logger,
		metrics:       metrics,
		shopifySecret: cfg.ShopifyWebhookSecret,
		xeroKey:       cfg.XeroWebhookKey,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/webhooks/shopify", s.post(s.handleShopifyWebhook))
	mux.HandleFunc("/webhooks/orders", s.post(s.handleOrderWebhook))
	mux.HandleFunc("/webhooks/xero", s.post(s.handleXeroWebhook))
	mux.HandleFunc("/webhooks/stripe", s.post(s.handleStripeWebhook))

	mux.HandleFunc("/v1/dispatch", s.post(s.handleDispatch))
	mux.HandleFunc("/v1/tracking/sync", s.post(s.handleTrackingSync))
	mux.HandleFunc("/v1/payments/session", s.post(s.handlePaymentSession))

	return mux
}

// Run starts the HTTP server and blocks until context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.Int("port", s.port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// post restricts a handler to POST, answering OPTIONS preflights with an
// empty 200.
func (s *Server) post(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)
		case http.MethodPost:
			h(w, r)
		default:
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed, use POST")
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleShopifyWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if s.shopifySecret != "" {
		if !verifyBase64HMAC(body, s.shopifySecret, r.Header.Get("X-Shopify-Hmac-Sha256")) {
			s.metrics.RecordWebhook("shopify", "unauthorized")
			s.writeError(w, http.StatusUnauthorized, "invalid webhook signature")
			return
		}
	}

	var order gateway.ShopifyOrder
	if err := json.Unmarshal(body, &order); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	b, err := s.gateway.HandleShopifyOrder(r.Context(),
		r.Header.Get("X-Shopify-Shop-Domain"),
		r.Header.Get("X-Shopify-Webhook-Id"),
		&order)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, bookingResponse(b))
}

func (s *Server) handleOrderWebhook(w http.ResponseWriter, r *http.Request) {
	var ev gateway.OrderEvent
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&ev); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	b, err := s.gateway.HandleOrderEvent(r.Context(), &ev)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, bookingResponse(b))
}

// xeroWebhook is the invoicing provider's event envelope.
type xeroWebhook struct {
	Events []payments.InvoiceEvent `json:"events"`
}

func (s *Server) handleXeroWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	// The provider's intent-to-receive checks expect a bare 401 on
	// signature mismatch and a bare 200 on success.
	if s.xeroKey != "" {
		if !verifyBase64HMAC(body, s.xeroKey, r.Header.Get("X-Xero-Signature")) {
			s.metrics.RecordWebhook("xero", "unauthorized")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}

	var payload xeroWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	confirmed, err := s.bridge.HandleInvoiceEvents(r.Context(), payload.Events)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"confirmed": confirmed})
}

// stripeEvent is the payment provider's event envelope, decoded only as far
// as the session id; the bridge re-fetches the session itself.
type stripeEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	var ev stripeEvent
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&ev); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if ev.Type != "checkout.session.completed" {
		s.writeJSON(w, http.StatusOK, map[string]any{"ignored": ev.Type})
		return
	}

	if err := s.bridge.HandleCheckoutCompleted(r.Context(), ev.Data.Object.ID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"received": true})
}

type dispatchRequest struct {
	BookingID string `json:"booking_id"`
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.BookingID == "" {
		s.writeError(w, http.StatusBadRequest, "booking_id is required")
		return
	}

	result, err := s.disp.Dispatch(r.Context(), req.BookingID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTrackingSync(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.BookingID == "" {
		s.writeError(w, http.StatusBadRequest, "booking_id is required")
		return
	}

	err := s.relay.Sync(r.Context(), req.BookingID)
	if errors.Is(err, booking.ErrNoLinkedOrder) {
		// Not an error: the booking simply has no storefront to notify.
		s.writeJSON(w, http.StatusOK, map[string]any{"synced": false, "reason": "no linked storefront order"})
		return
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"synced": true})
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handlePaymentSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	session, err := s.bridge.LookupSession(r.Context(), req.SessionID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, session)
}

// writeDomainError maps domain errors onto HTTP statuses. Carrier failures
// come back as 502 so webhook senders redeliver; precondition failures are
// 4xx so they do not.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var carrierErr *carrier.Error

	switch {
	case errors.Is(err, booking.ErrMalformedEvent):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, booking.ErrInvalidTransition), errors.Is(err, store.ErrConflict):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, booking.ErrPaymentNotConfirmed):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &carrierErr):
		s.writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("Unhandled request error", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// bookingResponse is the external shape of a booking.
func bookingResponse(b *booking.Booking) map[string]any {
	return map[string]any{
		"id":              b.ID,
		"status":          string(b.Status),
		"payment_status":  string(b.PaymentStatus),
		"reference":       b.ReferenceNumber,
		"tracking_number": b.TrackingNumber,
		"label_url":       b.LabelURL,
	}
}

// verifyBase64HMAC checks a base64-encoded HMAC-SHA256 signature, the scheme
// both webhook providers use.
func verifyBase64HMAC(body []byte, secret, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
