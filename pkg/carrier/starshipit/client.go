// Package starshipit provides integration with the StarShipIt shipping API.
package starshipit

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/nsjexpress/dispatch/pkg/carrier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const carrierName = "starshipit"

// Config holds StarShipIt configuration.
type Config struct {
	APIKey          string
	SubscriptionKey string
	BaseURL         string
	ShippingMethod  string // Default shipping method when the booking carries none
	UseMock         bool   // When true, uses mock API client
}

// Client is the StarShipIt carrier client.
// It implements the carrier.Carrier interface and delegates
// API calls to the underlying APIClient (mock or HTTP).
type Client struct {
	config    Config
	apiClient APIClient
	logger    *otelzap.Logger
}

// New creates a new StarShipIt client.
// If cfg.UseMock is true, it uses a mock API client for testing.
// Otherwise, it uses the real HTTP API client.
func New(cfg Config, logger *otelzap.Logger) *Client {
	var apiClient APIClient

	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		apiClient = NewHTTPAPIClient(HTTPAPIClientConfig{
			BaseURL:         cfg.BaseURL,
			APIKey:          cfg.APIKey,
			SubscriptionKey: cfg.SubscriptionKey,
			Timeout:         30 * time.Second,
		})
	}

	return &Client{
		config:    cfg,
		apiClient: apiClient,
		logger:    logger,
	}
}

// NewWithAPIClient creates a new StarShipIt client with a custom API client.
// This is useful for injecting mock clients in tests.
func NewWithAPIClient(cfg Config, apiClient APIClient, logger *otelzap.Logger) *Client {
	return &Client{
		config:    cfg,
		apiClient: apiClient,
		logger:    logger,
	}
}

// Name returns the carrier name.
func (c *Client) Name() string {
	return carrierName
}

// GetRate returns a shipping rate estimate from StarShipIt.
func (c *Client) GetRate(ctx context.Context, req *carrier.RateRequest) (*carrier.RateResponse, error) {
	c.logger.Info("Getting StarShipIt rates",
		zap.String("to_postcode", req.ToPostcode),
		zap.Int("package_count", len(req.Packages)),
	)

	apiReq := &RatesRequest{
		Destination: Destination{
			PostCode: req.ToPostcode,
			Country:  "Australia",
		},
		Packages: packagesToAPI(req.Packages),
	}

	apiResp, err := c.apiClient.GetRates(ctx, apiReq)
	if err != nil {
		c.logger.Error("StarShipIt API error", zap.Error(err))
		return nil, c.wrapError(err)
	}

	if len(apiResp.Rates) == 0 {
		return nil, carrier.NewError(carrierName, "NO_RATES", "no rates returned for destination")
	}

	// Cheapest rate wins
	best := apiResp.Rates[0]
	for _, r := range apiResp.Rates[1:] {
		if r.TotalPrice < best.TotalPrice {
			best = r
		}
	}

	return &carrier.RateResponse{
		Carrier:     carrierName,
		ServiceName: best.ServiceName,
		Amount:      best.TotalPrice,
		Currency:    "AUD",
	}, nil
}

// CreateOrder creates a delivery order with StarShipIt.
func (c *Client) CreateOrder(ctx context.Context, req *carrier.CreateOrderRequest) (*carrier.CreateOrderResponse, error) {
	c.logger.Info("Creating StarShipIt order",
		zap.String("reference", req.Reference),
		zap.String("suburb", req.Delivery.Suburb),
	)

	apiReq := &OrderRequest{
		Order: Order{
			OrderDate:      req.OrderDate,
			OrderNumber:    req.Reference,
			Reference:      req.Reference,
			Currency:       "AUD",
			ShippingMethod: c.serviceType(req.ServiceType),
			Destination: Destination{
				Name:     req.Customer.Name,
				Phone:    req.Customer.Phone,
				Street:   req.Delivery.Street,
				Suburb:   req.Delivery.Suburb,
				State:    req.Delivery.State,
				PostCode: req.Delivery.Postcode,
				Country:  "Australia",
			},
			Items:    itemsToAPI(req),
			Packages: packagesToAPI(req.Packages),
		},
	}

	apiResp, err := c.apiClient.CreateOrder(ctx, apiReq)
	if err != nil {
		c.logger.Error("StarShipIt API error", zap.Error(err))
		return nil, c.wrapError(err)
	}

	return orderResponseToCarrier(apiResp), nil
}

// wrapError converts API-level errors into carrier errors, classifying
// timeouts and provider outages as retryable.
func (c *Client) wrapError(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		code := "API_ERROR"
		if apiErr.StatusCode != 0 {
			code = "HTTP_" + strconv.Itoa(apiErr.StatusCode)
		}
		return carrier.NewError(carrierName, code, apiErr.Message).
			WithStatusCode(apiErr.StatusCode).
			WithBody(apiErr.Details).
			WithRetryable(apiErr.StatusCode >= http.StatusInternalServerError ||
				apiErr.StatusCode == http.StatusTooManyRequests).
			WithCause(err)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return carrier.NewError(carrierName, "TIMEOUT", "request timed out").
			WithRetryable(true).
			WithCause(err)
	}

	return carrier.NewError(carrierName, "REQUEST_FAILED", "request failed").
		WithRetryable(true).
		WithCause(err)
}

func (c *Client) serviceType(requested string) string {
	if requested != "" {
		return requested
	}
	return c.config.ShippingMethod
}

func packagesToAPI(pkgs []carrier.Package) []Package {
	result := make([]Package, len(pkgs))
	for i, p := range pkgs {
		result[i] = Package{
			Weight: p.Weight,
			// StarShipIt expects metres
			Height: p.Height / 100,
			Width:  p.Width / 100,
			Length: p.Length / 100,
		}
	}
	return result
}

func itemsToAPI(req *carrier.CreateOrderRequest) []Item {
	if req.Description == "" && req.Value == 0 {
		return nil
	}

	qty := 0
	for _, p := range req.Packages {
		if p.Quantity > 0 {
			qty += p.Quantity
		} else {
			qty++
		}
	}
	if qty == 0 {
		qty = 1
	}

	return []Item{
		{
			Description: req.Description,
			Quantity:    qty,
			Value:       req.Value,
		},
	}
}

// orderResponseToCarrier maps the response, checking both the nested order
// and the top-level fields for tracking data.
func orderResponseToCarrier(resp *OrderResponse) *carrier.CreateOrderResponse {
	out := &carrier.CreateOrderResponse{
		Carrier:        carrierName,
		TrackingNumber: resp.TrackingNumber,
		LabelURL:       resp.LabelURL,
	}

	if resp.Order != nil {
		out.OrderID = strconv.FormatInt(resp.Order.OrderID, 10)
		if resp.Order.TrackingNumber != "" {
			out.TrackingNumber = resp.Order.TrackingNumber
		}
		out.TrackingURL = resp.Order.TrackingURL
		if resp.Order.LabelURL != "" {
			out.LabelURL = resp.Order.LabelURL
		}
	}

	return out
}

var _ carrier.Carrier = (*Client)(nil)
