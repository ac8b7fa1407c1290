// Package shippit provides integration with the Shippit delivery API.
package shippit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/nsjexpress/dispatch/pkg/carrier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const carrierName = "shippit"

// Config holds Shippit configuration.
type Config struct {
	APIKey      string
	BaseURL     string
	CourierType string // Default courier type when the booking carries none
	UseMock     bool   // When true, uses mock API client
}

// Client is the Shippit carrier client.
// It implements the carrier.Carrier interface and delegates
// API calls to the underlying APIClient (mock or HTTP).
type Client struct {
	config    Config
	apiClient APIClient
	logger    *otelzap.Logger
}

// New creates a new Shippit client.
// If cfg.UseMock is true, it uses a mock API client for testing.
// Otherwise, it uses the real HTTP API client.
func New(cfg Config, logger *otelzap.Logger) *Client {
	var apiClient APIClient

	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		apiClient = NewHTTPAPIClient(HTTPAPIClientConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Timeout: 30 * time.Second,
		})
	}

	return &Client{
		config:    cfg,
		apiClient: apiClient,
		logger:    logger,
	}
}

// NewWithAPIClient creates a new Shippit client with a custom API client.
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

// GetRate returns a shipping rate estimate from Shippit.
func (c *Client) GetRate(ctx context.Context, req *carrier.RateRequest) (*carrier.RateResponse, error) {
	c.logger.Info("Getting Shippit quote",
		zap.String("to_postcode", req.ToPostcode),
		zap.Int("package_count", len(req.Packages)),
	)

	apiReq := &QuoteRequest{
		Quote: QuoteAttributes{
			DropoffPostcode:  req.ToPostcode,
			ParcelAttributes: packagesToAPI(req.Packages),
		},
	}

	apiResp, err := c.apiClient.GetQuote(ctx, apiReq)
	if err != nil {
		c.logger.Error("Shippit API error", zap.Error(err))
		return nil, c.wrapError(err)
	}

	courierType := c.courierType()
	for _, opt := range apiResp.Response {
		if opt.CourierType != courierType || len(opt.Quotes) == 0 {
			continue
		}
		return &carrier.RateResponse{
			Carrier:     carrierName,
			ServiceName: opt.CourierType,
			Amount:      opt.Quotes[0].Price,
			Currency:    "AUD",
		}, nil
	}

	return nil, carrier.NewError(carrierName, "NO_QUOTE",
		fmt.Sprintf("no quote returned for courier type %q", courierType))
}

// CreateOrder books a consignment with Shippit.
func (c *Client) CreateOrder(ctx context.Context, req *carrier.CreateOrderRequest) (*carrier.CreateOrderResponse, error) {
	c.logger.Info("Creating Shippit order",
		zap.String("reference", req.Reference),
		zap.String("suburb", req.Delivery.Suburb),
	)

	firstName, lastName := splitName(req.Customer.Name)

	apiReq := &OrderRequest{
		Order: OrderAttributes{
			CourierType:          c.serviceType(req.ServiceType),
			DeliveryAddress:      req.Delivery.Street,
			DeliverySuburb:       req.Delivery.Suburb,
			DeliveryState:        req.Delivery.State,
			DeliveryPostcode:     req.Delivery.Postcode,
			DeliveryInstructions: req.Delivery.Instructions,
			RetailerOrderNumber:  req.Reference,
			ParcelAttributes:     packagesToAPI(req.Packages),
			UserAttributes: UserAttributes{
				Email:     req.Customer.Email,
				FirstName: firstName,
				LastName:  lastName,
				Phone:     req.Customer.Phone,
			},
		},
	}

	apiResp, err := c.apiClient.CreateOrder(ctx, apiReq)
	if err != nil {
		c.logger.Error("Shippit API error", zap.Error(err))
		return nil, c.wrapError(err)
	}

	result := apiResp.Response
	if result == nil {
		result = apiResp.Order
	}
	if result == nil {
		return nil, carrier.NewError(carrierName, "EMPTY_RESPONSE", "order response carried no order payload")
	}

	orderID := result.OrderID
	if orderID == "" {
		orderID = result.ID
	}

	return &carrier.CreateOrderResponse{
		Carrier:        carrierName,
		OrderID:        orderID,
		TrackingNumber: result.TrackingNumber,
		TrackingURL:    result.TrackingURL,
		LabelURL:       result.LabelURL,
	}, nil
}

// wrapError converts API-level errors into carrier errors, classifying
// timeouts and provider outages as retryable.
func (c *Client) wrapError(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return carrier.NewError(carrierName, apiErr.Code, apiErr.Message).
			WithStatusCode(apiErr.StatusCode).
			WithBody(apiErr.Body).
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

func (c *Client) courierType() string {
	if c.config.CourierType != "" {
		return c.config.CourierType
	}
	return "standard"
}

func (c *Client) serviceType(requested string) string {
	if requested != "" {
		return requested
	}
	return c.courierType()
}

// splitName splits a full name into Shippit's first/last name fields.
func splitName(name string) (string, string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func packagesToAPI(pkgs []carrier.Package) []ParcelAttribute {
	result := make([]ParcelAttribute, len(pkgs))
	for i, p := range pkgs {
		qty := p.Quantity
		if qty == 0 {
			qty = 1
		}
		result[i] = ParcelAttribute{
			Qty:    qty,
			Weight: p.Weight,
			// Shippit expects metres
			Length: p.Length / 100,
			Width:  p.Width / 100,
			Depth:  p.Height / 100,
		}
	}
	return result
}

var _ carrier.Carrier = (*Client)(nil)
