package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"go.opentelemetry.io/otel/attribute"
)

// Config holds all configuration for the service. Every third-party
// credential is injected here; none are compiled in.
type Config struct {
	// Server
	Port     int    `envconfig:"PORT" default:"80"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Carrier selection. All dispatches go to this one provider.
	Carrier     string `envconfig:"CARRIER" default:"shippit"`
	ServiceType string `envconfig:"CARRIER_SERVICE_TYPE" default:"standard"`

	// Shippit
	ShippitAPIKey  string `envconfig:"SHIPPIT_API_KEY"`
	ShippitBaseURL string `envconfig:"SHIPPIT_BASE_URL" default:"https://app.shippit.com"`
	ShippitUseMock bool   `envconfig:"SHIPPIT_USE_MOCK" default:"false"`

	// StarShipIt
	StarShipItAPIKey          string `envconfig:"STARSHIPIT_API_KEY"`
	StarShipItSubscriptionKey string `envconfig:"STARSHIPIT_SUBSCRIPTION_KEY"`
	StarShipItBaseURL         string `envconfig:"STARSHIPIT_BASE_URL" default:"https://api.starshipit.com"`
	StarShipItUseMock         bool   `envconfig:"STARSHIPIT_USE_MOCK" default:"false"`

	// Storefront
	ShopifyAPIVersion    string `envconfig:"SHOPIFY_API_VERSION" default:"2024-01"`
	ShopifyWebhookSecret string `envconfig:"SHOPIFY_WEBHOOK_SECRET"`

	// Invoicing
	XeroAccessToken string `envconfig:"XERO_ACCESS_TOKEN"`
	XeroTenantID    string `envconfig:"XERO_TENANT_ID"`
	XeroBaseURL     string `envconfig:"XERO_BASE_URL" default:"https://api.xero.com"`
	XeroWebhookKey  string `envconfig:"XERO_WEBHOOK_KEY"`
	XeroUseMock     bool   `envconfig:"XERO_USE_MOCK" default:"false"`

	// Payments
	StripeSecretKey string `envconfig:"STRIPE_SECRET_KEY"`
	StripeBaseURL   string `envconfig:"STRIPE_BASE_URL" default:"https://api.stripe.com"`
	StripeUseMock   bool   `envconfig:"STRIPE_USE_MOCK" default:"false"`

	// Storage. With no DATABASE_URL the service runs on the in-memory
	// store; with no REDIS_ADDR webhook dedup falls back to a no-op.
	DatabaseURL string `envconfig:"DATABASE_URL"`
	RedisAddr   string `envconfig:"REDIS_ADDR"`

	// Outbound notifications and automation relay
	NotificationURL    string `envconfig:"NOTIFICATION_URL"`
	NotificationAPIKey string `envconfig:"NOTIFICATION_API_KEY"`
	AutomationURL      string `envconfig:"AUTOMATION_URL"`
	AutomationSecret   string `envconfig:"AUTOMATION_SECRET"`

	// Tracking page
	TrackingURLBase string `envconfig:"TRACKING_URL_BASE" default:"https://track.nsjexpress.com.au/"`

	// Telemetry
	OTELEnabled  bool   `envconfig:"OTEL_ENABLED" default:"true"`
	OTELEndpoint string `envconfig:"OTEL_ENDPOINT" default:"http://jaeger-collector.observability.svc.cluster.local:4318"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"nsj-dispatch"`
	Version      string `envconfig:"SERVICE_VERSION" default:"0.0.1"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that cannot serve dispatches.
func (c *Config) Validate() error {
	switch c.Carrier {
	case "shippit":
		if c.ShippitAPIKey == "" && !c.ShippitUseMock {
			return fmt.Errorf("SHIPPIT_API_KEY is required when CARRIER=shippit")
		}
	case "starshipit":
		if c.StarShipItAPIKey == "" && !c.StarShipItUseMock {
			return fmt.Errorf("STARSHIPIT_API_KEY is required when CARRIER=starshipit")
		}
	default:
		return fmt.Errorf("unknown CARRIER %q, expected shippit or starshipit", c.Carrier)
	}
	return nil
}

// Attributes returns OpenTelemetry attributes for this configuration.
func (c *Config) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("service.name", c.ServiceName),
		attribute.String("service.version", c.Version),
		attribute.String("dispatch.carrier", c.Carrier),
		attribute.Bool("store.postgres", c.DatabaseURL != ""),
		attribute.Bool("dedup.redis", c.RedisAddr != ""),
	}
}
