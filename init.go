package main

import (
	"context"
	"fmt"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"

	"github.com/nsjexpress/dispatch/internal/automation"
	"github.com/nsjexpress/dispatch/internal/cache"
	"github.com/nsjexpress/dispatch/internal/config"
	"github.com/nsjexpress/dispatch/internal/dispatch"
	"github.com/nsjexpress/dispatch/internal/gateway"
	"github.com/nsjexpress/dispatch/internal/invoicing/xero"
	"github.com/nsjexpress/dispatch/internal/notify"
	"github.com/nsjexpress/dispatch/internal/payments"
	"github.com/nsjexpress/dispatch/internal/payments/stripe"
	"github.com/nsjexpress/dispatch/internal/server"
	"github.com/nsjexpress/dispatch/internal/store"
	storefront "github.com/nsjexpress/dispatch/internal/storefront/shopify"
	"github.com/nsjexpress/dispatch/internal/telemetry"
	"github.com/nsjexpress/dispatch/internal/tracking"
	"github.com/nsjexpress/dispatch/pkg/carrier"
	"github.com/nsjexpress/dispatch/pkg/carrier/shippit"
	"github.com/nsjexpress/dispatch/pkg/carrier/starshipit"
)

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func initLogger(level string) (*otelzap.Logger, error) {
	return telemetry.NewLogger(level)
}

func initTracer(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	if !cfg.OTELEnabled {
		return func(context.Context) error { return nil }, nil
	}

	_, shutdown, err := telemetry.InitTracer(ctx, cfg.OTELEndpoint, cfg.ServiceName, cfg.Version)
	return shutdown, err
}

// app holds the wired service graph.
type app struct {
	Server *server.Server

	pg *store.Postgres
}

// Close releases held connections.
func (a *app) Close() {
	if a.pg != nil {
		a.pg.Close()
	}
}

// buildApp wires configuration into the running service: storage, dedup
// cache, carrier registry, the orchestration services and the HTTP surface.
func buildApp(ctx context.Context, cfg *config.Config, logger *otelzap.Logger) (*app, error) {
	metrics := telemetry.NewMetrics()

	var (
		st store.Store
		pg *store.Postgres
	)
	if cfg.DatabaseURL != "" {
		var err error
		pg, err = store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		st = pg
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		st = store.NewMemory()
	}

	var deduper cache.Deduper = cache.NoopDeduper{}
	if cfg.RedisAddr != "" {
		deduper = cache.NewRedisDeduper(cache.Config{Addr: cfg.RedisAddr})
	}

	registry := initCarrierRegistry(cfg, logger)

	shopifyAPI := storefront.NewHTTPAPIClient(storefront.HTTPAPIClientConfig{
		APIVersion: cfg.ShopifyAPIVersion,
	})
	relay := tracking.NewRelay(tracking.Config{TrackingURLBase: cfg.TrackingURLBase}, st, shopifyAPI, logger, metrics)

	notifier := notify.NewClient(notify.Config{
		URL:    cfg.NotificationURL,
		APIKey: cfg.NotificationAPIKey,
	}, logger)
	publisher := automation.NewPublisher(automation.Config{
		URL:    cfg.AutomationURL,
		Secret: cfg.AutomationSecret,
	}, logger)

	dispatcher := dispatch.NewDispatcher(dispatch.Config{
		Carrier:     cfg.Carrier,
		ServiceType: cfg.ServiceType,
	}, st, registry, relay, notifier, publisher, logger, metrics)

	gw := gateway.New(st, deduper, dispatcher, logger, metrics)

	var xeroAPI xero.APIClient = xero.NewHTTPAPIClient(xero.HTTPAPIClientConfig{
		BaseURL:     cfg.XeroBaseURL,
		AccessToken: cfg.XeroAccessToken,
		TenantID:    cfg.XeroTenantID,
	})
	if cfg.XeroUseMock {
		xeroAPI = xero.NewMockAPIClient()
	}

	var stripeAPI stripe.APIClient = stripe.NewHTTPAPIClient(stripe.HTTPAPIClientConfig{
		BaseURL:   cfg.StripeBaseURL,
		SecretKey: cfg.StripeSecretKey,
	})
	if cfg.StripeUseMock {
		stripeAPI = stripe.NewMockAPIClient()
	}

	bridge := payments.NewBridge(st, xeroAPI, stripeAPI, dispatcher, logger, metrics)

	srv := server.New(server.Config{
		Port:                 cfg.Port,
		ShopifyWebhookSecret: cfg.ShopifyWebhookSecret,
		XeroWebhookKey:       cfg.XeroWebhookKey,
	}, gw, bridge, dispatcher, relay, logger, metrics)

	return &app{Server: srv, pg: pg}, nil
}

// initCarrierRegistry registers both carrier clients; the dispatcher only
// ever books through the configured one.
func initCarrierRegistry(cfg *config.Config, logger *otelzap.Logger) *carrier.Registry {
	registry := carrier.NewRegistry()

	registry.Register(shippit.New(shippit.Config{
		APIKey:      cfg.ShippitAPIKey,
		BaseURL:     cfg.ShippitBaseURL,
		CourierType: cfg.ServiceType,
		UseMock:     cfg.ShippitUseMock,
	}, logger))

	registry.Register(starshipit.New(starshipit.Config{
		APIKey:          cfg.StarShipItAPIKey,
		SubscriptionKey: cfg.StarShipItSubscriptionKey,
		BaseURL:         cfg.StarShipItBaseURL,
		ShippingMethod:  cfg.ServiceType,
		UseMock:         cfg.StarShipItUseMock,
	}, logger))

	return registry
}
