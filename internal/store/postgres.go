package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nsjexpress/dispatch/internal/booking"
)

const bookingColumns = `id, pickup_address, pickup_postcode, delivery_address, delivery_postcode,
	package_weight_kg, package_length_cm, package_width_cm, package_height_cm, quantity, description,
	customer_name, customer_email, customer_phone, status, payment_status, estimated_price,
	carrier_order_id, tracking_number, label_url, invoice_id, invoice_number, payment_session_id,
	reference_number, created_at, paid_at, carrier_sent_at, updated_at`

// Postgres is the production store backed by a pgx connection pool.
type Postgres struct {
	db *pgxpool.Pool
}

// NewPostgres connects to the database and verifies the connection.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Postgres{db: pool}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.db.Close()
}

func (p *Postgres) CreateBooking(ctx context.Context, b *booking.Booking) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now

	_, err := p.db.Exec(ctx, `INSERT INTO bookings (id, pickup_address, pickup_postcode, delivery_address, delivery_postcode,
		package_weight_kg, package_length_cm, package_width_cm, package_height_cm, quantity, description,
		customer_name, customer_email, customer_phone, status, payment_status, estimated_price,
		carrier_order_id, tracking_number, label_url, invoice_id, invoice_number, payment_session_id,
		reference_number, created_at, paid_at, carrier_sent_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28)`,
		b.ID, b.PickupAddress, b.PickupPostcode, b.DeliveryAddress, b.DeliveryPostcode,
		b.PackageWeightKG, b.PackageLengthCM, b.PackageWidthCM, b.PackageHeightCM, b.Quantity, b.Description,
		b.CustomerName, b.CustomerEmail, b.CustomerPhone, b.Status, b.PaymentStatus, b.EstimatedPrice,
		b.CarrierOrderID, b.TrackingNumber, b.LabelURL, b.InvoiceID, b.InvoiceNumber, b.PaymentSessionID,
		b.ReferenceNumber, b.CreatedAt, b.PaidAt, b.CarrierSentAt, b.UpdatedAt)
	return err
}

func (p *Postgres) GetBooking(ctx context.Context, id string) (*booking.Booking, error) {
	return p.queryBooking(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id)
}

func (p *Postgres) FindBookingByReference(ctx context.Context, reference string) (*booking.Booking, error) {
	if reference == "" {
		return nil, ErrNotFound
	}
	return p.queryBooking(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE reference_number=$1`, reference)
}

func (p *Postgres) FindBookingByInvoiceID(ctx context.Context, invoiceID string) (*booking.Booking, error) {
	if invoiceID == "" {
		return nil, ErrNotFound
	}
	return p.queryBooking(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE invoice_id=$1`, invoiceID)
}

func (p *Postgres) FindBookingBySession(ctx context.Context, sessionID string) (*booking.Booking, error) {
	if sessionID == "" {
		return nil, ErrNotFound
	}
	return p.queryBooking(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE payment_session_id=$1`, sessionID)
}

func (p *Postgres) TransitionBooking(ctx context.Context, id string, ev booking.Event, f booking.Fields) (*booking.Booking, bool, error) {
	current, err := p.GetBooking(ctx, id)
	if err != nil {
		return nil, false, err
	}

	updated, changed, err := booking.Apply(*current, ev, f, time.Now().UTC())
	if err != nil {
		return nil, false, err
	}
	if !changed {
		return &updated, false, nil
	}

	// Guard on the status we read so a concurrent transition fails
	// loudly instead of being silently overwritten.
	tag, err := p.db.Exec(ctx, `UPDATE bookings SET status=$1, payment_status=$2, estimated_price=$3,
		carrier_order_id=$4, tracking_number=$5, label_url=$6, invoice_id=$7, invoice_number=$8,
		payment_session_id=$9, paid_at=$10, carrier_sent_at=$11, updated_at=$12
		WHERE id=$13 AND status=$14`,
		updated.Status, updated.PaymentStatus, updated.EstimatedPrice,
		updated.CarrierOrderID, updated.TrackingNumber, updated.LabelURL, updated.InvoiceID, updated.InvoiceNumber,
		updated.PaymentSessionID, updated.PaidAt, updated.CarrierSentAt, updated.UpdatedAt,
		id, current.Status)
	if err != nil {
		return nil, false, err
	}
	if tag.RowsAffected() == 0 {
		return nil, false, ErrConflict
	}
	return &updated, true, nil
}

func (p *Postgres) UpsertStorefrontOrder(ctx context.Context, o *booking.StorefrontOrder) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	row := p.db.QueryRow(ctx, `INSERT INTO storefront_orders (id, integration_id, platform, external_order_id,
		order_number, booking_id, customer_name, customer_email, order_total, tracking_number, tracking_url,
		fulfilled, synced_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (platform, external_order_id) DO UPDATE SET
			integration_id=EXCLUDED.integration_id,
			order_number=EXCLUDED.order_number,
			booking_id=EXCLUDED.booking_id,
			customer_name=EXCLUDED.customer_name,
			customer_email=EXCLUDED.customer_email,
			order_total=EXCLUDED.order_total,
			updated_at=EXCLUDED.updated_at
		RETURNING id, fulfilled, tracking_number, tracking_url, synced_at, created_at`,
		o.ID, o.IntegrationID, o.Platform, o.ExternalOrderID,
		o.OrderNumber, o.BookingID, o.CustomerName, o.CustomerEmail, o.OrderTotal, o.TrackingNumber, o.TrackingURL,
		o.Fulfilled, o.SyncedAt, o.CreatedAt, o.UpdatedAt)

	// Fulfilment state survives redelivered order webhooks
	return row.Scan(&o.ID, &o.Fulfilled, &o.TrackingNumber, &o.TrackingURL, &o.SyncedAt, &o.CreatedAt)
}

func (p *Postgres) GetStorefrontOrder(ctx context.Context, platform, externalOrderID string) (*booking.StorefrontOrder, error) {
	return p.queryOrder(ctx, `WHERE platform=$1 AND external_order_id=$2`, platform, externalOrderID)
}

func (p *Postgres) FindStorefrontOrderByBooking(ctx context.Context, bookingID string) (*booking.StorefrontOrder, error) {
	if bookingID == "" {
		return nil, ErrNotFound
	}
	return p.queryOrder(ctx, `WHERE booking_id=$1`, bookingID)
}

func (p *Postgres) MarkStorefrontSynced(ctx context.Context, id, trackingNumber, trackingURL string, at time.Time) error {
	tag, err := p.db.Exec(ctx, `UPDATE storefront_orders SET tracking_number=$1, tracking_url=$2,
		fulfilled=true, synced_at=$3, updated_at=$3 WHERE id=$4`,
		trackingNumber, trackingURL, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) UpsertIntegration(ctx context.Context, in *booking.Integration) error {
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if in.CreatedAt.IsZero() {
		in.CreatedAt = now
	}
	in.UpdatedAt = now

	row := p.db.QueryRow(ctx, `INSERT INTO integrations (id, platform, shop_domain, status, access_token,
		auto_dispatch, last_sync_at, last_error, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (platform, shop_domain) DO UPDATE SET
			status=EXCLUDED.status,
			access_token=EXCLUDED.access_token,
			auto_dispatch=EXCLUDED.auto_dispatch,
			updated_at=EXCLUDED.updated_at
		RETURNING id, created_at`,
		in.ID, in.Platform, in.ShopDomain, in.Status, in.AccessToken,
		in.AutoDispatch, in.LastSyncAt, in.LastError, in.CreatedAt, in.UpdatedAt)

	return row.Scan(&in.ID, &in.CreatedAt)
}

func (p *Postgres) GetIntegration(ctx context.Context, platform, shopDomain string) (*booking.Integration, error) {
	row := p.db.QueryRow(ctx, `SELECT id, platform, shop_domain, status, access_token, auto_dispatch,
		last_sync_at, last_error, created_at, updated_at FROM integrations WHERE platform=$1 AND shop_domain=$2`,
		platform, shopDomain)

	var in booking.Integration
	err := row.Scan(&in.ID, &in.Platform, &in.ShopDomain, &in.Status, &in.AccessToken, &in.AutoDispatch,
		&in.LastSyncAt, &in.LastError, &in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &in, nil
}

func (p *Postgres) GetIntegrationByID(ctx context.Context, id string) (*booking.Integration, error) {
	row := p.db.QueryRow(ctx, `SELECT id, platform, shop_domain, status, access_token, auto_dispatch,
		last_sync_at, last_error, created_at, updated_at FROM integrations WHERE id=$1`, id)

	var in booking.Integration
	err := row.Scan(&in.ID, &in.Platform, &in.ShopDomain, &in.Status, &in.AccessToken, &in.AutoDispatch,
		&in.LastSyncAt, &in.LastError, &in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &in, nil
}

func (p *Postgres) MarkIntegrationSynced(ctx context.Context, id string, at time.Time) error {
	tag, err := p.db.Exec(ctx, `UPDATE integrations SET status=$1, last_sync_at=$2, last_error='', updated_at=$2 WHERE id=$3`,
		booking.IntegrationConnected, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) MarkIntegrationError(ctx context.Context, id, message string) error {
	tag, err := p.db.Exec(ctx, `UPDATE integrations SET status=$1, last_error=$2, updated_at=now() WHERE id=$3`,
		booking.IntegrationError, message, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) queryBooking(ctx context.Context, query string, args ...any) (*booking.Booking, error) {
	row := p.db.QueryRow(ctx, query, args...)

	var b booking.Booking
	err := row.Scan(&b.ID, &b.PickupAddress, &b.PickupPostcode, &b.DeliveryAddress, &b.DeliveryPostcode,
		&b.PackageWeightKG, &b.PackageLengthCM, &b.PackageWidthCM, &b.PackageHeightCM, &b.Quantity, &b.Description,
		&b.CustomerName, &b.CustomerEmail, &b.CustomerPhone, &b.Status, &b.PaymentStatus, &b.EstimatedPrice,
		&b.CarrierOrderID, &b.TrackingNumber, &b.LabelURL, &b.InvoiceID, &b.InvoiceNumber, &b.PaymentSessionID,
		&b.ReferenceNumber, &b.CreatedAt, &b.PaidAt, &b.CarrierSentAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (p *Postgres) queryOrder(ctx context.Context, where string, args ...any) (*booking.StorefrontOrder, error) {
	row := p.db.QueryRow(ctx, `SELECT id, integration_id, platform, external_order_id, order_number, booking_id,
		customer_name, customer_email, order_total, tracking_number, tracking_url, fulfilled, synced_at,
		created_at, updated_at FROM storefront_orders `+where, args...)

	var o booking.StorefrontOrder
	err := row.Scan(&o.ID, &o.IntegrationID, &o.Platform, &o.ExternalOrderID, &o.OrderNumber, &o.BookingID,
		&o.CustomerName, &o.CustomerEmail, &o.OrderTotal, &o.TrackingNumber, &o.TrackingURL, &o.Fulfilled, &o.SyncedAt,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

var _ Store = (*Postgres)(nil)
