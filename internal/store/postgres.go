package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ryabkov82/ride-booking-ingest/internal/booking"
	"github.com/ryabkov82/ride-booking-ingest/internal/config"
)

const createBookingsTable = `
CREATE TABLE IF NOT EXISTS ride_bookings (
	booking_id      TEXT PRIMARY KEY,
	booking_date    TEXT NOT NULL,
	booking_time    TEXT NOT NULL,
	booking_status  TEXT NOT NULL,
	customer_id     TEXT NOT NULL,
	vehicle_type    TEXT NOT NULL,
	pickup_location TEXT NOT NULL,
	drop_location   TEXT NOT NULL,
	booking_value   DOUBLE PRECISION,
	ride_distance   DOUBLE PRECISION,
	driver_ratings  DOUBLE PRECISION,
	customer_rating DOUBLE PRECISION,
	payment_method  TEXT,
	ingested_at     TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const upsertBooking = `
INSERT INTO ride_bookings (
	booking_id, booking_date, booking_time, booking_status, customer_id,
	vehicle_type, pickup_location, drop_location, booking_value,
	ride_distance, driver_ratings, customer_rating, payment_method
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (booking_id) DO UPDATE SET
	booking_date    = EXCLUDED.booking_date,
	booking_time    = EXCLUDED.booking_time,
	booking_status  = EXCLUDED.booking_status,
	customer_id     = EXCLUDED.customer_id,
	vehicle_type    = EXCLUDED.vehicle_type,
	pickup_location = EXCLUDED.pickup_location,
	drop_location   = EXCLUDED.drop_location,
	booking_value   = EXCLUDED.booking_value,
	ride_distance   = EXCLUDED.ride_distance,
	driver_ratings  = EXCLUDED.driver_ratings,
	customer_rating = EXCLUDED.customer_rating,
	payment_method  = EXCLUDED.payment_method,
	ingested_at     = now()`

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSink upserts bookings into the ride_bookings table
type PostgresSink struct {
	db    execer
	close func()
}

// NewPostgresSink connects, verifies connectivity and ensures the table exists
func NewPostgresSink(ctx context.Context, cfg config.Postgres, log *logrus.Entry) (*PostgresSink, error) {
	start := time.Now()

	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "postgres parse dsn")
	}

	pcfg.ConnConfig.ConnectTimeout = 5 * time.Second
	if pcfg.ConnConfig.RuntimeParams == nil {
		pcfg.ConnConfig.RuntimeParams = make(map[string]string, 1)
	}
	pcfg.ConnConfig.RuntimeParams["timezone"] = "UTC"
	pcfg.HealthCheckPeriod = 30 * time.Second
	pcfg.MaxConnIdleTime = 5 * time.Minute
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, errors.Wrap(err, "pgxpool.NewWithConfig")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "postgres ping")
	}

	s := &PostgresSink{db: pool, close: pool.Close}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"host":        pcfg.ConnConfig.Host,
		"database":    pcfg.ConnConfig.Database,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Connected to PostgreSQL")

	return s, nil
}

// EnsureSchema creates the ride_bookings table if it is missing
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createBookingsTable); err != nil {
		return errors.Wrap(err, "create ride_bookings table")
	}
	return nil
}

func (s *PostgresSink) Name() string { return BackendPostgres }

func (s *PostgresSink) Store(ctx context.Context, b *booking.RideBooking) error {
	_, err := s.db.Exec(ctx, upsertBooking,
		b.BookingID,
		b.Date,
		b.Time,
		b.BookingStatus,
		b.CustomerID,
		b.VehicleType,
		b.PickupLocation,
		b.DropLocation,
		b.BookingValue,
		b.RideDistance,
		b.DriverRatings,
		b.CustomerRating,
		b.PaymentMethod,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert booking %s", b.BookingID)
	}
	return nil
}

func (s *PostgresSink) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
