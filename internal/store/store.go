// Package store delivers accepted ride bookings to the aggregation store.
//
// The ingestion API only sees the Sink interface. Each backend (stdout log,
// in-memory aggregate, Kafka, PostgreSQL, RabbitMQ) is an independent
// collaborator; none of them shares state with the request handlers.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ryabkov82/ride-booking-ingest/internal/booking"
	"github.com/ryabkov82/ride-booking-ingest/internal/config"
)

// Sink receives validated bookings. Implementations must be safe for
// concurrent use: the server calls Store from many request goroutines.
type Sink interface {
	Name() string
	Store(ctx context.Context, b *booking.RideBooking) error
	Close() error
}

// Backend names accepted in RIDES_STORE_BACKENDS
const (
	BackendLog      = "log"
	BackendMemory   = "memory"
	BackendKafka    = "kafka"
	BackendPostgres = "postgres"
	BackendRabbitMQ = "rabbitmq"
)

// Open builds the sink(s) named in cfg.Backends. With more than one backend
// the result is a Fanout in the listed order.
func Open(ctx context.Context, cfg config.Store, log *logrus.Entry) (Sink, error) {
	if len(cfg.Backends) == 0 {
		return nil, errors.New("no store backend configured")
	}

	var sinks []Sink
	closeAll := func() {
		for _, s := range sinks {
			_ = s.Close()
		}
	}

	for _, name := range cfg.Backends {
		var (
			s   Sink
			err error
		)
		switch strings.ToLower(strings.TrimSpace(name)) {
		case BackendLog:
			s = NewLogSink(nil)
		case BackendMemory:
			s = NewMemorySink()
		case BackendKafka:
			s, err = NewKafkaSink(cfg.Kafka)
		case BackendPostgres:
			s, err = NewPostgresSink(ctx, cfg.Postgres, log)
		case BackendRabbitMQ:
			s, err = NewRabbitSink(cfg.RabbitMQ, log)
		default:
			err = fmt.Errorf("unknown store backend %q", name)
		}
		if err != nil {
			closeAll()
			return nil, errors.Wrapf(err, "open %s store", name)
		}
		log.WithField("backend", s.Name()).Info("Store backend ready")
		sinks = append(sinks, s)
	}

	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return NewFanout(sinks...), nil
}
