package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/ryabkov82/ride-booking-ingest/internal/booking"
	"github.com/ryabkov82/ride-booking-ingest/internal/config"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitSink publishes bookings as persistent messages and waits for the
// broker to confirm each one. Confirms are matched to publishes by delivery
// tag, so a slow confirm only holds up its own Store call.
type RabbitSink struct {
	exchange   string
	routingKey string
	timeout    time.Duration

	// publishes are serialized so delivery tags follow publish order
	mu      sync.Mutex
	ch      amqpChannel
	conn    *amqp.Connection
	lastTag uint64

	pendingMu    sync.Mutex
	pending      map[uint64]chan amqp.Confirmation
	confirmsDone bool
}

// NewRabbitSink dials the broker, declares the exchange and enables
// publisher confirms
func NewRabbitSink(cfg config.RabbitMQ, log *logrus.Entry) (*RabbitSink, error) {
	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(30 * time.Second),
	})
	if err != nil {
		return nil, errors.Wrap(err, "rabbitmq dial")
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "rabbitmq open channel")
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "rabbitmq declare exchange %s", cfg.Exchange)
	}

	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "rabbitmq enable confirms")
	}
	confirms := ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	log.WithFields(logrus.Fields{
		"exchange":   cfg.Exchange,
		"routingKey": cfg.RoutingKey,
	}).Info("RabbitMQ connection established")

	s := newRabbitSink(ch, confirms, cfg)
	s.conn = conn
	return s, nil
}

func newRabbitSink(ch amqpChannel, confirms <-chan amqp.Confirmation, cfg config.RabbitMQ) *RabbitSink {
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	s := &RabbitSink{
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		timeout:    timeout,
		ch:         ch,
		pending:    make(map[uint64]chan amqp.Confirmation),
	}
	go s.dispatchConfirms(confirms)
	return s
}

// dispatchConfirms hands each confirm to the Store call waiting on its tag.
// Confirms nobody waits for any more are dropped. When the broker closes the
// channel every remaining waiter is released.
func (s *RabbitSink) dispatchConfirms(confirms <-chan amqp.Confirmation) {
	for c := range confirms {
		s.pendingMu.Lock()
		wait, ok := s.pending[c.DeliveryTag]
		delete(s.pending, c.DeliveryTag)
		s.pendingMu.Unlock()
		if ok {
			wait <- c
		}
	}

	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	s.confirmsDone = true
	for tag, wait := range s.pending {
		close(wait)
		delete(s.pending, tag)
	}
}

func (s *RabbitSink) expect(tag uint64) (chan amqp.Confirmation, bool) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if s.confirmsDone {
		return nil, false
	}
	wait := make(chan amqp.Confirmation, 1)
	s.pending[tag] = wait
	return wait, true
}

func (s *RabbitSink) forget(tag uint64) {
	s.pendingMu.Lock()
	delete(s.pending, tag)
	s.pendingMu.Unlock()
}

func (s *RabbitSink) Name() string { return BackendRabbitMQ }

func (s *RabbitSink) Store(ctx context.Context, b *booking.RideBooking) error {
	body, err := json.Marshal(b)
	if err != nil {
		return errors.Wrap(err, "encode booking")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tag, wait, err := s.publish(ctx, b.BookingID, body)
	if err != nil {
		return err
	}

	select {
	case c, ok := <-wait:
		if !ok {
			return errors.New("rabbitmq: confirm channel closed")
		}
		if !c.Ack {
			return errors.Errorf("rabbitmq: booking %s not acknowledged", b.BookingID)
		}
		return nil
	case <-ctx.Done():
		s.forget(tag)
		return errors.Wrapf(ctx.Err(), "waiting for confirm of booking %s", b.BookingID)
	}
}

// publish sends one message and registers for its confirm. The channel
// numbers successful publishes 1, 2, 3... so the tag is known up front.
func (s *RabbitSink) publish(ctx context.Context, bookingID string, body []byte) (uint64, chan amqp.Confirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tag := s.lastTag + 1
	wait, ok := s.expect(tag)
	if !ok {
		return 0, nil, errors.New("rabbitmq: confirm channel closed")
	}

	err := s.ch.PublishWithContext(ctx, s.exchange, s.routingKey, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    bookingID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		s.forget(tag)
		return 0, nil, errors.Wrapf(err, "publish booking %s", bookingID)
	}
	s.lastTag = tag
	return tag, wait, nil
}

func (s *RabbitSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.ch.Close()
	if s.conn != nil {
		return errors.Wrap(s.conn.Close(), "closing rabbitmq connection")
	}
	return nil
}
