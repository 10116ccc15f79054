package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	segmentio "github.com/segmentio/kafka-go"

	"github.com/ryabkov82/ride-booking-ingest/internal/booking"
	"github.com/ryabkov82/ride-booking-ingest/internal/config"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...segmentio.Message) error
	Close() error
}

// KafkaSink publishes each booking to a topic, keyed by Booking ID so that
// updates for one booking land on the same partition
type KafkaSink struct {
	writer messageWriter
	topic  string
}

// NewKafkaSink creates a KafkaSink. Brokers are not contacted until the
// first write.
func NewKafkaSink(cfg config.Kafka) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka: topic is required")
	}

	w := &segmentio.Writer{
		Addr:                   segmentio.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &segmentio.Hash{},
		RequiredAcks:           segmentio.RequireAll,
		WriteTimeout:           cfg.WriteTimeout,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return newKafkaSink(w, cfg.Topic), nil
}

func newKafkaSink(w messageWriter, topic string) *KafkaSink {
	return &KafkaSink{writer: w, topic: topic}
}

func (s *KafkaSink) Name() string { return BackendKafka }

func (s *KafkaSink) Store(ctx context.Context, b *booking.RideBooking) error {
	value, err := json.Marshal(b)
	if err != nil {
		return errors.Wrap(err, "encode booking")
	}

	msg := segmentio.Message{
		Key:   []byte(b.BookingID),
		Value: value,
		Headers: []segmentio.Header{
			{Key: "content-type", Value: []byte("application/json")},
		},
		Time: time.Now().UTC(),
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "write booking %s to topic %s", b.BookingID, s.topic)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return errors.Wrap(s.writer.Close(), "closing kafka writer")
}
