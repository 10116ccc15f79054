package store

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/ryabkov82/ride-booking-ingest/internal/booking"
)

// LogSink writes each accepted booking as one JSON line, for a downstream
// collector tailing the process output
type LogSink struct {
	mu  sync.Mutex
	out io.Writer
}

// NewLogSink creates a LogSink; a nil writer means stdout
func NewLogSink(out io.Writer) *LogSink {
	if out == nil {
		out = os.Stdout
	}
	return &LogSink{out: out}
}

func (s *LogSink) Name() string { return BackendLog }

func (s *LogSink) Store(_ context.Context, b *booking.RideBooking) error {
	line, err := json.Marshal(b)
	if err != nil {
		return errors.Wrap(err, "encode booking")
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.out.Write(line); err != nil {
		return errors.Wrap(err, "write booking")
	}
	return nil
}

func (s *LogSink) Close() error { return nil }
