package store

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/ryabkov82/ride-booking-ingest/internal/booking"
)

// Fanout stores each booking into every sink, in order. All sinks are tried
// even when one fails.
type Fanout struct {
	sinks []Sink
}

// NewFanout wraps sinks
func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

func (f *Fanout) Name() string {
	names := make([]string, 0, len(f.sinks))
	for _, s := range f.sinks {
		names = append(names, s.Name())
	}
	return strings.Join(names, ",")
}

func (f *Fanout) Store(ctx context.Context, b *booking.RideBooking) error {
	var failed []string
	for _, s := range f.sinks {
		if err := s.Store(ctx, b); err != nil {
			failed = append(failed, s.Name()+": "+err.Error())
		}
	}
	if len(failed) > 0 {
		return errors.Errorf("%d of %d sinks failed: %s", len(failed), len(f.sinks), strings.Join(failed, "; "))
	}
	return nil
}

// Sinks returns the wrapped sinks
func (f *Fanout) Sinks() []Sink {
	return f.sinks
}

func (f *Fanout) Close() error {
	var failed []string
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			failed = append(failed, s.Name()+": "+err.Error())
		}
	}
	if len(failed) > 0 {
		return errors.Errorf("close sinks: %s", strings.Join(failed, "; "))
	}
	return nil
}
