package store

import (
	"context"
	"sync"

	"github.com/ryabkov82/ride-booking-ingest/internal/booking"
)

// MemorySink keeps the latest booking per Booking ID and aggregates them
type MemorySink struct {
	mu       sync.RWMutex
	bookings map[string]*booking.RideBooking
	order    []string
}

// Stats is the aggregate view served at GET /stats
type Stats struct {
	Bookings          int            `json:"bookings"`
	ByStatus          map[string]int `json:"byStatus"`
	ByVehicleType     map[string]int `json:"byVehicleType"`
	TotalBookingValue float64        `json:"totalBookingValue"`
	TotalRideDistance float64        `json:"totalRideDistance"`
	AvgDriverRating   *float64       `json:"avgDriverRating,omitempty"`
	AvgCustomerRating *float64       `json:"avgCustomerRating,omitempty"`
}

// NewMemorySink creates an empty MemorySink
func NewMemorySink() *MemorySink {
	return &MemorySink{bookings: make(map[string]*booking.RideBooking)}
}

func (s *MemorySink) Name() string { return BackendMemory }

// Store upserts by Booking ID
func (s *MemorySink) Store(_ context.Context, b *booking.RideBooking) error {
	cp := *b

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bookings[b.BookingID]; !ok {
		s.order = append(s.order, b.BookingID)
	}
	s.bookings[b.BookingID] = &cp
	return nil
}

// Bookings returns stored bookings in first-seen order
func (s *MemorySink) Bookings() []booking.RideBooking {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]booking.RideBooking, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.bookings[id])
	}
	return out
}

// Stats aggregates the stored bookings
func (s *MemorySink) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Bookings:      len(s.bookings),
		ByStatus:      make(map[string]int),
		ByVehicleType: make(map[string]int),
	}

	var driverSum, customerSum float64
	var driverN, customerN int
	for _, b := range s.bookings {
		st.ByStatus[b.BookingStatus]++
		st.ByVehicleType[b.VehicleType]++
		if b.BookingValue != nil {
			st.TotalBookingValue += *b.BookingValue
		}
		if b.RideDistance != nil {
			st.TotalRideDistance += *b.RideDistance
		}
		if b.DriverRatings != nil {
			driverSum += *b.DriverRatings
			driverN++
		}
		if b.CustomerRating != nil {
			customerSum += *b.CustomerRating
			customerN++
		}
	}

	if driverN > 0 {
		avg := driverSum / float64(driverN)
		st.AvgDriverRating = &avg
	}
	if customerN > 0 {
		avg := customerSum / float64(customerN)
		st.AvgCustomerRating = &avg
	}
	return st
}

func (s *MemorySink) Close() error { return nil }

// FindMemory returns the MemorySink behind s, looking inside a Fanout, or nil
func FindMemory(s Sink) *MemorySink {
	switch v := s.(type) {
	case *MemorySink:
		return v
	case *Fanout:
		for _, inner := range v.Sinks() {
			if m := FindMemory(inner); m != nil {
				return m
			}
		}
	}
	return nil
}
