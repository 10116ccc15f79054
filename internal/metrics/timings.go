package metrics

import (
	"fmt"
	"sync"
	"time"
)

// Timings tracks timing metrics for the stages of one delivery run
type Timings struct {
	mu sync.Mutex

	// Source reading and decoding
	ReadTotal time.Duration
	ReadCount int64

	// Sender
	MarshalTotal time.Duration
	MarshalCount int64
	GzipTotal    time.Duration
	GzipCount    int64
	HTTPTotal    time.Duration
	HTTPCount    int64

	// Time spent waiting on the throttle
	ThrottleTotal time.Duration
	ThrottleCount int64
}

// NewTimings creates a new Timings instance
func NewTimings() *Timings {
	return &Timings{}
}

// ObserveRead records one source read (line read + decode)
func (t *Timings) ObserveRead(duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadTotal += duration
	t.ReadCount++
}

// ObserveMarshal records a JSON marshal operation duration
func (t *Timings) ObserveMarshal(duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.MarshalTotal += duration
	t.MarshalCount++
}

// ObserveGzip records a gzip operation duration
func (t *Timings) ObserveGzip(duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.GzipTotal += duration
	t.GzipCount++
}

// ObserveHTTP records an HTTP round-trip duration
func (t *Timings) ObserveHTTP(duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.HTTPTotal += duration
	t.HTTPCount++
}

// ObserveThrottle records a throttle wait
func (t *Timings) ObserveThrottle(duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ThrottleTotal += duration
	t.ThrottleCount++
}

// String returns a formatted summary of all timings
func (t *Timings) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var result string
	add := func(name string, total time.Duration, count int64) {
		if count == 0 {
			return
		}
		avg := total / time.Duration(count)
		result += fmt.Sprintf("%s: total=%v count=%d avg=%v; ", name, total, count, avg)
	}

	add("Read", t.ReadTotal, t.ReadCount)
	add("Marshal", t.MarshalTotal, t.MarshalCount)
	add("Gzip", t.GzipTotal, t.GzipCount)
	add("HTTP", t.HTTPTotal, t.HTTPCount)
	add("Throttle", t.ThrottleTotal, t.ThrottleCount)

	if result == "" {
		return "No timings recorded"
	}

	// Remove trailing "; "
	return result[:len(result)-2]
}
