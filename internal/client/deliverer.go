package client

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ryabkov82/ride-booking-ingest/internal/metrics"
	"github.com/ryabkov82/ride-booking-ingest/internal/source"
)

// Summary counts the outcomes of one run
type Summary struct {
	Success    int64
	Rejected   int64
	Transport  int64
	Unexpected int64

	// Malformed counts sentinel records that were sent, whatever their
	// outcome. It overlaps with the other counters.
	Malformed int64
}

// Errors is the number of records that were not accepted
func (s Summary) Errors() int64 {
	return s.Rejected + s.Transport + s.Unexpected
}

// Total is the number of records sent
func (s Summary) Total() int64 {
	return s.Success + s.Errors()
}

func (s *Summary) add(out Outcome) {
	switch out.Kind {
	case KindSuccess:
		s.Success++
	case KindRejected:
		s.Rejected++
	case KindTransport:
		s.Transport++
	default:
		s.Unexpected++
	}
}

// Deliverer sends records one at a time, in source order
type Deliverer struct {
	sender   *Sender
	throttle Throttle
	log      *logrus.Entry
	failures *FailureLog
	timings  *metrics.Timings
}

// NewDeliverer creates a Deliverer. failures and timings may be nil.
func NewDeliverer(sender *Sender, throttle Throttle, log *logrus.Entry, failures *FailureLog, timings *metrics.Timings) *Deliverer {
	return &Deliverer{
		sender:   sender,
		throttle: throttle,
		log:      log,
		failures: failures,
		timings:  timings,
	}
}

// Run drains records, sending each exactly once. A failed send is counted
// and the run moves on. Run stops early only when the source fails or ctx
// is cancelled. Cancellation is checked between records, so a send already
// in flight finishes and is counted. The summary so far is logged and
// returned either way.
func (d *Deliverer) Run(ctx context.Context, records iter.Seq2[source.Record, error]) (sum Summary, err error) {
	defer func() { d.logSummary(sum, err) }()

	for rec, readErr := range records {
		if readErr != nil {
			return sum, fmt.Errorf("reading source: %w", readErr)
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		throttleStart := time.Now()
		if err := d.throttle.Wait(ctx); err != nil {
			return sum, err
		}
		if d.timings != nil {
			d.timings.ObserveThrottle(time.Since(throttleStart))
		}

		if rec.IsError() {
			sum.Malformed++
		}

		out := d.sender.Send(ctx, rec)
		sum.add(out)
		metrics.CounterDeliveryOutcomes.WithLabelValues(string(out.Kind)).Inc()
		d.report(rec, out, sum)

		if !out.OK() && d.failures != nil {
			if err := d.failures.Write(rec, out); err != nil {
				d.log.WithError(err).Warn("Could not record failed record")
			}
		}
	}

	return sum, nil
}

func (d *Deliverer) report(rec source.Record, out Outcome, sum Summary) {
	log := d.log.WithField("lineNo", rec.LineNo)
	switch out.Kind {
	case KindSuccess:
		log.Infof("✓ Successfully posted record %d (Status: %d)", sum.Success, out.StatusCode)
	case KindRejected:
		httpErr, _ := GetHTTPError(out.Err)
		log.Warnf("✗ Failed to post record (Status: %d): %s", httpErr.StatusCode, httpErr.Body)
	case KindTransport:
		log.Warnf("✗ Request error: %v", out.Err)
	default:
		log.Errorf("✗ Unexpected error: %v", out.Err)
	}
}

func (d *Deliverer) logSummary(sum Summary, err error) {
	fields := logrus.Fields{
		"rejected":   sum.Rejected,
		"transport":  sum.Transport,
		"unexpected": sum.Unexpected,
		"malformed":  sum.Malformed,
	}
	if err != nil {
		fields["aborted"] = err.Error()
	}

	log := d.log.WithFields(fields)
	if err != nil {
		log.Warn("Processing interrupted")
	} else {
		log.Info("Processing complete!")
	}
	log.Infof("Successful posts: %d", sum.Success)
	log.Infof("Failed posts: %d", sum.Errors())
	log.Infof("Total processed: %d", sum.Total())

	if d.timings != nil {
		d.log.Debugf("Timings: %s", d.timings.String())
	}
}
