package client

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ryabkov82/ride-booking-ingest/internal/metrics"
	"github.com/ryabkov82/ride-booking-ingest/internal/source"
	"github.com/ryabkov82/ride-booking-ingest/internal/version"
)

// DefaultTimeout is the per-request timeout when none is configured
const DefaultTimeout = 10 * time.Second

// Kind classifies the result of one send
type Kind string

const (
	KindSuccess    Kind = "success"
	KindRejected   Kind = "rejected"
	KindTransport  Kind = "transport"
	KindUnexpected Kind = "unexpected"
)

// Outcome is the classified result of sending one record
type Outcome struct {
	Kind       Kind
	StatusCode int
	Err        error
}

// OK reports whether the sink accepted the record
func (o Outcome) OK() bool { return o.Kind == KindSuccess }

// Sender posts single records to the ingestion endpoint. It never retries.
type Sender struct {
	client   *http.Client
	endpoint string
	gzip     bool
	timings  *metrics.Timings // Optional timings for metrics
}

// NewSender creates a new sender
// If timeout is <= 0, DefaultTimeout is used. If timings is nil, metrics
// collection is disabled.
func NewSender(endpoint string, gzip bool, timeout time.Duration, timings *metrics.Timings) *Sender {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Sender{
		client: &http.Client{
			Timeout: timeout,
		},
		endpoint: endpoint,
		gzip:     gzip,
		timings:  timings,
	}
}

// Send posts rec exactly once and classifies the result
func (s *Sender) Send(ctx context.Context, rec source.Record) Outcome {
	status, err := s.sendOnce(ctx, rec)
	return classify(status, err)
}

func classify(status int, err error) Outcome {
	if err == nil {
		return Outcome{Kind: KindSuccess, StatusCode: status}
	}
	if httpErr, ok := GetHTTPError(err); ok {
		return Outcome{Kind: KindRejected, StatusCode: httpErr.StatusCode, Err: err}
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return Outcome{Kind: KindTransport, Err: err}
	}
	return Outcome{Kind: KindUnexpected, Err: err}
}

// accepted lists the statuses counted as success
func accepted(status int) bool {
	return status == http.StatusOK || status == http.StatusCreated || status == http.StatusAccepted
}

// sendOnce sends a record once
func (s *Sender) sendOnce(ctx context.Context, rec source.Record) (int, error) {
	// Marshal JSON
	marshalStart := time.Now()
	jsonData, err := json.Marshal(rec)
	if s.timings != nil {
		s.timings.ObserveMarshal(time.Since(marshalStart))
	}
	if err != nil {
		return 0, fmt.Errorf("marshal error: %w", err)
	}

	// Compress if needed
	var body io.Reader = bytes.NewReader(jsonData)
	contentEncoding := ""
	if s.gzip {
		gzipStart := time.Now()
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		if _, err := gz.Write(jsonData); err != nil {
			return 0, fmt.Errorf("gzip error: %w", err)
		}
		if err := gz.Close(); err != nil {
			return 0, fmt.Errorf("gzip close error: %w", err)
		}
		if s.timings != nil {
			s.timings.ObserveGzip(time.Since(gzipStart))
		}
		body = &buf
		contentEncoding = "gzip"
	}

	// a started send runs to completion; the client timeout still bounds it
	req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodPost, s.endpoint, body)
	if err != nil {
		return 0, fmt.Errorf("create request error: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if contentEncoding != "" {
		req.Header.Set("Content-Encoding", contentEncoding)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	req.Header.Set("X-Source-Line", strconv.FormatInt(rec.LineNo, 10))

	httpStart := time.Now()
	resp, err := s.client.Do(req)
	if s.timings != nil {
		s.timings.ObserveHTTP(time.Since(httpStart))
	}
	if err != nil {
		return 0, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if accepted(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	// Keep the body, the sink explains rejections there
	bodyBytes, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, &HTTPError{
		StatusCode: resp.StatusCode,
		Body:       string(bodyBytes),
	}
}

// HTTPError is a response the sink answered with a non-success status
type HTTPError struct {
	StatusCode int
	Body       string
}

// GetHTTPError extracts HTTPError from error if possible
func GetHTTPError(err error) (*HTTPError, bool) {
	var httpErr *HTTPError
	ok := errors.As(err, &httpErr)
	return httpErr, ok
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// TransportError wraps a failure to get any response from the sink
// (connection refused, DNS, timeout)
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("http error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
