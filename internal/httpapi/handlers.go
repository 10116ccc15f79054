package httpapi

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ryabkov82/ride-booking-ingest/internal/booking"
	"github.com/ryabkov82/ride-booking-ingest/internal/metrics"
	"github.com/ryabkov82/ride-booking-ingest/internal/store"
	"github.com/ryabkov82/ride-booking-ingest/internal/version"
)

// DefaultMaxBodyBytes caps request bodies when no limit is configured
const DefaultMaxBodyBytes = 1 << 20

const (
	welcomeMessage  = "Welcome to the Ride Booking Ingestion API!"
	ingestedMessage = "Ride booking data ingested successfully."
	ingestFailure   = "An error occurred while ingesting data: %v"
)

var errBodyTooLarge = errors.New("request body too large")

// Handler handles HTTP requests
type Handler struct {
	sink         store.Sink
	memory       *store.MemorySink // nil unless the memory backend is enabled
	maxBodyBytes int64
	log          *logrus.Entry
}

// NewHandler creates a new handler
func NewHandler(sink store.Sink, maxBodyBytes int64, log *logrus.Entry) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Handler{
		sink:         sink,
		memory:       store.FindMemory(sink),
		maxBodyBytes: maxBodyBytes,
		log:          log,
	}
}

type detailResponse struct {
	Detail interface{} `json:"detail"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Root handles GET /
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: welcomeMessage})
}

// IngestRideBooking handles POST /ride-booking
func (h *Handler) IngestRideBooking(w http.ResponseWriter, r *http.Request) {
	log := h.log.WithField("request_id", RequestIDFromContext(r.Context()))

	body, err := h.readBody(w, r)
	if err != nil {
		metrics.CounterIngestRequests.WithLabelValues(metrics.ResultInvalid).Inc()
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || errors.Is(err, errBodyTooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, detailResponse{Detail: errBodyTooLarge.Error()})
			return
		}
		writeJSON(w, http.StatusBadRequest, detailResponse{Detail: err.Error()})
		return
	}

	b, err := booking.Decode(body)
	if err != nil {
		metrics.CounterIngestRequests.WithLabelValues(metrics.ResultInvalid).Inc()
		var verr *booking.ValidationError
		if errors.As(err, &verr) {
			log.WithField("source_line", r.Header.Get("X-Source-Line")).Debugf("Rejected booking: %v", verr)
			writeJSON(w, http.StatusUnprocessableEntity, detailResponse{Detail: verr.Errors})
			return
		}
		writeJSON(w, http.StatusInternalServerError, detailResponse{Detail: fmt.Sprintf(ingestFailure, err)})
		return
	}

	start := time.Now()
	err = h.sink.Store(r.Context(), b)
	metrics.HistogramIngestStore.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CounterIngestRequests.WithLabelValues(metrics.ResultFailed).Inc()
		log.WithFields(logrus.Fields{
			"booking_id": b.BookingID,
			"sink":       h.sink.Name(),
		}).WithError(err).Error("Failed to store booking")
		writeJSON(w, http.StatusInternalServerError, detailResponse{Detail: fmt.Sprintf(ingestFailure, err)})
		return
	}

	metrics.CounterIngestRequests.WithLabelValues(metrics.ResultAccepted).Inc()
	writeJSON(w, http.StatusCreated, messageResponse{Message: ingestedMessage})
}

// readBody reads the request body, inflating it when it is gzip encoded. The
// size limit applies to both the wire and the inflated size.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	var body io.Reader = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	if strings.EqualFold(r.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("invalid gzip body: %w", err)
		}
		defer gz.Close()
		body = io.LimitReader(gz, h.maxBodyBytes+1)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > h.maxBodyBytes {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// GetVersion handles GET /version
func (h *Handler) GetVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.Info())
}

// GetStats handles GET /stats. It is only served when the in-memory
// aggregation backend is enabled.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	if h.memory == nil {
		writeJSON(w, http.StatusNotFound, detailResponse{Detail: "Stats require the memory store backend"})
		return
	}
	writeJSON(w, http.StatusOK, h.memory.Stats())
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, detailResponse{Detail: "Not Found"})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, detailResponse{Detail: "Method Not Allowed"})
}
