package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type contextKey int

const contextKeyRequestID contextKey = iota

// RequestIDFromContext returns the request ID set by the router, if any
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}

// SetupRouter sets up HTTP routes
func SetupRouter(handler *Handler) http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/", handler.Root).Methods("GET").Name("Root")
	router.HandleFunc("/ride-booking", handler.IngestRideBooking).Methods("POST").Name("IngestRideBooking")
	router.HandleFunc("/version", handler.GetVersion).Methods("GET").Name("GetVersion")
	router.HandleFunc("/stats", handler.GetStats).Methods("GET").Name("GetStats")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.NotFoundHandler = http.HandlerFunc(notFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	// wrap the router itself so 404/405 responses are logged too
	return handler.withRequestID(handler.logRequests(handler.recoverPanics(router)))
}

func (h *Handler) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKeyRequestID, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(b)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		h.log.WithFields(logrus.Fields{
			"request_id":  RequestIDFromContext(r.Context()),
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(t).Milliseconds(),
		}).Info("HTTP request")
	})
}

func (h *Handler) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			err := recover()
			if err == nil {
				return
			}
			// net/http aborts the response silently on this value
			if err == http.ErrAbortHandler {
				panic(err)
			}
			log := h.log.WithField("request_id", RequestIDFromContext(r.Context()))
			log.Errorf("PANIC: %v\n%s", err, debug.Stack())
			if rec.wroteHeader {
				log.Warnf("Response already started with status %d, leaving it as is", rec.status)
				return
			}
			writeJSON(w, http.StatusInternalServerError, detailResponse{Detail: fmt.Sprintf(ingestFailure, err)})
		}()
		next.ServeHTTP(rec, r)
	})
}
