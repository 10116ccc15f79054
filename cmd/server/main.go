package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ryabkov82/ride-booking-ingest/internal/config"
	"github.com/ryabkov82/ride-booking-ingest/internal/httpapi"
	"github.com/ryabkov82/ride-booking-ingest/internal/logging"
	"github.com/ryabkov82/ride-booking-ingest/internal/store"
	"github.com/ryabkov82/ride-booking-ingest/internal/version"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		logging.New("server", logging.Options{}).Fatalf("Configuration error: %v", err)
	}

	log := logging.New("server", logging.Options{Format: cfg.Log.Format, Level: cfg.Log.Level})
	log.Info(version.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink, err := store.Open(ctx, cfg.Store, log)
	if err != nil {
		log.Fatalf("Store error: %v", err)
	}

	server := newServer(cfg, sink, log)

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.WithField("store", sink.Name()).Infof("Server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigChan
	log.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server shutdown error: %v", err)
	}

	// in-flight requests are done, the sinks can go
	cancel()
	if err := sink.Close(); err != nil {
		log.Errorf("Store close error: %v", err)
	}

	log.Info("Server stopped")
}

func newServer(cfg *config.Server, sink store.Sink, log *logrus.Entry) *http.Server {
	handler := httpapi.NewHandler(sink, cfg.MaxBodyBytes, log.WithField("prefix", "http"))
	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpapi.SetupRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
