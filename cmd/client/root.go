package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ryabkov82/ride-booking-ingest/internal/client"
	"github.com/ryabkov82/ride-booking-ingest/internal/config"
	"github.com/ryabkov82/ride-booking-ingest/internal/logging"
	"github.com/ryabkov82/ride-booking-ingest/internal/metrics"
	"github.com/ryabkov82/ride-booking-ingest/internal/source"
	"github.com/ryabkov82/ride-booking-ingest/internal/version"
)

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	rc := &cobra.Command{
		Use:   "ride-client",
		Short: "Replays a line-delimited JSON file of ride bookings against the ingestion API.",
		Long: `Replays a line-delimited JSON file of ride bookings against the ingestion API.

Every non-empty line is posted once, in file order, with a pause between
sends. Lines that are not valid JSON are posted as error records so the
server rejects them visibly.

Flags can also be set through RIDES_* environment variables (e.g.
RIDES_ENDPOINT) or a config file given with --config.

` + version.String() + "\n",
		SilenceUsage: true,
	}

	rc.AddCommand(newDeliverCommand(stdout))
	rc.AddCommand(newVersionCommand(stdout))

	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

func newVersionCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the client version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(stdout, version.String())
		},
	}
}

func newDeliverCommand(stdout io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deliver",
		Short: "Send every record of the source file to the ingestion endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClient(cmd.Flags())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			_, err = deliver(ctx, cfg, stdout)
			return err
		},
	}
	config.RegisterClientFlags(cmd.Flags())
	return cmd
}

// deliver runs one delivery pass over cfg.File
func deliver(ctx context.Context, cfg *config.Client, out io.Writer) (client.Summary, error) {
	logOpts := logging.Options{Format: cfg.Log.Format, Level: cfg.Log.Level, Out: out}
	log := logging.New("client", logOpts)
	timings := metrics.NewTimings()

	reader, err := source.Open(cfg.File, source.Options{
		Encoding:       cfg.Encoding,
		AllowedBaseDir: cfg.AllowedBaseDir,
		Logger:         logging.New("source", logOpts),
		Timings:        timings,
	})
	if err != nil {
		log.WithError(err).Error("Cannot read source file")
		return client.Summary{}, err
	}

	var failures *client.FailureLog
	if cfg.FailuresJsonl != "" {
		failures, err = client.OpenFailureLog(cfg.FailuresJsonl)
		if err != nil {
			reader.Close()
			return client.Summary{}, err
		}
		defer func() {
			if err := failures.Close(); err != nil {
				log.WithError(err).Warn("Could not close failures file")
			}
		}()
	}

	log.WithFields(logrus.Fields{
		"file":     cfg.File,
		"endpoint": cfg.Endpoint,
		"throttle": cfg.Throttle,
		"delay":    cfg.Delay,
	}).Info("Starting delivery")

	sender := client.NewSender(cfg.Endpoint, cfg.Gzip, cfg.Timeout, timings)
	d := client.NewDeliverer(sender, client.NewThrottle(cfg.Throttle, cfg.Delay), log, failures, timings)

	sum, err := d.Run(ctx, reader.Records(ctx))
	if cfg.MetricsPushURL != "" {
		if pushErr := metrics.PushClient(cfg.MetricsPushURL); pushErr != nil {
			log.WithError(pushErr).Warn("Could not push delivery metrics")
		} else {
			log.WithField("url", cfg.MetricsPushURL).Debug("Pushed delivery metrics")
		}
	}
	if errors.Is(err, context.Canceled) {
		return sum, fmt.Errorf("delivery interrupted: %w", err)
	}
	return sum, err
}
