package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	MetricIngestRequests       = "ingest_requests_total"
	MetricIngestStoreSeconds   = "ingest_store_seconds"
	MetricDeliveryOutcomes     = "delivery_outcomes_total"
	MetricSourceMalformedLines = "source_malformed_lines_total"
)

// Ingest results used as label values
const (
	ResultAccepted = "accepted"
	ResultInvalid  = "invalid"
	ResultFailed   = "failed"
)

var CounterIngestRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "rides",
		Name:      MetricIngestRequests,
		Help:      "Ride booking ingestion requests by result.",
	},
	[]string{
		"result",
	},
)

var HistogramIngestStore = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "rides",
		Name:      MetricIngestStoreSeconds,
		Help:      "Time spent handing accepted bookings to the store.",
		Buckets:   prometheus.DefBuckets,
	},
)

var CounterDeliveryOutcomes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "rides",
		Name:      MetricDeliveryOutcomes,
		Help:      "Delivery attempts by outcome kind.",
	},
	[]string{
		"kind",
	},
)

var CounterSourceMalformedLines = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "rides",
		Name:      MetricSourceMalformedLines,
		Help:      "Source lines that were not valid JSON.",
	},
)

func init() {
	prometheus.MustRegister(CounterIngestRequests)
	prometheus.MustRegister(HistogramIngestStore)
	prometheus.MustRegister(CounterDeliveryOutcomes)
	prometheus.MustRegister(CounterSourceMalformedLines)
}
