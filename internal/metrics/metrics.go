package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "practiceapi"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	grpcRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "gRPC requests by method and code.",
		},
		[]string{"method", "code"},
	)

	bookingDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_decisions_total",
			Help:      "Booking create/update attempts by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	bidDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bid_decisions_total",
			Help:      "Bid attempts by outcome.",
		},
		[]string{"outcome"},
	)

	creditsDebited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_debited_total",
			Help:      "Credits taken from bidders by accepted bids.",
		},
	)

	settlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listing_settlements_total",
			Help:      "Listings whose winner was stored, by whether they had bids.",
		},
		[]string{"result"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listing_cache_lookups_total",
			Help:      "Settled listing cache lookups by result.",
		},
		[]string{"result"},
	)

	syncTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_tasks_total",
			Help:      "Spreadsheet sync tasks by type and final status.",
		},
		[]string{"type", "status"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			grpcRequests,
			bookingDecisions,
			bidDecisions,
			creditsDebited,
			settlements,
			cacheLookups,
			syncTasks,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTP records one finished request.
func ObserveHTTP(route, code string, d time.Duration) {
	httpRequests.WithLabelValues(route, code).Inc()
	httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

func IncGRPC(method, code string) {
	grpcRequests.WithLabelValues(method, code).Inc()
}

// IncBooking counts a booking decision; outcome is "admitted" or an error kind.
func IncBooking(operation, outcome string) {
	bookingDecisions.WithLabelValues(operation, outcome).Inc()
}

func IncBid(outcome string) {
	bidDecisions.WithLabelValues(outcome).Inc()
}

func AddCreditsDebited(amount int) {
	creditsDebited.Add(float64(amount))
}

func IncSettlement(result string) {
	settlements.WithLabelValues(result).Inc()
}

func IncCache(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}

func IncSyncTask(taskType, status string) {
	syncTasks.WithLabelValues(taskType, status).Inc()
}
