package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Fetch phases used as metric labels.
const (
	PhasePurchases    = "purchases"
	PhaseBundleList   = "bundle_list"
	PhaseDownloadPage = "download_page"
	PhaseGamesJSON    = "games_json"
	PhaseSalePage     = "sale_page"
)

// Metrics bundles Prometheus collectors for the storefront scraper.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	GamesTotal      *prometheus.CounterVec
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
}

// NewMetrics registers all collectors on a dedicated registry so tests and
// repeated runs never collide with the global one.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "valuer_requests_total",
			Help: "Storefront requests issued, by fetch phase.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "valuer_request_duration_seconds",
			Help:    "Storefront request latency, by fetch phase.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)
	games := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "valuer_games_scraped_total",
			Help: "Games handed to the export pipeline, by record source.",
		},
		[]string{"source"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "valuer_retries_total",
			Help: "Retry attempts made after failed requests.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "valuer_errors_total",
			Help: "Failed storefront requests, by error type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, games, retries, errorsTotal)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		GamesTotal:      games,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
	}
}

func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

func (m *Metrics) ObserveDuration(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func (m *Metrics) AddGames(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.GamesTotal.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
