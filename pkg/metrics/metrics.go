package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Deployment metrics
	DeploymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalyst_deployments_total",
			Help: "Total number of entity deployments by entity type and outcome",
		},
		[]string{"entity_type", "outcome"},
	)

	DeploymentDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalyst_deployment_duration_seconds",
			Help:    "Entity deployment pipeline duration in seconds by entity type",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"entity_type"},
	)

	// Pointer manager metrics
	ActivePointersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "catalyst_active_pointers_total",
			Help: "Total number of pointers with an active entity by entity type",
		},
		[]string{"entity_type"},
	)

	PointerCommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalyst_pointer_commits_total",
			Help: "Total number of pointer commit attempts by outcome (committed, shadowed)",
		},
		[]string{"entity_type", "outcome"},
	)

	// Storage metrics
	ContentBytesStored = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalyst_content_bytes_stored",
			Help: "Approximate total bytes of content blobs stored",
		},
	)

	// Synchronizer metrics
	SyncCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalyst_sync_cycles_total",
			Help: "Total number of synchronization cycles by outcome",
		},
		[]string{"outcome"},
	)

	SyncCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalyst_sync_cycle_duration_seconds",
			Help:    "Time taken for a synchronization cycle against all peers",
			Buckets: prometheus.DefBuckets,
		},
	)

	EntitiesDeployedFromSync = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalyst_sync_entities_deployed_total",
			Help: "Total number of entities successfully deployed as a result of synchronization",
		},
	)

	FailedDeploymentsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "catalyst_failed_deployments_total",
			Help: "Entities currently recorded in the failed deployment registry, by reason",
		},
		[]string{"reason"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalyst_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalyst_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Validation metrics
	ValidationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalyst_validation_failures_total",
			Help: "Total number of deployment validation failures by predicate",
		},
		[]string{"predicate"},
	)
)

func init() {
	prometheus.MustRegister(DeploymentsTotal)
	prometheus.MustRegister(DeploymentDuration)
	prometheus.MustRegister(ActivePointersTotal)
	prometheus.MustRegister(PointerCommitsTotal)
	prometheus.MustRegister(ContentBytesStored)
	prometheus.MustRegister(SyncCyclesTotal)
	prometheus.MustRegister(SyncCycleDuration)
	prometheus.MustRegister(EntitiesDeployedFromSync)
	prometheus.MustRegister(FailedDeploymentsTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(ValidationFailuresTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
