package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CloudReachable follows the last heartbeat health check (1 =
	// reachable, 0 = not); a failed reconciliation also sets it to 0.
	CloudReachable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "edge_cloud_reachable",
			Help: "Whether the origin server was reachable on the last check (1 = reachable, 0 = not)",
		},
	)

	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_decisions_total",
			Help: "Total number of authentication decisions by outcome and source",
		},
		[]string{"result", "source"},
	)

	LockoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "edge_lockouts_total",
			Help: "Total number of UIDs revoked by the lockout engine",
		},
	)

	AllowListSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "edge_allow_list_size",
			Help: "Current number of UIDs held in the local allow-list cache",
		},
	)

	VoteRoundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_vote_rounds_total",
			Help: "Total number of majority-vote rounds by outcome",
		},
		[]string{"outcome"},
	)

	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "edge_reconciliation_duration_seconds",
			Help:    "Time taken for an allow-list reconciliation cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_reconciliation_cycles_total",
			Help: "Total number of reconciliation cycles by outcome",
		},
		[]string{"outcome"},
	)

	UploadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "edge_log_upload_duration_seconds",
			Help:    "Time taken to upload the access log to the origin",
			Buckets: prometheus.DefBuckets,
		},
	)

	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_log_uploads_total",
			Help: "Total number of access log upload attempts by outcome",
		},
		[]string{"outcome"},
	)

	HeartbeatsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_heartbeats_total",
			Help: "Total number of heartbeat attempts by outcome",
		},
		[]string{"outcome"},
	)

	AuthenticationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "edge_authentication_duration_seconds",
			Help:    "Time taken to produce an authentication decision",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		CloudReachable,
		DecisionsTotal,
		LockoutsTotal,
		AllowListSize,
		VoteRoundsTotal,
		ReconciliationDuration,
		ReconciliationCyclesTotal,
		UploadDuration,
		UploadsTotal,
		HeartbeatsTotal,
		AuthenticationDuration,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
