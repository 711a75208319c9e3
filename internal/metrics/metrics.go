package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const subsystem = "classroll"

var (
	gatewayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "gateway_requests_total",
			Help:      "Calls to the remote ERP broken out by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)
	gatewayLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      "gateway_request_duration_seconds",
			Help:      "Latency of calls to the remote ERP.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"op"},
	)
	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "submissions_total",
			Help:      "Attendance submissions broken out by write mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)
	failures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "controller_failures_total",
			Help:      "Controller operations that ended in the error state.",
		},
		[]string{"op", "kind"},
	)
	staleResponses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "stale_responses_total",
			Help:      "Responses discarded because the criteria changed while they were in flight.",
		},
		[]string{"op"},
	)
	rosterCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "roster_cache_lookups_total",
			Help:      "Roster cache lookups broken out by result.",
		},
		[]string{"result"},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Subsystem: subsystem,
			Name:      "active_sessions",
			Help:      "Signed-in faculty sessions held in memory.",
		},
	)
)

var registerOnce sync.Once

// Register adds all collectors to reg. Safe to call more than once.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(
			gatewayRequests,
			gatewayLatency,
			submissions,
			failures,
			staleResponses,
			rosterCache,
			activeSessions,
		)
	})
}

// RecordGatewayCall records one ERP call.
func RecordGatewayCall(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	gatewayRequests.WithLabelValues(op, outcome).Inc()
	gatewayLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func RecordSubmission(mode string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	submissions.WithLabelValues(mode, outcome).Inc()
}

func RecordFailure(op, kind string) {
	failures.WithLabelValues(op, kind).Inc()
}

func RecordStale(op string) {
	staleResponses.WithLabelValues(op).Inc()
}

func RecordCacheLookup(hit bool) {
	if hit {
		rosterCache.WithLabelValues("hit").Inc()
		return
	}
	rosterCache.WithLabelValues("miss").Inc()
}

func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}
