package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	startTime = time.Now()

	// Reminder metrics
	alertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dosekeeper_alerts_total",
			Help: "Foreground alerts delivered, by kind (due, reminder, snooze) and channel",
		},
		[]string{"kind", "channel"},
	)

	intakeWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dosekeeper_intake_writes_total",
			Help: "Intake log writes performed by mark-taken, by operation",
		},
		[]string{"op"},
	)

	deriveDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dosekeeper_derive_duration_seconds",
			Help:    "Time spent deriving a patient's occurrences",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)

	activeWindows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dosekeeper_active_windows",
			Help: "Open app windows connected over websocket",
		},
	)

	// Push metrics
	pushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dosekeeper_pushes_total",
			Help: "Web push sends, by result",
		},
		[]string{"result"},
	)

	subscriptionsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dosekeeper_subscriptions_pruned_total",
			Help: "Push subscriptions deleted after the push service reported them gone",
		},
	)

	pushJobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dosekeeper_push_job_runs_total",
			Help: "Background push job invocations, by result",
		},
		[]string{"result"},
	)

	// Database metrics
	storeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dosekeeper_store_errors_total",
			Help: "Schedule store operations that failed, by operation",
		},
		[]string{"op"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Uptime returns the time since the process started
func Uptime() time.Duration {
	return time.Since(startTime)
}

// RecordAlert records one delivered foreground alert
func RecordAlert(kind, channel string) {
	alertsTotal.WithLabelValues(kind, channel).Inc()
}

// RecordIntakeWrite records an insert or update of an intake log
func RecordIntakeWrite(op string) {
	intakeWrites.WithLabelValues(op).Inc()
}

// RecordDerive records how long a derivation took
func RecordDerive(d time.Duration) {
	deriveDuration.Observe(d.Seconds())
}

func IncrementActiveWindows() {
	activeWindows.Inc()
}

func DecrementActiveWindows() {
	activeWindows.Dec()
}

// RecordPush records one push send attempt
func RecordPush(result string) {
	pushesTotal.WithLabelValues(result).Inc()
}

// RecordSubscriptionPruned records a subscription removed after 404/410
func RecordSubscriptionPruned() {
	subscriptionsPruned.Inc()
}

// RecordPushJobRun records one push job invocation
func RecordPushJobRun(result string) {
	pushJobRuns.WithLabelValues(result).Inc()
}

// RecordStoreError records a failed store operation
func RecordStoreError(op string) {
	storeErrors.WithLabelValues(op).Inc()
}
