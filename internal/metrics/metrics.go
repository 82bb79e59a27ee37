package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "slotbook"

// Hold and confirmation outcomes.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

var (
	once sync.Once

	requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "API requests by transport and endpoint.",
		},
		[]string{"transport", "endpoint"},
	)

	holds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "holds_total",
			Help:      "Slot hold attempts by result.",
		},
		[]string{"result"},
	)

	confirmations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confirmations_total",
			Help:      "Reservation confirmation attempts by result.",
		},
		[]string{"result"},
	)

	released = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_released_total",
			Help:      "Expired reservations released back to the pool.",
		},
	)

	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of expiry sweeps.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(requests, holds, confirmations, released, sweepDuration)
	})
}

// IncHTTP increments the counter for an HTTP route pattern.
func IncHTTP(endpoint string) {
	requests.WithLabelValues("http", endpoint).Inc()
}

func IncGRPC(method string) {
	requests.WithLabelValues("grpc", method).Inc()
}

func IncHold(result string) {
	holds.WithLabelValues(result).Inc()
}

func IncConfirmation(result string) {
	confirmations.WithLabelValues(result).Inc()
}

func AddReleased(n int) {
	released.Add(float64(n))
}

func ObserveSweep(d time.Duration) {
	sweepDuration.Observe(d.Seconds())
}
