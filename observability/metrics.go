package observability

import (
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type gatewayMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	gatewayMetricsOnce sync.Once
	gatewayRegistry    *gatewayMetrics

	protocolMetricsOnce sync.Once
	protocolRegistry    *ProtocolMetrics
)

// Gateway returns the lazily-initialised registry recording HTTP gateway
// activity.
func Gateway() *gatewayMetrics {
	gatewayMetricsOnce.Do(func() {
		gatewayRegistry = &gatewayMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "remitlend",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total gateway requests segmented by route and outcome.",
			}, []string{"route", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "remitlend",
				Subsystem: "gateway",
				Name:      "errors_total",
				Help:      "Total gateway errors segmented by route and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "remitlend",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for gateway handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "remitlend",
				Subsystem: "gateway",
				Name:      "throttles_total",
				Help:      "Count of gateway requests rejected due to throttling policies.",
			}, []string{"route", "reason"}),
		}
		prometheus.MustRegister(
			gatewayRegistry.requests,
			gatewayRegistry.errors,
			gatewayRegistry.latency,
			gatewayRegistry.throttles,
		)
	})
	return gatewayRegistry
}

// Observe records the outcome of a gateway request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *gatewayMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(route, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied route and
// reason.
func (m *gatewayMetrics) RecordThrottle(route, reason string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(route, reason).Inc()
}

// ProtocolMetrics wraps collectors tracking protocol calls and ledger health.
type ProtocolMetrics struct {
	calls       *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	liquidity   prometheus.Gauge
	borrowed    prometheus.Gauge
	interest    prometheus.Gauge
	utilization prometheus.Gauge
	loans       *prometheus.CounterVec
}

// Protocol exposes the metrics registry for the protocol core.
func Protocol() *ProtocolMetrics {
	protocolMetricsOnce.Do(func() {
		protocolRegistry = &ProtocolMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "remitlend",
				Subsystem: "protocol",
				Name:      "calls_total",
				Help:      "Protocol calls segmented by operation and reason (ok for committed calls).",
			}, []string{"operation", "reason"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "remitlend",
				Subsystem: "protocol",
				Name:      "call_duration_seconds",
				Help:      "Latency distribution for protocol calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			liquidity: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "remitlend",
				Subsystem: "pool",
				Name:      "total_liquidity",
				Help:      "Total deposited liquidity in asset base units.",
			}),
			borrowed: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "remitlend",
				Subsystem: "pool",
				Name:      "total_borrowed",
				Help:      "Principal currently lent out in asset base units.",
			}),
			interest: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "remitlend",
				Subsystem: "pool",
				Name:      "total_interest_earned",
				Help:      "Cumulative interest repaid to the pool in asset base units.",
			}),
			utilization: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "remitlend",
				Subsystem: "pool",
				Name:      "utilization_bps",
				Help:      "Borrowed over liquidity in basis points.",
			}),
			loans: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "remitlend",
				Subsystem: "loans",
				Name:      "transitions_total",
				Help:      "Loan lifecycle transitions segmented by target status.",
			}, []string{"status"}),
		}
		prometheus.MustRegister(
			protocolRegistry.calls,
			protocolRegistry.latency,
			protocolRegistry.liquidity,
			protocolRegistry.borrowed,
			protocolRegistry.interest,
			protocolRegistry.utilization,
			protocolRegistry.loans,
		)
	})
	return protocolRegistry
}

// ObserveCall records a protocol call. reason is empty for committed calls.
func (m *ProtocolMetrics) ObserveCall(operation, reason string, duration time.Duration) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	if reason == "" {
		reason = "ok"
	}
	m.calls.WithLabelValues(operation, reason).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordPool publishes the pool totals.
func (m *ProtocolMetrics) RecordPool(liquidity, borrowed, interest *big.Int, utilizationBps uint64) {
	if m == nil {
		return
	}
	m.liquidity.Set(bigToFloat(liquidity))
	m.borrowed.Set(bigToFloat(borrowed))
	m.interest.Set(bigToFloat(interest))
	m.utilization.Set(float64(utilizationBps))
}

// RecordLoanTransition counts a loan entering status.
func (m *ProtocolMetrics) RecordLoanTransition(status string) {
	if m == nil || status == "" {
		return
	}
	m.loans.WithLabelValues(status).Inc()
}

func bigToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	if math.IsInf(f, 0) {
		return math.MaxFloat64
	}
	return f
}
