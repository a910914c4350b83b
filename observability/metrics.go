package observability

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	limited  *prometheus.CounterVec
}

type vaultMetrics struct {
	operations        *prometheus.CounterVec
	liquidationVolume prometheus.Counter
	protocolFees      prometheus.Gauge
	accruals          prometheus.Counter
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	vaultMetricsOnce sync.Once
	vaultRegistry    *vaultMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record
// JSON-RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendvault",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total JSON-RPC module requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendvault",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total JSON-RPC module errors segmented by method and status code.",
			}, []string{"method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lendvault",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			limited: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendvault",
				Subsystem: "module",
				Name:      "rate_limited_total",
				Help:      "Count of requests rejected by the per-source rate limiter.",
			}, []string{"method"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.limited,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordRateLimited increments the limiter counter for the supplied method.
func (m *moduleMetrics) RecordRateLimited(method string) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	m.limited.WithLabelValues(method).Inc()
}

// VaultMetrics returns the lazily-initialised registry tracking the lending
// engine's activity.
func VaultMetrics() *vaultMetrics {
	vaultMetricsOnce.Do(func() {
		vaultRegistry = &vaultMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendvault",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Total ledger operations segmented by kind and outcome.",
			}, []string{"operation", "outcome"}),
			liquidationVolume: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lendvault",
				Subsystem: "engine",
				Name:      "liquidation_volume_units",
				Help:      "Cumulative seized collateral in whole asset units.",
			}),
			protocolFees: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "lendvault",
				Subsystem: "engine",
				Name:      "protocol_fees_units",
				Help:      "Accrued protocol reserve in whole asset units.",
			}),
			accruals: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lendvault",
				Subsystem: "engine",
				Name:      "accrual_passes_total",
				Help:      "Number of completed market accrual passes.",
			}),
		}
		prometheus.MustRegister(
			vaultRegistry.operations,
			vaultRegistry.liquidationVolume,
			vaultRegistry.protocolFees,
			vaultRegistry.accruals,
		)
	})
	return vaultRegistry
}

// RecordOperation counts a ledger operation by kind and outcome.
func (m *vaultMetrics) RecordOperation(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

// RecordLiquidation adds the seized amount, in whole units, to the volume
// counter.
func (m *vaultMetrics) RecordLiquidation(seized *big.Int) {
	if m == nil || seized == nil || seized.Sign() <= 0 {
		return
	}
	m.liquidationVolume.Add(wholeUnits(seized))
}

// SetProtocolFees publishes the current reserve accumulator in whole units.
func (m *vaultMetrics) SetProtocolFees(fees *big.Int) {
	if m == nil || fees == nil {
		return
	}
	m.protocolFees.Set(wholeUnits(fees))
}

// RecordAccrual counts one completed accrual pass.
func (m *vaultMetrics) RecordAccrual() {
	if m == nil {
		return
	}
	m.accruals.Inc()
}

var unitScale = new(big.Float).SetFloat64(1e18)

func wholeUnits(v *big.Int) float64 {
	out, _ := new(big.Float).Quo(new(big.Float).SetInt(v), unitScale).Float64()
	return out
}
