package circuitbreaker

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "polya_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name", "service"},
	)

	breakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polya_circuit_breaker_requests_total",
			Help: "Total requests through circuit breakers",
		},
		[]string{"name", "service", "state", "result"},
	)

	breakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polya_circuit_breaker_state_changes_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"name", "service", "from_state", "to_state"},
	)
)

// MetricsCollector exports breaker state to prometheus. One global
// instance serves the process; wrappers register themselves on creation.
type MetricsCollector struct {
	breakers map[string]*CircuitBreaker
	mutex    sync.RWMutex
}

// GlobalMetricsCollector is shared by all wrappers in the process.
var GlobalMetricsCollector = &MetricsCollector{
	breakers: make(map[string]*CircuitBreaker),
}

// RegisterCircuitBreaker tracks a breaker and hooks its state changes
// into the state-change counter.
func (mc *MetricsCollector) RegisterCircuitBreaker(name, service string, cb *CircuitBreaker) {
	mc.mutex.Lock()
	mc.breakers[name+"/"+service] = cb
	mc.mutex.Unlock()

	prev := cb.config.OnStateChange
	cb.config.OnStateChange = func(n string, from, to State) {
		breakerStateChanges.WithLabelValues(n, service, from.String(), to.String()).Inc()
		breakerState.WithLabelValues(n, service).Set(float64(to))
		if prev != nil {
			prev(n, from, to)
		}
	}
	breakerState.WithLabelValues(name, service).Set(float64(cb.State()))
}

// RecordRequest records one request outcome through a breaker.
func (mc *MetricsCollector) RecordRequest(name, service string, state State, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	breakerRequests.WithLabelValues(name, service, state.String(), result).Inc()
	breakerState.WithLabelValues(name, service).Set(float64(state))
}
