package health

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pinger is the connectivity probe both the store and the result cache
// expose.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BreakerStater is implemented by wrapped clients that can report an open
// circuit breaker without touching the backend.
type BreakerStater interface {
	IsCircuitBreakerOpen() bool
}

// highLatency marks a responding backend as degraded rather than healthy.
const highLatency = 100 * time.Millisecond

// PingChecker probes one backend through its Ping method. Persistence and
// caching are both best-effort in this service, so these probes are
// registered non-critical: a failure degrades, the engine keeps serving.
type PingChecker struct {
	name     string
	critical bool
	pinger   Pinger
	breaker  BreakerStater
	logger   *zap.Logger
	timeout  time.Duration
}

func NewPingChecker(name string, critical bool, pinger Pinger, breaker BreakerStater, logger *zap.Logger) *PingChecker {
	return &PingChecker{
		name:     name,
		critical: critical,
		pinger:   pinger,
		breaker:  breaker,
		logger:   logger,
		timeout:  5 * time.Second,
	}
}

func (p *PingChecker) Name() string           { return p.name }
func (p *PingChecker) IsCritical() bool       { return p.critical }
func (p *PingChecker) Timeout() time.Duration { return p.timeout }

func (p *PingChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Component: p.name, Critical: p.critical, Timestamp: start}

	if p.breaker != nil && p.breaker.IsCircuitBreakerOpen() {
		result.Status = StatusUnhealthy
		result.Error = "circuit breaker open"
		result.Message = p.name + " circuit breaker is open"
		result.Duration = time.Since(start)
		return result
	}

	err := p.pinger.Ping(ctx)
	result.Duration = time.Since(start)

	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = p.name + " ping failed"
		result.Details = map[string]any{
			"latency_ms": result.Duration.Milliseconds(),
		}
		return result
	}

	if result.Duration > highLatency {
		result.Status = StatusDegraded
		result.Message = p.name + " responding with high latency"
	} else {
		result.Status = StatusHealthy
		result.Message = p.name + " healthy"
	}
	result.Details = map[string]any{
		"latency_ms":           result.Duration.Milliseconds(),
		"circuit_breaker_open": false,
	}
	return result
}

// PolicyChecker reports whether the policy engine has compiled rules
// loaded. It is critical only in fail-closed deployments, where an
// unloaded engine means every invocation would be rejected.
type PolicyChecker struct {
	enabled  func() bool
	critical bool
	timeout  time.Duration
}

func NewPolicyChecker(enabled func() bool, critical bool) *PolicyChecker {
	return &PolicyChecker{
		enabled:  enabled,
		critical: critical,
		timeout:  time.Second,
	}
}

func (p *PolicyChecker) Name() string           { return "policy" }
func (p *PolicyChecker) IsCritical() bool       { return p.critical }
func (p *PolicyChecker) Timeout() time.Duration { return p.timeout }

func (p *PolicyChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Component: "policy", Critical: p.critical, Timestamp: start}

	if p.enabled() {
		result.Status = StatusHealthy
		result.Message = "policy engine loaded"
	} else if p.critical {
		result.Status = StatusUnhealthy
		result.Message = "policy engine not loaded in fail-closed mode"
	} else {
		result.Status = StatusDegraded
		result.Message = "policy engine not loaded, invocations run ungated"
	}
	result.Duration = time.Since(start)
	return result
}

// CustomChecker wraps an arbitrary probe function.
type CustomChecker struct {
	name     string
	critical bool
	timeout  time.Duration
	checkFn  func(ctx context.Context) CheckResult
}

func NewCustomChecker(name string, critical bool, timeout time.Duration, checkFn func(ctx context.Context) CheckResult) *CustomChecker {
	return &CustomChecker{
		name:     name,
		critical: critical,
		timeout:  timeout,
		checkFn:  checkFn,
	}
}

func (c *CustomChecker) Name() string           { return c.name }
func (c *CustomChecker) IsCritical() bool       { return c.critical }
func (c *CustomChecker) Timeout() time.Duration { return c.timeout }

func (c *CustomChecker) Check(ctx context.Context) CheckResult {
	return c.checkFn(ctx)
}
