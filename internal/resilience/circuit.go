package resilience

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed lets requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects requests until the reset timeout elapses.
	CircuitOpen
	// CircuitHalfOpen allows a single probe request.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig controls circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// ResetTimeout is how long the circuit stays open before allowing a probe.
	ResetTimeout time.Duration
}

// FromCircuitConfig converts config values to a CircuitBreakerConfig.
func FromCircuitConfig(failureThreshold, resetTimeoutSecs int) CircuitBreakerConfig {
	cfg := CircuitBreakerConfig{FailureThreshold: 5, ResetTimeout: 60 * time.Second}
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if resetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(resetTimeoutSecs) * time.Second
	}
	return cfg
}

type hostCircuit struct {
	state    CircuitState
	failures int
	openedAt time.Time
	probing  bool
}

// HostBreakers tracks one circuit per host. Safe for concurrent use.
type HostBreakers struct {
	cfg   CircuitBreakerConfig
	mu    sync.Mutex
	hosts map[string]*hostCircuit

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewHostBreakers creates an empty breaker registry.
func NewHostBreakers(cfg CircuitBreakerConfig) *HostBreakers {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 60 * time.Second
	}
	return &HostBreakers{
		cfg:     cfg,
		hosts:   make(map[string]*hostCircuit),
		nowFunc: time.Now,
	}
}

func (b *HostBreakers) circuit(host string) *hostCircuit {
	c, ok := b.hosts[host]
	if !ok {
		c = &hostCircuit{}
		b.hosts[host] = c
	}
	return c
}

// Allow reports whether a request to host may proceed. An open circuit whose
// reset timeout has elapsed admits exactly one probe.
func (b *HostBreakers) Allow(host string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuit(host)
	switch c.state {
	case CircuitOpen:
		if b.nowFunc().Sub(c.openedAt) < b.cfg.ResetTimeout {
			return false
		}
		c.state = CircuitHalfOpen
		c.probing = true
		return true
	case CircuitHalfOpen:
		if c.probing {
			return false
		}
		c.probing = true
		return true
	default:
		return true
	}
}

// Record reports the outcome of a request to host.
func (b *HostBreakers) Record(host string, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuit(host)
	c.probing = false
	if ok {
		if c.state != CircuitClosed {
			zap.L().Info("resilience: circuit closed", zap.String("host", host))
		}
		c.state = CircuitClosed
		c.failures = 0
		return
	}

	c.failures++
	if c.state == CircuitHalfOpen || c.failures >= b.cfg.FailureThreshold {
		if c.state != CircuitOpen {
			zap.L().Warn("resilience: circuit opened",
				zap.String("host", host),
				zap.Int("consecutive_failures", c.failures),
			)
		}
		c.state = CircuitOpen
		c.openedAt = b.nowFunc()
	}
}

// State returns the current circuit state for host.
func (b *HostBreakers) State(host string) CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.hosts[host]
	if !ok {
		return CircuitClosed
	}
	return c.state
}
