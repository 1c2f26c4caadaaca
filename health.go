package visionrouter

import (
	"sync"
	"time"
)

const (
	healthFailureThreshold = 3
	healthFailureWindow    = 5 * time.Minute
	healthCooldown         = 30 * time.Second
)

// HealthState describes the health of a provider.
type HealthState int

const (
	HealthHealthy HealthState = iota
	HealthUnhealthy
	HealthHalfOpen
)

func (h HealthState) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthUnhealthy:
		return "unhealthy"
	case HealthHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// HealthTracker keeps a circuit-breaker view of each provider: three
// failures within five minutes mark it unhealthy, and after a 30s cooldown
// it is half-open until the next success or failure. The state is
// informational; dispatch never consults it.
type HealthTracker struct {
	mu        sync.Mutex
	now       Clock
	providers map[string]*providerHealth
}

type providerHealth struct {
	state       HealthState
	failures    []time.Time
	unhealthyAt time.Time
}

// NewHealthTracker creates a new HealthTracker.
func NewHealthTracker() *HealthTracker {
	return &HealthTracker{
		now:       time.Now,
		providers: make(map[string]*providerHealth),
	}
}

// State returns the current health of a provider.
func (h *HealthTracker) State(provider string) HealthState {
	h.mu.Lock()
	defer h.mu.Unlock()

	ph, ok := h.providers[provider]
	if !ok {
		return HealthHealthy
	}
	if ph.state == HealthUnhealthy && h.now().Sub(ph.unhealthyAt) >= healthCooldown {
		ph.state = HealthHalfOpen
	}
	return ph.state
}

// RecordSuccess closes the breaker of a provider.
func (h *HealthTracker) RecordSuccess(provider string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ph := h.get(provider)
	ph.state = HealthHealthy
	ph.failures = ph.failures[:0]
}

// RecordFailure counts a failed call against a provider.
func (h *HealthTracker) RecordFailure(provider string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ph := h.get(provider)
	now := h.now()

	// A failed trial call while half-open reopens the breaker immediately.
	if ph.state == HealthHalfOpen || (ph.state == HealthUnhealthy && now.Sub(ph.unhealthyAt) >= healthCooldown) {
		ph.state = HealthUnhealthy
		ph.unhealthyAt = now
		return
	}
	if ph.state == HealthUnhealthy {
		return
	}

	cutoff := now.Add(-healthFailureWindow)
	valid := ph.failures[:0]
	for _, t := range ph.failures {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	ph.failures = append(valid, now)

	if len(ph.failures) >= healthFailureThreshold {
		ph.state = HealthUnhealthy
		ph.unhealthyAt = now
	}
}

func (h *HealthTracker) get(provider string) *providerHealth {
	ph, ok := h.providers[provider]
	if !ok {
		ph = &providerHealth{state: HealthHealthy}
		h.providers[provider] = ph
	}
	return ph
}
