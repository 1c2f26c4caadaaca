package visionrouter

import "time"

// Meter observes admission and routing events for monitoring/logging.
type Meter interface {
	// OnAdmission is called after every admission decision.
	OnAdmission(event AdmissionEvent)

	// OnRoute is called when a model is dispatched to a provider.
	OnRoute(event RouteEvent)

	// OnResult is called when a provider returns a result.
	OnResult(event ResultEvent)

	// OnFallback is called when the default model is tried after a failure.
	OnFallback(event FallbackEvent)
}

// AdmissionEvent describes an admission decision.
type AdmissionEvent struct {
	UserID   string
	Model    string
	Provider string
	Tier     Tier
	Allowed  bool
	Reason   string
}

// RouteEvent describes a dispatch.
type RouteEvent struct {
	Provider string
	Model    string
	// LastResort is true when the model was unknown and the default
	// model's provider was used.
	LastResort bool
}

// ResultEvent describes the outcome of a provider call.
type ResultEvent struct {
	Provider string
	Model    string
	Success  bool
	Duration time.Duration
	Error    error
}

// FallbackEvent describes a retry onto the default model.
type FallbackEvent struct {
	OriginalModel string
	DefaultModel  string
	Reason        error
	Success       bool
}

// noopMeter is a meter that does nothing.
type noopMeter struct{}

func (m *noopMeter) OnAdmission(AdmissionEvent) {}
func (m *noopMeter) OnRoute(RouteEvent)         {}
func (m *noopMeter) OnResult(ResultEvent)       {}
func (m *noopMeter) OnFallback(FallbackEvent)   {}
