package visionrouter

import "context"

// Provider is the interface that vision provider adapters must implement.
type Provider interface {
	// Name returns the provider key (e.g. "gemini", "openai", "openrouter").
	Name() string

	// Analyze sends an image and the analysis instruction to model.
	Analyze(ctx context.Context, req ProviderRequest) (ProviderResponse, error)
}

// ProviderRequest is the request sent to a provider adapter.
type ProviderRequest struct {
	Model string
	// ImageData is a base64 data URL.
	ImageData string
	// Prompt is the instruction sent alongside the image.
	Prompt string

	Temperature *float64
	MaxTokens   *int
}

// ProviderResponse is the response from a provider adapter.
type ProviderResponse struct {
	Text  string
	Model string
	// Provider is filled in by the Router.
	Provider string
}

const (
	defaultTemperature = 0.4
	defaultMaxTokens   = 2048
)

// EffectiveTemperature returns the request temperature or the analysis default.
func (r ProviderRequest) EffectiveTemperature() float64 {
	if r.Temperature != nil {
		return *r.Temperature
	}
	return defaultTemperature
}

// EffectiveMaxTokens returns the request token cap or the analysis default.
func (r ProviderRequest) EffectiveMaxTokens() int {
	if r.MaxTokens != nil {
		return *r.MaxTokens
	}
	return defaultMaxTokens
}
