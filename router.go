package visionrouter

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Router maps model ids to providers and dispatches analysis calls.
type Router struct {
	catalog     *Catalog
	providers   map[string]Provider
	meter       Meter
	health      *HealthTracker
	callTimeout time.Duration
	strict      bool
}

// Option configures a Router.
type Option func(*Router)

// WithMeter sets the meter.
func WithMeter(m Meter) Option {
	return func(r *Router) { r.meter = m }
}

// WithHealthTracker sets the health tracker.
func WithHealthTracker(h *HealthTracker) Option {
	return func(r *Router) { r.health = h }
}

// WithCallTimeout bounds every provider call. Zero means the caller's
// context is the only bound.
func WithCallTimeout(d time.Duration) Option {
	return func(r *Router) { r.callTimeout = d }
}

// WithStrictRouting makes unknown model ids fail with ErrUnknownModel
// instead of being sent to the default model's provider.
func WithStrictRouting() Option {
	return func(r *Router) { r.strict = true }
}

// NewRouter creates a Router over catalog with the given adapters.
// Adapters are matched to catalog providers by Name().
func NewRouter(catalog *Catalog, providers []Provider, opts ...Option) (*Router, error) {
	if catalog == nil {
		return nil, fmt.Errorf("visionrouter: catalog is required")
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("visionrouter: at least one provider is required")
	}

	provMap := make(map[string]Provider, len(providers))
	for _, p := range providers {
		provMap[p.Name()] = p
	}

	r := &Router{
		catalog:   catalog,
		providers: provMap,
		health:    NewHealthTracker(),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.meter == nil {
		r.meter = &noopMeter{}
	}

	return r, nil
}

// Route returns the provider key serving modelID.
func (r *Router) Route(modelID string) (string, bool) {
	return r.catalog.ProviderOf(modelID)
}

// Health returns the health tracker fed by dispatches.
func (r *Router) Health() *HealthTracker { return r.health }

// Dispatch calls the adapter of the provider serving modelID. Unknown ids
// go to the default model's provider unless strict routing is on. Any
// adapter failure, including a panic or an empty answer, comes back as a
// *RouterError.
func (r *Router) Dispatch(ctx context.Context, modelID string, req ProviderRequest) (ProviderResponse, error) {
	provider, ok := r.catalog.ProviderOf(modelID)
	lastResort := false
	if !ok {
		if r.strict {
			return ProviderResponse{}, &RouterError{
				Err:   fmt.Errorf("%w: %q", ErrUnknownModel, modelID),
				Model: modelID,
			}
		}
		provider, _ = r.catalog.ProviderOf(r.catalog.DefaultModel())
		lastResort = true
	}

	prov, ok := r.providers[provider]
	if !ok {
		return ProviderResponse{}, &RouterError{
			Err:      fmt.Errorf("%w: no adapter for %q", ErrProviderNotConfigured, provider),
			Provider: provider,
			Model:    modelID,
		}
	}

	r.meter.OnRoute(RouteEvent{Provider: provider, Model: modelID, LastResort: lastResort})

	callCtx := ctx
	if r.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.callTimeout)
		defer cancel()
	}

	req.Model = modelID

	start := time.Now()
	resp, err := analyze(callCtx, prov, req)
	duration := time.Since(start)

	if err == nil && strings.TrimSpace(resp.Text) == "" {
		err = ErrEmptyResponse
	}

	if err != nil {
		if ctx.Err() == nil {
			if callCtx.Err() != nil {
				err = fmt.Errorf("%w: call timed out after %s", ErrProviderUnavailable, r.callTimeout)
			}
			r.health.RecordFailure(provider)
		}
		r.meter.OnResult(ResultEvent{
			Provider: provider,
			Model:    modelID,
			Success:  false,
			Duration: duration,
			Error:    err,
		})
		return ProviderResponse{}, &RouterError{
			Err:      err,
			Provider: provider,
			Model:    modelID,
			Attempts: 1,
		}
	}

	r.health.RecordSuccess(provider)
	r.meter.OnResult(ResultEvent{
		Provider: provider,
		Model:    modelID,
		Success:  true,
		Duration: duration,
	})

	if resp.Model == "" {
		resp.Model = modelID
	}
	resp.Provider = provider
	return resp, nil
}

// analyze converts an adapter panic into a provider failure.
func analyze(ctx context.Context, p Provider, req ProviderRequest) (resp ProviderResponse, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: adapter panic: %v", ErrProviderUnavailable, rec)
		}
	}()
	return p.Analyze(ctx, req)
}
