package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	vr "github.com/ineyio/visionrouter"
)

// DefaultText is the answer of a mock provider without a response func.
const DefaultText = `{"subject":"A cat","medium":"photo","lighting":"soft daylight","composition":"centered","style":"realistic","colorPalette":["#FF5733","#C70039"],"prompt":"A cat"}`

// Provider is a mock vision provider for testing.
type Provider struct {
	name         string
	latency      time.Duration
	failAfter    int
	callCount    atomic.Int64
	staticErr    error
	text         string
	responseFunc func(vr.ProviderRequest) (vr.ProviderResponse, error)

	mu     sync.Mutex
	models []string
}

var _ vr.Provider = (*Provider)(nil)

// Option configures a mock Provider.
type Option func(*Provider)

// New creates a mock provider with the given options.
func New(opts ...Option) *Provider {
	p := &Provider{
		name: "mock",
		text: DefaultText,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithName sets the provider name.
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// WithLatency adds simulated latency to each call.
func WithLatency(d time.Duration) Option {
	return func(p *Provider) { p.latency = d }
}

// WithFailAfter makes the provider fail after N successful calls.
func WithFailAfter(n int) Option {
	return func(p *Provider) { p.failAfter = n }
}

// WithError makes the provider always return this error.
func WithError(err error) Option {
	return func(p *Provider) { p.staticErr = err }
}

// WithText sets the answer text.
func WithText(text string) Option {
	return func(p *Provider) { p.text = text }
}

// WithResponseFunc sets a custom response function.
func WithResponseFunc(fn func(vr.ProviderRequest) (vr.ProviderResponse, error)) Option {
	return func(p *Provider) { p.responseFunc = fn }
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Analyze(ctx context.Context, req vr.ProviderRequest) (vr.ProviderResponse, error) {
	if p.latency > 0 {
		select {
		case <-time.After(p.latency):
		case <-ctx.Done():
			return vr.ProviderResponse{}, ctx.Err()
		}
	}

	count := p.callCount.Add(1)
	p.mu.Lock()
	p.models = append(p.models, req.Model)
	p.mu.Unlock()

	if p.staticErr != nil {
		return vr.ProviderResponse{}, p.staticErr
	}

	if p.failAfter > 0 && int(count) > p.failAfter {
		return vr.ProviderResponse{}, vr.ErrProviderUnavailable
	}

	if p.responseFunc != nil {
		return p.responseFunc(req)
	}

	return vr.ProviderResponse{Text: p.text, Model: req.Model}, nil
}

// CallCount returns the number of calls made to the provider.
func (p *Provider) CallCount() int64 { return p.callCount.Load() }

// Models returns the model ids the provider was called with, in order.
func (p *Provider) Models() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.models...)
}
