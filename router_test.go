package visionrouter_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vr "github.com/ineyio/visionrouter"
	"github.com/ineyio/visionrouter/provider/mock"
)

func newTestRouter(t *testing.T, providers []vr.Provider, opts ...vr.Option) *vr.Router {
	t.Helper()
	r, err := vr.NewRouter(vr.NewCatalog(testConfig(t)), providers, opts...)
	require.NoError(t, err)
	return r
}

func TestNewRouter_Validation(t *testing.T) {
	_, err := vr.NewRouter(nil, []vr.Provider{mock.New()})
	assert.Error(t, err)

	_, err = vr.NewRouter(vr.NewCatalog(testConfig(t)), nil)
	assert.Error(t, err)
}

func TestRoute_ResolvesProvider(t *testing.T) {
	r := newTestRouter(t, []vr.Provider{mock.New()})

	p, ok := r.Route(limitedModel)
	assert.True(t, ok)
	assert.Equal(t, "limited", p)

	_, ok = r.Route("nope")
	assert.False(t, ok)
}

func TestDispatch_CallsResolvedProvider(t *testing.T) {
	limited := mock.New(mock.WithName("limited"), mock.WithText("answer"))
	floor := mock.New(mock.WithName("unlimited"))
	r := newTestRouter(t, []vr.Provider{limited, floor})

	resp, err := r.Dispatch(context.Background(), limitedModel, vr.ProviderRequest{ImageData: testImage})
	require.NoError(t, err)
	assert.Equal(t, "answer", resp.Text)
	assert.Equal(t, "limited", resp.Provider)
	assert.Equal(t, limitedModel, resp.Model)
	assert.Equal(t, int64(1), limited.CallCount())
	assert.Zero(t, floor.CallCount())
}

func TestDispatch_UnknownModelGoesToDefaultProvider(t *testing.T) {
	floor := mock.New(mock.WithName("unlimited"))
	m := &recordingMeter{}
	r := newTestRouter(t, []vr.Provider{floor}, vr.WithMeter(m))

	resp, err := r.Dispatch(context.Background(), "who/knows", vr.ProviderRequest{ImageData: testImage})
	require.NoError(t, err)
	assert.Equal(t, "unlimited", resp.Provider)
	assert.Equal(t, []string{"who/knows"}, floor.Models())
	require.Len(t, m.routes, 1)
	assert.True(t, m.routes[0].LastResort)
}

func TestDispatch_StrictRoutingRejectsUnknownModel(t *testing.T) {
	floor := mock.New(mock.WithName("unlimited"))
	r := newTestRouter(t, []vr.Provider{floor}, vr.WithStrictRouting())

	_, err := r.Dispatch(context.Background(), "who/knows", vr.ProviderRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, vr.ErrUnknownModel)
	assert.True(t, vr.IsFatal(err))
	assert.Zero(t, floor.CallCount())
}

func TestDispatch_MissingAdapter(t *testing.T) {
	r := newTestRouter(t, []vr.Provider{mock.New(mock.WithName("unlimited"))})

	_, err := r.Dispatch(context.Background(), limitedModel, vr.ProviderRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, vr.ErrProviderNotConfigured)
	assert.True(t, vr.IsRetryable(err))

	var rerr *vr.RouterError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "limited", rerr.Provider)
}

func TestDispatch_EmptyTextIsFailure(t *testing.T) {
	r := newTestRouter(t, []vr.Provider{mock.New(mock.WithName("limited"), mock.WithText("  \n"))})

	_, err := r.Dispatch(context.Background(), limitedModel, vr.ProviderRequest{})
	assert.ErrorIs(t, err, vr.ErrEmptyResponse)
}

func TestDispatch_PanicIsRecovered(t *testing.T) {
	p := mock.New(mock.WithName("limited"), mock.WithResponseFunc(func(vr.ProviderRequest) (vr.ProviderResponse, error) {
		panic("adapter bug")
	}))
	r := newTestRouter(t, []vr.Provider{p})

	_, err := r.Dispatch(context.Background(), limitedModel, vr.ProviderRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, vr.ErrProviderUnavailable)
	assert.Contains(t, err.Error(), "adapter bug")
}

func TestDispatch_CallTimeout(t *testing.T) {
	p := mock.New(mock.WithName("limited"), mock.WithLatency(time.Second))
	r := newTestRouter(t, []vr.Provider{p}, vr.WithCallTimeout(20*time.Millisecond))

	_, err := r.Dispatch(context.Background(), limitedModel, vr.ProviderRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, vr.ErrProviderUnavailable)
	assert.Equal(t, vr.KindProviderUnavailable, vr.KindOf(err))
}

func TestDispatch_CanceledCallerIsNotAProviderFailure(t *testing.T) {
	p := mock.New(mock.WithName("limited"), mock.WithLatency(time.Second))
	r := newTestRouter(t, []vr.Provider{p})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Dispatch(ctx, limitedModel, vr.ProviderRequest{})
	require.Error(t, err)
	assert.Equal(t, vr.KindCanceled, vr.KindOf(err))
	assert.Equal(t, vr.HealthHealthy, r.Health().State("limited"))
}

func TestDispatch_HealthTracksFailures(t *testing.T) {
	p := mock.New(mock.WithName("limited"), mock.WithError(vr.ErrRateLimited))
	r := newTestRouter(t, []vr.Provider{p})

	for i := 0; i < 3; i++ {
		_, _ = r.Dispatch(context.Background(), limitedModel, vr.ProviderRequest{})
	}
	assert.Equal(t, vr.HealthUnhealthy, r.Health().State("limited"))
	// Unhealthy providers are still dispatched to.
	_, _ = r.Dispatch(context.Background(), limitedModel, vr.ProviderRequest{})
	assert.Equal(t, int64(4), p.CallCount())
}

func TestDispatch_MeterEvents(t *testing.T) {
	m := &recordingMeter{}
	r := newTestRouter(t, []vr.Provider{mock.New(mock.WithName("limited"))}, vr.WithMeter(m))

	_, err := r.Dispatch(context.Background(), limitedModel, vr.ProviderRequest{})
	require.NoError(t, err)
	require.Len(t, m.routes, 1)
	require.Len(t, m.results, 1)
	assert.True(t, m.results[0].Success)
	assert.Equal(t, "limited", m.results[0].Provider)
}
