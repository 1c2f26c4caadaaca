package visionrouter_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vr "github.com/ineyio/visionrouter"
	"github.com/ineyio/visionrouter/ledger"
	"github.com/ineyio/visionrouter/policy"
)

func newAdmitter(t *testing.T, l vr.UsageLedger, p vr.Policy) (*vr.Admitter, *vr.Catalog) {
	t.Helper()
	cfg := testConfig(t)
	cat := vr.NewCatalog(cfg)
	return vr.NewAdmitter(cat, vr.NewQuotaTable(cfg), l, p, nil), cat
}

func TestAdmission_ExactlyLimitAdmissions(t *testing.T) {
	l := ledger.NewMemory()
	a, _ := newAdmitter(t, l, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		adm, err := a.Check(ctx, "u1", limitedModel, vr.TierFree)
		require.NoError(t, err)
		require.True(t, adm.Allowed, "admission %d", i+1)
		_, err = l.Increment(ctx, "u1", "limited")
		require.NoError(t, err)
	}

	adm, err := a.Check(ctx, "u1", limitedModel, vr.TierFree)
	require.NoError(t, err)
	assert.False(t, adm.Allowed)
	assert.Contains(t, adm.Reason, "limit")
}

func TestAdmission_DailyLimitScenario(t *testing.T) {
	l := ledger.NewMemory()
	a, cat := newAdmitter(t, l, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := l.Increment(ctx, "u1", "limited")
		require.NoError(t, err)
	}

	adm, err := a.Check(ctx, "u1", limitedModel, vr.TierFree)
	require.NoError(t, err)
	assert.False(t, adm.Allowed)
	assert.Contains(t, adm.Reason, "Daily limit reached (3/day)")
	assert.Equal(t, "Daily limit reached (3/day) for Limited", adm.Reason)
	assert.Equal(t, vr.KindQuotaExceeded, adm.Kind)
	assert.Equal(t, vr.Counts{Daily: 3, Monthly: 3}, adm.Usage)
	assert.Equal(t, vr.Limit(3), adm.Limits.Daily)

	require.NotEmpty(t, adm.Alternatives)
	for _, id := range adm.Alternatives {
		p, ok := cat.ProviderOf(id)
		require.True(t, ok)
		assert.NotEqual(t, "limited", p)
	}
	assert.ErrorIs(t, adm.Err(), vr.ErrQuotaExceeded)
}

func TestAdmission_DailyCheckedBeforeMonthly(t *testing.T) {
	l := ledger.NewMemory()
	a, _ := newAdmitter(t, l, nil)
	ctx := context.Background()

	// pro on "paid" is 2/day, 4/month: both windows are exhausted.
	for i := 0; i < 4; i++ {
		_, err := l.Increment(ctx, "u1", "paid")
		require.NoError(t, err)
	}

	adm, err := a.Check(ctx, "u1", paidModel, vr.TierPro)
	require.NoError(t, err)
	assert.False(t, adm.Allowed)
	assert.Equal(t, "Daily limit reached (2/day) for Paid", adm.Reason)
}

func TestAdmission_MonthlyReason(t *testing.T) {
	cfg, err := vr.ParseConfig([]byte(`
default_model: "d"
providers:
  - key: capped
    name: Capped
    limits:
      free: { daily: 10, monthly: 2 }
    models: [{ id: "c", tier: free }]
  - key: floor
    limits:
      free: { daily: unlimited, monthly: unlimited }
    models: [{ id: "d", tier: free }]
`))
	require.NoError(t, err)

	l := ledger.NewMemory()
	a := vr.NewAdmitter(vr.NewCatalog(cfg), vr.NewQuotaTable(cfg), l, nil, nil)
	ctx := context.Background()
	_, _ = l.Increment(ctx, "u1", "capped")
	_, _ = l.Increment(ctx, "u1", "capped")

	adm, err := a.Check(ctx, "u1", "c", vr.TierFree)
	require.NoError(t, err)
	assert.False(t, adm.Allowed)
	assert.Equal(t, "Monthly limit reached (2/month) for Capped", adm.Reason)
	assert.Equal(t, []string{"d"}, adm.Alternatives)
}

type failingLedger struct{ reads int }

func (f *failingLedger) CurrentUsage(context.Context, string, string) (vr.Counts, error) {
	f.reads++
	return vr.Counts{}, errors.New("ledger down")
}

func (f *failingLedger) Increment(context.Context, string, string) (vr.Counts, error) {
	return vr.Counts{}, errors.New("ledger down")
}

func TestAdmission_UnlimitedNeverReadsLedger(t *testing.T) {
	l := &failingLedger{}
	a, _ := newAdmitter(t, l, nil)

	for i := 0; i < 100; i++ {
		adm, err := a.Check(context.Background(), "u1", defaultModel, vr.TierFree)
		require.NoError(t, err)
		require.True(t, adm.Allowed)
	}
	assert.Zero(t, l.reads)
}

func TestAdmission_UnlimitedNeverDeniesAfterIncrements(t *testing.T) {
	l := ledger.NewMemory()
	a, _ := newAdmitter(t, l, nil)
	ctx := context.Background()

	for i := 0; i < 500; i++ {
		_, _ = l.Increment(ctx, "u1", "unlimited")
	}
	adm, err := a.Check(ctx, "u1", defaultModel, vr.TierFree)
	require.NoError(t, err)
	assert.True(t, adm.Allowed)
}

func TestAdmission_LedgerErrorIsReturned(t *testing.T) {
	a, _ := newAdmitter(t, &failingLedger{}, nil)

	_, err := a.Check(context.Background(), "u1", limitedModel, vr.TierFree)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger down")
}

func TestAdmission_InvalidModel(t *testing.T) {
	a, _ := newAdmitter(t, ledger.NewMemory(), nil)

	adm, err := a.Check(context.Background(), "u1", "no/such-model", vr.TierFree)
	require.NoError(t, err)
	assert.False(t, adm.Allowed)
	assert.Equal(t, "invalid model", adm.Reason)
	assert.Equal(t, vr.KindConfiguration, adm.Kind)
	assert.ErrorIs(t, adm.Err(), vr.ErrConfiguration)
	assert.NotEmpty(t, adm.Alternatives)
}

func TestAdmission_ZeroAllowanceNeverOffered(t *testing.T) {
	a, _ := newAdmitter(t, ledger.NewMemory(), nil)

	adm, err := a.Check(context.Background(), "u1", paidModel, vr.TierFree)
	require.NoError(t, err)
	assert.False(t, adm.Allowed)
	assert.Equal(t, "Daily limit reached (0/day) for Paid", adm.Reason)
	assert.NotContains(t, adm.Alternatives, paidModel)
	assert.Contains(t, adm.Alternatives, limitedModel)
}

func TestAdmission_PaidModelsOnlyForPaidTiers(t *testing.T) {
	l := ledger.NewMemory()
	a, _ := newAdmitter(t, l, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = l.Increment(ctx, "u1", "limited")
	}

	adm, err := a.Check(ctx, "u1", limitedModel, vr.TierPro)
	require.NoError(t, err)
	assert.False(t, adm.Allowed)
	assert.Contains(t, adm.Alternatives, paidModel)

	adm, err = a.Check(ctx, "u2", paidModel, vr.TierFree)
	require.NoError(t, err)
	assert.NotContains(t, adm.Alternatives, paidModel)
}

func TestAdmission_ExhaustedProvidersSkipped(t *testing.T) {
	l := ledger.NewMemory()
	a, _ := newAdmitter(t, l, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = l.Increment(ctx, "u1", "limited")
	}

	adm, err := a.Check(ctx, "u1", paidModel, vr.TierFree)
	require.NoError(t, err)
	assert.False(t, adm.Allowed)
	assert.Equal(t, []string{defaultModel, "free/other"}, adm.Alternatives)
}

func TestAdmission_UnknownTierUsesFreeLimits(t *testing.T) {
	a, _ := newAdmitter(t, ledger.NewMemory(), nil)

	adm, err := a.Check(context.Background(), "u1", paidModel, vr.Tier("enterprise"))
	require.NoError(t, err)
	assert.False(t, adm.Allowed)
	assert.Equal(t, vr.Limits{}, adm.Limits)
}

func TestAdmission_FreeFirstPolicyOrdersAlternatives(t *testing.T) {
	l := ledger.NewMemory()
	a, _ := newAdmitter(t, l, &policy.FreeFirstPolicy{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _ = l.Increment(ctx, "u1", "paid")
	}

	adm, err := a.Check(ctx, "u1", paidModel, vr.TierPro)
	require.NoError(t, err)
	require.False(t, adm.Allowed)
	// unlimited free models first, then the capped free model.
	assert.Equal(t, []string{defaultModel, "free/other", limitedModel}, adm.Alternatives)
}

// partialLedger fails reads of one provider and delegates the rest.
type partialLedger struct {
	vr.UsageLedger
	broken string
}

func (p partialLedger) CurrentUsage(ctx context.Context, userID, provider string) (vr.Counts, error) {
	if provider == p.broken {
		return vr.Counts{}, errors.New("ledger shard down")
	}
	return p.UsageLedger.CurrentUsage(ctx, userID, provider)
}

func TestAdmission_AlternativesSkipUnreadableProvider(t *testing.T) {
	mem := ledger.NewMemory()
	a, _ := newAdmitter(t, partialLedger{UsageLedger: mem, broken: "limited"}, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := mem.Increment(ctx, "u1", "paid")
		require.NoError(t, err)
	}

	adm, err := a.Check(ctx, "u1", paidModel, vr.TierPro)
	require.NoError(t, err)
	require.False(t, adm.Allowed)
	assert.NotContains(t, adm.Alternatives, limitedModel)
	assert.Equal(t, []string{defaultModel, "free/other"}, adm.Alternatives)
}

type recordingMeter struct {
	admissions []vr.AdmissionEvent
	routes     []vr.RouteEvent
	results    []vr.ResultEvent
	fallbacks  []vr.FallbackEvent
}

func (m *recordingMeter) OnAdmission(e vr.AdmissionEvent) { m.admissions = append(m.admissions, e) }
func (m *recordingMeter) OnRoute(e vr.RouteEvent)         { m.routes = append(m.routes, e) }
func (m *recordingMeter) OnResult(e vr.ResultEvent)       { m.results = append(m.results, e) }
func (m *recordingMeter) OnFallback(e vr.FallbackEvent)   { m.fallbacks = append(m.fallbacks, e) }

func TestAdmission_EmitsMeterEvent(t *testing.T) {
	cfg := testConfig(t)
	m := &recordingMeter{}
	a := vr.NewAdmitter(vr.NewCatalog(cfg), vr.NewQuotaTable(cfg), ledger.NewMemory(), nil, m)

	_, err := a.Check(context.Background(), "u1", paidModel, vr.TierFree)
	require.NoError(t, err)
	require.Len(t, m.admissions, 1)
	assert.Equal(t, "paid", m.admissions[0].Provider)
	assert.False(t, m.admissions[0].Allowed)
}
