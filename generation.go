package visionrouter

import (
	"context"
	"fmt"
)

// GenerationNamespace prefixes the ledger keys of generation providers so
// their counters never mix with the vision counters of the same provider.
const GenerationNamespace = "generation/"

// namespacedLedger maps provider keys into a separate key space of an
// underlying ledger.
type namespacedLedger struct {
	prefix string
	UsageLedger
}

func (l namespacedLedger) CurrentUsage(ctx context.Context, userID, provider string) (Counts, error) {
	return l.UsageLedger.CurrentUsage(ctx, userID, l.prefix+provider)
}

func (l namespacedLedger) Increment(ctx context.Context, userID, provider string) (Counts, error) {
	return l.UsageLedger.Increment(ctx, userID, l.prefix+provider)
}

// Selection is the provider a generation request runs on.
type Selection struct {
	Provider   string `json:"provider"`
	Requested  string `json:"requested,omitempty"`
	Downgraded bool   `json:"downgraded"`
	Reason     string `json:"reason,omitempty"`
}

// GenerationQuotas meters text generation and research calls against
// their own per-provider table. Requests over quota on a limited provider
// are moved to the unlimited default provider.
type GenerationQuotas struct {
	providers []GenerationProviderConfig
	byKey     map[string]GenerationProviderConfig
	def       string
	quotas    *QuotaTable
	ledger    UsageLedger
	meter     Meter
}

// NewGenerationQuotas builds the generation quotas over ledger. Counters
// are kept under GenerationNamespace. A nil meter discards events.
func NewGenerationQuotas(cfg GenerationConfig, ledger UsageLedger, meter Meter) *GenerationQuotas {
	if meter == nil {
		meter = &noopMeter{}
	}
	g := &GenerationQuotas{
		providers: cfg.Providers,
		byKey:     make(map[string]GenerationProviderConfig, len(cfg.Providers)),
		def:       cfg.DefaultProvider,
		quotas:    &QuotaTable{limits: make(map[string]map[Tier]Limits, len(cfg.Providers))},
		ledger:    namespacedLedger{prefix: GenerationNamespace, UsageLedger: ledger},
		meter:     meter,
	}
	for _, p := range cfg.Providers {
		g.byKey[p.Key] = p
		tiers := make(map[Tier]Limits, len(p.Limits))
		for tier, l := range p.Limits {
			tiers[tier] = l
		}
		g.quotas.limits[p.Key] = tiers
	}
	return g
}

// Enabled reports whether any generation provider is configured.
func (g *GenerationQuotas) Enabled() bool { return len(g.providers) > 0 }

// DefaultProvider returns the unlimited provider downgrades land on.
func (g *GenerationQuotas) DefaultProvider() string { return g.def }

// Check runs admission for userID calling provider on tier. The returned
// error is reserved for ledger failures.
func (g *GenerationQuotas) Check(ctx context.Context, userID, provider string, tier Tier) (Admission, error) {
	if tier == "" {
		tier = TierFree
	}
	adm, err := g.check(ctx, userID, provider, tier)
	if err != nil {
		return Admission{}, err
	}
	g.meter.OnAdmission(AdmissionEvent{
		UserID:   userID,
		Provider: GenerationNamespace + provider,
		Tier:     tier,
		Allowed:  adm.Allowed,
		Reason:   adm.Reason,
	})
	return adm, nil
}

func (g *GenerationQuotas) check(ctx context.Context, userID, provider string, tier Tier) (Admission, error) {
	limits, ok := g.quotas.LimitsFor(provider, tier)
	if !ok {
		return Admission{Reason: "unknown provider", Provider: provider, Kind: KindConfiguration}, nil
	}
	if limits.IsUnlimited() {
		return Admission{Allowed: true, Provider: provider, Limits: limits}, nil
	}

	usage, err := g.ledger.CurrentUsage(ctx, userID, provider)
	if err != nil {
		return Admission{}, fmt.Errorf("visionrouter: read generation usage: %w", err)
	}

	adm := Admission{Provider: provider, Usage: usage, Limits: limits}
	switch {
	case !limits.Daily.Allows(usage.Daily):
		adm.Reason = fmt.Sprintf("Daily limit reached (%s/day) for %s", limits.Daily, g.displayName(provider))
	case !limits.Monthly.Allows(usage.Monthly):
		adm.Reason = fmt.Sprintf("Monthly limit reached (%s/month) for %s", limits.Monthly, g.displayName(provider))
	default:
		adm.Allowed = true
		return adm, nil
	}
	adm.Kind = KindQuotaExceeded
	if provider != g.def {
		adm.Alternatives = []string{g.def}
	}
	return adm, nil
}

// Select picks the provider for a generation request. An empty preference
// selects the default provider. A preferred provider the user may not
// call now is replaced by the default provider and the denial reason is
// kept in the selection.
func (g *GenerationQuotas) Select(ctx context.Context, userID, preferred string, tier Tier) (Selection, error) {
	if !g.Enabled() {
		return Selection{}, fmt.Errorf("%w: no generation providers configured", ErrConfiguration)
	}
	if preferred == "" || preferred == g.def {
		return Selection{Provider: g.def, Requested: preferred}, nil
	}

	adm, err := g.Check(ctx, userID, preferred, tier)
	if err != nil {
		return Selection{}, err
	}
	if adm.Allowed {
		return Selection{Provider: preferred, Requested: preferred}, nil
	}
	return Selection{
		Provider:   g.def,
		Requested:  preferred,
		Downgraded: true,
		Reason:     adm.Reason,
	}, nil
}

// Record counts one successful generation call against provider.
func (g *GenerationQuotas) Record(ctx context.Context, userID, provider string) (Counts, error) {
	if _, ok := g.byKey[provider]; !ok {
		return Counts{}, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	counts, err := g.ledger.Increment(ctx, userID, provider)
	if err != nil {
		return Counts{}, fmt.Errorf("visionrouter: increment generation usage: %w", err)
	}
	return counts, nil
}

// Snapshot reports usage, limits and remaining allowance of every
// generation provider for userID on tier, in declaration order.
func (g *GenerationQuotas) Snapshot(ctx context.Context, userID string, tier Tier) ([]ProviderUsage, error) {
	if tier == "" {
		tier = TierFree
	}
	out := make([]ProviderUsage, 0, len(g.providers))
	for _, p := range g.providers {
		limits, _ := g.quotas.LimitsFor(p.Key, tier)
		usage, err := g.ledger.CurrentUsage(ctx, userID, p.Key)
		if err != nil {
			return nil, fmt.Errorf("visionrouter: read generation usage for %s: %w", p.Key, err)
		}
		out = append(out, ProviderUsage{
			Provider:  p.Key,
			Name:      g.displayName(p.Key),
			Purpose:   p.Purpose,
			Usage:     usage,
			Limits:    limits,
			Remaining: RemainingFor(limits, usage),
		})
	}
	return out, nil
}

func (g *GenerationQuotas) displayName(provider string) string {
	if p, ok := g.byKey[provider]; ok && p.Name != "" {
		return p.Name
	}
	return provider
}
