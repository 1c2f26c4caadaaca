package visionrouter

import (
	"context"
	"fmt"
)

// Admission is the outcome of a pre-flight quota check.
type Admission struct {
	Allowed      bool      `json:"allowed"`
	Reason       string    `json:"reason,omitempty"`
	Provider     string    `json:"provider,omitempty"`
	Usage        Counts    `json:"usage"`
	Limits       Limits    `json:"limits"`
	Alternatives []string  `json:"alternatives,omitempty"`
	Kind         ErrorKind `json:"kind,omitempty"`
}

// Err returns nil for an allowed admission and a sentinel-wrapped error
// carrying the reason otherwise.
func (a Admission) Err() error {
	switch {
	case a.Allowed:
		return nil
	case a.Kind == KindConfiguration:
		return fmt.Errorf("%w: %s", ErrConfiguration, a.Reason)
	default:
		return fmt.Errorf("%w: %s", ErrQuotaExceeded, a.Reason)
	}
}

// Admitter decides whether a user may call a model now.
type Admitter struct {
	catalog *Catalog
	quotas  *QuotaTable
	ledger  UsageLedger
	policy  Policy
	meter   Meter
}

// NewAdmitter creates an Admitter. A nil policy keeps catalog order and
// a nil meter discards events.
func NewAdmitter(catalog *Catalog, quotas *QuotaTable, ledger UsageLedger, policy Policy, meter Meter) *Admitter {
	if policy == nil {
		policy = catalogOrderPolicy{}
	}
	if meter == nil {
		meter = &noopMeter{}
	}
	return &Admitter{
		catalog: catalog,
		quotas:  quotas,
		ledger:  ledger,
		policy:  policy,
		meter:   meter,
	}
}

// Check runs admission for userID calling modelID on tier. The returned
// error is reserved for ledger failures; denials are reported in the
// Admission.
func (a *Admitter) Check(ctx context.Context, userID, modelID string, tier Tier) (Admission, error) {
	adm, err := a.check(ctx, userID, modelID, tier)
	if err != nil {
		return Admission{}, err
	}
	a.meter.OnAdmission(AdmissionEvent{
		UserID:   userID,
		Model:    modelID,
		Provider: adm.Provider,
		Tier:     tier,
		Allowed:  adm.Allowed,
		Reason:   adm.Reason,
	})
	return adm, nil
}

func (a *Admitter) check(ctx context.Context, userID, modelID string, tier Tier) (Admission, error) {
	provider, ok := a.catalog.ProviderOf(modelID)
	if !ok {
		return Admission{
			Reason:       "invalid model",
			Kind:         KindConfiguration,
			Alternatives: a.alternatives(ctx, userID, "", tier),
		}, nil
	}

	limits, ok := a.quotas.LimitsFor(provider, tier)
	if !ok {
		return Admission{
			Reason:       "unknown provider",
			Provider:     provider,
			Kind:         KindConfiguration,
			Alternatives: a.alternatives(ctx, userID, provider, tier),
		}, nil
	}

	// Perpetually free providers never touch the ledger.
	if limits.IsUnlimited() {
		return Admission{Allowed: true, Provider: provider, Limits: limits}, nil
	}

	usage, err := a.ledger.CurrentUsage(ctx, userID, provider)
	if err != nil {
		return Admission{}, fmt.Errorf("visionrouter: read usage: %w", err)
	}

	adm := Admission{Provider: provider, Usage: usage, Limits: limits}
	switch {
	case !limits.Daily.Allows(usage.Daily):
		adm.Reason = fmt.Sprintf("Daily limit reached (%s/day) for %s", limits.Daily, a.displayName(provider))
	case !limits.Monthly.Allows(usage.Monthly):
		adm.Reason = fmt.Sprintf("Monthly limit reached (%s/month) for %s", limits.Monthly, a.displayName(provider))
	default:
		adm.Allowed = true
		return adm, nil
	}

	adm.Kind = KindQuotaExceeded
	adm.Alternatives = a.alternatives(ctx, userID, provider, tier)
	return adm, nil
}

// alternatives lists models of other providers the tier can use. Free
// models are always eligible, paid models only for paid tiers. Providers
// with a zero allowance for the tier, already exhausted by the user or
// with unreadable usage are skipped.
func (a *Admitter) alternatives(ctx context.Context, userID, exclude string, tier Tier) []string {
	var candidates []Candidate
	for _, key := range a.catalog.Providers() {
		if key == exclude {
			continue
		}
		limits, ok := a.quotas.LimitsFor(key, tier)
		if !ok || limits.Daily == 0 || limits.Monthly == 0 {
			continue
		}

		remaining := Remaining{Daily: Unlimited, Monthly: Unlimited}
		if !limits.IsUnlimited() {
			// A provider whose usage cannot be read is not offered.
			usage, err := a.ledger.CurrentUsage(ctx, userID, key)
			if err != nil {
				continue
			}
			remaining = RemainingFor(limits, usage)
			if remaining.Daily == 0 || remaining.Monthly == 0 {
				continue
			}
		}

		for _, m := range a.catalog.ModelsOf(key) {
			if m.Tier == ModelPaid && !tier.IsPaid() {
				continue
			}
			candidates = append(candidates, Candidate{Model: m, Limits: limits, Remaining: remaining})
		}
	}

	ordered := a.policy.Select(candidates)
	if len(ordered) == 0 {
		return nil
	}
	ids := make([]string, len(ordered))
	for i, c := range ordered {
		ids[i] = c.Model.ID
	}
	return ids
}

func (a *Admitter) displayName(provider string) string {
	if p, ok := a.catalog.Provider(provider); ok && p.Name != "" {
		return p.Name
	}
	return provider
}
