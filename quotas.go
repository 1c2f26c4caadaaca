package visionrouter

// QuotaTable answers per-provider, per-tier allowances.
type QuotaTable struct {
	limits map[string]map[Tier]Limits
}

// NewQuotaTable builds the table from a validated config.
func NewQuotaTable(cfg Config) *QuotaTable {
	t := &QuotaTable{limits: make(map[string]map[Tier]Limits, len(cfg.Providers))}
	for _, p := range cfg.Providers {
		tiers := make(map[Tier]Limits, len(p.Limits))
		for tier, l := range p.Limits {
			tiers[tier] = l
		}
		t.limits[p.Key] = tiers
	}
	return t
}

// LimitsFor returns the allowance of provider for tier. An unknown tier
// gets the free tier's limits. ok is false only for an unknown provider.
func (t *QuotaTable) LimitsFor(provider string, tier Tier) (Limits, bool) {
	tiers, ok := t.limits[provider]
	if !ok {
		return Limits{}, false
	}
	if l, ok := tiers[tier]; ok {
		return l, true
	}
	return tiers[TierFree], true
}
