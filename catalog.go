package visionrouter

// Catalog is the immutable, indexed view of the configured models.
type Catalog struct {
	defaultModel string
	providers    []ProviderConfig
	byKey        map[string]int
	byModel      map[string]Model
}

// NewCatalog indexes a validated config.
func NewCatalog(cfg Config) *Catalog {
	c := &Catalog{
		defaultModel: cfg.DefaultModel,
		providers:    append([]ProviderConfig(nil), cfg.Providers...),
		byKey:        make(map[string]int, len(cfg.Providers)),
		byModel:      make(map[string]Model),
	}
	for i, p := range c.providers {
		c.byKey[p.Key] = i
		for _, m := range p.Models {
			c.byModel[m.ID] = Model{ID: m.ID, Name: m.Name, Tier: m.Tier, Provider: p.Key}
		}
	}
	return c
}

// DefaultModel returns the id of the always-available fallback model.
func (c *Catalog) DefaultModel() string { return c.defaultModel }

// ProviderOf returns the provider key serving modelID.
func (c *Catalog) ProviderOf(modelID string) (string, bool) {
	m, ok := c.byModel[modelID]
	return m.Provider, ok
}

// Model returns the catalog entry for modelID.
func (c *Catalog) Model(modelID string) (Model, bool) {
	m, ok := c.byModel[modelID]
	return m, ok
}

// Providers returns the provider keys in declaration order.
func (c *Catalog) Providers() []string {
	keys := make([]string, len(c.providers))
	for i, p := range c.providers {
		keys[i] = p.Key
	}
	return keys
}

// Provider returns the configuration of a provider.
func (c *Catalog) Provider(key string) (ProviderConfig, bool) {
	i, ok := c.byKey[key]
	if !ok {
		return ProviderConfig{}, false
	}
	return c.providers[i], true
}

// ModelsOf returns the models of a provider in declaration order.
func (c *Catalog) ModelsOf(key string) []Model {
	p, ok := c.Provider(key)
	if !ok {
		return nil
	}
	models := make([]Model, len(p.Models))
	for i, m := range p.Models {
		models[i] = Model{ID: m.ID, Name: m.Name, Tier: m.Tier, Provider: key}
	}
	return models
}

// Models returns every model, grouped by provider in declaration order.
func (c *Catalog) Models() []Model {
	var models []Model
	for _, p := range c.providers {
		models = append(models, c.ModelsOf(p.Key)...)
	}
	return models
}
