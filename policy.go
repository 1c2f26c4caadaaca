package visionrouter

// Policy orders the alternative models offered on a denied admission.
type Policy interface {
	// Select orders candidates by priority. Returns ordered slice (highest priority first).
	Select(candidates []Candidate) []Candidate
}

// Candidate is a model that could serve the request instead of the denied one.
type Candidate struct {
	Model     Model
	Limits    Limits
	Remaining Remaining
}

// catalogOrderPolicy keeps the declaration order of the catalog.
type catalogOrderPolicy struct{}

func (catalogOrderPolicy) Select(candidates []Candidate) []Candidate { return candidates }
