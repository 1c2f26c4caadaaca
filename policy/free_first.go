package policy

import (
	"sort"

	"github.com/ineyio/visionrouter"
)

// FreeFirstPolicy puts free-tier models first, then orders by remaining
// daily allowance (unlimited first, then most remaining).
type FreeFirstPolicy struct{}

var _ visionrouter.Policy = (*FreeFirstPolicy)(nil)

// Select orders candidates: free first, then most remaining.
func (p *FreeFirstPolicy) Select(candidates []visionrouter.Candidate) []visionrouter.Candidate {
	result := make([]visionrouter.Candidate, len(candidates))
	copy(result, candidates)

	sort.SliceStable(result, func(i, j int) bool {
		ci, cj := result[i], result[j]

		fi, fj := ci.Model.Tier == visionrouter.ModelFree, cj.Model.Tier == visionrouter.ModelFree
		if fi != fj {
			return fi
		}

		return moreRemaining(ci.Remaining.Daily, cj.Remaining.Daily)
	})

	return result
}

func moreRemaining(a, b visionrouter.Limit) bool {
	if a.IsUnlimited() || b.IsUnlimited() {
		return a.IsUnlimited() && !b.IsUnlimited()
	}
	return a > b
}
