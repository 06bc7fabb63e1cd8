// Package ranking selects the vendors a smart-matched request is offered to.
package ranking

import (
	"fmt"
	"slices"
	"sort"

	"github.com/rendis/procura/internal/store"
)

const (
	// MinQualityScore is the lowest quality score that still qualifies a vendor.
	MinQualityScore = 3.0
	// DefaultLimit caps the number of vendors selected per request.
	DefaultLimit = 5
)

// Selection is one ranked vendor and why it was chosen.
type Selection struct {
	Candidate *store.VendorCandidate
	Rationale string
}

// Eligible reports whether c may be offered a request in category.
func Eligible(c *store.VendorCandidate, category string) bool {
	return c != nil &&
		c.Role == store.RoleVendor &&
		c.VerificationStatus == store.VerificationApproved &&
		slices.Contains(c.Categories, category) &&
		c.QualityScore >= MinQualityScore
}

// Rank filters candidates to eligible vendors, orders them by quality score
// descending and returns at most limit of them. Equal scores keep their input
// order. A limit <= 0 means DefaultLimit. The input slice is not modified.
func Rank(candidates []*store.VendorCandidate, category string, limit int) []Selection {
	if limit <= 0 {
		limit = DefaultLimit
	}

	eligible := make([]*store.VendorCandidate, 0, len(candidates))
	for _, c := range candidates {
		if Eligible(c, category) {
			eligible = append(eligible, c)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].QualityScore > eligible[j].QualityScore
	})
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}

	out := make([]Selection, len(eligible))
	for i, c := range eligible {
		out[i] = Selection{Candidate: c, Rationale: rationale(c, category, i+1)}
	}
	return out
}

func rationale(c *store.VendorCandidate, category string, rank int) string {
	return fmt.Sprintf("ranked #%d for %s: quality %.1f, %.0f%% completion, %.1fh avg response",
		rank, category, c.QualityScore, c.CompletionRate*100, c.ResponseTimeAvgHours)
}
