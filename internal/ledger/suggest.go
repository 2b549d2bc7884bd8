package ledger

import (
	"sort"

	"github.com/agnivade/levenshtein"
)

// Suggest returns up to limit recorded identifiers closest to id, for
// "did you mean" hints after ErrNotFound.
func Suggest(entries []Entry, id string, limit int) []string {
	type scored struct {
		id   string
		dist int
	}
	maxDist := len(id)/2 + 1
	var cands []scored
	for _, e := range entries {
		d := levenshtein.ComputeDistance(id, e.ContributionID)
		if d <= maxDist {
			cands = append(cands, scored{e.ContributionID, d})
		}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		return cands[i].id < cands[j].id
	})
	out := make([]string, 0, limit)
	for _, c := range cands {
		if len(out) == limit {
			break
		}
		out = append(out, c.id)
	}
	return out
}
