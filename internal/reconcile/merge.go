package reconcile

import (
	"sort"

	"github.com/starstake/stakeboard/internal/domain"
)

// Merge builds the reconciled view: every authoritative position plus
// any optimistic entry whose dedup key the authoritative set does not
// already cover, sorted by start time descending with the key as the
// tie-break. Pure function of its inputs; safe to call on every request.
func Merge(authoritative, optimistic []domain.Position) []domain.Position {
	out := make([]domain.Position, 0, len(authoritative)+len(optimistic))
	seen := make(map[string]struct{}, len(authoritative)+len(optimistic))
	for _, p := range authoritative {
		key := p.DedupKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		p.Key = key
		out = append(out, p)
	}
	for _, p := range optimistic {
		key := p.DedupKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		p.Key = key
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartAt.Equal(out[j].StartAt) {
			return out[i].StartAt.After(out[j].StartAt)
		}
		return out[i].Key < out[j].Key
	})
	return out
}
