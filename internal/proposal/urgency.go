package proposal

import (
	"slices"
	"strings"
	"time"
)

// SortByUrgency orders proposals most urgent first: higher alert level,
// then urgent before not, then sooner expiry, then id.
func SortByUrgency(ps []*Proposal, now time.Time, within time.Duration) {
	slices.SortStableFunc(ps, func(a, b *Proposal) int {
		if a.AlertLevel != b.AlertLevel {
			return int(b.AlertLevel) - int(a.AlertLevel)
		}
		ua, ub := a.IsUrgent(now, within), b.IsUrgent(now, within)
		if ua != ub {
			if ua {
				return -1
			}
			return 1
		}
		if c := a.ExpiresAt.Compare(b.ExpiresAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// MostUrgent returns the first proposal by SortByUrgency, or nil. ps is not reordered.
func MostUrgent(ps []*Proposal, now time.Time, within time.Duration) *Proposal {
	if len(ps) == 0 {
		return nil
	}
	sorted := slices.Clone(ps)
	SortByUrgency(sorted, now, within)
	return sorted[0]
}
