package statspoll

import (
	"stockpledge/internal/model"
)

// Reconcile merges an optimistic local pledge list with an authoritative
// snapshot. Matching is by correlation ID, never by position: the snapshot
// replaces every local entry it knows about, and local entries the snapshot
// has not caught up with yet are kept at the end.
func Reconcile(local, authoritative []model.Pledge) []model.Pledge {
	known := make(map[string]struct{}, len(authoritative))
	out := make([]model.Pledge, 0, len(authoritative)+len(local))
	for _, p := range authoritative {
		if p.CorrelationID != "" {
			known[p.CorrelationID] = struct{}{}
		}
		out = append(out, p)
	}
	for _, p := range local {
		if p.CorrelationID == "" {
			continue
		}
		if _, ok := known[p.CorrelationID]; ok {
			continue
		}
		out = append(out, p)
	}
	return out
}
