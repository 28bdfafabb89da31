package vector

import (
	"fmt"
	"slices"
)

// Filter is the portable search filter. Adapters translate it into their
// native filter language.
type Filter struct {
	// ExcludeIDs are never returned.
	ExcludeIDs []string `json:"exclude_ids,omitempty"`

	// Match requires metadata[key] to equal the value for every entry.
	Match map[string]any `json:"match,omitempty"`
}

// IsZero reports whether the filter excludes nothing.
func (f Filter) IsZero() bool {
	return len(f.ExcludeIDs) == 0 && len(f.Match) == 0
}

// Allows reports whether doc passes the filter.
func (f Filter) Allows(doc Document) bool {
	if slices.Contains(f.ExcludeIDs, doc.ID) {
		return false
	}
	for k, want := range f.Match {
		got, ok := doc.Metadata[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// WithHistory returns a copy of existing that also excludes seen ids.
// Adapters without a native history filter use it for HistoryFilter.
func WithHistory(seen []string, existing Filter) Filter {
	out := Filter{
		ExcludeIDs: make([]string, 0, len(existing.ExcludeIDs)+len(seen)),
		Match:      existing.Match,
	}
	have := make(map[string]struct{}, cap(out.ExcludeIDs))
	for _, ids := range [][]string{existing.ExcludeIDs, seen} {
		for _, id := range ids {
			if _, ok := have[id]; ok {
				continue
			}
			have[id] = struct{}{}
			out.ExcludeIDs = append(out.ExcludeIDs, id)
		}
	}
	return out
}
