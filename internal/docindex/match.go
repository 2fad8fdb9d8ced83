package docindex

import (
	"fmt"
	"iter"
	"slices"
	"sort"
	"strings"

	"github.com/sha1n/mcp-docindex-server/internal/domain"
)

// MatchMode selects which keys a query matches.
type MatchMode int

const (
	// MatchPrefix matches keys equal to or starting with the query.
	MatchPrefix MatchMode = iota
	// MatchSubstring additionally matches keys containing the query anywhere.
	MatchSubstring
)

func (m MatchMode) String() string {
	switch m {
	case MatchPrefix:
		return "prefix"
	case MatchSubstring:
		return "substring"
	default:
		return fmt.Sprintf("MatchMode(%d)", int(m))
	}
}

// ParseMatchMode parses "prefix" or "substring", case-insensitively.
func ParseMatchMode(s string) (MatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "prefix":
		return MatchPrefix, nil
	case "substring":
		return MatchSubstring, nil
	default:
		return 0, fmt.Errorf("unknown match mode: %q", s)
	}
}

// Tier is the relevance class of a match. Lower tiers rank first.
type Tier int

const (
	TierExact Tier = iota
	TierPrefix
	TierSubstring
	TierNone
)

type queryOptions struct {
	mode       MatchMode
	categories map[string]bool
}

// QueryOption configures a query.
type QueryOption func(*queryOptions)

// WithMode sets the match mode. The default is MatchSubstring.
func WithMode(mode MatchMode) QueryOption {
	return func(o *queryOptions) {
		o.mode = mode
	}
}

// WithCategories restricts matches to the given categories.
// Passing no categories leaves the query unrestricted.
func WithCategories(categories ...string) QueryOption {
	return func(o *queryOptions) {
		for _, c := range categories {
			c = strings.TrimSpace(c)
			if c == "" {
				continue
			}
			if o.categories == nil {
				o.categories = make(map[string]bool)
			}
			o.categories[c] = true
		}
	}
}

func (o *queryOptions) accepts(e *domain.IndexEntry) bool {
	return len(o.categories) == 0 || o.categories[e.Category]
}

// NormalizeQuery trims and lowercases user input.
func NormalizeQuery(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Classify reports how key matches an already normalized query.
func Classify(key, query string) Tier {
	switch {
	case query == "":
		return TierNone
	case key == query:
		return TierExact
	case strings.HasPrefix(key, query):
		return TierPrefix
	case strings.Contains(key, query):
		return TierSubstring
	default:
		return TierNone
	}
}

// Query returns the entries matching text, most relevant first.
//
// Exact key matches come first, then prefix matches, then (in substring
// mode) entries whose key merely contains the query. Within a tier entries
// keep their load order. Empty or blank text yields no entries.
//
// The sequence is lazy and can be ranged over any number of times; each
// iteration reads the immutable store afresh and stopping early skips the
// remaining work.
func (s *Store) Query(text string, opts ...QueryOption) iter.Seq[domain.IndexEntry] {
	q := NormalizeQuery(text)
	o := queryOptions{mode: MatchSubstring}
	for _, opt := range opts {
		opt(&o)
	}

	return func(yield func(domain.IndexEntry) bool) {
		if q == "" || s.Len() == 0 {
			return
		}

		lo, eq, hi := s.prefixRange(q)

		// byKey is stable, so equal keys are already in load order
		for _, pos := range s.byKey[lo:eq] {
			e := &s.entries[pos]
			if o.accepts(e) && !yield(*e) {
				return
			}
		}

		if eq < hi {
			prefixed := slices.Clone(s.byKey[eq:hi])
			slices.Sort(prefixed)
			for _, pos := range prefixed {
				e := &s.entries[pos]
				if o.accepts(e) && !yield(*e) {
					return
				}
			}
		}

		if o.mode != MatchSubstring {
			return
		}
		for i := range s.entries {
			e := &s.entries[i]
			if Classify(e.Key, q) != TierSubstring || !o.accepts(e) {
				continue
			}
			if !yield(*e) {
				return
			}
		}
	}
}

// prefixRange locates the keys starting with q in the sorted view.
// byKey[lo:eq] holds the exact matches and byKey[eq:hi] the longer keys.
func (s *Store) prefixRange(q string) (lo, eq, hi int) {
	n := len(s.byKey)
	key := func(i int) string { return s.entries[s.byKey[i]].Key }

	lo = sort.Search(n, func(i int) bool { return key(i) >= q })
	hi = lo + sort.Search(n-lo, func(i int) bool { return !strings.HasPrefix(key(lo+i), q) })
	eq = lo + sort.Search(hi-lo, func(i int) bool { return key(lo+i) != q })
	return lo, eq, hi
}

// Collect materializes up to limit entries from seq. A limit of zero or
// less collects everything.
func Collect(seq iter.Seq[domain.IndexEntry], limit int) []domain.IndexEntry {
	var out []domain.IndexEntry
	for e := range seq {
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// CategoryGroup is a run of results sharing a category.
type CategoryGroup struct {
	Category string              `json:"category"`
	Entries  []domain.IndexEntry `json:"entries"`
}

// GroupByCategory groups entries by category. Groups appear in the order
// their first entry appears, and entries keep their relative order.
func GroupByCategory(entries []domain.IndexEntry) []CategoryGroup {
	var groups []CategoryGroup
	index := make(map[string]int)
	for _, e := range entries {
		i, ok := index[e.Category]
		if !ok {
			i = len(groups)
			index[e.Category] = i
			groups = append(groups, CategoryGroup{Category: e.Category})
		}
		groups[i].Entries = append(groups[i].Entries, e)
	}
	return groups
}
