package docindex

import (
	"sort"
	"strings"

	"github.com/sha1n/mcp-docindex-server/internal/domain"
)

// ShardInfo summarizes one loaded shard.
type ShardInfo struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Entries  int    `json:"entries"`
}

// Stats summarizes a store.
type Stats struct {
	Entries    int            `json:"entries"`
	Shards     int            `json:"shards"`
	Categories map[string]int `json:"categories"`
}

// Store is an immutable, validated collection of index entries.
// It is safe for concurrent use by multiple goroutines.
type Store struct {
	entries    []domain.IndexEntry // load order; entries[i].Ordinal == i
	byKey      []int               // entry positions, stably sorted by key
	shards     []ShardInfo
	categories []string // first appearance order
}

// Load concatenates and validates index partitions in the given order.
// Keys are normalized the way queries are, so every entry is found by its
// own key. It fails with a *MalformedIndexError if any entry lacks a key,
// label or target; no store is returned in that case.
func Load(files ...domain.IndexFile) (*Store, error) {
	total := 0
	for _, f := range files {
		total += len(f.Entries)
	}

	s := &Store{
		entries: make([]domain.IndexEntry, 0, total),
		shards:  make([]ShardInfo, 0, len(files)),
	}
	seen := make(map[string]bool)

	for _, f := range files {
		for row, e := range f.Entries {
			e.Key = NormalizeQuery(e.Key)
			if err := validateEntry(f.Name, row, e); err != nil {
				return nil, err
			}
			if e.Shard == "" {
				e.Shard = f.Name
			}
			if e.Category == "" {
				e.Category = f.Category
			}
			e.Ordinal = len(s.entries)
			s.entries = append(s.entries, e)

			if !seen[e.Category] {
				seen[e.Category] = true
				s.categories = append(s.categories, e.Category)
			}
		}
		s.shards = append(s.shards, ShardInfo{Name: f.Name, Category: f.Category, Entries: len(f.Entries)})
	}

	s.byKey = make([]int, len(s.entries))
	for i := range s.byKey {
		s.byKey[i] = i
	}
	sort.SliceStable(s.byKey, func(i, j int) bool {
		return s.entries[s.byKey[i]].Key < s.entries[s.byKey[j]].Key
	})

	return s, nil
}

func validateEntry(shard string, row int, e domain.IndexEntry) error {
	switch {
	case strings.TrimSpace(e.Key) == "":
		return &MalformedIndexError{Shard: shard, Row: row, Field: "key"}
	case strings.TrimSpace(e.Label) == "":
		return &MalformedIndexError{Shard: shard, Row: row, Field: "label"}
	case strings.TrimSpace(e.Target) == "":
		return &MalformedIndexError{Shard: shard, Row: row, Field: "target"}
	}
	return nil
}

// Len returns the number of entries in the store.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Entry returns the entry at the given load-order position.
func (s *Store) Entry(ordinal int) (domain.IndexEntry, bool) {
	if s == nil || ordinal < 0 || ordinal >= len(s.entries) {
		return domain.IndexEntry{}, false
	}
	return s.entries[ordinal], true
}

// Entries returns a copy of all entries in load order.
func (s *Store) Entries() []domain.IndexEntry {
	if s == nil {
		return nil
	}
	out := make([]domain.IndexEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Categories returns the categories present, in order of first appearance.
func (s *Store) Categories() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.categories))
	copy(out, s.categories)
	return out
}

// Shards returns the shards the store was built from, in load order.
func (s *Store) Shards() []ShardInfo {
	if s == nil {
		return nil
	}
	out := make([]ShardInfo, len(s.shards))
	copy(out, s.shards)
	return out
}

// Stats returns entry counts per category.
func (s *Store) Stats() Stats {
	st := Stats{Categories: make(map[string]int)}
	if s == nil {
		return st
	}
	st.Entries = len(s.entries)
	st.Shards = len(s.shards)
	for _, e := range s.entries {
		st.Categories[e.Category]++
	}
	return st
}
