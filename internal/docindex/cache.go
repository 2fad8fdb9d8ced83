package docindex

import (
	"slices"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sha1n/mcp-docindex-server/internal/domain"
)

// QueryCache memoizes materialized lookup results.
// A nil *QueryCache is valid and caches nothing.
type QueryCache struct {
	cache   *lru.LRU[string, []domain.IndexEntry]
	metrics *Metrics
}

// NewQueryCache creates a cache holding up to size results for ttl.
// It returns nil when size is not positive.
func NewQueryCache(size int, ttl time.Duration, metrics *Metrics) *QueryCache {
	if size <= 0 {
		return nil
	}
	return &QueryCache{
		cache:   lru.NewLRU[string, []domain.IndexEntry](size, nil, ttl),
		metrics: metrics,
	}
}

// Get returns a copy of the cached result for key.
func (c *QueryCache) Get(key string) ([]domain.IndexEntry, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.cache.Get(key)
	if c.metrics != nil {
		if ok {
			c.metrics.CacheHits.Inc()
		} else {
			c.metrics.CacheMisses.Inc()
		}
	}
	return slices.Clone(v), ok
}

// Add stores a copy of entries, so callers keep ownership of their slice.
func (c *QueryCache) Add(key string, entries []domain.IndexEntry) {
	if c == nil {
		return
	}
	c.cache.Add(key, slices.Clone(entries))
}

// Purge drops every cached result.
func (c *QueryCache) Purge() {
	if c == nil {
		return
	}
	c.cache.Purge()
}

// Len returns the number of cached results.
func (c *QueryCache) Len() int {
	if c == nil {
		return 0
	}
	return c.cache.Len()
}

// CacheKey identifies a lookup against one store generation.
func CacheKey(generation uint64, mode MatchMode, categories []string, text string, limit int) string {
	cats := slices.Clone(categories)
	slices.Sort(cats)

	var sb strings.Builder
	sb.WriteString(strconv.FormatUint(generation, 10))
	sb.WriteByte('|')
	sb.WriteString(mode.String())
	sb.WriteByte('|')
	sb.WriteString(strings.Join(cats, ","))
	sb.WriteByte('|')
	sb.WriteString(strconv.Itoa(limit))
	sb.WriteByte('|')
	sb.WriteString(NormalizeQuery(text))
	return sb.String()
}
