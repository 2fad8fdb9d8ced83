package docindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sha1n/mcp-docindex-server/internal/config"
	"github.com/sha1n/mcp-docindex-server/internal/domain"
)

// LockFilename is the name of the full-text build lock file
const LockFilename = "build.lock"

// Tool names used as metric labels
const (
	ToolLookup = "lookup_symbol"
	ToolSearch = "search_docs"
	ToolStatus = "index_status"
	ToolRead   = "read_page"
)

// snapshot pairs a store with the generation it was loaded as.
type snapshot struct {
	store       *Store
	generation  uint64
	fingerprint string
	loadedAt    time.Time
}

// Service owns the active store and the full-text index built from it.
type Service struct {
	settings *config.IndexSettings
	mode     MatchMode
	metrics  *Metrics
	cache    *QueryCache
	manifest *Manifest
	lock     *BuildLock
	fulltext *FullTextIndex

	current    atomic.Pointer[snapshot]
	generation atomic.Uint64
	reloadMu   sync.Mutex

	index            bleve.Index
	indexFingerprint string
	mu               sync.RWMutex
}

// NewService creates a new index service. Collectors are registered with
// registry; a nil registry keeps them private.
func NewService(settings *config.IndexSettings, registry *prometheus.Registry) (*Service, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings cannot be nil")
	}

	mode := MatchSubstring
	if settings.Mode != "" {
		var err error
		if mode, err = ParseMatchMode(settings.Mode); err != nil {
			return nil, err
		}
	}

	metrics := NewMetrics(registry)
	s := &Service{
		settings: settings,
		mode:     mode,
		metrics:  metrics,
		cache:    NewQueryCache(settings.CacheSize, settings.CacheTTL, metrics),
		manifest: NewManifest(),
	}

	if settings.BaseDir == "" {
		return s, nil
	}

	if err := os.MkdirAll(settings.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	manifest, err := LoadManifest(s.manifestPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}
	s.manifest = manifest

	if settings.FullText {
		s.fulltext = NewFullTextIndex(settings.BaseDir)
		s.lock = NewBuildLock(filepath.Join(settings.BaseDir, LockFilename))
	}
	return s, nil
}

// Initialize performs the first load. On failure the service stays not
// ready and a later reload may still succeed.
func (s *Service) Initialize(ctx context.Context) error {
	slog.Info("Loading search index", "dir", s.settings.Dir)
	if err := s.Reload(ctx); err != nil {
		return fmt.Errorf("failed to load search index: %w", err)
	}
	return nil
}

// Reload reads the shard directory and swaps in the new store. A failed
// reload leaves the previous store active.
func (s *Service) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	store, fingerprint, err := s.load(ctx)
	s.metrics.ObserveLoad(store, err)
	if err != nil {
		s.manifest.SetError(err.Error())
		if serr := s.saveManifest(); serr != nil {
			slog.Error("Failed to save manifest", "error", serr)
		}
		return err
	}

	if cur := s.current.Load(); cur != nil && cur.fingerprint == fingerprint {
		slog.Debug("Search index unchanged", "fingerprint", shortFingerprint(fingerprint))
		// A failed full-text build is retried without waiting for a shard change
		s.ensureFullText(ctx, cur.store, fingerprint)
		return nil
	}

	s.current.Store(&snapshot{
		store:       store,
		generation:  s.generation.Add(1),
		fingerprint: fingerprint,
		loadedAt:    time.Now(),
	})
	s.cache.Purge()

	stats := store.Stats()
	s.manifest.RecordLoad(s.settings.Dir, fingerprint, stats)
	if err := s.saveManifest(); err != nil {
		slog.Error("Failed to save manifest", "error", err)
	}
	slog.Info("Search index loaded", "shards", stats.Shards, "entries", stats.Entries, "categories", len(stats.Categories))

	s.ensureFullText(ctx, store, fingerprint)
	return nil
}

// ensureFullText opens the full-text index for fingerprint. Failures are
// recorded but lookups keep working without full-text search.
func (s *Service) ensureFullText(ctx context.Context, store *Store, fingerprint string) {
	if err := s.refreshFullText(ctx, store, fingerprint); err != nil {
		slog.Error("Full-text index unavailable", "error", err)
		s.manifest.SetError(err.Error())
		if serr := s.saveManifest(); serr != nil {
			slog.Error("Failed to save manifest", "error", serr)
		}
	}
}

func (s *Service) load(ctx context.Context) (*Store, string, error) {
	sources, err := DiscoverShards(s.settings.Dir)
	if err != nil {
		return nil, "", err
	}
	if len(sources) == 0 {
		return nil, "", fmt.Errorf("no search shards found in %s", s.settings.Dir)
	}

	fingerprint, err := Fingerprint(sources)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fingerprint shards: %w", err)
	}

	files, err := LoadShards(ctx, sources)
	if err != nil {
		return nil, "", err
	}

	store, err := Load(files...)
	if err != nil {
		return nil, "", err
	}
	return store, fingerprint, nil
}

// refreshFullText makes the full-text index for fingerprint the open one.
// One process builds it under the build lock; others wait and open the result.
func (s *Service) refreshFullText(ctx context.Context, store *Store, fingerprint string) error {
	if !s.settings.FullText {
		return nil
	}

	s.mu.RLock()
	open := s.index != nil && s.indexFingerprint == fingerprint
	s.mu.RUnlock()
	if open {
		return nil
	}

	if s.fulltext == nil {
		index, err := BuildInMemory(ctx, store)
		if err != nil {
			return err
		}
		s.swapIndex(index, fingerprint)
		return nil
	}

	if s.manifest.NeedsIndex(fingerprint) || !s.fulltext.Exists(fingerprint) {
		if err := s.buildFullText(ctx, store, fingerprint); err != nil {
			return err
		}
	}

	index, err := s.fulltext.Open(fingerprint)
	if err != nil {
		return err
	}
	s.swapIndex(index, fingerprint)

	if err := s.fulltext.Prune(fingerprint); err != nil {
		slog.Warn("Failed to remove stale full-text indexes", "error", err)
	}
	return nil
}

func (s *Service) buildFullText(ctx context.Context, store *Store, fingerprint string) error {
	acquired, err := s.lock.TryAcquire()
	if err != nil {
		return fmt.Errorf("failed to acquire build lock: %w", err)
	}

	if !acquired {
		slog.Info("Another instance is building the full-text index, waiting for completion")
		if err := s.lock.Acquire(ctx, s.settings.BuildTimeout); err != nil {
			slog.Warn("Timeout waiting for full-text build, using existing index", "error", err)
		} else if err := s.lock.Release(); err != nil {
			slog.Error("Failed to release build lock", "error", err)
		}
		if !s.fulltext.Exists(fingerprint) {
			return fmt.Errorf("full-text index %s was not built", shortFingerprint(fingerprint))
		}
		s.manifest.RecordIndexed(fingerprint)
		return nil
	}

	defer func() {
		if err := s.lock.Release(); err != nil {
			slog.Error("Failed to release build lock", "error", err)
		}
	}()

	// Another instance may have finished the same build while we were loading
	if disk, err := LoadManifest(s.manifestPath()); err == nil &&
		!disk.NeedsIndex(fingerprint) && s.fulltext.Exists(fingerprint) {
		slog.Info("Full-text index already built", "fingerprint", shortFingerprint(fingerprint))
		s.manifest.RecordIndexed(fingerprint)
		return nil
	}

	slog.Info("Acquired build lock, building full-text index", "fingerprint", shortFingerprint(fingerprint))
	start := time.Now()
	count, err := s.fulltext.Build(ctx, store, fingerprint)
	if err != nil {
		return fmt.Errorf("failed to build full-text index: %w", err)
	}

	s.manifest.RecordIndexed(fingerprint)
	if err := s.saveManifest(); err != nil {
		slog.Error("Failed to save manifest", "error", err)
	}
	slog.Info("Full-text index built", "documents", count, "duration", time.Since(start))
	return nil
}

func (s *Service) swapIndex(index bleve.Index, fingerprint string) {
	s.mu.Lock()
	old := s.index
	s.index = index
	s.indexFingerprint = fingerprint
	s.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			slog.Warn("Failed to close previous full-text index", "error", err)
		}
	}
}

func (s *Service) manifestPath() string {
	return filepath.Join(s.settings.BaseDir, ManifestFilename)
}

// saveManifest persists the manifest when a base directory is configured.
func (s *Service) saveManifest() error {
	if s.settings.BaseDir == "" {
		return nil
	}
	return s.manifest.Save(s.manifestPath())
}

// IsReady returns true once a store has been loaded.
func (s *Service) IsReady() bool {
	return s.current.Load() != nil
}

// Store returns the active store.
func (s *Service) Store() (*Store, error) {
	cur := s.current.Load()
	if cur == nil {
		return nil, ErrNotReady
	}
	return cur.store, nil
}

// DefaultMode returns the configured match mode.
func (s *Service) DefaultMode() MatchMode {
	return s.mode
}

// Settings returns the service settings.
func (s *Service) Settings() *config.IndexSettings {
	return s.settings
}

// DocsRoot returns the directory link targets resolve against.
// Doxygen writes search/ inside the HTML output, so it defaults to the
// parent of the shard directory.
func (s *Service) DocsRoot() string {
	if s.settings.DocsRoot != "" {
		return s.settings.DocsRoot
	}
	return filepath.Dir(filepath.Clean(s.settings.Dir))
}

// ReadPage loads the documentation page a link target points at.
func (s *Service) ReadPage(target string) (*Page, error) {
	start := time.Now()
	maxSize := s.settings.MaxPageSize
	if maxSize <= 0 {
		maxSize = DefaultMaxPageSize
	}

	page, err := ReadPage(s.DocsRoot(), target, maxSize)
	if err != nil {
		s.metrics.ObserveQuery(ToolRead, OutcomeError, start)
		return nil, err
	}
	s.metrics.ObserveQuery(ToolRead, OutcomeOK, start)
	return page, nil
}

// Metrics returns the service collectors.
func (s *Service) Metrics() *Metrics {
	return s.metrics
}

// Lookup runs a ranked key query against the active store and returns at
// most limit entries. A limit outside (0, max_results] is clamped to
// max_results.
func (s *Service) Lookup(text string, mode MatchMode, categories []string, limit int) ([]domain.IndexEntry, error) {
	start := time.Now()
	cur := s.current.Load()
	if cur == nil {
		s.metrics.ObserveQuery(ToolLookup, OutcomeNotReady, start)
		return nil, ErrNotReady
	}

	if limit <= 0 || limit > s.settings.MaxResults {
		limit = s.settings.MaxResults
	}

	key := CacheKey(cur.generation, mode, categories, text, limit)
	if entries, ok := s.cache.Get(key); ok {
		s.metrics.ObserveQuery(ToolLookup, outcomeOf(len(entries)), start)
		return entries, nil
	}

	opts := []QueryOption{WithMode(mode)}
	if len(categories) > 0 {
		opts = append(opts, WithCategories(categories...))
	}
	entries := Collect(cur.store.Query(text, opts...), limit)

	s.cache.Add(key, entries)
	s.metrics.ObserveQuery(ToolLookup, outcomeOf(len(entries)), start)
	return entries, nil
}

// FullTextSearch runs a free-text query against the open full-text index.
func (s *Service) FullTextSearch(ctx context.Context, text, category string) (*FullTextResult, error) {
	start := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.index == nil {
		outcome := OutcomeNotReady
		if s.IsReady() {
			outcome = OutcomeError
		}
		s.metrics.ObserveQuery(ToolSearch, outcome, start)
		return nil, ErrFullTextUnavailable
	}

	res, err := SearchIndex(ctx, s.index, text, category, s.settings.MaxResults)
	if err != nil {
		s.metrics.ObserveQuery(ToolSearch, OutcomeError, start)
		return nil, err
	}
	s.metrics.ObserveQuery(ToolSearch, outcomeOf(len(res.Hits)), start)
	return res, nil
}

// Status describes the loaded index.
type Status struct {
	Ready         bool        `json:"ready"`
	Dir           string      `json:"dir"`
	Mode          string      `json:"mode"`
	Generation    uint64      `json:"generation"`
	Fingerprint   string      `json:"fingerprint,omitempty"`
	LoadedAt      time.Time   `json:"loaded_at,omitzero"`
	Stats         Stats       `json:"stats"`
	Categories    []string    `json:"categories,omitempty"`
	Shards        []ShardInfo `json:"shards,omitempty"`
	FullText      bool        `json:"fulltext"`
	LastIndexedAt time.Time   `json:"last_indexed_at,omitzero"`
	CachedQueries int         `json:"cached_queries"`
	Error         string      `json:"error,omitempty"`
}

// Status returns a description of the active store and full-text index.
func (s *Service) Status() Status {
	state := s.manifest.State()
	st := Status{
		Dir:           s.settings.Dir,
		Mode:          s.mode.String(),
		Stats:         Stats{Categories: map[string]int{}},
		LastIndexedAt: state.LastIndexedAt,
		CachedQueries: s.cache.Len(),
		Error:         state.Error,
	}

	if cur := s.current.Load(); cur != nil {
		st.Ready = true
		st.Generation = cur.generation
		st.Fingerprint = cur.fingerprint
		st.LoadedAt = cur.loadedAt
		st.Stats = cur.store.Stats()
		st.Categories = cur.store.Categories()
		st.Shards = cur.store.Shards()
	}

	s.mu.RLock()
	st.FullText = s.index != nil
	s.mu.RUnlock()
	return st
}

// Close releases the full-text index.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.index != nil {
		if err := s.index.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close full-text index: %w", err))
		}
		s.index = nil
		s.indexFingerprint = ""
	}
	if s.lock != nil {
		if err := s.lock.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func outcomeOf(n int) string {
	if n == 0 {
		return OutcomeEmpty
	}
	return OutcomeOK
}
