package docindex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/sha1n/mcp-docindex-server/internal/domain"
)

const (
	// FullTextIndexPrefix prefixes full-text index directories under <base_dir>/indexes
	FullTextIndexPrefix = "docs-"

	// IndexSuffix is the suffix for index directories
	IndexSuffix = ".bleve"

	// MaxBatchSize is the maximum number of documents per batch
	MaxBatchSize = 500
)

// FullTextHit is one full-text search result.
type FullTextHit struct {
	Ordinal   int
	Score     float64
	Key       string
	Label     string
	Target    string
	Context   string
	Category  string
	Fragments []string
}

// FullTextResult holds a page of full-text hits.
type FullTextResult struct {
	Total uint64
	Hits  []FullTextHit
}

// FullTextIndex manages Bleve indexes built from stores. Each index lives in
// its own directory named after the fingerprint of the shards it was built
// from, so a rebuild never touches an index that is open for reading.
type FullTextIndex struct {
	dir string
}

// NewFullTextIndex creates a handle for indexes stored under baseDir.
func NewFullTextIndex(baseDir string) *FullTextIndex {
	return &FullTextIndex{
		dir: filepath.Join(baseDir, "indexes"),
	}
}

// Path returns the on-disk location of the index for fingerprint.
func (f *FullTextIndex) Path(fingerprint string) string {
	return filepath.Join(f.dir, FullTextIndexPrefix+shortFingerprint(fingerprint)+IndexSuffix)
}

func shortFingerprint(fp string) string {
	if len(fp) > 16 {
		return fp[:16]
	}
	return fp
}

// CreateIndexMapping creates the Bleve index mapping for entry documents.
func CreateIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	// Label and context are analyzed so "plot2d constructor" finds
	// "Gtk::PLplot::Plot2D::Plot2D(...)"
	labelField := bleve.NewTextFieldMapping()
	labelField.Analyzer = standard.Name
	labelField.Store = true
	labelField.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt(domain.EntryFieldLabel, labelField)

	contextField := bleve.NewTextFieldMapping()
	contextField.Analyzer = standard.Name
	contextField.Store = true
	contextField.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt(domain.EntryFieldContext, contextField)

	keyField := bleve.NewTextFieldMapping()
	keyField.Analyzer = keyword.Name
	keyField.Store = true
	docMapping.AddFieldMappingsAt(domain.EntryFieldKey, keyField)

	categoryField := bleve.NewTextFieldMapping()
	categoryField.Analyzer = keyword.Name
	categoryField.Store = true
	docMapping.AddFieldMappingsAt(domain.EntryFieldCategory, categoryField)

	targetField := bleve.NewTextFieldMapping()
	targetField.Index = false
	targetField.Store = true
	docMapping.AddFieldMappingsAt(domain.EntryFieldTarget, targetField)

	ordinalField := bleve.NewNumericFieldMapping()
	ordinalField.Index = false
	ordinalField.Store = true
	docMapping.AddFieldMappingsAt(domain.EntryFieldOrdinal, ordinalField)

	idField := bleve.NewTextFieldMapping()
	idField.Index = false
	idField.Store = true
	docMapping.AddFieldMappingsAt(domain.EntryFieldID, idField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name

	return indexMapping
}

// Exists reports whether the index for fingerprint has been built.
func (f *FullTextIndex) Exists(fingerprint string) bool {
	_, err := os.Stat(f.Path(fingerprint))
	return err == nil
}

// Build creates the index for fingerprint from store, replacing any partial
// leftovers from an interrupted build. Returns the number of documents indexed.
func (f *FullTextIndex) Build(ctx context.Context, store *Store, fingerprint string) (count int, err error) {
	path := f.Path(fingerprint)
	if err := os.RemoveAll(path); err != nil {
		return 0, fmt.Errorf("failed to remove old index: %w", err)
	}
	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create indexes directory: %w", err)
	}

	index, err := bleve.New(path, CreateIndexMapping())
	if err != nil {
		return 0, fmt.Errorf("failed to create index: %w", err)
	}
	defer func() {
		if cerr := index.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return indexEntries(ctx, index, store)
}

// BuildInMemory builds a memory-only index from store, for callers without a base directory.
func BuildInMemory(ctx context.Context, store *Store) (bleve.Index, error) {
	index, err := bleve.NewMemOnly(CreateIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory index: %w", err)
	}
	if _, err := indexEntries(ctx, index, store); err != nil {
		_ = index.Close()
		return nil, err
	}
	return index, nil
}

func indexEntries(ctx context.Context, index bleve.Index, store *Store) (int, error) {
	batch := index.NewBatch()
	total := 0

	for i := 0; i < store.Len(); i++ {
		e, _ := store.Entry(i)
		doc := domain.NewEntryDocument(e)
		if err := batch.Index(doc.ID, doc); err != nil {
			return total, fmt.Errorf("failed to index %s: %w", doc.ID, err)
		}

		if batch.Size() >= MaxBatchSize {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			if err := index.Batch(batch); err != nil {
				return total, fmt.Errorf("batch index failed: %w", err)
			}
			total += batch.Size()
			batch = index.NewBatch()
		}
	}

	if batch.Size() > 0 {
		if err := index.Batch(batch); err != nil {
			return total, fmt.Errorf("final batch index failed: %w", err)
		}
		total += batch.Size()
	}

	return total, nil
}

// Open opens the index built for fingerprint read-only, so several
// processes can serve from it at once.
func (f *FullTextIndex) Open(fingerprint string) (bleve.Index, error) {
	index, err := bleve.OpenUsing(f.Path(fingerprint), map[string]interface{}{"read_only": true})
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	return index, nil
}

// Prune removes every index except the one for keep.
func (f *FullTextIndex) Prune(keep string) error {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to list indexes: %w", err)
	}

	keepName := filepath.Base(f.Path(keep))
	var errs []error
	for _, e := range entries {
		name := e.Name()
		if name == keepName || !strings.HasPrefix(name, FullTextIndexPrefix) || !strings.HasSuffix(name, IndexSuffix) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(f.dir, name)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BuildFullTextQuery constructs the Bleve query for free text, optionally
// restricted to one category.
func BuildFullTextQuery(text, category string) query.Query {
	labelQuery := bleve.NewMatchQuery(text)
	labelQuery.SetField(domain.EntryFieldLabel)
	labelQuery.SetBoost(3.0)

	contextQuery := bleve.NewMatchQuery(text)
	contextQuery.SetField(domain.EntryFieldContext)

	// Exact key hits rank highest
	keyQuery := bleve.NewTermQuery(NormalizeQuery(text))
	keyQuery.SetField(domain.EntryFieldKey)
	keyQuery.SetBoost(5.0)

	searchQuery := bleve.NewDisjunctionQuery(labelQuery, contextQuery, keyQuery)

	if category == "" {
		return searchQuery
	}

	categoryQuery := bleve.NewTermQuery(category)
	categoryQuery.SetField(domain.EntryFieldCategory)
	return bleve.NewConjunctionQuery(searchQuery, categoryQuery)
}

// SearchIndex runs a full-text query against index.
func SearchIndex(ctx context.Context, index bleve.Index, text, category string, size int) (*FullTextResult, error) {
	if strings.TrimSpace(text) == "" {
		return &FullTextResult{}, nil
	}

	req := bleve.NewSearchRequest(BuildFullTextQuery(text, category))
	req.Size = size
	req.Fields = []string{
		domain.EntryFieldKey,
		domain.EntryFieldLabel,
		domain.EntryFieldTarget,
		domain.EntryFieldContext,
		domain.EntryFieldCategory,
		domain.EntryFieldOrdinal,
	}
	req.Highlight = bleve.NewHighlight()
	req.Highlight.AddField(domain.EntryFieldLabel)

	res, err := index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	out := &FullTextResult{Total: res.Total, Hits: make([]FullTextHit, 0, len(res.Hits))}
	for _, h := range res.Hits {
		hit := FullTextHit{
			Score:     h.Score,
			Key:       stringField(h.Fields, domain.EntryFieldKey),
			Label:     stringField(h.Fields, domain.EntryFieldLabel),
			Target:    stringField(h.Fields, domain.EntryFieldTarget),
			Context:   stringField(h.Fields, domain.EntryFieldContext),
			Category:  stringField(h.Fields, domain.EntryFieldCategory),
			Fragments: h.Fragments[domain.EntryFieldLabel],
		}
		if n, ok := h.Fields[domain.EntryFieldOrdinal].(float64); ok {
			hit.Ordinal = int(n)
		}
		out.Hits = append(out.Hits, hit)
	}
	return out, nil
}

func stringField(fields map[string]any, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}
