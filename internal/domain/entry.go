package domain

import "strconv"

// IndexEntry is one searchable record mapping a term to a documentation location.
// Entries are created by the shard decoder and never modified afterwards.
type IndexEntry struct {
	// Key is the normalized (lowercase) search key.
	// Example: "plot2d", "plot.h"
	Key string `json:"key"`

	// Label is the human-readable name shown in results, HTML entities decoded.
	// Example: "Plot2D", "integral_constant< bool, true >"
	Label string `json:"label"`

	// Target is the documentation URL the entry links to.
	Target string `json:"target"`

	// Context is the optional disambiguating scope, usually the enclosing
	// namespace or class. Example: "Gtk::PLplot::Plot2D"
	Context string `json:"context,omitempty"`

	// Category is the shard category the entry was loaded from.
	// Example: "classes", "files", "all"
	Category string `json:"category"`

	// Shard is the name of the shard the entry was loaded from.
	// Example: "classes_9"
	Shard string `json:"shard"`

	// Ordinal is the position of the entry in the overall load order.
	Ordinal int `json:"ordinal"`

	// ParentFrame reports whether the generator asked for the link to open
	// in the parent frame rather than a new window.
	ParentFrame bool `json:"parent_frame"`
}

// IndexFile is a named partition of the overall search index.
type IndexFile struct {
	// Name is the shard name without extension. Example: "classes_9"
	Name string `json:"name"`

	// Category is the shard category derived from the name. Example: "classes"
	Category string `json:"category"`

	// Entries are the shard rows in file order.
	Entries []IndexEntry `json:"entries"`
}

// EntryDocument is the representation of an IndexEntry stored in the Bleve index.
type EntryDocument struct {
	ID       string `json:"id"`
	Key      string `json:"key"`
	Label    string `json:"label"`
	Target   string `json:"target"`
	Context  string `json:"context"`
	Category string `json:"category"`
	Ordinal  int    `json:"ordinal"`
}

// Bleve field name constants for consistent field references in queries and mappings.
const (
	EntryFieldID       = "id"
	EntryFieldKey      = "key"
	EntryFieldLabel    = "label"
	EntryFieldTarget   = "target"
	EntryFieldContext  = "context"
	EntryFieldCategory = "category"
	EntryFieldOrdinal  = "ordinal"
)

// NewEntryDocument converts an entry into its indexed form.
func NewEntryDocument(e IndexEntry) EntryDocument {
	return EntryDocument{
		ID:       EntryDocumentID(e),
		Key:      e.Key,
		Label:    e.Label,
		Target:   e.Target,
		Context:  e.Context,
		Category: e.Category,
		Ordinal:  e.Ordinal,
	}
}

// EntryDocumentID returns the Bleve document ID for an entry.
// Ordinals are unique within a store so the shard name only aids debugging.
func EntryDocumentID(e IndexEntry) string {
	return e.Shard + "#" + strconv.Itoa(e.Ordinal)
}
