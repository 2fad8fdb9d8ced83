package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sha1n/mcp-docindex-server/internal/config"
	"github.com/sha1n/mcp-docindex-server/internal/docindex"
	"github.com/spf13/pflag"
)

// QueryOptions are the per-invocation options of the query command
type QueryOptions struct {
	Text       string
	Mode       string // empty uses the configured default
	Categories []string
	Limit      int // zero uses the configured maximum
	JSON       bool
}

// RunQuery loads the index described by flags and writes the matches for
// opts.Text to out, grouped by category.
func RunQuery(ctx context.Context, flags *pflag.FlagSet, opts QueryOptions, out io.Writer) error {
	settings, err := config.LoadSettingsWithFlags(flags)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	return Query(ctx, &settings.Index, opts, out)
}

// Query answers one query against the shards in settings.Dir
func Query(ctx context.Context, settings *config.IndexSettings, opts QueryOptions, out io.Writer) error {
	if strings.TrimSpace(opts.Text) == "" {
		return errors.New("query text is required")
	}
	if opts.Limit < 0 {
		return errors.New("limit cannot be negative")
	}

	modeName := opts.Mode
	if modeName == "" {
		modeName = settings.Mode
	}
	mode := docindex.MatchSubstring
	if modeName != "" {
		parsed, err := docindex.ParseMatchMode(modeName)
		if err != nil {
			return err
		}
		mode = parsed
	}

	limit := opts.Limit
	if limit == 0 || (settings.MaxResults > 0 && limit > settings.MaxResults) {
		limit = settings.MaxResults
	}

	files, err := docindex.LoadDir(ctx, settings.Dir)
	if err != nil {
		return err
	}
	store, err := docindex.Load(files...)
	if err != nil {
		return err
	}

	entries := docindex.Collect(store.Query(opts.Text,
		docindex.WithMode(mode),
		docindex.WithCategories(opts.Categories...),
	), limit)
	groups := docindex.GroupByCategory(entries)

	if opts.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if groups == nil {
			groups = []docindex.CategoryGroup{}
		}
		return enc.Encode(groups)
	}

	if len(groups) == 0 {
		_, err := fmt.Fprintf(out, "No matches found for query: %s\n", opts.Text)
		return err
	}

	var sb strings.Builder
	for _, g := range groups {
		fmt.Fprintf(&sb, "%s\n", g.Category)
		for _, e := range g.Entries {
			if e.Context != "" {
				fmt.Fprintf(&sb, "  %s (%s)  %s\n", e.Label, e.Context, e.Target)
			} else {
				fmt.Fprintf(&sb, "  %s  %s\n", e.Label, e.Target)
			}
		}
	}
	_, err = io.WriteString(out, sb.String())
	return err
}
