package docindex

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/sha1n/mcp-docindex-server/internal/domain"
	"golang.org/x/sync/errgroup"
)

// MaxParallelReads is the maximum number of shard files decoded concurrently
const MaxParallelReads = 8

// ShardSource describes a shard file found in an index directory.
type ShardSource struct {
	Path        string
	Name        string // shard name without extensions, e.g. "classes_9"
	Format      Format
	Compression string // "", "gzip" or "zstd"
}

// DiscoverShards lists the shard files in dir, in load order.
// Files that are not shards (search.js, search.css, *.html) are skipped.
func DiscoverShards(dir string) ([]ShardSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read index directory: %w", err)
	}

	var sources []ShardSource
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		src, ok := classifyShard(filepath.Join(dir, e.Name()))
		if !ok {
			continue
		}
		sources = append(sources, src)
	}

	SortShards(sources)
	return sources, nil
}

// classifyShard derives name, format and compression from a file path.
func classifyShard(path string) (ShardSource, bool) {
	src := ShardSource{Path: path}
	name := filepath.Base(path)

	switch {
	case strings.HasSuffix(name, ".gz"):
		src.Compression = "gzip"
		name = strings.TrimSuffix(name, ".gz")
	case strings.HasSuffix(name, ".zst"):
		src.Compression = "zstd"
		name = strings.TrimSuffix(name, ".zst")
	}

	switch {
	case strings.HasSuffix(name, ".js"):
		src.Format = FormatJS
		name = strings.TrimSuffix(name, ".js")
	case strings.HasSuffix(name, ".json"):
		src.Format = FormatJSON
		name = strings.TrimSuffix(name, ".json")
	default:
		return src, false
	}

	// Doxygen ships its search engine next to the shards
	if _, partition := SplitShardName(name); partition == "" {
		return src, false
	}

	src.Name = name
	return src, true
}

// SortShards orders shards by category, then by partition. Doxygen writes
// partitions as hexadecimal counters so "a" sorts after "9" and before "10".
func SortShards(sources []ShardSource) {
	sort.SliceStable(sources, func(i, j int) bool {
		ci, pi := SplitShardName(sources[i].Name)
		cj, pj := SplitShardName(sources[j].Name)
		if ci != cj {
			return ci < cj
		}
		ni, erri := strconv.ParseUint(pi, 16, 64)
		nj, errj := strconv.ParseUint(pj, 16, 64)
		switch {
		case erri == nil && errj == nil:
			return ni < nj
		case erri == nil:
			return true
		case errj == nil:
			return false
		default:
			return pi < pj
		}
	})
}

// ReadShard opens, decompresses and decodes a single shard.
func ReadShard(src ShardSource) (file domain.IndexFile, err error) {
	f, err := os.Open(src.Path)
	if err != nil {
		return file, fmt.Errorf("failed to open shard: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	var r io.Reader = f
	switch src.Compression {
	case "gzip":
		gz, err := gzip.NewReader(f)
		if err != nil {
			return file, fmt.Errorf("failed to open gzip shard %s: %w", src.Name, err)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	case "zstd":
		zr, err := zstd.NewReader(f)
		if err != nil {
			return file, fmt.Errorf("failed to open zstd shard %s: %w", src.Name, err)
		}
		defer zr.Close()
		r = zr
	}

	return ParseShard(src.Name, src.Format, r)
}

// LoadDir reads every shard in dir concurrently and returns them in load order.
// The first failure cancels the remaining reads.
func LoadDir(ctx context.Context, dir string) ([]domain.IndexFile, error) {
	sources, err := DiscoverShards(dir)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no search shards found in %s", dir)
	}
	return LoadShards(ctx, sources)
}

// LoadShards decodes sources concurrently, at most MaxParallelReads at a time.
// Results keep the order of sources.
func LoadShards(ctx context.Context, sources []ShardSource) ([]domain.IndexFile, error) {
	files := make([]domain.IndexFile, len(sources))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxParallelReads)

	for i, src := range sources {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			file, err := ReadShard(src)
			if err != nil {
				return err
			}
			files[i] = file
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}
