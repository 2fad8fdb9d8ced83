package docindex

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"testing"
)

func TestDiscoverShards_Order(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"classes_0.js", "classes_a.js", "classes_10.js", "classes_9.js",
		"all_0.js.gz", "files_0.json", "pages_0.js.zst",
		"search.js", "search.css", "nomatches.html", "readme.txt",
	} {
		writeFile(t, filepath.Join(dir, name), []byte("[]"))
	}
	if err := os.Mkdir(filepath.Join(dir, "sub_0.js"), 0755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}

	sources, err := DiscoverShards(dir)
	if err != nil {
		t.Fatalf("DiscoverShards failed: %v", err)
	}

	var names []string
	for _, s := range sources {
		names = append(names, s.Name)
	}
	want := []string{"all_0", "classes_0", "classes_9", "classes_a", "classes_10", "files_0", "pages_0"}
	if !slices.Equal(names, want) {
		t.Errorf("Shard order = %v, want %v", names, want)
	}

	if sources[0].Compression != "gzip" || sources[0].Format != FormatJS {
		t.Errorf("all_0 = %+v, want gzip js", sources[0])
	}
	if sources[5].Format != FormatJSON || sources[5].Compression != "" {
		t.Errorf("files_0 = %+v, want plain json", sources[5])
	}
	if sources[6].Compression != "zstd" {
		t.Errorf("pages_0 = %+v, want zstd", sources[6])
	}
}

func TestDiscoverShards_MissingDir(t *testing.T) {
	if _, err := DiscoverShards(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Expected error for missing directory")
	}
}

func TestLoadDir_Compressed(t *testing.T) {
	dir := t.TempDir()
	WriteShard(t, dir, "classes_0", Row("plot", "Plot", "plot.html", "Gtk::PLplot"))
	WriteGzipShard(t, dir, "files_0", Row("plot.h", "plot.h", "plot_8h.html", ""))
	WriteZstdShard(t, dir, "pages_0", Row("plot data", "Plot data", "plot_data.html", ""))

	files, err := LoadDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("Expected 3 files, got %d", len(files))
	}

	wantKeys := []string{"plot", "plot.h", "plot data"}
	wantCategories := []string{"classes", "files", "pages"}
	for i, f := range files {
		if f.Category != wantCategories[i] {
			t.Errorf("File %d category = %q, want %q", i, f.Category, wantCategories[i])
		}
		if len(f.Entries) != 1 || f.Entries[0].Key != wantKeys[i] {
			t.Errorf("File %q entries = %+v", f.Name, f.Entries)
		}
	}
}

func TestLoadDir_ManyShardsKeepOrder(t *testing.T) {
	dir := t.TempDir()
	for i := range 3 * MaxParallelReads {
		WriteShard(t, dir, "all_"+strconv.Itoa(i), Row("k", "K", "k.html", ""))
	}

	sources, err := DiscoverShards(dir)
	if err != nil {
		t.Fatalf("DiscoverShards failed: %v", err)
	}
	files, err := LoadDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if len(files) != len(sources) {
		t.Fatalf("Expected %d files, got %d", len(sources), len(files))
	}
	for i := range files {
		if files[i].Name != sources[i].Name {
			t.Errorf("File %d = %q, want %q", i, files[i].Name, sources[i].Name)
		}
	}
}

func TestLoadDir_Empty(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "search.js"), []byte("function init() {}"))

	if _, err := LoadDir(context.Background(), dir); err == nil {
		t.Error("Expected error for directory without shards")
	}
}

func TestLoadDir_SyntaxError(t *testing.T) {
	dir := t.TempDir()
	WriteShard(t, dir, "classes_0", Row("plot", "Plot", "plot.html", ""))
	writeFile(t, filepath.Join(dir, "classes_1.js"), []byte("var searchData=[['broken"))

	_, err := LoadDir(context.Background(), dir)
	var syntaxErr *SyntaxError
	if !errors.As(err, &syntaxErr) {
		t.Fatalf("Expected *SyntaxError, got %v", err)
	}
	if syntaxErr.Shard != "classes_1" {
		t.Errorf("Shard = %q, want classes_1", syntaxErr.Shard)
	}
}

func TestLoadDir_CorruptCompression(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "classes_0.js.gz"), []byte("not gzip"))

	if _, err := LoadDir(context.Background(), dir); err == nil {
		t.Error("Expected error for corrupt gzip shard")
	}
}

func TestLoadDir_Canceled(t *testing.T) {
	dir := t.TempDir()
	SampleShards(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := LoadDir(ctx, dir); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestReadShard_MissingFile(t *testing.T) {
	_, err := ReadShard(ShardSource{Path: filepath.Join(t.TempDir(), "classes_0.js"), Name: "classes_0"})
	if err == nil {
		t.Error("Expected error for missing shard file")
	}
}
