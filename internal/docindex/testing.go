package docindex

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// ShardRow is one searchData row for test fixtures.
// This is exported for use in integration tests.
type ShardRow struct {
	Key   string // unescaped search key, e.g. "plot.h"
	Label string
	Links []ShardLink
}

// ShardLink is one link of a ShardRow.
type ShardLink struct {
	Target      string
	ParentFrame bool
	Context     string
}

// Row creates a fixture row with a single link.
func Row(key, label, target, context string) ShardRow {
	return ShardRow{
		Key:   key,
		Label: label,
		Links: []ShardLink{{Target: target, ParentFrame: true, Context: context}},
	}
}

// EncodeSearchID escapes key the way Doxygen writes row ids and appends
// the counter n. It is the inverse of DecodeSearchID.
func EncodeSearchID(key string, n int) string {
	var sb strings.Builder
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			sb.WriteByte(c)
			continue
		}
		sb.WriteByte('_')
		sb.WriteString(strconv.FormatUint(uint64(c)|0x100, 16)[1:])
	}
	sb.WriteByte('_')
	sb.WriteString(strconv.Itoa(n))
	return sb.String()
}

// RenderShard produces a "var searchData=[...];" script for rows.
func RenderShard(rows ...ShardRow) []byte {
	var buf bytes.Buffer
	buf.WriteString("var searchData=\n[\n")
	for i, r := range rows {
		buf.WriteString("  ['")
		buf.WriteString(EncodeSearchID(r.Key, i))
		buf.WriteString("',['")
		buf.WriteString(jsQuote(r.Label))
		buf.WriteString("'")
		for _, l := range r.Links {
			flag := "0"
			if l.ParentFrame {
				flag = "1"
			}
			buf.WriteString(",['")
			buf.WriteString(jsQuote(l.Target))
			buf.WriteString("',")
			buf.WriteString(flag)
			buf.WriteString(",'")
			buf.WriteString(jsQuote(l.Context))
			buf.WriteString("']")
		}
		buf.WriteString("]]")
		if i < len(rows)-1 {
			buf.WriteString(",")
		}
		buf.WriteString("\n")
	}
	buf.WriteString("];\n")
	return buf.Bytes()
}

func jsQuote(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

// WriteShard writes rows as <dir>/<name>.js and returns the file path.
func WriteShard(t testing.TB, dir, name string, rows ...ShardRow) string {
	t.Helper()
	return writeFile(t, filepath.Join(dir, name+".js"), RenderShard(rows...))
}

// WriteGzipShard writes rows as <dir>/<name>.js.gz and returns the file path.
func WriteGzipShard(t testing.TB, dir, name string, rows ...ShardRow) string {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(RenderShard(rows...)); err != nil {
		t.Fatalf("gzip write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("gzip close failed: %v", err)
	}
	return writeFile(t, filepath.Join(dir, name+".js.gz"), buf.Bytes())
}

// WriteZstdShard writes rows as <dir>/<name>.js.zst and returns the file path.
func WriteZstdShard(t testing.TB, dir, name string, rows ...ShardRow) string {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd writer failed: %v", err)
	}
	defer func() { _ = enc.Close() }()
	return writeFile(t, filepath.Join(dir, name+".js.zst"), enc.EncodeAll(RenderShard(rows...), nil))
}

func writeFile(t testing.TB, path string, data []byte) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

// SampleShards writes a small PLplot-like index to dir: classes, files and
// functions shards.
func SampleShards(t testing.TB, dir string) {
	t.Helper()
	WriteShard(t, dir, "classes_0",
		Row("canvas", "Canvas", "classGtk_1_1PLplot_1_1Canvas.html", "Gtk::PLplot"),
		Row("plot", "Plot", "classGtk_1_1PLplot_1_1Plot.html", "Gtk::PLplot"),
		Row("plot2d", "Plot2D", "classGtk_1_1PLplot_1_1Plot2D.html", "Gtk::PLplot"),
		Row("plot3d", "Plot3D", "classGtk_1_1PLplot_1_1Plot3D.html", "Gtk::PLplot"),
	)
	WriteShard(t, dir, "files_0",
		Row("plot.h", "plot.h", "plot_8h.html", ""),
		Row("plot2d.h", "plot2d.h", "plot2d_8h.html", ""),
	)
	WriteShard(t, dir, "functions_0",
		Row("add_plot", "add_plot", "classGtk_1_1PLplot_1_1Canvas.html#a1", "Gtk::PLplot::Canvas"),
		Row("get_plot", "get_plot", "classGtk_1_1PLplot_1_1Canvas.html#a2", "Gtk::PLplot::Canvas"),
		Row("plot2d", "Plot2D", "classGtk_1_1PLplot_1_1Plot2D.html#a3", "Gtk::PLplot::Plot2D"),
	)
}

// CanvasPage is the HTML page SamplePages writes for the Canvas class.
const CanvasPage = `<!DOCTYPE html>
<html>
<head>
<title>gtkmm-plplot: Gtk::PLplot::Canvas Class Reference</title>
<script type="text/javascript">var searchBox = new SearchBox("searchBox");</script>
<style>.memitem { color: red; }</style>
</head>
<body>
<div class="header"><div class="headertitle"><div class="title">Gtk::PLplot::Canvas Class Reference</div></div></div>
<div class="contents">
<p>A canvas widget that holds one or more plots.</p>
<h2 class="groupheader">Member Function Documentation</h2>
<a id="a1"></a>
<h2 class="memtitle">add_plot()</h2>
<div class="memdoc"><p>Add a plot to the canvas.</p></div>
<a id="a2"></a>
<h2 class="memtitle">get_plot()</h2>
<div class="memdoc"><p>Get a plot by index &amp; return it.</p></div>
</div>
</body>
</html>
`

// SamplePages writes HTML pages for the Canvas targets of SampleShards to root.
func SamplePages(t testing.TB, root string) {
	t.Helper()
	writeFile(t, filepath.Join(root, "classGtk_1_1PLplot_1_1Canvas.html"), []byte(CanvasPage))
}

// SampleSite lays out a documentation site under root the way Doxygen does:
// pages in root and shards in root/search. Returns the shard directory.
func SampleSite(t testing.TB, root string) string {
	t.Helper()
	dir := filepath.Join(root, "search")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create %s: %v", dir, err)
	}
	SampleShards(t, dir)
	SamplePages(t, root)
	return dir
}
