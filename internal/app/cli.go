package app

import (
	"time"

	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags on the given FlagSet
func RegisterFlags(flags *pflag.FlagSet) {
	flags.StringP("transport", "t", "", "Transport type: stdio or sse")
	flags.StringP("host", "H", "", "Host for SSE transport")
	flags.IntP("port", "p", 0, "Port for SSE transport")
	flags.StringP("auth-type", "a", "", "Authentication type: none, basic, or apikey")
	flags.StringP("auth-basic-username", "u", "", "Basic auth username")
	flags.StringP("auth-basic-password", "P", "", "Basic auth password")
	flags.StringSliceP("auth-api-keys", "k", nil, "API keys (comma-separated)")
	RegisterIndexFlags(flags)
}

// RegisterIndexFlags registers the index-* flags shared by the server and the query command
func RegisterIndexFlags(flags *pflag.FlagSet) {
	flags.StringP("index-dir", "d", "", "Directory holding the search shards (e.g. html/search)")
	flags.String("index-base-dir", "", "Working directory for the manifest, build lock and full-text index")
	flags.StringP("index-mode", "m", "", "Default match mode: prefix or substring")
	flags.Int("index-max-results", 0, "Maximum number of results per query")
	flags.Bool("index-fulltext", false, "Build and serve the full-text index")
	flags.Bool("index-watch", false, "Reload when shard files change")
	flags.Duration("index-watch-debounce", 0, "Quiet period before a change triggers a reload")
	flags.Int("index-cache-size", 0, "Number of cached query results (0 disables the cache)")
	flags.Duration("index-cache-ttl", time.Duration(0), "Lifetime of a cached query result")
	flags.String("index-docs-root", "", "HTML documentation root that link targets resolve against (defaults to the parent of index-dir)")
	flags.Int64("index-max-page-size", 0, "Largest documentation page read_page will load, in bytes")
	flags.Duration("index-build-timeout", time.Duration(0), "How long to wait for another process building the full-text index")
}
