package mcp

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/mcp-docindex-server/internal/docindex"
)

// instructions tell clients which tool to reach for
const instructions = `Documentation index server.
Use lookup_symbol to find classes, functions, files and pages by name (exact, then prefix, then substring matches).
Use search_docs for free-text questions over names and scopes.
Use read_page with a result's link target to read the documentation itself.
Use index_status to see what is loaded.`

// ServerConfig contains configuration for creating an MCP server
type ServerConfig struct {
	Name    string
	Version string
	Service *docindex.Service // optional; no tools are registered without it
}

// CreateServer creates and configures the MCP server
func CreateServer(cfg ServerConfig) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &mcp.ServerOptions{
		Instructions: instructions,
	})

	if cfg.Service != nil {
		docindex.RegisterTools(s, cfg.Service)
	}

	return s
}
