package docindex

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/mcp-docindex-server/internal/domain"
)

// LookupArgument defines lookup parameters.
type LookupArgument struct {
	Query      string   `json:"query" jsonschema_description:"Symbol, file or page name, or any part of it (case-insensitive)"`
	Mode       string   `json:"mode,omitempty" jsonschema_description:"Match mode: 'prefix' or 'substring' (defaults to the server setting)"`
	Categories []string `json:"categories,omitempty" jsonschema_description:"Restrict results to these categories (e.g., classes, files, functions, pages)"`
	Limit      int      `json:"limit,omitempty" jsonschema_description:"Maximum number of results (defaults to the server maximum)"`
}

// LookupHandler handles the lookup_symbol MCP tool.
type LookupHandler struct {
	service *Service
}

// NewLookupHandler creates a new lookup handler.
func NewLookupHandler(service *Service) *LookupHandler {
	return &LookupHandler{
		service: service,
	}
}

// Handle runs a ranked lookup and returns matches grouped by category.
func (h *LookupHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args LookupArgument) (*mcp.CallToolResult, any, error) {
	if !h.service.IsReady() {
		return errorResult("Lookup is not available. The search index is not loaded yet. Please try again later."), nil, nil
	}

	if strings.TrimSpace(args.Query) == "" {
		return errorResult("Query cannot be empty"), nil, nil
	}

	mode := h.service.DefaultMode()
	if args.Mode != "" {
		m, err := ParseMatchMode(args.Mode)
		if err != nil {
			return errorResult(fmt.Sprintf("Invalid mode %q: must be 'prefix' or 'substring'", args.Mode)), nil, nil
		}
		mode = m
	}

	if args.Limit < 0 {
		return errorResult("Limit cannot be negative"), nil, nil
	}

	entries, err := h.service.Lookup(args.Query, mode, args.Categories, args.Limit)
	if err != nil {
		if errors.Is(err, ErrNotReady) {
			return errorResult("Lookup is not available. The search index is not loaded yet. Please try again later."), nil, nil
		}
		return errorResult(fmt.Sprintf("Lookup failed: %s", err)), nil, nil
	}

	return formatLookup(entries, args.Query), nil, nil
}

// formatLookup renders matches grouped by category, keeping rank order.
func formatLookup(entries []domain.IndexEntry, queryStr string) *mcp.CallToolResult {
	if len(entries) == 0 {
		return textResult(fmt.Sprintf("No matches found for query: %s", queryStr))
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d matches for '%s':\n\n", len(entries), queryStr))

	for _, group := range GroupByCategory(entries) {
		sb.WriteString(fmt.Sprintf("## %s\n\n", group.Category))
		for _, e := range group.Entries {
			sb.WriteString("- **")
			sb.WriteString(e.Label)
			sb.WriteString("**")
			if e.Context != "" {
				sb.WriteString(" (")
				sb.WriteString(e.Context)
				sb.WriteString(")")
			}
			sb.WriteString(": ")
			sb.WriteString(e.Target)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	return textResult(sb.String())
}

// GetToolDefinition returns the MCP tool definition.
func (h *LookupHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        ToolLookup,
		Description: "Look up documented symbols, files and pages by name. Exact matches rank first, then names starting with the query, then names containing it.",
	}
}

// RegisterLookupTool registers the lookup tool with an MCP server.
func RegisterLookupTool(server *mcp.Server, service *Service) {
	handler := NewLookupHandler(service)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	res := textResult(text)
	res.IsError = true
	return res
}
