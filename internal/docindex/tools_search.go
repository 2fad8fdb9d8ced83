package docindex

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// SearchArgument defines full-text search parameters.
type SearchArgument struct {
	Query    string `json:"query" jsonschema_description:"Free-text query matched against names and scopes (e.g., 'plot2d constructor')"`
	Category string `json:"category,omitempty" jsonschema_description:"Filter by category (e.g., classes, files, functions, pages)"`
}

// SearchHandler handles the search_docs MCP tool.
type SearchHandler struct {
	service *Service
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(service *Service) *SearchHandler {
	return &SearchHandler{
		service: service,
	}
}

// Handle executes the search and returns formatted results.
func (h *SearchHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args SearchArgument) (*mcp.CallToolResult, any, error) {
	if !h.service.IsReady() {
		return errorResult("Search is not available. The search index is not loaded yet. Please try again later."), nil, nil
	}

	if strings.TrimSpace(args.Query) == "" {
		return errorResult("Query cannot be empty"), nil, nil
	}

	res, err := h.service.FullTextSearch(ctx, args.Query, strings.TrimSpace(args.Category))
	if err != nil {
		if errors.Is(err, ErrFullTextUnavailable) {
			return errorResult("Full-text search is not available. Use lookup_symbol for name lookups."), nil, nil
		}
		return errorResult(fmt.Sprintf("Search failed: %s", err)), nil, nil
	}

	return formatSearch(res, args.Query), nil, nil
}

// formatSearch formats full-text hits for an MCP response.
func formatSearch(res *FullTextResult, queryStr string) *mcp.CallToolResult {
	if res.Total == 0 {
		return textResult(fmt.Sprintf("No results found for query: %s", queryStr))
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d results for '%s':\n\n", res.Total, queryStr))

	for i, hit := range res.Hits {
		sb.WriteString(fmt.Sprintf("### %d. %s [%s]\n", i+1, hit.Label, hit.Category))
		if hit.Context != "" {
			sb.WriteString(fmt.Sprintf("**Scope**: %s\n", hit.Context))
		}
		sb.WriteString(fmt.Sprintf("**Link**: %s\n", hit.Target))
		sb.WriteString(fmt.Sprintf("**Score**: %.4f\n", hit.Score))
		for _, fragment := range hit.Fragments {
			sb.WriteString("> ")
			sb.WriteString(fragment)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if res.Total > uint64(len(res.Hits)) {
		sb.WriteString(fmt.Sprintf("... and %d more results\n", res.Total-uint64(len(res.Hits))))
	}

	return textResult(sb.String())
}

// GetToolDefinition returns the MCP tool definition.
func (h *SearchHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        ToolSearch,
		Description: "Search the documentation index using full-text search over names and scopes",
	}
}

// RegisterSearchTool registers the search tool with an MCP server.
func RegisterSearchTool(server *mcp.Server, service *Service) {
	handler := NewSearchHandler(service)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
