package docindex

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// StatusArgument takes no parameters.
type StatusArgument struct{}

// StatusHandler handles the index_status MCP tool.
type StatusHandler struct {
	service *Service
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(service *Service) *StatusHandler {
	return &StatusHandler{
		service: service,
	}
}

// Handle reports what is loaded.
func (h *StatusHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args StatusArgument) (*mcp.CallToolResult, any, error) {
	start := time.Now()
	st := h.service.Status()
	h.service.Metrics().ObserveQuery(ToolStatus, OutcomeOK, start)
	return textResult(formatStatus(st)), nil, nil
}

func formatStatus(st Status) string {
	var sb strings.Builder
	if !st.Ready {
		sb.WriteString("Search index is not loaded.\n")
		sb.WriteString(fmt.Sprintf("**Directory**: %s\n", st.Dir))
		if st.Error != "" {
			sb.WriteString(fmt.Sprintf("**Last error**: %s\n", st.Error))
		}
		return sb.String()
	}

	sb.WriteString("Search index is loaded.\n\n")
	sb.WriteString(fmt.Sprintf("**Directory**: %s\n", st.Dir))
	sb.WriteString(fmt.Sprintf("**Entries**: %d\n", st.Stats.Entries))
	sb.WriteString(fmt.Sprintf("**Shards**: %d\n", st.Stats.Shards))
	sb.WriteString(fmt.Sprintf("**Match mode**: %s\n", st.Mode))
	sb.WriteString(fmt.Sprintf("**Generation**: %d\n", st.Generation))
	sb.WriteString(fmt.Sprintf("**Loaded at**: %s\n", st.LoadedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("**Fingerprint**: %s\n", shortFingerprint(st.Fingerprint)))
	sb.WriteString(fmt.Sprintf("**Full-text search**: %t\n", st.FullText))
	if st.Error != "" {
		sb.WriteString(fmt.Sprintf("**Last error**: %s\n", st.Error))
	}

	if len(st.Categories) > 0 {
		sb.WriteString("\n## Categories\n\n")
		cats := append([]string(nil), st.Categories...)
		sort.Strings(cats)
		for _, c := range cats {
			sb.WriteString(fmt.Sprintf("- %s: %d\n", c, st.Stats.Categories[c]))
		}
	}
	return sb.String()
}

// GetToolDefinition returns the MCP tool definition.
func (h *StatusHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        ToolStatus,
		Description: "Show what the documentation index contains: entry and shard counts, categories and load time",
	}
}

// RegisterStatusTool registers the status tool with an MCP server.
func RegisterStatusTool(server *mcp.Server, service *Service) {
	handler := NewStatusHandler(service)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}

// RegisterTools registers every index tool with an MCP server.
func RegisterTools(server *mcp.Server, service *Service) {
	RegisterLookupTool(server, service)
	RegisterSearchTool(server, service)
	RegisterStatusTool(server, service)
	RegisterReadTool(server, service)
}
