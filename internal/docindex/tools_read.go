package docindex

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ReadArgument defines read parameters.
type ReadArgument struct {
	Target string `json:"target" jsonschema_description:"Link target from a lookup or search result (e.g., classGtk_1_1PLplot_1_1Plot2D.html#a3)"`
}

// ReadHandler handles the read_page MCP tool.
type ReadHandler struct {
	service *Service
}

// NewReadHandler creates a new read handler.
func NewReadHandler(service *Service) *ReadHandler {
	return &ReadHandler{
		service: service,
	}
}

// Handle reads a documentation page and returns it as text.
func (h *ReadHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args ReadArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Target) == "" {
		return errorResult("Target cannot be empty"), nil, nil
	}

	page, err := h.service.ReadPage(args.Target)
	if err != nil {
		var tooLarge *PageTooLargeError
		switch {
		case errors.As(err, &tooLarge):
			return errorResult(fmt.Sprintf("Page too large (%.2f KB). Maximum allowed size is %.2f KB",
				float64(tooLarge.Size)/1024, float64(tooLarge.Max)/1024)), nil, nil
		case errors.Is(err, ErrPageNotFound):
			return errorResult(fmt.Sprintf("Page not found: %s", args.Target)), nil, nil
		case errors.Is(err, ErrInvalidTarget):
			return errorResult(fmt.Sprintf("Invalid target: %s", err)), nil, nil
		case errors.Is(err, ErrBinaryPage):
			return errorResult("Cannot display binary file content"), nil, nil
		default:
			return errorResult(fmt.Sprintf("Error reading page: %s", err)), nil, nil
		}
	}

	return textResult(formatPage(page)), nil, nil
}

func formatPage(page *Page) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**Page**: `%s`\n", page.Path))
	if page.Title != "" {
		sb.WriteString(fmt.Sprintf("**Title**: %s\n", page.Title))
	}
	if page.Anchor != "" {
		if page.AnchorFound {
			sb.WriteString(fmt.Sprintf("**Anchor**: %s\n", page.Anchor))
		} else {
			sb.WriteString(fmt.Sprintf("**Anchor**: %s (not found, showing whole page)\n", page.Anchor))
		}
	}
	sb.WriteString(fmt.Sprintf("**Size**: %d bytes\n\n", page.Size))
	sb.WriteString(page.Text)
	return sb.String()
}

// GetToolDefinition returns the MCP tool definition.
func (h *ReadHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        ToolRead,
		Description: "Read the documentation page behind a lookup_symbol or search_docs result as plain text, starting at the member's anchor when the target has one",
	}
}

// RegisterReadTool registers the read tool with an MCP server.
func RegisterReadTool(server *mcp.Server, service *Service) {
	handler := NewReadHandler(service)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
