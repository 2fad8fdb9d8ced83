package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sha1n/mcp-docindex-server/internal/config"
	"github.com/sha1n/mcp-docindex-server/internal/docindex"
	mcputil "github.com/sha1n/mcp-docindex-server/internal/mcp"
	"github.com/spf13/pflag"
)

// RunParams contains dependencies for the run function
type RunParams struct {
	LoadSettings      func(*pflag.FlagSet) (*config.Settings, error)
	ValidSettings     func(*config.Settings) error
	StartSSEServer    func(*mcp.Server, *config.Settings, *prometheus.Registry) error
	CreateServer      func(context.Context, *config.Settings, *prometheus.Registry) (*mcp.Server, func(), error)
	CustomIOTransport mcp.Transport // Optional: for testing with custom IO
}

// DefaultRunParams returns production dependencies
func DefaultRunParams() RunParams {
	return RunParams{
		LoadSettings:   config.LoadSettingsWithFlags,
		ValidSettings:  config.ValidateSettings,
		StartSSEServer: StartSSEServer,
		CreateServer:   CreateMCPServer,
	}
}

// NewRegistry returns a metrics registry carrying the Go runtime and process collectors
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// RunWithDeps executes the server with the provided dependencies
func RunWithDeps(ctx context.Context, params RunParams, flags *pflag.FlagSet, version string) error {
	// Load settings
	settings, err := params.LoadSettings(flags)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	// Validate settings for conflicting configurations
	if err := params.ValidSettings(settings); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Configure logging - always use stderr to avoid buffering issues
	handler := slog.NewTextHandler(os.Stderr, nil)
	slog.SetDefault(slog.New(handler))

	slog.Info("Starting docindex MCP server", "version", version)
	config.Log(settings)

	registry := NewRegistry()

	mcpServer, cleanup, err := params.CreateServer(ctx, settings, registry)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	// Start server
	if settings.Transport == "stdio" {
		// Use custom transport if provided (for testing), otherwise use stdio
		transport := params.CustomIOTransport
		if transport == nil {
			transport = &mcp.StdioTransport{}
		}
		return mcpServer.Run(ctx, transport)
	} else {
		slog.Info("Starting SSE server", "host", settings.Host, "port", settings.Port)
		return params.StartSSEServer(mcpServer, settings, registry)
	}
}

// CreateMCPServer creates the MCP server with the index tools registered.
// A failed initial load leaves the tools reporting a not-ready index until a
// reload succeeds.
func CreateMCPServer(ctx context.Context, settings *config.Settings, registry *prometheus.Registry) (*mcp.Server, func(), error) {
	svc, err := docindex.NewService(&settings.Index, registry)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create index service: %w", err)
	}

	// Initialize in background context (not tied to request context)
	if err := svc.Initialize(context.Background()); err != nil {
		slog.Error("Search index initialization failed", "dir", settings.Index.Dir, "error", err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	if settings.Index.Watch {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.Watch(watchCtx); err != nil {
				slog.Error("Index watcher stopped", "error", err)
			}
		}()
	}

	cleanup := func() {
		cancel()
		wg.Wait()
		if err := svc.Close(); err != nil {
			slog.Error("Failed to close index service", "error", err)
		}
	}

	server := mcputil.CreateServer(mcputil.ServerConfig{
		Name:    "docindex-mcp",
		Version: "1.0.0",
		Service: svc,
	})

	return server, cleanup, nil
}
