package testkit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/sha1n/mcp-docindex-server/internal/app"
	"github.com/sha1n/mcp-docindex-server/internal/config"
	"github.com/spf13/pflag"
)

// URLProperty is the property DocIndexServer publishes its base URL under
const URLProperty = "url"

// Service represents a test service that can be started and stopped
type Service interface {
	Start() (map[string]any, error)
	Stop() error
	GetName() string
}

// TestEnvContext provides access to properties collected during environment startup
type TestEnvContext interface {
	GetProperties() map[string]any
	GetProperty(name string) (any, bool)
}

// TestEnv manages the lifecycle of test services
type TestEnv interface {
	Start() (map[string]any, error)
	Stop() error
	GetContext() TestEnvContext
}

type testEnvContextImpl struct {
	properties map[string]any
}

func (c *testEnvContextImpl) GetProperties() map[string]any {
	return c.properties
}

func (c *testEnvContextImpl) GetProperty(name string) (any, bool) {
	val, ok := c.properties[name]
	return val, ok
}

type testEnvImpl struct {
	services []Service
	context  *testEnvContextImpl
}

// NewTestEnv creates a new test environment with the given services
func NewTestEnv(services ...Service) TestEnv {
	return &testEnvImpl{
		services: services,
		context:  &testEnvContextImpl{properties: make(map[string]any)},
	}
}

func (e *testEnvImpl) Start() (map[string]any, error) {
	for _, s := range e.services {
		props, err := s.Start()
		if err != nil {
			return nil, err
		}
		for k, v := range props {
			e.context.properties[k] = v
		}
	}
	return e.context.properties, nil
}

func (e *testEnvImpl) Stop() error {
	var lastErr error
	// Stop in reverse order
	for i := len(e.services) - 1; i >= 0; i-- {
		if err := e.services[i].Stop(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (e *testEnvImpl) GetContext() TestEnvContext {
	return e.context
}

// GetFreePort returns a free port from the kernel
func GetFreePort() (int, error) {
	return getFreePortWithAddr("localhost:0")
}

// MustGetFreePort returns a free port or fails the test
func MustGetFreePort(t testing.TB) int {
	t.Helper()
	port, err := GetFreePort()
	if err != nil {
		t.Fatalf("Failed to get free port: %v", err)
	}
	return port
}

func getFreePortWithAddr(addrStr string) (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", addrStr)
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// FlagOptions configures NewTestFlags
type FlagOptions struct {
	Port      int      // Uses free port if 0
	Transport string   // Defaults to "sse"
	AuthType  string   // Defaults to "none"
	Host      string   // Defaults to "localhost"
	APIKeys   []string // Accepted keys when AuthType is apikey
	IndexDir  string   // Search shard directory; unset when empty
	BaseDir   string   // Index working directory; when empty a temp dir is used and full-text search is disabled
	Mode      string   // Match mode; the configured default when empty
	Watch     bool     // Reload when shards change
}

// NewTestFlags creates a configured pflag.FlagSet for testing
func NewTestFlags(t testing.TB, opts *FlagOptions) *pflag.FlagSet {
	t.Helper()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	app.RegisterFlags(flags)

	if opts == nil {
		opts = &FlagOptions{}
	}

	port := opts.Port
	if port == 0 {
		port = MustGetFreePort(t)
	}

	set := func(name, value string) {
		if err := flags.Set(name, value); err != nil {
			t.Fatalf("Failed to set flag %s: %v", name, err)
		}
	}

	set("port", fmt.Sprintf("%d", port))
	set("transport", valueOr(opts.Transport, "sse"))
	set("auth-type", valueOr(opts.AuthType, config.AuthTypeNone))
	set("host", valueOr(opts.Host, "localhost"))

	if len(opts.APIKeys) > 0 {
		set("auth-api-keys", strings.Join(opts.APIKeys, ","))
	}
	if opts.IndexDir != "" {
		set("index-dir", opts.IndexDir)
	}
	if opts.BaseDir != "" {
		set("index-base-dir", opts.BaseDir)
		set("index-fulltext", "true")
	} else {
		set("index-base-dir", t.TempDir())
		set("index-fulltext", "false")
	}
	if opts.Mode != "" {
		set("index-mode", opts.Mode)
	}
	if opts.Watch {
		set("index-watch", "true")
	}

	return flags
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// LoadTestSettings resolves flags into validated settings or fails the test
func LoadTestSettings(t testing.TB, flags *pflag.FlagSet) *config.Settings {
	t.Helper()
	settings, err := config.LoadSettingsWithFlags(flags)
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}
	if err := config.ValidateSettings(settings); err != nil {
		t.Fatalf("Invalid settings: %v", err)
	}
	return settings
}

// DocIndexServer runs the full server stack over HTTP: index service, MCP
// server, SSE transport and /metrics. It publishes its base URL as URLProperty.
type DocIndexServer struct {
	flags   *pflag.FlagSet
	srv     *http.Server
	cleanup func()
}

// NewDocIndexServer creates a server configured by flags
func NewDocIndexServer(flags *pflag.FlagSet) *DocIndexServer {
	return &DocIndexServer{flags: flags}
}

func (s *DocIndexServer) GetName() string {
	return "docindex-sse"
}

func (s *DocIndexServer) Start() (map[string]any, error) {
	settings, err := config.LoadSettingsWithFlags(s.flags)
	if err != nil {
		return nil, err
	}
	if err := config.ValidateSettings(settings); err != nil {
		return nil, err
	}

	registry := app.NewRegistry()
	server, cleanup, err := app.CreateMCPServer(context.Background(), settings, registry)
	if err != nil {
		return nil, err
	}

	srv, err := app.NewSSEServer(server, settings, registry)
	if err != nil {
		cleanup()
		return nil, err
	}
	listener, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		cleanup()
		return nil, err
	}
	s.srv = srv
	s.cleanup = cleanup
	go func() { _ = srv.Serve(listener) }()

	return map[string]any{URLProperty: "http://" + listener.Addr().String()}, nil
}

func (s *DocIndexServer) Stop() error {
	var err error
	if s.srv != nil {
		err = s.srv.Close()
		s.srv = nil
	}
	if s.cleanup != nil {
		s.cleanup()
		s.cleanup = nil
	}
	return err
}

var _ Service = (*DocIndexServer)(nil)
