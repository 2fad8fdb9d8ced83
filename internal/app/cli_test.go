package app

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestRegisterFlags(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)

	// Verify all flags are registered
	expectedFlags := []string{
		"transport",
		"host",
		"port",
		"auth-type",
		"auth-basic-username",
		"auth-basic-password",
		"auth-api-keys",
		"index-dir",
		"index-base-dir",
		"index-mode",
		"index-max-results",
		"index-fulltext",
		"index-watch",
		"index-watch-debounce",
		"index-cache-size",
		"index-cache-ttl",
		"index-build-timeout",
		"index-docs-root",
		"index-max-page-size",
	}

	for _, name := range expectedFlags {
		if flags.Lookup(name) == nil {
			t.Errorf("Expected flag %q to be registered", name)
		}
	}
}

func TestRegisterFlags_Shorthand(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)

	shorthandFlags := map[string]string{
		"transport":           "t",
		"host":                "H",
		"port":                "p",
		"auth-type":           "a",
		"auth-basic-username": "u",
		"auth-basic-password": "P",
		"auth-api-keys":       "k",
		"index-dir":           "d",
		"index-mode":          "m",
	}

	for name, shorthand := range shorthandFlags {
		flag := flags.Lookup(name)
		if flag == nil {
			t.Errorf("Flag %q not found", name)
			continue
		}
		if flag.Shorthand != shorthand {
			t.Errorf("Flag %q expected shorthand %q, got %q", name, shorthand, flag.Shorthand)
		}
	}
}

func TestRegisterFlags_SetValues(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)

	err := flags.Parse([]string{
		"--transport", "sse",
		"--host", "localhost",
		"--port", "9090",
		"--auth-type", "basic",
	})
	if err != nil {
		t.Fatalf("Failed to parse flags: %v", err)
	}

	transport, _ := flags.GetString("transport")
	if transport != "sse" {
		t.Errorf("Expected transport 'sse', got '%s'", transport)
	}

	host, _ := flags.GetString("host")
	if host != "localhost" {
		t.Errorf("Expected host 'localhost', got '%s'", host)
	}

	port, _ := flags.GetInt("port")
	if port != 9090 {
		t.Errorf("Expected port 9090, got %d", port)
	}

	authType, _ := flags.GetString("auth-type")
	if authType != "basic" {
		t.Errorf("Expected auth-type 'basic', got '%s'", authType)
	}
}

func TestRegisterFlags_IndexValues(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)

	err := flags.Parse([]string{
		"-d", "/docs/html/search",
		"-m", "prefix",
		"--index-max-results", "25",
		"--index-fulltext",
		"--index-watch-debounce", "250ms",
	})
	if err != nil {
		t.Fatalf("Failed to parse flags: %v", err)
	}

	dir, _ := flags.GetString("index-dir")
	if dir != "/docs/html/search" {
		t.Errorf("Expected index-dir '/docs/html/search', got '%s'", dir)
	}

	mode, _ := flags.GetString("index-mode")
	if mode != "prefix" {
		t.Errorf("Expected index-mode 'prefix', got '%s'", mode)
	}

	maxResults, _ := flags.GetInt("index-max-results")
	if maxResults != 25 {
		t.Errorf("Expected index-max-results 25, got %d", maxResults)
	}

	fullText, _ := flags.GetBool("index-fulltext")
	if !fullText {
		t.Error("Expected index-fulltext to be set")
	}

	debounce, _ := flags.GetDuration("index-watch-debounce")
	if debounce != 250*time.Millisecond {
		t.Errorf("Expected index-watch-debounce 250ms, got %v", debounce)
	}
}

func TestRegisterIndexFlags_Only(t *testing.T) {
	flags := pflag.NewFlagSet("query", pflag.ContinueOnError)
	RegisterIndexFlags(flags)

	if flags.Lookup("index-dir") == nil {
		t.Error("Expected index-dir to be registered")
	}
	if flags.Lookup("transport") != nil {
		t.Error("Expected transport not to be registered")
	}
}
