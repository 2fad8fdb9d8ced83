package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Auth type constants
const (
	AuthTypeNone   = "none"
	AuthTypeBasic  = "basic"
	AuthTypeAPIKey = "apikey"
)

// Match mode constants
const (
	MatchModePrefix    = "prefix"
	MatchModeSubstring = "substring"
)

// AuthSettings configuration for authentication
type AuthSettings struct {
	Type    string            `mapstructure:"type"` // AuthTypeNone, AuthTypeBasic, or AuthTypeAPIKey
	Basic   BasicAuthSettings `mapstructure:"basic"`
	APIKeys []string          `mapstructure:"api_keys"`
}

// BasicAuthSettings configuration for basic auth
type BasicAuthSettings struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// IndexSettings configuration for search index loading and querying
type IndexSettings struct {
	Dir           string        `mapstructure:"dir"`      // directory holding the search shards
	BaseDir       string        `mapstructure:"base_dir"` // working directory for manifest, lock and full-text index
	Mode          string        `mapstructure:"mode"`
	MaxResults    int           `mapstructure:"max_results"`
	FullText      bool          `mapstructure:"fulltext"`
	Watch         bool          `mapstructure:"watch"`
	WatchDebounce time.Duration `mapstructure:"watch_debounce"`
	CacheSize     int           `mapstructure:"cache_size"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	BuildTimeout  time.Duration `mapstructure:"build_timeout"`
	DocsRoot      string        `mapstructure:"docs_root"`     // HTML root that link targets resolve against; defaults to the parent of Dir
	MaxPageSize   int64         `mapstructure:"max_page_size"` // largest page read_page will load, in bytes
}

// Settings application settings
type Settings struct {
	Transport string        `mapstructure:"transport"`
	Host      string        `mapstructure:"host"`
	Port      int           `mapstructure:"port"`
	Auth      AuthSettings  `mapstructure:"auth"`
	Index     IndexSettings `mapstructure:"index"`
}

// LoadSettings loads settings from environment variables and optional .env file
func LoadSettings() (*Settings, error) {
	return LoadSettingsWithFlags(nil)
}

// LoadSettingsWithFlags loads settings with optional CLI flag overrides.
// Priority: CLI flags > environment variables > .env file > defaults.
// If flags is nil, only env vars and defaults are used.
func LoadSettingsWithFlags(flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	v.SetDefault("transport", "stdio")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("auth.type", AuthTypeNone)

	v.SetDefault("index.dir", "search")
	v.SetDefault("index.base_dir", defaultIndexBaseDir())
	v.SetDefault("index.mode", MatchModeSubstring)
	v.SetDefault("index.max_results", 50)
	v.SetDefault("index.fulltext", true)
	v.SetDefault("index.watch", false)
	v.SetDefault("index.watch_debounce", 500*time.Millisecond)
	v.SetDefault("index.cache_size", 256)
	v.SetDefault("index.cache_ttl", 5*time.Minute)
	v.SetDefault("index.build_timeout", 60*time.Second)
	v.SetDefault("index.docs_root", "")
	v.SetDefault("index.max_page_size", 1024*1024)

	v.SetEnvPrefix("DOCINDEX_MCP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("auth.type", "DOCINDEX_MCP_AUTH_TYPE")
	_ = v.BindEnv("auth.basic.username", "DOCINDEX_MCP_AUTH_BASIC_USERNAME")
	_ = v.BindEnv("auth.basic.password", "DOCINDEX_MCP_AUTH_BASIC_PASSWORD")
	_ = v.BindEnv("auth.api_keys", "DOCINDEX_MCP_AUTH_API_KEYS")

	for _, key := range indexKeys {
		_ = v.BindEnv("index."+key, "DOCINDEX_MCP_INDEX_"+strings.ToUpper(key))
	}

	if flags != nil {
		_ = v.BindPFlag("transport", flags.Lookup("transport"))
		_ = v.BindPFlag("host", flags.Lookup("host"))
		_ = v.BindPFlag("port", flags.Lookup("port"))
		_ = v.BindPFlag("auth.type", flags.Lookup("auth-type"))
		_ = v.BindPFlag("auth.basic.username", flags.Lookup("auth-basic-username"))
		_ = v.BindPFlag("auth.basic.password", flags.Lookup("auth-basic-password"))
		_ = v.BindPFlag("auth.api_keys", flags.Lookup("auth-api-keys"))

		for _, key := range indexKeys {
			if f := flags.Lookup("index-" + strings.ReplaceAll(key, "_", "-")); f != nil {
				_ = v.BindPFlag("index."+key, f)
			}
		}
	}

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if .env doesn't exist

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, err
	}

	// Comma-separated API keys arrive as a single element when set via env
	apiKeysEnv := os.Getenv("DOCINDEX_MCP_AUTH_API_KEYS")
	if apiKeysEnv != "" {
		if len(settings.Auth.APIKeys) == 0 || (len(settings.Auth.APIKeys) == 1 && strings.Contains(settings.Auth.APIKeys[0], ",")) {
			settings.Auth.APIKeys = strings.Split(apiKeysEnv, ",")
		}
	}
	for i := range settings.Auth.APIKeys {
		settings.Auth.APIKeys[i] = strings.TrimSpace(settings.Auth.APIKeys[i])
	}
	settings.Auth.APIKeys = filterEmptyStrings(settings.Auth.APIKeys)

	settings.Index.Mode = strings.ToLower(strings.TrimSpace(settings.Index.Mode))
	settings.Index.Dir = expandHomeDir(settings.Index.Dir)
	settings.Index.BaseDir = expandHomeDir(settings.Index.BaseDir)
	settings.Index.DocsRoot = expandHomeDir(settings.Index.DocsRoot)

	return &settings, nil
}

// indexKeys are the index.* settings bound to env vars and index-* flags
var indexKeys = []string{
	"dir",
	"base_dir",
	"mode",
	"max_results",
	"fulltext",
	"watch",
	"watch_debounce",
	"cache_size",
	"cache_ttl",
	"build_timeout",
	"docs_root",
	"max_page_size",
}

// defaultIndexBaseDir returns the default working directory for index state
func defaultIndexBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".docindex-mcp"
	}
	return filepath.Join(home, ".docindex-mcp")
}

// expandHomeDir expands ~ to the user's home directory
func expandHomeDir(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

// filterEmptyStrings removes empty strings from a slice
func filterEmptyStrings(s []string) []string {
	var result []string
	for _, str := range s {
		if str != "" {
			result = append(result, str)
		}
	}
	return result
}

// ValidateSettings checks for conflicting configurations.
// Returns an error if the settings contain mutually exclusive or incomplete auth config,
// or an unusable index configuration.
func ValidateSettings(s *Settings) error {
	switch s.Transport {
	case "stdio", "sse":
		// valid
	default:
		return errors.New("transport must be 'stdio' or 'sse', got: " + s.Transport)
	}

	hasBasicCreds := s.Auth.Basic.Username != "" || s.Auth.Basic.Password != ""
	hasAPIKeys := len(s.Auth.APIKeys) > 0

	switch s.Auth.Type {
	case AuthTypeNone, "":
		if hasBasicCreds || hasAPIKeys {
			return errors.New("auth-type 'none' is incompatible with auth credentials")
		}
	case AuthTypeBasic:
		if hasAPIKeys {
			return errors.New("auth-type 'basic' is mutually exclusive with auth-api-keys")
		}
		if s.Auth.Basic.Username == "" || s.Auth.Basic.Password == "" {
			return errors.New("auth-type 'basic' requires both username and password")
		}
	case AuthTypeAPIKey:
		if hasBasicCreds {
			return errors.New("auth-type 'apikey' is mutually exclusive with basic auth credentials")
		}
		if !hasAPIKeys {
			return errors.New("auth-type 'apikey' requires at least one API key")
		}
	default:
		return errors.New("unknown auth-type: " + s.Auth.Type)
	}

	return ValidateIndexSettings(&s.Index)
}

// ValidateIndexSettings validates the index configuration
func ValidateIndexSettings(s *IndexSettings) error {
	if s.Dir == "" {
		return errors.New("index-dir cannot be empty")
	}

	switch s.Mode {
	case MatchModePrefix, MatchModeSubstring:
	default:
		return errors.New("index-mode must be 'prefix' or 'substring', got: " + s.Mode)
	}

	if s.MaxResults <= 0 {
		return errors.New("index-max-results must be positive")
	}

	if s.CacheSize < 0 {
		return errors.New("index-cache-size cannot be negative")
	}

	if s.CacheSize > 0 && s.CacheTTL <= 0 {
		return errors.New("index-cache-ttl must be positive when the cache is enabled")
	}

	if s.MaxPageSize < 0 {
		return errors.New("index-max-page-size cannot be negative")
	}

	if s.Watch && s.WatchDebounce <= 0 {
		return errors.New("index-watch-debounce must be positive")
	}

	if s.FullText {
		if s.BaseDir == "" {
			return errors.New("index-base-dir cannot be empty when full-text search is enabled")
		}
		if s.BuildTimeout <= 0 {
			return errors.New("index-build-timeout must be positive")
		}
	}

	return nil
}
