package config

import (
	"context"
	"log/slog"
)

// Log logs the resolved settings in a granular way, skipping irrelevant ones
func Log(s *Settings) {
	LogWithLogger(s, slog.Default())
}

// LogWithLogger logs the resolved settings using the provided logger
func LogWithLogger(s *Settings, logger *slog.Logger) {
	ctx := context.Background()
	logger.InfoContext(ctx, "Config: transport", "value", s.Transport)
	if s.Transport == "sse" {
		logger.InfoContext(ctx, "Config: host", "value", s.Host)
		logger.InfoContext(ctx, "Config: port", "value", s.Port)
	}

	logger.InfoContext(ctx, "Config: auth.type", "value", s.Auth.Type)
	switch s.Auth.Type {
	case AuthTypeBasic:
		logger.InfoContext(ctx, "Config: auth.basic.username", "value", s.Auth.Basic.Username)
		logger.InfoContext(ctx, "Config: auth.basic.password", "value", "****")
	case AuthTypeAPIKey:
		logger.InfoContext(ctx, "Config: auth.api_keys", "count", len(s.Auth.APIKeys))
	}

	logger.InfoContext(ctx, "Config: index.dir", "value", s.Index.Dir)
	logger.InfoContext(ctx, "Config: index.mode", "value", s.Index.Mode)
	logger.InfoContext(ctx, "Config: index.max_results", "value", s.Index.MaxResults)
	logger.InfoContext(ctx, "Config: index.fulltext", "value", s.Index.FullText)
	if s.Index.FullText {
		logger.InfoContext(ctx, "Config: index.base_dir", "value", s.Index.BaseDir)
		logger.InfoContext(ctx, "Config: index.build_timeout", "value", s.Index.BuildTimeout)
	}
	logger.InfoContext(ctx, "Config: index.watch", "value", s.Index.Watch)
	if s.Index.Watch {
		logger.InfoContext(ctx, "Config: index.watch_debounce", "value", s.Index.WatchDebounce)
	}
	if s.Index.DocsRoot != "" {
		logger.InfoContext(ctx, "Config: index.docs_root", "value", s.Index.DocsRoot)
	}
	logger.InfoContext(ctx, "Config: index.max_page_size", "value", s.Index.MaxPageSize)
	logger.InfoContext(ctx, "Config: index.cache_size", "value", s.Index.CacheSize)
	if s.Index.CacheSize > 0 {
		logger.InfoContext(ctx, "Config: index.cache_ttl", "value", s.Index.CacheTTL)
	}
}

// AuthSettingsLogValue returns a slog.Value for AuthSettings with masked data
func AuthSettingsLogValue(s AuthSettings) slog.Value {
	keys := make([]string, len(s.APIKeys))
	for i := range s.APIKeys {
		keys[i] = "****"
	}
	return slog.GroupValue(
		slog.String("type", s.Type),
		slog.Any("basic", BasicAuthSettingsLogValue(s.Basic)),
		slog.Any("api_keys", keys),
	)
}

// BasicAuthSettingsLogValue returns a slog.Value for BasicAuthSettings with masked data
func BasicAuthSettingsLogValue(s BasicAuthSettings) slog.Value {
	return slog.GroupValue(
		slog.String("username", s.Username),
		slog.String("password", "****"),
	)
}

// IndexSettingsLogValue returns a slog.Value for IndexSettings
func IndexSettingsLogValue(s IndexSettings) slog.Value {
	return slog.GroupValue(
		slog.String("dir", s.Dir),
		slog.String("base_dir", s.BaseDir),
		slog.String("mode", s.Mode),
		slog.Int("max_results", s.MaxResults),
		slog.Bool("fulltext", s.FullText),
		slog.Bool("watch", s.Watch),
		slog.Int("cache_size", s.CacheSize),
	)
}

// SettingsLogValue returns a slog.Value for Settings with masked data
func SettingsLogValue(s Settings) slog.Value {
	return slog.GroupValue(
		slog.String("transport", s.Transport),
		slog.String("host", s.Host),
		slog.Int("port", s.Port),
		slog.Any("auth", AuthSettingsLogValue(s.Auth)),
		slog.Any("index", IndexSettingsLogValue(s.Index)),
	)
}
