package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/upb/auth0-api/config"
)

func newConfigCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:     "check",
		Short:   "Validate configuration and print the effective settings",
		Example: "  auth0-api config check",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := load(cmd)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), summarize(cfg))
		},
	})
	return cmd
}

// configSummary is the effective configuration as the server will use it
type configSummary struct {
	Environment       string   `json:"environment"`
	Address           string   `json:"address"`
	TLS               bool     `json:"tls"`
	Issuer            string   `json:"issuer"`
	Audience          string   `json:"audience"`
	JWKSURL           string   `json:"jwks_url"`
	JWKSDiscovery     bool     `json:"jwks_discovery"`
	RequestsPerMinute int      `json:"jwks_requests_per_minute"`
	CacheTTL          string   `json:"jwks_cache_ttl"`
	CacheMaxEntries   int      `json:"jwks_cache_max_entries"`
	KeyCacheBackend   string   `json:"key_cache_backend"`
	AllowedOrigins    []string `json:"cors_allowed_origins"`
	LogLevel          string   `json:"log_level"`
}

func summarize(cfg *config.Config) configSummary {
	return configSummary{
		Environment:       cfg.Environment,
		Address:           cfg.Server.Address(),
		TLS:               cfg.Server.TLS.Enabled,
		Issuer:            cfg.Auth0.IssuerURL(),
		Audience:          cfg.Auth0.Audience,
		JWKSURL:           cfg.Auth0.KeySetURL(),
		JWKSDiscovery:     cfg.JWKS.Discovery,
		RequestsPerMinute: cfg.JWKS.RequestsPerMinute,
		CacheTTL:          cfg.JWKS.CacheTTL.String(),
		CacheMaxEntries:   cfg.JWKS.CacheMaxEntries,
		KeyCacheBackend:   cfg.KeyCache.Backend,
		AllowedOrigins:    cfg.CORS.AllowedOrigins,
		LogLevel:          cfg.Observability.LogLevel,
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
