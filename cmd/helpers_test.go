package main

import (
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/parcabul/broker/internal/config"
)

func childNames(cmds []*cobra.Command) map[string]bool {
	out := make(map[string]bool, len(cmds))
	for _, c := range cmds {
		out[c.Name()] = true
	}
	return out
}

// testConfig returns a config on a temp SQLite file and the sample catalog.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store:     config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "cmd.db")},
		Catalog:   config.CatalogConfig{Mock: true, TimeoutSecs: 5, MaxAttempts: 1},
		Directory: config.DirectoryConfig{TimeoutMS: 1000, CacheTTLSecs: 60},
		Server:    config.ServerConfig{Port: 8080, RateLimitPerMin: 20, RateBurst: 40},
		Pipeline:  config.PipelineConfig{DefaultCurrency: "TRY"},
		Batch:     config.BatchConfig{MaxConcurrent: 2},
		Log:       config.LogConfig{Level: "info", Format: "json"},
	}
}
