package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

// Validation modes, one per command family.
const (
	ModeServe  = "serve"
	ModeSearch = "search"
	ModeAdmin  = "admin"
)

// Validate checks the settings a command family needs. All problems are
// reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case ModeServe:
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateCatalog()...)
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if c.Server.RateLimitPerMin <= 0 {
			errs = append(errs, "server.rate_limit_per_min must be > 0")
		}
		if c.Server.RateBurst < 1 {
			errs = append(errs, "server.rate_burst must be >= 1")
		}
	case ModeSearch:
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateCatalog()...)
		if c.Batch.MaxConcurrent < 1 || c.Batch.MaxConcurrent > 32 {
			errs = append(errs, "batch.max_concurrent must be between 1 and 32")
		}
	case ModeAdmin:
		errs = append(errs, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, "kafka.topic is required when kafka.brokers is set")
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	return errs
}

func (c *Config) validateCatalog() []string {
	var errs []string
	if !c.Catalog.UseMock() {
		u, err := url.Parse(c.Catalog.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, "catalog.base_url must be an absolute URL")
		}
	}
	if c.Catalog.TimeoutSecs <= 0 {
		errs = append(errs, "catalog.timeout_secs must be > 0")
	}
	if c.Catalog.MaxAttempts < 1 {
		errs = append(errs, "catalog.max_attempts must be >= 1")
	}
	if c.Directory.TimeoutMS <= 0 {
		errs = append(errs, "directory.timeout_ms must be > 0")
	}
	return errs
}
