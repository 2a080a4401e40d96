package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateCatalog(); err != nil {
		return err
	}
	if err := c.validateObjectStore(); err != nil {
		return err
	}
	if err := c.validateExecutor(); err != nil {
		return err
	}
	if err := c.validateOrchestrator(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "sqlite":
		if strings.TrimSpace(c.Database.Path) == "" {
			return errors.New("database.path must be set when database.driver is sqlite")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database.dsn must be set when database.driver is postgres (or set STRATA_DATABASE_DSN)")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	return nil
}

func (c *Config) validateCatalog() error {
	if c.Catalog.BaseURL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/strata/config.toml"
		}
		return fmt.Errorf("catalog.base_url is required. Edit %s (create with 'strata config init')", defaultPath)
	}
	if c.Catalog.PageSize <= 0 {
		return errors.New("catalog.page_size must be positive")
	}
	return nil
}

func (c *Config) validateObjectStore() error {
	switch c.ObjectStore.Backend {
	case "fs":
		if strings.TrimSpace(c.Paths.SpoolDir) == "" {
			return errors.New("paths.spool_dir must be set when object_store.backend is fs")
		}
	case "s3":
		if c.ObjectStore.Endpoint == "" {
			return errors.New("object_store.endpoint must be set when object_store.backend is s3")
		}
		if c.ObjectStore.Bucket == "" {
			return errors.New("object_store.bucket must be set when object_store.backend is s3")
		}
		if c.ObjectStore.AccessKey == "" || c.ObjectStore.SecretKey == "" {
			return errors.New("object_store.access_key and object_store.secret_key must be set when object_store.backend is s3")
		}
	default:
		return fmt.Errorf("object_store.backend must be fs or s3, got %q", c.ObjectStore.Backend)
	}
	return nil
}

func (c *Config) validateExecutor() error {
	switch c.Executor.Kind {
	case "none":
	case "http":
		if c.Executor.Endpoint == "" {
			return errors.New("executor.endpoint must be set when executor.kind is http")
		}
	case "amqp":
		if c.Executor.AMQPURL == "" {
			return errors.New("executor.amqp_url must be set when executor.kind is amqp")
		}
		if c.Executor.Exchange == "" {
			return errors.New("executor.exchange must be set when executor.kind is amqp")
		}
	default:
		return fmt.Errorf("executor.kind must be none, http, or amqp, got %q", c.Executor.Kind)
	}
	return nil
}

func (c *Config) validateOrchestrator() error {
	if err := ensurePositiveMap(map[string]int{
		"orchestrator.preview_threshold": c.Orchestrator.PreviewThreshold,
		"orchestrator.default_page_size": c.Orchestrator.DefaultPageSize,
		"orchestrator.max_page_size":     c.Orchestrator.MaxPageSize,
		"orchestrator.claim_timeout":     c.Orchestrator.ClaimTimeout,
		"orchestrator.reclaim_interval":  c.Orchestrator.ReclaimInterval,
	}); err != nil {
		return err
	}
	if c.Orchestrator.WorkItemRetryLimit < 0 {
		return errors.New("orchestrator.work_item_retry_limit must be zero or positive")
	}
	if c.Orchestrator.MaxPageSize < c.Orchestrator.DefaultPageSize {
		return errors.New("orchestrator.max_page_size must be at least orchestrator.default_page_size")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
