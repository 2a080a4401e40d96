package testsupport

import (
	"path/filepath"
	"testing"

	"strata/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.SpoolDir = filepath.Join(base, "spool")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Server.Bind = "127.0.0.1:0"
	cfgVal.Database.Path = filepath.Join(base, "data", "strata.db")
	cfgVal.Catalog.BaseURL = "http://127.0.0.1:0/catalog"
	cfgVal.ObjectStore.Backend = "fs"
	cfgVal.Executor.Kind = "none"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithPreviewThreshold sets the granule count above which jobs start in
// preview on the test config.
func WithPreviewThreshold(threshold int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Orchestrator.PreviewThreshold = threshold
	}
}

// WithRetryLimit sets the per-item retry limit on the test config.
func WithRetryLimit(limit int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Orchestrator.WorkItemRetryLimit = limit
	}
}

// WithAdminUsers marks the given usernames as admins on the test config.
func WithAdminUsers(usernames ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Orchestrator.AdminUsernames = usernames
	}
}

// WithAPIToken sets the worker-route bearer token on the test config.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.APIToken = token
	}
}

// WithClaimTimeout sets the running-item claim timeout in seconds.
func WithClaimTimeout(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Orchestrator.ClaimTimeout = seconds
	}
}

// WithCatalogPageSize sets the granule catalog page size, which also drives
// how many page items a collection job expects.
func WithCatalogPageSize(size int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Catalog.PageSize = size
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
