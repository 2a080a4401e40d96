package preflight

import (
	"context"

	"strata/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Backends that are not configured are skipped rather than failed.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))

	// The spool only backs payloads for the fs object store; the s3 backend
	// keeps nothing on local disk.
	if backend := cfg.ObjectStore.Backend; backend == "" || backend == "fs" {
		results = append(results, CheckDirectoryAccess("Spool directory", cfg.Paths.SpoolDir))
	}

	results = append(results, CheckStore(ctx, cfg))

	if cfg.Catalog.BaseURL != "" {
		results = append(results, CheckCatalog(ctx, cfg.Catalog.BaseURL, cfg.Catalog.Token))
	}

	results = append(results, CheckExecutor(ctx, cfg))

	return results
}

// Passed reports whether every result in the set passed.
func Passed(results []Result) bool {
	for _, result := range results {
		if !result.Passed {
			return false
		}
	}
	return true
}
