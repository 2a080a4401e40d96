// Package config loads, normalizes, and validates strata configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// STRATA_API_TOKEN. The Config type centralizes every knob the daemon and CLI
// need, from orchestration policy (preview threshold, retry limit, page sizes)
// to store drivers and the catalog, object store, and executor endpoints.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
