// Package config loads, normalizes, and validates packsync configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// PACKSYNC_CATALOG_URL. The Config type centralizes every knob the CLI and the
// sync pass need, so target, state, and staging directories are discovered in
// one place.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
