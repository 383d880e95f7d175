// Package config loads, normalizes, and validates sanmiguel configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the SANMIGUEL_ASSET_ROOT
// environment fallback. The Config type centralizes every knob the texture
// conversion pipeline and the CLI need: where the scene lives, which files
// count as manifests and image sources, how wide the worker pool runs, and
// where logs and run history are kept.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical extensions, and clear validation errors.
package config
