// Package config loads, normalizes, and validates wmclean configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads a nearby .env file, and honours
// environment fallbacks such as REPLICATE_API_TOKEN. The Config type
// centralizes every knob the CLI and the removal pipeline need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical method names, and clear validation errors.
package config
