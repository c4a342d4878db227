// Package services defines shared error markers and context helpers consumed by
// the removal pipeline and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures into
//     the three broad categories callers report on: validation, API, and
//     processing.
//
// Use these helpers when wiring new pipeline code so error handling and
// observability stay uniform across the remote and local paths.
package services
