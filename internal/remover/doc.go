// Package remover is the entry point for processing one video.
//
// Service validates the input, derives the output path, dispatches to the
// remote or local backend, optionally runs the enhancement pipeline on the
// result, and records the outcome in the history ledger. Errors carry the
// services markers so callers can classify them as validation, API, or
// processing failures.
package remover
