// Package main hosts the wmclean CLI entrypoint and command graph.
//
// The Cobra-based command tree turns terminal invocations into single-video
// and batch watermark removal, inbox watching, enhancement, history queries,
// dependency downloads, and configuration scaffolding. It centralizes config
// resolution, logger setup, the run lock, and progress display so subcommands
// stay declarative while the work lives in the internal packages.
//
// Interrupts (SIGINT, SIGTERM) cancel the command context. Processing stops
// cooperatively at the next file or frame boundary and main exits non-zero
// without printing the cancellation.
package main
