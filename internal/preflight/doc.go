// Package preflight provides readiness checks for the directories, binaries,
// and services wmclean depends on.
//
// These checks run in two contexts:
//   - Processing commands call RunAll before starting so a missing token or
//     unwritable output directory fails in seconds instead of mid-batch.
//   - The CLI "wmclean status" command also calls CheckSystemDeps and
//     CheckToken to display full health, including a live token check.
//
// Checks are gated by the configured method: remote-only setups skip the
// local sidecars and vice versa.
package preflight
