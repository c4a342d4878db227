// Package notifications delivers job outcomes via ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers notify unconditionally. Delivery failures are returned to the
// caller, which logs them; a failed notification never fails a job.
package notifications
