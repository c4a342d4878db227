// Package logs reads the daily wmclean log files for `wmclean logs`.
//
// Lines are filtered with a Matcher, so a single job can be followed through
// a batch by its job_id. Follow mode reacts to fsnotify write events instead
// of polling and stops when the context is canceled.
package logs
