// Package history persists job outcomes in SQLite.
//
// Every removal or enhancement run records one row with its input, output,
// method, status, and error. The ledger backs `wmclean history` and lets
// watch mode report what it has already handled. The schema is embedded and
// versioned; a mismatched database must be cleared or deleted.
package history
