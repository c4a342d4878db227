package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
)

// schemaSQL creates a version 1 ledger.
//
//go:embed schema.sql
var schemaSQL string

// migrations[i] upgrades a ledger from version i+1 to i+2. Append only.
var migrations = []string{
	// Succeeded looks jobs up by input and status on every watch sweep.
	`CREATE INDEX IF NOT EXISTS idx_jobs_input_status ON jobs(input_path, status)`,
}

// schemaVersion is the version a fully migrated ledger reports.
var schemaVersion = len(migrations) + 1

// ErrSchemaMismatch reports a ledger written by a newer wmclean.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// migrate brings the ledger to schemaVersion inside one transaction. A new
// database starts from schema.sql; an older one replays the missing steps.
func (s *Store) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	version, err := ledgerVersion(ctx, tx)
	if err != nil {
		return err
	}
	switch {
	case version > schemaVersion:
		return fmt.Errorf("%w: %s has version %d, this build reads up to %d (delete it to start over)",
			ErrSchemaMismatch, s.path, version, schemaVersion)
	case version == schemaVersion:
		return nil
	case version == 0:
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (1)"); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		version = 1
	}

	for v := version; v < schemaVersion; v++ {
		if _, err := tx.ExecContext(ctx, migrations[v-1]); err != nil {
			return fmt.Errorf("migrate history %d to %d: %w", v, v+1, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "UPDATE schema_version SET version = ?", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// ledgerVersion returns 0 for a database without a schema_version table.
func ledgerVersion(ctx context.Context, tx *sql.Tx) (int, error) {
	var tables int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tables); err != nil {
		return 0, fmt.Errorf("check schema_version table: %w", err)
	}
	if tables == 0 {
		return 0, nil
	}
	var version int
	if err := tx.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}
