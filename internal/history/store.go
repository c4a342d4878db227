package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Status is the final state of a job.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// timeLayout sorts lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Record is one finished job.
type Record struct {
	ID            int64
	JobID         string
	Input         string
	Output        string
	Method        string
	Enhanced      bool
	Status        Status
	ErrorCategory string
	Error         string
	Bytes         int64
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Duration returns how long the job ran.
func (r Record) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Store manages the job ledger backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger at dbPath.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts a finished job. A record whose JobID already exists replaces it.
func (s *Store) Record(ctx context.Context, rec Record) error {
	if rec.JobID == "" {
		return fmt.Errorf("record job: job id is required")
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = rec.FinishedAt
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT OR REPLACE INTO jobs (
            job_id, input_path, output_path, method, enhanced, status,
            error_category, error_message, output_bytes, started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.JobID,
		rec.Input,
		nullableString(rec.Output),
		rec.Method,
		boolToInt(rec.Enhanced),
		string(rec.Status),
		nullableString(rec.ErrorCategory),
		nullableString(rec.Error),
		rec.Bytes,
		rec.StartedAt.UTC().Format(timeLayout),
		rec.FinishedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("record job: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first. A non-positive limit
// returns everything.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM jobs ORDER BY finished_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return records, nil
}

// Succeeded reports whether input has a successful record.
func (s *Store) Succeeded(ctx context.Context, input string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM jobs WHERE input_path = ? AND status = ?`,
		input, string(StatusSucceeded),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("lookup job: %w", err)
	}
	return count > 0, nil
}

// Clear removes all records.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs`)
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	return res.RowsAffected()
}

const recordColumns = "id, job_id, input_path, output_path, method, enhanced, status, error_category, error_message, output_bytes, started_at, finished_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (Record, error) {
	var (
		rec         Record
		output      sql.NullString
		enhanced    int64
		status      string
		category    sql.NullString
		message     sql.NullString
		startedRaw  string
		finishedRaw string
	)
	if err := scanner.Scan(
		&rec.ID,
		&rec.JobID,
		&rec.Input,
		&output,
		&rec.Method,
		&enhanced,
		&status,
		&category,
		&message,
		&rec.Bytes,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return Record{}, fmt.Errorf("scan job: %w", err)
	}
	rec.Output = output.String
	rec.Enhanced = enhanced != 0
	rec.Status = Status(status)
	rec.ErrorCategory = category.String
	rec.Error = message.String
	rec.StartedAt = parseTime(startedRaw)
	rec.FinishedAt = parseTime(finishedRaw)
	return rec, nil
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
