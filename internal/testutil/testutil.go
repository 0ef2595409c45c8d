package testutil

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	// Import the sqlite driver for database/sql compatibility in tests.
	_ "modernc.org/sqlite"

	"github.com/target/transcode-dispatch/internal/data"
)

// TestingTB is an interface that covers both *testing.T and *testing.B.
type TestingTB interface {
	Helper()
	Skip(args ...interface{})
	Skipf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
	Logf(format string, args ...interface{})
}

// RunMigrations delegates to the data package to apply production migrations.
func RunMigrations(db *sql.DB) error {
	return data.RunMigrations(db)
}

// SetupTestDB creates a migrated SQLite database in a temporary directory and
// registers cleanup when the test framework supports it. The database is
// in-process, so unlike an external server there is nothing to skip on.
func SetupTestDB(t TestingTB) *sql.DB {
	t.Helper()

	dir, err := os.MkdirTemp("", "dispatch-test-*")
	if err != nil {
		t.Fatal("Failed to create temp dir:", err)
	}
	db := OpenTestDB(t, filepath.Join(dir, "dispatch.db"))

	if tc, ok := any(t).(interface{ Cleanup(func()) }); ok {
		tc.Cleanup(func() {
			if rmErr := os.RemoveAll(dir); rmErr != nil {
				t.Logf("warning: failed to remove temp dir: %v", rmErr)
			}
		})
	}
	return db
}

// OpenTestDB opens (or creates) a SQLite database at the given path and runs
// production migrations so the schema matches the actual application. Restart
// tests reopen the same path to assert state survives a process exit.
func OpenTestDB(t TestingTB, path string) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal("Failed to open database:", err)
	}
	// The driver serializes writes; a single connection avoids lock errors.
	db.SetMaxOpenConns(1)

	if migrateErr := RunMigrations(db); migrateErr != nil {
		closeAndLog(t, "test DB", db)
		t.Fatal("Failed to run migrations:", migrateErr)
	}

	if tc, ok := any(t).(interface{ Cleanup(func()) }); ok {
		tc.Cleanup(func() { closeAndLog(t, "test DB", db) })
	}
	return db
}

// CleanupTestDB removes all test data from the database.
func CleanupTestDB(t TestingTB, db *sql.DB) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "DELETE FROM jobs"); err != nil {
		t.Fatalf("Failed to clean up table jobs: %v", err)
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM engines"); err != nil {
		t.Fatalf("Failed to clean up table engines: %v", err)
	}
}

// WithTestDB is a helper that sets up a test database and runs the provided function.
func WithTestDB(t TestingTB, fn func(*sql.DB)) {
	t.Helper()
	fn(SetupTestDB(t))
}

func closeAndLog(t TestingTB, name string, closer interface{ Close() error }) {
	if err := closer.Close(); err != nil {
		t.Logf("warning: failed to close %s: %v", name, err)
	}
}

// FixedTimeFunc returns a function that always returns the same time.
func FixedTimeFunc(t time.Time) func() time.Time {
	return func() time.Time {
		return t
	}
}

// TestTime returns a fixed time for testing.
func TestTime() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

// JobStateInfo represents the state of a job for debugging.
type JobStateInfo struct {
	ID             string  `json:"job_id"`
	Status         string  `json:"status"`
	Retries        int     `json:"retries"`
	MaxRetries     int     `json:"max_retries"`
	AssignedEngine *string `json:"assigned_engine"`
	ErrorMessage   *string `json:"error_message"`
}

// InspectJobStates returns information about all jobs in the database for
// debugging. Job rows store the full record as a JSON document, so the state
// fields are read out of the document rather than dedicated columns.
func InspectJobStates(t TestingTB, db *sql.DB) []JobStateInfo {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rows, err := db.QueryContext(ctx, `SELECT data FROM jobs ORDER BY created_at ASC, id ASC`)
	if err != nil {
		t.Fatalf("Failed to query job states: %v", err)
	}
	defer func() {
		if rerr := rows.Close(); rerr != nil {
			t.Logf("warning: failed to close job state rows: %v", rerr)
		}
	}()

	var jobs []JobStateInfo
	for rows.Next() {
		var raw string
		if scanErr := rows.Scan(&raw); scanErr != nil {
			t.Fatalf("Failed to scan job state: %v", scanErr)
		}
		var job JobStateInfo
		if decodeErr := json.Unmarshal([]byte(raw), &job); decodeErr != nil {
			t.Fatalf("Failed to decode job record: %v", decodeErr)
		}
		jobs = append(jobs, job)
	}

	if iterErr := rows.Err(); iterErr != nil {
		t.Fatalf("Error iterating over rows: %v", iterErr)
	}

	return jobs
}

// LogJobStates logs the current state of all jobs for debugging.
func LogJobStates(t TestingTB, db *sql.DB, message string) {
	t.Helper()

	jobs := InspectJobStates(t, db)
	t.Logf("=== %s ===", message)
	for i, job := range jobs {
		engine := "<none>"
		if job.AssignedEngine != nil {
			engine = *job.AssignedEngine
		}
		t.Logf("Job %d: ID=%s, Status=%s, Retries=%d/%d, Engine=%s, LastError=%v",
			i+1, job.ID, job.Status, job.Retries, job.MaxRetries, engine, job.ErrorMessage)
	}
	t.Logf("=== End %s ===", message)
}

// ConcurrentTestRunner provides utilities for testing concurrent operations.
type ConcurrentTestRunner struct {
	t TestingTB
}

// NewConcurrentTestRunner creates a new concurrent test runner.
func NewConcurrentTestRunner(t TestingTB) *ConcurrentTestRunner {
	return &ConcurrentTestRunner{t: t}
}

// RunConcurrent runs multiple functions concurrently and waits for all to complete.
func (r *ConcurrentTestRunner) RunConcurrent(funcs ...func() error) []error {
	r.t.Helper()

	results := make(chan error, len(funcs))

	for _, f := range funcs {
		go func(fn func() error) {
			results <- fn()
		}(f)
	}

	errors := make([]error, len(funcs))
	for i := range funcs {
		errors[i] = <-results
	}

	return errors
}

// AssertNoErrors checks that none of the errors are non-nil.
func (r *ConcurrentTestRunner) AssertNoErrors(errors []error) {
	r.t.Helper()

	for i, err := range errors {
		if err != nil {
			r.t.Fatalf("Concurrent operation %d failed: %v", i, err)
		}
	}
}

// Common pointer helper functions for tests.

// StringPtr returns a pointer to the given string value.
func StringPtr(s string) *string {
	return &s
}

// BoolPtr returns a pointer to the given bool value.
func BoolPtr(b bool) *bool {
	return &b
}

// IntPtr returns a pointer to the given int value.
func IntPtr(i int) *int {
	return &i
}

// Float64Ptr returns a pointer to the given float64 value.
func Float64Ptr(f float64) *float64 {
	return &f
}

// TimePtr returns a pointer to the given time value.
func TimePtr(t time.Time) *time.Time {
	return &t
}
