// Package store provides a SQLite-backed archive of accepted nutrition
// plans. Only frozen plans are persisted; drafts abandoned mid-validation
// never reach the database. The control and replacement motors load a
// patient's latest plan from here when the caller does not supply one.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/nutria-ai/nutria-go/internal/nutrition"
)

// ArchivedPlan is a stored plan with its persistence metadata.
type ArchivedPlan struct {
	// Plan is the reconstructed plan, re-frozen on load.
	Plan *nutrition.NutritionPlan
	// CreatedAt is when the plan was persisted.
	CreatedAt time.Time
}

// PlanStore persists accepted plans keyed by patient. Implementations must
// be safe for concurrent use.
type PlanStore interface {
	// Save persists a frozen plan. Unfrozen drafts are rejected.
	Save(ctx context.Context, plan *nutrition.NutritionPlan) error
	// Latest returns the most recent plan for the patient, or nil when the
	// patient has none.
	Latest(ctx context.Context, patientID string) (*nutrition.NutritionPlan, error)
	// History returns up to n plans for the patient, newest first.
	History(ctx context.Context, patientID string, n int) ([]ArchivedPlan, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a PlanStore backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the plan archive database.
// It resolves to ~/.nutria/plans.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".nutria")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "plans.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist. The plan body is
// stored as one JSON document; patient and motor are promoted to columns for
// lookup.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS plans (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    patient_id   TEXT    NOT NULL,
    motor        TEXT    NOT NULL,
    body         TEXT    NOT NULL,  -- JSON-encoded plan
    created_at   INTEGER NOT NULL   -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_plans_patient_created
    ON plans (patient_id, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Save persists a frozen plan. The freeze check is the cancellation rule:
// anything that did not survive validation must not be archived.
func (s *SQLiteStore) Save(ctx context.Context, plan *nutrition.NutritionPlan) error {
	if plan == nil {
		return errors.New("store: save: plan is nil")
	}
	if !plan.Frozen() {
		return fmt.Errorf("store: save: refusing to archive unfrozen plan for patient %q", plan.PatientID)
	}
	if plan.PatientID == "" {
		return errors.New("store: save: plan has no patient id")
	}

	body, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("store: save: encode plan: %w", err)
	}

	const q = `INSERT INTO plans (patient_id, motor, body, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, plan.PatientID, plan.Motor, string(body), time.Now().Unix()); err != nil {
		return fmt.Errorf("store: save: %w", err)
	}
	return nil
}

// Latest returns the most recent plan for the patient, re-frozen, or nil
// when the patient has no archived plans.
func (s *SQLiteStore) Latest(ctx context.Context, patientID string) (*nutrition.NutritionPlan, error) {
	const q = `
SELECT body FROM plans
WHERE  patient_id = ?
ORDER  BY created_at DESC, id DESC
LIMIT  1`

	var body string
	err := s.db.QueryRowContext(ctx, q, patientID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: latest: %w", err)
	}
	return decodePlan(body)
}

// History returns up to n plans for the patient, newest first.
func (s *SQLiteStore) History(ctx context.Context, patientID string, n int) ([]ArchivedPlan, error) {
	const q = `
SELECT body, created_at FROM plans
WHERE  patient_id = ?
ORDER  BY created_at DESC, id DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, patientID, n)
	if err != nil {
		return nil, fmt.Errorf("store: history: %w", err)
	}
	defer rows.Close()

	var out []ArchivedPlan
	for rows.Next() {
		var body string
		var ts int64
		if err := rows.Scan(&body, &ts); err != nil {
			return nil, fmt.Errorf("store: history scan: %w", err)
		}
		plan, err := decodePlan(body)
		if err != nil {
			return nil, err
		}
		out = append(out, ArchivedPlan{Plan: plan, CreatedAt: time.Unix(ts, 0)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: history rows: %w", err)
	}
	return out, nil
}

// decodePlan reconstructs a plan from its JSON body. Archived plans were
// frozen when saved, so the copy is re-frozen on the way out.
func decodePlan(body string) (*nutrition.NutritionPlan, error) {
	var plan nutrition.NutritionPlan
	if err := json.Unmarshal([]byte(body), &plan); err != nil {
		return nil, fmt.Errorf("store: decode plan: %w", err)
	}
	plan.Freeze()
	return &plan, nil
}

// Ping verifies the database connection. Used by the readiness endpoint.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
