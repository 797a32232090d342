package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate assignment")
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS experiments (
    id TEXT PRIMARY KEY,
    name TEXT UNIQUE NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    variants TEXT NOT NULL,
    traffic_split TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'draft',
    winning_variant TEXT,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE INDEX IF NOT EXISTS idx_experiments_name ON experiments(name);
CREATE INDEX IF NOT EXISTS idx_experiments_status ON experiments(status);

CREATE TABLE IF NOT EXISTS variant_assignments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL,
    experiment_id TEXT NOT NULL,
    experiment_name TEXT NOT NULL,
    variant TEXT NOT NULL,
    bucket INTEGER,
    source TEXT NOT NULL,
    assigned_at INTEGER NOT NULL DEFAULT (unixepoch()),
    FOREIGN KEY (experiment_id) REFERENCES experiments(id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_user_experiment ON variant_assignments(user_id, experiment_id);
CREATE INDEX IF NOT EXISTS idx_assignments_experiment ON variant_assignments(experiment_name);
CREATE INDEX IF NOT EXISTS idx_assignments_assigned ON variant_assignments(experiment_name, assigned_at);

CREATE TABLE IF NOT EXISTS purchases (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL,
    amount_cents INTEGER NOT NULL,
    created_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE INDEX IF NOT EXISTS idx_purchases_user ON purchases(user_id);
CREATE INDEX IF NOT EXISTS idx_purchases_created ON purchases(created_at);
`

func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateExperiment(ctx context.Context, exp *Experiment) (*Experiment, error) {
	variantsJSON, err := json.Marshal(exp.Variants)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal variants: %w", err)
	}
	splitJSON, err := json.Marshal(exp.TrafficSplit)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal traffic split: %w", err)
	}

	id := exp.ID
	if id == "" {
		id = uuid.NewString()
	}
	status := exp.Status
	if status == "" {
		status = StatusDraft
	}

	now := time.Now().Unix()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO experiments (id, name, description, variants, traffic_split, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, exp.Name, exp.Description, string(variantsJSON), string(splitJSON), string(status), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert experiment: %w", err)
	}

	return &Experiment{
		ID:           id,
		Name:         exp.Name,
		Description:  exp.Description,
		Variants:     exp.Variants,
		TrafficSplit: exp.TrafficSplit,
		Status:       status,
		CreatedAt:    time.Unix(now, 0),
		UpdatedAt:    time.Unix(now, 0),
	}, nil
}

const experimentColumns = `id, name, description, variants, traffic_split, status, winning_variant, created_at, updated_at`

func (s *SQLiteStore) GetExperiment(ctx context.Context, name string) (*Experiment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments WHERE name = ?`, name)
	return scanExperiment(row)
}

func (s *SQLiteStore) GetExperimentByID(ctx context.Context, id string) (*Experiment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments WHERE id = ?`, id)
	return scanExperiment(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExperiment(row rowScanner) (*Experiment, error) {
	var exp Experiment
	var variantsJSON, splitJSON string
	var winningVariant sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&exp.ID, &exp.Name, &exp.Description, &variantsJSON, &splitJSON,
		&exp.Status, &winningVariant, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan experiment: %w", err)
	}

	if err := json.Unmarshal([]byte(variantsJSON), &exp.Variants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variants: %w", err)
	}
	if err := json.Unmarshal([]byte(splitJSON), &exp.TrafficSplit); err != nil {
		return nil, fmt.Errorf("failed to unmarshal traffic split: %w", err)
	}
	if winningVariant.Valid {
		w := winningVariant.String
		exp.WinningVariant = &w
	}

	exp.CreatedAt = time.Unix(createdAt, 0)
	exp.UpdatedAt = time.Unix(updatedAt, 0)

	return &exp, nil
}

func (s *SQLiteStore) ListExperiments(ctx context.Context, status ExperimentStatus) ([]*Experiment, error) {
	query := `SELECT ` + experimentColumns + ` FROM experiments`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var experiments []*Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, err
		}
		experiments = append(experiments, exp)
	}

	return experiments, rows.Err()
}

func (s *SQLiteStore) UpdateExperimentStatus(ctx context.Context, name string, status ExperimentStatus, winningVariant *string) error {
	now := time.Now().Unix()

	var result sql.Result
	var err error

	if winningVariant != nil {
		result, err = s.db.ExecContext(ctx,
			`UPDATE experiments SET status = ?, winning_variant = ?, updated_at = ? WHERE name = ?`,
			string(status), *winningVariant, now, name,
		)
	} else {
		result, err = s.db.ExecContext(ctx,
			`UPDATE experiments SET status = ?, updated_at = ? WHERE name = ?`,
			string(status), now, name,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to update experiment status: %w", err)
	}

	return requireRowsAffected(result)
}

func (s *SQLiteStore) UpdateTrafficSplit(ctx context.Context, name string, trafficSplit map[string]int) error {
	splitJSON, err := json.Marshal(trafficSplit)
	if err != nil {
		return fmt.Errorf("failed to marshal traffic split: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE experiments SET traffic_split = ?, updated_at = ? WHERE name = ?`,
		string(splitJSON), time.Now().Unix(), name,
	)
	if err != nil {
		return fmt.Errorf("failed to update traffic split: %w", err)
	}

	return requireRowsAffected(result)
}

func (s *SQLiteStore) DeleteExperiment(ctx context.Context, name string) error {
	// First delete related assignments
	_, err := s.db.ExecContext(ctx, `DELETE FROM variant_assignments WHERE experiment_name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete assignments: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM experiments WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete experiment: %w", err)
	}

	return requireRowsAffected(result)
}

const assignmentColumns = `user_id, experiment_id, experiment_name, variant, bucket, source, assigned_at`

func (s *SQLiteStore) GetAssignment(ctx context.Context, userID, experimentName string) (*VariantAssignment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM variant_assignments WHERE user_id = ? AND experiment_name = ?`,
		userID, experimentName)
	return scanAssignment(row)
}

func scanAssignment(row rowScanner) (*VariantAssignment, error) {
	var a VariantAssignment
	var b sql.NullInt64
	var assignedAt int64

	err := row.Scan(&a.UserID, &a.ExperimentID, &a.ExperimentName, &a.Variant, &b, &a.Source, &assignedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan assignment: %w", err)
	}

	if b.Valid {
		v := int(b.Int64)
		a.Bucket = &v
	}
	a.AssignedAt = time.Unix(assignedAt, 0)

	return &a, nil
}

func (s *SQLiteStore) CreateAssignment(ctx context.Context, a *VariantAssignment) error {
	assignedAt := a.AssignedAt
	if assignedAt.IsZero() {
		assignedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO variant_assignments (user_id, experiment_id, experiment_name, variant, bucket, source, assigned_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.UserID, a.ExperimentID, a.ExperimentName, a.Variant, nullableInt(a.Bucket), string(a.Source), assignedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert assignment: %w", err)
	}

	return nil
}

func (s *SQLiteStore) UpsertAssignment(ctx context.Context, a *VariantAssignment) error {
	assignedAt := a.AssignedAt
	if assignedAt.IsZero() {
		assignedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO variant_assignments (user_id, experiment_id, experiment_name, variant, bucket, source, assigned_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, experiment_id) DO UPDATE SET
		     variant = excluded.variant,
		     bucket = excluded.bucket,
		     source = excluded.source,
		     assigned_at = excluded.assigned_at`,
		a.UserID, a.ExperimentID, a.ExperimentName, a.Variant, nullableInt(a.Bucket), string(a.Source), assignedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert assignment: %w", err)
	}

	return nil
}

func (s *SQLiteStore) ListAssignments(ctx context.Context, experimentName string, from, to time.Time) ([]*VariantAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM variant_assignments WHERE experiment_name = ?`
	args := []any{experimentName}
	if !from.IsZero() {
		query += ` AND assigned_at >= ?`
		args = append(args, from.Unix())
	}
	if !to.IsZero() {
		query += ` AND assigned_at <= ?`
		args = append(args, to.Unix())
	}
	query += ` ORDER BY assigned_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []*VariantAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}

	return assignments, rows.Err()
}

func (s *SQLiteStore) RecordPurchase(ctx context.Context, userID string, amountCents int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO purchases (user_id, amount_cents, created_at) VALUES (?, ?, ?)`,
		userID, amountCents, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record purchase: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListPurchases(ctx context.Context, from, to time.Time) ([]*Purchase, error) {
	query := `SELECT id, user_id, amount_cents, created_at FROM purchases WHERE 1=1`
	var args []any
	if !from.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, from.Unix())
	}
	if !to.IsZero() {
		query += ` AND created_at <= ?`
		args = append(args, to.Unix())
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	defer rows.Close()

	var purchases []*Purchase
	for rows.Next() {
		var p Purchase
		var createdAt int64
		if err := rows.Scan(&p.ID, &p.UserID, &p.AmountCents, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		p.CreatedAt = time.Unix(createdAt, 0)
		purchases = append(purchases, &p)
	}

	return purchases, rows.Err()
}

// DB returns the underlying database connection for health checks
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func requireRowsAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
