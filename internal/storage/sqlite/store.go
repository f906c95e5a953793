// Package sqlite persists calibration run records for auditability. The
// calibration core itself is stateless; this store is an optional adjunct
// so batch operators can review which profiles were calibrated, against
// which standard, and with what K-factor.
package sqlite

import (
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// The initial migration doubles as the bootstrap schema so Open and the
// migrate commands cannot drift apart. Later schema versions are applied
// through MigrateUp only.
//
//go:embed migrations/000001_create_calibration_runs.up.sql
var bootstrapSQL string

// CalibrationRun is one persisted calibration outcome.
type CalibrationRun struct {
	RunID       string  `json:"run_id"`
	ProfileName string  `json:"profile_name"`
	Standard    string  `json:"standard"`
	Mode        string  `json:"mode"`
	KFactor     float64 `json:"k_factor"`
	KStd        float64 `json:"k_std"`
	PointsTotal int     `json:"points_total"`
	PointsUsed  int     `json:"points_used"`
	QMinOverlap float64 `json:"q_min_overlap"`
	QMaxOverlap float64 `json:"q_max_overlap"`
	Degenerate  bool    `json:"degenerate"`
	CreatedAt   int64   `json:"created_at"`
}

// Store provides persistence for calibration run records.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) a calibration store at path and ensures
// the schema is present.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(bootstrapSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating calibration schema: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an existing database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Insert persists a calibration run. If RunID is empty a UUID is generated;
// if CreatedAt is zero the current time is used.
func (s *Store) Insert(run *CalibrationRun) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().UnixNano()
	}
	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO calibration_runs (
				run_id, profile_name, standard, mode,
				k_factor, k_std, points_total, points_used,
				q_min_overlap, q_max_overlap, degenerate, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.ProfileName, run.Standard, run.Mode,
			run.KFactor, run.KStd, run.PointsTotal, run.PointsUsed,
			run.QMinOverlap, run.QMaxOverlap, boolToInt(run.Degenerate), run.CreatedAt,
		)
		return err
	})
}

// ListByProfile returns all runs for a profile name, newest first.
func (s *Store) ListByProfile(profileName string) ([]*CalibrationRun, error) {
	rows, err := s.db.Query(`
		SELECT run_id, profile_name, standard, mode,
		       k_factor, k_std, points_total, points_used,
		       q_min_overlap, q_max_overlap, degenerate, created_at
		FROM calibration_runs
		WHERE profile_name = ?
		ORDER BY created_at DESC`, profileName)
	if err != nil {
		return nil, fmt.Errorf("query calibration runs: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

// Recent returns the most recent n runs across all profiles.
func (s *Store) Recent(n int) ([]*CalibrationRun, error) {
	rows, err := s.db.Query(`
		SELECT run_id, profile_name, standard, mode,
		       k_factor, k_std, points_total, points_used,
		       q_min_overlap, q_max_overlap, degenerate, created_at
		FROM calibration_runs
		ORDER BY created_at DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query calibration runs: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

// Get returns one run by ID, or sql.ErrNoRows.
func (s *Store) Get(runID string) (*CalibrationRun, error) {
	row := s.db.QueryRow(`
		SELECT run_id, profile_name, standard, mode,
		       k_factor, k_std, points_total, points_used,
		       q_min_overlap, q_max_overlap, degenerate, created_at
		FROM calibration_runs
		WHERE run_id = ?`, runID)
	var r CalibrationRun
	var degenerate int
	err := row.Scan(&r.RunID, &r.ProfileName, &r.Standard, &r.Mode,
		&r.KFactor, &r.KStd, &r.PointsTotal, &r.PointsUsed,
		&r.QMinOverlap, &r.QMaxOverlap, &degenerate, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.Degenerate = degenerate != 0
	return &r, nil
}

func scanRuns(rows *sql.Rows) ([]*CalibrationRun, error) {
	var out []*CalibrationRun
	for rows.Next() {
		var r CalibrationRun
		var degenerate int
		if err := rows.Scan(&r.RunID, &r.ProfileName, &r.Standard, &r.Mode,
			&r.KFactor, &r.KStd, &r.PointsTotal, &r.PointsUsed,
			&r.QMinOverlap, &r.QMaxOverlap, &degenerate, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan calibration run: %w", err)
		}
		r.Degenerate = degenerate != 0
		out = append(out, &r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// retryOnBusy retries a write a few times when sqlite reports the database
// is locked by a concurrent writer.
func retryOnBusy(op func() error) error {
	const maxRetries = 5
	var err error
	for i := 0; i < maxRetries; i++ {
		err = op()
		if err == nil || !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		time.Sleep(time.Duration(i+1) * 10 * time.Millisecond)
	}
	return err
}
