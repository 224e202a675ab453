package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore() *SQLiteStore {
	return &SQLiteStore{}
}

// Open opens a connection to the SQLite database.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordDeployment inserts a deployment record.
func (s *SQLiteStore) RecordDeployment(d *Deployment) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	d.ID = uuid.New().String()
	d.CreatedAt = time.Now().UTC()

	_, err := s.db.Exec(
		`INSERT INTO deployments (id, project, dialect, target, fingerprint, artifacts, status, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Project, d.Dialect, d.Target, d.Fingerprint, d.Artifacts, d.Status, d.Error, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record deployment: %w", err)
	}
	return nil
}

// ListDeployments returns the most recent deployments for a project.
func (s *SQLiteStore) ListDeployments(project string, limit int) ([]Deployment, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	query := `SELECT id, project, dialect, target, fingerprint, artifacts, status, error, created_at
		FROM deployments WHERE project = ? ORDER BY created_at DESC, id`
	args := []any{project}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var deployments []Deployment
	for rows.Next() {
		var d Deployment
		if err := rows.Scan(&d.ID, &d.Project, &d.Dialect, &d.Target, &d.Fingerprint,
			&d.Artifacts, &d.Status, &d.Error, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan deployment: %w", err)
		}
		deployments = append(deployments, d)
	}
	return deployments, rows.Err()
}

// LatestFingerprint returns the most recent applied fingerprint, or "".
func (s *SQLiteStore) LatestFingerprint(project, dialect, target string) (string, error) {
	if s.db == nil {
		return "", fmt.Errorf("database not opened")
	}

	var fingerprint string
	err := s.db.QueryRow(
		`SELECT fingerprint FROM deployments
		 WHERE project = ? AND dialect = ? AND target = ? AND status = ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		project, dialect, target, StatusApplied,
	).Scan(&fingerprint)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query latest fingerprint: %w", err)
	}
	return fingerprint, nil
}
