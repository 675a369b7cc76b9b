// Package persistence provides the SQLite-backed feature/plan/task store.
// The store is constructed in the kernel and injected; nothing in this
// package is a global.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver (cgo-free)

	"github.com/ahmedshikashaker/automaker/pkg/logx"
)

// ErrNotFound reports a missing feature or task row.
var ErrNotFound = errors.New("not found")

// CurrentSchemaVersion defines the current schema version for migration
// support.
const CurrentSchemaVersion = 2

// Store wraps the database handle and owns all query code.
type Store struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open opens (creating if needed) the database at dbPath and brings the
// schema to the current version.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: logx.NewLogger("persistence")}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Info("database ready at %s (schema v%d)", dbPath, CurrentSchemaVersion)
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func (s *Store) migrate() error {
	current, err := s.schemaVersion()
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}
	if current == CurrentSchemaVersion {
		return nil
	}
	if current > CurrentSchemaVersion {
		return fmt.Errorf("database schema v%d is newer than supported v%d", current, CurrentSchemaVersion)
	}

	for version := current + 1; version <= CurrentSchemaVersion; version++ {
		if err := s.runMigration(version); err != nil {
			return fmt.Errorf("migration to version %d failed: %w", version, err)
		}
		if err := s.setSchemaVersion(version); err != nil {
			return fmt.Errorf("failed to record schema version %d: %w", version, err)
		}
		s.logger.Debug("applied schema migration v%d", version)
	}
	return nil
}

func (s *Store) schemaVersion() (int, error) {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	)`)
	if err != nil {
		return 0, err
	}

	var version int
	err = s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (s *Store) setSchemaVersion(version int) error {
	if _, err := s.db.Exec(`DELETE FROM schema_version`); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, version)
	return err
}

func (s *Store) runMigration(version int) error {
	switch version {
	case 1:
		return s.execAll(
			`CREATE TABLE IF NOT EXISTS features (
				id TEXT PRIMARY KEY,
				project_path TEXT NOT NULL,
				prompt TEXT NOT NULL,
				branch_name TEXT NOT NULL DEFAULT '',
				mode TEXT NOT NULL DEFAULT 'plan',
				status TEXT NOT NULL DEFAULT 'queued',
				is_auto_mode INTEGER NOT NULL DEFAULT 0,
				error_message TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				started_at TIMESTAMP,
				finished_at TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS plans (
				feature_id TEXT PRIMARY KEY REFERENCES features(id) ON DELETE CASCADE,
				status TEXT NOT NULL DEFAULT 'pending',
				content TEXT NOT NULL DEFAULT '',
				version INTEGER NOT NULL DEFAULT 1,
				reviewed_by_user INTEGER NOT NULL DEFAULT 0,
				tasks_completed INTEGER NOT NULL DEFAULT 0,
				tasks_total INTEGER NOT NULL DEFAULT 0,
				current_task_id TEXT NOT NULL DEFAULT '',
				updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS tasks (
				feature_id TEXT NOT NULL REFERENCES features(id) ON DELETE CASCADE,
				position INTEGER NOT NULL,
				task_id TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				file_path TEXT NOT NULL DEFAULT '',
				phase TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT 'pending',
				PRIMARY KEY (feature_id, position)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_features_status ON features(status)`,
		)
	case 2:
		return s.execAll(
			`CREATE TABLE IF NOT EXISTS run_events (
				id TEXT PRIMARY KEY,
				feature_id TEXT NOT NULL,
				outcome TEXT NOT NULL,
				duration_ms INTEGER NOT NULL DEFAULT 0,
				detail TEXT NOT NULL DEFAULT '',
				recorded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE INDEX IF NOT EXISTS idx_run_events_feature ON run_events(feature_id)`,
		)
	default:
		return fmt.Errorf("unknown migration version: %d", version)
	}
}

func (s *Store) execAll(stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("statement failed: %w", err)
		}
	}
	return nil
}
