package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// pragmas are applied to every connection the store opens.
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

// migration upgrades a database to version.
type migration struct {
	version int
	name    string
	stmts   []string
}

// migrations run in order on any database whose user_version is lower.
// Every statement must be idempotent: schema.sql may already have created
// what a migration adds.
var migrations = []migration{
	{
		version: 1,
		name:    "per-function trace index",
		stmts: []string{
			`CREATE INDEX IF NOT EXISTS idx_trace_events_function ON trace_events(run_id, function, seq)`,
		},
	},
	{
		version: 2,
		name:    "run and function result lookup indexes",
		stmts: []string{
			`CREATE INDEX IF NOT EXISTS idx_runs_module ON runs(module)`,
			`CREATE INDEX IF NOT EXISTS idx_function_results_name ON function_results(name, cc)`,
		},
	},
}

// currentSchemaVersion is the user_version of a fully migrated database.
var currentSchemaVersion = migrations[len(migrations)-1].version

// Store is the SQLite result store of attributor runs.
//
// A Store holds a single connection: SQLite allows one writer, and the
// pass writes a run in one transaction.
type Store struct {
	db *sql.DB
}

// Open opens the database at path, creating it if needed, and brings its
// schema up to date. path may be ":memory:".
//
// Opening an already migrated database changes nothing.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database %s: %w", path, err)
	}

	// An in-memory database lives only as long as its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate applies schema.sql, then every migration newer than the
// database's user_version.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		for _, stmt := range m.stmts {
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("migrate to v%d (%s): %w", m.version, m.name, err)
			}
		}
		// PRAGMA does not take bound parameters.
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			return fmt.Errorf("set schema version %d: %w", m.version, err)
		}
		version = m.version
	}
	return nil
}
