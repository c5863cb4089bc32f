// Package sqlite is a local indexer over SQLite.
//
// Model writes are appended to the ledger table and materialized into the
// models table (latest value per entity and model). GetPage serves the
// materialized state with keyset pagination on entity id; Subscribe fans
// every committed write out to matching subscribers.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
package sqlite

import (
	"database/sql"
	_ "embed"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/duelsync/internal/indexer"
	"github.com/roach88/duelsync/internal/querysql"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on models.model
const currentSchemaVersion = 1

// DefaultStreamBuffer is the number of updates a subscriber may fall
// behind before its stream is ended.
const DefaultStreamBuffer = 256

// Indexer is an indexer.Client backed by a SQLite file.
type Indexer struct {
	db       *sql.DB
	compiler *querysql.Compiler
	buffer   int

	mu      sync.Mutex
	streams map[int]*stream
	nextID  int
	closed  bool
}

var _ indexer.Client = (*Indexer)(nil)

// Option configures an Indexer.
type Option func(*Indexer)

// WithStreamBuffer sets the per-subscriber update buffer.
func WithStreamBuffer(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.buffer = n
		}
	}
}

// Open creates or opens an indexer database at path.
// Applies required pragmas and migrations automatically.
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Indexer, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	ix := &Indexer{
		db:       db,
		compiler: querysql.NewCompiler(),
		buffer:   DefaultStreamBuffer,
		streams:  make(map[int]*stream),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

// Close ends every open stream with indexer.ErrClosed and closes the
// database.
func (ix *Indexer) Close() error {
	ix.mu.Lock()
	if ix.closed {
		ix.mu.Unlock()
		return nil
	}
	ix.closed = true
	streams := ix.snapshotStreamsLocked()
	ix.mu.Unlock()

	for _, s := range streams {
		s.end(indexer.ErrClosed)
	}
	return ix.db.Close()
}

func (ix *Indexer) isClosed() bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.closed
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 indexes models by name for EntityModels prefilters.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_models_model ON models(model, entity_id)`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (ix *Indexer) verifyPragma(name, expected string) error {
	var value string
	if err := ix.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
