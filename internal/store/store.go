package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/osq/internal/querysql"
)

//go:embed schema.sql
var schemaSQL string

// pragma is a connection setting and the value SQLite reports back once
// it is applied.
type pragma struct {
	name     string
	value    string
	readback string
}

// pragmas configure every store connection: WAL so scans run while a
// batch commits, NORMAL sync, and a 5s wait on the write lock.
var pragmas = []pragma{
	{name: "journal_mode", value: "WAL", readback: "wal"},
	{name: "synchronous", value: "NORMAL", readback: "1"},
	{name: "busy_timeout", value: "5000", readback: "5000"},
}

// migration upgrades a store created by an older release. Database
// user_version records the last migration applied.
type migration struct {
	version int
	name    string
	stmt    string
}

var migrations = []migration{
	{
		version: 1,
		name:    "link type index",
		stmt:    `CREATE INDEX IF NOT EXISTS idx_links_type ON links(branch, link_type, created_seq)`,
	},
}

// currentSchemaVersion is the version of the last migration.
var currentSchemaVersion = migrations[len(migrations)-1].version

// Store is the versioned object and link store shared by the backends.
// Every write batch advances a single logical seq; reads name the seq
// they see.
//
// Thread-safety: Store is safe for concurrent use. Writes are serialised
// by the single connection.
type Store struct {
	db       *sql.DB
	compiler *querysql.SQLCompiler
}

// Open opens the SQLite store at path, creating it when missing, and
// brings its schema up to date. Opening an existing store is safe and
// keeps its contents.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect store %s: %w", path, err)
	}

	// One connection: SQLite has a single writer, and the pragmas below
	// are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			db.Close()
			return nil, fmt.Errorf("store %s: pragma %s: %w", path, p.name, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store %s: schema: %w", path, err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store %s: %w", path, err)
	}

	return &Store{db: db, compiler: querysql.NewSQLCompiler()}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying handle for tests and maintenance tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}

// CurrentSeq returns the seq of the latest committed write batch. Zero
// means the store is empty.
func (s *Store) CurrentSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, "SELECT value FROM seq WHERE id = 1").Scan(&seq); err != nil {
		return 0, fmt.Errorf("read seq: %w", err)
	}
	return seq, nil
}

// SchemaVersion returns the last migration applied to the store.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	return userVersion(ctx, s.db)
}

func userVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return version, nil
}

// migrate applies the migrations newer than the store's user_version,
// each in its own transaction with the version bump.
func migrate(db *sql.DB) error {
	ctx := context.Background()
	version, err := userVersion(ctx, db)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.ExecContext(ctx, m.stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): set version: %w", m.version, m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

// checkPragmas reports every pragma whose current value differs from the
// configured one.
func (s *Store) checkPragmas() error {
	var bad []string
	for _, p := range pragmas {
		var got string
		if err := s.db.QueryRow("PRAGMA " + p.name).Scan(&got); err != nil {
			return fmt.Errorf("read pragma %s: %w", p.name, err)
		}
		if got != p.readback {
			bad = append(bad, fmt.Sprintf("%s = %q, want %q", p.name, got, p.readback))
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("pragmas: %s", strings.Join(bad, "; "))
	}
	return nil
}
