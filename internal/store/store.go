package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	// Postgres driver registered as "pgx".
	_ "github.com/jackc/pgx/v5/stdlib"
	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects the database backend.
type Config struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// Store holds the ent SQL driver and provides access to repositories.
// Queries are built with ent's dialect-aware builder so the same code runs
// on SQLite and Postgres.
type Store struct {
	db      *sql.DB
	drv     *entsql.Driver
	dialect string
}

// Open connects to the configured database, applies backend-specific
// settings and creates the schema if needed.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	var (
		db  *sql.DB
		err error
		d   string
	)
	switch cfg.Driver {
	case "", DriverSQLite:
		d = dialect.SQLite
		db, err = sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		// One connection: SQLite serializes writers anyway, and a single
		// connection keeps read-modify-write transactions from hitting
		// SQLITE_BUSY on lock upgrade. It also keeps in-memory databases
		// alive for the lifetime of the store.
		db.SetMaxOpenConns(1)
		if err := applyPragmas(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragmas: %w", err)
		}
	case DriverPostgres:
		d = dialect.Postgres
		db, err = sql.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(10)
		db.SetConnMaxIdleTime(5 * time.Minute)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	s := &Store{db: db, drv: entsql.OpenDB(d, db), dialect: d}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// OpenSQLite is shorthand for Open with the SQLite driver.
func OpenSQLite(ctx context.Context, dsn string) (*Store, error) {
	return Open(ctx, Config{Driver: DriverSQLite, DSN: dsn})
}

// DB returns the underlying *sql.DB for raw queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the ent dialect name in use.
func (s *Store) Dialect() string {
	return s.dialect
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.drv.Close()
}

// Sessions returns the practice session repository.
func (s *Store) Sessions() SessionRepo {
	return &sessionRepo{s: s}
}

// Learners returns the learner profile repository.
func (s *Store) Learners() LearnerRepo {
	return &learnerRepo{s: s}
}

// Events returns the LLM request event repository.
func (s *Store) Events() EventRepo {
	return &eventRepo{s: s}
}

func (s *Store) builder() *entsql.DialectBuilder {
	return entsql.Dialect(s.dialect)
}

// withTx runs fn inside a transaction, committing if it returns nil.
func (s *Store) withTx(ctx context.Context, fn func(conn dialect.ExecQuerier) error) error {
	tx, err := s.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rerr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// forUpdate locks selected rows where the backend supports it. SQLite has
// no row locks; its single connection already serializes transactions.
func (s *Store) forUpdate(sel *entsql.Selector) *entsql.Selector {
	if s.dialect == dialect.Postgres {
		return sel.ForUpdate()
	}
	return sel
}

// applyPragmas configures SQLite for a single-process bot workload.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// DefaultDBPath resolves the SQLite file path in priority order:
// 1. BANDCOACH_DB environment variable
// 2. $XDG_DATA_HOME/bandcoach/bandcoach.db
// 3. ~/.local/share/bandcoach/bandcoach.db
func DefaultDBPath() (string, error) {
	if p := os.Getenv("BANDCOACH_DB"); p != "" {
		return p, EnsureDir(p)
	}

	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dataHome = filepath.Join(home, ".local", "share")
	}

	p := filepath.Join(dataHome, "bandcoach", "bandcoach.db")
	return p, EnsureDir(p)
}

// EnsureDir creates the parent directory of path if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
