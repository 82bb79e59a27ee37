package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"slotbook/internal/domain"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

const memoryPath = ":memory:"

// DB is the SQLite-backed slot store.
type DB struct {
	*sql.DB
	store
	path   string
	logger *zerolog.Logger
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// store holds the queries shared by DB and Tx.
type store struct {
	q querier
}

// Tx is a store bound to an open transaction.
type Tx struct {
	store
}

var _ domain.Store = (*DB)(nil)

// NewDB opens the database at path and runs migrations.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != memoryPath {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	sqlDB, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if path == memoryPath {
		// every connection to :memory: gets its own database
		sqlDB.SetMaxOpenConns(1)
	}

	if err := createTables(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	logger.Info().Str("path", path).Msg("Database opened")

	return &DB{
		DB:     sqlDB,
		store:  store{q: sqlDB},
		path:   path,
		logger: logger,
	}, nil
}

// dsn builds the connection string. Transactions start with BEGIN IMMEDIATE
// so that competing writers queue on the busy timeout instead of failing
// on lock upgrade.
func dsn(path string) string {
	params := "_txlock=immediate&_busy_timeout=5000&_foreign_keys=on"
	if path != memoryPath {
		params += "&_journal_mode=WAL"
	}
	return path + "?" + params
}

// Path returns the file the database was opened from.
func (db *DB) Path() string {
	return db.path
}

// WithTx runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back on any error or panic.
func (db *DB) WithTx(ctx context.Context, fn func(tx domain.StoreTx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WrapStorage("begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(&Tx{store: store{q: tx}}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return domain.WrapStorage("commit transaction", err)
	}
	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	return domain.WrapStorage("ping", db.PingContext(ctx))
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS providers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS clients (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			phone_number TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS availabilities (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			provider_id INTEGER NOT NULL,
			start_time DATETIME NOT NULL,
			end_time DATETIME NOT NULL,
			created_at DATETIME NOT NULL,
			CHECK (start_time < end_time),
			FOREIGN KEY (provider_id) REFERENCES providers(id) ON DELETE CASCADE
		)`,

		// A slot is linked to a reservation exactly when it is not available.
		`CREATE TABLE IF NOT EXISTS slots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			provider_id INTEGER NOT NULL,
			start_time DATETIME NOT NULL,
			end_time DATETIME NOT NULL,
			status TEXT NOT NULL DEFAULT 'available'
				CHECK (status IN ('available', 'reserved', 'confirmed')),
			reservation_id INTEGER,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			CHECK (start_time < end_time),
			CHECK ((status = 'available') = (reservation_id IS NULL)),
			FOREIGN KEY (provider_id) REFERENCES providers(id) ON DELETE CASCADE,
			FOREIGN KEY (reservation_id) REFERENCES reservations(id)
		)`,

		`CREATE TABLE IF NOT EXISTS reservations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			slot_id INTEGER NOT NULL,
			client_id INTEGER NOT NULL,
			expires_at DATETIME NOT NULL,
			confirmed_at DATETIME,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (slot_id) REFERENCES slots(id) ON DELETE CASCADE,
			FOREIGN KEY (client_id) REFERENCES clients(id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_availabilities_provider ON availabilities(provider_id)`,
		`CREATE INDEX IF NOT EXISTS idx_slots_provider_status ON slots(provider_id, status, start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_client ON reservations(client_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_slot ON reservations(slot_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_pending_expiry ON reservations(expires_at) WHERE confirmed_at IS NULL`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(q string) string {
	q = strings.Join(strings.Fields(q), " ")
	if len(q) > 60 {
		return q[:60] + "..."
	}
	return q
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

type rowScanner interface {
	Scan(dest ...any) error
}

func rowsAffected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
