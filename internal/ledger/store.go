// Package ledger is the durable, transactional persistence layer for users,
// loans, transactions, escrow wallets, the staking pool, the margin-call
// log, and the price cache. It is the single writer and the only component
// with direct database access: every other component holds only transient
// references and commits through Store.Transaction. It is a thin
// database/sql wrapper over a pure-Go SQLite driver, with schema bootstrap
// on open and hand-written SQL rather than an ORM.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/loanzzz/lending-core/internal/domain"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx, letting entity accessors
// run either inside a Store.Transaction or directly against the pool for
// read-only lookups.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store owns the SQLite handle. Writes are serialised through an explicit
// mutex around Transaction rather than relying on SQLite's own locking,
// since the Go driver otherwise happily interleaves writers and returns
// SQLITE_BUSY.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates (if absent) and bootstraps the ledger database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single writer; see Store doc comment
	store := &Store{db: db}
	if err := store.bootstrap(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the pool for read-only queries outside a transaction (list
// endpoints, GET handlers).
func (s *Store) DB() DBTX { return s.db }

// Transaction runs fn inside a single serialisable, writer-exclusive unit of
// work. On any error returned by fn, the unit rolls back entirely and the
// error propagates to the caller. Callers must resolve any external network
// calls (oracle price fetches) BEFORE calling Transaction and pass the
// snapshot values in; fn must not perform I/O other than ledger
// reads/writes.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return asConflict(fmt.Errorf("ledger: begin transaction: %w", err))
	}
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return asConflict(err)
	}
	if err := tx.Commit(); err != nil {
		return asConflict(fmt.Errorf("ledger: commit: %w", err))
	}
	return nil
}

// asConflict maps the underlying driver's busy/locked errors to
// domain.ErrLedgerConflict, which the API layer retries at most once before
// surfacing a 500.
func asConflict(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy") {
		return fmt.Errorf("%w: %v", domain.ErrLedgerConflict, err)
	}
	return err
}

func (s *Store) bootstrap() error {
	ctx := context.Background()
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ledger: bootstrap schema: %w", err)
		}
	}
	return s.seedDefaults(ctx)
}

// seedDefaults initialises the singleton staking pool (platform_base =
// 50000) and the default prices.
func (s *Store) seedDefaults(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM staking_pool`).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, `INSERT INTO staking_pool (id, platform_base, user_contributed, total_rewards_distributed) VALUES (1, '50000', '0', '0')`); err != nil {
			return err
		}
	}
	defaults := map[string]string{
		"XEC":   "0.00003",
		"XECX":  "0.00003",
		"FIRMA": "1.0",
	}
	for asset, price := range defaults {
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM price_cache WHERE asset = ?`, asset).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			if _, err := s.db.ExecContext(ctx, `INSERT INTO price_cache (asset, price_usd, source, observed_at) VALUES (?, ?, 'default', CURRENT_TIMESTAMP)`, asset, price); err != nil {
				return err
			}
		}
	}
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		ecash_address TEXT UNIQUE,
		solana_address TEXT UNIQUE,
		balance_xec TEXT NOT NULL DEFAULT '0',
		balance_firma TEXT NOT NULL DEFAULT '0',
		balance_xecx TEXT NOT NULL DEFAULT '0',
		staking_rewards_earned TEXT NOT NULL DEFAULT '0',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		status TEXT NOT NULL,
		collateral_type TEXT NOT NULL,
		collateral_amount TEXT NOT NULL,
		collateral_value_usd TEXT NOT NULL,
		borrowed_type TEXT NOT NULL,
		borrowed_amount TEXT NOT NULL,
		borrowed_value_usd TEXT NOT NULL,
		interest_rate TEXT NOT NULL,
		accrued_interest TEXT NOT NULL DEFAULT '0',
		initial_ltv TEXT NOT NULL,
		current_ltv TEXT NOT NULL,
		staking_yield_earned TEXT NOT NULL DEFAULT '0',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_interest_update TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		closed_at TIMESTAMP
	);`,
	`CREATE INDEX IF NOT EXISTS idx_loans_user ON loans(user_id);`,
	`CREATE INDEX IF NOT EXISTS idx_loans_status ON loans(status);`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		loan_id TEXT,
		kind TEXT NOT NULL,
		asset TEXT NOT NULL,
		amount TEXT NOT NULL,
		value_usd TEXT,
		external_tx_hash TEXT,
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, created_at DESC);`,
	`CREATE TABLE IF NOT EXISTS escrow_wallets (
		address TEXT NOT NULL,
		asset TEXT NOT NULL,
		balance TEXT NOT NULL DEFAULT '0',
		last_observed TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (address, asset)
	);`,
	`CREATE TABLE IF NOT EXISTS staking_pool (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		platform_base TEXT NOT NULL,
		user_contributed TEXT NOT NULL,
		last_reward_distribution TIMESTAMP,
		total_rewards_distributed TEXT NOT NULL DEFAULT '0'
	);`,
	`CREATE TABLE IF NOT EXISTS price_cache (
		asset TEXT PRIMARY KEY,
		price_usd TEXT NOT NULL,
		source TEXT NOT NULL,
		observed_at TIMESTAMP NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS margin_call_log (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL REFERENCES loans(id),
		user_id TEXT NOT NULL REFERENCES users(id),
		ltv TEXT NOT NULL,
		alert_type TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
}
