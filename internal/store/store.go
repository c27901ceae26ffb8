// Package store is the passive ledger behind the engine: SQLite by default,
// Postgres in production. It holds no business logic; every serialization point
// the engine relies on is a single statement or transaction here.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"TokenSentinel/internal/logger"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate key")
	ErrConflict  = errors.New("concurrent update conflict")
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects the driver and data source.
type Config struct {
	Driver string
	// DSN is a file path for sqlite and a connection string for postgres.
	DSN string
}

// Store persists every engine relation.
type Store struct {
	db     *sql.DB
	driver string
	now    func() time.Time
	log    zerolog.Logger
}

// Open connects to the configured database and runs migrations.
func Open(cfg Config) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case DriverSQLite:
		dsn := "file:" + cfg.DSN + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// single writer; transactions never wait on a second connection
		db.SetMaxOpenConns(1)
	case DriverPostgres:
		db, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	s := &Store{
		db:     db,
		driver: driver,
		now:    func() time.Time { return time.Now().UTC() },
		log:    logger.GetForComponent("store"),
	}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s.log.Info().Str("driver", driver).Msg("store opened")
	return s, nil
}

// WithClock overrides the clock used for bookkeeping timestamps.
func (s *Store) WithClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.log.Info().Msg("closing store")
	return s.db.Close()
}

// Migrate creates every table and index. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS curve_state (
			asset         TEXT PRIMARY KEY,
			virtual_base  TEXT NOT NULL,
			virtual_quote TEXT NOT NULL,
			real_base     TEXT NOT NULL,
			real_quote    TEXT NOT NULL,
			total_supply  TEXT NOT NULL,
			version       BIGINT NOT NULL,
			created_at    BIGINT NOT NULL,
			updated_at    BIGINT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS allocation_log (
			id             TEXT PRIMARY KEY,
			reinvestment   DOUBLE PRECISION NOT NULL,
			treasury       DOUBLE PRECISION NOT NULL,
			reward         DOUBLE PRECISION NOT NULL,
			originator     DOUBLE PRECISION NOT NULL,
			status         TEXT NOT NULL,
			reasoning      TEXT NOT NULL DEFAULT '',
			confidence     DOUBLE PRECISION NOT NULL DEFAULT 0,
			source_metrics TEXT NOT NULL DEFAULT '{}',
			reviewed_by    TEXT NOT NULL DEFAULT '',
			proposed_at    BIGINT NOT NULL,
			valid_from     BIGINT,
			valid_until    BIGINT
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_allocation_active ON allocation_log(status) WHERE status = 'active'`,
		`CREATE INDEX IF NOT EXISTS idx_allocation_proposed ON allocation_log(proposed_at)`,

		`CREATE TABLE IF NOT EXISTS distribution_log (
			id              TEXT PRIMARY KEY,
			profit_event_id TEXT NOT NULL,
			pool            TEXT NOT NULL,
			asset           TEXT NOT NULL DEFAULT '',
			amount          TEXT NOT NULL,
			status          TEXT NOT NULL,
			signature       TEXT NOT NULL DEFAULT '',
			error           TEXT NOT NULL DEFAULT '',
			attempts        INTEGER NOT NULL DEFAULT 0,
			created_at      BIGINT NOT NULL,
			updated_at      BIGINT NOT NULL,
			UNIQUE (profit_event_id, pool)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_distribution_status ON distribution_log(status, updated_at)`,

		`CREATE TABLE IF NOT EXISTS selection_proofs (
			id             TEXT PRIMARY KEY,
			entropy_source TEXT NOT NULL,
			block_id       TEXT NOT NULL,
			block_height   BIGINT NOT NULL,
			sampled_at     BIGINT NOT NULL,
			candidates     TEXT NOT NULL,
			weights        TEXT NOT NULL,
			total_weight   TEXT NOT NULL,
			reward_amount  TEXT NOT NULL,
			draw_value     TEXT NOT NULL,
			winner_index   INTEGER NOT NULL,
			winner         TEXT NOT NULL,
			digest         TEXT NOT NULL,
			created_at     BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_proofs_created ON selection_proofs(created_at)`,

		`CREATE TABLE IF NOT EXISTS governor_log (
			id             TEXT PRIMARY KEY,
			action_type    TEXT NOT NULL,
			source         TEXT NOT NULL,
			payload        TEXT NOT NULL,
			guardrails     TEXT NOT NULL,
			entropy_factor DOUBLE PRECISION NOT NULL,
			seed           TEXT NOT NULL,
			decision       TEXT NOT NULL,
			confidence     DOUBLE PRECISION NOT NULL,
			reasoning      TEXT NOT NULL,
			public_message TEXT NOT NULL DEFAULT '',
			created_at     BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_governor_action_ts ON governor_log(action_type, created_at)`,

		`CREATE TABLE IF NOT EXISTS heartbeat_log (
			id            TEXT PRIMARY KEY,
			at            BIGINT NOT NULL,
			interval_ms   BIGINT NOT NULL,
			market_score  DOUBLE PRECISION NOT NULL,
			time_score    DOUBLE PRECISION NOT NULL,
			entropy_score DOUBLE PRECISION NOT NULL,
			triggered     INTEGER NOT NULL,
			outcome       TEXT NOT NULL,
			next_at       BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_heartbeat_at ON heartbeat_log(at)`,

		`CREATE TABLE IF NOT EXISTS activity_log (
			id           TEXT PRIMARY KEY,
			kind         TEXT NOT NULL,
			wallet       TEXT NOT NULL DEFAULT '',
			asset        TEXT NOT NULL DEFAULT '',
			side         TEXT NOT NULL DEFAULT '',
			base_amount  TEXT NOT NULL DEFAULT '0',
			quote_amount TEXT NOT NULL DEFAULT '0',
			note         TEXT NOT NULL DEFAULT '',
			at           BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_kind_ts ON activity_log(kind, at)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_wallet_ts ON activity_log(wallet, at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

// isUniqueViolation recognises duplicate-key errors from either driver.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}
