// Package journal persists the actions the liquidator submits so operators
// can audit fills and liquidations after the fact.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Entry is one submitted (or dry-run) action.
type Entry struct {
	Slot            uint64
	Kind            string
	User            string
	MarketIndex     uint64
	OrderID         string
	BaseAssetAmount string
	LiquidationType string
	Signature       string
	Error           string
	DryRun          bool
	CreatedAt       time.Time
}

type Store struct {
	db *DB
}

type DB struct {
	raw *sql.DB
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.raw.ExecContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.raw.QueryContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (db *DB) Close() error {
	return db.raw.Close()
}

// rebindPostgresPlaceholders turns ? placeholders into $n, leaving quoted
// literals untouched.
func rebindPostgresPlaceholders(query string) string {
	var out strings.Builder
	out.Grow(len(query) + 16)

	arg := 1
	quoted := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'':
			if quoted && i+1 < len(query) && query[i+1] == '\'' {
				out.WriteString("''")
				i++
				continue
			}
			quoted = !quoted
			out.WriteByte(ch)
		case ch == '?' && !quoted:
			out.WriteByte('$')
			out.WriteString(strconv.Itoa(arg))
			arg++
		default:
			out.WriteByte(ch)
		}
	}
	return out.String()
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetConnMaxIdleTime(30 * time.Second)
	db.SetMaxIdleConns(2)
	db.SetMaxOpenConns(8)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &Store{db: &DB{raw: db}}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS liquidator_actions (
			id BIGSERIAL PRIMARY KEY,
			slot BIGINT NOT NULL,
			kind TEXT NOT NULL,
			user_account TEXT NOT NULL,
			market_index BIGINT NOT NULL,
			order_id TEXT NOT NULL DEFAULT '',
			base_asset_amount TEXT NOT NULL DEFAULT '',
			liquidation_type TEXT NOT NULL DEFAULT '',
			signature TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			dry_run BOOLEAN NOT NULL DEFAULT FALSE,
			created_at BIGINT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_liquidator_actions_user ON liquidator_actions(user_account, slot);`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate journal: %w", err)
		}
	}
	return nil
}

func (s *Store) Record(ctx context.Context, entry Entry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO liquidator_actions (
			slot, kind, user_account, market_index, order_id, base_asset_amount,
			liquidation_type, signature, error, dry_run, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(entry.Slot), entry.Kind, entry.User, int64(entry.MarketIndex), entry.OrderID, entry.BaseAssetAmount,
		entry.LiquidationType, entry.Signature, entry.Error, entry.DryRun, createdAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// Recent returns the newest entries for user, newest first.
func (s *Store) Recent(ctx context.Context, user string, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT slot, kind, user_account, market_index, order_id, base_asset_amount,
			liquidation_type, signature, error, dry_run, created_at
		FROM liquidator_actions
		WHERE user_account = ?
		ORDER BY id DESC
		LIMIT ?`, user, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			entry     Entry
			slot      int64
			market    int64
			createdAt int64
		)
		if err := rows.Scan(&slot, &entry.Kind, &entry.User, &market, &entry.OrderID, &entry.BaseAssetAmount,
			&entry.LiquidationType, &entry.Signature, &entry.Error, &entry.DryRun, &createdAt); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		entry.Slot = uint64(slot)
		entry.MarketIndex = uint64(market)
		entry.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, entry)
	}
	return out, rows.Err()
}
