// Package postgres implements ports.TradeLedger on PostgreSQL via pgx.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"optionsBot/internal/analytics"
	"optionsBot/internal/domain"
	"optionsBot/internal/ports"
)

// ClientConfig holds connection parameters for the PostgreSQL ledger.
type ClientConfig struct {
	DSN      string
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	MaxConns int
}

// DSN builds a PostgreSQL connection string from the given config.
func DSN(cfg ClientConfig) string {
	if strings.TrimSpace(cfg.DSN) != "" {
		return cfg.DSN
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, port, cfg.Database, sslMode)
}

// querier is the subset of *pgxpool.Pool the ledger uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Ledger implements ports.TradeLedger.
type Ledger struct {
	db     querier
	pool   *pgxpool.Pool
	logger ports.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS trade_history (
	id BIGSERIAL PRIMARY KEY,
	position_id TEXT NOT NULL UNIQUE,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	entry_price DOUBLE PRECISION NOT NULL,
	exit_price DOUBLE PRECISION NOT NULL,
	quantity DOUBLE PRECISION NOT NULL,
	pnl DOUBLE PRECISION NOT NULL,
	pnl_pct DOUBLE PRECISION NOT NULL,
	entry_time TIMESTAMPTZ NOT NULL,
	exit_time TIMESTAMPTZ NOT NULL,
	exit_reason TEXT NOT NULL,
	exit_order_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_trade_history_exit_time ON trade_history (exit_time);`

// New connects a pool, verifies it and ensures the schema exists.
func New(ctx context.Context, cfg ClientConfig, logger ports.Logger) (*Ledger, error) {
	poolCfg, err := pgxpool.ParseConfig(DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ensure schema: %w", err)
	}

	logger.Info(ctx, "PostgreSQL trade ledger ready", map[string]interface{}{"host": cfg.Host, "database": cfg.Database})
	l := newLedger(pool, logger)
	l.pool = pool
	return l, nil
}

func newLedger(db querier, logger ports.Logger) *Ledger {
	return &Ledger{db: db, logger: logger}
}

// Close shuts down the connection pool.
func (l *Ledger) Close() error {
	if l.pool != nil {
		l.pool.Close()
	}
	return nil
}

// Record inserts a closed trade; duplicates by position id are skipped.
func (l *Ledger) Record(ctx context.Context, trade *domain.Trade) error {
	const query = `
		INSERT INTO trade_history (
			position_id, symbol, side, entry_price, exit_price, quantity,
			pnl, pnl_pct, entry_time, exit_time, exit_reason, exit_order_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (position_id) DO NOTHING`

	tag, err := l.db.Exec(ctx, query,
		trade.PositionID, trade.Symbol, string(trade.Side), trade.EntryPrice, trade.ExitPrice, trade.Quantity,
		trade.PNL, trade.PNLPct, trade.EntryTime, trade.ExitTime, string(trade.ExitReason), trade.ExitOrderID)
	if err != nil {
		return fmt.Errorf("%w: postgres: insert trade %s: %v", ports.ErrQueryFailed, trade.PositionID, err)
	}
	if tag.RowsAffected() == 0 {
		l.logger.Debug(ctx, "Trade already recorded", map[string]interface{}{"positionID": trade.PositionID})
	}
	return nil
}

// FindBetween returns trades exited within [from, to), oldest first.
func (l *Ledger) FindBetween(ctx context.Context, from, to time.Time) ([]*domain.Trade, error) {
	const query = `
		SELECT id, position_id, symbol, side, entry_price, exit_price, quantity,
		       pnl, pnl_pct, entry_time, exit_time, exit_reason, exit_order_id
		FROM trade_history
		WHERE exit_time >= $1 AND exit_time < $2
		ORDER BY exit_time ASC, id ASC`

	rows, err := l.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: postgres: query trades: %v", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		var t domain.Trade
		var side, reason string
		if err := rows.Scan(
			&t.ID, &t.PositionID, &t.Symbol, &side, &t.EntryPrice, &t.ExitPrice, &t.Quantity,
			&t.PNL, &t.PNLPct, &t.EntryTime, &t.ExitTime, &reason, &t.ExitOrderID,
		); err != nil {
			return nil, fmt.Errorf("%w: postgres: scan trade: %v", ports.ErrQueryFailed, err)
		}
		t.Side = domain.Side(side)
		t.ExitReason = domain.ExitReason(reason)
		trades = append(trades, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: postgres: iterate trades: %v", ports.ErrQueryFailed, err)
	}
	return trades, nil
}

// DayStats aggregates trades exited during the day starting at dayStart.
func (l *Ledger) DayStats(ctx context.Context, dayStart time.Time) (*ports.DayStats, error) {
	trades, err := l.FindBetween(ctx, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	return analytics.DayStats(trades), nil
}
