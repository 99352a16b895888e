package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"optionsBot/internal/analytics"
	"optionsBot/internal/domain"
	"optionsBot/internal/ports"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Repository implements ports.TradeLedger and ports.PositionStore using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/options_bot.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// A single connection serialises writers; SQLite locks the whole file anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := NewRepositoryFromDB(db, cfg.Logger)
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// NewRepositoryFromDB wraps an already opened database. The schema is
// assumed to exist.
func NewRepositoryFromDB(db *sql.DB, logger ports.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS positions (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		status TEXT NOT NULL,
		entry_time TIMESTAMP NOT NULL,
		snapshot TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trade_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		position_id TEXT NOT NULL UNIQUE,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		quantity REAL NOT NULL,
		pnl REAL NOT NULL,
		pnl_pct REAL NOT NULL,
		entry_time TIMESTAMP NOT NULL,
		exit_time TIMESTAMP NOT NULL,
		exit_reason TEXT NOT NULL,
		exit_order_id TEXT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_positions_status ON positions (status);
	CREATE INDEX IF NOT EXISTS idx_trade_history_exit_time ON trade_history (exit_time);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- TradeLedger Implementation ---

// Record inserts a closed trade. A second record for the same position id
// is ignored.
func (r *Repository) Record(ctx context.Context, trade *domain.Trade) error {
	const query = `
	INSERT OR IGNORE INTO trade_history (position_id, symbol, side, entry_price, exit_price, quantity,
	                                     pnl, pnl_pct, entry_time, exit_time, exit_reason, exit_order_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var exitOrderID sql.NullString
	if trade.ExitOrderID != "" {
		exitOrderID = sql.NullString{String: trade.ExitOrderID, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query,
		trade.PositionID, trade.Symbol, string(trade.Side), trade.EntryPrice, trade.ExitPrice, trade.Quantity,
		trade.PNL, trade.PNLPct, trade.EntryTime.UTC(), trade.ExitTime.UTC(), string(trade.ExitReason), exitOrderID)
	if err != nil {
		return fmt.Errorf("%w: insert trade for position %s: %v", ports.ErrQueryFailed, trade.PositionID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected for position %s: %v", ports.ErrQueryFailed, trade.PositionID, err)
	}
	if rowsAffected == 0 {
		r.logger.Debug(ctx, "Trade already recorded", map[string]interface{}{"positionID": trade.PositionID})
		return nil
	}
	if id, err := result.LastInsertId(); err == nil {
		trade.ID = id
	}
	r.logger.Debug(ctx, "Trade recorded", map[string]interface{}{"tradeID": trade.ID, "positionID": trade.PositionID, "pnl": trade.PNL})
	return nil
}

// FindBetween returns trades whose exit falls within [from, to), oldest first.
func (r *Repository) FindBetween(ctx context.Context, from, to time.Time) ([]*domain.Trade, error) {
	const query = `
	SELECT id, position_id, symbol, side, entry_price, exit_price, quantity, pnl, pnl_pct,
	       entry_time, exit_time, exit_reason, exit_order_id
	FROM trade_history
	WHERE exit_time >= ? AND exit_time < ?
	ORDER BY exit_time ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: query trades: %v", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan trade: %v", ports.ErrQueryFailed, err)
		}
		trades = append(trades, trade)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate trades: %v", ports.ErrQueryFailed, err)
	}
	return trades, nil
}

// DayStats aggregates the trades exited during the market day starting at dayStart.
func (r *Repository) DayStats(ctx context.Context, dayStart time.Time) (*ports.DayStats, error) {
	trades, err := r.FindBetween(ctx, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	return analytics.DayStats(trades), nil
}

// --- PositionStore Implementation ---

// Save upserts the snapshot of a position.
func (r *Repository) Save(ctx context.Context, pos *domain.Position) error {
	const query = `
	INSERT INTO positions (id, symbol, status, entry_time, snapshot, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		status = excluded.status,
		entry_time = excluded.entry_time,
		snapshot = excluded.snapshot,
		updated_at = excluded.updated_at`

	data, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("failed to encode position %s: %w", pos.ID, err)
	}
	_, err = r.db.ExecContext(ctx, query, pos.ID, pos.Symbol, string(pos.Status), pos.EntryTime.UTC(), string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: save position %s: %v", ports.ErrQueryFailed, pos.ID, err)
	}
	return nil
}

// LoadActive returns the active snapshots, newest entry first.
func (r *Repository) LoadActive(ctx context.Context) ([]*domain.Position, error) {
	const query = `
	SELECT snapshot FROM positions
	WHERE status IN (?, ?, ?)
	ORDER BY entry_time DESC`

	rows, err := r.db.QueryContext(ctx, query,
		string(domain.StatusPendingEntry), string(domain.StatusOpen), string(domain.StatusClosing))
	if err != nil {
		return nil, fmt.Errorf("%w: query active positions: %v", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	positions := make([]*domain.Position, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("%w: scan position: %v", ports.ErrQueryFailed, err)
		}
		pos := &domain.Position{}
		if err := json.Unmarshal([]byte(data), pos); err != nil {
			return nil, fmt.Errorf("failed to decode position snapshot: %w", err)
		}
		positions = append(positions, pos)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate positions: %v", ports.ErrQueryFailed, err)
	}
	return positions, nil
}

// Delete removes a snapshot. Deleting a missing id is not an error.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM positions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("%w: delete position %s: %v", ports.ErrQueryFailed, id, err)
	}
	return nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanTrade scans a row into a domain.Trade struct.
func scanTrade(s scanner) (*domain.Trade, error) {
	th := &domain.Trade{}
	var side, reason string
	var exitOrderID sql.NullString
	err := s.Scan(
		&th.ID, &th.PositionID, &th.Symbol, &side, &th.EntryPrice, &th.ExitPrice, &th.Quantity,
		&th.PNL, &th.PNLPct, &th.EntryTime, &th.ExitTime, &reason, &exitOrderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}
	th.Side = domain.Side(side)
	th.ExitReason = domain.ExitReason(reason)
	if exitOrderID.Valid {
		th.ExitOrderID = exitOrderID.String
	}
	return th, nil
}
