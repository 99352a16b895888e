package ports

import (
	"context"
	"time"

	"optionsBot/internal/domain"
)

// DayStats summarises ledger activity for one market day.
type DayStats struct {
	RealizedPNL       float64
	Trades            int
	ConsecutiveLosses int                  // Losing streak ending at the latest trade
	LastExitByRoot    map[string]time.Time // Symbol root -> latest exit time
}

// TradeLedger is the durable append-only record of closed trades.
type TradeLedger interface {
	// Record appends a closed trade. It is idempotent on Trade.PositionID.
	Record(ctx context.Context, trade *domain.Trade) error
	// DayStats aggregates trades whose exit falls within [dayStart, dayStart+24h).
	DayStats(ctx context.Context, dayStart time.Time) (*DayStats, error)
	// FindBetween returns trades exited within [from, to), oldest first.
	FindBetween(ctx context.Context, from, to time.Time) ([]*domain.Trade, error)
}

// PositionStore keeps snapshots of the active position for crash recovery.
// Snapshots are hints: on restart the broker is queried for ground truth.
type PositionStore interface {
	// Save upserts the snapshot keyed by position id.
	Save(ctx context.Context, pos *domain.Position) error
	// LoadActive returns every snapshot whose status is PENDING_ENTRY, OPEN or CLOSING.
	LoadActive(ctx context.Context) ([]*domain.Position, error)
	// Delete removes the snapshot once the position is CLOSED or FAILED.
	Delete(ctx context.Context, id string) error
}
