package ports

import (
	"context"
	"time"

	"optionsBot/internal/domain"
)

// MarketCalendar gates trading on exchange sessions.
type MarketCalendar interface {
	// IsOpen reports whether the exchange session is open at now.
	IsOpen(now time.Time) bool
	// TimeUntilClose returns the remaining session time, or zero when closed.
	TimeUntilClose(now time.Time) time.Duration
	// Location is the market timezone used for day boundaries and cutoffs.
	Location() *time.Location
}

// SignalGenerator proposes entry candidates.
// It returns ErrNoSignal when there is nothing to trade and ErrDataUnavailable
// when live data is missing; it never fabricates a candidate.
type SignalGenerator interface {
	Next(ctx context.Context, now time.Time) (*domain.Candidate, error)
}

// Alerter surfaces operator-visible alarms.
type Alerter interface {
	Alert(ctx context.Context, title, message string) error
}
