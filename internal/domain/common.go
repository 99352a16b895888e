package domain

import "strings"

// OrderSide represents the side of a broker order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Side is the direction of a position.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// Valid reports whether s is one of the known sides.
func (s Side) Valid() bool {
	return s == Long || s == Short
}

// Direction returns +1 for LONG and -1 for SHORT.
func (s Side) Direction() float64 {
	if s == Short {
		return -1
	}
	return 1
}

// EntryOrderSide is the broker side used to open a position of this direction.
func (s Side) EntryOrderSide() OrderSide {
	if s == Short {
		return Sell
	}
	return Buy
}

// ExitOrderSide is the opposite broker side used to close the position.
func (s Side) ExitOrderSide() OrderSide {
	if s == Short {
		return Buy
	}
	return Sell
}

// PositionStatus represents the lifecycle state of a position.
type PositionStatus string

const (
	StatusPendingEntry PositionStatus = "PENDING_ENTRY"
	StatusOpen         PositionStatus = "OPEN"
	StatusClosing      PositionStatus = "CLOSING"
	StatusClosed       PositionStatus = "CLOSED"
	StatusFailed       PositionStatus = "FAILED"
)

// IsActive reports whether the status occupies the single active-position slot.
func (s PositionStatus) IsActive() bool {
	return s == StatusPendingEntry || s == StatusOpen || s == StatusClosing
}

// ExitReason indicates why a position was closed.
type ExitReason string

const (
	ExitTargetHit      ExitReason = "TARGET_HIT"
	ExitStopHit        ExitReason = "STOP_HIT"
	ExitTrailStopHit   ExitReason = "TRAIL_STOP_HIT"
	ExitForcedEOD      ExitReason = "FORCED_EOD_CLOSE"
	ExitManualClose    ExitReason = "MANUAL_CLOSE"
	ExitBrokerRejected ExitReason = "BROKER_REJECTED"
)

// IsOptionSymbol reports whether the symbol is an option leg (ends in CE or PE).
// Option premiums trail in absolute points rather than percentages.
func IsOptionSymbol(symbol string) bool {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	return strings.HasSuffix(s, "CE") || strings.HasSuffix(s, "PE")
}

// SymbolRoot returns the underlying prefix shared by related contracts, e.g.
// "NIFTY25OCT25000CE" -> "NIFTY". It is used to bucket cooldowns.
func SymbolRoot(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if i := strings.IndexAny(s, "0123456789"); i > 0 {
		return s[:i]
	}
	if len(s) > 3 {
		return strings.TrimSuffix(s, "FUT")
	}
	return s
}
