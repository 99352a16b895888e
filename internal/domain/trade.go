package domain

import "time"

// Trade is a closed position as recorded in the trade ledger.
type Trade struct {
	ID          int64  // Ledger row id (assigned by the ledger)
	PositionID  string // Idempotency key
	Symbol      string
	Side        Side
	EntryPrice  float64
	ExitPrice   float64
	Quantity    float64
	PNL         float64
	PNLPct      float64
	EntryTime   time.Time
	ExitTime    time.Time
	ExitReason  ExitReason
	ExitOrderID string
}

// IsWin reports whether the trade realized a profit.
func (t *Trade) IsWin() bool {
	return t.PNL > 0
}

// TradeFromPosition builds a ledger record from a CLOSED position.
func TradeFromPosition(p *Position) *Trade {
	return &Trade{
		PositionID:  p.ID,
		Symbol:      p.Symbol,
		Side:        p.Side,
		EntryPrice:  p.EntryPrice,
		ExitPrice:   p.ExitPrice,
		Quantity:    p.Quantity,
		PNL:         p.RealizedPNL,
		PNLPct:      p.RealizedPNLPct,
		EntryTime:   p.EntryTime,
		ExitTime:    p.ExitTime,
		ExitReason:  p.ExitReason,
		ExitOrderID: p.ExitOrderID,
	}
}
