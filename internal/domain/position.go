package domain

import "time"

// Position represents the single live trade tracked by the bot.
type Position struct {
	ID       string  `json:"id"`
	Symbol   string  `json:"symbol"`
	Side     Side    `json:"side"`
	Quantity float64 `json:"quantity"`

	EntryPrice       float64 `json:"entry_price"`
	CurrentPrice     float64 `json:"current_price"`
	UnrealizedPNL    float64 `json:"unrealized_pnl"`
	UnrealizedPNLPct float64 `json:"unrealized_pnl_pct"`

	// Risk levels
	StopLoss          float64 `json:"stop_loss"`
	Target            float64 `json:"target"`
	InitialStop       float64 `json:"initial_stop"`       // Stop at admission, basis for the emergency stop
	SupportResistance float64 `json:"support_resistance"` // 0 when the candidate carried no level
	TrailActive       bool    `json:"trail_active"`
	TrailAnchor       float64 `json:"trail_anchor"`
	TrailStep         float64 `json:"trail_step"`
	BreakevenApplied  bool    `json:"breakeven_applied"`

	EntryTime    time.Time      `json:"entry_time"`
	ExitTime     time.Time      `json:"exit_time,omitempty"`
	LastTickTime time.Time      `json:"last_tick_time,omitempty"`
	Status       PositionStatus `json:"status"`

	// Exit metadata, set once the position is CLOSED
	ExitPrice      float64    `json:"exit_price,omitempty"`
	ExitReason     ExitReason `json:"exit_reason,omitempty"`
	RealizedPNL    float64    `json:"realized_pnl,omitempty"`
	RealizedPNLPct float64    `json:"realized_pnl_pct,omitempty"`

	// Broker references
	EntryOrderID       string `json:"entry_order_id,omitempty"`
	EntryClientOrderID string `json:"entry_client_order_id,omitempty"`
	ExitOrderID        string `json:"exit_order_id,omitempty"`
	ExitClientOrderID  string `json:"exit_client_order_id,omitempty"`

	// Pending exit: decided once, remembered until the broker confirms.
	PendingExitReason ExitReason `json:"pending_exit_reason,omitempty"`
	PendingExitPrice  float64    `json:"pending_exit_price,omitempty"`
	ExitDecidedAt     time.Time  `json:"exit_decided_at,omitempty"`
	ExitAttempts      int        `json:"exit_attempts,omitempty"`
	CloseFailures     int        `json:"close_failures,omitempty"`
	ExitUnconfirmed   bool       `json:"exit_unconfirmed,omitempty"` // last submit outcome unknown, query before resubmitting
}

// IsOpen checks if the position status is open.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// IsOption reports whether the position is an option leg.
func (p *Position) IsOption() bool {
	return IsOptionSymbol(p.Symbol)
}

// Clone returns a copy that can be handed outside the execute lock.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// MarkToMarket refreshes current price and unrealized P&L.
func (p *Position) MarkToMarket(price float64) {
	p.CurrentPrice = price
	p.UnrealizedPNL = (price - p.EntryPrice) * p.Quantity * p.Side.Direction()
	if notional := p.EntryPrice * p.Quantity; notional != 0 {
		p.UnrealizedPNLPct = p.UnrealizedPNL / notional * 100
	}
}
