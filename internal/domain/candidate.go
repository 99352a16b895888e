package domain

import "time"

// Candidate is a proposed entry produced by the signal generator.
type Candidate struct {
	Symbol            string
	Side              Side
	EntryPrice        float64
	StopLoss          float64
	Target            float64
	Quantity          float64
	SupportResistance float64 // Optional level the trailed stop must not cross (0 = none)
	GeneratedAt       time.Time
	Note              string
}

// Tick is a last-traded-price observation for a symbol.
type Tick struct {
	Symbol string
	Price  float64
	Time   time.Time
}
