package ports

import "optionsBot/internal/domain"

// Metrics receives lifecycle events from the position manager.
type Metrics interface {
	TickApplied(symbol string)
	TickDropped(reason string)
	Admission(outcome string)
	PositionClosed(reason domain.ExitReason, pnl float64)
	CloseFailed()
	Escalated()
	SessionPNL(pnl float64)
	Halted(halted bool)
}

// NopMetrics discards every event.
type NopMetrics struct{}

func (NopMetrics) TickApplied(string)                        {}
func (NopMetrics) TickDropped(string)                        {}
func (NopMetrics) Admission(string)                          {}
func (NopMetrics) PositionClosed(domain.ExitReason, float64) {}
func (NopMetrics) CloseFailed()                              {}
func (NopMetrics) Escalated()                                {}
func (NopMetrics) SessionPNL(float64)                        {}
func (NopMetrics) Halted(bool)                               {}
