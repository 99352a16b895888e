package position

import (
	"math"
	"time"

	"optionsBot/internal/calendar"
	"optionsBot/internal/domain"
)

// ExitDecision is the outcome of ShouldExit.
type ExitDecision struct {
	Reason domain.ExitReason
	Price  float64 // level the exit is pinned to
}

// EmergencyStop is the stop measured from entry using the admission stop
// distance scaled by the configured multiplier.
func EmergencyStop(p *domain.Position, cfg PolicyConfig) float64 {
	mult := cfg.EmergencyStopMultiplier
	if mult <= 0 {
		mult = 1
	}
	dist := math.Abs(p.EntryPrice-p.InitialStop) * mult
	return round2(p.EntryPrice - p.Side.Direction()*dist)
}

// EffectiveStop is the tighter of the emergency stop and stop_loss.
func EffectiveStop(p *domain.Position, cfg PolicyConfig) float64 {
	emergency := EmergencyStop(p, cfg)
	if p.Side == domain.Short {
		return math.Min(emergency, p.StopLoss)
	}
	return math.Max(emergency, p.StopLoss)
}

// ShouldExit decides whether the position must close at price. It is
// evaluated after ApplyTick. A nil result means hold.
func ShouldExit(p *domain.Position, price float64, now time.Time, loc *time.Location, cfg PolicyConfig) *ExitDecision {
	if calendar.AtOrAfter(now, loc, cfg.EODCutoff) {
		return &ExitDecision{Reason: domain.ExitForcedEOD, Price: price}
	}

	dir := p.Side.Direction()
	stop := EffectiveStop(p, cfg)
	if (price-stop)*dir <= 0 {
		reason := domain.ExitStopHit
		if p.TrailActive {
			reason = domain.ExitTrailStopHit
		}
		return &ExitDecision{Reason: reason, Price: stop}
	}

	if (price-p.Target)*dir >= 0 {
		return &ExitDecision{Reason: domain.ExitTargetHit, Price: p.Target}
	}
	return nil
}
