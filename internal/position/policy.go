package position

import (
	"errors"
	"math"

	"optionsBot/internal/calendar"
	"optionsBot/internal/domain"
)

// PolicyConfig holds the trailing, breakeven and exit parameters.
// Percentages are in percent units (0.4 means 0.4%).
type PolicyConfig struct {
	BreakevenTriggerPct     float64
	BreakevenBufferPct      float64
	TrailTriggerPct         float64
	TrailStepPct            float64
	TrailBufferPct          float64
	OptionTrailStartPoints  float64
	OptionTrailGapPoints    float64
	EmergencyStopMultiplier float64
	EODCutoff               calendar.TimeOfDay
}

// DefaultPolicyConfig returns the production defaults.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		BreakevenTriggerPct:     0.4,
		BreakevenBufferPct:      0.05,
		TrailTriggerPct:         0.6,
		TrailStepPct:            0.2,
		TrailBufferPct:          0.15,
		OptionTrailStartPoints:  20,
		OptionTrailGapPoints:    10,
		EmergencyStopMultiplier: 1.0,
		EODCutoff:               calendar.TimeOfDay{Hour: 15, Minute: 15},
	}
}

// Validate checks the policy for impossible values.
func (c PolicyConfig) Validate() error {
	var errs []error
	for name, v := range map[string]float64{
		"breakeven trigger":    c.BreakevenTriggerPct,
		"breakeven buffer":     c.BreakevenBufferPct,
		"trail trigger":        c.TrailTriggerPct,
		"trail step":           c.TrailStepPct,
		"trail buffer":         c.TrailBufferPct,
		"option trail start":   c.OptionTrailStartPoints,
		"option trail gap":     c.OptionTrailGapPoints,
		"emergency multiplier": c.EmergencyStopMultiplier,
	} {
		if v < 0 || math.IsNaN(v) {
			errs = append(errs, errors.New(name+" must not be negative"))
		}
	}
	if c.BreakevenTriggerPct > 0 && c.BreakevenBufferPct >= c.BreakevenTriggerPct {
		errs = append(errs, errors.New("breakeven buffer must be below the breakeven trigger"))
	}
	if c.TrailTriggerPct > 0 && c.TrailBufferPct >= c.TrailTriggerPct {
		errs = append(errs, errors.New("trail buffer must be below the trail trigger"))
	}
	if c.EmergencyStopMultiplier == 0 {
		errs = append(errs, errors.New("emergency multiplier must be positive"))
	}
	return errors.Join(errs...)
}

// epsilon absorbs float noise when counting whole trail steps.
const epsilon = 1e-9

// ApplyTick evaluates the breakeven, trailing and option rules for price
// and returns the updated position. It is pure and idempotent: applying the
// same price twice yields the same state as applying it once.
func ApplyTick(p domain.Position, price float64, cfg PolicyConfig) domain.Position {
	dir := p.Side.Direction()
	favorable := (price - p.EntryPrice) * dir

	// Breakeven lift, one-shot.
	if !p.BreakevenApplied && cfg.BreakevenTriggerPct > 0 &&
		favorable >= p.EntryPrice*cfg.BreakevenTriggerPct/100-epsilon {
		tighten(&p, p.EntryPrice+dir*p.EntryPrice*cfg.BreakevenBufferPct/100)
		if (p.StopLoss-p.EntryPrice)*dir >= 0 {
			p.BreakevenApplied = true
		}
	}

	// Trail activation.
	if !p.TrailActive && cfg.TrailTriggerPct > 0 &&
		favorable >= p.EntryPrice*cfg.TrailTriggerPct/100-epsilon {
		p.TrailActive = true
		p.TrailAnchor = round2(p.EntryPrice + dir*p.EntryPrice*cfg.TrailTriggerPct/100)
		tighten(&p, clampToLevel(p, trailStop(p, cfg)))
	}

	// Ratchet by whole steps beyond the anchor.
	if p.TrailActive && p.TrailStep > 0 {
		steps := math.Floor((price-p.TrailAnchor)*dir/p.TrailStep + epsilon)
		if steps >= 1 {
			p.TrailAnchor = round2(p.TrailAnchor + dir*steps*p.TrailStep)
			tighten(&p, clampToLevel(p, trailStop(p, cfg)))
		}
	}

	// Option legs trail in absolute points.
	if p.IsOption() && cfg.OptionTrailStartPoints > 0 && favorable > cfg.OptionTrailStartPoints {
		tighten(&p, price-dir*cfg.OptionTrailGapPoints)
	}

	return p
}

func trailStop(p domain.Position, cfg PolicyConfig) float64 {
	return p.TrailAnchor - p.Side.Direction()*p.TrailAnchor*cfg.TrailBufferPct/100
}

// clampToLevel keeps a trailed stop from crossing the candidate's
// support (LONG) or resistance (SHORT) level.
func clampToLevel(p domain.Position, stop float64) float64 {
	if p.SupportResistance <= 0 {
		return stop
	}
	if p.Side == domain.Short {
		return math.Max(stop, p.SupportResistance)
	}
	return math.Min(stop, p.SupportResistance)
}

// tighten moves the stop to candidate only if that is more protective and
// still leaves the stop on the protective side of the target.
func tighten(p *domain.Position, candidate float64) {
	dir := p.Side.Direction()
	candidate = round2(candidate)
	if (candidate-p.StopLoss)*dir <= 0 {
		return
	}
	if (p.Target-candidate)*dir <= 0 {
		return
	}
	p.StopLoss = candidate
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
