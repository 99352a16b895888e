package risk

import (
	"errors"
	"fmt"
	"time"

	"optionsBot/internal/calendar"
)

// RiskConfig holds the per-session risk limits. It is immutable once the
// manager is built.
type RiskConfig struct {
	MaxLossPerTrade      float64       // currency; projected stop loss per trade
	MaxStopPoints        float64       // candidate stops farther than this are clamped
	DailyLossCap         float64       // currency, positive; 0 disables
	DailyProfitCap       float64       // currency; 0 disables
	MaxConsecutiveLosses int           // 0 disables
	Cooldown             time.Duration // per symbol root, measured from last exit
	MaxCandidateAge      time.Duration // 0 disables the staleness check
	WindowStart          calendar.TimeOfDay
	WindowEnd            calendar.TimeOfDay
}

// Validate checks the config for impossible values.
func (c RiskConfig) Validate() error {
	var errs []error
	if c.MaxLossPerTrade <= 0 {
		errs = append(errs, errors.New("max loss per trade must be positive"))
	}
	if c.MaxStopPoints <= 0 {
		errs = append(errs, errors.New("max stop points must be positive"))
	}
	if c.DailyLossCap < 0 || c.DailyProfitCap < 0 {
		errs = append(errs, errors.New("daily caps must not be negative"))
	}
	if c.MaxConsecutiveLosses < 0 {
		errs = append(errs, errors.New("max consecutive losses must not be negative"))
	}
	if c.Cooldown < 0 || c.MaxCandidateAge < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if c.WindowStart.Minutes() >= c.WindowEnd.Minutes() {
		errs = append(errs, fmt.Errorf("trading window start %s must be before end %s", c.WindowStart, c.WindowEnd))
	}
	return errors.Join(errs...)
}
