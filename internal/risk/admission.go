package risk

import (
	"fmt"
	"math"
	"time"

	"optionsBot/internal/calendar"
	"optionsBot/internal/domain"
	"optionsBot/internal/ports"
)

// RejectionReason names why a candidate was refused.
type RejectionReason string

const (
	ReasonInvalidCandidate RejectionReason = "INVALID_CANDIDATE"
	ReasonStaleCandidate   RejectionReason = "STALE_CANDIDATE"
	ReasonActivePosition   RejectionReason = "ACTIVE_POSITION"
	ReasonTradingPaused    RejectionReason = "TRADING_PAUSED"
	ReasonTradingHalted    RejectionReason = "TRADING_HALTED"
	ReasonMarketClosed     RejectionReason = "MARKET_CLOSED"
	ReasonOutsideWindow    RejectionReason = "OUTSIDE_TRADING_WINDOW"
	ReasonCooldown         RejectionReason = "COOLDOWN_ACTIVE"
	ReasonMaxLoss          RejectionReason = "MAX_LOSS_EXCEEDED"
)

// RejectionError is returned for every refused candidate.
type RejectionError struct {
	Reason RejectionReason
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("admission rejected: %s", e.Reason)
	}
	return fmt.Sprintf("admission rejected: %s: %s", e.Reason, e.Detail)
}

func (e *RejectionError) Unwrap() error { return ports.ErrAdmissionRejected }

// Reject builds a RejectionError.
func Reject(reason RejectionReason, format string, args ...interface{}) error {
	return &RejectionError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Checker runs the admission checks against a calendar.
type Checker struct {
	cfg RiskConfig
	cal ports.MarketCalendar
}

// NewChecker creates a new admission checker.
func NewChecker(cfg RiskConfig, cal ports.MarketCalendar) *Checker {
	return &Checker{cfg: cfg, cal: cal}
}

// Config returns the limits the checker enforces.
func (c *Checker) Config() RiskConfig {
	return c.cfg
}

// CheckAdmission validates cand against the session and returns the
// candidate with its stop clamped to the max stop distance.
func (c *Checker) CheckAdmission(cand domain.Candidate, session *SessionState, hasActive bool, now time.Time) (domain.Candidate, error) {
	if err := validateCandidate(cand); err != nil {
		return cand, err
	}
	if c.cfg.MaxCandidateAge > 0 && !cand.GeneratedAt.IsZero() && now.Sub(cand.GeneratedAt) > c.cfg.MaxCandidateAge {
		return cand, Reject(ReasonStaleCandidate, "generated %s ago", now.Sub(cand.GeneratedAt).Round(time.Second))
	}
	if hasActive {
		return cand, Reject(ReasonActivePosition, "a position is already active")
	}
	if session.Paused {
		return cand, Reject(ReasonTradingPaused, "%s", session.PauseReason)
	}
	if !c.cal.IsOpen(now) {
		return cand, Reject(ReasonMarketClosed, "market closed at %s", now.In(c.cal.Location()).Format(time.RFC3339))
	}
	if !calendar.Within(now, c.cal.Location(), c.cfg.WindowStart, c.cfg.WindowEnd) {
		return cand, Reject(ReasonOutsideWindow, "window is %s-%s", c.cfg.WindowStart, c.cfg.WindowEnd)
	}
	if left := session.CooldownRemaining(cand.Symbol, now, c.cfg.Cooldown); left > 0 {
		return cand, Reject(ReasonCooldown, "%s cooling down for %s", domain.SymbolRoot(cand.Symbol), left.Round(time.Second))
	}

	dir := cand.Side.Direction()
	dist := math.Abs(cand.EntryPrice - cand.StopLoss)
	if c.cfg.MaxStopPoints > 0 && dist > c.cfg.MaxStopPoints {
		dist = c.cfg.MaxStopPoints
		cand.StopLoss = cand.EntryPrice - dir*dist
	}
	if c.cfg.MaxLossPerTrade > 0 && dist*cand.Quantity > c.cfg.MaxLossPerTrade {
		return cand, Reject(ReasonMaxLoss, "projected loss %.2f exceeds %.2f", dist*cand.Quantity, c.cfg.MaxLossPerTrade)
	}
	return cand, nil
}

func validateCandidate(cand domain.Candidate) error {
	switch {
	case cand.Symbol == "":
		return Reject(ReasonInvalidCandidate, "missing symbol")
	case !cand.Side.Valid():
		return Reject(ReasonInvalidCandidate, "unknown side %q", cand.Side)
	case cand.Quantity <= 0:
		return Reject(ReasonInvalidCandidate, "quantity must be positive")
	case cand.EntryPrice <= 0:
		return Reject(ReasonInvalidCandidate, "entry price must be positive")
	}
	dir := cand.Side.Direction()
	if (cand.EntryPrice-cand.StopLoss)*dir <= 0 {
		return Reject(ReasonInvalidCandidate, "stop %.2f on wrong side of entry %.2f for %s", cand.StopLoss, cand.EntryPrice, cand.Side)
	}
	if (cand.Target-cand.EntryPrice)*dir <= 0 {
		return Reject(ReasonInvalidCandidate, "target %.2f on wrong side of entry %.2f for %s", cand.Target, cand.EntryPrice, cand.Side)
	}
	return nil
}
