package risk

import (
	"fmt"
	"time"

	"optionsBot/internal/calendar"
	"optionsBot/internal/domain"
	"optionsBot/internal/ports"
)

// SessionState holds the day's counters. It is owned by the position
// manager and only mutated under its execute lock.
type SessionState struct {
	Day               time.Time            `json:"day"`
	RealizedPNL       float64              `json:"realized_pnl"`
	Trades            int                  `json:"trades"`
	ConsecutiveLosses int                  `json:"consecutive_losses"`
	Paused            bool                 `json:"paused"`
	PauseReason       string               `json:"pause_reason,omitempty"`
	Cooldowns         map[string]time.Time `json:"cooldowns"`
}

// NewSessionState starts an empty session for the market day containing now.
func NewSessionState(now time.Time, loc *time.Location) *SessionState {
	return &SessionState{
		Day:       calendar.DayStart(now, loc),
		Cooldowns: make(map[string]time.Time),
	}
}

// RollIfNewDay resets the counters when now falls on a later market day.
func (s *SessionState) RollIfNewDay(now time.Time, loc *time.Location) bool {
	day := calendar.DayStart(now, loc)
	if !day.After(s.Day) {
		return false
	}
	*s = SessionState{Day: day, Cooldowns: make(map[string]time.Time)}
	return true
}

// Seed restores the counters from the ledger's view of the current day.
func (s *SessionState) Seed(stats *ports.DayStats, cfg RiskConfig) {
	if stats == nil {
		return
	}
	s.RealizedPNL = stats.RealizedPNL
	s.Trades = stats.Trades
	s.ConsecutiveLosses = stats.ConsecutiveLosses
	for root, at := range stats.LastExitByRoot {
		if prev, ok := s.Cooldowns[root]; !ok || at.After(prev) {
			s.Cooldowns[root] = at
		}
	}
	s.applyLimits(cfg)
}

// RecordExit books a closed trade into the session and pauses trading if a
// daily limit has been reached.
func (s *SessionState) RecordExit(symbol string, pnl float64, exitTime time.Time, cfg RiskConfig) {
	s.RealizedPNL += pnl
	s.Trades++
	switch {
	case pnl > 0:
		s.ConsecutiveLosses = 0
	case pnl < 0:
		s.ConsecutiveLosses++
	}
	s.Cooldowns[domain.SymbolRoot(symbol)] = exitTime
	s.applyLimits(cfg)
}

func (s *SessionState) applyLimits(cfg RiskConfig) {
	switch {
	case cfg.DailyLossCap > 0 && s.RealizedPNL <= -cfg.DailyLossCap:
		s.Pause(fmt.Sprintf("daily loss cap %.2f reached (realized %.2f)", cfg.DailyLossCap, s.RealizedPNL))
	case cfg.DailyProfitCap > 0 && s.RealizedPNL >= cfg.DailyProfitCap:
		s.Pause(fmt.Sprintf("daily profit cap %.2f reached (realized %.2f)", cfg.DailyProfitCap, s.RealizedPNL))
	case cfg.MaxConsecutiveLosses > 0 && s.ConsecutiveLosses >= cfg.MaxConsecutiveLosses:
		s.Pause(fmt.Sprintf("%d consecutive losses", s.ConsecutiveLosses))
	}
}

// Pause stops admissions. The first reason is kept.
func (s *SessionState) Pause(reason string) {
	if s.Paused {
		return
	}
	s.Paused = true
	s.PauseReason = reason
}

// Resume clears the pause flag.
func (s *SessionState) Resume() {
	s.Paused = false
	s.PauseReason = ""
}

// CooldownRemaining returns how long symbol's root stays blocked at now.
func (s *SessionState) CooldownRemaining(symbol string, now time.Time, cooldown time.Duration) time.Duration {
	last, ok := s.Cooldowns[domain.SymbolRoot(symbol)]
	if !ok || cooldown <= 0 {
		return 0
	}
	if left := last.Add(cooldown).Sub(now); left > 0 {
		return left
	}
	return 0
}

// Clone returns a deep copy safe to hand outside the lock.
func (s *SessionState) Clone() SessionState {
	cp := *s
	cp.Cooldowns = make(map[string]time.Time, len(s.Cooldowns))
	for k, v := range s.Cooldowns {
		cp.Cooldowns[k] = v
	}
	return cp
}
