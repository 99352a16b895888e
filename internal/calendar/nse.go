package calendar

import (
	"fmt"
	"time"
)

// Status is the calendar verdict for an instant.
type Status struct {
	Open   bool
	Reason string
}

// Config holds session parameters.
type Config struct {
	Location     *time.Location
	SessionOpen  TimeOfDay
	SessionClose TimeOfDay
	Holidays     []string // YYYY-MM-DD, merged with the built-in list
}

// DefaultConfig returns the NSE cash/F&O session.
func DefaultConfig() Config {
	return Config{
		Location:     LoadLocation("Asia/Kolkata"),
		SessionOpen:  TimeOfDay{Hour: 9, Minute: 15},
		SessionClose: TimeOfDay{Hour: 15, Minute: 30},
	}
}

// NSE is a pure function of wall-clock time -> session status.
type NSE struct {
	loc      *time.Location
	open     TimeOfDay
	close    TimeOfDay
	holidays map[string]struct{}
}

// NewNSE validates cfg and builds the calendar.
func NewNSE(cfg Config) (*NSE, error) {
	if cfg.Location == nil {
		cfg.Location = IST
	}
	if cfg.SessionOpen.Minutes() >= cfg.SessionClose.Minutes() {
		return nil, fmt.Errorf("session open %s must be before close %s", cfg.SessionOpen, cfg.SessionClose)
	}
	holidays := make(map[string]struct{}, len(defaultHolidays)+len(cfg.Holidays))
	for _, list := range [][]string{defaultHolidays, cfg.Holidays} {
		for _, d := range list {
			if _, err := time.Parse("2006-01-02", d); err != nil {
				return nil, fmt.Errorf("invalid holiday %q: %w", d, err)
			}
			holidays[d] = struct{}{}
		}
	}
	return &NSE{loc: cfg.Location, open: cfg.SessionOpen, close: cfg.SessionClose, holidays: holidays}, nil
}

// Status classifies now.
func (c *NSE) Status(now time.Time) Status {
	local := now.In(c.loc)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return Status{Reason: "weekend"}
	}
	if _, ok := c.holidays[local.Format("2006-01-02")]; ok {
		return Status{Reason: "exchange holiday"}
	}
	if local.Before(c.open.On(local, c.loc)) {
		return Status{Reason: "before session open " + c.open.String()}
	}
	if !local.Before(c.close.On(local, c.loc)) {
		return Status{Reason: "after session close " + c.close.String()}
	}
	return Status{Open: true, Reason: "session open"}
}

// IsOpen reports whether the session is open.
func (c *NSE) IsOpen(now time.Time) bool {
	return c.Status(now).Open
}

// TimeUntilClose returns time left in the session, zero when closed.
func (c *NSE) TimeUntilClose(now time.Time) time.Duration {
	if !c.IsOpen(now) {
		return 0
	}
	return c.close.On(now, c.loc).Sub(now)
}

// Location returns the market timezone.
func (c *NSE) Location() *time.Location {
	return c.loc
}

// SessionClose returns the published close time.
func (c *NSE) SessionClose() TimeOfDay {
	return c.close
}
