// Package position implements the position lifecycle manager: it owns the
// single active position, applies the trailing policy on every tick,
// decides exits and reconciles them with the broker.
package position

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"optionsBot/internal/calendar"
	"optionsBot/internal/domain"
	"optionsBot/internal/ports"
	"optionsBot/internal/retry"
	"optionsBot/internal/risk"
)

// Config holds the manager's policy and broker-call settings.
type Config struct {
	Policy           PolicyConfig
	Risk             risk.RiskConfig
	EntryRetry       retry.Policy  // bounded retry for entry submission
	CloseRetry       retry.Policy  // backoff between close attempts; attempts are unbounded
	MaxCloseAttempts int           // consecutive close failures before escalation
	BrokerTimeout    time.Duration // per broker call
	ReconcileGrace   time.Duration // minimum position age before a flat broker book closes it
	EntryOrderType   ports.OrderType
	EntryFillTimeout time.Duration // how long a working entry may rest before it is cancelled
	EntryPoll        time.Duration // status query interval while the entry works
}

// Validate checks the config.
func (c Config) Validate() error {
	var errs []error
	if err := c.Policy.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Risk.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.MaxCloseAttempts < 1 {
		errs = append(errs, errors.New("max close attempts must be at least 1"))
	}
	if c.BrokerTimeout < 0 {
		errs = append(errs, errors.New("broker timeout must not be negative"))
	}
	if c.EntryFillTimeout < 0 || c.EntryPoll < 0 {
		errs = append(errs, errors.New("entry fill timeout and poll interval must not be negative"))
	}
	return errors.Join(errs...)
}

// Dependencies are the collaborators the manager drives.
type Dependencies struct {
	Gateway  ports.OrderGateway
	Calendar ports.MarketCalendar
	Ledger   ports.TradeLedger
	Store    ports.PositionStore // defaults to an in-memory store
	Alerter  ports.Alerter       // optional
	Logger   ports.Logger
	Metrics  ports.Metrics // optional
	Clock    func() time.Time
	NewID    func() string
}

// Status is the operator-facing view of the manager.
type Status struct {
	Position      *domain.Position  `json:"position"`
	LastClosed    *domain.Position  `json:"last_closed,omitempty"`
	Session       risk.SessionState `json:"session"`
	Paused        bool              `json:"paused"`
	PauseReason   string            `json:"pause_reason,omitempty"`
	Halted        bool              `json:"halted"`
	HaltReason    string            `json:"halt_reason,omitempty"`
	LastError     string            `json:"last_error,omitempty"`
	LastErrorAt   time.Time         `json:"last_error_at,omitempty"`
	PendingLedger int               `json:"pending_ledger"`
}

type alert struct {
	title   string
	message string
}

type closeAttempt struct {
	pos *domain.Position
	now time.Time
}

// Manager is the position lifecycle manager.
type Manager struct {
	cfg     Config
	checker *risk.Checker
	gateway ports.OrderGateway
	cal     ports.MarketCalendar
	ledger  ports.TradeLedger
	store   ports.PositionStore
	alerter ports.Alerter
	logger  ports.Logger
	metrics ports.Metrics
	clock   func() time.Time
	newID   func() string

	lock          executeLock
	active        *domain.Position
	lastClosed    *domain.Position
	session       *risk.SessionState
	closeInFlight bool
	nextCloseAt   time.Time
	halted        bool
	haltReason    string
	escalated     bool
	lastErr       string
	lastErrAt     time.Time
	alerts        []alert

	drainMu       sync.Mutex
	ledgerMu      sync.Mutex
	pendingTrades []*domain.Trade
}

// NewManager validates cfg and builds a manager with an empty session.
func NewManager(cfg Config, deps Dependencies) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrConfigurationError, err)
	}
	if deps.Gateway == nil || deps.Calendar == nil || deps.Ledger == nil || deps.Logger == nil {
		return nil, fmt.Errorf("%w: gateway, calendar, ledger and logger are required", ports.ErrConfigurationError)
	}
	if deps.Store == nil {
		deps.Store = NewMemoryStore()
	}
	if deps.Metrics == nil {
		deps.Metrics = ports.NopMetrics{}
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = newPositionID
	}
	if cfg.EntryOrderType == "" {
		cfg.EntryOrderType = ports.OrderTypeMarket
	}
	if cfg.EntryFillTimeout == 0 {
		cfg.EntryFillTimeout = 30 * time.Second
	}
	if cfg.EntryPoll == 0 {
		cfg.EntryPoll = 500 * time.Millisecond
	}

	return &Manager{
		cfg:     cfg,
		checker: risk.NewChecker(cfg.Risk, deps.Calendar),
		gateway: deps.Gateway,
		cal:     deps.Calendar,
		ledger:  deps.Ledger,
		store:   deps.Store,
		alerter: deps.Alerter,
		logger:  deps.Logger,
		metrics: deps.Metrics,
		clock:   deps.Clock,
		newID:   deps.NewID,
		session: risk.NewSessionState(deps.Clock(), deps.Calendar.Location()),
	}, nil
}

// newPositionID returns a compact random id; client order ids derived from
// it stay within the 36 characters brokers accept.
func newPositionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
}

func entryClientOrderID(posID string) string {
	return posID + "-entry"
}

func exitClientOrderID(posID string, attempt int) string {
	return fmt.Sprintf("%s-exit-%d", posID, attempt)
}

// Admit runs the admission checks for cand, reserves the active slot in
// PENDING_ENTRY and submits the entry order. The returned position is OPEN.
func (m *Manager) Admit(ctx context.Context, cand domain.Candidate) (*domain.Position, error) {
	const op = "Admit"
	now := m.clock()

	var pending *domain.Position
	var err error
	m.lock.With(func() {
		m.rollSessionLocked(ctx, now)
		if m.halted {
			err = risk.Reject(risk.ReasonTradingHalted, "%s", m.haltReason)
			return
		}
		cand, err = m.checker.CheckAdmission(cand, m.session, m.active != nil, now)
		if err != nil {
			return
		}
		p := m.newPosition(cand, now)
		m.active = p
		m.saveLocked(ctx, p)
		pending = p.Clone()
	})
	if err != nil {
		m.metrics.Admission("rejected")
		m.logger.Info(ctx, op+": candidate rejected", map[string]interface{}{
			"symbol": cand.Symbol,
			"side":   cand.Side,
			"reason": err.Error(),
		})
		return nil, err
	}

	m.logger.Info(ctx, op+": slot reserved, submitting entry", map[string]interface{}{
		"positionID": pending.ID,
		"symbol":     pending.Symbol,
		"side":       pending.Side,
		"quantity":   pending.Quantity,
		"entry":      pending.EntryPrice,
		"stop":       pending.StopLoss,
		"target":     pending.Target,
	})

	st, err := m.enter(ctx, pending)
	done := m.clock()

	var opened *domain.Position
	m.lock.With(func() {
		p := m.active
		if p == nil || p.ID != pending.ID {
			err = fmt.Errorf("%w: reserved position %s left the active slot", ports.ErrInvariantViolation, pending.ID)
			return
		}
		if err != nil {
			p.Status = domain.StatusFailed
			m.active = nil
			m.deleteLocked(ctx, p.ID)
			m.recordErrorLocked(err, done)
			if errors.Is(err, ports.ErrEntryUnresolved) {
				m.haltLocked(err.Error())
			}
			return
		}
		p.Status = domain.StatusOpen
		p.EntryOrderID = st.BrokerOrderID
		p.EntryTime = done
		if st.FilledQty > 0 && st.FilledQty < p.Quantity-epsilon {
			m.logger.Warn(ctx, op+": entry partially filled, managing filled quantity", map[string]interface{}{
				"positionID": p.ID,
				"requested":  p.Quantity,
				"filled":     st.FilledQty,
			})
			p.Quantity = st.FilledQty
		}
		if st.AvgPrice > 0 {
			rebase(p, st.AvgPrice, m.cfg.Policy.TrailStepPct)
		}
		p.MarkToMarket(p.EntryPrice)
		m.saveLocked(ctx, p)
		opened = p.Clone()
	})
	m.flushAlerts(ctx)
	if err != nil {
		m.metrics.Admission("failed")
		m.logger.Warn(ctx, op+": entry failed, position discarded", map[string]interface{}{
			"positionID": pending.ID,
			"symbol":     pending.Symbol,
			"error":      err.Error(),
			"class":      ports.ClassOf(err).String(),
		})
		return nil, fmt.Errorf("%s %s: %w", op, pending.Symbol, err)
	}

	m.metrics.Admission("opened")
	m.logger.Info(ctx, op+": position opened", map[string]interface{}{
		"positionID": opened.ID,
		"orderID":    opened.EntryOrderID,
		"entry":      opened.EntryPrice,
	})
	return opened, nil
}

func (m *Manager) newPosition(cand domain.Candidate, now time.Time) *domain.Position {
	id := m.newID()
	return &domain.Position{
		ID:                 id,
		Symbol:             cand.Symbol,
		Side:               cand.Side,
		Quantity:           cand.Quantity,
		EntryPrice:         cand.EntryPrice,
		CurrentPrice:       cand.EntryPrice,
		StopLoss:           cand.StopLoss,
		Target:             cand.Target,
		InitialStop:        cand.StopLoss,
		SupportResistance:  cand.SupportResistance,
		TrailStep:          trailStep(cand.EntryPrice, m.cfg.Policy.TrailStepPct),
		EntryTime:          now,
		Status:             domain.StatusPendingEntry,
		EntryClientOrderID: entryClientOrderID(id),
	}
}

// enter submits the entry with bounded retries and waits for the broker to
// confirm a fill. A submit that timed out is resolved by querying the broker
// with the client order id. The returned status always has a fill.
func (m *Manager) enter(ctx context.Context, p *domain.Position) (*ports.OrderStatus, error) {
	req := ports.OrderRequest{
		Symbol:        p.Symbol,
		Side:          p.Side.EntryOrderSide(),
		Quantity:      p.Quantity,
		Type:          m.cfg.EntryOrderType,
		ClientOrderID: p.EntryClientOrderID,
	}
	if req.Type == ports.OrderTypeLimit {
		req.Price = p.EntryPrice
	}

	var orderID string
	_, err := retry.Do(ctx, m.cfg.EntryRetry, func(ctx context.Context, attempt int) error {
		callCtx, cancel := m.brokerCtx(ctx)
		defer cancel()
		id, err := m.gateway.SubmitEntry(callCtx, req)
		if err != nil {
			m.logger.Warn(ctx, "enter: submit failed", map[string]interface{}{
				"clientOrderID": req.ClientOrderID,
				"attempt":       attempt,
				"error":         err.Error(),
			})
			return err
		}
		orderID = id
		return nil
	})

	ref := ports.OrderRef{Symbol: p.Symbol, BrokerOrderID: orderID, ClientOrderID: p.EntryClientOrderID}
	if err != nil {
		if !ports.IsAmbiguous(err) {
			return nil, err
		}
		st, qerr := m.queryOrder(ctx, ref)
		if qerr != nil || (st.State != ports.OrderFilled && st.State != ports.OrderPending) {
			return nil, err
		}
		m.logger.Info(ctx, "enter: timed-out submit found at broker", map[string]interface{}{
			"clientOrderID": ref.ClientOrderID,
			"state":         st.State,
		})
		ref.BrokerOrderID = st.BrokerOrderID
	}

	st, err := m.awaitEntryFill(ctx, ref)
	if err != nil {
		return nil, err
	}
	if st.BrokerOrderID == "" {
		st.BrokerOrderID = ref.BrokerOrderID
	}
	switch {
	case st.State == ports.OrderFilled:
		if st.FilledQty <= 0 {
			st.FilledQty = p.Quantity
		}
		return st, nil
	case st.FilledQty > 0:
		// Cancelled after a partial fill: the filled part is live.
		return st, nil
	case st.State == ports.OrderPending:
		return nil, ports.Rejected("enter", fmt.Errorf("%w: entry %s not filled within %s", ports.ErrOrderRejected, ref.ClientOrderID, m.cfg.EntryFillTimeout))
	}
	return nil, ports.Rejected("enter", fmt.Errorf("%w: %s %s", ports.ErrOrderRejected, st.State, st.Message))
}

// awaitEntryFill polls the entry until the broker reports a terminal state.
// An order still working at EntryFillTimeout, or when ctx ends, is cancelled
// and the cancel is confirmed with a final query. If the broker cannot
// confirm the order is dead, ErrEntryUnresolved is returned.
func (m *Manager) awaitEntryFill(ctx context.Context, ref ports.OrderRef) (*ports.OrderStatus, error) {
	deadline := time.NewTimer(m.cfg.EntryFillTimeout)
	defer deadline.Stop()
	poll := time.NewTicker(m.cfg.EntryPoll)
	defer poll.Stop()

wait:
	for {
		st, err := m.queryOrder(ctx, ref)
		switch {
		case err != nil:
			m.logger.Warn(ctx, "enter: entry status unavailable", map[string]interface{}{
				"clientOrderID": ref.ClientOrderID,
				"error":         err.Error(),
			})
		case st.State == ports.OrderFilled || st.State == ports.OrderRejected || st.State == ports.OrderCancelled:
			return st, nil
		}
		select {
		case <-ctx.Done():
			break wait
		case <-deadline.C:
			break wait
		case <-poll.C:
		}
	}

	m.logger.Warn(ctx, "enter: entry not filled in time, cancelling", map[string]interface{}{
		"clientOrderID": ref.ClientOrderID,
		"timeout":       m.cfg.EntryFillTimeout.String(),
	})
	return m.cancelEntry(context.WithoutCancel(ctx), ref)
}

// cancelEntry cancels a working entry and reports its final state. A
// cancelled order may carry a partial fill.
func (m *Manager) cancelEntry(ctx context.Context, ref ports.OrderRef) (*ports.OrderStatus, error) {
	callCtx, cancel := m.brokerCtx(ctx)
	cerr := m.gateway.Cancel(callCtx, ref)
	cancel()
	if cerr != nil && !errors.Is(cerr, ports.ErrOrderNotFound) {
		m.logger.Warn(ctx, "entry cancel failed", map[string]interface{}{
			"clientOrderID": ref.ClientOrderID,
			"error":         cerr.Error(),
		})
	}

	st, err := m.queryOrder(ctx, ref)
	if err == nil && st.State != ports.OrderPending {
		if st.State == ports.OrderNotFound {
			st.State = ports.OrderCancelled
		}
		return st, nil
	}
	cause := cerr
	if err != nil {
		cause = err
	}
	return nil, ports.Fatal("enter", fmt.Errorf("%w: entry %s may still be working at the broker: %v", ports.ErrEntryUnresolved, ref.ClientOrderID, cause))
}

// OnTick applies a price tick to the active position: trailing policy,
// invariant check, exit decision, and a close attempt when CLOSING.
// Ticks older than the last applied one are dropped.
func (m *Manager) OnTick(ctx context.Context, tick domain.Tick) error {
	const op = "OnTick"
	var attempt *closeAttempt
	var err error
	m.lock.With(func() {
		m.rollSessionLocked(ctx, tick.Time)
		p := m.active
		if p == nil || p.Symbol != tick.Symbol || p.Status == domain.StatusPendingEntry {
			return
		}
		if tick.Time.Before(p.LastTickTime) {
			m.metrics.TickDropped("stale")
			m.logger.Debug(ctx, op+": stale tick dropped", map[string]interface{}{
				"symbol":   tick.Symbol,
				"tickTime": tick.Time,
				"lastTick": p.LastTickTime,
			})
			return
		}
		if tick.Price <= 0 {
			m.metrics.TickDropped("invalid_price")
			return
		}

		p.LastTickTime = tick.Time
		if p.Status == domain.StatusOpen {
			err = m.updateOpenLocked(ctx, p, tick)
		} else {
			p.MarkToMarket(tick.Price)
		}
		m.metrics.TickApplied(p.Symbol)
		m.saveLocked(ctx, p)
		attempt = m.nextCloseAttemptLocked(tick.Time)
	})
	m.flushAlerts(ctx)
	if attempt != nil {
		m.runClose(ctx, attempt)
	}
	m.DrainLedger(ctx)
	return err
}

func (m *Manager) updateOpenLocked(ctx context.Context, p *domain.Position, tick domain.Tick) error {
	var err error
	next := ApplyTick(*p, tick.Price, m.cfg.Policy)
	if verr := checkInvariants(p, &next); verr != nil {
		err = verr
		m.recordErrorLocked(verr, tick.Time)
		m.haltLocked(verr.Error())
		m.logger.Error(ctx, verr, "OnTick: update rejected, keeping previous levels", map[string]interface{}{
			"positionID": p.ID,
			"price":      tick.Price,
		})
	} else {
		if next.BreakevenApplied && !p.BreakevenApplied {
			m.logger.Info(ctx, "OnTick: breakeven applied", map[string]interface{}{"positionID": p.ID, "stop": next.StopLoss})
		}
		if next.TrailActive && !p.TrailActive {
			m.logger.Info(ctx, "OnTick: trailing activated", map[string]interface{}{"positionID": p.ID, "anchor": next.TrailAnchor})
		}
		*p = next
	}
	p.MarkToMarket(tick.Price)

	if d := ShouldExit(p, tick.Price, tick.Time, m.cal.Location(), m.cfg.Policy); d != nil {
		m.beginCloseLocked(ctx, p, d, tick.Time)
	}
	return err
}

// beginCloseLocked moves p to CLOSING and remembers the decision until the
// broker confirms; the exit condition is not re-evaluated afterwards.
func (m *Manager) beginCloseLocked(ctx context.Context, p *domain.Position, d *ExitDecision, now time.Time) {
	p.Status = domain.StatusClosing
	p.PendingExitReason = d.Reason
	p.PendingExitPrice = d.Price
	p.ExitDecidedAt = now
	m.nextCloseAt = time.Time{}
	m.logger.Info(ctx, "exit decided", map[string]interface{}{
		"positionID": p.ID,
		"symbol":     p.Symbol,
		"reason":     d.Reason,
		"exitPrice":  d.Price,
		"lastPrice":  p.CurrentPrice,
	})
}

func (m *Manager) nextCloseAttemptLocked(now time.Time) *closeAttempt {
	p := m.active
	if p == nil || p.Status != domain.StatusClosing || m.closeInFlight || now.Before(m.nextCloseAt) {
		return nil
	}
	m.closeInFlight = true
	return &closeAttempt{pos: p.Clone(), now: now}
}

// Heartbeat drives time-based work when no fresh quote is available: the
// end-of-day cutoff at the last known price and pending close retries.
func (m *Manager) Heartbeat(ctx context.Context, now time.Time) {
	var attempt *closeAttempt
	m.lock.With(func() {
		m.rollSessionLocked(ctx, now)
		p := m.active
		if p != nil && p.Status == domain.StatusOpen && calendar.AtOrAfter(now, m.cal.Location(), m.cfg.Policy.EODCutoff) {
			m.beginCloseLocked(ctx, p, &ExitDecision{Reason: domain.ExitForcedEOD, Price: p.CurrentPrice}, now)
			m.saveLocked(ctx, p)
		}
		attempt = m.nextCloseAttemptLocked(now)
	})
	m.flushAlerts(ctx)
	if attempt != nil {
		m.runClose(ctx, attempt)
	}
	m.DrainLedger(ctx)
}

// ForceClose closes the active position at its last price as MANUAL_CLOSE.
func (m *Manager) ForceClose(ctx context.Context) error {
	const op = "ForceClose"
	now := m.clock()
	var attempt *closeAttempt
	var err error
	m.lock.With(func() {
		p := m.active
		switch {
		case p == nil:
			err = fmt.Errorf("%s: %w: no active position", op, ports.ErrNotFound)
			return
		case p.Status == domain.StatusPendingEntry:
			err = ports.Rejected(op, fmt.Errorf("%w: entry still pending", ports.ErrInvalidRequest))
			return
		case p.Status == domain.StatusOpen:
			m.beginCloseLocked(ctx, p, &ExitDecision{Reason: domain.ExitManualClose, Price: p.CurrentPrice}, now)
			m.saveLocked(ctx, p)
		}
		m.nextCloseAt = time.Time{}
		attempt = m.nextCloseAttemptLocked(now)
	})
	if err != nil {
		return err
	}
	m.flushAlerts(ctx)
	if attempt != nil {
		m.runClose(ctx, attempt)
	}
	m.DrainLedger(ctx)
	return nil
}

// Resume clears a session pause and a resolved halt. A halt caused by an
// unconfirmed exit stays until that position is closed.
func (m *Manager) Resume(ctx context.Context) error {
	var err error
	m.lock.With(func() {
		if m.escalated && m.active != nil {
			err = fmt.Errorf("%w: exit of %s still unconfirmed", ports.ErrTradingHalted, m.active.ID)
			return
		}
		m.session.Resume()
		m.halted = false
		m.haltReason = ""
	})
	if err != nil {
		return err
	}
	m.metrics.Halted(false)
	m.logger.Info(ctx, "Resume: admissions re-enabled")
	return nil
}

// Halt stops admissions and alerts an operator. It is a no-op while a halt
// is already in force.
func (m *Manager) Halt(ctx context.Context, reason string) {
	m.lock.With(func() {
		m.haltLocked(reason)
	})
	m.flushAlerts(ctx)
}

// Status returns a snapshot for the status query.
func (m *Manager) Status() Status {
	release := m.lock.Hold()
	st := Status{
		Position:    m.active.Clone(),
		LastClosed:  m.lastClosed.Clone(),
		Session:     m.session.Clone(),
		Paused:      m.session.Paused,
		PauseReason: m.session.PauseReason,
		Halted:      m.halted,
		HaltReason:  m.haltReason,
		LastError:   m.lastErr,
		LastErrorAt: m.lastErrAt,
	}
	release()
	st.PendingLedger = m.PendingTrades()
	return st
}

// Active returns a copy of the active position, or nil.
func (m *Manager) Active() *domain.Position {
	release := m.lock.Hold()
	defer release()
	return m.active.Clone()
}

// HasActive reports whether the active slot is occupied.
func (m *Manager) HasActive() bool {
	release := m.lock.Hold()
	defer release()
	return m.active != nil
}

// Admitting reports whether a new candidate could be admitted right now,
// ignoring candidate-specific checks.
func (m *Manager) Admitting() bool {
	release := m.lock.Hold()
	defer release()
	return m.active == nil && !m.halted && !m.session.Paused
}

func (m *Manager) rollSessionLocked(ctx context.Context, now time.Time) {
	if m.session.RollIfNewDay(now, m.cal.Location()) {
		m.metrics.SessionPNL(0)
		m.logger.Info(ctx, "new trading day, session counters reset", map[string]interface{}{"day": m.session.Day})
	}
}

func (m *Manager) haltLocked(reason string) {
	if m.halted {
		return
	}
	m.halted = true
	m.haltReason = reason
	m.metrics.Halted(true)
	m.alerts = append(m.alerts, alert{title: "Trading halted", message: reason})
}

func (m *Manager) recordErrorLocked(err error, now time.Time) {
	m.lastErr = err.Error()
	m.lastErrAt = now
}

func (m *Manager) saveLocked(ctx context.Context, p *domain.Position) {
	if err := m.store.Save(ctx, p.Clone()); err != nil {
		m.logger.Warn(ctx, "position snapshot not saved", map[string]interface{}{"positionID": p.ID, "error": err.Error()})
	}
}

func (m *Manager) deleteLocked(ctx context.Context, id string) {
	if err := m.store.Delete(ctx, id); err != nil {
		m.logger.Warn(ctx, "position snapshot not deleted", map[string]interface{}{"positionID": id, "error": err.Error()})
	}
}

// flushAlerts sends alerts queued under the lock.
func (m *Manager) flushAlerts(ctx context.Context) {
	release := m.lock.Hold()
	queued := m.alerts
	m.alerts = nil
	release()

	for _, a := range queued {
		m.logger.Error(ctx, errors.New(a.message), "ALERT: "+a.title)
		if m.alerter == nil {
			continue
		}
		if err := m.alerter.Alert(ctx, a.title, a.message); err != nil {
			m.logger.Warn(ctx, "alert delivery failed", map[string]interface{}{"title": a.title, "error": err.Error()})
		}
	}
}

func (m *Manager) brokerCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.cfg.BrokerTimeout > 0 {
		return context.WithTimeout(ctx, m.cfg.BrokerTimeout)
	}
	return context.WithCancel(ctx)
}

// queryOrder normalises ErrOrderNotFound into an OrderNotFound status.
func (m *Manager) queryOrder(ctx context.Context, ref ports.OrderRef) (*ports.OrderStatus, error) {
	callCtx, cancel := m.brokerCtx(ctx)
	defer cancel()
	st, err := m.gateway.QueryOrderStatus(callCtx, ref)
	if errors.Is(err, ports.ErrOrderNotFound) {
		return &ports.OrderStatus{State: ports.OrderNotFound}, nil
	}
	if err != nil {
		return nil, err
	}
	if st == nil {
		return &ports.OrderStatus{State: ports.OrderNotFound}, nil
	}
	return st, nil
}

func (m *Manager) getPosition(ctx context.Context, symbol string) (*ports.BrokerPosition, error) {
	callCtx, cancel := m.brokerCtx(ctx)
	defer cancel()
	bp, err := m.gateway.GetPosition(callCtx, symbol)
	if err != nil {
		return nil, err
	}
	if bp == nil {
		return &ports.BrokerPosition{Symbol: symbol}, nil
	}
	return bp, nil
}

func trailStep(entry, pct float64) float64 {
	return round2(entry * pct / 100)
}

// rebase shifts every price level by the difference between the broker's
// fill and the recorded entry. The trail step is recomputed from the fill.
func rebase(p *domain.Position, fill, trailStepPct float64) {
	delta := fill - p.EntryPrice
	if delta > -epsilon && delta < epsilon {
		return
	}
	p.EntryPrice = round2(fill)
	p.TrailStep = trailStep(p.EntryPrice, trailStepPct)
	p.StopLoss = round2(p.StopLoss + delta)
	p.Target = round2(p.Target + delta)
	p.InitialStop = round2(p.InitialStop + delta)
	if p.TrailActive {
		p.TrailAnchor = round2(p.TrailAnchor + delta)
	}
	if p.PendingExitReason != "" && p.PendingExitReason != domain.ExitForcedEOD && p.PendingExitReason != domain.ExitManualClose {
		p.PendingExitPrice = round2(p.PendingExitPrice + delta)
	}
}
