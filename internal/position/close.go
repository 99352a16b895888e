package position

import (
	"context"
	"fmt"
	"math"
	"time"

	"optionsBot/internal/domain"
	"optionsBot/internal/ports"
)

// runClose performs one close attempt outside the execute lock. A previous
// submit whose outcome is unknown is resolved with a status query before a
// new exit order is sent, so a lost response never produces a second order.
func (m *Manager) runClose(ctx context.Context, a *closeAttempt) {
	p := a.pos
	defer m.flushAlerts(ctx)

	if p.ExitUnconfirmed && p.ExitClientOrderID != "" {
		st, err := m.queryOrder(ctx, ports.OrderRef{Symbol: p.Symbol, BrokerOrderID: p.ExitOrderID, ClientOrderID: p.ExitClientOrderID})
		if err != nil {
			m.closeFailed(ctx, p.ID, fmt.Errorf("reconcile exit %s: %w", p.ExitClientOrderID, err), a.now)
			return
		}
		switch st.State {
		case ports.OrderFilled:
			m.logger.Info(ctx, "close: unconfirmed exit found filled", map[string]interface{}{
				"positionID":    p.ID,
				"clientOrderID": p.ExitClientOrderID,
			})
			m.finalize(ctx, p.ID, st.BrokerOrderID, "", a.now)
			return
		case ports.OrderPending:
			m.awaitExit(ctx, p.ID, st.BrokerOrderID, a.now)
			return
		}
		m.logger.Info(ctx, "close: previous exit not live at broker, resubmitting", map[string]interface{}{
			"positionID":    p.ID,
			"clientOrderID": p.ExitClientOrderID,
			"state":         st.State,
		})
	}

	attemptNo := p.ExitAttempts + 1
	clientID := exitClientOrderID(p.ID, attemptNo)
	m.lock.With(func() {
		if cur := m.active; cur != nil && cur.ID == p.ID {
			cur.ExitAttempts = attemptNo
			cur.ExitClientOrderID = clientID
			cur.ExitOrderID = ""
			cur.ExitUnconfirmed = true
			m.saveLocked(ctx, cur)
		}
	})

	req := ports.OrderRequest{
		Symbol:        p.Symbol,
		Side:          p.Side.ExitOrderSide(),
		Quantity:      p.Quantity,
		Type:          ports.OrderTypeMarket,
		ClientOrderID: clientID,
	}
	callCtx, cancel := m.brokerCtx(ctx)
	orderID, err := m.gateway.SubmitExit(callCtx, req)
	cancel()
	if err == nil {
		m.finalize(ctx, p.ID, orderID, "", a.now)
		return
	}

	if ports.IsRejected(err) {
		if bp, perr := m.getPosition(ctx, p.Symbol); perr == nil && isFlat(bp) {
			m.logger.Warn(ctx, "close: exit rejected and broker is flat", map[string]interface{}{
				"positionID": p.ID,
				"error":      err.Error(),
			})
			m.finalize(ctx, p.ID, "", domain.ExitBrokerRejected, a.now)
			return
		}
		m.lock.With(func() {
			if cur := m.active; cur != nil && cur.ID == p.ID {
				cur.ExitUnconfirmed = false
			}
		})
	}
	m.closeFailed(ctx, p.ID, fmt.Errorf("submit exit %s: %w", clientID, err), a.now)
}

// awaitExit records a live exit order and waits for it to fill.
func (m *Manager) awaitExit(ctx context.Context, id, brokerOrderID string, now time.Time) {
	m.lock.With(func() {
		m.closeInFlight = false
		cur := m.active
		if cur == nil || cur.ID != id {
			return
		}
		if brokerOrderID != "" {
			cur.ExitOrderID = brokerOrderID
		}
		m.nextCloseAt = now.Add(m.cfg.CloseRetry.Delay(0))
		m.saveLocked(ctx, cur)
	})
	m.logger.Info(ctx, "close: exit order working at broker", map[string]interface{}{"positionID": id, "orderID": brokerOrderID})
}

// closeFailed keeps the position CLOSING, schedules the next attempt and
// escalates once the failure count reaches MaxCloseAttempts. Retries
// continue after escalation.
func (m *Manager) closeFailed(ctx context.Context, id string, err error, now time.Time) {
	var failures int
	var escalate bool
	m.lock.With(func() {
		m.closeInFlight = false
		cur := m.active
		if cur == nil || cur.ID != id {
			return
		}
		cur.CloseFailures++
		failures = cur.CloseFailures
		m.nextCloseAt = now.Add(m.cfg.CloseRetry.Delay(failures - 1))
		m.recordErrorLocked(err, now)
		m.saveLocked(ctx, cur)

		if failures >= m.cfg.MaxCloseAttempts && !m.escalated {
			m.escalated = true
			escalate = true
			msg := fmt.Sprintf("%s %s %s qty %.2f: %d consecutive close failures, last: %v",
				cur.ID, cur.Side, cur.Symbol, cur.Quantity, failures, err)
			m.haltLocked(fmt.Errorf("%w: %s", ports.ErrCloseEscalated, msg).Error())
			m.alerts = append(m.alerts, alert{title: "Exit not confirmed", message: msg})
		}
	})

	m.metrics.CloseFailed()
	m.logger.Warn(ctx, "close: attempt failed, position stays CLOSING", map[string]interface{}{
		"positionID": id,
		"failures":   failures,
		"class":      ports.ClassOf(err).String(),
		"error":      err.Error(),
	})
	if escalate {
		m.metrics.Escalated()
		m.logger.Error(ctx, ports.Fatal("close", ports.ErrCloseEscalated), "close: escalated to operator", map[string]interface{}{
			"positionID": id,
			"failures":   failures,
		})
	}
}

// finalize transitions the active position to CLOSED at its pinned exit
// price, updates the session and queues the ledger record. reason, when
// set, overrides the remembered exit reason.
func (m *Manager) finalize(ctx context.Context, id, brokerOrderID string, reason domain.ExitReason, now time.Time) {
	var closed *domain.Position
	var sessionPNL float64
	var paused bool
	var pauseReason string
	m.lock.With(func() {
		m.closeInFlight = false
		cur := m.active
		if cur == nil || cur.ID != id {
			return
		}
		if reason == "" {
			reason = cur.PendingExitReason
		}
		cur.ExitReason = reason
		cur.ExitPrice = cur.PendingExitPrice
		if brokerOrderID != "" {
			cur.ExitOrderID = brokerOrderID
		}
		cur.RealizedPNL, cur.RealizedPNLPct = RealizedPNL(cur.Side, cur.EntryPrice, cur.ExitPrice, cur.Quantity)
		cur.Status = domain.StatusClosed
		cur.ExitTime = now
		cur.ExitUnconfirmed = false

		m.session.RecordExit(cur.Symbol, cur.RealizedPNL, now, m.checker.Config())
		sessionPNL = m.session.RealizedPNL
		paused, pauseReason = m.session.Paused, m.session.PauseReason

		m.deleteLocked(ctx, cur.ID)
		m.lastClosed = cur.Clone()
		m.active = nil
		m.escalated = false
		m.nextCloseAt = time.Time{}
		closed = cur
	})
	if closed == nil {
		return
	}

	m.metrics.PositionClosed(closed.ExitReason, closed.RealizedPNL)
	m.metrics.SessionPNL(sessionPNL)
	m.logger.Info(ctx, "position closed", map[string]interface{}{
		"positionID":  closed.ID,
		"symbol":      closed.Symbol,
		"reason":      closed.ExitReason,
		"exitPrice":   closed.ExitPrice,
		"pnl":         closed.RealizedPNL,
		"pnlPct":      closed.RealizedPNLPct,
		"exitOrderID": closed.ExitOrderID,
		"sessionPNL":  sessionPNL,
	})
	if paused {
		m.logger.Warn(ctx, "admissions paused", map[string]interface{}{"reason": pauseReason})
	}
	m.enqueueTrade(domain.TradeFromPosition(closed))
}

// Reconcile compares an OPEN position with the broker's book. A position the
// broker reports flat was closed outside the bot and is finalized as
// MANUAL_CLOSE at the last known price.
func (m *Manager) Reconcile(ctx context.Context) error {
	now := m.clock()
	var snap *domain.Position
	m.lock.With(func() {
		if p := m.active; p != nil && p.Status == domain.StatusOpen && now.Sub(p.EntryTime) >= m.cfg.ReconcileGrace {
			snap = p.Clone()
		}
	})
	if snap == nil {
		return nil
	}

	bp, err := m.getPosition(ctx, snap.Symbol)
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", snap.Symbol, err)
	}
	if !isFlat(bp) {
		if qty := math.Abs(bp.Quantity); math.Abs(qty-snap.Quantity) > epsilon {
			m.logger.Warn(ctx, "reconcile: broker quantity differs", map[string]interface{}{
				"positionID": snap.ID,
				"local":      snap.Quantity,
				"broker":     bp.Quantity,
			})
		}
		return nil
	}

	var flatten bool
	m.lock.With(func() {
		cur := m.active
		if cur == nil || cur.ID != snap.ID || cur.Status != domain.StatusOpen || m.closeInFlight {
			return
		}
		m.beginCloseLocked(ctx, cur, &ExitDecision{Reason: domain.ExitManualClose, Price: cur.CurrentPrice}, now)
		m.closeInFlight = true
		flatten = true
	})
	if flatten {
		m.logger.Warn(ctx, "reconcile: broker reports flat, closing as manual", map[string]interface{}{"positionID": snap.ID})
		m.finalize(ctx, snap.ID, "", "", now)
		m.DrainLedger(ctx)
	}
	return nil
}

func isFlat(bp *ports.BrokerPosition) bool {
	return bp == nil || math.Abs(bp.Quantity) < epsilon
}
