package position

import (
	"context"
	"fmt"
	"math"
	"sort"

	"optionsBot/internal/calendar"
	"optionsBot/internal/domain"
	"optionsBot/internal/ports"
	"optionsBot/internal/risk"
)

// Recover restores state after a restart. The session is seeded from the
// ledger and any active snapshot is checked against the broker before the
// control loops start: the broker's fill and position record win over the
// snapshot's levels.
func (m *Manager) Recover(ctx context.Context) error {
	const op = "Recover"
	now := m.clock()
	loc := m.cal.Location()

	stats, err := m.ledger.DayStats(ctx, calendar.DayStart(now, loc))
	if err != nil {
		m.logger.Warn(ctx, op+": session stats unavailable, starting empty", map[string]interface{}{"error": err.Error()})
		stats = nil
	}
	m.lock.With(func() {
		m.session = risk.NewSessionState(now, loc)
		m.session.Seed(stats, m.checker.Config())
	})
	if stats != nil {
		m.logger.Info(ctx, op+": session restored", map[string]interface{}{
			"realizedPNL":       stats.RealizedPNL,
			"trades":            stats.Trades,
			"consecutiveLosses": stats.ConsecutiveLosses,
		})
	}

	snaps, err := m.store.LoadActive(ctx)
	if err != nil {
		return fmt.Errorf("%s: load snapshots: %w", op, err)
	}
	if len(snaps) == 0 {
		m.logger.Info(ctx, op+": no active position")
		return nil
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].EntryTime.After(snaps[j].EntryTime) })
	if len(snaps) > 1 {
		ids := make([]string, 0, len(snaps))
		for _, s := range snaps {
			ids = append(ids, s.ID)
		}
		m.lock.With(func() {
			m.haltLocked(fmt.Sprintf("%v: %d active positions found: %v", ports.ErrInvariantViolation, len(snaps), ids))
		})
		m.flushAlerts(ctx)
	}

	p := snaps[0].Clone()
	m.logger.Info(ctx, op+": active snapshot found, querying broker", map[string]interface{}{
		"positionID": p.ID,
		"symbol":     p.Symbol,
		"status":     p.Status,
	})

	if p.Status == domain.StatusPendingEntry {
		keep, err := m.recoverPendingEntry(ctx, p)
		if err != nil || !keep {
			return err
		}
	}

	bp, err := m.getPosition(ctx, p.Symbol)
	if err != nil {
		return fmt.Errorf("%s: broker position for %s: %w", op, p.Symbol, err)
	}

	if isFlat(bp) {
		return m.recoverFlat(ctx, p)
	}

	if (bp.Quantity > 0) != (p.Side == domain.Long) {
		m.lock.With(func() {
			m.haltLocked(fmt.Sprintf("%v: broker holds %.2f %s but snapshot %s is %s", ports.ErrInvariantViolation, bp.Quantity, p.Symbol, p.ID, p.Side))
		})
	}
	if bp.AvgPrice > 0 {
		rebase(p, bp.AvgPrice, m.cfg.Policy.TrailStepPct)
	}
	if qty := math.Abs(bp.Quantity); math.Abs(qty-p.Quantity) > epsilon {
		m.logger.Warn(ctx, op+": adopting broker quantity", map[string]interface{}{"snapshot": p.Quantity, "broker": qty})
		p.Quantity = qty
	}
	if p.Status == domain.StatusClosing {
		p.ExitUnconfirmed = p.ExitClientOrderID != ""
	}
	p.MarkToMarket(p.CurrentPrice)

	m.lock.With(func() {
		m.active = p
		m.closeInFlight = false
		m.nextCloseAt = now
		m.saveLocked(ctx, p)
	})
	m.flushAlerts(ctx)
	m.logger.Info(ctx, op+": position resumed", map[string]interface{}{
		"positionID": p.ID,
		"status":     p.Status,
		"entry":      p.EntryPrice,
		"stop":       p.StopLoss,
		"target":     p.Target,
	})
	return nil
}

// recoverPendingEntry resolves an entry that was in flight at the crash. A
// still-working order is cancelled; if the cancel cannot be confirmed the
// snapshot is kept and recovery fails so nothing trades beside it.
func (m *Manager) recoverPendingEntry(ctx context.Context, p *domain.Position) (bool, error) {
	ref := ports.OrderRef{Symbol: p.Symbol, BrokerOrderID: p.EntryOrderID, ClientOrderID: p.EntryClientOrderID}
	st, err := m.queryOrder(ctx, ref)
	if err != nil {
		return false, fmt.Errorf("Recover: entry order %s: %w", p.EntryClientOrderID, err)
	}
	if st.State == ports.OrderPending {
		m.logger.Warn(ctx, "Recover: entry still working at the broker, cancelling", map[string]interface{}{
			"positionID":    p.ID,
			"clientOrderID": p.EntryClientOrderID,
		})
		st, err = m.cancelEntry(ctx, ref)
		if err != nil {
			m.lock.With(func() {
				m.alerts = append(m.alerts, alert{title: "Entry order unresolved", message: err.Error()})
			})
			m.flushAlerts(ctx)
			return false, ports.Retryable("Recover", err)
		}
	}
	if st.State != ports.OrderFilled && st.FilledQty <= 0 {
		m.logger.Info(ctx, "Recover: entry never filled, discarding", map[string]interface{}{"positionID": p.ID, "state": st.State})
		if err := m.store.Delete(ctx, p.ID); err != nil {
			return false, fmt.Errorf("Recover: delete snapshot %s: %w", p.ID, err)
		}
		return false, nil
	}
	p.Status = domain.StatusOpen
	if st.BrokerOrderID != "" {
		p.EntryOrderID = st.BrokerOrderID
	}
	if st.FilledQty > 0 && st.FilledQty < p.Quantity-epsilon {
		p.Quantity = st.FilledQty
	}
	if st.AvgPrice > 0 {
		rebase(p, st.AvgPrice, m.cfg.Policy.TrailStepPct)
	}
	return true, nil
}

// recoverFlat finalizes a snapshot the broker no longer holds.
func (m *Manager) recoverFlat(ctx context.Context, p *domain.Position) error {
	now := m.clock()
	var orderID string
	if p.Status == domain.StatusClosing && p.ExitClientOrderID != "" {
		if st, err := m.queryOrder(ctx, ports.OrderRef{Symbol: p.Symbol, BrokerOrderID: p.ExitOrderID, ClientOrderID: p.ExitClientOrderID}); err == nil && st.State == ports.OrderFilled {
			orderID = st.BrokerOrderID
		}
	}
	if p.Status != domain.StatusClosing {
		p.Status = domain.StatusClosing
		p.PendingExitReason = domain.ExitManualClose
		p.PendingExitPrice = p.CurrentPrice
		p.ExitDecidedAt = now
	}

	m.logger.Warn(ctx, "Recover: broker is flat, closing snapshot", map[string]interface{}{
		"positionID": p.ID,
		"reason":     p.PendingExitReason,
		"exitPrice":  p.PendingExitPrice,
	})
	m.lock.With(func() {
		m.active = p
		m.closeInFlight = true
	})
	m.finalize(ctx, p.ID, orderID, "", now)
	m.DrainLedger(ctx)
	return nil
}
