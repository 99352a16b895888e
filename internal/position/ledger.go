package position

import (
	"context"

	"optionsBot/internal/domain"
)

func (m *Manager) enqueueTrade(t *domain.Trade) {
	m.ledgerMu.Lock()
	m.pendingTrades = append(m.pendingTrades, t)
	m.ledgerMu.Unlock()
}

// DrainLedger delivers queued closed trades. Failed records stay queued and
// are retried on the next drain; the ledger is idempotent on position id so
// redelivery is harmless. It returns the number still queued.
func (m *Manager) DrainLedger(ctx context.Context) int {
	if !m.drainMu.TryLock() {
		return m.PendingTrades()
	}
	defer m.drainMu.Unlock()

	m.ledgerMu.Lock()
	batch := m.pendingTrades
	m.pendingTrades = nil
	m.ledgerMu.Unlock()

	var failed []*domain.Trade
	for _, t := range batch {
		if err := m.ledger.Record(ctx, t); err != nil {
			m.logger.Warn(ctx, "ledger record failed, will retry", map[string]interface{}{
				"positionID": t.PositionID,
				"error":      err.Error(),
			})
			failed = append(failed, t)
		}
	}

	m.ledgerMu.Lock()
	defer m.ledgerMu.Unlock()
	if len(failed) > 0 {
		m.pendingTrades = append(failed, m.pendingTrades...)
	}
	return len(m.pendingTrades)
}

// PendingTrades returns how many closed trades await ledger delivery.
func (m *Manager) PendingTrades() int {
	m.ledgerMu.Lock()
	defer m.ledgerMu.Unlock()
	return len(m.pendingTrades)
}
