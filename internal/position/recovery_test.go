package position

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionsBot/internal/domain"
	"optionsBot/internal/ports"
	"optionsBot/internal/risk"
)

func snapshot(status domain.PositionStatus) *domain.Position {
	return &domain.Position{
		ID:                 "pos9",
		Symbol:             "NIFTY",
		Side:               domain.Long,
		Quantity:           50,
		EntryPrice:         25000,
		CurrentPrice:       25020,
		StopLoss:           24975,
		InitialStop:        24975,
		Target:             25040,
		TrailStep:          50,
		Status:             status,
		EntryTime:          testStart.Add(-time.Hour),
		EntryClientOrderID: "pos9-entry",
	}
}

func TestRecover_OpenRebasedToBrokerFill(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Save(context.Background(), snapshot(domain.StatusOpen)))
	h.gw.setPosition("NIFTY", 50, 25010)

	require.NoError(t, h.m.Recover(context.Background()))

	p := h.m.Active()
	require.NotNil(t, p)
	assert.Equal(t, domain.StatusOpen, p.Status)
	assert.Equal(t, 25010.0, p.EntryPrice)
	assert.Equal(t, 24985.0, p.StopLoss)
	assert.Equal(t, 24985.0, p.InitialStop)
	assert.Equal(t, 25050.0, p.Target)

	h.tick(t, 25050, time.Second)
	closed := h.m.Status().LastClosed
	require.NotNil(t, closed)
	assert.Equal(t, domain.ExitTargetHit, closed.ExitReason)
	assert.Equal(t, 2000.0, closed.RealizedPNL)
}

func TestRecover_OpenButBrokerFlat(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Save(context.Background(), snapshot(domain.StatusOpen)))

	require.NoError(t, h.m.Recover(context.Background()))

	assert.Nil(t, h.m.Active())
	closed := h.m.Status().LastClosed
	require.NotNil(t, closed)
	assert.Equal(t, domain.ExitManualClose, closed.ExitReason)
	assert.Equal(t, 25020.0, closed.ExitPrice)
	assert.NotNil(t, h.ledger.trade("pos9"))
	assert.Empty(t, h.gw.exitSubmissions())

	snaps, err := h.store.LoadActive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestRecover_ClosingExitLandedBeforeCrash(t *testing.T) {
	h := newHarness(t)
	snap := snapshot(domain.StatusClosing)
	snap.PendingExitReason = domain.ExitStopHit
	snap.PendingExitPrice = 24975
	snap.ExitAttempts = 1
	snap.ExitClientOrderID = "pos9-exit-1"
	snap.ExitUnconfirmed = true
	require.NoError(t, h.store.Save(context.Background(), snap))
	h.gw.orders["pos9-exit-1"] = &ports.OrderStatus{BrokerOrderID: "B77", State: ports.OrderFilled, FilledQty: 50}

	require.NoError(t, h.m.Recover(context.Background()))

	closed := h.m.Status().LastClosed
	require.NotNil(t, closed)
	assert.Equal(t, domain.ExitStopHit, closed.ExitReason)
	assert.Equal(t, 24975.0, closed.ExitPrice)
	assert.Equal(t, "B77", closed.ExitOrderID)
	assert.Empty(t, h.gw.exitSubmissions())
}

func TestRecover_ClosingStillHeldQueriesBeforeResubmit(t *testing.T) {
	h := newHarness(t)
	snap := snapshot(domain.StatusClosing)
	snap.PendingExitReason = domain.ExitTargetHit
	snap.PendingExitPrice = 25040
	snap.ExitAttempts = 1
	snap.ExitClientOrderID = "pos9-exit-1"
	require.NoError(t, h.store.Save(context.Background(), snap))
	h.gw.setPosition("NIFTY", 50, 25000)

	require.NoError(t, h.m.Recover(context.Background()))
	p := h.m.Active()
	require.NotNil(t, p)
	assert.Equal(t, domain.StatusClosing, p.Status)
	assert.True(t, p.ExitUnconfirmed)

	h.m.Heartbeat(context.Background(), testStart)

	exits := h.gw.exitSubmissions()
	require.Len(t, exits, 1)
	assert.Equal(t, "pos9-exit-2", exits[0].ClientOrderID)
	closed := h.m.Status().LastClosed
	require.NotNil(t, closed)
	assert.Equal(t, domain.ExitTargetHit, closed.ExitReason)
	assert.Equal(t, 25040.0, closed.ExitPrice)
}

func TestRecover_PendingEntry(t *testing.T) {
	t.Run("never reached the broker", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.store.Save(context.Background(), snapshot(domain.StatusPendingEntry)))

		require.NoError(t, h.m.Recover(context.Background()))
		assert.False(t, h.m.HasActive())
		snaps, _ := h.store.LoadActive(context.Background())
		assert.Empty(t, snaps)
		assert.Empty(t, h.ledger.trades)
	})

	t.Run("filled before the crash", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.store.Save(context.Background(), snapshot(domain.StatusPendingEntry)))
		h.gw.orders["pos9-entry"] = &ports.OrderStatus{BrokerOrderID: "B5", State: ports.OrderFilled, FilledQty: 50, AvgPrice: 25002}
		h.gw.setPosition("NIFTY", 50, 25002)

		require.NoError(t, h.m.Recover(context.Background()))
		p := h.m.Active()
		require.NotNil(t, p)
		assert.Equal(t, domain.StatusOpen, p.Status)
		assert.Equal(t, "B5", p.EntryOrderID)
		assert.Equal(t, 25002.0, p.EntryPrice)
		assert.Equal(t, 24977.0, p.StopLoss)
	})

	t.Run("still working is cancelled", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.store.Save(context.Background(), snapshot(domain.StatusPendingEntry)))
		h.gw.orders["pos9-entry"] = &ports.OrderStatus{BrokerOrderID: "B5", State: ports.OrderPending}

		require.NoError(t, h.m.Recover(context.Background()))
		assert.Equal(t, 1, h.gw.cancels())
		assert.Equal(t, ports.OrderCancelled, h.gw.orders["pos9-entry"].State)
		assert.False(t, h.m.HasActive())
		assert.True(t, h.m.Admitting())
		snaps, _ := h.store.LoadActive(context.Background())
		assert.Empty(t, snaps)
	})

	t.Run("partial fill before cancel is managed", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.store.Save(context.Background(), snapshot(domain.StatusPendingEntry)))
		h.gw.orders["pos9-entry"] = &ports.OrderStatus{BrokerOrderID: "B5", State: ports.OrderPending, FilledQty: 20, AvgPrice: 25001}
		h.gw.setPosition("NIFTY", 20, 25001)

		require.NoError(t, h.m.Recover(context.Background()))
		p := h.m.Active()
		require.NotNil(t, p)
		assert.Equal(t, domain.StatusOpen, p.Status)
		assert.Equal(t, 20.0, p.Quantity)
		assert.Equal(t, 25001.0, p.EntryPrice)
	})

	t.Run("unconfirmed cancel keeps the snapshot and fails", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.store.Save(context.Background(), snapshot(domain.StatusPendingEntry)))
		h.gw.orders["pos9-entry"] = &ports.OrderStatus{BrokerOrderID: "B5", State: ports.OrderPending}
		h.gw.ignoreCancel = true

		err := h.m.Recover(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrEntryUnresolved)
		assert.True(t, ports.IsRetryable(err))
		assert.Equal(t, 1, h.alerts.count())
		assert.False(t, h.m.HasActive())
		snaps, _ := h.store.LoadActive(context.Background())
		assert.Len(t, snaps, 1)
	})
}

func TestRecover_BrokerUnavailable(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Save(context.Background(), snapshot(domain.StatusOpen)))
	h.gw.positionErr = ports.Retryable("position", ports.ErrExchangeUnavailable)

	err := h.m.Recover(context.Background())
	require.Error(t, err)
	assert.True(t, ports.IsRetryable(err))
	assert.False(t, h.m.HasActive(), "snapshot is not trusted without the broker")
}

func TestRecover_MultipleActiveSnapshotsHalt(t *testing.T) {
	h := newHarness(t)
	older := snapshot(domain.StatusOpen)
	older.ID = "pos8"
	older.EntryTime = testStart.Add(-2 * time.Hour)
	require.NoError(t, h.store.Save(context.Background(), older))
	require.NoError(t, h.store.Save(context.Background(), snapshot(domain.StatusOpen)))
	h.gw.setPosition("NIFTY", 50, 25000)

	require.NoError(t, h.m.Recover(context.Background()))

	st := h.m.Status()
	assert.True(t, st.Halted)
	assert.Contains(t, st.HaltReason, "2 active positions")
	require.NotNil(t, st.Position)
	assert.Equal(t, "pos9", st.Position.ID)
	assert.Equal(t, 1, h.alerts.count())
}

func TestRecover_SeedsSessionFromLedger(t *testing.T) {
	h := newHarness(t)
	h.ledger.dayStats = &ports.DayStats{
		RealizedPNL:       -1800,
		Trades:            3,
		ConsecutiveLosses: 3,
		LastExitByRoot:    map[string]time.Time{"NIFTY": testStart.Add(-time.Hour)},
	}

	require.NoError(t, h.m.Recover(context.Background()))
	st := h.m.Status()
	assert.True(t, st.Paused)
	assert.Equal(t, -1800.0, st.Session.RealizedPNL)

	_, err := h.m.Admit(context.Background(), niftyCandidate())
	assert.Equal(t, risk.ReasonTradingPaused, rejectionReason(t, err))

	require.NoError(t, h.m.Resume(context.Background()))
	h.admit(t, niftyCandidate())
}
