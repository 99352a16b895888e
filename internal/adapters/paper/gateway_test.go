package paper

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionsBot/internal/domain"
	"optionsBot/internal/ports"
)

type mockLogger struct{ warnMsgs []string }

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnMsgs = append(m.warnMsgs, msg)
}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newGateway(t *testing.T, slippage float64) (*Gateway, *SimFeed, *mockLogger) {
	t.Helper()
	feed := NewSimFeed(1, map[string]float64{"NIFTY": 25000, "NIFTY25OCT25000CE": 120}, 0)
	logger := &mockLogger{}
	g, err := New(Config{Quotes: feed, Slippage: slippage, Logger: logger})
	require.NoError(t, err)
	return g, feed, logger
}

func market(symbol string, side domain.OrderSide, qty float64, clientID string) ports.OrderRequest {
	return ports.OrderRequest{Symbol: symbol, Side: side, Quantity: qty, Type: ports.OrderTypeMarket, ClientOrderID: clientID}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Logger: &mockLogger{}})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
	_, err = New(Config{Quotes: NewSimFeed(1, nil, 0)})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
	_, err = New(Config{Quotes: NewSimFeed(1, nil, 0), Logger: &mockLogger{}, Slippage: -1})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestMarketOrder_FillsAtQuoteWithSlippage(t *testing.T) {
	g, _, _ := newGateway(t, 0.5)
	ctx := context.Background()

	id, err := g.SubmitEntry(ctx, market("NIFTY", domain.Buy, 50, "pos1-entry"))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	st, err := g.QueryOrderStatus(ctx, ports.OrderRef{ClientOrderID: "pos1-entry"})
	require.NoError(t, err)
	assert.Equal(t, ports.OrderFilled, st.State)
	assert.Equal(t, 50.0, st.FilledQty)
	assert.Equal(t, 25000.5, st.AvgPrice)
	assert.Equal(t, id, st.BrokerOrderID)

	pos, err := g.GetPosition(ctx, "NIFTY")
	require.NoError(t, err)
	assert.Equal(t, 50.0, pos.Quantity)
	assert.Equal(t, 25000.5, pos.AvgPrice)

	_, err = g.SubmitExit(ctx, market("NIFTY", domain.Sell, 50, "pos1-exit-1"))
	require.NoError(t, err)
	st, err = g.QueryOrderStatus(ctx, ports.OrderRef{BrokerOrderID: "unknown", ClientOrderID: "pos1-exit-1"})
	require.NoError(t, err)
	assert.Equal(t, 24999.5, st.AvgPrice)

	pos, err = g.GetPosition(ctx, "NIFTY")
	require.NoError(t, err)
	assert.Zero(t, pos.Quantity)
	assert.Zero(t, pos.AvgPrice)
}

func TestShortPosition_IsNegative(t *testing.T) {
	g, feed, _ := newGateway(t, 0)
	ctx := context.Background()

	_, err := g.SubmitEntry(ctx, market("NIFTY", domain.Sell, 50, "a"))
	require.NoError(t, err)
	feed.Set("NIFTY", 25100)
	_, err = g.SubmitEntry(ctx, market("NIFTY", domain.Sell, 50, "b"))
	require.NoError(t, err)

	pos, err := g.GetPosition(ctx, "NIFTY")
	require.NoError(t, err)
	assert.Equal(t, -100.0, pos.Quantity)
	assert.Equal(t, 25050.0, pos.AvgPrice)
}

func TestDuplicateClientOrderID_DoesNotFillTwice(t *testing.T) {
	g, _, logger := newGateway(t, 0)
	ctx := context.Background()

	first, err := g.SubmitExit(ctx, market("NIFTY", domain.Sell, 50, "pos1-exit-1"))
	require.NoError(t, err)
	second, err := g.SubmitExit(ctx, market("NIFTY", domain.Sell, 50, "pos1-exit-1"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, g.Orders(), 1)
	assert.Len(t, logger.warnMsgs, 1)
	pos, _ := g.GetPosition(ctx, "NIFTY")
	assert.Equal(t, -50.0, pos.Quantity)
}

func TestInvalidRequests_AreRejected(t *testing.T) {
	g, _, _ := newGateway(t, 0)
	ctx := context.Background()

	tests := []struct {
		name string
		req  ports.OrderRequest
		want error
	}{
		{"empty symbol", market("", domain.Buy, 1, "x"), ports.ErrInvalidRequest},
		{"zero quantity", market("NIFTY", domain.Buy, 0, "x"), ports.ErrInvalidRequest},
		{"bad side", market("NIFTY", "HOLD", 1, "x"), ports.ErrInvalidRequest},
		{"limit without price", ports.OrderRequest{Symbol: "NIFTY", Side: domain.Buy, Quantity: 1, Type: ports.OrderTypeLimit}, ports.ErrInvalidRequest},
		{"unknown symbol", market("SENSEX", domain.Buy, 1, "x"), ports.ErrSymbolUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.SubmitEntry(ctx, tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, ports.IsRejected(err))
		})
	}
	assert.Empty(t, g.Orders())
}

func TestInjectedFaults(t *testing.T) {
	g, _, _ := newGateway(t, 0)
	ctx := context.Background()
	timeout := fmt.Errorf("%w: read tcp: i/o timeout", ports.ErrTimeout)

	g.InjectFault(OpExit, Fault{Err: ports.ErrExchangeUnavailable}, Fault{Err: timeout, Landed: true})

	_, err := g.SubmitExit(ctx, market("NIFTY", domain.Sell, 50, "pos1-exit-1"))
	assert.ErrorIs(t, err, ports.ErrExchangeUnavailable)
	st, _ := g.QueryOrderStatus(ctx, ports.OrderRef{ClientOrderID: "pos1-exit-1"})
	assert.Equal(t, ports.OrderNotFound, st.State)

	_, err = g.SubmitExit(ctx, market("NIFTY", domain.Sell, 50, "pos1-exit-2"))
	assert.True(t, ports.IsAmbiguous(err))
	st, _ = g.QueryOrderStatus(ctx, ports.OrderRef{ClientOrderID: "pos1-exit-2"})
	assert.Equal(t, ports.OrderFilled, st.State, "landed fault still executes the order")

	_, err = g.SubmitExit(ctx, market("NIFTY", domain.Sell, 50, "pos1-exit-3"))
	assert.NoError(t, err)

	g.InjectFault(OpPosition, Fault{Err: ports.ErrConnectionFailed})
	_, err = g.GetPosition(ctx, "NIFTY")
	assert.ErrorIs(t, err, ports.ErrConnectionFailed)
	_, err = g.GetPosition(ctx, "NIFTY")
	assert.NoError(t, err)

	g.InjectFault(OpQuote, Fault{Err: errors.New("feed down")})
	_, err = g.GetLastPrice(ctx, "NIFTY")
	assert.Error(t, err)
}

func TestLimitOrder_RestsUntilMarketable(t *testing.T) {
	g, feed, _ := newGateway(t, 0)
	ctx := context.Background()

	req := ports.OrderRequest{Symbol: "NIFTY25OCT25000CE", Side: domain.Buy, Quantity: 75, Type: ports.OrderTypeLimit, Price: 110, ClientOrderID: "p-entry"}
	_, err := g.SubmitEntry(ctx, req)
	require.NoError(t, err)

	st, err := g.QueryOrderStatus(ctx, ports.OrderRef{ClientOrderID: "p-entry"})
	require.NoError(t, err)
	assert.Equal(t, ports.OrderPending, st.State)

	feed.Set("NIFTY25OCT25000CE", 109)
	st, err = g.QueryOrderStatus(ctx, ports.OrderRef{ClientOrderID: "p-entry"})
	require.NoError(t, err)
	assert.Equal(t, ports.OrderFilled, st.State)
	assert.Equal(t, 110.0, st.AvgPrice)
}

func TestCancel(t *testing.T) {
	g, _, _ := newGateway(t, 0)
	ctx := context.Background()

	req := ports.OrderRequest{Symbol: "NIFTY", Side: domain.Sell, Quantity: 50, Type: ports.OrderTypeLimit, Price: 26000, ClientOrderID: "c1"}
	_, err := g.SubmitEntry(ctx, req)
	require.NoError(t, err)
	require.NoError(t, g.Cancel(ctx, ports.OrderRef{ClientOrderID: "c1"}))

	st, _ := g.QueryOrderStatus(ctx, ports.OrderRef{ClientOrderID: "c1"})
	assert.Equal(t, ports.OrderCancelled, st.State)
	assert.ErrorIs(t, g.Cancel(ctx, ports.OrderRef{ClientOrderID: "nope"}), ports.ErrOrderNotFound)

	g.InjectFault(OpCancel, Fault{Err: ports.ErrConnectionFailed})
	assert.ErrorIs(t, g.Cancel(ctx, ports.OrderRef{ClientOrderID: "c1"}), ports.ErrConnectionFailed)
}

func TestCanceledContext(t *testing.T) {
	g, _, _ := newGateway(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.SubmitEntry(ctx, market("NIFTY", domain.Buy, 1, "x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSimFeed(t *testing.T) {
	ctx := context.Background()
	a := NewSimFeed(42, map[string]float64{"NIFTY": 25000}, 0.05)
	b := NewSimFeed(42, map[string]float64{"NIFTY": 25000}, 0.05)

	prev := 25000.0
	for i := 0; i < 200; i++ {
		pa, err := a.GetLastPrice(ctx, "NIFTY")
		require.NoError(t, err)
		pb, _ := b.GetLastPrice(ctx, "NIFTY")
		assert.Equal(t, pa, pb, "same seed, same walk")
		assert.LessOrEqual(t, abs(pa-prev), prev*0.0005+0.05)
		prev = pa
	}

	_, err := a.GetLastPrice(ctx, "SENSEX")
	assert.ErrorIs(t, err, ports.ErrSymbolUnknown)

	frozen := NewSimFeed(1, map[string]float64{"X": 10}, 0)
	for i := 0; i < 3; i++ {
		p, _ := frozen.GetLastPrice(ctx, "X")
		assert.Equal(t, 10.0, p)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
