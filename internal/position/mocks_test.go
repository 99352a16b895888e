package position

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"optionsBot/internal/calendar"
	"optionsBot/internal/domain"
	"optionsBot/internal/ports"
	"optionsBot/internal/retry"
	"optionsBot/internal/risk"
)

// Mock implementations
type mockLogger struct {
	mu        sync.Mutex
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

// scriptedFailure makes the next submit fail. landed means the broker
// accepted the order even though the call returned an error.
type scriptedFailure struct {
	err    error
	landed bool
}

type mockGateway struct {
	mu            sync.Mutex
	entryFailures []scriptedFailure
	exitFailures  []scriptedFailure
	entryDelay    time.Duration
	fillPrice     float64
	restEntries   bool // entries stay PENDING until fillAfter queries or forever
	fillAfter     int
	queries       int
	ignoreCancel  bool
	cancelErr     error
	cancelCalls   []ports.OrderRef
	resting       map[string]ports.OrderRequest
	orders        map[string]*ports.OrderStatus
	positions     map[string]float64
	avgPrices     map[string]float64
	positionErr   error
	entryCalls    []ports.OrderRequest
	exitCalls     []ports.OrderRequest
	nextID        int
}

func newMockGateway() *mockGateway {
	return &mockGateway{
		orders:    make(map[string]*ports.OrderStatus),
		positions: make(map[string]float64),
		avgPrices: make(map[string]float64),
	}
}

func (g *mockGateway) SubmitEntry(ctx context.Context, req ports.OrderRequest) (string, error) {
	g.mu.Lock()
	delay := g.entryDelay
	g.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.entryCalls = append(g.entryCalls, req)
	if g.restEntries && len(g.entryFailures) == 0 {
		return g.rest(req), nil
	}
	return g.submit(req, &g.entryFailures)
}

func (g *mockGateway) rest(req ports.OrderRequest) string {
	g.nextID++
	id := fmt.Sprintf("B%d", g.nextID)
	g.orders[req.ClientOrderID] = &ports.OrderStatus{BrokerOrderID: id, State: ports.OrderPending}
	g.pendingReqs()[req.ClientOrderID] = req
	return id
}

func (g *mockGateway) pendingReqs() map[string]ports.OrderRequest {
	if g.resting == nil {
		g.resting = make(map[string]ports.OrderRequest)
	}
	return g.resting
}

func (g *mockGateway) SubmitExit(ctx context.Context, req ports.OrderRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.exitCalls = append(g.exitCalls, req)
	return g.submit(req, &g.exitFailures)
}

func (g *mockGateway) submit(req ports.OrderRequest, failures *[]scriptedFailure) (string, error) {
	if len(*failures) > 0 {
		f := (*failures)[0]
		*failures = (*failures)[1:]
		if f.landed {
			g.fill(req)
		}
		return "", f.err
	}
	return g.fill(req), nil
}

func (g *mockGateway) fill(req ports.OrderRequest) string {
	g.nextID++
	id := fmt.Sprintf("B%d", g.nextID)
	g.orders[req.ClientOrderID] = &ports.OrderStatus{
		BrokerOrderID: id,
		State:         ports.OrderFilled,
		FilledQty:     req.Quantity,
		AvgPrice:      g.fillPrice,
	}
	qty := req.Quantity
	if req.Side == domain.Sell {
		qty = -qty
	}
	g.positions[req.Symbol] += qty
	return id
}

func (g *mockGateway) QueryOrderStatus(ctx context.Context, ref ports.OrderRef) (*ports.OrderStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.orders[ref.ClientOrderID]
	if !ok {
		return &ports.OrderStatus{State: ports.OrderNotFound}, nil
	}
	if st.State == ports.OrderPending && g.fillAfter > 0 {
		g.queries++
		if g.queries >= g.fillAfter {
			req := g.resting[ref.ClientOrderID]
			delete(g.resting, ref.ClientOrderID)
			id := st.BrokerOrderID
			g.fill(req)
			g.orders[ref.ClientOrderID].BrokerOrderID = id
			st = g.orders[ref.ClientOrderID]
		}
	}
	cp := *st
	return &cp, nil
}

func (g *mockGateway) Cancel(ctx context.Context, ref ports.OrderRef) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelCalls = append(g.cancelCalls, ref)
	if g.cancelErr != nil {
		return g.cancelErr
	}
	st, ok := g.orders[ref.ClientOrderID]
	if !ok {
		return ports.ErrOrderNotFound
	}
	if st.State == ports.OrderPending && !g.ignoreCancel {
		st.State = ports.OrderCancelled
		delete(g.resting, ref.ClientOrderID)
	}
	return nil
}

func (g *mockGateway) cancels() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.cancelCalls)
}

func (g *mockGateway) GetPosition(ctx context.Context, symbol string) (*ports.BrokerPosition, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.positionErr != nil {
		return nil, g.positionErr
	}
	return &ports.BrokerPosition{Symbol: symbol, Quantity: g.positions[symbol], AvgPrice: g.avgPrices[symbol]}, nil
}

func (g *mockGateway) setPosition(symbol string, qty, avg float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.positions[symbol] = qty
	g.avgPrices[symbol] = avg
}

func (g *mockGateway) failExits(failures ...scriptedFailure) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.exitFailures = append(g.exitFailures, failures...)
}

func (g *mockGateway) exitSubmissions() []ports.OrderRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ports.OrderRequest(nil), g.exitCalls...)
}

func (g *mockGateway) filledExits() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for id, st := range g.orders {
		if strings.Contains(id, "-exit-") && st.State == ports.OrderFilled {
			n++
		}
	}
	return n
}

type mockLedger struct {
	mu          sync.Mutex
	trades      map[string]*domain.Trade
	recordCalls int
	failNext    int
	dayStats    *ports.DayStats
	dayStatsErr error
}

func newMockLedger() *mockLedger {
	return &mockLedger{trades: make(map[string]*domain.Trade)}
}

func (l *mockLedger) Record(ctx context.Context, trade *domain.Trade) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recordCalls++
	if l.failNext > 0 {
		l.failNext--
		return fmt.Errorf("%w: disk full", ports.ErrQueryFailed)
	}
	l.trades[trade.PositionID] = trade
	return nil
}

func (l *mockLedger) DayStats(ctx context.Context, dayStart time.Time) (*ports.DayStats, error) {
	return l.dayStats, l.dayStatsErr
}

func (l *mockLedger) FindBetween(ctx context.Context, from, to time.Time) ([]*domain.Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*domain.Trade
	for _, t := range l.trades {
		out = append(out, t)
	}
	return out, nil
}

func (l *mockLedger) trade(id string) *domain.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.trades[id]
}

type mockAlerter struct {
	mu     sync.Mutex
	titles []string
}

func (a *mockAlerter) Alert(ctx context.Context, title, message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.titles = append(a.titles, title)
	return nil
}

func (a *mockAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.titles)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// testStart is a Monday mid-session in IST.
var testStart = time.Date(2026, 10, 19, 10, 0, 0, 0, calendar.IST)

func at(d time.Duration) time.Time {
	return testStart.Add(d)
}

func testManagerConfig() Config {
	return Config{
		Policy: DefaultPolicyConfig(),
		Risk: risk.RiskConfig{
			MaxLossPerTrade:      2000,
			MaxStopPoints:        40,
			DailyLossCap:         5000,
			DailyProfitCap:       20000,
			MaxConsecutiveLosses: 3,
			Cooldown:             10 * time.Minute,
			WindowStart:          calendar.MustTimeOfDay("09:20"),
			WindowEnd:            calendar.MustTimeOfDay("15:00"),
		},
		EntryRetry:       retry.Policy{MaxAttempts: 3, Min: time.Millisecond, Max: 2 * time.Millisecond},
		MaxCloseAttempts: 3,
		BrokerTimeout:    time.Second,
		ReconcileGrace:   30 * time.Second,
		EntryFillTimeout: 50 * time.Millisecond,
		EntryPoll:        time.Millisecond,
	}
}

type harness struct {
	m      *Manager
	gw     *mockGateway
	ledger *mockLedger
	store  *MemoryStore
	alerts *mockAlerter
	clock  *fakeClock
	logger *mockLogger
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	cfg := testManagerConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}

	calCfg := calendar.DefaultConfig()
	calCfg.Location = calendar.IST
	cal, err := calendar.NewNSE(calCfg)
	require.NoError(t, err)

	h := &harness{
		gw:     newMockGateway(),
		ledger: newMockLedger(),
		store:  NewMemoryStore(),
		alerts: &mockAlerter{},
		clock:  &fakeClock{now: testStart},
		logger: &mockLogger{},
	}
	ids := 0
	h.m, err = NewManager(cfg, Dependencies{
		Gateway:  h.gw,
		Calendar: cal,
		Ledger:   h.ledger,
		Store:    h.store,
		Alerter:  h.alerts,
		Logger:   h.logger,
		Clock:    h.clock.Now,
		NewID: func() string {
			ids++
			return fmt.Sprintf("pos%d", ids)
		},
	})
	require.NoError(t, err)
	return h
}

func niftyCandidate() domain.Candidate {
	return domain.Candidate{
		Symbol:      "NIFTY",
		Side:        domain.Long,
		EntryPrice:  25000,
		StopLoss:    24975,
		Target:      25040,
		Quantity:    50,
		GeneratedAt: testStart,
	}
}

func (h *harness) admit(t *testing.T, cand domain.Candidate) *domain.Position {
	t.Helper()
	p, err := h.m.Admit(context.Background(), cand)
	require.NoError(t, err)
	require.Equal(t, domain.StatusOpen, p.Status)
	return p
}

func (h *harness) tick(t *testing.T, price float64, offset time.Duration) {
	t.Helper()
	err := h.m.OnTick(context.Background(), domain.Tick{Symbol: "NIFTY", Price: price, Time: at(offset)})
	require.NoError(t, err)
}
