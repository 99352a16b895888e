// Package paper is a simulated broker. Market orders fill immediately at the
// quote source price; limit orders fill once the quote crosses the limit.
package paper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"optionsBot/internal/domain"
	"optionsBot/internal/ports"
)

// Op names a gateway call that faults can be injected into.
type Op string

const (
	OpQuote    Op = "quote"
	OpEntry    Op = "entry"
	OpExit     Op = "exit"
	OpQuery    Op = "query"
	OpPosition Op = "position"
	OpCancel   Op = "cancel"
)

// Fault makes the next call of an Op fail with Err. When Landed is set on a
// submit, the order is still executed, which simulates a lost response.
type Fault struct {
	Err    error
	Landed bool
}

// Config configures the paper gateway.
type Config struct {
	Quotes   ports.QuoteSource
	Slippage float64 // Points charged against the order side on every fill
	Logger   ports.Logger
	Clock    func() time.Time
}

// Order is the paper broker's record of a submitted order.
type Order struct {
	BrokerOrderID string
	Request       ports.OrderRequest
	State         ports.OrderState
	FilledQty     float64
	AvgPrice      float64
	CreatedAt     time.Time
	FilledAt      time.Time
}

// Gateway implements ports.BrokerGateway against an in-memory book.
type Gateway struct {
	quotes   ports.QuoteSource
	slippage decimal.Decimal
	logger   ports.Logger
	clock    func() time.Time

	mu        sync.Mutex
	orders    map[string]*Order // By client order id
	byBroker  map[string]*Order
	positions map[string]*ports.BrokerPosition
	faults    map[Op][]Fault
}

// New creates a paper gateway.
func New(cfg Config) (*Gateway, error) {
	if cfg.Quotes == nil {
		return nil, fmt.Errorf("%w: paper gateway requires a quote source", ports.ErrConfigurationError)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: paper gateway requires a logger", ports.ErrConfigurationError)
	}
	if cfg.Slippage < 0 {
		return nil, fmt.Errorf("%w: slippage must be non-negative", ports.ErrConfigurationError)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Gateway{
		quotes:    cfg.Quotes,
		slippage:  decimal.NewFromFloat(cfg.Slippage),
		logger:    cfg.Logger,
		clock:     clock,
		orders:    make(map[string]*Order),
		byBroker:  make(map[string]*Order),
		positions: make(map[string]*ports.BrokerPosition),
		faults:    make(map[Op][]Fault),
	}, nil
}

// Name returns the registry name.
func (g *Gateway) Name() string { return "paper" }

// InjectFault queues faults for the next calls of op.
func (g *Gateway) InjectFault(op Op, faults ...Fault) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.faults[op] = append(g.faults[op], faults...)
}

// Orders returns copies of every order, in no particular order.
func (g *Gateway) Orders() []Order {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Order, 0, len(g.orders))
	for _, o := range g.orders {
		out = append(out, *o)
	}
	return out
}

// SetPosition overrides the net position, e.g. to simulate a manual flatten.
func (g *Gateway) SetPosition(symbol string, qty, avgPrice float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.positions[symbol] = &ports.BrokerPosition{Symbol: symbol, Quantity: qty, AvgPrice: avgPrice}
}

func (g *Gateway) popFault(op Op) (Fault, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	queue := g.faults[op]
	if len(queue) == 0 {
		return Fault{}, false
	}
	g.faults[op] = queue[1:]
	return queue[0], true
}

// GetLastPrice delegates to the configured quote source.
func (g *Gateway) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	if f, ok := g.popFault(OpQuote); ok {
		return 0, f.Err
	}
	return g.quotes.GetLastPrice(ctx, symbol)
}

// SubmitEntry places an entry order.
func (g *Gateway) SubmitEntry(ctx context.Context, req ports.OrderRequest) (string, error) {
	return g.submit(ctx, OpEntry, req)
}

// SubmitExit places an exit order.
func (g *Gateway) SubmitExit(ctx context.Context, req ports.OrderRequest) (string, error) {
	return g.submit(ctx, OpExit, req)
}

func (g *Gateway) submit(ctx context.Context, op Op, req ports.OrderRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("paper: %s %s: %w", op, req.ClientOrderID, err)
	}
	if err := validate(req); err != nil {
		return "", ports.Rejected("paper."+string(op), err)
	}

	fault, faulted := g.popFault(op)
	if faulted && !fault.Landed {
		return "", fault.Err
	}

	last, err := g.quotes.GetLastPrice(ctx, req.Symbol)
	if err != nil {
		if errors.Is(err, ports.ErrSymbolUnknown) {
			return "", ports.Rejected("paper."+string(op), err)
		}
		return "", fmt.Errorf("paper: quote %s: %w", req.Symbol, err)
	}

	g.mu.Lock()
	if existing, dup := g.orders[req.ClientOrderID]; dup && req.ClientOrderID != "" {
		brokerID := existing.BrokerOrderID
		g.mu.Unlock()
		g.logger.Warn(ctx, "Duplicate client order id, returning existing order", map[string]interface{}{
			"clientOrderID": req.ClientOrderID, "brokerOrderID": brokerID,
		})
		if faulted {
			return "", fault.Err
		}
		return brokerID, nil
	}
	order := &Order{
		BrokerOrderID: "PAPER-" + uuid.NewString(),
		Request:       req,
		State:         ports.OrderPending,
		CreatedAt:     g.clock(),
	}
	if order.Request.ClientOrderID == "" {
		order.Request.ClientOrderID = order.BrokerOrderID
	}
	g.orders[order.Request.ClientOrderID] = order
	g.byBroker[order.BrokerOrderID] = order
	g.tryFillLocked(order, last)
	state := order.State
	g.mu.Unlock()

	g.logger.Info(ctx, "Paper order accepted", map[string]interface{}{
		"op": string(op), "symbol": req.Symbol, "side": string(req.Side), "quantity": req.Quantity,
		"clientOrderID": req.ClientOrderID, "brokerOrderID": order.BrokerOrderID, "state": string(state),
	})
	if faulted {
		return "", fault.Err
	}
	return order.BrokerOrderID, nil
}

func validate(req ports.OrderRequest) error {
	switch {
	case req.Symbol == "":
		return fmt.Errorf("%w: empty symbol", ports.ErrInvalidRequest)
	case req.Quantity <= 0:
		return fmt.Errorf("%w: quantity must be positive, got %v", ports.ErrInvalidRequest, req.Quantity)
	case req.Side != domain.Buy && req.Side != domain.Sell:
		return fmt.Errorf("%w: unknown side %q", ports.ErrInvalidRequest, req.Side)
	case req.Type == ports.OrderTypeLimit && req.Price <= 0:
		return fmt.Errorf("%w: limit order without price", ports.ErrInvalidRequest)
	}
	return nil
}

// tryFillLocked fills a pending order if the last price allows it.
func (g *Gateway) tryFillLocked(order *Order, last float64) {
	if order.State != ports.OrderPending {
		return
	}
	req := order.Request
	price := decimal.NewFromFloat(last)
	if req.Side == domain.Buy {
		price = price.Add(g.slippage)
	} else {
		price = price.Sub(g.slippage)
	}
	if req.Type == ports.OrderTypeLimit {
		limit := decimal.NewFromFloat(req.Price)
		if (req.Side == domain.Buy && price.GreaterThan(limit)) || (req.Side == domain.Sell && price.LessThan(limit)) {
			return
		}
		price = limit
	}

	fill, _ := price.Round(2).Float64()
	order.State = ports.OrderFilled
	order.FilledQty = req.Quantity
	order.AvgPrice = fill
	order.FilledAt = g.clock()
	g.applyFillLocked(req.Symbol, req.Side, req.Quantity, fill)
}

// applyFillLocked folds a fill into the signed net position.
func (g *Gateway) applyFillLocked(symbol string, side domain.OrderSide, qty, price float64) {
	pos, ok := g.positions[symbol]
	if !ok {
		pos = &ports.BrokerPosition{Symbol: symbol}
		g.positions[symbol] = pos
	}
	delta := decimal.NewFromFloat(qty)
	if side == domain.Sell {
		delta = delta.Neg()
	}
	cur := decimal.NewFromFloat(pos.Quantity)
	next := cur.Add(delta)

	switch {
	case next.IsZero():
		pos.AvgPrice = 0
	case cur.IsZero() || cur.Sign() != next.Sign():
		pos.AvgPrice = price
	case cur.Sign() == delta.Sign():
		// Adding to the position: volume-weighted average.
		notional := cur.Abs().Mul(decimal.NewFromFloat(pos.AvgPrice)).Add(delta.Abs().Mul(decimal.NewFromFloat(price)))
		pos.AvgPrice, _ = notional.Div(next.Abs()).Round(2).Float64()
	}
	pos.Quantity, _ = next.Float64()
}

// QueryOrderStatus looks an order up by client id, then by broker id.
// Resting limit orders are re-checked against the current quote.
func (g *Gateway) QueryOrderStatus(ctx context.Context, ref ports.OrderRef) (*ports.OrderStatus, error) {
	if f, ok := g.popFault(OpQuery); ok {
		return nil, f.Err
	}

	g.mu.Lock()
	order, ok := g.orders[ref.ClientOrderID]
	if !ok && ref.BrokerOrderID != "" {
		order, ok = g.byBroker[ref.BrokerOrderID]
	}
	pending := ok && order.State == ports.OrderPending
	symbol := ""
	if ok {
		symbol = order.Request.Symbol
	}
	g.mu.Unlock()

	if !ok {
		return &ports.OrderStatus{State: ports.OrderNotFound}, nil
	}
	if pending {
		if last, err := g.quotes.GetLastPrice(ctx, symbol); err == nil {
			g.mu.Lock()
			g.tryFillLocked(order, last)
			g.mu.Unlock()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return &ports.OrderStatus{
		BrokerOrderID: order.BrokerOrderID,
		State:         order.State,
		FilledQty:     order.FilledQty,
		AvgPrice:      order.AvgPrice,
	}, nil
}

// GetPosition returns the net paper position in symbol.
func (g *Gateway) GetPosition(ctx context.Context, symbol string) (*ports.BrokerPosition, error) {
	if f, ok := g.popFault(OpPosition); ok {
		return nil, f.Err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if pos, ok := g.positions[symbol]; ok {
		cp := *pos
		return &cp, nil
	}
	return &ports.BrokerPosition{Symbol: symbol}, nil
}

// Cancel cancels a resting order. Filled orders are left as they are.
func (g *Gateway) Cancel(ctx context.Context, ref ports.OrderRef) error {
	if f, ok := g.popFault(OpCancel); ok {
		return f.Err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	order, ok := g.orders[ref.ClientOrderID]
	if !ok {
		order, ok = g.byBroker[ref.BrokerOrderID]
	}
	if !ok {
		return ports.ErrOrderNotFound
	}
	if order.State == ports.OrderPending {
		order.State = ports.OrderCancelled
	}
	return nil
}
