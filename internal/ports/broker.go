package ports

import (
	"context"

	"optionsBot/internal/domain"
)

// OrderType is the broker order type.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderRequest describes an entry or exit order.
// ClientOrderID is our own reference, used by adapters as an idempotency key
// and by reconciliation when a submit timed out without a broker id.
type OrderRequest struct {
	Symbol        string
	Side          domain.OrderSide
	Quantity      float64
	Type          OrderType
	Price         float64 // Limit price, ignored for market orders
	ClientOrderID string
}

// OrderRef identifies an order by broker id, client id, or both.
type OrderRef struct {
	Symbol        string
	BrokerOrderID string
	ClientOrderID string
}

// OrderState is the normalised broker-side order state.
type OrderState string

const (
	OrderPending   OrderState = "PENDING" // accepted, not yet (fully) filled
	OrderFilled    OrderState = "FILLED"
	OrderRejected  OrderState = "REJECTED"
	OrderCancelled OrderState = "CANCELLED"
	OrderNotFound  OrderState = "NOT_FOUND" // broker never saw it
)

// Terminal reports whether no further fills can happen.
func (s OrderState) Terminal() bool {
	return s != OrderPending
}

// OrderStatus is the result of a status query.
type OrderStatus struct {
	BrokerOrderID string
	State         OrderState
	FilledQty     float64
	AvgPrice      float64
	Message       string
}

// BrokerPosition is the broker's view of the net position in a symbol.
type BrokerPosition struct {
	Symbol   string
	Quantity float64 // Signed: positive long, negative short, zero flat
	AvgPrice float64
}

// QuoteSource returns last-traded prices.
// Errors wrapping ErrSymbolUnknown must not be retried; others are transient.
type QuoteSource interface {
	GetLastPrice(ctx context.Context, symbol string) (float64, error)
}

// OrderGateway executes orders against a broker.
// Errors are classified with ClassOf: rejections stop retries, transient
// failures are retried with backoff.
type OrderGateway interface {
	// SubmitEntry places an entry order and returns the broker order id.
	SubmitEntry(ctx context.Context, req OrderRequest) (string, error)
	// SubmitExit places an opposite-side market order for the full quantity.
	SubmitExit(ctx context.Context, req OrderRequest) (string, error)
	// QueryOrderStatus reports the broker-side state of an order.
	QueryOrderStatus(ctx context.Context, ref OrderRef) (*OrderStatus, error)
	// GetPosition returns the broker's net position for symbol (zero quantity when flat).
	GetPosition(ctx context.Context, symbol string) (*BrokerPosition, error)
	// Cancel asks the broker to cancel a working order. Callers confirm the
	// outcome with QueryOrderStatus, since the order may fill first.
	Cancel(ctx context.Context, ref OrderRef) error
}

// BrokerGateway is the capability set every broker adapter implements.
type BrokerGateway interface {
	QuoteSource
	OrderGateway
	// Name returns the registry name of the broker (e.g. "paper").
	Name() string
}
