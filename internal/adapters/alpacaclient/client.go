// Package alpacaclient implements ports.BrokerGateway on the Alpaca trading
// and market data APIs.
package alpacaclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"optionsBot/internal/domain"
	"optionsBot/internal/ports"
)

// Config holds credentials and endpoints. Empty URLs use the SDK defaults
// (which also honour APCA_API_BASE_URL / APCA_API_DATA_URL).
type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string
	DataURL   string
	Logger    ports.Logger
}

// Client implements ports.BrokerGateway.
type Client struct {
	tradeClient *alpaca.Client
	mdClient    *marketdata.Client
	logger      ports.Logger
}

// New creates the trading and market data clients.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Alpaca client")
	}
	return &Client{
		tradeClient: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
			BaseURL:   cfg.BaseURL,
		}),
		mdClient: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
			BaseURL:   cfg.DataURL,
		}),
		logger: cfg.Logger,
	}, nil
}

// Name returns the registry name.
func (c *Client) Name() string { return "alpaca" }

// classify maps Alpaca SDK errors onto the ports taxonomy.
func classify(op string, err error) error {
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		var mapped error
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			mapped = ports.ErrRateLimited
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			mapped = ports.ErrAuthenticationFailed
		case apiErr.StatusCode == http.StatusNotFound:
			mapped = ports.ErrOrderNotFound
		case apiErr.StatusCode == http.StatusUnprocessableEntity:
			if strings.Contains(strings.ToLower(apiErr.Message), "asset") {
				mapped = ports.ErrSymbolUnknown
			} else {
				mapped = ports.ErrOrderRejected
			}
		case apiErr.StatusCode >= 500:
			mapped = ports.ErrExchangeUnavailable
		case apiErr.StatusCode >= 400:
			mapped = ports.ErrInvalidRequest
		default:
			mapped = ports.ErrUnknown
		}
		return fmt.Errorf("%s failed: %w: %w", op, mapped, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s failed: %w: %w", op, ports.ErrTimeout, err)
	}
	return fmt.Errorf("%s failed: %w: %w", op, ports.ErrConnectionFailed, err)
}

func (c *Client) handleError(ctx context.Context, err error, op string, fields map[string]interface{}) error {
	mapped := classify(op, err)
	c.logger.Error(ctx, err, op+" failed", fields)
	return mapped
}

// GetLastPrice returns the latest trade price.
func (c *Client) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	op := "GetLastPrice"
	trade, err := c.mdClient.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return 0, c.handleError(ctx, err, op, map[string]interface{}{"symbol": symbol})
	}
	if trade == nil || trade.Price <= 0 {
		return 0, fmt.Errorf("%s failed: %w: no trade for %s", op, ports.ErrDataUnavailable, symbol)
	}
	return trade.Price, nil
}

// SubmitEntry places an entry order.
func (c *Client) SubmitEntry(ctx context.Context, req ports.OrderRequest) (string, error) {
	return c.placeOrder(ctx, "SubmitEntry", req)
}

// SubmitExit places an exit order.
func (c *Client) SubmitExit(ctx context.Context, req ports.OrderRequest) (string, error) {
	return c.placeOrder(ctx, "SubmitExit", req)
}

func (c *Client) placeOrder(ctx context.Context, op string, req ports.OrderRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", classify(op, err)
	}
	qty := decimal.NewFromFloat(req.Quantity)
	preq := alpaca.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          toAlpacaSide(req.Side),
		Type:          alpaca.Market,
		TimeInForce:   alpaca.Day,
		ClientOrderID: req.ClientOrderID,
	}
	if req.Type == ports.OrderTypeLimit {
		limit := decimal.NewFromFloat(req.Price)
		preq.Type = alpaca.Limit
		preq.LimitPrice = &limit
	}

	o, err := c.tradeClient.PlaceOrder(preq)
	if err != nil {
		return "", c.handleError(ctx, err, op, map[string]interface{}{"symbol": req.Symbol, "clientOrderID": req.ClientOrderID})
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol": req.Symbol, "side": string(req.Side), "quantity": req.Quantity,
		"clientOrderID": req.ClientOrderID, "orderID": o.ID, "status": o.Status,
	})
	return o.ID, nil
}

// QueryOrderStatus looks the order up by client id, falling back to broker id.
func (c *Client) QueryOrderStatus(ctx context.Context, ref ports.OrderRef) (*ports.OrderStatus, error) {
	op := "QueryOrderStatus"
	var (
		o   *alpaca.Order
		err error
	)
	switch {
	case ref.ClientOrderID != "":
		o, err = c.tradeClient.GetOrderByClientOrderID(ref.ClientOrderID)
	case ref.BrokerOrderID != "":
		o, err = c.tradeClient.GetOrder(ref.BrokerOrderID)
	default:
		return nil, ports.Rejected(op, fmt.Errorf("%w: empty order reference", ports.ErrInvalidRequest))
	}
	if err != nil {
		mapped := classify(op, err)
		if errors.Is(mapped, ports.ErrOrderNotFound) {
			return &ports.OrderStatus{State: ports.OrderNotFound}, nil
		}
		return nil, c.handleError(ctx, err, op, map[string]interface{}{"clientOrderID": ref.ClientOrderID})
	}
	return translateOrder(o), nil
}

// GetPosition returns the signed net position; no position is flat.
func (c *Client) GetPosition(ctx context.Context, symbol string) (*ports.BrokerPosition, error) {
	op := "GetPosition"
	p, err := c.tradeClient.GetPosition(symbol)
	if err != nil {
		if errors.Is(classify(op, err), ports.ErrOrderNotFound) {
			return &ports.BrokerPosition{Symbol: symbol}, nil
		}
		return nil, c.handleError(ctx, err, op, map[string]interface{}{"symbol": symbol})
	}
	qty, _ := p.Qty.Float64()
	if p.Side == "short" && qty > 0 {
		qty = -qty
	}
	avg, _ := p.AvgEntryPrice.Float64()
	return &ports.BrokerPosition{Symbol: symbol, Quantity: qty, AvgPrice: avg}, nil
}

// Cancel cancels an order by broker id, resolving it from the client id
// when the submit never returned one.
func (c *Client) Cancel(ctx context.Context, ref ports.OrderRef) error {
	op := "CancelOrder"
	id := ref.BrokerOrderID
	if id == "" {
		if ref.ClientOrderID == "" {
			return ports.Rejected(op, fmt.Errorf("%w: empty order reference", ports.ErrInvalidRequest))
		}
		o, err := c.tradeClient.GetOrderByClientOrderID(ref.ClientOrderID)
		if err != nil {
			return c.handleError(ctx, err, op, map[string]interface{}{"clientOrderID": ref.ClientOrderID})
		}
		id = o.ID
	}
	if err := c.tradeClient.CancelOrder(id); err != nil {
		return c.handleError(ctx, err, op, map[string]interface{}{"orderID": id})
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"orderID": id, "clientOrderID": ref.ClientOrderID})
	return nil
}

func toAlpacaSide(side domain.OrderSide) alpaca.Side {
	if side == domain.Sell {
		return alpaca.Sell
	}
	return alpaca.Buy
}

func translateOrder(o *alpaca.Order) *ports.OrderStatus {
	filled, _ := o.FilledQty.Float64()
	var avg float64
	if o.FilledAvgPrice != nil {
		avg, _ = o.FilledAvgPrice.Float64()
	}
	return &ports.OrderStatus{
		BrokerOrderID: o.ID,
		State:         mapOrderState(o.Status),
		FilledQty:     filled,
		AvgPrice:      avg,
		Message:       o.Status,
	}
}

func mapOrderState(status string) ports.OrderState {
	switch status {
	case "filled":
		return ports.OrderFilled
	case "canceled", "expired", "done_for_day", "replaced":
		return ports.OrderCancelled
	case "rejected", "suspended":
		return ports.OrderRejected
	default: // new, accepted, pending_new, partially_filled, ...
		return ports.OrderPending
	}
}

var _ ports.BrokerGateway = (*Client)(nil)
