package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"

	"optionsBot/internal/ports"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"
)

// Client implements ports.BrokerGateway on Binance USDⓈ-M futures.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	BaseURL    string // Overrides the production/testnet URL when set
	Logger     ports.Logger
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using global futures.UseTestnet
	switch {
	case cfg.BaseURL != "":
		client.BaseURL = cfg.BaseURL
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
	default:
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{"baseURL": client.BaseURL})

	return &Client{futuresClient: client, logger: cfg.Logger}, nil
}

// Name returns the registry name.
func (c *Client) Name() string { return "binance" }

// classify translates Binance API errors into the ports error taxonomy.
func classify(operation string, err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1001, -1007: // Internal disconnect, backend timeout
			mappedErr = ports.ErrTimeout
		case -1021: // Timestamp for this request is outside of the recvWindow
			mappedErr = ports.ErrConnectionFailed
		case -1022, -2014, -2015: // Signature or API key invalid
			mappedErr = ports.ErrAuthenticationFailed
		case -1121: // Invalid symbol
			mappedErr = ports.ErrSymbolUnknown
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1125, -1127, -1128, -1130,
			-4003, -4014: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		case -2010, -2021, -2022: // New order rejected, would immediately trigger, ReduceOnly rejected
			mappedErr = ports.ErrOrderRejected
		case -2011, -2013: // Unknown order on cancel, order does not exist
			mappedErr = ports.ErrOrderNotFound
		case -2018, -2019, -3005, -4047: // Balance or margin insufficient
			mappedErr = ports.ErrInsufficientFunds
		default:
			mappedErr = ports.ErrUnknown
		}
		return fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	case strings.Contains(err.Error(), "use of closed network connection"),
		strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"):
		return fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	}
	return fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
}

// handleError classifies err and logs it.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}
	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message
	}
	finalErr := classify(operation, err)
	c.logger.Error(ctx, err, operation+" failed", fields)
	return finalErr
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.futuresClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// SetServerTime synchronizes the client's time with the server's time.
func (c *Client) SetServerTime(ctx context.Context) error {
	op := "SetServerTime"
	if _, err := c.futuresClient.NewSetServerTimeService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetLastPrice retrieves the last traded price for a symbol.
func (c *Client) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	op := "GetLastPrice"
	tickers, err := c.futuresClient.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(tickers) == 0 {
		return 0, fmt.Errorf("%s failed: %w: no ticker data for %s", op, ports.ErrDataUnavailable, symbol)
	}
	price, err := strconv.ParseFloat(tickers[0].LastPrice, 64)
	if err != nil {
		return 0, fmt.Errorf("%s failed: %w: could not parse price '%s': %v", op, ports.ErrDataUnavailable, tickers[0].LastPrice, err)
	}
	return price, nil
}

// SubmitEntry places an entry order.
func (c *Client) SubmitEntry(ctx context.Context, req ports.OrderRequest) (string, error) {
	return c.placeOrder(ctx, "SubmitEntry", req, false)
}

// SubmitExit places a reduce-only exit order.
func (c *Client) SubmitExit(ctx context.Context, req ports.OrderRequest) (string, error) {
	return c.placeOrder(ctx, "SubmitExit", req, true)
}

func (c *Client) placeOrder(ctx context.Context, op string, req ports.OrderRequest, reduceOnly bool) (string, error) {
	svc := c.futuresClient.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(futures.SideType(req.Side)).
		Quantity(formatDecimal(req.Quantity))
	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}
	if reduceOnly {
		svc = svc.ReduceOnly(true)
	}
	if req.Type == ports.OrderTypeLimit {
		svc = svc.Type(futures.OrderTypeLimit).
			TimeInForce(futures.TimeInForceTypeGTC).
			Price(formatDecimal(req.Price))
	} else {
		svc = svc.Type(futures.OrderTypeMarket)
	}

	order, err := svc.Do(ctx)
	if err != nil {
		return "", c.handleError(ctx, err, op)
	}
	brokerID := strconv.FormatInt(order.OrderID, 10)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol": req.Symbol, "side": string(req.Side), "quantity": req.Quantity,
		"clientOrderID": req.ClientOrderID, "orderID": brokerID, "status": string(order.Status),
	})
	return brokerID, nil
}

// QueryOrderStatus reports the order state, preferring the client order id.
func (c *Client) QueryOrderStatus(ctx context.Context, ref ports.OrderRef) (*ports.OrderStatus, error) {
	op := "QueryOrderStatus"
	svc := c.futuresClient.NewGetOrderService().Symbol(ref.Symbol)
	switch {
	case ref.ClientOrderID != "":
		svc = svc.OrigClientOrderID(ref.ClientOrderID)
	case ref.BrokerOrderID != "":
		id, err := strconv.ParseInt(ref.BrokerOrderID, 10, 64)
		if err != nil {
			return nil, ports.Rejected(op, fmt.Errorf("%w: order id %q", ports.ErrInvalidRequest, ref.BrokerOrderID))
		}
		svc = svc.OrderID(id)
	default:
		return nil, ports.Rejected(op, fmt.Errorf("%w: empty order reference", ports.ErrInvalidRequest))
	}

	order, err := svc.Do(ctx)
	if err != nil {
		mapped := classify(op, err)
		if errors.Is(mapped, ports.ErrOrderNotFound) {
			return &ports.OrderStatus{State: ports.OrderNotFound}, nil
		}
		return nil, c.handleError(ctx, err, op)
	}
	return translateOrder(order.OrderID, string(order.Status), order.ExecutedQuantity, order.AvgPrice), nil
}

// GetPosition returns the signed net position for symbol.
func (c *Client) GetPosition(ctx context.Context, symbol string) (*ports.BrokerPosition, error) {
	op := "GetPosition"
	positions, err := c.futuresClient.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	out := &ports.BrokerPosition{Symbol: symbol}
	for _, p := range positions {
		if p.Symbol != symbol {
			continue
		}
		qty, _ := strconv.ParseFloat(p.PositionAmt, 64)
		entry, _ := strconv.ParseFloat(p.EntryPrice, 64)
		out.Quantity += qty
		if qty != 0 {
			out.AvgPrice = entry
		}
	}
	return out, nil
}

// Cancel cancels an open order, preferring the client order id.
func (c *Client) Cancel(ctx context.Context, ref ports.OrderRef) error {
	op := "CancelOrder"
	svc := c.futuresClient.NewCancelOrderService().Symbol(ref.Symbol)
	switch {
	case ref.ClientOrderID != "":
		svc = svc.OrigClientOrderID(ref.ClientOrderID)
	case ref.BrokerOrderID != "":
		id, err := strconv.ParseInt(ref.BrokerOrderID, 10, 64)
		if err != nil {
			return ports.Rejected(op, fmt.Errorf("%w: order id %q", ports.ErrInvalidRequest, ref.BrokerOrderID))
		}
		svc = svc.OrderID(id)
	default:
		return ports.Rejected(op, fmt.Errorf("%w: empty order reference", ports.ErrInvalidRequest))
	}
	if _, err := svc.Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": ref.Symbol, "clientOrderID": ref.ClientOrderID})
	return nil
}

// --- Translation Helpers ---

func translateOrder(orderID int64, status, executedQty, avgPrice string) *ports.OrderStatus {
	filled, _ := strconv.ParseFloat(executedQty, 64)
	avg, _ := strconv.ParseFloat(avgPrice, 64)
	return &ports.OrderStatus{
		BrokerOrderID: strconv.FormatInt(orderID, 10),
		State:         mapOrderState(status),
		FilledQty:     filled,
		AvgPrice:      avg,
		Message:       status,
	}
}

func mapOrderState(status string) ports.OrderState {
	switch status {
	case "FILLED":
		return ports.OrderFilled
	case "CANCELED", "EXPIRED", "EXPIRED_IN_MATCH":
		return ports.OrderCancelled
	case "REJECTED":
		return ports.OrderRejected
	default: // NEW, PARTIALLY_FILLED, NEW_INSURANCE, NEW_ADL
		return ports.OrderPending
	}
}

func formatDecimal(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var _ ports.BrokerGateway = (*Client)(nil)
