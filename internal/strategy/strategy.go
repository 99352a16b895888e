package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"optionsBot/internal/domain"
	"optionsBot/internal/ports"
	"optionsBot/internal/strategy/indicators"
)

// Config holds parameters for the momentum signal generator.
type Config struct {
	IndexSymbol       string  // Quoted underlying the indicators run on, e.g. NIFTY
	CallSymbol        string  // Optional CE contract bought on a bullish signal
	PutSymbol         string  // Optional PE contract bought on a bearish signal
	ShortTermMAPeriod int     // e.g., 5
	LongTermMAPeriod  int     // e.g., 20
	RSIPeriod         int     // e.g., 14
	RSIOverbought     float64 // e.g., 70.0
	RSIOversold       float64 // e.g., 30.0
	Quantity          float64
	StopPoints        float64 // Initial stop distance on the traded instrument
	TargetPoints      float64 // Initial target distance on the traded instrument
	AllowShort        bool    // Short the index on a bearish signal when no PutSymbol is set
}

// Validate checks the generator configuration.
func (c Config) Validate() error {
	if c.IndexSymbol == "" {
		return fmt.Errorf("index symbol is required")
	}
	if c.ShortTermMAPeriod <= 0 || c.LongTermMAPeriod <= 0 || c.RSIPeriod <= 0 {
		return fmt.Errorf("strategy periods must be positive")
	}
	if c.ShortTermMAPeriod >= c.LongTermMAPeriod {
		return fmt.Errorf("short term MA period must be less than long term MA period")
	}
	if c.RSIOversold >= c.RSIOverbought {
		return fmt.Errorf("RSI oversold level must be below overbought level")
	}
	if c.Quantity <= 0 || c.StopPoints <= 0 || c.TargetPoints <= 0 {
		return fmt.Errorf("quantity, stop points and target points must be positive")
	}
	return nil
}

// Strategy is a momentum signal generator: SMA(short) over SMA(long) with an
// RSI filter, evaluated on a rolling window of index quotes.
type Strategy struct {
	cfg    Config
	quotes ports.QuoteSource
	logger ports.Logger

	shortMA *indicators.MovingAverage
	longMA  *indicators.MovingAverage
	rsi     *indicators.RSI

	mu     sync.Mutex
	window []float64
}

// New creates a new Strategy instance.
func New(cfg Config, quotes ports.QuoteSource, logger ports.Logger) (*Strategy, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for strategy")
	}
	if quotes == nil {
		return nil, fmt.Errorf("quote source is required for strategy")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Strategy{
		cfg:    cfg,
		quotes: quotes,
		logger: logger,
		shortMA: indicators.NewMovingAverage(indicators.MovingAverageConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: cfg.ShortTermMAPeriod},
			Type:            indicators.SimpleMovingAverage,
		}),
		longMA: indicators.NewMovingAverage(indicators.MovingAverageConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: cfg.LongTermMAPeriod},
			Type:            indicators.SimpleMovingAverage,
		}),
		rsi: indicators.NewRSI(indicators.RSIConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: cfg.RSIPeriod},
			Overbought:      cfg.RSIOverbought,
			Oversold:        cfg.RSIOversold,
		}),
	}, nil
}

// RequiredDataPoints returns the number of quotes needed before signals are evaluated.
func (s *Strategy) RequiredDataPoints() int {
	n := s.longMA.RequiredDataPoints()
	if r := s.rsi.RequiredDataPoints(); r > n {
		n = r
	}
	return n
}

// Observe appends an index price to the rolling window.
func (s *Strategy) Observe(price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observeLocked(price)
}

func (s *Strategy) observeLocked(price float64) {
	s.window = append(s.window, price)
	if limit := s.RequiredDataPoints(); len(s.window) > limit {
		s.window = append(s.window[:0], s.window[len(s.window)-limit:]...)
	}
}

// Sample records the current index quote without evaluating a signal, so the
// window stays warm while a position is open.
func (s *Strategy) Sample(ctx context.Context) error {
	_, err := s.sample(ctx)
	return err
}

func (s *Strategy) sample(ctx context.Context) (float64, error) {
	price, err := s.quotes.GetLastPrice(ctx, s.cfg.IndexSymbol)
	if err != nil {
		return 0, fmt.Errorf("%w: %s quote: %w", ports.ErrDataUnavailable, s.cfg.IndexSymbol, err)
	}
	s.Observe(price)
	return price, nil
}

// Next samples the index quote and returns a candidate when the trend and
// RSI filter agree. It returns ErrDataUnavailable while warming up or when a
// quote fails, and ErrNoSignal otherwise.
func (s *Strategy) Next(ctx context.Context, now time.Time) (*domain.Candidate, error) {
	price, err := s.sample(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	prices := append([]float64(nil), s.window...)
	s.mu.Unlock()

	if required := s.RequiredDataPoints(); len(prices) < required {
		s.logger.Debug(ctx, "Not enough quotes for strategy evaluation",
			map[string]interface{}{"available": len(prices), "required": required})
		return nil, fmt.Errorf("%w: warming up (%d/%d)", ports.ErrDataUnavailable, len(prices), required)
	}

	shortMA, err := s.shortMA.Calculate(prices)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrDataUnavailable, err)
	}
	longMA, err := s.longMA.Calculate(prices)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrDataUnavailable, err)
	}
	rsi, err := s.rsi.Calculate(prices)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrDataUnavailable, err)
	}

	fields := map[string]interface{}{
		"price":   price,
		"shortMA": shortMA,
		"longMA":  longMA,
		"rsi":     rsi,
	}

	bullish := price > shortMA && shortMA > longMA && !s.rsi.IsOverbought(rsi)
	bearish := price < shortMA && shortMA < longMA && !s.rsi.IsOversold(rsi)

	var symbol string
	side := domain.Long
	switch {
	case bullish && s.cfg.CallSymbol != "":
		symbol = s.cfg.CallSymbol
	case bullish:
		symbol = s.cfg.IndexSymbol
	case bearish && s.cfg.PutSymbol != "":
		symbol = s.cfg.PutSymbol
	case bearish && s.cfg.AllowShort:
		symbol, side = s.cfg.IndexSymbol, domain.Short
	default:
		s.logger.Debug(ctx, "Trade entry conditions not met", fields)
		return nil, ports.ErrNoSignal
	}

	entry := price
	if symbol != s.cfg.IndexSymbol {
		entry, err = s.quotes.GetLastPrice(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("%w: %s quote: %w", ports.ErrDataUnavailable, symbol, err)
		}
	}

	dir := side.Direction()
	cand := &domain.Candidate{
		Symbol:      symbol,
		Side:        side,
		EntryPrice:  entry,
		StopLoss:    entry - dir*s.cfg.StopPoints,
		Target:      entry + dir*s.cfg.TargetPoints,
		Quantity:    s.cfg.Quantity,
		GeneratedAt: now,
		Note:        fmt.Sprintf("%s=%.2f %s=%.2f %s=%.1f", s.shortMA.Name(), shortMA, s.longMA.Name(), longMA, s.rsi.Name(), rsi),
	}
	// Premiums cannot go below zero.
	if side == domain.Long && cand.StopLoss <= 0 {
		cand.StopLoss = entry / 2
	}

	fields["symbol"] = symbol
	fields["side"] = side
	fields["entry"] = entry
	s.logger.Info(ctx, "Trade entry conditions met", fields)
	return cand, nil
}
