package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"optionsBot/internal/domain"
	"optionsBot/internal/ports"
	"optionsBot/internal/retry"
)

// Engine is the position lifecycle API the service drives.
type Engine interface {
	Recover(ctx context.Context) error
	Admit(ctx context.Context, cand domain.Candidate) (*domain.Position, error)
	OnTick(ctx context.Context, tick domain.Tick) error
	Heartbeat(ctx context.Context, now time.Time)
	Reconcile(ctx context.Context) error
	DrainLedger(ctx context.Context) int
	PendingTrades() int
	Active() *domain.Position
	Admitting() bool
	Halt(ctx context.Context, reason string)
}

// sampler is implemented by signal generators that keep a rolling window
// and want quotes while admissions are closed.
type sampler interface {
	Sample(ctx context.Context) error
}

// Config holds the driver intervals.
type Config struct {
	TickInterval      time.Duration
	SignalInterval    time.Duration
	ReconcileInterval time.Duration
	ShutdownTimeout   time.Duration
	QuoteTimeout      time.Duration
	RecoverRetry      retry.Policy
}

// Dependencies are the collaborators of the service. Server is optional.
type Dependencies struct {
	Engine   Engine
	Quotes   ports.QuoteSource
	Signals  ports.SignalGenerator
	Calendar ports.MarketCalendar
	Logger   ports.Logger
	Server   *http.Server
	Clock    func() time.Time
}

// TradingService runs the two periodic drivers: the tick loop feeding quotes
// to the active position and the signal loop proposing new entries.
type TradingService struct {
	cfg      Config
	engine   Engine
	quotes   ports.QuoteSource
	signals  ports.SignalGenerator
	cal      ports.MarketCalendar
	logger   ports.Logger
	server   *http.Server
	clock    func() time.Time
	lastRecn time.Time
}

// NewTradingService creates a new application service instance.
func NewTradingService(cfg Config, deps Dependencies) (*TradingService, error) {
	if deps.Engine == nil || deps.Quotes == nil || deps.Signals == nil || deps.Calendar == nil || deps.Logger == nil {
		return nil, fmt.Errorf("%w: missing required dependencies for TradingService", ports.ErrConfigurationError)
	}
	if cfg.TickInterval <= 0 || cfg.SignalInterval <= 0 {
		return nil, fmt.Errorf("%w: tick and signal intervals must be positive", ports.ErrConfigurationError)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = cfg.TickInterval
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &TradingService{
		cfg:     cfg,
		engine:  deps.Engine,
		quotes:  deps.Quotes,
		signals: deps.Signals,
		cal:     deps.Calendar,
		logger:  deps.Logger,
		server:  deps.Server,
		clock:   deps.Clock,
	}, nil
}

// Start recovers state, then runs the drivers and the status server until
// ctx is cancelled or SIGINT/SIGTERM arrives. Pending ledger writes are
// flushed on the way out.
func (s *TradingService) Start(ctx context.Context) error {
	const op = "Start"
	s.logger.Info(ctx, "Starting Trading Service...")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	attempts, err := retry.Do(ctx, s.cfg.RecoverRetry, func(ctx context.Context, attempt int) error {
		return s.engine.Recover(ctx)
	})
	if err != nil {
		s.logger.Error(ctx, err, op+": recovery failed", map[string]interface{}{"attempts": attempts})
		return fmt.Errorf("recover: %w", err)
	}
	s.logger.Info(ctx, op+": state recovered", map[string]interface{}{"attempts": attempts})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.run(gctx, s.cfg.TickInterval, s.tickOnce)
		return nil
	})
	g.Go(func() error {
		s.run(gctx, s.cfg.SignalInterval, s.signalOnce)
		return nil
	})
	if s.server != nil {
		g.Go(func() error {
			s.logger.Info(gctx, op+": status API listening", map[string]interface{}{"addr": s.server.Addr})
			if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status API: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
			defer cancel()
			return s.server.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	s.logger.Info(ctx, "Main context cancelled, initiating shutdown...")

	drainCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.engine.DrainLedger(drainCtx)
	if pending := s.engine.PendingTrades(); pending > 0 {
		s.logger.Warn(drainCtx, op+": ledger writes still pending at shutdown", map[string]interface{}{"pending": pending})
	}
	if p := s.engine.Active(); p != nil {
		s.logger.Warn(drainCtx, op+": stopping with an active position", map[string]interface{}{
			"positionID": p.ID,
			"symbol":     p.Symbol,
			"status":     p.Status,
		})
	}

	if err != nil {
		s.logger.Error(drainCtx, err, "Trading Service stopped with error")
		return err
	}
	s.logger.Info(drainCtx, "Trading Service stopped.")
	return nil
}

func (s *TradingService) run(ctx context.Context, every time.Duration, fn func(context.Context, time.Time)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx, s.clock())
		}
	}
}

// tickOnce fetches a quote for the active position and applies it. Without a
// quote the engine still gets a heartbeat so the EOD cutoff and close
// retries are not starved.
func (s *TradingService) tickOnce(ctx context.Context, now time.Time) {
	const op = "tickOnce"
	p := s.engine.Active()
	if p == nil || p.Status == domain.StatusPendingEntry {
		s.engine.Heartbeat(ctx, now)
		return
	}

	qctx, cancel := context.WithTimeout(ctx, s.cfg.QuoteTimeout)
	price, err := s.quotes.GetLastPrice(qctx, p.Symbol)
	cancel()
	if err != nil {
		if errors.Is(err, ports.ErrSymbolUnknown) {
			s.engine.Halt(ctx, fmt.Sprintf("no quotes for %s, position %s is unmanaged: %v", p.Symbol, p.ID, err))
		}
		s.logger.Warn(ctx, op+": quote unavailable, heartbeat only", map[string]interface{}{
			"symbol": p.Symbol,
			"error":  err.Error(),
		})
		s.engine.Heartbeat(ctx, now)
	} else if err := s.engine.OnTick(ctx, domain.Tick{Symbol: p.Symbol, Price: price, Time: now}); err != nil {
		s.logger.Error(ctx, err, op+": tick rejected", map[string]interface{}{"symbol": p.Symbol, "price": price})
	}

	if s.cfg.ReconcileInterval > 0 && now.Sub(s.lastRecn) >= s.cfg.ReconcileInterval {
		s.lastRecn = now
		if err := s.engine.Reconcile(ctx); err != nil {
			s.logger.Warn(ctx, op+": reconcile failed", map[string]interface{}{"error": err.Error()})
		}
	}
}

// signalOnce asks for a candidate and admits it. It only runs while the
// market is open and no position is active.
func (s *TradingService) signalOnce(ctx context.Context, now time.Time) {
	const op = "signalOnce"
	if !s.cal.IsOpen(now) {
		return
	}
	if !s.engine.Admitting() {
		if sm, ok := s.signals.(sampler); ok {
			if err := sm.Sample(ctx); err != nil {
				s.logger.Debug(ctx, op+": sample failed", map[string]interface{}{"error": err.Error()})
			}
		}
		return
	}

	cand, err := s.signals.Next(ctx, now)
	switch {
	case errors.Is(err, ports.ErrNoSignal):
		return
	case errors.Is(err, ports.ErrDataUnavailable):
		s.logger.Debug(ctx, op+": no data for signal", map[string]interface{}{"error": err.Error()})
		return
	case err != nil:
		s.logger.Error(ctx, err, op+": signal generation failed")
		return
	}

	pos, err := s.engine.Admit(ctx, *cand)
	if err != nil {
		if errors.Is(err, ports.ErrAdmissionRejected) {
			s.logger.Info(ctx, op+": candidate not admitted", map[string]interface{}{"symbol": cand.Symbol, "reason": err.Error()})
			return
		}
		s.logger.Error(ctx, err, op+": entry failed", map[string]interface{}{"symbol": cand.Symbol})
		return
	}
	s.logger.Info(ctx, op+": position opened", map[string]interface{}{
		"positionID": pos.ID,
		"symbol":     pos.Symbol,
		"side":       pos.Side,
		"entry":      pos.EntryPrice,
		"stop":       pos.StopLoss,
		"target":     pos.Target,
	})
}
