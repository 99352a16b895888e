package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"optionsBot/config"
	"optionsBot/internal/adapters/alpacaclient"
	"optionsBot/internal/adapters/binanceclient"
	"optionsBot/internal/adapters/httpapi"
	"optionsBot/internal/adapters/logger"
	"optionsBot/internal/app"
	"optionsBot/internal/calendar"
	"optionsBot/internal/gateway"
	"optionsBot/internal/metrics"
	"optionsBot/internal/notify"
	"optionsBot/internal/position"
	"optionsBot/internal/strategy"
)

// clockSyncer is implemented by brokers that sign requests with a server timestamp.
type clockSyncer interface {
	SetServerTime(ctx context.Context) error
}

func main() {
	ctx := context.Background()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewStderr(cfg.LogLevel, cfg.LogFormat)
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "format": cfg.LogFormat})

	// 3. Market calendar
	calCfg := calendar.DefaultConfig()
	calCfg.Holidays = cfg.Holidays
	cal, err := calendar.NewNSE(calCfg)
	if err != nil {
		log.Fatalf("FATAL: Failed to build market calendar: %v", err)
	}

	// 4. Storage
	storage, err := app.OpenStorage(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize storage")
		log.Fatalf("FATAL: Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := storage.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing storage")
		}
	}()
	appLogger.Info(ctx, "Storage initialized", map[string]interface{}{"ledger": cfg.LedgerBackend, "store": cfg.StoreBackend})

	// 5. Broker gateway
	gw, err := gateway.DefaultRegistry().Build(gateway.Settings{
		Broker: cfg.Broker,
		Logger: appLogger,
		Paper: gateway.PaperSettings{
			InitialPrices: cfg.PaperPrices,
			StepPct:       cfg.PaperStepPct,
			Seed:          cfg.PaperSeed,
			Slippage:      cfg.PaperSlippage,
		},
		Binance: binanceclient.Config{
			APIKey:     cfg.BinanceAPIKey,
			SecretKey:  cfg.BinanceSecretKey,
			UseTestnet: cfg.BinanceTestnet,
			Logger:     appLogger,
		},
		Alpaca: alpacaclient.Config{
			APIKey:    cfg.AlpacaAPIKey,
			APISecret: cfg.AlpacaAPISecret,
			BaseURL:   cfg.AlpacaBaseURL,
			DataURL:   cfg.AlpacaDataURL,
			Logger:    appLogger,
		},
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize broker gateway")
		log.Fatalf("FATAL: Failed to initialize broker gateway: %v", err)
	}
	if syncer, ok := gw.(clockSyncer); ok {
		if err := syncer.SetServerTime(ctx); err != nil {
			log.Fatalf("FATAL: Failed to synchronize server time: %v", err)
		}
	}
	appLogger.Info(ctx, "Broker gateway initialized", map[string]interface{}{"broker": gw.Name()})

	// 6. Metrics and alerts
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.New(registry)

	var senders []notify.Sender
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.TelegramToken, cfg.TelegramChatID))
	}
	alerter := notify.NewNotifier(appLogger, senders...)

	// 7. Position lifecycle manager
	manager, err := position.NewManager(position.Config{
		Policy:           cfg.Policy,
		Risk:             cfg.Risk,
		EntryRetry:       cfg.Retry,
		CloseRetry:       cfg.Retry,
		MaxCloseAttempts: cfg.MaxCloseAttempts,
		BrokerTimeout:    cfg.BrokerTimeout,
		ReconcileGrace:   cfg.ReconcileGrace,
		EntryOrderType:   cfg.EntryOrderType,
		EntryFillTimeout: cfg.EntryFillTimeout,
		EntryPoll:        cfg.EntryPoll,
	}, position.Dependencies{
		Gateway:  gw,
		Calendar: cal,
		Ledger:   storage.Ledger,
		Store:    storage.Store,
		Alerter:  alerter,
		Logger:   appLogger,
		Metrics:  collector,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize position manager")
		log.Fatalf("FATAL: Failed to initialize position manager: %v", err)
	}

	// 8. Signal generator
	strat, err := strategy.New(cfg.Strategy, gw, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize trading strategy")
		log.Fatalf("FATAL: Failed to initialize trading strategy: %v", err)
	}

	// 9. Application Service
	server := httpapi.NewServer(cfg.HTTPAddr, httpapi.Dependencies{
		Controller: manager,
		Ledger:     storage.Ledger,
		Location:   cal.Location(),
		Gatherer:   registry,
		Logger:     appLogger,
	})
	tradingService, err := app.NewTradingService(app.Config{
		TickInterval:      cfg.TickInterval,
		SignalInterval:    cfg.SignalInterval,
		ReconcileInterval: cfg.ReconcileInterval,
		ShutdownTimeout:   cfg.ShutdownTimeout,
		QuoteTimeout:      cfg.BrokerTimeout,
		RecoverRetry:      cfg.Retry,
	}, app.Dependencies{
		Engine:   manager,
		Quotes:   gw,
		Signals:  strat,
		Calendar: cal,
		Logger:   appLogger,
		Server:   server,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize trading service")
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}

	// 10. Start the Service
	if err := tradingService.Start(ctx); err != nil {
		appLogger.Error(ctx, err, "Trading service exited with error")
		log.Fatalf("FATAL: Trading service exited with error: %v", err)
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}
