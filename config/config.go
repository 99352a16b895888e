package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"optionsBot/internal/adapters/logger"
	"optionsBot/internal/calendar"
	"optionsBot/internal/ports"
	"optionsBot/internal/position"
	"optionsBot/internal/retry"
	"optionsBot/internal/risk"
	"optionsBot/internal/strategy"
)

// Storage backend names.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Paper random walk start prices for symbols without a configured start.
const (
	defaultPaperPrice   = 25000.0
	defaultPaperPremium = 150.0
)

// Config holds all application configuration.
type Config struct {
	// Broker selection and credentials
	Broker           string
	BinanceAPIKey    string
	BinanceSecretKey string
	BinanceTestnet   bool
	AlpacaAPIKey     string
	AlpacaAPISecret  string
	AlpacaBaseURL    string
	AlpacaDataURL    string
	PaperSlippage    float64
	PaperStepPct     float64
	PaperSeed        uint64
	PaperPrices      map[string]float64 // Random walk start prices per symbol

	// Signal generation
	Strategy strategy.Config

	// Position management
	Risk             risk.RiskConfig
	Policy           position.PolicyConfig
	MaxCloseAttempts int
	EntryOrderType   ports.OrderType
	EntryFillTimeout time.Duration
	EntryPoll        time.Duration
	BrokerTimeout    time.Duration
	ReconcileGrace   time.Duration
	Retry            retry.Policy
	Holidays         []string

	// Drivers
	TickInterval      time.Duration
	SignalInterval    time.Duration
	ReconcileInterval time.Duration
	ShutdownTimeout   time.Duration

	// Storage
	LedgerBackend string // sqlite | postgres
	StoreBackend  string // sqlite | redis | memory
	DBPath        string
	PostgresDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Status API
	HTTPAddr string

	// Alerts
	TelegramToken  string
	TelegramChatID string

	// Reports
	ReportDir      string
	InitialCapital float64
	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3Prefix       string
	S3AccessKey    string
	S3SecretKey    string

	// Logging
	LogLevel  slog.Level
	LogFormat logger.Format
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Broker:         "paper",
		BinanceTestnet: true,
		PaperStepPct:   0.0005,
		PaperSeed:      1,
		PaperPrices:    map[string]float64{},
		Strategy: strategy.Config{
			IndexSymbol:       "NIFTY",
			ShortTermMAPeriod: 5,
			LongTermMAPeriod:  20,
			RSIPeriod:         14,
			RSIOverbought:     70,
			RSIOversold:       30,
			Quantity:          75,
			StopPoints:        20,
			TargetPoints:      40,
		},
		Risk: risk.RiskConfig{
			MaxLossPerTrade:      2000,
			MaxStopPoints:        30,
			DailyLossCap:         5000,
			DailyProfitCap:       10000,
			MaxConsecutiveLosses: 3,
			Cooldown:             15 * time.Minute,
			MaxCandidateAge:      30 * time.Second,
			WindowStart:          calendar.TimeOfDay{Hour: 9, Minute: 20},
			WindowEnd:            calendar.TimeOfDay{Hour: 15, Minute: 0},
		},
		Policy:            position.DefaultPolicyConfig(),
		MaxCloseAttempts:  5,
		EntryOrderType:    ports.OrderTypeMarket,
		EntryFillTimeout:  30 * time.Second,
		EntryPoll:         500 * time.Millisecond,
		BrokerTimeout:     5 * time.Second,
		ReconcileGrace:    30 * time.Second,
		Retry:             retry.DefaultPolicy(),
		TickInterval:      2 * time.Second,
		SignalInterval:    15 * time.Second,
		ReconcileInterval: time.Minute,
		ShutdownTimeout:   15 * time.Second,
		LedgerBackend:     BackendSQLite,
		StoreBackend:      BackendSQLite,
		DBPath:            "./data/options_bot.db",
		RedisAddr:         "localhost:6379",
		HTTPAddr:          ":8080",
		ReportDir:         "./data/reports",
		InitialCapital:    100000,
		S3Region:          "ap-south-1",
		LogLevel:          slog.LevelInfo,
		LogFormat:         logger.FormatText,
	}
}

// LoadConfig loads configuration from the .env file, the optional TOML file
// named by BOT_CONFIG_FILE, and environment variables, in increasing
// precedence.
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := Defaults()
	var errs []string

	if path := getEnv("BOT_CONFIG_FILE", ""); path != "" {
		if err := applyFile(cfg, path); err != nil {
			errs = append(errs, err.Error())
		}
	}

	errs = append(errs, applyEnv(cfg)...)
	errs = append(errs, cfg.validate()...)

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func applyEnv(cfg *Config) []string {
	var errs []string
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	// Broker
	cfg.Broker = strings.ToLower(getEnv("BROKER", cfg.Broker))
	cfg.BinanceAPIKey = getEnv("BINANCE_API_KEY", cfg.BinanceAPIKey)
	cfg.BinanceSecretKey = getEnv("BINANCE_API_SECRET", cfg.BinanceSecretKey)
	cfg.BinanceTestnet = getEnvAsBool("IS_TESTNET", cfg.BinanceTestnet)
	cfg.AlpacaAPIKey = getEnv("ALPACA_API_KEY", cfg.AlpacaAPIKey)
	cfg.AlpacaAPISecret = getEnv("ALPACA_API_SECRET", cfg.AlpacaAPISecret)
	cfg.AlpacaBaseURL = getEnv("ALPACA_BASE_URL", cfg.AlpacaBaseURL)
	cfg.AlpacaDataURL = getEnv("ALPACA_DATA_URL", cfg.AlpacaDataURL)
	collect(envFloat("PAPER_SLIPPAGE", &cfg.PaperSlippage))
	collect(envFloat("PAPER_STEP_PCT", &cfg.PaperStepPct))
	if v := os.Getenv("PAPER_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			collect(fmt.Errorf("invalid PAPER_SEED: %w", err))
		} else {
			cfg.PaperSeed = seed
		}
	}

	// Signal generation
	s := &cfg.Strategy
	s.IndexSymbol = getEnv("INDEX_SYMBOL", s.IndexSymbol)
	s.CallSymbol = getEnv("CALL_SYMBOL", s.CallSymbol)
	s.PutSymbol = getEnv("PUT_SYMBOL", s.PutSymbol)
	s.AllowShort = getEnvAsBool("ALLOW_SHORT", s.AllowShort)
	collect(envFloat("QUANTITY", &s.Quantity))
	collect(envFloat("STOP_POINTS", &s.StopPoints))
	collect(envFloat("TARGET_POINTS", &s.TargetPoints))
	collect(envInt("STRATEGY_SHORT_MA_PERIOD", &s.ShortTermMAPeriod))
	collect(envInt("STRATEGY_LONG_MA_PERIOD", &s.LongTermMAPeriod))
	collect(envInt("STRATEGY_RSI_PERIOD", &s.RSIPeriod))
	collect(envFloat("STRATEGY_RSI_OVERBOUGHT", &s.RSIOverbought))
	collect(envFloat("STRATEGY_RSI_OVERSOLD", &s.RSIOversold))
	if _, ok := cfg.PaperPrices[s.IndexSymbol]; !ok {
		cfg.PaperPrices[s.IndexSymbol] = defaultPaperPrice
	}
	for _, sym := range []string{s.CallSymbol, s.PutSymbol} {
		if _, ok := cfg.PaperPrices[sym]; sym != "" && !ok {
			cfg.PaperPrices[sym] = defaultPaperPremium
		}
	}

	// Risk
	r := &cfg.Risk
	collect(envFloat("MAX_LOSS_PER_TRADE", &r.MaxLossPerTrade))
	collect(envFloat("MAX_STOP_POINTS", &r.MaxStopPoints))
	collect(envFloat("DAILY_LOSS_CAP", &r.DailyLossCap))
	collect(envFloat("DAILY_PROFIT_CAP", &r.DailyProfitCap))
	collect(envInt("MAX_CONSECUTIVE_LOSSES", &r.MaxConsecutiveLosses))
	if v := os.Getenv("COOLDOWN_MINUTES"); v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil {
			collect(fmt.Errorf("invalid integer value '%s' for key COOLDOWN_MINUTES: %w", v, err))
		} else {
			r.Cooldown = time.Duration(minutes) * time.Minute
		}
	}
	collect(envDuration("MAX_CANDIDATE_AGE", &r.MaxCandidateAge))
	collect(envTimeOfDay("TRADING_WINDOW_START", &r.WindowStart))
	collect(envTimeOfDay("TRADING_WINDOW_END", &r.WindowEnd))

	// Trailing policy
	p := &cfg.Policy
	collect(envFloat("BREAKEVEN_TRIGGER_PCT", &p.BreakevenTriggerPct))
	collect(envFloat("BREAKEVEN_BUFFER_PCT", &p.BreakevenBufferPct))
	collect(envFloat("TRAIL_TRIGGER_PCT", &p.TrailTriggerPct))
	collect(envFloat("TRAIL_STEP_PCT", &p.TrailStepPct))
	collect(envFloat("TRAIL_BUFFER_PCT", &p.TrailBufferPct))
	collect(envFloat("OPTION_TRAIL_START_POINTS", &p.OptionTrailStartPoints))
	collect(envFloat("OPTION_TRAIL_GAP_POINTS", &p.OptionTrailGapPoints))
	collect(envFloat("EMERGENCY_STOP_MULTIPLIER", &p.EmergencyStopMultiplier))
	collect(envTimeOfDay("EOD_CUTOFF", &p.EODCutoff))

	// Close, retry and timeouts
	collect(envInt("MAX_CLOSE_ATTEMPTS", &cfg.MaxCloseAttempts))
	if v := os.Getenv("ENTRY_ORDER_TYPE"); v != "" {
		cfg.EntryOrderType = ports.OrderType(strings.ToUpper(v))
	}
	collect(envDuration("ENTRY_FILL_TIMEOUT", &cfg.EntryFillTimeout))
	collect(envDuration("ENTRY_POLL_INTERVAL", &cfg.EntryPoll))
	collect(envDuration("BROKER_TIMEOUT", &cfg.BrokerTimeout))
	collect(envDuration("RECONCILE_GRACE", &cfg.ReconcileGrace))
	collect(envInt("RETRY_MAX_ATTEMPTS", &cfg.Retry.MaxAttempts))
	collect(envDuration("RETRY_MIN_BACKOFF", &cfg.Retry.Min))
	collect(envDuration("RETRY_MAX_BACKOFF", &cfg.Retry.Max))
	if v := getEnv("MARKET_HOLIDAYS", ""); v != "" {
		for _, day := range strings.Split(v, ",") {
			if day = strings.TrimSpace(day); day != "" {
				cfg.Holidays = append(cfg.Holidays, day)
			}
		}
	}

	// Drivers
	collect(envDuration("TICK_INTERVAL", &cfg.TickInterval))
	collect(envDuration("SIGNAL_INTERVAL", &cfg.SignalInterval))
	collect(envDuration("RECONCILE_INTERVAL", &cfg.ReconcileInterval))
	collect(envDuration("SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout))

	// Storage
	cfg.LedgerBackend = strings.ToLower(getEnv("LEDGER_BACKEND", cfg.LedgerBackend))
	cfg.StoreBackend = strings.ToLower(getEnv("STORE_BACKEND", cfg.StoreBackend))
	cfg.DBPath = getEnv("DB_PATH", cfg.DBPath)
	cfg.PostgresDSN = getEnv("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	collect(envInt("REDIS_DB", &cfg.RedisDB))

	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", cfg.TelegramToken)
	cfg.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", cfg.TelegramChatID)

	// Reports
	cfg.ReportDir = getEnv("REPORT_DIR", cfg.ReportDir)
	collect(envFloat("INITIAL_CAPITAL", &cfg.InitialCapital))
	cfg.S3Bucket = getEnv("S3_BUCKET", cfg.S3Bucket)
	cfg.S3Region = getEnv("S3_REGION", cfg.S3Region)
	cfg.S3Endpoint = getEnv("S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3Prefix = getEnv("S3_PREFIX", cfg.S3Prefix)
	cfg.S3AccessKey = getEnv("S3_ACCESS_KEY", cfg.S3AccessKey)
	cfg.S3SecretKey = getEnv("S3_SECRET_KEY", cfg.S3SecretKey)

	// Logging
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = logger.ParseLevel(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = logger.ParseFormat(v)
	}
	return errs
}

func (cfg *Config) validate() []string {
	var errs []string
	switch cfg.Broker {
	case "paper":
	case "binance":
		if cfg.BinanceAPIKey == "" || cfg.BinanceSecretKey == "" {
			errs = append(errs, "BINANCE_API_KEY and BINANCE_API_SECRET must be set for the binance broker")
		}
	case "alpaca":
		if cfg.AlpacaAPIKey == "" || cfg.AlpacaAPISecret == "" {
			errs = append(errs, "ALPACA_API_KEY and ALPACA_API_SECRET must be set for the alpaca broker")
		}
	}
	if err := cfg.Strategy.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := cfg.Risk.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := cfg.Policy.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if cfg.MaxCloseAttempts < 1 {
		errs = append(errs, "MAX_CLOSE_ATTEMPTS must be at least 1")
	}
	if cfg.EntryOrderType != ports.OrderTypeMarket && cfg.EntryOrderType != ports.OrderTypeLimit {
		errs = append(errs, fmt.Sprintf("ENTRY_ORDER_TYPE must be MARKET or LIMIT, got %s", cfg.EntryOrderType))
	}
	if cfg.Retry.MaxAttempts < 1 {
		errs = append(errs, "RETRY_MAX_ATTEMPTS must be at least 1")
	}
	for name, d := range map[string]time.Duration{
		"BROKER_TIMEOUT":      cfg.BrokerTimeout,
		"ENTRY_FILL_TIMEOUT":  cfg.EntryFillTimeout,
		"ENTRY_POLL_INTERVAL": cfg.EntryPoll,
		"TICK_INTERVAL":       cfg.TickInterval,
		"SIGNAL_INTERVAL":     cfg.SignalInterval,
		"RECONCILE_INTERVAL":  cfg.ReconcileInterval,
	} {
		if d <= 0 {
			errs = append(errs, name+" must be positive")
		}
	}
	switch cfg.LedgerBackend {
	case BackendSQLite:
	case BackendPostgres:
		if cfg.PostgresDSN == "" {
			errs = append(errs, "POSTGRES_DSN must be set for the postgres ledger")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown LEDGER_BACKEND %q", cfg.LedgerBackend))
	}
	switch cfg.StoreBackend {
	case BackendSQLite, BackendMemory, BackendRedis:
	default:
		errs = append(errs, fmt.Sprintf("unknown STORE_BACKEND %q", cfg.StoreBackend))
	}
	if (cfg.LedgerBackend == BackendSQLite || cfg.StoreBackend == BackendSQLite) && cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}
	return errs
}

// fileConfig is the TOML overlay layout. Only keys present in the file are applied.
type fileConfig struct {
	Policy struct {
		BreakevenTriggerPct     float64 `toml:"breakeven_trigger_pct"`
		BreakevenBufferPct      float64 `toml:"breakeven_buffer_pct"`
		TrailTriggerPct         float64 `toml:"trail_trigger_pct"`
		TrailStepPct            float64 `toml:"trail_step_pct"`
		TrailBufferPct          float64 `toml:"trail_buffer_pct"`
		OptionTrailStartPoints  float64 `toml:"option_trail_start_points"`
		OptionTrailGapPoints    float64 `toml:"option_trail_gap_points"`
		EmergencyStopMultiplier float64 `toml:"emergency_stop_multiplier"`
		EODCutoff               string  `toml:"eod_cutoff"`
	} `toml:"policy"`
	Risk struct {
		MaxLossPerTrade      float64 `toml:"max_loss_per_trade"`
		MaxStopPoints        float64 `toml:"max_stop_points"`
		DailyLossCap         float64 `toml:"daily_loss_cap"`
		DailyProfitCap       float64 `toml:"daily_profit_cap"`
		MaxConsecutiveLosses int     `toml:"max_consecutive_losses"`
		CooldownMinutes      int     `toml:"cooldown_minutes"`
		WindowStart          string  `toml:"trading_window_start"`
		WindowEnd            string  `toml:"trading_window_end"`
	} `toml:"risk"`
	Strategy struct {
		IndexSymbol  string  `toml:"index_symbol"`
		CallSymbol   string  `toml:"call_symbol"`
		PutSymbol    string  `toml:"put_symbol"`
		Quantity     float64 `toml:"quantity"`
		StopPoints   float64 `toml:"stop_points"`
		TargetPoints float64 `toml:"target_points"`
	} `toml:"strategy"`
	Calendar struct {
		Holidays []string `toml:"holidays"`
	} `toml:"calendar"`
	Paper struct {
		InitialPrices map[string]float64 `toml:"initial_prices"`
	} `toml:"paper"`
}

func applyFile(cfg *Config, path string) error {
	var fc fileConfig
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}

	var errs []string
	setF := func(dst *float64, v float64, key ...string) {
		if md.IsDefined(key...) {
			*dst = v
		}
	}
	setS := func(dst *string, v string, key ...string) {
		if md.IsDefined(key...) {
			*dst = v
		}
	}
	setT := func(dst *calendar.TimeOfDay, v string, key ...string) {
		if !md.IsDefined(key...) {
			return
		}
		t, err := calendar.ParseTimeOfDay(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", strings.Join(key, "."), err))
			return
		}
		*dst = t
	}

	p := &cfg.Policy
	setF(&p.BreakevenTriggerPct, fc.Policy.BreakevenTriggerPct, "policy", "breakeven_trigger_pct")
	setF(&p.BreakevenBufferPct, fc.Policy.BreakevenBufferPct, "policy", "breakeven_buffer_pct")
	setF(&p.TrailTriggerPct, fc.Policy.TrailTriggerPct, "policy", "trail_trigger_pct")
	setF(&p.TrailStepPct, fc.Policy.TrailStepPct, "policy", "trail_step_pct")
	setF(&p.TrailBufferPct, fc.Policy.TrailBufferPct, "policy", "trail_buffer_pct")
	setF(&p.OptionTrailStartPoints, fc.Policy.OptionTrailStartPoints, "policy", "option_trail_start_points")
	setF(&p.OptionTrailGapPoints, fc.Policy.OptionTrailGapPoints, "policy", "option_trail_gap_points")
	setF(&p.EmergencyStopMultiplier, fc.Policy.EmergencyStopMultiplier, "policy", "emergency_stop_multiplier")
	setT(&p.EODCutoff, fc.Policy.EODCutoff, "policy", "eod_cutoff")

	r := &cfg.Risk
	setF(&r.MaxLossPerTrade, fc.Risk.MaxLossPerTrade, "risk", "max_loss_per_trade")
	setF(&r.MaxStopPoints, fc.Risk.MaxStopPoints, "risk", "max_stop_points")
	setF(&r.DailyLossCap, fc.Risk.DailyLossCap, "risk", "daily_loss_cap")
	setF(&r.DailyProfitCap, fc.Risk.DailyProfitCap, "risk", "daily_profit_cap")
	if md.IsDefined("risk", "max_consecutive_losses") {
		r.MaxConsecutiveLosses = fc.Risk.MaxConsecutiveLosses
	}
	if md.IsDefined("risk", "cooldown_minutes") {
		r.Cooldown = time.Duration(fc.Risk.CooldownMinutes) * time.Minute
	}
	setT(&r.WindowStart, fc.Risk.WindowStart, "risk", "trading_window_start")
	setT(&r.WindowEnd, fc.Risk.WindowEnd, "risk", "trading_window_end")

	s := &cfg.Strategy
	setS(&s.IndexSymbol, fc.Strategy.IndexSymbol, "strategy", "index_symbol")
	setS(&s.CallSymbol, fc.Strategy.CallSymbol, "strategy", "call_symbol")
	setS(&s.PutSymbol, fc.Strategy.PutSymbol, "strategy", "put_symbol")
	setF(&s.Quantity, fc.Strategy.Quantity, "strategy", "quantity")
	setF(&s.StopPoints, fc.Strategy.StopPoints, "strategy", "stop_points")
	setF(&s.TargetPoints, fc.Strategy.TargetPoints, "strategy", "target_points")

	cfg.Holidays = append(cfg.Holidays, fc.Calendar.Holidays...)
	for sym, price := range fc.Paper.InitialPrices {
		cfg.PaperPrices[sym] = price
	}

	if len(errs) > 0 {
		return fmt.Errorf("config file %s: %s", path, strings.Join(errs, "; "))
	}
	return nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// envInt overwrites dst when key is set; a set but invalid value is an error.
func envInt(key string, dst *int) error {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	*dst = value
	return nil
}

func envFloat(key string, dst *float64) error {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	*dst = value
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return fmt.Errorf("invalid duration value '%s' for key %s: %w", valueStr, key, err)
	}
	*dst = value
	return nil
}

func envTimeOfDay(key string, dst *calendar.TimeOfDay) error {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	value, err := calendar.ParseTimeOfDay(valueStr)
	if err != nil {
		return fmt.Errorf("key %s: %w", key, err)
	}
	*dst = value
	return nil
}
