// Package gateway maps broker names to adapter constructors.
package gateway

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"optionsBot/internal/adapters/alpacaclient"
	"optionsBot/internal/adapters/binanceclient"
	"optionsBot/internal/adapters/paper"
	"optionsBot/internal/ports"
)

// PaperSettings configures the simulated broker.
type PaperSettings struct {
	Quotes        ports.QuoteSource  // Live quotes; nil uses a random walk
	InitialPrices map[string]float64 // Random walk start prices
	StepPct       float64
	Seed          uint64
	Slippage      float64
}

// Settings carries everything any registered constructor may need.
type Settings struct {
	Broker  string
	Logger  ports.Logger
	Paper   PaperSettings
	Binance binanceclient.Config
	Alpaca  alpacaclient.Config
}

// Factory builds a gateway from settings.
type Factory func(s Settings) (ports.BrokerGateway, error)

// Registry is a name to Factory map safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry knows the paper, binance and alpaca brokers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register("paper", newPaper)
	_ = r.Register("binance", newBinance)
	_ = r.Register("alpaca", newAlpaca)
	return r
}

// Register adds a factory. Names are case-insensitive and unique.
func (r *Registry) Register(name string, f Factory) error {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || f == nil {
		return fmt.Errorf("%w: broker name and factory are required", ports.ErrConfigurationError)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[key]; exists {
		return fmt.Errorf("%w: broker %q already registered", ports.ErrConfigurationError, key)
	}
	r.factories[key] = f
	return nil
}

// Names lists registered brokers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build constructs the gateway named by s.Broker.
func (r *Registry) Build(s Settings) (ports.BrokerGateway, error) {
	key := strings.ToLower(strings.TrimSpace(s.Broker))
	r.mu.RLock()
	f, ok := r.factories[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown broker %q (available: %s)",
			ports.ErrConfigurationError, s.Broker, strings.Join(r.Names(), ", "))
	}
	if s.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	gw, err := f(s)
	if err != nil {
		return nil, fmt.Errorf("build %s gateway: %w", key, err)
	}
	return gw, nil
}

func newPaper(s Settings) (ports.BrokerGateway, error) {
	quotes := s.Paper.Quotes
	if quotes == nil {
		quotes = paper.NewSimFeed(s.Paper.Seed, s.Paper.InitialPrices, s.Paper.StepPct)
	}
	return paper.New(paper.Config{Quotes: quotes, Slippage: s.Paper.Slippage, Logger: s.Logger})
}

func newBinance(s Settings) (ports.BrokerGateway, error) {
	cfg := s.Binance
	cfg.Logger = s.Logger
	return binanceclient.New(cfg)
}

func newAlpaca(s Settings) (ports.BrokerGateway, error) {
	cfg := s.Alpaca
	cfg.Logger = s.Logger
	return alpacaclient.New(cfg)
}
