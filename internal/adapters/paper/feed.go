package paper

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"optionsBot/internal/ports"
)

// SimFeed is a seeded random-walk quote source for paper sessions.
type SimFeed struct {
	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]float64
	step   float64 // Max move per call as a fraction of price
}

// NewSimFeed starts each symbol at its initial price. stepPct is the largest
// move per quote in percent (0.05 = 0.05%); zero freezes prices.
func NewSimFeed(seed uint64, initial map[string]float64, stepPct float64) *SimFeed {
	prices := make(map[string]float64, len(initial))
	for s, p := range initial {
		prices[s] = p
	}
	return &SimFeed{
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		prices: prices,
		step:   stepPct / 100,
	}
}

// Set pins the price of symbol.
func (f *SimFeed) Set(symbol string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = price
}

// GetLastPrice moves the symbol one random step and returns the new price.
func (f *SimFeed) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ports.ErrSymbolUnknown, symbol)
	}
	if f.step > 0 {
		p *= 1 + (f.rng.Float64()*2-1)*f.step
		p = math.Max(0.05, math.Round(p*20)/20) // 0.05 tick size
		f.prices[symbol] = p
	}
	return p, nil
}
