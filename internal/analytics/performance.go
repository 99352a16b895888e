package analytics

import (
	"math"
	"sort"
	"time"

	"optionsBot/internal/domain"
	"optionsBot/internal/ports"
)

// PerformanceMetrics summarises a set of closed trades.
type PerformanceMetrics struct {
	// Basic Metrics
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	FlatTrades    int
	WinRate       float64
	TotalProfit   float64
	GrossProfit   float64
	GrossLoss     float64 // Negative or zero
	ProfitFactor  float64
	AverageWin    float64
	AverageLoss   float64
	Expectancy    float64

	// Drawdown is measured on cumulative realized P&L starting from InitialCapital.
	InitialCapital  float64
	FinalEquity     float64
	MaxDrawdown     float64 // Absolute, in account currency
	MaxDrawdownPct  float64 // Relative to the equity peak, 0..1
	ReturnOnCapital float64

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageHoldDuration  time.Duration

	ByReason    map[domain.ExitReason]ReasonStats
	BySymbol    map[string]float64
	DailyPNL    map[string]float64 // "2006-01-02" in the summary location
	EquityCurve []EquityPoint
}

// ReasonStats counts exits for one exit reason.
type ReasonStats struct {
	Count int
	PNL   float64
}

// EquityPoint represents a point on the equity curve
type EquityPoint struct {
	Time     time.Time
	Value    float64
	Drawdown float64
}

// AnalyzePerformance calculates performance metrics from trades. Trades are
// ordered by exit time; the input slice is not modified. Day keys use loc,
// or UTC when loc is nil.
func AnalyzePerformance(trades []*domain.Trade, initialCapital float64, loc *time.Location) *PerformanceMetrics {
	if loc == nil {
		loc = time.UTC
	}
	metrics := &PerformanceMetrics{
		InitialCapital: initialCapital,
		FinalEquity:    initialCapital,
		ByReason:       make(map[domain.ExitReason]ReasonStats),
		BySymbol:       make(map[string]float64),
		DailyPNL:       make(map[string]float64),
		EquityCurve:    make([]EquityPoint, 0, len(trades)),
	}
	if len(trades) == 0 {
		return metrics
	}

	sorted := append([]*domain.Trade(nil), trades...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ExitTime.Before(sorted[j].ExitTime)
	})

	equity := initialCapital
	peak := initialCapital
	var wins, losses int
	var totalHold time.Duration

	for _, trade := range sorted {
		metrics.TotalTrades++
		switch {
		case trade.PNL > 0:
			metrics.WinningTrades++
			metrics.GrossProfit += trade.PNL
			wins++
			losses = 0
		case trade.PNL < 0:
			metrics.LosingTrades++
			metrics.GrossLoss += trade.PNL
			losses++
			wins = 0
		default:
			metrics.FlatTrades++
		}
		metrics.MaxConsecutiveWins = max(metrics.MaxConsecutiveWins, wins)
		metrics.MaxConsecutiveLosses = max(metrics.MaxConsecutiveLosses, losses)

		rs := metrics.ByReason[trade.ExitReason]
		rs.Count++
		rs.PNL += trade.PNL
		metrics.ByReason[trade.ExitReason] = rs
		metrics.BySymbol[trade.Symbol] += trade.PNL
		metrics.DailyPNL[trade.ExitTime.In(loc).Format("2006-01-02")] += trade.PNL
		totalHold += trade.ExitTime.Sub(trade.EntryTime)

		equity += trade.PNL
		metrics.TotalProfit += trade.PNL
		if equity > peak {
			peak = equity
		}
		dd := peak - equity
		ddPct := 0.0
		if peak > 0 {
			ddPct = dd / peak
		}
		if dd > metrics.MaxDrawdown {
			metrics.MaxDrawdown = dd
		}
		metrics.MaxDrawdownPct = math.Max(metrics.MaxDrawdownPct, ddPct)
		metrics.EquityCurve = append(metrics.EquityCurve, EquityPoint{
			Time:     trade.ExitTime,
			Value:    equity,
			Drawdown: ddPct,
		})
	}

	metrics.FinalEquity = equity
	metrics.WinRate = float64(metrics.WinningTrades) / float64(metrics.TotalTrades)
	if metrics.WinningTrades > 0 {
		metrics.AverageWin = metrics.GrossProfit / float64(metrics.WinningTrades)
	}
	if metrics.LosingTrades > 0 {
		metrics.AverageLoss = metrics.GrossLoss / float64(metrics.LosingTrades)
	}
	if metrics.GrossLoss < 0 {
		metrics.ProfitFactor = metrics.GrossProfit / -metrics.GrossLoss
	} else if metrics.GrossProfit > 0 {
		metrics.ProfitFactor = math.Inf(1)
	}
	metrics.Expectancy = metrics.TotalProfit / float64(metrics.TotalTrades)
	if initialCapital > 0 {
		metrics.ReturnOnCapital = metrics.TotalProfit / initialCapital
	}
	metrics.AverageHoldDuration = totalHold / time.Duration(metrics.TotalTrades)
	return metrics
}

// DailyReturn is one day of realized P&L.
type DailyReturn struct {
	Day string
	PNL float64
}

// GetDailyReturns returns the daily P&L sorted by day.
func (m *PerformanceMetrics) GetDailyReturns() []DailyReturn {
	returns := make([]DailyReturn, 0, len(m.DailyPNL))
	for day, pnl := range m.DailyPNL {
		returns = append(returns, DailyReturn{Day: day, PNL: pnl})
	}
	sort.Slice(returns, func(i, j int) bool { return returns[i].Day < returns[j].Day })
	return returns
}

// DayStats folds trades (oldest exit first) into ledger day statistics.
// A zero P&L trade neither extends nor breaks the losing streak.
func DayStats(trades []*domain.Trade) *ports.DayStats {
	stats := &ports.DayStats{LastExitByRoot: make(map[string]time.Time)}
	for _, t := range trades {
		stats.RealizedPNL += t.PNL
		stats.Trades++
		switch {
		case t.PNL > 0:
			stats.ConsecutiveLosses = 0
		case t.PNL < 0:
			stats.ConsecutiveLosses++
		}
		root := domain.SymbolRoot(t.Symbol)
		if prev, ok := stats.LastExitByRoot[root]; !ok || t.ExitTime.After(prev) {
			stats.LastExitByRoot[root] = t.ExitTime
		}
	}
	return stats
}
