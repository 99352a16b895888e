// Package metrics exposes the position manager's activity as Prometheus
// collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"optionsBot/internal/domain"
	"optionsBot/internal/ports"
)

const namespace = "optionsbot"

// Collector implements ports.Metrics.
type Collector struct {
	ticksApplied  *prometheus.CounterVec
	ticksDropped  *prometheus.CounterVec
	admissions    *prometheus.CounterVec
	exits         *prometheus.CounterVec
	exitPNL       *prometheus.HistogramVec
	closeFailures prometheus.Counter
	escalations   prometheus.Counter
	sessionPNL    prometheus.Gauge
	tradingHalted prometheus.Gauge
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		ticksApplied: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "ticks_applied_total",
			Help:      "Price ticks applied to the active position",
		}, []string{"symbol"}),
		ticksDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "ticks_dropped_total",
			Help:      "Price ticks ignored, by reason",
		}, []string{"reason"}), // stale, invalid_price, no_position
		admissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "decisions_total",
			Help:      "Admission decisions by outcome (admitted or rejection reason)",
		}, []string{"outcome"}),
		exits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "closed_total",
			Help:      "Closed positions by exit reason",
		}, []string{"reason"}),
		exitPNL: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "realized_pnl",
			Help:      "Realized P&L per closed position",
			Buckets:   []float64{-5000, -2000, -1000, -500, -100, 0, 100, 500, 1000, 2000, 5000},
		}, []string{"reason"}),
		closeFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "close_failures_total",
			Help:      "Exit submissions that failed or stayed unconfirmed",
		}),
		escalations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "close_escalations_total",
			Help:      "Positions whose close exhausted the attempt budget",
		}),
		sessionPNL: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "realized_pnl",
			Help:      "Realized P&L of the current market day",
		}),
		tradingHalted: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "halted",
			Help:      "1 while admissions are halted pending operator action",
		}),
	}
}

func (c *Collector) TickApplied(symbol string) { c.ticksApplied.WithLabelValues(symbol).Inc() }
func (c *Collector) TickDropped(reason string) { c.ticksDropped.WithLabelValues(reason).Inc() }
func (c *Collector) Admission(outcome string)  { c.admissions.WithLabelValues(outcome).Inc() }
func (c *Collector) CloseFailed()              { c.closeFailures.Inc() }
func (c *Collector) Escalated()                { c.escalations.Inc() }
func (c *Collector) SessionPNL(pnl float64)    { c.sessionPNL.Set(pnl) }

func (c *Collector) PositionClosed(reason domain.ExitReason, pnl float64) {
	c.exits.WithLabelValues(string(reason)).Inc()
	c.exitPNL.WithLabelValues(string(reason)).Observe(pnl)
}

func (c *Collector) Halted(halted bool) {
	if halted {
		c.tradingHalted.Set(1)
		return
	}
	c.tradingHalted.Set(0)
}

var _ ports.Metrics = (*Collector)(nil)
