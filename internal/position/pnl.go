package position

import (
	"github.com/shopspring/decimal"

	"optionsBot/internal/domain"
)

// RealizedPNL returns the realized P&L and P&L percentage, rounded to two
// decimals. Arithmetic is done in decimal so 100 -> 106 x 50 is exactly 300.
func RealizedPNL(side domain.Side, entry, exit, quantity float64) (pnl, pct float64) {
	e := decimal.NewFromFloat(entry)
	x := decimal.NewFromFloat(exit)
	q := decimal.NewFromFloat(quantity)

	d := x.Sub(e).Mul(q)
	if side == domain.Short {
		d = d.Neg()
	}
	notional := e.Mul(q)
	if notional.IsZero() {
		return d.Round(2).InexactFloat64(), 0
	}
	return d.Round(2).InexactFloat64(), d.Div(notional).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
}
