package indicators

// Indicator is a technical indicator computed over a series of prices,
// oldest first.
type Indicator interface {
	// Calculate computes the indicator value for the given prices
	Calculate(prices []float64) (float64, error)

	// RequiredDataPoints returns the minimum number of prices needed for calculation
	RequiredDataPoints() int

	// Name returns the name of the indicator
	Name() string
}

// IndicatorConfig holds common configuration for indicators
type IndicatorConfig struct {
	Period int
}

// BaseIndicator provides common functionality for indicators
type BaseIndicator struct {
	Config IndicatorConfig
}

// RequiredDataPoints returns the minimum number of prices needed for calculation
func (b *BaseIndicator) RequiredDataPoints() int {
	return b.Config.Period
}
