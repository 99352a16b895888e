package position

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionsBot/internal/domain"
)

func openPosition(side domain.Side, symbol string, entry, stop, target float64) domain.Position {
	cfg := DefaultPolicyConfig()
	return domain.Position{
		ID:          "p",
		Symbol:      symbol,
		Side:        side,
		Quantity:    50,
		EntryPrice:  entry,
		StopLoss:    stop,
		InitialStop: stop,
		Target:      target,
		TrailStep:   round2(entry * cfg.TrailStepPct / 100),
		Status:      domain.StatusOpen,
	}
}

func TestApplyTick_LongRules(t *testing.T) {
	cfg := DefaultPolicyConfig()
	p := openPosition(domain.Long, "NIFTY", 25000, 24975, 25400)

	p = ApplyTick(p, 25050, cfg)
	assert.False(t, p.BreakevenApplied)
	assert.Equal(t, 24975.0, p.StopLoss)

	p = ApplyTick(p, 25100, cfg)
	assert.True(t, p.BreakevenApplied)
	assert.Equal(t, 25012.5, p.StopLoss)
	assert.False(t, p.TrailActive)

	p = ApplyTick(p, 25150, cfg)
	require.True(t, p.TrailActive)
	assert.Equal(t, 25150.0, p.TrailAnchor)
	assert.InDelta(t, 25112.28, p.StopLoss, 0.011)

	p = ApplyTick(p, 25260, cfg)
	assert.Equal(t, 25250.0, p.TrailAnchor, "two whole steps of 50")
	assert.InDelta(t, 25212.13, p.StopLoss, 0.011)

	p = ApplyTick(p, 25220, cfg)
	assert.Equal(t, 25250.0, p.TrailAnchor, "anchor never moves back")
	assert.InDelta(t, 25212.13, p.StopLoss, 0.011)
}

func TestApplyTick_ShortRules(t *testing.T) {
	cfg := DefaultPolicyConfig()
	p := openPosition(domain.Short, "NIFTY", 25000, 25025, 24600)

	p = ApplyTick(p, 24900, cfg)
	assert.True(t, p.BreakevenApplied)
	assert.Equal(t, 24987.5, p.StopLoss)

	p = ApplyTick(p, 24850, cfg)
	require.True(t, p.TrailActive)
	assert.Equal(t, 24850.0, p.TrailAnchor)
	assert.InDelta(t, 24887.28, p.StopLoss, 0.011)

	p = ApplyTick(p, 24740, cfg)
	assert.Equal(t, 24750.0, p.TrailAnchor)
	assert.InDelta(t, 24787.13, p.StopLoss, 0.011)
}

func TestApplyTick_SupportClamp(t *testing.T) {
	cfg := DefaultPolicyConfig()
	p := openPosition(domain.Long, "NIFTY", 25000, 24975, 25400)
	p.SupportResistance = 25100

	p = ApplyTick(p, 25300, cfg)
	require.True(t, p.TrailActive)
	assert.Equal(t, 25300.0, p.TrailAnchor)
	assert.Equal(t, 25100.0, p.StopLoss, "trailed stop is held at the support level")

	s := openPosition(domain.Short, "NIFTY", 25000, 25025, 24600)
	s.SupportResistance = 24900
	s = ApplyTick(s, 24700, cfg)
	assert.Equal(t, 24900.0, s.StopLoss)
}

func TestApplyTick_OptionPointTrail(t *testing.T) {
	cfg := DefaultPolicyConfig()
	cfg.BreakevenTriggerPct = 0
	cfg.TrailTriggerPct = 0
	p := openPosition(domain.Long, "NIFTY25OCT25000CE", 100, 80, 160)

	p = ApplyTick(p, 120, cfg)
	assert.Equal(t, 80.0, p.StopLoss, "excursion must exceed the start threshold")

	p = ApplyTick(p, 125, cfg)
	assert.Equal(t, 115.0, p.StopLoss)

	p = ApplyTick(p, 121, cfg)
	assert.Equal(t, 115.0, p.StopLoss, "stops only tighten")

	idx := openPosition(domain.Long, "NIFTY", 100, 80, 160)
	idx = ApplyTick(idx, 125, cfg)
	assert.Equal(t, 80.0, idx.StopLoss, "index legs ignore the point rule")
}

func TestApplyTick_StopNeverCrossesTarget(t *testing.T) {
	cfg := DefaultPolicyConfig()
	cfg.BreakevenTriggerPct = 0.1
	p := openPosition(domain.Long, "NIFTY", 100, 99, 100.04)

	p = ApplyTick(p, 100.2, cfg)
	assert.Equal(t, 99.0, p.StopLoss)
	assert.False(t, p.BreakevenApplied)
}

func TestApplyTick_Idempotent(t *testing.T) {
	cfg := DefaultPolicyConfig()
	for _, price := range []float64{25010, 25100, 25150, 25199.99, 25260, 25333.35} {
		p := openPosition(domain.Long, "NIFTY", 25000, 24975, 25400)
		once := ApplyTick(p, price, cfg)
		twice := ApplyTick(once, price, cfg)
		assert.Equal(t, once, twice, "price %.2f", price)
	}
}

// Random walks must keep the ratchet monotonic, breakeven one-shot, and the
// stop on the protective side of the target.
func TestApplyTick_RandomWalkProperties(t *testing.T) {
	cfg := DefaultPolicyConfig()
	rng := rand.New(rand.NewSource(42))

	for _, side := range []domain.Side{domain.Long, domain.Short} {
		for run := 0; run < 200; run++ {
			dir := side.Direction()
			p := openPosition(side, "NIFTY", 25000, 25000-dir*25, 25000+dir*400)
			price := 25000.0
			prev := p
			for step := 0; step < 300; step++ {
				price += float64(rng.Intn(41)-20) * 0.5
				next := ApplyTick(prev, price, cfg)
				require.NoError(t, checkInvariants(&prev, &next))

				if prev.TrailActive {
					assert.GreaterOrEqual(t, (next.TrailAnchor-prev.TrailAnchor)*dir, 0.0)
				}
				if prev.BreakevenApplied {
					assert.True(t, next.BreakevenApplied)
					assert.GreaterOrEqual(t, (next.StopLoss-next.EntryPrice)*dir, 0.0)
				}
				assert.Greater(t, (next.Target-next.StopLoss)*dir, 0.0)
				assert.GreaterOrEqual(t, (next.StopLoss-prev.StopLoss)*dir, 0.0)
				prev = next
			}
		}
	}
}

func TestPolicyConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultPolicyConfig().Validate())

	bad := DefaultPolicyConfig()
	bad.TrailBufferPct = 1
	bad.EmergencyStopMultiplier = 0
	bad.OptionTrailGapPoints = -1
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trail buffer")
	assert.Contains(t, err.Error(), "emergency multiplier must be positive")
	assert.Contains(t, err.Error(), "option trail gap")
}
