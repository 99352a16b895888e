package position

import (
	"fmt"

	"optionsBot/internal/domain"
	"optionsBot/internal/ports"
)

// checkInvariants validates a position after a tick update. prev is the
// state before the update.
func checkInvariants(prev, next *domain.Position) error {
	dir := next.Side.Direction()
	violation := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s %s: %s", ports.ErrInvariantViolation, next.ID, next.Symbol, fmt.Sprintf(format, args...))
	}

	if (next.Target-next.EntryPrice)*dir <= 0 {
		return violation("target %.2f on wrong side of entry %.2f", next.Target, next.EntryPrice)
	}
	if (next.Target-next.StopLoss)*dir <= 0 {
		return violation("stop %.2f crossed target %.2f", next.StopLoss, next.Target)
	}
	if (next.EntryPrice-next.StopLoss)*dir <= 0 && !next.BreakevenApplied && !next.TrailActive && !next.IsOption() {
		return violation("stop %.2f beyond entry %.2f without a protective rule", next.StopLoss, next.EntryPrice)
	}
	if next.BreakevenApplied && (next.StopLoss-next.EntryPrice)*dir < 0 {
		return violation("stop %.2f regressed past entry %.2f after breakeven", next.StopLoss, next.EntryPrice)
	}
	if prev != nil {
		if (next.StopLoss-prev.StopLoss)*dir < 0 {
			return violation("stop loosened from %.2f to %.2f", prev.StopLoss, next.StopLoss)
		}
		if prev.BreakevenApplied && !next.BreakevenApplied {
			return violation("breakeven flag reverted")
		}
		if prev.TrailActive && (next.TrailAnchor-prev.TrailAnchor)*dir < 0 {
			return violation("trail anchor moved back from %.2f to %.2f", prev.TrailAnchor, next.TrailAnchor)
		}
	}
	return nil
}
