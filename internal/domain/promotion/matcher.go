package promotion

import (
	"time"

	"github.com/shopspring/decimal"
)

// Matches reports whether a promotion's runtime conditions hold for an order
// with the given subtotal at the given instant. The catalog query already
// filters on active/automatic flags and the date window; this covers the
// conditions that need the order or the wall clock.
func Matches(p *Promotion, orderSubtotal decimal.Decimal, now time.Time) bool {
	if len(p.DaysOfWeek) > 0 && !containsDay(p.DaysOfWeek, int(now.Weekday())) {
		return false
	}

	// Zero-padded "HH:MM" strings compare correctly as strings, so no time
	// parsing is needed. The window only applies when both ends are set.
	if p.StartTime != "" && p.EndTime != "" {
		hm := now.Format("15:04")
		if hm < p.StartTime || hm > p.EndTime {
			return false
		}
	}

	if p.MaxUses > 0 && p.Uses >= p.MaxUses {
		return false
	}

	if p.MinOrderAmount.IsPositive() && orderSubtotal.LessThan(p.MinOrderAmount) {
		return false
	}

	return true
}

// Match filters candidates against the order subtotal and clock, preserving
// the priority order the catalog returned them in.
func Match(candidates []Promotion, orderSubtotal decimal.Decimal, now time.Time) []Promotion {
	matched := make([]Promotion, 0, len(candidates))
	for i := range candidates {
		if Matches(&candidates[i], orderSubtotal, now) {
			matched = append(matched, candidates[i])
		}
	}
	return matched
}

func containsDay(days []int, day int) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}
