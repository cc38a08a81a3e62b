package promotion

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

// Tuesday 2025-06-03 17:30 UTC.
var testNow = time.Date(2025, 6, 3, 17, 30, 0, 0, time.UTC)

func TestMatches_NoConditions(t *testing.T) {
	p := &Promotion{}
	assert.True(t, Matches(p, decimal.NewFromInt(10), testNow))
}

func TestMatches_DayOfWeek(t *testing.T) {
	tuesday := &Promotion{DaysOfWeek: []int{2}}
	weekend := &Promotion{DaysOfWeek: []int{0, 6}}

	assert.True(t, Matches(tuesday, decimal.NewFromInt(10), testNow))
	assert.False(t, Matches(weekend, decimal.NewFromInt(10), testNow))
}

func TestMatches_TimeWindow(t *testing.T) {
	inside := &Promotion{StartTime: "16:00", EndTime: "18:00"}
	before := &Promotion{StartTime: "18:00", EndTime: "20:00"}
	after := &Promotion{StartTime: "09:00", EndTime: "11:00"}

	assert.True(t, Matches(inside, decimal.NewFromInt(10), testNow))
	assert.False(t, Matches(before, decimal.NewFromInt(10), testNow))
	assert.False(t, Matches(after, decimal.NewFromInt(10), testNow))
}

func TestMatches_TimeWindowBoundariesInclusive(t *testing.T) {
	p := &Promotion{StartTime: "17:30", EndTime: "17:30"}
	assert.True(t, Matches(p, decimal.NewFromInt(10), testNow))
}

func TestMatches_TimeWindowIgnoredWhenOneEndMissing(t *testing.T) {
	startOnly := &Promotion{StartTime: "23:00"}
	endOnly := &Promotion{EndTime: "01:00"}

	assert.True(t, Matches(startOnly, decimal.NewFromInt(10), testNow))
	assert.True(t, Matches(endOnly, decimal.NewFromInt(10), testNow))
}

func TestMatches_UsageLimit(t *testing.T) {
	exhausted := &Promotion{MaxUses: 3, Uses: 3}
	remaining := &Promotion{MaxUses: 3, Uses: 2}
	unlimited := &Promotion{MaxUses: 0, Uses: 9000}

	assert.False(t, Matches(exhausted, decimal.NewFromInt(10), testNow))
	assert.True(t, Matches(remaining, decimal.NewFromInt(10), testNow))
	assert.True(t, Matches(unlimited, decimal.NewFromInt(10), testNow))
}

func TestMatches_MinimumOrderAmount(t *testing.T) {
	p := &Promotion{MinOrderAmount: decimal.NewFromInt(20)}

	assert.False(t, Matches(p, decimal.NewFromInt(15), testNow))
	assert.True(t, Matches(p, decimal.NewFromInt(20), testNow))
	assert.True(t, Matches(p, decimal.NewFromInt(25), testNow))
}

func TestMatch_PreservesOrderAndFilters(t *testing.T) {
	candidates := []Promotion{
		{ID: "a", Priority: 100},
		{ID: "b", Priority: 50, MinOrderAmount: decimal.NewFromInt(100)},
		{ID: "c", Priority: 10},
	}

	matched := Match(candidates, decimal.NewFromInt(40), testNow)

	assert.Len(t, matched, 2)
	assert.Equal(t, "a", matched[0].ID)
	assert.Equal(t, "c", matched[1].ID)
}
