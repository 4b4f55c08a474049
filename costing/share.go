/*
share.go - ShareAllocator

PURPOSE:
  Splits a shared, non-individualized team-level daily cost across the
  areas concurrently active in a week, in proportion to their staffing
  intensity. Used only for team-based daily rules under proportional
  distribution when the cost plan is the customer-level fallback.

  share(area) = distinct active days attributed to area
              / sum of distinct active days over all areas

  The share multiplies the raw team-day unit count before pricing, so a
  single shared daily rate is never billed more than once in aggregate:
  the shares over all areas sum to exactly 1 (or the week is empty and
  every share is 0).
*/
package costing

import "github.com/shopspring/decimal"

// ShareAllocator computes proportional shares from a week's per-area
// day-activity index (see AttendanceResolver.DayIndex).
type ShareAllocator struct {
	Index map[AreaID]DaySet
}

// Share returns the target area's fraction of the week's total activity.
// Returns 0 when no area has any active day.
func (a *ShareAllocator) Share(area AreaID) decimal.Decimal {
	total := 0
	for _, days := range a.Index {
		total += days.Count()
	}
	if total == 0 {
		return decimal.Zero
	}
	own := a.Index[area].Count()
	return decimal.NewFromInt(int64(own)).Div(decimal.NewFromInt(int64(total)))
}
