/*
units.go - UnitCalculator

PURPOSE:
  Converts a relevant attendance subset into billable units for one cost
  rule under its period policy.

UNIT MATRIX:
  period | team                          | person
  -------+-------------------------------+--------------------------------
  day    | distinct active days          | sum of per-person active days
  week   | 1 if distinct days >= 3       | persons individually >= 3 days
  block  | 1/3 if distinct days >= 3     | (persons >= 3 days) / 3
  once   | 1 iff no booking ever existed | 1 per untracked attending person

  Sunday is never counted (it does not exist in the day model).

ONCE SEMANTICS:
  The two "once" variants are the only place unit computation is not a
  pure function of the attendance: team-once asks the ledger whether a
  booking for the rule has ever existed, person-once asks the tracking
  store which werber were already granted. Newly qualifying persons are
  returned so the reconciler can persist their tracking rows together
  with the ledger mutation.
*/
package costing

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// weekQualifyDays is the attendance threshold for week and block periods:
// a week (or a person's week) counts only with at least this many active days.
const weekQualifyDays = 3

// UnitResult is a unit count plus the one-time per-person grants that
// produced it.
type UnitResult struct {
	Units        decimal.Decimal
	NewlyTracked []WerberID
}

// UnitCalculator computes billable units. Ledger and Tracking are consulted
// only for once-period rules.
type UnitCalculator struct {
	Ledger   LedgerStore
	Tracking TrackingStore
}

// Units computes the unit count for one rule over the given attendance
// subset. The subset must already be resolved for the rule's distribution
// mode (see CostRuleEvaluator).
func (c *UnitCalculator) Units(ctx context.Context, key EntryKey, rule CostRule, records []AttendanceRecord) (UnitResult, error) {
	switch rule.Period {
	case PeriodDay:
		return UnitResult{Units: c.dayUnits(rule.UnitBasis, records)}, nil
	case PeriodWeek:
		return UnitResult{Units: c.weekUnits(rule.UnitBasis, records)}, nil
	case PeriodBlock:
		week := c.weekUnits(rule.UnitBasis, records)
		return UnitResult{Units: week.Div(decimal.NewFromInt(BlockWeeks))}, nil
	case PeriodOnce:
		return c.onceUnits(ctx, key, rule.UnitBasis, records)
	default:
		return UnitResult{}, fmt.Errorf("unit calculation: unknown period %q", rule.Period)
	}
}

func (c *UnitCalculator) dayUnits(basis UnitBasis, records []AttendanceRecord) decimal.Decimal {
	if basis == UnitBasisPerson {
		total := 0
		for _, r := range records {
			total += r.ActiveDayCount()
		}
		return decimal.NewFromInt(int64(total))
	}
	return decimal.NewFromInt(int64(distinctDays(records).Count()))
}

func (c *UnitCalculator) weekUnits(basis UnitBasis, records []AttendanceRecord) decimal.Decimal {
	if basis == UnitBasisPerson {
		qualified := 0
		for _, r := range records {
			if r.ActiveDayCount() >= weekQualifyDays {
				qualified++
			}
		}
		return decimal.NewFromInt(int64(qualified))
	}
	if distinctDays(records).Count() >= weekQualifyDays {
		return decimal.NewFromInt(1)
	}
	return decimal.Zero
}

// onceUnits answers the two "once ever" questions. Grants attributed to
// the week under recompute do not count as prior charges: re-running a
// week must re-derive its own grant, not cancel it.
func (c *UnitCalculator) onceUnits(ctx context.Context, key EntryKey, basis UnitBasis, records []AttendanceRecord) (UnitResult, error) {
	if basis == UnitBasisTeam {
		if len(records) == 0 {
			return UnitResult{Units: decimal.Zero}, nil
		}
		exists, err := c.Ledger.HasBookingOutsideWeek(ctx, key.RuleKey(), key.Week)
		if err != nil {
			return UnitResult{}, fmt.Errorf("one-time booking lookup: %w", err)
		}
		if exists {
			return UnitResult{Units: decimal.Zero}, nil
		}
		return UnitResult{Units: decimal.NewFromInt(1)}, nil
	}

	tracked, err := c.Tracking.Tracked(ctx, key.RuleKey())
	if err != nil {
		return UnitResult{}, fmt.Errorf("one-time tracking lookup: %w", err)
	}

	var newly []WerberID
	seen := make(map[WerberID]bool)
	for _, r := range records {
		if !r.HasActiveDay() || seen[r.WerberID] {
			continue
		}
		if grantWeek, ok := tracked[r.WerberID]; ok && grantWeek != key.Week {
			continue
		}
		seen[r.WerberID] = true
		newly = append(newly, r.WerberID)
	}
	sort.Slice(newly, func(i, j int) bool { return newly[i] < newly[j] })

	return UnitResult{
		Units:        decimal.NewFromInt(int64(len(newly))),
		NewlyTracked: newly,
	}, nil
}

// distinctDays unions the day flags of all records: the set of days on
// which at least one werber was active.
func distinctDays(records []AttendanceRecord) DaySet {
	var set DaySet
	for _, r := range records {
		set = set.Union(r.Days)
	}
	return set
}
