package costing

import (
	"fmt"
	"time"
)

// =============================================================================
// BILLING CALENDAR - ISO weeks, Monday-Saturday days, 3-week blocks
// =============================================================================

// Day indexes the six billable weekdays. Sunday is deliberately absent:
// it is excluded from all billing.
type Day int

const (
	Monday Day = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday

	// DaysPerWeek is the number of billable days in a week.
	DaysPerWeek = 6
)

// Valid reports whether d is a billable weekday.
func (d Day) Valid() bool {
	return d >= Monday && d < DaysPerWeek
}

func (d Day) String() string {
	names := [DaysPerWeek]string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}
	if !d.Valid() {
		return fmt.Sprintf("day(%d)", int(d))
	}
	return names[d]
}

// Week is an ISO calendar week, the primary billing period granularity.
type Week struct {
	Year   int
	Number int
}

// WeekOf returns the ISO week containing t.
func WeekOf(t time.Time) Week {
	y, w := t.ISOWeek()
	return Week{Year: y, Number: w}
}

func (w Week) String() string {
	return fmt.Sprintf("%04d-W%02d", w.Year, w.Number)
}

// IsZero reports whether w is the zero week.
func (w Week) IsZero() bool {
	return w.Year == 0 && w.Number == 0
}

// BlockWeeks is the length of an accounting block ("Abschnitt"): block-period
// costs are amortized at 1/BlockWeeks per qualifying week.
const BlockWeeks = 3

// Block returns the zero-based accounting block index within the year.
func (w Week) Block() int {
	if w.Number < 1 {
		return 0
	}
	return (w.Number - 1) / BlockWeeks
}

// DaySet is a set of billable weekdays.
type DaySet [DaysPerWeek]bool

// Add marks a day as present. Out-of-range days are ignored.
func (s *DaySet) Add(d Day) {
	if d.Valid() {
		s[d] = true
	}
}

// Union merges o into a copy of s.
func (s DaySet) Union(o DaySet) DaySet {
	for i := range s {
		s[i] = s[i] || o[i]
	}
	return s
}

// Count returns the number of distinct days in the set.
func (s DaySet) Count() int {
	n := 0
	for _, d := range s {
		if d {
			n++
		}
	}
	return n
}
