package costing_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/fieldops/cost-engine/costing"
)

func daySet(days ...costing.Day) costing.DaySet {
	var s costing.DaySet
	for _, d := range days {
		s.Add(d)
	}
	return s
}

func TestShare_ProportionalToDistinctDays(t *testing.T) {
	a := &costing.ShareAllocator{Index: map[costing.AreaID]costing.DaySet{
		areaOne: daySet(costing.Monday, costing.Tuesday),
		areaTwo: daySet(costing.Monday, costing.Tuesday, costing.Wednesday, costing.Thursday, costing.Friday, costing.Saturday),
	}}

	if got := a.Share(areaOne); !got.Equal(dec("0.25")) {
		t.Errorf("expected 2/8 = 0.25, got %v", got)
	}
	if got := a.Share(areaTwo); !got.Equal(dec("0.75")) {
		t.Errorf("expected 6/8 = 0.75, got %v", got)
	}
}

func TestShare_SumsToOneAcrossAreas(t *testing.T) {
	a := &costing.ShareAllocator{Index: map[costing.AreaID]costing.DaySet{
		areaOne:  daySet(costing.Monday),
		areaTwo:  daySet(costing.Monday, costing.Tuesday),
		"area-3": daySet(costing.Wednesday, costing.Thursday, costing.Friday),
	}}

	total := decimal.Zero
	for area := range a.Index {
		total = total.Add(a.Share(area))
	}
	if !costing.AmountsEqual(total, dec("1")) {
		t.Errorf("shares should sum to 1, got %v", total)
	}
}

func TestShare_EmptyWeekIsZero(t *testing.T) {
	a := &costing.ShareAllocator{Index: map[costing.AreaID]costing.DaySet{}}
	if got := a.Share(areaOne); !got.IsZero() {
		t.Errorf("expected 0 for an empty week, got %v", got)
	}
}

func TestShare_UnknownAreaIsZero(t *testing.T) {
	a := &costing.ShareAllocator{Index: map[costing.AreaID]costing.DaySet{
		areaOne: daySet(costing.Monday),
	}}
	if got := a.Share(areaTwo); !got.IsZero() {
		t.Errorf("expected 0 for an area with no activity, got %v", got)
	}
}
