package costing_test

import (
	"testing"

	"github.com/fieldops/cost-engine/costing"
)

func TestEffectiveArea_OverrideBeatsAssignment(t *testing.T) {
	r := costing.NewAttendanceResolver(
		[]costing.WeeklyAssignment{assign("w1", areaOne)},
		[]costing.DayOverride{override("w1", costing.Tuesday, areaTwo)},
	)

	if area, ok := r.EffectiveArea("w1", costing.Monday); !ok || area != areaOne {
		t.Errorf("Monday: expected %s, got %s (ok=%v)", areaOne, area, ok)
	}
	if area, ok := r.EffectiveArea("w1", costing.Tuesday); !ok || area != areaTwo {
		t.Errorf("Tuesday: expected override to %s, got %s (ok=%v)", areaTwo, area, ok)
	}
}

func TestEffectiveArea_UnboundWerberIsUnattributed(t *testing.T) {
	r := costing.NewAttendanceResolver(nil, nil)
	if _, ok := r.EffectiveArea("w1", costing.Monday); ok {
		t.Error("expected an unbound werber's day to be unattributed")
	}
}

func TestFilterForArea_ClearsForeignDaysAndDropsEmptyRecords(t *testing.T) {
	// GIVEN: w1 in area one with Tuesday overridden away, w2 entirely in
	//        area two, w3 unassigned
	// WHEN: Filtering for area one
	// THEN: Only w1 survives, with just Monday active

	r := costing.NewAttendanceResolver(
		[]costing.WeeklyAssignment{assign("w1", areaOne), assign("w2", areaTwo)},
		[]costing.DayOverride{override("w1", costing.Tuesday, areaTwo)},
	)
	records := []costing.AttendanceRecord{
		rec(week36, "w1", costing.Monday, costing.Tuesday),
		rec(week36, "w2", costing.Monday),
		rec(week36, "w3", costing.Monday),
	}

	filtered := r.FilterForArea(records, areaOne)
	if len(filtered) != 1 {
		t.Fatalf("expected 1 surviving record, got %d", len(filtered))
	}
	if filtered[0].WerberID != "w1" {
		t.Errorf("expected w1, got %s", filtered[0].WerberID)
	}
	if !filtered[0].Days[costing.Monday] || filtered[0].Days[costing.Tuesday] {
		t.Errorf("expected only Monday active, got %v", filtered[0].Days)
	}

	// Input must not be mutated.
	if !records[0].Days[costing.Tuesday] {
		t.Error("FilterForArea mutated its input")
	}
}

func TestDayIndex_AggregatesAcrossWerbers(t *testing.T) {
	r := costing.NewAttendanceResolver(
		[]costing.WeeklyAssignment{assign("w1", areaOne), assign("w2", areaOne), assign("w3", areaTwo)},
		nil,
	)
	index := r.DayIndex([]costing.AttendanceRecord{
		rec(week36, "w1", costing.Monday, costing.Tuesday),
		rec(week36, "w2", costing.Tuesday, costing.Wednesday),
		rec(week36, "w3", costing.Friday),
	})

	if got := index[areaOne].Count(); got != 3 {
		t.Errorf("area one: expected 3 distinct days, got %d", got)
	}
	if got := index[areaTwo].Count(); got != 1 {
		t.Errorf("area two: expected 1 distinct day, got %d", got)
	}
}

func TestNewAttendanceResolver_DropsInvalidOverrideDays(t *testing.T) {
	r := costing.NewAttendanceResolver(
		[]costing.WeeklyAssignment{assign("w1", areaOne)},
		[]costing.DayOverride{{WerberID: "w1", Day: costing.Day(9), AreaID: areaTwo}},
	)
	if area, ok := r.EffectiveArea("w1", costing.Monday); !ok || area != areaOne {
		t.Errorf("expected the weekly assignment to stand, got %s (ok=%v)", area, ok)
	}
}
