package costing_test

import (
	"context"
	"testing"
	"time"

	"github.com/fieldops/cost-engine/costing"
	"github.com/fieldops/cost-engine/costing/store"
)

func newCalc(mem *store.Memory) *costing.UnitCalculator {
	return &costing.UnitCalculator{Ledger: mem, Tracking: mem}
}

func entryKey(category costing.Category, week costing.Week) costing.EntryKey {
	return costing.EntryKey{
		CustomerID: custACME,
		CampaignID: campaignSouth,
		AreaID:     areaOne,
		Category:   category,
		Week:       week,
	}
}

// =============================================================================
// DAY PERIOD
// =============================================================================

func TestUnits_DayTeam_CountsDistinctDays(t *testing.T) {
	// GIVEN: Two werbers overlapping on Monday and Tuesday, one adds Wednesday
	// THEN: 3 distinct days, overlaps counted once

	calc := newCalc(store.NewMemory())
	r := rule(costing.CategoryVehicle, "50", costing.UnitBasisTeam, costing.PeriodDay)

	result, err := calc.Units(context.Background(), entryKey(r.Category, week36), r, []costing.AttendanceRecord{
		rec(week36, "w1", costing.Monday, costing.Tuesday, costing.Wednesday),
		rec(week36, "w2", costing.Monday, costing.Tuesday),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Units.Equal(dec("3")) {
		t.Errorf("expected 3 distinct days, got %v", result.Units)
	}
}

func TestUnits_DayPerson_SumsPerPersonDays(t *testing.T) {
	calc := newCalc(store.NewMemory())
	r := rule(costing.CategoryMeals, "15", costing.UnitBasisPerson, costing.PeriodDay)

	result, err := calc.Units(context.Background(), entryKey(r.Category, week36), r, []costing.AttendanceRecord{
		rec(week36, "w1", costing.Monday, costing.Tuesday, costing.Wednesday),
		rec(week36, "w2", costing.Monday, costing.Tuesday),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Units.Equal(dec("5")) {
		t.Errorf("expected 3+2=5 person-days, got %v", result.Units)
	}
}

func TestUnits_DayTeam_NoDoubleCountingAcrossAreas(t *testing.T) {
	// GIVEN: Areas staffed on disjoint days of the week
	// THEN: Summing each area's day/team units over its filtered subset
	//       equals the campaign's total distinct active days

	resolver := costing.NewAttendanceResolver([]costing.WeeklyAssignment{
		assign("w1", areaOne), assign("w2", areaTwo),
	}, nil)
	records := []costing.AttendanceRecord{
		rec(week36, "w1", costing.Monday, costing.Tuesday),
		rec(week36, "w2", costing.Wednesday, costing.Thursday, costing.Friday),
	}

	calc := newCalc(store.NewMemory())
	r := rule(costing.CategoryVehicle, "50", costing.UnitBasisTeam, costing.PeriodDay)

	total := dec("0")
	for _, area := range []costing.AreaID{areaOne, areaTwo} {
		subset := resolver.FilterForArea(records, area)
		result, err := calc.Units(context.Background(), entryKey(r.Category, week36), r, subset)
		if err != nil {
			t.Fatalf("area %s: %v", area, err)
		}
		total = total.Add(result.Units)
	}
	if !total.Equal(dec("5")) {
		t.Errorf("expected per-area units to sum to 5 campaign days, got %v", total)
	}
}

// =============================================================================
// WEEK AND BLOCK PERIODS
// =============================================================================

func TestUnits_WeekTeam_QualifiesAtThreeDays(t *testing.T) {
	// GIVEN: A team-weekly rule
	// THEN: 2 distinct days yield 0 units, 3 distinct days yield 1

	calc := newCalc(store.NewMemory())
	r := rule(costing.CategoryLodging, "200", costing.UnitBasisTeam, costing.PeriodWeek)
	key := entryKey(r.Category, week36)

	below, err := calc.Units(context.Background(), key, r, []costing.AttendanceRecord{
		rec(week36, "w1", costing.Monday),
		rec(week36, "w2", costing.Tuesday),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !below.Units.IsZero() {
		t.Errorf("expected 0 units below the threshold, got %v", below.Units)
	}

	at, err := calc.Units(context.Background(), key, r, []costing.AttendanceRecord{
		rec(week36, "w1", costing.Monday, costing.Tuesday),
		rec(week36, "w2", costing.Wednesday),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !at.Units.Equal(dec("1")) {
		t.Errorf("expected 1 unit at 3 distinct days, got %v", at.Units)
	}
}

func TestUnits_WeekPerson_CountsQualifyingPersonsIndividually(t *testing.T) {
	// GIVEN: w1 with 3 active days, w2 with 2
	// THEN: Only w1 qualifies

	calc := newCalc(store.NewMemory())
	r := rule(costing.CategoryLodging, "80", costing.UnitBasisPerson, costing.PeriodWeek)

	result, err := calc.Units(context.Background(), entryKey(r.Category, week36), r, []costing.AttendanceRecord{
		rec(week36, "w1", costing.Monday, costing.Tuesday, costing.Wednesday),
		rec(week36, "w2", costing.Monday, costing.Tuesday),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Units.Equal(dec("1")) {
		t.Errorf("expected 1 qualifying person, got %v", result.Units)
	}
}

func TestUnits_BlockIsWeekAmortizedOverThreeWeeks(t *testing.T) {
	calc := newCalc(store.NewMemory())
	r := rule(costing.CategoryClothing, "90", costing.UnitBasisTeam, costing.PeriodBlock)

	result, err := calc.Units(context.Background(), entryKey(r.Category, week36), r, []costing.AttendanceRecord{
		rec(week36, "w1", costing.Monday, costing.Tuesday, costing.Wednesday),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := dec("1").Div(dec("3"))
	if !result.Units.Equal(want) {
		t.Errorf("expected 1/3 unit, got %v", result.Units)
	}
}

// =============================================================================
// ONCE PERIOD
// =============================================================================

func TestUnits_OnceTeam_SuppressedByBookingInAnotherWeek(t *testing.T) {
	// GIVEN: A prior booking for the rule in week 36
	// WHEN: Computing week 37
	// THEN: 0 units; the charge already happened

	ctx := context.Background()
	mem := store.NewMemory()
	calc := newCalc(mem)
	r := rule(costing.CategoryVehicle, "300", costing.UnitBasisTeam, costing.PeriodOnce)
	attended := []costing.AttendanceRecord{rec(week37, "w1", costing.Monday)}

	mem.Insert(ctx, costing.LedgerEntry{
		ID:         "entry-1",
		CustomerID: custACME,
		CampaignID: campaignSouth,
		AreaID:     areaOne,
		Category:   r.Category,
		Kind:       costing.EntryBooking,
		Amount:     dec("300"),
		Week:       week36,
		CreatedAt:  time.Now(),
	})

	result, err := calc.Units(ctx, entryKey(r.Category, week37), r, attended)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Units.IsZero() {
		t.Errorf("expected 0 units with a prior booking, got %v", result.Units)
	}
}

func TestUnits_OnceTeam_OwnWeekBookingDoesNotSuppress(t *testing.T) {
	// GIVEN: The only existing booking belongs to the week being recomputed
	// THEN: Still 1 unit; re-running a week must re-derive its own charge

	ctx := context.Background()
	mem := store.NewMemory()
	calc := newCalc(mem)
	r := rule(costing.CategoryVehicle, "300", costing.UnitBasisTeam, costing.PeriodOnce)

	mem.Insert(ctx, costing.LedgerEntry{
		ID:         "entry-1",
		CustomerID: custACME,
		CampaignID: campaignSouth,
		AreaID:     areaOne,
		Category:   r.Category,
		Kind:       costing.EntryBooking,
		Amount:     dec("300"),
		Week:       week36,
		CreatedAt:  time.Now(),
	})

	result, err := calc.Units(ctx, entryKey(r.Category, week36), r, []costing.AttendanceRecord{
		rec(week36, "w1", costing.Monday),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Units.Equal(dec("1")) {
		t.Errorf("expected 1 unit when the only booking is this week's own, got %v", result.Units)
	}
}

func TestUnits_OnceTeam_NoAttendanceNoCharge(t *testing.T) {
	calc := newCalc(store.NewMemory())
	r := rule(costing.CategoryVehicle, "300", costing.UnitBasisTeam, costing.PeriodOnce)

	result, err := calc.Units(context.Background(), entryKey(r.Category, week36), r, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Units.IsZero() {
		t.Errorf("expected 0 units without attendance, got %v", result.Units)
	}
}

func TestUnits_OncePerson_GrantWeekControlsSuppression(t *testing.T) {
	// GIVEN: w1 granted in week 36, w2 never granted
	// WHEN: Computing week 37 with both attending
	// THEN: Only w2 is newly tracked
	// AND WHEN: Re-computing week 36 with w1 attending
	// THEN: w1's own-week grant does not suppress them

	ctx := context.Background()
	mem := store.NewMemory()
	calc := newCalc(mem)
	r := rule(costing.CategoryCredentials, "10", costing.UnitBasisPerson, costing.PeriodOnce)

	mem.Upsert(ctx, costing.TrackingKey{
		CustomerID: custACME,
		CampaignID: campaignSouth,
		AreaID:     areaOne,
		WerberID:   "w1",
		Category:   r.Category,
	}, week36)

	later, err := calc.Units(ctx, entryKey(r.Category, week37), r, []costing.AttendanceRecord{
		rec(week37, "w1", costing.Monday),
		rec(week37, "w2", costing.Monday),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !later.Units.Equal(dec("1")) {
		t.Errorf("expected 1 unit for the untracked werber, got %v", later.Units)
	}
	if len(later.NewlyTracked) != 1 || later.NewlyTracked[0] != "w2" {
		t.Errorf("expected only w2 newly tracked, got %v", later.NewlyTracked)
	}

	same, err := calc.Units(ctx, entryKey(r.Category, week36), r, []costing.AttendanceRecord{
		rec(week36, "w1", costing.Monday),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !same.Units.Equal(dec("1")) {
		t.Errorf("expected w1 re-derived in their grant week, got %v units", same.Units)
	}
}

func TestUnits_OncePerson_IgnoresInactiveAndDuplicateRecords(t *testing.T) {
	calc := newCalc(store.NewMemory())
	r := rule(costing.CategoryCredentials, "10", costing.UnitBasisPerson, costing.PeriodOnce)

	result, err := calc.Units(context.Background(), entryKey(r.Category, week36), r, []costing.AttendanceRecord{
		rec(week36, "w1", costing.Monday),
		rec(week36, "w1", costing.Tuesday), // duplicate werber
		rec(week36, "w2"),                  // no active day
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Units.Equal(dec("1")) {
		t.Errorf("expected 1 unit, got %v", result.Units)
	}
	if len(result.NewlyTracked) != 1 || result.NewlyTracked[0] != "w1" {
		t.Errorf("expected only w1 tracked once, got %v", result.NewlyTracked)
	}
}
