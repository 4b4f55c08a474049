/*
attendance.go - AttendanceResolver

PURPOSE:
  Resolves, per werber and day, the effective sub-area, and filters a
  campaign's raw attendance into the subset relevant to one sub-area.

PRECEDENCE:
  day override > weekly assignment > none

  A werber with no binding for a day contributes that day to no area at
  all; the day is simply unattributed.

OUTPUTS:
  FilterForArea: deep-filtered copy of the attendance restricted to one
                 target area. Days belonging to other areas (or to none)
                 are cleared; records left with no active day are dropped.
  DayIndex:      per-area day-activity index (area -> set of active days),
                 consumed by ShareAllocator.

No side effects; everything here is a pure function of the inputs.
*/
package costing

// =============================================================================
// ATTENDANCE RESOLVER
// =============================================================================

// AttendanceResolver resolves effective areas for one campaign week.
type AttendanceResolver struct {
	assignments map[WerberID]AreaID
	overrides   map[overrideKey]AreaID
}

type overrideKey struct {
	WerberID WerberID
	Day      Day
}

// NewAttendanceResolver indexes the week's assignments and overrides.
// Later entries win on duplicate keys, matching store iteration order.
func NewAttendanceResolver(assignments []WeeklyAssignment, overrides []DayOverride) *AttendanceResolver {
	r := &AttendanceResolver{
		assignments: make(map[WerberID]AreaID, len(assignments)),
		overrides:   make(map[overrideKey]AreaID, len(overrides)),
	}
	for _, a := range assignments {
		r.assignments[a.WerberID] = a.AreaID
	}
	for _, o := range overrides {
		if o.Day.Valid() {
			r.overrides[overrideKey{WerberID: o.WerberID, Day: o.Day}] = o.AreaID
		}
	}
	return r
}

// EffectiveArea returns the unique area a werber's day belongs to.
// The second return is false when the day is unattributed.
func (r *AttendanceResolver) EffectiveArea(w WerberID, d Day) (AreaID, bool) {
	if area, ok := r.overrides[overrideKey{WerberID: w, Day: d}]; ok {
		return area, area != ""
	}
	area, ok := r.assignments[w]
	return area, ok && area != ""
}

// FilterForArea returns a deep-filtered copy of records restricted to the
// target area. Input records are never mutated.
func (r *AttendanceResolver) FilterForArea(records []AttendanceRecord, area AreaID) []AttendanceRecord {
	var out []AttendanceRecord
	for _, rec := range records {
		filtered := rec
		for d := Day(0); d < DaysPerWeek; d++ {
			if !filtered.Days[d] {
				continue
			}
			effective, ok := r.EffectiveArea(rec.WerberID, d)
			if !ok || effective != area {
				filtered.Days[d] = false
			}
		}
		if filtered.HasActiveDay() {
			out = append(out, filtered)
		}
	}
	return out
}

// DayIndex builds the per-area activity index: for each area, the set of
// days on which at least one werber attributed to it was active.
func (r *AttendanceResolver) DayIndex(records []AttendanceRecord) map[AreaID]DaySet {
	index := make(map[AreaID]DaySet)
	for _, rec := range records {
		for d := Day(0); d < DaysPerWeek; d++ {
			if !rec.Days[d] {
				continue
			}
			area, ok := r.EffectiveArea(rec.WerberID, d)
			if !ok {
				continue
			}
			set := index[area]
			set.Add(d)
			index[area] = set
		}
	}
	return index
}
