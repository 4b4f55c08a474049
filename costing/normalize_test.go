package costing_test

import (
	"testing"

	"github.com/fieldops/cost-engine/costing"
)

func TestNormalizeUnitBasis_LegacySpellings(t *testing.T) {
	cases := []struct {
		raw  string
		want costing.UnitBasis
	}{
		{"team", costing.UnitBasisTeam},
		{"person", costing.UnitBasisPerson},
		{"night", costing.UnitBasisPerson},
		{"day", costing.UnitBasisPerson},
		{"piece", costing.UnitBasisPerson},
		{"per-person", costing.UnitBasisPerson},
		{" Person ", costing.UnitBasisPerson},
		{"", costing.UnitBasisTeam},
		{"banana", costing.UnitBasisTeam},
	}
	for _, c := range cases {
		if got := costing.NormalizeUnitBasis(c.raw, costing.CategoryLodging); got != c.want {
			t.Errorf("NormalizeUnitBasis(%q) = %q, want %q", c.raw, got, c.want)
		}
	}
}

func TestNormalizeUnitBasis_VehicleIsAlwaysTeam(t *testing.T) {
	for _, raw := range []string{"person", "night", "piece", ""} {
		if got := costing.NormalizeUnitBasis(raw, costing.CategoryVehicle); got != costing.UnitBasisTeam {
			t.Errorf("vehicle with %q: got %q, want team", raw, got)
		}
	}
}

func TestNormalizePeriod_LegacySpellings(t *testing.T) {
	cases := []struct {
		raw  string
		want costing.Period
	}{
		{"day", costing.PeriodDay},
		{"week", costing.PeriodWeek},
		{"block", costing.PeriodBlock},
		{"month", costing.PeriodBlock},
		{"once", costing.PeriodOnce},
		{" ONCE ", costing.PeriodOnce},
		{"", costing.PeriodDay},
		{"fortnight", costing.PeriodDay},
	}
	for _, c := range cases {
		if got := costing.NormalizePeriod(c.raw); got != c.want {
			t.Errorf("NormalizePeriod(%q) = %q, want %q", c.raw, got, c.want)
		}
	}
}

func TestNormalizeSpecialPeriod_DefaultsToOnce(t *testing.T) {
	if got := costing.NormalizeSpecialPeriod(""); got != costing.PeriodOnce {
		t.Errorf("empty special period: got %q, want once", got)
	}
	if got := costing.NormalizeSpecialPeriod("week"); got != costing.PeriodWeek {
		t.Errorf("explicit special period: got %q, want week", got)
	}
}

func TestNormalizeDistribution(t *testing.T) {
	if got := costing.NormalizeDistribution("explicit"); got != costing.DistributionExplicit {
		t.Errorf("got %q, want explicit", got)
	}
	for _, raw := range []string{"proportional", "", "whatever"} {
		if got := costing.NormalizeDistribution(raw); got != costing.DistributionProportional {
			t.Errorf("NormalizeDistribution(%q) = %q, want proportional", raw, got)
		}
	}
}
