/*
normalize.go - Legacy value tolerance for rule records

PURPOSE:
  Older cost records spell unit basis and period in several legacy ways
  ("night", "piece", "per-person", "month"). Normalization is a versioned
  lookup table applied once at read time, so the evaluation logic only ever
  sees canonical values. No string comparisons against legacy spellings may
  appear outside this file.

RULES:
  Unit basis: "night", "day", "piece", "per-person" all mean per person;
  vehicle cost always normalizes to team regardless of the stored value;
  unknown values default to team. (Defaulting instead of failing mirrors
  the historical records, which predate validation; see CostRule.Validate
  for the structural checks that do fail fast.)

  Period: "month" was the old spelling of the 3-week block; anything
  unrecognized defaults to day. Special line items without a period
  default to once.
*/
package costing

import "strings"

// normalizeTableVersion identifies the active mapping below. Bump it when a
// spelling is added so stored plans can record which table normalized them.
const normalizeTableVersion = 2

var legacyUnitBasis = map[string]UnitBasis{
	"team":       UnitBasisTeam,
	"person":     UnitBasisPerson,
	"night":      UnitBasisPerson,
	"day":        UnitBasisPerson,
	"piece":      UnitBasisPerson,
	"per-person": UnitBasisPerson,
}

var legacyPeriod = map[string]Period{
	"day":   PeriodDay,
	"week":  PeriodWeek,
	"block": PeriodBlock,
	"month": PeriodBlock,
	"once":  PeriodOnce,
}

// NormalizeUnitBasis maps a stored unit-basis value to its canonical form.
func NormalizeUnitBasis(raw string, category Category) UnitBasis {
	if category == CategoryVehicle {
		return UnitBasisTeam
	}
	if b, ok := legacyUnitBasis[canonical(raw)]; ok {
		return b
	}
	return UnitBasisTeam
}

// NormalizePeriod maps a stored period value to its canonical form.
func NormalizePeriod(raw string) Period {
	if p, ok := legacyPeriod[canonical(raw)]; ok {
		return p
	}
	return PeriodDay
}

// NormalizeSpecialPeriod is NormalizePeriod with the special-line-item
// default: an absent period means a one-time cost.
func NormalizeSpecialPeriod(raw string) Period {
	if canonical(raw) == "" {
		return PeriodOnce
	}
	return NormalizePeriod(raw)
}

// NormalizeDistribution maps a stored distribution value; anything that is
// not explicit is proportional.
func NormalizeDistribution(raw string) Distribution {
	if canonical(raw) == string(DistributionExplicit) {
		return DistributionExplicit
	}
	return DistributionProportional
}

func canonical(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
