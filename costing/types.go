/*
Package costing is the cost-allocation and reconciliation engine for
field-campaign operating costs.

PURPOSE:
  Given daily attendance of canvassers ("werber") assigned to campaign
  sub-areas, the engine derives monetary cost bookings per area, per cost
  category, per calendar week, and keeps a ledger synchronized with those
  computed values as inputs change.

KEY CONCEPTS IN THIS FILE (types.go):
  - CostRule: one cost category's pricing policy (basis, period, distribution)
  - SpecialLineItem: an ad hoc, named one-off cost rule
  - AttendanceRecord: one werber's Monday-Saturday day flags for a week
  - LedgerEntry: a booking or correction row in the cost ledger
  - TrackingKey: "this person already received their one-time charge"

DESIGN PRINCIPLES:
  1. Precision: all money and unit arithmetic uses decimal.Decimal
  2. Type safety: typed string IDs prevent mixing customers/campaigns/areas
  3. Recompute-from-source: the engine always derives a fresh target amount
     from attendance, never applies incremental deltas, so re-running is safe
  4. Billed immutability: once a booking is on a non-draft invoice, changes
     are expressed as append-only correction rows

SEE ALSO:
  - normalize.go: legacy value tolerance (old enum spellings)
  - evaluator.go: the orchestrating recompute pipeline
  - reconcile.go: ledger convergence rules
*/
package costing

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CustomerID string
type CampaignID string
type AreaID string
type WerberID string
type InvoiceID string
type EntryID string

// =============================================================================
// COST CATEGORIES
// =============================================================================

// Category is a cost type. The fixed categories below cover the standard
// operating costs of a campaign; special line items get a synthetic
// category via SpecialCategory so they share the same ledger key space
// without colliding with the fixed set.
type Category string

const (
	CategoryVehicle     Category = "vehicle"
	CategoryLodging     Category = "lodging"
	CategoryMeals       Category = "meals"
	CategoryClothing    Category = "clothing"
	CategoryCredentials Category = "credentials"
)

// FixedCategories lists the standard categories in display order.
var FixedCategories = []Category{
	CategoryVehicle,
	CategoryLodging,
	CategoryMeals,
	CategoryClothing,
	CategoryCredentials,
}

const specialPrefix = "special:"

// SpecialCategory builds the synthetic ledger category for a named
// special line item.
func SpecialCategory(name string) Category {
	return Category(specialPrefix + name)
}

// IsSpecial reports whether c was produced by SpecialCategory.
func (c Category) IsSpecial() bool {
	return len(c) > len(specialPrefix) && c[:len(specialPrefix)] == specialPrefix
}

// =============================================================================
// RULE DIMENSIONS - unit basis, billing period, distribution mode
// =============================================================================

// UnitBasis determines whether a rule is priced per team or per person.
type UnitBasis string

const (
	UnitBasisTeam   UnitBasis = "team"
	UnitBasisPerson UnitBasis = "person"
)

// Period determines how attendance converts into billable units.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodBlock Period = "block" // 3-week accounting period, amortized weekly
	PeriodOnce  Period = "once"  // at most once over the rule's lifetime
)

// Distribution determines which attendance a rule sees.
type Distribution string

const (
	// DistributionProportional: the rule sees the area-filtered attendance;
	// shared team-daily costs are additionally split across areas by
	// relative staffing intensity (see ShareAllocator).
	DistributionProportional Distribution = "proportional"

	// DistributionExplicit: the whole campaign's cost is pinned to exactly
	// one area (ExplicitAreaID); every other area owes nothing.
	DistributionExplicit Distribution = "explicit"
)

// =============================================================================
// COST RULES - one rule per category, plus ad hoc special line items
// =============================================================================

// CostRule is one cost category's pricing policy.
type CostRule struct {
	Category       Category
	Active         bool
	Amount         decimal.Decimal // unit price
	UnitBasis      UnitBasis
	Period         Period
	Distribution   Distribution
	ExplicitAreaID AreaID // required iff Distribution is explicit
	Label          string
}

// Validate fails fast on rules that cannot be evaluated. Unknown enum
// spellings are handled earlier by normalization; this catches structurally
// broken records.
func (r CostRule) Validate() error {
	if r.Category == "" {
		return &InvalidRuleError{Category: r.Category, Field: "category"}
	}
	if r.Distribution == DistributionExplicit && r.ExplicitAreaID == "" {
		return &InvalidRuleError{Category: r.Category, Field: "explicitAreaId"}
	}
	return nil
}

// SpecialLineItem is an ad hoc cost rule outside the fixed categories,
// keyed by a free-text name and priced by Sum. Period defaults to once
// when absent (applied during normalization).
type SpecialLineItem struct {
	Name           string
	Active         bool
	Sum            decimal.Decimal
	UnitBasis      UnitBasis
	Period         Period
	Distribution   Distribution
	ExplicitAreaID AreaID
}

// Rule converts the item into a CostRule under its synthetic category so
// the evaluation pipeline treats fixed and special costs uniformly.
func (s SpecialLineItem) Rule() CostRule {
	return CostRule{
		Category:       SpecialCategory(s.Name),
		Active:         s.Active,
		Amount:         s.Sum,
		UnitBasis:      s.UnitBasis,
		Period:         s.Period,
		Distribution:   s.Distribution,
		ExplicitAreaID: s.ExplicitAreaID,
		Label:          s.Name,
	}
}

// =============================================================================
// COST PLAN - the loaded configuration for one evaluation
// =============================================================================

// PlanSource records where a plan came from. Shared team-daily costs are
// prorated across areas only when the plan is the customer-level fallback;
// an area with its own individualized plan gets the full allocation.
type PlanSource string

const (
	PlanSourceArea     PlanSource = "area"
	PlanSourceCustomer PlanSource = "customer"
)

// CostPlan is the set of rules in force for one (customer, campaign, area).
type CostPlan struct {
	Rules    []CostRule
	Specials []SpecialLineItem
	Source   PlanSource
}

// =============================================================================
// ATTENDANCE AND ASSIGNMENTS
// =============================================================================

// AttendanceRecord holds one werber's day flags for a week.
// Sunday does not exist in this model: it is never billable.
type AttendanceRecord struct {
	WerberID WerberID
	Week     Week
	Days     [DaysPerWeek]bool
}

// ActiveDayCount returns the number of set day flags.
func (r AttendanceRecord) ActiveDayCount() int {
	n := 0
	for _, d := range r.Days {
		if d {
			n++
		}
	}
	return n
}

// HasActiveDay reports whether any day flag is set.
func (r AttendanceRecord) HasActiveDay() bool {
	return r.ActiveDayCount() > 0
}

// WeeklyAssignment binds a werber to their default sub-area for a week.
type WeeklyAssignment struct {
	WerberID WerberID
	AreaID   AreaID
}

// DayOverride sends a werber to a different sub-area for exactly one day,
// beating the weekly assignment.
type DayOverride struct {
	WerberID WerberID
	Day      Day
	AreaID   AreaID
}

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

// EntryKind distinguishes the primary booking row from append-only
// correction rows.
type EntryKind string

const (
	EntryBooking    EntryKind = "booking"
	EntryCorrection EntryKind = "correction"
)

// EntryKey identifies the at-most-one booking row for a rule and week.
type EntryKey struct {
	CustomerID CustomerID
	CampaignID CampaignID
	AreaID     AreaID
	Category   Category
	Week       Week
}

// RuleKey is the week-independent scope of a rule, used for "once ever"
// checks and person tracking.
func (k EntryKey) RuleKey() RuleKey {
	return RuleKey{
		CustomerID: k.CustomerID,
		CampaignID: k.CampaignID,
		AreaID:     k.AreaID,
		Category:   k.Category,
	}
}

type RuleKey struct {
	CustomerID CustomerID
	CampaignID CampaignID
	AreaID     AreaID
	Category   Category
}

// LedgerEntry is one row in the cost ledger.
//
// INVARIANTS:
//   - At most one booking-kind entry exists per EntryKey.
//   - Correction-kind entries are append-only and never unique-constrained.
//   - A booking's Amount is immutable once InvoiceID references a non-draft
//     invoice; further changes are expressed via correction entries.
type LedgerEntry struct {
	ID          EntryID
	CustomerID  CustomerID
	CampaignID  CampaignID
	AreaID      AreaID
	Category    Category
	UnitBasis   UnitBasis
	Period      Period
	Kind        EntryKind
	Amount      decimal.Decimal
	Units       decimal.Decimal
	UnitPrice   decimal.Decimal
	Label       string
	Week        Week
	Description string
	InvoiceID   InvoiceID
	CreatedAt   time.Time
}

// Key returns the entry's reconciliation tuple.
func (e LedgerEntry) Key() EntryKey {
	return EntryKey{
		CustomerID: e.CustomerID,
		CampaignID: e.CampaignID,
		AreaID:     e.AreaID,
		Category:   e.Category,
		Week:       e.Week,
	}
}

// =============================================================================
// PERSON COST TRACKING - one-time per-person charge dedup
// =============================================================================

// TrackingKey identifies a granted one-time per-person charge. Existence of
// a record means the werber has already been charged for that category over
// the area's lifetime; it is granted at most once ever.
type TrackingKey struct {
	CustomerID CustomerID
	CampaignID CampaignID
	AreaID     AreaID
	WerberID   WerberID
	Category   Category
}

// TrackingRecord is a persisted TrackingKey. Immutable once written.
// GrantedWeek attributes the grant to the week whose booking charged it;
// recomputing that week re-derives the same grant instead of treating it
// as a prior charge.
type TrackingRecord struct {
	TrackingKey
	GrantedWeek Week
	CreatedAt   time.Time
}

// =============================================================================
// INVOICES - status is all reconciliation needs
// =============================================================================

type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusIssued    InvoiceStatus = "issued"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// Billed reports whether entries on an invoice with this status are frozen.
// Anything past draft is billed.
func (s InvoiceStatus) Billed() bool {
	return s != InvoiceStatusDraft
}

// =============================================================================
// MONEY COMPARISON
// =============================================================================

// AmountEpsilon is the currency comparison tolerance: half of one minor
// unit of a two-decimal currency, so any difference that would round to a
// different cent counts as a real change.
var AmountEpsilon = decimal.NewFromFloat(0.005)

// AmountsEqual compares two amounts within AmountEpsilon.
func AmountsEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(AmountEpsilon)
}

// IsZeroAmount reports whether a is zero within AmountEpsilon.
func IsZeroAmount(a decimal.Decimal) bool {
	return a.Abs().LessThanOrEqual(AmountEpsilon)
}
