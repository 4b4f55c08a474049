/*
evaluator.go - CostRuleEvaluator and the top-level recompute

PURPOSE:
  Orchestrates one recompute for a (customer, campaign, area, week) tuple:
  loads the applicable cost plan (area-specific, else customer-level
  fallback), resolves the relevant attendance per rule, computes units and
  target amounts, and hands each rule to the LedgerReconciler.

PIPELINE PER RULE:
  1. Resolve the attendance subset for the rule's distribution mode:
       explicit, own area      -> the ENTIRE campaign's attendance
       explicit, foreign area  -> empty (this area owes nothing)
       proportional            -> the area-filtered attendance
  2. UnitCalculator converts the subset into units (and any newly
     qualifying persons for once/person rules).
  3. Shared team-daily costs from the customer-level fallback replace the
     filtered unit count with the campaign-wide distinct-day count scaled
     by the area's ShareAllocator share, so the single shared rate is
     conserved across areas. Individualized area plans and explicit
     distribution bypass this: the area already gets the full allocation
     directly.
  4. target = units * unit price.
  5. LedgerReconciler converges the ledger onto the target.

FAILURE MODEL:
  Failure to read the plan, attendance, assignments or overrides aborts
  the recompute before any write. Failure while persisting a single rule
  is logged and skipped; the remaining rules still run, so one trigger can
  end with a mix of successes and failures. The engine performs no retry;
  re-running the trigger converges whatever failed.

CONCURRENCY:
  Recompute is a synchronous read-then-write sequence. Concurrent calls
  for the same tuple race; callers must serialize per tuple (the api
  layer's keyed lock does this).
*/
package costing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine wires the recompute pipeline to its stores. Every dependency is
// explicit; nothing is pulled from ambient scope.
type Engine struct {
	Plans       PlanStore
	Attendance  AttendanceStore
	Assignments AssignmentStore
	Ledger      LedgerStore
	Invoices    InvoiceStore
	Tracking    TrackingStore
	Log         *slog.Logger
}

// NewEngine builds an Engine on a combined store.
func NewEngine(store Store, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		Plans:       store,
		Attendance:  store,
		Assignments: store,
		Ledger:      store,
		Invoices:    store,
		Tracking:    store,
		Log:         log,
	}
}

// Recompute derives fresh target amounts for every rule of one
// (customer, campaign, area, week) tuple and reconciles the ledger.
//
// Read failures abort with no write attempted. Per-rule persistence
// failures are collected and returned joined; the other rules still ran.
func (e *Engine) Recompute(ctx context.Context, customer CustomerID, campaign CampaignID, area AreaID, week Week) error {
	plan, err := e.loadPlan(ctx, customer, campaign, area)
	if err != nil {
		return err
	}

	records, err := e.Attendance.Attendance(ctx, campaign, week)
	if err != nil {
		return fmt.Errorf("load attendance %s %s: %w", campaign, week, err)
	}
	assignments, err := e.Assignments.Assignments(ctx, campaign, week)
	if err != nil {
		return fmt.Errorf("load assignments %s %s: %w", campaign, week, err)
	}
	overrides, err := e.Assignments.Overrides(ctx, campaign, week)
	if err != nil {
		return fmt.Errorf("load overrides %s %s: %w", campaign, week, err)
	}

	resolver := NewAttendanceResolver(assignments, overrides)
	filtered := resolver.FilterForArea(records, area)
	alloc := &ShareAllocator{Index: resolver.DayIndex(records)}

	calc := &UnitCalculator{Ledger: e.Ledger, Tracking: e.Tracking}
	reconciler := &LedgerReconciler{Ledger: e.Ledger, Invoices: e.Invoices, Tracking: e.Tracking}

	ev := &CostRuleEvaluator{
		Customer:     customer,
		Campaign:     campaign,
		Area:         area,
		Week:         week,
		PlanSource:   plan.Source,
		Campaignwide: records,
		AreaFiltered: filtered,
		Allocator:    alloc,
		Calculator:   calc,
		Reconciler:   reconciler,
	}

	var failed []error
	for _, rule := range plan.ActiveRules() {
		if err := ev.Evaluate(ctx, rule); err != nil {
			ruleErr := &RuleError{Category: rule.Category, Err: err}
			e.Log.Error("cost rule failed",
				"customer", customer,
				"campaign", campaign,
				"area", area,
				"week", week.String(),
				"category", rule.Category,
				"error", err,
			)
			failed = append(failed, ruleErr)
		}
	}
	return errors.Join(failed...)
}

// loadPlan applies the fallback chain: an individualized area plan wins,
// otherwise the customer-level plan. The source is stamped on the result;
// downstream share allocation depends on it.
func (e *Engine) loadPlan(ctx context.Context, customer CustomerID, campaign CampaignID, area AreaID) (*CostPlan, error) {
	plan, err := e.Plans.AreaPlan(ctx, customer, campaign, area)
	if err != nil {
		return nil, fmt.Errorf("load area plan %s/%s/%s: %w", customer, campaign, area, err)
	}
	if plan != nil {
		plan.Source = PlanSourceArea
		return plan, nil
	}
	plan, err = e.Plans.CustomerPlan(ctx, customer)
	if err != nil {
		return nil, fmt.Errorf("load customer plan %s: %w", customer, err)
	}
	if plan == nil {
		return nil, fmt.Errorf("%w: customer %s campaign %s area %s", ErrPlanNotFound, customer, campaign, area)
	}
	plan.Source = PlanSourceCustomer
	return plan, nil
}

// ActiveRules returns the plan's active rules, specials last under their
// synthetic categories.
func (p *CostPlan) ActiveRules() []CostRule {
	var rules []CostRule
	for _, r := range p.Rules {
		if r.Active {
			rules = append(rules, r)
		}
	}
	for _, s := range p.Specials {
		if s.Active {
			rules = append(rules, s.Rule())
		}
	}
	return rules
}

// =============================================================================
// COST RULE EVALUATOR
// =============================================================================

// CostRuleEvaluator runs the per-rule pipeline for one recompute tuple.
type CostRuleEvaluator struct {
	Customer   CustomerID
	Campaign   CampaignID
	Area       AreaID
	Week       Week
	PlanSource PlanSource

	// Campaignwide is the raw attendance of the whole campaign week;
	// AreaFiltered is its restriction to the evaluated area.
	Campaignwide []AttendanceRecord
	AreaFiltered []AttendanceRecord

	Allocator  *ShareAllocator
	Calculator *UnitCalculator
	Reconciler *LedgerReconciler
}

// Evaluate computes one rule's target amount and reconciles it.
func (ev *CostRuleEvaluator) Evaluate(ctx context.Context, rule CostRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	key := EntryKey{
		CustomerID: ev.Customer,
		CampaignID: ev.Campaign,
		AreaID:     ev.Area,
		Category:   rule.Category,
		Week:       ev.Week,
	}

	subset := ev.subset(rule)
	result, err := ev.Calculator.Units(ctx, key, rule, subset)
	if err != nil {
		return err
	}

	units := result.Units
	if ev.sharedTeamDaily(rule) {
		// The shared daily rate covers the whole campaign: the area pays its
		// staffing-intensity share of the campaign-wide day count, not of its
		// own filtered days (that would apply the intensity twice).
		campaignDays := decimal.NewFromInt(int64(distinctDays(ev.Campaignwide).Count()))
		units = campaignDays.Mul(ev.Allocator.Share(ev.Area))
	}

	return ev.Reconciler.Reconcile(ctx, ReconcileInput{
		Key:          key,
		Target:       units.Mul(rule.Amount),
		Units:        units,
		UnitPrice:    rule.Amount,
		UnitBasis:    rule.UnitBasis,
		Period:       rule.Period,
		Label:        rule.Label,
		NewlyTracked: result.NewlyTracked,
	})
}

// subset resolves which attendance the rule sees.
func (ev *CostRuleEvaluator) subset(rule CostRule) []AttendanceRecord {
	if rule.Distribution == DistributionExplicit {
		if rule.ExplicitAreaID == ev.Area {
			// The whole campaign's cost is pinned here.
			return ev.Campaignwide
		}
		// Pinned elsewhere: this area owes nothing.
		return nil
	}
	return ev.AreaFiltered
}

// sharedTeamDaily reports whether the rule is a shared team-based daily
// cost that must be prorated across concurrently active areas. Only the
// customer-level fallback plan is shared; an individualized area plan
// already belongs to this area alone.
func (ev *CostRuleEvaluator) sharedTeamDaily(rule CostRule) bool {
	return rule.UnitBasis == UnitBasisTeam &&
		rule.Period == PeriodDay &&
		rule.Distribution == DistributionProportional &&
		ev.PlanSource == PlanSourceCustomer
}
