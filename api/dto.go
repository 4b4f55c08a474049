/*
dto.go - JSON wire types for the HTTP layer

PURPOSE:
  Decouples the wire format from domain types. Enum-like fields (unit
  basis, period, distribution) travel as raw strings and are normalized
  on the way in, so clients may still send legacy spellings ("night",
  "piece", "month") and get canonical values back out.
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/fieldops/cost-engine/costing"
)

// =============================================================================
// COST PLANS
// =============================================================================

type PlanDTO struct {
	Rules    []RuleDTO    `json:"rules"`
	Specials []SpecialDTO `json:"specials,omitempty"`
}

type RuleDTO struct {
	Category       string          `json:"category"`
	Active         bool            `json:"active"`
	Amount         decimal.Decimal `json:"amount"`
	UnitBasis      string          `json:"unitBasis"`
	Period         string          `json:"period"`
	Distribution   string          `json:"distribution"`
	ExplicitAreaID string          `json:"explicitAreaId,omitempty"`
	Label          string          `json:"label,omitempty"`
}

type SpecialDTO struct {
	Name           string          `json:"name"`
	Active         bool            `json:"active"`
	Sum            decimal.Decimal `json:"sum"`
	UnitBasis      string          `json:"unitBasis"`
	Period         string          `json:"period,omitempty"`
	Distribution   string          `json:"distribution"`
	ExplicitAreaID string          `json:"explicitAreaId,omitempty"`
}

// Domain converts the DTO into a normalized cost plan.
func (d PlanDTO) Domain() costing.CostPlan {
	var plan costing.CostPlan
	for _, r := range d.Rules {
		category := costing.Category(r.Category)
		plan.Rules = append(plan.Rules, costing.CostRule{
			Category:       category,
			Active:         r.Active,
			Amount:         r.Amount,
			UnitBasis:      costing.NormalizeUnitBasis(r.UnitBasis, category),
			Period:         costing.NormalizePeriod(r.Period),
			Distribution:   costing.NormalizeDistribution(r.Distribution),
			ExplicitAreaID: costing.AreaID(r.ExplicitAreaID),
			Label:          r.Label,
		})
	}
	for _, s := range d.Specials {
		plan.Specials = append(plan.Specials, costing.SpecialLineItem{
			Name:           s.Name,
			Active:         s.Active,
			Sum:            s.Sum,
			UnitBasis:      costing.NormalizeUnitBasis(s.UnitBasis, costing.SpecialCategory(s.Name)),
			Period:         costing.NormalizeSpecialPeriod(s.Period),
			Distribution:   costing.NormalizeDistribution(s.Distribution),
			ExplicitAreaID: costing.AreaID(s.ExplicitAreaID),
		})
	}
	return plan
}

// PlanFromDomain converts a plan back into its wire shape.
func PlanFromDomain(p costing.CostPlan) PlanDTO {
	var d PlanDTO
	for _, r := range p.Rules {
		d.Rules = append(d.Rules, RuleDTO{
			Category:       string(r.Category),
			Active:         r.Active,
			Amount:         r.Amount,
			UnitBasis:      string(r.UnitBasis),
			Period:         string(r.Period),
			Distribution:   string(r.Distribution),
			ExplicitAreaID: string(r.ExplicitAreaID),
			Label:          r.Label,
		})
	}
	for _, s := range p.Specials {
		d.Specials = append(d.Specials, SpecialDTO{
			Name:           s.Name,
			Active:         s.Active,
			Sum:            s.Sum,
			UnitBasis:      string(s.UnitBasis),
			Period:         string(s.Period),
			Distribution:   string(s.Distribution),
			ExplicitAreaID: string(s.ExplicitAreaID),
		})
	}
	return d
}

// =============================================================================
// ATTENDANCE AND BINDINGS
// =============================================================================

type AttendanceRecordDTO struct {
	WerberID string                    `json:"werberId"`
	Days     [costing.DaysPerWeek]bool `json:"days"`
}

// AttendanceWeekDTO replaces a campaign week's attendance. CustomerID names
// the customer whose ledger the triggered recompute belongs to.
type AttendanceWeekDTO struct {
	CustomerID string                `json:"customerId"`
	Records    []AttendanceRecordDTO `json:"records"`
}

type AssignmentDTO struct {
	WerberID string `json:"werberId"`
	AreaID   string `json:"areaId"`
}

type AssignmentWeekDTO struct {
	CustomerID  string          `json:"customerId"`
	Assignments []AssignmentDTO `json:"assignments"`
}

type OverrideDTO struct {
	WerberID string `json:"werberId"`
	Day      int    `json:"day"`
	AreaID   string `json:"areaId"`
}

type OverrideWeekDTO struct {
	CustomerID string        `json:"customerId"`
	Overrides  []OverrideDTO `json:"overrides"`
}

// =============================================================================
// LEDGER AND INVOICES
// =============================================================================

type EntryDTO struct {
	ID          string          `json:"id"`
	CustomerID  string          `json:"customerId"`
	CampaignID  string          `json:"campaignId"`
	AreaID      string          `json:"areaId"`
	Category    string          `json:"category"`
	UnitBasis   string          `json:"unitBasis"`
	Period      string          `json:"period"`
	Kind        string          `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Units       decimal.Decimal `json:"units"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Label       string          `json:"label,omitempty"`
	Week        int             `json:"week"`
	Year        int             `json:"year"`
	Description string          `json:"description,omitempty"`
	InvoiceID   string          `json:"invoiceId,omitempty"`
}

func EntryFromDomain(e costing.LedgerEntry) EntryDTO {
	return EntryDTO{
		ID:          string(e.ID),
		CustomerID:  string(e.CustomerID),
		CampaignID:  string(e.CampaignID),
		AreaID:      string(e.AreaID),
		Category:    string(e.Category),
		UnitBasis:   string(e.UnitBasis),
		Period:      string(e.Period),
		Kind:        string(e.Kind),
		Amount:      e.Amount,
		Units:       e.Units,
		UnitPrice:   e.UnitPrice,
		Label:       e.Label,
		Week:        e.Week.Number,
		Year:        e.Week.Year,
		Description: e.Description,
		InvoiceID:   string(e.InvoiceID),
	}
}

type InvoiceDTO struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type AttachInvoiceDTO struct {
	EntryID   string `json:"entryId"`
	InvoiceID string `json:"invoiceId"`
}

// =============================================================================
// RECOMPUTE
// =============================================================================

type RecomputeRequest struct {
	CustomerID string `json:"customerId"`
	CampaignID string `json:"campaignId"`
	AreaID     string `json:"areaId"`
	Year       int    `json:"year"`
	Week       int    `json:"week"`
}

type errorResponse struct {
	Error string `json:"error"`
}
