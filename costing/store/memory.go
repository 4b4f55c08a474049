// Package store provides an in-memory implementation of the costing store
// contracts, for tests and development.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fieldops/cost-engine/costing"
)

// =============================================================================
// MEMORY STORE - implements costing.AdminStore
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	areaPlans     map[planKey]costing.CostPlan
	customerPlans map[costing.CustomerID]costing.CostPlan

	attendance  map[weekKey][]costing.AttendanceRecord
	assignments map[weekKey][]costing.WeeklyAssignment
	overrides   map[weekKey][]costing.DayOverride

	entries map[costing.EntryID]costing.LedgerEntry
	seq     map[costing.EntryID]int
	nextSeq int

	tracking map[costing.TrackingKey]costing.TrackingRecord
	invoices map[costing.InvoiceID]costing.InvoiceStatus
}

type planKey struct {
	Customer costing.CustomerID
	Campaign costing.CampaignID
	Area     costing.AreaID
}

type weekKey struct {
	Campaign costing.CampaignID
	Week     costing.Week
}

func NewMemory() *Memory {
	return &Memory{
		areaPlans:     make(map[planKey]costing.CostPlan),
		customerPlans: make(map[costing.CustomerID]costing.CostPlan),
		attendance:    make(map[weekKey][]costing.AttendanceRecord),
		assignments:   make(map[weekKey][]costing.WeeklyAssignment),
		overrides:     make(map[weekKey][]costing.DayOverride),
		entries:       make(map[costing.EntryID]costing.LedgerEntry),
		seq:           make(map[costing.EntryID]int),
		tracking:      make(map[costing.TrackingKey]costing.TrackingRecord),
		invoices:      make(map[costing.InvoiceID]costing.InvoiceStatus),
	}
}

// =============================================================================
// PLANS
// =============================================================================

func (m *Memory) AreaPlan(_ context.Context, customer costing.CustomerID, campaign costing.CampaignID, area costing.AreaID) (*costing.CostPlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	plan, ok := m.areaPlans[planKey{Customer: customer, Campaign: campaign, Area: area}]
	if !ok {
		return nil, nil
	}
	return copyPlan(plan), nil
}

func (m *Memory) CustomerPlan(_ context.Context, customer costing.CustomerID) (*costing.CostPlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	plan, ok := m.customerPlans[customer]
	if !ok {
		return nil, nil
	}
	return copyPlan(plan), nil
}

func (m *Memory) SaveAreaPlan(_ context.Context, customer costing.CustomerID, campaign costing.CampaignID, area costing.AreaID, plan costing.CostPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.areaPlans[planKey{Customer: customer, Campaign: campaign, Area: area}] = *copyPlan(plan)
	return nil
}

func (m *Memory) SaveCustomerPlan(_ context.Context, customer costing.CustomerID, plan costing.CostPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customerPlans[customer] = *copyPlan(plan)
	return nil
}

func copyPlan(p costing.CostPlan) *costing.CostPlan {
	out := costing.CostPlan{Source: p.Source}
	out.Rules = append(out.Rules, p.Rules...)
	out.Specials = append(out.Specials, p.Specials...)
	return &out
}

// =============================================================================
// ATTENDANCE, ASSIGNMENTS, OVERRIDES
// =============================================================================

func (m *Memory) Attendance(_ context.Context, campaign costing.CampaignID, week costing.Week) ([]costing.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]costing.AttendanceRecord(nil), m.attendance[weekKey{Campaign: campaign, Week: week}]...), nil
}

func (m *Memory) Assignments(_ context.Context, campaign costing.CampaignID, week costing.Week) ([]costing.WeeklyAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]costing.WeeklyAssignment(nil), m.assignments[weekKey{Campaign: campaign, Week: week}]...), nil
}

func (m *Memory) Overrides(_ context.Context, campaign costing.CampaignID, week costing.Week) ([]costing.DayOverride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]costing.DayOverride(nil), m.overrides[weekKey{Campaign: campaign, Week: week}]...), nil
}

func (m *Memory) SaveAttendance(_ context.Context, campaign costing.CampaignID, week costing.Week, records []costing.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attendance[weekKey{Campaign: campaign, Week: week}] = append([]costing.AttendanceRecord(nil), records...)
	return nil
}

func (m *Memory) SaveAssignments(_ context.Context, campaign costing.CampaignID, week costing.Week, assignments []costing.WeeklyAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[weekKey{Campaign: campaign, Week: week}] = append([]costing.WeeklyAssignment(nil), assignments...)
	return nil
}

func (m *Memory) SaveOverrides(_ context.Context, campaign costing.CampaignID, week costing.Week, overrides []costing.DayOverride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[weekKey{Campaign: campaign, Week: week}] = append([]costing.DayOverride(nil), overrides...)
	return nil
}

// =============================================================================
// LEDGER
// =============================================================================

func (m *Memory) FindBooking(_ context.Context, key costing.EntryKey) (*costing.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.Kind == costing.EntryBooking && e.Key() == key {
			out := e
			return &out, nil
		}
	}
	return nil, nil
}

func (m *Memory) CorrectionTotal(_ context.Context, key costing.EntryKey) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := decimal.Zero
	for _, e := range m.entries {
		if e.Kind == costing.EntryCorrection && e.Key() == key {
			total = total.Add(e.Amount)
		}
	}
	return total, nil
}

func (m *Memory) HasBookingOutsideWeek(_ context.Context, key costing.RuleKey, week costing.Week) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.Kind == costing.EntryBooking && e.Key().RuleKey() == key && e.Week != week {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) Entries(_ context.Context, campaign costing.CampaignID, area costing.AreaID, week costing.Week) ([]costing.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []costing.LedgerEntry
	for _, e := range m.entries {
		if e.CampaignID == campaign && e.AreaID == area && e.Week == week {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return m.seq[out[i].ID] < m.seq[out[j].ID] })
	return out, nil
}

func (m *Memory) Insert(_ context.Context, e costing.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.Kind == costing.EntryBooking {
		for _, existing := range m.entries {
			if existing.Kind == costing.EntryBooking && existing.Key() == e.Key() {
				return fmt.Errorf("booking already exists for %v", e.Key())
			}
		}
	}
	m.entries[e.ID] = e
	m.nextSeq++
	m.seq[e.ID] = m.nextSeq
	return nil
}

func (m *Memory) UpdateBooking(_ context.Context, id costing.EntryID, amount, units decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return costing.ErrEntryNotFound
	}
	e.Amount = amount
	e.Units = units
	m.entries[id] = e
	return nil
}

func (m *Memory) Delete(_ context.Context, id costing.EntryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return costing.ErrEntryNotFound
	}
	delete(m.entries, id)
	delete(m.seq, id)
	return nil
}

// =============================================================================
// TRACKING
// =============================================================================

func (m *Memory) Tracked(_ context.Context, key costing.RuleKey) (map[costing.WerberID]costing.Week, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[costing.WerberID]costing.Week)
	for k, rec := range m.tracking {
		if k.CustomerID == key.CustomerID && k.CampaignID == key.CampaignID &&
			k.AreaID == key.AreaID && k.Category == key.Category {
			out[k.WerberID] = rec.GrantedWeek
		}
	}
	return out, nil
}

func (m *Memory) Upsert(_ context.Context, key costing.TrackingKey, week costing.Week) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tracking[key]; !ok {
		m.tracking[key] = costing.TrackingRecord{
			TrackingKey: key,
			GrantedWeek: week,
			CreatedAt:   time.Now().UTC(),
		}
	}
	return nil
}

// =============================================================================
// INVOICES
// =============================================================================

func (m *Memory) Status(_ context.Context, id costing.InvoiceID) (costing.InvoiceStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.invoices[id]
	if !ok {
		return "", costing.ErrInvoiceNotFound
	}
	return status, nil
}

func (m *Memory) SaveInvoice(_ context.Context, id costing.InvoiceID, status costing.InvoiceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices[id] = status
	return nil
}

func (m *Memory) AttachInvoice(_ context.Context, entry costing.EntryID, id costing.InvoiceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[entry]
	if !ok {
		return costing.ErrEntryNotFound
	}
	e.InvoiceID = id
	m.entries[entry] = e
	return nil
}
