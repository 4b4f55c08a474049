/*
store.go - Persistence contracts the engine depends on

PURPOSE:
  Defines the read/write contracts between the engine and its stores. The
  engine never reaches for an ambient client: every store is an explicit
  dependency injected at construction, so tests substitute in-memory
  doubles freely.

KEY INTERFACES:
  PlanStore:       cost-plan lookup (area-level, customer-level fallback)
  AttendanceStore: raw attendance scoped by campaign and week
  AssignmentStore: weekly assignments and day overrides
  LedgerStore:     booking lookup/insert/update/delete, correction totals
  InvoiceStore:    invoice status by id
  TrackingStore:   one-time per-person charge dedup records

MUTATION CONTRACT:
  Every LedgerStore and TrackingStore mutation must be idempotent with
  respect to re-running the same reconciliation twice with unchanged
  inputs: the second run is a no-op (modulo AmountEpsilon). Tracking
  upserts are keyed by the full tracking tuple.

CONCURRENCY:
  Reads and writes are blocking remote calls; the engine itself takes no
  locks. Concurrent recomputes for the SAME tuple race (read-then-write),
  so callers serialize per tuple - see the api layer's keyed lock.

IMPLEMENTATIONS:
  - costing/store: in-memory, for tests and development
  - store/sqlite:  production SQLite
*/
package costing

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// READ CONTRACTS
// =============================================================================

// PlanStore loads cost plans. Both lookups return (nil, nil) when no plan
// is configured at that level; the engine applies the fallback chain.
type PlanStore interface {
	// AreaPlan returns the individualized plan for one sub-area, if any.
	AreaPlan(ctx context.Context, customer CustomerID, campaign CampaignID, area AreaID) (*CostPlan, error)

	// CustomerPlan returns the customer-level fallback plan, if any.
	CustomerPlan(ctx context.Context, customer CustomerID) (*CostPlan, error)
}

// AttendanceStore reads raw attendance scoped by campaign and week.
type AttendanceStore interface {
	Attendance(ctx context.Context, campaign CampaignID, week Week) ([]AttendanceRecord, error)
}

// AssignmentStore reads the week's werber-to-area bindings.
type AssignmentStore interface {
	Assignments(ctx context.Context, campaign CampaignID, week Week) ([]WeeklyAssignment, error)
	Overrides(ctx context.Context, campaign CampaignID, week Week) ([]DayOverride, error)
}

// InvoiceStore looks up invoice status by id.
type InvoiceStore interface {
	// Status returns ErrInvoiceNotFound for unknown ids. Any other error
	// means the billed/unbilled state is unknown and the caller must not
	// guess.
	Status(ctx context.Context, id InvoiceID) (InvoiceStatus, error)
}

// =============================================================================
// LEDGER STORE
// =============================================================================

// LedgerStore persists ledger entries.
//
// The store enforces at most one booking-kind entry per EntryKey.
// Correction-kind entries are append-only: no update or delete exists
// for them.
type LedgerStore interface {
	// FindBooking returns the booking-kind entry for key, or nil.
	FindBooking(ctx context.Context, key EntryKey) (*LedgerEntry, error)

	// CorrectionTotal sums the correction-kind amounts for key.
	CorrectionTotal(ctx context.Context, key EntryKey) (decimal.Decimal, error)

	// HasBookingOutsideWeek reports whether a booking-kind entry exists
	// for the rule in any week other than the given one. Backs the
	// team-scope "once" period; the evaluated week's own booking must not
	// block its own recompute, or re-running would oscillate.
	HasBookingOutsideWeek(ctx context.Context, key RuleKey, week Week) (bool, error)

	// Entries returns all entries (bookings and corrections) for an area
	// and week, ordered by creation time.
	Entries(ctx context.Context, campaign CampaignID, area AreaID, week Week) ([]LedgerEntry, error)

	// Insert persists a new entry.
	Insert(ctx context.Context, e LedgerEntry) error

	// UpdateBooking overwrites amount and units of an unbilled booking.
	UpdateBooking(ctx context.Context, id EntryID, amount, units decimal.Decimal) error

	// Delete removes an unbilled booking.
	Delete(ctx context.Context, id EntryID) error
}

// TrackingStore persists one-time per-person charge grants.
type TrackingStore interface {
	// Tracked returns, per werber already granted the rule's one-time
	// charge, the week the grant was made in. Recomputing that same week
	// must see its own grants as still-pending, not as prior charges.
	Tracked(ctx context.Context, key RuleKey) (map[WerberID]Week, error)

	// Upsert records a grant for a week. Idempotent: re-upserting an
	// existing key is a no-op and keeps the original grant week.
	Upsert(ctx context.Context, key TrackingKey, week Week) error
}

// =============================================================================
// COMPOSED CONTRACTS
// =============================================================================

// Store is everything the engine reads and writes.
type Store interface {
	PlanStore
	AttendanceStore
	AssignmentStore
	LedgerStore
	InvoiceStore
	TrackingStore
}

// PlanWriter saves cost plans. Used by the application layer, not the engine.
type PlanWriter interface {
	SaveAreaPlan(ctx context.Context, customer CustomerID, campaign CampaignID, area AreaID, plan CostPlan) error
	SaveCustomerPlan(ctx context.Context, customer CustomerID, plan CostPlan) error
}

// AttendanceWriter replaces a campaign week's attendance and bindings.
type AttendanceWriter interface {
	SaveAttendance(ctx context.Context, campaign CampaignID, week Week, records []AttendanceRecord) error
	SaveAssignments(ctx context.Context, campaign CampaignID, week Week, assignments []WeeklyAssignment) error
	SaveOverrides(ctx context.Context, campaign CampaignID, week Week, overrides []DayOverride) error
}

// InvoiceWriter records invoice status. Invoice generation itself lives
// outside this system; reconciliation only needs id and status.
type InvoiceWriter interface {
	SaveInvoice(ctx context.Context, id InvoiceID, status InvoiceStatus) error

	// AttachInvoice links a booking entry to an invoice.
	AttachInvoice(ctx context.Context, entry EntryID, id InvoiceID) error
}

// AdminStore is the full surface the application layer works against.
type AdminStore interface {
	Store
	PlanWriter
	AttendanceWriter
	InvoiceWriter
}
