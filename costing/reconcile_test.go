package costing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/fieldops/cost-engine/costing"
	"github.com/fieldops/cost-engine/costing/store"
)

func newReconciler(mem *store.Memory) *costing.LedgerReconciler {
	return &costing.LedgerReconciler{Ledger: mem, Invoices: mem, Tracking: mem}
}

func input(amount string) costing.ReconcileInput {
	return costing.ReconcileInput{
		Key:       entryKey(costing.CategoryVehicle, week36),
		Target:    dec(amount),
		Units:     dec("3"),
		UnitPrice: dec("50"),
		UnitBasis: costing.UnitBasisTeam,
		Period:    costing.PeriodDay,
	}
}

// markBilled attaches the booking for the default key to an issued invoice.
func markBilled(t *testing.T, mem *store.Memory, invoice costing.InvoiceID) costing.LedgerEntry {
	t.Helper()
	ctx := context.Background()
	booking, err := mem.FindBooking(ctx, entryKey(costing.CategoryVehicle, week36))
	if err != nil || booking == nil {
		t.Fatalf("booking lookup failed: %v", err)
	}
	if err := mem.SaveInvoice(ctx, invoice, costing.InvoiceStatusIssued); err != nil {
		t.Fatalf("save invoice: %v", err)
	}
	if err := mem.AttachInvoice(ctx, booking.ID, invoice); err != nil {
		t.Fatalf("attach invoice: %v", err)
	}
	return *booking
}

// =============================================================================
// UNBILLED LIFECYCLE
// =============================================================================

func TestReconcile_CreatesBookingOnFirstNonzeroTarget(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	if err := newReconciler(mem).Reconcile(ctx, input("150")); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	booking, err := mem.FindBooking(ctx, entryKey(costing.CategoryVehicle, week36))
	if err != nil {
		t.Fatalf("find booking: %v", err)
	}
	if booking == nil {
		t.Fatal("expected a booking to be created")
	}
	if !booking.Amount.Equal(dec("150")) || booking.Kind != costing.EntryBooking {
		t.Errorf("unexpected booking %+v", booking)
	}
}

func TestReconcile_ZeroTargetWithoutBookingWritesNothing(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	if err := newReconciler(mem).Reconcile(ctx, input("0")); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	entries, _ := mem.Entries(ctx, campaignSouth, areaOne, week36)
	if len(entries) != 0 {
		t.Errorf("expected an empty ledger, got %d entries", len(entries))
	}
}

func TestReconcile_UpdatesUnbilledBookingInPlace(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	r := newReconciler(mem)

	if err := r.Reconcile(ctx, input("150")); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	if err := r.Reconcile(ctx, input("200")); err != nil {
		t.Fatalf("second reconcile: %v", err)
	}

	entries, _ := mem.Entries(ctx, campaignSouth, areaOne, week36)
	if len(entries) != 1 {
		t.Fatalf("expected the booking updated in place, got %d entries", len(entries))
	}
	if !entries[0].Amount.Equal(dec("200")) {
		t.Errorf("expected 200, got %v", entries[0].Amount)
	}
}

func TestReconcile_DeletesUnbilledBookingOnZeroTarget(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	r := newReconciler(mem)

	if err := r.Reconcile(ctx, input("150")); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	if err := r.Reconcile(ctx, input("0")); err != nil {
		t.Fatalf("zero reconcile: %v", err)
	}

	entries, _ := mem.Entries(ctx, campaignSouth, areaOne, week36)
	if len(entries) != 0 {
		t.Errorf("expected the booking deleted, got %d entries", len(entries))
	}
}

func TestReconcile_DraftInvoiceStillCountsUnbilled(t *testing.T) {
	// GIVEN: A booking attached to a DRAFT invoice
	// THEN: Changes still edit the booking in place

	ctx := context.Background()
	mem := store.NewMemory()
	r := newReconciler(mem)

	if err := r.Reconcile(ctx, input("150")); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	booking, _ := mem.FindBooking(ctx, entryKey(costing.CategoryVehicle, week36))
	mem.SaveInvoice(ctx, "inv-draft", costing.InvoiceStatusDraft)
	mem.AttachInvoice(ctx, booking.ID, "inv-draft")

	if err := r.Reconcile(ctx, input("200")); err != nil {
		t.Fatalf("second reconcile: %v", err)
	}

	entries, _ := mem.Entries(ctx, campaignSouth, areaOne, week36)
	if len(entries) != 1 || !entries[0].Amount.Equal(dec("200")) {
		t.Errorf("expected an in-place update under a draft invoice, got %+v", entries)
	}
}

func TestReconcile_MissingInvoiceCountsUnbilled(t *testing.T) {
	// GIVEN: A booking referencing an invoice id that no longer exists
	// THEN: The booking is treated as unbilled

	ctx := context.Background()
	mem := store.NewMemory()
	r := newReconciler(mem)

	if err := r.Reconcile(ctx, input("150")); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	booking, _ := mem.FindBooking(ctx, entryKey(costing.CategoryVehicle, week36))
	mem.AttachInvoice(ctx, booking.ID, "inv-ghost")

	if err := r.Reconcile(ctx, input("0")); err != nil {
		t.Fatalf("zero reconcile: %v", err)
	}
	entries, _ := mem.Entries(ctx, campaignSouth, areaOne, week36)
	if len(entries) != 0 {
		t.Errorf("expected deletion despite the dangling invoice id, got %d entries", len(entries))
	}
}

// =============================================================================
// BILLED CORRECTIONS
// =============================================================================

func TestReconcile_BilledBookingGetsCorrectionNotEdit(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	r := newReconciler(mem)

	if err := r.Reconcile(ctx, input("150")); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	original := markBilled(t, mem, "inv-1")

	if err := r.Reconcile(ctx, input("200")); err != nil {
		t.Fatalf("billed reconcile: %v", err)
	}

	booking, _ := mem.FindBooking(ctx, entryKey(costing.CategoryVehicle, week36))
	if !booking.Amount.Equal(original.Amount) {
		t.Errorf("billed booking amount changed from %v to %v", original.Amount, booking.Amount)
	}

	total, err := mem.CorrectionTotal(ctx, entryKey(costing.CategoryVehicle, week36))
	if err != nil {
		t.Fatalf("correction total: %v", err)
	}
	if !total.Equal(dec("50")) {
		t.Errorf("expected a +50 correction, got %v", total)
	}
}

func TestReconcile_FullReversalOfBilledBookingConverges(t *testing.T) {
	// GIVEN: A billed booking of 150 and a target of 0
	// WHEN: Reconciling twice
	// THEN: One -150 correction; the second run writes nothing

	ctx := context.Background()
	mem := store.NewMemory()
	r := newReconciler(mem)

	if err := r.Reconcile(ctx, input("150")); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	markBilled(t, mem, "inv-1")

	for i := 0; i < 2; i++ {
		if err := r.Reconcile(ctx, input("0")); err != nil {
			t.Fatalf("reversal run %d: %v", i+1, err)
		}
	}

	entries, _ := mem.Entries(ctx, campaignSouth, areaOne, week36)
	if len(entries) != 2 {
		t.Fatalf("expected booking + one correction, got %d entries", len(entries))
	}
	total, _ := mem.CorrectionTotal(ctx, entryKey(costing.CategoryVehicle, week36))
	if !total.Equal(dec("-150")) {
		t.Errorf("expected a single -150 correction, got %v", total)
	}
}

// =============================================================================
// INVOICE STATUS FAILURES
// =============================================================================

var errInvoiceServiceDown = errors.New("invoice service unreachable")

type failingInvoices struct{}

func (failingInvoices) Status(context.Context, costing.InvoiceID) (costing.InvoiceStatus, error) {
	return "", errInvoiceServiceDown
}

func TestReconcile_InvoiceStatusFailureTouchesNothing(t *testing.T) {
	// GIVEN: A booking whose invoice status cannot be determined
	// WHEN: Reconciling a changed target
	// THEN: ErrInvoiceStatusUnavailable wrapping the cause, ledger unchanged

	ctx := context.Background()
	mem := store.NewMemory()
	r := newReconciler(mem)

	if err := r.Reconcile(ctx, input("150")); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	booking, _ := mem.FindBooking(ctx, entryKey(costing.CategoryVehicle, week36))
	mem.SaveInvoice(ctx, "inv-1", costing.InvoiceStatusIssued)
	mem.AttachInvoice(ctx, booking.ID, "inv-1")

	broken := &costing.LedgerReconciler{Ledger: mem, Invoices: failingInvoices{}, Tracking: mem}
	err := broken.Reconcile(ctx, input("200"))
	if !errors.Is(err, costing.ErrInvoiceStatusUnavailable) {
		t.Fatalf("expected ErrInvoiceStatusUnavailable, got %v", err)
	}
	if !errors.Is(err, errInvoiceServiceDown) {
		t.Errorf("expected the underlying cause preserved in the chain, got %v", err)
	}

	entries, _ := mem.Entries(ctx, campaignSouth, areaOne, week36)
	if len(entries) != 1 || !entries[0].Amount.Equal(dec("150")) {
		t.Errorf("expected the ledger untouched, got %+v", entries)
	}
}

// =============================================================================
// TRACKING GRANTS
// =============================================================================

func TestReconcile_PersistsGrantsWithTheBooking(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	r := newReconciler(mem)

	in := costing.ReconcileInput{
		Key:          entryKey(costing.CategoryCredentials, week36),
		Target:       dec("20"),
		Units:        dec("2"),
		UnitPrice:    dec("10"),
		UnitBasis:    costing.UnitBasisPerson,
		Period:       costing.PeriodOnce,
		NewlyTracked: []costing.WerberID{"w1", "w2"},
	}
	for i := 0; i < 2; i++ {
		if err := r.Reconcile(ctx, in); err != nil {
			t.Fatalf("reconcile run %d: %v", i+1, err)
		}
	}

	tracked, err := mem.Tracked(ctx, entryKey(costing.CategoryCredentials, week36).RuleKey())
	if err != nil {
		t.Fatalf("tracked: %v", err)
	}
	if len(tracked) != 2 {
		t.Fatalf("expected 2 tracked werbers, got %d", len(tracked))
	}
	for w, grantWeek := range tracked {
		if grantWeek != week36 {
			t.Errorf("werber %s: expected grant week %v, got %v", w, week36, grantWeek)
		}
	}
}
