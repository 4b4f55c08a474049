/*
reconcile.go - LedgerReconciler

PURPOSE:
  Converges the ledger onto a freshly computed target amount for one
  (customer, campaign, area, category, week, year) tuple, respecting
  invoice immutability.

LIFECYCLE OF A BOOKING:
  - created on the first nonzero computed amount
  - freely updated in place while unbilled
  - deleted when recomputation yields zero while still unbilled
  - superseded (never overwritten) by correction entries once billed

EFFECTIVE AMOUNT:
  The target is compared against the booking amount PLUS the sum of its
  corrections. A billed booking of 100 already reversed to 0 therefore
  converges: recomputing the same zero target a second time writes
  nothing. Comparisons use AmountEpsilon.

BILLED STATE:
  "Billed" means the referenced invoice exists and its status is not
  draft. A missing invoice counts as unbilled. A FAILED status lookup is
  neither: the reconciler returns ErrInvoiceStatusUnavailable without
  touching the ledger, and the rule is retried on the next recompute.

IDEMPOTENCY:
  Re-running the same reconciliation twice with unchanged inputs is a
  no-op on the second run. Tracking upserts are idempotent by key.
*/
package costing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER RECONCILER
// =============================================================================

// ReconcileInput carries one rule's computed target into the ledger.
type ReconcileInput struct {
	Key          EntryKey
	Target       decimal.Decimal
	Units        decimal.Decimal
	UnitPrice    decimal.Decimal
	UnitBasis    UnitBasis
	Period       Period
	Label        string
	NewlyTracked []WerberID
}

// LedgerReconciler converges ledger state onto computed targets.
type LedgerReconciler struct {
	Ledger   LedgerStore
	Invoices InvoiceStore
	Tracking TrackingStore

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func (r *LedgerReconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

// Reconcile applies one rule's target amount to the ledger.
func (r *LedgerReconciler) Reconcile(ctx context.Context, in ReconcileInput) error {
	booking, err := r.Ledger.FindBooking(ctx, in.Key)
	if err != nil {
		return fmt.Errorf("find booking %v: %w", in.Key, err)
	}

	if booking == nil {
		if IsZeroAmount(in.Target) {
			return nil
		}
		if err := r.insertBooking(ctx, in); err != nil {
			return err
		}
		return r.trackGrants(ctx, in)
	}

	billed, err := r.billed(ctx, booking)
	if err != nil {
		return err
	}

	// Compare against the effective amount: booking plus corrections.
	corrections, err := r.Ledger.CorrectionTotal(ctx, in.Key)
	if err != nil {
		return fmt.Errorf("correction total %v: %w", in.Key, err)
	}
	current := booking.Amount.Add(corrections)

	switch {
	case AmountsEqual(in.Target, current):
		// Converged. Tracking rows may still be missing if an earlier run
		// failed between ledger write and tracking write.
		return r.trackGrants(ctx, in)

	case IsZeroAmount(in.Target) && !billed:
		if err := r.Ledger.Delete(ctx, booking.ID); err != nil {
			return fmt.Errorf("delete booking %s: %w", booking.ID, err)
		}
		return nil

	case !billed:
		if err := r.Ledger.UpdateBooking(ctx, booking.ID, in.Target, in.Units); err != nil {
			return fmt.Errorf("update booking %s: %w", booking.ID, err)
		}
		return r.trackGrants(ctx, in)

	default:
		// Billed: the booking row is frozen. Express the change as an
		// append-only correction carrying the signed delta (a full
		// reversal when the target is zero).
		if err := r.insertCorrection(ctx, in, booking, in.Target.Sub(current)); err != nil {
			return err
		}
		return r.trackGrants(ctx, in)
	}
}

// billed resolves the booking's invoice state without guessing: a lookup
// failure is surfaced, never defaulted to unbilled.
func (r *LedgerReconciler) billed(ctx context.Context, booking *LedgerEntry) (bool, error) {
	if booking.InvoiceID == "" {
		return false, nil
	}
	status, err := r.Invoices.Status(ctx, booking.InvoiceID)
	if errors.Is(err, ErrInvoiceNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: invoice %s: %w", ErrInvoiceStatusUnavailable, booking.InvoiceID, err)
	}
	return status.Billed(), nil
}

func (r *LedgerReconciler) insertBooking(ctx context.Context, in ReconcileInput) error {
	e := LedgerEntry{
		ID:         EntryID(uuid.NewString()),
		CustomerID: in.Key.CustomerID,
		CampaignID: in.Key.CampaignID,
		AreaID:     in.Key.AreaID,
		Category:   in.Key.Category,
		UnitBasis:  in.UnitBasis,
		Period:     in.Period,
		Kind:       EntryBooking,
		Amount:     in.Target,
		Units:      in.Units,
		UnitPrice:  in.UnitPrice,
		Label:      in.Label,
		Week:       in.Key.Week,
		CreatedAt:  r.now(),
	}
	if err := r.Ledger.Insert(ctx, e); err != nil {
		return fmt.Errorf("insert booking %v: %w", in.Key, err)
	}
	return nil
}

func (r *LedgerReconciler) insertCorrection(ctx context.Context, in ReconcileInput, booking *LedgerEntry, delta decimal.Decimal) error {
	e := LedgerEntry{
		ID:          EntryID(uuid.NewString()),
		CustomerID:  in.Key.CustomerID,
		CampaignID:  in.Key.CampaignID,
		AreaID:      in.Key.AreaID,
		Category:    in.Key.Category,
		UnitBasis:   in.UnitBasis,
		Period:      in.Period,
		Kind:        EntryCorrection,
		Amount:      delta,
		Units:       in.Units,
		UnitPrice:   in.UnitPrice,
		Label:       in.Label,
		Week:        in.Key.Week,
		Description: fmt.Sprintf("correction of billed booking %s (invoice %s)", booking.ID, booking.InvoiceID),
		CreatedAt:   r.now(),
	}
	if err := r.Ledger.Insert(ctx, e); err != nil {
		return fmt.Errorf("insert correction %v: %w", in.Key, err)
	}
	return nil
}

// trackGrants persists tracking rows for newly qualifying persons so a
// one-time per-person charge is granted at most once ever.
func (r *LedgerReconciler) trackGrants(ctx context.Context, in ReconcileInput) error {
	rule := in.Key.RuleKey()
	for _, w := range in.NewlyTracked {
		key := TrackingKey{
			CustomerID: rule.CustomerID,
			CampaignID: rule.CampaignID,
			AreaID:     rule.AreaID,
			WerberID:   w,
			Category:   rule.Category,
		}
		if err := r.Tracking.Upsert(ctx, key, in.Key.Week); err != nil {
			return fmt.Errorf("track grant %v: %w", key, err)
		}
	}
	return nil
}
