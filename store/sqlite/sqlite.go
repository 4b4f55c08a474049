/*
Package sqlite provides a SQLite-backed implementation of the costing
store contracts.

PURPOSE:
  Implements costing.AdminStore (plans, attendance, assignments,
  overrides, ledger, tracking, invoices) using SQLite. In production the
  same patterns apply to PostgreSQL - only minor SQL dialect differences.

INVARIANTS ENFORCED AT THE DATABASE LEVEL:
  - idx_unique_booking: at most one booking-kind ledger row per
    (customer, campaign, area, category, week, year) tuple
  - person_cost_tracking primary key: a one-time per-person charge is
    recorded at most once per tracking tuple (upsert = INSERT OR IGNORE)

KEY TABLES:
  cost_plans:           plan JSON per (customer, campaign, area); the
                        customer-level fallback row uses empty campaign/area
  attendance:           day flags per (campaign, week, werber)
  assignments:          weekly werber-to-area bindings
  assignment_overrides: per-day overrides beating the weekly binding
  ledger_entries:       bookings and append-only corrections
  person_cost_tracking: granted one-time per-person charges
  invoices:             id and status, all reconciliation needs

WAL MODE:
  SQLite is opened with WAL for better concurrency: multiple readers
  don't block, single writer at a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/costs.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
  engine := costing.NewEngine(store, slog.Default())

SEE ALSO:
  - costing/store.go: contract definitions
  - costing/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/fieldops/cost-engine/costing"
)

// Store implements costing.AdminStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Cost plans. The customer-level fallback row has empty campaign/area.
	CREATE TABLE IF NOT EXISTS cost_plans (
		customer_id TEXT NOT NULL,
		campaign_id TEXT NOT NULL DEFAULT '',
		area_id     TEXT NOT NULL DEFAULT '',
		plan_json   TEXT NOT NULL,
		updated_at  TEXT NOT NULL,
		PRIMARY KEY (customer_id, campaign_id, area_id)
	);

	-- Attendance day flags per werber and week (Monday..Saturday)
	CREATE TABLE IF NOT EXISTS attendance (
		campaign_id TEXT NOT NULL,
		year        INTEGER NOT NULL,
		week        INTEGER NOT NULL,
		werber_id   TEXT NOT NULL,
		days_json   TEXT NOT NULL,
		PRIMARY KEY (campaign_id, year, week, werber_id)
	);

	-- Weekly default area bindings
	CREATE TABLE IF NOT EXISTS assignments (
		campaign_id TEXT NOT NULL,
		year        INTEGER NOT NULL,
		week        INTEGER NOT NULL,
		werber_id   TEXT NOT NULL,
		area_id     TEXT NOT NULL,
		PRIMARY KEY (campaign_id, year, week, werber_id)
	);

	-- Per-day overrides beating the weekly binding
	CREATE TABLE IF NOT EXISTS assignment_overrides (
		campaign_id TEXT NOT NULL,
		year        INTEGER NOT NULL,
		week        INTEGER NOT NULL,
		werber_id   TEXT NOT NULL,
		day         INTEGER NOT NULL,
		area_id     TEXT NOT NULL,
		PRIMARY KEY (campaign_id, year, week, werber_id, day)
	);

	-- Ledger: bookings and append-only corrections
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id          TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		campaign_id TEXT NOT NULL,
		area_id     TEXT NOT NULL,
		category    TEXT NOT NULL,
		unit_basis  TEXT NOT NULL,
		period      TEXT NOT NULL,
		kind        TEXT NOT NULL,
		amount      TEXT NOT NULL,
		units       TEXT NOT NULL,
		unit_price  TEXT NOT NULL,
		label       TEXT,
		week        INTEGER NOT NULL,
		year        INTEGER NOT NULL,
		description TEXT,
		invoice_id  TEXT,
		created_at  TEXT NOT NULL
	);

	-- CRITICAL: at most one booking per reconciliation tuple.
	-- Corrections are deliberately NOT unique-constrained.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_booking
		ON ledger_entries(customer_id, campaign_id, area_id, category, week, year)
		WHERE kind = 'booking';

	CREATE INDEX IF NOT EXISTS idx_entries_area_week
		ON ledger_entries(campaign_id, area_id, year, week);
	CREATE INDEX IF NOT EXISTS idx_entries_rule
		ON ledger_entries(customer_id, campaign_id, area_id, category);

	-- One-time per-person charge grants; the primary key makes the grant
	-- at-most-once by construction.
	CREATE TABLE IF NOT EXISTS person_cost_tracking (
		customer_id  TEXT NOT NULL,
		campaign_id  TEXT NOT NULL,
		area_id      TEXT NOT NULL,
		werber_id    TEXT NOT NULL,
		category     TEXT NOT NULL,
		granted_year INTEGER NOT NULL,
		granted_week INTEGER NOT NULL,
		created_at   TEXT NOT NULL,
		PRIMARY KEY (customer_id, campaign_id, area_id, werber_id, category)
	);

	-- Invoice status, maintained by the surrounding application
	CREATE TABLE IF NOT EXISTS invoices (
		id         TEXT PRIMARY KEY,
		status     TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// PLANS
// =============================================================================

// planJSON is the stored shape of a cost plan. Unit basis, period and
// distribution are kept as raw strings and normalized at read time, so
// legacy spellings in old rows keep working.
type planJSON struct {
	Rules    []ruleJSON    `json:"rules"`
	Specials []specialJSON `json:"specials,omitempty"`
}

type ruleJSON struct {
	Category       string          `json:"category"`
	Active         bool            `json:"active"`
	Amount         decimal.Decimal `json:"amount"`
	UnitBasis      string          `json:"unitBasis"`
	Period         string          `json:"period"`
	Distribution   string          `json:"distribution"`
	ExplicitAreaID string          `json:"explicitAreaId,omitempty"`
	Label          string          `json:"label,omitempty"`
}

type specialJSON struct {
	Name           string          `json:"name"`
	Active         bool            `json:"active"`
	Sum            decimal.Decimal `json:"sum"`
	UnitBasis      string          `json:"unitBasis"`
	Period         string          `json:"period,omitempty"`
	Distribution   string          `json:"distribution"`
	ExplicitAreaID string          `json:"explicitAreaId,omitempty"`
}

func encodePlan(plan costing.CostPlan) ([]byte, error) {
	out := planJSON{}
	for _, r := range plan.Rules {
		out.Rules = append(out.Rules, ruleJSON{
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
	for _, sp := range plan.Specials {
		out.Specials = append(out.Specials, specialJSON{
			Name:           sp.Name,
			Active:         sp.Active,
			Sum:            sp.Sum,
			UnitBasis:      string(sp.UnitBasis),
			Period:         string(sp.Period),
			Distribution:   string(sp.Distribution),
			ExplicitAreaID: string(sp.ExplicitAreaID),
		})
	}
	return json.Marshal(out)
}

func decodePlan(raw []byte) (*costing.CostPlan, error) {
	var in planJSON
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("decode cost plan: %w", err)
	}
	plan := &costing.CostPlan{}
	for _, r := range in.Rules {
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
	for _, sp := range in.Specials {
		plan.Specials = append(plan.Specials, costing.SpecialLineItem{
			Name:           sp.Name,
			Active:         sp.Active,
			Sum:            sp.Sum,
			UnitBasis:      costing.NormalizeUnitBasis(sp.UnitBasis, costing.SpecialCategory(sp.Name)),
			Period:         costing.NormalizeSpecialPeriod(sp.Period),
			Distribution:   costing.NormalizeDistribution(sp.Distribution),
			ExplicitAreaID: costing.AreaID(sp.ExplicitAreaID),
		})
	}
	return plan, nil
}

func (s *Store) AreaPlan(ctx context.Context, customer costing.CustomerID, campaign costing.CampaignID, area costing.AreaID) (*costing.CostPlan, error) {
	return s.loadPlan(ctx, customer, campaign, area)
}

func (s *Store) CustomerPlan(ctx context.Context, customer costing.CustomerID) (*costing.CostPlan, error) {
	return s.loadPlan(ctx, customer, "", "")
}

func (s *Store) loadPlan(ctx context.Context, customer costing.CustomerID, campaign costing.CampaignID, area costing.AreaID) (*costing.CostPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT plan_json FROM cost_plans WHERE customer_id = ? AND campaign_id = ? AND area_id = ?`,
		string(customer), string(campaign), string(area),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cost plan: %w", err)
	}
	return decodePlan(raw)
}

func (s *Store) SaveAreaPlan(ctx context.Context, customer costing.CustomerID, campaign costing.CampaignID, area costing.AreaID, plan costing.CostPlan) error {
	return s.savePlan(ctx, customer, campaign, area, plan)
}

func (s *Store) SaveCustomerPlan(ctx context.Context, customer costing.CustomerID, plan costing.CostPlan) error {
	return s.savePlan(ctx, customer, "", "", plan)
}

func (s *Store) savePlan(ctx context.Context, customer costing.CustomerID, campaign costing.CampaignID, area costing.AreaID, plan costing.CostPlan) error {
	raw, err := encodePlan(plan)
	if err != nil {
		return fmt.Errorf("encode cost plan: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cost_plans (customer_id, campaign_id, area_id, plan_json, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(customer_id, campaign_id, area_id)
		DO UPDATE SET plan_json = excluded.plan_json, updated_at = excluded.updated_at`,
		string(customer), string(campaign), string(area), string(raw), now())
	if err != nil {
		return fmt.Errorf("save cost plan: %w", err)
	}
	return nil
}

// =============================================================================
// ATTENDANCE, ASSIGNMENTS, OVERRIDES
// =============================================================================

func (s *Store) Attendance(ctx context.Context, campaign costing.CampaignID, week costing.Week) ([]costing.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT werber_id, days_json FROM attendance
		 WHERE campaign_id = ? AND year = ? AND week = ?
		 ORDER BY werber_id`,
		string(campaign), week.Year, week.Number)
	if err != nil {
		return nil, fmt.Errorf("load attendance: %w", err)
	}
	defer rows.Close()

	var out []costing.AttendanceRecord
	for rows.Next() {
		var werber string
		var daysJSON string
		if err := rows.Scan(&werber, &daysJSON); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		var days [costing.DaysPerWeek]bool
		if err := json.Unmarshal([]byte(daysJSON), &days); err != nil {
			return nil, fmt.Errorf("decode attendance days: %w", err)
		}
		out = append(out, costing.AttendanceRecord{
			WerberID: costing.WerberID(werber),
			Week:     week,
			Days:     days,
		})
	}
	return out, rows.Err()
}

func (s *Store) SaveAttendance(ctx context.Context, campaign costing.CampaignID, week costing.Week, records []costing.AttendanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM attendance WHERE campaign_id = ? AND year = ? AND week = ?`,
			string(campaign), week.Year, week.Number); err != nil {
			return err
		}
		for _, r := range records {
			daysJSON, err := json.Marshal(r.Days)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO attendance (campaign_id, year, week, werber_id, days_json)
				 VALUES (?, ?, ?, ?, ?)`,
				string(campaign), week.Year, week.Number, string(r.WerberID), string(daysJSON)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Assignments(ctx context.Context, campaign costing.CampaignID, week costing.Week) ([]costing.WeeklyAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT werber_id, area_id FROM assignments
		 WHERE campaign_id = ? AND year = ? AND week = ?
		 ORDER BY werber_id`,
		string(campaign), week.Year, week.Number)
	if err != nil {
		return nil, fmt.Errorf("load assignments: %w", err)
	}
	defer rows.Close()

	var out []costing.WeeklyAssignment
	for rows.Next() {
		var werber, area string
		if err := rows.Scan(&werber, &area); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, costing.WeeklyAssignment{
			WerberID: costing.WerberID(werber),
			AreaID:   costing.AreaID(area),
		})
	}
	return out, rows.Err()
}

func (s *Store) SaveAssignments(ctx context.Context, campaign costing.CampaignID, week costing.Week, assignments []costing.WeeklyAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM assignments WHERE campaign_id = ? AND year = ? AND week = ?`,
			string(campaign), week.Year, week.Number); err != nil {
			return err
		}
		for _, a := range assignments {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO assignments (campaign_id, year, week, werber_id, area_id)
				 VALUES (?, ?, ?, ?, ?)`,
				string(campaign), week.Year, week.Number, string(a.WerberID), string(a.AreaID)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Overrides(ctx context.Context, campaign costing.CampaignID, week costing.Week) ([]costing.DayOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT werber_id, day, area_id FROM assignment_overrides
		 WHERE campaign_id = ? AND year = ? AND week = ?
		 ORDER BY werber_id, day`,
		string(campaign), week.Year, week.Number)
	if err != nil {
		return nil, fmt.Errorf("load overrides: %w", err)
	}
	defer rows.Close()

	var out []costing.DayOverride
	for rows.Next() {
		var werber, area string
		var day int
		if err := rows.Scan(&werber, &day, &area); err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		out = append(out, costing.DayOverride{
			WerberID: costing.WerberID(werber),
			Day:      costing.Day(day),
			AreaID:   costing.AreaID(area),
		})
	}
	return out, rows.Err()
}

func (s *Store) SaveOverrides(ctx context.Context, campaign costing.CampaignID, week costing.Week, overrides []costing.DayOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM assignment_overrides WHERE campaign_id = ? AND year = ? AND week = ?`,
			string(campaign), week.Year, week.Number); err != nil {
			return err
		}
		for _, o := range overrides {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO assignment_overrides (campaign_id, year, week, werber_id, day, area_id)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				string(campaign), week.Year, week.Number, string(o.WerberID), int(o.Day), string(o.AreaID)); err != nil {
				return err
			}
		}
		return nil
	})
}

// =============================================================================
// LEDGER
// =============================================================================

const entryColumns = `id, customer_id, campaign_id, area_id, category, unit_basis, period,
	kind, amount, units, unit_price, label, week, year, description, invoice_id, created_at`

func (s *Store) FindBooking(ctx context.Context, key costing.EntryKey) (*costing.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries
		 WHERE customer_id = ? AND campaign_id = ? AND area_id = ? AND category = ?
		   AND week = ? AND year = ? AND kind = 'booking'`,
		string(key.CustomerID), string(key.CampaignID), string(key.AreaID),
		string(key.Category), key.Week.Number, key.Week.Year)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find booking: %w", err)
	}
	return e, nil
}

func (s *Store) CorrectionTotal(ctx context.Context, key costing.EntryKey) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT amount FROM ledger_entries
		 WHERE customer_id = ? AND campaign_id = ? AND area_id = ? AND category = ?
		   AND week = ? AND year = ? AND kind = 'correction'`,
		string(key.CustomerID), string(key.CampaignID), string(key.AreaID),
		string(key.Category), key.Week.Number, key.Week.Year)
	if err != nil {
		return decimal.Zero, fmt.Errorf("correction total: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, fmt.Errorf("scan correction: %w", err)
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("parse correction amount %q: %w", raw, err)
		}
		total = total.Add(amount)
	}
	return total, rows.Err()
}

func (s *Store) HasBookingOutsideWeek(ctx context.Context, key costing.RuleKey, week costing.Week) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM ledger_entries
		 WHERE customer_id = ? AND campaign_id = ? AND area_id = ? AND category = ?
		   AND kind = 'booking' AND NOT (week = ? AND year = ?)`,
		string(key.CustomerID), string(key.CampaignID), string(key.AreaID), string(key.Category),
		week.Number, week.Year,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("booking existence: %w", err)
	}
	return n > 0, nil
}

func (s *Store) Entries(ctx context.Context, campaign costing.CampaignID, area costing.AreaID, week costing.Week) ([]costing.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries
		 WHERE campaign_id = ? AND area_id = ? AND week = ? AND year = ?
		 ORDER BY created_at, id`,
		string(campaign), string(area), week.Number, week.Year)
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	defer rows.Close()

	var out []costing.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *Store) Insert(ctx context.Context, e costing.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_entries (id, customer_id, campaign_id, area_id, category,
			unit_basis, period, kind, amount, units, unit_price, label, week, year,
			description, invoice_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.ID), string(e.CustomerID), string(e.CampaignID), string(e.AreaID),
		string(e.Category), string(e.UnitBasis), string(e.Period), string(e.Kind),
		e.Amount.String(), e.Units.String(), e.UnitPrice.String(), e.Label,
		e.Week.Number, e.Week.Year, e.Description, string(e.InvoiceID),
		e.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (s *Store) UpdateBooking(ctx context.Context, id costing.EntryID, amount, units decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE ledger_entries SET amount = ?, units = ? WHERE id = ? AND kind = 'booking'`,
		amount.String(), units.String(), string(id))
	if err != nil {
		return fmt.Errorf("update booking: %w", err)
	}
	return requireRow(res)
}

func (s *Store) Delete(ctx context.Context, id costing.EntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM ledger_entries WHERE id = ? AND kind = 'booking'`, string(id))
	if err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	return requireRow(res)
}

func (s *Store) AttachInvoice(ctx context.Context, entry costing.EntryID, id costing.InvoiceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE ledger_entries SET invoice_id = ? WHERE id = ?`, string(id), string(entry))
	if err != nil {
		return fmt.Errorf("attach invoice: %w", err)
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*costing.LedgerEntry, error) {
	var (
		e                            costing.LedgerEntry
		id, customer, campaign, area string
		category, basis, period      string
		kind, amount, units, price   string
		label, desc, invoice         sql.NullString
		week, year                   int
		createdAt                    string
	)
	err := row.Scan(&id, &customer, &campaign, &area, &category, &basis, &period,
		&kind, &amount, &units, &price, &label, &week, &year, &desc, &invoice, &createdAt)
	if err != nil {
		return nil, err
	}

	e.ID = costing.EntryID(id)
	e.CustomerID = costing.CustomerID(customer)
	e.CampaignID = costing.CampaignID(campaign)
	e.AreaID = costing.AreaID(area)
	e.Category = costing.Category(category)
	e.UnitBasis = costing.UnitBasis(basis)
	e.Period = costing.Period(period)
	e.Kind = costing.EntryKind(kind)
	e.Label = label.String
	e.Week = costing.Week{Year: year, Number: week}
	e.Description = desc.String
	e.InvoiceID = costing.InvoiceID(invoice.String)

	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if e.Units, err = decimal.NewFromString(units); err != nil {
		return nil, fmt.Errorf("parse units %q: %w", units, err)
	}
	if e.UnitPrice, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse unit price %q: %w", price, err)
	}
	if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	return &e, nil
}

// =============================================================================
// TRACKING
// =============================================================================

func (s *Store) Tracked(ctx context.Context, key costing.RuleKey) (map[costing.WerberID]costing.Week, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT werber_id, granted_year, granted_week FROM person_cost_tracking
		 WHERE customer_id = ? AND campaign_id = ? AND area_id = ? AND category = ?`,
		string(key.CustomerID), string(key.CampaignID), string(key.AreaID), string(key.Category))
	if err != nil {
		return nil, fmt.Errorf("load tracking: %w", err)
	}
	defer rows.Close()

	out := make(map[costing.WerberID]costing.Week)
	for rows.Next() {
		var werber string
		var year, week int
		if err := rows.Scan(&werber, &year, &week); err != nil {
			return nil, fmt.Errorf("scan tracking: %w", err)
		}
		out[costing.WerberID(werber)] = costing.Week{Year: year, Number: week}
	}
	return out, rows.Err()
}

func (s *Store) Upsert(ctx context.Context, key costing.TrackingKey, week costing.Week) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// INSERT OR IGNORE keeps the grant at-most-once under the primary key
	// and preserves the original grant week on re-runs.
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO person_cost_tracking
		 (customer_id, campaign_id, area_id, werber_id, category, granted_year, granted_week, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(key.CustomerID), string(key.CampaignID), string(key.AreaID),
		string(key.WerberID), string(key.Category), week.Year, week.Number, now())
	if err != nil {
		return fmt.Errorf("upsert tracking: %w", err)
	}
	return nil
}

// =============================================================================
// INVOICES
// =============================================================================

func (s *Store) Status(ctx context.Context, id costing.InvoiceID) (costing.InvoiceStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM invoices WHERE id = ?`, string(id)).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", costing.ErrInvoiceNotFound
	}
	if err != nil {
		return "", fmt.Errorf("invoice status: %w", err)
	}
	return costing.InvoiceStatus(status), nil
}

func (s *Store) SaveInvoice(ctx context.Context, id costing.InvoiceID, status costing.InvoiceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invoices (id, status, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		string(id), string(status), now())
	if err != nil {
		return fmt.Errorf("save invoice: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return costing.ErrEntryNotFound
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
