/*
handlers.go - HTTP handlers for the cost engine's application layer

PURPOSE:
  Implements the edit-and-trigger surface around the engine: cost plans,
  attendance, assignments, overrides and invoice status are edited here,
  and every edit that can change computed costs fires the recompute for
  the affected (customer, campaign, area, week) tuples.

TRIGGER FAN-OUT:
  Saving attendance (or bindings) affects every area the week's
  assignments and overrides mention, so the handler recomputes each of
  them. Each tuple runs under the keyed lock (locks.go) to serialize
  concurrent triggers for the same tuple.

ERROR MAPPING:
  422 for missing cost plans, 400 for malformed input, 404 for unknown
  rows, 500 otherwise. A recompute that ends with partial rule failures
  returns 500 with the joined error; re-triggering converges.

SECURITY NOTE:
  No authentication middleware. Authorization belongs to the deployment
  surrounding this service.
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fieldops/cost-engine/costing"
)

// Handler carries the application layer's dependencies.
type Handler struct {
	Store  costing.AdminStore
	Engine *costing.Engine
	Log    *slog.Logger

	locks *keyedLocks
}

// NewHandler wires a handler and its engine onto one store.
func NewHandler(store costing.AdminStore, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		Store:  store,
		Engine: costing.NewEngine(store, log),
		Log:    log,
		locks:  newKeyedLocks(),
	}
}

// =============================================================================
// COST PLANS
// =============================================================================

func (h *Handler) GetCustomerPlan(w http.ResponseWriter, r *http.Request) {
	customer := costing.CustomerID(chi.URLParam(r, "customerID"))
	plan, err := h.Store.CustomerPlan(r.Context(), customer)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if plan == nil {
		h.writeError(w, http.StatusNotFound, costing.ErrPlanNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, PlanFromDomain(*plan))
}

func (h *Handler) SaveCustomerPlan(w http.ResponseWriter, r *http.Request) {
	customer := costing.CustomerID(chi.URLParam(r, "customerID"))
	var dto PlanDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("decode plan: %w", err))
		return
	}
	if err := h.Store.SaveCustomerPlan(r.Context(), customer, dto.Domain()); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetAreaPlan(w http.ResponseWriter, r *http.Request) {
	customer := costing.CustomerID(chi.URLParam(r, "customerID"))
	campaign := costing.CampaignID(chi.URLParam(r, "campaignID"))
	area := costing.AreaID(chi.URLParam(r, "areaID"))

	plan, err := h.Store.AreaPlan(r.Context(), customer, campaign, area)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if plan == nil {
		h.writeError(w, http.StatusNotFound, costing.ErrPlanNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, PlanFromDomain(*plan))
}

// SaveAreaPlan stores an individualized area plan. With ?year= and ?week=
// the save also triggers the recompute for that week, which is the normal
// edit flow from a campaign planning UI.
func (h *Handler) SaveAreaPlan(w http.ResponseWriter, r *http.Request) {
	customer := costing.CustomerID(chi.URLParam(r, "customerID"))
	campaign := costing.CampaignID(chi.URLParam(r, "campaignID"))
	area := costing.AreaID(chi.URLParam(r, "areaID"))

	week, ok, err := optionalWeekQuery(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	var dto PlanDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("decode plan: %w", err))
		return
	}
	if err := h.Store.SaveAreaPlan(r.Context(), customer, campaign, area, dto.Domain()); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	if ok {
		if err := h.recomputeTuple(r, customer, campaign, area, week); err != nil {
			h.writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ATTENDANCE, ASSIGNMENTS, OVERRIDES
// =============================================================================

func (h *Handler) GetAttendance(w http.ResponseWriter, r *http.Request) {
	campaign, week, err := campaignWeekParams(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	records, err := h.Store.Attendance(r.Context(), campaign, week)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]AttendanceRecordDTO, 0, len(records))
	for _, rec := range records {
		out = append(out, AttendanceRecordDTO{WerberID: string(rec.WerberID), Days: rec.Days})
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) SaveAttendance(w http.ResponseWriter, r *http.Request) {
	campaign, week, err := campaignWeekParams(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	var dto AttendanceWeekDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("decode attendance: %w", err))
		return
	}
	records := make([]costing.AttendanceRecord, 0, len(dto.Records))
	for _, rec := range dto.Records {
		records = append(records, costing.AttendanceRecord{
			WerberID: costing.WerberID(rec.WerberID),
			Week:     week,
			Days:     rec.Days,
		})
	}
	if err := h.Store.SaveAttendance(r.Context(), campaign, week, records); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.triggerWeek(w, r, costing.CustomerID(dto.CustomerID), campaign, week)
}

func (h *Handler) GetAssignments(w http.ResponseWriter, r *http.Request) {
	campaign, week, err := campaignWeekParams(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	assignments, err := h.Store.Assignments(r.Context(), campaign, week)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]AssignmentDTO, 0, len(assignments))
	for _, a := range assignments {
		out = append(out, AssignmentDTO{WerberID: string(a.WerberID), AreaID: string(a.AreaID)})
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) SaveAssignments(w http.ResponseWriter, r *http.Request) {
	campaign, week, err := campaignWeekParams(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	var dto AssignmentWeekDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("decode assignments: %w", err))
		return
	}
	assignments := make([]costing.WeeklyAssignment, 0, len(dto.Assignments))
	for _, a := range dto.Assignments {
		assignments = append(assignments, costing.WeeklyAssignment{
			WerberID: costing.WerberID(a.WerberID),
			AreaID:   costing.AreaID(a.AreaID),
		})
	}
	if err := h.Store.SaveAssignments(r.Context(), campaign, week, assignments); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.triggerWeek(w, r, costing.CustomerID(dto.CustomerID), campaign, week)
}

func (h *Handler) GetOverrides(w http.ResponseWriter, r *http.Request) {
	campaign, week, err := campaignWeekParams(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	overrides, err := h.Store.Overrides(r.Context(), campaign, week)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]OverrideDTO, 0, len(overrides))
	for _, o := range overrides {
		out = append(out, OverrideDTO{WerberID: string(o.WerberID), Day: int(o.Day), AreaID: string(o.AreaID)})
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) SaveOverrides(w http.ResponseWriter, r *http.Request) {
	campaign, week, err := campaignWeekParams(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	var dto OverrideWeekDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("decode overrides: %w", err))
		return
	}
	overrides := make([]costing.DayOverride, 0, len(dto.Overrides))
	for _, o := range dto.Overrides {
		day := costing.Day(o.Day)
		if !day.Valid() {
			h.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid day %d", o.Day))
			return
		}
		overrides = append(overrides, costing.DayOverride{
			WerberID: costing.WerberID(o.WerberID),
			Day:      day,
			AreaID:   costing.AreaID(o.AreaID),
		})
	}
	if err := h.Store.SaveOverrides(r.Context(), campaign, week, overrides); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.triggerWeek(w, r, costing.CustomerID(dto.CustomerID), campaign, week)
}

// =============================================================================
// LEDGER AND INVOICES
// =============================================================================

func (h *Handler) GetEntries(w http.ResponseWriter, r *http.Request) {
	campaign, week, err := campaignWeekParams(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	area := costing.AreaID(chi.URLParam(r, "areaID"))

	entries, err := h.Store.Entries(r.Context(), campaign, area, week)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]EntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, EntryFromDomain(e))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) SaveInvoice(w http.ResponseWriter, r *http.Request) {
	var dto InvoiceDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("decode invoice: %w", err))
		return
	}
	if dto.ID == "" || dto.Status == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("invoice id and status are required"))
		return
	}
	if err := h.Store.SaveInvoice(r.Context(), costing.InvoiceID(dto.ID), costing.InvoiceStatus(dto.Status)); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AttachInvoice(w http.ResponseWriter, r *http.Request) {
	var dto AttachInvoiceDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("decode attach request: %w", err))
		return
	}
	err := h.Store.AttachInvoice(r.Context(), costing.EntryID(dto.EntryID), costing.InvoiceID(dto.InvoiceID))
	if errors.Is(err, costing.ErrEntryNotFound) {
		h.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// RECOMPUTE
// =============================================================================

func (h *Handler) TriggerRecompute(w http.ResponseWriter, r *http.Request) {
	var req RecomputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("decode recompute request: %w", err))
		return
	}
	if req.CustomerID == "" || req.CampaignID == "" || req.AreaID == "" || req.Year == 0 || req.Week == 0 {
		h.writeError(w, http.StatusBadRequest, errors.New("customerId, campaignId, areaId, year and week are required"))
		return
	}
	err := h.recomputeTuple(r,
		costing.CustomerID(req.CustomerID),
		costing.CampaignID(req.CampaignID),
		costing.AreaID(req.AreaID),
		costing.Week{Year: req.Year, Number: req.Week})
	if errors.Is(err, costing.ErrPlanNotFound) {
		h.writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// recomputeTuple serializes and runs one recompute.
func (h *Handler) recomputeTuple(r *http.Request, customer costing.CustomerID, campaign costing.CampaignID, area costing.AreaID, week costing.Week) error {
	key := fmt.Sprintf("%s|%s|%s|%s", customer, campaign, area, week)
	release := h.locks.acquire(key)
	defer release()
	return h.Engine.Recompute(r.Context(), customer, campaign, area, week)
}

// triggerWeek recomputes every area the week's bindings mention and writes
// the HTTP result. Without a customer id there is nothing to recompute
// against, so the save alone succeeds.
func (h *Handler) triggerWeek(w http.ResponseWriter, r *http.Request, customer costing.CustomerID, campaign costing.CampaignID, week costing.Week) {
	if customer == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	areas, err := h.affectedAreas(r, campaign, week)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	var failed []error
	for _, area := range areas {
		if err := h.recomputeTuple(r, customer, campaign, area, week); err != nil {
			h.Log.Error("recompute failed",
				"customer", customer, "campaign", campaign, "area", area, "week", week.String(), "error", err)
			failed = append(failed, fmt.Errorf("area %s: %w", area, err))
		}
	}
	if len(failed) > 0 {
		h.writeError(w, http.StatusInternalServerError, errors.Join(failed...))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// affectedAreas lists every area mentioned by the week's assignments or
// overrides. Areas that lost all attendance still appear here, so their
// bookings get zeroed out.
func (h *Handler) affectedAreas(r *http.Request, campaign costing.CampaignID, week costing.Week) ([]costing.AreaID, error) {
	assignments, err := h.Store.Assignments(r.Context(), campaign, week)
	if err != nil {
		return nil, err
	}
	overrides, err := h.Store.Overrides(r.Context(), campaign, week)
	if err != nil {
		return nil, err
	}

	seen := make(map[costing.AreaID]bool)
	var areas []costing.AreaID
	add := func(a costing.AreaID) {
		if a != "" && !seen[a] {
			seen[a] = true
			areas = append(areas, a)
		}
	}
	for _, a := range assignments {
		add(a.AreaID)
	}
	for _, o := range overrides {
		add(o.AreaID)
	}
	sort.Slice(areas, func(i, j int) bool { return areas[i] < areas[j] })
	return areas, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func campaignWeekParams(r *http.Request) (costing.CampaignID, costing.Week, error) {
	campaign := costing.CampaignID(chi.URLParam(r, "campaignID"))
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		return "", costing.Week{}, fmt.Errorf("invalid year: %w", err)
	}
	number, err := strconv.Atoi(chi.URLParam(r, "week"))
	if err != nil || number < 1 || number > 53 {
		return "", costing.Week{}, fmt.Errorf("invalid week %q", chi.URLParam(r, "week"))
	}
	return campaign, costing.Week{Year: year, Number: number}, nil
}

// optionalWeekQuery parses ?year= and ?week=. Absent means no recompute
// was requested; present but malformed is an error, so a mistyped trigger
// fails loudly instead of silently skipping the recompute.
func optionalWeekQuery(r *http.Request) (costing.Week, bool, error) {
	yearStr := r.URL.Query().Get("year")
	weekStr := r.URL.Query().Get("week")
	if yearStr == "" && weekStr == "" {
		return costing.Week{}, false, nil
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return costing.Week{}, false, fmt.Errorf("invalid year %q", yearStr)
	}
	number, err := strconv.Atoi(weekStr)
	if err != nil || number < 1 || number > 53 {
		return costing.Week{}, false, fmt.Errorf("invalid week %q", weekStr)
	}
	return costing.Week{Year: year, Number: number}, true, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Log.Error("encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}
