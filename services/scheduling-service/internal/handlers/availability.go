package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/elizahq/eliza/services/scheduling-service/internal/apperr"
	"github.com/elizahq/eliza/services/scheduling-service/internal/availability"
	"github.com/elizahq/eliza/services/scheduling-service/internal/calendar"
	"github.com/elizahq/eliza/services/scheduling-service/internal/model"
	"github.com/go-chi/chi/v5"
)

type slotsResponse struct {
	ProfessionalID string   `json:"professional_id"`
	Date           string   `json:"date"`
	Slots          []string `json:"slots"`
}

func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	h.slotsFor(w, r)
}

func (h *Handler) PublicSlots(w http.ResponseWriter, r *http.Request) {
	h.slotsFor(w, r)
}

func (h *Handler) slotsFor(w http.ResponseWriter, r *http.Request) {
	orgID := organizationID(r)
	professionalID := strings.TrimSpace(chi.URLParam(r, "professionalID"))
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	// only Y/M/D matter; the engine resolves them in the organization's zone
	date, err := calendar.ParseDate(raw, time.UTC)
	if err != nil {
		h.writeError(w, r, apperr.Invalid("date", "must be YYYY-MM-DD"))
		return
	}
	slots, err := h.slots.ComputeAvailableSlots(r.Context(), orgID, professionalID, date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, slotsResponse{ProfessionalID: professionalID, Date: raw, Slots: slots})
}

type patternItem struct {
	DayOfWeek  int    `json:"day_of_week"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	BreakStart string `json:"break_start,omitempty"`
	BreakEnd   string `json:"break_end,omitempty"`
	IsActive   bool   `json:"is_active"`
}

type patternsBody struct {
	Patterns []patternItem `json:"patterns"`
}

func (h *Handler) GetWorkingPattern(w http.ResponseWriter, r *http.Request) {
	patterns, err := h.patterns.ListWeek(r.Context(), organizationID(r), chi.URLParam(r, "professionalID"))
	if err != nil {
		h.writeError(w, r, apperr.Repository("list working pattern", err))
		return
	}
	writeJSON(w, http.StatusOK, toPatternsBody(patterns))
}

// PutWorkingPattern replaces the whole week; partial weeks are rejected.
func (h *Handler) PutWorkingPattern(w http.ResponseWriter, r *http.Request) {
	var body patternsBody
	if !decodeJSON(w, r, &body) {
		return
	}
	orgID := organizationID(r)
	professionalID := strings.TrimSpace(chi.URLParam(r, "professionalID"))

	patterns := make([]model.WorkingPattern, 0, len(body.Patterns))
	for _, item := range body.Patterns {
		patterns = append(patterns, model.WorkingPattern{
			OrganizationID: orgID,
			ProfessionalID: professionalID,
			Weekday:        time.Weekday(item.DayOfWeek),
			StartTime:      strings.TrimSpace(item.StartTime),
			EndTime:        strings.TrimSpace(item.EndTime),
			BreakStart:     strings.TrimSpace(item.BreakStart),
			BreakEnd:       strings.TrimSpace(item.BreakEnd),
			IsActive:       item.IsActive,
		})
	}
	if err := availability.ValidateWeek(patterns); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.patterns.UpsertWeek(r.Context(), orgID, professionalID, patterns); err != nil {
		h.writeError(w, r, apperr.Repository("upsert working pattern", err))
		return
	}
	writeJSON(w, http.StatusOK, toPatternsBody(patterns))
}

func toPatternsBody(patterns []model.WorkingPattern) patternsBody {
	body := patternsBody{Patterns: make([]patternItem, 0, len(patterns))}
	for _, p := range patterns {
		body.Patterns = append(body.Patterns, patternItem{
			DayOfWeek:  int(p.Weekday),
			StartTime:  p.StartTime,
			EndTime:    p.EndTime,
			BreakStart: p.BreakStart,
			BreakEnd:   p.BreakEnd,
			IsActive:   p.IsActive,
		})
	}
	return body
}
