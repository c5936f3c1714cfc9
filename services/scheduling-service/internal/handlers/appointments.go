package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/elizahq/eliza/services/scheduling-service/internal/apperr"
	"github.com/elizahq/eliza/services/scheduling-service/internal/model"
	"github.com/elizahq/eliza/services/scheduling-service/internal/scheduling"
	"github.com/go-chi/chi/v5"
)

// maxListRange bounds GET /appointments so one request cannot scan a tenant's whole history.
const maxListRange = 62 * 24 * time.Hour

type appointmentResponse struct {
	ID             string   `json:"id"`
	OrganizationID string   `json:"organization_id"`
	ProfessionalID string   `json:"professional_id"`
	CustomerID     string   `json:"customer_id"`
	ServiceID      string   `json:"service_id,omitempty"`
	StartTime      string   `json:"start_time"`
	EndTime        string   `json:"end_time"`
	Status         string   `json:"status"`
	PaymentStatus  string   `json:"payment_status,omitempty"`
	PaymentMethod  string   `json:"payment_method,omitempty"`
	CanceledAt     string   `json:"canceled_at,omitempty"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
	Warnings       []string `json:"warnings,omitempty"`
}

func toResponse(appt model.Appointment, warnings []scheduling.Warning) appointmentResponse {
	resp := appointmentResponse{
		ID:             appt.ID,
		OrganizationID: appt.OrganizationID,
		ProfessionalID: appt.ProfessionalID,
		CustomerID:     appt.CustomerID,
		ServiceID:      appt.ServiceID,
		StartTime:      appt.StartTime.UTC().Format(time.RFC3339),
		EndTime:        appt.EndTime.UTC().Format(time.RFC3339),
		Status:         string(appt.Status),
		PaymentStatus:  appt.PaymentStatus,
		PaymentMethod:  appt.PaymentMethod,
		CreatedAt:      appt.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      appt.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if appt.CanceledAt != nil {
		resp.CanceledAt = appt.CanceledAt.UTC().Format(time.RFC3339)
	}
	for _, w := range warnings {
		resp.Warnings = append(resp.Warnings, string(w))
	}
	return resp
}

type createAppointmentRequest struct {
	ProfessionalID string `json:"professional_id"`
	CustomerID     string `json:"customer_id"`
	ServiceID      string `json:"service_id"`
	StartTime      string `json:"start_time"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, model.ChannelStaff)
}

func (h *Handler) PublicCreate(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, model.ChannelPublic)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request, channel model.Channel) {
	var req createAppointmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	start, err := parseTimestamp("start_time", req.StartTime)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.scheduler.CreateAppointment(r.Context(), scheduling.CreateInput{
		OrganizationID: organizationID(r),
		ProfessionalID: strings.TrimSpace(req.ProfessionalID),
		CustomerID:     strings.TrimSpace(req.CustomerID),
		ServiceID:      strings.TrimSpace(req.ServiceID),
		StartTime:      start,
		Channel:        channel,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(res.Appointment, res.Warnings))
}

type rescheduleRequest struct {
	StartTime      string `json:"start_time"`
	ProfessionalID string `json:"professional_id"`
}

func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	start, err := parseTimestamp("start_time", req.StartTime)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.scheduler.RescheduleAppointment(r.Context(), scheduling.RescheduleInput{
		OrganizationID:    organizationID(r),
		AppointmentID:     chi.URLParam(r, "appointmentID"),
		NewStartTime:      start,
		NewProfessionalID: strings.TrimSpace(req.ProfessionalID),
		Channel:           model.ChannelStaff,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(res.Appointment, res.Warnings))
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	appt, err := h.scheduler.CancelAppointment(r.Context(), organizationID(r), chi.URLParam(r, "appointmentID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt, nil))
}

type statusRequest struct {
	Status   string `json:"status"`
	Override bool   `json:"override"`
}

// UpdateStatus follows the state machine; override skips it and is reserved for owners and admins.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	status := model.Status(strings.TrimSpace(req.Status))
	orgID := organizationID(r)
	appointmentID := chi.URLParam(r, "appointmentID")

	var (
		appt model.Appointment
		err  error
	)
	if req.Override {
		role := strings.ToLower(strings.TrimSpace(r.Header.Get(RoleHeader)))
		if role != "owner" && role != "admin" {
			writeJSON(w, http.StatusForbidden, errorResponse{Error: "status override requires owner or admin role"})
			return
		}
		appt, err = h.scheduler.OverrideAppointmentStatus(r.Context(), orgID, appointmentID, status)
	} else {
		appt, err = h.scheduler.UpdateAppointmentStatus(r.Context(), orgID, appointmentID, status)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt, nil))
}

func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	appt, err := h.appointments.GetAppointment(r.Context(), organizationID(r), chi.URLParam(r, "appointmentID"))
	if err != nil {
		h.writeError(w, r, apperr.Repository("get appointment", err))
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt, nil))
}

// ListAppointments returns a professional's appointments intersecting [from, to), canceled ones
// included unless include_canceled=false.
func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	professionalID := strings.TrimSpace(q.Get("professional_id"))
	if professionalID == "" {
		h.writeError(w, r, apperr.Invalid("professional_id", "is required"))
		return
	}
	from, err := parseTimestamp("from", q.Get("from"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	to, err := parseTimestamp("to", q.Get("to"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !to.After(from) {
		h.writeError(w, r, apperr.Invalid("to", "must be after from"))
		return
	}
	if to.Sub(from) > maxListRange {
		h.writeError(w, r, apperr.Invalid("to", "range is limited to 62 days"))
		return
	}
	var exclude []model.Status
	if q.Get("include_canceled") == "false" {
		exclude = []model.Status{model.StatusCanceled}
	}

	appts, err := h.appointments.GetAppointmentsInRange(r.Context(), organizationID(r), professionalID, from, to, exclude)
	if err != nil {
		h.writeError(w, r, apperr.Repository("list appointments", err))
		return
	}
	items := make([]appointmentResponse, 0, len(appts))
	for _, appt := range appts {
		items = append(items, toResponse(appt, nil))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

func parseTimestamp(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, apperr.Invalid(field, "is required")
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperr.Invalid(field, "must be an RFC 3339 timestamp")
	}
	return t.UTC(), nil
}
