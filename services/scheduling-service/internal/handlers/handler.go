package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elizahq/eliza/services/scheduling-service/internal/apperr"
	"github.com/elizahq/eliza/services/scheduling-service/internal/model"
	"github.com/elizahq/eliza/services/scheduling-service/internal/scheduling"
	"github.com/go-chi/chi/v5"
)

// OrganizationHeader is set by the gateway after it has resolved the caller's tenant.
const OrganizationHeader = "X-Organization-Id"

// RoleHeader carries the caller's role, also set by the gateway.
const RoleHeader = "X-Role"

type SlotEngine interface {
	ComputeAvailableSlots(ctx context.Context, orgID, professionalID string, date time.Time) ([]string, error)
}

type Scheduler interface {
	CreateAppointment(ctx context.Context, in scheduling.CreateInput) (scheduling.Result, error)
	RescheduleAppointment(ctx context.Context, in scheduling.RescheduleInput) (scheduling.Result, error)
	CancelAppointment(ctx context.Context, orgID, appointmentID string) (model.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, orgID, appointmentID string, status model.Status) (model.Appointment, error)
	OverrideAppointmentStatus(ctx context.Context, orgID, appointmentID string, status model.Status) (model.Appointment, error)
}

type AppointmentReader interface {
	GetAppointment(ctx context.Context, orgID, appointmentID string) (model.Appointment, error)
	GetAppointmentsInRange(ctx context.Context, orgID, professionalID string, start, end time.Time, exclude []model.Status) ([]model.Appointment, error)
}

type PatternStore interface {
	ListWeek(ctx context.Context, orgID, professionalID string) ([]model.WorkingPattern, error)
	UpsertWeek(ctx context.Context, orgID, professionalID string, patterns []model.WorkingPattern) error
}

type Handler struct {
	slots        SlotEngine
	scheduler    Scheduler
	appointments AppointmentReader
	patterns     PatternStore
	logger       *slog.Logger
}

func NewHandler(slots SlotEngine, scheduler Scheduler, appointments AppointmentReader, patterns PatternStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		slots:        slots,
		scheduler:    scheduler,
		appointments: appointments,
		patterns:     patterns,
		logger:       logger,
	}
}

// Routes mounts the API under /api/v1. public wraps the unauthenticated booking routes only.
func (h *Handler) Routes(r chi.Router, public ...func(http.Handler) http.Handler) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(public...)
			r.Get("/public/organizations/{orgID}/professionals/{professionalID}/slots", h.PublicSlots)
			r.Post("/public/organizations/{orgID}/appointments", h.PublicCreate)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireOrganization)
			r.Get("/professionals/{professionalID}/slots", h.Slots)
			r.Get("/professionals/{professionalID}/working-pattern", h.GetWorkingPattern)
			r.Put("/professionals/{professionalID}/working-pattern", h.PutWorkingPattern)
			r.Get("/appointments", h.ListAppointments)
			r.Post("/appointments", h.Create)
			r.Get("/appointments/{appointmentID}", h.GetAppointment)
			r.Post("/appointments/{appointmentID}/reschedule", h.Reschedule)
			r.Post("/appointments/{appointmentID}/cancel", h.Cancel)
			r.Post("/appointments/{appointmentID}/status", h.UpdateStatus)
		})
	})
}

type orgKey struct{}

func requireOrganization(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID := strings.TrimSpace(r.Header.Get(OrganizationHeader))
		if orgID == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing " + OrganizationHeader + " header"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), orgKey{}, orgID)))
	})
}

func organizationID(r *http.Request) string {
	if v, ok := r.Context().Value(orgKey{}).(string); ok {
		return v
	}
	return strings.TrimSpace(chi.URLParam(r, "orgID"))
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusCode maps the service error taxonomy onto HTTP.
func StatusCode(err error) int {
	var (
		validErr    *apperr.ValidationError
		conflictErr *apperr.SlotConflictError
		transErr    *apperr.InvalidTransitionError
		cfgErr      *apperr.ConfigurationError
		repoErr     *apperr.RepositoryError
	)
	switch {
	case errors.As(err, &validErr):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &conflictErr), errors.As(err, &transErr):
		return http.StatusConflict
	case errors.As(err, &cfgErr):
		return http.StatusInternalServerError
	case errors.As(err, &repoErr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusCode(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", code, "err", err)
	}
	writeJSON(w, code, errorResponse{Error: apperr.PublicMessage(err)})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return false
	}
	return true
}
