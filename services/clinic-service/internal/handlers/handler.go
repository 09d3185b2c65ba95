package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/md-rashed-zaman/clinicbook/libs/auth"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/ledger"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/schedule"
)

// Directory stores the doctor and patient records appointments refer to.
type Directory interface {
	UpsertDoctor(ctx context.Context, d model.Doctor) error
	UpsertPatient(ctx context.Context, p model.Patient) error
	GetDoctor(ctx context.Context, id string) (model.Doctor, error)
	GetPatient(ctx context.Context, id string) (model.Patient, error)
}

type Options struct {
	Resolver  *availability.Resolver
	Ledger    *ledger.Ledger
	Schedule  *schedule.Service
	Directory Directory
	Verifier  *auth.Verifier
	Logger    *slog.Logger

	StripeWebhookSecret    string
	StripeWebhookTolerance time.Duration
}

type Handler struct {
	resolver  *availability.Resolver
	ledger    *ledger.Ledger
	schedule  *schedule.Service
	directory Directory
	verifier  *auth.Verifier
	logger    *slog.Logger
	validate  *validator.Validate

	stripeWebhookSecret    string
	stripeWebhookTolerance time.Duration
}

func New(opts Options) *Handler {
	if opts.StripeWebhookTolerance <= 0 {
		opts.StripeWebhookTolerance = 5 * time.Minute
	}
	return &Handler{
		resolver:               opts.Resolver,
		ledger:                 opts.Ledger,
		schedule:               opts.Schedule,
		directory:              opts.Directory,
		verifier:               opts.Verifier,
		logger:                 opts.Logger,
		validate:               validator.New(),
		stripeWebhookSecret:    opts.StripeWebhookSecret,
		stripeWebhookTolerance: opts.StripeWebhookTolerance,
	}
}

// Register mounts every route on mux. All routes except the Stripe webhook require a bearer token.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("GET /api/v1/doctors/{doctorID}", h.authed(h.GetDoctor))
	mux.Handle("GET /api/v1/patients/{patientID}", h.authed(h.GetPatient))
	mux.Handle("GET /api/v1/doctors/{doctorID}/slots", h.authed(h.Slots))
	mux.Handle("GET /api/v1/doctors/{doctorID}/windows", h.authed(h.ListWindows))
	mux.Handle("POST /api/v1/doctors/{doctorID}/windows", h.authed(h.CreateWindow))
	mux.Handle("PUT /api/v1/windows/{windowID}", h.authed(h.UpdateWindow))
	mux.Handle("DELETE /api/v1/windows/{windowID}", h.authed(h.DeleteWindow))

	mux.Handle("POST /api/v1/appointments", h.authed(h.CreateAppointment))
	mux.Handle("GET /api/v1/appointments/{id}", h.authed(h.GetAppointment))
	mux.Handle("POST /api/v1/appointments/{id}/confirm", h.authed(h.ConfirmAppointment))
	mux.Handle("POST /api/v1/appointments/{id}/complete", h.authed(h.CompleteAppointment))
	mux.Handle("POST /api/v1/appointments/{id}/cancel", h.authed(h.CancelAppointment))
	mux.Handle("POST /api/v1/appointments/{id}/reschedule", h.authed(h.RescheduleAppointment))
	mux.Handle("GET /api/v1/doctors/{doctorID}/appointments", h.authed(h.ListDoctorAppointments))
	mux.Handle("GET /api/v1/patients/{patientID}/appointments", h.authed(h.ListPatientAppointments))

	mux.Handle("PUT /api/v1/admin/doctors/{id}", h.authed(h.UpsertDoctor))
	mux.Handle("PUT /api/v1/admin/patients/{id}", h.authed(h.UpsertPatient))
	mux.Handle("GET /api/v1/admin/{party}/{id}/deletion-check", h.authed(h.DeletionCheck))
	mux.Handle("DELETE /api/v1/admin/{party}/{id}", h.authed(h.DeleteParty))

	mux.HandleFunc("POST /api/v1/payments/stripe/webhook", h.StripeWebhook)
}

type actorHandler func(w http.ResponseWriter, r *http.Request, actor model.Actor)

func (h *Handler) authed(next actorHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid Authorization header")
			return
		}
		claims, err := h.verifier.Verify(token)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		role, ok := model.ParseRole(strings.ToLower(claims.Role))
		if !ok || role == model.RoleSystem {
			httpx.WriteError(w, http.StatusForbidden, "forbidden", "unsupported role")
			return
		}
		next(w, r, model.Actor{Role: role, ID: claims.Subject})
	})
}

// decode reads a JSON body into dst and runs struct validation on it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid json body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// writeErr translates domain errors into HTTP responses.
func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrSlotConflict):
		httpx.WriteError(w, http.StatusConflict, "slot_conflict", err.Error())
	case errors.Is(err, ledger.ErrActiveAppointments):
		httpx.WriteError(w, http.StatusConflict, "active_appointments", err.Error())
	case errors.Is(err, model.ErrInvalidTransition):
		httpx.WriteError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, model.ErrForbidden):
		httpx.WriteError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, schedule.ErrNotFound), errors.Is(err, model.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ledger.ErrOutsideAvailability), errors.Is(err, ledger.ErrPastAppointment), errors.Is(err, model.ErrUnknownEntity):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "unprocessable", err.Error())
	case errors.Is(err, ledger.ErrInvalidRequest), errors.Is(err, availability.ErrInvalidDuration),
		errors.Is(err, model.ErrInvalidWindow), errors.Is(err, model.ErrInvalidClock), errors.Is(err, model.ErrInvalidStatus):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

const localTimeLayout = "2006-01-02T15:04:05"

// parseLocalTime accepts wall clock timestamps with or without seconds. A zone offset,
// when present, is dropped; appointment times carry clinic local time.
func parseLocalTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{localTimeLayout, "2006-01-02T15:04", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return model.Naive(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}
