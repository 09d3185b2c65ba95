package handlers

import (
	"net/http"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/ledger"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
)

type createAppointmentRequest struct {
	DoctorID        string `json:"doctor_id" validate:"required"`
	PatientID       string `json:"patient_id"`
	Start           string `json:"start" validate:"required"`
	DurationMinutes int    `json:"duration_minutes" validate:"required,gt=0,lte=1440"`
	Notes           string `json:"notes" validate:"max=2000"`
	Status          string `json:"status" validate:"omitempty,oneof=pending confirmed"`
}

type cancelAppointmentRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type rescheduleAppointmentRequest struct {
	Start           string `json:"start" validate:"required"`
	DurationMinutes int    `json:"duration_minutes" validate:"omitempty,gt=0,lte=1440"`
}

type appointmentResponse struct {
	ID              string       `json:"id"`
	DoctorID        string       `json:"doctor_id"`
	PatientID       string       `json:"patient_id"`
	Start           string       `json:"start"`
	End             string       `json:"end"`
	DurationMinutes int          `json:"duration_minutes"`
	Status          model.Status `json:"status"`
	Notes           string       `json:"notes,omitempty"`
	CancelledAt     string       `json:"cancelled_at,omitempty"`
	CancelReason    string       `json:"cancel_reason,omitempty"`
	CreatedAt       string       `json:"created_at,omitempty"`
}

func toAppointmentResponse(a model.Appointment) appointmentResponse {
	out := appointmentResponse{
		ID:              a.ID,
		DoctorID:        a.DoctorID,
		PatientID:       a.PatientID,
		Start:           a.Start.Format(localTimeLayout),
		End:             a.End().Format(localTimeLayout),
		DurationMinutes: a.DurationMinutes,
		Status:          a.Status,
		Notes:           a.Notes,
		CancelReason:    a.CancelReason,
	}
	if a.CancelledAt != nil {
		out.CancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
	}
	if !a.CreatedAt.IsZero() {
		out.CreatedAt = a.CreatedAt.UTC().Format(time.RFC3339)
	}
	return out
}

func toAppointmentList(appts []model.Appointment) map[string]any {
	items := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		items = append(items, toAppointmentResponse(a))
	}
	return map[string]any{"appointments": items}
}

// CreateAppointment books a slot. Patients always book for themselves; the patient_id
// field is only honoured for admin bookings.
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	var req createAppointmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, err := parseLocalTime(req.Start)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	patientID := req.PatientID
	if actor.Role == model.RolePatient && patientID == "" {
		patientID = actor.ID
	}
	status := model.StatusPending
	if req.Status != "" {
		if status, err = model.ParseStatus(req.Status); err != nil {
			h.writeErr(w, r, err)
			return
		}
	}
	if actor.Role == model.RoleDoctor {
		h.writeErr(w, r, model.ErrForbidden)
		return
	}

	appt, err := h.ledger.Commit(r.Context(), ledger.BookingRequest{
		DoctorID:        req.DoctorID,
		PatientID:       patientID,
		Start:           start,
		DurationMinutes: req.DurationMinutes,
		Notes:           req.Notes,
		Status:          status,
		Actor:           actor,
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	appt, err := h.ledger.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if !canView(actor, appt) {
		h.writeErr(w, r, ledger.ErrNotFound)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func canView(actor model.Actor, appt model.Appointment) bool {
	switch actor.Role {
	case model.RoleAdmin:
		return true
	case model.RoleDoctor:
		return actor.ID == appt.DoctorID
	case model.RolePatient:
		return actor.ID == appt.PatientID
	}
	return false
}

func (h *Handler) ConfirmAppointment(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	appt, err := h.ledger.Confirm(r.Context(), r.PathValue("id"), actor)
	h.writeAppointment(w, r, appt, err)
}

func (h *Handler) CompleteAppointment(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	appt, err := h.ledger.Complete(r.Context(), r.PathValue("id"), actor)
	h.writeAppointment(w, r, appt, err)
}

func (h *Handler) CancelAppointment(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	var req cancelAppointmentRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	appt, err := h.ledger.Cancel(r.Context(), r.PathValue("id"), actor, req.Reason)
	h.writeAppointment(w, r, appt, err)
}

func (h *Handler) RescheduleAppointment(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	var req rescheduleAppointmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, err := parseLocalTime(req.Start)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	appt, err := h.ledger.Reschedule(r.Context(), r.PathValue("id"), start, req.DurationMinutes, actor)
	h.writeAppointment(w, r, appt, err)
}

func (h *Handler) writeAppointment(w http.ResponseWriter, r *http.Request, appt model.Appointment, err error) {
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *Handler) ListDoctorAppointments(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	doctorID := r.PathValue("doctorID")
	if !actor.IsAdmin() && !(actor.Role == model.RoleDoctor && actor.ID == doctorID) {
		h.writeErr(w, r, model.ErrForbidden)
		return
	}
	date, err := model.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
		return
	}
	appts, err := h.ledger.ListForDoctor(r.Context(), doctorID, date)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentList(appts))
}

func (h *Handler) ListPatientAppointments(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	patientID := r.PathValue("patientID")
	if !actor.IsAdmin() && !(actor.Role == model.RolePatient && actor.ID == patientID) {
		h.writeErr(w, r, model.ErrForbidden)
		return
	}
	appts, err := h.ledger.ListForPatient(r.Context(), patientID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentList(appts))
}
