package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/schedule"
)

type slotItem struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Label string `json:"label"`
}

type slotsResponse struct {
	DoctorID        string     `json:"doctor_id"`
	Date            string     `json:"date"`
	DurationMinutes int        `json:"duration_minutes"`
	Slots           []slotItem `json:"slots"`
}

// Slots lists the bookable slots of a doctor for one day.
func (h *Handler) Slots(w http.ResponseWriter, r *http.Request, _ model.Actor) {
	doctorID := r.PathValue("doctorID")
	date, err := model.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
		return
	}
	duration, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("duration_minutes")))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "duration_minutes must be an integer")
		return
	}

	slots, err := h.resolver.ComputeSlots(r.Context(), doctorID, date, duration)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			Start: s.Start.Format(localTimeLayout),
			End:   s.End.Format(localTimeLayout),
			Label: s.String(),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, slotsResponse{
		DoctorID:        doctorID,
		Date:            date.Format(model.DateLayout),
		DurationMinutes: duration,
		Slots:           items,
	})
}

type windowRequest struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Start     string `json:"start" validate:"required,len=5"`
	End       string `json:"end" validate:"required,len=5"`
	Available *bool  `json:"available"`
}

func (req windowRequest) input() (schedule.WindowInput, error) {
	date, err := model.ParseDate(req.Date)
	if err != nil {
		return schedule.WindowInput{}, err
	}
	start, err := model.ParseClock(req.Start)
	if err != nil {
		return schedule.WindowInput{}, err
	}
	end, err := model.ParseClock(req.End)
	if err != nil {
		return schedule.WindowInput{}, err
	}
	available := true
	if req.Available != nil {
		available = *req.Available
	}
	return schedule.WindowInput{Date: date, Start: start, End: end, Available: available}, nil
}

type windowResponse struct {
	ID        string `json:"id"`
	DoctorID  string `json:"doctor_id"`
	Date      string `json:"date"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Available bool   `json:"available"`
}

func toWindowResponse(win model.AvailabilityWindow) windowResponse {
	return windowResponse{
		ID:        win.ID,
		DoctorID:  win.DoctorID,
		Date:      win.Date.Format(model.DateLayout),
		Start:     win.Start.String(),
		End:       win.End.String(),
		Available: win.Available,
	}
}

func (h *Handler) ListWindows(w http.ResponseWriter, r *http.Request, _ model.Actor) {
	date, err := model.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
		return
	}
	windows, err := h.schedule.ListWindows(r.Context(), r.PathValue("doctorID"), date)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	items := make([]windowResponse, 0, len(windows))
	for _, win := range windows {
		items = append(items, toWindowResponse(win))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"windows": items})
}

func (h *Handler) CreateWindow(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	var req windowRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	win, err := h.schedule.CreateWindow(r.Context(), actor, r.PathValue("doctorID"), in)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toWindowResponse(win))
}

func (h *Handler) UpdateWindow(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	var req windowRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	win, err := h.schedule.UpdateWindow(r.Context(), actor, r.PathValue("windowID"), in)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toWindowResponse(win))
}

func (h *Handler) DeleteWindow(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	if err := h.schedule.DeleteWindow(r.Context(), actor, r.PathValue("windowID")); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
