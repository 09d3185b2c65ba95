package handlers

import (
	"net/http"

	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
)

type doctorRequest struct {
	Name      string `json:"name" validate:"required,max=200"`
	Specialty string `json:"specialty" validate:"max=200"`
	Email     string `json:"email" validate:"omitempty,email"`
}

type patientRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"omitempty,email"`
}

type doctorResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Specialty string `json:"specialty,omitempty"`
	Email     string `json:"email,omitempty"`
}

type patientResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// GetDoctor returns the public profile shown next to a doctor's slots.
func (h *Handler) GetDoctor(w http.ResponseWriter, r *http.Request, _ model.Actor) {
	d, err := h.directory.GetDoctor(r.Context(), r.PathValue("doctorID"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, doctorResponse{ID: d.ID, Name: d.Name, Specialty: d.Specialty, Email: d.Email})
}

func (h *Handler) GetPatient(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	patientID := r.PathValue("patientID")
	if !actor.IsAdmin() && !(actor.Role == model.RolePatient && actor.ID == patientID) {
		h.writeErr(w, r, model.ErrForbidden)
		return
	}
	p, err := h.directory.GetPatient(r.Context(), patientID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, patientResponse{ID: p.ID, Name: p.Name, Email: p.Email})
}

func (h *Handler) UpsertDoctor(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	if !actor.IsAdmin() {
		h.writeErr(w, r, model.ErrForbidden)
		return
	}
	var req doctorRequest
	if !h.decode(w, r, &req) {
		return
	}
	d := model.Doctor{ID: r.PathValue("id"), Name: req.Name, Specialty: req.Specialty, Email: req.Email}
	if err := h.directory.UpsertDoctor(r.Context(), d); err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, doctorResponse{ID: d.ID, Name: d.Name, Specialty: d.Specialty, Email: d.Email})
}

func (h *Handler) UpsertPatient(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	if !actor.IsAdmin() {
		h.writeErr(w, r, model.ErrForbidden)
		return
	}
	var req patientRequest
	if !h.decode(w, r, &req) {
		return
	}
	p := model.Patient{ID: r.PathValue("id"), Name: req.Name, Email: req.Email}
	if err := h.directory.UpsertPatient(r.Context(), p); err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, patientResponse{ID: p.ID, Name: p.Name, Email: p.Email})
}

// DeletionCheck answers 204 when the doctor or patient may be removed and 409 while
// non-cancelled appointments still reference it.
func (h *Handler) DeletionCheck(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	if !actor.IsAdmin() {
		h.writeErr(w, r, model.ErrForbidden)
		return
	}
	party, ok := partyFromPath(w, r)
	if !ok {
		return
	}
	if err := h.ledger.EnsureDeletable(r.Context(), party); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteParty removes a doctor or patient with no active appointments. Cancelled
// appointments are removed with it.
func (h *Handler) DeleteParty(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	party, ok := partyFromPath(w, r)
	if !ok {
		return
	}
	if err := h.ledger.DeleteParty(r.Context(), party, actor); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func partyFromPath(w http.ResponseWriter, r *http.Request) (model.Party, bool) {
	var kind model.PartyKind
	switch r.PathValue("party") {
	case "doctors":
		kind = model.PartyDoctor
	case "patients":
		kind = model.PartyPatient
	default:
		httpx.WriteError(w, http.StatusNotFound, "not_found", "unknown party type")
		return model.Party{}, false
	}
	return model.Party{Kind: kind, ID: r.PathValue("id")}, true
}
