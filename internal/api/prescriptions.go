package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"clinicerp/m/domain"
	"clinicerp/m/internal/pharmacy"
)

func (h *Handler) createPrescription(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleDoctor) {
		return
	}
	var in pharmacy.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	doctorID := r.Context().Value(ctxUserID).(int64)
	result, err := h.rx.Create(doctorID, in, clientIP(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

func (h *Handler) getPrescription(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid prescription id")
		return
	}
	details, err := h.rx.Get(id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, details)
}

func (h *Handler) dispensePrescription(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RolePharmacist) {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid prescription id")
		return
	}

	pharmacistID := r.Context().Value(ctxUserID).(int64)
	result, err := h.rx.Dispense(id, pharmacistID, clientIP(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) cancelPrescription(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleDoctor, domain.RolePharmacist, domain.RoleAdmin) {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid prescription id")
		return
	}

	uid := r.Context().Value(ctxUserID).(int64)
	if err := h.rx.Cancel(id, uid, clientIP(r)); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": domain.PrescriptionCancelled})
}
