package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"clinicerp/m/domain"
	"clinicerp/m/internal/audit"
)

// appointmentTransitions lists the allowed status moves; completed,
// cancelled and no_show are terminal.
var appointmentTransitions = map[string][]string{
	domain.AppointmentScheduled:  {domain.AppointmentConfirmed, domain.AppointmentCancelled, domain.AppointmentNoShow},
	domain.AppointmentConfirmed:  {domain.AppointmentInProgress, domain.AppointmentCancelled, domain.AppointmentNoShow},
	domain.AppointmentInProgress: {domain.AppointmentCompleted, domain.AppointmentCancelled},
}

func allowedTransition(from, to string) bool {
	for _, next := range appointmentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type appointmentRequest struct {
	PatientID        int64  `json:"patient_id"`
	DoctorID         int64  `json:"doctor_id"`
	AppointmentDate  string `json:"appointment_date"`
	AppointmentTime  string `json:"appointment_time"`
	DurationMinutes  int64  `json:"duration_minutes"`
	ConsultationType string `json:"consultation_type"`
	Reason           string `json:"reason"`
}

func (h *Handler) createAppointment(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleReceptionist, domain.RoleDoctor, domain.RoleAdmin) {
		return
	}
	var req appointmentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.PatientID == 0 || req.DoctorID == 0 || req.AppointmentDate == "" || req.AppointmentTime == "" {
		respondError(w, http.StatusBadRequest, "patient_id, doctor_id, appointment_date and appointment_time are required")
		return
	}
	if _, err := time.Parse("2006-01-02", req.AppointmentDate); err != nil {
		respondError(w, http.StatusBadRequest, "appointment_date must be in YYYY-MM-DD format")
		return
	}
	if _, err := time.Parse("15:04", req.AppointmentTime); err != nil {
		respondError(w, http.StatusBadRequest, "appointment_time must be in HH:MM format")
		return
	}
	if req.DurationMinutes <= 0 {
		req.DurationMinutes = 30
	}
	consultation := req.ConsultationType
	switch consultation {
	case "":
		consultation = domain.ConsultationInPerson
	case domain.ConsultationInPerson, domain.ConsultationTelemedicine, domain.ConsultationFollowUp:
	default:
		respondError(w, http.StatusBadRequest, "invalid consultation_type")
		return
	}

	res, err := h.db.Exec(`INSERT INTO appointments (patient_id, doctor_id, appointment_date, appointment_time,
            duration_minutes, consultation_type, status, reason)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		req.PatientID, req.DoctorID, req.AppointmentDate, req.AppointmentTime,
		req.DurationMinutes, consultation, domain.AppointmentScheduled, req.Reason)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to create appointment")
		return
	}
	id, err := res.LastInsertId()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to create appointment")
		return
	}

	uid := r.Context().Value(ctxUserID).(int64)
	_ = audit.Record(h.db, uid, "CREATE_APPOINTMENT", "Appointment", id, nil, clientIP(r))

	respondJSON(w, http.StatusCreated, map[string]any{"id": id, "status": domain.AppointmentScheduled})
}

func (h *Handler) doctorAppointments(w http.ResponseWriter, r *http.Request) {
	doctorID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid doctor id")
		return
	}

	args := []any{doctorID}
	sqlQuery := `SELECT id, patient_id, doctor_id, appointment_date, appointment_time, duration_minutes,
            consultation_type, status, COALESCE(reason, '') AS reason, COALESCE(notes, '') AS notes,
            created_at, updated_at
        FROM appointments WHERE doctor_id = ?`

	if date := strings.TrimSpace(r.URL.Query().Get("date")); date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			respondError(w, http.StatusBadRequest, "date must be in YYYY-MM-DD format")
			return
		}
		sqlQuery += " AND appointment_date = ?"
		args = append(args, date)
	}
	sqlQuery += " ORDER BY appointment_date, appointment_time"

	var appointments []domain.Appointment
	if err := h.db.Select(&appointments, sqlQuery, args...); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list appointments")
		return
	}
	if appointments == nil {
		appointments = []domain.Appointment{}
	}
	respondJSON(w, http.StatusOK, appointments)
}

func (h *Handler) updateAppointmentStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid appointment id")
		return
	}
	var payload struct {
		Status string `json:"status"`
		Notes  string `json:"notes"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var current string
	if err := h.db.Get(&current, `SELECT status FROM appointments WHERE id = ?`, id); err != nil {
		respondServiceError(w, err)
		return
	}
	if !allowedTransition(current, payload.Status) {
		respondError(w, http.StatusConflict, "invalid status transition from "+current)
		return
	}

	if _, err := h.db.Exec(`UPDATE appointments SET status = ?, notes = COALESCE(NULLIF(?, ''), notes), updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		payload.Status, payload.Notes, id); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to update appointment")
		return
	}

	uid := r.Context().Value(ctxUserID).(int64)
	_ = audit.Record(h.db, uid, "UPDATE_APPOINTMENT_STATUS", "Appointment", id,
		map[string]string{"from": current, "to": payload.Status}, clientIP(r))

	respondJSON(w, http.StatusOK, map[string]string{"status": payload.Status})
}
