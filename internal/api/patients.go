package api

import (
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"clinicerp/m/domain"
	"clinicerp/m/internal/audit"
)

type patientRequest struct {
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	DateOfBirth       string `json:"date_of_birth"`
	Gender            string `json:"gender"`
	BloodGroup        string `json:"blood_group"`
	Phone             string `json:"phone"`
	Email             string `json:"email"`
	Address           string `json:"address"`
	PostalCode        string `json:"postal_code"`
	EmergencyContact  string `json:"emergency_contact"`
	EmergencyPhone    string `json:"emergency_phone"`
	Allergies         string `json:"allergies"`
	ChronicConditions string `json:"chronic_conditions"`
}

// generatePID issues a unique patient identifier of the form
// P<year><6 digits>.
func (h *Handler) generatePID() (string, error) {
	for {
		pid := fmt.Sprintf("P%d%06d", time.Now().Year(), rand.Intn(900000)+100000)
		var count int64
		if err := h.db.Get(&count, `SELECT COUNT(*) FROM patients WHERE pid = ?`, pid); err != nil {
			return "", err
		}
		if count == 0 {
			return pid, nil
		}
	}
}

func (h *Handler) createPatient(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleReceptionist, domain.RoleAdmin) {
		return
	}
	var req patientRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.FirstName == "" || req.LastName == "" || req.DateOfBirth == "" {
		respondError(w, http.StatusBadRequest, "first_name, last_name and date_of_birth are required")
		return
	}
	if _, err := time.Parse("2006-01-02", req.DateOfBirth); err != nil {
		respondError(w, http.StatusBadRequest, "date_of_birth must be in YYYY-MM-DD format")
		return
	}

	pid, err := h.generatePID()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to assign patient id")
		return
	}

	res, err := h.db.Exec(`INSERT INTO patients (pid, first_name, last_name, date_of_birth, gender, blood_group,
            phone, email, address, postal_code, emergency_contact, emergency_phone, allergies, chronic_conditions)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pid, req.FirstName, req.LastName, req.DateOfBirth, req.Gender, req.BloodGroup,
		req.Phone, strings.ToLower(req.Email), req.Address, req.PostalCode,
		req.EmergencyContact, req.EmergencyPhone, req.Allergies, req.ChronicConditions)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to create patient")
		return
	}
	id, err := res.LastInsertId()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to create patient")
		return
	}

	if err := h.refreshClusterStats(req.PostalCode); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to update postal cluster")
		return
	}

	uid := r.Context().Value(ctxUserID).(int64)
	_ = audit.Record(h.db, uid, "CREATE_PATIENT", "Patient", id, map[string]string{"pid": pid}, clientIP(r))

	respondJSON(w, http.StatusCreated, map[string]any{"id": id, "pid": pid})
}

func (h *Handler) searchPatients(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	postalCode := strings.TrimSpace(r.URL.Query().Get("postal_code"))

	var (
		clauses []string
		args    []any
	)
	if query != "" {
		like := "%" + strings.ToLower(query) + "%"
		clauses = append(clauses, `(LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(pid) LIKE ? OR phone LIKE ?)`)
		args = append(args, like, like, like, like)
	}
	if postalCode != "" {
		clauses = append(clauses, `postal_code = ?`)
		args = append(args, postalCode)
	}

	sqlQuery := `SELECT id, pid, first_name, last_name, date_of_birth, COALESCE(gender, '') AS gender,
            COALESCE(blood_group, '') AS blood_group, COALESCE(phone, '') AS phone, COALESCE(email, '') AS email,
            COALESCE(address, '') AS address, COALESCE(postal_code, '') AS postal_code,
            COALESCE(emergency_contact, '') AS emergency_contact, COALESCE(emergency_phone, '') AS emergency_phone,
            COALESCE(allergies, '') AS allergies, COALESCE(chronic_conditions, '') AS chronic_conditions,
            created_at, updated_at
        FROM patients`
	if len(clauses) > 0 {
		sqlQuery += " WHERE " + strings.Join(clauses, " AND ")
	}
	sqlQuery += " ORDER BY last_name, first_name LIMIT 50"

	var patients []domain.Patient
	if err := h.db.Select(&patients, sqlQuery, args...); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to search patients")
		return
	}
	if patients == nil {
		patients = []domain.Patient{}
	}
	respondJSON(w, http.StatusOK, patients)
}

func (h *Handler) getPatient(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid patient id")
		return
	}
	var patient domain.Patient
	err = h.db.Get(&patient, `SELECT id, pid, first_name, last_name, date_of_birth, COALESCE(gender, '') AS gender,
            COALESCE(blood_group, '') AS blood_group, COALESCE(phone, '') AS phone, COALESCE(email, '') AS email,
            COALESCE(address, '') AS address, COALESCE(postal_code, '') AS postal_code,
            COALESCE(emergency_contact, '') AS emergency_contact, COALESCE(emergency_phone, '') AS emergency_phone,
            COALESCE(allergies, '') AS allergies, COALESCE(chronic_conditions, '') AS chronic_conditions,
            created_at, updated_at
        FROM patients WHERE id = ?`, id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, patient)
}

// updateAllergies lets clinical staff maintain the allergy profile the
// safety checker reads.
func (h *Handler) updateAllergies(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleDoctor, domain.RoleAdmin) {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid patient id")
		return
	}
	var payload struct {
		Allergies string `json:"allergies"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.db.Exec(`UPDATE patients SET allergies = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, payload.Allergies, id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to update allergies")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		respondError(w, http.StatusNotFound, "not found")
		return
	}

	uid := r.Context().Value(ctxUserID).(int64)
	_ = audit.Record(h.db, uid, "UPDATE_ALLERGIES", "Patient", id, map[string]string{"allergies": payload.Allergies}, clientIP(r))

	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
