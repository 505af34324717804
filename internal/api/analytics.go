package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"clinicerp/m/domain"
)

// refreshClusterStats recomputes the patient count and average age for
// one postal code. Called after every patient write touching the code.
func (h *Handler) refreshClusterStats(postalCode string) error {
	if postalCode == "" {
		return nil
	}

	var births []string
	err := h.db.Select(&births, `SELECT date_of_birth FROM patients WHERE postal_code = ?`, postalCode)
	if err != nil {
		return err
	}

	var avgAge float64
	if len(births) > 0 {
		now := time.Now()
		var total float64
		for _, dob := range births {
			born, err := time.Parse("2006-01-02", dob)
			if err != nil {
				continue
			}
			total += now.Sub(born).Hours() / 24 / 365.25
		}
		avgAge = total / float64(len(births))
	}

	_, err = h.db.Exec(`INSERT INTO postal_code_clusters (postal_code, patient_count, avg_age, updated_at)
        VALUES (?, ?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(postal_code) DO UPDATE SET
            patient_count = excluded.patient_count,
            avg_age = excluded.avg_age,
            updated_at = CURRENT_TIMESTAMP`,
		postalCode, len(births), avgAge)
	return err
}

func (h *Handler) postalClusters(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	var clusters []domain.PostalCodeCluster
	if err := h.db.Select(&clusters, `SELECT id, postal_code, patient_count, avg_age, updated_at
        FROM postal_code_clusters ORDER BY patient_count DESC`); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list clusters")
		return
	}
	if clusters == nil {
		clusters = []domain.PostalCodeCluster{}
	}
	respondJSON(w, http.StatusOK, clusters)
}

func (h *Handler) demandAnalysis(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	postalCode := chi.URLParam(r, "postalCode")

	var cluster domain.PostalCodeCluster
	err := h.db.Get(&cluster, `SELECT id, postal_code, patient_count, avg_age, updated_at
        FROM postal_code_clusters WHERE postal_code = ?`, postalCode)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	var appointments int64
	err = h.db.Get(&appointments, `SELECT COUNT(*) FROM appointments
        WHERE patient_id IN (SELECT id FROM patients WHERE postal_code = ?)`, postalCode)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to analyze demand")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"postal_code":        cluster.PostalCode,
		"patient_count":      cluster.PatientCount,
		"avg_age":            cluster.AvgAge,
		"total_appointments": appointments,
	})
}
