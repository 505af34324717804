package api

import (
	"net/http"
	"strings"

	"clinicerp/m/domain"
	"clinicerp/m/internal/audit"
)

const medicineColumns = `id, name, COALESCE(generic_name, '') AS generic_name, COALESCE(category, '') AS category,
        COALESCE(manufacturer, '') AS manufacturer, COALESCE(dosage_form, '') AS dosage_form,
        COALESCE(strength, '') AS strength, unit_price, reorder_level, created_at`

func (h *Handler) searchMedicines(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	var medicines []domain.Medicine
	if query == "" {
		h.db.Select(&medicines, `SELECT `+medicineColumns+` FROM medicines ORDER BY name LIMIT 25`)
	} else {
		like := "%" + strings.ToLower(query) + "%"
		h.db.Select(&medicines, `SELECT `+medicineColumns+` FROM medicines
            WHERE LOWER(name) LIKE ? OR LOWER(generic_name) LIKE ? ORDER BY name LIMIT 25`, like, like)
	}
	if medicines == nil {
		medicines = []domain.Medicine{}
	}
	respondJSON(w, http.StatusOK, medicines)
}

type medicineRequest struct {
	Name         string  `json:"name"`
	GenericName  string  `json:"generic_name"`
	Category     string  `json:"category"`
	Manufacturer string  `json:"manufacturer"`
	DosageForm   string  `json:"dosage_form"`
	Strength     string  `json:"strength"`
	UnitPrice    float64 `json:"unit_price"`
	ReorderLevel int64   `json:"reorder_level"`
}

func (h *Handler) createMedicine(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	var req medicineRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.UnitPrice < 0 {
		respondError(w, http.StatusBadRequest, "unit_price must not be negative")
		return
	}
	if req.ReorderLevel < 0 {
		respondError(w, http.StatusBadRequest, "reorder_level must not be negative")
		return
	}
	if req.ReorderLevel == 0 {
		req.ReorderLevel = 50
	}

	res, err := h.db.Exec(`INSERT INTO medicines (name, generic_name, category, manufacturer, dosage_form, strength, unit_price, reorder_level)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		req.Name, req.GenericName, req.Category, req.Manufacturer, req.DosageForm, req.Strength, req.UnitPrice, req.ReorderLevel)
	if err != nil {
		respondError(w, http.StatusConflict, "medicine already exists")
		return
	}
	id, err := res.LastInsertId()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to create medicine")
		return
	}

	uid := r.Context().Value(ctxUserID).(int64)
	_ = audit.Record(h.db, uid, "CREATE_MEDICINE", "Medicine", id, map[string]string{"name": req.Name}, clientIP(r))

	respondJSON(w, http.StatusCreated, map[string]any{"id": id, "name": req.Name})
}
