package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"clinicerp/m/domain"
	"clinicerp/m/internal/audit"
	"clinicerp/m/internal/ledger"
)

type batchRequest struct {
	MedicineID   int64   `json:"medicine_id"`
	BatchNumber  string  `json:"batch_number"`
	Quantity     int64   `json:"quantity"`
	ExpiryDate   string  `json:"expiry_date"`
	Location     string  `json:"location"`
	CostPrice    float64 `json:"cost_price"`
	SellingPrice float64 `json:"selling_price"`
	Supplier     string  `json:"supplier"`
}

// receiveBatch records a goods receipt as a new stock batch.
func (h *Handler) receiveBatch(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RolePharmacist, domain.RoleAdmin) {
		return
	}
	var req batchRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.MedicineID == 0 || req.BatchNumber == "" || req.ExpiryDate == "" {
		respondError(w, http.StatusBadRequest, "medicine_id, batch_number and expiry_date are required")
		return
	}
	if req.Quantity <= 0 {
		respondError(w, http.StatusBadRequest, "quantity must be positive")
		return
	}
	if _, err := time.Parse("2006-01-02", req.ExpiryDate); err != nil {
		respondError(w, http.StatusBadRequest, "expiry_date must be in YYYY-MM-DD format")
		return
	}
	if req.Location == "" {
		req.Location = ledger.DefaultLocation
	}

	var exists int64
	if err := h.db.Get(&exists, `SELECT COUNT(*) FROM medicines WHERE id = ?`, req.MedicineID); err != nil || exists == 0 {
		respondError(w, http.StatusBadRequest, "unknown medicine")
		return
	}

	res, err := h.db.Exec(`INSERT INTO stock_batches (medicine_id, batch_number, quantity, expiry_date, location,
            cost_price, selling_price, supplier, received_date)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.MedicineID, req.BatchNumber, req.Quantity, req.ExpiryDate, req.Location,
		req.CostPrice, req.SellingPrice, req.Supplier, ledger.Today())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to record batch")
		return
	}
	id, err := res.LastInsertId()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to record batch")
		return
	}

	uid := r.Context().Value(ctxUserID).(int64)
	_ = audit.Record(h.db, uid, "RECEIVE_BATCH", "StockBatch", id,
		map[string]any{"medicine_id": req.MedicineID, "batch_number": req.BatchNumber, "quantity": req.Quantity}, clientIP(r))

	respondJSON(w, http.StatusCreated, map[string]any{"id": id, "batch_number": req.BatchNumber})
}

func (h *Handler) medicineStock(w http.ResponseWriter, r *http.Request) {
	medicineID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid medicine id")
		return
	}
	location := strings.TrimSpace(r.URL.Query().Get("location"))
	if location == "" {
		location = ledger.DefaultLocation
	}

	today := ledger.Today()
	total, err := ledger.AvailableQuantity(h.db, medicineID, location, today)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to read stock")
		return
	}
	batches, err := ledger.ListAvailableBatches(h.db, medicineID, location, today)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to read stock")
		return
	}
	if batches == nil {
		batches = []domain.StockBatch{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"medicine_id":    medicineID,
		"location":       location,
		"total_quantity": total,
		"batches":        batches,
	})
}

type expiringBatch struct {
	MedicineID   int64  `db:"medicine_id" json:"medicine_id"`
	MedicineName string `db:"medicine_name" json:"medicine_name"`
	BatchNumber  string `db:"batch_number" json:"batch_number"`
	Quantity     int64  `db:"quantity" json:"quantity"`
	ExpiryDate   string `db:"expiry_date" json:"expiry_date"`
	Location     string `db:"location" json:"location"`
	DaysToExpiry int64  `json:"days_to_expiry"`
}

func (h *Handler) expiringBatches(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RolePharmacist, domain.RoleAdmin) {
		return
	}
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	if days <= 0 {
		days = 30
	}

	now := time.Now()
	today := now.Format("2006-01-02")
	threshold := now.AddDate(0, 0, days).Format("2006-01-02")

	var rows []expiringBatch
	err := h.db.Select(&rows, `SELECT b.medicine_id, m.name AS medicine_name, b.batch_number, b.quantity,
            b.expiry_date, b.location
        FROM stock_batches b
        JOIN medicines m ON m.id = b.medicine_id
        WHERE b.quantity > 0 AND b.expiry_date > ? AND b.expiry_date <= ?
        ORDER BY b.expiry_date ASC, b.id ASC`, today, threshold)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to fetch expiring batches")
		return
	}
	for i := range rows {
		if expiry, err := time.Parse("2006-01-02", rows[i].ExpiryDate); err == nil {
			rows[i].DaysToExpiry = int64(expiry.Sub(now).Hours() / 24)
		}
	}
	if rows == nil {
		rows = []expiringBatch{}
	}
	respondJSON(w, http.StatusOK, rows)
}

type reorderEntry struct {
	MedicineID      int64  `db:"medicine_id" json:"medicine_id"`
	MedicineName    string `db:"medicine_name" json:"medicine_name"`
	CurrentStock    int64  `db:"current_stock" json:"current_stock"`
	ReorderLevel    int64  `db:"reorder_level" json:"reorder_level"`
	QuantityToOrder int64  `json:"quantity_to_order"`
}

func (h *Handler) reorderList(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RolePharmacist, domain.RoleAdmin) {
		return
	}
	today := ledger.Today()

	var entries []reorderEntry
	err := h.db.Select(&entries, `SELECT m.id AS medicine_id, m.name AS medicine_name, m.reorder_level,
            COALESCE((SELECT SUM(b.quantity) FROM stock_batches b
                WHERE b.medicine_id = m.id AND b.quantity > 0 AND b.expiry_date > ?), 0) AS current_stock
        FROM medicines m
        WHERE COALESCE((SELECT SUM(b.quantity) FROM stock_batches b
                WHERE b.medicine_id = m.id AND b.quantity > 0 AND b.expiry_date > ?), 0) < m.reorder_level
        ORDER BY m.name`, today, today)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to compute reorder list")
		return
	}
	for i := range entries {
		entries[i].QuantityToOrder = entries[i].ReorderLevel*2 - entries[i].CurrentStock
	}
	if entries == nil {
		entries = []reorderEntry{}
	}
	respondJSON(w, http.StatusOK, entries)
}
