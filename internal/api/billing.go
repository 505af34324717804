package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"clinicerp/m/domain"
	"clinicerp/m/internal/audit"
)

const taxRate = 0.05

type billItemRequest struct {
	ItemType    string  `json:"item_type"`
	Description string  `json:"description"`
	Quantity    int64   `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

type billRequest struct {
	PatientID     int64             `json:"patient_id"`
	AppointmentID *int64            `json:"appointment_id,omitempty"`
	Items         []billItemRequest `json:"items"`
}

func (h *Handler) createBill(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleReceptionist, domain.RoleAdmin) {
		return
	}
	var req billRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.PatientID == 0 || len(req.Items) == 0 {
		respondError(w, http.StatusBadRequest, "patient_id and at least one item are required")
		return
	}
	var total float64
	for _, item := range req.Items {
		if item.ItemType == "" || item.Description == "" || item.Quantity <= 0 || item.UnitPrice < 0 {
			respondError(w, http.StatusBadRequest, "item_type, description, positive quantity and unit_price are required for each item")
			return
		}
		total += float64(item.Quantity) * item.UnitPrice
	}
	tax := total * taxRate
	net := total + tax

	tx, err := h.db.Beginx()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to start bill")
		return
	}
	defer tx.Rollback()

	var count int64
	if err := tx.Get(&count, `SELECT COUNT(*) FROM bills`); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to create bill")
		return
	}
	number := fmt.Sprintf("BILL%s%05d", time.Now().Format("20060102"), count+1)

	res, err := tx.Exec(`INSERT INTO bills (bill_number, patient_id, appointment_id, bill_date, total_amount, tax, net_amount, status)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		number, req.PatientID, req.AppointmentID, time.Now().Format("2006-01-02"), total, tax, net, domain.BillPending)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to create bill")
		return
	}
	billID, err := res.LastInsertId()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to create bill")
		return
	}

	for _, item := range req.Items {
		if _, err := tx.Exec(`INSERT INTO bill_items (bill_id, item_type, description, quantity, unit_price, total_price)
            VALUES (?, ?, ?, ?, ?, ?)`,
			billID, item.ItemType, item.Description, item.Quantity, item.UnitPrice,
			float64(item.Quantity)*item.UnitPrice); err != nil {
			respondError(w, http.StatusInternalServerError, "unable to save bill items")
			return
		}
	}

	uid := r.Context().Value(ctxUserID).(int64)
	if err := audit.Record(tx, uid, "CREATE_BILL", "Bill", billID, map[string]any{"number": number, "net_amount": net}, clientIP(r)); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to create bill")
		return
	}

	if err := tx.Commit(); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to finalize bill")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"id":           billID,
		"bill_number":  number,
		"total_amount": total,
		"tax":          tax,
		"net_amount":   net,
		"status":       domain.BillPending,
	})
}

func (h *Handler) processPayment(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleReceptionist, domain.RoleAdmin) {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid bill id")
		return
	}
	var payload struct {
		Amount        float64 `json:"amount"`
		PaymentMethod string  `json:"payment_method"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.Amount <= 0 {
		respondError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	tx, err := h.db.Beginx()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to process payment")
		return
	}
	defer tx.Rollback()

	var bill domain.Bill
	err = tx.Get(&bill, `SELECT id, bill_number, patient_id, appointment_id, bill_date, total_amount, tax,
            net_amount, paid_amount, status, COALESCE(payment_method, '') AS payment_method, created_at, updated_at
        FROM bills WHERE id = ?`, id)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	paid := bill.PaidAmount + payload.Amount
	status := domain.BillPartiallyPaid
	if paid >= bill.NetAmount {
		status = domain.BillPaid
	}

	if _, err := tx.Exec(`UPDATE bills SET paid_amount = ?, status = ?, payment_method = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		paid, status, payload.PaymentMethod, id); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to process payment")
		return
	}

	uid := r.Context().Value(ctxUserID).(int64)
	if err := audit.Record(tx, uid, "PROCESS_PAYMENT", "Bill", id,
		map[string]any{"amount": payload.Amount, "method": payload.PaymentMethod}, clientIP(r)); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to process payment")
		return
	}

	if err := tx.Commit(); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to process payment")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"id": id, "paid_amount": paid, "status": status})
}

func (h *Handler) revenueReport(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	startDate := strings.TrimSpace(r.URL.Query().Get("start_date"))
	endDate := strings.TrimSpace(r.URL.Query().Get("end_date"))
	for _, d := range []string{startDate, endDate} {
		if d == "" {
			respondError(w, http.StatusBadRequest, "start_date and end_date are required")
			return
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			respondError(w, http.StatusBadRequest, "dates must be in YYYY-MM-DD format")
			return
		}
	}

	var report struct {
		TotalBills     int64   `db:"total_bills"`
		TotalBilled    float64 `db:"total_billed"`
		TotalCollected float64 `db:"total_collected"`
	}
	err := h.db.Get(&report, `SELECT COUNT(*) AS total_bills,
            COALESCE(SUM(net_amount), 0) AS total_billed,
            COALESCE(SUM(paid_amount), 0) AS total_collected
        FROM bills WHERE bill_date >= ? AND bill_date <= ?`, startDate, endDate)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to build revenue report")
		return
	}

	collectionRate := 0.0
	if report.TotalBilled > 0 {
		collectionRate = report.TotalCollected / report.TotalBilled * 100
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"start_date":      startDate,
		"end_date":        endDate,
		"total_bills":     report.TotalBills,
		"total_billed":    report.TotalBilled,
		"total_collected": report.TotalCollected,
		"pending_amount":  report.TotalBilled - report.TotalCollected,
		"collection_rate": collectionRate,
	})
}
