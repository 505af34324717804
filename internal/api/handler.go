package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"

	"clinicerp/m/internal/ledger"
	"clinicerp/m/internal/pharmacy"
)

type ctxKey string

const (
	ctxUserID ctxKey = "userID"
	ctxRole   ctxKey = "role"
)

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	db     *sqlx.DB
	secret string
	rx     *pharmacy.Service
}

// New constructs a Handler.
func New(db *sqlx.DB, secret string) *Handler {
	return &Handler{db: db, secret: secret, rx: pharmacy.NewService(db)}
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Group(func(protected chi.Router) {
			protected.Use(h.authMiddleware)
			protected.Post("/reset-password", h.resetPassword)
		})
	})

	r.Group(func(pr chi.Router) {
		pr.Use(h.authMiddleware)

		pr.Route("/patients", func(r chi.Router) {
			r.Post("/", h.createPatient)
			r.Get("/search", h.searchPatients)
			r.Get("/{id}", h.getPatient)
			r.Put("/{id}/allergies", h.updateAllergies)
		})

		pr.Route("/appointments", func(r chi.Router) {
			r.Post("/", h.createAppointment)
			r.Get("/doctor/{id}", h.doctorAppointments)
			r.Put("/{id}/status", h.updateAppointmentStatus)
		})

		pr.Route("/medicines", func(r chi.Router) {
			r.Get("/", h.searchMedicines)
			r.Post("/", h.createMedicine)
		})

		pr.Route("/inventory", func(r chi.Router) {
			r.Post("/batches", h.receiveBatch)
			r.Get("/medicine/{id}", h.medicineStock)
			r.Get("/expiring", h.expiringBatches)
			r.Get("/reorder", h.reorderList)
		})

		pr.Route("/prescriptions", func(r chi.Router) {
			r.Post("/", h.createPrescription)
			r.Get("/{id}", h.getPrescription)
			r.Post("/{id}/dispense", h.dispensePrescription)
			r.Post("/{id}/cancel", h.cancelPrescription)
		})

		pr.Route("/bills", func(r chi.Router) {
			r.Post("/", h.createBill)
			r.Post("/{id}/payment", h.processPayment)
			r.Get("/revenue-report", h.revenueReport)
		})

		pr.Route("/analytics", func(r chi.Router) {
			r.Get("/postal-clusters", h.postalClusters)
			r.Get("/demand/{postalCode}", h.demandAnalysis)
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helpers

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps the core error taxonomy onto HTTP statuses:
// validation 400, insufficient stock 400 with the shortfall attached,
// state conflicts 409, missing rows 404.
func respondServiceError(w http.ResponseWriter, err error) {
	var validation *ledger.ValidationError
	var stock *ledger.InsufficientStockError
	switch {
	case errors.As(err, &validation):
		respondError(w, http.StatusBadRequest, validation.Msg)
	case errors.As(err, &stock):
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":       stock.Error(),
			"medicine_id": stock.MedicineID,
			"requested":   stock.Requested,
			"available":   stock.Available,
		})
	case errors.Is(err, pharmacy.ErrInvalidStateTransition):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, sql.ErrNoRows):
		respondError(w, http.StatusNotFound, "not found")
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
