// Package pharmacy owns the prescription lifecycle: creation with
// advisory safety checks, all-or-nothing dispensing against the stock
// ledger, and cancellation.
package pharmacy

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"clinicerp/m/domain"
	"clinicerp/m/internal/audit"
	"clinicerp/m/internal/ledger"
	"clinicerp/m/internal/safety"
)

// ErrInvalidStateTransition is returned when a lifecycle operation is
// attempted on a prescription that is not pending. dispensed and
// cancelled are terminal.
var ErrInvalidStateTransition = errors.New("invalid prescription state transition")

// Service coordinates prescriptions, the ledger and the safety checks.
type Service struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewService(db *sqlx.DB) *Service {
	return &Service{db: db, now: time.Now}
}

type ItemInput struct {
	MedicineID   int64  `json:"medicine_id"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	DurationDays int64  `json:"duration_days"`
	Quantity     int64  `json:"quantity"`
	Instructions string `json:"instructions"`
}

type CreateInput struct {
	PatientID     int64       `json:"patient_id"`
	AppointmentID *int64      `json:"appointment_id,omitempty"`
	Notes         string      `json:"notes"`
	Items         []ItemInput `json:"items"`
}

// ItemWarning is one advisory finding attached to a prescription item.
type ItemWarning struct {
	Type        string  `json:"type"` // "interaction" or "allergy"
	Severity    string  `json:"severity,omitempty"`
	Description string  `json:"description,omitempty"`
	Drugs       []int64 `json:"drugs,omitempty"`
	Allergen    string  `json:"allergen,omitempty"`
}

type CreateResult struct {
	Prescription domain.Prescription         `json:"prescription"`
	Items        []domain.PrescriptionItem   `json:"items"`
	Interactions []safety.InteractionWarning `json:"interaction_warnings"`
	Allergies    map[int64][]string          `json:"allergy_warnings"`
}

// Create records a new pending prescription. Safety findings are
// computed up front and stored on each item, but never block creation:
// the accept/reject decision stays with the reviewing clinician.
func (s *Service) Create(doctorID int64, in CreateInput, ip string) (*CreateResult, error) {
	if in.PatientID == 0 {
		return nil, &ledger.ValidationError{Msg: "patient_id is required"}
	}
	if len(in.Items) == 0 {
		return nil, &ledger.ValidationError{Msg: "at least one prescription item is required"}
	}
	medicineIDs := make([]int64, 0, len(in.Items))
	for _, item := range in.Items {
		if item.MedicineID == 0 {
			return nil, &ledger.ValidationError{Msg: "medicine_id is required for each item"}
		}
		if item.Quantity <= 0 {
			return nil, &ledger.ValidationError{Msg: fmt.Sprintf("quantity must be positive for medicine %d", item.MedicineID)}
		}
		medicineIDs = append(medicineIDs, item.MedicineID)
	}

	var patient struct {
		ID        int64  `db:"id"`
		Allergies string `db:"allergies"`
	}
	err := s.db.Get(&patient, `SELECT id, COALESCE(allergies, '') AS allergies FROM patients WHERE id = ?`, in.PatientID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ledger.ValidationError{Msg: fmt.Sprintf("unknown patient %d", in.PatientID)}
	}
	if err != nil {
		return nil, err
	}

	for _, id := range medicineIDs {
		var exists int64
		err := s.db.Get(&exists, `SELECT COUNT(*) FROM medicines WHERE id = ?`, id)
		if err != nil {
			return nil, err
		}
		if exists == 0 {
			return nil, &ledger.ValidationError{Msg: fmt.Sprintf("unknown medicine %d", id)}
		}
	}

	interactions, err := safety.CheckInteractions(s.db, medicineIDs)
	if err != nil {
		return nil, err
	}
	allergyMatches, err := safety.CheckAllergies(s.db, safety.SplitAllergies(patient.Allergies), medicineIDs)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var count int64
	if err := tx.Get(&count, `SELECT COUNT(*) FROM prescriptions`); err != nil {
		return nil, err
	}
	number := fmt.Sprintf("RX%s%04d", s.now().Format("20060102"), count+1)
	createdAt := s.now().UTC().Format("2006-01-02 15:04:05")

	res, err := tx.Exec(`INSERT INTO prescriptions (prescription_number, patient_id, doctor_id, appointment_id, prescription_date, status, notes)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		number, in.PatientID, doctorID, in.AppointmentID, createdAt, domain.PrescriptionPending, in.Notes)
	if err != nil {
		return nil, fmt.Errorf("insert prescription: %w", err)
	}
	prescriptionID, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	items := make([]domain.PrescriptionItem, 0, len(in.Items))
	for _, item := range in.Items {
		warnings := itemWarnings(item.MedicineID, interactions, allergyMatches)
		var warningsJSON string
		if len(warnings) > 0 {
			raw, err := json.Marshal(warnings)
			if err != nil {
				return nil, err
			}
			warningsJSON = string(raw)
		}

		res, err := tx.Exec(`INSERT INTO prescription_items (prescription_id, medicine_id, dosage, frequency, duration_days, quantity, instructions, warnings)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			prescriptionID, item.MedicineID, item.Dosage, item.Frequency, item.DurationDays, item.Quantity, item.Instructions, warningsJSON)
		if err != nil {
			return nil, fmt.Errorf("insert prescription item: %w", err)
		}
		itemID, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		items = append(items, domain.PrescriptionItem{
			ID:             itemID,
			PrescriptionID: prescriptionID,
			MedicineID:     item.MedicineID,
			Dosage:         item.Dosage,
			Frequency:      item.Frequency,
			DurationDays:   item.DurationDays,
			Quantity:       item.Quantity,
			Instructions:   item.Instructions,
			Warnings:       warningsJSON,
		})
	}

	if err := audit.Record(tx, doctorID, "CREATE_PRESCRIPTION", "Prescription", prescriptionID, map[string]any{"number": number}, ip); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &CreateResult{
		Prescription: domain.Prescription{
			ID:               prescriptionID,
			Number:           number,
			PatientID:        in.PatientID,
			DoctorID:         doctorID,
			AppointmentID:    in.AppointmentID,
			PrescriptionDate: createdAt,
			Status:           domain.PrescriptionPending,
			Notes:            in.Notes,
		},
		Items:        items,
		Interactions: interactions,
		Allergies:    allergyMatches,
	}, nil
}

// itemWarnings filters the prescription-wide findings down to the ones
// involving a single medicine.
func itemWarnings(medicineID int64, interactions []safety.InteractionWarning, allergies map[int64][]string) []ItemWarning {
	var warnings []ItemWarning
	for _, w := range interactions {
		if w.Drugs[0] == medicineID || w.Drugs[1] == medicineID {
			warnings = append(warnings, ItemWarning{
				Type:        "interaction",
				Severity:    w.Severity,
				Description: w.Description,
				Drugs:       []int64{w.Drugs[0], w.Drugs[1]},
			})
		}
	}
	for _, allergen := range allergies[medicineID] {
		warnings = append(warnings, ItemWarning{Type: "allergy", Allergen: allergen})
	}
	return warnings
}

// ItemAllocation records which batches filled one prescription item.
type ItemAllocation struct {
	ItemID      int64               `json:"prescription_item_id"`
	MedicineID  int64               `json:"medicine_id"`
	Quantity    int64               `json:"quantity"`
	Allocations []ledger.Allocation `json:"allocations"`
}

type DispenseResult struct {
	PrescriptionID int64            `json:"prescription_id"`
	Number         string           `json:"prescription_number"`
	DispensedBy    int64            `json:"dispensed_by"`
	DispensedAt    string           `json:"dispensed_at"`
	Items          []ItemAllocation `json:"items"`
}

// Dispense fulfills a pending prescription as one unit. Every item is
// allocated inside a single transaction; if any item cannot be
// satisfied the whole transaction rolls back, leaving the ledger and
// the prescription exactly as they were. The error identifies the
// failing medicine and shortfall.
func (s *Service) Dispense(prescriptionID, pharmacistID int64, ip string) (*DispenseResult, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var p domain.Prescription
	err = tx.Get(&p, `SELECT id, prescription_number, patient_id, doctor_id, appointment_id,
            prescription_date, status, COALESCE(notes, '') AS notes, dispensed_by, dispensed_at, created_at
        FROM prescriptions WHERE id = ?`, prescriptionID)
	if err != nil {
		return nil, err
	}
	if p.Status != domain.PrescriptionPending {
		return nil, fmt.Errorf("%w: prescription %s is %s", ErrInvalidStateTransition, p.Number, p.Status)
	}

	var items []domain.PrescriptionItem
	err = tx.Select(&items, `SELECT id, prescription_id, medicine_id, COALESCE(dosage, '') AS dosage,
            COALESCE(frequency, '') AS frequency, duration_days, quantity,
            COALESCE(instructions, '') AS instructions, COALESCE(warnings, '') AS warnings
        FROM prescription_items WHERE prescription_id = ? ORDER BY id ASC`, prescriptionID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, &ledger.ValidationError{Msg: fmt.Sprintf("prescription %s has no items", p.Number)}
	}

	today := s.now().Format("2006-01-02")
	allocated := make([]ItemAllocation, 0, len(items))
	for _, item := range items {
		allocs, err := ledger.Allocate(tx, item.MedicineID, ledger.DefaultLocation, item.Quantity, today)
		if err != nil {
			// Rolls back every decrement made for earlier items.
			return nil, err
		}
		for _, a := range allocs {
			if _, err := tx.Exec(`INSERT INTO dispense_records
                    (prescription_id, prescription_item_id, medicine_id, batch_id, batch_number, quantity, expiry_date)
                    VALUES (?, ?, ?, ?, ?, ?, ?)`,
				prescriptionID, item.ID, item.MedicineID, a.BatchID, a.BatchNumber, a.Quantity, a.ExpiryDate); err != nil {
				return nil, fmt.Errorf("insert dispense record: %w", err)
			}
		}
		allocated = append(allocated, ItemAllocation{
			ItemID:      item.ID,
			MedicineID:  item.MedicineID,
			Quantity:    item.Quantity,
			Allocations: allocs,
		})
	}

	dispensedAt := s.now().UTC().Format("2006-01-02 15:04:05")
	if _, err := tx.Exec(`UPDATE prescriptions SET status = ?, dispensed_by = ?, dispensed_at = ? WHERE id = ?`,
		domain.PrescriptionDispensed, pharmacistID, dispensedAt, prescriptionID); err != nil {
		return nil, fmt.Errorf("mark dispensed: %w", err)
	}

	if err := audit.Record(tx, pharmacistID, "DISPENSE_PRESCRIPTION", "Prescription", prescriptionID,
		map[string]any{"number": p.Number, "items": len(items)}, ip); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &DispenseResult{
		PrescriptionID: prescriptionID,
		Number:         p.Number,
		DispensedBy:    pharmacistID,
		DispensedAt:    dispensedAt,
		Items:          allocated,
	}, nil
}

// Cancel moves a pending prescription to cancelled.
func (s *Service) Cancel(prescriptionID, userID int64, ip string) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var p struct {
		Number string `db:"prescription_number"`
		Status string `db:"status"`
	}
	err = tx.Get(&p, `SELECT prescription_number, status FROM prescriptions WHERE id = ?`, prescriptionID)
	if err != nil {
		return err
	}
	if p.Status != domain.PrescriptionPending {
		return fmt.Errorf("%w: prescription %s is %s", ErrInvalidStateTransition, p.Number, p.Status)
	}

	if _, err := tx.Exec(`UPDATE prescriptions SET status = ? WHERE id = ?`, domain.PrescriptionCancelled, prescriptionID); err != nil {
		return err
	}
	if err := audit.Record(tx, userID, "CANCEL_PRESCRIPTION", "Prescription", prescriptionID,
		map[string]any{"number": p.Number}, ip); err != nil {
		return err
	}
	return tx.Commit()
}

// Details is a prescription with its items and dispense trail.
type Details struct {
	Prescription domain.Prescription       `json:"prescription"`
	Items        []domain.PrescriptionItem `json:"items"`
	Dispensed    []domain.DispenseRecord   `json:"dispensed,omitempty"`
}

func (s *Service) Get(prescriptionID int64) (*Details, error) {
	var d Details
	err := s.db.Get(&d.Prescription, `SELECT id, prescription_number, patient_id, doctor_id, appointment_id,
            prescription_date, status, COALESCE(notes, '') AS notes, dispensed_by, dispensed_at, created_at
        FROM prescriptions WHERE id = ?`, prescriptionID)
	if err != nil {
		return nil, err
	}
	err = s.db.Select(&d.Items, `SELECT id, prescription_id, medicine_id, COALESCE(dosage, '') AS dosage,
            COALESCE(frequency, '') AS frequency, duration_days, quantity,
            COALESCE(instructions, '') AS instructions, COALESCE(warnings, '') AS warnings
        FROM prescription_items WHERE prescription_id = ? ORDER BY id ASC`, prescriptionID)
	if err != nil {
		return nil, err
	}
	err = s.db.Select(&d.Dispensed, `SELECT id, prescription_id, prescription_item_id, medicine_id, batch_id,
            batch_number, quantity, expiry_date, created_at
        FROM dispense_records WHERE prescription_id = ? ORDER BY id ASC`, prescriptionID)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
