package domain

const (
	PrescriptionPending   = "pending"
	PrescriptionDispensed = "dispensed"
	PrescriptionCancelled = "cancelled"
)

type Prescription struct {
	ID               int64   `db:"id" json:"id"`
	Number           string  `db:"prescription_number" json:"prescription_number"`
	PatientID        int64   `db:"patient_id" json:"patient_id"`
	DoctorID         int64   `db:"doctor_id" json:"doctor_id"`
	AppointmentID    *int64  `db:"appointment_id" json:"appointment_id,omitempty"`
	PrescriptionDate string  `db:"prescription_date" json:"prescription_date"`
	Status           string  `db:"status" json:"status"`
	Notes            string  `db:"notes" json:"notes"`
	DispensedBy      *int64  `db:"dispensed_by" json:"dispensed_by,omitempty"`
	DispensedAt      *string `db:"dispensed_at" json:"dispensed_at,omitempty"`
	CreatedAt        string  `db:"created_at" json:"created_at"`
}

type PrescriptionItem struct {
	ID             int64  `db:"id" json:"id"`
	PrescriptionID int64  `db:"prescription_id" json:"prescription_id"`
	MedicineID     int64  `db:"medicine_id" json:"medicine_id"`
	Dosage         string `db:"dosage" json:"dosage"`
	Frequency      string `db:"frequency" json:"frequency"`
	DurationDays   int64  `db:"duration_days" json:"duration_days"`
	Quantity       int64  `db:"quantity" json:"quantity"`
	Instructions   string `db:"instructions" json:"instructions"`
	Warnings       string `db:"warnings" json:"warnings,omitempty"`
}

// DispenseRecord is the audit trail of which batch filled which item.
type DispenseRecord struct {
	ID             int64  `db:"id" json:"id"`
	PrescriptionID int64  `db:"prescription_id" json:"prescription_id"`
	ItemID         int64  `db:"prescription_item_id" json:"prescription_item_id"`
	MedicineID     int64  `db:"medicine_id" json:"medicine_id"`
	BatchID        int64  `db:"batch_id" json:"batch_id"`
	BatchNumber    string `db:"batch_number" json:"batch_number"`
	Quantity       int64  `db:"quantity" json:"quantity"`
	ExpiryDate     string `db:"expiry_date" json:"expiry_date"`
	CreatedAt      string `db:"created_at" json:"created_at"`
}
