package domain

type Patient struct {
	ID                int64  `db:"id" json:"id"`
	PID               string `db:"pid" json:"pid"`
	FirstName         string `db:"first_name" json:"first_name"`
	LastName          string `db:"last_name" json:"last_name"`
	DateOfBirth       string `db:"date_of_birth" json:"date_of_birth"`
	Gender            string `db:"gender" json:"gender"`
	BloodGroup        string `db:"blood_group" json:"blood_group"`
	Phone             string `db:"phone" json:"phone"`
	Email             string `db:"email" json:"email"`
	Address           string `db:"address" json:"address"`
	PostalCode        string `db:"postal_code" json:"postal_code"`
	EmergencyContact  string `db:"emergency_contact" json:"emergency_contact"`
	EmergencyPhone    string `db:"emergency_phone" json:"emergency_phone"`
	Allergies         string `db:"allergies" json:"allergies"`
	ChronicConditions string `db:"chronic_conditions" json:"chronic_conditions"`
	CreatedAt         string `db:"created_at" json:"created_at"`
	UpdatedAt         string `db:"updated_at" json:"updated_at"`
}

// PostalCodeCluster aggregates patient statistics per postal code.
type PostalCodeCluster struct {
	ID           int64   `db:"id" json:"id"`
	PostalCode   string  `db:"postal_code" json:"postal_code"`
	PatientCount int64   `db:"patient_count" json:"patient_count"`
	AvgAge       float64 `db:"avg_age" json:"avg_age"`
	UpdatedAt    string  `db:"updated_at" json:"updated_at"`
}
