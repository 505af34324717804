package domain

type Medicine struct {
	ID           int64   `db:"id" json:"id"`
	Name         string  `db:"name" json:"name"`
	GenericName  string  `db:"generic_name" json:"generic_name"`
	Category     string  `db:"category" json:"category"`
	Manufacturer string  `db:"manufacturer" json:"manufacturer"`
	DosageForm   string  `db:"dosage_form" json:"dosage_form"`
	Strength     string  `db:"strength" json:"strength"`
	UnitPrice    float64 `db:"unit_price" json:"unit_price"`
	ReorderLevel int64   `db:"reorder_level" json:"reorder_level"`
	CreatedAt    string  `db:"created_at" json:"created_at"`
}

// DrugInteraction records a known interaction between two medicines.
// The pair is symmetric: a record for (a, b) also covers (b, a).
type DrugInteraction struct {
	ID          int64  `db:"id" json:"id"`
	DrugAID     int64  `db:"drug_a_id" json:"drug_a_id"`
	DrugBID     int64  `db:"drug_b_id" json:"drug_b_id"`
	Severity    string `db:"severity" json:"severity"`
	Description string `db:"description" json:"description"`
}
