package domain

const (
	BillPending       = "pending"
	BillPaid          = "paid"
	BillPartiallyPaid = "partially_paid"
)

type Bill struct {
	ID            int64   `db:"id" json:"id"`
	Number        string  `db:"bill_number" json:"bill_number"`
	PatientID     int64   `db:"patient_id" json:"patient_id"`
	AppointmentID *int64  `db:"appointment_id" json:"appointment_id,omitempty"`
	BillDate      string  `db:"bill_date" json:"bill_date"`
	TotalAmount   float64 `db:"total_amount" json:"total_amount"`
	Tax           float64 `db:"tax" json:"tax"`
	NetAmount     float64 `db:"net_amount" json:"net_amount"`
	PaidAmount    float64 `db:"paid_amount" json:"paid_amount"`
	Status        string  `db:"status" json:"status"`
	PaymentMethod string  `db:"payment_method" json:"payment_method"`
	CreatedAt     string  `db:"created_at" json:"created_at"`
	UpdatedAt     string  `db:"updated_at" json:"updated_at"`
}

type BillItem struct {
	ID          int64   `db:"id" json:"id"`
	BillID      int64   `db:"bill_id" json:"bill_id"`
	ItemType    string  `db:"item_type" json:"item_type"`
	Description string  `db:"description" json:"description"`
	Quantity    int64   `db:"quantity" json:"quantity"`
	UnitPrice   float64 `db:"unit_price" json:"unit_price"`
	TotalPrice  float64 `db:"total_price" json:"total_price"`
}
