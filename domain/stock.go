package domain

// StockBatch is one received lot of a medicine. Batches are never
// deleted; dispensing drains them to zero.
type StockBatch struct {
	ID           int64   `db:"id" json:"id"`
	MedicineID   int64   `db:"medicine_id" json:"medicine_id"`
	BatchNumber  string  `db:"batch_number" json:"batch_number"`
	Quantity     int64   `db:"quantity" json:"quantity"`
	ExpiryDate   string  `db:"expiry_date" json:"expiry_date"`
	Location     string  `db:"location" json:"location"`
	CostPrice    float64 `db:"cost_price" json:"cost_price"`
	SellingPrice float64 `db:"selling_price" json:"selling_price"`
	Supplier     string  `db:"supplier" json:"supplier"`
	ReceivedDate string  `db:"received_date" json:"received_date"`
	CreatedAt    string  `db:"created_at" json:"created_at"`
	UpdatedAt    string  `db:"updated_at" json:"updated_at"`
}
