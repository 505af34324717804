package ledger

import "fmt"

// ValidationError reports malformed caller input. It is never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// InsufficientStockError means the requested quantity exceeds the
// available non-expired stock. The caller may retry with less.
type InsufficientStockError struct {
	MedicineID int64 `json:"medicine_id"`
	Requested  int64 `json:"requested"`
	Available  int64 `json:"available"`
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for medicine %d: requested %d, available %d",
		e.MedicineID, e.Requested, e.Available)
}
