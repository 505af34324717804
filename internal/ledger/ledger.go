// Package ledger is the authoritative view of per-batch stock and the
// FIFO allocator that drains it. A batch is available when its
// quantity is positive and its expiry date is strictly after "today";
// allocation consumes soonest-to-expire batches first.
package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"clinicerp/m/domain"
)

// DefaultLocation is where prescription dispensing draws stock from.
const DefaultLocation = "Pharmacy"

// Today returns the local calendar date in the ISO format the ledger
// compares expiry dates against.
func Today() string {
	return time.Now().Format("2006-01-02")
}

// Allocation is one batch decrement applied by Allocate.
type Allocation struct {
	BatchID     int64  `json:"batch_id"`
	BatchNumber string `json:"batch_number"`
	Quantity    int64  `json:"quantity"`
	ExpiryDate  string `json:"expiry_date"`
}

// AvailableQuantity sums the non-expired stock of a medicine at a
// location. No stock is 0, not an error.
func AvailableQuantity(ext sqlx.Ext, medicineID int64, location, today string) (int64, error) {
	var total sql.NullInt64
	err := sqlx.Get(ext, &total, `SELECT SUM(quantity) FROM stock_batches
        WHERE medicine_id = ? AND location = ? AND quantity > 0 AND expiry_date > ?`,
		medicineID, location, today)
	if err != nil {
		return 0, fmt.Errorf("available quantity: %w", err)
	}
	return total.Int64, nil
}

// ListAvailableBatches returns the allocatable batches ordered by
// expiry date ascending, ties broken by batch id ascending so the
// order is deterministic.
func ListAvailableBatches(ext sqlx.Ext, medicineID int64, location, today string) ([]domain.StockBatch, error) {
	var batches []domain.StockBatch
	err := sqlx.Select(ext, &batches, `SELECT id, medicine_id, batch_number, quantity, expiry_date, location,
            cost_price, selling_price, COALESCE(supplier, '') AS supplier, COALESCE(received_date, '') AS received_date, created_at, updated_at
        FROM stock_batches
        WHERE medicine_id = ? AND location = ? AND quantity > 0 AND expiry_date > ?
        ORDER BY expiry_date ASC, id ASC`,
		medicineID, location, today)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return batches, nil
}

// Allocate satisfies requested units of a medicine from the oldest
// expiring batches, decrementing each one taken. The plan is computed
// against a snapshot before any batch is touched: when total
// availability falls short the call fails with InsufficientStockError
// and no quantity changes. Must run inside the caller's transaction so
// a later failure in the same dispense rolls these decrements back.
func Allocate(tx *sqlx.Tx, medicineID int64, location string, requested int64, today string) ([]Allocation, error) {
	if requested < 0 {
		return nil, &ValidationError{Msg: fmt.Sprintf("requested quantity must not be negative, got %d", requested)}
	}
	if requested == 0 {
		return []Allocation{}, nil
	}

	batches, err := ListAvailableBatches(tx, medicineID, location, today)
	if err != nil {
		return nil, err
	}

	var available int64
	for _, b := range batches {
		available += b.Quantity
	}
	if available < requested {
		return nil, &InsufficientStockError{MedicineID: medicineID, Requested: requested, Available: available}
	}

	plan := make([]Allocation, 0, len(batches))
	remaining := requested
	for _, b := range batches {
		if remaining == 0 {
			break
		}
		take := b.Quantity
		if take > remaining {
			take = remaining
		}
		plan = append(plan, Allocation{
			BatchID:     b.ID,
			BatchNumber: b.BatchNumber,
			Quantity:    take,
			ExpiryDate:  b.ExpiryDate,
		})
		remaining -= take
	}

	for _, a := range plan {
		res, err := tx.Exec(`UPDATE stock_batches
            SET quantity = quantity - ?, updated_at = CURRENT_TIMESTAMP
            WHERE id = ? AND quantity >= ?`,
			a.Quantity, a.BatchID, a.Quantity)
		if err != nil {
			return nil, fmt.Errorf("decrement batch %d: %w", a.BatchID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("decrement batch %d: %w", a.BatchID, err)
		}
		if n != 1 {
			// Snapshot no longer holds; abort the transaction.
			return nil, fmt.Errorf("stock batch %d changed during allocation", a.BatchID)
		}
	}

	return plan, nil
}
