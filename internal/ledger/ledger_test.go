package ledger

import (
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicerp/m/internal/database"
	"clinicerp/m/internal/migrations"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db := database.Connect(":memory:")
	migrations.Run(db)
	t.Cleanup(func() { db.Close() })
	return db
}

func addMedicine(t *testing.T, db *sqlx.DB, name string) int64 {
	t.Helper()
	res, err := db.Exec(`INSERT INTO medicines (name, unit_price, reorder_level) VALUES (?, 1.0, 50)`, name)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func addBatch(t *testing.T, db *sqlx.DB, medicineID int64, batchNumber string, quantity int64, expiryDate, location string) int64 {
	t.Helper()
	res, err := db.Exec(`INSERT INTO stock_batches (medicine_id, batch_number, quantity, expiry_date, location)
        VALUES (?, ?, ?, ?, ?)`, medicineID, batchNumber, quantity, expiryDate, location)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func day(offset int) string {
	return time.Now().AddDate(0, 0, offset).Format("2006-01-02")
}

// snapshot captures batch id -> quantity for equality checks.
func snapshot(t *testing.T, db *sqlx.DB) map[int64]int64 {
	t.Helper()
	rows, err := db.Queryx(`SELECT id, quantity FROM stock_batches`)
	require.NoError(t, err)
	defer rows.Close()
	state := make(map[int64]int64)
	for rows.Next() {
		var id, qty int64
		require.NoError(t, rows.Scan(&id, &qty))
		state[id] = qty
	}
	return state
}

func allocate(t *testing.T, db *sqlx.DB, medicineID int64, location string, requested int64, today string) ([]Allocation, error) {
	t.Helper()
	tx, err := db.Beginx()
	require.NoError(t, err)
	allocs, err := Allocate(tx, medicineID, location, requested, today)
	if err != nil {
		// Allocate must not have written anything on failure, so the
		// post-commit state doubles as proof of that.
		require.NoError(t, tx.Commit())
		return nil, err
	}
	require.NoError(t, tx.Commit())
	return allocs, nil
}

func TestAllocateSplitsAcrossBatchesInExpiryOrder(t *testing.T) {
	db := newTestDB(t)
	med := addMedicine(t, db, "Paracetamol")
	b1 := addBatch(t, db, med, "B1", 10, day(5), DefaultLocation)
	b2 := addBatch(t, db, med, "B2", 10, day(10), DefaultLocation)

	allocs, err := allocate(t, db, med, DefaultLocation, 15, day(0))
	require.NoError(t, err)

	require.Len(t, allocs, 2)
	assert.Equal(t, Allocation{BatchID: b1, BatchNumber: "B1", Quantity: 10, ExpiryDate: day(5)}, allocs[0])
	assert.Equal(t, Allocation{BatchID: b2, BatchNumber: "B2", Quantity: 5, ExpiryDate: day(10)}, allocs[1])

	state := snapshot(t, db)
	assert.Equal(t, int64(0), state[b1])
	assert.Equal(t, int64(5), state[b2])
}

func TestAllocateInsufficientStockLeavesLedgerUnchanged(t *testing.T) {
	db := newTestDB(t)
	med := addMedicine(t, db, "Ibuprofen")
	addBatch(t, db, med, "B1", 10, day(5), DefaultLocation)
	addBatch(t, db, med, "B2", 10, day(10), DefaultLocation)
	before := snapshot(t, db)

	_, err := allocate(t, db, med, DefaultLocation, 25, day(0))

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, med, stockErr.MedicineID)
	assert.Equal(t, int64(25), stockErr.Requested)
	assert.Equal(t, int64(20), stockErr.Available)
	assert.Equal(t, before, snapshot(t, db))
}

func TestAllocateZeroQuantityIsNoOp(t *testing.T) {
	db := newTestDB(t)
	med := addMedicine(t, db, "Aspirin")
	addBatch(t, db, med, "B1", 10, day(5), DefaultLocation)
	before := snapshot(t, db)

	allocs, err := allocate(t, db, med, DefaultLocation, 0, day(0))
	require.NoError(t, err)
	assert.NotNil(t, allocs)
	assert.Empty(t, allocs)
	assert.Equal(t, before, snapshot(t, db))
}

func TestAllocateNegativeQuantityIsValidationError(t *testing.T) {
	db := newTestDB(t)
	med := addMedicine(t, db, "Aspirin")

	_, err := allocate(t, db, med, DefaultLocation, -1, day(0))

	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestBatchExpiringTodayIsNotAvailable(t *testing.T) {
	db := newTestDB(t)
	med := addMedicine(t, db, "Amoxicillin")
	addBatch(t, db, med, "EXPIRES-TODAY", 10, day(0), DefaultLocation)
	addBatch(t, db, med, "EXPIRED", 10, day(-1), DefaultLocation)

	total, err := AvailableQuantity(db, med, DefaultLocation, day(0))
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	batches, err := ListAvailableBatches(db, med, DefaultLocation, day(0))
	require.NoError(t, err)
	assert.Empty(t, batches)

	_, err = allocate(t, db, med, DefaultLocation, 1, day(0))
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, int64(0), stockErr.Available)
}

func TestListAvailableBatchesBreaksExpiryTiesByID(t *testing.T) {
	db := newTestDB(t)
	med := addMedicine(t, db, "Cetirizine")
	first := addBatch(t, db, med, "TIE-A", 5, day(7), DefaultLocation)
	second := addBatch(t, db, med, "TIE-B", 5, day(7), DefaultLocation)

	for i := 0; i < 3; i++ {
		batches, err := ListAvailableBatches(db, med, DefaultLocation, day(0))
		require.NoError(t, err, "iteration %d", i)
		require.Len(t, batches, 2)
		assert.Equal(t, first, batches[0].ID)
		assert.Equal(t, second, batches[1].ID)
	}
}

func TestAllocateIgnoresOtherLocations(t *testing.T) {
	db := newTestDB(t)
	med := addMedicine(t, db, "Metformin")
	addBatch(t, db, med, "WARD", 50, day(30), "Ward")
	pharmacyBatch := addBatch(t, db, med, "PHARM", 5, day(30), DefaultLocation)

	_, err := allocate(t, db, med, DefaultLocation, 10, day(0))
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, int64(5), stockErr.Available)

	allocs, err := allocate(t, db, med, DefaultLocation, 5, day(0))
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.Equal(t, pharmacyBatch, allocs[0].BatchID)
}

func TestAvailableQuantityWithNoBatchesIsZero(t *testing.T) {
	db := newTestDB(t)
	med := addMedicine(t, db, "Omeprazole")

	total, err := AvailableQuantity(db, med, DefaultLocation, day(0))
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func TestAllocateDrainsManyBatchesCompletely(t *testing.T) {
	db := newTestDB(t)
	med := addMedicine(t, db, "Azithromycin")
	var total int64
	for i := 1; i <= 4; i++ {
		addBatch(t, db, med, fmt.Sprintf("B%d", i), int64(i), day(i), DefaultLocation)
		total += int64(i)
	}

	allocs, err := allocate(t, db, med, DefaultLocation, total, day(0))
	require.NoError(t, err)
	require.Len(t, allocs, 4)

	var sum int64
	last := ""
	for _, a := range allocs {
		sum += a.Quantity
		assert.GreaterOrEqual(t, a.ExpiryDate, last, "allocations must be in non-decreasing expiry order")
		last = a.ExpiryDate
	}
	assert.Equal(t, total, sum)

	remaining, err := AvailableQuantity(db, med, DefaultLocation, day(0))
	require.NoError(t, err)
	assert.Equal(t, int64(0), remaining)
}
