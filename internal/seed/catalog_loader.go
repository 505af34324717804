package seed

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
)

// LoadMedicines ingests the medicine catalog CSV, ignoring duplicates.
// Expected columns: name, generic_name, category, manufacturer,
// dosage_form, strength, unit_price, reorder_level.
func LoadMedicines(db *sqlx.DB, csvPath string) {
	file, err := os.Open(csvPath)
	if err != nil {
		log.Printf("unable to load medicine catalog %s: %v", csvPath, err)
		return
	}
	defer file.Close()

	reader := csv.NewReader(file)
	// Skip header
	if _, err := reader.Read(); err != nil {
		log.Printf("unable to read medicine header: %v", err)
		return
	}

	tx, err := db.Beginx()
	if err != nil {
		log.Printf("unable to start medicine transaction: %v", err)
		return
	}
	stmt, err := tx.Preparex(`INSERT OR IGNORE INTO medicines (name, generic_name, category, manufacturer, dosage_form, strength, unit_price, reorder_level) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		log.Printf("unable to prepare medicine insert: %v", err)
		_ = tx.Rollback()
		return
	}
	defer stmt.Close()

	rows := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("unable to read medicine row: %v", err)
			continue
		}
		if len(record) < 8 {
			continue
		}
		name := strings.TrimSpace(record[0])
		if name == "" {
			continue
		}
		price, _ := strconv.ParseFloat(strings.TrimSpace(record[6]), 64)
		reorder, _ := strconv.ParseInt(strings.TrimSpace(record[7]), 10, 64)
		if reorder <= 0 {
			reorder = 50
		}

		if _, err := stmt.Exec(name, strings.TrimSpace(record[1]), strings.TrimSpace(record[2]),
			strings.TrimSpace(record[3]), strings.TrimSpace(record[4]), strings.TrimSpace(record[5]),
			price, reorder); err != nil {
			log.Printf("unable to insert medicine %s: %v", name, err)
		} else {
			rows++
		}
	}

	if err := tx.Commit(); err != nil {
		log.Printf("unable to commit medicine seed: %v", err)
	} else {
		log.Printf("seeded medicine catalog with %d rows", rows)
	}
}

// LoadInteractions ingests the drug interaction catalog CSV.
// Expected columns: drug_a_name, drug_b_name, severity, description.
// Rows naming unknown medicines are skipped.
func LoadInteractions(db *sqlx.DB, csvPath string) {
	file, err := os.Open(csvPath)
	if err != nil {
		log.Printf("unable to load interaction catalog %s: %v", csvPath, err)
		return
	}
	defer file.Close()

	reader := csv.NewReader(file)
	if _, err := reader.Read(); err != nil {
		log.Printf("unable to read interaction header: %v", err)
		return
	}

	tx, err := db.Beginx()
	if err != nil {
		log.Printf("unable to start interaction transaction: %v", err)
		return
	}
	stmt, err := tx.Preparex(`INSERT OR IGNORE INTO drug_interactions (drug_a_id, drug_b_id, severity, description) VALUES (?, ?, ?, ?)`)
	if err != nil {
		log.Printf("unable to prepare interaction insert: %v", err)
		_ = tx.Rollback()
		return
	}
	defer stmt.Close()

	rows := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("unable to read interaction row: %v", err)
			continue
		}
		if len(record) < 4 {
			continue
		}

		aID, err := medicineIDByName(tx, strings.TrimSpace(record[0]))
		if err != nil {
			continue
		}
		bID, err := medicineIDByName(tx, strings.TrimSpace(record[1]))
		if err != nil {
			continue
		}

		if _, err := stmt.Exec(aID, bID, strings.TrimSpace(record[2]), strings.TrimSpace(record[3])); err != nil {
			log.Printf("unable to insert interaction %s/%s: %v", record[0], record[1], err)
		} else {
			rows++
		}
	}

	if err := tx.Commit(); err != nil {
		log.Printf("unable to commit interaction seed: %v", err)
	} else {
		log.Printf("seeded interaction catalog with %d rows", rows)
	}
}

func medicineIDByName(tx *sqlx.Tx, name string) (int64, error) {
	if name == "" {
		return 0, sql.ErrNoRows
	}
	var id int64
	err := tx.Get(&id, `SELECT id FROM medicines WHERE name = ? LIMIT 1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	return id, err
}
