// Package safety computes advisory drug-safety findings. Findings are
// warnings for clinical review; they never block a prescription.
package safety

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"clinicerp/m/domain"
)

// InteractionWarning flags a recorded interaction between two of the
// candidate medicines.
type InteractionWarning struct {
	Severity    string   `json:"severity"`
	Description string   `json:"description"`
	Drugs       [2]int64 `json:"drugs"`
}

// CheckInteractions looks up every unordered pair of the candidate
// list against the interaction catalog. The catalog is symmetric: a
// record for either ordering of the pair counts. Output follows
// candidate-list iteration order.
func CheckInteractions(q sqlx.Queryer, medicineIDs []int64) ([]InteractionWarning, error) {
	var warnings []InteractionWarning
	for i := 0; i < len(medicineIDs); i++ {
		for j := i + 1; j < len(medicineIDs); j++ {
			a, b := medicineIDs[i], medicineIDs[j]
			var rec domain.DrugInteraction
			err := sqlx.Get(q, &rec, `SELECT id, drug_a_id, drug_b_id, severity, description
                FROM drug_interactions
                WHERE (drug_a_id = ? AND drug_b_id = ?) OR (drug_a_id = ? AND drug_b_id = ?)
                LIMIT 1`, a, b, b, a)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("interaction lookup (%d, %d): %w", a, b, err)
			}
			warnings = append(warnings, InteractionWarning{
				Severity:    rec.Severity,
				Description: rec.Description,
				Drugs:       [2]int64{a, b},
			})
		}
	}
	return warnings, nil
}

// CheckAllergies maps each candidate medicine to the patient allergy
// tokens it matches. A token matches when it appears, case-insensitive
// and trimmed, as a substring of the medicine name or generic name.
// Substring matching is deliberate: it over-flags rather than miss
// brand/generic naming variants.
func CheckAllergies(q sqlx.Queryer, patientAllergies []string, medicineIDs []int64) (map[int64][]string, error) {
	tokens := make([]string, 0, len(patientAllergies))
	for _, raw := range patientAllergies {
		token := strings.ToLower(strings.TrimSpace(raw))
		if token != "" {
			tokens = append(tokens, token)
		}
	}

	matches := make(map[int64][]string)
	if len(tokens) == 0 {
		return matches, nil
	}

	for _, medicineID := range medicineIDs {
		var med domain.Medicine
		err := sqlx.Get(q, &med, `SELECT id, name, COALESCE(generic_name, '') AS generic_name,
                COALESCE(category, '') AS category, COALESCE(manufacturer, '') AS manufacturer,
                COALESCE(dosage_form, '') AS dosage_form, COALESCE(strength, '') AS strength,
                unit_price, reorder_level, created_at
            FROM medicines WHERE id = ?`, medicineID)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("allergy lookup medicine %d: %w", medicineID, err)
		}

		name := strings.ToLower(med.Name)
		generic := strings.ToLower(med.GenericName)
		for _, token := range tokens {
			if strings.Contains(name, token) || (generic != "" && strings.Contains(generic, token)) {
				matches[medicineID] = append(matches[medicineID], token)
			}
		}
	}
	return matches, nil
}

// SplitAllergies turns the free-text allergy field ("penicillin,
// sulfa drugs") into tokens for CheckAllergies.
func SplitAllergies(field string) []string {
	parts := strings.Split(field, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}
