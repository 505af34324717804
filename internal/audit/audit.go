// Package audit writes the append-only action trail.
package audit

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Record stores one audit entry. details may be nil; otherwise it is
// marshaled to JSON. Pass the surrounding transaction so the entry
// commits or rolls back with the action it describes.
func Record(ext sqlx.Ext, userID int64, action, resourceType string, resourceID int64, details any, ip string) error {
	var payload []byte
	if details != nil {
		var err error
		payload, err = json.Marshal(details)
		if err != nil {
			return fmt.Errorf("audit details: %w", err)
		}
	}
	_, err := ext.Exec(`INSERT INTO audit_logs (id, user_id, action, resource_type, resource_id, details, ip_address)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), userID, action, resourceType, resourceID, string(payload), ip)
	if err != nil {
		return fmt.Errorf("audit insert: %w", err)
	}
	return nil
}
