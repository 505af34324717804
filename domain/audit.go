package domain

type AuditLog struct {
	ID           string `db:"id" json:"id"`
	UserID       int64  `db:"user_id" json:"user_id"`
	Action       string `db:"action" json:"action"`
	ResourceType string `db:"resource_type" json:"resource_type"`
	ResourceID   int64  `db:"resource_id" json:"resource_id"`
	IPAddress    string `db:"ip_address" json:"ip_address"`
	Details      string `db:"details" json:"details,omitempty"`
	CreatedAt    string `db:"created_at" json:"created_at"`
}
