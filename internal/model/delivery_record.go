// internal/model/delivery_record.go
package model

import "time"

// Delivery statuses. A record with StatusSent is terminal; a failed record is
// re-selectable while Retries < MaxDeliveryRetries.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// MaxDeliveryRetries is the per-phone failure ceiling. At retries >= 3 the
// phone is permanently excluded from selection.
const MaxDeliveryRetries = 3

// DeliveryRecord tracks the latest send attempt for one phone in a tenant's
// isolated database. One row ever per phone: repeated attempts overwrite.
type DeliveryRecord struct {
	Phone     string    `db:"phone" json:"phone"`
	Message   string    `db:"message" json:"message"`
	Status    string    `db:"status" json:"status"`
	Retries   int       `db:"retries" json:"retries"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
