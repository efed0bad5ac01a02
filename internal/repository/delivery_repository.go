package repository

import (
	"database/sql"
	"time"

	"github.com/syagroup/bulksms-backend/internal/model"
)

// DeliveryRepositoryInterface is the per-tenant store contract: batch
// selection over contacts joined with their delivery records, and the
// idempotent per-phone upsert.
type DeliveryRepositoryInterface interface {
	SelectEligible(limit int) ([]model.EligibleContact, error)
	UpsertDeliveryRecord(phone, message, status string, retries int) error
	Stats() (map[string]int, error)
}

// DeliveryRepository operates on one tenant's isolated database.
type DeliveryRepository struct {
	DB *sql.DB
}

// SelectEligible picks up to limit contacts that have never been attempted,
// or whose last attempt failed with retries remaining. Contacts already
// marked sent are excluded unconditionally; order is stable physical order.
// A limit of zero returns an empty batch.
func (r *DeliveryRepository) SelectEligible(limit int) ([]model.EligibleContact, error) {
	if limit <= 0 {
		return []model.EligibleContact{}, nil
	}
	query := `
        SELECT c.phone, COALESCE(s.retries, 0) AS retries, COALESCE(s.status, '') AS status
        FROM contacts c
        LEFT JOIN sent_messages s ON c.phone = s.phone
        WHERE s.phone IS NULL
           OR (s.status = 'failed' AND s.retries < $1)
        ORDER BY c.id
        LIMIT $2
    `
	rows, err := r.DB.Query(query, model.MaxDeliveryRetries, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batch := []model.EligibleContact{}
	for rows.Next() {
		var c model.EligibleContact
		if err := rows.Scan(&c.Phone, &c.Retries, &c.LastStatus); err != nil {
			return nil, err
		}
		batch = append(batch, c)
	}
	return batch, rows.Err()
}

// UpsertDeliveryRecord writes the outcome of one send attempt. Keyed by
// phone: a second attempt against the same phone overwrites the existing row
// rather than appending. The message text of the latest attempt always wins.
func (r *DeliveryRepository) UpsertDeliveryRecord(phone, message, status string, retries int) error {
	query := `
        INSERT INTO sent_messages (phone, message, status, retries, updated_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (phone) DO UPDATE
        SET message=EXCLUDED.message, status=EXCLUDED.status,
            retries=EXCLUDED.retries, updated_at=EXCLUDED.updated_at
    `
	_, err := r.DB.Exec(query, phone, message, status, retries, time.Now())
	return err
}

// Stats returns delivery record counts by status for dashboard aggregation.
func (r *DeliveryRepository) Stats() (map[string]int, error) {
	rows, err := r.DB.Query(`SELECT status, COUNT(*) FROM sent_messages GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{
		model.StatusPending: 0,
		model.StatusSent:    0,
		model.StatusFailed:  0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

var _ DeliveryRepositoryInterface = (*DeliveryRepository)(nil)
