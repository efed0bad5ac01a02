package repository

import (
	"database/sql"

	appErrors "github.com/syagroup/bulksms-backend/internal/errors"
	"github.com/syagroup/bulksms-backend/internal/model"
)

// TenantRepositoryInterface is the shared-store contract consumed by the
// campaign runner, controller and sweeper.
type TenantRepositoryInterface interface {
	GetByID(id int64) (*model.Tenant, error)
	SetSendingEnabled(id int64, enabled bool) error
	SetLastMessage(id int64, message string) error
	IncrementQuotaUsed(id int64, n int) error
	SendingEnabled(id int64) (bool, error)
	ListSendingIDs() ([]int64, error)
}

type TenantRepository struct {
	DB *sql.DB
}

func (r *TenantRepository) GetByID(id int64) (*model.Tenant, error) {
	query := `
        SELECT id, name, sms_api_url, sms_api_token, sms_sender_id,
               sms_quota, sms_used, sms_sending, COALESCE(last_sms_message, ''),
               db_host, db_port, db_user, db_password, db_name, created_at
        FROM tenants WHERE id=$1
    `
	var t model.Tenant
	err := r.DB.QueryRow(query, id).Scan(
		&t.ID, &t.Name, &t.GatewayURL, &t.GatewayToken, &t.SenderID,
		&t.Quota, &t.QuotaUsed, &t.SendingActive, &t.LastMessage,
		&t.DBHost, &t.DBPort, &t.DBUser, &t.DBPassword, &t.DBName, &t.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewTenantNotFound(id)
		}
		return nil, err
	}
	return &t, nil
}

func (r *TenantRepository) SetSendingEnabled(id int64, enabled bool) error {
	res, err := r.DB.Exec(`UPDATE tenants SET sms_sending=$1 WHERE id=$2`, enabled, id)
	if err != nil {
		return err
	}
	return checkTenantUpdated(res, id)
}

func (r *TenantRepository) SetLastMessage(id int64, message string) error {
	res, err := r.DB.Exec(`UPDATE tenants SET last_sms_message=$1 WHERE id=$2`, message, id)
	if err != nil {
		return err
	}
	return checkTenantUpdated(res, id)
}

// IncrementQuotaUsed adds n to the tenant's consumed quota in a single
// update. Called once per batch with the sent count, not per message.
func (r *TenantRepository) IncrementQuotaUsed(id int64, n int) error {
	res, err := r.DB.Exec(`UPDATE tenants SET sms_used = sms_used + $1 WHERE id=$2`, n, id)
	if err != nil {
		return err
	}
	return checkTenantUpdated(res, id)
}

func (r *TenantRepository) SendingEnabled(id int64) (bool, error) {
	var enabled bool
	err := r.DB.QueryRow(`SELECT sms_sending FROM tenants WHERE id=$1`, id).Scan(&enabled)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, appErrors.NewTenantNotFound(id)
		}
		return false, err
	}
	return enabled, nil
}

// ListSendingIDs returns the ids of all tenants whose sending flag is on,
// in id order. Used by the worker sweep to recover lost reschedules.
func (r *TenantRepository) ListSendingIDs() ([]int64, error) {
	rows, err := r.DB.Query(`SELECT id FROM tenants WHERE sms_sending = TRUE ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func checkTenantUpdated(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.NewTenantNotFound(id)
	}
	return nil
}

var _ TenantRepositoryInterface = (*TenantRepository)(nil)
