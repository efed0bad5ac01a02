// internal/model/tenant.go
package model

import "time"

// Tenant is a row in the shared main database. Each tenant owns an isolated
// database (DBHost..DBName) holding its contacts and sent-message history.
type Tenant struct {
	ID            int64     `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	GatewayURL    string    `db:"sms_api_url" json:"sms_api_url"`
	GatewayToken  string    `db:"sms_api_token" json:"-"`
	SenderID      string    `db:"sms_sender_id" json:"sms_sender_id"`
	Quota         int       `db:"sms_quota" json:"sms_quota"`
	QuotaUsed     int       `db:"sms_used" json:"sms_used"`
	SendingActive bool      `db:"sms_sending" json:"sms_sending"`
	LastMessage   string    `db:"last_sms_message" json:"last_sms_message"`
	DBHost        string    `db:"db_host" json:"-"`
	DBPort        int       `db:"db_port" json:"-"`
	DBUser        string    `db:"db_user" json:"-"`
	DBPassword    string    `db:"db_password" json:"-"`
	DBName        string    `db:"db_name" json:"-"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// QuotaRemaining returns how many messages the tenant may still send, or -1
// when the quota is unlimited (quota unset / zero).
func (t *Tenant) QuotaRemaining() int {
	if t.Quota <= 0 {
		return -1
	}
	remaining := t.Quota - t.QuotaUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}
