// internal/model/contact.go
package model

// Contact is a row in a tenant's isolated database. Phone is canonical
// (digits only, country-code prefixed) and unique per tenant.
type Contact struct {
	ID    int64  `db:"id" json:"id"`
	Phone string `db:"phone" json:"phone"`
	Name  string `db:"name" json:"name"`
}

// EligibleContact is one row returned by the batch selector: a contact with
// no delivery record yet, or whose last attempt failed with retries left.
type EligibleContact struct {
	Phone      string `db:"phone" json:"phone"`
	Retries    int    `db:"retries" json:"retries"`
	LastStatus string `db:"status" json:"status"` // "" when never attempted
}
