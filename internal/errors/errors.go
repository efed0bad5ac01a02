// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrTenantNotFound is returned when a tenant id has no row in the main DB.
type ErrTenantNotFound struct {
	TenantID int64
}

func (e *ErrTenantNotFound) Error() string {
	return fmt.Sprintf("tenant with ID %d not found", e.TenantID)
}

// Helper constructor
func NewTenantNotFound(id int64) error {
	return &ErrTenantNotFound{TenantID: id}
}

// IsTenantNotFound reports whether err is an ErrTenantNotFound.
func IsTenantNotFound(err error) bool {
	var target *ErrTenantNotFound
	return errors.As(err, &target)
}

// ErrBlockedDestination is returned when a tenant's configured gateway URL
// points at a hostname outside the allow-list. No network call is made and
// the campaign is not rescheduled.
type ErrBlockedDestination struct {
	URL string
}

func (e *ErrBlockedDestination) Error() string {
	return fmt.Sprintf("gateway URL blocked by allow-list: %s", e.URL)
}

func NewBlockedDestination(url string) error {
	return &ErrBlockedDestination{URL: url}
}

// IsBlockedDestination reports whether err is an ErrBlockedDestination.
func IsBlockedDestination(err error) bool {
	var target *ErrBlockedDestination
	return errors.As(err, &target)
}

// ErrDeliveryFailed wraps the last transport error after the gateway client
// has exhausted its internal retries for one message.
var ErrDeliveryFailed = errors.New("sms delivery failed")

// ErrRunnerActive signals a duplicate runner invocation for a tenant that
// already has a batch active or scheduled. The duplicate exits without side
// effects.
var ErrRunnerActive = errors.New("campaign runner already active for tenant")

// ErrEmptyMessage rejects a campaign start with blank message text.
var ErrEmptyMessage = errors.New("message text is required")
