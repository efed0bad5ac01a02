// internal/model/batch.go
package model

// BatchResult holds the sent/failed counts of the most recently completed
// batch for a tenant. It is kept in memory only, for progress polling; a
// process restart resets it to zero.
type BatchResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Batch run outcomes reported by the campaign runner.
const (
	RunOK             = "ok"
	RunStopped        = "stopped"
	RunQuotaExhausted = "quota_exhausted"
)

// RunOutcome is the result of one campaign runner invocation.
type RunOutcome struct {
	Status string `json:"status"`
	Sent   int    `json:"sent"`
	Failed int    `json:"failed"`
}

// BatchJob is the payload enqueued for one campaign runner invocation.
// JobID correlates queue deliveries in logs; the message text is re-read
// from the tenant row at run time, not carried in the job.
type BatchJob struct {
	JobID    string `json:"job_id"`
	TenantID int64  `json:"tenant_id"`
}
