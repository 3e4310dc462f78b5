package models

import "time"

const (
	AttemptCompleted = "completed"
	AttemptDegraded  = "degraded"
	AttemptFailed    = "failed"
)

// GenerationAttempt is the immutable audit row written once per generation
// that reached the external call.
type GenerationAttempt struct {
	ID          int64     `json:"id" db:"id"`
	AccountID   int64     `json:"accountId" db:"account_id"`
	Status      string    `json:"status" db:"status"`
	UsageMetric *int      `json:"usageMetric,omitempty" db:"usage_metric"`
	ResultText  *string   `json:"resultText,omitempty" db:"result_text"`
	ErrorText   *string   `json:"errorText,omitempty" db:"error_text"`
	ImageCount  int       `json:"imageCount" db:"image_count"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}
