package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeBillingNotification JobType = "billing_notification"
	JobTypeDailyBonus          JobType = "daily_bonus"
	JobTypePlanResync          JobType = "plan_resync"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// BillingNotificationJobPayload carries an in-app notification plus optional
// email for a billing event (payment outcome, trial start, expiry warning).
type BillingNotificationJobPayload struct {
	UserID           uint   `json:"user_id"`
	NotificationType string `json:"notification_type"`
	Content          string `json:"content"`
	ContentAr        string `json:"content_ar"`
	ReferenceID      uint   `json:"reference_id"`
	Email            string `json:"email,omitempty"`
	EmailSubject     string `json:"email_subject,omitempty"`
	SendEmail        bool   `json:"send_email"`
}

// ToMap converts the payload to a map for storage
func (p BillingNotificationJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"user_id":           p.UserID,
		"notification_type": p.NotificationType,
		"content":           p.Content,
		"content_ar":        p.ContentAr,
		"reference_id":      p.ReferenceID,
		"email":             p.Email,
		"email_subject":     p.EmailSubject,
		"send_email":        p.SendEmail,
	}
}

// BillingNotificationJobPayloadFromMap creates a payload from a map
func BillingNotificationJobPayloadFromMap(data map[string]interface{}) (*BillingNotificationJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload BillingNotificationJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// DailyBonusJobPayload triggers one bonus sweep; BonusDate guards against the
// same calendar day being credited twice.
type DailyBonusJobPayload struct {
	BonusDate string `json:"bonus_date"` // YYYY-MM-DD, UTC
}

func (p DailyBonusJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"bonus_date": p.BonusDate,
	}
}

func DailyBonusJobPayloadFromMap(data map[string]interface{}) (*DailyBonusJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var payload DailyBonusJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// PlanResyncJobPayload re-derives the denormalized plan fields for one user.
type PlanResyncJobPayload struct {
	UserID uint `json:"user_id"`
}

func (p PlanResyncJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"user_id": p.UserID,
	}
}

func PlanResyncJobPayloadFromMap(data map[string]interface{}) (*PlanResyncJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var payload PlanResyncJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
