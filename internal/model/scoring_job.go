package model

import (
	"time"

	"gorm.io/gorm"
)

// JobStatus is the lifecycle state of a scoring job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether the job can never run again.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// ScoringJob is one queued "score this attempt" unit of work. Every
// submission (and every rescore) gets a fresh job so the audit history of
// scoring runs is preserved.
type ScoringJob struct {
	ID          uint           `gorm:"primarykey" json:"id"`
	AttemptID   uint           `json:"attempt_id" gorm:"not null;index"`
	Attempt     Attempt        `json:"attempt,omitempty" gorm:"foreignKey:AttemptID"`
	Status      JobStatus      `json:"status" gorm:"not null;default:'pending';index"`
	Priority    int            `json:"priority" gorm:"not null;default:0;index"`
	RetryCount  int            `json:"retry_count" gorm:"not null;default:0"`
	MaxRetries  int            `json:"max_retries" gorm:"not null;default:3"`
	LastError   *string        `json:"last_error,omitempty" gorm:"type:text"`
	AvailableAt time.Time      `json:"available_at" gorm:"index"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}
