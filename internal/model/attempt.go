package model

import (
	"time"

	"gorm.io/gorm"
)

// AttemptStatus is the lifecycle state of a practice attempt.
type AttemptStatus string

const (
	AttemptInProgress       AttemptStatus = "in_progress"
	AttemptSubmitted        AttemptStatus = "submitted"
	AttemptScored           AttemptStatus = "scored"
	AttemptFailed           AttemptStatus = "failed"
	AttemptTeacherEvaluated AttemptStatus = "evaluated_by_teacher"
)

// ActiveAttemptStatuses are the states that block a learner from starting a
// second attempt on the same prompt. A scored or failed attempt does not.
var ActiveAttemptStatuses = []AttemptStatus{AttemptInProgress, AttemptSubmitted}

// Active reports whether the attempt still owns the learner+prompt slot.
func (s AttemptStatus) Active() bool {
	return s == AttemptInProgress || s == AttemptSubmitted
}

// Attempt is one learner's submission instance for a prompt. Attempts are
// soft-deleted only; a Score keeps referencing its attempt forever.
type Attempt struct {
	ID            uint           `gorm:"primarykey" json:"id"`
	LearnerID     uint           `json:"learner_id" gorm:"not null;index:idx_attempt_learner_prompt"`
	PromptID      uint           `json:"prompt_id" gorm:"not null;index:idx_attempt_learner_prompt"`
	Prompt        Prompt         `json:"prompt,omitempty" gorm:"foreignKey:PromptID"`
	Skill         Skill          `json:"skill" gorm:"not null"`
	Status        AttemptStatus  `json:"status" gorm:"not null;default:'in_progress';index"`
	Content       string         `json:"content" gorm:"type:text"`
	MediaURL      *string        `json:"media_url,omitempty"`
	FailureReason *string        `json:"failure_reason,omitempty"`
	StartedAt     time.Time      `json:"started_at" gorm:"autoCreateTime"`
	SubmittedAt   *time.Time     `json:"submitted_at,omitempty"`
	ScoredAt      *time.Time     `json:"scored_at,omitempty"`
	Score         *Score         `json:"score,omitempty" gorm:"foreignKey:AttemptID"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}
