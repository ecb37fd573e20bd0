package dto

import "time"

// StartAttemptRequest begins a practice attempt for a learner on a prompt.
type StartAttemptRequest struct {
	LearnerID uint `json:"learner_id" binding:"required"`
	PromptID  uint `json:"prompt_id" binding:"required"`
}

// StartAttemptResponse returns the new attempt identity plus the
// prompt-derived timing parameters the client needs to run the session.
type StartAttemptResponse struct {
	AttemptID          uint   `json:"attempt_id"`
	Skill              string `json:"skill"`
	Status             string `json:"status"`
	PreparationSeconds int    `json:"preparation_seconds"`
	ResponseSeconds    int    `json:"response_seconds"`
}

// UpdateContentRequest carries an auto-save of the draft content. Repeated
// identical saves are expected and harmless.
type UpdateContentRequest struct {
	Content string `json:"content"`
}

type UpdateContentResponse struct {
	Saved bool `json:"saved"`
}

// SubmitAttemptResponse confirms the submission and names the scoring job
// created for it.
type SubmitAttemptResponse struct {
	AttemptID uint   `json:"attempt_id"`
	JobID     uint   `json:"job_id"`
	Status    string `json:"status"`
}

type ScoreDTO struct {
	ID           uint               `json:"id"`
	Band         float64            `json:"band"`
	SubScores    map[string]float64 `json:"sub_scores,omitempty"`
	Criteria     map[string]string  `json:"criteria,omitempty"`
	Feedback     string             `json:"feedback,omitempty"`
	Strengths    []string           `json:"strengths,omitempty"`
	Improvements []string           `json:"improvements,omitempty"`
	Suggestions  []string           `json:"suggestions,omitempty"`
	CEFRLevel    *string            `json:"cefr_level,omitempty"`
	CEFRFallback bool               `json:"cefr_fallback,omitempty"`
	Confidence   float64            `json:"confidence,omitempty"`
	Transcript   *string            `json:"transcript,omitempty"`
}

// AttemptDetailDTO is the full view of one attempt; also the poll target for
// the client progress poller.
type AttemptDetailDTO struct {
	ID            uint       `json:"id"`
	LearnerID     uint       `json:"learner_id"`
	PromptID      uint       `json:"prompt_id"`
	PromptTitle   string     `json:"prompt_title,omitempty"`
	Skill         string     `json:"skill"`
	Status        string     `json:"status"`
	Content       string     `json:"content,omitempty"`
	MediaURL      *string    `json:"media_url,omitempty"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
	ScoredAt      *time.Time `json:"scored_at,omitempty"`
	Score         *ScoreDTO  `json:"score,omitempty"`
}

// AttemptSummaryDTO is one row in a learner's attempt history.
type AttemptSummaryDTO struct {
	ID          uint       `json:"id"`
	PromptID    uint       `json:"prompt_id"`
	PromptTitle string     `json:"prompt_title,omitempty"`
	Skill       string     `json:"skill"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	Band        *float64   `json:"band,omitempty"`
}
