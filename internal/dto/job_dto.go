package dto

import "time"

// ProcessReport summarizes one processing batch for observability.
type ProcessReport struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Retried   int `json:"retried"`
}

type JobDTO struct {
	ID          uint       `json:"id"`
	AttemptID   uint       `json:"attempt_id"`
	Status      string     `json:"status"`
	Priority    int        `json:"priority"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
	LastError   *string    `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type QueueStatsDTO struct {
	Counts map[string]int64 `json:"counts"`
}

// ReconcileReport counts submitted attempts that were re-enqueued by the
// orphan sweep.
type ReconcileReport struct {
	Requeued int `json:"requeued"`
}
