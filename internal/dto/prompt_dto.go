package dto

import "time"

// CreatePromptRequest is used by admins to add a practice prompt.
type CreatePromptRequest struct {
	Skill              string `json:"skill" binding:"required,oneof=writing speaking"`
	Title              string `json:"title" binding:"required"`
	Text               string `json:"text" binding:"required"`
	PreparationSeconds int    `json:"preparation_seconds" binding:"omitempty,min=0"`
	ResponseSeconds    int    `json:"response_seconds" binding:"omitempty,min=0"`
	MinWords           int    `json:"min_words" binding:"omitempty,min=0"`
}

type PromptDTO struct {
	ID                 uint      `json:"id"`
	Skill              string    `json:"skill"`
	Title              string    `json:"title"`
	Text               string    `json:"text"`
	PreparationSeconds int       `json:"preparation_seconds"`
	ResponseSeconds    int       `json:"response_seconds"`
	MinWords           int       `json:"min_words,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}
