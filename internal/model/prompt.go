package model

import (
	"time"

	"gorm.io/gorm"
)

// Skill identifies which IELTS skill a prompt or attempt exercises.
type Skill string

const (
	SkillWriting  Skill = "writing"
	SkillSpeaking Skill = "speaking"
)

// Prompt is a practice task a learner responds to. Prompts are managed by the
// content/admin side of the platform; the scoring pipeline only reads them.
type Prompt struct {
	ID                 uint           `gorm:"primarykey" json:"id"`
	Skill              Skill          `json:"skill" gorm:"not null;index"`
	Title              string         `json:"title" gorm:"not null"`
	Text               string         `json:"text" gorm:"type:text;not null"`
	PreparationSeconds int            `json:"preparation_seconds"`
	ResponseSeconds    int            `json:"response_seconds"`
	MinWords           int            `json:"min_words,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}
