package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// FloatMap stores named sub-scores as a JSON column.
type FloatMap map[string]float64

func (m FloatMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *FloatMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			b = []byte(s)
		} else {
			return fmt.Errorf("cannot scan %T into FloatMap", value)
		}
	}
	return json.Unmarshal(b, m)
}

// StringMap stores per-criterion feedback text as a JSON column.
type StringMap map[string]string

func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *StringMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			b = []byte(s)
		} else {
			return fmt.Errorf("cannot scan %T into StringMap", value)
		}
	}
	return json.Unmarshal(b, m)
}

// StringList stores structured feedback lists as a JSON column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			b = []byte(s)
		} else {
			return fmt.Errorf("cannot scan %T into StringList", value)
		}
	}
	return json.Unmarshal(b, l)
}

// Score is the authoritative automated result for an attempt. At most one
// exists per attempt; a later teacher evaluation is layered on top as a
// separate record, never a replacement.
type Score struct {
	ID           uint           `gorm:"primarykey" json:"id"`
	AttemptID    uint           `json:"attempt_id" gorm:"not null;uniqueIndex"`
	Skill        Skill          `json:"skill" gorm:"not null;index"`
	Band         float64        `json:"band" gorm:"not null"`
	SubScores    FloatMap       `json:"sub_scores,omitempty" gorm:"type:jsonb"`
	Criteria     StringMap      `json:"criteria,omitempty" gorm:"type:jsonb"`
	Feedback     string         `json:"feedback,omitempty" gorm:"type:text"`
	Strengths    StringList     `json:"strengths,omitempty" gorm:"type:jsonb"`
	Improvements StringList     `json:"improvements,omitempty" gorm:"type:jsonb"`
	Suggestions  StringList     `json:"suggestions,omitempty" gorm:"type:jsonb"`
	CEFRLevel    *string        `json:"cefr_level,omitempty"`
	CEFRFallback bool           `json:"cefr_fallback,omitempty"`
	Confidence   float64        `json:"confidence,omitempty"`
	Transcript   *string        `json:"transcript,omitempty" gorm:"type:text"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}
