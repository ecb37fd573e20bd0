package repository

import (
	"errors"

	"github.com/vmphat/bandlab/internal/model"
	"gorm.io/gorm"
)

type ScoreRepository interface {
	Create(score *model.Score) error
	FindByAttemptID(attemptID uint) (*model.Score, error)
	// FindAllCompleted lists automated scores, optionally filtered by learner
	// and/or skill. Used by the aggregator.
	FindAllCompleted(learnerID *uint, skill *model.Skill) ([]model.Score, error)
}

type scoreRepository struct {
	db *gorm.DB
}

func NewScoreRepository(db *gorm.DB) ScoreRepository {
	return &scoreRepository{db: db}
}

func (r *scoreRepository) Create(score *model.Score) error {
	return r.db.Create(score).Error
}

func (r *scoreRepository) FindByAttemptID(attemptID uint) (*model.Score, error) {
	var score model.Score
	err := r.db.Where("attempt_id = ?", attemptID).First(&score).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &score, nil
}

func (r *scoreRepository) FindAllCompleted(learnerID *uint, skill *model.Skill) ([]model.Score, error) {
	var scores []model.Score
	query := r.db.Model(&model.Score{})
	if learnerID != nil {
		query = query.
			Joins("JOIN attempts ON attempts.id = scores.attempt_id").
			Where("attempts.learner_id = ?", *learnerID)
	}
	if skill != nil {
		query = query.Where("scores.skill = ?", *skill)
	}
	err := query.Order("scores.created_at desc").Find(&scores).Error
	return scores, err
}
