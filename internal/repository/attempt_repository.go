package repository

import (
	"errors"
	"time"

	"github.com/vmphat/bandlab/internal/model"
	"gorm.io/gorm"
)

type AttemptRepository interface {
	Create(attempt *model.Attempt) error
	FindByID(id uint) (*model.Attempt, error)
	FindByIDWithScore(id uint) (*model.Attempt, error)
	// FindActiveByLearnerAndPrompt returns the attempt currently holding the
	// learner+prompt slot, or nil when there is none.
	FindActiveByLearnerAndPrompt(learnerID, promptID uint) (*model.Attempt, error)
	FindAllByLearner(learnerID uint) ([]model.Attempt, error)
	// UpdateContentInProgress overwrites the draft content only while the
	// attempt is still in_progress. Returns false when the guard failed.
	UpdateContentInProgress(id uint, content string) (bool, error)
	// TransitionStatus performs a compare-and-set on the attempt status.
	// Returns false when the attempt was not in the expected state.
	TransitionStatus(id uint, from, to model.AttemptStatus, updates map[string]interface{}) (bool, error)
	// TransitionWithJob atomically moves the attempt to submitted and creates
	// the scoring job for this submission cycle, in one transaction.
	TransitionWithJob(id uint, from model.AttemptStatus, updates map[string]interface{}, job *model.ScoringJob) (bool, error)
	// MarkScored atomically moves submitted->scored and attaches the score.
	MarkScored(id uint, scoredAt time.Time, score *model.Score) (bool, error)
	// FindOrphanSubmitted lists submitted attempts older than the cutoff that
	// have no live scoring job, so the sweep can re-enqueue them.
	FindOrphanSubmitted(cutoff time.Time) ([]model.Attempt, error)
}

type attemptRepository struct {
	db *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) AttemptRepository {
	return &attemptRepository{db: db}
}

func (r *attemptRepository) Create(attempt *model.Attempt) error {
	return r.db.Create(attempt).Error
}

func (r *attemptRepository) FindByID(id uint) (*model.Attempt, error) {
	var attempt model.Attempt
	if err := r.db.Preload("Prompt").First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *attemptRepository) FindByIDWithScore(id uint) (*model.Attempt, error) {
	var attempt model.Attempt
	if err := r.db.Preload("Prompt").Preload("Score").First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *attemptRepository) FindActiveByLearnerAndPrompt(learnerID, promptID uint) (*model.Attempt, error) {
	var attempt model.Attempt
	err := r.db.
		Where("learner_id = ? AND prompt_id = ? AND status IN ?", learnerID, promptID, model.ActiveAttemptStatuses).
		First(&attempt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *attemptRepository) FindAllByLearner(learnerID uint) ([]model.Attempt, error) {
	var attempts []model.Attempt
	err := r.db.
		Preload("Prompt").
		Preload("Score").
		Where("learner_id = ?", learnerID).
		Order("started_at desc").
		Find(&attempts).Error
	return attempts, err
}

func (r *attemptRepository) UpdateContentInProgress(id uint, content string) (bool, error) {
	res := r.db.Model(&model.Attempt{}).
		Where("id = ? AND status = ?", id, model.AttemptInProgress).
		Update("content", content)
	return res.RowsAffected == 1, res.Error
}

func (r *attemptRepository) TransitionStatus(id uint, from, to model.AttemptStatus, updates map[string]interface{}) (bool, error) {
	values := map[string]interface{}{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.Model(&model.Attempt{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	return res.RowsAffected == 1, res.Error
}

func (r *attemptRepository) TransitionWithJob(id uint, from model.AttemptStatus, updates map[string]interface{}, job *model.ScoringJob) (bool, error) {
	moved := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		values := map[string]interface{}{"status": model.AttemptSubmitted}
		for k, v := range updates {
			values[k] = v
		}
		res := tx.Model(&model.Attempt{}).
			Where("id = ? AND status = ?", id, from).
			Updates(values)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			// Guard failed; nothing to roll back.
			return nil
		}
		job.AttemptID = id
		if err := tx.Create(job).Error; err != nil {
			return err
		}
		moved = true
		return nil
	})
	return moved, err
}

func (r *attemptRepository) MarkScored(id uint, scoredAt time.Time, score *model.Score) (bool, error) {
	moved := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Attempt{}).
			Where("id = ? AND status = ?", id, model.AttemptSubmitted).
			Updates(map[string]interface{}{"status": model.AttemptScored, "scored_at": scoredAt})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return nil
		}
		score.AttemptID = id
		if err := tx.Create(score).Error; err != nil {
			return err
		}
		moved = true
		return nil
	})
	return moved, err
}

func (r *attemptRepository) FindOrphanSubmitted(cutoff time.Time) ([]model.Attempt, error) {
	var attempts []model.Attempt
	err := r.db.
		Where("status = ? AND submitted_at < ?", model.AttemptSubmitted, cutoff).
		Where("NOT EXISTS (SELECT 1 FROM scoring_jobs j WHERE j.attempt_id = attempts.id AND j.status IN ? AND j.deleted_at IS NULL)",
			[]model.JobStatus{model.JobPending, model.JobProcessing}).
		Find(&attempts).Error
	return attempts, err
}
