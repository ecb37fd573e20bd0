package repository

import (
	"errors"
	"time"

	"github.com/vmphat/bandlab/internal/model"
	"gorm.io/gorm"
)

type ScoringJobRepository interface {
	Create(job *model.ScoringJob) error
	FindByID(id uint) (*model.ScoringJob, error)
	// FindActiveByAttemptID returns the attempt's pending or processing job,
	// or nil when there is none.
	FindActiveByAttemptID(attemptID uint) (*model.ScoringJob, error)
	// FindNextPending returns the best claim candidate: highest priority
	// first, oldest first among equals, skipping jobs still in backoff.
	// Returns nil when nothing is eligible.
	FindNextPending(now time.Time) (*model.ScoringJob, error)
	// Claim performs the compare-and-set pending->processing. Exactly one of
	// any number of concurrent callers gets true for a given job.
	Claim(id uint, startedAt time.Time) (bool, error)
	Update(job *model.ScoringJob) error
	FindRecent(limit int) ([]model.ScoringJob, error)
	CountByStatus() (map[model.JobStatus]int64, error)
}

type scoringJobRepository struct {
	db *gorm.DB
}

func NewScoringJobRepository(db *gorm.DB) ScoringJobRepository {
	return &scoringJobRepository{db: db}
}

func (r *scoringJobRepository) Create(job *model.ScoringJob) error {
	return r.db.Create(job).Error
}

func (r *scoringJobRepository) FindByID(id uint) (*model.ScoringJob, error) {
	var job model.ScoringJob
	if err := r.db.First(&job, id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *scoringJobRepository) FindActiveByAttemptID(attemptID uint) (*model.ScoringJob, error) {
	var job model.ScoringJob
	err := r.db.
		Where("attempt_id = ? AND status IN ?", attemptID, []model.JobStatus{model.JobPending, model.JobProcessing}).
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *scoringJobRepository) FindNextPending(now time.Time) (*model.ScoringJob, error) {
	var job model.ScoringJob
	err := r.db.
		Where("status = ? AND available_at <= ?", model.JobPending, now).
		Order("priority desc").
		Order("created_at asc").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *scoringJobRepository) Claim(id uint, startedAt time.Time) (bool, error) {
	res := r.db.Model(&model.ScoringJob{}).
		Where("id = ? AND status = ?", id, model.JobPending).
		Updates(map[string]interface{}{"status": model.JobProcessing, "started_at": startedAt})
	return res.RowsAffected == 1, res.Error
}

func (r *scoringJobRepository) Update(job *model.ScoringJob) error {
	return r.db.Save(job).Error
}

func (r *scoringJobRepository) FindRecent(limit int) ([]model.ScoringJob, error) {
	var jobs []model.ScoringJob
	err := r.db.Order("created_at desc").Limit(limit).Find(&jobs).Error
	return jobs, err
}

func (r *scoringJobRepository) CountByStatus() (map[model.JobStatus]int64, error) {
	type row struct {
		Status model.JobStatus
		Count  int64
	}
	var rows []row
	err := r.db.Model(&model.ScoringJob{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[model.JobStatus]int64, len(rows))
	for _, rw := range rows {
		counts[rw.Status] = rw.Count
	}
	return counts, nil
}
