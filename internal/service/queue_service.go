package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jinzhu/copier"
	"github.com/rs/zerolog/log"
	"github.com/vmphat/bandlab/config"
	"github.com/vmphat/bandlab/internal/dto"
	"github.com/vmphat/bandlab/internal/model"
	"github.com/vmphat/bandlab/internal/repository"
	"gorm.io/gorm"
)

// AttemptMarker is the slice of the attempt state machine the queue drives.
type AttemptMarker interface {
	MarkScored(attemptID uint, raw *RawScore) error
	MarkFailed(attemptID uint, reason string) error
}

// QueueService owns scoring job lifecycle: enqueueing, exclusive claiming,
// execution against the scoring client, and retry bookkeeping.
type QueueService interface {
	// Enqueue creates a pending job. Fails with ConflictError when the
	// attempt already has a live job.
	Enqueue(attemptID uint, priority int) (*model.ScoringJob, error)
	// ClaimNext atomically claims the best pending job, or returns nil when
	// nothing is eligible. Safe under concurrent callers.
	ClaimNext() (*model.ScoringJob, error)
	// Complete records a successful scoring run and moves the attempt to
	// scored.
	Complete(jobID uint, raw *RawScore) error
	// Fail records a failed run. Retryable causes below the retry budget put
	// the job back in pending after the backoff delay (requeued=true);
	// anything else fails the job terminally and marks the attempt failed.
	Fail(jobID uint, cause error) (requeued bool, err error)
	// ProcessPending claims and executes jobs until none remain eligible.
	// One bad job never halts the batch.
	ProcessPending(ctx context.Context) (*dto.ProcessReport, error)
	ListRecentJobs(limit int) ([]dto.JobDTO, error)
	QueueStats() (*dto.QueueStatsDTO, error)
}

type queueService struct {
	jobRepo     repository.ScoringJobRepository
	attemptRepo repository.AttemptRepository
	attempts    AttemptMarker
	client      ScoringClient
	cfg         config.Queue
}

func NewQueueService(
	jobRepo repository.ScoringJobRepository,
	attemptRepo repository.AttemptRepository,
	attempts AttemptMarker,
	client ScoringClient,
	cfg *config.Config,
) QueueService {
	return &queueService{
		jobRepo:     jobRepo,
		attemptRepo: attemptRepo,
		attempts:    attempts,
		client:      client,
		cfg:         cfg.Queue,
	}
}

func (s *queueService) Enqueue(attemptID uint, priority int) (*model.ScoringJob, error) {
	if _, err := s.attemptRepo.FindByID(attemptID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "attempt", ID: attemptID}
		}
		return nil, err
	}

	active, err := s.jobRepo.FindActiveByAttemptID(attemptID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, &ConflictError{Msg: fmt.Sprintf("attempt %d already has scoring job %d (%s)", attemptID, active.ID, active.Status)}
	}

	job := &model.ScoringJob{
		AttemptID:   attemptID,
		Status:      model.JobPending,
		Priority:    priority,
		MaxRetries:  s.cfg.MaxRetries,
		AvailableAt: time.Now(),
	}
	if err := s.jobRepo.Create(job); err != nil {
		return nil, err
	}
	log.Info().Uint("jobID", job.ID).Uint("attemptID", attemptID).Int("priority", priority).Msg("Scoring job enqueued")
	return job, nil
}

func (s *queueService) ClaimNext() (*model.ScoringJob, error) {
	for {
		now := time.Now()
		job, err := s.jobRepo.FindNextPending(now)
		if err != nil {
			return nil, err
		}
		if job == nil {
			return nil, nil
		}
		claimed, err := s.jobRepo.Claim(job.ID, now)
		if err != nil {
			return nil, err
		}
		if claimed {
			job.Status = model.JobProcessing
			started := now
			job.StartedAt = &started
			return job, nil
		}
		// Another worker won this job; move on to the next candidate.
	}
}

func (s *queueService) Complete(jobID uint, raw *RawScore) error {
	job, err := s.jobRepo.FindByID(jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &NotFoundError{Resource: "scoring job", ID: jobID}
		}
		return err
	}
	if job.Status != model.JobProcessing {
		return &InvalidStateError{Msg: fmt.Sprintf("job %d is %s, only processing jobs can complete", jobID, job.Status)}
	}

	if err := s.attempts.MarkScored(job.AttemptID, raw); err != nil {
		// Usually a stale job whose attempt already moved on (rescore).
		detail := err.Error()
		job.Status = model.JobFailed
		job.LastError = &detail
		now := time.Now()
		job.CompletedAt = &now
		if updateErr := s.jobRepo.Update(job); updateErr != nil {
			log.Error().Err(updateErr).Uint("jobID", jobID).Msg("Failed to record stale job outcome")
		}
		return err
	}

	now := time.Now()
	job.Status = model.JobCompleted
	job.CompletedAt = &now
	job.LastError = nil
	if err := s.jobRepo.Update(job); err != nil {
		return err
	}
	log.Info().Uint("jobID", jobID).Uint("attemptID", job.AttemptID).Float64("band", raw.Band).Msg("Scoring job completed")
	return nil
}

func (s *queueService) Fail(jobID uint, cause error) (bool, error) {
	job, err := s.jobRepo.FindByID(jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, &NotFoundError{Resource: "scoring job", ID: jobID}
		}
		return false, err
	}
	if job.Status != model.JobProcessing {
		return false, &InvalidStateError{Msg: fmt.Sprintf("job %d is %s, only processing jobs can fail", jobID, job.Status)}
	}

	detail := cause.Error()
	job.LastError = &detail

	if Retryable(cause) && job.RetryCount < job.MaxRetries {
		job.RetryCount++
		job.Status = model.JobPending
		job.AvailableAt = time.Now().Add(s.cfg.RetryDelay)
		if err := s.jobRepo.Update(job); err != nil {
			return false, err
		}
		log.Warn().Uint("jobID", jobID).Int("retryCount", job.RetryCount).Int("maxRetries", job.MaxRetries).
			Err(cause).Msg("Scoring job requeued for retry")
		return true, nil
	}

	now := time.Now()
	job.Status = model.JobFailed
	job.CompletedAt = &now
	if err := s.jobRepo.Update(job); err != nil {
		return false, err
	}
	if err := s.attempts.MarkFailed(job.AttemptID, detail); err != nil {
		log.Error().Err(err).Uint("jobID", jobID).Uint("attemptID", job.AttemptID).
			Msg("Job failed terminally but attempt refused the failed transition")
	}
	log.Error().Uint("jobID", jobID).Uint("attemptID", job.AttemptID).Err(cause).Msg("Scoring job failed terminally")
	return false, nil
}

func (s *queueService) ProcessPending(ctx context.Context) (*dto.ProcessReport, error) {
	report := &dto.ProcessReport{}
	for {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		job, err := s.ClaimNext()
		if err != nil {
			return report, err
		}
		if job == nil {
			break
		}

		report.Processed++
		raw, execErr := s.executeJob(ctx, job)
		if execErr != nil {
			requeued, failErr := s.Fail(job.ID, execErr)
			if failErr != nil {
				log.Error().Err(failErr).Uint("jobID", job.ID).Msg("Failed to record job failure")
				report.Failed++
				continue
			}
			if requeued {
				report.Retried++
			} else {
				report.Failed++
			}
			continue
		}

		if err := s.Complete(job.ID, raw); err != nil {
			log.Error().Err(err).Uint("jobID", job.ID).Msg("Failed to complete scoring job")
			report.Failed++
			continue
		}
		report.Succeeded++
	}

	log.Info().Int("processed", report.Processed).Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).Int("retried", report.Retried).Msg("Processing batch finished")
	return report, nil
}

// executeJob runs one scoring call for the job's attempt. Panics are
// contained here so a single bad job cannot take the batch down.
func (s *queueService) executeJob(ctx context.Context, job *model.ScoringJob) (raw *RawScore, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Uint("jobID", job.ID).Interface("panic", r).Msg("Scoring job panicked")
			raw = nil
			err = &TransientError{Op: "execute job", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	attempt, err := s.attemptRepo.FindByID(job.AttemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &TerminalFailure{Msg: fmt.Sprintf("attempt %d no longer exists", job.AttemptID)}
		}
		return nil, &TransientError{Op: "load attempt", Err: err}
	}

	switch attempt.Skill {
	case model.SkillWriting:
		return s.client.ScoreWriting(ctx, attempt.Prompt.Text, attempt.Content)
	case model.SkillSpeaking:
		if attempt.MediaURL != nil && *attempt.MediaURL != "" {
			data, filename, fetchErr := FetchAudioData(ctx, *attempt.MediaURL)
			if fetchErr != nil {
				return nil, fetchErr
			}
			return s.client.ScoreSpeakingAudio(ctx, AudioSubmission{Filename: filename, Data: data, Language: "en"})
		}
		return s.client.ScoreSpeakingText(ctx, attempt.Content)
	default:
		return nil, &ValidationError{Msg: fmt.Sprintf("unsupported skill %q", attempt.Skill)}
	}
}

func (s *queueService) ListRecentJobs(limit int) ([]dto.JobDTO, error) {
	if limit <= 0 {
		limit = 50
	}
	jobs, err := s.jobRepo.FindRecent(limit)
	if err != nil {
		return nil, err
	}
	dtos := make([]dto.JobDTO, 0, len(jobs))
	for _, job := range jobs {
		var d dto.JobDTO
		copier.Copy(&d, &job)
		d.Status = string(job.Status)
		dtos = append(dtos, d)
	}
	return dtos, nil
}

func (s *queueService) QueueStats() (*dto.QueueStatsDTO, error) {
	counts, err := s.jobRepo.CountByStatus()
	if err != nil {
		return nil, err
	}
	stats := &dto.QueueStatsDTO{Counts: make(map[string]int64, len(counts))}
	for status, count := range counts {
		stats.Counts[string(status)] = count
	}
	// Zero statuses stay visible so dashboards keep a stable shape.
	for _, status := range []model.JobStatus{model.JobPending, model.JobProcessing, model.JobCompleted, model.JobFailed} {
		if _, ok := stats.Counts[string(status)]; !ok {
			stats.Counts[string(status)] = 0
		}
	}
	return stats, nil
}
