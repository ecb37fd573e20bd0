package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/copier"
	"github.com/rs/zerolog/log"
	"github.com/vmphat/bandlab/config"
	"github.com/vmphat/bandlab/internal/dto"
	"github.com/vmphat/bandlab/internal/model"
	"github.com/vmphat/bandlab/internal/repository"
	"gorm.io/gorm"
)

// AttemptService is the attempt state machine: the authoritative source of
// truth the rest of the pipeline observes.
//
//	in_progress -> submitted -> scored | failed
//	scored -> evaluated_by_teacher (external, terminal)
//	failed -> submitted (explicit rescore only)
type AttemptService interface {
	Start(req dto.StartAttemptRequest) (*dto.StartAttemptResponse, error)
	// UpdateContent overwrites the draft while in_progress. Last write wins;
	// redundant identical saves are fine.
	UpdateContent(attemptID uint, content string) error
	// Submit finalizes the draft, moves to submitted and enqueues exactly one
	// scoring job, atomically.
	Submit(attemptID uint) (*dto.SubmitAttemptResponse, error)
	// Rescore re-enters the pipeline from failed with a fresh job.
	Rescore(attemptID uint) (*dto.SubmitAttemptResponse, error)
	// MarkScored and MarkFailed are invoked only by the job queue. Both fail
	// with InvalidStateError unless the attempt is currently submitted, which
	// keeps a stale job from a prior cycle from corrupting a newer lifecycle.
	MarkScored(attemptID uint, raw *RawScore) error
	MarkFailed(attemptID uint, reason string) error
	// MarkTeacherEvaluated accepts the external teacher-review transition.
	MarkTeacherEvaluated(attemptID uint) error
	GetAttempt(attemptID uint) (*dto.AttemptDetailDTO, error)
	GetLearnerAttempts(learnerID uint) ([]dto.AttemptSummaryDTO, error)
	// ReconcileOrphans re-enqueues submitted attempts older than the
	// configured threshold that lost their job to a crash between the state
	// transition and job creation on some other code path.
	ReconcileOrphans() (*dto.ReconcileReport, error)
}

type attemptService struct {
	attemptRepo repository.AttemptRepository
	promptRepo  repository.PromptRepository
	jobRepo     repository.ScoringJobRepository
	queueCfg    config.Queue
	scoringCfg  config.Scoring
}

func NewAttemptService(
	attemptRepo repository.AttemptRepository,
	promptRepo repository.PromptRepository,
	jobRepo repository.ScoringJobRepository,
	cfg *config.Config,
) AttemptService {
	return &attemptService{
		attemptRepo: attemptRepo,
		promptRepo:  promptRepo,
		jobRepo:     jobRepo,
		queueCfg:    cfg.Queue,
		scoringCfg:  cfg.Scoring,
	}
}

func (s *attemptService) Start(req dto.StartAttemptRequest) (*dto.StartAttemptResponse, error) {
	prompt, err := s.promptRepo.FindByID(req.PromptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "prompt", ID: req.PromptID}
		}
		return nil, err
	}

	active, err := s.attemptRepo.FindActiveByLearnerAndPrompt(req.LearnerID, req.PromptID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, &ConflictError{Msg: fmt.Sprintf(
			"learner %d already has an active attempt (%d, %s) for prompt %d",
			req.LearnerID, active.ID, active.Status, req.PromptID)}
	}

	attempt := model.Attempt{
		LearnerID: req.LearnerID,
		PromptID:  req.PromptID,
		Skill:     prompt.Skill,
		Status:    model.AttemptInProgress,
	}
	if err := s.attemptRepo.Create(&attempt); err != nil {
		log.Error().Err(err).Uint("learnerID", req.LearnerID).Uint("promptID", req.PromptID).Msg("Failed to create attempt")
		return nil, err
	}

	log.Info().Uint("attemptID", attempt.ID).Uint("learnerID", req.LearnerID).Uint("promptID", req.PromptID).
		Str("skill", string(prompt.Skill)).Msg("Attempt started")

	return &dto.StartAttemptResponse{
		AttemptID:          attempt.ID,
		Skill:              string(prompt.Skill),
		Status:             string(attempt.Status),
		PreparationSeconds: prompt.PreparationSeconds,
		ResponseSeconds:    prompt.ResponseSeconds,
	}, nil
}

func (s *attemptService) UpdateContent(attemptID uint, content string) error {
	ok, err := s.attemptRepo.UpdateContentInProgress(attemptID, content)
	if err != nil {
		return err
	}
	if !ok {
		attempt, findErr := s.attemptRepo.FindByID(attemptID)
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return &NotFoundError{Resource: "attempt", ID: attemptID}
			}
			return findErr
		}
		return &InvalidStateError{Msg: fmt.Sprintf("attempt %d is %s, content can only change while in_progress", attemptID, attempt.Status)}
	}
	return nil
}

func (s *attemptService) Submit(attemptID uint) (*dto.SubmitAttemptResponse, error) {
	attempt, err := s.attemptRepo.FindByID(attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "attempt", ID: attemptID}
		}
		return nil, err
	}
	if attempt.Status != model.AttemptInProgress {
		return nil, &InvalidStateError{Msg: fmt.Sprintf("attempt %d is %s, only in_progress attempts can be submitted", attemptID, attempt.Status)}
	}
	if err := s.validateSubmission(attempt); err != nil {
		return nil, err
	}

	now := time.Now()
	job := s.newJob()
	ok, err := s.attemptRepo.TransitionWithJob(attemptID, model.AttemptInProgress,
		map[string]interface{}{"submitted_at": now}, job)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost a race with a concurrent submit.
		return nil, &InvalidStateError{Msg: fmt.Sprintf("attempt %d was already submitted", attemptID)}
	}

	log.Info().Uint("attemptID", attemptID).Uint("jobID", job.ID).Msg("Attempt submitted, scoring job enqueued")
	return &dto.SubmitAttemptResponse{
		AttemptID: attemptID,
		JobID:     job.ID,
		Status:    string(model.AttemptSubmitted),
	}, nil
}

// validateSubmission enforces the domain minimums before any job exists, so
// a too-short essay never reaches the scoring service.
func (s *attemptService) validateSubmission(attempt *model.Attempt) error {
	switch attempt.Skill {
	case model.SkillWriting:
		if len(strings.TrimSpace(attempt.Content)) < s.scoringCfg.MinWritingLength {
			return &ValidationError{Msg: fmt.Sprintf("essay must be at least %d characters", s.scoringCfg.MinWritingLength)}
		}
	case model.SkillSpeaking:
		if strings.TrimSpace(attempt.Content) == "" && (attempt.MediaURL == nil || *attempt.MediaURL == "") {
			return &ValidationError{Msg: "speaking attempt needs a transcript or a recording"}
		}
	}
	return nil
}

func (s *attemptService) Rescore(attemptID uint) (*dto.SubmitAttemptResponse, error) {
	attempt, err := s.attemptRepo.FindByID(attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "attempt", ID: attemptID}
		}
		return nil, err
	}
	if attempt.Status != model.AttemptFailed {
		return nil, &InvalidStateError{Msg: fmt.Sprintf("attempt %d is %s, only failed attempts can be rescored", attemptID, attempt.Status)}
	}

	// A rescore always gets a fresh job; the failed one stays as history.
	job := s.newJob()
	ok, err := s.attemptRepo.TransitionWithJob(attemptID, model.AttemptFailed,
		map[string]interface{}{"failure_reason": nil}, job)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &InvalidStateError{Msg: fmt.Sprintf("attempt %d left the failed state before rescore", attemptID)}
	}

	log.Info().Uint("attemptID", attemptID).Uint("jobID", job.ID).Msg("Rescore requested, new scoring job enqueued")
	return &dto.SubmitAttemptResponse{
		AttemptID: attemptID,
		JobID:     job.ID,
		Status:    string(model.AttemptSubmitted),
	}, nil
}

func (s *attemptService) MarkScored(attemptID uint, raw *RawScore) error {
	score := &model.Score{
		Skill:        raw.Skill,
		Band:         raw.Band,
		SubScores:    model.FloatMap(raw.SubScores),
		Criteria:     model.StringMap(raw.Criteria),
		Feedback:     raw.Feedback,
		Strengths:    model.StringList(raw.Strengths),
		Improvements: model.StringList(raw.Improvements),
		Suggestions:  model.StringList(raw.Suggestions),
		CEFRLevel:    raw.CEFRLevel,
		CEFRFallback: raw.CEFRFallback,
		Confidence:   raw.Confidence,
		Transcript:   raw.Transcript,
	}
	ok, err := s.attemptRepo.MarkScored(attemptID, time.Now(), score)
	if err != nil {
		return err
	}
	if !ok {
		return &InvalidStateError{Msg: fmt.Sprintf("attempt %d is not awaiting a score", attemptID)}
	}
	log.Info().Uint("attemptID", attemptID).Float64("band", raw.Band).Msg("Attempt scored")
	return nil
}

func (s *attemptService) MarkFailed(attemptID uint, reason string) error {
	ok, err := s.attemptRepo.TransitionStatus(attemptID, model.AttemptSubmitted, model.AttemptFailed,
		map[string]interface{}{"failure_reason": reason})
	if err != nil {
		return err
	}
	if !ok {
		return &InvalidStateError{Msg: fmt.Sprintf("attempt %d is not awaiting a score", attemptID)}
	}
	log.Warn().Uint("attemptID", attemptID).Str("reason", reason).Msg("Attempt marked failed")
	return nil
}

func (s *attemptService) MarkTeacherEvaluated(attemptID uint) error {
	ok, err := s.attemptRepo.TransitionStatus(attemptID, model.AttemptScored, model.AttemptTeacherEvaluated, nil)
	if err != nil {
		return err
	}
	if !ok {
		return &InvalidStateError{Msg: fmt.Sprintf("attempt %d is not scored, teacher evaluation not applicable", attemptID)}
	}
	return nil
}

func (s *attemptService) GetAttempt(attemptID uint) (*dto.AttemptDetailDTO, error) {
	attempt, err := s.attemptRepo.FindByIDWithScore(attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "attempt", ID: attemptID}
		}
		return nil, err
	}

	var resp dto.AttemptDetailDTO
	if err := copier.Copy(&resp, attempt); err != nil {
		log.Error().Err(err).Uint("attemptID", attemptID).Msg("Failed to copy attempt to DTO")
		return nil, fmt.Errorf("error preparing attempt response: %w", err)
	}
	resp.Skill = string(attempt.Skill)
	resp.Status = string(attempt.Status)
	if attempt.Prompt.ID != 0 {
		resp.PromptTitle = attempt.Prompt.Title
	}
	if attempt.Score != nil {
		var scoreDTO dto.ScoreDTO
		copier.Copy(&scoreDTO, attempt.Score)
		resp.Score = &scoreDTO
	}
	return &resp, nil
}

func (s *attemptService) GetLearnerAttempts(learnerID uint) ([]dto.AttemptSummaryDTO, error) {
	attempts, err := s.attemptRepo.FindAllByLearner(learnerID)
	if err != nil {
		log.Error().Err(err).Uint("learnerID", learnerID).Msg("Failed to list learner attempts")
		return nil, err
	}

	summaries := make([]dto.AttemptSummaryDTO, 0, len(attempts))
	for _, attempt := range attempts {
		summary := dto.AttemptSummaryDTO{
			ID:          attempt.ID,
			PromptID:    attempt.PromptID,
			Skill:       string(attempt.Skill),
			Status:      string(attempt.Status),
			StartedAt:   attempt.StartedAt,
			SubmittedAt: attempt.SubmittedAt,
		}
		if attempt.Prompt.ID != 0 {
			summary.PromptTitle = attempt.Prompt.Title
		}
		if attempt.Score != nil {
			band := attempt.Score.Band
			summary.Band = &band
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *attemptService) ReconcileOrphans() (*dto.ReconcileReport, error) {
	cutoff := time.Now().Add(-s.queueCfg.OrphanAge)
	orphans, err := s.attemptRepo.FindOrphanSubmitted(cutoff)
	if err != nil {
		return nil, err
	}

	report := &dto.ReconcileReport{}
	for _, attempt := range orphans {
		job := s.newJob()
		job.AttemptID = attempt.ID
		if err := s.jobRepo.Create(job); err != nil {
			log.Error().Err(err).Uint("attemptID", attempt.ID).Msg("Failed to re-enqueue orphaned attempt")
			continue
		}
		report.Requeued++
		log.Warn().Uint("attemptID", attempt.ID).Uint("jobID", job.ID).Msg("Re-enqueued orphaned submitted attempt")
	}
	return report, nil
}

func (s *attemptService) newJob() *model.ScoringJob {
	return &model.ScoringJob{
		Status:      model.JobPending,
		Priority:    s.queueCfg.DefaultPriority,
		MaxRetries:  s.queueCfg.MaxRetries,
		AvailableAt: time.Now(),
	}
}
