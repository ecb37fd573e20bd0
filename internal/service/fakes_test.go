package service_test

import (
	"context"
	"sync"
	"time"

	"github.com/vmphat/bandlab/config"
	"github.com/vmphat/bandlab/internal/model"
	"github.com/vmphat/bandlab/internal/service"
	"gorm.io/gorm"
)

// testConfig returns a config with short delays so retry paths run fast.
func testConfig() *config.Config {
	return &config.Config{
		Scoring: config.Scoring{
			BaseURL:             "http://scoring.test",
			WritingTimeout:      time.Second,
			SpeakingTimeout:     time.Second,
			RetryMax:            2,
			RetryDelay:          time.Millisecond,
			MinWritingLength:    50,
			MinTranscriptLength: 10,
			FallbackBand:        5.0,
			CEFRBands: map[string]float64{
				"A1": 2.5, "A2": 3.5, "B1": 5.0, "B2": 6.0, "C1": 7.5, "C2": 8.5,
			},
			AudioMaxBytes:    25 * 1024 * 1024,
			AudioMaxDuration: 5 * time.Minute,
			AudioFormats:     []string{"mp3", "wav", "m4a", "flac", "ogg", "webm", "mp4"},
		},
		Queue: config.Queue{
			MaxRetries:      3,
			RetryDelay:      time.Millisecond,
			DefaultPriority: 0,
			OrphanAge:       10 * time.Minute,
		},
	}
}

type fakePromptRepo struct {
	mu      sync.Mutex
	nextID  uint
	prompts map[uint]*model.Prompt
}

func newFakePromptRepo() *fakePromptRepo {
	return &fakePromptRepo{prompts: make(map[uint]*model.Prompt)}
}

func (r *fakePromptRepo) Create(prompt *model.Prompt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	prompt.ID = r.nextID
	prompt.CreatedAt = time.Now()
	cp := *prompt
	r.prompts[prompt.ID] = &cp
	return nil
}

func (r *fakePromptRepo) FindByID(id uint) (*model.Prompt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prompt, ok := r.prompts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *prompt
	return &cp, nil
}

func (r *fakePromptRepo) FindAll(skill *model.Skill) ([]model.Prompt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Prompt
	for _, prompt := range r.prompts {
		if skill != nil && prompt.Skill != *skill {
			continue
		}
		out = append(out, *prompt)
	}
	return out, nil
}

type fakeAttemptRepo struct {
	mu       sync.Mutex
	nextID   uint
	attempts map[uint]*model.Attempt
	scores   map[uint]*model.Score
	jobs     *fakeJobRepo
}

func newFakeAttemptRepo(jobs *fakeJobRepo) *fakeAttemptRepo {
	return &fakeAttemptRepo{
		attempts: make(map[uint]*model.Attempt),
		scores:   make(map[uint]*model.Score),
		jobs:     jobs,
	}
}

func (r *fakeAttemptRepo) Create(attempt *model.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	attempt.ID = r.nextID
	if attempt.StartedAt.IsZero() {
		attempt.StartedAt = time.Now()
	}
	cp := *attempt
	r.attempts[attempt.ID] = &cp
	return nil
}

func (r *fakeAttemptRepo) FindByID(id uint) (*model.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	attempt, ok := r.attempts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *attempt
	return &cp, nil
}

func (r *fakeAttemptRepo) FindByIDWithScore(id uint) (*model.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	attempt, ok := r.attempts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *attempt
	if score, ok := r.scores[id]; ok {
		scoreCopy := *score
		cp.Score = &scoreCopy
	}
	return &cp, nil
}

func (r *fakeAttemptRepo) FindActiveByLearnerAndPrompt(learnerID, promptID uint) (*model.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, attempt := range r.attempts {
		if attempt.LearnerID == learnerID && attempt.PromptID == promptID && attempt.Status.Active() {
			cp := *attempt
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeAttemptRepo) FindAllByLearner(learnerID uint) ([]model.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Attempt
	for _, attempt := range r.attempts {
		if attempt.LearnerID == learnerID {
			cp := *attempt
			if score, ok := r.scores[attempt.ID]; ok {
				scoreCopy := *score
				cp.Score = &scoreCopy
			}
			out = append(out, cp)
		}
	}
	return out, nil
}

func (r *fakeAttemptRepo) UpdateContentInProgress(id uint, content string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	attempt, ok := r.attempts[id]
	if !ok || attempt.Status != model.AttemptInProgress {
		return false, nil
	}
	attempt.Content = content
	return true, nil
}

func applyAttemptUpdates(attempt *model.Attempt, updates map[string]interface{}) {
	for key, value := range updates {
		switch key {
		case "submitted_at":
			t := value.(time.Time)
			attempt.SubmittedAt = &t
		case "scored_at":
			t := value.(time.Time)
			attempt.ScoredAt = &t
		case "failure_reason":
			if value == nil {
				attempt.FailureReason = nil
			} else {
				reason := value.(string)
				attempt.FailureReason = &reason
			}
		}
	}
}

func (r *fakeAttemptRepo) TransitionStatus(id uint, from, to model.AttemptStatus, updates map[string]interface{}) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	attempt, ok := r.attempts[id]
	if !ok || attempt.Status != from {
		return false, nil
	}
	attempt.Status = to
	applyAttemptUpdates(attempt, updates)
	return true, nil
}

func (r *fakeAttemptRepo) TransitionWithJob(id uint, from model.AttemptStatus, updates map[string]interface{}, job *model.ScoringJob) (bool, error) {
	r.mu.Lock()
	attempt, ok := r.attempts[id]
	if !ok || attempt.Status != from {
		r.mu.Unlock()
		return false, nil
	}
	attempt.Status = model.AttemptSubmitted
	applyAttemptUpdates(attempt, updates)
	r.mu.Unlock()

	job.AttemptID = id
	return true, r.jobs.Create(job)
}

func (r *fakeAttemptRepo) MarkScored(id uint, scoredAt time.Time, score *model.Score) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	attempt, ok := r.attempts[id]
	if !ok || attempt.Status != model.AttemptSubmitted {
		return false, nil
	}
	attempt.Status = model.AttemptScored
	attempt.ScoredAt = &scoredAt
	score.AttemptID = id
	cp := *score
	r.scores[id] = &cp
	return true, nil
}

func (r *fakeAttemptRepo) FindOrphanSubmitted(cutoff time.Time) ([]model.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Attempt
	for _, attempt := range r.attempts {
		if attempt.Status != model.AttemptSubmitted || attempt.SubmittedAt == nil || !attempt.SubmittedAt.Before(cutoff) {
			continue
		}
		if r.jobs.hasLiveJob(attempt.ID) {
			continue
		}
		out = append(out, *attempt)
	}
	return out, nil
}

type fakeJobRepo struct {
	mu     sync.Mutex
	nextID uint
	jobs   map[uint]*model.ScoringJob
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[uint]*model.ScoringJob)}
}

func (r *fakeJobRepo) Create(job *model.ScoringJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	job.ID = r.nextID
	job.CreatedAt = time.Now()
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *fakeJobRepo) FindByID(id uint) (*model.ScoringJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *job
	return &cp, nil
}

func (r *fakeJobRepo) FindActiveByAttemptID(attemptID uint) (*model.ScoringJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range r.jobs {
		if job.AttemptID == attemptID && !job.Status.Terminal() {
			cp := *job
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeJobRepo) FindNextPending(now time.Time) (*model.ScoringJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *model.ScoringJob
	for _, job := range r.jobs {
		if job.Status != model.JobPending || job.AvailableAt.After(now) {
			continue
		}
		if best == nil ||
			job.Priority > best.Priority ||
			(job.Priority == best.Priority && job.CreatedAt.Before(best.CreatedAt)) ||
			(job.Priority == best.Priority && job.CreatedAt.Equal(best.CreatedAt) && job.ID < best.ID) {
			best = job
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (r *fakeJobRepo) Claim(id uint, startedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status != model.JobPending {
		return false, nil
	}
	job.Status = model.JobProcessing
	job.StartedAt = &startedAt
	return true, nil
}

func (r *fakeJobRepo) Update(job *model.ScoringJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *fakeJobRepo) FindRecent(limit int) ([]model.ScoringJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ScoringJob
	for _, job := range r.jobs {
		out = append(out, *job)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeJobRepo) CountByStatus() (map[model.JobStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[model.JobStatus]int64)
	for _, job := range r.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

func (r *fakeJobRepo) hasLiveJob(attemptID uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range r.jobs {
		if job.AttemptID == attemptID && !job.Status.Terminal() {
			return true
		}
	}
	return false
}

func (r *fakeJobRepo) jobsForAttempt(attemptID uint) []model.ScoringJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ScoringJob
	for _, job := range r.jobs {
		if job.AttemptID == attemptID {
			out = append(out, *job)
		}
	}
	return out
}

type fakeScoreRepo struct {
	mu     sync.Mutex
	scores []model.Score
}

func (r *fakeScoreRepo) Create(score *model.Score) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	score.ID = uint(len(r.scores) + 1)
	r.scores = append(r.scores, *score)
	return nil
}

func (r *fakeScoreRepo) FindByAttemptID(attemptID uint) (*model.Score, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.scores {
		if r.scores[i].AttemptID == attemptID {
			cp := r.scores[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeScoreRepo) FindAllCompleted(learnerID *uint, skill *model.Skill) ([]model.Score, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Score
	for _, score := range r.scores {
		if skill != nil && score.Skill != *skill {
			continue
		}
		out = append(out, score)
	}
	return out, nil
}

// fakeScoringClient scripts scoring outcomes per call.
type fakeScoringClient struct {
	mu            sync.Mutex
	writingCalls  int
	speakingCalls int
	writingFn     func(call int) (*service.RawScore, error)
	speakingFn    func(call int) (*service.RawScore, error)
}

func (c *fakeScoringClient) ScoreWriting(ctx context.Context, prompt, essay string) (*service.RawScore, error) {
	c.mu.Lock()
	c.writingCalls++
	call := c.writingCalls
	fn := c.writingFn
	c.mu.Unlock()
	if fn != nil {
		return fn(call)
	}
	return &service.RawScore{Skill: model.SkillWriting, Band: 6.5, Confidence: 0.8}, nil
}

func (c *fakeScoringClient) ScoreSpeakingText(ctx context.Context, transcript string) (*service.RawScore, error) {
	c.mu.Lock()
	c.speakingCalls++
	call := c.speakingCalls
	fn := c.speakingFn
	c.mu.Unlock()
	if fn != nil {
		return fn(call)
	}
	return &service.RawScore{Skill: model.SkillSpeaking, Band: 6.0}, nil
}

func (c *fakeScoringClient) ScoreSpeakingAudio(ctx context.Context, audio service.AudioSubmission) (*service.RawScore, error) {
	return c.ScoreSpeakingText(ctx, "audio")
}

func (c *fakeScoringClient) Transcribe(ctx context.Context, audio service.AudioSubmission) (*service.Transcript, error) {
	return &service.Transcript{Text: "transcript"}, nil
}
