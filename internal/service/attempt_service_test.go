package service_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vmphat/bandlab/internal/dto"
	"github.com/vmphat/bandlab/internal/model"
	"github.com/vmphat/bandlab/internal/service"
)

type attemptFixture struct {
	prompts  *fakePromptRepo
	attempts *fakeAttemptRepo
	jobs     *fakeJobRepo
	svc      service.AttemptService
}

func newAttemptFixture(t *testing.T) *attemptFixture {
	t.Helper()
	jobs := newFakeJobRepo()
	f := &attemptFixture{
		prompts:  newFakePromptRepo(),
		attempts: newFakeAttemptRepo(jobs),
		jobs:     jobs,
	}
	f.svc = service.NewAttemptService(f.attempts, f.prompts, f.jobs, testConfig())
	return f
}

func (f *attemptFixture) addPrompt(t *testing.T, skill model.Skill) uint {
	t.Helper()
	prompt := &model.Prompt{Skill: skill, Title: "Prompt", Text: "Describe a chart."}
	if err := f.prompts.Create(prompt); err != nil {
		t.Fatalf("create prompt: %v", err)
	}
	return prompt.ID
}

func (f *attemptFixture) start(t *testing.T, learnerID, promptID uint) uint {
	t.Helper()
	resp, err := f.svc.Start(dto.StartAttemptRequest{LearnerID: learnerID, PromptID: promptID})
	if err != nil {
		t.Fatalf("start attempt: %v", err)
	}
	return resp.AttemptID
}

const longEssay = "This essay comfortably clears the minimum length required before a submission is accepted for scoring."

func TestStartAttempt_RejectsSecondActiveAttempt(t *testing.T) {
	f := newAttemptFixture(t)
	promptID := f.addPrompt(t, model.SkillWriting)

	f.start(t, 7, promptID)

	_, err := f.svc.Start(dto.StartAttemptRequest{LearnerID: 7, PromptID: promptID})
	var conflict *service.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("want ConflictError, got %v", err)
	}

	// A different learner is unaffected.
	if _, err := f.svc.Start(dto.StartAttemptRequest{LearnerID: 8, PromptID: promptID}); err != nil {
		t.Fatalf("other learner should start fine: %v", err)
	}
}

func TestStartAttempt_UnknownPrompt(t *testing.T) {
	f := newAttemptFixture(t)
	_, err := f.svc.Start(dto.StartAttemptRequest{LearnerID: 1, PromptID: 99})
	var notFound *service.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("want NotFoundError, got %v", err)
	}
}

func TestStartAttempt_AllowedAfterScored(t *testing.T) {
	f := newAttemptFixture(t)
	promptID := f.addPrompt(t, model.SkillWriting)
	attemptID := f.start(t, 7, promptID)

	if err := f.svc.UpdateContent(attemptID, longEssay); err != nil {
		t.Fatalf("update content: %v", err)
	}
	if _, err := f.svc.Submit(attemptID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := f.svc.MarkScored(attemptID, &service.RawScore{Skill: model.SkillWriting, Band: 7.0}); err != nil {
		t.Fatalf("mark scored: %v", err)
	}

	if _, err := f.svc.Start(dto.StartAttemptRequest{LearnerID: 7, PromptID: promptID}); err != nil {
		t.Fatalf("scored attempt should release the slot: %v", err)
	}
}

func TestSubmit_CreatesExactlyOneJob(t *testing.T) {
	f := newAttemptFixture(t)
	promptID := f.addPrompt(t, model.SkillWriting)
	attemptID := f.start(t, 1, promptID)

	if err := f.svc.UpdateContent(attemptID, longEssay); err != nil {
		t.Fatalf("update content: %v", err)
	}
	resp, err := f.svc.Submit(attemptID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if resp.Status != string(model.AttemptSubmitted) {
		t.Errorf("status = %q, want submitted", resp.Status)
	}

	jobs := f.jobs.jobsForAttempt(attemptID)
	if len(jobs) != 1 {
		t.Fatalf("got %d jobs, want 1", len(jobs))
	}
	if jobs[0].Status != model.JobPending {
		t.Errorf("job status = %q, want pending", jobs[0].Status)
	}

	// Double submission is rejected and creates no second job.
	_, err = f.svc.Submit(attemptID)
	var invalid *service.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("want InvalidStateError on double submit, got %v", err)
	}
	if got := len(f.jobs.jobsForAttempt(attemptID)); got != 1 {
		t.Errorf("double submit created a job: %d jobs", got)
	}
}

func TestSubmit_ShortEssayRejectedBeforeJobCreation(t *testing.T) {
	f := newAttemptFixture(t)
	promptID := f.addPrompt(t, model.SkillWriting)
	attemptID := f.start(t, 1, promptID)

	if err := f.svc.UpdateContent(attemptID, "too short"); err != nil {
		t.Fatalf("update content: %v", err)
	}
	_, err := f.svc.Submit(attemptID)
	var validation *service.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("want ValidationError, got %v", err)
	}
	if got := len(f.jobs.jobsForAttempt(attemptID)); got != 0 {
		t.Errorf("rejected submission created %d jobs", got)
	}

	attempt, _ := f.attempts.FindByID(attemptID)
	if attempt.Status != model.AttemptInProgress {
		t.Errorf("attempt status = %q, want in_progress", attempt.Status)
	}
}

func TestSubmit_SpeakingNeedsContentOrRecording(t *testing.T) {
	f := newAttemptFixture(t)
	promptID := f.addPrompt(t, model.SkillSpeaking)
	attemptID := f.start(t, 1, promptID)

	_, err := f.svc.Submit(attemptID)
	var validation *service.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("want ValidationError for empty speaking attempt, got %v", err)
	}

	if err := f.svc.UpdateContent(attemptID, "a transcript of my spoken answer"); err != nil {
		t.Fatalf("update content: %v", err)
	}
	if _, err := f.svc.Submit(attemptID); err != nil {
		t.Fatalf("submit with transcript: %v", err)
	}
}

func TestUpdateContent_OnlyWhileInProgress(t *testing.T) {
	f := newAttemptFixture(t)
	promptID := f.addPrompt(t, model.SkillWriting)
	attemptID := f.start(t, 1, promptID)

	if err := f.svc.UpdateContent(attemptID, "first draft"); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := f.svc.UpdateContent(attemptID, longEssay); err != nil {
		t.Fatalf("second save: %v", err)
	}
	attempt, _ := f.attempts.FindByID(attemptID)
	if attempt.Content != longEssay {
		t.Errorf("content = %q, last write should win", attempt.Content)
	}

	if _, err := f.svc.Submit(attemptID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	err := f.svc.UpdateContent(attemptID, "late edit")
	var invalid *service.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("want InvalidStateError after submit, got %v", err)
	}

	err = f.svc.UpdateContent(999, "ghost")
	var notFound *service.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("want NotFoundError for unknown attempt, got %v", err)
	}
}

func TestRescore_OnlyFromFailed(t *testing.T) {
	f := newAttemptFixture(t)
	promptID := f.addPrompt(t, model.SkillWriting)
	attemptID := f.start(t, 1, promptID)

	_, err := f.svc.Rescore(attemptID)
	var invalid *service.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("want InvalidStateError rescoring an in_progress attempt, got %v", err)
	}

	if err := f.svc.UpdateContent(attemptID, longEssay); err != nil {
		t.Fatalf("update content: %v", err)
	}
	if _, err := f.svc.Submit(attemptID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := f.svc.MarkFailed(attemptID, "scoring service unavailable"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	resp, err := f.svc.Rescore(attemptID)
	if err != nil {
		t.Fatalf("rescore: %v", err)
	}
	if resp.Status != string(model.AttemptSubmitted) {
		t.Errorf("status = %q, want submitted", resp.Status)
	}

	attempt, _ := f.attempts.FindByID(attemptID)
	if attempt.FailureReason != nil {
		t.Errorf("failure reason should be cleared, got %q", *attempt.FailureReason)
	}
	if got := len(f.jobs.jobsForAttempt(attemptID)); got != 2 {
		t.Errorf("rescore should add a fresh job: got %d jobs", got)
	}
}

func TestMarkScored_StaleJobGuard(t *testing.T) {
	f := newAttemptFixture(t)
	promptID := f.addPrompt(t, model.SkillWriting)
	attemptID := f.start(t, 1, promptID)

	// Not submitted yet: a stale scoring result must not land.
	err := f.svc.MarkScored(attemptID, &service.RawScore{Skill: model.SkillWriting, Band: 6.0})
	var invalid *service.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("want InvalidStateError, got %v", err)
	}

	if err := f.svc.UpdateContent(attemptID, longEssay); err != nil {
		t.Fatalf("update content: %v", err)
	}
	if _, err := f.svc.Submit(attemptID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := f.svc.MarkScored(attemptID, &service.RawScore{Skill: model.SkillWriting, Band: 6.0}); err != nil {
		t.Fatalf("mark scored: %v", err)
	}

	// Second result for the same cycle is rejected.
	err = f.svc.MarkScored(attemptID, &service.RawScore{Skill: model.SkillWriting, Band: 8.0})
	if !errors.As(err, &invalid) {
		t.Fatalf("want InvalidStateError on duplicate score, got %v", err)
	}

	detail, err := f.svc.GetAttempt(attemptID)
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if detail.Score == nil || detail.Score.Band != 6.0 {
		t.Errorf("score = %+v, want band 6.0", detail.Score)
	}
}

func TestMarkTeacherEvaluated(t *testing.T) {
	f := newAttemptFixture(t)
	promptID := f.addPrompt(t, model.SkillWriting)
	attemptID := f.start(t, 1, promptID)

	err := f.svc.MarkTeacherEvaluated(attemptID)
	var invalid *service.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("want InvalidStateError before scored, got %v", err)
	}

	if err := f.svc.UpdateContent(attemptID, longEssay); err != nil {
		t.Fatalf("update content: %v", err)
	}
	if _, err := f.svc.Submit(attemptID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := f.svc.MarkScored(attemptID, &service.RawScore{Skill: model.SkillWriting, Band: 7.0}); err != nil {
		t.Fatalf("mark scored: %v", err)
	}
	if err := f.svc.MarkTeacherEvaluated(attemptID); err != nil {
		t.Fatalf("teacher evaluation: %v", err)
	}

	attempt, _ := f.attempts.FindByID(attemptID)
	if attempt.Status != model.AttemptTeacherEvaluated {
		t.Errorf("status = %q, want evaluated_by_teacher", attempt.Status)
	}
}

func TestReconcileOrphans(t *testing.T) {
	f := newAttemptFixture(t)
	promptID := f.addPrompt(t, model.SkillWriting)

	old := time.Now().Add(-time.Hour)
	orphan := &model.Attempt{
		LearnerID:   1,
		PromptID:    promptID,
		Skill:       model.SkillWriting,
		Status:      model.AttemptSubmitted,
		Content:     longEssay,
		SubmittedAt: &old,
	}
	if err := f.attempts.Create(orphan); err != nil {
		t.Fatalf("create orphan: %v", err)
	}

	// A fresh submission with a live job must be left alone.
	coveredID := f.start(t, 2, promptID)
	if err := f.svc.UpdateContent(coveredID, longEssay); err != nil {
		t.Fatalf("update content: %v", err)
	}
	if _, err := f.svc.Submit(coveredID); err != nil {
		t.Fatalf("submit: %v", err)
	}

	report, err := f.svc.ReconcileOrphans()
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Requeued != 1 {
		t.Fatalf("requeued = %d, want 1", report.Requeued)
	}
	if got := len(f.jobs.jobsForAttempt(orphan.ID)); got != 1 {
		t.Errorf("orphan has %d jobs, want 1", got)
	}
	if got := len(f.jobs.jobsForAttempt(coveredID)); got != 1 {
		t.Errorf("covered attempt has %d jobs, want 1", got)
	}

	// Idempotent: a second sweep finds nothing.
	report, err = f.svc.ReconcileOrphans()
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if report.Requeued != 0 {
		t.Errorf("second sweep requeued %d, want 0", report.Requeued)
	}
}

func TestGetLearnerAttempts_IncludesBand(t *testing.T) {
	f := newAttemptFixture(t)
	promptID := f.addPrompt(t, model.SkillWriting)
	attemptID := f.start(t, 3, promptID)

	if err := f.svc.UpdateContent(attemptID, longEssay); err != nil {
		t.Fatalf("update content: %v", err)
	}
	if _, err := f.svc.Submit(attemptID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := f.svc.MarkScored(attemptID, &service.RawScore{Skill: model.SkillWriting, Band: 6.5}); err != nil {
		t.Fatalf("mark scored: %v", err)
	}

	summaries, err := f.svc.GetLearnerAttempts(3)
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("got %d summaries, want 1", len(summaries))
	}
	if summaries[0].Band == nil || *summaries[0].Band != 6.5 {
		t.Errorf("band = %v, want 6.5", summaries[0].Band)
	}
	if !strings.EqualFold(summaries[0].Status, string(model.AttemptScored)) {
		t.Errorf("status = %q, want scored", summaries[0].Status)
	}
}
