// Package worker runs the scoring pipeline's periodic tasks: draining the
// job queue and sweeping for orphaned submissions.
package worker

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog/log"
	"github.com/vmphat/bandlab/config"
	"github.com/vmphat/bandlab/internal/service"
)

// Worker owns the background scheduler. Jobs are skipped rather than stacked
// when a previous run overruns its interval.
type Worker struct {
	scheduler *gocron.Scheduler
	queue     service.QueueService
	attempts  service.AttemptService
	cfg       config.Queue
}

func New(queue service.QueueService, attempts service.AttemptService, cfg *config.Config) *Worker {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Worker{
		scheduler: s,
		queue:     queue,
		attempts:  attempts,
		cfg:       cfg.Queue,
	}
}

// Start registers both periodic tasks and runs the scheduler asynchronously.
func (w *Worker) Start() {
	w.scheduler.Every(w.cfg.WorkerInterval).Do(w.drainQueue)
	w.scheduler.Every(w.cfg.SweepInterval).Do(w.sweepOrphans)
	w.scheduler.StartAsync()
	log.Info().Dur("workerInterval", w.cfg.WorkerInterval).Dur("sweepInterval", w.cfg.SweepInterval).
		Msg("Background worker started")
}

// Stop halts the scheduler and waits for in-flight tasks to finish.
func (w *Worker) Stop() {
	w.scheduler.Stop()
	log.Info().Msg("Background worker stopped")
}

func (w *Worker) drainQueue() {
	report, err := w.queue.ProcessPending(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("Queue drain run failed")
		return
	}
	if report.Processed > 0 {
		log.Info().Int("processed", report.Processed).Int("succeeded", report.Succeeded).
			Int("failed", report.Failed).Int("retried", report.Retried).Msg("Queue drain run finished")
	}
}

func (w *Worker) sweepOrphans() {
	report, err := w.attempts.ReconcileOrphans()
	if err != nil {
		log.Error().Err(err).Msg("Orphan sweep failed")
		return
	}
	if report.Requeued > 0 {
		log.Warn().Int("requeued", report.Requeued).Msg("Orphan sweep re-enqueued submitted attempts")
	}
}
