// Package poller implements the client-side progress observer for a
// submitted attempt: one goroutine, two periodic timers and a one-shot
// handoff, all cancelled together on teardown.
package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vmphat/bandlab/config"
	"github.com/vmphat/bandlab/internal/model"
)

// UIState is what the progress indicator shows; it is derived from, but not
// identical to, the attempt status.
type UIState string

const (
	StateProcessing UIState = "processing"
	StateCompleted  UIState = "completed"
	StateFailed     UIState = "failed"
)

// Snapshot is one observed frame of the progress indicator. Progress is
// cosmetic liveness only until State becomes completed, at which point it
// snaps to 100.
type Snapshot struct {
	State    UIState
	Progress int
}

// StatusFetcher reads the authoritative attempt status from the backend.
type StatusFetcher func(ctx context.Context) (model.AttemptStatus, error)

// ProgressPoller drives a user-facing progress indicator for one attempt.
// It runs two independently-ticking timers:
//
//   - a status poll that re-reads the attempt and maps it to a UIState;
//   - a cosmetic progress tick that creeps toward a cap below 100%.
//
// On completion a one-shot handoff fires after a short delay unless the
// poller is stopped first. Stop cancels everything and returns only after
// the loop has exited.
type ProgressPoller struct {
	cfg     config.Poller
	fetch   StatusFetcher
	observe func(Snapshot)
	handoff func()

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func New(cfg config.Poller, fetch StatusFetcher, observe func(Snapshot), handoff func()) *ProgressPoller {
	if observe == nil {
		observe = func(Snapshot) {}
	}
	if handoff == nil {
		handoff = func() {}
	}
	return &ProgressPoller{
		cfg:     cfg,
		fetch:   fetch,
		observe: observe,
		handoff: handoff,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the polling loop. Call Stop (or cancel ctx) on teardown.
func (p *ProgressPoller) Start(ctx context.Context) {
	go p.run(ctx)
}

// Stop cancels both timers and any pending handoff, then waits for the loop
// to exit. Must not be called from the observe/handoff callbacks.
func (p *ProgressPoller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
}

func (p *ProgressPoller) run(ctx context.Context) {
	defer close(p.done)

	statusTicker := time.NewTicker(p.cfg.StatusInterval)
	defer statusTicker.Stop()
	progressTicker := time.NewTicker(p.cfg.ProgressInterval)
	defer progressTicker.Stop()

	var handoffC <-chan time.Time
	var handoffTimer *time.Timer
	defer func() {
		if handoffTimer != nil {
			handoffTimer.Stop()
		}
	}()

	state := StateProcessing
	progress := 0
	p.observe(Snapshot{State: state, Progress: progress})

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return

		case <-progressTicker.C:
			if state != StateProcessing || progress >= p.cfg.ProgressCap {
				continue
			}
			progress += p.cfg.ProgressStep
			if progress > p.cfg.ProgressCap {
				progress = p.cfg.ProgressCap
			}
			p.observe(Snapshot{State: state, Progress: progress})

		case <-statusTicker.C:
			status, err := p.fetch(ctx)
			if err != nil {
				// Transient poll failure: keep the current UI state. Only an
				// explicit failed status may flip the indicator to failed.
				log.Debug().Err(err).Msg("Status poll failed, keeping current state")
				continue
			}
			switch status {
			case model.AttemptScored, model.AttemptTeacherEvaluated:
				state = StateCompleted
				progress = 100
				p.observe(Snapshot{State: state, Progress: progress})
				statusTicker.Stop()
				progressTicker.Stop()
				handoffTimer = time.NewTimer(p.cfg.HandoffDelay)
				handoffC = handoffTimer.C
			case model.AttemptFailed:
				state = StateFailed
				p.observe(Snapshot{State: state, Progress: progress})
				return
			default:
				// Still in flight.
			}

		case <-handoffC:
			p.handoff()
			return
		}
	}
}

// NewHTTPStatusFetcher polls the attempt detail endpoint of the practice API
// and extracts the status field.
func NewHTTPStatusFetcher(client *http.Client, baseURL string, attemptID uint) StatusFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	endpoint := fmt.Sprintf("%s/api/v1/attempts/%d", baseURL, attemptID)
	return func(ctx context.Context) (model.AttemptStatus, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return "", err
		}
		resp, err := client.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("attempt status poll returned %d", resp.StatusCode)
		}
		var payload struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return "", err
		}
		return model.AttemptStatus(payload.Status), nil
	}
}
