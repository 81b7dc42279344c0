package stories

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/storyreel/storyreel-agent/internal/logging"
	"github.com/storyreel/storyreel-agent/internal/sources"
)

const configKeyPaused = "runner_paused"

// ErrRunInProgress is returned by RunOnce when another run is active.
var ErrRunInProgress = errors.New("run already in progress")

// Runner executes runs one at a time: on start, at every scheduled time and
// on manual triggers.
type Runner struct {
	service     *Service
	repo        Repository
	source      sources.PostSource
	communities []string
	recorder    Recorder
	schedule    cron.Schedule
	logger      *slog.Logger

	trigger chan string
	running atomic.Bool
	busy    atomic.Bool
	paused  atomic.Bool

	mu      sync.Mutex
	lastRun *Run
}

// ParseSchedule accepts a standard five-field cron expression or a
// descriptor such as "@daily" or "@every 2h". An empty spec runs every
// fallback interval.
func ParseSchedule(spec string, fallback time.Duration) (cron.Schedule, error) {
	if spec == "" {
		if fallback <= 0 {
			fallback = 6 * time.Hour
		}
		return cron.Every(fallback), nil
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return sched, nil
}

func NewRunner(service *Service, repo Repository, source sources.PostSource, communities []string, recorder Recorder, schedule cron.Schedule, logger *slog.Logger) *Runner {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if schedule == nil {
		schedule = cron.Every(6 * time.Hour)
	}
	return &Runner{
		service:     service,
		repo:        repo,
		source:      source,
		communities: communities,
		recorder:    recorder,
		schedule:    schedule,
		logger:      logger,
		trigger:     make(chan string, 1),
	}
}

// Start runs immediately, then at each scheduled time or trigger until ctx
// is done.
// A persisted pause is restored first.
func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}
	defer r.running.Store(false)

	if v, err := r.repo.GetConfig(ctx, configKeyPaused); err == nil && v == "true" {
		r.paused.Store(true)
		r.logger.Info("runner restored paused state")
	}

	r.logger.Info("runner started", "communities", r.communities)

	r.runIfActive(ctx, TriggerStartup)

	next := r.schedule.Next(time.Now())
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()
	r.logger.Info("next scheduled run", "at", next.Format(time.RFC3339))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("runner stopping")
			return
		case <-timer.C:
			r.runIfActive(ctx, TriggerInterval)
			// runs that overlap a scheduled time skip it
			next = r.schedule.Next(time.Now())
			timer.Reset(time.Until(next))
			r.logger.Debug("next scheduled run", "at", next.Format(time.RFC3339))
		case reason := <-r.trigger:
			r.runIfActive(ctx, reason)
		}
	}
}

func (r *Runner) runIfActive(ctx context.Context, reason string) {
	if r.paused.Load() {
		r.logger.Debug("runner paused, skipping run", "trigger", reason)
		return
	}
	if _, err := r.RunOnce(ctx, reason); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error("run failed", "trigger", reason, "error", err)
	}
}

// Trigger requests a run. It returns false when a request is already queued.
func (r *Runner) Trigger() bool {
	select {
	case r.trigger <- TriggerManual:
		return true
	default:
		return false
	}
}

func (r *Runner) Pause() {
	r.paused.Store(true)
	r.persistPaused(true)
	r.logger.Info("runner paused")
}

func (r *Runner) Resume() {
	r.paused.Store(false)
	r.persistPaused(false)
	r.logger.Info("runner resumed")
}

func (r *Runner) persistPaused(paused bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.repo.SetConfig(ctx, configKeyPaused, fmt.Sprintf("%t", paused)); err != nil {
		r.logger.Warn("failed to persist paused state", "error", err)
	}
}

func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// IsBusy reports whether a run is executing right now.
func (r *Runner) IsBusy() bool {
	return r.busy.Load()
}

// LastRun returns a copy of the most recent run started by this process.
func (r *Runner) LastRun() *Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastRun == nil {
		return nil
	}
	cp := *r.lastRun
	return &cp
}

func (r *Runner) setLastRun(run *Run) {
	r.mu.Lock()
	cp := *run
	r.lastRun = &cp
	r.mu.Unlock()
}

// RunOnce fetches every community and processes its posts in order.
func (r *Runner) RunOnce(ctx context.Context, reason string) (*Run, error) {
	if r.busy.Swap(true) {
		return nil, ErrRunInProgress
	}
	defer r.busy.Store(false)

	now := time.Now()
	run := &Run{
		ID:          NewID(),
		TriggeredBy: reason,
		Status:      RunStatusRunning,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.repo.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	r.setLastRun(run)
	r.recorder.RunStarted()

	logger := logging.WithRunID(r.logger, run.ID)
	logger.Info("run started", "trigger", reason)

	runErr := r.execute(ctx, logger, run)

	status, msg := RunStatusCompleted, ""
	if runErr != nil {
		status, msg = RunStatusFailed, runErr.Error()
	}
	run.Status, run.Error = status, msg

	// the run context may already be cancelled
	finishCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.repo.UpdateRunProgress(finishCtx, run); err != nil {
		logger.Warn("failed to save run progress", "error", err)
	}
	if err := r.repo.FinishRun(finishCtx, run.ID, status, msg); err != nil {
		logger.Warn("failed to finish run", "error", err)
	}
	r.setLastRun(run)
	r.recorder.RunFinished(status, time.Since(now))

	logger.Info("run finished",
		"status", status,
		"posts_seen", run.PostsSeen,
		"posts_admitted", run.PostsAdmitted,
		"clips_rendered", run.ClipsRendered,
		"clips_published", run.ClipsPublished,
		"duration_ms", time.Since(now).Milliseconds(),
	)
	return run, runErr
}

func (r *Runner) execute(ctx context.Context, logger *slog.Logger, run *Run) error {
	for _, community := range r.communities {
		if err := ctx.Err(); err != nil {
			return err
		}
		posts := r.source.Fetch(ctx, community)
		r.recorder.PostsFetched(community, len(posts))

		for _, post := range posts {
			if err := ctx.Err(); err != nil {
				return err
			}
			run.PostsSeen++

			res, err := r.service.ProcessPost(ctx, run.ID, post)
			if res != nil {
				if res.Admitted {
					run.PostsAdmitted++
				}
				run.ClipsRendered += res.ClipsRendered
				run.ClipsPublished += res.ClipsPublished
			}
			if err != nil {
				return err
			}

			if err := r.repo.UpdateRunProgress(ctx, run); err != nil {
				logger.Warn("failed to save run progress", "error", err)
			}
			r.setLastRun(run)
		}
	}
	return nil
}
