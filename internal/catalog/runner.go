package catalog

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dronetrace/dronetrace/internal/logging"
)

const DefaultPollInterval = 2 * time.Second

// Runner polls for pending jobs and executes them one at a time.
type Runner struct {
	service      *Service
	repo         Repository
	logger       *slog.Logger
	pollInterval time.Duration
	running      atomic.Bool
	paused       atomic.Bool
	busy         atomic.Bool
}

func NewRunner(service *Service, repo Repository, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Runner{
		service:      service,
		repo:         repo,
		logger:       logging.WithComponent(logger, "runner"),
		pollInterval: DefaultPollInterval,
	}
}

// SetPollInterval changes how often pending jobs are checked. Call before Start.
func (r *Runner) SetPollInterval(d time.Duration) {
	if d > 0 {
		r.pollInterval = d
	}
}

// Start blocks until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}
	defer r.running.Store(false)

	r.logger.Info("job runner started", "poll_interval", r.pollInterval)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("job runner stopping")
			return
		case <-ticker.C:
			if !r.paused.Load() {
				r.processNextJob(ctx)
			}
		}
	}
}

func (r *Runner) Pause() {
	r.paused.Store(true)
	r.logger.Info("job runner paused")
}

func (r *Runner) Resume() {
	r.paused.Store(false)
	r.logger.Info("job runner resumed")
}

func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// IsBusy reports whether a job is executing right now.
func (r *Runner) IsBusy() bool {
	return r.busy.Load()
}

// processNextJob executes the oldest pending job. It reports whether one ran.
func (r *Runner) processNextJob(ctx context.Context) bool {
	jobs, err := r.repo.ListPendingJobs(ctx)
	if err != nil {
		r.logger.Error("failed to list pending jobs", "error", err)
		return false
	}
	if len(jobs) == 0 {
		return false
	}

	r.busy.Store(true)
	defer r.busy.Store(false)

	job := jobs[0]
	log := logging.WithJobID(r.logger, job.ID)
	log.Info("processing job", "type", job.Type)

	switch job.Type {
	case JobTypeConvert:
		source, err := r.repo.GetSource(ctx, job.SourceID)
		if err != nil || source == nil {
			r.repo.UpdateJobStatus(ctx, job.ID, JobStatusFailed, ErrSourceNotFound.Error())
			return true
		}
		if _, err := r.service.ExecuteConvert(ctx, job.ID, source); err != nil {
			log.Error("conversion failed", "error", err)
		}

	default:
		log.Warn("unknown job type", "type", job.Type)
		r.repo.UpdateJobStatus(ctx, job.ID, JobStatusFailed, "unknown job type")
	}
	return true
}

// GetActiveJobCount returns the number of running jobs among the latest 100.
func (r *Runner) GetActiveJobCount(ctx context.Context) int {
	jobs, err := r.repo.ListJobs(ctx, 100)
	if err != nil {
		return 0
	}
	count := 0
	for _, j := range jobs {
		if j.Status == JobStatusRunning {
			count++
		}
	}
	return count
}
