package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"git.home.luguber.info/inful/forpostctl/internal/foundation/errors"
	"git.home.luguber.info/inful/forpostctl/internal/logfields"
	"git.home.luguber.info/inful/forpostctl/internal/stream"
)

// Restarter is the part of the manager the auto-restart job drives.
type Restarter interface {
	AutoRestart() (stream.AutoRestart, error)
	StreamStatus(ctx context.Context) (stream.Status, error)
	RestartStream(ctx context.Context) (string, error)
}

// Scheduler wraps a gocron scheduler running the stream auto-restart job.
type Scheduler struct {
	scheduler gocron.Scheduler
	restarter Restarter

	mu     sync.Mutex
	jobID  uuid.UUID
	policy stream.AutoRestart
	// hour is the unit of AutoRestart.IntervalHours; tests shorten it.
	hour time.Duration
}

// NewScheduler creates a scheduler for r.
func NewScheduler(r Restarter) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryDaemon, "failed to create gocron scheduler").Build()
	}
	return &Scheduler{scheduler: s, restarter: r, hour: time.Hour}, nil
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	slog.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	slog.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// Sync reads the persisted policy and reschedules the job when it changed.
func (s *Scheduler) Sync(ctx context.Context) error {
	policy, err := s.restarter.AutoRestart()
	if err != nil {
		return err
	}
	return s.Schedule(ctx, policy)
}

// Schedule installs the job for policy, replacing any previous one. A disabled
// policy removes the job.
func (s *Scheduler) Schedule(ctx context.Context, policy stream.AutoRestart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if policy == s.policy && (s.jobID != uuid.Nil) == policy.Enabled {
		return nil
	}
	if s.jobID != uuid.Nil {
		if err := s.scheduler.RemoveJob(s.jobID); err != nil {
			slog.Warn("Failed to remove auto-restart job", logfields.Error(err))
		}
		s.jobID = uuid.Nil
	}
	s.policy = policy
	if !policy.Enabled {
		slog.Info("Auto-restart job disabled")
		return nil
	}

	interval := time.Duration(policy.IntervalHours) * s.hour
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.runAutoRestart, ctx),
		gocron.WithName(fmt.Sprintf("stream-autorestart-%dh", policy.IntervalHours)),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return errors.WrapError(err, errors.CategoryDaemon, "failed to create auto-restart job").
			WithContext("interval", interval.String()).
			Build()
	}
	s.jobID = job.ID()
	slog.Info("Auto-restart job scheduled", slog.Duration("interval", interval))
	return nil
}

// JobScheduled reports whether an auto-restart job is installed.
func (s *Scheduler) JobScheduled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobID != uuid.Nil
}

// runAutoRestart restarts a running stream unless the systemd timer already
// owns the schedule.
func (s *Scheduler) runAutoRestart(ctx context.Context) {
	st, err := s.restarter.StreamStatus(ctx)
	if err != nil {
		slog.Error("Auto-restart skipped: stream status unavailable", logfields.Error(err))
		return
	}
	if st.TimerActive {
		slog.Debug("Auto-restart skipped: timer unit active")
		return
	}
	if !st.Active {
		slog.Debug("Auto-restart skipped: stream not running")
		return
	}
	opID, err := s.restarter.RestartStream(ctx)
	if err != nil {
		slog.Error("Scheduled stream restart failed", logfields.OperationID(opID), logfields.Error(err))
		return
	}
	slog.Info("Scheduled stream restart completed", logfields.OperationID(opID))
}
