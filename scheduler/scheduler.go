package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/assets_backend/config"
	"bitbucket.org/mmdatafocus/assets_backend/models"
	"bitbucket.org/mmdatafocus/assets_backend/utils"
	"github.com/sirupsen/logrus"
)

var ErrStopped = errors.New("scheduler stopped")

const maxRearmBackoff = 30 * time.Second

// ConfigStore is the persistence the scheduler needs for the singleton config.
type ConfigStore interface {
	LoadScheduleConfig(ctx context.Context) (*models.ScheduleConfig, error)
	UpdateNextRoll(ctx context.Context, next time.Time) error
	UpdateLastRollOut(ctx context.Context, at time.Time) error
}

// RunFunc executes one report run for cfg.
type RunFunc func(ctx context.Context, cfg models.ScheduleConfig, trigger models.ReportTrigger) error

type Timer interface {
	Stop() bool
}

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

type Options struct {
	Location   *time.Location
	RunTimeout time.Duration
	Clock      Clock
	Logger     *logrus.Logger
}

// Scheduler keeps exactly one pending timer for the next occurrence of the
// persisted ScheduleConfig. Every arm recomputes from stored state, so a
// restart resumes the chain and occurrences missed while down are skipped.
type Scheduler struct {
	store      ConfigStore
	run        RunFunc
	clock      Clock
	loc        *time.Location
	runTimeout time.Duration
	logger     *logrus.Logger

	mu      sync.Mutex
	timer   Timer
	gen     uint64
	stopped bool
}

func New(store ConfigStore, run RunFunc, opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.Location == nil {
		opts.Location = FixedZone(8 * time.Hour)
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 10 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = config.GetLogger()
	}
	return &Scheduler{
		store:      store,
		run:        run,
		clock:      opts.Clock,
		loc:        opts.Location,
		runTimeout: opts.RunTimeout,
		logger:     opts.Logger,
	}
}

func (s *Scheduler) Location() *time.Location {
	return s.loc
}

// Arm cancels any pending timer, computes the next occurrence from the stored
// config, persists it as next_roll and schedules one timer for it.
func (s *Scheduler) Arm(ctx context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armLocked(ctx)
}

func (s *Scheduler) armLocked(ctx context.Context) (time.Time, error) {
	s.cancelLocked()
	if s.stopped {
		return time.Time{}, ErrStopped
	}

	cfg, err := s.store.LoadScheduleConfig(ctx)
	if err != nil {
		return time.Time{}, err
	}
	now := s.clock.Now()
	next, err := NextOccurrence(*cfg, now, s.loc)
	if err != nil {
		return time.Time{}, err
	}
	if err := s.store.UpdateNextRoll(ctx, next); err != nil {
		// the in-memory timer still drives the chain; the next arm rewrites next_roll
		config.LogError(s.logger, "scheduler.go", "Arm", "persist next_roll", next, err)
	}

	gen := s.gen
	s.timer = s.clock.AfterFunc(next.Sub(now), func() { s.fire(gen) })
	s.logger.WithFields(logrus.Fields{
		"field":     "scheduler",
		"frequency": cfg.Frequency,
		"next_roll": next.Format(time.RFC3339),
	}).Info("report schedule armed")
	return next, nil
}

func (s *Scheduler) cancelLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// fire runs the pipeline for a timer armed under gen, records the roll-out
// and re-arms. Errors are logged and swallowed so the chain continues.
func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if s.stopped || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	if err := s.runOnce(context.Background(), models.ReportTriggerScheduled); err != nil {
		config.LogError(s.logger, "scheduler.go", "fire", "scheduled report run", gen, err)
	}
	s.rearm(1)
}

// rearm arms the next occurrence. On failure it schedules another attempt
// with capped exponential backoff so a transient store error cannot end the chain.
// Arming and scheduling the retry happen under one lock hold.
func (s *Scheduler) rearm(attempt int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.armLocked(context.Background())
	if err == nil || errors.Is(err, ErrStopped) || errors.Is(err, utils.ErrScheduleNotConfigured) {
		return
	}
	delay := rearmBackoff(attempt)
	config.LogError(s.logger, "scheduler.go", "rearm", "re-arm failed; retrying in "+delay.String(), attempt, err)
	gen := s.gen
	s.timer = s.clock.AfterFunc(delay, func() { s.retryArm(gen, attempt+1) })
}

func (s *Scheduler) retryArm(gen uint64, attempt int) {
	s.mu.Lock()
	if s.stopped || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()
	s.rearm(attempt)
}

func rearmBackoff(attempt int) time.Duration {
	sleep := time.Second * time.Duration(1<<min(attempt, 5))
	if sleep > maxRearmBackoff {
		sleep = maxRearmBackoff
	}
	return sleep
}

// FireNow runs the pipeline immediately outside the timer chain. The pending
// timer is left untouched; last_roll_out is recorded as for a scheduled run.
func (s *Scheduler) FireNow(ctx context.Context) error {
	return s.runOnce(ctx, models.ReportTriggerManual)
}

func (s *Scheduler) runOnce(ctx context.Context, trigger models.ReportTrigger) error {
	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	cfg, err := s.store.LoadScheduleConfig(runCtx)
	if err != nil {
		return err
	}
	runErr := s.run(runCtx, *cfg, trigger)

	// detached from runCtx: a run that used its whole budget still records the roll-out
	if err := s.store.UpdateLastRollOut(context.WithoutCancel(ctx), s.clock.Now()); err != nil {
		config.LogError(s.logger, "scheduler.go", "runOnce", "persist last_roll_out", trigger, err)
	}
	return runErr
}

// Stop cancels the pending timer. Later fires and arms are no-ops.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.stopped = true
}
