package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ScheduleTime is a time of day at which the scheduler fires.
type ScheduleTime struct {
	Hour   int
	Minute int
}

func (st ScheduleTime) String() string {
	return fmt.Sprintf("%02d:%02d", st.Hour, st.Minute)
}

// ParseScheduleTime parses a time string in HH:MM format.
func ParseScheduleTime(s string) (ScheduleTime, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return ScheduleTime{}, fmt.Errorf("invalid time format (expected HH:MM): %w", err)
	}

	if hour < 0 || hour > 23 {
		return ScheduleTime{}, fmt.Errorf("invalid hour: %d (must be 0-23)", hour)
	}
	if minute < 0 || minute > 59 {
		return ScheduleTime{}, fmt.Errorf("invalid minute: %d (must be 0-59)", minute)
	}

	return ScheduleTime{Hour: hour, Minute: minute}, nil
}

// JobProvider lists the jobs of one scheduled run.
type JobProvider func(ctx context.Context) ([]Job, error)

type Config struct {
	ScheduleTimes []string
	WorkerCount   int
	JobDelay      time.Duration
	QueueSize     int
	RunOnStartup  bool
	JobProvider   JobProvider
	// Now defaults to time.Now in UTC.
	Now func() time.Time
}

// Scheduler feeds the jobs of its provider to a worker pool at fixed times
// of day.
type Scheduler struct {
	workerPool    *WorkerPool
	scheduleTimes []ScheduleTime
	runOnStartup  bool
	jobProvider   JobProvider
	now           func() time.Time
	log           zerolog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastRun string
	mu      sync.Mutex
}

func New(cfg Config, log zerolog.Logger) (*Scheduler, error) {
	scheduleTimes := make([]ScheduleTime, 0, len(cfg.ScheduleTimes))
	for _, s := range cfg.ScheduleTimes {
		st, err := ParseScheduleTime(s)
		if err != nil {
			return nil, fmt.Errorf("failed to parse schedule time %q: %w", s, err)
		}
		scheduleTimes = append(scheduleTimes, st)
	}
	if len(scheduleTimes) == 0 {
		return nil, fmt.Errorf("at least one schedule time is required")
	}
	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("at least one worker is required")
	}

	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	log = log.With().Str("component", "scheduler").Logger()
	ctx, cancel := context.WithCancel(context.Background())

	log.Info().
		Strs("times", cfg.ScheduleTimes).
		Int("workers", cfg.WorkerCount).
		Dur("job_delay", cfg.JobDelay).
		Msg("scheduler initialized")

	return &Scheduler{
		workerPool:    NewWorkerPool(cfg.WorkerCount, cfg.JobDelay, cfg.QueueSize, log),
		scheduleTimes: scheduleTimes,
		runOnStartup:  cfg.RunOnStartup,
		jobProvider:   cfg.JobProvider,
		now:           now,
		log:           log,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// Start launches the worker pool and the scheduling loop.
func (s *Scheduler) Start() {
	s.workerPool.Start()

	if s.runOnStartup {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runJobs()
		}()
	}

	s.wg.Add(1)
	go s.scheduleLoop()

	s.log.Info().Time("next_run", s.NextRun()).Msg("scheduler started")
}

func (s *Scheduler) scheduleLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if now := s.now(); s.shouldRun(now) {
				s.log.Info().Str("at", now.Format("15:04")).Msg("scheduled run triggered")
				s.runJobs()
			}
		}
	}
}

// shouldRun reports whether now matches a schedule time not yet run in the
// same minute.
func (s *Scheduler) shouldRun(now time.Time) bool {
	key := now.Format("2006-01-02T15:04")

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastRun == key {
		return false
	}
	for _, st := range s.scheduleTimes {
		if now.Hour() == st.Hour && now.Minute() == st.Minute {
			s.lastRun = key
			return true
		}
	}
	return false
}

// runJobs asks the provider for jobs and queues them.
func (s *Scheduler) runJobs() int {
	if s.jobProvider == nil {
		s.log.Warn().Msg("no job provider configured")
		return 0
	}

	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	jobs, err := s.jobProvider(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to fetch jobs")
		return 0
	}
	if len(jobs) == 0 {
		s.log.Info().Msg("no jobs to process")
		return 0
	}
	return s.workerPool.SubmitBatch(jobs)
}

// TriggerNow runs the provider immediately, outside the schedule.
func (s *Scheduler) TriggerNow() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runJobs()
	}()
}

// Shutdown stops scheduling, then drains the worker pool.
func (s *Scheduler) Shutdown(timeout time.Duration) {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		s.log.Warn().Msg("timeout waiting for scheduler loop to stop")
	}

	s.workerPool.ShutdownWithTimeout(timeout)
	s.log.Info().Msg("scheduler stopped")
}

// NextRun returns the next scheduled run after the current time.
func (s *Scheduler) NextRun() time.Time {
	return nextRun(s.now(), s.scheduleTimes)
}

func nextRun(now time.Time, times []ScheduleTime) time.Time {
	var next time.Time
	for _, st := range times {
		at := time.Date(now.Year(), now.Month(), now.Day(), st.Hour, st.Minute, 0, 0, now.Location())
		if !at.After(now) {
			at = at.AddDate(0, 0, 1)
		}
		if next.IsZero() || at.Before(next) {
			next = at
		}
	}
	return next
}
