// Package scheduler runs the periodic maintenance jobs of the mail server on
// cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/robfisher/mailshare/internal/config"
)

// Names of the jobs registered by AddJobsFromConfig.
const (
	JobTagClouds    = "tag_clouds"
	JobIndexRebuild = "index_rebuild"
	JobIMAPPoll     = "imap_poll"
)

// JobFunc is the callback invoked when a scheduled job should run.
type JobFunc func(ctx context.Context) error

// Jobs holds the callbacks AddJobsFromConfig schedules. Nil entries are skipped.
type Jobs struct {
	TagClouds    JobFunc
	IndexRebuild JobFunc
	IMAPPoll     JobFunc
}

// JobStatus represents the state of a scheduled job.
type JobStatus struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	LastRun   time.Time `json:"last_run,omitempty"`
	NextRun   time.Time `json:"next_run"`
	Schedule  string    `json:"schedule"`
	LastError string    `json:"last_error,omitempty"`
}

// Scheduler manages cron-based job scheduling.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu        sync.RWMutex
	jobs      map[string]cron.EntryID // name -> cron entry ID
	funcs     map[string]JobFunc      // name -> callback
	schedules map[string]string       // name -> cron expression
	running   map[string]bool         // name -> currently running
	lastRun   map[string]time.Time    // name -> last successful run
	lastErr   map[string]error        // name -> last error

	ctx     context.Context    // cancelled on Stop
	cancel  context.CancelFunc // cancels ctx
	wg      sync.WaitGroup     // tracks running job goroutines
	started bool               // true after Start(), false after Stop()
	stopped bool               // true after Stop()
}

// New creates an empty Scheduler.
func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:      cron.New(cron.WithParser(newParser())),
		logger:    slog.Default(),
		jobs:      make(map[string]cron.EntryID),
		funcs:     make(map[string]JobFunc),
		schedules: make(map[string]string),
		running:   make(map[string]bool),
		lastRun:   make(map[string]time.Time),
		lastErr:   make(map[string]error),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func newParser() cron.Parser {
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
}

// WithLogger sets the logger for the scheduler.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// AddJob schedules fn under name using the given cron expression, replacing
// any job already registered under that name.
func (s *Scheduler) AddJob(name, cronExpr string, fn JobFunc) error {
	if fn == nil {
		return fmt.Errorf("job %s has no function", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobs[name]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
		delete(s.schedules, name)
	}

	entryID, err := s.cron.AddFunc(cronExpr, func() {
		s.mu.Lock()
		if s.stopped || s.running[name] {
			s.mu.Unlock()
			return
		}
		s.running[name] = true
		s.wg.Add(1)
		s.mu.Unlock()
		s.run(name)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	s.jobs[name] = entryID
	s.funcs[name] = fn
	s.schedules[name] = cronExpr
	s.logger.Info("scheduled job",
		"job", name,
		"schedule", cronExpr,
		"next_run", s.cron.Entry(entryID).Next)

	return nil
}

// AddJobsFromConfig schedules the tag cloud refresh, the index rebuild when
// the index backend is selected, and mailbox polling when a server is
// configured.
// Returns the number of jobs scheduled and any errors encountered.
func (s *Scheduler) AddJobsFromConfig(cfg *config.Config, jobs Jobs) (int, []error) {
	type planned struct {
		name     string
		schedule string
		fn       JobFunc
	}
	plan := []planned{{JobTagClouds, cfg.TagCloud.Schedule, jobs.TagClouds}}
	if cfg.Search.Backend == config.BackendIndex {
		plan = append(plan, planned{JobIndexRebuild, cfg.Search.IndexSchedule, jobs.IndexRebuild})
	}
	if cfg.IMAP.Enabled() {
		plan = append(plan, planned{JobIMAPPoll, cfg.IMAP.Schedule, jobs.IMAPPoll})
	}

	var errs []error
	scheduled := 0
	for _, p := range plan {
		if p.fn == nil || p.schedule == "" {
			continue
		}
		if err := s.AddJob(p.name, p.schedule, p.fn); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.name, err))
		} else {
			scheduled++
		}
	}
	return scheduled, errs
}

// RemoveJob removes a job's schedule.
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobs[name]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
		delete(s.funcs, name)
		delete(s.schedules, name)
		s.logger.Info("removed schedule", "job", name)
	}
}

// Start begins executing scheduled jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.started = true
	s.stopped = false
	n := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", n)
}

// IsRunning returns true if the scheduler has been started and not yet stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started && !s.stopped
}

// Stop stops the scheduler, cancels running jobs and waits for them to
// finish. Returns a context that is done when all work completes.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("scheduler stopping")

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		close(done)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-done
		cancel()
	}()
	return ctx
}

// run executes a job (called by cron or TriggerJob).
// The caller must have already called wg.Add(1) and set running[name] = true.
func (s *Scheduler) run(name string) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.running[name] = false
		s.mu.Unlock()
	}()

	s.mu.RLock()
	fn := s.funcs[name]
	s.mu.RUnlock()
	if fn == nil {
		return
	}

	s.logger.Info("starting job", "job", name)
	start := time.Now()

	err := fn(s.ctx)

	s.mu.Lock()
	if err != nil {
		s.lastErr[name] = err
		s.logger.Error("job failed",
			"job", name,
			"duration", time.Since(start),
			"error", err)
	} else {
		s.lastRun[name] = time.Now()
		s.lastErr[name] = nil
		s.logger.Info("job completed",
			"job", name,
			"duration", time.Since(start))
	}
	s.mu.Unlock()
}

// IsScheduled returns true if a job has been registered under name.
func (s *Scheduler) IsScheduled(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.jobs[name]
	return exists
}

// TriggerJob runs a job immediately, outside of its schedule.
// Returns an error if the job is already running, is not scheduled, or the
// scheduler has been stopped.
func (s *Scheduler) TriggerJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler is stopped")
	}
	if _, exists := s.jobs[name]; !exists {
		return fmt.Errorf("job %s is not scheduled", name)
	}
	if s.running[name] {
		return fmt.Errorf("job %s is already running", name)
	}

	s.running[name] = true
	s.wg.Add(1)
	go s.run(name)
	return nil
}

// Status returns the state of every scheduled job, ordered by name.
func (s *Scheduler) Status() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]JobStatus, 0, len(s.jobs))
	for name, entryID := range s.jobs {
		entry := s.cron.Entry(entryID)
		status := JobStatus{
			Name:     name,
			Running:  s.running[name],
			LastRun:  s.lastRun[name],
			NextRun:  entry.Next,
			Schedule: s.schedules[name],
		}
		if err := s.lastErr[name]; err != nil {
			status.LastError = err.Error()
		}
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

// ValidateCronExpr validates a cron expression without scheduling anything.
func ValidateCronExpr(expr string) error {
	if _, err := newParser().Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}
