// Package digest sends each user a periodic summary of their pending tasks
// on a cron schedule.
package digest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"georemind/internal/domain/task"
	"georemind/internal/shared/async"
	"georemind/internal/shared/logging"
)

const (
	DefaultSchedule = "0 8 * * *"
	DefaultMaxItems = 5
	DefaultTimeout  = time.Minute

	// Title is the notification title of every digest.
	Title = "Pending tasks"
)

// Config holds digest configuration.
type Config struct {
	Enabled  bool
	Schedule string // standard 5-field cron expression
	MaxItems int
	Timeout  time.Duration
	// ConcurrencyPolicy is "skip" or "delay" for runs that overlap.
	ConcurrencyPolicy string
}

// Notifier delivers one digest to a user.
type Notifier interface {
	NotifyUser(ctx context.Context, user task.UserContext, title, message string) error
}

// Report summarizes one digest run.
type Report struct {
	Users    int
	Notified int
	Skipped  int
	Failed   int
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Scheduler) { s.logger = logging.OrNop(logger) }
}

// Scheduler runs the digest job on its cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	store    task.Store
	notifier Notifier
	config   Config
	schedule cron.Schedule
	logger   logging.Logger

	mu       sync.Mutex
	entryID  cron.EntryID
	started  bool
	stopped  chan struct{}
	stopOnce sync.Once
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// New validates cfg and creates a Scheduler. Zero fields take defaults.
func New(cfg Config, store task.Store, notifier Notifier, opts ...Option) (*Scheduler, error) {
	if store == nil || notifier == nil {
		return nil, errors.New("digest: store and notifier are required")
	}
	if strings.TrimSpace(cfg.Schedule) == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultMaxItems
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	schedule, err := parser.Parse(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("digest: invalid schedule %q: %w", cfg.Schedule, err)
	}

	s := &Scheduler{
		store:    store,
		notifier: notifier,
		config:   cfg,
		schedule: schedule,
		logger:   logging.Nop(),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cron = newCron(cfg.ConcurrencyPolicy, s.logger)
	return s, nil
}

func newCron(policy string, logger logging.Logger) *cron.Cron {
	var wrapper cron.JobWrapper
	switch p := strings.ToLower(strings.TrimSpace(policy)); p {
	case "delay":
		wrapper = cron.DelayIfStillRunning(cron.DefaultLogger)
	case "skip", "":
		wrapper = cron.SkipIfStillRunning(cron.DefaultLogger)
	default:
		logger.Warn("Digest: unknown concurrency policy %q, defaulting to skip", p)
		wrapper = cron.SkipIfStillRunning(cron.DefaultLogger)
	}
	return cron.New(cron.WithParser(parser), cron.WithChain(wrapper))
}

// Start registers the digest job and starts the cron loop. The scheduler
// stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Digest disabled by config")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	entryID, err := s.cron.AddFunc(s.config.Schedule, s.runScheduled)
	if err != nil {
		return fmt.Errorf("register digest job: %w", err)
	}
	s.entryID = entryID
	s.started = true
	s.cron.Start()
	s.logger.Info("Digest scheduled (schedule=%s)", s.config.Schedule)

	async.Go(s.logger, "digest.stop", func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.stopped:
		}
	})
	return nil
}

// Stop waits for a running digest to finish and stops the cron loop. Safe
// to call multiple times.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		stopCtx := s.cron.Stop()
		<-stopCtx.Done()
		close(s.stopped)
		s.logger.Info("Digest stopped")
	})
}

// Done is closed once the scheduler has fully stopped.
func (s *Scheduler) Done() <-chan struct{} {
	return s.stopped
}

// Next returns the first scheduled run after from.
func (s *Scheduler) Next(from time.Time) time.Time {
	return s.schedule.Next(from)
}

func (s *Scheduler) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()
	report, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Warn("Digest run failed: %v", err)
		return
	}
	s.logger.Info("Digest run: users=%d notified=%d skipped=%d failed=%d",
		report.Users, report.Notified, report.Skipped, report.Failed)
}

// RunOnce sends one digest to every user with pending tasks. A failed
// delivery is counted and does not stop the run.
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list users: %w", err)
	}

	report := Report{Users: len(users)}
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		user := task.UserContext{UserID: userID}
		pending, err := s.store.ListTasks(ctx, user, task.ListFilter{Status: task.StatusPending})
		if err != nil {
			s.logger.Warn("Digest: list tasks for %s: %v", userID, err)
			report.Failed++
			continue
		}
		if len(pending) == 0 {
			report.Skipped++
			continue
		}
		if err := s.notifier.NotifyUser(ctx, user, Title, Compose(pending, s.config.MaxItems)); err != nil {
			s.logger.Warn("Digest: notify %s: %v", userID, err)
			report.Failed++
			continue
		}
		report.Notified++
	}
	return report, nil
}

// Compose renders the digest body, listing at most limit labels.
func Compose(pending []*task.Task, limit int) string {
	if limit <= 0 {
		limit = DefaultMaxItems
	}
	labels := make([]string, 0, min(len(pending), limit))
	for _, t := range pending {
		if len(labels) == limit {
			break
		}
		labels = append(labels, t.Label)
	}

	noun := "tasks"
	if len(pending) == 1 {
		noun = "task"
	}
	var list string
	if rest := len(pending) - len(labels); rest > 0 {
		list = strings.Join(labels, ", ") + fmt.Sprintf(" and %d more", rest)
	} else if len(labels) > 1 {
		list = strings.Join(labels[:len(labels)-1], ", ") + " and " + labels[len(labels)-1]
	} else if len(labels) == 1 {
		list = labels[0]
	}
	return fmt.Sprintf("You have %d pending %s: %s", len(pending), noun, list)
}
