package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"georemind/internal/shared/async"
	sherrors "georemind/internal/shared/errors"
	"georemind/internal/shared/logging"
)

// Effect is a notification side effect run once per tick. Effects run
// independently of each other; Cancel waits for the ones in flight.
type Effect struct {
	Name string
	Fn   func(ctx context.Context, r Reminder) error
}

// Scheduler is the per-session reminder state machine:
//
//	Idle -> Waiting -> Firing -> Exhausted
//	any non-terminal state -> Cancelled
//
// Waiting and Firing are backed by a single armed time.AfterFunc handle; no
// goroutine is parked between ticks.
type Scheduler struct {
	subject     Subject
	cfg         Config
	effects     []Effect
	onTick      func(Reminder) bool
	onExhausted func(Reminder)
	baseCtx     context.Context
	logger      logging.Logger
	now         func() time.Time

	effectCtx   context.Context
	stopEffects context.CancelFunc
	inflight    sync.WaitGroup

	mu        sync.Mutex
	state     State
	sent      int
	timer     *time.Timer
	startedAt time.Time
	nextAt    time.Time
	done      chan struct{}
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithEffect adds a per-tick side effect.
func WithEffect(name string, fn func(ctx context.Context, r Reminder) error) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.effects = append(s.effects, Effect{Name: name, Fn: fn})
		}
	}
}

// WithTickHook registers a gate called synchronously before every tick while
// the scheduler lock is held. Returning false vetoes the tick and cancels the
// scheduler. It must not block or call back into the scheduler.
func WithTickHook(fn func(Reminder) bool) Option {
	return func(s *Scheduler) { s.onTick = fn }
}

// WithExhaustedHook registers a hook called synchronously by the capping tick
// while the scheduler lock is held. It must not block or call back into the
// scheduler.
func WithExhaustedHook(fn func(Reminder)) Option {
	return func(s *Scheduler) { s.onExhausted = fn }
}

// WithContext sets the context handed to effects.
func WithContext(ctx context.Context) Option {
	return func(s *Scheduler) {
		if ctx != nil {
			s.baseCtx = ctx
		}
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Scheduler) { s.logger = logging.OrNop(logger) }
}

// WithClock overrides the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates an idle scheduler.
func New(subject Subject, cfg Config, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{
		subject: subject,
		cfg:     cfg,
		baseCtx: context.Background(),
		logger:  logging.NewComponentLogger("ReminderScheduler"),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.effectCtx, s.stopEffects = context.WithCancel(s.baseCtx)
	return s, nil
}

// Start moves Idle to Waiting and arms the initial delay.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return fmt.Errorf("scheduler already started (state=%s)", s.state)
	}
	s.state = StateWaiting
	s.startedAt = s.now()
	s.armLocked(s.cfg.InitialDelay, s.onDelayElapsed)
	s.logger.Debug("Reminder for %s armed: first in %s, every %s, max %d",
		s.subject.TaskID, s.cfg.InitialDelay+s.cfg.Interval, s.cfg.Interval, s.cfg.MaxReminders)
	return nil
}

// Cancel stops all timers and enters Cancelled. It reports whether this call
// performed the transition. Effects still running see a cancelled context,
// and Cancel returns only after they have finished, so no effect or hook
// runs once it returns.
func (s *Scheduler) Cancel() bool {
	s.mu.Lock()
	transitioned := !s.state.IsTerminal()
	if transitioned {
		s.stopTimerLocked()
		s.state = StateCancelled
		close(s.done)
		s.logger.Debug("Reminder for %s cancelled after %d/%d", s.subject.TaskID, s.sent, s.cfg.MaxReminders)
	}
	s.mu.Unlock()

	// A vetoed tick may have cancelled first; in-flight effects are drained
	// either way. No dispatch can follow a terminal state.
	s.stopEffects()
	s.inflight.Wait()
	return transitioned
}

// Done is closed when the scheduler reaches a terminal state.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RemindersSent returns the number of ticks so far.
func (s *Scheduler) RemindersSent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

// Snapshot returns the current state and counters.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		State:         s.state,
		RemindersSent: s.sent,
		MaxReminders:  s.cfg.MaxReminders,
		StartedAt:     s.startedAt,
	}
	if !s.state.IsTerminal() {
		snap.NextAt = s.nextAt
	}
	return snap
}

func (s *Scheduler) onDelayElapsed() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateWaiting {
		return
	}
	s.state = StateFiring
	s.armLocked(s.cfg.Interval, s.onInterval)
}

func (s *Scheduler) onInterval() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateFiring {
		return
	}

	r := Reminder{
		Subject: s.subject,
		Number:  s.sent + 1,
		Max:     s.cfg.MaxReminders,
		At:      s.now(),
	}
	if s.onTick != nil && !s.onTick(r) {
		s.timer = nil
		s.nextAt = time.Time{}
		s.state = StateCancelled
		close(s.done)
		s.logger.Debug("Reminder %d for %s vetoed", r.Number, s.subject.TaskID)
		return
	}
	s.sent = r.Number
	s.dispatchLocked(r)

	if s.sent < s.cfg.MaxReminders {
		s.armLocked(s.cfg.Interval, s.onInterval)
		return
	}

	s.timer = nil
	s.nextAt = time.Time{}
	s.state = StateExhausted
	close(s.done)
	s.logger.Info("Reminder for %s exhausted after %d reminders", s.subject.TaskID, s.sent)
	if s.onExhausted != nil {
		s.onExhausted(r)
	}
}

// dispatchLocked starts every effect in its own goroutine. Must hold s.mu
// in a non-terminal state so Cancel's drain sees every Add.
func (s *Scheduler) dispatchLocked(r Reminder) {
	s.inflight.Add(len(s.effects))
	for _, effect := range s.effects {
		effect := effect
		async.Go(s.logger, "reminder."+effect.Name, func() {
			defer s.inflight.Done()
			if s.effectCtx.Err() != nil {
				return
			}
			if err := effect.Fn(s.effectCtx, r); err != nil {
				if s.effectCtx.Err() != nil {
					return
				}
				failure := sherrors.NewNotificationFailure(effect.Name, r.TaskID, err)
				s.logger.Warn("Reminder %d/%d: %v", r.Number, r.Max, failure)
			}
		})
	}
}

func (s *Scheduler) armLocked(delay time.Duration, fn func()) {
	s.stopTimerLocked()
	s.nextAt = s.now().Add(delay)
	s.timer = time.AfterFunc(delay, fn)
}

func (s *Scheduler) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
