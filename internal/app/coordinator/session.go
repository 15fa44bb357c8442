package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"georemind/internal/app/arrival"
	"georemind/internal/app/events"
	"georemind/internal/app/location"
	"georemind/internal/app/reminder"
	"georemind/internal/domain/geo"
	"georemind/internal/domain/task"
	sherrors "georemind/internal/shared/errors"
	"georemind/internal/shared/logging"
	id "georemind/internal/shared/utils/id"
)

const (
	titleReminder  = "Task Reminder"
	titleCompleted = "Task Completed"
)

// Session is one run of the reminder engine for a single task.
//
// Lock order is scheduler then session: scheduler hooks take s.mu, and no
// code holding s.mu calls into the scheduler.
type Session struct {
	id        string
	coord     *Coordinator
	user      task.UserContext
	task      *task.Task
	cfg       SessionConfig
	ctx       context.Context
	logger    logging.Logger
	scheduler *reminder.Scheduler
	detector  *arrival.Detector

	mu            sync.Mutex
	state         State
	sub           *location.Subscription
	remindersSent int
	startedAt     time.Time
	endedAt       time.Time
	outcome       *Outcome
	done          chan struct{}
}

func newSession(c *Coordinator, user task.UserContext, t *task.Task, cfg SessionConfig, parent trace.SpanContext) (*Session, error) {
	sessionID := id.NewSessionID()
	ctx := id.WithIDs(context.Background(), id.IDs{UserID: user.UserID, SessionID: sessionID, TaskID: t.ID})
	if parent.IsValid() {
		ctx = trace.ContextWithSpanContext(ctx, parent)
	}

	s := &Session{
		id:     sessionID,
		coord:  c,
		user:   user,
		task:   t,
		cfg:    cfg,
		ctx:    ctx,
		logger: logging.WithPrefix(c.logger, "session", sessionID),
		state:  StateIdle,
		done:   make(chan struct{}),
	}

	sched, err := reminder.New(
		reminder.Subject{TaskID: t.ID, Label: t.Label, Details: t.Details},
		cfg.reminderConfig(),
		reminder.WithContext(ctx),
		reminder.WithLogger(s.logger),
		reminder.WithClock(c.now),
		reminder.WithEffect("speech", s.speakReminder),
		reminder.WithEffect("alert", s.alertReminder),
		reminder.WithTickHook(s.onTick),
		reminder.WithExhaustedHook(s.onExhausted),
	)
	if err != nil {
		return nil, sherrors.InvalidTaskf("reminder config: %v", err)
	}
	s.scheduler = sched

	if t.HasDestination() {
		s.detector = arrival.NewDetector(*t.Destination, cfg.ArrivalRadiusKm, s.onArrival)
	}
	return s, nil
}

// start launches the watcher (when a destination exists) and the scheduler.
func (s *Session) start(ctx context.Context) error {
	s.mu.Lock()
	s.state = StateWatching
	s.startedAt = s.coord.now()
	s.mu.Unlock()

	if s.detector != nil {
		watchCfg := location.WatchConfig{
			MinDistanceMeters: s.cfg.MinDistanceMeters,
			Accuracy:          s.cfg.Accuracy,
			Urgent:            s.detector.Within,
		}
		sub, err := s.coord.watcher.Start(ctx, s.user.UserID, watchCfg, s.observe)
		if err != nil {
			s.abort()
			return fmt.Errorf("start location watcher: %w", err)
		}

		s.mu.Lock()
		terminal := s.state.IsTerminal()
		if !terminal {
			s.sub = sub
		}
		s.mu.Unlock()
		if terminal {
			// Arrived while the watcher was starting.
			sub.Cancel()
			return nil
		}
	}

	if err := s.scheduler.Start(); err != nil && !s.isTerminal() {
		s.abort()
		return fmt.Errorf("start reminder scheduler: %w", err)
	}
	return nil
}

// abort tears down a session that failed to start. No outcome is reported.
func (s *Session) abort() {
	s.mu.Lock()
	s.state = StateCancelled
	s.endedAt = s.coord.now()
	sub := s.sub
	s.mu.Unlock()

	if s.detector != nil {
		s.detector.Stop()
	}
	s.scheduler.Cancel()
	sub.Stop()
	close(s.done)
}

func (s *Session) observe(sample geo.Sample) {
	s.detector.Observe(sample)
}

// onArrival runs on the watcher goroutine inside detector.Observe.
func (s *Session) onArrival(a arrival.Arrival) {
	s.mu.Lock()
	if s.state.IsTerminal() {
		s.mu.Unlock()
		return
	}
	out := s.terminateLocked(StateCompleted, ReasonArrival)
	out.Arrival = &a
	sub := s.sub
	s.mu.Unlock()

	sub.Cancel()
	s.scheduler.Cancel()

	s.coord.metrics.ArrivalDetected(a.DistanceKm)
	dist := a.DistanceKm
	s.coord.publish(s, events.TypeArrivalDetected, func(e *events.Event) {
		e.DistanceKm = &dist
		e.Message = fmt.Sprintf("You have reached %s", destinationName(a.Destination))
	})
	s.logger.Info("Arrived at %s (%.3f km)", destinationName(a.Destination), a.DistanceKm)
	s.finish(*out, sub)
}

// onTick runs under the scheduler lock before each reminder is dispatched.
func (s *Session) onTick(r reminder.Reminder) bool {
	s.mu.Lock()
	if s.state.IsTerminal() {
		s.mu.Unlock()
		return false
	}
	s.remindersSent = r.Number
	s.mu.Unlock()

	s.coord.metrics.ReminderSent()
	s.coord.publish(s, events.TypeReminderSent, func(e *events.Event) {
		e.RemindersSent = r.Number
		e.MaxReminders = r.Max
		e.Message = r.Message()
	})
	return true
}

// onExhausted runs under the scheduler lock on the capping tick.
func (s *Session) onExhausted(r reminder.Reminder) {
	s.mu.Lock()
	if s.state.IsTerminal() {
		s.mu.Unlock()
		return
	}
	out := s.terminateLocked(StateCompleted, ReasonReminderLimit)
	out.RemindersSent = r.Number
	sub := s.sub
	s.mu.Unlock()

	if s.detector != nil {
		s.detector.Stop()
	}
	sub.Cancel()
	s.logger.Info("Reminder limit reached after %d reminders", r.Number)
	s.finish(*out, sub)
}

// cancel tears the session down synchronously without a status write.
func (s *Session) cancel(reason Reason) bool {
	s.mu.Lock()
	if s.state.IsTerminal() {
		s.mu.Unlock()
		return false
	}
	out := s.terminateLocked(StateCancelled, reason)
	sub := s.sub
	s.mu.Unlock()

	if s.detector != nil {
		s.detector.Stop()
	}
	s.scheduler.Cancel()
	sub.Stop()

	s.coord.metrics.SessionEnded(string(reason), out.EndedAt.Sub(s.startedAt))
	s.coord.publish(s, events.TypeSessionCancelled, func(e *events.Event) {
		e.Reason = string(reason)
		e.RemindersSent = out.RemindersSent
	})
	s.logger.Info("Session cancelled (%s) after %d reminders", reason, out.RemindersSent)
	close(s.done)
	return true
}

// terminateLocked sets the single terminal state. Must hold s.mu.
func (s *Session) terminateLocked(state State, reason Reason) *Outcome {
	s.state = state
	s.endedAt = s.coord.now()
	s.outcome = &Outcome{
		Reason:        reason,
		SessionID:     s.id,
		TaskID:        s.task.ID,
		RemindersSent: s.remindersSent,
		EndedAt:       s.endedAt,
	}
	return s.outcome
}

// finish performs the terminal write and completion side effects in the
// background. Only the path that won the terminal transition calls it.
func (s *Session) finish(out Outcome, sub *location.Subscription) {
	c := s.coord
	c.remove(s)

	s.dispatchCompletionNotices(out)

	c.goTracked("coordinator.finish", func() {
		sub.Stop()

		err := s.writeCompletion(out)
		if err != nil {
			s.mu.Lock()
			s.outcome.PersistErr = err
			s.mu.Unlock()
		}

		c.metrics.SessionEnded(string(out.Reason), out.EndedAt.Sub(s.startedAt))
		c.publish(s, events.TypeSessionCompleted, func(e *events.Event) {
			e.Reason = string(out.Reason)
			e.RemindersSent = out.RemindersSent
			e.MaxReminders = s.cfg.MaxReminders
		})
		close(s.done)
	})
}

func (s *Session) writeCompletion(out Outcome) error {
	c := s.coord
	method, ok := out.Reason.CompletionMethod()
	if !ok || c.store == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(s.ctx, c.writeTimeout)
	defer cancel()
	ctx, span := c.tracer.Start(ctx, "coordinator.terminal_write", trace.WithAttributes(
		attribute.String("georemind.task_id", s.task.ID),
		attribute.String("georemind.completion_method", string(method)),
	))
	defer span.End()

	_, err := c.store.CompleteTask(ctx, s.user, task.Completion{
		TaskID:        s.task.ID,
		Method:        method,
		CompletedAt:   out.EndedAt,
		ReminderCount: out.RemindersSent,
	})
	if err == nil {
		return nil
	}

	failure := sherrors.NewPersistenceFailure("complete_task", s.task.ID, err)
	span.RecordError(failure)
	span.SetStatus(codes.Error, failure.Error())
	c.metrics.PersistenceFailed("complete_task")
	c.publish(s, events.TypePersistenceFailed, func(e *events.Event) {
		e.Reason = string(out.Reason)
		e.Message = failure.Error()
	})
	s.logger.Warn("%v", failure)
	return failure
}

func (s *Session) dispatchCompletionNotices(out Outcome) {
	var spoken, title, message string
	switch out.Reason {
	case ReasonArrival:
		name := "your destination"
		if out.Arrival != nil {
			name = destinationName(out.Arrival.Destination)
		}
		spoken = fmt.Sprintf("You have reached %s", name)
		title = titleCompleted
		message = fmt.Sprintf("You reached %s!", name)
	case ReasonReminderLimit:
		title = titleCompleted
		message = fmt.Sprintf("%s has been automatically completed after %d reminders.", s.task.Label, out.RemindersSent)
	default:
		return
	}

	c := s.coord
	if spoken != "" && c.speaker != nil {
		c.goTracked("coordinator.speech", func() {
			if err := c.speaker.Speak(s.ctx, spoken); err != nil {
				s.notificationFailed("speech", err)
			}
		})
	}
	if c.alerter != nil {
		c.goTracked("coordinator.alert", func() {
			if err := c.alerter.NotifyUser(s.ctx, s.user, title, message); err != nil {
				s.notificationFailed("alert", err)
			}
		})
	}
}

func (s *Session) speakReminder(ctx context.Context, r reminder.Reminder) error {
	if s.coord.speaker == nil {
		return nil
	}
	err := s.coord.speaker.Speak(ctx, r.Message())
	if err != nil {
		s.coord.metrics.NotificationFailed("speech")
	}
	return err
}

func (s *Session) alertReminder(ctx context.Context, r reminder.Reminder) error {
	if s.coord.alerter == nil {
		return nil
	}
	err := s.coord.alerter.NotifyUser(ctx, s.user, titleReminder, r.Message())
	if err != nil {
		s.coord.metrics.NotificationFailed("alert")
	}
	return err
}

func (s *Session) notificationFailed(channel string, err error) {
	failure := sherrors.NewNotificationFailure(channel, s.task.ID, err)
	s.coord.metrics.NotificationFailed(channel)
	s.logger.Warn("%v", failure)
}

func (s *Session) isTerminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.IsTerminal()
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// TaskID returns the task the session runs for.
func (s *Session) TaskID() string { return s.task.ID }

// UserID returns the owning user.
func (s *Session) UserID() string { return s.user.UserID }

// Config returns the effective session config.
func (s *Session) Config() SessionConfig { return s.cfg }

// Done is closed once the session is terminal and, for completions, the
// terminal write has been attempted.
func (s *Session) Done() <-chan struct{} { return s.done }

// Outcome returns the terminal report once the session has ended.
func (s *Session) Outcome() (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome == nil {
		return Outcome{}, false
	}
	return *s.outcome, true
}

// Wait blocks until the session is done or ctx ends.
func (s *Session) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-s.done:
		out, _ := s.Outcome()
		return out, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Info returns a snapshot of the session.
func (s *Session) Info() SessionInfo {
	snap := s.scheduler.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()
	info := SessionInfo{
		ID:            s.id,
		TaskID:        s.task.ID,
		UserID:        s.user.UserID,
		Label:         s.task.Label,
		State:         s.state,
		ReminderState: snap.State.String(),
		RemindersSent: s.remindersSent,
		MaxReminders:  s.cfg.MaxReminders,
		HasGeofence:   s.detector != nil,
		StartedAt:     s.startedAt,
	}
	if !s.state.IsTerminal() && !snap.NextAt.IsZero() {
		next := snap.NextAt
		info.NextReminder = &next
	}
	if s.state.IsTerminal() {
		ended := s.endedAt
		info.EndedAt = &ended
	}
	if s.outcome != nil {
		out := *s.outcome
		info.Outcome = &out
	}
	return info
}

func destinationName(p geo.Place) string {
	if p.Name != "" {
		return p.Name
	}
	return "your destination"
}
