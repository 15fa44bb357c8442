package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"georemind/internal/app/events"
	"georemind/internal/domain/task"
	"georemind/internal/shared/async"
	sherrors "georemind/internal/shared/errors"
	"georemind/internal/shared/logging"
	id "georemind/internal/shared/utils/id"
)

const defaultWriteTimeout = 10 * time.Second

// ErrShutdown is returned by StartSession after Shutdown.
var ErrShutdown = errors.New("coordinator is shut down")

// Coordinator keeps at most one active session per task id. Starting a
// session for a task that already has one cancels the prior session first.
type Coordinator struct {
	store    task.Store
	watcher  Watcher
	speaker  Speaker
	alerter  Alerter
	sink     events.Sink
	metrics  Metrics
	logger   logging.Logger
	tracer   trace.Tracer
	defaults SessionConfig
	now      func() time.Time

	writeTimeout time.Duration

	// lifecycleMu serializes StartSession, CancelSession and Shutdown so the
	// replace-prior-session sequence is atomic per coordinator. Completion
	// paths never take it.
	lifecycleMu sync.Mutex

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
	draining bool
	wg       sync.WaitGroup
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithSpeaker sets the speech side effect.
func WithSpeaker(s Speaker) Option {
	return func(c *Coordinator) { c.speaker = s }
}

// WithAlerter sets the alert side effect.
func WithAlerter(a Alerter) Option {
	return func(c *Coordinator) { c.alerter = a }
}

// WithEventSink sets where session events are published.
func WithEventSink(sink events.Sink) Option {
	return func(c *Coordinator) {
		if sink != nil {
			c.sink = sink
		}
	}
}

// WithMetrics sets the metrics observer.
func WithMetrics(m Metrics) Option {
	return func(c *Coordinator) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithLogger sets the coordinator logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Coordinator) { c.logger = logging.OrNop(logger) }
}

// WithTracer sets the tracer used for session spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Coordinator) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithDefaults sets the SessionConfig every session starts from.
func WithDefaults(cfg SessionConfig) Option {
	return func(c *Coordinator) { c.defaults = cfg }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithWriteTimeout bounds each terminal store write.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

// New creates a Coordinator. store and watcher are required.
func New(store task.Store, watcher Watcher, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:        store,
		watcher:      watcher,
		sink:         events.Nop,
		metrics:      nopMetrics{},
		logger:       logging.NewComponentLogger("Coordinator"),
		tracer:       otel.Tracer("georemind/coordinator"),
		defaults:     DefaultSessionConfig(),
		now:          time.Now,
		writeTimeout: defaultWriteTimeout,
		sessions:     make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Defaults returns the base SessionConfig.
func (c *Coordinator) Defaults() SessionConfig {
	return c.defaults
}

// StartSession validates the task, checks location permission when the task
// has a destination, replaces any prior session for the same task and starts
// the watcher (destination only) and the reminder scheduler.
//
// Permission and validation errors are returned before any prior session is
// touched. ctx bounds startup only; the session outlives it.
func (c *Coordinator) StartSession(ctx context.Context, user task.UserContext, t *task.Task, opts ...SessionOption) (*Session, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.StartSession")
	defer span.End()

	sess, err := c.startSession(ctx, user, t, opts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("georemind.session_id", sess.id),
		attribute.String("georemind.task_id", sess.task.ID),
		attribute.Bool("georemind.geofence", sess.task.HasDestination()),
	)
	return sess, nil
}

func (c *Coordinator) startSession(ctx context.Context, user task.UserContext, t *task.Task, opts ...SessionOption) (*Session, error) {
	if err := user.Validate(); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.Status.IsTerminal() {
		return nil, sherrors.InvalidTaskf("task %s is already %s", t.ID, t.Status)
	}

	cfg := c.defaults
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, sherrors.InvalidTaskf("session config: %v", err)
	}

	if t.HasDestination() {
		if c.watcher == nil {
			return nil, sherrors.ErrPermissionDenied
		}
		if err := c.watcher.CheckPermission(ctx, user.UserID); err != nil {
			return nil, err
		}
	}

	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrShutdown
	}
	prior := c.sessions[t.ID]
	delete(c.sessions, t.ID)
	c.mu.Unlock()

	if prior != nil {
		if prior.cancel(ReasonReplaced) {
			c.logger.Info("Replaced active session %s for task %s: %v", prior.id, t.ID, sherrors.ErrAlreadyActive)
		}
	}

	sess, err := newSession(c, user, t.Clone(), cfg, trace.SpanContextFromContext(ctx))
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.sessions[t.ID] = sess
	c.mu.Unlock()

	if err := sess.start(ctx); err != nil {
		c.remove(sess)
		return nil, err
	}

	c.metrics.SessionStarted()
	if prior != nil {
		c.publish(sess, events.TypeSessionReplaced, func(e *events.Event) {
			e.Message = fmt.Sprintf("%v: replaced session %s", sherrors.ErrAlreadyActive, prior.id)
		})
	}
	c.publish(sess, events.TypeSessionStarted, func(e *events.Event) {
		e.MaxReminders = cfg.MaxReminders
	})
	c.recordAction(sess, task.Action{Kind: task.ActionStartReminder, TaskID: t.ID, Label: t.Label})
	c.logger.Info("Session %s started for task %s (geofence=%t, first reminder in %s)",
		sess.id, t.ID, t.HasDestination(), cfg.InitialDelay+cfg.ReminderInterval)
	return sess, nil
}

// CancelSession stops the session for taskID without writing task status.
// When it returns, no further side effect of that session can occur. It
// reports whether an active session was cancelled; repeated calls are no-ops.
func (c *Coordinator) CancelSession(taskID string) bool {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	c.mu.Lock()
	sess := c.sessions[taskID]
	delete(c.sessions, taskID)
	c.mu.Unlock()

	if sess == nil {
		return false
	}
	if !sess.cancel(ReasonCancelled) {
		return false
	}
	c.recordAction(sess, task.Action{Kind: task.ActionCancelReminder, TaskID: taskID, Label: sess.task.Label})
	return true
}

// Session returns the active session for taskID.
func (c *Coordinator) Session(taskID string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, ok := c.sessions[taskID]
	return sess, ok
}

// Sessions returns info for every active session, oldest first. An empty
// userID lists all users.
func (c *Coordinator) Sessions(userID string) []SessionInfo {
	c.mu.Lock()
	active := make([]*Session, 0, len(c.sessions))
	for _, sess := range c.sessions {
		if userID == "" || sess.user.UserID == userID {
			active = append(active, sess)
		}
	}
	c.mu.Unlock()

	infos := make([]SessionInfo, 0, len(active))
	for _, sess := range active {
		infos = append(infos, sess.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

// Shutdown cancels every session, refuses new ones and waits for in-flight
// terminal writes until ctx is done.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.lifecycleMu.Lock()
	c.mu.Lock()
	c.closed = true
	active := make([]*Session, 0, len(c.sessions))
	for taskID, sess := range c.sessions {
		active = append(active, sess)
		delete(c.sessions, taskID)
	}
	c.mu.Unlock()

	for _, sess := range active {
		sess.cancel(ReasonShutdown)
	}
	c.lifecycleMu.Unlock()
	c.logger.Info("Coordinator shut down (%d sessions cancelled)", len(active))

	c.mu.Lock()
	c.draining = true
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// remove drops sess from the registry if it is still the registered one.
func (c *Coordinator) remove(sess *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.sessions[sess.task.ID]; ok && current == sess {
		delete(c.sessions, sess.task.ID)
	}
}

func (c *Coordinator) publish(sess *Session, typ events.Type, mutate func(*events.Event)) {
	e := events.Event{
		Type:      typ,
		SessionID: sess.id,
		TaskID:    sess.task.ID,
		UserID:    sess.user.UserID,
		At:        c.now(),
	}
	if mutate != nil {
		mutate(&e)
	}
	c.sink.Publish(e)
}

// recordAction appends an audit entry in the background. Failures are logged.
func (c *Coordinator) recordAction(sess *Session, action task.Action) {
	if c.store == nil {
		return
	}
	action.ID = id.NewActionID()
	action.UserID = sess.user.UserID
	action.At = c.now()
	c.goTracked("coordinator.action", func() {
		ctx, cancel := context.WithTimeout(sess.ctx, c.writeTimeout)
		defer cancel()
		if err := c.store.RecordAction(ctx, sess.user, action); err != nil {
			c.metrics.PersistenceFailed("record_action")
			c.logger.Warn("%v", sherrors.NewPersistenceFailure("record_action", action.TaskID, err))
		}
	})
}

// goTracked runs fn in the background. Work started before Shutdown begins
// draining is waited for; later work runs untracked.
func (c *Coordinator) goTracked(name string, fn func()) {
	c.mu.Lock()
	tracked := !c.draining
	if tracked {
		c.wg.Add(1)
	}
	c.mu.Unlock()

	async.Go(c.logger, name, func() {
		if tracked {
			defer c.wg.Done()
		}
		fn()
	})
}
