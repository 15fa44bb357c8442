// Package tasks is the use-case layer behind the HTTP API: task CRUD,
// manual completion and reminder session control for one caller.
package tasks

import (
	"context"
	"errors"
	"strings"
	"time"

	"georemind/internal/app/analytics"
	"georemind/internal/app/coordinator"
	"georemind/internal/domain/geo"
	"georemind/internal/domain/task"
	sherrors "georemind/internal/shared/errors"
	"georemind/internal/shared/logging"
	id "georemind/internal/shared/utils/id"
)

// Sessions is the subset of the coordinator the service drives.
type Sessions interface {
	StartSession(ctx context.Context, user task.UserContext, t *task.Task, opts ...coordinator.SessionOption) (*coordinator.Session, error)
	CancelSession(taskID string) bool
	Session(taskID string) (*coordinator.Session, bool)
	Sessions(userID string) []coordinator.SessionInfo
}

// CreateInput carries the caller supplied task fields.
type CreateInput struct {
	Label         string     `json:"label"`
	Details       string     `json:"details,omitempty"`
	Source        *geo.Place `json:"source,omitempty"`
	Destination   *geo.Place `json:"destination,omitempty"`
	ScheduledTime string     `json:"scheduled_time,omitempty"`
}

// CompleteAllResult reports a batch completion.
type CompleteAllResult struct {
	Completed []task.CompletionRecord `json:"completed"`
	Skipped   []string                `json:"skipped,omitempty"`
}

// Service coordinates the store and the reminder sessions.
type Service struct {
	store    task.Store
	sessions Sessions
	logger   logging.Logger
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Service) { s.logger = logging.OrNop(logger) }
}

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService builds a Service. sessions may be nil when reminders are not hosted.
func NewService(store task.Store, sessions Sessions, opts ...Option) *Service {
	s := &Service{
		store:    store,
		sessions: sessions,
		logger:   logging.NewComponentLogger("TaskService"),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Create validates and stores a new pending task.
func (s *Service) Create(ctx context.Context, user task.UserContext, in CreateInput) (*task.Task, error) {
	if err := user.Validate(); err != nil {
		return nil, err
	}
	label := strings.TrimSpace(in.Label)
	if label == "" {
		return nil, sherrors.InvalidTaskf("label is required")
	}
	now := s.now().UTC()
	t := &task.Task{
		ID:            id.NewTaskID(),
		UserID:        user.UserID,
		Label:         label,
		Details:       strings.TrimSpace(in.Details),
		Source:        in.Source,
		Destination:   in.Destination,
		ScheduledTime: strings.TrimSpace(in.ScheduledTime),
		Status:        task.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.CreateTask(ctx, user, t); err != nil {
		return nil, err
	}
	s.audit(ctx, user, task.Action{Kind: task.ActionCreateTask, TaskID: t.ID, Label: t.Label})
	return t, nil
}

// Get returns one task.
func (s *Service) Get(ctx context.Context, user task.UserContext, taskID string) (*task.Task, error) {
	return s.store.GetTask(ctx, user, taskID)
}

// List returns the caller's tasks.
func (s *Service) List(ctx context.Context, user task.UserContext, filter task.ListFilter) ([]*task.Task, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, sherrors.InvalidTaskf("unknown status %q", filter.Status)
	}
	return s.store.ListTasks(ctx, user, filter)
}

// Delete removes a task, cancelling its reminder session first.
func (s *Service) Delete(ctx context.Context, user task.UserContext, taskID string) error {
	t, err := s.store.GetTask(ctx, user, taskID)
	if err != nil {
		return err
	}
	s.cancelOwned(user, taskID)
	if err := s.store.DeleteTask(ctx, user, taskID); err != nil {
		return err
	}
	s.audit(ctx, user, task.Action{Kind: task.ActionDeleteTask, TaskID: taskID, Label: t.Label})
	return nil
}

// Complete marks a task completed by hand. Any reminder session is
// cancelled before the write so it cannot race a second completion.
func (s *Service) Complete(ctx context.Context, user task.UserContext, taskID string) (*task.CompletionRecord, error) {
	t, err := s.store.GetTask(ctx, user, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status == task.StatusCompleted {
		return nil, task.ErrAlreadyCompleted
	}
	sent := s.cancelOwned(user, taskID)

	rec, err := s.store.CompleteTask(ctx, user, task.Completion{
		TaskID:        taskID,
		Method:        task.CompletionManual,
		CompletedAt:   s.now().UTC(),
		ReminderCount: sent,
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, user, task.Action{Kind: task.ActionCompleteTask, TaskID: taskID, Label: t.Label})
	return rec, nil
}

// CompleteAll completes every pending task of the caller. Tasks completed
// concurrently by a session are reported as skipped.
func (s *Service) CompleteAll(ctx context.Context, user task.UserContext) (CompleteAllResult, error) {
	pending, err := s.store.ListTasks(ctx, user, task.ListFilter{Status: task.StatusPending})
	if err != nil {
		return CompleteAllResult{}, err
	}

	result := CompleteAllResult{Completed: make([]task.CompletionRecord, 0, len(pending))}
	ids := make([]string, 0, len(pending))
	at := s.now().UTC()
	for _, t := range pending {
		sent := s.cancelOwned(user, t.ID)
		rec, err := s.store.CompleteTask(ctx, user, task.Completion{
			TaskID:        t.ID,
			Method:        task.CompletionBatch,
			CompletedAt:   at,
			ReminderCount: sent,
		})
		switch {
		case err == nil:
			result.Completed = append(result.Completed, *rec)
			ids = append(ids, t.ID)
		case errors.Is(err, task.ErrAlreadyCompleted), sherrors.IsNotFound(err):
			result.Skipped = append(result.Skipped, t.ID)
		default:
			return result, err
		}
	}
	if len(ids) > 0 {
		s.audit(ctx, user, task.Action{Kind: task.ActionCompleteAll, TaskIDs: ids, Count: len(ids)})
	}
	return result, nil
}

// Reopen returns a completed task to pending.
func (s *Service) Reopen(ctx context.Context, user task.UserContext, taskID string) (*task.Task, error) {
	t, err := s.store.ReopenTask(ctx, user, taskID)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, user, task.Action{Kind: task.ActionReopenTask, TaskID: taskID, Label: t.Label})
	return t, nil
}

// StartReminder loads the task and starts (or replaces) its reminder session.
func (s *Service) StartReminder(ctx context.Context, user task.UserContext, taskID string, opts ...coordinator.SessionOption) (*coordinator.Session, error) {
	if s.sessions == nil {
		return nil, coordinator.ErrShutdown
	}
	t, err := s.store.GetTask(ctx, user, taskID)
	if err != nil {
		return nil, err
	}
	return s.sessions.StartSession(ctx, user, t, opts...)
}

// CancelReminder stops the caller's session for taskID. It reports whether
// a session was running.
func (s *Service) CancelReminder(user task.UserContext, taskID string) bool {
	if s.sessions == nil {
		return false
	}
	sess, ok := s.sessions.Session(taskID)
	if !ok || sess.UserID() != user.UserID {
		return false
	}
	return s.sessions.CancelSession(taskID)
}

// Reminder returns the caller's active session for taskID.
func (s *Service) Reminder(user task.UserContext, taskID string) (coordinator.SessionInfo, bool) {
	if s.sessions == nil {
		return coordinator.SessionInfo{}, false
	}
	sess, ok := s.sessions.Session(taskID)
	if !ok || sess.UserID() != user.UserID {
		return coordinator.SessionInfo{}, false
	}
	return sess.Info(), true
}

// Reminders lists the caller's active sessions.
func (s *Service) Reminders(user task.UserContext) []coordinator.SessionInfo {
	if s.sessions == nil {
		return nil
	}
	return s.sessions.Sessions(user.UserID)
}

// Summary computes completion analytics over the caller's full history.
func (s *Service) Summary(ctx context.Context, user task.UserContext) (analytics.Summary, error) {
	all, err := s.store.ListTasks(ctx, user, task.ListFilter{})
	if err != nil {
		return analytics.Summary{}, err
	}
	completions, err := s.store.ListCompletions(ctx, user, time.Time{})
	if err != nil {
		return analytics.Summary{}, err
	}
	return analytics.Summarize(all, completions, s.now()), nil
}

// cancelOwned cancels the caller's session for taskID and returns how many
// reminders it had sent.
func (s *Service) cancelOwned(user task.UserContext, taskID string) int {
	if s.sessions == nil {
		return 0
	}
	sess, ok := s.sessions.Session(taskID)
	if !ok || sess.UserID() != user.UserID {
		return 0
	}
	s.sessions.CancelSession(taskID)
	if out, ok := sess.Outcome(); ok {
		return out.RemindersSent
	}
	return sess.Info().RemindersSent
}

func (s *Service) audit(ctx context.Context, user task.UserContext, action task.Action) {
	action.ID = id.NewActionID()
	action.UserID = user.UserID
	action.At = s.now().UTC()
	if err := s.store.RecordAction(ctx, user, action); err != nil {
		s.logger.Warn("%v", sherrors.NewPersistenceFailure("record_action", action.TaskID, err))
	}
}
