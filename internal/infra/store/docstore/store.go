// Package docstore implements task.Store on a single document kept in
// memory and, when a path is configured, mirrored atomically to disk.
package docstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"georemind/internal/domain/task"
	"georemind/internal/infra/filestore"
	sherrors "georemind/internal/shared/errors"
	"georemind/internal/shared/logging"
	id "georemind/internal/shared/utils/id"
)

// DefaultFileName is the document name used under a store directory.
const DefaultFileName = "georemind.yaml"

const defaultMaxActions = 1000

// userDoc holds everything one user owns.
type userDoc struct {
	Tasks       map[string]*task.Task   `json:"tasks" yaml:"tasks"`
	Completions []task.CompletionRecord `json:"completions,omitempty" yaml:"completions,omitempty"`
	Actions     []task.Action           `json:"actions,omitempty" yaml:"actions,omitempty"`
}

func cloneDoc(doc *userDoc) *userDoc {
	if doc == nil {
		return nil
	}
	out := &userDoc{
		Tasks:       make(map[string]*task.Task, len(doc.Tasks)),
		Completions: append([]task.CompletionRecord(nil), doc.Completions...),
		Actions:     append([]task.Action(nil), doc.Actions...),
	}
	for k, t := range doc.Tasks {
		out.Tasks[k] = t.Clone()
	}
	return out
}

// Store is a task.Store backed by a filestore.Collection keyed by user id.
type Store struct {
	docs       *filestore.Collection[string, *userDoc]
	maxActions int
	now        func() time.Time
	logger     logging.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMaxActions caps the per-user audit log. Zero keeps everything.
func WithMaxActions(n int) Option {
	return func(s *Store) { s.maxActions = n }
}

// WithLogger sets the store logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Store) { s.logger = logging.OrNop(logger) }
}

// NewMemory returns a store that never touches disk.
func NewMemory(opts ...Option) *Store {
	s, _ := open("", opts...)
	return s
}

// OpenFile loads (or creates) the document at path. The extension selects
// YAML or JSON encoding.
func OpenFile(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("docstore: file path is required")
	}
	return open(path, opts...)
}

func open(path string, opts ...Option) (*Store, error) {
	docs := filestore.NewCollection[string, *userDoc](filestore.CollectionConfig{FilePath: path})
	docs.SetClone(cloneDoc)
	s := &Store{
		docs:       docs,
		maxActions: defaultMaxActions,
		now:        time.Now,
		logger:     logging.NewComponentLogger("DocStore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := docs.Load(); err != nil {
		return nil, fmt.Errorf("load task document %s: %w", path, err)
	}
	if path != "" {
		s.logger.Info("Task document loaded from %s (%d users)", path, docs.Len())
	}
	return s, nil
}

// EnsureSchema writes an empty document when none exists yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.docs.Path() == "" {
		return nil
	}
	return s.docs.Mutate(func(map[string]*userDoc) error { return nil })
}

// CreateTask implements task.Store.
func (s *Store) CreateTask(ctx context.Context, user task.UserContext, t *task.Task) error {
	if err := checkCall(ctx, user); err != nil {
		return err
	}
	if t == nil {
		return sherrors.InvalidTaskf("task is nil")
	}
	if t.UserID != "" && t.UserID != user.UserID {
		return sherrors.InvalidTaskf("task owner %s does not match caller", t.UserID)
	}
	if strings.TrimSpace(t.Label) == "" {
		return sherrors.InvalidTaskf("task label is required")
	}

	now := s.now()
	if t.ID == "" {
		t.ID = id.NewTaskID()
	}
	t.UserID = user.UserID
	if t.Status == "" {
		t.Status = task.StatusPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	if err := t.Validate(); err != nil {
		return err
	}

	return s.docs.Mutate(func(items map[string]*userDoc) error {
		doc := docFor(items, user.UserID)
		if _, exists := doc.Tasks[t.ID]; exists {
			return sherrors.InvalidTaskf("task %s already exists", t.ID)
		}
		doc.Tasks[t.ID] = t.Clone()
		return nil
	})
}

// GetTask implements task.Store.
func (s *Store) GetTask(ctx context.Context, user task.UserContext, taskID string) (*task.Task, error) {
	if err := checkCall(ctx, user); err != nil {
		return nil, err
	}
	var found *task.Task
	s.docs.ReadLocked(func(items map[string]*userDoc) {
		if doc := items[user.UserID]; doc != nil {
			found = doc.Tasks[taskID].Clone()
		}
	})
	if found == nil {
		return nil, sherrors.NotFoundf("task %s", taskID)
	}
	return found, nil
}

// ListTasks implements task.Store.
func (s *Store) ListTasks(ctx context.Context, user task.UserContext, filter task.ListFilter) ([]*task.Task, error) {
	if err := checkCall(ctx, user); err != nil {
		return nil, err
	}
	var out []*task.Task
	s.docs.ReadLocked(func(items map[string]*userDoc) {
		doc := items[user.UserID]
		if doc == nil {
			return
		}
		for _, t := range doc.Tasks {
			if filter.Matches(t) {
				out = append(out, t.Clone())
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// ListUsers implements task.Store.
func (s *Store) ListUsers(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var users []string
	s.docs.ReadLocked(func(items map[string]*userDoc) {
		for userID, doc := range items {
			if doc != nil && len(doc.Tasks) > 0 {
				users = append(users, userID)
			}
		}
	})
	sort.Strings(users)
	return users, nil
}

// DeleteTask implements task.Store. Completion history is kept.
func (s *Store) DeleteTask(ctx context.Context, user task.UserContext, taskID string) error {
	if err := checkCall(ctx, user); err != nil {
		return err
	}
	return s.docs.Mutate(func(items map[string]*userDoc) error {
		doc := items[user.UserID]
		if doc == nil || doc.Tasks[taskID] == nil {
			return sherrors.NotFoundf("task %s", taskID)
		}
		delete(doc.Tasks, taskID)
		return nil
	})
}

// CompleteTask implements task.Store. The status change and the history
// record land in the same document write.
func (s *Store) CompleteTask(ctx context.Context, user task.UserContext, c task.Completion) (*task.CompletionRecord, error) {
	if err := checkCall(ctx, user); err != nil {
		return nil, err
	}
	if !c.Method.Valid() {
		return nil, sherrors.InvalidTaskf("unknown completion method %q", c.Method)
	}
	if c.CompletedAt.IsZero() {
		c.CompletedAt = s.now()
	}

	var rec task.CompletionRecord
	err := s.docs.Mutate(func(items map[string]*userDoc) error {
		doc := items[user.UserID]
		if doc == nil || doc.Tasks[c.TaskID] == nil {
			return sherrors.NotFoundf("task %s", c.TaskID)
		}
		t := doc.Tasks[c.TaskID]
		if t.Status == task.StatusCompleted {
			return task.ErrAlreadyCompleted
		}
		completedAt := c.CompletedAt
		t.Status = task.StatusCompleted
		t.CompletionMethod = c.Method
		t.CompletedAt = &completedAt
		t.UpdatedAt = s.now()

		rec = task.NewCompletionRecord(id.NewCompletionID(), t, c)
		doc.Completions = append(doc.Completions, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ReopenTask implements task.Store.
func (s *Store) ReopenTask(ctx context.Context, user task.UserContext, taskID string) (*task.Task, error) {
	if err := checkCall(ctx, user); err != nil {
		return nil, err
	}
	var out *task.Task
	err := s.docs.Mutate(func(items map[string]*userDoc) error {
		doc := items[user.UserID]
		if doc == nil || doc.Tasks[taskID] == nil {
			return sherrors.NotFoundf("task %s", taskID)
		}
		t := doc.Tasks[taskID]
		if t.Status != task.StatusPending {
			t.Status = task.StatusPending
			t.CompletionMethod = ""
			t.CompletedAt = nil
			t.UpdatedAt = s.now()
		}
		out = t.Clone()
		return nil
	})
	return out, err
}

// ListCompletions implements task.Store.
func (s *Store) ListCompletions(ctx context.Context, user task.UserContext, since time.Time) ([]task.CompletionRecord, error) {
	if err := checkCall(ctx, user); err != nil {
		return nil, err
	}
	var out []task.CompletionRecord
	s.docs.ReadLocked(func(items map[string]*userDoc) {
		doc := items[user.UserID]
		if doc == nil {
			return
		}
		for _, rec := range doc.Completions {
			if since.IsZero() || !rec.CompletedAt.Before(since) {
				out = append(out, rec)
			}
		}
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CompletedAt.After(out[j].CompletedAt)
	})
	return out, nil
}

// RecordAction implements task.Store.
func (s *Store) RecordAction(ctx context.Context, user task.UserContext, a task.Action) error {
	if err := checkCall(ctx, user); err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = id.NewActionID()
	}
	if a.At.IsZero() {
		a.At = s.now()
	}
	a.UserID = user.UserID
	return s.docs.Mutate(func(items map[string]*userDoc) error {
		doc := docFor(items, user.UserID)
		doc.Actions = append(doc.Actions, a)
		var dropped int
		doc.Actions, dropped = filestore.TrimOldest(doc.Actions, s.maxActions, func(a task.Action) time.Time { return a.At })
		if dropped > 0 {
			s.logger.Debug("Trimmed %d audit entries for %s", dropped, user.UserID)
		}
		return nil
	})
}

// ListActions implements task.Store.
func (s *Store) ListActions(ctx context.Context, user task.UserContext, taskID string, limit int) ([]task.Action, error) {
	if err := checkCall(ctx, user); err != nil {
		return nil, err
	}
	var out []task.Action
	s.docs.ReadLocked(func(items map[string]*userDoc) {
		doc := items[user.UserID]
		if doc == nil {
			return
		}
		for i := len(doc.Actions) - 1; i >= 0; i-- {
			a := doc.Actions[i]
			if taskID != "" && a.TaskID != taskID && !containsID(a.TaskIDs, taskID) {
				continue
			}
			out = append(out, a)
			if limit > 0 && len(out) == limit {
				return
			}
		}
	})
	return out, nil
}

func docFor(items map[string]*userDoc, userID string) *userDoc {
	doc := items[userID]
	if doc == nil {
		doc = &userDoc{}
		items[userID] = doc
	}
	if doc.Tasks == nil {
		doc.Tasks = make(map[string]*task.Task)
	}
	return doc
}

func checkCall(ctx context.Context, user task.UserContext) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return user.Validate()
}

func containsID(ids []string, want string) bool {
	for _, v := range ids {
		if v == want {
			return true
		}
	}
	return false
}

var _ task.Store = (*Store)(nil)
