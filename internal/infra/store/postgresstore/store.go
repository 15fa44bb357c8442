// Package postgresstore implements task.Store on Postgres via pgx.
package postgresstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"georemind/internal/domain/geo"
	"georemind/internal/domain/task"
	sherrors "georemind/internal/shared/errors"
	jsonx "georemind/internal/shared/json"
	"georemind/internal/shared/logging"
	id "georemind/internal/shared/utils/id"
)

const (
	tasksTable       = "georemind_tasks"
	completionsTable = "georemind_completed_tasks"
	actionsTable     = "georemind_task_actions"

	taskColumns = `task_id, user_id, label, details, source, destination, scheduled_time,
       status, completion_method, created_at, updated_at, completed_at`
)

// Store persists tasks, completion history and the audit log in Postgres.
type Store struct {
	pool   *pgxpool.Pool
	now    func() time.Time
	logger logging.Logger
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

// WithLogger sets the store logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Store) { s.logger = logging.OrNop(logger) }
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:   pool,
		now:    time.Now,
		logger: logging.NewComponentLogger("PostgresTaskStore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to databaseURL and pings it. Close the returned pool when done.
func Open(ctx context.Context, databaseURL string, opts ...Option) (*Store, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(pool, opts...), pool, nil
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("task store not initialized")
	}
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    task_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    label TEXT NOT NULL,
    details TEXT NOT NULL DEFAULT '',
    source JSONB,
    destination JSONB,
    scheduled_time TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'pending',
    completion_method TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    completed_at TIMESTAMPTZ,
    PRIMARY KEY (user_id, task_id)
);`, tasksTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_user_status ON %s (user_id, status, created_at DESC);`, tasksTable, tasksTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    completion_id TEXT PRIMARY KEY,
    task_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    label TEXT NOT NULL DEFAULT '',
    details TEXT NOT NULL DEFAULT '',
    source JSONB,
    destination JSONB,
    scheduled_time TEXT NOT NULL DEFAULT '',
    completion_method TEXT NOT NULL,
    completed_at TIMESTAMPTZ NOT NULL,
    reminder_count INTEGER NOT NULL DEFAULT 0
);`, completionsTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_user_completed ON %s (user_id, completed_at DESC);`, completionsTable, completionsTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    action_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    action TEXT NOT NULL,
    task_id TEXT NOT NULL DEFAULT '',
    task_ids TEXT[] NOT NULL DEFAULT '{}',
    label TEXT NOT NULL DEFAULT '',
    count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`, actionsTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_user_created ON %s (user_id, created_at DESC);`, actionsTable, actionsTable),
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure task schema: %w", err)
		}
	}
	return nil
}

// CreateTask implements task.Store.
func (s *Store) CreateTask(ctx context.Context, user task.UserContext, t *task.Task) error {
	if err := user.Validate(); err != nil {
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

	source, err := encodePlace(t.Source)
	if err != nil {
		return err
	}
	destination, err := encodePlace(t.Destination)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
INSERT INTO `+tasksTable+` (`+taskColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`, t.ID, t.UserID, t.Label, t.Details, source, destination, t.ScheduledTime,
		string(t.Status), string(t.CompletionMethod), t.CreatedAt, t.UpdatedAt, t.CompletedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sherrors.InvalidTaskf("task %s already exists", t.ID)
		}
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// GetTask implements task.Store.
func (s *Store) GetTask(ctx context.Context, user task.UserContext, taskID string) (*task.Task, error) {
	if err := user.Validate(); err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM `+tasksTable+` WHERE user_id = $1 AND task_id = $2`,
		user.UserID, taskID)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sherrors.NotFoundf("task %s", taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListTasks implements task.Store.
func (s *Store) ListTasks(ctx context.Context, user task.UserContext, filter task.ListFilter) ([]*task.Task, error) {
	if err := user.Validate(); err != nil {
		return nil, err
	}
	query := `SELECT ` + taskColumns + ` FROM ` + tasksTable + ` WHERE user_id = $1`
	args := []any{user.UserID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC, task_id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// ListUsers implements task.Store.
func (s *Store) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT user_id FROM `+tasksTable+` ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// DeleteTask implements task.Store. Completion history is kept.
func (s *Store) DeleteTask(ctx context.Context, user task.UserContext, taskID string) error {
	if err := user.Validate(); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+tasksTable+` WHERE user_id = $1 AND task_id = $2`, user.UserID, taskID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sherrors.NotFoundf("task %s", taskID)
	}
	return nil
}

// CompleteTask implements task.Store. The row is locked, then the status
// update and the history insert are sent as one batch in the same
// transaction.
func (s *Store) CompleteTask(ctx context.Context, user task.UserContext, c task.Completion) (*task.CompletionRecord, error) {
	if err := user.Validate(); err != nil {
		return nil, err
	}
	if !c.Method.Valid() {
		return nil, sherrors.InvalidTaskf("unknown completion method %q", c.Method)
	}
	if c.CompletedAt.IsZero() {
		c.CompletedAt = s.now()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin complete task: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM `+tasksTable+` WHERE user_id = $1 AND task_id = $2 FOR UPDATE`,
		user.UserID, c.TaskID)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sherrors.NotFoundf("task %s", c.TaskID)
	}
	if err != nil {
		return nil, fmt.Errorf("load task for completion: %w", err)
	}
	if t.Status == task.StatusCompleted {
		return nil, task.ErrAlreadyCompleted
	}

	rec := task.NewCompletionRecord(id.NewCompletionID(), t, c)
	source, err := encodePlace(rec.Source)
	if err != nil {
		return nil, err
	}
	destination, err := encodePlace(rec.Destination)
	if err != nil {
		return nil, err
	}

	batch := &pgx.Batch{}
	batch.Queue(`
UPDATE `+tasksTable+`
SET status = $3, completion_method = $4, completed_at = $5, updated_at = $6
WHERE user_id = $1 AND task_id = $2
`, user.UserID, c.TaskID, string(task.StatusCompleted), string(c.Method), c.CompletedAt, s.now())
	batch.Queue(`
INSERT INTO `+completionsTable+` (completion_id, task_id, user_id, label, details, source, destination,
    scheduled_time, completion_method, completed_at, reminder_count)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`, rec.ID, rec.TaskID, rec.UserID, rec.Label, rec.Details, source, destination,
		rec.ScheduledTime, string(rec.CompletionMethod), rec.CompletedAt, rec.ReminderCount)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return nil, fmt.Errorf("complete task: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit complete task: %w", err)
	}
	return &rec, nil
}

// ReopenTask implements task.Store.
func (s *Store) ReopenTask(ctx context.Context, user task.UserContext, taskID string) (*task.Task, error) {
	if err := user.Validate(); err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx, `
UPDATE `+tasksTable+`
SET status = $3,
    completion_method = '',
    completed_at = NULL,
    updated_at = CASE WHEN status = $3 THEN updated_at ELSE $4 END
WHERE user_id = $1 AND task_id = $2
RETURNING `+taskColumns, user.UserID, taskID, string(task.StatusPending), s.now())
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sherrors.NotFoundf("task %s", taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("reopen task: %w", err)
	}
	return t, nil
}

// ListCompletions implements task.Store.
func (s *Store) ListCompletions(ctx context.Context, user task.UserContext, since time.Time) ([]task.CompletionRecord, error) {
	if err := user.Validate(); err != nil {
		return nil, err
	}
	query := `SELECT completion_id, task_id, user_id, label, details, source, destination,
       scheduled_time, completion_method, completed_at, reminder_count
FROM ` + completionsTable + ` WHERE user_id = $1`
	args := []any{user.UserID}
	if !since.IsZero() {
		args = append(args, since)
		query += ` AND completed_at >= $2`
	}
	query += ` ORDER BY completed_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()

	var out []task.CompletionRecord
	for rows.Next() {
		var rec task.CompletionRecord
		var method string
		var source, destination []byte
		if err := rows.Scan(&rec.ID, &rec.TaskID, &rec.UserID, &rec.Label, &rec.Details,
			&source, &destination, &rec.ScheduledTime, &method, &rec.CompletedAt, &rec.ReminderCount); err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		rec.CompletionMethod = task.CompletionMethod(method)
		if rec.Source, err = decodePlace(source); err != nil {
			return nil, err
		}
		if rec.Destination, err = decodePlace(destination); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecordAction implements task.Store.
func (s *Store) RecordAction(ctx context.Context, user task.UserContext, a task.Action) error {
	if err := user.Validate(); err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = id.NewActionID()
	}
	if a.At.IsZero() {
		a.At = s.now()
	}
	taskIDs := a.TaskIDs
	if taskIDs == nil {
		taskIDs = []string{}
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO `+actionsTable+` (action_id, user_id, action, task_id, task_ids, label, count, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, a.ID, user.UserID, string(a.Kind), a.TaskID, taskIDs, a.Label, a.Count, a.At)
	if err != nil {
		return fmt.Errorf("record action: %w", err)
	}
	return nil
}

// ListActions implements task.Store.
func (s *Store) ListActions(ctx context.Context, user task.UserContext, taskID string, limit int) ([]task.Action, error) {
	if err := user.Validate(); err != nil {
		return nil, err
	}
	query := `SELECT action_id, user_id, action, task_id, task_ids, label, count, created_at
FROM ` + actionsTable + ` WHERE user_id = $1`
	args := []any{user.UserID}
	if taskID != "" {
		args = append(args, taskID)
		query += ` AND (task_id = $2 OR $2 = ANY(task_ids))`
	}
	query += ` ORDER BY created_at DESC, action_id DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var out []task.Action
	for rows.Next() {
		var a task.Action
		var kind string
		if err := rows.Scan(&a.ID, &a.UserID, &kind, &a.TaskID, &a.TaskIDs, &a.Label, &a.Count, &a.At); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		a.Kind = task.ActionKind(kind)
		if len(a.TaskIDs) == 0 {
			a.TaskIDs = nil
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanTask(row pgx.Row) (*task.Task, error) {
	var t task.Task
	var status, method string
	var source, destination []byte
	if err := row.Scan(&t.ID, &t.UserID, &t.Label, &t.Details, &source, &destination, &t.ScheduledTime,
		&status, &method, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt); err != nil {
		return nil, err
	}
	t.Status = task.Status(status)
	t.CompletionMethod = task.CompletionMethod(method)
	var err error
	if t.Source, err = decodePlace(source); err != nil {
		return nil, err
	}
	if t.Destination, err = decodePlace(destination); err != nil {
		return nil, err
	}
	return &t, nil
}

func encodePlace(p *geo.Place) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	data, err := jsonx.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode place: %w", err)
	}
	return data, nil
}

func decodePlace(data []byte) (*geo.Place, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var p geo.Place
	if err := jsonx.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode place: %w", err)
	}
	return &p, nil
}

var _ task.Store = (*Store)(nil)
