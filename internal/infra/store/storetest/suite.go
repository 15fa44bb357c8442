// Package storetest holds the behaviour every task.Store adapter must share.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"georemind/internal/domain/geo"
	"georemind/internal/domain/task"
	sherrors "georemind/internal/shared/errors"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) task.Store

var (
	alice = task.UserContext{UserID: "alice", Email: "alice@example.com"}
	bob   = task.UserContext{UserID: "bob"}
)

// Run exercises the shared task.Store contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateGetList", func(t *testing.T) { testCreateGetList(t, newStore(t)) })
	t.Run("UserScoping", func(t *testing.T) { testUserScoping(t, newStore(t)) })
	t.Run("CompleteTask", func(t *testing.T) { testCompleteTask(t, newStore(t)) })
	t.Run("ReopenTask", func(t *testing.T) { testReopenTask(t, newStore(t)) })
	t.Run("DeleteTask", func(t *testing.T) { testDeleteTask(t, newStore(t)) })
	t.Run("Actions", func(t *testing.T) { testActions(t, newStore(t)) })
	t.Run("ListUsers", func(t *testing.T) { testListUsers(t, newStore(t)) })
}

func testListUsers(t *testing.T, s task.Store) {
	ctx := context.Background()
	require.NoError(t, s.EnsureSchema(ctx))

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateTask(ctx, bob, newTask("Return library book", base)))
	require.NoError(t, s.CreateTask(ctx, alice, newTask("Buy milk", base)))
	require.NoError(t, s.CreateTask(ctx, alice, newTask("Water plants", base.Add(time.Minute))))

	users, err = s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, users)
}

func newTask(label string, created time.Time) *task.Task {
	return &task.Task{
		Label:     label,
		Details:   "details for " + label,
		Source:    &geo.Place{Coordinate: geo.Coordinate{Latitude: 37.7749, Longitude: -122.4194}, Name: "Home"},
		CreatedAt: created,
	}
}

func testCreateGetList(t *testing.T, s task.Store) {
	ctx := context.Background()
	require.NoError(t, s.EnsureSchema(ctx))

	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	first := newTask("Buy milk", base)
	second := newTask("Pick up parcel", base.Add(time.Minute))
	second.Destination = &geo.Place{Coordinate: geo.Coordinate{Latitude: 37.7849, Longitude: -122.4094}, Name: "Post office"}
	second.ScheduledTime = "18:30"

	require.NoError(t, s.CreateTask(ctx, alice, first))
	require.NoError(t, s.CreateTask(ctx, alice, second))
	require.NotEmpty(t, first.ID)
	assert.Equal(t, task.StatusPending, first.Status)
	assert.Equal(t, alice.UserID, first.UserID)

	got, err := s.GetTask(ctx, alice, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pick up parcel", got.Label)
	require.NotNil(t, got.Destination)
	assert.Equal(t, "Post office", got.Destination.Name)
	assert.InDelta(t, 37.7849, got.Destination.Latitude, 1e-9)
	assert.Equal(t, "18:30", got.ScheduledTime)
	assert.Nil(t, got.CompletedAt)

	list, err := s.ListTasks(ctx, alice, task.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")

	limited, err := s.ListTasks(ctx, alice, task.ListFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	err = s.CreateTask(ctx, alice, &task.Task{Label: "  "})
	assert.True(t, sherrors.IsInvalidTask(err))

	_, err = s.GetTask(ctx, alice, "missing")
	assert.True(t, sherrors.IsNotFound(err))
}

func testUserScoping(t *testing.T, s task.Store) {
	ctx := context.Background()
	require.NoError(t, s.EnsureSchema(ctx))

	mine := newTask("Private", time.Now())
	require.NoError(t, s.CreateTask(ctx, alice, mine))

	_, err := s.GetTask(ctx, bob, mine.ID)
	assert.True(t, sherrors.IsNotFound(err))

	list, err := s.ListTasks(ctx, bob, task.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = s.CompleteTask(ctx, bob, task.Completion{TaskID: mine.ID, Method: task.CompletionManual})
	assert.True(t, sherrors.IsNotFound(err))

	err = s.CreateTask(ctx, bob, &task.Task{UserID: alice.UserID, Label: "spoofed"})
	assert.True(t, sherrors.IsInvalidTask(err))

	_, err = s.ListTasks(ctx, task.UserContext{}, task.ListFilter{})
	assert.True(t, sherrors.IsInvalidTask(err))
}

func testCompleteTask(t *testing.T, s task.Store) {
	ctx := context.Background()
	require.NoError(t, s.EnsureSchema(ctx))

	tk := newTask("Walk dog", time.Now().Add(-time.Hour))
	require.NoError(t, s.CreateTask(ctx, alice, tk))

	at := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	rec, err := s.CompleteTask(ctx, alice, task.Completion{
		TaskID:        tk.ID,
		Method:        task.CompletionReminderExhaustion,
		CompletedAt:   at,
		ReminderCount: 3,
	})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "Walk dog", rec.Label)
	assert.Equal(t, 3, rec.ReminderCount)
	assert.Equal(t, task.CompletionReminderExhaustion, rec.CompletionMethod)

	got, err := s.GetTask(ctx, alice, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, got.Status)
	assert.Equal(t, task.CompletionReminderExhaustion, got.CompletionMethod)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, at.Equal(*got.CompletedAt))

	_, err = s.CompleteTask(ctx, alice, task.Completion{TaskID: tk.ID, Method: task.CompletionManual})
	assert.True(t, errors.Is(err, task.ErrAlreadyCompleted))

	_, err = s.CompleteTask(ctx, alice, task.Completion{TaskID: tk.ID, Method: "teleport"})
	assert.True(t, sherrors.IsInvalidTask(err))

	completed, err := s.ListTasks(ctx, alice, task.ListFilter{Status: task.StatusCompleted})
	require.NoError(t, err)
	assert.Len(t, completed, 1)

	history, err := s.ListCompletions(ctx, alice, time.Time{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, tk.ID, history[0].TaskID)

	recent, err := s.ListCompletions(ctx, alice, at.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func testReopenTask(t *testing.T, s task.Store) {
	ctx := context.Background()
	require.NoError(t, s.EnsureSchema(ctx))

	tk := newTask("Return book", time.Now())
	require.NoError(t, s.CreateTask(ctx, alice, tk))
	_, err := s.CompleteTask(ctx, alice, task.Completion{TaskID: tk.ID, Method: task.CompletionManual})
	require.NoError(t, err)

	reopened, err := s.ReopenTask(ctx, alice, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, reopened.Status)
	assert.Nil(t, reopened.CompletedAt)
	assert.Empty(t, reopened.CompletionMethod)

	_, err = s.CompleteTask(ctx, alice, task.Completion{TaskID: tk.ID, Method: task.CompletionGeofenceArrival})
	require.NoError(t, err, "a reopened task can complete again")

	history, err := s.ListCompletions(ctx, alice, time.Time{})
	require.NoError(t, err)
	assert.Len(t, history, 2)

	_, err = s.ReopenTask(ctx, alice, "missing")
	assert.True(t, sherrors.IsNotFound(err))
}

func testDeleteTask(t *testing.T, s task.Store) {
	ctx := context.Background()
	require.NoError(t, s.EnsureSchema(ctx))

	tk := newTask("Temporary", time.Now())
	require.NoError(t, s.CreateTask(ctx, alice, tk))
	require.NoError(t, s.DeleteTask(ctx, alice, tk.ID))

	_, err := s.GetTask(ctx, alice, tk.ID)
	assert.True(t, sherrors.IsNotFound(err))
	assert.True(t, sherrors.IsNotFound(s.DeleteTask(ctx, alice, tk.ID)))
}

func testActions(t *testing.T, s task.Store) {
	ctx := context.Background()
	require.NoError(t, s.EnsureSchema(ctx))

	base := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	actions := []task.Action{
		{Kind: task.ActionCreateTask, TaskID: "t1", Label: "one", At: base},
		{Kind: task.ActionStartReminder, TaskID: "t1", Label: "one", At: base.Add(time.Minute)},
		{Kind: task.ActionCompleteAll, TaskIDs: []string{"t1", "t2"}, Count: 2, At: base.Add(2 * time.Minute)},
		{Kind: task.ActionCreateTask, TaskID: "t3", Label: "three", At: base.Add(3 * time.Minute)},
	}
	for _, a := range actions {
		require.NoError(t, s.RecordAction(ctx, alice, a))
	}

	all, err := s.ListActions(ctx, alice, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, task.ActionCreateTask, all[0].Kind)
	assert.Equal(t, "t3", all[0].TaskID)
	assert.NotEmpty(t, all[0].ID)
	assert.Equal(t, alice.UserID, all[0].UserID)

	forT1, err := s.ListActions(ctx, alice, "t1", 0)
	require.NoError(t, err)
	require.Len(t, forT1, 3, "batch entries match by member id")
	assert.Equal(t, task.ActionCompleteAll, forT1[0].Kind)
	assert.Equal(t, []string{"t1", "t2"}, forT1[0].TaskIDs)

	limited, err := s.ListActions(ctx, alice, "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	others, err := s.ListActions(ctx, bob, "", 0)
	require.NoError(t, err)
	assert.Empty(t, others)
}
