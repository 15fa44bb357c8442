package docstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"georemind/internal/domain/task"
	"georemind/internal/infra/store/storetest"
	"georemind/internal/shared/logging"
)

func TestMemoryStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) task.Store {
		return NewMemory(WithLogger(logging.Nop()))
	})
}

func TestFileStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) task.Store {
		s, err := OpenFile(filepath.Join(t.TempDir(), DefaultFileName), WithLogger(logging.Nop()))
		require.NoError(t, err)
		return s
	})
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", DefaultFileName)
	user := task.UserContext{UserID: "carol"}

	s, err := OpenFile(path, WithLogger(logging.Nop()))
	require.NoError(t, err)
	require.NoError(t, s.EnsureSchema(ctx))

	tk := &task.Task{Label: "Water plants"}
	require.NoError(t, s.CreateTask(ctx, user, tk))
	_, err = s.CompleteTask(ctx, user, task.Completion{TaskID: tk.ID, Method: task.CompletionManual})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Water plants")

	reopened, err := OpenFile(path, WithLogger(logging.Nop()))
	require.NoError(t, err)
	got, err := reopened.GetTask(ctx, user, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, got.Status)

	history, err := reopened.ListCompletions(ctx, user, time.Time{})
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestActionLogIsCapped(t *testing.T) {
	ctx := context.Background()
	user := task.UserContext{UserID: "dave"}
	s := NewMemory(WithMaxActions(3), WithLogger(logging.Nop()))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.RecordAction(ctx, user, task.Action{
			Kind: task.ActionCreateTask,
			At:   base.Add(time.Duration(i) * time.Minute),
		}))
	}
	actions, err := s.ListActions(ctx, user, "", 0)
	require.NoError(t, err)
	require.Len(t, actions, 3)
	assert.True(t, actions[0].At.Equal(base.Add(4*time.Minute)))
}

func TestCanceledContextIsRejected(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewMemory(WithLogger(logging.Nop()))
	_, err := s.ListTasks(ctx, task.UserContext{UserID: "erin"}, task.ListFilter{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenFileRequiresPath(t *testing.T) {
	_, err := OpenFile(" ")
	assert.Error(t, err)
}
