package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"georemind/internal/app/coordinator"
	"georemind/internal/app/location"
	"georemind/internal/domain/geo"
	"georemind/internal/domain/task"
	"georemind/internal/infra/store/docstore"
	sherrors "georemind/internal/shared/errors"
	"georemind/internal/shared/logging"
)

var (
	alice = task.UserContext{UserID: "alice"}
	bob   = task.UserContext{UserID: "bob"}
)

type fixture struct {
	svc   *Service
	store *docstore.Store
	coord *coordinator.Coordinator
	perms *location.PermissionRegistry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := docstore.NewMemory(docstore.WithLogger(logging.Nop()))
	perms := location.NewPermissionRegistry(location.PermissionGranted)
	watcher := location.NewWatcher(location.NewPushSource(), perms, location.WithWatcherLogger(logging.Nop()))
	coord := coordinator.New(store, watcher, coordinator.WithLogger(logging.Nop()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = coord.Shutdown(ctx)
	})
	return &fixture{
		svc:   NewService(store, coord, WithLogger(logging.Nop())),
		store: store,
		coord: coord,
		perms: perms,
	}
}

func (f *fixture) actionKinds(t *testing.T, user task.UserContext) []task.ActionKind {
	t.Helper()
	actions, err := f.store.ListActions(context.Background(), user, "", 0)
	require.NoError(t, err)
	kinds := make([]task.ActionKind, 0, len(actions))
	for _, a := range actions {
		kinds = append(kinds, a.Kind)
	}
	return kinds
}

func TestCreateValidatesAndAudits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, alice, CreateInput{Label: "   "})
	assert.True(t, sherrors.IsInvalidTask(err))

	_, err = f.svc.Create(ctx, alice, CreateInput{
		Label:       "Bad place",
		Destination: &geo.Place{Coordinate: geo.Coordinate{Latitude: 95, Longitude: 0}},
	})
	assert.True(t, sherrors.IsInvalidTask(err))

	created, err := f.svc.Create(ctx, alice, CreateInput{Label: " Buy milk ", Details: "2 litres"})
	require.NoError(t, err)
	assert.Equal(t, "Buy milk", created.Label)
	assert.Equal(t, task.StatusPending, created.Status)
	assert.Equal(t, alice.UserID, created.UserID)

	got, err := f.svc.Get(ctx, alice, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = f.svc.Get(ctx, bob, created.ID)
	assert.True(t, sherrors.IsNotFound(err))

	assert.Contains(t, f.actionKinds(t, alice), task.ActionCreateTask)
}

func TestCompleteCancelsRunningReminder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, alice, CreateInput{Label: "Call mum"})
	require.NoError(t, err)
	sess, err := f.svc.StartReminder(ctx, alice, created.ID, coordinator.WithInitialDelay(time.Hour))
	require.NoError(t, err)

	_, ok := f.svc.Reminder(alice, created.ID)
	assert.True(t, ok)
	_, ok = f.svc.Reminder(bob, created.ID)
	assert.False(t, ok, "sessions are scoped to their owner")

	rec, err := f.svc.Complete(ctx, alice, created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.CompletionManual, rec.CompletionMethod)

	select {
	case <-sess.Done():
	case <-time.After(time.Second):
		t.Fatal("session still running after manual completion")
	}
	out, ok := sess.Outcome()
	require.True(t, ok)
	assert.Equal(t, coordinator.ReasonCancelled, out.Reason)

	_, err = f.svc.Complete(ctx, alice, created.ID)
	assert.ErrorIs(t, err, task.ErrAlreadyCompleted)

	reopened, err := f.svc.Reopen(ctx, alice, created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, reopened.Status)
	assert.Nil(t, reopened.CompletedAt)
}

func TestCompleteCountsEveryReminderSent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		created, err := f.svc.Create(ctx, alice, CreateInput{Label: "Water plants"})
		require.NoError(t, err)
		sess, err := f.svc.StartReminder(ctx, alice, created.ID,
			coordinator.WithInitialDelay(0),
			coordinator.WithReminderInterval(200*time.Microsecond),
			coordinator.WithMaxReminders(100000))
		require.NoError(t, err)
		time.Sleep(time.Duration(i%5) * 300 * time.Microsecond)

		rec, err := f.svc.Complete(ctx, alice, created.ID)
		require.NoError(t, err)
		out, ok := sess.Outcome()
		require.True(t, ok)
		assert.Equal(t, out.RemindersSent, rec.ReminderCount, "iteration %d", i)
	}
}

func TestCompleteAllSkipsOtherUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, label := range []string{"one", "two", "three"} {
		_, err := f.svc.Create(ctx, alice, CreateInput{Label: label})
		require.NoError(t, err)
	}
	bobs, err := f.svc.Create(ctx, bob, CreateInput{Label: "bob's"})
	require.NoError(t, err)

	result, err := f.svc.CompleteAll(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, result.Completed, 3)
	for _, rec := range result.Completed {
		assert.Equal(t, task.CompletionBatch, rec.CompletionMethod)
	}

	pending, err := f.svc.List(ctx, alice, task.ListFilter{Status: task.StatusPending})
	require.NoError(t, err)
	assert.Empty(t, pending)

	stillBob, err := f.svc.Get(ctx, bob, bobs.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, stillBob.Status)

	assert.Contains(t, f.actionKinds(t, alice), task.ActionCompleteAll)

	summary, err := f.svc.Summary(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalTasks)
	assert.Equal(t, 3, summary.CompletedTasks)
	assert.Equal(t, 100, summary.AccuracyPercentage)
	assert.Equal(t, 3, summary.CompletionByMethod[task.CompletionBatch])
}

func TestStartReminderRespectsPermission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.perms.Set(alice.UserID, location.PermissionDenied)

	created, err := f.svc.Create(ctx, alice, CreateInput{
		Label:       "Return library books",
		Destination: &geo.Place{Coordinate: geo.Coordinate{Latitude: 51.5, Longitude: -0.12}, Name: "Library"},
	})
	require.NoError(t, err)

	_, err = f.svc.StartReminder(ctx, alice, created.ID)
	assert.ErrorIs(t, err, sherrors.ErrPermissionDenied)
	assert.Empty(t, f.svc.Reminders(alice))
}

func TestDeleteCancelsReminder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, alice, CreateInput{Label: "Water plants"})
	require.NoError(t, err)
	_, err = f.svc.StartReminder(ctx, alice, created.ID, coordinator.WithInitialDelay(time.Hour))
	require.NoError(t, err)

	assert.False(t, f.svc.CancelReminder(bob, created.ID))
	require.NoError(t, f.svc.Delete(ctx, alice, created.ID))

	_, ok := f.coord.Session(created.ID)
	assert.False(t, ok)
	_, err = f.svc.Get(ctx, alice, created.ID)
	assert.True(t, sherrors.IsNotFound(err))
	assert.True(t, sherrors.IsNotFound(f.svc.Delete(ctx, alice, created.ID)))
}
