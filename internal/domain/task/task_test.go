package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"georemind/internal/domain/geo"
	sherrors "georemind/internal/shared/errors"
)

func TestStatusIsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.False(t, Status("archived").Valid())
}

func TestCompletionMethodValid(t *testing.T) {
	for _, m := range []CompletionMethod{CompletionGeofenceArrival, CompletionReminderExhaustion, CompletionManual, CompletionBatch} {
		assert.True(t, m.Valid(), string(m))
	}
	assert.False(t, CompletionMethod("auto_reminder").Valid())
}

func TestTaskValidate(t *testing.T) {
	var nilTask *Task
	assert.True(t, sherrors.IsInvalidTask(nilTask.Validate()))
	assert.True(t, sherrors.IsInvalidTask((&Task{}).Validate()))

	bad := &Task{ID: "t1", Destination: &geo.Place{Coordinate: geo.Coordinate{Latitude: 120}}}
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "destination")

	ok := &Task{ID: "t1", Destination: &geo.Place{Coordinate: geo.Coordinate{Latitude: 19.0584, Longitude: 72.8842}}}
	assert.NoError(t, ok.Validate())
	assert.True(t, ok.HasDestination())
	assert.False(t, (&Task{ID: "t2"}).HasDestination())
}

func TestUserContextValidate(t *testing.T) {
	assert.Error(t, UserContext{}.Validate())
	assert.NoError(t, UserContext{UserID: "u1"}.Validate())
}

func TestCloneIsDeep(t *testing.T) {
	now := time.Now()
	orig := &Task{
		ID:          "t1",
		Destination: &geo.Place{Name: "Office", Coordinate: geo.Coordinate{Latitude: 1, Longitude: 2}},
		CompletedAt: &now,
	}
	clone := orig.Clone()
	clone.Destination.Name = "Home"
	*clone.CompletedAt = now.Add(time.Hour)

	assert.Equal(t, "Office", orig.Destination.Name)
	assert.Equal(t, now, *orig.CompletedAt)
}

func TestNewCompletionRecordSnapshotsTask(t *testing.T) {
	at := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	tk := &Task{ID: "t1", UserID: "u1", Label: "Groceries", Details: "milk", ScheduledTime: "10:00"}
	rec := NewCompletionRecord("c1", tk, Completion{TaskID: "t1", Method: CompletionReminderExhaustion, CompletedAt: at, ReminderCount: 3})

	assert.Equal(t, "c1", rec.ID)
	assert.Equal(t, "u1", rec.UserID)
	assert.Equal(t, "Groceries", rec.Label)
	assert.Equal(t, "10:00", rec.ScheduledTime)
	assert.Equal(t, CompletionReminderExhaustion, rec.CompletionMethod)
	assert.Equal(t, 3, rec.ReminderCount)
	assert.Equal(t, at, rec.CompletedAt)
}

func TestListFilterMatches(t *testing.T) {
	pending := &Task{Status: StatusPending}
	assert.True(t, ListFilter{}.Matches(pending))
	assert.True(t, ListFilter{Status: StatusPending}.Matches(pending))
	assert.False(t, ListFilter{Status: StatusCompleted}.Matches(pending))
	assert.False(t, ListFilter{}.Matches(nil))
}
