package reminder

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"georemind/internal/shared/logging"
)

type effectRecorder struct {
	mu       sync.Mutex
	messages []string
}

func (r *effectRecorder) effect(_ context.Context, rem Reminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, rem.Message())
	return nil
}

func (r *effectRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.messages))
	copy(out, r.messages)
	return out
}

var groceries = Subject{TaskID: "task-1", Label: "Groceries", Details: "Buy milk"}

func TestSchedulerExhaustsAfterMaxReminders(t *testing.T) {
	speech := &effectRecorder{}
	alerts := &effectRecorder{}
	var exhausted atomic.Int32
	var ticks []int
	var tickMu sync.Mutex

	s, err := New(groceries, Config{InitialDelay: 0, Interval: 100 * time.Millisecond, MaxReminders: 3},
		WithLogger(logging.Nop()),
		WithEffect("speech", speech.effect),
		WithEffect("alert", alerts.effect),
		WithTickHook(func(r Reminder) bool {
			tickMu.Lock()
			ticks = append(ticks, r.Number)
			tickMu.Unlock()
			return true
		}),
		WithExhaustedHook(func(r Reminder) {
			exhausted.Add(1)
			assert.True(t, r.Final())
			assert.Equal(t, 3, r.Number)
		}),
	)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	assert.Error(t, s.Start())

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not exhaust")
	}
	assert.Equal(t, StateExhausted, s.State())
	assert.Equal(t, 3, s.RemindersSent())

	// No 4th tick after another interval.
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, int32(1), exhausted.Load())
	tickMu.Lock()
	assert.Equal(t, []int{1, 2, 3}, ticks)
	tickMu.Unlock()

	want := []string{
		"Reminder 1: Groceries - Buy milk",
		"Reminder 2: Groceries - Buy milk",
		"Reminder 3: Groceries - Buy milk",
	}
	require.Eventually(t, func() bool { return len(speech.snapshot()) == 3 && len(alerts.snapshot()) == 3 },
		time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, want, speech.snapshot())
	assert.ElementsMatch(t, want, alerts.snapshot())

	assert.False(t, s.Cancel(), "cancel after exhaustion is a no-op")
	assert.Equal(t, StateExhausted, s.State())
}

func TestSchedulerCancelBetweenTicks(t *testing.T) {
	speech := &effectRecorder{}
	firstTick := make(chan struct{}, 1)
	var exhausted atomic.Int32

	s, err := New(groceries, Config{InitialDelay: 0, Interval: 100 * time.Millisecond, MaxReminders: 3},
		WithLogger(logging.Nop()),
		WithEffect("speech", func(ctx context.Context, r Reminder) error {
			err := speech.effect(ctx, r)
			if r.Number == 1 {
				firstTick <- struct{}{}
			}
			return err
		}),
		WithExhaustedHook(func(Reminder) { exhausted.Add(1) }),
	)
	require.NoError(t, err)
	require.NoError(t, s.Start())

	select {
	case <-firstTick:
	case <-time.After(time.Second):
		t.Fatal("first tick never fired")
	}
	assert.True(t, s.Cancel())
	assert.False(t, s.Cancel())
	assert.Equal(t, StateCancelled, s.State())
	assert.Len(t, speech.snapshot(), 1)

	time.Sleep(350 * time.Millisecond)
	assert.Equal(t, 1, s.RemindersSent())
	assert.Zero(t, exhausted.Load())
	assert.Len(t, speech.snapshot(), 1)
}

func TestSchedulerCancelWaitsForRunningEffects(t *testing.T) {
	started := make(chan struct{})
	var finished atomic.Bool
	var sawCancel atomic.Bool

	s, err := New(groceries, Config{InitialDelay: 0, Interval: 10 * time.Millisecond, MaxReminders: 5},
		WithLogger(logging.Nop()),
		WithEffect("alert", func(ctx context.Context, r Reminder) error {
			if r.Number > 1 {
				return nil
			}
			close(started)
			<-ctx.Done()
			sawCancel.Store(true)
			time.Sleep(10 * time.Millisecond)
			finished.Store(true)
			return ctx.Err()
		}),
	)
	require.NoError(t, err)
	require.NoError(t, s.Start())

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("effect never started")
	}
	assert.True(t, s.Cancel())
	assert.True(t, sawCancel.Load(), "running effect sees a cancelled context")
	assert.True(t, finished.Load(), "cancel returns only after running effects finish")
}

func TestSchedulerCancelWhileWaiting(t *testing.T) {
	speech := &effectRecorder{}
	s, err := New(groceries, Config{InitialDelay: 50 * time.Millisecond, Interval: 10 * time.Millisecond, MaxReminders: 3},
		WithLogger(logging.Nop()), WithEffect("speech", speech.effect))
	require.NoError(t, err)
	require.NoError(t, s.Start())

	snap := s.Snapshot()
	assert.Equal(t, StateWaiting, snap.State)
	assert.False(t, snap.NextAt.IsZero())

	assert.True(t, s.Cancel())
	time.Sleep(120 * time.Millisecond)
	assert.Zero(t, s.RemindersSent())
	assert.Empty(t, speech.snapshot())
	assert.True(t, s.Snapshot().NextAt.IsZero())

	select {
	case <-s.Done():
	default:
		t.Fatal("done not closed after cancel")
	}
}

func TestSchedulerTickVeto(t *testing.T) {
	speech := &effectRecorder{}
	s, err := New(groceries, Config{Interval: 10 * time.Millisecond, MaxReminders: 3},
		WithLogger(logging.Nop()),
		WithEffect("speech", speech.effect),
		WithTickHook(func(r Reminder) bool { return r.Number < 2 }),
	)
	require.NoError(t, err)
	require.NoError(t, s.Start())

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("vetoed scheduler did not stop")
	}
	assert.Equal(t, StateCancelled, s.State())
	assert.Equal(t, 1, s.RemindersSent())
	require.Eventually(t, func() bool { return len(speech.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestSchedulerCancelFromIdle(t *testing.T) {
	s, err := New(groceries, Config{Interval: time.Second, MaxReminders: 1}, WithLogger(logging.Nop()))
	require.NoError(t, err)
	assert.True(t, s.Cancel())
	assert.Error(t, s.Start())
}

func TestSchedulerEffectFailureDoesNotStopTicks(t *testing.T) {
	var calls atomic.Int32
	s, err := New(groceries, Config{Interval: 10 * time.Millisecond, MaxReminders: 3},
		WithLogger(logging.Nop()),
		WithEffect("alert", func(context.Context, Reminder) error {
			calls.Add(1)
			return errors.New("device offline")
		}),
		WithEffect("panicky", func(context.Context, Reminder) error {
			panic("speech engine crashed")
		}),
	)
	require.NoError(t, err)
	require.NoError(t, s.Start())

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not exhaust")
	}
	assert.Equal(t, StateExhausted, s.State())
	require.Eventually(t, func() bool { return calls.Load() == 3 }, time.Second, 5*time.Millisecond)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{Interval: time.Second, MaxReminders: 3}.Validate())
	assert.Error(t, Config{InitialDelay: -1, Interval: time.Second, MaxReminders: 3}.Validate())
	assert.Error(t, Config{Interval: 0, MaxReminders: 3}.Validate())
	assert.Error(t, Config{Interval: time.Second, MaxReminders: 0}.Validate())

	_, err := New(groceries, Config{})
	assert.Error(t, err)
}

func TestReminderMessage(t *testing.T) {
	assert.Equal(t, "Reminder 2: Groceries - Buy milk", Reminder{Subject: groceries, Number: 2, Max: 3}.Message())
	assert.Equal(t, "Reminder 1: Groceries", Reminder{Subject: Subject{Label: "Groceries"}, Number: 1}.Message())
	assert.Equal(t, "Reminder 1: Buy milk", Reminder{Subject: Subject{Details: "Buy milk"}, Number: 1}.Message())
	assert.False(t, Reminder{Number: 2, Max: 3}.Final())
	assert.True(t, Reminder{Number: 3, Max: 3}.Final())
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "waiting", StateWaiting.String())
	assert.Equal(t, "STATE(42)", State(42).String())
	assert.True(t, StateCancelled.IsTerminal())
	assert.False(t, StateFiring.IsTerminal())
}
