package async

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type panicRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (p *panicRecorder) Error(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lines = append(p.lines, fmt.Sprintf(format, args...))
}

func (p *panicRecorder) snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.lines...)
}

func TestGoReportsPanicWithName(t *testing.T) {
	rec := &panicRecorder{}
	Go(rec, "reminder.tick", func() { panic("alert channel closed") })

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	line := rec.snapshot()[0]
	assert.Contains(t, line, "goroutine reminder.tick panicked: alert channel closed")
	assert.Contains(t, line, "goroutine_test.go")
}

func TestRecoverWithoutNameOrLogger(t *testing.T) {
	rec := &panicRecorder{}
	assert.NotPanics(t, func() {
		defer Recover(rec, "")
		panic("boom")
	})
	assert.NotPanics(t, func() {
		defer Recover(nil, "dropped")
		panic("boom")
	})
	require.Len(t, rec.snapshot(), 1)
	assert.Contains(t, rec.snapshot()[0], "goroutine anonymous panicked")
}

func TestGoRunsWithoutPanic(t *testing.T) {
	rec := &panicRecorder{}
	done := make(chan struct{})
	Go(rec, "noop", func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
	assert.Empty(t, rec.snapshot())
}
