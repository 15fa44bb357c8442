package id

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifiersCarryPrefix(t *testing.T) {
	assert.True(t, strings.HasPrefix(NewTaskID(), "task-"))
	assert.True(t, strings.HasPrefix(NewSessionID(), "session-"))
	assert.True(t, strings.HasPrefix(NewCompletionID(), "completion-"))
	assert.True(t, strings.HasPrefix(NewActionID(), "action-"))
	assert.NotEqual(t, NewTaskID(), NewTaskID())
}

func TestUUIDv7Strategy(t *testing.T) {
	SetStrategy(ParseStrategy("uuidv7"))
	t.Cleanup(func() { SetStrategy(StrategyKSUID) })

	sessionID := NewSessionID()
	require.True(t, strings.HasPrefix(sessionID, "session-"))
	// prefix + 36 char canonical UUID
	assert.Len(t, sessionID, len("session-")+36)
}

func TestContextRoundTrip(t *testing.T) {
	ctx := WithIDs(context.Background(), IDs{UserID: "u1", SessionID: "s1", TaskID: "t1"})
	ids := IDsFromContext(ctx)
	assert.Equal(t, "u1", ids.UserID)
	assert.Equal(t, "s1", ids.SessionID)
	assert.Equal(t, "t1", ids.TaskID)
	assert.Empty(t, ids.RequestID)

	assert.Equal(t, ctx, WithUserID(ctx, ""))
}
