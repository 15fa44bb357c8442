package postgresstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"georemind/internal/domain/task"
	"georemind/internal/infra/store/storetest"
	"georemind/internal/shared/logging"
	"georemind/internal/testutil"
)

func TestPostgresStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) task.Store {
		pool := testutil.NewPostgresTestPool(t)
		s := New(pool, WithLogger(logging.Nop()))
		require.NoError(t, s.EnsureSchema(context.Background()))
		return s
	})
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	pool := testutil.NewPostgresTestPool(t)
	s := New(pool, WithLogger(logging.Nop()))
	ctx := context.Background()
	require.NoError(t, s.EnsureSchema(ctx))
	require.NoError(t, s.EnsureSchema(ctx))
}

func TestNilStoreEnsureSchema(t *testing.T) {
	var s *Store
	require.Error(t, s.EnsureSchema(context.Background()))
}
