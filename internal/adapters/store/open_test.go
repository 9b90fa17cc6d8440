package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/adapters/store/memory"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/adapters/store/sqlite"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, DriverMemory, "")
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, s)

	s, err = Open(ctx, DriverSQLite, ":memory:")
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Store{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, "mongo", "")
	assert.Error(t, err)
}
