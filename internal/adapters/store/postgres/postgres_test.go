package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/adapters/store/storetest"
)

// Needs a throwaway database: REALTIME_TEST_POSTGRES_DSN=postgres://...
func TestStore(t *testing.T) {
	dsn := os.Getenv("REALTIME_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("REALTIME_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.pool.Exec(ctx, `TRUNCATE chat_messages`)
	require.NoError(t, err)
	storetest.Run(t, s)
}
