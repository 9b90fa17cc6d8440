package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/adapters/store/storetest"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/app/batch"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/domain"
)

func TestInMemoryStore(t *testing.T) {
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	defer s.Close()
	storetest.Run(t, s)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "messages.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	m := domain.NewRoomMessage("r1", "alice", "persisted", "")
	m.Normalize(time.Now())
	_, err = s.SaveBatch(ctx, []domain.Message{m})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.FindByChannel(ctx, domain.RoomKey("r1"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, m.ID, got[0].ID)
}

// ackLostStore commits the next batch but reports a failure, as when the
// persist timeout fires during commit.
type ackLostStore struct {
	*Store
	mu   sync.Mutex
	lose int
}

func (s *ackLostStore) SaveBatch(ctx context.Context, msgs []domain.Message) ([]domain.Message, error) {
	saved, err := s.Store.SaveBatch(ctx, msgs)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil && s.lose > 0 {
		s.lose--
		return nil, errors.New("commit acknowledgement lost")
	}
	return saved, err
}

func TestRetriedBatchAfterLostCommitKeepsChannelFlowing(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	defer s.Close()

	store := &ackLostStore{Store: s, lose: 1}
	b := batch.New(batch.Config{Name: "room", Threshold: 100, Interval: time.Hour}, store, nil)
	key := domain.RoomKey("r1")

	_, err = b.Enqueue(ctx, domain.NewRoomMessage("r1", "alice", "first", ""))
	require.NoError(t, err)
	b.FlushOne(ctx, key)
	require.Equal(t, 1, b.Pending(key))

	_, err = b.Enqueue(ctx, domain.NewRoomMessage("r1", "alice", "second", ""))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		b.FlushOne(ctx, key)
	}

	got, err := s.FindByChannel(ctx, key)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Body)
	assert.Equal(t, "second", got[1].Body)
	assert.Equal(t, 0, b.Pending(key))
}

func TestSaveBatchRollsBackOnCancelledContext(t *testing.T) {
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	defer s.Close()

	m := domain.NewRoomMessage("r1", "alice", "never", "")
	m.Normalize(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.SaveBatch(ctx, []domain.Message{m})
	require.Error(t, err)

	got, err := s.FindByChannel(context.Background(), domain.RoomKey("r1"))
	require.NoError(t, err)
	assert.Empty(t, got)
}
