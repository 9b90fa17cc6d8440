// Package storetest holds behaviour checks shared by every MessageStore.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/core"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/domain"
)

func message(t *testing.T, key domain.ChannelKey, body string, at time.Time) domain.Message {
	t.Helper()
	var m domain.Message
	if key.Kind() == domain.KindDirect {
		a, b, _ := key.Participants()
		m = domain.NewDirectMessage(string(a), string(b), body, "cm-"+body)
	} else {
		room, _ := key.Room()
		m = domain.NewRoomMessage(room, "alice", body, "")
	}
	m.CreatedAt = at
	m.Normalize(at)
	require.NoError(t, m.Validate())
	return m
}

// Run exercises s. The store must start empty.
func Run(t *testing.T, s core.MessageStore) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	room := domain.RoomKey("general")
	dm := domain.DirectKey("alice", "bob")

	t.Run("SaveBatchPreservesOrder", func(t *testing.T) {
		var batch []domain.Message
		for i := 0; i < 5; i++ {
			batch = append(batch, message(t, room, fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Millisecond)))
		}
		saved, err := s.SaveBatch(ctx, batch)
		require.NoError(t, err)
		require.Len(t, saved, 5)
		for i := 1; i < len(saved); i++ {
			assert.Greater(t, saved[i].Seq, saved[i-1].Seq)
		}

		got, err := s.FindByChannel(ctx, room)
		require.NoError(t, err)
		require.Len(t, got, 5)
		for i, m := range got {
			assert.Equal(t, batch[i].ID, m.ID)
			assert.Equal(t, batch[i].Body, m.Body)
			assert.True(t, batch[i].CreatedAt.Equal(m.CreatedAt), "created_at %v vs %v", batch[i].CreatedAt, m.CreatedAt)
		}
	})

	t.Run("DirectMessagesKeepParticipants", func(t *testing.T) {
		m := message(t, dm, "hi", base)
		_, err := s.SaveBatch(ctx, []domain.Message{m})
		require.NoError(t, err)

		got, err := s.FindByChannel(ctx, domain.DirectKey("bob", "alice"))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, domain.ParticipantID("alice"), got[0].SenderID)
		assert.Equal(t, domain.ParticipantID("bob"), got[0].ReceiverID)
		assert.Equal(t, "cm-hi", got[0].ClientMessageID)
	})

	t.Run("ChannelsAreIsolated", func(t *testing.T) {
		got, err := s.FindByChannel(ctx, domain.RoomKey("empty"))
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("DeleteByID", func(t *testing.T) {
		key := domain.RoomKey("del")
		m := message(t, key, "bye", base)
		_, err := s.SaveBatch(ctx, []domain.Message{m})
		require.NoError(t, err)

		ok, err := s.DeleteByID(ctx, key, m.ID)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.DeleteByID(ctx, key, m.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := s.FindByChannel(ctx, key)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("DeleteByIDIgnoresOtherChannels", func(t *testing.T) {
		private := domain.DirectKey("carol", "dave")
		m := message(t, private, "private", base)
		_, err := s.SaveBatch(ctx, []domain.Message{m})
		require.NoError(t, err)

		ok, err := s.DeleteByID(ctx, domain.RoomKey("lobby"), m.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := s.FindByChannel(ctx, private)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, m.ID, got[0].ID)
	})

	t.Run("SaveBatchIsIdempotentOnID", func(t *testing.T) {
		key := domain.RoomKey("retry")
		first := message(t, key, "first", base)
		saved, err := s.SaveBatch(ctx, []domain.Message{first})
		require.NoError(t, err)

		second := message(t, key, "second", base.Add(time.Millisecond))
		again, err := s.SaveBatch(ctx, []domain.Message{first, second})
		require.NoError(t, err)
		require.Len(t, again, 2)
		assert.Equal(t, saved[0].Seq, again[0].Seq)
		assert.Greater(t, again[1].Seq, again[0].Seq)

		got, err := s.FindByChannel(ctx, key)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "first", got[0].Body)
		assert.Equal(t, "second", got[1].Body)
	})
}
