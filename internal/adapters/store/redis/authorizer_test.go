package redis

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/domain"
)

func TestMembersKey(t *testing.T) {
	a := New(nil, "")
	cases := map[domain.ChannelKey]string{
		domain.RoomKey("r1"):              "members:room:r1",
		domain.RoomEventsTopic("r1"):      "members:room:r1",
		domain.AnswerTopic("r1", "alice"): "members:room:r1",
		domain.PresenceTopic("c9"):        "members:community:c9",
	}
	for key, want := range cases {
		got, ok := a.MembersKey(key)
		assert.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}
	_, ok := a.MembersKey(domain.DirectKey("a", "b"))
	assert.False(t, ok)
}

// Needs a scratch Redis: REALTIME_TEST_REDIS_URL=redis://localhost:6379/15
func TestIsMemberAgainstRedis(t *testing.T) {
	url := os.Getenv("REALTIME_TEST_REDIS_URL")
	if url == "" {
		t.Skip("REALTIME_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	a, err := Open(ctx, url, "test:"+uuid.NewString()+":")
	require.NoError(t, err)
	defer a.Close()

	room := domain.RoomKey("r1")
	require.NoError(t, a.AddMember(ctx, room, "alice"))

	ok, err := a.IsMember(ctx, room, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = a.IsMember(ctx, domain.RoomEventsTopic("r1"), "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = a.IsMember(ctx, room, "bob")
	require.NoError(t, err)
	assert.False(t, ok)
}
