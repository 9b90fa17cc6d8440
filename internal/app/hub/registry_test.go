package hub

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/core"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/domain"
)

type fakeConn struct {
	id string

	mu      sync.Mutex
	frames  []string
	closed  bool
	sendErr error
}

func newConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.frames = append(c.frames, string(f))
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) received() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.frames...)
}

type denyAuthorizer struct{ allowed domain.ParticipantID }

func (d denyAuthorizer) IsMember(_ context.Context, _ domain.ChannelKey, p domain.ParticipantID) (bool, error) {
	return p == d.allowed, nil
}

type failingAuthorizer struct{}

func (failingAuthorizer) IsMember(context.Context, domain.ChannelKey, domain.ParticipantID) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func TestBroadcastPrunesClosedConnection(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx := context.Background()
	room := domain.RoomKey("R")
	c1, c2 := newConn("c1"), newConn("c2")

	_, err := r.Join(ctx, room, "alice", c1)
	require.NoError(t, err)
	_, err = r.Join(ctx, room, "bob", c2)
	require.NoError(t, err)

	res := r.Broadcast(room, core.Frame("one"))
	assert.Equal(t, 2, res.SentTo)
	assert.Equal(t, []string{"one"}, c1.received())
	assert.Equal(t, []string{"one"}, c2.received())

	c1.Close()
	res = r.Broadcast(room, core.Frame("two"))
	assert.Equal(t, 1, res.SentTo)
	assert.Equal(t, 1, res.Pruned)
	assert.Equal(t, []string{"one"}, c1.received())
	assert.Equal(t, []string{"one", "two"}, c2.received())
	assert.Equal(t, 1, r.Subscribers(room))
}

func TestLeaveLastSubscriberRemovesChannel(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx := context.Background()
	room := domain.RoomKey("R")

	s1, err := r.Join(ctx, room, "alice", newConn("c1"))
	require.NoError(t, err)
	s2, err := r.Join(ctx, room, "bob", newConn("c2"))
	require.NoError(t, err)
	assert.Equal(t, 1, r.Channels())

	assert.True(t, r.Leave(s1))
	assert.True(t, r.HasChannel(room))
	assert.True(t, r.Leave(s2))
	assert.False(t, r.HasChannel(room))
	assert.Equal(t, 0, r.Channels())

	assert.False(t, r.Leave(s2))
	assert.False(t, r.Leave("unknown"))
}

func TestJoinDeniedClosesConnection(t *testing.T) {
	r := NewRegistry(denyAuthorizer{allowed: "alice"}, nil)
	ctx := context.Background()
	conn := newConn("c1")

	_, err := r.Join(ctx, domain.RoomKey("R"), "mallory", conn)
	assert.ErrorIs(t, err, domain.ErrNotMember)
	assert.True(t, conn.IsClosed())
	assert.False(t, r.HasChannel(domain.RoomKey("R")))

	conn = newConn("c2")
	r = NewRegistry(failingAuthorizer{}, nil)
	_, err = r.Join(ctx, domain.RoomKey("R"), "alice", conn)
	assert.ErrorIs(t, err, domain.ErrNotMember)
	assert.True(t, conn.IsClosed())
}

func TestJoinRejectsMalformedInput(t *testing.T) {
	r := NewRegistry(nil, nil)
	conn := newConn("c1")
	_, err := r.Join(context.Background(), "bogus", "alice", conn)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = r.Join(context.Background(), domain.RoomKey("R"), "", conn)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.False(t, conn.IsClosed())
}

func TestRejoinIsLastWriterWins(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx := context.Background()
	room := domain.RoomKey("R")
	old, fresh := newConn("old"), newConn("fresh")

	first, err := r.Join(ctx, room, "alice", old)
	require.NoError(t, err)
	again, err := r.Join(ctx, room, "alice", old)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	second, err := r.Join(ctx, room, "alice", fresh)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, 1, r.Subscribers(room))

	r.Broadcast(room, core.Frame("hello"))
	assert.Empty(t, old.received())
	assert.Equal(t, []string{"hello"}, fresh.received())
	assert.False(t, r.Leave(first))
}

func TestSendTargetsOneParticipant(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx := context.Background()
	topic := domain.AnswerTopic("R", "alice")
	alice := newConn("a")

	_, err := r.Join(ctx, topic, "alice", alice)
	require.NoError(t, err)
	require.NoError(t, r.Send(topic, "alice", core.Frame("answer")))
	assert.Equal(t, []string{"answer"}, alice.received())

	assert.ErrorIs(t, r.Send(topic, "bob", core.Frame("x")), domain.ErrNotFound)
	assert.ErrorIs(t, r.Send(domain.RoomKey("none"), "alice", core.Frame("x")), domain.ErrNotFound)
}

func TestSendFailurePrunesAndReportsTransportError(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx := context.Background()
	room := domain.RoomKey("R")
	broken := newConn("broken")
	broken.sendErr = errors.New("write: broken pipe")

	_, err := r.Join(ctx, room, "alice", broken)
	require.NoError(t, err)
	err = r.Send(room, "alice", core.Frame("x"))
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.True(t, broken.IsClosed())
	assert.False(t, r.HasChannel(room))
}

func TestBackpressurePolicy(t *testing.T) {
	ctx := context.Background()
	room := domain.RoomKey("R")

	slow := newConn("slow")
	slow.sendErr = domain.ErrBackpressure
	r := NewRegistry(nil, DropPolicy{})
	_, err := r.Join(ctx, room, "alice", slow)
	require.NoError(t, err)
	res := r.Broadcast(room, core.Frame("x"))
	assert.Equal(t, 1, res.Dropped)
	assert.False(t, slow.IsClosed())
	assert.Equal(t, 1, r.Subscribers(room))

	slow = newConn("slow2")
	slow.sendErr = domain.ErrBackpressure
	r = NewRegistry(nil, SimplePolicy{})
	_, err = r.Join(ctx, room, "alice", slow)
	require.NoError(t, err)
	res = r.Broadcast(room, core.Frame("x"))
	assert.Equal(t, 1, res.Pruned)
	assert.True(t, slow.IsClosed())
	assert.Equal(t, 0, r.Subscribers(room))
}

func TestLeaveAllAndReap(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx := context.Background()
	shared, other := newConn("shared"), newConn("other")

	for _, room := range []string{"a", "b", "c"} {
		_, err := r.Join(ctx, domain.RoomKey(room), "alice", shared)
		require.NoError(t, err)
	}
	_, err := r.Join(ctx, domain.RoomKey("a"), "bob", other)
	require.NoError(t, err)

	assert.Equal(t, 3, r.LeaveAll(shared))
	assert.Equal(t, 1, r.Channels())
	assert.Equal(t, 0, r.LeaveAll(shared))

	other.Close()
	assert.Equal(t, 1, r.Reap())
	assert.Equal(t, 0, r.Channels())
}

func TestConcurrentJoinLeaveBroadcast(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx := context.Background()
	room := domain.RoomKey("busy")
	keeper := newConn("keeper")
	_, err := r.Join(ctx, room, "keeper", keeper)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := newConn(string(rune('a' + i)))
			p := domain.ParticipantID(conn.id)
			for j := 0; j < 100; j++ {
				id, err := r.Join(ctx, room, p, conn)
				if err == nil {
					r.Broadcast(room, core.Frame("x"))
					r.Leave(id)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, r.Subscribers(room))
	assert.True(t, r.HasChannel(room))
}

func TestTopicAuthorizer(t *testing.T) {
	ctx := context.Background()
	auth := TopicAuthorizer{Next: denyAuthorizer{allowed: "alice"}}

	cases := []struct {
		key  domain.ChannelKey
		p    domain.ParticipantID
		want bool
	}{
		{domain.AnswerTopic("R", "alice"), "alice", true},
		{domain.AnswerTopic("R", "alice"), "bob", false},
		{domain.DirectKey("alice", "bob"), "bob", true},
		{domain.DirectKey("alice", "bob"), "Bob", true},
		{domain.DirectKey("alice", "bob"), "carol", false},
		{domain.RoomKey("R"), "alice", true},
		{domain.RoomKey("R"), "bob", false},
		{domain.RoomEventsTopic("R"), "alice", true},
		{domain.ChannelKey("garbage"), "alice", false},
	}
	for _, tc := range cases {
		got, err := auth.IsMember(ctx, tc.key, tc.p)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s as %s", tc.key, tc.p)
	}

	ok, err := TopicAuthorizer{}.IsMember(ctx, domain.RoomKey("R"), "anyone")
	require.NoError(t, err)
	assert.True(t, ok)
}
