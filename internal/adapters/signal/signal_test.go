package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/adapters/janus"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/adapters/janus/janustest"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/adapters/store/memory"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/app/batch"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/app/broadcast"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/app/call"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/app/hub"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/app/relay"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/domain"
)

const offerSDP = "v=0\r\n" +
	"o=- 4215775240449105457 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n"

type testEnv struct {
	srv    *httptest.Server
	store  *memory.Store
	reg    *hub.Registry
	rooms  *batch.Batcher
	direct *batch.Batcher
	janus  *janustest.Server
}

func newTestEnv(t *testing.T, withCalls bool, tweaks ...func(*Deps)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.New()
	reg := hub.NewRegistry(hub.TopicAuthorizer{}, hub.SimplePolicy{})
	bc := broadcast.New(reg)
	env := &testEnv{
		store:  store,
		reg:    reg,
		rooms:  batch.New(batch.Config{Name: "rooms", Threshold: 1}, store, bc),
		direct: batch.New(batch.Config{Name: "direct", Threshold: 100}, store, bc),
	}
	deps := Deps{
		Registry:    reg,
		Rooms:       env.rooms,
		Direct:      env.direct,
		History:     store,
		Broadcaster: bc,
		Limiter:     NewRateLimiter(1000, 1000),
	}
	if withCalls {
		env.janus = janustest.NewServer()
		env.janus.PollWait = 50 * time.Millisecond
		client := janus.New(janus.Config{URL: env.janus.JanusURL(), RequestTimeout: 2 * time.Second})
		rel := relay.NewManager(client, relay.Config{Backoff: 20 * time.Millisecond})
		deps.Calls = call.NewService(client, rel, bc, call.Config{})
		t.Cleanup(func() {
			rel.StopAll(context.Background())
			env.janus.Close()
		})
	}
	for _, tweak := range tweaks {
		tweak(&deps)
	}
	ctl := NewSignalWSController(deps, Options{PingPeriod: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("participant", c.GetHeader("X-Participant-ID"))
		c.Next()
	})
	r.GET("/ws", func(c *gin.Context) { ctl.HandleSignal(ctx, c) })
	env.srv = httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		env.srv.Close()
	})
	return env
}

func (e *testEnv) dial(t *testing.T, participant string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws"
	header := http.Header{}
	header.Set("X-Participant-ID", participant)
	ws, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(v))
}

// readUntil skips frames until one of type typ arrives.
func readUntil(t *testing.T, ws *websocket.Conn, typ string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, ws.SetReadDeadline(deadline))
		_, data, err := ws.ReadMessage()
		require.NoError(t, err, "waiting for %q", typ)
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		if m["type"] == typ {
			return m
		}
	}
}

func subscribe(t *testing.T, ws *websocket.Conn, key domain.ChannelKey) {
	t.Helper()
	send(t, ws, map[string]any{"type": "subscribe", "channel": key})
	got := readUntil(t, ws, "subscribed")
	require.Equal(t, string(key), got["channel"])
}

func TestPingPong(t *testing.T) {
	env := newTestEnv(t, false)
	ws := env.dial(t, "alice")
	send(t, ws, map[string]any{"type": "ping"})
	got := readUntil(t, ws, "pong")
	assert.NotEmpty(t, got["conn"])
	assert.Greater(t, got["ts"], float64(0))
}

func TestMissingParticipantIsRejected(t *testing.T) {
	env := newTestEnv(t, false)
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnknownTypeAndBadJSON(t *testing.T) {
	env := newTestEnv(t, false)
	ws := env.dial(t, "alice")

	send(t, ws, map[string]any{"type": "teleport"})
	got := readUntil(t, ws, "error")
	assert.Equal(t, "unknown_type", got["error"])

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{nope")))
	got = readUntil(t, ws, "error")
	assert.Equal(t, "bad_json", got["error"])
}

func TestRoomMessageReachesSubscribers(t *testing.T) {
	env := newTestEnv(t, false)
	alice := env.dial(t, "alice")
	bob := env.dial(t, "bob")
	subscribe(t, alice, domain.RoomKey("r1"))
	subscribe(t, bob, domain.RoomKey("r1"))

	send(t, alice, map[string]any{"type": "message", "room": "r1", "body": "hello", "client_message_id": "c-1"})
	ack := readUntil(t, alice, "ack")
	assert.Equal(t, "room/r1", ack["channel"])
	assert.Equal(t, "c-1", ack["client_message_id"])

	got := readUntil(t, bob, "message")
	assert.Equal(t, "hello", got["body"])
	assert.Equal(t, "alice", got["sender"])
	assert.Equal(t, ack["id"], got["id"])
}

func TestRoomMessageRequiresSubscription(t *testing.T) {
	env := newTestEnv(t, false)
	alice := env.dial(t, "alice")
	send(t, alice, map[string]any{"type": "message", "room": "r1", "body": "hello"})
	got := readUntil(t, alice, "error")
	assert.Equal(t, "not_subscribed", got["error"])
	assert.Equal(t, 0, env.rooms.PendingTotal())
}

func TestDirectMessageWaitsForFlush(t *testing.T) {
	env := newTestEnv(t, false)
	alice := env.dial(t, "alice")
	bob := env.dial(t, "bob")
	subscribe(t, bob, domain.DirectKey("alice", "bob"))

	send(t, alice, map[string]any{"type": "message", "to": "Bob", "body": "psst"})
	ack := readUntil(t, alice, "ack")
	assert.Equal(t, "dm/alice:bob", ack["channel"])
	assert.Equal(t, 1, env.direct.Pending(domain.DirectKey("alice", "bob")))

	env.direct.FlushAll(context.Background())
	got := readUntil(t, bob, "message")
	assert.Equal(t, "psst", got["body"])
	assert.Equal(t, "bob", got["receiver"])
}

func TestEmptyMessageIsInvalid(t *testing.T) {
	env := newTestEnv(t, false)
	alice := env.dial(t, "alice")
	send(t, alice, map[string]any{"type": "message", "to": "bob", "body": "  "})
	got := readUntil(t, alice, "error")
	assert.Equal(t, "invalid", got["error"])
}

func TestHistoryAndDelete(t *testing.T) {
	env := newTestEnv(t, false)
	alice := env.dial(t, "alice")
	subscribe(t, alice, domain.RoomKey("r1"))

	send(t, alice, map[string]any{"type": "message", "room": "r1", "body": "one"})
	ack := readUntil(t, alice, "ack")

	send(t, alice, map[string]any{"type": "history", "channel": "room/r1"})
	hist := readUntil(t, alice, "history")
	msgs, ok := hist["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	assert.Equal(t, "one", msgs[0].(map[string]any)["body"])

	send(t, alice, map[string]any{"type": "delete", "channel": "room/r1", "id": ack["id"]})
	notice := readUntil(t, alice, "message_deleted")
	assert.Equal(t, ack["id"], notice["id"])

	found, err := env.store.FindByChannel(context.Background(), domain.RoomKey("r1"))
	require.NoError(t, err)
	assert.Empty(t, found)

	send(t, alice, map[string]any{"type": "delete", "channel": "room/r1", "id": ack["id"]})
	got := readUntil(t, alice, "error")
	assert.Equal(t, "not_found", got["error"])
}

func TestDeleteOfMessageInAnotherChannel(t *testing.T) {
	env := newTestEnv(t, false)
	alice := env.dial(t, "alice")
	send(t, alice, map[string]any{"type": "message", "to": "bob", "body": "private"})
	ack := readUntil(t, alice, "ack")
	env.direct.FlushAll(context.Background())

	mallory := env.dial(t, "mallory")
	subscribe(t, mallory, domain.RoomKey("lobby"))
	send(t, mallory, map[string]any{"type": "delete", "channel": "room/lobby", "id": ack["id"]})
	got := readUntil(t, mallory, "error")
	assert.Equal(t, "not_found", got["error"])

	msgs, err := env.store.FindByChannel(context.Background(), domain.DirectKey("alice", "bob"))
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestHistoryOfForeignConversationIsForbidden(t *testing.T) {
	env := newTestEnv(t, false)
	mallory := env.dial(t, "mallory")
	send(t, mallory, map[string]any{"type": "history", "channel": "dm/alice:bob"})
	got := readUntil(t, mallory, "error")
	assert.Equal(t, "forbidden", got["error"])
}

func TestSubscribeDeniedClosesSocket(t *testing.T) {
	env := newTestEnv(t, false)
	mallory := env.dial(t, "mallory")
	send(t, mallory, map[string]any{"type": "subscribe", "channel": domain.AnswerTopic("r1", "alice")})

	require.NoError(t, mallory.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := mallory.ReadMessage()
	require.Error(t, err)
	assert.False(t, env.reg.HasChannel(domain.AnswerTopic("r1", "alice")))
}

func TestPresenceOnlineAndOffline(t *testing.T) {
	env := newTestEnv(t, false)
	key := domain.PresenceTopic("c1")
	bob := env.dial(t, "bob")
	subscribe(t, bob, key)

	alice := env.dial(t, "alice")
	subscribe(t, alice, key)

	for {
		got := readUntil(t, bob, "presence")
		if got["participant"] == "alice" {
			assert.Equal(t, true, got["online"])
			break
		}
	}

	require.NoError(t, alice.Close())
	got := readUntil(t, bob, "presence")
	assert.Equal(t, "alice", got["participant"])
	assert.Equal(t, false, got["online"])
	assert.Eventually(t, func() bool { return env.reg.Subscribers(key) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	env := newTestEnv(t, false)
	alice := env.dial(t, "alice")
	subscribe(t, alice, domain.RoomKey("r1"))

	send(t, alice, map[string]any{"type": "unsubscribe", "channel": "room/r1"})
	readUntil(t, alice, "unsubscribed")
	assert.False(t, env.reg.HasChannel(domain.RoomKey("r1")))

	send(t, alice, map[string]any{"type": "unsubscribe", "channel": "room/r1"})
	got := readUntil(t, alice, "error")
	assert.Equal(t, "not_found", got["error"])
}

func TestWhoAmI(t *testing.T) {
	env := newTestEnv(t, false)
	alice := env.dial(t, "alice")
	subscribe(t, alice, domain.RoomKey("r1"))
	send(t, alice, map[string]any{"type": "whoami"})
	got := readUntil(t, alice, "whoami")
	assert.Equal(t, "alice", got["participant"])
	assert.Equal(t, []any{"room/r1"}, got["channels"])
}

func TestRateLimiterPerParticipant(t *testing.T) {
	lim := NewRateLimiter(0.001, 1)
	require.True(t, lim.Allow("alice"))
	assert.False(t, lim.Allow("alice"))
	assert.True(t, lim.Allow("bob"))

	now := time.Now()
	lim.now = func() time.Time { return now.Add(time.Hour) }
	require.True(t, lim.Allow("bob"))
	assert.Equal(t, 1, lim.Sweep(time.Minute))
	assert.Equal(t, 1, lim.Len())
}

func TestRateLimitedMessageIsRejected(t *testing.T) {
	env := newTestEnv(t, false, func(d *Deps) { d.Limiter = NewRateLimiter(0.001, 1) })
	alice := env.dial(t, "alice")

	send(t, alice, map[string]any{"type": "message", "to": "bob", "body": "one"})
	readUntil(t, alice, "ack")
	send(t, alice, map[string]any{"type": "message", "to": "bob", "body": "two"})
	got := readUntil(t, alice, "error")
	assert.Equal(t, "rate_limited", got["error"])
	assert.Equal(t, 1, env.direct.PendingTotal())
}

func TestCallsDisabled(t *testing.T) {
	env := newTestEnv(t, false)
	alice := env.dial(t, "alice")
	send(t, alice, map[string]any{"type": "call.join", "room": "r1", "media_room": 7})
	got := readUntil(t, alice, "error")
	assert.Equal(t, "calls_disabled", got["error"])
}

func TestCallFlow(t *testing.T) {
	env := newTestEnv(t, true)
	alice := env.dial(t, "alice")
	bob := env.dial(t, "bob")
	subscribe(t, bob, domain.RoomEventsTopic("r1"))

	send(t, alice, map[string]any{"type": "call.join", "room": "r1", "media_room": 7})
	reg := readUntil(t, alice, "call.registered")
	assert.Equal(t, "r1", reg["room"])

	joined := readUntil(t, bob, "call.joined")
	assert.Equal(t, "alice", joined["participant"])

	send(t, alice, map[string]any{"type": "call.offer", "sdp": offerSDP})
	answer := readUntil(t, alice, "call.answer")
	jsep := answer["jsep"].(map[string]any)
	assert.Equal(t, "answer", jsep["type"])
	assert.Equal(t, janustest.AnswerSDP, jsep["sdp"])

	send(t, alice, map[string]any{"type": "call.mute", "muted": true})
	mute := readUntil(t, bob, "call.mute")
	assert.Equal(t, true, mute["muted"])

	send(t, alice, map[string]any{"type": "call.leave"})
	readUntil(t, alice, "call.unregistered")
	left := readUntil(t, bob, "call.left")
	assert.Equal(t, "alice", left["participant"])
	assert.False(t, env.reg.HasChannel(domain.AnswerTopic("r1", "alice")))
}

func TestCallOfferWithBadSDP(t *testing.T) {
	env := newTestEnv(t, true)
	alice := env.dial(t, "alice")
	send(t, alice, map[string]any{"type": "call.join", "room": "r1", "media_room": 7})
	readUntil(t, alice, "call.registered")

	send(t, alice, map[string]any{"type": "call.offer", "sdp": "garbage"})
	got := readUntil(t, alice, "error")
	assert.Equal(t, "invalid", got["error"])
	assert.Equal(t, "call.offer", got["ref"])
}

func TestDisconnectUnregistersCall(t *testing.T) {
	env := newTestEnv(t, true)
	alice := env.dial(t, "alice")
	bob := env.dial(t, "bob")
	subscribe(t, bob, domain.RoomEventsTopic("r1"))

	send(t, alice, map[string]any{"type": "call.join", "room": "r1", "media_room": 9})
	readUntil(t, alice, "call.registered")
	require.NoError(t, alice.Close())

	left := readUntil(t, bob, "call.left")
	assert.Equal(t, "alice", left["participant"])
	assert.Eventually(t, func() bool { return len(env.janus.CallsOf("destroy")) > 0 }, 2*time.Second, 10*time.Millisecond)
}
