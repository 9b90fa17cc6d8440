// Package signal is the client-facing WebSocket endpoint: chat subscriptions,
// message submission and call signaling share one socket per client.
package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/app/batch"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/app/broadcast"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/app/call"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/app/hub"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/core"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/domain"
)

// Deps are the services the controller drives.
type Deps struct {
	Registry    *hub.Registry
	Auth        core.Authorizer
	Rooms       *batch.Batcher
	Direct      *batch.Batcher
	History     core.MessageStore
	Broadcaster *broadcast.Broadcaster
	Calls       *call.Service
	Limiter     *RateLimiter
}

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
	WriteWait  time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32768
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 32
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 5 * time.Second
	}
	return o
}

type SignalWSController struct {
	Deps
	opts Options
}

func NewSignalWSController(deps Deps, opts Options) *SignalWSController {
	if deps.Auth == nil {
		deps.Auth = hub.TopicAuthorizer{}
	}
	return &SignalWSController{Deps: deps, opts: opts.withDefaults()}
}

// WsSignalConn is the outbound side of one socket.
type WsSignalConn struct {
	id   string
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{
		id:   uuid.NewString(),
		conn: ws,
		send: make(chan core.Frame, buffer),
	}
}

func (c *WsSignalConn) ID() string { return c.id }

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return domain.ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return domain.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

func (c *WsSignalConn) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// client is the per-socket session state.
type client struct {
	conn        *WsSignalConn
	participant domain.ParticipantID

	mu       sync.Mutex
	subs     map[domain.ChannelKey]string
	callRoom string
}

func (cl *client) subscription(key domain.ChannelKey) (string, bool) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	id, ok := cl.subs[key]
	return id, ok
}

func (cl *client) remember(key domain.ChannelKey, subID string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.subs[key] = subID
}

func (cl *client) forget(key domain.ChannelKey) (string, bool) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	id, ok := cl.subs[key]
	delete(cl.subs, key)
	return id, ok
}

func (cl *client) topics() []domain.ChannelKey {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	out := make([]domain.ChannelKey, 0, len(cl.subs))
	for k := range cl.subs {
		out = append(out, k)
	}
	return out
}

// setCall records the chat room of the client's call and returns the previous one.
func (cl *client) setCall(room string) string {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	prev := cl.callRoom
	cl.callRoom = room
	return prev
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and serves the socket until it closes.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	participant := domain.ParticipantID(c.GetString("participant"))
	if err := participant.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log.Info().Str("module", "signal").Str("participant", string(participant)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.opts.ReadLimit)

	cl := &client{
		conn:        newWsSignalConn(ws, ctl.opts.SendBuffer),
		participant: participant,
		subs:        make(map[domain.ChannelKey]string),
	}
	ctx, cancel := context.WithCancel(ctx)

	go ctl.writePump(ctx, cl.conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, cl)
		ctl.disconnect(cl)
	}()
}

// disconnect releases everything the socket held.
func (ctl *SignalWSController) disconnect(cl *client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, key := range cl.topics() {
		if key.Kind() == domain.KindPresence {
			ctl.publishPresence(key, cl.participant, false)
		}
	}
	ctl.Registry.LeaveAll(cl.conn)
	if cl.setCall("") != "" && ctl.Calls != nil {
		_ = ctl.Calls.Unregister(ctx, cl.participant)
	}
	log.Info().Str("module", "signal").Str("participant", string(cl.participant)).Str("conn", cl.conn.ID()).Msg("client disconnected")
}
