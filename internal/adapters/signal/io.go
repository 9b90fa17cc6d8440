package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/domain"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("conn", c.ID()).Msg("writePump ctx done")
			c.Close()
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn", c.ID()).Msg("writePump ping")
				c.Close()
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("conn", c.ID()).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				c.Close()
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cl *client) {
	c := cl.conn
	defer func() {
		log.Info().Str("module", "signal").Str("participant", string(cl.participant)).Msg("readPump closing")
		c.Close()
	}()

	pongWait := ctl.opts.PingPeriod * 10 / 9
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("participant", string(cl.participant)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signal").Str("participant", string(cl.participant)).Msg("readPump read error")
				}
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
			ctl.handleSignal(ctx, cl, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, cl *client, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(cl.conn, "", "bad_json")
		return
	}

	switch env.Type {
	case "ping":
		ctl.handlePing(cl.conn)
	case "whoami":
		ctl.handleWhoAmI(cl)
	case "subscribe":
		ctl.handleSubscribe(ctx, cl, data)
	case "unsubscribe":
		ctl.handleUnsubscribe(cl, data)
	case "message":
		ctl.handleMessage(ctx, cl, data)
	case "delete":
		ctl.handleDelete(ctx, cl, data)
	case "history":
		ctl.handleHistory(ctx, cl, data)
	case "call.join":
		ctl.handleCallJoin(ctx, cl, data)
	case "call.offer":
		ctl.handleOffer(ctx, cl, data)
	case "call.candidate":
		ctl.handleCandidate(ctx, cl, data)
	case "call.mute":
		ctl.handleMute(ctx, cl, data)
	case "call.leave":
		ctl.handleCallLeave(ctx, cl)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.sendError(cl.conn, env.Type, "unknown_type")
	}
}

type pongReply struct {
	Type string `json:"type"`
	Conn string `json:"conn"`
	TS   int64  `json:"ts"`
}

// handlePing echoes the connection id and the server time in milliseconds.
func (ctl *SignalWSController) handlePing(c *WsSignalConn) {
	ctl.sendJSON(c, pongReply{Type: "pong", Conn: c.ID(), TS: time.Now().UnixMilli()})
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

type errorReply struct {
	Type  string `json:"type"`
	Ref   string `json:"ref,omitempty"`
	Error string `json:"error"`
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, ref, code string) {
	ctl.sendJSON(c, errorReply{Type: "error", Ref: ref, Error: code})
}

// errorCode maps service errors onto the codes clients see.
func errorCode(err error) string {
	var se *domain.SignalingError
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrNotMember):
		return "forbidden"
	case errors.As(err, &se):
		return "signaling_failed"
	default:
		return "internal"
	}
}

func decode(ctl *SignalWSController, cl *client, ref string, data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("type", ref).Msg("bad payload")
		ctl.sendError(cl.conn, ref, "bad_payload")
		return false
	}
	return true
}
