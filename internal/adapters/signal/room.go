package signal

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/app/batch"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/app/broadcast"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/domain"
)

func (ctl *SignalWSController) handleSubscribe(
	ctx context.Context,
	cl *client,
	data []byte,
) {
	var p struct {
		Channel domain.ChannelKey `json:"channel"`
	}
	if !decode(ctl, cl, "subscribe", data, &p) {
		return
	}
	if err := ctl.subscribe(ctx, cl, p.Channel); err != nil {
		if errors.Is(err, domain.ErrNotMember) {
			// the registry already closed the socket
			return
		}
		ctl.sendError(cl.conn, "subscribe", errorCode(err))
		return
	}
	ctl.sendJSON(cl.conn, struct {
		Type    string            `json:"type"`
		Channel domain.ChannelKey `json:"channel"`
	}{"subscribed", p.Channel})
}

func (ctl *SignalWSController) subscribe(ctx context.Context, cl *client, key domain.ChannelKey) error {
	subID, err := ctl.Registry.Join(ctx, key, cl.participant, cl.conn)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("participant", string(cl.participant)).Str("channel", key.String()).Msg("subscribe")
		return err
	}
	_, known := cl.subscription(key)
	cl.remember(key, subID)
	if !known && key.Kind() == domain.KindPresence {
		ctl.publishPresence(key, cl.participant, true)
	}
	return nil
}

func (ctl *SignalWSController) handleUnsubscribe(cl *client, data []byte) {
	var p struct {
		Channel domain.ChannelKey `json:"channel"`
	}
	if !decode(ctl, cl, "unsubscribe", data, &p) {
		return
	}
	subID, ok := cl.forget(p.Channel)
	if !ok {
		ctl.sendError(cl.conn, "unsubscribe", "not_found")
		return
	}
	ctl.Registry.Leave(subID)
	if p.Channel.Kind() == domain.KindPresence {
		ctl.publishPresence(p.Channel, cl.participant, false)
	}
	ctl.sendJSON(cl.conn, struct {
		Type    string            `json:"type"`
		Channel domain.ChannelKey `json:"channel"`
	}{"unsubscribed", p.Channel})
}

type messagePayload struct {
	Room            string `json:"room,omitempty"`
	To              string `json:"to,omitempty"`
	Body            string `json:"body"`
	ClientMessageID string `json:"client_message_id,omitempty"`
}

type ackReply struct {
	Type            string            `json:"type"`
	ID              string            `json:"id"`
	Channel         domain.ChannelKey `json:"channel"`
	ClientMessageID string            `json:"client_message_id,omitempty"`
}

func (ctl *SignalWSController) handleMessage(
	ctx context.Context,
	cl *client,
	data []byte,
) {
	if ctl.Limiter != nil && !ctl.Limiter.Allow(cl.participant) {
		ctl.sendError(cl.conn, "message", "rate_limited")
		return
	}
	var p messagePayload
	if !decode(ctl, cl, "message", data, &p) {
		return
	}

	var (
		msg domain.Message
		b   *batch.Batcher
	)
	switch {
	case p.Room != "" && p.To == "":
		msg = domain.NewRoomMessage(p.Room, string(cl.participant), p.Body, p.ClientMessageID)
		if _, ok := cl.subscription(msg.ChannelKey); !ok {
			ctl.sendError(cl.conn, "message", "not_subscribed")
			return
		}
		b = ctl.Rooms
	case p.To != "" && p.Room == "":
		msg = domain.NewDirectMessage(string(cl.participant), p.To, p.Body, p.ClientMessageID)
		b = ctl.Direct
	default:
		ctl.sendError(cl.conn, "message", "invalid")
		return
	}

	saved, err := b.Enqueue(ctx, msg)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("participant", string(cl.participant)).Msg("enqueue")
		ctl.sendError(cl.conn, "message", errorCode(err))
		return
	}
	ctl.sendJSON(cl.conn, ackReply{
		Type:            "ack",
		ID:              saved.ID,
		Channel:         saved.ChannelKey,
		ClientMessageID: saved.ClientMessageID,
	})
}

func (ctl *SignalWSController) batcherFor(key domain.ChannelKey) *batch.Batcher {
	switch key.Kind() {
	case domain.KindRoom:
		return ctl.Rooms
	case domain.KindDirect:
		return ctl.Direct
	}
	return nil
}

func (ctl *SignalWSController) authorize(ctx context.Context, cl *client, key domain.ChannelKey) error {
	ok, err := ctl.Auth.IsMember(ctx, key, cl.participant)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotMember
	}
	return nil
}

func (ctl *SignalWSController) handleDelete(
	ctx context.Context,
	cl *client,
	data []byte,
) {
	var p struct {
		ID      string            `json:"id"`
		Channel domain.ChannelKey `json:"channel"`
	}
	if !decode(ctl, cl, "delete", data, &p) {
		return
	}
	b := ctl.batcherFor(p.Channel)
	if b == nil || p.ID == "" {
		ctl.sendError(cl.conn, "delete", "invalid")
		return
	}
	if err := ctl.authorize(ctx, cl, p.Channel); err != nil {
		ctl.sendError(cl.conn, "delete", errorCode(err))
		return
	}
	ok, err := b.Delete(ctx, p.Channel, p.ID)
	if err != nil {
		ctl.sendError(cl.conn, "delete", errorCode(err))
		return
	}
	if !ok {
		ctl.sendError(cl.conn, "delete", "not_found")
		return
	}
	ctl.Broadcaster.PublishDeleted(p.Channel, p.ID)
	ctl.sendJSON(cl.conn, ackReply{Type: "ack", ID: p.ID, Channel: p.Channel})
}

func (ctl *SignalWSController) handleHistory(
	ctx context.Context,
	cl *client,
	data []byte,
) {
	var p struct {
		Channel domain.ChannelKey `json:"channel"`
	}
	if !decode(ctl, cl, "history", data, &p) {
		return
	}
	if ctl.batcherFor(p.Channel) == nil {
		ctl.sendError(cl.conn, "history", "invalid")
		return
	}
	if err := ctl.authorize(ctx, cl, p.Channel); err != nil {
		ctl.sendError(cl.conn, "history", errorCode(err))
		return
	}
	msgs, err := ctl.History.FindByChannel(ctx, p.Channel)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("channel", p.Channel.String()).Msg("history")
		ctl.sendError(cl.conn, "history", "internal")
		return
	}
	frames := make([]broadcast.MessageFrame, 0, len(msgs))
	for _, m := range msgs {
		frames = append(frames, broadcast.FrameOf(m))
	}
	ctl.sendJSON(cl.conn, struct {
		Type     string                   `json:"type"`
		Channel  domain.ChannelKey        `json:"channel"`
		Messages []broadcast.MessageFrame `json:"messages"`
	}{"history", p.Channel, frames})
}
