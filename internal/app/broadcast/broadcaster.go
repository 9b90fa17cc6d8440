// Package broadcast turns persisted messages into client frames and pushes
// them through the registry.
package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/app/hub"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/core"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/domain"
)

// Fanout is the part of the registry the broadcaster needs.
type Fanout interface {
	Broadcast(key domain.ChannelKey, payload core.Frame) hub.PublishResult
}

// MessageFrame is the client-visible form of a chat message.
type MessageFrame struct {
	Type            string    `json:"type"`
	ID              string    `json:"id"`
	Channel         string    `json:"channel"`
	Sender          string    `json:"sender"`
	Receiver        string    `json:"receiver,omitempty"`
	Body            string    `json:"body"`
	Timestamp       time.Time `json:"ts"`
	ClientMessageID string    `json:"client_message_id,omitempty"`
}

type DeletedFrame struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Channel string `json:"channel,omitempty"`
}

func FrameOf(msg domain.Message) MessageFrame {
	return MessageFrame{
		Type:            "message",
		ID:              msg.ID,
		Channel:         msg.ChannelKey.String(),
		Sender:          string(msg.SenderID),
		Receiver:        string(msg.ReceiverID),
		Body:            msg.Body,
		Timestamp:       msg.CreatedAt,
		ClientMessageID: msg.ClientMessageID,
	}
}

type Broadcaster struct {
	fanout  Fanout
	marshal func(any) ([]byte, error)
}

func New(fanout Fanout) *Broadcaster {
	return &Broadcaster{fanout: fanout, marshal: json.Marshal}
}

// Publish pushes one persisted message to every subscriber of its channel.
func (b *Broadcaster) Publish(_ context.Context, msg domain.Message) error {
	data, err := b.marshal(FrameOf(msg))
	if err != nil {
		log.Error().Err(err).Str("module", "app.broadcast").Str("id", msg.ID).Msg("marshal message")
		return domain.Validation("message", err.Error())
	}
	res := b.fanout.Broadcast(msg.ChannelKey, data)
	log.Debug().Str("module", "app.broadcast").Str("channel", msg.ChannelKey.String()).Str("id", msg.ID).Int("sent_to", res.SentTo).Msg("message published")
	return nil
}

// PublishBatch publishes msgs in order. A message that fails to serialize is
// skipped; the rest are still delivered. It returns how many were published.
func (b *Broadcaster) PublishBatch(ctx context.Context, msgs []domain.Message) int {
	var n int
	for _, m := range msgs {
		if err := b.Publish(ctx, m); err != nil {
			continue
		}
		n++
	}
	return n
}

// PublishDeleted tells subscribers of key that a message is gone.
func (b *Broadcaster) PublishDeleted(key domain.ChannelKey, id string) {
	data, err := b.marshal(DeletedFrame{Type: "message_deleted", ID: id, Channel: key.String()})
	if err != nil {
		log.Error().Err(err).Str("module", "app.broadcast").Str("id", id).Msg("marshal delete notice")
		return
	}
	b.fanout.Broadcast(key, data)
}

// PublishJSON sends an arbitrary event frame to key.
func (b *Broadcaster) PublishJSON(key domain.ChannelKey, v any) error {
	data, err := b.marshal(v)
	if err != nil {
		return domain.Validation("event", err.Error())
	}
	b.fanout.Broadcast(key, data)
	return nil
}
